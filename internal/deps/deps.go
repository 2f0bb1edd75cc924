// Package deps reports the availability of the external binaries easel
// shells out to: the local generation engine, ffmpeg, and ffprobe.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"easel/internal/config"
)

// Requirement defines an external binary easel relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements builds the dependency list for the given configuration.
// The engine command may carry arguments; only the binary is checked.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "Generation engine",
			Command:     engineBinary(cfg.Engine.Command),
			Description: "Runs local image and video generation",
		},
		{
			Name:        "FFmpeg",
			Command:     cfg.Tools.FFmpeg,
			Description: "Extracts video thumbnails during ingestion",
			Optional:    true,
		},
		{
			Name:        "FFprobe",
			Command:     cfg.Tools.FFprobe,
			Description: "Probes video dimensions and duration",
			Optional:    true,
		},
	}
}

// CheckAll evaluates every requirement for the configuration.
func CheckAll(cfg *config.Config) []Status {
	return CheckBinaries(Requirements(cfg))
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// engineBinary strips arguments from a configured engine command line.
func engineBinary(command string) string {
	fields := strings.Fields(strings.TrimSpace(command))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
