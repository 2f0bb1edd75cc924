package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ExtractFrame pulls a single frame from a video into a PNG, used to derive
// thumbnails for video artifacts.
func ExtractFrame(ctx context.Context, binary, videoPath, destPath string) error {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create frame dir: %w", err)
	}

	cmd := exec.CommandContext(ctx, binary,
		"-v", "error", "-hide_banner",
		"-ss", "0",
		"-i", videoPath,
		"-frames:v", "1",
		"-y", destPath,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg frame extract: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
