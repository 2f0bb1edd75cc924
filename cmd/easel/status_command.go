package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"easel/internal/catalog"
	"easel/internal/config"
	"easel/internal/deps"
	"easel/internal/ingest"
	"easel/internal/library"
	"easel/internal/logging"
	"easel/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, queue, and cache status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueueStore(func(cfg *config.Config, store *queue.Store) error {
				out := cmd.OutOrStdout()

				running, pid := daemonPID(cfg.Paths.LogDir)
				if running {
					fmt.Fprintf(out, "Daemon: running (pid %d)\n", pid)
				} else {
					fmt.Fprintln(out, "Daemon: not running")
				}

				health, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}

				rows := []table.Row{
					{"Total", health.Total},
					{"Pending", health.Pending},
					{"Processing", health.Processing},
					{"Completed", health.Completed},
					{"Failed", health.Failed},
					{"Cancelled", health.Cancelled},
				}
				fmt.Fprintln(out, "Queue:")
				fmt.Fprintln(out, renderTable(table.Row{"Status", "Count"}, rows, 2))

				lib, err := library.Open(cfg)
				if err != nil {
					return err
				}
				defer lib.Close()

				svc := ingest.NewService(cfg, lib, logging.NewNop())
				stats, err := svc.Cache().Stats()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Reference cache: %d entries, %s, %.0f%% disk free\n",
					stats.Entries, formatBytes(stats.Bytes), stats.FreeRatio*100)

				toolRows := make([]table.Row, 0, 3)
				for _, status := range deps.CheckAll(cfg) {
					state := "ok"
					if !status.Available {
						state = status.Detail
						if status.Optional {
							state += " (optional)"
						}
					}
					toolRows = append(toolRows, table.Row{status.Name, status.Command, state})
				}
				fmt.Fprintln(out, "Tools:")
				fmt.Fprintln(out, renderTable(table.Row{"Tool", "Command", "State"}, toolRows))

				cat := catalog.New(cfg, nil, logging.NewNop())
				endpoints, err := cat.Endpoints(cmd.Context())
				if err != nil {
					fmt.Fprintf(out, "Endpoints: unavailable (%v)\n", err)
					return nil
				}
				fmt.Fprintf(out, "Endpoints: %d available\n", len(endpoints))
				return nil
			})
		},
	}
}

// daemonPID reports whether a daemon appears to be running based on the
// pid file. A stale file whose process is gone counts as not running.
func daemonPID(logDir string) (bool, int) {
	data, err := os.ReadFile(filepath.Join(logDir, "easel.pid"))
	if err != nil {
		return false, 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return false, 0
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false, 0
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return false, 0
	}
	return true, pid
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
