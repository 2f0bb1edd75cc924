package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"easel/internal/config"
	"easel/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the work queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List work items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueueStore(func(_ *config.Config, store *queue.Store) error {
				statuses := make([]queue.Status, 0, len(listStatuses))
				for _, raw := range listStatuses {
					status, ok := queue.ParseStatus(raw)
					if !ok {
						return fmt.Errorf("unknown status %q", raw)
					}
					statuses = append(statuses, status)
				}
				items, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}

				rows := make([]table.Row, 0, len(items))
				for _, item := range items {
					rows = append(rows, table.Row{
						item.ID,
						item.Type,
						string(item.Status),
						item.CreatedAt.Local().Format(time.DateTime),
						truncate(item.ErrorMessage, 60),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(),
					renderTable(table.Row{"ID", "Type", "Status", "Created", "Error"}, rows, 1))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by status (repeatable)")
	return cmd
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show work item counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueueStore(func(_ *config.Config, store *queue.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if len(stats) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}

				rows := make([]table.Row, 0, len(stats))
				for _, status := range queue.AllStatuses() {
					if count, ok := stats[status]; ok {
						rows = append(rows, table.Row{string(status), count})
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(),
					renderTable(table.Row{"Status", "Count"}, rows, 2))
				return nil
			})
		},
	}
}

// Retry is an explicit re-enqueue: failed items never restart on their own.
func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <itemID...>",
		Short: "Re-enqueue failed work items",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid item id %q", arg)
				}
				ids = append(ids, id)
			}

			return ctx.withQueueStore(func(_ *config.Config, store *queue.Store) error {
				out := cmd.OutOrStdout()
				for _, id := range ids {
					item, err := store.GetByID(cmd.Context(), id)
					if err != nil {
						return err
					}
					if item == nil {
						fmt.Fprintf(out, "Item %d not found\n", id)
						continue
					}
					if item.Status != queue.StatusFailed {
						fmt.Fprintf(out, "Item %d is not in failed state\n", id)
						continue
					}
					replacement, err := store.Enqueue(cmd.Context(), queue.NewItem{
						Type:          item.Type,
						Priority:      item.Priority,
						Payload:       item.Payload,
						CorrelationID: item.CorrelationID,
						Owner:         item.Owner,
						MaxAttempts:   item.MaxAttempts,
					})
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Item %d re-enqueued as %d\n", id, replacement.ID)
				}
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearCompleted bool
	var clearFailed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove work items",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearCompleted && clearFailed {
				return fmt.Errorf("specify only one of --completed or --failed")
			}
			return ctx.withQueueStore(func(_ *config.Config, store *queue.Store) error {
				var removed int64
				var err error
				label := "queue"
				switch {
				case clearCompleted:
					removed, err = store.ClearCompleted(cmd.Context())
					label = "completed"
				case clearFailed:
					removed, err = store.ClearFailed(cmd.Context())
					label = "failed"
				default:
					removed, err = store.Clear(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d %s items\n", removed, label)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Remove only completed items")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove only failed items")
	return cmd
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit-1] + "…"
}
