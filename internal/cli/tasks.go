package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/spf13/cobra"
)

type taskRow struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Priority    string    `json:"priority"`
	Status      string    `json:"status"`
	ScheduledAt time.Time `json:"scheduledAt"`
	RetryCount  int       `json:"retryCount"`
	MaxRetries  int       `json:"maxRetries"`
	LastError   string    `json:"lastError,omitempty"`
}

func NewTasksCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect and repair the automation task queue",
	}

	cmd.AddCommand(newTaskStatsCommand(rootOpts))
	cmd.AddCommand(newTaskListCommand(rootOpts))
	cmd.AddCommand(newTaskRequeueCommand(rootOpts))
	cmd.AddCommand(newTaskRunOnceCommand(rootOpts))

	return cmd
}

func newTaskStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count tasks by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withOperations(cmd, func(ctx context.Context, ops Operations) error {
				stats, err := ops.TaskStats(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to read task stats", err)
				}

				out := make(map[string]int64, len(stats))
				for _, status := range domain.TaskStatuses() {
					out[status.String()] = stats[status]
				}

				return rootOpts.formatter(cmd).Result(out, func(w io.Writer) error {
					fmt.Fprintln(w, "STATUS\tCOUNT")
					for _, status := range domain.TaskStatuses() {
						fmt.Fprintf(w, "%s\t%d\n", status, stats[status])
					}
					return nil
				})
			})
		},
	}
}

func newTaskListCommand(rootOpts *RootOptions) *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks in one status",
		Long: `List tasks in one status, oldest due first.

Examples:
  outreachctl tasks list
  outreachctl tasks list --status failed --limit 20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := domain.ParseTaskStatusFromString(status)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --status", err)
			}
			if limit < 1 {
				return NewExitError(ExitCommandError, "--limit must be positive")
			}

			return rootOpts.withOperations(cmd, func(ctx context.Context, ops Operations) error {
				tasks, err := ops.ListTasks(ctx, parsed, limit)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list tasks", err)
				}

				rows := make([]taskRow, 0, len(tasks))
				for _, t := range tasks {
					rows = append(rows, toTaskRow(t))
				}

				return rootOpts.formatter(cmd).Result(rows, func(w io.Writer) error {
					if len(rows) == 0 {
						fmt.Fprintf(w, "No %s tasks\n", parsed)
						return nil
					}
					fmt.Fprintln(w, "ID\tTYPE\tPRIORITY\tRETRIES\tSCHEDULED\tLAST ERROR")
					for _, r := range rows {
						fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
							r.ID, r.Type, r.Priority, r.RetryCount, r.MaxRetries,
							r.ScheduledAt.Format(time.RFC3339), r.LastError)
					}
					return nil
				})
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", domain.TaskStatusDeadLetter.String(), "task status to list")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of tasks")

	return cmd
}

func newTaskRequeueCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <task-id>...",
		Short: "Move failed or dead-lettered tasks back to pending",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withOperations(cmd, func(ctx context.Context, ops Operations) error {
				requeued := make([]string, 0, len(args))
				for _, id := range args {
					if err := ops.RequeueTask(ctx, strings.TrimSpace(id)); err != nil {
						return WrapExitError(ExitFailure, fmt.Sprintf("failed to requeue %s", id), err)
					}
					requeued = append(requeued, id)
				}

				return rootOpts.formatter(cmd).Result(map[string]any{"requeued": requeued}, func(w io.Writer) error {
					for _, id := range requeued {
						fmt.Fprintf(w, "requeued %s\n", id)
					}
					return nil
				})
			})
		},
	}
}

func newTaskRunOnceCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run-once",
		Short: "Claim and execute one batch of due tasks, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withOperations(cmd, func(ctx context.Context, ops Operations) error {
				executed, err := ops.RunTasksOnce(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "task batch failed", err)
				}

				return rootOpts.formatter(cmd).Result(map[string]int{"executed": executed}, func(w io.Writer) error {
					fmt.Fprintf(w, "executed %d task(s)\n", executed)
					return nil
				})
			})
		},
	}
}

func toTaskRow(t domain.AutomationTask) taskRow {
	row := taskRow{
		ID:          t.ID,
		Type:        t.Type.String(),
		Priority:    t.Priority.String(),
		Status:      t.Status.String(),
		ScheduledAt: t.ScheduledAt,
		RetryCount:  t.RetryCount,
		MaxRetries:  t.MaxRetries,
	}
	if n := len(t.ErrorLog); n > 0 {
		row.LastError = t.ErrorLog[n-1]
	}
	return row
}
