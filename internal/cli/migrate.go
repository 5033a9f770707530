package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withOperations(cmd, func(ctx context.Context, ops Operations) error {
				if err := ops.Migrate(ctx); err != nil {
					return WrapExitError(ExitFailure, "migration failed", err)
				}
				return rootOpts.formatter(cmd).Result(map[string]bool{"migrated": true}, func(w io.Writer) error {
					fmt.Fprintln(w, "schema is up to date")
					return nil
				})
			})
		},
	}
}

// NewCountersCommand zeroes stale identity send counters outside the nightly job.
func NewCountersCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "counters",
		Short: "Maintain daily send counters",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Zero every identity counter that belongs to an earlier day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withOperations(cmd, func(ctx context.Context, ops Operations) error {
				reset, err := ops.ResetCounters(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "counter reset failed", err)
				}
				return rootOpts.formatter(cmd).Result(map[string]int64{"reset": reset}, func(w io.Writer) error {
					fmt.Fprintf(w, "reset %d identity counter(s)\n", reset)
					return nil
				})
			})
		},
	})

	return cmd
}
