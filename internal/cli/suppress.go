package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/spf13/cobra"
)

type suppressionRow struct {
	Address   string    `json:"address"`
	Reason    string    `json:"reason"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewSuppressCommand(rootOpts *RootOptions) *cobra.Command {
	var reason string
	var source string

	cmd := &cobra.Command{
		Use:   "suppress <address>...",
		Short: "Add addresses to the suppression list",
		Long: `Add addresses to the suppression list. Suppressed addresses are never sent to again.

Examples:
  outreachctl suppress lead@example.com
  outreachctl suppress --reason complaint --source ticket-812 lead@example.com
  outreachctl suppress list --limit 20`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := domain.ParseSuppressionReason(reason)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --reason", err)
			}

			return rootOpts.withOperations(cmd, func(ctx context.Context, ops Operations) error {
				results := make(map[string]bool, len(args))
				for _, address := range args {
					added, err := ops.Suppress(ctx, address, parsed, source)
					if err != nil {
						return WrapExitError(ExitFailure, fmt.Sprintf("failed to suppress %s", address), err)
					}
					results[address] = added
				}

				return rootOpts.formatter(cmd).Result(results, func(w io.Writer) error {
					for _, address := range args {
						state := "already suppressed"
						if results[address] {
							state = "suppressed"
						}
						fmt.Fprintf(w, "%s\t%s\n", address, state)
					}
					return nil
				})
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", string(domain.SuppressionManual), "suppression reason (unsubscribe|hard_bounce|complaint|manual)")
	cmd.Flags().StringVar(&source, "source", "outreachctl", "free-form note on where the request came from")

	cmd.AddCommand(newSuppressionListCommand(rootOpts))

	return cmd
}

func newSuppressionListCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the most recent suppression entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return NewExitError(ExitCommandError, "--limit must be positive")
			}

			return rootOpts.withOperations(cmd, func(ctx context.Context, ops Operations) error {
				entries, err := ops.ListSuppressions(ctx, limit)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list suppressions", err)
				}

				rows := make([]suppressionRow, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, suppressionRow{
						Address:   e.Address,
						Reason:    string(e.Reason),
						Source:    e.Source,
						CreatedAt: e.CreatedAt,
					})
				}

				return rootOpts.formatter(cmd).Result(rows, func(w io.Writer) error {
					fmt.Fprintln(w, "ADDRESS\tREASON\tSOURCE\tCREATED")
					for _, r := range rows {
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Address, r.Reason, r.Source, r.CreatedAt.Format(time.RFC3339))
					}
					return nil
				})
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of entries")

	return cmd
}
