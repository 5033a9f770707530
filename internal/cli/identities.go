package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kursadbilgin/outreach-engine/internal/config"
	"github.com/kursadbilgin/outreach-engine/internal/service"
	"github.com/kursadbilgin/outreach-engine/internal/warmup"
	"github.com/spf13/cobra"
)

type identityRow struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	Address       string `json:"address"`
	Provider      string `json:"provider"`
	Active        bool   `json:"active"`
	WarmupEnabled bool   `json:"warmupEnabled"`
	SentToday     int    `json:"sentToday"`
	Cap           *int   `json:"cap"`
	Remaining     *int   `json:"remaining"`
}

type usageReport struct {
	Day        string        `json:"day"`
	Sent       int           `json:"sent"`
	Cap        *int          `json:"cap"`
	Remaining  *int          `json:"remaining"`
	Identities []identityRow `json:"identities"`
}

func NewIdentitiesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "identities",
		Aliases: []string{"identity"},
		Short:   "Manage sending identities",
	}

	cmd.AddCommand(newIdentityUsageCommand(rootOpts))
	cmd.AddCommand(newIdentityImportCommand(rootOpts))
	cmd.AddCommand(newIdentityVerifyCommand(rootOpts))
	cmd.AddCommand(newIdentityDeactivateCommand(rootOpts))

	return cmd
}

func newIdentityUsageCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "usage",
		Aliases: []string{"list"},
		Short:   "Show today's sends against each identity's cap",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withOperations(cmd, func(ctx context.Context, ops Operations) error {
				usage, err := ops.IdentityUsage(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to read identity usage", err)
				}
				global, err := ops.GlobalUsage(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to read global usage", err)
				}

				report := buildUsageReport(usage, global)
				return rootOpts.formatter(cmd).Result(report, func(w io.Writer) error {
					fmt.Fprintf(w, "Day %s: %d sent, cap %s, remaining %s\n\n",
						report.Day, report.Sent, formatLimit(report.Cap), formatLimit(report.Remaining))
					fmt.Fprintln(w, "ID\tADDRESS\tPROVIDER\tACTIVE\tWARMUP\tSENT\tCAP\tREMAINING")
					for _, r := range report.Identities {
						fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%t\t%d\t%s\t%s\n",
							r.ID, r.Address, r.Provider, r.Active, r.WarmupEnabled, r.SentToday,
							formatLimit(r.Cap), formatLimit(r.Remaining))
					}
					return nil
				})
			})
		},
	}
}

func newIdentityImportCommand(rootOpts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Create or update identities from a YAML file",
		Long: `Create or update identities from a YAML file.

Secrets are read from the environment variable each entry names in secretEnv.

Examples:
  outreachctl identities import --file identities.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			identities, err := config.LoadIdentities(file)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load identities", err)
			}

			return rootOpts.withOperations(cmd, func(ctx context.Context, ops Operations) error {
				imported, err := ops.ImportIdentities(ctx, identities)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to import identities", err)
				}

				return rootOpts.formatter(cmd).Result(map[string]int{"imported": imported}, func(w io.Writer) error {
					fmt.Fprintf(w, "imported %d identit%s\n", imported, plural(imported, "y", "ies"))
					return nil
				})
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the identities YAML file (required)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func newIdentityVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <identity-id>",
		Short: "Dial and authenticate against the identity's SMTP server without sending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return rootOpts.withOperations(cmd, func(ctx context.Context, ops Operations) error {
				if err := ops.VerifyIdentity(ctx, id); err != nil {
					return WrapExitError(ExitFailure, fmt.Sprintf("identity %s failed verification", id), err)
				}

				return rootOpts.formatter(cmd).Result(map[string]any{"identityId": id, "verified": true}, func(w io.Writer) error {
					fmt.Fprintf(w, "identity %s verified\n", id)
					return nil
				})
			})
		},
	}
}

func newIdentityDeactivateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <identity-id>",
		Short: "Take an identity out of rotation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return rootOpts.withOperations(cmd, func(ctx context.Context, ops Operations) error {
				if err := ops.DeactivateIdentity(ctx, id); err != nil {
					return WrapExitError(ExitFailure, fmt.Sprintf("failed to deactivate %s", id), err)
				}

				return rootOpts.formatter(cmd).Result(map[string]any{"identityId": id, "active": false}, func(w io.Writer) error {
					fmt.Fprintf(w, "identity %s deactivated\n", id)
					return nil
				})
			})
		},
	}
}

func buildUsageReport(usage []service.IdentityUsage, global *service.GlobalUsage) usageReport {
	report := usageReport{Identities: make([]identityRow, 0, len(usage))}
	if global != nil {
		report.Day = global.Day
		report.Sent = global.Sent
		report.Cap = finiteOrNil(global.Cap)
		report.Remaining = finiteOrNil(global.Remaining)
	}

	for _, u := range usage {
		report.Identities = append(report.Identities, identityRow{
			ID:            u.Identity.ID,
			Name:          u.Identity.Name,
			Address:       u.Identity.Address,
			Provider:      string(u.Identity.Provider),
			Active:        u.Identity.Active,
			WarmupEnabled: u.Identity.WarmupEnabled,
			SentToday:     u.SentToday,
			Cap:           finiteOrNil(u.Cap),
			Remaining:     finiteOrNil(u.Remaining),
		})
	}
	return report
}

func finiteOrNil(v int) *int {
	if v == warmup.Unlimited {
		return nil
	}
	return &v
}

func formatLimit(v *int) string {
	if v == nil {
		return "unlimited"
	}
	return strconv.Itoa(*v)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
