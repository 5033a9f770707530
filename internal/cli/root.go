package cli

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/service"
	"github.com/spf13/cobra"
)

// Operations is everything the operator commands can do against a deployment.
type Operations interface {
	Migrate(ctx context.Context) error

	TaskStats(ctx context.Context) (map[domain.TaskStatus]int64, error)
	ListTasks(ctx context.Context, status domain.TaskStatus, limit int) ([]domain.AutomationTask, error)
	RequeueTask(ctx context.Context, id string) error
	RunTasksOnce(ctx context.Context) (int, error)

	ImportIdentities(ctx context.Context, identities []domain.SendingIdentity) (int, error)
	IdentityUsage(ctx context.Context) ([]service.IdentityUsage, error)
	GlobalUsage(ctx context.Context) (*service.GlobalUsage, error)
	VerifyIdentity(ctx context.Context, id string) error
	DeactivateIdentity(ctx context.Context, id string) error

	Suppress(ctx context.Context, address string, reason domain.SuppressionReason, source string) (bool, error)
	ListSuppressions(ctx context.Context, limit int) ([]domain.SuppressionEntry, error)
	ResetCounters(ctx context.Context) (int64, error)

	Close() error
}

// Connector opens the backends lazily so that --help never needs a database.
type Connector func(ctx context.Context) (Operations, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string

	connect Connector
}

var validFormats = []string{"text", "json"}

func NewRootCommand(connect Connector) *cobra.Command {
	opts := &RootOptions{connect: connect}

	cmd := &cobra.Command{
		Use:   "outreachctl",
		Short: "Operate the outreach engine",
		Long:  "Inspect and repair the task queue, sending identities and suppression list of an outreach-engine deployment.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, validFormats))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewTasksCommand(opts))
	cmd.AddCommand(NewIdentitiesCommand(opts))
	cmd.AddCommand(NewSuppressCommand(opts))
	cmd.AddCommand(NewCountersCommand(opts))

	return cmd
}

// withOperations connects, runs fn and always closes the connection.
func (o *RootOptions) withOperations(cmd *cobra.Command, fn func(ctx context.Context, ops Operations) error) error {
	if o.connect == nil {
		return NewExitError(ExitCommandError, "no backend configured")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	ops, err := o.connect(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to connect", err)
	}
	defer ops.Close() //nolint:errcheck

	return fn(ctx, ops)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

func isValidFormat(format string) bool {
	for _, f := range validFormats {
		if f == format {
			return true
		}
	}
	return false
}
