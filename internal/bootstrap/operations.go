package bootstrap

import (
	"context"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/service"
)

// Operations exposes the operator actions of a Runtime to the command line.
type Operations struct {
	rt *Runtime
}

func NewOperations(rt *Runtime) *Operations {
	return &Operations{rt: rt}
}

func (o *Operations) Migrate(context.Context) error {
	return o.rt.Migrate()
}

func (o *Operations) TaskStats(ctx context.Context) (map[domain.TaskStatus]int64, error) {
	return o.rt.Tasks.Stats(ctx)
}

func (o *Operations) ListTasks(ctx context.Context, status domain.TaskStatus, limit int) ([]domain.AutomationTask, error) {
	return o.rt.Tasks.List(ctx, status, limit)
}

func (o *Operations) RequeueTask(ctx context.Context, id string) error {
	return o.rt.Tasks.Requeue(ctx, id)
}

func (o *Operations) RunTasksOnce(ctx context.Context) (int, error) {
	return o.rt.Scheduler.RunOnce(ctx)
}

func (o *Operations) ImportIdentities(ctx context.Context, identities []domain.SendingIdentity) (int, error) {
	return o.rt.Operator.ImportIdentities(ctx, identities)
}

func (o *Operations) IdentityUsage(ctx context.Context) ([]service.IdentityUsage, error) {
	return o.rt.Operator.IdentityUsage(ctx)
}

func (o *Operations) GlobalUsage(ctx context.Context) (*service.GlobalUsage, error) {
	return o.rt.Operator.GlobalUsage(ctx)
}

func (o *Operations) VerifyIdentity(ctx context.Context, id string) error {
	return o.rt.Operator.VerifyIdentity(ctx, id)
}

func (o *Operations) DeactivateIdentity(ctx context.Context, id string) error {
	return o.rt.Operator.DeactivateIdentity(ctx, id)
}

func (o *Operations) Suppress(ctx context.Context, address string, reason domain.SuppressionReason, source string) (bool, error) {
	return o.rt.Operator.Suppress(ctx, address, reason, source)
}

func (o *Operations) ListSuppressions(ctx context.Context, limit int) ([]domain.SuppressionEntry, error) {
	return o.rt.Operator.ListSuppressions(ctx, limit)
}

func (o *Operations) ResetCounters(ctx context.Context) (int64, error) {
	return o.rt.CounterReset.ResetNow(ctx)
}

func (o *Operations) Close() error {
	return o.rt.Close()
}
