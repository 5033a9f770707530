package service

import (
	"context"
	"sync"
	"time"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/events"
	"github.com/kursadbilgin/outreach-engine/internal/provider"
	"github.com/kursadbilgin/outreach-engine/internal/repository"
)

type fakeTaskRepo struct {
	createFn              func(ctx context.Context, t *domain.AutomationTask) error
	getByIDFn             func(ctx context.Context, id string) (*domain.AutomationTask, error)
	claimDueFn            func(ctx context.Context, now time.Time, limit int) ([]domain.AutomationTask, error)
	updateClaimedFn       func(ctx context.Context, t *domain.AutomationTask) error
	listStaleProcessingFn func(ctx context.Context, startedBefore time.Time, limit int) ([]domain.AutomationTask, error)
	countByStatusFn       func(ctx context.Context) ([]repository.StatusCount, error)
	listByStatusFn        func(ctx context.Context, status domain.TaskStatus, limit int) ([]domain.AutomationTask, error)
	requeueFn             func(ctx context.Context, id string, at time.Time) error
}

func (f *fakeTaskRepo) Create(ctx context.Context, t *domain.AutomationTask) error {
	if f.createFn != nil {
		return f.createFn(ctx, t)
	}
	if t.ID == "" {
		t.ID = "task-1"
	}
	return nil
}

func (f *fakeTaskRepo) GetByID(ctx context.Context, id string) (*domain.AutomationTask, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeTaskRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.AutomationTask, error) {
	if f.claimDueFn != nil {
		return f.claimDueFn(ctx, now, limit)
	}
	return nil, nil
}

func (f *fakeTaskRepo) UpdateClaimed(ctx context.Context, t *domain.AutomationTask) error {
	if f.updateClaimedFn != nil {
		return f.updateClaimedFn(ctx, t)
	}
	return nil
}

func (f *fakeTaskRepo) ListStaleProcessing(ctx context.Context, startedBefore time.Time, limit int) ([]domain.AutomationTask, error) {
	if f.listStaleProcessingFn != nil {
		return f.listStaleProcessingFn(ctx, startedBefore, limit)
	}
	return nil, nil
}

func (f *fakeTaskRepo) CountByStatus(ctx context.Context) ([]repository.StatusCount, error) {
	if f.countByStatusFn != nil {
		return f.countByStatusFn(ctx)
	}
	return nil, nil
}

func (f *fakeTaskRepo) ListByStatus(ctx context.Context, status domain.TaskStatus, limit int) ([]domain.AutomationTask, error) {
	if f.listByStatusFn != nil {
		return f.listByStatusFn(ctx, status, limit)
	}
	return nil, nil
}

func (f *fakeTaskRepo) Requeue(ctx context.Context, id string, at time.Time) error {
	if f.requeueFn != nil {
		return f.requeueFn(ctx, id, at)
	}
	return nil
}

var _ repository.TaskRepository = (*fakeTaskRepo)(nil)

type fakeScheduledEmailRepo struct {
	createFn             func(ctx context.Context, e *domain.ScheduledEmail) error
	getByIDFn            func(ctx context.Context, id string) (*domain.ScheduledEmail, error)
	listByStatusFn       func(ctx context.Context, status domain.ScheduledEmailStatus, limit int) ([]domain.ScheduledEmail, error)
	setTaskIDFn          func(ctx context.Context, id string, taskID string) error
	markSentFn           func(ctx context.Context, id string, identityID *string, sentAt time.Time) error
	markFailedFn         func(ctx context.Context, id string, errText string) error
	recordAttemptErrorFn func(ctx context.Context, id string, errText string) error
	cancelFn             func(ctx context.Context, id string) error
	retryFn              func(ctx context.Context, id string, scheduledAt time.Time) error
}

func (f *fakeScheduledEmailRepo) Create(ctx context.Context, e *domain.ScheduledEmail) error {
	if f.createFn != nil {
		return f.createFn(ctx, e)
	}
	if e.ID == "" {
		e.ID = "email-1"
	}
	return nil
}

func (f *fakeScheduledEmailRepo) GetByID(ctx context.Context, id string) (*domain.ScheduledEmail, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeScheduledEmailRepo) ListByStatus(ctx context.Context, status domain.ScheduledEmailStatus, limit int) ([]domain.ScheduledEmail, error) {
	if f.listByStatusFn != nil {
		return f.listByStatusFn(ctx, status, limit)
	}
	return nil, nil
}

func (f *fakeScheduledEmailRepo) SetTaskID(ctx context.Context, id string, taskID string) error {
	if f.setTaskIDFn != nil {
		return f.setTaskIDFn(ctx, id, taskID)
	}
	return nil
}

func (f *fakeScheduledEmailRepo) MarkSent(ctx context.Context, id string, identityID *string, sentAt time.Time) error {
	if f.markSentFn != nil {
		return f.markSentFn(ctx, id, identityID, sentAt)
	}
	return nil
}

func (f *fakeScheduledEmailRepo) MarkFailed(ctx context.Context, id string, errText string) error {
	if f.markFailedFn != nil {
		return f.markFailedFn(ctx, id, errText)
	}
	return nil
}

func (f *fakeScheduledEmailRepo) RecordAttemptError(ctx context.Context, id string, errText string) error {
	if f.recordAttemptErrorFn != nil {
		return f.recordAttemptErrorFn(ctx, id, errText)
	}
	return nil
}

func (f *fakeScheduledEmailRepo) Cancel(ctx context.Context, id string) error {
	if f.cancelFn != nil {
		return f.cancelFn(ctx, id)
	}
	return nil
}

func (f *fakeScheduledEmailRepo) Retry(ctx context.Context, id string, scheduledAt time.Time) error {
	if f.retryFn != nil {
		return f.retryFn(ctx, id, scheduledAt)
	}
	return nil
}

var _ repository.ScheduledEmailRepository = (*fakeScheduledEmailRepo)(nil)

type fakeIdentityRepo struct {
	upsertFn           func(ctx context.Context, i *domain.SendingIdentity) error
	getByIDFn          func(ctx context.Context, id string) (*domain.SendingIdentity, error)
	listFn             func(ctx context.Context) ([]domain.SendingIdentity, error)
	listActiveFn       func(ctx context.Context) ([]domain.SendingIdentity, error)
	countFn            func(ctx context.Context) (int64, error)
	recordSendFn       func(ctx context.Context, id string, day string, at time.Time) error
	deactivateFn       func(ctx context.Context, id string) error
	resetDailyCountsFn func(ctx context.Context, day string) (int64, error)
}

func (f *fakeIdentityRepo) Upsert(ctx context.Context, i *domain.SendingIdentity) error {
	if f.upsertFn != nil {
		return f.upsertFn(ctx, i)
	}
	return nil
}

func (f *fakeIdentityRepo) GetByID(ctx context.Context, id string) (*domain.SendingIdentity, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeIdentityRepo) List(ctx context.Context) ([]domain.SendingIdentity, error) {
	if f.listFn != nil {
		return f.listFn(ctx)
	}
	return nil, nil
}

func (f *fakeIdentityRepo) ListActive(ctx context.Context) ([]domain.SendingIdentity, error) {
	if f.listActiveFn != nil {
		return f.listActiveFn(ctx)
	}
	return nil, nil
}

func (f *fakeIdentityRepo) Count(ctx context.Context) (int64, error) {
	if f.countFn != nil {
		return f.countFn(ctx)
	}
	return 0, nil
}

func (f *fakeIdentityRepo) RecordSend(ctx context.Context, id string, day string, at time.Time) error {
	if f.recordSendFn != nil {
		return f.recordSendFn(ctx, id, day, at)
	}
	return nil
}

func (f *fakeIdentityRepo) Deactivate(ctx context.Context, id string) error {
	if f.deactivateFn != nil {
		return f.deactivateFn(ctx, id)
	}
	return nil
}

func (f *fakeIdentityRepo) ResetDailyCounts(ctx context.Context, day string) (int64, error) {
	if f.resetDailyCountsFn != nil {
		return f.resetDailyCountsFn(ctx, day)
	}
	return 0, nil
}

var _ repository.IdentityRepository = (*fakeIdentityRepo)(nil)

type fakeSendLogRepo struct {
	countOnFn   func(ctx context.Context, day string) (int, error)
	incrementFn func(ctx context.Context, day string, at time.Time) error
}

func (f *fakeSendLogRepo) CountOn(ctx context.Context, day string) (int, error) {
	if f.countOnFn != nil {
		return f.countOnFn(ctx, day)
	}
	return 0, nil
}

func (f *fakeSendLogRepo) Increment(ctx context.Context, day string, at time.Time) error {
	if f.incrementFn != nil {
		return f.incrementFn(ctx, day, at)
	}
	return nil
}

var _ repository.SendLogRepository = (*fakeSendLogRepo)(nil)

type fakeSuppressionRepo struct {
	isSuppressedFn func(ctx context.Context, address string) (bool, error)
	addFn          func(ctx context.Context, s *domain.SuppressionEntry) (bool, error)
	listFn         func(ctx context.Context, limit int) ([]domain.SuppressionEntry, error)
}

func (f *fakeSuppressionRepo) IsSuppressed(ctx context.Context, address string) (bool, error) {
	if f.isSuppressedFn != nil {
		return f.isSuppressedFn(ctx, address)
	}
	return false, nil
}

func (f *fakeSuppressionRepo) Add(ctx context.Context, s *domain.SuppressionEntry) (bool, error) {
	if f.addFn != nil {
		return f.addFn(ctx, s)
	}
	return true, nil
}

func (f *fakeSuppressionRepo) List(ctx context.Context, limit int) ([]domain.SuppressionEntry, error) {
	if f.listFn != nil {
		return f.listFn(ctx, limit)
	}
	return nil, nil
}

var _ repository.SuppressionRepository = (*fakeSuppressionRepo)(nil)

type fakeDeliveryRepo struct {
	createFn          func(ctx context.Context, d *domain.DeliveryRecord) error
	getByTokenFn      func(ctx context.Context, token string) (*domain.DeliveryRecord, error)
	upsertFn          func(ctx context.Context, d *domain.DeliveryRecord) error
	markOpenedFn      func(ctx context.Context, token string, at time.Time) (bool, error)
	markClickedFn     func(ctx context.Context, token string, at time.Time) (bool, error)
	markRespondedFn   func(ctx context.Context, token string, at time.Time) error
	findOutstandingFn func(ctx context.Context, recipients []string, excludeCampaignID string) ([]domain.DeliveryRecord, error)
}

func (f *fakeDeliveryRepo) Create(ctx context.Context, d *domain.DeliveryRecord) error {
	if f.createFn != nil {
		return f.createFn(ctx, d)
	}
	return nil
}

func (f *fakeDeliveryRepo) GetByToken(ctx context.Context, token string) (*domain.DeliveryRecord, error) {
	if f.getByTokenFn != nil {
		return f.getByTokenFn(ctx, token)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeDeliveryRepo) Upsert(ctx context.Context, d *domain.DeliveryRecord) error {
	if f.upsertFn != nil {
		return f.upsertFn(ctx, d)
	}
	return nil
}

func (f *fakeDeliveryRepo) MarkOpened(ctx context.Context, token string, at time.Time) (bool, error) {
	if f.markOpenedFn != nil {
		return f.markOpenedFn(ctx, token, at)
	}
	return false, nil
}

func (f *fakeDeliveryRepo) MarkClicked(ctx context.Context, token string, at time.Time) (bool, error) {
	if f.markClickedFn != nil {
		return f.markClickedFn(ctx, token, at)
	}
	return false, nil
}

func (f *fakeDeliveryRepo) MarkResponded(ctx context.Context, token string, at time.Time) error {
	if f.markRespondedFn != nil {
		return f.markRespondedFn(ctx, token, at)
	}
	return nil
}

func (f *fakeDeliveryRepo) FindOutstanding(ctx context.Context, recipients []string, excludeCampaignID string) ([]domain.DeliveryRecord, error) {
	if f.findOutstandingFn != nil {
		return f.findOutstandingFn(ctx, recipients, excludeCampaignID)
	}
	return nil, nil
}

var _ repository.DeliveryRepository = (*fakeDeliveryRepo)(nil)

type fakeCampaignRepo struct {
	createFn       func(ctx context.Context, c *domain.Campaign) error
	getByIDFn      func(ctx context.Context, id string) (*domain.Campaign, error)
	updateStatusFn func(ctx context.Context, id string, status domain.CampaignStatus) error
}

func (f *fakeCampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	if f.createFn != nil {
		return f.createFn(ctx, c)
	}
	return nil
}

func (f *fakeCampaignRepo) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeCampaignRepo) UpdateStatus(ctx context.Context, id string, status domain.CampaignStatus) error {
	if f.updateStatusFn != nil {
		return f.updateStatusFn(ctx, id, status)
	}
	return nil
}

var _ repository.CampaignRepository = (*fakeCampaignRepo)(nil)

type fakeAccountRepo struct {
	createFn      func(ctx context.Context, a *domain.Account) error
	getByIDFn     func(ctx context.Context, id string) (*domain.Account, error)
	updateAuditFn func(ctx context.Context, id string, score int, summary string, at time.Time) error
}

func (f *fakeAccountRepo) Create(ctx context.Context, a *domain.Account) error {
	if f.createFn != nil {
		return f.createFn(ctx, a)
	}
	return nil
}

func (f *fakeAccountRepo) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeAccountRepo) UpdateAudit(ctx context.Context, id string, score int, summary string, at time.Time) error {
	if f.updateAuditFn != nil {
		return f.updateAuditFn(ctx, id, score, summary, at)
	}
	return nil
}

var _ repository.AccountRepository = (*fakeAccountRepo)(nil)

type fakeTransport struct {
	sendFn   func(ctx context.Context, identity domain.SendingIdentity, msg provider.Message) error
	verifyFn func(ctx context.Context, identity domain.SendingIdentity) error
}

func (f *fakeTransport) Send(ctx context.Context, identity domain.SendingIdentity, msg provider.Message) error {
	if f.sendFn != nil {
		return f.sendFn(ctx, identity, msg)
	}
	return nil
}

func (f *fakeTransport) Verify(ctx context.Context, identity domain.SendingIdentity) error {
	if f.verifyFn != nil {
		return f.verifyFn(ctx, identity)
	}
	return nil
}

var _ provider.Transport = (*fakeTransport)(nil)

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu        sync.Mutex
	events    []events.Event
	err       error
	publishFn func(ctx context.Context, event events.Event) error
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	publishFn, err := p.publishFn, p.err
	p.mu.Unlock()

	if publishFn != nil {
		return publishFn(ctx, event)
	}
	return err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeSender struct {
	sendFn func(ctx context.Context, req SendRequest) (*SendResult, error)
}

func (f *fakeSender) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if f.sendFn != nil {
		return f.sendFn(ctx, req)
	}
	return &SendResult{TrackingToken: req.TrackingToken, Recipient: req.To}, nil
}

type fakeEnqueuer struct {
	enqueueFn func(ctx context.Context, payload domain.TaskPayload, opts EnqueueOptions) (*domain.AutomationTask, error)
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, payload domain.TaskPayload, opts EnqueueOptions) (*domain.AutomationTask, error) {
	if f.enqueueFn != nil {
		return f.enqueueFn(ctx, payload, opts)
	}
	return &domain.AutomationTask{ID: "task-1", Type: payload.TaskType()}, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func strPtr(s string) *string {
	return &s
}

func intPtr(v int) *int {
	return &v
}
