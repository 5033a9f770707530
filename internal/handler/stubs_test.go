package handler

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/ratelimit"
	"github.com/kursadbilgin/outreach-engine/internal/service"
)

type stubSender struct {
	sendFn func(ctx context.Context, req service.SendRequest) (*service.SendResult, error)
}

func (s *stubSender) Send(ctx context.Context, req service.SendRequest) (*service.SendResult, error) {
	if s.sendFn != nil {
		return s.sendFn(ctx, req)
	}
	return &service.SendResult{TrackingToken: "tok", Recipient: req.To}, nil
}

type stubScheduleService struct {
	scheduleFn func(ctx context.Context, req service.ScheduleRequest) (*domain.ScheduledEmail, error)
	getFn      func(ctx context.Context, id string) (*domain.ScheduledEmail, error)
	listFn     func(ctx context.Context, status domain.ScheduledEmailStatus, limit int) ([]domain.ScheduledEmail, error)
	cancelFn   func(ctx context.Context, id string) error
	retryFn    func(ctx context.Context, id string) (*domain.ScheduledEmail, error)
}

func (s *stubScheduleService) Schedule(ctx context.Context, req service.ScheduleRequest) (*domain.ScheduledEmail, error) {
	if s.scheduleFn != nil {
		return s.scheduleFn(ctx, req)
	}
	return &domain.ScheduledEmail{ID: "email-1", Recipient: req.To, Status: domain.ScheduledEmailPending}, nil
}

func (s *stubScheduleService) Get(ctx context.Context, id string) (*domain.ScheduledEmail, error) {
	if s.getFn != nil {
		return s.getFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (s *stubScheduleService) List(ctx context.Context, status domain.ScheduledEmailStatus, limit int) ([]domain.ScheduledEmail, error) {
	if s.listFn != nil {
		return s.listFn(ctx, status, limit)
	}
	return nil, nil
}

func (s *stubScheduleService) Cancel(ctx context.Context, id string) error {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, id)
	}
	return nil
}

func (s *stubScheduleService) Retry(ctx context.Context, id string) (*domain.ScheduledEmail, error) {
	if s.retryFn != nil {
		return s.retryFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

type stubTrackingService struct {
	recordOpenFn    func(ctx context.Context, token string) (bool, error)
	recordClickFn   func(ctx context.Context, token string) (bool, error)
	unsubscribeFn   func(ctx context.Context, token string) (string, error)
	markRespondedFn func(ctx context.Context, token string) error
}

func (s *stubTrackingService) RecordOpen(ctx context.Context, token string) (bool, error) {
	if s.recordOpenFn != nil {
		return s.recordOpenFn(ctx, token)
	}
	return true, nil
}

func (s *stubTrackingService) RecordClick(ctx context.Context, token string) (bool, error) {
	if s.recordClickFn != nil {
		return s.recordClickFn(ctx, token)
	}
	return true, nil
}

func (s *stubTrackingService) Unsubscribe(ctx context.Context, token string) (string, error) {
	if s.unsubscribeFn != nil {
		return s.unsubscribeFn(ctx, token)
	}
	return "someone@example.com", nil
}

func (s *stubTrackingService) MarkResponded(ctx context.Context, token string) error {
	if s.markRespondedFn != nil {
		return s.markRespondedFn(ctx, token)
	}
	return nil
}

type stubCampaignService struct {
	createFn    func(ctx context.Context, name string, status domain.CampaignStatus) (*domain.Campaign, error)
	setStatusFn func(ctx context.Context, id string, status domain.CampaignStatus) (*domain.Campaign, error)
	sendBulkFn  func(ctx context.Context, id string, req service.BulkSendRequest) (*service.BulkSendResult, error)
}

func (s *stubCampaignService) Create(ctx context.Context, name string, status domain.CampaignStatus) (*domain.Campaign, error) {
	if s.createFn != nil {
		return s.createFn(ctx, name, status)
	}
	return &domain.Campaign{ID: "camp-1", Name: name, Status: domain.CampaignDraft}, nil
}

func (s *stubCampaignService) SetStatus(ctx context.Context, id string, status domain.CampaignStatus) (*domain.Campaign, error) {
	if s.setStatusFn != nil {
		return s.setStatusFn(ctx, id, status)
	}
	return &domain.Campaign{ID: id, Status: status}, nil
}

func (s *stubCampaignService) SendBulk(ctx context.Context, id string, req service.BulkSendRequest) (*service.BulkSendResult, error) {
	if s.sendBulkFn != nil {
		return s.sendBulkFn(ctx, id, req)
	}
	return &service.BulkSendResult{}, nil
}

type stubAccountService struct {
	createFn       func(ctx context.Context, account *domain.Account) error
	getFn          func(ctx context.Context, id string) (*domain.Account, error)
	requestAuditFn func(ctx context.Context, id string) (*domain.AutomationTask, error)
}

func (s *stubAccountService) Create(ctx context.Context, account *domain.Account) error {
	if s.createFn != nil {
		return s.createFn(ctx, account)
	}
	account.ID = "acc-1"
	return nil
}

func (s *stubAccountService) Get(ctx context.Context, id string) (*domain.Account, error) {
	if s.getFn != nil {
		return s.getFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (s *stubAccountService) RequestAudit(ctx context.Context, id string) (*domain.AutomationTask, error) {
	if s.requestAuditFn != nil {
		return s.requestAuditFn(ctx, id)
	}
	return &domain.AutomationTask{ID: "task-1", Type: domain.TaskTypeRefreshAudit, Status: domain.TaskStatusPending}, nil
}

type stubTaskOperations struct {
	statsFn   func(ctx context.Context) (map[domain.TaskStatus]int64, error)
	listFn    func(ctx context.Context, status domain.TaskStatus, limit int) ([]domain.AutomationTask, error)
	requeueFn func(ctx context.Context, id string) error
}

func (s *stubTaskOperations) Stats(ctx context.Context) (map[domain.TaskStatus]int64, error) {
	if s.statsFn != nil {
		return s.statsFn(ctx)
	}
	return map[domain.TaskStatus]int64{}, nil
}

func (s *stubTaskOperations) List(ctx context.Context, status domain.TaskStatus, limit int) ([]domain.AutomationTask, error) {
	if s.listFn != nil {
		return s.listFn(ctx, status, limit)
	}
	return nil, nil
}

func (s *stubTaskOperations) Requeue(ctx context.Context, id string) error {
	if s.requeueFn != nil {
		return s.requeueFn(ctx, id)
	}
	return nil
}

type stubIdentityOperations struct {
	identityUsageFn  func(ctx context.Context) ([]service.IdentityUsage, error)
	globalUsageFn    func(ctx context.Context) (*service.GlobalUsage, error)
	verifyIdentityFn func(ctx context.Context, id string) error
	suppressFn       func(ctx context.Context, address string, reason domain.SuppressionReason, source string) (bool, error)
}

func (s *stubIdentityOperations) IdentityUsage(ctx context.Context) ([]service.IdentityUsage, error) {
	if s.identityUsageFn != nil {
		return s.identityUsageFn(ctx)
	}
	return nil, nil
}

func (s *stubIdentityOperations) GlobalUsage(ctx context.Context) (*service.GlobalUsage, error) {
	if s.globalUsageFn != nil {
		return s.globalUsageFn(ctx)
	}
	return &service.GlobalUsage{}, nil
}

func (s *stubIdentityOperations) VerifyIdentity(ctx context.Context, id string) error {
	if s.verifyIdentityFn != nil {
		return s.verifyIdentityFn(ctx, id)
	}
	return nil
}

func (s *stubIdentityOperations) Suppress(ctx context.Context, address string, reason domain.SuppressionReason, source string) (bool, error) {
	if s.suppressFn != nil {
		return s.suppressFn(ctx, address, reason, source)
	}
	return true, nil
}

type stubLimiter struct {
	allowFn func(ctx context.Context, key string) (bool, error)
}

func (s *stubLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if s.allowFn != nil {
		return s.allowFn(ctx, key)
	}
	return true, nil
}

var _ ratelimit.RateLimiter = (*stubLimiter)(nil)

func stubServices() Services {
	return Services{
		Sender:    &stubSender{},
		Schedules: &stubScheduleService{},
		Tracking:  &stubTrackingService{},
		Campaigns: &stubCampaignService{},
		Accounts:  &stubAccountService{},
		Tasks:     &stubTaskOperations{},
		Operator:  &stubIdentityOperations{},
	}
}

func newTestApp(t *testing.T, services Services, opts AppOptions) *fiber.App {
	t.Helper()

	app, err := NewApp(services, opts)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	return app
}

func performRequest(t *testing.T, app *fiber.App, method string, path string, body string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}
