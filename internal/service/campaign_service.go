package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/outreach-engine/internal/compliance"
	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/repository"
	"go.uber.org/zap"
)

// BulkSendRequest sends variants of one message to many recipients.
type BulkSendRequest struct {
	Recipients  []string
	Variants    []domain.Variant
	ScheduledAt time.Time
	IdentityID  *string
	// Confirm sends even when recipients are outstanding in another campaign.
	Confirm bool
}

// Assignment pairs a recipient with the variant it receives.
type Assignment struct {
	Recipient string
	Variant   domain.Variant
}

type BulkSendItem struct {
	Recipient        string `json:"recipient"`
	Variant          string `json:"variant"`
	ScheduledEmailID string `json:"scheduledEmailId"`
	TrackingToken    string `json:"trackingToken"`
}

type Overlap struct {
	Recipient  string `json:"recipient"`
	CampaignID string `json:"campaignId"`
	Status     string `json:"status"`
}

type BulkSendResult struct {
	Scheduled []BulkSendItem `json:"scheduled"`
	Overlaps  []Overlap      `json:"overlaps,omitempty"`
}

// EmailScheduler queues one email.
type EmailScheduler interface {
	Schedule(ctx context.Context, req ScheduleRequest) (*domain.ScheduledEmail, error)
}

type CampaignService struct {
	campaigns  repository.CampaignRepository
	deliveries repository.DeliveryRepository
	scheduler  EmailScheduler
	logger     *zap.Logger
	now        func() time.Time
}

func NewCampaignService(
	campaigns repository.CampaignRepository,
	deliveries repository.DeliveryRepository,
	scheduler EmailScheduler,
	logger *zap.Logger,
) *CampaignService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CampaignService{
		campaigns:  campaigns,
		deliveries: deliveries,
		scheduler:  scheduler,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *CampaignService) Create(ctx context.Context, name string, status domain.CampaignStatus) (*domain.Campaign, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: campaign name is required", domain.ErrValidation)
	}
	if status == "" {
		status = domain.CampaignDraft
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: invalid campaign status %q", domain.ErrValidation, status)
	}

	campaign := &domain.Campaign{Name: name, Status: status}
	if err := s.campaigns.Create(ctx, campaign); err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}
	return campaign, nil
}

func (s *CampaignService) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.campaigns.GetByID(ctx, id)
}

func (s *CampaignService) SetStatus(ctx context.Context, id string, status domain.CampaignStatus) (*domain.Campaign, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: invalid campaign status %q", domain.ErrValidation, status)
	}
	if err := s.campaigns.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}
	return s.campaigns.GetByID(ctx, id)
}

// AssignVariants gives the i-th recipient variant i mod len(variants).
func AssignVariants(recipients []string, variants []domain.Variant) []Assignment {
	if len(variants) == 0 {
		return nil
	}
	assignments := make([]Assignment, 0, len(recipients))
	for i, recipient := range recipients {
		assignments = append(assignments, Assignment{
			Recipient: recipient,
			Variant:   variants[i%len(variants)],
		})
	}
	return assignments
}

// SendBulk drafts a delivery record and schedules an email per recipient. When
// a recipient is still outstanding in another active campaign nothing is sent
// unless the request is confirmed; the overlaps are returned alongside
// ErrConfirmationRequired.
func (s *CampaignService) SendBulk(ctx context.Context, campaignID string, req BulkSendRequest) (*BulkSendResult, error) {
	campaign, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != domain.CampaignActive {
		return nil, fmt.Errorf("%w: campaign %s is %s", domain.ErrConflict, campaign.ID, campaign.Status)
	}

	recipients, err := normalizeRecipients(req.Recipients)
	if err != nil {
		return nil, err
	}
	variants, err := validateVariants(req.Variants)
	if err != nil {
		return nil, err
	}

	outstanding, err := s.deliveries.FindOutstanding(ctx, recipients, campaign.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check outstanding deliveries: %w", err)
	}
	overlaps := make([]Overlap, 0, len(outstanding))
	for _, record := range outstanding {
		overlap := Overlap{Recipient: record.Recipient, Status: record.Status.String()}
		if record.CampaignID != nil {
			overlap.CampaignID = *record.CampaignID
		}
		overlaps = append(overlaps, overlap)
	}
	if len(overlaps) > 0 && !req.Confirm {
		return &BulkSendResult{Overlaps: overlaps}, domain.ErrConfirmationRequired
	}

	result := &BulkSendResult{
		Scheduled: make([]BulkSendItem, 0, len(recipients)),
		Overlaps:  overlaps,
	}
	for _, assignment := range AssignVariants(recipients, variants) {
		item, err := s.scheduleOne(ctx, campaign.ID, assignment, req)
		if err != nil {
			return result, fmt.Errorf("failed to schedule %s: %w", assignment.Recipient, err)
		}
		result.Scheduled = append(result.Scheduled, *item)
	}

	s.logger.Info("bulk send scheduled",
		zap.String("campaignId", campaign.ID),
		zap.Int("recipients", len(result.Scheduled)),
		zap.Int("variants", len(variants)),
		zap.Int("overlaps", len(overlaps)),
	)
	return result, nil
}

func (s *CampaignService) scheduleOne(ctx context.Context, campaignID string, assignment Assignment, req BulkSendRequest) (*BulkSendItem, error) {
	token := compliance.NewToken()
	cid := campaignID

	record := &domain.DeliveryRecord{
		TrackingToken: token,
		CampaignID:    &cid,
		Recipient:     assignment.Recipient,
		Subject:       assignment.Variant.Subject,
		Body:          assignment.Variant.Body,
		Variant:       assignment.Variant.Name,
		Status:        domain.DeliveryDrafted,
	}
	if err := s.deliveries.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to draft delivery record: %w", err)
	}

	email, err := s.scheduler.Schedule(ctx, ScheduleRequest{
		To:            assignment.Recipient,
		Subject:       assignment.Variant.Subject,
		Body:          assignment.Variant.Body,
		ScheduledAt:   req.ScheduledAt,
		CampaignID:    &cid,
		IdentityID:    req.IdentityID,
		Variant:       assignment.Variant.Name,
		TrackingToken: token,
	})
	if err != nil {
		return nil, err
	}

	return &BulkSendItem{
		Recipient:        assignment.Recipient,
		Variant:          assignment.Variant.Name,
		ScheduledEmailID: email.ID,
		TrackingToken:    token,
	}, nil
}

// normalizeRecipients validates every address and drops repeats, keeping the
// first occurrence.
func normalizeRecipients(raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: at least one recipient is required", domain.ErrValidation)
	}

	seen := make(map[string]struct{}, len(raw))
	recipients := make([]string, 0, len(raw))
	var invalid []error
	for _, r := range raw {
		addr, err := domain.NormalizeAddress(r)
		if err != nil {
			invalid = append(invalid, err)
			continue
		}
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		recipients = append(recipients, addr)
	}
	if len(invalid) > 0 {
		return nil, errors.Join(invalid...)
	}
	return recipients, nil
}

func validateVariants(variants []domain.Variant) ([]domain.Variant, error) {
	if len(variants) == 0 {
		return nil, fmt.Errorf("%w: at least one variant is required", domain.ErrValidation)
	}

	out := make([]domain.Variant, 0, len(variants))
	for i, v := range variants {
		if strings.TrimSpace(v.Subject) == "" || strings.TrimSpace(v.Body) == "" {
			return nil, fmt.Errorf("%w: variant %d needs a subject and a body", domain.ErrValidation, i)
		}
		if strings.TrimSpace(v.Name) == "" {
			v.Name = string(rune('A' + i%26))
		}
		out = append(out, v)
	}
	return out, nil
}
