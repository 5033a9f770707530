package repository

import (
	"encoding/json"
	"time"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
)

// TaskModel is the persistence model for the automation_tasks table.
type TaskModel struct {
	ID                  string            `gorm:"type:uuid;primaryKey"`
	Type                domain.TaskType   `gorm:"type:varchar(40);not null"`
	Priority            domain.Priority   `gorm:"type:varchar(10);not null"`
	PriorityRank        int               `gorm:"not null"`
	Payload             string            `gorm:"type:text;not null"`
	Status              domain.TaskStatus `gorm:"type:varchar(20);not null"`
	ScheduledAt         time.Time         `gorm:"not null"`
	RetryCount          int               `gorm:"not null;default:0"`
	MaxRetries          int               `gorm:"not null;default:3"`
	ErrorLog            []string          `gorm:"type:text;serializer:json"`
	ProcessingStartedAt *time.Time
	CompletedAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (TaskModel) TableName() string {
	return "automation_tasks"
}

// ScheduledEmailModel is the persistence model for scheduled_emails.
type ScheduledEmailModel struct {
	ID            string                      `gorm:"type:uuid;primaryKey"`
	AccountID     *string                     `gorm:"type:uuid"`
	CampaignID    *string                     `gorm:"type:uuid"`
	Recipient     string                      `gorm:"type:varchar(320);not null"`
	Subject       string                      `gorm:"type:varchar(998);not null"`
	Body          string                      `gorm:"type:text;not null"`
	Variant       string                      `gorm:"type:varchar(64)"`
	TrackingToken string                      `gorm:"type:varchar(36);not null"`
	ScheduledAt   time.Time                   `gorm:"not null"`
	Status        domain.ScheduledEmailStatus `gorm:"type:varchar(20);not null"`
	SentAt        *time.Time
	Error         string  `gorm:"type:text"`
	IdentityID    *string `gorm:"type:uuid"`
	SequenceID    *string `gorm:"type:uuid"`
	SequenceStep  int     `gorm:"not null;default:0"`
	TaskID        *string `gorm:"type:uuid"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (ScheduledEmailModel) TableName() string {
	return "scheduled_emails"
}

// SendingIdentityModel is the persistence model for sending_identities.
type SendingIdentityModel struct {
	ID              string                `gorm:"type:uuid;primaryKey"`
	Name            string                `gorm:"type:varchar(255)"`
	Provider        domain.ProviderPreset `gorm:"type:varchar(20);not null"`
	Address         string                `gorm:"type:varchar(320);not null;uniqueIndex"`
	SMTPHost        string                `gorm:"column:smtp_host;type:varchar(255)"`
	SMTPPort        int                   `gorm:"column:smtp_port"`
	Username        string                `gorm:"type:varchar(320)"`
	Secret          string                `gorm:"type:text"`
	DailyLimit      int                   `gorm:"not null;default:0"`
	SendCount       int                   `gorm:"not null;default:0"`
	SendCountDate   string                `gorm:"type:varchar(10)"`
	Active          bool                  `gorm:"not null"`
	WarmupEnabled   bool                  `gorm:"not null"`
	WarmupStartedAt *time.Time
	LastUsedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (SendingIdentityModel) TableName() string {
	return "sending_identities"
}

// SuppressionModel is the persistence model for suppression_entries.
type SuppressionModel struct {
	ID        string                   `gorm:"type:uuid;primaryKey"`
	Address   string                   `gorm:"type:varchar(320);not null;uniqueIndex"`
	Reason    domain.SuppressionReason `gorm:"type:varchar(20);not null"`
	Source    string                   `gorm:"type:varchar(255)"`
	CreatedAt time.Time
}

func (SuppressionModel) TableName() string {
	return "suppression_entries"
}

// SendLogModel is the persistence model for send_logs, one row per local day.
type SendLogModel struct {
	Day       string `gorm:"type:varchar(10);primaryKey"`
	Count     int    `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

func (SendLogModel) TableName() string {
	return "send_logs"
}

// DeliveryRecordModel is the persistence model for delivery_records.
type DeliveryRecordModel struct {
	ID               string                `gorm:"type:uuid;primaryKey"`
	TrackingToken    string                `gorm:"type:varchar(36);not null;uniqueIndex"`
	AccountID        *string               `gorm:"type:uuid"`
	CampaignID       *string               `gorm:"type:uuid"`
	ScheduledEmailID *string               `gorm:"type:uuid"`
	IdentityID       *string               `gorm:"type:uuid"`
	Recipient        string                `gorm:"type:varchar(320);not null"`
	Subject          string                `gorm:"type:varchar(998)"`
	Body             string                `gorm:"type:text"`
	Variant          string                `gorm:"type:varchar(64)"`
	Status           domain.DeliveryStatus `gorm:"type:varchar(20);not null"`
	BounceType       domain.BounceType     `gorm:"type:varchar(20)"`
	Error            string                `gorm:"type:text"`
	SentAt           *time.Time
	OpenedAt         *time.Time
	ClickedAt        *time.Time
	RespondedAt      *time.Time
	BouncedAt        *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (DeliveryRecordModel) TableName() string {
	return "delivery_records"
}

// AccountModel is the persistence model for accounts.
type AccountModel struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	Name         string `gorm:"type:varchar(255);not null"`
	Email        string `gorm:"type:varchar(320)"`
	Website      string `gorm:"type:varchar(2048)"`
	AuditScore   *int
	AuditSummary string `gorm:"type:text"`
	AuditedAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (AccountModel) TableName() string {
	return "accounts"
}

// CampaignModel is the persistence model for campaigns.
type CampaignModel struct {
	ID        string                `gorm:"type:uuid;primaryKey"`
	Name      string                `gorm:"type:varchar(255);not null"`
	Status    domain.CampaignStatus `gorm:"type:varchar(20);not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (CampaignModel) TableName() string {
	return "campaigns"
}

// AllModels lists every table in creation order.
func AllModels() []any {
	return []any{
		&AccountModel{},
		&CampaignModel{},
		&SendingIdentityModel{},
		&TaskModel{},
		&ScheduledEmailModel{},
		&SuppressionModel{},
		&SendLogModel{},
		&DeliveryRecordModel{},
	}
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func taskModelFromDomain(t *domain.AutomationTask) *TaskModel {
	if t == nil {
		return nil
	}

	return &TaskModel{
		ID:                  t.ID,
		Type:                t.Type,
		Priority:            t.Priority,
		PriorityRank:        t.Priority.Rank(),
		Payload:             string(t.Payload),
		Status:              t.Status,
		ScheduledAt:         utc(t.ScheduledAt),
		RetryCount:          t.RetryCount,
		MaxRetries:          t.MaxRetries,
		ErrorLog:            append([]string(nil), t.ErrorLog...),
		ProcessingStartedAt: utcPtr(t.ProcessingStartedAt),
		CompletedAt:         utcPtr(t.CompletedAt),
		CreatedAt:           utc(t.CreatedAt),
		UpdatedAt:           utc(t.UpdatedAt),
	}
}

func taskModelToDomain(m *TaskModel) *domain.AutomationTask {
	if m == nil {
		return nil
	}

	return &domain.AutomationTask{
		ID:                  m.ID,
		Type:                m.Type,
		Priority:            m.Priority,
		Payload:             json.RawMessage(m.Payload),
		Status:              m.Status,
		ScheduledAt:         m.ScheduledAt,
		RetryCount:          m.RetryCount,
		MaxRetries:          m.MaxRetries,
		ErrorLog:            m.ErrorLog,
		ProcessingStartedAt: m.ProcessingStartedAt,
		CompletedAt:         m.CompletedAt,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

func scheduledEmailModelFromDomain(e *domain.ScheduledEmail) *ScheduledEmailModel {
	if e == nil {
		return nil
	}

	return &ScheduledEmailModel{
		ID:            e.ID,
		AccountID:     e.AccountID,
		CampaignID:    e.CampaignID,
		Recipient:     e.Recipient,
		Subject:       e.Subject,
		Body:          e.Body,
		Variant:       e.Variant,
		TrackingToken: e.TrackingToken,
		ScheduledAt:   utc(e.ScheduledAt),
		Status:        e.Status,
		SentAt:        utcPtr(e.SentAt),
		Error:         e.Error,
		IdentityID:    e.IdentityID,
		SequenceID:    e.SequenceID,
		SequenceStep:  e.SequenceStep,
		TaskID:        e.TaskID,
		CreatedAt:     utc(e.CreatedAt),
		UpdatedAt:     utc(e.UpdatedAt),
	}
}

func scheduledEmailModelToDomain(m *ScheduledEmailModel) *domain.ScheduledEmail {
	if m == nil {
		return nil
	}

	return &domain.ScheduledEmail{
		ID:            m.ID,
		AccountID:     m.AccountID,
		CampaignID:    m.CampaignID,
		Recipient:     m.Recipient,
		Subject:       m.Subject,
		Body:          m.Body,
		Variant:       m.Variant,
		TrackingToken: m.TrackingToken,
		ScheduledAt:   m.ScheduledAt,
		Status:        m.Status,
		SentAt:        m.SentAt,
		Error:         m.Error,
		IdentityID:    m.IdentityID,
		SequenceID:    m.SequenceID,
		SequenceStep:  m.SequenceStep,
		TaskID:        m.TaskID,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func identityModelFromDomain(i *domain.SendingIdentity) *SendingIdentityModel {
	if i == nil {
		return nil
	}

	return &SendingIdentityModel{
		ID:              i.ID,
		Name:            i.Name,
		Provider:        i.Provider,
		Address:         i.Address,
		SMTPHost:        i.SMTPHost,
		SMTPPort:        i.SMTPPort,
		Username:        i.Username,
		Secret:          i.Secret,
		DailyLimit:      i.DailyLimit,
		SendCount:       i.SendCount,
		SendCountDate:   i.SendCountDate,
		Active:          i.Active,
		WarmupEnabled:   i.WarmupEnabled,
		WarmupStartedAt: utcPtr(i.WarmupStartedAt),
		LastUsedAt:      utcPtr(i.LastUsedAt),
		CreatedAt:       utc(i.CreatedAt),
		UpdatedAt:       utc(i.UpdatedAt),
	}
}

func identityModelToDomain(m *SendingIdentityModel) *domain.SendingIdentity {
	if m == nil {
		return nil
	}

	return &domain.SendingIdentity{
		ID:              m.ID,
		Name:            m.Name,
		Provider:        m.Provider,
		Address:         m.Address,
		SMTPHost:        m.SMTPHost,
		SMTPPort:        m.SMTPPort,
		Username:        m.Username,
		Secret:          m.Secret,
		DailyLimit:      m.DailyLimit,
		SendCount:       m.SendCount,
		SendCountDate:   m.SendCountDate,
		Active:          m.Active,
		WarmupEnabled:   m.WarmupEnabled,
		WarmupStartedAt: m.WarmupStartedAt,
		LastUsedAt:      m.LastUsedAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func suppressionModelFromDomain(s *domain.SuppressionEntry) *SuppressionModel {
	if s == nil {
		return nil
	}

	return &SuppressionModel{
		ID:        s.ID,
		Address:   s.Address,
		Reason:    s.Reason,
		Source:    s.Source,
		CreatedAt: utc(s.CreatedAt),
	}
}

func suppressionModelToDomain(m *SuppressionModel) *domain.SuppressionEntry {
	if m == nil {
		return nil
	}

	return &domain.SuppressionEntry{
		ID:        m.ID,
		Address:   m.Address,
		Reason:    m.Reason,
		Source:    m.Source,
		CreatedAt: m.CreatedAt,
	}
}

func deliveryModelFromDomain(d *domain.DeliveryRecord) *DeliveryRecordModel {
	if d == nil {
		return nil
	}

	return &DeliveryRecordModel{
		ID:               d.ID,
		TrackingToken:    d.TrackingToken,
		AccountID:        d.AccountID,
		CampaignID:       d.CampaignID,
		ScheduledEmailID: d.ScheduledEmailID,
		IdentityID:       d.IdentityID,
		Recipient:        d.Recipient,
		Subject:          d.Subject,
		Body:             d.Body,
		Variant:          d.Variant,
		Status:           d.Status,
		BounceType:       d.BounceType,
		Error:            d.Error,
		SentAt:           utcPtr(d.SentAt),
		OpenedAt:         utcPtr(d.OpenedAt),
		ClickedAt:        utcPtr(d.ClickedAt),
		RespondedAt:      utcPtr(d.RespondedAt),
		BouncedAt:        utcPtr(d.BouncedAt),
		CreatedAt:        utc(d.CreatedAt),
		UpdatedAt:        utc(d.UpdatedAt),
	}
}

func deliveryModelToDomain(m *DeliveryRecordModel) *domain.DeliveryRecord {
	if m == nil {
		return nil
	}

	return &domain.DeliveryRecord{
		ID:               m.ID,
		TrackingToken:    m.TrackingToken,
		AccountID:        m.AccountID,
		CampaignID:       m.CampaignID,
		ScheduledEmailID: m.ScheduledEmailID,
		IdentityID:       m.IdentityID,
		Recipient:        m.Recipient,
		Subject:          m.Subject,
		Body:             m.Body,
		Variant:          m.Variant,
		Status:           m.Status,
		BounceType:       m.BounceType,
		Error:            m.Error,
		SentAt:           m.SentAt,
		OpenedAt:         m.OpenedAt,
		ClickedAt:        m.ClickedAt,
		RespondedAt:      m.RespondedAt,
		BouncedAt:        m.BouncedAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func accountModelFromDomain(a *domain.Account) *AccountModel {
	if a == nil {
		return nil
	}

	return &AccountModel{
		ID:           a.ID,
		Name:         a.Name,
		Email:        a.Email,
		Website:      a.Website,
		AuditScore:   a.AuditScore,
		AuditSummary: a.AuditSummary,
		AuditedAt:    utcPtr(a.AuditedAt),
		CreatedAt:    utc(a.CreatedAt),
		UpdatedAt:    utc(a.UpdatedAt),
	}
}

func accountModelToDomain(m *AccountModel) *domain.Account {
	if m == nil {
		return nil
	}

	return &domain.Account{
		ID:           m.ID,
		Name:         m.Name,
		Email:        m.Email,
		Website:      m.Website,
		AuditScore:   m.AuditScore,
		AuditSummary: m.AuditSummary,
		AuditedAt:    m.AuditedAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func campaignModelFromDomain(c *domain.Campaign) *CampaignModel {
	if c == nil {
		return nil
	}

	return &CampaignModel{
		ID:        c.ID,
		Name:      c.Name,
		Status:    c.Status,
		CreatedAt: utc(c.CreatedAt),
		UpdatedAt: utc(c.UpdatedAt),
	}
}

func campaignModelToDomain(m *CampaignModel) *domain.Campaign {
	if m == nil {
		return nil
	}

	return &domain.Campaign{
		ID:        m.ID,
		Name:      m.Name,
		Status:    m.Status,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
