package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TaskType identifies the handler that executes an AutomationTask.
type TaskType string

const (
	TaskTypeSendScheduledEmail TaskType = "send_scheduled_email"
	TaskTypeRefreshAudit       TaskType = "refresh_audit"
)

func (t TaskType) String() string { return string(t) }

func (t TaskType) IsValid() bool {
	switch t {
	case TaskTypeSendScheduledEmail, TaskTypeRefreshAudit:
		return true
	}
	return false
}

// TaskTypes lists every task type a scheduler must be able to handle.
func TaskTypes() []TaskType {
	return []TaskType{TaskTypeSendScheduledEmail, TaskTypeRefreshAudit}
}

// Priority orders due tasks; critical is dispatched first.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

func (p Priority) String() string { return string(p) }

func (p Priority) IsValid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// Rank maps a priority to its dispatch position. Lower ranks are claimed first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

func ParsePriorityFromString(s string) (Priority, error) {
	pr := Priority(strings.ToLower(strings.TrimSpace(s)))
	if pr == "" {
		return PriorityNormal, nil
	}
	if !pr.IsValid() {
		return "", fmt.Errorf("%w: invalid priority %q", ErrValidation, s)
	}
	return pr, nil
}

// TaskStatus represents the lifecycle state of an AutomationTask.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusDeadLetter TaskStatus = "dead_letter"
)

func (s TaskStatus) String() string { return string(s) }

func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed, TaskStatusDeadLetter:
		return true
	}
	return false
}

// IsTerminal reports whether the scheduler will never pick the task up again on its own.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusDeadLetter:
		return true
	}
	return false
}

func TaskStatuses() []TaskStatus {
	return []TaskStatus{
		TaskStatusPending,
		TaskStatusProcessing,
		TaskStatusCompleted,
		TaskStatusFailed,
		TaskStatusDeadLetter,
	}
}

func ParseTaskStatusFromString(s string) (TaskStatus, error) {
	st := TaskStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid task status %q", ErrValidation, s)
	}
	return st, nil
}

// AutomationTask is a unit of deferred work claimed and advanced by the scheduler.
type AutomationTask struct {
	ID                  string
	Type                TaskType
	Priority            Priority
	Payload             json.RawMessage
	Status              TaskStatus
	ScheduledAt         time.Time
	RetryCount          int
	MaxRetries          int
	ErrorLog            []string
	ProcessingStartedAt *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
	CompletedAt         *time.Time
}

func (t *AutomationTask) Validate() error {
	if !t.Type.IsValid() {
		return fmt.Errorf("%w: invalid task type %q", ErrValidation, t.Type)
	}
	if !t.Priority.IsValid() {
		return fmt.Errorf("%w: invalid priority %q", ErrValidation, t.Priority)
	}
	if t.MaxRetries < 0 {
		return fmt.Errorf("%w: maxRetries must be >= 0", ErrValidation)
	}
	if t.ScheduledAt.IsZero() {
		return fmt.Errorf("%w: scheduledAt is required", ErrValidation)
	}
	if len(t.Payload) == 0 || !json.Valid(t.Payload) {
		return fmt.Errorf("%w: payload must be valid json", ErrValidation)
	}
	return nil
}

// AppendError records a failure line. Earlier entries are never rewritten.
func (t *AutomationTask) AppendError(at time.Time, msg string) {
	t.ErrorLog = append(t.ErrorLog, FormatErrorLogEntry(at, msg))
}

func FormatErrorLogEntry(at time.Time, msg string) string {
	return fmt.Sprintf("%s %s", at.UTC().Format(time.RFC3339), strings.TrimSpace(msg))
}

// CompareDispatchOrder orders tasks by priority rank, then earliest scheduledAt.
func CompareDispatchOrder(a, b AutomationTask) int {
	if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
		return ra - rb
	}
	return a.ScheduledAt.Compare(b.ScheduledAt)
}

// TaskPayload is implemented by every typed task payload.
type TaskPayload interface {
	TaskType() TaskType
}

type SendScheduledEmailPayload struct {
	ScheduledEmailID string `json:"scheduledEmailId"`
}

func (SendScheduledEmailPayload) TaskType() TaskType { return TaskTypeSendScheduledEmail }

type RefreshAuditPayload struct {
	AccountID string `json:"accountId"`
}

func (RefreshAuditPayload) TaskType() TaskType { return TaskTypeRefreshAudit }

// EncodePayload marshals a payload and reports the type it belongs to.
func EncodePayload(p TaskPayload) (TaskType, json.RawMessage, error) {
	if p == nil {
		return "", nil, fmt.Errorf("%w: payload is required", ErrValidation)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", nil, fmt.Errorf("%w: encode payload: %v", ErrValidation, err)
	}
	return p.TaskType(), raw, nil
}
