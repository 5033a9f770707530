// Package events publishes delivery outcomes and operator alerts to RabbitMQ.
package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// Exchange is the topic exchange every event is published to.
	Exchange = "outreach.events"
	// AlertsQueue collects events an operator must act on.
	AlertsQueue = "outreach.alerts"
)

// Routing keys.
const (
	DeliverySent        = "delivery.sent"
	DeliveryBounced     = "delivery.bounced"
	DeliveryFailed      = "delivery.failed"
	IdentityAuthFailure = "identity.auth_failure"
	TaskDeadLetter      = "task.dead_letter"
	TaskFailed          = "task.failed"
)

var routingKeys = []string{
	DeliverySent,
	DeliveryBounced,
	DeliveryFailed,
	IdentityAuthFailure,
	TaskDeadLetter,
	TaskFailed,
}

// AlertRoutingKeys are bound to AlertsQueue.
func AlertRoutingKeys() []string {
	return []string{IdentityAuthFailure, TaskDeadLetter, TaskFailed}
}

func IsKnownRoutingKey(key string) bool {
	for _, k := range routingKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Event is the broker payload.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	OccurredAt time.Time         `json:"occurredAt"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func New(eventType string, occurredAt time.Time, attributes map[string]string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: occurredAt.UTC(),
		Attributes: attributes,
	}
}

func (e Event) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("event id is required")
	}
	if !IsKnownRoutingKey(e.Type) {
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}

// Publisher publishes events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
