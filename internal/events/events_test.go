package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestAlertRoutingKeysAreKnown(t *testing.T) {
	for _, key := range AlertRoutingKeys() {
		if !IsKnownRoutingKey(key) {
			t.Fatalf("alert key %q is not a known routing key", key)
		}
	}
	if IsKnownRoutingKey("delivery.unknown") {
		t.Fatal("unexpected routing key accepted")
	}
}

func TestEventValidate(t *testing.T) {
	event := New(DeliverySent, time.Now(), map[string]string{"token": "tok"})
	if err := event.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	event.Type = "nope"
	if err := event.Validate(); err == nil {
		t.Fatal("expected error for unknown type")
	}

	event = New(TaskDeadLetter, time.Now(), nil)
	event.ID = " "
	if err := event.Validate(); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestBuildPublishing(t *testing.T) {
	occurred := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("x", 3600))
	event := New(IdentityAuthFailure, occurred, map[string]string{"identityId": "id-1"})

	publishing, err := buildPublishing(event)
	if err != nil {
		t.Fatalf("buildPublishing() error = %v", err)
	}
	if publishing.DeliveryMode != amqp.Persistent {
		t.Fatalf("DeliveryMode = %d, want persistent", publishing.DeliveryMode)
	}
	if publishing.MessageId != event.ID || publishing.Type != IdentityAuthFailure {
		t.Fatalf("publishing = %+v", publishing)
	}
	if !publishing.Timestamp.Equal(occurred) || publishing.Timestamp.Location() != time.UTC {
		t.Fatalf("Timestamp = %v, want %v in UTC", publishing.Timestamp, occurred)
	}

	var decoded Event
	if err := json.Unmarshal(publishing.Body, &decoded); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if decoded.Attributes["identityId"] != "id-1" {
		t.Fatalf("attributes = %v", decoded.Attributes)
	}

	if _, err := buildPublishing(Event{ID: "x", Type: "bad"}); err == nil {
		t.Fatal("expected error for invalid event")
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	if err := p.Publish(context.Background(), New(DeliverySent, time.Now(), nil)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestNewRabbitMQRequiresURL(t *testing.T) {
	if _, err := NewRabbitMQ(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestRabbitMQPublisherGivesUpWhenBrokerIsDown(t *testing.T) {
	t.Parallel()

	publisher := &RabbitMQPublisher{
		client:  &RabbitMQ{url: "amqp://127.0.0.1:1/"},
		timeout: 200 * time.Millisecond,
	}

	done := make(chan error, 1)
	go func() {
		done <- publisher.Publish(context.Background(), New(DeliverySent, time.Now(), nil))
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected error while the broker is unreachable")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Publish() did not return within its timeout")
	}
}

func TestNewRabbitMQPublisherHasTimeout(t *testing.T) {
	if got := NewRabbitMQPublisher(&RabbitMQ{url: "amqp://localhost/"}).timeout; got != DefaultPublishTimeout {
		t.Fatalf("timeout = %s, want %s", got, DefaultPublishTimeout)
	}
}
