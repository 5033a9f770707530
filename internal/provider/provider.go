package provider

import (
	"context"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
)

// Transport is the outbound mail delivery port.
type Transport interface {
	Send(ctx context.Context, identity domain.SendingIdentity, msg Message) error
	Verify(ctx context.Context, identity domain.SendingIdentity) error
}

// Message is a fully rendered outbound email.
type Message struct {
	To             string
	Subject        string
	Body           string
	UnsubscribeURL string
	TrackingToken  string
}
