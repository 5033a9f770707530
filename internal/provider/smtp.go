package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/wneessen/go-mail"
)

const (
	defaultConnectTimeout = 8 * time.Second
	defaultSendTimeout    = 30 * time.Second
)

var _ Transport = (*SMTPTransport)(nil)

// SMTPTransport delivers messages through the SMTP server of the sending identity.
type SMTPTransport struct {
	connectTimeout time.Duration
	sendTimeout    time.Duration

	send func(ctx context.Context, client *mail.Client, msg *mail.Msg) error
	dial func(ctx context.Context, client *mail.Client) error
}

func NewSMTPTransport(connectTimeout, sendTimeout time.Duration) *SMTPTransport {
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}

	return &SMTPTransport{
		connectTimeout: connectTimeout,
		sendTimeout:    sendTimeout,
		send: func(ctx context.Context, client *mail.Client, msg *mail.Msg) error {
			return client.DialAndSendWithContext(ctx, msg)
		},
		dial: func(ctx context.Context, client *mail.Client) error {
			if err := client.DialWithContext(ctx); err != nil {
				return err
			}
			return client.Close()
		},
	}
}

func (t *SMTPTransport) Send(ctx context.Context, identity domain.SendingIdentity, msg Message) error {
	if t == nil || t.send == nil {
		return fmt.Errorf("smtp transport is not initialized")
	}

	m, err := buildMessage(identity, msg)
	if err != nil {
		return err
	}

	client, err := t.newClient(identity)
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, t.sendTimeout)
	defer cancel()

	if err := t.send(sendCtx, client, m); err != nil {
		if sendCtx.Err() != nil && ctx.Err() == nil {
			return NewError("smtp send deadline exceeded", fmt.Errorf("%w: %v", context.DeadlineExceeded, err))
		}
		return NewError("smtp send failed", err)
	}

	return nil
}

// Verify dials and authenticates without sending anything.
func (t *SMTPTransport) Verify(ctx context.Context, identity domain.SendingIdentity) error {
	if t == nil || t.dial == nil {
		return fmt.Errorf("smtp transport is not initialized")
	}

	client, err := t.newClient(identity)
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, t.connectTimeout)
	defer cancel()

	if err := t.dial(dialCtx, client); err != nil {
		return NewError("smtp verify failed", err)
	}
	return nil
}

func (t *SMTPTransport) newClient(identity domain.SendingIdentity) (*mail.Client, error) {
	host, port, err := ResolveEndpoint(identity)
	if err != nil {
		return nil, err
	}

	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithTimeout(t.connectTimeout),
	}

	switch {
	case port == 465:
		opts = append(opts, mail.WithSSL())
	case identity.Provider == domain.ProviderCustom:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}

	if username := strings.TrimSpace(identity.Username); username != "" {
		authType := mail.SMTPAuthPlain
		if identity.Provider == domain.ProviderOutlook {
			authType = mail.SMTPAuthLogin
		}
		opts = append(opts,
			mail.WithSMTPAuth(authType),
			mail.WithUsername(username),
			mail.WithPassword(identity.Secret),
		)
	}

	client, err := mail.NewClient(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: smtp client: %v", domain.ErrValidation, err)
	}
	return client, nil
}

func buildMessage(identity domain.SendingIdentity, msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()

	var err error
	if name := strings.TrimSpace(identity.Name); name != "" {
		err = m.FromFormat(name, identity.Address)
	} else {
		err = m.From(identity.Address)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: invalid sender address %q", domain.ErrValidation, identity.Address)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("%w: invalid recipient address %q", domain.ErrValidation, msg.To)
	}

	m.Subject(msg.Subject)
	m.SetDate()
	m.SetMessageID()
	m.SetBodyString(mail.TypeTextHTML, msg.Body)

	if unsubscribe := strings.TrimSpace(msg.UnsubscribeURL); unsubscribe != "" {
		m.SetGenHeader(mail.Header("List-Unsubscribe"), "<"+unsubscribe+">")
		m.SetGenHeader(mail.Header("List-Unsubscribe-Post"), "List-Unsubscribe=One-Click")
	}
	if token := strings.TrimSpace(msg.TrackingToken); token != "" {
		m.SetGenHeader(mail.Header("X-Outreach-Token"), token)
	}

	return m, nil
}
