package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/provider"
	"github.com/kursadbilgin/outreach-engine/internal/service"
)

func TestSendHandler_Success(t *testing.T) {
	t.Parallel()

	var got service.SendRequest
	services := stubServices()
	services.Sender = &stubSender{
		sendFn: func(_ context.Context, req service.SendRequest) (*service.SendResult, error) {
			got = req
			return &service.SendResult{
				TrackingToken: "tok-1",
				Recipient:     req.To,
				Identity:      domain.SendingIdentity{ID: "id-2"},
			}, nil
		},
	}
	app := newTestApp(t, services, AppOptions{})

	resp, body := performRequest(t, app, http.MethodPost, "/send",
		`{"to":"lead@example.com","subject":"Hi","body":"Hello","variant":"b","campaignId":"camp-1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, string(body))
	}

	var out sendResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !out.Success || out.TrackingToken != "tok-1" || out.IdentityID != "id-2" {
		t.Fatalf("unexpected response: %+v", out)
	}
	if got.To != "lead@example.com" || got.Variant != "b" {
		t.Fatalf("unexpected send request: %+v", got)
	}
	if got.CampaignID == nil || *got.CampaignID != "camp-1" {
		t.Fatalf("expected campaign id camp-1, got %v", got.CampaignID)
	}
}

func TestSendHandler_Errors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		body        string
		err         error
		wantStatus  int
		wantBounced bool
		wantType    string
	}{
		{
			name:       "malformed body",
			body:       `{`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "validation",
			body:       `{"to":"nope"}`,
			err:        errors.Join(domain.ErrValidation, errors.New("invalid email address")),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "suppressed",
			body:       `{"to":"gone@example.com"}`,
			err:        domain.ErrSuppressed,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "quota",
			body:       `{"to":"lead@example.com"}`,
			err:        domain.ErrQuotaExceeded,
			wantStatus: http.StatusTooManyRequests,
		},
		{
			name:       "no identity",
			body:       `{"to":"lead@example.com"}`,
			err:        domain.ErrNoIdentity,
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:        "hard bounce",
			body:        `{"to":"lead@example.com"}`,
			err:         &provider.ProviderError{Category: domain.BounceHard, Message: "550 5.1.1 user unknown"},
			wantStatus:  http.StatusBadGateway,
			wantBounced: true,
			wantType:    "hard",
		},
		{
			name:       "soft bounce",
			body:       `{"to":"lead@example.com"}`,
			err:        &provider.ProviderError{Category: domain.BounceSoft, Message: "452 mailbox full"},
			wantStatus: http.StatusBadGateway,
			wantType:   "soft",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			services := stubServices()
			services.Sender = &stubSender{
				sendFn: func(context.Context, service.SendRequest) (*service.SendResult, error) {
					return nil, tc.err
				},
			}
			app := newTestApp(t, services, AppOptions{})

			resp, body := performRequest(t, app, http.MethodPost, "/send", tc.body)
			if resp.StatusCode != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, resp.StatusCode, string(body))
			}

			var out sendResponse
			if err := json.Unmarshal(body, &out); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if out.Success {
				t.Fatal("expected success=false")
			}
			if out.Error == "" {
				t.Fatal("expected an error message")
			}
			if out.Bounced != tc.wantBounced {
				t.Fatalf("expected bounced=%v, got %v", tc.wantBounced, out.Bounced)
			}
			if out.BounceType != tc.wantType {
				t.Fatalf("expected bounceType %q, got %q", tc.wantType, out.BounceType)
			}
		})
	}
}
