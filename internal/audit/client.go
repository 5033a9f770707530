// Package audit talks to the external website-audit service.
package audit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/outreach-engine/internal/domain"
)

const defaultAuditTimeout = 20 * time.Second

type auditRequest struct {
	URL string `json:"url"`
}

// Result is the score and summary returned for one website.
type Result struct {
	Score   int    `json:"score"`
	Summary string `json:"summary"`
}

type Client struct {
	client   *resty.Client
	endpoint string
}

func NewClient(baseURL string) (*Client, error) {
	client := resty.New()
	client.SetTimeout(defaultAuditTimeout)
	client.SetRetryCount(0)

	return NewClientWithResty(baseURL, client)
}

func NewClientWithResty(baseURL string, client *resty.Client) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("audit service url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid audit service url: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultAuditTimeout)
	}
	client.SetRetryCount(0)

	return &Client{
		client:   client,
		endpoint: trimmed + "/audits",
	}, nil
}

// Audit requests a fresh audit of website. Failures the service may recover
// from are returned as transient transport errors; the rest are permanent.
func (c *Client) Audit(ctx context.Context, website string) (*Result, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("audit client is not initialized")
	}

	website = strings.TrimSpace(website)
	if website == "" {
		return nil, fmt.Errorf("%w: account has no website", domain.ErrValidation)
	}

	var result Result
	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(auditRequest{URL: website}).
		SetResult(&result).
		Post(c.endpoint)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: audit request: %v", domain.ErrTransportTimeout, err)
		}
		return nil, fmt.Errorf("%w: audit request: %v", domain.ErrTransportSoft, err)
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &result, nil
	}

	body := strings.TrimSpace(response.String())
	switch {
	case statusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: audit service returned %d", domain.ErrTransportRateLimited, statusCode)
	case statusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: audit service returned %d: %s", domain.ErrTransportSoft, statusCode, body)
	default:
		return nil, fmt.Errorf("%w: audit service returned %d: %s", domain.ErrValidation, statusCode, body)
	}
}
