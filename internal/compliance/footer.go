package compliance

import (
	"errors"
	"fmt"
	"html"
	"io"
	"net/url"
	"strings"

	"github.com/google/uuid"
	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Marker is embedded once per footed body; its presence makes Apply a no-op.
const Marker = "<!-- outreach:compliance -->"

const DefaultUnsubscribeMessage = "You are receiving this email because we believe our services may be of interest to your business. If you would prefer not to hear from us again, use the link below."

// Builder renders tracking URLs against the public base URL of the API.
type Builder struct {
	baseURL string
}

func NewBuilder(publicBaseURL string) (*Builder, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(publicBaseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("public base url is required")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("invalid public base url %q", publicBaseURL)
	}
	return &Builder{baseURL: trimmed}, nil
}

func NewToken() string {
	return uuid.NewString()
}

func HasFooter(body string) bool {
	return strings.Contains(body, Marker)
}

// Apply wraps every http(s) link in body through the click endpoint and appends
// the opt-out notice, the unsubscribe link and the open pixel. Calling it on an
// already footed body returns the body unchanged.
func (b *Builder) Apply(body, recipient, unsubscribeMessage, senderAddress, token string) string {
	if HasFooter(body) {
		return body
	}
	if strings.TrimSpace(unsubscribeMessage) == "" {
		unsubscribeMessage = DefaultUnsubscribeMessage
	}

	var sb strings.Builder
	sb.WriteString(b.wrapLinks(body, token))
	sb.WriteString("\n")
	sb.WriteString(Marker)
	sb.WriteString("\n")
	sb.WriteString(`<div style="margin-top:24px;font-size:12px;color:#777777;">`)
	sb.WriteString("\n<p>")
	sb.WriteString(html.EscapeString(strings.TrimSpace(unsubscribeMessage)))
	sb.WriteString("</p>\n<p>This email was sent to ")
	sb.WriteString(html.EscapeString(strings.TrimSpace(recipient)))
	if sender := strings.TrimSpace(senderAddress); sender != "" {
		sb.WriteString(" by ")
		sb.WriteString(html.EscapeString(sender))
	}
	sb.WriteString(".</p>\n<p><a href=\"")
	sb.WriteString(html.EscapeString(b.UnsubscribeURL(token)))
	sb.WriteString("\">Unsubscribe</a></p>\n</div>\n")
	sb.WriteString(`<img src="`)
	sb.WriteString(html.EscapeString(b.OpenURL(token)))
	sb.WriteString(`" width="1" height="1" alt="" style="display:none;" />`)

	return sb.String()
}

func (b *Builder) OpenURL(token string) string {
	return b.baseURL + "/track/open?id=" + url.QueryEscape(token)
}

func (b *Builder) ClickURL(token string, destination string) string {
	return b.baseURL + "/track/click?id=" + url.QueryEscape(token) + "&url=" + url.QueryEscape(destination)
}

func (b *Builder) UnsubscribeURL(token string) string {
	return b.baseURL + "/unsubscribe?id=" + url.QueryEscape(token)
}

// wrapLinks rewrites the href of every anchor. Everything else, including
// malformed markup, is copied through byte for byte.
func (b *Builder) wrapLinks(body, token string) string {
	var sb strings.Builder
	sb.Grow(len(body))

	z := xhtml.NewTokenizer(strings.NewReader(body))
	consumed := 0
	for {
		tt := z.Next()
		if tt == xhtml.ErrorToken {
			if err := z.Err(); err != nil && !errors.Is(err, io.EOF) {
				return body
			}
			// A tag cut off by the end of the body is kept as written.
			sb.WriteString(body[min(consumed, len(body)):])
			return sb.String()
		}
		raw := string(z.Raw())
		consumed += len(raw)

		if tt != xhtml.StartTagToken && tt != xhtml.SelfClosingTagToken {
			sb.WriteString(raw)
			continue
		}

		tok := z.Token()
		if tok.DataAtom != atom.A || !b.wrapHref(&tok, token) {
			sb.WriteString(raw)
			continue
		}
		sb.WriteString(tok.String())
	}
}

func (b *Builder) wrapHref(tok *xhtml.Token, token string) bool {
	for i, attr := range tok.Attr {
		if attr.Namespace != "" || attr.Key != "href" {
			continue
		}
		dest := strings.TrimSpace(attr.Val)
		if !IsTrackableURL(dest) || strings.HasPrefix(dest, b.baseURL+"/") {
			return false
		}
		tok.Attr[i].Val = b.ClickURL(token, dest)
		return true
	}
	return false
}

// IsTrackableURL reports whether raw is an absolute http or https URL.
func IsTrackableURL(raw string) bool {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	scheme := strings.ToLower(parsed.Scheme)
	return (scheme == "http" || scheme == "https") && parsed.Host != ""
}
