package provider

import (
	"fmt"
	"strings"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
)

type preset struct {
	host string
	port int
}

var presets = map[domain.ProviderPreset]preset{
	domain.ProviderGmail:   {host: "smtp.gmail.com", port: 587},
	domain.ProviderOutlook: {host: "smtp.office365.com", port: 587},
	domain.ProviderZoho:    {host: "smtp.zoho.com", port: 587},
	domain.ProviderYahoo:   {host: "smtp.mail.yahoo.com", port: 587},
}

// ResolveEndpoint returns the SMTP host and port for an identity. Explicit
// host/port values override the preset.
func ResolveEndpoint(identity domain.SendingIdentity) (string, int, error) {
	host := strings.TrimSpace(identity.SMTPHost)
	port := identity.SMTPPort

	if p, ok := presets[identity.Provider]; ok {
		if host == "" {
			host = p.host
		}
		if port == 0 {
			port = p.port
		}
	}

	if host == "" {
		return "", 0, fmt.Errorf("%w: smtp host is required for provider %q", domain.ErrValidation, identity.Provider)
	}
	if port == 0 {
		port = 587
	}
	return host, port, nil
}
