package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"gopkg.in/yaml.v3"
)

// IdentityFile is the on-disk layout of IDENTITIES_FILE. Secrets are never
// stored in the file; each entry names the environment variable holding it.
type IdentityFile struct {
	Identities []IdentitySpec `yaml:"identities"`
}

type IdentitySpec struct {
	Name          string `yaml:"name"`
	Provider      string `yaml:"provider"`
	Address       string `yaml:"address"`
	SMTPHost      string `yaml:"smtpHost"`
	SMTPPort      int    `yaml:"smtpPort"`
	Username      string `yaml:"username"`
	SecretEnv     string `yaml:"secretEnv"`
	DailyLimit    int    `yaml:"dailyLimit"`
	WarmupEnabled bool   `yaml:"warmupEnabled"`
	Active        *bool  `yaml:"active"`
}

func LoadIdentities(path string) ([]domain.SendingIdentity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open identities file: %w", err)
	}
	defer f.Close()

	return ParseIdentities(f, os.LookupEnv)
}

// ParseIdentities decodes an identity file. lookup resolves secretEnv names.
func ParseIdentities(r io.Reader, lookup func(string) (string, bool)) ([]domain.SendingIdentity, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read identities file: %w", err)
	}

	var file IdentityFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode identities file: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Identities))
	identities := make([]domain.SendingIdentity, 0, len(file.Identities))
	for i, entry := range file.Identities {
		identity, err := entry.toDomain(lookup)
		if err != nil {
			return nil, fmt.Errorf("identity %d: %w", i, err)
		}
		if _, dup := seen[identity.Address]; dup {
			return nil, fmt.Errorf("identity %d: %w: duplicate address %q", i, domain.ErrValidation, identity.Address)
		}
		seen[identity.Address] = struct{}{}
		identities = append(identities, identity)
	}
	return identities, nil
}

func (s IdentitySpec) toDomain(lookup func(string) (string, bool)) (domain.SendingIdentity, error) {
	provider, err := domain.ParseProviderPreset(s.Provider)
	if err != nil {
		return domain.SendingIdentity{}, err
	}

	address, err := domain.NormalizeAddress(s.Address)
	if err != nil {
		return domain.SendingIdentity{}, err
	}

	var secret string
	if name := strings.TrimSpace(s.SecretEnv); name != "" {
		value, ok := lookup(name)
		if !ok {
			return domain.SendingIdentity{}, fmt.Errorf("%w: secret env %s is not set", domain.ErrValidation, name)
		}
		secret = value
	}

	username := strings.TrimSpace(s.Username)
	if username == "" {
		username = address
	}

	active := true
	if s.Active != nil {
		active = *s.Active
	}

	identity := domain.SendingIdentity{
		Name:          strings.TrimSpace(s.Name),
		Provider:      provider,
		Address:       address,
		SMTPHost:      strings.TrimSpace(s.SMTPHost),
		SMTPPort:      s.SMTPPort,
		Username:      username,
		Secret:        secret,
		DailyLimit:    s.DailyLimit,
		Active:        active,
		WarmupEnabled: s.WarmupEnabled,
	}
	if err := identity.Validate(); err != nil {
		return domain.SendingIdentity{}, err
	}
	return identity, nil
}
