package provider

import (
	"regexp"
	"strings"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
)

type bounceRule struct {
	category domain.BounceType
	codes    *regexp.Regexp
	phrases  []string
}

// Rules are evaluated in order; the first match wins.
var bounceRules = []bounceRule{
	{
		category: domain.BounceAuth,
		codes:    regexp.MustCompile(`(?:^|[^0-9])(530|534|535)(?:[^0-9]|$)|(?:^|[^0-9.])5\.7\.(8|9|14)(?:[^0-9]|$)`),
		phrases: []string{
			"authentication failed",
			"authenticationfailed",
			"auth failed",
			"invalid credentials",
			"username and password not accepted",
			"application-specific password required",
			"535-5.7.8",
		},
	},
	{
		category: domain.BounceTimeout,
		phrases: []string{
			"etimedout",
			"timed out",
			"timeout",
			"deadline exceeded",
		},
	},
	{
		category: domain.BounceRateLimited,
		codes:    regexp.MustCompile(`(?:^|[^0-9.])4\.7\.28(?:[^0-9]|$)|(?:^|[^0-9.])5\.4\.5(?:[^0-9]|$)`),
		phrases: []string{
			"rate limit",
			"ratelimit",
			"too many messages",
			"too many connections",
			"too many requests",
			"throttl",
			"sending limit",
			"sending quota",
		},
	},
	{
		category: domain.BounceHard,
		codes:    regexp.MustCompile(`(?:^|[^0-9])(550|551|553|554)(?:[^0-9]|$)|(?:^|[^0-9.])5\.1\.(1|2|10)(?:[^0-9]|$)`),
		phrases: []string{
			"user unknown",
			"unknown user",
			"mailbox not found",
			"mailbox unavailable",
			"no such user",
			"does not exist",
			"recipient address rejected",
			"invalid recipient",
			"address rejected",
		},
	},
	{
		category: domain.BounceSoft,
		codes:    regexp.MustCompile(`(?:^|[^0-9])(421|450|451|452|552)(?:[^0-9]|$)|(?:^|[^0-9.])4\.2\.2(?:[^0-9]|$)`),
		phrases: []string{
			"mailbox full",
			"over quota",
			"temporarily",
			"try again later",
			"greylist",
			"service unavailable",
			"connection refused",
			"connection reset",
		},
	},
}

// Classify maps provider error text onto a failure category. It is a text
// heuristic: anything it does not recognise is BounceOther.
func Classify(text string) domain.BounceType {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return domain.BounceOther
	}

	for _, rule := range bounceRules {
		if rule.codes != nil && rule.codes.MatchString(lowered) {
			return rule.category
		}
		for _, phrase := range rule.phrases {
			if strings.Contains(lowered, phrase) {
				return rule.category
			}
		}
	}

	return domain.BounceOther
}
