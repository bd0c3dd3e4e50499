// Package capture holds domain logic for validating and describing capture
// requests, independent of any runtime or storage concern.
package capture

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError describes why a requested URL was rejected. Its messages
// become the job's structured message payload, keyed by field.
type ValidationError struct {
	Messages []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "invalid requested url: " + strings.Join(e.Messages, "; ")
}

func invalid(format string, args ...any) *ValidationError {
	return &ValidationError{Messages: []string{fmt.Sprintf(format, args...)}}
}

// ValidateURL normalizes and validates a requested URL.
//
// Normalization: surrounding whitespace is trimmed and "http://" is assumed
// when no scheme is present. Validation rejects empty input, embedded control
// characters, schemes other than http/https, and URLs without a host.
func ValidateURL(raw string) (string, error) {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return "", invalid("URL cannot be empty.")
	}

	for _, r := range cleaned {
		if r < 0x20 || r == 0x7f {
			return "", invalid("URL contains control characters.")
		}
	}

	if !strings.Contains(cleaned, "://") {
		cleaned = "http://" + cleaned
	}

	u, err := url.Parse(cleaned)
	if err != nil {
		return "", invalid("URL could not be parsed: %v.", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", invalid("Scheme %q is not allowed: use http or https.", u.Scheme)
	}
	if u.Host == "" {
		return "", invalid("URL has no host.")
	}
	// A bare hostname with no dot ("examplecom") is almost always a typo'd
	// domain rather than an intranet name.
	if !strings.Contains(u.Hostname(), ".") && !strings.EqualFold(u.Hostname(), "localhost") {
		return "", invalid("Hostname %q does not look like a domain.", u.Hostname())
	}

	return cleaned, nil
}
