package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// EmailRegex validates email format
	EmailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

	// DomainRegex validates the domain part of an "@domain" allowlist pattern
	DomainRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-]*[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9\-]*[a-zA-Z0-9])?)*\.[a-zA-Z]{2,}$`)

	// SpaceIDRegex validates space ID format
	SpaceIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// ExternalIDRegex validates provider channel / broadcaster IDs
	ExternalIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateEmail validates email address
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if len(email) > 254 {
		return fmt.Errorf("email is too long (max 254 characters)")
	}
	if !EmailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// ValidateEmailPattern validates an allowlist pattern: a full address or "@domain".
func ValidateEmailPattern(pattern string) error {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return fmt.Errorf("pattern is required")
	}
	if strings.HasPrefix(pattern, "@") {
		domain := pattern[1:]
		if len(domain) > 253 {
			return fmt.Errorf("domain is too long (max 253 characters)")
		}
		if !DomainRegex.MatchString(domain) {
			return fmt.Errorf("invalid domain format")
		}
		return nil
	}
	return ValidateEmail(pattern)
}

// ValidateSpaceID validates space ID
func ValidateSpaceID(spaceID string) error {
	if spaceID == "" {
		return fmt.Errorf("space ID is required")
	}
	if len(spaceID) > 100 {
		return fmt.Errorf("space ID is too long (max 100 characters)")
	}
	if !SpaceIDRegex.MatchString(spaceID) {
		return fmt.Errorf("invalid space ID format")
	}
	return nil
}

// ValidateExternalID validates a provider channel or broadcaster ID
func ValidateExternalID(id string) error {
	if id == "" {
		return fmt.Errorf("external ID is required")
	}
	if len(id) > 128 {
		return fmt.Errorf("external ID is too long (max 128 characters)")
	}
	if !ExternalIDRegex.MatchString(id) {
		return fmt.Errorf("invalid external ID format")
	}
	return nil
}

// ValidateSpaceName validates space name
func ValidateSpaceName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("space name is required")
	}
	if len(name) > 100 {
		return fmt.Errorf("space name is too long (max 100 characters)")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("space name contains invalid characters")
	}
	return nil
}

// ValidateMaxParticipants validates the capacity of a space (0 = unlimited)
func ValidateMaxParticipants(max int) error {
	if max < 0 {
		return fmt.Errorf("max participants must not be negative")
	}
	if max > 100000 {
		return fmt.Errorf("max participants is too high (max 100000)")
	}
	return nil
}

// ValidateURL validates URL format
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme (must be http or https)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}
