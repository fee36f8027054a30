package services

import (
	"strings"

	"spacegate/internal/core/domain"
)

// MatchEmailPattern reports whether email matches a single pattern. A pattern
// is either a full address (exact, case-insensitive) or "@domain", which
// matches any local part at exactly that domain.
func MatchEmailPattern(email, pattern string) bool {
	email = normalizeEmail(email)
	pattern = normalizeEmail(pattern)
	if email == "" || pattern == "" {
		return false
	}
	if strings.HasPrefix(pattern, "@") {
		at := strings.LastIndex(email, "@")
		if at <= 0 {
			return false
		}
		return email[at:] == pattern
	}
	return email == pattern
}

func matchesAny(email string, patterns []string) bool {
	for _, p := range patterns {
		if MatchEmailPattern(email, p) {
			return true
		}
	}
	return false
}

// CheckEmail applies block precedence: a blocked address is rejected even if
// it is also allowed. Otherwise the address must match an allowed pattern.
// It returns domain.ReasonNone when the address passes.
func CheckEmail(email string, allowed, blocked []string) domain.Reason {
	if len(blocked) > 0 && matchesAny(email, blocked) {
		return domain.ReasonEmailBlocked
	}
	if !matchesAny(email, allowed) {
		return domain.ReasonEmailNotAllowed
	}
	return domain.ReasonNone
}

func IsEmailAllowed(email string, allowed, blocked []string) bool {
	return CheckEmail(email, allowed, blocked) == domain.ReasonNone
}

// MaskEmailPattern hides the local part of a full address for display,
// keeping only its first character. Domain wildcards are returned unchanged.
func MaskEmailPattern(pattern string) string {
	pattern = strings.TrimSpace(pattern)
	if strings.HasPrefix(pattern, "@") {
		return pattern
	}
	at := strings.LastIndex(pattern, "@")
	if at <= 0 {
		return "***"
	}
	first := []rune(pattern[:at])[0]
	return string(first) + "***" + pattern[at:]
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
