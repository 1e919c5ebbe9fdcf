// Package validation checks client-supplied request fields before they reach storage.
package validation

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Field limits. MaxUsernameLength matches the requests.username column.
const (
	MaxUsernameLength    = 255
	MaxRequestTextLength = 4000
	MaxReasonLength      = 2000
)

// ValidateUsername checks a username as submitted. Surrounding whitespace does not count
// as content but does count toward the length limit, since the value is stored unchanged.
func ValidateUsername(username string) error {
	trimmed := strings.TrimSpace(username)
	if trimmed == "" {
		return fmt.Errorf("username is required")
	}
	if utf8.RuneCountInString(username) > MaxUsernameLength {
		return fmt.Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	if strings.IndexFunc(trimmed, unicode.IsControl) >= 0 {
		return fmt.Errorf("username cannot contain control characters")
	}
	return nil
}

// ValidateRequestText checks a request description as submitted. Line breaks are allowed.
func ValidateRequestText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("requestText is required")
	}
	if utf8.RuneCountInString(text) > MaxRequestTextLength {
		return fmt.Errorf("requestText must be at most %d characters", MaxRequestTextLength)
	}
	return nil
}

// ValidateReason checks an optional reason. Nil means no reason was given.
func ValidateReason(reason *string) error {
	if reason == nil {
		return nil
	}
	if utf8.RuneCountInString(*reason) > MaxReasonLength {
		return fmt.Errorf("reason must be at most %d characters", MaxReasonLength)
	}
	return nil
}
