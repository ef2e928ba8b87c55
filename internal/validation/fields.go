package validation

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	MaxTokenLength    = 128
	MaxDeviceIDLength = 128
	MaxIssueCount     = 500
)

// FieldError is a validation failure on one request field.
type FieldError struct {
	Field   string
	Value   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateToken checks the shape of an access token. Blank tokens pass;
// the gate reports those itself.
func ValidateToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	if len(token) > MaxTokenLength {
		return &FieldError{Field: "token", Value: token[:16] + "...", Message: fmt.Sprintf("must be at most %d characters", MaxTokenLength)}
	}
	if !printable(token) {
		return &FieldError{Field: "token", Message: "contains invalid characters"}
	}
	return nil
}

// ValidateDeviceID checks a client-supplied device identifier.
func ValidateDeviceID(id string) error {
	if len(id) > MaxDeviceIDLength {
		return &FieldError{Field: "device_id", Message: fmt.Sprintf("must be at most %d characters", MaxDeviceIDLength)}
	}
	if !printable(id) {
		return &FieldError{Field: "device_id", Value: id, Message: "contains invalid characters"}
	}
	return nil
}

// ValidateIssueCount bounds how many tokens one admin request may mint.
func ValidateIssueCount(n int) error {
	if n < 1 || n > MaxIssueCount {
		return &FieldError{Field: "count", Value: fmt.Sprint(n), Message: fmt.Sprintf("must be between 1 and %d", MaxIssueCount)}
	}
	return nil
}

// printable rejects whitespace and control characters.
func printable(s string) bool {
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
