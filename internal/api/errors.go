package api

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for classified Data API failures. Callers select
// behavior with errors.Is; the CLI renders the message as-is.
var (
	ErrAuth           = errors.New("authentication failed - please log in again")
	ErrForbidden      = errors.New("access denied")
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotFound       = errors.New("not found")
)

// StatusError wraps a classified sentinel with the HTTP status and any
// server-supplied detail.
type StatusError struct {
	StatusCode int
	Detail     string
	kind       error
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s (status %d)", e.kind.Error(), e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.kind.Error(), e.Detail)
}

// Unwrap exposes the sentinel for errors.Is.
func (e *StatusError) Unwrap() error {
	return e.kind
}

// classifyStatus maps a non-2xx response to a StatusError. detail is the
// sanitized server message.
func classifyStatus(status int, detail string) error {
	var kind error
	switch status {
	case 401:
		kind = ErrAuth
		detail = "" // the sentinel text is the whole message
	case 403:
		kind = ErrForbidden
	case 400:
		kind = ErrInvalidRequest
	case 404:
		kind = ErrNotFound
	default:
		return fmt.Errorf("server returned status %d: %s", status, detail)
	}
	return &StatusError{StatusCode: status, Detail: detail, kind: kind}
}

// sanitizeErrorResponse truncates and redacts API error response bodies
// before they end up in error messages or logs.
func sanitizeErrorResponse(body []byte, maxLen int) string {
	if maxLen <= 0 {
		maxLen = 200
	}

	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}

	keyPatterns := []string{"bearer ", "token-", "secret-", "key-"}
	for _, pattern := range keyPatterns {
		for {
			idx := strings.Index(strings.ToLower(s), pattern)
			if idx == -1 {
				break
			}
			endIdx := idx + len(pattern) + 40
			if endIdx > len(s) {
				endIdx = len(s)
			}
			s = s[:idx] + "[REDACTED]" + s[endIdx:]
		}
	}

	return s
}
