package backend

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrUnauthorized  = errors.New("backend: unauthorized")
	ErrForbidden     = errors.New("backend: forbidden")
	ErrNotFound      = errors.New("backend: not found")
	ErrTimeout       = errors.New("backend: request timed out")
	ErrNotRegistered = errors.New("backend: telegram user is not registered")
)

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("API returned status %d: %s", e.StatusCode, body)
}

// Is maps well-known status codes onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// GateError reports a 200 response whose body says the gate did not open.
type GateError struct {
	Message string
}

func (e *GateError) Error() string {
	if e.Message == "" {
		return "gate did not open"
	}
	return e.Message
}

func (e *GateError) Is(target error) bool {
	if target != ErrForbidden {
		return false
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "permission") || strings.Contains(msg, "forbidden")
}
