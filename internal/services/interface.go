package services

import (
	"errors"
	"net/http"
)

var (
	// ErrUnknownService is returned when an action targets a service with no configured endpoint.
	ErrUnknownService = errors.New("unknown service")
	// ErrServiceUnavailable is returned while a service's circuit breaker is open.
	ErrServiceUnavailable = errors.New("service unavailable")
)

// HTTPDoer is the subset of *http.Client used by the HTTP collaborators.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Logger is the logging contract for the service collaborators.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
