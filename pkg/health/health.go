package health

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// CheckType represents the type of health check
type CheckType string

const (
	CheckTypeHTTP CheckType = "http"
	CheckTypeTCP  CheckType = "tcp"
)

// Result represents the outcome of a health check
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is the interface that all health checkers must implement
type Checker interface {
	// Check performs the health check and returns the result
	Check(ctx context.Context) Result

	// Type returns the type of health check
	Type() CheckType
}

// ForBind returns the checker appropriate for a bind target. An http:// or
// https:// URL gets an HTTP reachability check; a host:port or unix:path
// bind gets a TCP connect check.
func ForBind(bind string) (Checker, error) {
	switch {
	case bind == "":
		return nil, fmt.Errorf("empty bind target")
	case strings.HasPrefix(bind, "http://") || strings.HasPrefix(bind, "https://"):
		if _, err := url.Parse(bind); err != nil {
			return nil, fmt.Errorf("invalid bind URL %q: %w", bind, err)
		}
		return NewHTTPChecker(bind), nil
	case strings.HasPrefix(bind, "unix:"):
		return NewTCPChecker(strings.TrimPrefix(bind, "unix:")).WithNetwork("unix"), nil
	default:
		return NewTCPChecker(bind), nil
	}
}
