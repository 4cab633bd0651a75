package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// FailureClass partitions fetch errors by what can fix them. Only
// FailureTransient is worth a failover: switching backends cannot repair a
// malformed query or a missing permission.
type FailureClass int

const (
	FailureTransient FailureClass = iota // service unavailable, timeouts, stale schema cache
	FailureNotFound                      // resource not configured on the backend
	FailureAuth                          // invalid or missing credential
	FailureClient                        // malformed query, validation failure
)

func (c FailureClass) String() string {
	switch c {
	case FailureTransient:
		return "transient_unavailable"
	case FailureNotFound:
		return "not_found"
	case FailureAuth:
		return "auth"
	case FailureClient:
		return "client_error"
	default:
		return "unknown"
	}
}

// Error is a fetch error tagged with its failure class. Backend adapters
// produce these so the fetcher and breaker never parse transport details.
type Error struct {
	Class   FailureClass
	Code    string // backend-specific code, e.g. "503", "42P01", "unavailable"
	Backend BackendID
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", e.Class, e.Code, e.Err)
	}
	return fmt.Sprintf("%s (%s)", e.Class, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError tags err with a failure class and backend-specific code.
func NewError(class FailureClass, code string, err error) *Error {
	return &Error{Class: class, Code: code, Err: err}
}

// Classify determines the failure class of an error. Tagged errors carry their
// class; untagged errors fall back to message matching, with timeouts and
// cancellations treated as transient.
func Classify(err error) FailureClass {
	if err == nil {
		return FailureTransient
	}

	var de *Error
	if errors.As(err, &de) {
		return de.Class
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureTransient
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return FailureTransient
	}

	return classifyMessage(err.Error())
}

func classifyMessage(s string) FailureClass {
	lower := strings.ToLower(s)

	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "403") ||
		strings.Contains(lower, "unauthorized") || strings.Contains(lower, "forbidden") ||
		strings.Contains(lower, "invalid credential") || strings.Contains(lower, "jwt"):
		return FailureAuth
	case strings.Contains(lower, "404") || strings.Contains(lower, "not found") ||
		strings.Contains(lower, "not configured"):
		return FailureNotFound
	case strings.Contains(lower, "400") || strings.Contains(lower, "422") ||
		strings.Contains(lower, "malformed") || strings.Contains(lower, "validation") ||
		strings.Contains(lower, "invalid query"):
		return FailureClient
	}

	// Network failures, 5xx, schema-cache misses all land here.
	return FailureTransient
}

// CodeOf extracts the backend-specific code from a tagged error, or a short
// placeholder for untagged ones.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "unknown"
}
