// Package errs provides the OperationError taxonomy shared across every
// control-plane component: a single error shape that carries which
// operation failed, which component/resource it concerned, and the
// underlying cause, plus constructors for the handful of recurring error
// categories (config, network, timeout, validation, auth, parse).
package errs

import (
	"fmt"
	"strings"
)

// OperationError is the canonical error shape returned by control-plane
// components. Component and Resource are optional context; Cause is the
// wrapped underlying error, also optional.
type OperationError struct {
	Operation string
	Component string
	Resource  string
	Cause     error
}

func (e *OperationError) Error() string {
	var b strings.Builder
	b.WriteString("failed to ")
	b.WriteString(e.Operation)
	if e.Component != "" {
		b.WriteString(", component: ")
		b.WriteString(e.Component)
	}
	if e.Resource != "" {
		b.WriteString(", resource: ")
		b.WriteString(e.Resource)
	}
	if e.Cause != nil {
		b.WriteString(", cause: ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap exposes the wrapped cause to errors.Is / errors.As.
func (e *OperationError) Unwrap() error {
	return e.Cause
}

// FailedTo builds an error reading "failed to <action>[: <cause>]".
func FailedTo(action string, cause error) error {
	if cause == nil {
		return fmt.Errorf("failed to %s", action)
	}
	return fmt.Errorf("failed to %s: %w", action, cause)
}

// FailedToWithDetails builds a fully-populated OperationError.
func FailedToWithDetails(operation, component, resource string, cause error) error {
	return &OperationError{
		Operation: operation,
		Component: component,
		Resource:  resource,
		Cause:     cause,
	}
}

// Wrapf wraps err with an additional formatted message, "<msg>: <err>".
// Returns nil if err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", msg, err)
}

// ConfigurationError reports an invalid configuration setting.
func ConfigurationError(setting, detail string) error {
	return fmt.Errorf("configuration error for setting %s: %s", setting, detail)
}

// ValidationError reports a failed field validation.
func ValidationError(field, detail string) error {
	return fmt.Errorf("validation failed for field %s: %s", field, detail)
}

// TimeoutError reports an operation that exceeded its deadline.
func TimeoutError(operation, elapsed string) error {
	return fmt.Errorf("timeout while %s after %s", operation, elapsed)
}

// NetworkError reports a failed network operation against an endpoint.
func NetworkError(operation, endpoint string, cause error) error {
	return &OperationError{
		Operation: fmt.Sprintf("%s (endpoint: %s)", operation, endpoint),
		Component: "network",
		Cause:     cause,
	}
}

// DatabaseError reports a failed storage/database operation.
// Retained for components that delegate persistence to the embedder but
// still need to classify a failure returned across that boundary.
func DatabaseError(operation string, cause error) error {
	return &OperationError{
		Operation: operation,
		Component: "database",
		Cause:     cause,
	}
}

// AuthenticationError reports a failed authentication attempt.
func AuthenticationError(detail string) error {
	return fmt.Errorf("authentication failed: %s", detail)
}

// AuthorizationError reports an authorization failure for an action on a resource.
func AuthorizationError(action, resource string) error {
	return fmt.Errorf("authorization failed: insufficient permissions to %s %s", action, resource)
}

// ParseError reports a failure to parse a named input as a given format.
func ParseError(what, format string, cause error) error {
	return FailedToWithDetails(fmt.Sprintf("parse %s as %s", what, format), "parser", "", cause)
}

// IsRetryable classifies an error as transient (spec.md §7's "transient
// external" category) based on common substrings. nil is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, substr := range []string{"timeout", "connection refused", "unavailable", "deadline exceeded"} {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

// Chain joins a set of non-nil errors into one. Returns nil if all inputs
// are nil, the single error unchanged if exactly one is non-nil, and a
// "multiple errors: a; b; c" summary otherwise.
func Chain(errors ...error) error {
	var msgs []string
	var nonNil []error
	for _, e := range errors {
		if e != nil {
			nonNil = append(nonNil, e)
			msgs = append(msgs, e.Error())
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return fmt.Errorf("multiple errors: %s", strings.Join(msgs, "; "))
	}
}
