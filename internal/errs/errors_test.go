package errs

import (
	"fmt"
	"testing"
)

func TestOperationError(t *testing.T) {
	tests := []struct {
		name     string
		err      *OperationError
		expected string
	}{
		{
			name: "full error",
			err: &OperationError{
				Operation: "connect to cluster",
				Component: "cluster-client",
				Resource:  "default/app-1",
				Cause:     fmt.Errorf("connection timeout"),
			},
			expected: "failed to connect to cluster, component: cluster-client, resource: default/app-1, cause: connection timeout",
		},
		{
			name: "minimal error",
			err: &OperationError{
				Operation: "parse config",
				Cause:     fmt.Errorf("invalid yaml"),
			},
			expected: "failed to parse config, cause: invalid yaml",
		},
		{
			name: "no cause",
			err: &OperationError{
				Operation: "validate policy",
				Component: "compliance",
			},
			expected: "failed to validate policy, component: compliance",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestOperationError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := &OperationError{Operation: "test", Cause: cause}
	if unwrapped := err.Unwrap(); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}
	errNoCause := &OperationError{Operation: "test"}
	if unwrapped := errNoCause.Unwrap(); unwrapped != nil {
		t.Errorf("Unwrap() with no cause = %v, want nil", unwrapped)
	}
}

func TestFailedTo(t *testing.T) {
	withCause := FailedTo("connect to cluster", fmt.Errorf("connection refused"))
	if withCause.Error() != "failed to connect to cluster: connection refused" {
		t.Errorf("FailedTo() = %q", withCause.Error())
	}
	withoutCause := FailedTo("start supervisor", nil)
	if withoutCause.Error() != "failed to start supervisor" {
		t.Errorf("FailedTo() = %q", withoutCause.Error())
	}
}

func TestValidationError(t *testing.T) {
	err := ValidationError("analysisInterval", "must be positive")
	expected := "validation failed for field analysisInterval: must be positive"
	if err.Error() != expected {
		t.Errorf("ValidationError() = %q, want %q", err.Error(), expected)
	}
}

func TestConfigurationError(t *testing.T) {
	err := ConfigurationError("budget.monthly", "must be > 0")
	expected := "configuration error for setting budget.monthly: must be > 0"
	if err.Error() != expected {
		t.Errorf("ConfigurationError() = %q, want %q", err.Error(), expected)
	}
}

func TestTimeoutError(t *testing.T) {
	err := TimeoutError("fetching topology", "10s")
	expected := "timeout while fetching topology after 10s"
	if err.Error() != expected {
		t.Errorf("TimeoutError() = %q, want %q", err.Error(), expected)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"timeout", fmt.Errorf("request timeout"), true},
		{"connection refused", fmt.Errorf("connection refused by server"), true},
		{"permanent error", fmt.Errorf("invalid syntax"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.expected {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestChain(t *testing.T) {
	if got := Chain(nil, nil); got != nil {
		t.Errorf("Chain() = %v, want nil", got)
	}
	single := Chain(fmt.Errorf("single error"), nil)
	if single.Error() != "single error" {
		t.Errorf("Chain() = %q, want %q", single.Error(), "single error")
	}
	multi := Chain(fmt.Errorf("error 1"), fmt.Errorf("error 2"), nil, fmt.Errorf("error 3"))
	expected := "multiple errors: error 1; error 2; error 3"
	if multi.Error() != expected {
		t.Errorf("Chain() = %q, want %q", multi.Error(), expected)
	}
}
