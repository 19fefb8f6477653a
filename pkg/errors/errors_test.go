package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSentinelChecks(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"precondition", ErrPrecondition, IsPrecondition},
		{"no_api_key", ErrNoAPIKey, IsNoAPIKey},
		{"rate_limited", ErrRateLimited, IsRateLimited},
		{"gateway_timeout", ErrGatewayTimeout, IsGatewayTimeout},
		{"gateway_unavailable", ErrGatewayUnavailable, IsGatewayUnavailable},
		{"not_found", ErrNotFound, IsNotFound},
		{"validation", ErrValidation, IsValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(tt.err) {
				t.Errorf("check failed for direct sentinel")
			}
			wrapped := fmt.Errorf("context: %w", tt.err)
			if !tt.check(wrapped) {
				t.Errorf("check failed for wrapped sentinel")
			}
			if tt.check(errors.New("unrelated")) {
				t.Errorf("check matched unrelated error")
			}
		})
	}
}

func TestGatewayError_Retryable(t *testing.T) {
	transient := NewTransientError(CodeRateLimited, "429 from gateway", ErrRateLimited)
	if !transient.IsRetryable() {
		t.Error("transient error should be retryable")
	}
	if !Retryable(transient) {
		t.Error("Retryable() should report transient GatewayError")
	}

	permanent := NewPermanentError(CodeBadRequest, "invalid filter", nil)
	if permanent.IsRetryable() {
		t.Error("permanent error should not be retryable")
	}
	if Retryable(permanent) {
		t.Error("Retryable() should not report permanent GatewayError")
	}

	pre := NewPreconditionError(CodePreconditionFailed, "revenue metric ID missing")
	if pre.IsRetryable() {
		t.Error("precondition error should not be retryable")
	}
	if !IsPrecondition(pre) {
		t.Error("precondition error should unwrap to ErrPrecondition")
	}
}

func TestGatewayError_Unwrap(t *testing.T) {
	inner := errors.New("connection reset")
	ge := NewTransientError(CodeGatewayUnavailable, "call failed", inner)

	if !errors.Is(ge, inner) {
		t.Error("GatewayError should unwrap to inner error")
	}
	if got := ge.Error(); got != "call failed: connection reset" {
		t.Errorf("Error() = %q", got)
	}
}

func TestRetryable_Sentinels(t *testing.T) {
	if !Retryable(fmt.Errorf("wrapped: %w", ErrGatewayTimeout)) {
		t.Error("wrapped timeout should be retryable")
	}
	if Retryable(ErrValidation) {
		t.Error("validation error should not be retryable")
	}
}

func TestRetryableCode(t *testing.T) {
	if !RetryableCode(CodeRateLimited) {
		t.Error("RATE_LIMITED should be retryable")
	}
	if RetryableCode(CodeBadRequest) {
		t.Error("BAD_REQUEST should not be retryable")
	}
	if RetryableCode("UNKNOWN_CODE") {
		t.Error("unknown codes should not be retryable")
	}
}

func TestSuggestedActionsNameRealFlags(t *testing.T) {
	precondition := ErrorCodeRegistry[CodePreconditionFailed].SuggestedAction
	if !strings.Contains(precondition, "--metric-id") || !strings.Contains(precondition, "epctl query") {
		t.Errorf("precondition action = %q, want epctl query --metric-id guidance", precondition)
	}
	if strings.Contains(precondition, "keys set") {
		t.Errorf("precondition action = %q, keys set has no --metric-id flag", precondition)
	}
}
