package analyses

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"contract-backend/internal/llm"
	"contract-backend/internal/shared/telemetry"
)

// retryingLLM wraps a model client with a single retry for transient
// upstream failures. Schema or prompt problems are not retried.
type retryingLLM struct {
	inner llm.Client
	delay time.Duration
}

func newRetryingLLM(inner llm.Client) *retryingLLM {
	return &retryingLLM{inner: inner, delay: 2 * time.Second}
}

func (r *retryingLLM) AnalyzeContract(ctx context.Context, input llm.AnalyzeInput) (json.RawMessage, error) {
	raw, err := r.inner.AnalyzeContract(ctx, input)
	if err == nil {
		return raw, nil
	}
	if !shouldRetryLLM(err) {
		return nil, err
	}

	telemetry.Warn("analysis.llm_retry", map[string]any{
		"error": sanitizeError(err),
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(r.delay):
	}
	return r.inner.AnalyzeContract(ctx, input)
}

// shouldRetryLLM reports whether the upstream failure looks transient.
func shouldRetryLLM(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"timeout",
		"deadline exceeded",
		"connection refused",
		"connection reset",
		"temporarily unavailable",
		"rate limit",
		"quota",
		"429",
		"500",
		"502",
		"503",
		"504",
		"overloaded",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
