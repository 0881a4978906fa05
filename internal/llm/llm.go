package llm

import (
	"context"
	"encoding/json"
)

// Client abstracts LLM providers for contract analysis.
type Client interface {
	AnalyzeContract(ctx context.Context, input AnalyzeInput) (json.RawMessage, error)
}

// AnalyzeInput captures the inputs needed for contract analysis. The context
// fields personalize the review for the party seeking it.
type AnalyzeInput struct {
	ContractText        string
	BusinessType        string
	BusinessDescription string
	LegalConcerns       string
	AnalysisVersion     string
}

type fixJSONKey struct{}

// WithFixJSON returns a context signaling a fix-JSON retry with the given raw output.
func WithFixJSON(ctx context.Context, raw string) context.Context {
	return context.WithValue(ctx, fixJSONKey{}, raw)
}

// FixJSONFromContext returns the raw JSON to repair, if any.
func FixJSONFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(fixJSONKey{})
	raw, ok := val.(string)
	return raw, ok
}
