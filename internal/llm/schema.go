package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Risk is one model-reported risky clause.
type Risk struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Level       string `json:"level"`
	Suggestion  string `json:"suggestion,omitempty"`
	Clause      string `json:"clause,omitempty"`
}

// Analysis is the structured payload every provider must produce.
type Analysis struct {
	Score     int      `json:"score"`
	Summary   string   `json:"summary"`
	Risks     []Risk   `json:"risks"`
	Questions []string `json:"questions"`
}

const analysisSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["score", "summary", "risks"],
	"properties": {
		"score": {"type": "number"},
		"summary": {"type": "string"},
		"risks": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["title", "level"],
				"properties": {
					"id": {"type": "string"},
					"title": {"type": "string"},
					"description": {"type": "string"},
					"level": {"enum": ["HIGH", "MEDIUM", "LOW"]},
					"suggestion": {"type": "string"},
					"clause": {"type": "string"}
				}
			}
		},
		"questions": {"type": "array", "items": {"type": "string"}}
	}
}`

var compiledSchema = jsonschema.MustCompileString("analysis.json", analysisSchema)

// ParseAnalysis validates a raw provider payload against the analysis schema
// and decodes it. Risks lacking an id get a positional one.
func ParseAnalysis(raw json.RawMessage) (Analysis, error) {
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return Analysis{}, fmt.Errorf("analysis payload is not JSON: %w", err)
	}
	if err := compiledSchema.Validate(generic); err != nil {
		return Analysis{}, fmt.Errorf("analysis payload failed validation: %w", err)
	}

	// Score is declared a number in the schema; tolerate fractional values
	// from the model by rounding.
	var aux struct {
		Score     float64  `json:"score"`
		Summary   string   `json:"summary"`
		Risks     []Risk   `json:"risks"`
		Questions []string `json:"questions"`
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&aux); err != nil {
		return Analysis{}, fmt.Errorf("decode analysis payload: %w", err)
	}
	analysis := Analysis{
		Score:     int(aux.Score + 0.5),
		Summary:   aux.Summary,
		Risks:     aux.Risks,
		Questions: aux.Questions,
	}

	for i := range analysis.Risks {
		if analysis.Risks[i].ID == "" {
			analysis.Risks[i].ID = fmt.Sprintf("risk_%d", i+1)
		}
	}
	return analysis, nil
}
