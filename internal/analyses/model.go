package analyses

import "time"

// Status values follow the pending -> processing -> completed|failed
// lifecycle the client polls against.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Risk is one reported risky clause, pattern- or model-detected.
type Risk struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Level       string `json:"level"`
	Suggestion  string `json:"suggestion,omitempty"`
	Clause      string `json:"clause,omitempty"`
}

// Result is the terminal artifact of a completed analysis. SafetyScore is
// always within [0,100] and risk IDs are unique.
type Result struct {
	SafetyScore int      `json:"safety_score"`
	Summary     string   `json:"summary"`
	Risks       []Risk   `json:"risks"`
	Questions   []string `json:"questions"`
	Fallback    bool     `json:"fallback,omitempty"`
}

// UserContext personalizes the review for the party requesting it.
type UserContext struct {
	BusinessType        string `json:"business_type,omitempty"`
	BusinessDescription string `json:"business_description,omitempty"`
	LegalConcerns       string `json:"legal_concerns,omitempty"`
}

// Analysis represents one contract analysis job.
type Analysis struct {
	ID               string      `json:"id"`
	ContractID       string      `json:"contractId"`
	UserID           string      `json:"userId"`
	Status           string      `json:"status"`
	Result           *Result     `json:"result,omitempty"`
	UserContext      UserContext `json:"userContext,omitempty"`
	Provider         string      `json:"provider"`
	Model            string      `json:"model"`
	AnalysisVersion  string      `json:"analysisVersion"`
	ErrorCode        *string     `json:"errorCode,omitempty"`
	ErrorMessage     *string     `json:"errorMessage,omitempty"`
	ProcessingTimeMs int64       `json:"processingTimeMs,omitempty"`
	StartedAt        *time.Time  `json:"startedAt,omitempty"`
	CompletedAt      *time.Time  `json:"completedAt,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}
