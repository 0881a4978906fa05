package analyses

import (
	"context"
	"time"
)

// Repo defines persistence operations for analyses.
type Repo interface {
	Create(ctx context.Context, analysis Analysis) error
	GetByID(ctx context.Context, analysisID string) (Analysis, error)
	GetLatestForContract(ctx context.Context, userID, contractID string) (Analysis, error)
	UpdateStatusResultAndError(ctx context.Context, analysisID, status string, result *Result, errorCode, errorMessage *string, startedAt, completedAt *time.Time) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Analysis, error)
}
