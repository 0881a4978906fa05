package contracts

import (
	"context"
	"time"
)

// Repo defines persistence operations for contracts and their documents.
type Repo interface {
	Create(ctx context.Context, contract Contract) error
	GetByID(ctx context.Context, userID, contractID string) (Contract, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Contract, error)
	UpdateStatus(ctx context.Context, userID, contractID, status string) error

	CreateDocument(ctx context.Context, doc Document) error
	GetLatestDocument(ctx context.Context, userID, contractID string) (Document, error)
	UpdateDocumentExtraction(ctx context.Context, userID, documentID, text, method string, pageCount int, confidence float64, extractedAt time.Time) error
}
