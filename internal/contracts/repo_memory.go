package contracts

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores contracts in memory and is safe for concurrent use. It
// backs dev mode when no database is configured.
type MemoryRepo struct {
	mu        sync.RWMutex
	byID      map[string]Contract
	docsByID  map[string]Document
	docsByRef map[string][]string // contractID -> document IDs, oldest first
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:      make(map[string]Contract),
		docsByID:  make(map[string]Document),
		docsByRef: make(map[string][]string),
	}
}

// Create stores the contract.
func (r *MemoryRepo) Create(ctx context.Context, contract Contract) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[contract.ID] = contract
	return nil
}

// GetByID returns a contract owned by the user.
func (r *MemoryRepo) GetByID(ctx context.Context, userID, contractID string) (Contract, error) {
	if err := ctx.Err(); err != nil {
		return Contract{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	contract, ok := r.byID[contractID]
	if !ok || contract.UserID != userID {
		return Contract{}, ErrNotFound
	}
	return contract, nil
}

// ListByUser returns the user's contracts newest first.
func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Contract, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}

	r.mu.RLock()
	var out []Contract
	for _, c := range r.byID {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if offset >= len(out) {
		return []Contract{}, nil
	}
	end := len(out)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return out[offset:end], nil
}

// UpdateStatus sets the contract status.
func (r *MemoryRepo) UpdateStatus(ctx context.Context, userID, contractID, status string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	contract, ok := r.byID[contractID]
	if !ok || contract.UserID != userID {
		return ErrNotFound
	}
	contract.Status = status
	contract.UpdatedAt = time.Now().UTC()
	r.byID[contractID] = contract
	return nil
}

// CreateDocument stores a document under its contract.
func (r *MemoryRepo) CreateDocument(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if contract, ok := r.byID[doc.ContractID]; !ok || contract.UserID != doc.UserID {
		return ErrNotFound
	}
	r.docsByID[doc.ID] = doc
	r.docsByRef[doc.ContractID] = append(r.docsByRef[doc.ContractID], doc.ID)
	return nil
}

// GetLatestDocument returns the newest document for a contract.
func (r *MemoryRepo) GetLatestDocument(ctx context.Context, userID, contractID string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.docsByRef[contractID]
	for i := len(ids) - 1; i >= 0; i-- {
		doc := r.docsByID[ids[i]]
		if doc.UserID == userID {
			return doc, nil
		}
	}
	return Document{}, ErrNotFound
}

// UpdateDocumentExtraction records extraction output for a document.
func (r *MemoryRepo) UpdateDocumentExtraction(ctx context.Context, userID, documentID, text, method string, pageCount int, confidence float64, extractedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docsByID[documentID]
	if !ok || doc.UserID != userID {
		return ErrNotFound
	}
	doc.ExtractedText = text
	doc.ExtractMethod = method
	doc.PageCount = pageCount
	doc.OCRConfidence = confidence
	doc.ExtractedAt = &extractedAt
	r.docsByID[documentID] = doc
	return nil
}
