package contracts

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"contract-backend/internal/shared/storage/object"
	"contract-backend/internal/shared/telemetry"
)

// Service contains business logic for contracts and their documents.
type Service struct {
	Repo           Repo
	Store          object.ObjectStore
	StoreProvider  string
	MaxUploadBytes int64
}

// Create records a new contract.
func (s *Service) Create(ctx context.Context, userID, title, partyName, contractType string) (Contract, error) {
	title = strings.TrimSpace(title)
	if userID == "" {
		return Contract{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if title == "" {
		return Contract{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if contractType == "" {
		contractType = "other"
	}

	now := time.Now().UTC()
	contract := Contract{
		ID:           uuid.NewString(),
		UserID:       userID,
		Title:        title,
		PartyName:    strings.TrimSpace(partyName),
		ContractType: contractType,
		Status:       StatusDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Repo.Create(ctx, contract); err != nil {
		return Contract{}, err
	}
	return contract, nil
}

// Get returns a contract owned by the user.
func (s *Service) Get(ctx context.Context, userID, contractID string) (Contract, error) {
	if contractID == "" {
		return Contract{}, fmt.Errorf("%w: contract id is required", ErrInvalidInput)
	}
	return s.Repo.GetByID(ctx, userID, contractID)
}

// List returns the user's contracts newest first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]Contract, error) {
	return s.Repo.ListByUser(ctx, userID, limit, offset)
}

// UploadDocument validates, stores, and records a contract file. The sniffed
// MIME type wins over whatever the client declared.
func (s *Service) UploadDocument(ctx context.Context, userID, contractID, fileName string, data []byte) (Document, error) {
	if fileName == "" {
		return Document{}, fmt.Errorf("%w: file name is required", ErrInvalidInput)
	}
	if _, err := s.Repo.GetByID(ctx, userID, contractID); err != nil {
		return Document{}, err
	}

	maxBytes := s.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	mimeType, err := ValidateUpload(data, fileName, maxBytes)
	if err != nil {
		return Document{}, err
	}

	storageKey, size, _, err := s.Store.Save(ctx, userID, fileName, bytes.NewReader(data))
	if err != nil {
		return Document{}, fmt.Errorf("store document: %w", err)
	}

	doc := Document{
		ID:              uuid.NewString(),
		ContractID:      contractID,
		UserID:          userID,
		FileName:        fileName,
		MimeType:        mimeType,
		SizeBytes:       size,
		StorageProvider: s.StoreProvider,
		StorageKey:      storageKey,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.Repo.CreateDocument(ctx, doc); err != nil {
		return Document{}, err
	}

	if err := s.Repo.UpdateStatus(ctx, userID, contractID, StatusUploaded); err != nil {
		telemetry.Warn("contracts.status_update_failed", map[string]any{
			"contract_id": contractID,
			"error":       err.Error(),
		})
	}
	return doc, nil
}

// LatestDocument returns the newest document for a contract.
func (s *Service) LatestDocument(ctx context.Context, userID, contractID string) (Document, error) {
	return s.Repo.GetLatestDocument(ctx, userID, contractID)
}
