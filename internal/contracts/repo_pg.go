package contracts

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new contract.
func (r *PGRepo) Create(ctx context.Context, contract Contract) error {
	const query = `
INSERT INTO contracts (id, user_id, title, party_name, contract_type, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	var partyName sql.NullString
	if contract.PartyName != "" {
		partyName = sql.NullString{String: contract.PartyName, Valid: true}
	}
	_, err := r.DB.ExecContext(ctx, query,
		contract.ID,
		contract.UserID,
		contract.Title,
		partyName,
		contract.ContractType,
		contract.Status,
		contract.CreatedAt,
		contract.UpdatedAt,
	)
	return err
}

// GetByID returns a contract owned by the user.
func (r *PGRepo) GetByID(ctx context.Context, userID, contractID string) (Contract, error) {
	const query = `
SELECT id, user_id, title, party_name, contract_type, status, created_at, updated_at
FROM contracts
WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
LIMIT 1`
	var c Contract
	var partyName sql.NullString
	err := r.DB.QueryRowContext(ctx, query, contractID, userID).Scan(
		&c.ID, &c.UserID, &c.Title, &partyName, &c.ContractType, &c.Status, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Contract{}, ErrNotFound
	}
	if err != nil {
		return Contract{}, err
	}
	c.PartyName = partyName.String
	return c, nil
}

// ListByUser returns the user's contracts newest first.
func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Contract, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
SELECT id, user_id, title, party_name, contract_type, status, created_at, updated_at
FROM contracts
WHERE user_id = $1 AND deleted_at IS NULL
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	rows, err := r.DB.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Contract{}
	for rows.Next() {
		var c Contract
		var partyName sql.NullString
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &partyName, &c.ContractType, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.PartyName = partyName.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateStatus sets the contract status.
func (r *PGRepo) UpdateStatus(ctx context.Context, userID, contractID, status string) error {
	const query = `
UPDATE contracts SET status = $3, updated_at = now()
WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`
	res, err := r.DB.ExecContext(ctx, query, contractID, userID, status)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateDocument inserts a document row.
func (r *PGRepo) CreateDocument(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO contract_documents (
	id, contract_id, user_id, file_name, original_filename, mime_type, size_bytes,
	storage_provider, storage_key, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	originalName := doc.OriginalFilename
	if originalName == "" {
		originalName = doc.FileName
	}
	provider := doc.StorageProvider
	if provider == "" {
		provider = "local"
	}
	var storageKey sql.NullString
	if doc.StorageKey != "" {
		storageKey = sql.NullString{String: doc.StorageKey, Valid: true}
	}

	_, err := r.DB.ExecContext(ctx, query,
		doc.ID,
		doc.ContractID,
		doc.UserID,
		doc.FileName,
		originalName,
		doc.MimeType,
		doc.SizeBytes,
		provider,
		storageKey,
		doc.CreatedAt,
	)
	return err
}

// GetLatestDocument returns the newest document for a contract.
func (r *PGRepo) GetLatestDocument(ctx context.Context, userID, contractID string) (Document, error) {
	const query = `
SELECT id, contract_id, user_id, file_name, original_filename, mime_type, size_bytes,
       storage_provider, storage_key, extracted_text, extract_method, page_count,
       ocr_confidence, extracted_at, created_at
FROM contract_documents
WHERE contract_id = $1 AND user_id = $2 AND deleted_at IS NULL
ORDER BY created_at DESC
LIMIT 1`
	var d Document
	var originalName, storageKey, extractedText, extractMethod sql.NullString
	var pageCount sql.NullInt64
	var confidence sql.NullFloat64
	var extractedAt sql.NullTime
	err := r.DB.QueryRowContext(ctx, query, contractID, userID).Scan(
		&d.ID, &d.ContractID, &d.UserID, &d.FileName, &originalName, &d.MimeType, &d.SizeBytes,
		&d.StorageProvider, &storageKey, &extractedText, &extractMethod, &pageCount,
		&confidence, &extractedAt, &d.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	d.OriginalFilename = originalName.String
	d.StorageKey = storageKey.String
	d.ExtractedText = extractedText.String
	d.ExtractMethod = extractMethod.String
	d.PageCount = int(pageCount.Int64)
	d.OCRConfidence = confidence.Float64
	if extractedAt.Valid {
		t := extractedAt.Time
		d.ExtractedAt = &t
	}
	return d, nil
}

// UpdateDocumentExtraction records extraction output for a document.
func (r *PGRepo) UpdateDocumentExtraction(ctx context.Context, userID, documentID, text, method string, pageCount int, confidence float64, extractedAt time.Time) error {
	const query = `
UPDATE contract_documents
SET extracted_text = $3, extract_method = $4, page_count = $5, ocr_confidence = $6, extracted_at = $7
WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`
	res, err := r.DB.ExecContext(ctx, query, documentID, userID, text, method, pageCount, confidence, extractedAt)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Repo = (*PGRepo)(nil)
