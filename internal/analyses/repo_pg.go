package analyses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PGRepo persists analyses in Postgres.
type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Create(ctx context.Context, analysis Analysis) error {
	userCtx, err := json.Marshal(analysis.UserContext)
	if err != nil {
		return fmt.Errorf("marshal user context: %w", err)
	}

	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO analyses (
			id, contract_id, user_id, status, provider, model,
			analysis_version, user_context, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		analysis.ID, analysis.ContractID, analysis.UserID, analysis.Status,
		analysis.Provider, analysis.Model, analysis.AnalysisVersion,
		userCtx, analysis.CreatedAt, analysis.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

const analysisColumns = `
	id, contract_id, user_id, status, safety_score, summary, result,
	risk_count, fallback, provider, model, analysis_version, user_context,
	error_code, error_message, processing_time_ms,
	started_at, completed_at, created_at, updated_at`

func (r *PGRepo) GetByID(ctx context.Context, analysisID string) (Analysis, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT`+analysisColumns+`
		FROM analyses
		WHERE id = $1 AND deleted_at IS NULL`,
		analysisID,
	)
	return scanAnalysis(row)
}

func (r *PGRepo) GetLatestForContract(ctx context.Context, userID, contractID string) (Analysis, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT`+analysisColumns+`
		FROM analyses
		WHERE user_id = $1 AND contract_id = $2 AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1`,
		userID, contractID,
	)
	return scanAnalysis(row)
}

func (r *PGRepo) UpdateStatusResultAndError(ctx context.Context, analysisID, status string, result *Result, errorCode, errorMessage *string, startedAt, completedAt *time.Time) error {
	var (
		safetyScore sql.NullInt64
		summary     sql.NullString
		resultJSON  []byte
		riskCount   sql.NullInt64
		fallback    sql.NullBool
	)
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		resultJSON = raw
		safetyScore = sql.NullInt64{Int64: int64(result.SafetyScore), Valid: true}
		summary = sql.NullString{String: result.Summary, Valid: true}
		riskCount = sql.NullInt64{Int64: int64(len(result.Risks)), Valid: true}
		fallback = sql.NullBool{Bool: result.Fallback, Valid: true}
	}

	var processingMs sql.NullInt64
	if startedAt != nil && completedAt != nil {
		processingMs = sql.NullInt64{Int64: completedAt.Sub(*startedAt).Milliseconds(), Valid: true}
	}

	res, err := r.DB.ExecContext(ctx, `
		UPDATE analyses SET
			status = $2,
			safety_score = COALESCE($3, safety_score),
			summary = COALESCE($4, summary),
			result = COALESCE($5, result),
			risk_count = COALESCE($6, risk_count),
			fallback = COALESCE($7, fallback),
			error_code = COALESCE($8, error_code),
			error_message = COALESCE($9, error_message),
			started_at = COALESCE($10, started_at),
			completed_at = COALESCE($11, completed_at),
			processing_time_ms = COALESCE($12, processing_time_ms),
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`,
		analysisID, status, safetyScore, summary, resultJSON, riskCount,
		fallback, errorCode, errorMessage, startedAt, completedAt, processingMs,
	)
	if err != nil {
		return fmt.Errorf("update analysis: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update analysis rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Analysis, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT`+analysisColumns+`
		FROM analyses
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	analyses := []Analysis{}
	for rows.Next() {
		analysis, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, analysis)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list analyses rows: %w", err)
	}
	return analyses, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (Analysis, error) {
	var (
		analysis     Analysis
		safetyScore  sql.NullInt64
		summary      sql.NullString
		resultJSON   []byte
		riskCount    sql.NullInt64
		fallback     sql.NullBool
		provider     sql.NullString
		model        sql.NullString
		version      sql.NullString
		userCtxJSON  []byte
		errorCode    sql.NullString
		errorMessage sql.NullString
		processingMs sql.NullInt64
		startedAt    sql.NullTime
		completedAt  sql.NullTime
	)
	err := row.Scan(
		&analysis.ID, &analysis.ContractID, &analysis.UserID, &analysis.Status,
		&safetyScore, &summary, &resultJSON, &riskCount, &fallback,
		&provider, &model, &version, &userCtxJSON,
		&errorCode, &errorMessage, &processingMs,
		&startedAt, &completedAt, &analysis.CreatedAt, &analysis.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Analysis{}, ErrNotFound
	}
	if err != nil {
		return Analysis{}, fmt.Errorf("scan analysis: %w", err)
	}

	if len(resultJSON) > 0 {
		var result Result
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return Analysis{}, fmt.Errorf("unmarshal analysis result: %w", err)
		}
		analysis.Result = &result
	}
	if len(userCtxJSON) > 0 {
		if err := json.Unmarshal(userCtxJSON, &analysis.UserContext); err != nil {
			return Analysis{}, fmt.Errorf("unmarshal user context: %w", err)
		}
	}
	analysis.Provider = provider.String
	analysis.Model = model.String
	analysis.AnalysisVersion = version.String
	if errorCode.Valid {
		analysis.ErrorCode = &errorCode.String
	}
	if errorMessage.Valid {
		analysis.ErrorMessage = &errorMessage.String
	}
	if processingMs.Valid {
		analysis.ProcessingTimeMs = processingMs.Int64
	}
	if startedAt.Valid {
		t := startedAt.Time
		analysis.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		analysis.CompletedAt = &t
	}
	return analysis, nil
}

var _ Repo = (*PGRepo)(nil)
