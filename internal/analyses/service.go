package analyses

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"contract-backend/internal/contracts"
	"contract-backend/internal/extract"
	"contract-backend/internal/llm"
	"contract-backend/internal/riskpatterns"
	"contract-backend/internal/shared/metrics"
	"contract-backend/internal/shared/storage/object"
	"contract-backend/internal/shared/telemetry"
)

// MinContractLength is the shortest contract text worth analyzing. Shorter
// inputs fail immediately without touching the model.
const MinContractLength = 50

// Service contains business logic for contract analyses.
type Service struct {
	Repo            Repo
	Contracts       contracts.Repo
	Store           object.ObjectStore
	Images          extract.ImageExtractor
	LLM             llm.Client
	Provider        string
	Model           string
	AnalysisVersion string
}

// Create enqueues a new analysis for a contract's latest document and kicks
// off asynchronous completion.
func (s *Service) Create(ctx context.Context, userID, contractID string, userCtx UserContext) (Analysis, error) {
	if userID == "" || contractID == "" {
		return Analysis{}, errors.New("userID and contractID are required")
	}
	if _, err := s.Contracts.GetByID(ctx, userID, contractID); err != nil {
		return Analysis{}, err
	}

	now := time.Now().UTC()
	analysis := Analysis{
		ID:              uuid.NewString(),
		ContractID:      contractID,
		UserID:          userID,
		Status:          StatusPending,
		UserContext:     userCtx,
		Provider:        normalizeProvider(s.Provider),
		Model:           s.Model,
		AnalysisVersion: normalizeAnalysisVersion(s.AnalysisVersion),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.Repo.Create(ctx, analysis); err != nil {
		return Analysis{}, err
	}

	go s.completeAsync(backgroundWithRequestID(ctx), analysis.ID)

	return analysis, nil
}

// Get returns an analysis owned by the user.
func (s *Service) Get(ctx context.Context, userID, analysisID string) (Analysis, error) {
	if analysisID == "" {
		return Analysis{}, errors.New("analysisID is required")
	}
	analysis, err := s.Repo.GetByID(ctx, analysisID)
	if err != nil {
		return Analysis{}, err
	}
	if analysis.UserID != userID {
		return Analysis{}, ErrNotFound
	}
	return analysis, nil
}

// LatestForContract returns the newest analysis for a contract.
func (s *Service) LatestForContract(ctx context.Context, userID, contractID string) (Analysis, error) {
	return s.Repo.GetLatestForContract(ctx, userID, contractID)
}

// List returns analyses for a user ordered newest-first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]Analysis, error) {
	if userID == "" {
		return nil, errors.New("userID is required")
	}
	return s.Repo.ListByUser(ctx, userID, limit, offset)
}

// QuickAnalyze runs a synchronous analysis on raw pasted text without
// persisting anything.
func (s *Service) QuickAnalyze(ctx context.Context, text string, userCtx UserContext) (Result, error) {
	metrics.IncQuickAnalyze()
	text = strings.TrimSpace(text)
	if len([]rune(text)) < MinContractLength {
		return Result{}, ErrContractTooShort
	}
	return s.analyzeText(ctx, newRetryingLLM(s.LLM), text, userCtx)
}

func normalizeProvider(provider string) string {
	if strings.TrimSpace(provider) == "" {
		return "gemini"
	}
	return provider
}

func normalizeAnalysisVersion(version string) string {
	if strings.TrimSpace(version) == "" {
		return "v1"
	}
	return strings.TrimSpace(version)
}

func (s *Service) completeAsync(ctx context.Context, analysisID string) {
	defer func() {
		if r := recover(); r != nil {
			s.failAnalysis(ctx, analysisID, "", "", fmt.Errorf("panic: %v", r), nil)
		}
	}()
	startedAt := time.Now().UTC()
	if err := s.Repo.UpdateStatusResultAndError(ctx, analysisID, StatusProcessing, nil, nil, nil, &startedAt, nil); err != nil {
		s.failAnalysis(ctx, analysisID, "", "", fmt.Errorf("set processing failed: %w", err), &startedAt)
		return
	}

	analysis, err := s.Repo.GetByID(ctx, analysisID)
	if err != nil {
		s.failAnalysis(ctx, analysisID, "", "", fmt.Errorf("analysis lookup: %w", err), &startedAt)
		return
	}
	metrics.IncAnalysisStarted()
	telemetry.Info("analysis.status", map[string]any{
		"request_id":        RequestIDFromContext(ctx),
		"user_id":           analysis.UserID,
		"contract_id":       analysis.ContractID,
		"analysis_id":       analysis.ID,
		"status":            StatusProcessing,
		"status_transition": "pending->processing",
	})
	if s.Contracts == nil || s.Store == nil {
		s.failAnalysis(ctx, analysisID, analysis.UserID, analysis.ContractID, errors.New("missing document store dependencies"), &startedAt)
		return
	}
	if s.LLM == nil {
		s.failAnalysis(ctx, analysisID, analysis.UserID, analysis.ContractID, errors.New("missing llm client"), &startedAt)
		return
	}

	text, err := s.contractText(ctx, analysis.UserID, analysis.ContractID)
	if err != nil {
		s.failAnalysis(ctx, analysisID, analysis.UserID, analysis.ContractID, err, &startedAt)
		return
	}
	if len([]rune(text)) < MinContractLength {
		s.failAnalysisWithCode(ctx, analysisID, analysis.UserID, analysis.ContractID,
			ErrorCodeContractTooShort,
			fmt.Sprintf("contract text too short for analysis (minimum %d characters)", MinContractLength),
			&startedAt)
		return
	}

	result, err := s.analyzeText(ctx, newRetryingLLM(s.LLM), text, analysis.UserContext)
	if err != nil {
		s.failAnalysis(ctx, analysisID, analysis.UserID, analysis.ContractID, err, &startedAt)
		return
	}

	completedAt := time.Now().UTC()
	if err := s.Repo.UpdateStatusResultAndError(ctx, analysisID, StatusCompleted, &result, nil, nil, nil, &completedAt); err != nil {
		s.failAnalysis(ctx, analysisID, analysis.UserID, analysis.ContractID, fmt.Errorf("set analysis result failed: %w", err), &startedAt)
		return
	}
	if err := s.Contracts.UpdateStatus(ctx, analysis.UserID, analysis.ContractID, contracts.StatusReviewed); err != nil {
		telemetry.Warn("analysis.contract_status_update_failed", map[string]any{
			"contract_id": analysis.ContractID,
			"error":       err.Error(),
		})
	}
	metrics.IncAnalysisCompleted()
	metrics.ObserveAnalysisDurationMs(durationMs(&startedAt, &completedAt))
	telemetry.Info("analysis.status", map[string]any{
		"request_id":        RequestIDFromContext(ctx),
		"user_id":           analysis.UserID,
		"contract_id":       analysis.ContractID,
		"analysis_id":       analysis.ID,
		"status":            StatusCompleted,
		"status_transition": "processing->completed",
		"duration_ms":       durationMs(&startedAt, &completedAt),
		"safety_score":      result.SafetyScore,
		"risk_count":        len(result.Risks),
		"fallback":          result.Fallback,
	})
}

// contractText returns the analyzable text of the contract's latest document,
// extracting and persisting it on first use.
func (s *Service) contractText(ctx context.Context, userID, contractID string) (string, error) {
	doc, err := s.Contracts.GetLatestDocument(ctx, userID, contractID)
	if err != nil {
		return "", fmt.Errorf("document lookup contract=%s: %w", contractID, err)
	}
	if doc.ExtractedText != "" {
		return doc.ExtractedText, nil
	}

	body, err := s.Store.Open(ctx, doc.StorageKey)
	if err != nil {
		return "", fmt.Errorf("document %s storage open: %w", doc.ID, err)
	}
	data, err := io.ReadAll(body)
	body.Close()
	if err != nil {
		return "", fmt.Errorf("document %s storage read: %w", doc.ID, err)
	}

	res := extract.Dispatch(ctx, s.Images, data, doc.FileName, doc.MimeType, nil)
	if !res.Success {
		return "", fmt.Errorf("document %s mime %s: extraction validation: %s", doc.ID, doc.MimeType, res.Error)
	}

	if err := s.Contracts.UpdateDocumentExtraction(ctx, userID, doc.ID, res.Text, res.Method, res.PageCount, res.Confidence, time.Now().UTC()); err != nil {
		telemetry.Warn("analysis.extraction_persist_failed", map[string]any{
			"document_id": doc.ID,
			"error":       err.Error(),
		})
	}
	return res.Text, nil
}

// analyzeText runs pattern detection and the model in tandem and merges their
// findings. A model response that stays unparseable after one fix-JSON retry
// degrades to a pattern-only result instead of failing the analysis.
func (s *Service) analyzeText(ctx context.Context, client llm.Client, text string, userCtx UserContext) (Result, error) {
	lang := detectLanguage(text)
	patternFindings := riskpatterns.Detect(text, lang)

	input := llm.AnalyzeInput{
		ContractText:        text,
		BusinessType:        userCtx.BusinessType,
		BusinessDescription: userCtx.BusinessDescription,
		LegalConcerns:       userCtx.LegalConcerns,
		AnalysisVersion:     normalizeAnalysisVersion(s.AnalysisVersion),
	}
	raw, err := client.AnalyzeContract(ctx, input)
	if err != nil {
		return Result{}, fmt.Errorf("llm analyze: %w", err)
	}

	parsed, parseErr := llm.ParseAnalysis(raw)
	if parseErr != nil {
		rawRetry, retryErr := client.AnalyzeContract(llm.WithFixJSON(ctx, string(raw)), input)
		if retryErr == nil {
			parsed, parseErr = llm.ParseAnalysis(rawRetry)
		}
		if retryErr != nil || parseErr != nil {
			metrics.IncPatternFallback()
			telemetry.Warn("analysis.pattern_fallback", map[string]any{
				"request_id": RequestIDFromContext(ctx),
				"reason":     sanitizeError(firstErr(retryErr, parseErr)),
			})
			return patternOnlyResult(patternFindings, lang), nil
		}
	}

	merged := riskpatterns.Merge(patternFindings, modelFindings(parsed.Risks))
	risks := make([]Risk, 0, len(merged))
	for _, f := range merged {
		risk := Risk{
			ID:          f.ID,
			Title:       f.Title,
			Description: f.Description,
			Level:       string(f.Level),
			Clause:      f.MatchedText,
		}
		for _, mr := range parsed.Risks {
			if mr.ID == f.ID {
				risk.Suggestion = mr.Suggestion
				if mr.Clause != "" {
					risk.Clause = mr.Clause
				}
				break
			}
		}
		risks = append(risks, risk)
	}

	return Result{
		SafetyScore: clampScore(parsed.Score),
		Summary:     parsed.Summary,
		Risks:       uniqueRiskIDs(risks),
		Questions:   parsed.Questions,
	}, nil
}

// patternOnlyResult builds a degraded result from pattern findings alone.
func patternOnlyResult(findings []riskpatterns.Finding, lang string) Result {
	risks := make([]Risk, 0, len(findings))
	for _, f := range findings {
		risks = append(risks, Risk{
			ID:          f.ID,
			Title:       f.Title,
			Description: f.Description,
			Level:       string(f.Level),
			Clause:      f.MatchedText,
		})
	}

	summary := "AI 분석을 사용할 수 없어 패턴 기반 검토 결과만 제공합니다."
	if lang == "en" {
		summary = "AI analysis was unavailable; showing pattern-based review results only."
	}
	return Result{
		SafetyScore: riskpatterns.Score(findings),
		Summary:     summary,
		Risks:       risks,
		Questions:   []string{},
		Fallback:    true,
	}
}

func modelFindings(risks []llm.Risk) []riskpatterns.Finding {
	findings := make([]riskpatterns.Finding, 0, len(risks))
	for _, r := range risks {
		findings = append(findings, riskpatterns.Finding{
			ID:          r.ID,
			Title:       r.Title,
			Description: r.Description,
			Level:       riskpatterns.Level(r.Level),
			MatchedText: r.Clause,
		})
	}
	return findings
}

// uniqueRiskIDs rewrites colliding IDs so every risk keys uniquely.
func uniqueRiskIDs(risks []Risk) []Risk {
	seen := make(map[string]int, len(risks))
	for i := range risks {
		id := risks[i].ID
		if id == "" {
			id = fmt.Sprintf("risk_%d", i+1)
		}
		if n, dup := seen[id]; dup {
			seen[id] = n + 1
			id = fmt.Sprintf("%s_%d", id, n+1)
		}
		if _, dup := seen[id]; !dup {
			seen[id] = 1
		}
		risks[i].ID = id
	}
	return risks
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// detectLanguage picks the pattern-table language from the text itself.
func detectLanguage(text string) string {
	for _, r := range text {
		if unicode.Is(unicode.Hangul, r) {
			return "ko"
		}
	}
	return "en"
}

func (s *Service) failAnalysisWithCode(ctx context.Context, analysisID, userID, contractID, code, msg string, startedAt *time.Time) {
	completedAt := time.Now().UTC()
	if updateErr := s.Repo.UpdateStatusResultAndError(context.Background(), analysisID, StatusFailed, nil, &code, &msg, startedAt, &completedAt); updateErr != nil {
		telemetry.Error("analysis.fail_update", map[string]any{
			"analysis_id": analysisID,
			"error":       updateErr.Error(),
		})
	}
	metrics.IncAnalysisFailed()
	if startedAt != nil {
		metrics.ObserveAnalysisDurationMs(durationMs(startedAt, &completedAt))
	}
	telemetry.Info("analysis.status", map[string]any{
		"request_id":        RequestIDFromContext(ctx),
		"user_id":           userID,
		"contract_id":       contractID,
		"analysis_id":       analysisID,
		"status":            StatusFailed,
		"status_transition": "processing->failed",
		"error_code":        code,
		"duration_ms":       durationMs(startedAt, &completedAt),
	})
}

func (s *Service) failAnalysis(ctx context.Context, analysisID, userID, contractID string, err error, startedAt *time.Time) {
	code := classifyFailure(err)
	s.failAnalysisWithCode(ctx, analysisID, userID, contractID, code, sanitizeError(err), startedAt)
}

func durationMs(startedAt, completedAt *time.Time) float64 {
	if startedAt == nil || completedAt == nil {
		return 0
	}
	return float64(completedAt.Sub(*startedAt).Microseconds()) / 1000.0
}

func classifyFailure(err error) string {
	if err == nil {
		return ErrorCodeInternal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorCodeLLMTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") && strings.Contains(msg, "llm"),
		strings.Contains(msg, "gemini request timeout"):
		return ErrorCodeLLMTimeout
	case strings.Contains(msg, "schema"),
		strings.Contains(msg, "llm output invalid"):
		return ErrorCodeLLMSchemaMismatch
	case strings.Contains(msg, "validation") && !strings.Contains(msg, "llm"):
		return ErrorCodeValidation
	case strings.Contains(msg, "document"),
		strings.Contains(msg, "storage"),
		strings.Contains(msg, "analysis result"),
		strings.Contains(msg, "set processing"):
		return ErrorCodeStorage
	default:
		return ErrorCodeInternal
	}
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
