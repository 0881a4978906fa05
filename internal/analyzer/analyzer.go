// Package analyzer orchestrates the end-to-end review of a contract file:
// local text extraction, optional image compression, upload, remote analysis
// with polling, and a pattern-only local fallback when the network is the
// thing that failed.
package analyzer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"

	"contract-backend/internal/apiclient"
	"contract-backend/internal/extract"
	"contract-backend/internal/imaging"
	"contract-backend/internal/riskpatterns"
	"contract-backend/internal/shared/telemetry"
)

// MinContractLength is the shortest extracted text worth sending anywhere.
const MinContractLength = 50

// DefaultCompressThreshold is the size above which images are recompressed
// before upload.
const DefaultCompressThreshold = 500 << 10

// DefaultPollAttempts bounds the status polling loop.
const DefaultPollAttempts = 30

// Phase identifies a pipeline stage for progress reporting.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseExtracting  Phase = "extracting"
	PhaseCompressing Phase = "compressing"
	PhaseUploading   Phase = "uploading"
	PhaseAnalyzing   Phase = "analyzing"
	PhasePolling     Phase = "polling"
	PhaseDone        Phase = "done"
	PhaseError       Phase = "error"
)

// Progress is one pipeline status event.
type Progress struct {
	Phase   Phase
	Message string
	ETAHint string
}

// ProgressFunc observes pipeline progress. May be nil.
type ProgressFunc func(Progress)

// Risk is one risky clause in the final merged result.
type Risk struct {
	ID          string
	Title       string
	Description string
	Level       string
	Suggestion  string
	Clause      string
}

// ContractAnalysis is the final artifact handed to the caller. Score is
// always within [0,100] and risk IDs are unique.
type ContractAnalysis struct {
	Score     int
	Summary   string
	Risks     []Risk
	Questions []string
	Fallback  bool
}

// API is the slice of the HTTP client the analyzer needs.
type API interface {
	CreateContract(ctx context.Context, title, partyName, contractType string) (apiclient.Contract, error)
	UploadDocument(ctx context.Context, contractID, fileName string, data []byte) (apiclient.Document, error)
	StartAnalysis(ctx context.Context, contractID string, userCtx apiclient.UserContext) (apiclient.Analysis, error)
	GetAnalysis(ctx context.Context, analysisID string) (apiclient.Analysis, error)
}

// Options tunes the pipeline. Zero values select the defaults.
type Options struct {
	PollAttempts      int
	CompressThreshold int64
	CompressOptions   imaging.Options
	OnProgress        ProgressFunc
}

// Analyzer runs the review pipeline. Safe for concurrent Analyze calls.
type Analyzer struct {
	api    API
	images extract.ImageExtractor
	opts   Options
}

// New constructs an Analyzer. images may be nil when OCR is unavailable;
// image files then fail at the extraction stage.
func New(api API, images extract.ImageExtractor, opts Options) *Analyzer {
	if opts.PollAttempts <= 0 {
		opts.PollAttempts = DefaultPollAttempts
	}
	if opts.CompressThreshold <= 0 {
		opts.CompressThreshold = DefaultCompressThreshold
	}
	if opts.CompressOptions == (imaging.Options{}) {
		opts.CompressOptions = imaging.DefaultOptions()
	}
	return &Analyzer{api: api, images: images, opts: opts}
}

// Analyze runs the full pipeline on one contract file. Stages run strictly
// in order; the only network-free exit is text shorter than
// MinContractLength.
func (a *Analyzer) Analyze(ctx context.Context, fileName string, data []byte, userCtx apiclient.UserContext) (ContractAnalysis, error) {
	a.report(PhaseExtracting, "Extracting text from document...", "usually a few seconds")

	extracted := extract.Dispatch(ctx, a.images, data, fileName, "", a.ocrProgress)
	if !extracted.Success {
		a.report(PhaseError, extracted.Error, "")
		return ContractAnalysis{}, fmt.Errorf("%w: %s", ErrExtraction, extracted.Error)
	}

	text := strings.TrimSpace(extracted.Text)
	if len([]rune(text)) < MinContractLength {
		a.report(PhaseError, "contract text is too short to analyze", "")
		return ContractAnalysis{}, ErrContractTooShort
	}

	lang := detectLanguage(text)
	findings := riskpatterns.Detect(text, lang)

	upload := data
	if mtype := mimetype.Detect(data).String(); strings.HasPrefix(mtype, "image/") &&
		int64(len(data)) > a.opts.CompressThreshold {
		a.report(PhaseCompressing, "Compressing image before upload...", "a second or two")
		compressed, err := imaging.Compress(data, mtype, a.opts.CompressOptions)
		if err != nil {
			telemetry.Warn("analyzer.compress_failed", map[string]any{
				"file":  fileName,
				"error": err.Error(),
			})
		} else {
			upload = compressed.Data
		}
	}

	a.report(PhaseUploading, "Uploading contract...", "a few seconds")
	contract, err := a.api.CreateContract(ctx, contractTitle(fileName), "", "other")
	if err != nil {
		return a.recoverOrFail(err, findings, lang)
	}
	if _, err := a.api.UploadDocument(ctx, contract.ID, fileName, upload); err != nil {
		return a.recoverOrFail(err, findings, lang)
	}

	a.report(PhaseAnalyzing, "Starting AI analysis...", "")
	started, err := a.api.StartAnalysis(ctx, contract.ID, userCtx)
	if err != nil {
		return a.recoverOrFail(err, findings, lang)
	}

	remote, err := a.poll(ctx, started.ID)
	if err != nil {
		return a.recoverOrFail(err, findings, lang)
	}

	result := a.finish(remote, findings)
	a.report(PhaseDone, "Analysis complete", "")
	return result, nil
}

// poll fetches status until the analysis is terminal or the attempt budget
// runs out. Pacing between requests is the API client's responsibility.
func (a *Analyzer) poll(ctx context.Context, analysisID string) (apiclient.Analysis, error) {
	for attempt := 1; attempt <= a.opts.PollAttempts; attempt++ {
		a.report(PhasePolling,
			fmt.Sprintf("Waiting for analysis... (%d/%d)", attempt, a.opts.PollAttempts),
			"up to a minute")

		analysis, err := a.api.GetAnalysis(ctx, analysisID)
		if err != nil {
			return apiclient.Analysis{}, err
		}
		switch analysis.Status {
		case "completed":
			return analysis, nil
		case "failed":
			msg := "analysis failed"
			if analysis.ErrorMessage != nil {
				msg = *analysis.ErrorMessage
			}
			return apiclient.Analysis{}, fmt.Errorf("%w: %s", ErrAnalysisFailed, msg)
		}
	}
	return apiclient.Analysis{}, ErrPollExhausted
}

// finish merges the remote result with local pattern findings and normalizes
// score and IDs.
func (a *Analyzer) finish(remote apiclient.Analysis, findings []riskpatterns.Finding) ContractAnalysis {
	if remote.Result == nil {
		return patternFallback(findings, detectLanguageFromFindings(findings))
	}

	remoteFindings := make([]riskpatterns.Finding, 0, len(remote.Result.Risks))
	for _, r := range remote.Result.Risks {
		remoteFindings = append(remoteFindings, riskpatterns.Finding{
			ID:          r.ID,
			Title:       r.Type,
			Description: r.Description,
			Level:       riskpatterns.Level(r.Severity),
			MatchedText: r.Clause,
		})
	}
	merged := riskpatterns.Merge(findings, remoteFindings)

	risks := make([]Risk, 0, len(merged))
	for _, f := range merged {
		risk := Risk{
			ID:          f.ID,
			Title:       f.Title,
			Description: f.Description,
			Level:       string(f.Level),
			Clause:      f.MatchedText,
		}
		for _, rr := range remote.Result.Risks {
			if rr.ID == f.ID {
				risk.Suggestion = rr.Suggestion
				break
			}
		}
		risks = append(risks, risk)
	}

	return ContractAnalysis{
		Score:     clampScore(remote.Result.SafetyScore),
		Summary:   remote.Result.Summary,
		Risks:     uniqueRiskIDs(risks),
		Questions: remote.Result.Questions,
		Fallback:  remote.Result.Fallback,
	}
}

// recoverOrFail degrades to a local pattern-only result when the failure
// never reached the server. Any classified server verdict surfaces instead.
func (a *Analyzer) recoverOrFail(err error, findings []riskpatterns.Finding, lang string) (ContractAnalysis, error) {
	if !apiclient.IsNetworkError(err) {
		a.report(PhaseError, err.Error(), "")
		return ContractAnalysis{}, err
	}

	telemetry.Warn("analyzer.network_fallback", map[string]any{
		"error":      err.Error(),
		"risk_count": len(findings),
	})
	result := patternFallback(findings, lang)
	a.report(PhaseDone, "Server unreachable; showing pattern-based analysis", "")
	return result, nil
}

// patternFallback builds the degraded local result. The score penalizes each
// detected pattern regardless of level and never drops below 40.
func patternFallback(findings []riskpatterns.Finding, lang string) ContractAnalysis {
	score := 80 - 10*len(findings)
	if score < 40 {
		score = 40
	}

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

	summary := "네트워크 연결 없이 패턴 기반으로만 분석한 결과입니다. 정식 AI 분석을 위해 다시 시도해 주세요."
	if lang == "en" {
		summary = "Pattern-based analysis only; the analysis server was unreachable. Retry for a full AI review."
	}
	return ContractAnalysis{
		Score:     score,
		Summary:   summary,
		Risks:     risks,
		Questions: []string{},
		Fallback:  true,
	}
}

func (a *Analyzer) report(phase Phase, message, eta string) {
	if a.opts.OnProgress == nil {
		return
	}
	a.opts.OnProgress(Progress{Phase: phase, Message: message, ETAHint: eta})
}

// ocrProgress folds OCR stage callbacks into the extracting phase.
func (a *Analyzer) ocrProgress(stage string, fraction float64) {
	a.report(PhaseExtracting, stage, fmt.Sprintf("%.0f%%", fraction*100))
}

func contractTitle(fileName string) string {
	base := filepath.Base(fileName)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	if strings.TrimSpace(base) == "" {
		return "Untitled contract"
	}
	return base
}

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

func detectLanguage(text string) string {
	for _, r := range text {
		if unicode.Is(unicode.Hangul, r) {
			return "ko"
		}
	}
	return "en"
}

func detectLanguageFromFindings(findings []riskpatterns.Finding) string {
	for _, f := range findings {
		if detectLanguage(f.Title) == "ko" {
			return "ko"
		}
	}
	return "en"
}
