package analyses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"contract-backend/internal/contracts"
	"contract-backend/internal/llm"
)

const koreanContract = `본 계약은 갑이 일방적으로 해지할 수 있으며, 을은 이에 대해 어떠한 이의도 제기할 수 없다. 또한 을은 계약 종료 후에도 관련 의무를 부담한다.`

const validModelResponse = `{
	"score": 72,
	"summary": "전반적으로 갑에게 유리한 계약입니다.",
	"risks": [
		{"id": "risk_1", "title": "면책 범위", "description": "면책 조항의 범위가 넓습니다.", "level": "MEDIUM", "suggestion": "면책 범위를 구체화하세요."}
	],
	"questions": ["계약 해지 시 정산 조건은 무엇인가요?"]
}`

type fakeLLM struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, input llm.AnalyzeInput) (json.RawMessage, error)
}

func (f *fakeLLM) AnalyzeContract(ctx context.Context, input llm.AnalyzeInput) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(ctx, input)
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type memObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemObjectStore() *memObjectStore {
	return &memObjectStore{objects: make(map[string][]byte)}
}

func (s *memObjectStore) Save(ctx context.Context, userID, fileName string, r io.Reader) (string, int64, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, "", err
	}
	key := userID + "/" + fileName
	s.mu.Lock()
	s.objects[key] = data
	s.mu.Unlock()
	return key, int64(len(data)), "", nil
}

func (s *memObjectStore) Open(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	s.mu.Lock()
	data, ok := s.objects[storageKey]
	s.mu.Unlock()
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type fixture struct {
	svc       *Service
	contracts *contracts.MemoryRepo
	store     *memObjectStore
	llm       *fakeLLM
}

func newFixture(t *testing.T, llmClient *fakeLLM) *fixture {
	t.Helper()
	contractRepo := contracts.NewMemoryRepo()
	store := newMemObjectStore()
	return &fixture{
		svc: &Service{
			Repo:            NewMemoryRepo(),
			Contracts:       contractRepo,
			Store:           store,
			LLM:             llmClient,
			Provider:        "gemini",
			Model:           "gemini-2.0-flash",
			AnalysisVersion: "v1",
		},
		contracts: contractRepo,
		store:     store,
		llm:       llmClient,
	}
}

// seedContract registers a contract with a text document whose body is text.
func (f *fixture) seedContract(t *testing.T, userID, text string) string {
	t.Helper()
	ctx := context.Background()
	contract := contracts.Contract{
		ID:        "contract-1",
		UserID:    userID,
		Title:     "용역 계약서",
		Status:    contracts.StatusUploaded,
		CreatedAt: time.Now().UTC(),
	}
	if err := f.contracts.Create(ctx, contract); err != nil {
		t.Fatalf("create contract: %v", err)
	}
	key, size, _, err := f.store.Save(ctx, userID, "contract.txt", strings.NewReader(text))
	if err != nil {
		t.Fatalf("save object: %v", err)
	}
	doc := contracts.Document{
		ID:         "doc-1",
		ContractID: contract.ID,
		UserID:     userID,
		FileName:   "contract.txt",
		MimeType:   "text/plain",
		SizeBytes:  size,
		StorageKey: key,
		CreatedAt:  time.Now().UTC(),
	}
	if err := f.contracts.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("create document: %v", err)
	}
	return contract.ID
}

func waitForTerminal(t *testing.T, repo Repo, analysisID string) Analysis {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		analysis, err := repo.GetByID(context.Background(), analysisID)
		if err != nil {
			t.Fatalf("get analysis: %v", err)
		}
		if analysis.Status == StatusCompleted || analysis.Status == StatusFailed {
			return analysis
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("analysis never reached a terminal status")
	return Analysis{}
}

func TestCreateCompletesWithMergedRisks(t *testing.T) {
	client := &fakeLLM{fn: func(ctx context.Context, input llm.AnalyzeInput) (json.RawMessage, error) {
		if !strings.Contains(input.ContractText, "일방적으로 해지") {
			t.Errorf("model did not receive the contract text")
		}
		return json.RawMessage(validModelResponse), nil
	}}
	f := newFixture(t, client)
	contractID := f.seedContract(t, "user-1", koreanContract)

	analysis, err := f.svc.Create(context.Background(), "user-1", contractID, UserContext{BusinessType: "프리랜서"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if analysis.Status != StatusPending {
		t.Fatalf("status = %q, want %q", analysis.Status, StatusPending)
	}

	final := waitForTerminal(t, f.svc.Repo, analysis.ID)
	if final.Status != StatusCompleted {
		t.Fatalf("status = %q (code=%v msg=%v), want completed", final.Status, final.ErrorCode, final.ErrorMessage)
	}
	if final.Result == nil {
		t.Fatal("completed analysis has no result")
	}
	if final.Result.SafetyScore != 72 {
		t.Errorf("SafetyScore = %d, want 72", final.Result.SafetyScore)
	}
	if final.Result.Fallback {
		t.Error("Fallback = true for a successful model run")
	}

	// One pattern finding (unilateral termination) plus the non-duplicate
	// model risk.
	if len(final.Result.Risks) != 2 {
		t.Fatalf("risk count = %d, want 2: %+v", len(final.Result.Risks), final.Result.Risks)
	}
	seen := make(map[string]bool)
	for _, r := range final.Result.Risks {
		if seen[r.ID] {
			t.Errorf("duplicate risk ID %q", r.ID)
		}
		seen[r.ID] = true
	}
	if !seen["pattern_0"] {
		t.Errorf("missing pattern finding: %+v", final.Result.Risks)
	}

	contract, err := f.contracts.GetByID(context.Background(), "user-1", contractID)
	if err != nil {
		t.Fatalf("get contract: %v", err)
	}
	if contract.Status != contracts.StatusReviewed {
		t.Errorf("contract status = %q, want %q", contract.Status, contracts.StatusReviewed)
	}
}

func TestCreatePersistsExtractedText(t *testing.T) {
	client := &fakeLLM{fn: func(ctx context.Context, input llm.AnalyzeInput) (json.RawMessage, error) {
		return json.RawMessage(validModelResponse), nil
	}}
	f := newFixture(t, client)
	contractID := f.seedContract(t, "user-1", koreanContract)

	analysis, err := f.svc.Create(context.Background(), "user-1", contractID, UserContext{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	waitForTerminal(t, f.svc.Repo, analysis.ID)

	doc, err := f.contracts.GetLatestDocument(context.Background(), "user-1", contractID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if doc.ExtractedText == "" {
		t.Error("extracted text was not persisted to the document")
	}
	if doc.ExtractMethod != "text" {
		t.Errorf("ExtractMethod = %q, want %q", doc.ExtractMethod, "text")
	}
}

func TestCreateFailsShortContractWithoutModelCall(t *testing.T) {
	client := &fakeLLM{fn: func(ctx context.Context, input llm.AnalyzeInput) (json.RawMessage, error) {
		return json.RawMessage(validModelResponse), nil
	}}
	f := newFixture(t, client)
	contractID := f.seedContract(t, "user-1", "짧은 계약서 내용입니다.")

	analysis, err := f.svc.Create(context.Background(), "user-1", contractID, UserContext{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	final := waitForTerminal(t, f.svc.Repo, analysis.ID)
	if final.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", final.Status)
	}
	if final.ErrorCode == nil || *final.ErrorCode != ErrorCodeContractTooShort {
		t.Fatalf("error code = %v, want %q", final.ErrorCode, ErrorCodeContractTooShort)
	}
	if got := client.callCount(); got != 0 {
		t.Errorf("model calls = %d, want 0", got)
	}
}

func TestCreateFallsBackToPatternsOnUnparseableModelOutput(t *testing.T) {
	client := &fakeLLM{fn: func(ctx context.Context, input llm.AnalyzeInput) (json.RawMessage, error) {
		return json.RawMessage(`{"broken": true}`), nil
	}}
	f := newFixture(t, client)
	contractID := f.seedContract(t, "user-1", koreanContract)

	analysis, err := f.svc.Create(context.Background(), "user-1", contractID, UserContext{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	final := waitForTerminal(t, f.svc.Repo, analysis.ID)
	if final.Status != StatusCompleted {
		t.Fatalf("status = %q, want completed via fallback", final.Status)
	}
	if final.Result == nil || !final.Result.Fallback {
		t.Fatalf("result = %+v, want Fallback=true", final.Result)
	}
	// Initial call plus one fix-JSON retry.
	if got := client.callCount(); got != 2 {
		t.Errorf("model calls = %d, want 2", got)
	}
	if len(final.Result.Risks) == 0 {
		t.Error("fallback result lost the pattern findings")
	}
	if final.Result.SafetyScore != 75 {
		t.Errorf("SafetyScore = %d, want 75 (one high pattern finding)", final.Result.SafetyScore)
	}
}

func TestCreateFailsOnModelError(t *testing.T) {
	client := &fakeLLM{fn: func(ctx context.Context, input llm.AnalyzeInput) (json.RawMessage, error) {
		return nil, errors.New("invalid api key")
	}}
	f := newFixture(t, client)
	contractID := f.seedContract(t, "user-1", koreanContract)

	analysis, err := f.svc.Create(context.Background(), "user-1", contractID, UserContext{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	final := waitForTerminal(t, f.svc.Repo, analysis.ID)
	if final.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", final.Status)
	}
	if final.ErrorCode == nil {
		t.Fatal("failed analysis carries no error code")
	}
}

func TestCreateRejectsUnknownContract(t *testing.T) {
	f := newFixture(t, &fakeLLM{fn: func(ctx context.Context, input llm.AnalyzeInput) (json.RawMessage, error) {
		return json.RawMessage(validModelResponse), nil
	}})

	if _, err := f.svc.Create(context.Background(), "user-1", "missing", UserContext{}); !errors.Is(err, contracts.ErrNotFound) {
		t.Fatalf("err = %v, want contracts.ErrNotFound", err)
	}
}

func TestQuickAnalyzeRejectsShortText(t *testing.T) {
	client := &fakeLLM{fn: func(ctx context.Context, input llm.AnalyzeInput) (json.RawMessage, error) {
		return json.RawMessage(validModelResponse), nil
	}}
	f := newFixture(t, client)

	if _, err := f.svc.QuickAnalyze(context.Background(), "너무 짧음", UserContext{}); !errors.Is(err, ErrContractTooShort) {
		t.Fatalf("err = %v, want ErrContractTooShort", err)
	}
	if got := client.callCount(); got != 0 {
		t.Errorf("model calls = %d, want 0", got)
	}
}

func TestQuickAnalyzeReturnsResult(t *testing.T) {
	client := &fakeLLM{fn: func(ctx context.Context, input llm.AnalyzeInput) (json.RawMessage, error) {
		return json.RawMessage(validModelResponse), nil
	}}
	f := newFixture(t, client)

	result, err := f.svc.QuickAnalyze(context.Background(), koreanContract, UserContext{BusinessType: "자영업"})
	if err != nil {
		t.Fatalf("quick analyze: %v", err)
	}
	if result.SafetyScore != 72 {
		t.Errorf("SafetyScore = %d, want 72", result.SafetyScore)
	}
	if len(result.Risks) == 0 {
		t.Error("quick analyze returned no risks")
	}
}

func TestGetEnforcesOwnership(t *testing.T) {
	f := newFixture(t, &fakeLLM{fn: func(ctx context.Context, input llm.AnalyzeInput) (json.RawMessage, error) {
		return json.RawMessage(validModelResponse), nil
	}})
	contractID := f.seedContract(t, "user-1", koreanContract)

	analysis, err := f.svc.Create(context.Background(), "user-1", contractID, UserContext{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	waitForTerminal(t, f.svc.Repo, analysis.ID)

	if _, err := f.svc.Get(context.Background(), "user-2", analysis.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for foreign user", err)
	}
}

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"deadline", context.DeadlineExceeded, ErrorCodeLLMTimeout},
		{"llm timeout", errors.New("llm analyze: request timeout"), ErrorCodeLLMTimeout},
		{"schema", errors.New("llm output invalid: missing score"), ErrorCodeLLMSchemaMismatch},
		{"document", errors.New("document lookup contract=x: not found"), ErrorCodeStorage},
		{"unknown", errors.New("boom"), ErrorCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyFailure(tt.err); got != tt.want {
				t.Errorf("classifyFailure(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestDetectLanguage(t *testing.T) {
	if got := detectLanguage(koreanContract); got != "ko" {
		t.Errorf("detectLanguage(korean) = %q, want ko", got)
	}
	if got := detectLanguage("This agreement may be terminated unilaterally."); got != "en" {
		t.Errorf("detectLanguage(english) = %q, want en", got)
	}
}

func TestUniqueRiskIDs(t *testing.T) {
	risks := uniqueRiskIDs([]Risk{
		{ID: "risk_1"},
		{ID: "risk_1"},
		{ID: ""},
	})
	seen := make(map[string]bool)
	for _, r := range risks {
		if r.ID == "" {
			t.Error("empty risk ID survived")
		}
		if seen[r.ID] {
			t.Errorf("duplicate risk ID %q", r.ID)
		}
		seen[r.ID] = true
	}
}
