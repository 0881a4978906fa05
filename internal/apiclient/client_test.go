package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestCreateContractSendsGuestHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Guest-Id"); got != "guest-1" {
			t.Errorf("X-Guest-Id = %q, want guest-1", got)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["title"] != "용역 계약서" {
			t.Errorf("title = %q", req["title"])
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Contract{ID: "contract-1", Title: req["title"]})
	}))
	defer server.Close()

	client := NewClient(server.URL, WithGuestID("guest-1"))
	contract, err := client.CreateContract(context.Background(), "용역 계약서", "주식회사 갑", "service")
	if err != nil {
		t.Fatalf("CreateContract: %v", err)
	}
	if contract.ID != "contract-1" {
		t.Errorf("ID = %q, want contract-1", contract.ID)
	}
}

func TestUploadDocumentMultipart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		if header.Filename != "contract.pdf" {
			t.Errorf("filename = %q", header.Filename)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Document{ID: "doc-1", FileName: header.Filename})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	doc, err := client.UploadDocument(context.Background(), "contract-1", "contract.pdf", []byte("%PDF-1.4 data"))
	if err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	if doc.ID != "doc-1" {
		t.Errorf("ID = %q, want doc-1", doc.ID)
	}
}

func TestQuickAnalyzeSendsSnakeCaseFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["contract_text"] != "본 계약은 갑과 을이 체결한다." {
			t.Errorf("contract_text = %q", req["contract_text"])
		}
		if req["business_type"] != "프리랜서" {
			t.Errorf("business_type = %q", req["business_type"])
		}
		_ = json.NewEncoder(w).Encode(AnalysisResult{SafetyScore: 80, Summary: "요약"})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	result, err := client.QuickAnalyze(context.Background(), "본 계약은 갑과 을이 체결한다.",
		UserContext{BusinessType: "프리랜서"})
	if err != nil {
		t.Fatalf("QuickAnalyze: %v", err)
	}
	if result.SafetyScore != 80 {
		t.Errorf("SafetyScore = %d, want 80", result.SafetyScore)
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   ErrorCode
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"code":"login_required","message":"login required"}}`, AuthRequired},
		{"forbidden", http.StatusForbidden, `{}`, AuthRequired},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"code":"rate_limited","message":"slow down"}}`, RateLimited},
		{"too large", http.StatusRequestEntityTooLarge, `{}`, FileTooLarge},
		{"bad request", http.StatusBadRequest, `{"error":{"code":"validation_error","message":"bad"}}`, InvalidRequest},
		{"not found", http.StatusNotFound, `{}`, InvalidRequest},
		{"server error", http.StatusInternalServerError, `{}`, ServerError},
		{"bad gateway", http.StatusBadGateway, `{}`, ServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(server.URL)
			_, err := client.CreateContract(context.Background(), "t", "", "")
			if err == nil {
				t.Fatal("expected error")
			}
			if got := CodeOf(err); got != tt.want {
				t.Errorf("CodeOf = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnreachableServerIsNetworkError(t *testing.T) {
	// Closed port: the request never reaches a server.
	client := NewClient("http://127.0.0.1:1")
	_, err := client.CreateContract(context.Background(), "t", "", "")
	if !IsNetworkError(err) {
		t.Fatalf("err = %v, want NETWORK_ERROR", err)
	}
}

func TestMalformedSuccessBodyIsParseError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.CreateContract(context.Background(), "t", "", "")
	if got := CodeOf(err); got != ParseError {
		t.Fatalf("CodeOf = %q, want PARSE_ERROR", got)
	}
}

func TestGetAnalysisPacesPolls(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(Analysis{ID: "a-1", Status: "pending"})
	}))
	defer server.Close()

	client := NewClient(server.URL, WithPollInterval(50*time.Millisecond))

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := client.GetAnalysis(context.Background(), "a-1"); err != nil {
			t.Fatalf("GetAnalysis: %v", err)
		}
	}
	// First call is immediate; the next two wait one interval each.
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("three polls took %v, want >= 100ms of pacing", elapsed)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server saw %d calls, want 3", got)
	}
}

func TestGetAnalysisPollCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Analysis{ID: "a-1", Status: "pending"})
	}))
	defer server.Close()

	client := NewClient(server.URL, WithPollInterval(time.Hour))
	if _, err := client.GetAnalysis(context.Background(), "a-1"); err != nil {
		t.Fatalf("first poll: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.GetAnalysis(ctx, "a-1")
	if !IsNetworkError(err) {
		t.Fatalf("err = %v, want NETWORK_ERROR from cancelled wait", err)
	}
}
