package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"contract-backend/internal/llm"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "bare json", in: `{"score": 72}`, want: `{"score": 72}`},
		{name: "json fence", in: "```json\n{\"score\": 72}\n```", want: `{"score": 72}`},
		{name: "plain fence", in: "```\n{\"score\": 72}\n```", want: `{"score": 72}`},
		{name: "whitespace", in: "  {\"score\": 72}  ", want: `{"score": 72}`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := stripFences(tt.in); got != tt.want {
				t.Fatalf("stripFences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient("", "gemini-2.0-flash"); err == nil {
		t.Error("expected error for missing api key")
	}
	if _, err := NewClient("key", ""); err == nil {
		t.Error("expected error for missing model")
	}
}

func candidateResponse(text string) string {
	resp := map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]any{{"text": text}}}},
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestAnalyzeContractStripsFences(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "gemini-2.0-flash:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(candidateResponse("```json\n{\"score\": 72, \"summary\": \"ok\", \"risks\": []}\n```")))
	}))
	defer server.Close()

	c, err := NewClientWithBaseURL("key", "gemini-2.0-flash", server.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	raw, err := c.AnalyzeContract(context.Background(), llm.AnalyzeInput{ContractText: "contract body"})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !json.Valid(raw) {
		t.Fatalf("expected valid JSON, got %q", string(raw))
	}
}

func TestAnalyzeContractRetriesMalformedJSON(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		if calls == 1 {
			w.Write([]byte(candidateResponse(`{"score": 72, "summary": "truncated`)))
			return
		}
		w.Write([]byte(candidateResponse(`{"score": 72, "summary": "fixed", "risks": []}`)))
	}))
	defer server.Close()

	c, err := NewClientWithBaseURL("key", "gemini-2.0-flash", server.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	raw, err := c.AnalyzeContract(context.Background(), llm.AnalyzeInput{ContractText: "contract body"})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected one fix retry, saw %d calls", calls)
	}
	if !strings.Contains(string(raw), "fixed") {
		t.Errorf("expected repaired payload, got %s", string(raw))
	}
}

func TestAnalyzeContractSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"code": 429, "message": "quota exceeded", "status": "RESOURCE_EXHAUSTED"}}`))
	}))
	defer server.Close()

	c, err := NewClientWithBaseURL("key", "gemini-2.0-flash", server.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = c.AnalyzeContract(context.Background(), llm.AnalyzeInput{ContractText: "contract body"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("unexpected error %v", err)
	}
}
