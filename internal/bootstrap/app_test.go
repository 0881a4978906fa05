package bootstrap_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"contract-backend/internal/bootstrap"
	"contract-backend/internal/shared/config"
)

const sampleContract = `제1조 (계약의 목적) 본 계약은 을이 갑에게 디자인 용역을 제공하는 데 필요한 사항을 정한다.
제2조 (계약의 해지) 갑은 일방적으로 본 계약을 해지할 수 있다.`

func newTestApp(t *testing.T) *bootstrap.App {
	t.Helper()
	gin.SetMode(gin.TestMode)

	app, err := bootstrap.Build(config.Config{
		Port:            "0",
		CORSAllowOrigin: []string{"http://localhost:5173"},
		Env:             "dev",
		ObjectStoreType: "local",
		LocalStoreDir:   t.TempDir(),
		MaxUploadBytes:  10 << 20,
	})
	if err != nil {
		t.Fatalf("bootstrap build: %v", err)
	}
	return app
}

func addGuestHeader(req *http.Request) {
	req.Header.Set("X-Guest-Id", "guest-e2e")
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	addGuestHeader(req)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestHealthAndMetrics(t *testing.T) {
	app := newTestApp(t)

	if resp := doJSON(t, app.Router, http.MethodGet, "/api/v1/health", ""); resp.Code != http.StatusOK {
		t.Fatalf("health = %d", resp.Code)
	}
	resp := doJSON(t, app.Router, http.MethodGet, "/api/v1/metrics", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("metrics = %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "analysis_started_total") {
		t.Errorf("metrics body missing counters: %s", resp.Body.String())
	}
}

func TestFullReviewFlow(t *testing.T) {
	app := newTestApp(t)
	router := app.Router

	// Create a contract.
	resp := doJSON(t, router, http.MethodPost, "/api/v1/contracts",
		`{"title":"디자인 용역 계약","partyName":"주식회사 갑","contractType":"service"}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("create contract = %d, body %s", resp.Code, resp.Body.String())
	}
	var contract struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &contract); err != nil {
		t.Fatalf("decode contract: %v", err)
	}

	// Upload the contract text as a document.
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fileWriter, err := writer.CreateFormFile("file", "contract.txt")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fileWriter.Write([]byte(sampleContract)); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/contracts/"+contract.ID+"/documents", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	addGuestHeader(req)
	uploadResp := httptest.NewRecorder()
	router.ServeHTTP(uploadResp, req)
	if uploadResp.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body %s", uploadResp.Code, uploadResp.Body.String())
	}

	// Start the analysis.
	resp = doJSON(t, router, http.MethodPost, "/api/v1/analysis/contracts/"+contract.ID, "")
	if resp.Code != http.StatusAccepted {
		t.Fatalf("start analysis = %d, body %s", resp.Code, resp.Body.String())
	}
	var started struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode analysis: %v", err)
	}
	if started.Status != "pending" {
		t.Fatalf("status = %q, want pending", started.Status)
	}

	// Poll until completion; the mock model answers immediately.
	var final struct {
		Status string `json:"status"`
		Result *struct {
			SafetyScore int `json:"safetyScore"`
			Risks       []struct {
				ID       string `json:"id"`
				Type     string `json:"type"`
				Severity string `json:"severity"`
			} `json:"risks"`
		} `json:"result"`
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("analysis never completed")
		}
		resp = doJSON(t, router, http.MethodGet, "/api/v1/analysis/"+started.ID, "")
		if resp.Code == http.StatusTooManyRequests {
			time.Sleep(200 * time.Millisecond)
			continue
		}
		if resp.Code != http.StatusOK {
			t.Fatalf("poll = %d, body %s", resp.Code, resp.Body.String())
		}
		if err := json.Unmarshal(resp.Body.Bytes(), &final); err != nil {
			t.Fatalf("decode poll body: %v", err)
		}
		if final.Status == "completed" || final.Status == "failed" {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if final.Status != "completed" {
		t.Fatalf("status = %q, body %s", final.Status, resp.Body.String())
	}
	if final.Result == nil || len(final.Result.Risks) == 0 {
		t.Fatalf("completed analysis has no risks: %s", resp.Body.String())
	}
	if final.Result.SafetyScore < 0 || final.Result.SafetyScore > 100 {
		t.Errorf("score %d outside [0,100]", final.Result.SafetyScore)
	}
	for _, r := range final.Result.Risks {
		if r.Type == "" || r.Severity == "" {
			t.Errorf("risk missing fields: %+v", r)
		}
	}

	// The report download follows completion.
	resp = doJSON(t, router, http.MethodGet, "/api/v1/contracts/"+contract.ID+"/report.xlsx", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("report = %d, body %s", resp.Code, resp.Body.String())
	}
	if ct := resp.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("report content type = %q", ct)
	}
}

func TestQuickAnalyzeEndToEnd(t *testing.T) {
	app := newTestApp(t)

	resp := doJSON(t, app.Router, http.MethodPost, "/api/v1/ai/quick-analyze",
		`{"contract_text":"`+strings.ReplaceAll(sampleContract, "\n", " ")+`","business_type":"프리랜서"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("quick analyze = %d, body %s", resp.Code, resp.Body.String())
	}
	var result struct {
		SafetyScore int `json:"safetyScore"`
		Risks       []struct {
			ID string `json:"id"`
		} `json:"risks"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Risks) == 0 {
		t.Error("quick analyze returned no risks")
	}
}

func TestContractTooShortFailsWithoutModel(t *testing.T) {
	app := newTestApp(t)

	resp := doJSON(t, app.Router, http.MethodPost, "/api/v1/ai/quick-analyze", `{"contract_text":"너무 짧은 계약"}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("quick analyze short = %d, body %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), "CONTRACT_TOO_SHORT") {
		t.Errorf("body missing CONTRACT_TOO_SHORT: %s", resp.Body.String())
	}
}
