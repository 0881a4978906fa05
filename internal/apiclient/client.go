// Package apiclient is the typed HTTP client for the contract review API. It
// maps transport and status failures onto a fixed error taxonomy so callers
// can decide between surfacing an error and degrading to local analysis.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultPollInterval matches the polling contract: one status request every
// two seconds.
const DefaultPollInterval = 2 * time.Second

// Contract mirrors the server's contract resource.
type Contract struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	PartyName    string    `json:"partyName"`
	ContractType string    `json:"contractType"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Document mirrors the server's uploaded-document resource.
type Document struct {
	ID         string `json:"id"`
	ContractID string `json:"contractId"`
	FileName   string `json:"fileName"`
	MimeType   string `json:"mimeType"`
	SizeBytes  int64  `json:"sizeBytes"`
}

// Risk is one reported risky clause as the server serializes it.
type Risk struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion,omitempty"`
	Clause      string `json:"clause,omitempty"`
}

// AnalysisResult is the terminal payload of a completed analysis.
type AnalysisResult struct {
	SafetyScore int      `json:"safetyScore"`
	Summary     string   `json:"summary"`
	Risks       []Risk   `json:"risks"`
	Questions   []string `json:"questions"`
	Fallback    bool     `json:"fallback,omitempty"`
}

// Analysis mirrors the server's analysis resource.
type Analysis struct {
	ID           string          `json:"id"`
	ContractID   string          `json:"contractId"`
	Status       string          `json:"status"`
	Result       *AnalysisResult `json:"result,omitempty"`
	ErrorCode    *string         `json:"errorCode,omitempty"`
	ErrorMessage *string         `json:"errorMessage,omitempty"`
}

// UserContext personalizes an analysis request.
type UserContext struct {
	BusinessType        string `json:"businessType,omitempty"`
	BusinessDescription string `json:"businessDescription,omitempty"`
	LegalConcerns       string `json:"legalConcerns,omitempty"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client talks to the contract review API.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
	guestID string
	poll    *rate.Limiter
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sets the bearer token for authenticated requests.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithGuestID sets the guest identity header for anonymous usage.
func WithGuestID(id string) Option {
	return func(c *Client) { c.guestID = id }
}

// WithPollInterval overrides the pacing applied to GetAnalysis.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) {
		c.poll = rate.NewLimiter(rate.Every(interval), 1)
	}
}

// NewClient constructs a client against the API base URL, e.g.
// "https://api.example.com/api/v1".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		poll:    rate.NewLimiter(rate.Every(DefaultPollInterval), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateContract registers a contract record.
func (c *Client) CreateContract(ctx context.Context, title, partyName, contractType string) (Contract, error) {
	var contract Contract
	err := c.doJSON(ctx, http.MethodPost, "/contracts", map[string]string{
		"title":        title,
		"partyName":    partyName,
		"contractType": contractType,
	}, &contract)
	return contract, err
}

// UploadDocument attaches a file to a contract via multipart upload.
func (c *Client) UploadDocument(ctx context.Context, contractID, fileName string, data []byte) (Document, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return Document{}, &APIError{Code: ParseError, Message: "build multipart body", Err: err}
	}
	if _, err := part.Write(data); err != nil {
		return Document{}, &APIError{Code: ParseError, Message: "build multipart body", Err: err}
	}
	if err := mw.Close(); err != nil {
		return Document{}, &APIError{Code: ParseError, Message: "build multipart body", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/contracts/"+contractID+"/documents", &body)
	if err != nil {
		return Document{}, &APIError{Code: InvalidRequest, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var doc Document
	if err := c.send(req, &doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// StartAnalysis enqueues an analysis for the contract's latest document.
func (c *Client) StartAnalysis(ctx context.Context, contractID string, userCtx UserContext) (Analysis, error) {
	var analysis Analysis
	err := c.doJSON(ctx, http.MethodPost, "/analysis/contracts/"+contractID, userCtx, &analysis)
	return analysis, err
}

// GetAnalysis fetches analysis status. Calls are paced to the poll interval
// so a tight caller loop cannot hammer the server.
func (c *Client) GetAnalysis(ctx context.Context, analysisID string) (Analysis, error) {
	if err := c.poll.Wait(ctx); err != nil {
		return Analysis{}, &APIError{Code: NetworkError, Message: "poll wait", Err: err}
	}
	var analysis Analysis
	err := c.doJSON(ctx, http.MethodGet, "/analysis/"+analysisID, nil, &analysis)
	return analysis, err
}

// QuickAnalyze analyzes pasted text synchronously without a contract record.
func (c *Client) QuickAnalyze(ctx context.Context, text string, userCtx UserContext) (AnalysisResult, error) {
	var result AnalysisResult
	err := c.doJSON(ctx, http.MethodPost, "/ai/quick-analyze", map[string]string{
		"contract_text":        text,
		"business_type":        userCtx.BusinessType,
		"business_description": userCtx.BusinessDescription,
		"legal_concerns":       userCtx.LegalConcerns,
	}, &result)
	return result, err
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return &APIError{Code: InvalidRequest, Message: "encode request", Err: err}
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &APIError{Code: InvalidRequest, Message: "build request", Err: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else if c.guestID != "" {
		req.Header.Set("X-Guest-Id", c.guestID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Code: NetworkError, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return &APIError{Code: NetworkError, Message: "read response", Err: err}
	}

	if resp.StatusCode >= 400 {
		return classifyStatus(resp.StatusCode, raw)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &APIError{
			Code:    ParseError,
			Status:  resp.StatusCode,
			Message: "decode response",
			Err:     err,
		}
	}
	return nil
}

func classifyStatus(status int, raw []byte) *APIError {
	var envelope errorEnvelope
	message := ""
	if err := json.Unmarshal(raw, &envelope); err == nil {
		message = envelope.Error.Message
	}
	if message == "" {
		message = strings.TrimSpace(string(raw))
		if len(message) > 200 {
			message = message[:200]
		}
	}

	var code ErrorCode
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		code = AuthRequired
	case status == http.StatusTooManyRequests:
		code = RateLimited
	case status == http.StatusRequestEntityTooLarge:
		code = FileTooLarge
	case status >= 400 && status < 500:
		code = InvalidRequest
	default:
		code = ServerError
	}
	return &APIError{
		Code:    code,
		Status:  status,
		Message: fmt.Sprintf("%s (HTTP %d)", message, status),
	}
}
