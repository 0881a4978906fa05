package analyses

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"contract-backend/internal/contracts"
	"contract-backend/internal/shared/server/middleware"
	"contract-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the analyses service.
type Handler struct {
	Svc     *Service
	limiter *pollLimiter
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{
		Svc:     svc,
		limiter: newPollLimiter(10*time.Second, 10),
	}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analysis/contracts/:id", h.start)
	rg.GET("/analysis/:id", h.get)
	rg.GET("/analysis", h.list)
	rg.POST("/ai/quick-analyze", h.quickAnalyze)
}

type userContextRequest struct {
	BusinessType        string `json:"businessType"`
	BusinessDescription string `json:"businessDescription"`
	LegalConcerns       string `json:"legalConcerns"`
}

func (r userContextRequest) toUserContext() UserContext {
	return UserContext{
		BusinessType:        r.BusinessType,
		BusinessDescription: r.BusinessDescription,
		LegalConcerns:       r.LegalConcerns,
	}
}

// riskView is the wire shape of one risk. Severity mirrors the detection
// level; Type carries the risk title the client renders as a heading.
type riskView struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion,omitempty"`
	Clause      string `json:"clause,omitempty"`
}

type resultView struct {
	SafetyScore int        `json:"safetyScore"`
	Summary     string     `json:"summary"`
	Risks       []riskView `json:"risks"`
	Questions   []string   `json:"questions"`
	Fallback    bool       `json:"fallback,omitempty"`
}

type analysisView struct {
	ID               string      `json:"id"`
	ContractID       string      `json:"contractId"`
	Status           string      `json:"status"`
	Result           *resultView `json:"result,omitempty"`
	ErrorCode        *string     `json:"errorCode,omitempty"`
	ErrorMessage     *string     `json:"errorMessage,omitempty"`
	ProcessingTimeMs int64       `json:"processingTimeMs,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
	CompletedAt      *time.Time  `json:"completedAt,omitempty"`
}

func toResultView(result *Result) *resultView {
	if result == nil {
		return nil
	}
	risks := make([]riskView, 0, len(result.Risks))
	for _, r := range result.Risks {
		risks = append(risks, riskView{
			ID:          r.ID,
			Type:        r.Title,
			Severity:    r.Level,
			Description: r.Description,
			Suggestion:  r.Suggestion,
			Clause:      r.Clause,
		})
	}
	questions := result.Questions
	if questions == nil {
		questions = []string{}
	}
	return &resultView{
		SafetyScore: result.SafetyScore,
		Summary:     result.Summary,
		Risks:       risks,
		Questions:   questions,
		Fallback:    result.Fallback,
	}
}

func toAnalysisView(a Analysis) analysisView {
	return analysisView{
		ID:               a.ID,
		ContractID:       a.ContractID,
		Status:           a.Status,
		Result:           toResultView(a.Result),
		ErrorCode:        a.ErrorCode,
		ErrorMessage:     a.ErrorMessage,
		ProcessingTimeMs: a.ProcessingTimeMs,
		CreatedAt:        a.CreatedAt,
		CompletedAt:      a.CompletedAt,
	}
}

func (h *Handler) start(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	contractID := c.Param("id")

	var req userContextRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
			return
		}
	}

	ctx := WithRequestID(c.Request.Context(), c.GetString("requestId"))
	analysis, err := h.Svc.Create(ctx, userID, contractID, req.toUserContext())
	if err != nil {
		switch {
		case isNotFound(err):
			respond.Error(c, http.StatusNotFound, "not_found", "contract not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to start analysis", nil)
		}
		return
	}

	respond.JSON(c, http.StatusAccepted, toAnalysisView(analysis))
}

func (h *Handler) get(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	analysisID := c.Param("id")

	if !h.limiter.Allow(userID + ":" + analysisID) {
		respond.Error(c, http.StatusTooManyRequests, "rate_limited", "polling too fast; retry shortly", nil)
		return
	}

	analysis, err := h.Svc.Get(c.Request.Context(), userID, analysisID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch analysis", nil)
		}
		return
	}

	respond.OK(c, toAnalysisView(analysis))
}

func (h *Handler) list(c *gin.Context) {
	if middleware.IsGuest(c) {
		respond.Error(c, http.StatusUnauthorized, "login_required", "Login required to view history", nil)
		return
	}
	userID := middleware.UserIDFromContext(c)

	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	analyses, err := h.Svc.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list analyses", nil)
		return
	}

	views := make([]analysisView, 0, len(analyses))
	for _, a := range analyses {
		views = append(views, toAnalysisView(a))
	}
	respond.OK(c, views)
}

type quickAnalyzeRequest struct {
	ContractText        string `json:"contract_text"`
	BusinessType        string `json:"business_type"`
	BusinessDescription string `json:"business_description"`
	LegalConcerns       string `json:"legal_concerns"`
}

func (h *Handler) quickAnalyze(c *gin.Context) {
	var req quickAnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	ctx := WithRequestID(c.Request.Context(), c.GetString("requestId"))
	result, err := h.Svc.QuickAnalyze(ctx, req.ContractText, UserContext{
		BusinessType:        req.BusinessType,
		BusinessDescription: req.BusinessDescription,
		LegalConcerns:       req.LegalConcerns,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrContractTooShort):
			respond.Error(c, http.StatusBadRequest, ErrorCodeContractTooShort, "contract text is too short to analyze", nil)
		case classifyFailure(err) == ErrorCodeLLMTimeout:
			respond.Error(c, http.StatusGatewayTimeout, "llm_timeout", "analysis timed out; try again", nil)
		default:
			respond.Error(c, http.StatusBadGateway, "llm_error", "analysis is temporarily unavailable", nil)
		}
		return
	}

	respond.OK(c, toResultView(&result))
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, contracts.ErrNotFound)
}
