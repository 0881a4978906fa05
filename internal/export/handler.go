package export

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"contract-backend/internal/analyses"
	"contract-backend/internal/contracts"
	"contract-backend/internal/shared/server/middleware"
	"contract-backend/internal/shared/server/respond"
)

// Handler serves analysis reports.
type Handler struct {
	Contracts *contracts.Service
	Analyses  *analyses.Service
}

// NewHandler constructs a Handler.
func NewHandler(contractSvc *contracts.Service, analysisSvc *analyses.Service) *Handler {
	return &Handler{Contracts: contractSvc, Analyses: analysisSvc}
}

// RegisterRoutes attaches export routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/contracts/:id/report.xlsx", h.report)
}

func (h *Handler) report(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	contractID := c.Param("id")

	contract, err := h.Contracts.Get(c.Request.Context(), userID, contractID)
	if err != nil {
		switch {
		case errors.Is(err, contracts.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "contract not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch contract", nil)
		}
		return
	}

	analysis, err := h.Analyses.LatestForContract(c.Request.Context(), userID, contractID)
	if err != nil {
		switch {
		case errors.Is(err, analyses.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "no analysis for this contract", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch analysis", nil)
		}
		return
	}
	if analysis.Status != analyses.StatusCompleted || analysis.Result == nil {
		respond.Error(c, http.StatusConflict, "analysis_incomplete", "analysis has not completed yet", nil)
		return
	}

	payload, err := BuildReportXLSX(contract, analysis)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to build report", nil)
		return
	}

	fileName := fmt.Sprintf("%s-report.xlsx", contractID)
	c.Header("Content-Disposition", `attachment; filename="`+fileName+`"`)
	c.Data(http.StatusOK,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		payload)
}
