package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	experimentapp "github.com/marketplace/backend/internal/application/experiment"
	appdto "github.com/marketplace/backend/internal/application/experiment/dto"
	"github.com/marketplace/backend/internal/domain/experiment"
	"github.com/marketplace/backend/internal/interfaces/http/middleware"
)

// AnalysisHandler handles statistical analysis HTTP requests
type AnalysisHandler struct {
	BaseHandler
	analysis *experimentapp.AnalysisService
}

// NewAnalysisHandler creates a new AnalysisHandler
func NewAnalysisHandler(analysis *experimentapp.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{analysis: analysis}
}

// GetSignificance godoc
//
//	@Summary	Run the two-proportion z-test against the control variant
//	@Tags		analysis
//	@Produce	json
//	@Param		id	path		string	true	"Experiment ID"
//	@Success	200	{object}	dto.Response{data=dto.SignificanceResponse}
//	@Router		/experiments/{id}/significance [get]
func (h *AnalysisHandler) GetSignificance(c *gin.Context) {
	id, ok := bindExperimentID(c)
	if !ok {
		h.BadRequest(c, "Invalid experiment ID")
		return
	}

	result, err := h.analysis.CalculateStatisticalSignificance(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// CalculateSampleSize godoc
//
//	@Summary	Estimate the per-variant sample size for an experiment design
//	@Tags		analysis
//	@Accept		json
//	@Produce	json
//	@Param		request	body		dto.SampleSizeRequest	true	"Design parameters"
//	@Success	200		{object}	dto.Response{data=dto.SampleSizeResponse}
//	@Router		/analysis/sample-size [post]
func (h *AnalysisHandler) CalculateSampleSize(c *gin.Context) {
	var req appdto.SampleSizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	h.Success(c, h.analysis.CalculateRequiredSampleSize(req))
}

// EstimateCompletion godoc
//
//	@Summary	Project when an experiment reaches its required sample size
//	@Tags		analysis
//	@Produce	json
//	@Param		id				path		string	true	"Experiment ID"
//	@Param		daily_traffic	query		number	true	"Expected subjects per day"
//	@Success	200				{object}	dto.Response{data=dto.CompletionEstimateResponse}
//	@Router		/experiments/{id}/completion-estimate [get]
func (h *AnalysisHandler) EstimateCompletion(c *gin.Context) {
	id, ok := bindExperimentID(c)
	if !ok {
		h.BadRequest(c, "Invalid experiment ID")
		return
	}

	dailyTraffic, err := strconv.ParseFloat(c.DefaultQuery("daily_traffic", "0"), 64)
	if err != nil {
		h.BadRequest(c, "Invalid daily_traffic value")
		return
	}

	result, err := h.analysis.EstimateTimeToCompletion(c.Request.Context(), id, dailyTraffic)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// GetMetricsOverTime godoc
//
//	@Summary	Get impression and conversion series bucketed by interval
//	@Tags		analysis
//	@Produce	json
//	@Param		id			path		string	true	"Experiment ID"
//	@Param		interval	query		string	false	"Bucket interval: day, week or month"	default(day)
//	@Success	200			{object}	dto.Response{data=dto.MetricsOverTimeResponse}
//	@Router		/experiments/{id}/metrics [get]
func (h *AnalysisHandler) GetMetricsOverTime(c *gin.Context) {
	id, ok := bindExperimentID(c)
	if !ok {
		h.BadRequest(c, "Invalid experiment ID")
		return
	}

	interval := experiment.MetricInterval(c.DefaultQuery("interval", string(experiment.IntervalDay)))

	result, err := h.analysis.GetMetricsOverTime(c.Request.Context(), id, interval)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}
