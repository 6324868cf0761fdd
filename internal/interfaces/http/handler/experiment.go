package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	experimentapp "github.com/marketplace/backend/internal/application/experiment"
	appdto "github.com/marketplace/backend/internal/application/experiment/dto"
	"github.com/marketplace/backend/internal/domain/shared"
	httpdto "github.com/marketplace/backend/internal/interfaces/http/dto"
	"github.com/marketplace/backend/internal/interfaces/http/middleware"
)

// ExperimentHandler handles experiment registry HTTP requests
type ExperimentHandler struct {
	BaseHandler
	registry *experimentapp.RegistryService
}

// NewExperimentHandler creates a new ExperimentHandler
func NewExperimentHandler(registry *experimentapp.RegistryService) *ExperimentHandler {
	return &ExperimentHandler{registry: registry}
}

// ExperimentListFilter binds the experiment list query parameters
type ExperimentListFilter struct {
	httpdto.ListRequest
	Status string `form:"status"`
	Type   string `form:"type"`
}

// bindExperimentID parses the :id path parameter
func bindExperimentID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// CreateExperiment godoc
//
//	@Summary	Create a new experiment
//	@Tags		experiments
//	@Accept		json
//	@Produce	json
//	@Param		request	body		dto.CreateExperimentRequest	true	"Experiment creation request"
//	@Success	201		{object}	dto.Response{data=dto.ExperimentResponse}
//	@Failure	400		{object}	dto.Response{error=dto.ErrorInfo}
//	@Router		/experiments [post]
func (h *ExperimentHandler) CreateExperiment(c *gin.Context) {
	var req appdto.CreateExperimentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	result, err := h.registry.CreateExperiment(c.Request.Context(), req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, result)
}

// ListExperiments godoc
//
//	@Summary	List experiments
//	@Tags		experiments
//	@Produce	json
//	@Param		status	query		string	false	"Filter by lifecycle status"
//	@Param		type	query		string	false	"Filter by experiment type"
//	@Success	200		{object}	dto.Response{data=[]dto.ExperimentResponse}
//	@Router		/experiments [get]
func (h *ExperimentHandler) ListExperiments(c *gin.Context) {
	var query ExperimentListFilter
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	filter := shared.DefaultFilter()
	if query.Page > 0 {
		filter.Page = query.Page
	}
	if query.PageSize > 0 {
		filter.PageSize = query.PageSize
	}
	if query.OrderBy != "" {
		filter.OrderBy = query.OrderBy
	}
	if query.OrderDir != "" {
		filter.OrderDir = query.OrderDir
	}
	filter.Search = query.Search
	if query.Type != "" {
		filter.Filters["type"] = query.Type
	}

	result, err := h.registry.ListExperiments(c.Request.Context(), query.Status, filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.SuccessWithMeta(c, result.Items, result.Total, filter.Page, filter.PageSize)
}

// GetExperiment godoc
//
//	@Summary	Get an experiment by ID
//	@Tags		experiments
//	@Produce	json
//	@Param		id	path		string	true	"Experiment ID"
//	@Success	200	{object}	dto.Response{data=dto.ExperimentResponse}
//	@Failure	404	{object}	dto.Response{error=dto.ErrorInfo}
//	@Router		/experiments/{id} [get]
func (h *ExperimentHandler) GetExperiment(c *gin.Context) {
	id, ok := bindExperimentID(c)
	if !ok {
		h.BadRequest(c, "Invalid experiment ID")
		return
	}

	result, err := h.registry.GetExperiment(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// UpdateExperiment godoc
//
//	@Summary	Update a draft experiment
//	@Tags		experiments
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string						true	"Experiment ID"
//	@Param		request	body		dto.UpdateExperimentRequest	true	"Fields to update"
//	@Success	200		{object}	dto.Response{data=dto.ExperimentResponse}
//	@Router		/experiments/{id} [put]
func (h *ExperimentHandler) UpdateExperiment(c *gin.Context) {
	id, ok := bindExperimentID(c)
	if !ok {
		h.BadRequest(c, "Invalid experiment ID")
		return
	}

	var req appdto.UpdateExperimentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.registry.UpdateExperiment(c.Request.Context(), id, req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// DeleteExperiment godoc
//
//	@Summary	Delete an experiment and its assignments
//	@Tags		experiments
//	@Param		id	path	string	true	"Experiment ID"
//	@Success	204
//	@Router		/experiments/{id} [delete]
func (h *ExperimentHandler) DeleteExperiment(c *gin.Context) {
	id, ok := bindExperimentID(c)
	if !ok {
		h.BadRequest(c, "Invalid experiment ID")
		return
	}

	if err := h.registry.DeleteExperiment(c.Request.Context(), id); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.NoContent(c)
}

// StartExperiment transitions an experiment to running
func (h *ExperimentHandler) StartExperiment(c *gin.Context) {
	h.lifecycle(c, h.registry.StartExperiment)
}

// PauseExperiment suspends a running experiment
func (h *ExperimentHandler) PauseExperiment(c *gin.Context) {
	h.lifecycle(c, h.registry.PauseExperiment)
}

// CompleteExperiment ends an experiment
func (h *ExperimentHandler) CompleteExperiment(c *gin.Context) {
	h.lifecycle(c, h.registry.CompleteExperiment)
}

// ArchiveExperiment retires a non-running experiment
func (h *ExperimentHandler) ArchiveExperiment(c *gin.Context) {
	h.lifecycle(c, h.registry.ArchiveExperiment)
}

// lifecycle runs one of the status transition operations
func (h *ExperimentHandler) lifecycle(c *gin.Context, op func(ctx context.Context, id uuid.UUID) (*appdto.ExperimentResponse, error)) {
	id, ok := bindExperimentID(c)
	if !ok {
		h.BadRequest(c, "Invalid experiment ID")
		return
	}

	result, err := op(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// DeclareWinner godoc
//
//	@Summary	Declare the winning variant of a completed experiment
//	@Tags		experiments
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string					true	"Experiment ID"
//	@Param		request	body		dto.DeclareWinnerRequest	true	"Winning variant"
//	@Success	200		{object}	dto.Response{data=dto.ExperimentResponse}
//	@Router		/experiments/{id}/winner [post]
func (h *ExperimentHandler) DeclareWinner(c *gin.Context) {
	id, ok := bindExperimentID(c)
	if !ok {
		h.BadRequest(c, "Invalid experiment ID")
		return
	}

	var req appdto.DeclareWinnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.registry.DeclareWinner(c.Request.Context(), id, req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// GetExperimentResults godoc
//
//	@Summary	Get aggregated per-variant results
//	@Tags		experiments
//	@Produce	json
//	@Param		id	path		string	true	"Experiment ID"
//	@Success	200	{object}	dto.Response{data=dto.ExperimentResultsResponse}
//	@Router		/experiments/{id}/results [get]
func (h *ExperimentHandler) GetExperimentResults(c *gin.Context) {
	id, ok := bindExperimentID(c)
	if !ok {
		h.BadRequest(c, "Invalid experiment ID")
		return
	}

	result, err := h.registry.GetExperimentResults(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}
