package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	experimentapp "github.com/marketplace/backend/internal/application/experiment"
	appdto "github.com/marketplace/backend/internal/application/experiment/dto"
	"github.com/marketplace/backend/internal/interfaces/http/middleware"
)

// TrackingHandler handles assignment and event recording HTTP requests
type TrackingHandler struct {
	BaseHandler
	assignments *experimentapp.AssignmentService
	tracking    *experimentapp.TrackingService
}

// NewTrackingHandler creates a new TrackingHandler
func NewTrackingHandler(
	assignments *experimentapp.AssignmentService,
	tracking *experimentapp.TrackingService,
) *TrackingHandler {
	return &TrackingHandler{
		assignments: assignments,
		tracking:    tracking,
	}
}

// subjectIdentity resolves the caller identity. Body values win over the
// X-User-ID and X-Session-ID headers.
func subjectIdentity(c *gin.Context, userID, sessionID *string) (*string, *string) {
	if userID == nil || *userID == "" {
		if headerUser := middleware.GetUserID(c); headerUser != "" {
			userID = &headerUser
		}
	}
	if sessionID == nil || *sessionID == "" {
		if headerSession := middleware.GetSessionID(c); headerSession != "" {
			sessionID = &headerSession
		}
	}
	return userID, sessionID
}

// bindAssignmentID parses the :id path parameter
func bindAssignmentID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Assign godoc
//
//	@Summary	Get or create the caller's variant assignment for an experiment
//	@Tags		assignments
//	@Accept		json
//	@Produce	json
//	@Param		request	body		dto.AssignRequest	true	"Assignment request"
//	@Success	200		{object}	dto.Response{data=dto.AssignmentResponse}
//	@Failure	422		{object}	dto.Response{error=dto.ErrorInfo}
//	@Router		/assignments [post]
func (h *TrackingHandler) Assign(c *gin.Context) {
	var req appdto.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	experimentID, err := uuid.Parse(req.ExperimentID)
	if err != nil {
		h.BadRequest(c, "Invalid experiment ID")
		return
	}

	userID, sessionID := subjectIdentity(c, req.UserID, req.SessionID)

	result, err := h.assignments.GetOrCreateAssignment(c.Request.Context(), experimentID, userID, sessionID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// ListSubjectAssignments godoc
//
//	@Summary	List the caller's assignments across experiments
//	@Tags		assignments
//	@Produce	json
//	@Success	200	{object}	dto.Response{data=[]dto.AssignmentResponse}
//	@Router		/assignments [get]
func (h *TrackingHandler) ListSubjectAssignments(c *gin.Context) {
	userID, sessionID := subjectIdentity(c, nil, nil)

	result, err := h.assignments.GetSubjectAssignments(c.Request.Context(), userID, sessionID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// GetActiveExperiments godoc
//
//	@Summary	List running experiments of one type
//	@Tags		assignments
//	@Produce	json
//	@Param		type	query		string	true	"Experiment type"
//	@Success	200		{object}	dto.Response
//	@Router		/experiments/active [get]
func (h *TrackingHandler) GetActiveExperiments(c *gin.Context) {
	expType := c.Query("type")
	if expType == "" {
		h.BadRequest(c, "Experiment type is required")
		return
	}

	experiments, err := h.assignments.GetActiveExperiments(c.Request.Context(), expType)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	responses := make([]*appdto.ExperimentResponse, 0, len(experiments))
	for i := range experiments {
		responses = append(responses, appdto.ToExperimentResponse(&experiments[i]))
	}
	h.Success(c, responses)
}

// GetVariantConfiguration godoc
//
//	@Summary	Resolve the caller's variant configuration per running experiment
//	@Tags		assignments
//	@Produce	json
//	@Param		type	query		string	true	"Experiment type"
//	@Success	200		{object}	dto.Response{data=map[string]dto.VariantConfiguration}
//	@Router		/experiments/configuration [get]
func (h *TrackingHandler) GetVariantConfiguration(c *gin.Context) {
	expType := c.Query("type")
	if expType == "" {
		h.BadRequest(c, "Experiment type is required")
		return
	}

	userID, sessionID := subjectIdentity(c, nil, nil)

	configurations := h.assignments.GetVariantConfiguration(c.Request.Context(), expType, userID, sessionID)
	if configurations == nil {
		configurations = map[string]appdto.VariantConfiguration{}
	}
	h.Success(c, configurations)
}

// TrackImpression godoc
//
//	@Summary	Record that the assigned variant was shown
//	@Tags		tracking
//	@Param		id	path	string	true	"Assignment ID"
//	@Success	204
//	@Router		/assignments/{id}/impression [post]
func (h *TrackingHandler) TrackImpression(c *gin.Context) {
	id, ok := bindAssignmentID(c)
	if !ok {
		h.BadRequest(c, "Invalid assignment ID")
		return
	}

	if err := h.tracking.TrackImpression(c.Request.Context(), id); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.NoContent(c)
}

// TrackInteraction godoc
//
//	@Summary	Record a click-level interaction
//	@Tags		tracking
//	@Accept		json
//	@Param		id	path	string	true	"Assignment ID"
//	@Success	204
//	@Router		/assignments/{id}/interaction [post]
func (h *TrackingHandler) TrackInteraction(c *gin.Context) {
	id, ok := bindAssignmentID(c)
	if !ok {
		h.BadRequest(c, "Invalid assignment ID")
		return
	}

	var req appdto.TrackInteractionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BadRequest(c, err.Error())
			return
		}
	}

	if err := h.tracking.TrackInteraction(c.Request.Context(), id, req); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.NoContent(c)
}

// TrackConversion godoc
//
//	@Summary	Record a conversion with optional revenue value
//	@Tags		tracking
//	@Accept		json
//	@Param		id	path	string	true	"Assignment ID"
//	@Success	204
//	@Router		/assignments/{id}/conversion [post]
func (h *TrackingHandler) TrackConversion(c *gin.Context) {
	id, ok := bindAssignmentID(c)
	if !ok {
		h.BadRequest(c, "Invalid assignment ID")
		return
	}

	var req appdto.TrackConversionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BadRequest(c, err.Error())
			return
		}
	}

	if err := h.tracking.TrackConversion(c.Request.Context(), id, req); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.NoContent(c)
}

// TrackCustomEvent godoc
//
//	@Summary	Record a named custom event
//	@Tags		tracking
//	@Accept		json
//	@Param		id		path	string						true	"Assignment ID"
//	@Param		request	body	dto.TrackCustomEventRequest	true	"Event payload"
//	@Success	204
//	@Router		/assignments/{id}/events [post]
func (h *TrackingHandler) TrackCustomEvent(c *gin.Context) {
	id, ok := bindAssignmentID(c)
	if !ok {
		h.BadRequest(c, "Invalid assignment ID")
		return
	}

	var req appdto.TrackCustomEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	if err := h.tracking.TrackCustomEvent(c.Request.Context(), id, req); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.NoContent(c)
}
