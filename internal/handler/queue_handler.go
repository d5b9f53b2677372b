package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/civicdesk/urbanism-api/internal/dto"
	appErrors "github.com/civicdesk/urbanism-api/pkg/errors"
	"github.com/civicdesk/urbanism-api/pkg/response"
)

type priorityRanker interface {
	GetPrioritizedRequests(ctx context.Context) ([]dto.PrioritizedRequest, error)
}

type assignmentRunner interface {
	AutoAssignRequests(ctx context.Context) (*dto.AutoAssignReport, error)
	ClaimRequest(ctx context.Context, requestID, clerkID string) (*dto.ClaimResponse, error)
}

// QueueHandler exposes the prioritized work queue and assignment operations.
type QueueHandler struct {
	priorities  priorityRanker
	assignments assignmentRunner
}

// NewQueueHandler builds a new handler.
func NewQueueHandler(priorities priorityRanker, assignments assignmentRunner) *QueueHandler {
	return &QueueHandler{priorities: priorities, assignments: assignments}
}

// List godoc
// @Summary List open requests ranked by priority
// @Tags Queue
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /queue [get]
func (h *QueueHandler) List(c *gin.Context) {
	ranked, err := h.priorities.GetPrioritizedRequests(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, ranked)
}

// AutoAssign godoc
// @Summary Distribute unassigned requests across active clerks
// @Tags Queue
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /queue/auto-assign [post]
func (h *QueueHandler) AutoAssign(c *gin.Context) {
	report, err := h.assignments.AutoAssignRequests(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, report)
}

// Claim godoc
// @Summary Claim one unassigned request for the calling clerk
// @Tags Queue
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /queue/{id}/claim [post]
func (h *QueueHandler) Claim(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.assignments.ClaimRequest(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}
