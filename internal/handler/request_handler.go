package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/civicdesk/urbanism-api/internal/models"
	"github.com/civicdesk/urbanism-api/internal/service"
	appErrors "github.com/civicdesk/urbanism-api/pkg/errors"
	"github.com/civicdesk/urbanism-api/pkg/response"
)

type requestService interface {
	Create(ctx context.Context, citizenID string, payload service.CreateRequestPayload) (*models.Request, error)
	Update(ctx context.Context, citizenID, requestID string, payload service.CreateRequestPayload) (*models.Request, error)
	Submit(ctx context.Context, citizenID, requestID string) (*models.Request, error)
	Get(ctx context.Context, requestID string, claims *models.JWTClaims) (*models.Request, error)
	List(ctx context.Context, filter models.RequestFilter, claims *models.JWTClaims) ([]models.Request, int, error)
	StartReview(ctx context.Context, clerkID, requestID string) (*models.Request, error)
	Decide(ctx context.Context, clerkID, requestID string, payload service.DecisionPayload) (*models.Request, error)
}

// RequestHandler exposes permit request lifecycle endpoints.
type RequestHandler struct {
	service requestService
}

// NewRequestHandler builds a new handler.
func NewRequestHandler(service requestService) *RequestHandler {
	return &RequestHandler{service: service}
}

// List godoc
// @Summary List requests visible to the caller
// @Tags Requests
// @Produce json
// @Param status query string false "Status filter"
// @Param type query string false "Request type filter"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /requests [get]
func (h *RequestHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.RequestFilter{
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "pageSize", 20),
	}
	if status := c.Query("status"); status != "" {
		filter.Statuses = []models.RequestStatus{models.RequestStatus(status)}
	}
	if requestType := c.Query("type"); requestType != "" {
		t := models.RequestType(requestType)
		filter.Type = &t
	}

	requests, total, err := h.service.List(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}

// Get godoc
// @Summary Fetch one request
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	req, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, req)
}

// Create godoc
// @Summary Open a new draft request
// @Tags Requests
// @Accept json
// @Produce json
// @Param payload body service.CreateRequestPayload true "Request payload"
// @Success 201 {object} response.Envelope
// @Router /requests [post]
func (h *RequestHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload service.CreateRequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid request payload"))
		return
	}
	req, err := h.service.Create(c.Request.Context(), claims.UserID, payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, req)
}

// Update godoc
// @Summary Edit an owned draft
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body service.CreateRequestPayload true "Request payload"
// @Success 200 {object} response.Envelope
// @Router /requests/{id} [put]
func (h *RequestHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload service.CreateRequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid request payload"))
		return
	}
	req, err := h.service.Update(c.Request.Context(), claims.UserID, c.Param("id"), payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, req)
}

// Submit godoc
// @Summary Submit an owned draft for validation
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/submit [post]
func (h *RequestHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	req, err := h.service.Submit(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, req)
}

// StartReview godoc
// @Summary Move an assigned request into review
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/review [post]
func (h *RequestHandler) StartReview(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	req, err := h.service.StartReview(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, req)
}

// Decide godoc
// @Summary Approve or reject an assigned request
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body service.DecisionPayload true "Decision payload"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/decision [post]
func (h *RequestHandler) Decide(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload service.DecisionPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}
	req, err := h.service.Decide(c.Request.Context(), claims.UserID, c.Param("id"), payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, req)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}
