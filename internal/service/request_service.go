package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/civicdesk/urbanism-api/internal/models"
	appErrors "github.com/civicdesk/urbanism-api/pkg/errors"
)

type requestStore interface {
	FindByID(ctx context.Context, id string) (*models.Request, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.Request, int, error)
	Create(ctx context.Context, req *models.Request) error
	UpdateDraft(ctx context.Context, req *models.Request) error
	UpdateStatus(ctx context.Context, id string, status models.RequestStatus, decisionNote string) error
}

// CreateRequestPayload describes a new permit application draft.
type CreateRequestPayload struct {
	Type          models.RequestType `json:"request_type" validate:"required"`
	Title         string             `json:"title" validate:"required,max=200"`
	Address       string             `json:"address" validate:"required,max=300"`
	Description   string             `json:"description" validate:"max=4000"`
	LegalDeadline *time.Time         `json:"legal_deadline,omitempty"`
}

// DecisionPayload carries the clerk's verdict on a reviewed request.
type DecisionPayload struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note" validate:"max=2000"`
}

// RequestService handles the permit request lifecycle.
type RequestService struct {
	requests  requestStore
	audits    auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRequestService creates a service instance.
func NewRequestService(requests requestStore, audits auditWriter, validate *validator.Validate, logger *zap.Logger) *RequestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestService{requests: requests, audits: audits, validator: validate, logger: logger}
}

// Create opens a new draft owned by the citizen.
func (s *RequestService) Create(ctx context.Context, citizenID string, payload CreateRequestPayload) (*models.Request, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload")
	}
	if !models.ValidRequestType(payload.Type) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown request type %q", payload.Type))
	}

	req := &models.Request{
		CitizenID:     citizenID,
		Type:          payload.Type,
		Status:        models.StatusDraft,
		Title:         payload.Title,
		Address:       payload.Address,
		Description:   payload.Description,
		LegalDeadline: payload.LegalDeadline,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}
	return req, nil
}

// Update rewrites an owned draft. Only drafts are editable.
func (s *RequestService) Update(ctx context.Context, citizenID, requestID string, payload CreateRequestPayload) (*models.Request, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload")
	}
	if !models.ValidRequestType(payload.Type) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown request type %q", payload.Type))
	}

	req, err := s.loadOwned(ctx, citizenID, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.StatusDraft {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only drafts can be edited")
	}

	req.Type = payload.Type
	req.Title = payload.Title
	req.Address = payload.Address
	req.Description = payload.Description
	req.LegalDeadline = payload.LegalDeadline
	if err := s.requests.UpdateDraft(ctx, req); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "draft was modified concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update request")
	}
	return req, nil
}

// Submit moves an owned draft into validation.
func (s *RequestService) Submit(ctx context.Context, citizenID, requestID string) (*models.Request, error) {
	req, err := s.loadOwned(ctx, citizenID, requestID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(req.Status, models.StatusPendingValidation) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot submit request in status %s", req.Status))
	}
	if err := s.requests.UpdateStatus(ctx, req.ID, models.StatusPendingValidation, ""); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit request")
	}
	req.Status = models.StatusPendingValidation
	s.recordLifecycleAudit(ctx, citizenID, req.ID, models.AuditActionRequestSubmit, req.Status)
	return req, nil
}

// Get returns one request, enforcing citizen ownership. Clerks and admins see
// everything.
func (s *RequestService) Get(ctx context.Context, requestID string, claims *models.JWTClaims) (*models.Request, error) {
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	if claims != nil && claims.Role == models.RoleCitizen && req.CitizenID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "request belongs to another citizen")
	}
	return req, nil
}

// List returns requests scoped by the caller's role: citizens see their own,
// clerks their assigned plus the open pool, admins everything.
func (s *RequestService) List(ctx context.Context, filter models.RequestFilter, claims *models.JWTClaims) ([]models.Request, int, error) {
	if claims != nil {
		switch claims.Role {
		case models.RoleCitizen:
			filter.CitizenID = claims.UserID
		case models.RoleClerk:
			if len(filter.Statuses) == 0 {
				filter.Statuses = models.OpenStatuses
			}
		}
	}
	requests, total, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	return requests, total, nil
}

// StartReview moves an assigned request from validation into review. Only the
// assigned clerk has mutation rights.
func (s *RequestService) StartReview(ctx context.Context, clerkID, requestID string) (*models.Request, error) {
	req, err := s.loadAssigned(ctx, clerkID, requestID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(req.Status, models.StatusInReview) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot start review from status %s", req.Status))
	}
	if err := s.requests.UpdateStatus(ctx, req.ID, models.StatusInReview, ""); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start review")
	}
	req.Status = models.StatusInReview
	return req, nil
}

// Decide finalises a request. Approval requires IN_REVIEW; rejection is also
// allowed straight from PENDING_VALIDATION.
func (s *RequestService) Decide(ctx context.Context, clerkID, requestID string, payload DecisionPayload) (*models.Request, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}
	req, err := s.loadAssigned(ctx, clerkID, requestID)
	if err != nil {
		return nil, err
	}

	target := models.StatusRejected
	if payload.Approve {
		target = models.StatusApproved
	}
	if !models.CanTransition(req.Status, target) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot move request from %s to %s", req.Status, target))
	}
	if err := s.requests.UpdateStatus(ctx, req.ID, target, payload.Note); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record decision")
	}
	req.Status = target
	req.DecisionNote = payload.Note
	s.recordLifecycleAudit(ctx, clerkID, req.ID, models.AuditActionRequestDecision, target)
	return req, nil
}

func (s *RequestService) loadOwned(ctx context.Context, citizenID, requestID string) (*models.Request, error) {
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	if req.CitizenID != citizenID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "request belongs to another citizen")
	}
	return req, nil
}

func (s *RequestService) loadAssigned(ctx context.Context, clerkID, requestID string) (*models.Request, error) {
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	if req.AssignedClerkID == nil || *req.AssignedClerkID != clerkID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "request is not assigned to this clerk")
	}
	return req, nil
}

func (s *RequestService) recordLifecycleAudit(ctx context.Context, actorID, requestID, action string, status models.RequestStatus) {
	if s.audits == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{"status": string(status)})
	if err := s.audits.Create(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "request",
		ResourceID: &requestID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record request audit log", zap.String("request_id", requestID), zap.Error(err))
	}
}
