package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/civicdesk/urbanism-api/internal/dto"
	"github.com/civicdesk/urbanism-api/internal/models"
	appErrors "github.com/civicdesk/urbanism-api/pkg/errors"
)

type assignmentRequestStore interface {
	FindByID(ctx context.Context, id string) (*models.Request, error)
	ListUnassignedPending(ctx context.Context) ([]models.Request, error)
	ClerkWorkloads(ctx context.Context) ([]models.ClerkWorkload, error)
	AssignIfUnassigned(ctx context.Context, requestID, clerkID string) (bool, error)
}

type clerkRoster interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListActiveClerks(ctx context.Context) ([]models.User, error)
}

type auditWriter interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// AssignmentService distributes unassigned requests across the clerk roster
// and handles single-request claims.
type AssignmentService struct {
	requests assignmentRequestStore
	users    clerkRoster
	audits   auditWriter
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewAssignmentService creates a service instance.
func NewAssignmentService(requests assignmentRequestStore, users clerkRoster, audits auditWriter, metrics *MetricsService, logger *zap.Logger) *AssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{
		requests: requests,
		users:    users,
		audits:   audits,
		metrics:  metrics,
		logger:   logger,
	}
}

type clerkLoad struct {
	id       string
	workload int
}

type plannedAssignment struct {
	requestID string
	clerkID   string
}

// AutoAssignRequests distributes every unassigned PENDING_VALIDATION request
// so that no clerk ends up more than one request above any other. The
// workload model is rebuilt from storage on every run and discarded after the
// batch; failures on individual writes never abort siblings.
func (s *AssignmentService) AutoAssignRequests(ctx context.Context) (*dto.AutoAssignReport, error) {
	clerks, err := s.users.ListActiveClerks(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clerk roster")
	}
	if len(clerks) == 0 {
		return nil, appErrors.Clone(appErrors.ErrUnprocessable, "no active clerks")
	}

	pending, err := s.requests.ListUnassignedPending(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unassigned requests")
	}

	report := &dto.AutoAssignReport{Failures: []dto.AssignmentFailure{}}
	if len(pending) == 0 {
		return report, nil
	}

	workloads, err := s.requests.ClerkWorkloads(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clerk workloads")
	}
	current := make(map[string]int, len(workloads))
	for _, w := range workloads {
		current[w.ClerkID] = w.Workload
	}

	loads := make([]clerkLoad, 0, len(clerks))
	for _, clerk := range clerks {
		loads = append(loads, clerkLoad{id: clerk.ID, workload: current[clerk.ID]})
	}
	sort.Slice(loads, func(i, j int) bool {
		if loads[i].workload != loads[j].workload {
			return loads[i].workload < loads[j].workload
		}
		return loads[i].id < loads[j].id
	})

	// Target selection happens entirely against the in-memory model: each
	// request goes to the clerk with the minimum workload at that instant,
	// lowest id on ties, and the counter is bumped before the next pick.
	plan := make([]plannedAssignment, 0, len(pending))
	for _, req := range pending {
		best := 0
		for i := 1; i < len(loads); i++ {
			if loads[i].workload < loads[best].workload ||
				(loads[i].workload == loads[best].workload && loads[i].id < loads[best].id) {
				best = i
			}
		}
		plan = append(plan, plannedAssignment{requestID: req.ID, clerkID: loads[best].id})
		loads[best].workload++
	}

	// Writes touch distinct rows and never re-read shared state, so they can
	// run in parallel. The CAS guard in the repository keeps a concurrent
	// manual claim from being overwritten.
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, p := range plan {
		wg.Add(1)
		go func(p plannedAssignment) {
			defer wg.Done()
			ok, assignErr := s.requests.AssignIfUnassigned(ctx, p.requestID, p.clerkID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case assignErr != nil:
				report.Failures = append(report.Failures, dto.AssignmentFailure{RequestID: p.requestID, Reason: assignErr.Error()})
			case !ok:
				report.Failures = append(report.Failures, dto.AssignmentFailure{RequestID: p.requestID, Reason: "already assigned"})
			default:
				report.AssignedCount++
				s.recordAssignmentAudit(ctx, p.requestID, p.clerkID, models.AuditActionRequestAssign)
			}
		}(p)
	}
	wg.Wait()

	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].RequestID < report.Failures[j].RequestID
	})

	s.metrics.RecordAssignments("auto", report.AssignedCount)
	s.logger.Info("auto-assignment finished",
		zap.Int("assigned", report.AssignedCount),
		zap.Int("failed", len(report.Failures)),
		zap.Int("clerks", len(clerks)))
	return report, nil
}

// ClaimRequest atomically hands one unassigned PENDING_VALIDATION request to
// the claiming clerk. Losing the race yields Conflict; a vanished request
// yields NotFound.
func (s *AssignmentService) ClaimRequest(ctx context.Context, requestID, clerkID string) (*dto.ClaimResponse, error) {
	clerk, err := s.users.FindByID(ctx, clerkID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "clerk not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clerk")
	}
	if !clerk.Active || clerk.Role != models.RoleClerk {
		return nil, appErrors.Clone(appErrors.ErrUnprocessable, "user is not an active clerk")
	}

	ok, err := s.requests.AssignIfUnassigned(ctx, requestID, clerkID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to claim request")
	}
	if ok {
		s.recordAssignmentAudit(ctx, requestID, clerkID, models.AuditActionRequestClaim)
		s.metrics.RecordAssignments("claim", 1)
		return &dto.ClaimResponse{RequestID: requestID, ClerkID: clerkID}, nil
	}

	// The conditional write matched nothing; re-fetch to tell the caller
	// whether the request is gone or merely lost to another clerk.
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	if req.AssignedClerkID != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "request already claimed by another clerk")
	}
	return nil, appErrors.Clone(appErrors.ErrUnprocessable, "request is not awaiting validation")
}

// recordAssignmentAudit emits one audit event per successful assignment.
// Fire-and-forget: a failed audit write never fails the assignment.
func (s *AssignmentService) recordAssignmentAudit(ctx context.Context, requestID, clerkID, action string) {
	if s.audits == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{"clerk_id": clerkID})
	if err := s.audits.Create(ctx, &models.AuditLog{
		UserID:     &clerkID,
		Action:     action,
		Resource:   "request",
		ResourceID: &requestID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record assignment audit log",
			zap.String("request_id", requestID), zap.Error(err))
	}
}
