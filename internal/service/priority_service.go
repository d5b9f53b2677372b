package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/civicdesk/urbanism-api/internal/dto"
	"github.com/civicdesk/urbanism-api/internal/models"
	appErrors "github.com/civicdesk/urbanism-api/pkg/errors"
)

type openRequestReader interface {
	ListOpen(ctx context.Context) ([]models.Request, error)
}

// Scoring constants. The urgent bonus dominates every other term so that a
// request inside the urgency window always outranks a mere backlog pile-up,
// and overdue requests (negative days left) score above merely-urgent ones
// because the horizon term keeps growing as the deadline recedes.
const (
	urgentDaysThreshold = 3
	urgentBonus         = 100
	deadlineHorizonDays = 30
	backlogThreshold    = 5
	backlogWeight       = 4
)

// PriorityService ranks the open work queue. It is read-only and stateless;
// scores are recomputed on every call and never persisted.
type PriorityService struct {
	requests openRequestReader
	clock    func() time.Time
	logger   *zap.Logger
}

// NewPriorityService creates a service instance. A nil clock defaults to
// time.Now.
func NewPriorityService(requests openRequestReader, clock func() time.Time, logger *zap.Logger) *PriorityService {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PriorityService{requests: requests, clock: clock, logger: logger}
}

// GetPrioritizedRequests returns every open request ranked by urgency.
func (s *PriorityService) GetPrioritizedRequests(ctx context.Context) ([]dto.PrioritizedRequest, error) {
	open, err := s.requests.ListOpen(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load open requests")
	}

	// One clock sample for the whole invocation so that ranking stays
	// consistent across the result set.
	now := s.clock().UTC()

	backlog := make(map[models.RequestType]int, len(open))
	for _, req := range open {
		backlog[req.Type]++
	}

	ranked := make([]dto.PrioritizedRequest, 0, len(open))
	for _, req := range open {
		var daysLeft *int
		if req.LegalDeadline != nil {
			d := wholeDaysUntil(now, *req.LegalDeadline)
			daysLeft = &d
		}
		score, urgent := scoreRequest(daysLeft, backlog[req.Type])
		ranked = append(ranked, dto.PrioritizedRequest{
			Request:           req,
			DaysLeft:          daysLeft,
			BacklogInCategory: backlog[req.Type],
			PriorityScore:     score,
			Urgent:            urgent,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.PriorityScore != b.PriorityScore {
			return a.PriorityScore > b.PriorityScore
		}
		if !a.Request.CreatedAt.Equal(b.Request.CreatedAt) {
			return a.Request.CreatedAt.Before(b.Request.CreatedAt)
		}
		return a.Request.ID < b.Request.ID
	})

	return ranked, nil
}

// scoreRequest computes the priority score from the deadline distance and the
// category backlog. Requests with no deadline and no meaningful backlog score
// zero; they still appear at the bottom of the queue.
func scoreRequest(daysLeft *int, backlogInCategory int) (score int, urgent bool) {
	if daysLeft != nil {
		d := *daysLeft
		if d <= urgentDaysThreshold {
			score += urgentBonus
			urgent = true
		}
		if d < deadlineHorizonDays {
			score += deadlineHorizonDays - d
		}
	}
	if backlogInCategory > backlogThreshold {
		score += backlogWeight * (backlogInCategory - backlogThreshold)
	}
	return score, urgent
}

// wholeDaysUntil truncates toward zero, so a deadline later today is 0 days
// away and one that passed earlier today is also 0.
func wholeDaysUntil(now, deadline time.Time) int {
	return int(deadline.Sub(now).Hours() / 24)
}
