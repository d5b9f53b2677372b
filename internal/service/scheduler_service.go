package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/civicdesk/urbanism-api/pkg/jobs"
)

// SchedulerConfig tunes the periodic auto-assignment job.
type SchedulerConfig struct {
	Interval time.Duration
	Workers  int
}

// SchedulerService drives the periodic balancer run through the background
// job queue. The admin endpoint calls the assignment service directly; this
// only covers the timed trigger.
type SchedulerService struct {
	assignments *AssignmentService
	dashboard   *DashboardService
	metrics     *MetricsService
	queue       *jobs.Queue
	interval    time.Duration
	logger      *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSchedulerService wires the queue and ticker.
func NewSchedulerService(assignments *AssignmentService, dashboard *DashboardService, metrics *MetricsService, cfg SchedulerConfig, logger *zap.Logger) *SchedulerService {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SchedulerService{
		assignments: assignments,
		dashboard:   dashboard,
		metrics:     metrics,
		interval:    cfg.Interval,
		logger:      logger,
	}
	s.queue = jobs.NewQueue("auto-assign", s.handle, jobs.QueueConfig{
		Workers: cfg.Workers,
		Logger:  logger,
	})
	return s
}

// Start launches the worker queue and the interval ticker.
func (s *SchedulerService) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.queue.Start(ctx)
	s.wg.Add(1)
	go s.tick(ctx)
}

// Stop halts the ticker and drains workers.
func (s *SchedulerService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.queue.Stop()
}

// Trigger enqueues one balancer run outside the regular interval.
func (s *SchedulerService) Trigger() error {
	return s.queue.Enqueue(jobs.Job{Type: "auto-assign"})
}

func (s *SchedulerService) tick(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Trigger(); err != nil {
				s.logger.Warn("failed to enqueue scheduled auto-assign", zap.Error(err))
			}
		}
	}
}

func (s *SchedulerService) handle(ctx context.Context, _ jobs.Job) error {
	report, err := s.assignments.AutoAssignRequests(ctx)
	if err != nil {
		// An empty roster is a standing condition, not a transient fault;
		// retrying the job immediately would not help.
		s.logger.Warn("scheduled auto-assign run failed", zap.Error(err))
		return nil
	}
	if report.AssignedCount > 0 && s.dashboard != nil {
		s.dashboard.Invalidate(ctx)
	}
	// Whatever failed this run is still sitting unassigned.
	s.metrics.SetUnassignedDepth(len(report.Failures))
	return nil
}
