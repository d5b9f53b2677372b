package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/civicdesk/urbanism-api/internal/dto"
	"github.com/civicdesk/urbanism-api/internal/models"
	appErrors "github.com/civicdesk/urbanism-api/pkg/errors"
)

type dashboardRequestReader interface {
	CountByStatus(ctx context.Context) (map[models.RequestStatus]int, error)
	CountOpenByType(ctx context.Context) ([]models.CategoryBacklog, error)
	CountUnassigned(ctx context.Context) (int, error)
	ClerkWorkloads(ctx context.Context) ([]models.ClerkWorkload, error)
}

const dashboardCacheKey = "dashboard:stats"

// DashboardService aggregates portal counters with a short-lived Redis cache.
// The prioritized queue itself is never cached here; only coarse counts are.
type DashboardService struct {
	requests dashboardRequestReader
	cache    *redis.Client
	ttl      time.Duration
	logger   *zap.Logger
}

// NewDashboardService creates a service instance. A nil cache disables
// caching entirely.
func NewDashboardService(requests dashboardRequestReader, cache *redis.Client, ttl time.Duration, logger *zap.Logger) *DashboardService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{requests: requests, cache: cache, ttl: ttl, logger: logger}
}

// Stats returns dashboard counters, served from cache when fresh.
func (s *DashboardService) Stats(ctx context.Context) (*dto.DashboardStats, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, dashboardCacheKey).Result()
		if err == nil {
			var cached dto.DashboardStats
			if unmarshalErr := json.Unmarshal([]byte(raw), &cached); unmarshalErr == nil {
				return &cached, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn("dashboard cache read failed", zap.Error(err))
		}
	}

	stats, err := s.collect(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if payload, marshalErr := json.Marshal(stats); marshalErr == nil {
			if err := s.cache.Set(ctx, dashboardCacheKey, payload, s.ttl).Err(); err != nil {
				s.logger.Warn("dashboard cache write failed", zap.Error(err))
			}
		}
	}
	return stats, nil
}

// Invalidate drops the cached counters, called after bulk assignment runs.
func (s *DashboardService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, dashboardCacheKey).Err(); err != nil {
		s.logger.Warn("dashboard cache invalidation failed", zap.Error(err))
	}
}

func (s *DashboardService) collect(ctx context.Context) (*dto.DashboardStats, error) {
	byStatus, err := s.requests.CountByStatus(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count requests by status")
	}
	byType, err := s.requests.CountOpenByType(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count requests by type")
	}
	unassigned, err := s.requests.CountUnassigned(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count unassigned requests")
	}
	workloads, err := s.requests.ClerkWorkloads(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count clerk workloads")
	}

	typeCounts := make(map[models.RequestType]int, len(byType))
	openTotal := 0
	for _, backlog := range byType {
		typeCounts[backlog.Type] = backlog.Count
		openTotal += backlog.Count
	}

	return &dto.DashboardStats{
		OpenTotal:      openTotal,
		Unassigned:     unassigned,
		ByStatus:       byStatus,
		ByType:         typeCounts,
		ClerkWorkloads: workloads,
	}, nil
}
