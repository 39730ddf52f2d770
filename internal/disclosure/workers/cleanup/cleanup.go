package cleanup

import (
	"context"
	"log/slog"
	"time"

	"medshare/internal/disclosure/metrics"
	"medshare/internal/disclosure/models"
	"medshare/pkg/platform/clock"
)

// DefaultInterval is how often the reclaim pass runs.
const DefaultInterval = 5 * time.Minute

// Result contains the results of a cleanup run.
type Result struct {
	models.ReclaimResult
	Duration time.Duration
}

// SessionStore is the maintenance surface of a session store.
type SessionStore interface {
	Reclaim(ctx context.Context, now time.Time) (models.ReclaimResult, error)
}

type Option func(*SessionCleanupService)

func WithLogger(logger *slog.Logger) Option {
	return func(s *SessionCleanupService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithInterval(interval time.Duration) Option {
	return func(s *SessionCleanupService) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *SessionCleanupService) {
		s.metrics = m
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *SessionCleanupService) {
		if c != nil {
			s.clock = c
		}
	}
}

// SessionCleanupService periodically expires elapsed sessions and frees
// sealed payloads that can no longer be redeemed. Lazy expiry at read time
// already gives correct answers; this pass only reclaims resources.
type SessionCleanupService struct {
	store    SessionStore
	logger   *slog.Logger
	interval time.Duration
	metrics  *metrics.Metrics
	clock    clock.Clock
}

func New(store SessionStore, opts ...Option) *SessionCleanupService {
	service := &SessionCleanupService{
		store:    store,
		logger:   slog.Default(),
		interval: DefaultInterval,
		clock:    clock.Real{},
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Start runs cleanup on every tick until ctx is cancelled.
func (s *SessionCleanupService) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res, err := s.RunOnce(ctx)
			if err != nil {
				s.logger.Error("disclosure_session_cleanup_failed", "error", err)
				continue
			}
			s.logger.Info("disclosure_session_cleanup_completed",
				"expired", res.Expired,
				"purged", res.Purged,
				"duration_ms", res.Duration.Milliseconds(),
			)
		case <-ctx.Done():
			s.logger.Info("disclosure session cleanup worker stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// RunOnce executes a single cleanup run and records its metrics.
func (s *SessionCleanupService) RunOnce(ctx context.Context) (*Result, error) {
	start := time.Now()
	reclaimed, err := s.store.Reclaim(ctx, s.clock.Now())
	duration := time.Since(start)

	if s.metrics != nil {
		s.metrics.CleanupDurationSeconds.Observe(duration.Seconds())
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.CleanupRunsTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.CleanupRunsTotal.WithLabelValues("success").Inc()
		s.metrics.CleanupExpiredTotal.Add(float64(reclaimed.Expired))
		s.metrics.CleanupPurgedTotal.Add(float64(reclaimed.Purged))
	}
	return &Result{ReclaimResult: reclaimed, Duration: duration}, nil
}
