package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/equiloan-api/internal/models"
)

type requestSource interface {
	ListWindowExpired(ctx context.Context, now time.Time) ([]models.Request, error)
	ListOverallExpired(ctx context.Context, now time.Time) ([]models.Request, error)
}

type lifecycle interface {
	CloseResponseWindow(ctx context.Context, requestID string, forced bool) error
	Expire(ctx context.Context, requestID string) error
}

type sweepMetrics interface {
	ObserveSweep(windowClosed, expired int, duration time.Duration)
}

// Sweeper is the background expiry worker. On a fixed schedule it forces
// response windows closed once their token deadline passes, and closes
// requests whose overall deadline lapsed. Both transitions run through the
// same status-gated lifecycle entry points callers use, so re-sweeping an
// already-forced request is a no-op.
type Sweeper struct {
	cron      *cron.Cron
	requests  requestSource
	lifecycle lifecycle
	metrics   sweepMetrics
	interval  time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// New constructs a Sweeper on the given interval.
func New(requests requestSource, lifecycle lifecycle, metrics sweepMetrics, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		cron:      cron.New(cron.WithLocation(time.UTC)),
		requests:  requests,
		lifecycle: lifecycle,
		metrics:   metrics,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
	}
}

// Start registers the sweep and launches the scheduler.
func (s *Sweeper) Start() error {
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, func() {
		s.RunOnce(context.Background())
	}); err != nil {
		return fmt.Errorf("register expiry sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Info("expiry sweeper started", zap.Duration("interval", s.interval))
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("expiry sweeper stopped")
}

// RunOnce executes one sweep: forced window closes first, then overall
// expiry. A failure on one request is logged and skipped so the rest of the
// sweep still runs.
func (s *Sweeper) RunOnce(ctx context.Context) (windowClosed, expired int) {
	start := s.now()
	now := start.UTC()

	stale, err := s.requests.ListWindowExpired(ctx, now)
	if err != nil {
		s.logger.Error("sweep failed to list expired response windows", zap.Error(err))
	} else {
		for _, request := range stale {
			if err := s.lifecycle.CloseResponseWindow(ctx, request.ID, true); err != nil {
				s.logger.Error("sweep failed to force-close response window",
					zap.String("request_id", request.ID), zap.Error(err))
				continue
			}
			windowClosed++
		}
	}

	lapsed, err := s.requests.ListOverallExpired(ctx, now)
	if err != nil {
		s.logger.Error("sweep failed to list expired requests", zap.Error(err))
	} else {
		for _, request := range lapsed {
			if err := s.lifecycle.Expire(ctx, request.ID); err != nil {
				s.logger.Error("sweep failed to expire request",
					zap.String("request_id", request.ID), zap.Error(err))
				continue
			}
			expired++
		}
	}

	duration := s.now().Sub(start)
	if s.metrics != nil {
		s.metrics.ObserveSweep(windowClosed, expired, duration)
	}
	if windowClosed > 0 || expired > 0 {
		s.logger.Info("expiry sweep finished",
			zap.Int("windows_closed", windowClosed),
			zap.Int("requests_expired", expired),
			zap.Duration("duration", duration))
	}
	return windowClosed, expired
}
