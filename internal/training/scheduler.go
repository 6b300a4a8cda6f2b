package training

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/modelstore"
	apperrors "github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/metrics"
)

// Scheduler periodically evicts a stale artifact and retrains when the
// artifact is missing. A fresh artifact makes a tick a no-op.
type Scheduler struct {
	orch     *Orchestrator
	store    *modelstore.Store
	maxAge   time.Duration
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewScheduler(orch *Orchestrator, store *modelstore.Store, m *metrics.Metrics, maxAge, interval time.Duration) *Scheduler {
	return &Scheduler{
		orch:     orch,
		store:    store,
		maxAge:   maxAge,
		interval: interval,
		metrics:  m,
		logger:   slog.Default().With("component", "retrain-scheduler"),
	}
}

// Tick runs one scheduling step. It returns a nil Outcome when no training
// was needed.
func (s *Scheduler) Tick(ctx context.Context) (*Outcome, error) {
	evicted, err := s.store.EvictIfStale(s.maxAge)
	if err != nil {
		return nil, err
	}
	if evicted {
		s.metrics.ModelEvictionsTotal.Inc()
	}
	if _, err := s.store.Modified(); err == nil {
		return nil, nil
	} else if !errors.Is(err, apperrors.ErrModelMissing) {
		return nil, err
	}
	return s.orch.Run(ctx)
}

// Start ticks every interval until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info("retrain scheduler started", "interval", s.interval, "max_age", s.maxAge)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retrain scheduler stopped")
			return
		case <-ticker.C:
			out, err := s.Tick(ctx)
			if err != nil {
				s.logger.Error("scheduled retrain failed", "error", err)
				continue
			}
			if out != nil {
				s.logger.Info("scheduled retrain finished", "status", out.Status, "run_id", out.RunID)
			}
		}
	}
}
