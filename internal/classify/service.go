// Package classify serves cause-of-death classifications from the published
// model: request validation, normalization, scoring, an optional result cache
// and the HTTP endpoints in front of them.
package classify

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/modelstore"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/normalizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/metrics"
)

// MaxFieldBytes caps each text field of a request.
const MaxFieldBytes = 64 << 10

// Result is a served classification.
type Result struct {
	Label        string    `json:"label"`
	Confidence   float64   `json:"confidence"`
	ModelVersion string    `json:"model_version"`
	TrainedAt    time.Time `json:"trained_at"`
	Cached       bool      `json:"cached"`
}

// Recorder receives one event per served classification.
type Recorder interface {
	Track(event analytics.ClassificationEvent)
}

// Service classifies text against whatever model the store has published.
type Service struct {
	store    *modelstore.Store
	cache    *Cache
	recorder Recorder
	metrics  *metrics.Metrics
}

// NewService builds a Service. cache and recorder may be nil.
func NewService(store *modelstore.Store, cache *Cache, recorder Recorder, m *metrics.Metrics) *Service {
	return &Service{store: store, cache: cache, recorder: recorder, metrics: m}
}

// Classify labels the combined findings and cause-of-death text. Without a
// published model it fails with ErrModelMissing instead of guessing.
func (s *Service) Classify(ctx context.Context, findings, causeOfDeath string) (*Result, error) {
	start := time.Now()
	if err := Validate(findings, causeOfDeath); err != nil {
		return nil, err
	}
	snap, err := s.store.Get()
	if err != nil {
		return nil, err
	}
	tokens := normalizer.Normalize(findings + " " + causeOfDeath)

	compute := func() (*Result, error) {
		scores, err := snap.Model.Scores(tokens)
		if err != nil {
			return nil, err
		}
		return &Result{
			Label:        scores[0].Label,
			Confidence:   scores[0].Probability,
			ModelVersion: snap.Version,
			TrainedAt:    snap.TrainedAt,
		}, nil
	}

	var shared *Result
	cached := false
	if s.cache != nil {
		shared, cached, err = s.cache.GetOrCompute(ctx, CacheKey(snap.Version, tokens), compute)
		if cached {
			s.metrics.CacheHitsTotal.Inc()
		} else {
			s.metrics.CacheMissesTotal.Inc()
		}
	} else {
		shared, err = compute()
	}
	if err != nil {
		return nil, err
	}
	result := *shared
	result.Cached = cached

	elapsed := time.Since(start)
	s.metrics.ClassificationsTotal.WithLabelValues(result.Label).Inc()
	s.metrics.ClassificationLatency.Observe(elapsed.Seconds())
	logger.FromContext(ctx).Debug("classified",
		"label", result.Label,
		"confidence", result.Confidence,
		"tokens", len(tokens),
		"cached", cached,
	)
	if s.recorder != nil {
		s.recorder.Track(analytics.ClassificationEvent{
			Label:        result.Label,
			Confidence:   result.Confidence,
			Cached:       cached,
			Tokens:       len(tokens),
			LatencyMs:    float64(elapsed.Microseconds()) / 1000,
			ModelVersion: result.ModelVersion,
			Timestamp:    time.Now().UTC(),
			RequestID:    logger.RequestIDFrom(ctx),
		})
	}
	return &result, nil
}

// InvalidateCache drops cached results; a no-op without a cache.
func (s *Service) InvalidateCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx)
}

// Validate checks request fields before any work is done.
func Validate(findings, causeOfDeath string) error {
	if strings.TrimSpace(findings) == "" && strings.TrimSpace(causeOfDeath) == "" {
		return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "findings or cause_of_death is required")
	}
	if len(findings) > MaxFieldBytes {
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "findings exceeds %d bytes", MaxFieldBytes)
	}
	if len(causeOfDeath) > MaxFieldBytes {
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "cause_of_death exceeds %d bytes", MaxFieldBytes)
	}
	return nil
}
