// Package training turns historical records into a published classifier.
// The Orchestrator runs one training pass (fetch, label, train, save,
// publish); the Scheduler decides when a pass is due. At most one pass runs
// at a time per process, and a Locker can extend that across processes.
package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/autolabel"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/bayes"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/modelstore"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/normalizer"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/records"
	apperrors "github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/tracing"
	"github.com/google/uuid"
)

// Status is the result of one Run.
type Status string

const (
	StatusTrained       Status = "trained"
	StatusSkippedNoData Status = "skipped_no_data"
	StatusSkippedBusy   Status = "skipped_busy"
	statusFailed        Status = "failed"
)

const announceTimeout = 10 * time.Second

// LockKey is the cross-process lock held for the duration of a run.
const LockKey = "cause-classifier:training-lock"

// Locker acquires a lock shared by every trainer writing the same artifact.
// release is nil when acquired is false.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, acquired bool, err error)
}

// Publisher emits events about newly trained models.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Outcome describes one Run.
type Outcome struct {
	RunID       string
	Status      Status
	Records     int
	Documents   int
	AutoLabeled int
	LabelCounts map[string]int
	Snapshot    *modelstore.Snapshot
	Duration    time.Duration
	Stages      map[string]int64
}

// Options configures an Orchestrator. Zero values fall back to defaults.
type Options struct {
	Smoothing float64
	// Timeout bounds a whole run, record fetch included.
	Timeout   time.Duration
	Locker    Locker
	LockTTL   time.Duration
	Publisher Publisher
	Retry     resilience.RetryConfig
}

// Orchestrator runs training passes against one record source and store.
type Orchestrator struct {
	source  records.Source
	store   *modelstore.Store
	opts    Options
	metrics *metrics.Metrics
	running atomic.Bool
	logger  *slog.Logger
}

func NewOrchestrator(source records.Source, store *modelstore.Store, m *metrics.Metrics, opts Options) *Orchestrator {
	if opts.Smoothing <= 0 {
		opts.Smoothing = bayes.DefaultSmoothing
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Minute
		if opts.Timeout > 0 {
			opts.LockTTL = 2 * opts.Timeout
		}
	}
	if opts.Retry.Retryable == nil {
		opts.Retry.Retryable = func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}
	}
	return &Orchestrator{
		source:  source,
		store:   store,
		opts:    opts,
		metrics: m,
		logger:  slog.Default().With("component", "training"),
	}
}

// Running reports whether a run is in flight in this process.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Run performs one training pass. A call made while another run is in
// flight returns immediately with StatusSkippedBusy. When no eligible records
// exist the artifact and the published model are left untouched.
func (o *Orchestrator) Run(ctx context.Context) (*Outcome, error) {
	runID := uuid.NewString()
	if !o.running.CompareAndSwap(false, true) {
		o.logger.Info("training already in progress, skipping trigger", "run_id", runID)
		return o.finish(&Outcome{RunID: runID, Status: StatusSkippedBusy}), nil
	}
	defer o.running.Store(false)

	log := logger.WithRunID(o.logger, runID)
	start := time.Now()

	if o.opts.Locker != nil {
		release, acquired, err := o.opts.Locker.TryLock(ctx, LockKey, o.opts.LockTTL)
		switch {
		case err != nil:
			// The rename in Save keeps the artifact valid even if two writers race.
			log.Warn("training lock unavailable, continuing without it", "error", err)
		case !acquired:
			log.Info("another process holds the training lock, skipping")
			return o.finish(&Outcome{RunID: runID, Status: StatusSkippedBusy}), nil
		default:
			defer func() {
				if err := release(context.Background()); err != nil {
					log.Warn("releasing training lock", "error", err)
				}
			}()
		}
	}

	if o.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
		defer cancel()
	}
	ctx, span := tracing.StartSpan(ctx, "training.run", runID)
	defer func() {
		span.End()
		span.LogTo(log)
	}()

	out := &Outcome{RunID: runID}

	rows, err := o.fetch(ctx)
	if err != nil {
		o.metrics.TrainingRunsTotal.WithLabelValues(string(statusFailed)).Inc()
		log.Error("fetching training records failed", "error", err)
		return nil, fmt.Errorf("fetching training records: %w", err)
	}
	out.Records = len(rows)

	_, labelSpan := tracing.StartChildSpan(ctx, "label")
	docs, autoLabeled := BuildDocuments(rows)
	labelSpan.SetAttr("documents", len(docs))
	labelSpan.End()
	out.Documents = len(docs)
	out.AutoLabeled = autoLabeled

	if len(docs) == 0 {
		log.Info("no training data, keeping existing model", "records", len(rows))
		out.Status = StatusSkippedNoData
		out.Duration = time.Since(start)
		return o.finish(out), nil
	}

	_, trainSpan := tracing.StartChildSpan(ctx, "train")
	model := bayes.Train(docs, o.opts.Smoothing)
	trainSpan.SetAttr("labels", len(model.Labels()))
	trainSpan.SetAttr("vocabulary", model.VocabularySize())
	trainSpan.End()

	_, saveSpan := tracing.StartChildSpan(ctx, "save")
	snap, err := o.store.Save(model)
	saveSpan.End()
	if err != nil {
		o.metrics.TrainingRunsTotal.WithLabelValues(string(statusFailed)).Inc()
		log.Error("saving model failed", "error", err)
		return nil, fmt.Errorf("saving model: %w", err)
	}
	o.store.Publish(snap)

	out.Status = StatusTrained
	out.Snapshot = snap
	out.LabelCounts = make(map[string]int, len(model.Labels()))
	for _, label := range model.Labels() {
		st, _ := model.Stats(label)
		out.LabelCounts[label] = st.Documents
	}
	out.Duration = time.Since(start)
	out.Stages = span.StageDurations()

	o.metrics.TrainingDuration.Observe(out.Duration.Seconds())
	o.metrics.TrainingDocuments.Set(float64(out.Documents))
	RecordPublished(o.metrics, snap)

	log.Info("training complete",
		"version", snap.Version,
		"records", out.Records,
		"documents", out.Documents,
		"auto_labeled", out.AutoLabeled,
		"labels", len(model.Labels()),
		"duration", out.Duration,
	)
	o.announce(ctx, log, out)
	return o.finish(out), nil
}

func (o *Orchestrator) fetch(ctx context.Context) ([]records.Record, error) {
	fetchCtx, span := tracing.StartChildSpan(ctx, "fetch")
	defer span.End()
	var rows []records.Record
	err := resilience.Retry(fetchCtx, "fetch_training_records", o.opts.Retry, func() error {
		var err error
		rows, err = o.source.FetchPairs(fetchCtx)
		return err
	})
	span.SetAttr("rows", len(rows))
	return rows, err
}

func (o *Orchestrator) announce(ctx context.Context, log *slog.Logger, out *Outcome) {
	if o.opts.Publisher == nil {
		return
	}
	event := ModelTrainedEvent{
		Version:   out.Snapshot.Version,
		TrainedAt: out.Snapshot.TrainedAt,
		RunID:     out.RunID,
		Labels:    out.Snapshot.Model.Labels(),
		Documents: out.Documents,
	}
	err := resilience.WithTimeout(ctx, "announce_model", announceTimeout, func(ctx context.Context) error {
		return o.opts.Publisher.Publish(ctx, kafka.Event{
			Key:   event.Version,
			Type:  ModelTrainedEventType,
			Value: event,
		})
	})
	if err != nil {
		log.Warn("announcing trained model failed; replicas reload on their next restart", "error", err)
	}
}

func (o *Orchestrator) finish(out *Outcome) *Outcome {
	o.metrics.TrainingRunsTotal.WithLabelValues(string(out.Status)).Inc()
	return out
}

// EnsureModel publishes the artifact on disk. When none exists it trains
// synchronously if allowAutoTrain is set and otherwise returns
// ErrModelMissing so the caller can refuse to start.
func (o *Orchestrator) EnsureModel(ctx context.Context, allowAutoTrain bool) (*modelstore.Snapshot, error) {
	snap, err := o.store.Reload()
	if err == nil {
		RecordPublished(o.metrics, snap)
		return snap, nil
	}
	if !errors.Is(err, apperrors.ErrModelMissing) || !allowAutoTrain {
		return nil, err
	}
	o.logger.Warn("no model artifact, training before serving", "path", o.store.Path())
	out, err := o.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("auto-training missing model: %w", err)
	}
	if out.Status != StatusTrained {
		return nil, fmt.Errorf("auto-training finished with %s: %w", out.Status, apperrors.ErrModelMissing)
	}
	return out.Snapshot, nil
}

// RecordPublished updates the model gauges for a newly published snapshot.
func RecordPublished(m *metrics.Metrics, snap *modelstore.Snapshot) {
	m.ModelLabels.Set(float64(len(snap.Model.Labels())))
	m.ModelTrainedAt.Set(float64(snap.TrainedAt.Unix()))
}

// BuildDocuments de-duplicates rows on their exact (findings, cause of death)
// text, labels each distinct pair and normalizes it. An authoritative category
// wins over an auto-label for the same pair. Rows with no text at all are
// dropped. It returns the documents and how many were auto-labeled.
func BuildDocuments(rows []records.Record) ([]bayes.Document, int) {
	index := make(map[string]int, len(rows))
	unique := make([]records.Record, 0, len(rows))
	for _, r := range rows {
		if strings.TrimSpace(r.Findings) == "" && strings.TrimSpace(r.CauseOfDeath) == "" {
			continue
		}
		key := r.Findings + "\x00" + r.CauseOfDeath
		if i, ok := index[key]; ok {
			if unique[i].Category == "" && r.Category != "" {
				unique[i].Category = r.Category
			}
			continue
		}
		index[key] = len(unique)
		unique = append(unique, r)
	}

	docs := make([]bayes.Document, 0, len(unique))
	autoLabeled := 0
	for _, r := range unique {
		label := strings.TrimSpace(r.Category)
		if label == "" {
			label = autolabel.Label(r.Findings, r.CauseOfDeath)
			autoLabeled++
		}
		docs = append(docs, bayes.Document{
			Tokens: normalizer.Normalize(r.Findings + " " + r.CauseOfDeath),
			Label:  label,
		})
	}
	return docs, autoLabeled
}
