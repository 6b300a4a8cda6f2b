package training

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/bayes"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/modelstore"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/records"
	apperrors "github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/resilience"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var corpus = records.StaticSource{
	{Findings: "Multiple gunshot wounds to the chest", CauseOfDeath: "homicide"},
	{Findings: "Stab wound to the neck", CauseOfDeath: "assault"},
	{Findings: "Coronary artery occlusion", CauseOfDeath: "acute myocardial infarction"},
	{Findings: "Enlarged heart, scarring", CauseOfDeath: "heart attack"},
	{Findings: "Water in lungs", CauseOfDeath: "drowning"},
	{Findings: "Coronary artery occlusion", CauseOfDeath: "acute myocardial infarction"},
}

type blockingSource struct {
	entered chan struct{}
	release chan struct{}
	rows    []records.Record
}

func (s *blockingSource) FetchPairs(ctx context.Context) ([]records.Record, error) {
	close(s.entered)
	<-s.release
	return s.rows, nil
}

type failingSource struct{ calls atomic.Int32 }

func (s *failingSource) FetchPairs(context.Context) ([]records.Record, error) {
	s.calls.Add(1)
	return nil, errors.New("connection refused")
}

type fakeLocker struct {
	acquired bool
	err      error
	released atomic.Int32
}

func (l *fakeLocker) TryLock(context.Context, string, time.Duration) (func(context.Context) error, bool, error) {
	if l.err != nil || !l.acquired {
		return nil, false, l.err
	}
	return func(context.Context) error { l.released.Add(1); return nil }, true, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []kafka.Event
}

func (p *fakePublisher) Publish(_ context.Context, e kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func setup(t *testing.T, src records.Source, opts Options) (*Orchestrator, *modelstore.Store, *metrics.Metrics) {
	t.Helper()
	store := modelstore.New(filepath.Join(t.TempDir(), "classifier.ccnb"))
	m := metrics.New(prometheus.NewRegistry())
	opts.Retry = resilience.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	return NewOrchestrator(src, store, m, opts), store, m
}

func TestRunTrainsAndPublishes(t *testing.T) {
	pub := &fakePublisher{}
	orch, store, m := setup(t, corpus, Options{Publisher: pub})

	out, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Status != StatusTrained {
		t.Fatalf("status = %s", out.Status)
	}
	if out.Records != 6 || out.Documents != 5 || out.AutoLabeled != 5 {
		t.Errorf("records=%d documents=%d auto_labeled=%d", out.Records, out.Documents, out.AutoLabeled)
	}
	if out.LabelCounts["homicide_trauma"] != 2 || out.LabelCounts["cardiovascular"] != 2 {
		t.Errorf("label counts = %v", out.LabelCounts)
	}
	for _, stage := range []string{"fetch", "label", "train", "save"} {
		if _, ok := out.Stages[stage]; !ok {
			t.Errorf("missing stage %q in %v", stage, out.Stages)
		}
	}

	current, err := store.Get()
	if err != nil || current != out.Snapshot {
		t.Fatalf("published snapshot = %v, %v", current, err)
	}
	loaded, err := store.Load()
	if err != nil || loaded.Version != out.Snapshot.Version {
		t.Fatalf("artifact version mismatch: %v", err)
	}

	if len(pub.events) != 1 || pub.events[0].Type != ModelTrainedEventType || pub.events[0].Key != out.Snapshot.Version {
		t.Errorf("published events = %+v", pub.events)
	}
	if got := testutil.ToFloat64(m.TrainingRunsTotal.WithLabelValues("trained")); got != 1 {
		t.Errorf("trained runs = %v", got)
	}
	if got := testutil.ToFloat64(m.ModelLabels); got != float64(len(out.Snapshot.Model.Labels())) {
		t.Errorf("model_labels = %v", got)
	}
}

func TestRunNoDataLeavesArtifactUntouched(t *testing.T) {
	orch, store, m := setup(t, records.StaticSource{}, Options{})
	prev, err := store.Save(bayes.Train([]bayes.Document{{Tokens: []string{"heart"}, Label: "cardiac"}}, 1))
	if err != nil {
		t.Fatal(err)
	}
	store.Publish(prev)
	before, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatal(err)
	}

	out, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Status != StatusSkippedNoData {
		t.Errorf("status = %s, want skipped_no_data", out.Status)
	}
	after, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Error("artifact changed after a no-data run")
	}
	if current, _ := store.Get(); current != prev {
		t.Error("published model replaced after a no-data run")
	}
	if got := testutil.ToFloat64(m.TrainingRunsTotal.WithLabelValues("skipped_no_data")); got != 1 {
		t.Errorf("skipped_no_data runs = %v", got)
	}
}

func TestRunBlankRowsCountAsNoData(t *testing.T) {
	orch, store, _ := setup(t, records.StaticSource{{Findings: "  ", CauseOfDeath: ""}}, Options{})
	out, err := orch.Run(context.Background())
	if err != nil || out.Status != StatusSkippedNoData {
		t.Fatalf("out=%+v err=%v", out, err)
	}
	if _, err := store.Load(); !errors.Is(err, apperrors.ErrModelMissing) {
		t.Errorf("artifact written for blank rows: %v", err)
	}
}

func TestRunSecondTriggerIsNoOp(t *testing.T) {
	src := &blockingSource{entered: make(chan struct{}), release: make(chan struct{}), rows: corpus}
	orch, _, _ := setup(t, src, Options{})

	done := make(chan *Outcome)
	go func() {
		out, _ := orch.Run(context.Background())
		done <- out
	}()
	<-src.entered
	if !orch.Running() {
		t.Error("Running() = false during a run")
	}

	out, err := orch.Run(context.Background())
	if err != nil || out.Status != StatusSkippedBusy {
		t.Errorf("concurrent trigger: out=%+v err=%v", out, err)
	}
	close(src.release)
	if first := <-done; first.Status != StatusTrained {
		t.Errorf("first run status = %s", first.Status)
	}
	if orch.Running() {
		t.Error("Running() = true after completion")
	}
}

func TestRunHonoursLocker(t *testing.T) {
	held := &fakeLocker{acquired: false}
	orch, store, _ := setup(t, corpus, Options{Locker: held})
	out, err := orch.Run(context.Background())
	if err != nil || out.Status != StatusSkippedBusy {
		t.Fatalf("lock held elsewhere: out=%+v err=%v", out, err)
	}
	if _, err := store.Load(); !errors.Is(err, apperrors.ErrModelMissing) {
		t.Error("artifact written without the lock")
	}

	free := &fakeLocker{acquired: true}
	orch, _, _ = setup(t, corpus, Options{Locker: free})
	if out, err := orch.Run(context.Background()); err != nil || out.Status != StatusTrained {
		t.Fatalf("lock free: out=%+v err=%v", out, err)
	}
	if free.released.Load() != 1 {
		t.Errorf("lock released %d times", free.released.Load())
	}

	broken := &fakeLocker{err: errors.New("redis down")}
	orch, _, _ = setup(t, corpus, Options{Locker: broken})
	if out, err := orch.Run(context.Background()); err != nil || out.Status != StatusTrained {
		t.Fatalf("lock unavailable: out=%+v err=%v", out, err)
	}
}

func TestRunFetchFailure(t *testing.T) {
	src := &failingSource{}
	orch, store, m := setup(t, src, Options{})
	if _, err := orch.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if src.calls.Load() != 2 {
		t.Errorf("fetch attempted %d times, want 2", src.calls.Load())
	}
	if _, err := store.Get(); !errors.Is(err, apperrors.ErrModelMissing) {
		t.Error("model published after failed fetch")
	}
	if got := testutil.ToFloat64(m.TrainingRunsTotal.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed runs = %v", got)
	}
}

func TestBuildDocuments(t *testing.T) {
	rows := []records.Record{
		{Findings: "gunshot wound", CauseOfDeath: "homicide"},
		{Findings: "gunshot wound", CauseOfDeath: "homicide", Category: "firearm"},
		{Findings: "gunshot wound", CauseOfDeath: "homicide"},
		{Findings: "heart attack", CauseOfDeath: "", Category: "cardiac"},
		{Findings: "unremarkable", CauseOfDeath: "undetermined"},
		{Findings: "", CauseOfDeath: " "},
	}
	docs, auto := BuildDocuments(rows)
	if len(docs) != 3 {
		t.Fatalf("got %d documents, want 3", len(docs))
	}
	if auto != 1 {
		t.Errorf("auto-labeled = %d, want 1", auto)
	}
	want := []string{"firearm", "cardiac", "other"}
	for i, d := range docs {
		if d.Label != want[i] {
			t.Errorf("doc %d label = %q, want %q", i, d.Label, want[i])
		}
	}
	if len(docs[0].Tokens) == 0 {
		t.Error("first document has no tokens")
	}
}

func TestEnsureModel(t *testing.T) {
	orch, store, _ := setup(t, corpus, Options{})
	if _, err := orch.EnsureModel(context.Background(), false); !errors.Is(err, apperrors.ErrModelMissing) {
		t.Fatalf("auto-train off: err = %v, want ErrModelMissing", err)
	}
	if _, err := store.Get(); err == nil {
		t.Fatal("model published with auto-train off")
	}

	snap, err := orch.EnsureModel(context.Background(), true)
	if err != nil {
		t.Fatalf("auto-train on: %v", err)
	}
	if current, _ := store.Get(); current != snap {
		t.Error("auto-trained model not published")
	}

	other, _, _ := setup(t, corpus, Options{})
	other.store = store
	loaded, err := other.EnsureModel(context.Background(), false)
	if err != nil || loaded.Version != snap.Version {
		t.Errorf("existing artifact: version=%v err=%v", loaded, err)
	}
}

func TestEnsureModelNoData(t *testing.T) {
	orch, _, _ := setup(t, records.StaticSource{}, Options{})
	if _, err := orch.EnsureModel(context.Background(), true); !errors.Is(err, apperrors.ErrModelMissing) {
		t.Errorf("err = %v, want ErrModelMissing", err)
	}
}

func TestSchedulerTick(t *testing.T) {
	orch, store, m := setup(t, corpus, Options{})
	sched := NewScheduler(orch, store, m, 5*24*time.Hour, time.Minute)

	out, err := sched.Tick(context.Background())
	if err != nil || out == nil || out.Status != StatusTrained {
		t.Fatalf("missing artifact: out=%+v err=%v", out, err)
	}
	first := out.Snapshot.Version

	if out, err := sched.Tick(context.Background()); err != nil || out != nil {
		t.Fatalf("fresh artifact: out=%+v err=%v", out, err)
	}

	old := time.Now().Add(-6 * 24 * time.Hour)
	if err := os.Chtimes(store.Path(), old, old); err != nil {
		t.Fatal(err)
	}
	out, err = sched.Tick(context.Background())
	if err != nil || out == nil || out.Status != StatusTrained {
		t.Fatalf("stale artifact: out=%+v err=%v", out, err)
	}
	if out.Snapshot.Version == first {
		t.Error("stale artifact was not replaced")
	}
	if got := testutil.ToFloat64(m.ModelEvictionsTotal); got != 1 {
		t.Errorf("evictions = %v", got)
	}
	if stale, err := store.IsStale(5 * 24 * time.Hour); err != nil || stale {
		t.Errorf("after retrain stale=%v err=%v", stale, err)
	}
}

func TestReloadHandler(t *testing.T) {
	orch, writer, m := setup(t, corpus, Options{})
	out, err := orch.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	replica := modelstore.New(writer.Path())
	var reloads atomic.Int32
	handler := ReloadHandler(replica, m, func(context.Context, *modelstore.Snapshot) { reloads.Add(1) })

	value, _ := json.Marshal(ModelTrainedEvent{Version: out.Snapshot.Version})
	msg := kafka.Message{Type: ModelTrainedEventType, Value: value}
	for range 2 {
		if err := handler(context.Background(), msg); err != nil {
			t.Fatalf("handler: %v", err)
		}
	}
	snap, err := replica.Get()
	if err != nil || snap.Version != out.Snapshot.Version {
		t.Fatalf("replica snapshot = %v, %v", snap, err)
	}
	if reloads.Load() != 1 {
		t.Errorf("reloads = %d, want 1", reloads.Load())
	}

	if err := handler(context.Background(), kafka.Message{Type: "other.event", Value: []byte("{")}); err != nil {
		t.Errorf("foreign event: %v", err)
	}
	if err := handler(context.Background(), kafka.Message{Type: ModelTrainedEventType, Value: []byte("{")}); err != nil {
		t.Errorf("malformed event: %v", err)
	}
}
