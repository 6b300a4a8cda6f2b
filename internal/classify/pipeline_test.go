package classify_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/classify"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/modelstore"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/records"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/training"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/metrics"
)

// TestSQLiteToHTTP trains from a real SQLite record store and serves the
// result over HTTP, the way cmd/classifier wires it.
func TestSQLiteToHTTP(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	src, err := records.OpenSQLite(ctx, filepath.Join(dir, "records.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { src.Close() })
	for _, r := range []records.Record{
		{Findings: "gunshot wound to the chest", CauseOfDeath: "homicide"},
		{Findings: "multiple gunshot wounds", CauseOfDeath: "assault"},
		{Findings: "water in lungs", CauseOfDeath: "drowning"},
		{Findings: "froth in airways, water in lungs", CauseOfDeath: "drowned in lake"},
		{Findings: "coronary artery occlusion", CauseOfDeath: "myocardial infarction"},
		{Findings: "enlarged heart", CauseOfDeath: "heart failure"},
		{Findings: "", CauseOfDeath: ""},
	} {
		if err := src.Insert(ctx, r); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	m := metrics.New(prometheus.NewRegistry())
	store := modelstore.New(filepath.Join(dir, "model", "classifier.ccnb"))
	orch := training.NewOrchestrator(src, store, m, training.Options{})
	first, err := orch.EnsureModel(ctx, true)
	if err != nil {
		t.Fatalf("EnsureModel: %v", err)
	}

	agg := analytics.NewAggregator()
	svc := classify.NewService(store, nil, agg, m)
	h := classify.NewHandler(svc, store, orch, 5*24*time.Hour)
	mux := http.NewServeMux()
	h.Register(mux, nil)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	body, _ := json.Marshal(map[string]string{"findings": "water in the lungs", "cause_of_death": ""})
	resp, err := http.Post(srv.URL+"/api/v1/classify", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST classify: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("classify status = %d", resp.StatusCode)
	}
	var result classify.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if result.Label != "asphyxia_drowning" {
		t.Errorf("label = %q, want asphyxia_drowning", result.Label)
	}
	if result.ModelVersion != first.Version {
		t.Errorf("model_version = %q, want %q", result.ModelVersion, first.Version)
	}
	if got := agg.Stats().TotalClassifications; got != 1 {
		t.Errorf("aggregated classifications = %d, want 1", got)
	}

	retrain, err := http.Post(srv.URL+"/api/v1/model/retrain", "application/json", nil)
	if err != nil {
		t.Fatalf("POST retrain: %v", err)
	}
	retrain.Body.Close()
	if retrain.StatusCode != http.StatusAccepted {
		t.Fatalf("retrain status = %d, want 202", retrain.StatusCode)
	}
	current, err := store.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if current.Version == first.Version {
		t.Error("retrain should publish a new version")
	}
	if got := current.Model.TotalDocuments(); got != 6 {
		t.Errorf("documents = %d, want 6 (blank row dropped)", got)
	}
}
