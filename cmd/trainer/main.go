package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/modelstore"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/records"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/training"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/redis"
)

// Exit codes let schedulers tell a skipped run from a failed one.
const (
	exitFailed = 1
	exitNoData = 2
	exitBusy   = 3
)

type summary struct {
	RunID       string           `json:"run_id"`
	Status      training.Status  `json:"status"`
	Records     int              `json:"records"`
	Documents   int              `json:"documents"`
	AutoLabeled int              `json:"auto_labeled"`
	LabelCounts map[string]int   `json:"label_counts,omitempty"`
	Version     string           `json:"model_version,omitempty"`
	Path        string           `json:"model_path"`
	DurationMs  int64            `json:"duration_ms"`
	StagesMs    map[string]int64 `json:"stages_ms,omitempty"`
}

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	importPath := flag.String("import", "", "CSV of findings,cause_of_death[,category] rows to load into the sqlite record store before training")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(exitFailed)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, cfg, *importPath))
}

func run(ctx context.Context, cfg *config.Config, importPath string) int {
	source, err := records.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open record store", "driver", cfg.Records.Driver, "error", err)
		return exitFailed
	}
	defer source.Close()

	if importPath != "" {
		sqlite, ok := source.(*records.SQLiteSource)
		if !ok {
			slog.Error("-import requires the sqlite records driver", "driver", cfg.Records.Driver)
			return exitFailed
		}
		n, err := importCSV(ctx, sqlite, importPath)
		if err != nil {
			slog.Error("import failed", "path", importPath, "error", err)
			return exitFailed
		}
		slog.Info("records imported", "path", importPath, "rows", n)
	}

	opts := training.Options{
		Smoothing: cfg.Model.Smoothing,
		Timeout:   cfg.Model.TrainingTimeout,
	}
	if rc, err := pkgredis.NewClient(cfg.Redis); err != nil {
		slog.Warn("redis unavailable, training without the shared lock", "error", err)
	} else {
		defer rc.Close()
		opts.Locker = rc
	}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ModelTrained)
		defer producer.Close()
		opts.Publisher = producer
	}

	store := modelstore.New(cfg.Model.Path)
	orch := training.NewOrchestrator(source, store, metrics.New(prometheus.NewRegistry()), opts)
	out, err := orch.Run(ctx)
	if err != nil {
		slog.Error("training failed", "error", err)
		return exitFailed
	}

	s := summary{
		RunID:       out.RunID,
		Status:      out.Status,
		Records:     out.Records,
		Documents:   out.Documents,
		AutoLabeled: out.AutoLabeled,
		LabelCounts: out.LabelCounts,
		Path:        store.Path(),
		DurationMs:  out.Duration.Milliseconds(),
		StagesMs:    out.Stages,
	}
	if out.Snapshot != nil {
		s.Version = out.Snapshot.Version
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		slog.Error("writing summary", "error", err)
	}

	switch out.Status {
	case training.StatusSkippedNoData:
		return exitNoData
	case training.StatusSkippedBusy:
		return exitBusy
	}
	return 0
}

// importCSV inserts every row of the file at path. A header row whose first
// cell is "findings" is skipped.
func importCSV(ctx context.Context, dst *records.SQLiteSource, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	n := 0
	for line := 1; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		if line == 1 && len(row) > 0 && row[0] == "findings" {
			continue
		}
		if len(row) < 2 {
			return n, fmt.Errorf("line %d: want at least 2 columns, got %d", line, len(row))
		}
		rec := records.Record{Findings: row[0], CauseOfDeath: row[1]}
		if len(row) > 2 {
			rec.Category = row[2]
		}
		if err := dst.Insert(ctx, rec); err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		n++
	}
}
