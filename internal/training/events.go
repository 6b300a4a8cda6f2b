package training

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/modelstore"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/metrics"
)

// ModelTrainedEventType is the event-type header of ModelTrainedEvent.
const ModelTrainedEventType = "model.trained"

// ModelTrainedEvent tells every replica a new artifact has been written.
type ModelTrainedEvent struct {
	Version   string    `json:"version"`
	TrainedAt time.Time `json:"trained_at"`
	RunID     string    `json:"run_id"`
	Labels    []string  `json:"labels"`
	Documents int       `json:"documents"`
}

// ReloadHandler returns a consumer handler that reloads the artifact when an
// announced version differs from the published one. onReload runs after a
// successful reload, e.g. to drop cached results.
func ReloadHandler(store *modelstore.Store, m *metrics.Metrics, onReload func(ctx context.Context, snap *modelstore.Snapshot)) kafka.MessageHandler {
	log := slog.Default().With("component", "model-reloader")
	return func(ctx context.Context, msg kafka.Message) error {
		if msg.Type != "" && msg.Type != ModelTrainedEventType {
			return nil
		}
		event, err := kafka.DecodeJSON[ModelTrainedEvent](msg.Value)
		if err != nil {
			log.Warn("dropping malformed model event", "error", err)
			return nil
		}
		if current, err := store.Get(); err == nil && current.Version == event.Version {
			return nil
		}
		snap, err := store.Reload()
		if err != nil {
			log.Error("reloading announced model failed", "version", event.Version, "error", err)
			return err
		}
		if snap.Version != event.Version {
			log.Info("artifact on disk is newer than announced model", "announced", event.Version, "loaded", snap.Version)
		}
		RecordPublished(m, snap)
		if onReload != nil {
			onReload(ctx, snap)
		}
		return nil
	}
}
