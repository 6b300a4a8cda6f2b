package classify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/modelstore"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/training"
	apperrors "github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/logger"
	"github.com/goccy/go-json"
)

// Trainer triggers training runs; satisfied by *training.Orchestrator.
type Trainer interface {
	Run(ctx context.Context) (*training.Outcome, error)
	Running() bool
}

type Handler struct {
	service *Service
	store   *modelstore.Store
	trainer Trainer
	maxAge  time.Duration
	logger  *slog.Logger
}

func NewHandler(service *Service, store *modelstore.Store, trainer Trainer, maxAge time.Duration) *Handler {
	return &Handler{
		service: service,
		store:   store,
		trainer: trainer,
		maxAge:  maxAge,
		logger:  slog.Default().With("component", "classify-handler"),
	}
}

// RetrainRoute runs training inside the request, bounded by the training
// timeout rather than the server's request timeout.
const RetrainRoute = "POST /api/v1/model/retrain"

// Register mounts the API routes on mux. retrainGuard wraps the manual
// retrain route, typically with a rate limiter.
func (h *Handler) Register(mux *http.ServeMux, retrainGuard func(http.Handler) http.Handler) {
	mux.HandleFunc("POST /api/v1/classify", h.Classify)
	mux.HandleFunc("GET /api/v1/model", h.ModelStatus)
	var retrain http.Handler = http.HandlerFunc(h.Retrain)
	if retrainGuard != nil {
		retrain = retrainGuard(retrain)
	}
	mux.Handle(RetrainRoute, retrain)
}

type classifyRequest struct {
	Findings     string `json:"findings"`
	CauseOfDeath string `json:"cause_of_death"`
}

func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 2*MaxFieldBytes+4096))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return
		}
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reading request body failed"})
		return
	}
	var req classifyRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	result, err := h.service.Classify(r.Context(), req.Findings, req.CauseOfDeath)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

type modelStatus struct {
	Version            string    `json:"version"`
	TrainedAt          time.Time `json:"trained_at"`
	AgeSeconds         int64     `json:"age_seconds"`
	Labels             []string  `json:"labels"`
	Documents          int       `json:"documents"`
	Vocabulary         int       `json:"vocabulary"`
	Smoothing          float64   `json:"smoothing"`
	ArtifactPresent    bool      `json:"artifact_present"`
	Stale              bool      `json:"stale"`
	TrainingInProgress bool      `json:"training_in_progress"`
}

func (h *Handler) ModelStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := h.store.Get()
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	status := modelStatus{
		Version:            snap.Version,
		TrainedAt:          snap.TrainedAt,
		AgeSeconds:         int64(time.Since(snap.TrainedAt).Seconds()),
		Labels:             snap.Model.Labels(),
		Documents:          snap.Model.TotalDocuments(),
		Vocabulary:         snap.Model.VocabularySize(),
		Smoothing:          snap.Model.Smoothing(),
		TrainingInProgress: h.trainer != nil && h.trainer.Running(),
	}
	stale, err := h.store.IsStale(h.maxAge)
	switch {
	case err == nil:
		status.ArtifactPresent = true
		status.Stale = stale
	case errors.Is(err, apperrors.ErrModelMissing):
		status.Stale = true
	default:
		h.writeError(r.Context(), w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

type retrainResponse struct {
	RunID       string         `json:"run_id"`
	Status      string         `json:"status"`
	Version     string         `json:"version,omitempty"`
	Records     int            `json:"records"`
	Documents   int            `json:"documents"`
	AutoLabeled int            `json:"auto_labeled"`
	Labels      map[string]int `json:"labels,omitempty"`
	DurationMs  int64          `json:"duration_ms"`
}

// Retrain runs training synchronously: 202 when a new model was published,
// 200 when there was nothing to train on, 409 when a run is already going.
func (h *Handler) Retrain(w http.ResponseWriter, r *http.Request) {
	if h.trainer == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "training is not configured"})
		return
	}
	log := logger.FromContext(r.Context())
	// The run outlives a disconnected client; its own timeout bounds it.
	out, err := h.trainer.Run(context.WithoutCancel(r.Context()))
	if err != nil {
		log.Error("manual retrain failed", "error", err)
		h.writeError(r.Context(), w, err)
		return
	}
	resp := retrainResponse{
		RunID:       out.RunID,
		Status:      string(out.Status),
		Records:     out.Records,
		Documents:   out.Documents,
		AutoLabeled: out.AutoLabeled,
		Labels:      out.LabelCounts,
		DurationMs:  out.Duration.Milliseconds(),
	}
	switch out.Status {
	case training.StatusTrained:
		resp.Version = out.Snapshot.Version
		if err := h.service.InvalidateCache(r.Context()); err != nil {
			log.Warn("cache invalidation after retrain failed", "error", err)
		}
		h.writeJSON(w, http.StatusAccepted, resp)
	case training.StatusSkippedBusy:
		h.writeJSON(w, http.StatusConflict, map[string]string{
			"error":  apperrors.ErrTrainingInProgress.Error(),
			"run_id": out.RunID,
		})
	default:
		h.writeJSON(w, http.StatusOK, resp)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logger.FromContext(ctx).Error("request failed", "error", err)
		msg = apperrors.ErrInternal.Error()
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}
