package analytics

import "time"

// EventClassification is the event-type header for ClassificationEvent.
const EventClassification = "classification"

// ClassificationEvent records one served classification.
type ClassificationEvent struct {
	Label        string    `json:"label"`
	Confidence   float64   `json:"confidence"`
	Cached       bool      `json:"cached"`
	Tokens       int       `json:"tokens"`
	LatencyMs    float64   `json:"latency_ms"`
	ModelVersion string    `json:"model_version"`
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id"`
}
