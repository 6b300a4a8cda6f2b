package analytics

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/kafka"
)

// maxLatencySamples bounds the window percentiles are computed over.
const maxLatencySamples = 10000

// Stats is a point-in-time view of classification activity.
type Stats struct {
	TotalClassifications int64        `json:"total_classifications"`
	CacheHits            int64        `json:"cache_hits"`
	CacheMisses          int64        `json:"cache_misses"`
	CacheHitRatio        float64      `json:"cache_hit_ratio"`
	AvgConfidence        float64      `json:"avg_confidence"`
	AvgLatencyMs         float64      `json:"avg_latency_ms"`
	P50LatencyMs         float64      `json:"p50_latency_ms"`
	P95LatencyMs         float64      `json:"p95_latency_ms"`
	P99LatencyMs         float64      `json:"p99_latency_ms"`
	Labels               []LabelCount `json:"labels"`
	ModelVersions        []LabelCount `json:"model_versions"`
	PerMinute            float64      `json:"classifications_per_minute"`
	Since                time.Time    `json:"since"`
}

// LabelCount is one row of a distribution, Share being its fraction of the
// total.
type LabelCount struct {
	Label string  `json:"label"`
	Count int64   `json:"count"`
	Share float64 `json:"share"`
}

// Aggregator folds events into mortality-by-category counts.
type Aggregator struct {
	mu            sync.Mutex
	total         int64
	cacheHits     int64
	confidenceSum float64
	latencies     []float64
	next          int
	labels        map[string]int64
	versions      map[string]int64
	startTime     time.Time
	now           func() time.Time
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies: make([]float64, 0, 1024),
		labels:    make(map[string]int64),
		versions:  make(map[string]int64),
		startTime: time.Now(),
		now:       time.Now,
	}
}

// Track records an event in process; it lets the Aggregator stand in for a
// Collector when Kafka is disabled.
func (a *Aggregator) Track(event ClassificationEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total++
	if event.Cached {
		a.cacheHits++
	}
	a.confidenceSum += event.Confidence
	a.labels[event.Label]++
	if event.ModelVersion != "" {
		a.versions[event.ModelVersion]++
	}
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}
}

// HandleEvent feeds consumed Kafka messages into agg.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		if msg.Type != "" && msg.Type != EventClassification {
			return nil
		}
		event, err := kafka.DecodeJSON[ClassificationEvent](msg.Value)
		if err != nil {
			// Undecodable messages are skipped.
			return nil
		}
		agg.Track(event)
		return nil
	}
}

func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := Stats{
		TotalClassifications: a.total,
		CacheHits:            a.cacheHits,
		CacheMisses:          a.total - a.cacheHits,
		Labels:               distribution(a.labels, a.total),
		ModelVersions:        distribution(a.versions, a.total),
		Since:                a.startTime.UTC(),
	}
	if a.total > 0 {
		stats.CacheHitRatio = float64(a.cacheHits) / float64(a.total)
		stats.AvgConfidence = a.confidenceSum / float64(a.total)
	}
	if len(a.latencies) > 0 {
		sorted := append([]float64(nil), a.latencies...)
		sort.Float64s(sorted)
		var sum float64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = sum / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	if elapsed := a.now().Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.PerMinute = float64(a.total) / elapsed
	}
	return stats
}

func percentile(sorted []float64, pct int) float64 {
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// distribution sorts by count descending, then label, so output is stable.
func distribution(counts map[string]int64, total int64) []LabelCount {
	out := make([]LabelCount, 0, len(counts))
	for label, n := range counts {
		lc := LabelCount{Label: label, Count: n}
		if total > 0 {
			lc.Share = float64(n) / float64(total)
		}
		out = append(out, lc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}
