// Package analytics tracks which causes of death the service assigns.
// Classification events are batched onto Kafka by the Collector and folded
// into per-label counts and latency percentiles by the Aggregator.
package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/kafka"
)

// BatchPublisher is the subset of kafka.Producer the collector needs.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector buffers events and publishes them when the batch is full or the
// flush interval elapses, whichever comes first. Track never blocks and never
// starts goroutines: a full batch only signals the Start loop, which is the
// single flusher. After a failed flush, full batches wait for the next tick.
type Collector struct {
	producer      BatchPublisher
	mu            sync.Mutex
	buffer        []kafka.Event
	batchSize     int
	flushInterval time.Duration
	flushing      sync.Mutex
	kick          chan struct{}
	failing       atomic.Bool
	logger        *slog.Logger
	done          chan struct{}
}

func NewCollector(producer BatchPublisher, batchSize int, flushInterval time.Duration) *Collector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Collector{
		producer:      producer,
		buffer:        make([]kafka.Event, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		kick:          make(chan struct{}, 1),
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start runs the flush loop until ctx is cancelled, then flushes what is left
// with a short deadline.
func (c *Collector) Start(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()
	c.logger.Info("analytics collector started", "batch_size", c.batchSize, "flush_interval", c.flushInterval)
	for {
		select {
		case <-ticker.C:
			c.Flush(ctx)
		case <-c.kick:
			c.Flush(ctx)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			c.Flush(flushCtx)
			cancel()
			return
		}
	}
}

// Track queues an event. A full batch wakes the flush loop unless the last
// flush failed.
func (c *Collector) Track(event ClassificationEvent) {
	c.mu.Lock()
	c.buffer = append(c.buffer, kafka.Event{
		Key:   event.Label,
		Type:  EventClassification,
		Value: event,
	})
	if limit := c.batchSize * 3; len(c.buffer) > limit {
		c.buffer = c.buffer[len(c.buffer)-limit:]
	}
	full := len(c.buffer) >= c.batchSize
	c.mu.Unlock()
	if full && !c.failing.Load() {
		select {
		case c.kick <- struct{}{}:
		default:
		}
	}
}

// Done is closed once Start has returned.
func (c *Collector) Done() <-chan struct{} {
	return c.done
}

func (c *Collector) BufferLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

// Flush publishes the buffered events. On failure they are re-queued, keeping
// the newest three batches' worth.
func (c *Collector) Flush(ctx context.Context) {
	c.flushing.Lock()
	defer c.flushing.Unlock()

	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.buffer
	c.buffer = make([]kafka.Event, 0, c.batchSize)
	c.mu.Unlock()

	if err := c.producer.PublishBatch(ctx, batch); err != nil {
		c.failing.Store(true)
		c.logger.Error("analytics flush failed", "batch_size", len(batch), "error", err)
		c.mu.Lock()
		c.buffer = append(batch, c.buffer...)
		if limit := c.batchSize * 3; len(c.buffer) > limit {
			dropped := len(c.buffer) - limit
			c.logger.Warn("analytics buffer overflow, oldest events dropped", "dropped", dropped)
			c.buffer = append(make([]kafka.Event, 0, limit), c.buffer[dropped:]...)
		}
		c.mu.Unlock()
		return
	}
	c.failing.Store(false)
	c.logger.Debug("analytics batch flushed", "events", len(batch))
}
