// Package metrics exposes prometheus instrumentation and the streaming
// metrics collector that maintains per-agent per-day running averages.
package metrics

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ronith256/rag-agent/internal/storage/models"
	"github.com/ronith256/rag-agent/pkg/logger"
)

// SignalKind discriminates the two messages a streamed call may post.
type SignalKind int

const (
	// SignalFirstToken marks the emission of the first answer fragment.
	SignalFirstToken SignalKind = iota
	// SignalDone marks the end of the stream, success or failure.
	SignalDone
)

// Stream outcome labels for StreamsTotal.
const (
	StatusCompleted = "completed"
	StatusError     = "error"
)

// Signal is one message on a call's signal channel. The protocol is strict:
// zero or one SignalFirstToken, then exactly one SignalDone.
type Signal struct {
	Kind   SignalKind
	At     time.Time
	Status string
}

// NewSignalChannel returns a channel sized for the full protocol, so the
// posting side never blocks on the collector.
func NewSignalChannel() chan Signal {
	return make(chan Signal, 2)
}

// Store persists daily call metrics.
type Store interface {
	RecordCall(ctx context.Context, agentID string, day time.Time) error
	RecordLatency(ctx context.Context, agentID string, day time.Time, firstTokenLatency, totalResponseTime float64) error
}

const storeTimeout = 5 * time.Second

// Collector observes streamed calls without mediating them. Persistence
// failures are logged and counted, never surfaced to the caller.
type Collector struct {
	store Store
}

func NewCollector(store Store) *Collector {
	return &Collector{store: store}
}

// Observe consumes one call's signal channel and merges the observation into
// the agent's daily metric. Run it in its own goroutine; it returns once the
// completion signal arrives and the store update finishes.
func (c *Collector) Observe(agentID string, start time.Time, signals <-chan Signal) {
	var (
		firstAt   time.Time
		haveFirst bool
		endAt     = start
		status    = StatusCompleted
	)

	for sig := range signals {
		switch sig.Kind {
		case SignalFirstToken:
			firstAt = sig.At
			haveFirst = true
		case SignalDone:
			endAt = sig.At
			if sig.Status != "" {
				status = sig.Status
			}
		}
		if sig.Kind == SignalDone {
			break
		}
	}

	StreamsTotal.WithLabelValues(status).Inc()

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	day := models.MidnightUTC(start)

	var err error
	if haveFirst {
		firstTokenLatency := firstAt.Sub(start).Seconds()
		totalResponseTime := endAt.Sub(start).Seconds()

		FirstTokenLatency.Observe(firstTokenLatency)
		StreamDuration.Observe(totalResponseTime)

		err = c.store.RecordLatency(ctx, agentID, day, firstTokenLatency, totalResponseTime)
	} else {
		err = c.store.RecordCall(ctx, agentID, day)
	}

	if err != nil {
		MetricUpdateFailures.Inc()
		logger.Error("Daily metric update failed",
			zap.String("agent_id", agentID),
			zap.Error(err),
		)
	}
}
