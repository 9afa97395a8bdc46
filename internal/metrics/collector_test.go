package metrics

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/ronith256/rag-agent/internal/storage/models"
)

type fakeStore struct {
	calls     []string
	latencies []struct {
		agentID    string
		day        time.Time
		firstToken float64
		total      float64
	}
	err error
}

func (f *fakeStore) RecordCall(_ context.Context, agentID string, day time.Time) error {
	f.calls = append(f.calls, agentID)
	return f.err
}

func (f *fakeStore) RecordLatency(_ context.Context, agentID string, day time.Time, firstToken, total float64) error {
	f.latencies = append(f.latencies, struct {
		agentID    string
		day        time.Time
		firstToken float64
		total      float64
	}{agentID, day, firstToken, total})
	return f.err
}

func TestObserveRecordsLatenciesFromSignals(t *testing.T) {
	store := &fakeStore{}
	collector := NewCollector(store)

	start := time.Now()
	signals := NewSignalChannel()
	signals <- Signal{Kind: SignalFirstToken, At: start.Add(200 * time.Millisecond)}
	signals <- Signal{Kind: SignalDone, At: start.Add(time.Second), Status: StatusCompleted}
	close(signals)

	collector.Observe("agent-1", start, signals)

	if len(store.calls) != 0 {
		t.Errorf("RecordCall invoked %d times, want 0", len(store.calls))
	}
	if len(store.latencies) != 1 {
		t.Fatalf("RecordLatency invoked %d times, want 1", len(store.latencies))
	}

	obs := store.latencies[0]
	if obs.agentID != "agent-1" {
		t.Errorf("agent id = %q", obs.agentID)
	}
	if math.Abs(obs.firstToken-0.2) > 1e-9 {
		t.Errorf("first token latency = %v, want 0.2", obs.firstToken)
	}
	if math.Abs(obs.total-1.0) > 1e-9 {
		t.Errorf("total response time = %v, want 1.0", obs.total)
	}
	if !obs.day.Equal(models.MidnightUTC(start)) {
		t.Errorf("day = %v, want midnight UTC of start", obs.day)
	}
}

func TestObserveWithoutFirstTokenOnlyCountsCall(t *testing.T) {
	store := &fakeStore{}
	collector := NewCollector(store)

	start := time.Now()
	signals := NewSignalChannel()
	signals <- Signal{Kind: SignalDone, At: start.Add(50 * time.Millisecond), Status: StatusError}
	close(signals)

	collector.Observe("agent-1", start, signals)

	if len(store.latencies) != 0 {
		t.Errorf("RecordLatency invoked %d times, want 0", len(store.latencies))
	}
	if len(store.calls) != 1 {
		t.Errorf("RecordCall invoked %d times, want 1", len(store.calls))
	}
}

func TestSignalChannelNeverBlocksSender(t *testing.T) {
	// The posting side must be able to complete the full protocol before the
	// collector reads anything.
	signals := NewSignalChannel()

	done := make(chan struct{})
	go func() {
		signals <- Signal{Kind: SignalFirstToken, At: time.Now()}
		signals <- Signal{Kind: SignalDone, At: time.Now()}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("posting both signals blocked without a consumer")
	}
}
