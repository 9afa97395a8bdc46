package evaluation

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ronith256/rag-agent/internal/shared"
	"github.com/ronith256/rag-agent/internal/storage/models"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 2}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCosineSymmetric(t *testing.T) {
	a := []float32{0.3, 0.7, 0.1}
	b := []float32{0.5, 0.2, 0.9}

	if Cosine(a, b) != Cosine(b, a) {
		t.Error("Cosine is not symmetric")
	}
}

func TestAggregate(t *testing.T) {
	agg := Aggregate([]float64{0.2, 0.8, 0.5})
	if agg == nil {
		t.Fatal("Aggregate returned nil for non-empty scores")
	}
	if math.Abs(agg.Mean-0.5) > 1e-9 {
		t.Errorf("mean = %v, want 0.5", agg.Mean)
	}
	if agg.Median != 0.5 {
		t.Errorf("median = %v, want 0.5", agg.Median)
	}
	if agg.Min != 0.2 || agg.Max != 0.8 {
		t.Errorf("min/max = %v/%v", agg.Min, agg.Max)
	}
	wantStd := math.Sqrt((0.09 + 0 + 0.09) / 3)
	if math.Abs(agg.Std-wantStd) > 1e-9 {
		t.Errorf("std = %v, want %v", agg.Std, wantStd)
	}
}

func TestAggregateEvenCountMedian(t *testing.T) {
	agg := Aggregate([]float64{0.1, 0.2, 0.6, 0.9})
	if math.Abs(agg.Median-0.4) > 1e-9 {
		t.Errorf("median = %v, want 0.4", agg.Median)
	}
}

func TestAggregateEmpty(t *testing.T) {
	if agg := Aggregate(nil); agg != nil {
		t.Errorf("Aggregate(nil) = %+v, want nil", agg)
	}
}

type memStore struct {
	mu       sync.Mutex
	job      *models.EvaluationJob
	records  []*models.EvaluationRecord
	finished chan struct{}
}

func newMemStore() *memStore {
	return &memStore{finished: make(chan struct{})}
}

func (s *memStore) CreateEvaluationJob(_ context.Context, job *models.EvaluationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *job
	s.job = &copied
	return nil
}

func (s *memStore) UpdateJobProgress(_ context.Context, id string, processed int, progress float64, itemErrors []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.job.ProcessedQuestions = processed
	s.job.Progress = progress
	s.job.Errors = append([]string(nil), itemErrors...)
	return nil
}

func (s *memStore) FinishJob(_ context.Context, id string, status models.JobStatus, jobErr string, at time.Time) error {
	s.mu.Lock()
	s.job.Status = status
	s.job.Error = jobErr
	s.job.CompletionTime = &at
	if status == models.JobCompleted {
		s.job.Progress = 1.0
	}
	s.mu.Unlock()
	close(s.finished)
	return nil
}

func (s *memStore) InsertEvaluationRecord(_ context.Context, record *models.EvaluationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *memStore) wait(t *testing.T) *models.EvaluationJob {
	t.Helper()
	select {
	case <-s.finished:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not reach a terminal status")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *s.job
	return &copied
}

type fakeAnswerer struct {
	answerFn func(question string) (string, error)
	closed   bool
}

func (f *fakeAnswerer) Invoke(_ context.Context, question string, _ []models.ChatTurn) (string, error) {
	return f.answerFn(question)
}

func (f *fakeAnswerer) Close() error {
	f.closed = true
	return nil
}

type fakeEmbedder struct{}

// Embed maps equal texts to equal vectors, so reference-equal answers score 1.
func (fakeEmbedder) Embed(_ context.Context, text, _ string) ([]float32, error) {
	var vec [8]float32
	for i, r := range text {
		vec[i%8] += float32(r)
	}
	return vec[:], nil
}

func evalAgent() *models.Agent {
	return &models.Agent{
		ID:     "agent-1",
		Config: models.AgentConfig{Collection: "docs", Model: "gpt-4"},
	}
}

func TestRunnerCompletesAndScores(t *testing.T) {
	store := newMemStore()
	answerer := &fakeAnswerer{answerFn: func(question string) (string, error) {
		return "echo: " + question, nil
	}}
	runner := NewRunner(store, func(_ *models.Agent) (Answerer, error) {
		return answerer, nil
	}, fakeEmbedder{})

	pairs := []models.QAPair{
		{Question: "q1", Answer: "echo: q1"},
		{Question: "q2", Answer: "something else entirely"},
	}

	jobID, err := runner.Submit(context.Background(), evalAgent(), pairs)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if jobID == "" {
		t.Fatal("empty job id")
	}

	job := store.wait(t)
	if job.Status != models.JobCompleted {
		t.Errorf("status = %v, want completed", job.Status)
	}
	if job.ProcessedQuestions != 2 {
		t.Errorf("processed = %d, want 2", job.ProcessedQuestions)
	}
	if job.Progress != 1.0 {
		t.Errorf("progress = %v, want 1.0", job.Progress)
	}
	if !answerer.closed {
		t.Error("pipeline not closed after the job")
	}

	if len(store.records) != 1 {
		t.Fatalf("got %d records, want 1", len(store.records))
	}
	record := store.records[0]
	if len(record.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(record.Results))
	}
	if math.Abs(record.Results[0].SimilarityScore-1.0) > 1e-6 {
		t.Errorf("identical answers scored %v, want 1.0", record.Results[0].SimilarityScore)
	}
	if record.Aggregate == nil {
		t.Fatal("aggregate missing on a successful job")
	}
}

func TestRunnerContinuesPastItemFailure(t *testing.T) {
	store := newMemStore()
	answerer := &fakeAnswerer{answerFn: func(question string) (string, error) {
		if question == "q2" {
			return "", errors.New("upstream timeout")
		}
		return "fine", nil
	}}
	runner := NewRunner(store, func(_ *models.Agent) (Answerer, error) {
		return answerer, nil
	}, fakeEmbedder{})

	pairs := []models.QAPair{
		{Question: "q1", Answer: "fine"},
		{Question: "q2", Answer: "never generated"},
		{Question: "q3", Answer: "fine"},
	}

	if _, err := runner.Submit(context.Background(), evalAgent(), pairs); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	job := store.wait(t)
	if job.Status != models.JobCompleted {
		t.Errorf("status = %v, want completed despite the item failure", job.Status)
	}
	if job.ProcessedQuestions != 3 {
		t.Errorf("processed = %d, want 3 (failed items count as processed)", job.ProcessedQuestions)
	}
	if len(job.Errors) != 1 {
		t.Fatalf("errors = %v, want one entry", job.Errors)
	}
	if !strings.HasPrefix(job.Errors[0], "Error on question 2:") {
		t.Errorf("error entry = %q, want 1-based question position", job.Errors[0])
	}

	record := store.records[0]
	if len(record.Results) != 2 {
		t.Errorf("got %d results, want 2 successes", len(record.Results))
	}
}

func TestRunnerAllItemsFail(t *testing.T) {
	store := newMemStore()
	runner := NewRunner(store, func(_ *models.Agent) (Answerer, error) {
		return &fakeAnswerer{answerFn: func(string) (string, error) {
			return "", errors.New("boom")
		}}, nil
	}, fakeEmbedder{})

	pairs := []models.QAPair{{Question: "q1", Answer: "a1"}}
	if _, err := runner.Submit(context.Background(), evalAgent(), pairs); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	job := store.wait(t)
	if job.Status != models.JobCompleted {
		t.Errorf("status = %v, want completed", job.Status)
	}
	if store.records[0].Aggregate != nil {
		t.Error("aggregate should be absent when no item scored")
	}
}

func TestRunnerBuildFailureFailsJob(t *testing.T) {
	store := newMemStore()
	runner := NewRunner(store, func(_ *models.Agent) (Answerer, error) {
		return nil, errors.New("milvus unreachable")
	}, fakeEmbedder{})

	pairs := []models.QAPair{{Question: "q1", Answer: "a1"}}
	if _, err := runner.Submit(context.Background(), evalAgent(), pairs); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	job := store.wait(t)
	if job.Status != models.JobFailed {
		t.Errorf("status = %v, want failed", job.Status)
	}
	if job.Error == "" {
		t.Error("failed job carries no error")
	}
	if len(store.records) != 1 || store.records[0].Status != models.JobFailed {
		t.Errorf("failed record not written: %+v", store.records)
	}
}

func TestSubmitRejectsEmptyPayload(t *testing.T) {
	runner := NewRunner(newMemStore(), nil, fakeEmbedder{})

	_, err := runner.Submit(context.Background(), evalAgent(), nil)
	if !errors.Is(err, shared.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestSubmitRejectsBlankItems(t *testing.T) {
	runner := NewRunner(newMemStore(), nil, fakeEmbedder{})

	_, err := runner.Submit(context.Background(), evalAgent(), []models.QAPair{{Question: "q", Answer: ""}})
	if !errors.Is(err, shared.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}
