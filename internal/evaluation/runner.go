// Package evaluation runs background batch evaluations of an agent's answers
// against a reference question/answer set.
package evaluation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ronith256/rag-agent/internal/metrics"
	"github.com/ronith256/rag-agent/internal/shared"
	"github.com/ronith256/rag-agent/internal/storage/models"
	"github.com/ronith256/rag-agent/pkg/logger"
)

// JobStore persists job lifecycle state and terminal records.
type JobStore interface {
	CreateEvaluationJob(ctx context.Context, job *models.EvaluationJob) error
	UpdateJobProgress(ctx context.Context, id string, processed int, progress float64, itemErrors []string) error
	FinishJob(ctx context.Context, id string, status models.JobStatus, jobErr string, at time.Time) error
	InsertEvaluationRecord(ctx context.Context, record *models.EvaluationRecord) error
}

// Answerer produces a non-streamed answer for one question.
// *pipeline.Pipeline satisfies it.
type Answerer interface {
	Invoke(ctx context.Context, question string, history []models.ChatTurn) (string, error)
	Close() error
}

// BuildFunc constructs the answering pipeline for an agent.
type BuildFunc func(agent *models.Agent) (Answerer, error)

// Embedder embeds answer text for similarity scoring.
type Embedder interface {
	Embed(ctx context.Context, text, model string) ([]float32, error)
}

// Runner owns the evaluation job lifecycle. Jobs run sequentially in a
// background goroutine; item failures are recorded and skipped, structural
// failures terminate the job as failed.
type Runner struct {
	store    JobStore
	build    BuildFunc
	embedder Embedder
}

func NewRunner(store JobStore, build BuildFunc, embedder Embedder) *Runner {
	return &Runner{
		store:    store,
		build:    build,
		embedder: embedder,
	}
}

// Submit validates the payload, persists the job in its processing state, and
// starts the background worker. The job is visible to pollers before Submit
// returns.
func (r *Runner) Submit(ctx context.Context, agent *models.Agent, pairs []models.QAPair) (string, error) {
	if len(pairs) == 0 {
		return "", shared.Validationf("evaluation payload must contain at least one question")
	}
	for i, pair := range pairs {
		if pair.Question == "" || pair.Answer == "" {
			return "", shared.Validationf("evaluation item %d is missing a question or answer", i+1)
		}
	}

	job := &models.EvaluationJob{
		ID:             uuid.New().String(),
		AgentID:        agent.ID,
		Status:         models.JobProcessing,
		TotalQuestions: len(pairs),
		CreatedAt:      time.Now().UTC(),
	}

	if err := r.store.CreateEvaluationJob(ctx, job); err != nil {
		return "", err
	}

	logger.Info("Evaluation job submitted",
		zap.String("job_id", job.ID),
		zap.String("agent_id", agent.ID),
		zap.Int("total_questions", job.TotalQuestions),
	)

	go r.run(job, agent, pairs)

	return job.ID, nil
}

// run is detached from the submitting request; it uses a background context
// so client disconnects never abort the job.
func (r *Runner) run(job *models.EvaluationJob, agent *models.Agent, pairs []models.QAPair) {
	ctx := context.Background()

	embedModel := ""
	if agent.Config.Embeddings != nil {
		embedModel = agent.Config.Embeddings.Model
	}

	answerer, err := r.build(agent)
	if err != nil {
		r.fail(ctx, job, err)
		return
	}
	defer answerer.Close()

	var (
		results    []models.EvaluationResult
		scores     []float64
		itemErrors []string
	)

	for i, pair := range pairs {
		generated, score, itemErr := r.scoreItem(ctx, answerer, embedModel, pair)
		if itemErr != nil {
			itemErrors = append(itemErrors, fmt.Sprintf("Error on question %d: %v", i+1, itemErr))
			metrics.EvaluationItemsTotal.WithLabelValues("error").Inc()
			logger.Warn("Evaluation item failed",
				zap.String("job_id", job.ID),
				zap.Int("question", i+1),
				zap.Error(itemErr),
			)
		} else {
			results = append(results, models.EvaluationResult{
				Question:        pair.Question,
				OriginalAnswer:  pair.Answer,
				GeneratedAnswer: generated,
				SimilarityScore: score,
			})
			scores = append(scores, score)
			metrics.EvaluationItemsTotal.WithLabelValues("completed").Inc()
		}

		processed := i + 1
		progress := float64(processed) / float64(job.TotalQuestions)
		if err := r.store.UpdateJobProgress(ctx, job.ID, processed, progress, itemErrors); err != nil {
			logger.Error("Evaluation progress update failed",
				zap.String("job_id", job.ID),
				zap.Error(err),
			)
		}
	}

	now := time.Now().UTC()
	record := &models.EvaluationRecord{
		JobID:     job.ID,
		AgentID:   job.AgentID,
		Timestamp: now,
		Results:   results,
		Aggregate: Aggregate(scores),
		Status:    models.JobCompleted,
	}

	if err := r.store.InsertEvaluationRecord(ctx, record); err != nil {
		r.fail(ctx, job, err)
		return
	}

	if err := r.store.FinishJob(ctx, job.ID, models.JobCompleted, "", now); err != nil {
		logger.Error("Evaluation job finalization failed",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	}
	metrics.EvaluationJobsTotal.WithLabelValues(string(models.JobCompleted)).Inc()

	logger.Info("Evaluation job completed",
		zap.String("job_id", job.ID),
		zap.Int("scored", len(scores)),
		zap.Int("failed", len(itemErrors)),
	)
}

func (r *Runner) scoreItem(ctx context.Context, answerer Answerer, embedModel string, pair models.QAPair) (string, float64, error) {
	generated, err := answerer.Invoke(ctx, pair.Question, nil)
	if err != nil {
		return "", 0, err
	}

	refVec, err := r.embedder.Embed(ctx, pair.Answer, embedModel)
	if err != nil {
		return "", 0, err
	}

	genVec, err := r.embedder.Embed(ctx, generated, embedModel)
	if err != nil {
		return "", 0, err
	}

	return generated, Cosine(refVec, genVec), nil
}

// fail terminates the job with a structural error. The failed record is
// best-effort; the job row is the source of truth for status.
func (r *Runner) fail(ctx context.Context, job *models.EvaluationJob, cause error) {
	logger.Error("Evaluation job failed",
		zap.String("job_id", job.ID),
		zap.Error(cause),
	)

	now := time.Now().UTC()

	if err := r.store.InsertEvaluationRecord(ctx, &models.EvaluationRecord{
		JobID:     job.ID,
		AgentID:   job.AgentID,
		Timestamp: now,
		Status:    models.JobFailed,
		Error:     cause.Error(),
	}); err != nil {
		logger.Error("Failed evaluation record insert failed",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	}

	if err := r.store.FinishJob(ctx, job.ID, models.JobFailed, cause.Error(), now); err != nil {
		logger.Error("Evaluation job finalization failed",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	}
	metrics.EvaluationJobsTotal.WithLabelValues(string(models.JobFailed)).Inc()
}
