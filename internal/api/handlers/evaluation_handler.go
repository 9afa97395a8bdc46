package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ronith256/rag-agent/internal/evaluation"
	"github.com/ronith256/rag-agent/internal/storage/models"
	"github.com/ronith256/rag-agent/pkg/logger"
)

// EvaluationStore reads job state and historical records for polling.
type EvaluationStore interface {
	GetEvaluationJob(ctx context.Context, id string) (*models.EvaluationJob, error)
	ListEvaluationRecords(ctx context.Context, agentID string) ([]models.EvaluationRecord, error)
}

type EvaluationHandler struct {
	agents AgentStore
	store  EvaluationStore
	runner *evaluation.Runner
}

func NewEvaluationHandler(agents AgentStore, store EvaluationStore, runner *evaluation.Runner) *EvaluationHandler {
	return &EvaluationHandler{
		agents: agents,
		store:  store,
		runner: runner,
	}
}

// SubmitEvaluation accepts a question/answer set and returns the job id
// immediately; the evaluation runs in the background.
func (h *EvaluationHandler) SubmitEvaluation(c *fiber.Ctx) error {
	agentID := c.Params("id")

	var req struct {
		Questions []models.QAPair `json:"questions"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	agent, err := h.agents.GetAgent(c.Context(), agentID)
	if err != nil {
		return errorResponse(c, err)
	}

	jobID, err := h.runner.Submit(c.Context(), agent, req.Questions)
	if err != nil {
		logger.Error("Failed to submit evaluation",
			zap.String("agent_id", agentID),
			zap.Error(err),
		)
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"job_id": jobID,
		"status": models.JobProcessing,
	})
}

func (h *EvaluationHandler) GetJob(c *fiber.Ctx) error {
	job, err := h.store.GetEvaluationJob(c.Context(), c.Params("job_id"))
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(job)
}

func (h *EvaluationHandler) ListRecords(c *fiber.Ctx) error {
	records, err := h.store.ListEvaluationRecords(c.Context(), c.Params("id"))
	if err != nil {
		logger.Error("Failed to list evaluation records", zap.Error(err))
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{"evaluations": records})
}
