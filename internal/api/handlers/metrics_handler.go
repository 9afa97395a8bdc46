package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ronith256/rag-agent/internal/storage/models"
	"github.com/ronith256/rag-agent/pkg/logger"
)

// MetricsStore reads the per-agent daily call metrics.
type MetricsStore interface {
	GetDailyMetrics(ctx context.Context, agentID string, from, to time.Time) ([]models.DailyMetric, error)
}

type MetricsHandler struct {
	store MetricsStore
}

func NewMetricsHandler(store MetricsStore) *MetricsHandler {
	return &MetricsHandler{store: store}
}

// GetDailyMetrics returns the agent's daily metrics for an inclusive date
// range. Dates are YYYY-MM-DD; the default window is the last 30 days.
func (h *MetricsHandler) GetDailyMetrics(c *fiber.Ctx) error {
	agentID := c.Params("id")

	to := models.MidnightUTC(time.Now())
	from := to.AddDate(0, 0, -30)

	if s := c.Query("from"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "from must be YYYY-MM-DD",
			})
		}
		from = models.MidnightUTC(t)
	}
	if s := c.Query("to"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "to must be YYYY-MM-DD",
			})
		}
		to = models.MidnightUTC(t)
	}

	metrics, err := h.store.GetDailyMetrics(c.Context(), agentID, from, to)
	if err != nil {
		logger.Error("Failed to read daily metrics",
			zap.String("agent_id", agentID),
			zap.Error(err),
		)
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{"metrics": metrics})
}
