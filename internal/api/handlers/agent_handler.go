package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ronith256/rag-agent/internal/storage/models"
	"github.com/ronith256/rag-agent/pkg/config"
	"github.com/ronith256/rag-agent/pkg/logger"
)

// AgentStore is the persistence surface the agent endpoints need.
type AgentStore interface {
	InsertAgent(ctx context.Context, agent *models.Agent) error
	GetAgent(ctx context.Context, id string) (*models.Agent, error)
	ListAgentsByUser(ctx context.Context, userID string) ([]models.Agent, error)
	UpdateAgent(ctx context.Context, agent *models.Agent) error
}

type AgentHandler struct {
	store  AgentStore
	models map[string]config.ModelInfo
}

func NewAgentHandler(store AgentStore, modelCatalog map[string]config.ModelInfo) *AgentHandler {
	return &AgentHandler{
		store:  store,
		models: modelCatalog,
	}
}

func (h *AgentHandler) CreateAgent(c *fiber.Ctx) error {
	var req struct {
		UserID string             `json:"user_id"`
		Name   string             `json:"name"`
		Config models.AgentConfig `json:"config"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.UserID == "" || req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id and name are required",
		})
	}

	if req.Config.Collection == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "config.collection is required",
		})
	}

	now := time.Now().UTC()
	agent := &models.Agent{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		Name:      req.Name,
		Config:    req.Config,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.store.InsertAgent(c.Context(), agent); err != nil {
		logger.Error("Failed to create agent", zap.Error(err))
		return errorResponse(c, err)
	}

	logger.Info("Agent created",
		zap.String("agent_id", agent.ID),
		zap.String("user_id", agent.UserID),
	)

	return c.Status(fiber.StatusCreated).JSON(agent)
}

func (h *AgentHandler) GetAgent(c *fiber.Ctx) error {
	agent, err := h.store.GetAgent(c.Context(), c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(agent)
}

func (h *AgentHandler) ListAgents(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	agents, err := h.store.ListAgentsByUser(c.Context(), userID)
	if err != nil {
		logger.Error("Failed to list agents", zap.Error(err))
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{"agents": agents})
}

// UpdateAgent applies a partial update. Only the fields present in the body
// change; config replaces wholesale when provided.
func (h *AgentHandler) UpdateAgent(c *fiber.Ctx) error {
	agent, err := h.store.GetAgent(c.Context(), c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}

	var req struct {
		Name   *string             `json:"name"`
		Config *models.AgentConfig `json:"config"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Name != nil {
		agent.Name = *req.Name
	}
	if req.Config != nil {
		agent.Config = *req.Config
	}
	agent.UpdatedAt = time.Now().UTC()

	if err := h.store.UpdateAgent(c.Context(), agent); err != nil {
		logger.Error("Failed to update agent", zap.Error(err))
		return errorResponse(c, err)
	}

	return c.JSON(agent)
}

func (h *AgentHandler) ListModels(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"models": h.models})
}
