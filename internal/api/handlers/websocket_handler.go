package handlers

import (
	"context"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/ronith256/rag-agent/internal/metrics"
	"github.com/ronith256/rag-agent/internal/pipeline"
	"github.com/ronith256/rag-agent/internal/shared"
	"github.com/ronith256/rag-agent/internal/storage/models"
	"github.com/ronith256/rag-agent/pkg/logger"
)

type WebSocketHandler struct {
	store     AgentStore
	builder   *pipeline.Builder
	collector *metrics.Collector
}

func NewWebSocketHandler(store AgentStore, builder *pipeline.Builder, collector *metrics.Collector) *WebSocketHandler {
	return &WebSocketHandler{
		store:     store,
		builder:   builder,
		collector: collector,
	}
}

// HandleConnection serves a chat session over one websocket. Each inbound
// question is answered as a sequence of chunk messages followed by a
// complete message; errors terminate the turn, not the connection.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	agentID := c.Params("id")
	logger.Info("WebSocket connection established", zap.String("agent_id", agentID))

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed", zap.String("agent_id", agentID))
	}()

	for {
		var msg struct {
			Type     string            `json:"type"`
			Question string            `json:"question"`
			History  []models.ChatTurn `json:"history"`
			Variant  string            `json:"variant"`
		}

		if err := c.ReadJSON(&msg); err != nil {
			break
		}

		if msg.Type != "question" || msg.Question == "" {
			continue
		}

		if err := h.streamAnswer(c, agentID, msg.Question, msg.History, msg.Variant); err != nil {
			logger.Error("Failed to stream answer",
				zap.String("agent_id", agentID),
				zap.Error(err),
			)
			h.sendError(c, err.Error())
		}
	}
}

func (h *WebSocketHandler) streamAnswer(c *websocket.Conn, agentID, question string, history []models.ChatTurn, variant string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var override *pipeline.Variant
	if variant != "" {
		v, ok := pipeline.ParseVariant(variant)
		if !ok {
			return shared.Validationf("unknown variant: %s", variant)
		}
		override = &v
	}

	agent, err := h.store.GetAgent(ctx, agentID)
	if err != nil {
		return err
	}

	p, err := h.builder.Build(agent, override)
	if err != nil {
		return err
	}
	defer p.Close()

	// The observer starts before any pipeline work so a failure during
	// contextualization, retrieval or SQL synthesis still counts the call.
	start := time.Now()
	signals := metrics.NewSignalChannel()
	go h.collector.Observe(agentID, start, signals)

	fragments, err := p.Stream(ctx, question, history)
	if err != nil {
		signals <- metrics.Signal{Kind: metrics.SignalDone, At: time.Now(), Status: metrics.StatusError}
		close(signals)
		return err
	}

	status := metrics.StatusCompleted
	first := true
	var streamErr error

	for frag := range fragments {
		if frag.Err != nil {
			status = metrics.StatusError
			streamErr = frag.Err
			break
		}

		if first {
			signals <- metrics.Signal{Kind: metrics.SignalFirstToken, At: time.Now()}
			first = false
		}

		if err := c.WriteJSON(map[string]any{
			"type":    "chunk",
			"content": frag.Content,
		}); err != nil {
			break
		}
	}

	signals <- metrics.Signal{Kind: metrics.SignalDone, At: time.Now(), Status: status}
	close(signals)

	if streamErr != nil {
		return streamErr
	}

	return c.WriteJSON(map[string]any{
		"type": "complete",
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	c.WriteJSON(map[string]any{
		"type":  "error",
		"error": errorMsg,
	})
}
