package handlers

import (
	"bufio"
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/ronith256/rag-agent/internal/llm"
	"github.com/ronith256/rag-agent/internal/metrics"
	"github.com/ronith256/rag-agent/internal/pipeline"
	"github.com/ronith256/rag-agent/internal/storage/models"
	"github.com/ronith256/rag-agent/pkg/logger"
)

type chatRequest struct {
	Question string            `json:"question"`
	History  []models.ChatTurn `json:"history"`
	Variant  string            `json:"variant"`
}

type ChatHandler struct {
	store     AgentStore
	builder   *pipeline.Builder
	collector *metrics.Collector
}

func NewChatHandler(store AgentStore, builder *pipeline.Builder, collector *metrics.Collector) *ChatHandler {
	return &ChatHandler{
		store:     store,
		builder:   builder,
		collector: collector,
	}
}

// HandleChat streams the answer as plain text chunks. The pipeline is built
// and the stream opened before the response starts, so pre-stream failures
// still map to proper HTTP statuses.
func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	agentID := c.Params("id")

	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Question == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "question is required",
		})
	}

	var override *pipeline.Variant
	if req.Variant != "" {
		v, ok := pipeline.ParseVariant(req.Variant)
		if !ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "unknown variant: " + req.Variant,
			})
		}
		override = &v
	}

	agent, err := h.store.GetAgent(c.Context(), agentID)
	if err != nil {
		return errorResponse(c, err)
	}

	p, err := h.builder.Build(agent, override)
	if err != nil {
		return errorResponse(c, err)
	}

	// The body stream writer outlives this handler, so the stream runs on
	// its own cancelable context rather than the request's.
	ctx, cancel := context.WithCancel(context.Background())

	// The observer starts before any pipeline work so a failure during
	// contextualization, retrieval or SQL synthesis still counts the call.
	start := time.Now()
	signals := metrics.NewSignalChannel()
	go h.collector.Observe(agentID, start, signals)

	fragments, err := p.Stream(ctx, req.Question, req.History)
	if err != nil {
		cancel()
		p.Close()
		signals <- metrics.Signal{Kind: metrics.SignalDone, At: time.Now(), Status: metrics.StatusError}
		close(signals)
		logger.Error("Failed to open answer stream",
			zap.String("agent_id", agentID),
			zap.Error(err),
		)
		return errorResponse(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		defer p.Close()

		forwardStream(w, fragments, signals, agentID)
	}))

	return nil
}

// forwardStream copies fragments to the client and posts the two metrics
// signals: first-token on the first fragment, done exactly once at the end.
// A client that stops reading abandons upstream work but still counts as a
// normal completion.
func forwardStream(w *bufio.Writer, fragments <-chan llm.Fragment, signals chan<- metrics.Signal, agentID string) {
	status := metrics.StatusCompleted
	first := true

	for frag := range fragments {
		if frag.Err != nil {
			logger.Error("Answer stream failed",
				zap.String("agent_id", agentID),
				zap.Error(frag.Err),
			)
			status = metrics.StatusError
			break
		}

		if first {
			signals <- metrics.Signal{Kind: metrics.SignalFirstToken, At: time.Now()}
			first = false
		}

		if _, err := w.WriteString(frag.Content); err != nil {
			break
		}
		if err := w.Flush(); err != nil {
			break
		}
	}

	signals <- metrics.Signal{Kind: metrics.SignalDone, At: time.Now(), Status: status}
	close(signals)
}
