package pipeline

import (
	"context"

	"github.com/ronith256/rag-agent/internal/llm"
	"github.com/ronith256/rag-agent/internal/storage/models"
)

const defaultContextualizePrompt = "Given a chat history and the latest user question " +
	"which might reference context in the chat history, " +
	"formulate a standalone question which can be understood " +
	"without the chat history. Do NOT answer the question, " +
	"just reformulate it if needed and otherwise return it as is."

// contextualize rewrites a follow-up question into a standalone query using
// the chat history. With no history the question is already standalone and
// the model is not consulted.
func (p *Pipeline) contextualize(ctx context.Context, history []models.ChatTurn, question string) (string, error) {
	if len(history) == 0 {
		return question, nil
	}

	instruction := defaultContextualizePrompt
	if p.agent.Config.ContextualizationPrompt != "" {
		instruction = p.agent.Config.ContextualizationPrompt
	}

	standalone, err := p.lm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: instruction,
		History:      history,
		UserPrompt:   question,
		Model:        p.agent.Config.Model,
	})
	if err != nil {
		return "", err
	}

	return standalone, nil
}
