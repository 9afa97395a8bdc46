package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/ronith256/rag-agent/internal/llm"
	"github.com/ronith256/rag-agent/internal/retrieval"
	"github.com/ronith256/rag-agent/internal/storage/models"
)

const defaultSystemPrompt = "You are an assistant for question-answering tasks. " +
	"Use the following pieces of retrieved context to answer the question. " +
	"If you don't know the answer, say that you don't know. " +
	"You should use the context and retrieved information to give the best answer in a human-like fashion."

// Stream produces the answer as a finite, non-restartable sequence of
// fragments in generation order. The caller forwards fragments to the client
// and signals the metrics observer; this method never touches metrics.
func (p *Pipeline) Stream(ctx context.Context, question string, history []models.ChatTurn) (<-chan llm.Fragment, error) {
	if p.variant == RelationalOnly {
		sqlText, result, err := p.synthesizeSQL(ctx, question, history)
		if err != nil {
			return nil, err
		}

		out := make(chan llm.Fragment, 1)
		out <- llm.Fragment{Content: renderSQLPair(sqlText, result)}
		close(out)
		return out, nil
	}

	req, err := p.buildAnswerRequest(ctx, question, history)
	if err != nil {
		return nil, err
	}

	return p.lm.Stream(ctx, req)
}

// Invoke is the non-streaming form of Stream, used by evaluation jobs.
func (p *Pipeline) Invoke(ctx context.Context, question string, history []models.ChatTurn) (string, error) {
	if p.variant == RelationalOnly {
		sqlText, result, err := p.synthesizeSQL(ctx, question, history)
		if err != nil {
			return "", err
		}
		return renderSQLPair(sqlText, result), nil
	}

	req, err := p.buildAnswerRequest(ctx, question, history)
	if err != nil {
		return "", err
	}

	return p.lm.Complete(ctx, req)
}

// buildAnswerRequest runs the pre-generation steps and composes the final
// prompt. For Hybrid, retrieval (over the contextualized query) and SQL
// synthesis (over the raw question) are independent and run concurrently;
// either failure aborts the turn.
func (p *Pipeline) buildAnswerRequest(ctx context.Context, question string, history []models.ChatTurn) (llm.CompletionRequest, error) {
	standalone, err := p.contextualize(ctx, history, question)
	if err != nil {
		return llm.CompletionRequest{}, err
	}

	var (
		passages           []retrieval.Passage
		sqlText, sqlResult string
	)

	if p.variant == Hybrid {
		retrieved := make(chan error, 1)
		go func() {
			var searchErr error
			passages, searchErr = p.retriever.Search(ctx, standalone, p.agent.Config.Collection, p.embedModel)
			retrieved <- searchErr
		}()

		sqlText, sqlResult, err = p.synthesizeSQL(ctx, question, history)
		searchErr := <-retrieved
		if err != nil {
			return llm.CompletionRequest{}, err
		}
		if searchErr != nil {
			return llm.CompletionRequest{}, searchErr
		}
	} else {
		passages, err = p.retriever.Search(ctx, standalone, p.agent.Config.Collection, p.embedModel)
		if err != nil {
			return llm.CompletionRequest{}, err
		}
	}

	system := p.agent.Config.SystemPrompt
	if system == "" {
		system = defaultSystemPrompt
	}

	var b strings.Builder
	b.WriteString(system)

	if p.variant == Hybrid {
		b.WriteString("\n\n")
		if sqlText != "" {
			fmt.Fprintf(&b, "Database query:\n%s\n", sqlText)
		}
		fmt.Fprintf(&b, "Database result:\n%s", sqlResult)
	}

	b.WriteString("\n\n")
	b.WriteString(renderPassages(passages))

	return llm.CompletionRequest{
		SystemPrompt: b.String(),
		History:      history,
		UserPrompt:   question,
		Model:        p.agent.Config.Model,
	}, nil
}

// renderSQLPair is the relational-only answer: the executed statement and its
// result, or just the placeholder when no query was needed.
func renderSQLPair(sqlText, result string) string {
	if sqlText == "" {
		return result
	}
	return sqlText + "\n\n" + result
}

func renderPassages(passages []retrieval.Passage) string {
	if len(passages) == 0 {
		return "No retrieved context available."
	}

	var b strings.Builder
	b.WriteString("Retrieved context:\n")
	for i, passage := range passages {
		fmt.Fprintf(&b, "\n[%d] %s\n", i+1, passage.Text)
		if passage.Source != "" {
			fmt.Fprintf(&b, "Source: %s\n", passage.Source)
		}
	}
	return b.String()
}
