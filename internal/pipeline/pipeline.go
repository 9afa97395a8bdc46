// Package pipeline assembles and executes per-agent question-answering
// pipelines over the language-model, retrieval and relational gateways.
package pipeline

import (
	"context"

	"github.com/ronith256/rag-agent/internal/llm"
	"github.com/ronith256/rag-agent/internal/retrieval"
	"github.com/ronith256/rag-agent/internal/storage/models"
)

// LanguageModel is the completion/stream capability consumed by pipelines.
// *llm.Client satisfies it.
type LanguageModel interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
	Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Fragment, error)
}

// Retriever is the search/embed capability consumed by pipelines.
// *retrieval.Client satisfies it.
type Retriever interface {
	Search(ctx context.Context, query, collection, embedModel string) ([]retrieval.Passage, error)
	Embed(ctx context.Context, text, model string) ([]float32, error)
}

// RelationalDB is one agent database connection: schema introspection and
// query execution. *relational.Client satisfies it.
type RelationalDB interface {
	SchemaSummary(ctx context.Context) (string, error)
	Execute(ctx context.Context, sqlText string) (string, error)
	Close() error
}

// Pipeline is one invocation-scoped assembly. It owns its relational
// connection (if any) and is not shared across invocations.
type Pipeline struct {
	agent      *models.Agent
	variant    Variant
	lm         LanguageModel
	retriever  Retriever
	relational RelationalDB
	embedModel string
}

func (p *Pipeline) Variant() Variant {
	return p.variant
}

// Close releases the invocation-scoped relational connection.
func (p *Pipeline) Close() error {
	if p.relational != nil {
		return p.relational.Close()
	}
	return nil
}
