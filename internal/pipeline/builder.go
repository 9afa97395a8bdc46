package pipeline

import (
	"go.uber.org/zap"

	"github.com/ronith256/rag-agent/internal/shared"
	"github.com/ronith256/rag-agent/internal/storage/models"
	"github.com/ronith256/rag-agent/pkg/logger"
)

// RelationalConnector opens an invocation-scoped connection to an agent
// database.
type RelationalConnector func(cfg *models.SQLConfig) (RelationalDB, error)

// Builder wires process-wide gateways into per-invocation pipelines.
type Builder struct {
	lm        LanguageModel
	retriever Retriever
	connect   RelationalConnector
}

func NewBuilder(lm LanguageModel, retriever Retriever, connect RelationalConnector) *Builder {
	return &Builder{
		lm:        lm,
		retriever: retriever,
		connect:   connect,
	}
}

// Build resolves the topology for this invocation and constructs the scoped
// gateway clients it needs. Relational topologies require sql_config.
func (b *Builder) Build(agent *models.Agent, override *Variant) (*Pipeline, error) {
	variant := ResolveVariant(agent.Config, override)

	if variant != RetrievalOnly && agent.Config.SQL == nil {
		return nil, shared.Configurationf("agent %s: %s pipeline requires sql_config", agent.ID, variant)
	}

	p := &Pipeline{
		agent:     agent,
		variant:   variant,
		lm:        b.lm,
		retriever: b.retriever,
	}

	if agent.Config.Embeddings != nil {
		p.embedModel = agent.Config.Embeddings.Model
	}

	if variant != RetrievalOnly {
		db, err := b.connect(agent.Config.SQL)
		if err != nil {
			return nil, err
		}
		p.relational = db
	}

	logger.Debug("Pipeline built",
		zap.String("agent_id", agent.ID),
		zap.String("variant", variant.String()),
	)

	return p, nil
}
