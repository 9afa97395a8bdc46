package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ronith256/rag-agent/internal/llm"
	"github.com/ronith256/rag-agent/internal/storage/models"
	"github.com/ronith256/rag-agent/pkg/logger"
)

// noQuerySentinel is the literal the model emits when the question needs no
// database access. It never reaches a final prompt; the result slot gets
// noQueryPlaceholder instead.
const (
	noQuerySentinel    = "NO_QUERY"
	noQueryPlaceholder = "the question does not require data from the database"
)

const sqlSynthesisPrompt = "You translate natural-language questions into SQL. " +
	"Given the database schema and the conversation, respond with exactly one SQL statement " +
	"that answers the question. Always qualify columns as table.column. " +
	"Return the bare statement with no markdown, code fences or commentary. " +
	"If the question does not require data from the database, respond with the single token " +
	noQuerySentinel + "."

// synthesizeSQL asks the model for a SQL statement over the agent database
// schema and executes it. A sentinel answer short-circuits execution and
// yields the fixed placeholder. Execution failures propagate and abort the
// turn.
func (p *Pipeline) synthesizeSQL(ctx context.Context, question string, history []models.ChatTurn) (sqlText, sqlResult string, err error) {
	schema, err := p.relational.SchemaSummary(ctx)
	if err != nil {
		return "", "", err
	}

	raw, err := p.lm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: sqlSynthesisPrompt + "\n\nSchema:\n" + schema,
		History:      history,
		UserPrompt:   question,
		Model:        p.agent.Config.Model,
	})
	if err != nil {
		return "", "", err
	}

	if strings.Contains(raw, noQuerySentinel) {
		logger.Debug("SQL synthesis declined", zap.String("agent_id", p.agent.ID))
		return "", noQueryPlaceholder, nil
	}

	sqlText = cleanStatement(raw)

	sqlResult, err = p.relational.Execute(ctx, sqlText)
	if err != nil {
		return "", "", err
	}

	logger.Debug("SQL synthesized and executed",
		zap.String("agent_id", p.agent.ID),
		zap.String("sql", sqlText),
	)

	return sqlText, sqlResult, nil
}

// cleanStatement strips the formatting wrappers models add despite
// instructions: code fences, a leading "sql" language tag, trailing
// whitespace.
func cleanStatement(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```sql")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
