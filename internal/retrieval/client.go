package retrieval

import (
	"context"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/ronith256/rag-agent/internal/metrics"
	"github.com/ronith256/rag-agent/internal/shared"
	"github.com/ronith256/rag-agent/pkg/logger"
	"github.com/ronith256/rag-agent/pkg/utils"
)

// Embedder turns text into a fixed-length vector. The LLM gateway satisfies
// this.
type Embedder interface {
	Embed(ctx context.Context, text, model string) ([]float32, error)
}

// EmbeddingCache is an optional read-through cache for embeddings.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32) error
}

// Passage is one ranked piece of retrieved context. Ranking and relevance
// thresholds are the store's responsibility.
type Passage struct {
	ID     string
	Text   string
	Source string
	Score  float32
}

// Client is the retrieval gateway: vector search over per-agent collections
// plus the embedding function used by both search and evaluation scoring.
type Client struct {
	client    client.Client
	embedder  Embedder
	cache     EmbeddingCache
	vectorDim int
	topK      int
}

func NewClient(endpoint, apiKey string, vectorDim, topK int, embedder Embedder, cache EmbeddingCache) (*Client, error) {
	c, err := client.NewClient(context.Background(), client.Config{
		Address: endpoint,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, shared.Upstream("milvus connect", err)
	}

	logger.Info("Retrieval client initialized",
		zap.String("endpoint", endpoint),
		zap.Int("vector_dim", vectorDim),
	)

	return &Client{
		client:    c,
		embedder:  embedder,
		cache:     cache,
		vectorDim: vectorDim,
		topK:      topK,
	}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Embed returns the vector for text, consulting the cache first. Cache
// failures are logged and treated as misses.
func (c *Client) Embed(ctx context.Context, text, model string) ([]float32, error) {
	key := utils.HashString(model + ":" + text)

	if c.cache != nil {
		if embedding, ok, err := c.cache.GetEmbedding(ctx, key); err != nil {
			logger.Warn("Embedding cache read failed", zap.Error(err))
		} else if ok {
			metrics.CacheHits.WithLabelValues("embedding").Inc()
			return embedding, nil
		}
		metrics.CacheMisses.WithLabelValues("embedding").Inc()
	}

	embedding, err := c.embedder.Embed(ctx, text, model)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.SetEmbedding(ctx, key, embedding); err != nil {
			logger.Warn("Embedding cache write failed", zap.Error(err))
		}
	}

	return embedding, nil
}

// Search embeds the query and runs a vector search against the agent's
// collection. An empty result set is valid.
func (c *Client) Search(ctx context.Context, query, collection, embedModel string) ([]Passage, error) {
	embedding, err := c.Embed(ctx, query, embedModel)
	if err != nil {
		return nil, err
	}

	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := c.client.Search(
		ctx,
		collection,
		[]string{},
		"",
		[]string{"chunk_id", "text", "source"},
		[]entity.Vector{entity.FloatVector(embedding)},
		"embedding",
		entity.L2,
		c.topK,
		sp,
	)
	if err != nil {
		return nil, shared.Upstream("vector search", err)
	}

	passages := make([]Passage, 0)
	for _, sr := range searchResult {
		idCol := sr.Fields.GetColumn("chunk_id")
		textCol := sr.Fields.GetColumn("text")
		sourceCol := sr.Fields.GetColumn("source")

		for i := 0; i < sr.ResultCount; i++ {
			id, _ := idCol.Get(i)
			text, _ := textCol.Get(i)
			source, _ := sourceCol.Get(i)

			passages = append(passages, Passage{
				ID:     id.(string),
				Text:   text.(string),
				Source: source.(string),
				Score:  sr.Scores[i],
			})
		}
	}

	logger.Debug("Vector search completed",
		zap.String("collection", collection),
		zap.Int("results", len(passages)),
	)

	return passages, nil
}
