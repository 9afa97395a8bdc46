package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ronith256/rag-agent/internal/llm"
	"github.com/ronith256/rag-agent/internal/retrieval"
	"github.com/ronith256/rag-agent/internal/storage/models"
)

type fakeLM struct {
	completeFn func(req llm.CompletionRequest) (string, error)
	requests   []llm.CompletionRequest
	streamed   []llm.CompletionRequest
	fragments  []llm.Fragment
}

func (f *fakeLM) Complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	f.requests = append(f.requests, req)
	if f.completeFn != nil {
		return f.completeFn(req)
	}
	return "answer", nil
}

func (f *fakeLM) Stream(_ context.Context, req llm.CompletionRequest) (<-chan llm.Fragment, error) {
	f.streamed = append(f.streamed, req)
	out := make(chan llm.Fragment, len(f.fragments))
	for _, frag := range f.fragments {
		out <- frag
	}
	close(out)
	return out, nil
}

type fakeRetriever struct {
	passages []retrieval.Passage
	err      error
	queries  []string
}

func (f *fakeRetriever) Search(_ context.Context, query, _, _ string) ([]retrieval.Passage, error) {
	f.queries = append(f.queries, query)
	return f.passages, f.err
}

func (f *fakeRetriever) Embed(_ context.Context, _, _ string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type fakeRelational struct {
	schema   string
	result   string
	execErr  error
	executed []string
	closed   bool
}

func (f *fakeRelational) SchemaSummary(_ context.Context) (string, error) {
	return f.schema, nil
}

func (f *fakeRelational) Execute(_ context.Context, sqlText string) (string, error) {
	f.executed = append(f.executed, sqlText)
	if f.execErr != nil {
		return "", f.execErr
	}
	return f.result, nil
}

func (f *fakeRelational) Close() error {
	f.closed = true
	return nil
}

func testAgent(sqlCfg *models.SQLConfig) *models.Agent {
	return &models.Agent{
		ID:     "agent-1",
		UserID: "user-1",
		Name:   "test",
		Config: models.AgentConfig{
			Collection: "docs",
			Model:      "gpt-4",
			SQL:        sqlCfg,
		},
	}
}

func sqlConfig() *models.SQLConfig {
	return &models.SQLConfig{Host: "localhost", Port: 5432, User: "u", Password: "p", Database: "d"}
}

func collect(t *testing.T, fragments <-chan llm.Fragment) string {
	t.Helper()
	var b strings.Builder
	for frag := range fragments {
		if frag.Err != nil {
			t.Fatalf("unexpected stream error: %v", frag.Err)
		}
		b.WriteString(frag.Content)
	}
	return b.String()
}

func TestParseVariant(t *testing.T) {
	tests := []struct {
		in   string
		want Variant
		ok   bool
	}{
		{"retrieval", RetrievalOnly, true},
		{"relational", RelationalOnly, true},
		{"hybrid", Hybrid, true},
		{"", RetrievalOnly, false},
		{"graph", RetrievalOnly, false},
	}

	for _, tt := range tests {
		got, ok := ParseVariant(tt.in)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("ParseVariant(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestResolveVariant(t *testing.T) {
	hybrid := Hybrid
	relational := RelationalOnly

	tests := []struct {
		name     string
		cfg      models.AgentConfig
		override *Variant
		want     Variant
	}{
		{"no sql config defaults to retrieval", models.AgentConfig{}, nil, RetrievalOnly},
		{"sql config defaults to hybrid", models.AgentConfig{SQL: sqlConfig()}, nil, Hybrid},
		{"override wins over default", models.AgentConfig{}, &hybrid, Hybrid},
		{"override wins over sql config", models.AgentConfig{SQL: sqlConfig()}, &relational, RelationalOnly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveVariant(tt.cfg, tt.override); got != tt.want {
				t.Errorf("ResolveVariant() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildRequiresSQLConfig(t *testing.T) {
	builder := NewBuilder(&fakeLM{}, &fakeRetriever{}, nil)

	hybrid := Hybrid
	_, err := builder.Build(testAgent(nil), &hybrid)
	if err == nil {
		t.Fatal("expected error for hybrid pipeline without sql config")
	}
}

func TestBuildConnectsRelationalForHybrid(t *testing.T) {
	db := &fakeRelational{}
	builder := NewBuilder(&fakeLM{}, &fakeRetriever{}, func(_ *models.SQLConfig) (RelationalDB, error) {
		return db, nil
	})

	p, err := builder.Build(testAgent(sqlConfig()), nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.Variant() != Hybrid {
		t.Errorf("variant = %v, want Hybrid", p.Variant())
	}
	if p.relational == nil {
		t.Error("relational connection not set")
	}

	p.Close()
	if !db.closed {
		t.Error("Close did not release the relational connection")
	}
}

func TestContextualizeSkipsModelWithoutHistory(t *testing.T) {
	lm := &fakeLM{}
	p := &Pipeline{agent: testAgent(nil), lm: lm}

	got, err := p.contextualize(context.Background(), nil, "what is milvus?")
	if err != nil {
		t.Fatalf("contextualize: %v", err)
	}
	if got != "what is milvus?" {
		t.Errorf("question changed without history: %q", got)
	}
	if len(lm.requests) != 0 {
		t.Errorf("model consulted %d times, want 0", len(lm.requests))
	}
}

func TestContextualizeUsesAgentPromptOverride(t *testing.T) {
	lm := &fakeLM{completeFn: func(req llm.CompletionRequest) (string, error) {
		return "standalone", nil
	}}
	agent := testAgent(nil)
	agent.Config.ContextualizationPrompt = "custom rewrite prompt"
	p := &Pipeline{agent: agent, lm: lm}

	history := []models.ChatTurn{{Role: models.RoleUser, Content: "hi"}}
	got, err := p.contextualize(context.Background(), history, "and then?")
	if err != nil {
		t.Fatalf("contextualize: %v", err)
	}
	if got != "standalone" {
		t.Errorf("got %q, want rewritten question", got)
	}
	if lm.requests[0].SystemPrompt != "custom rewrite prompt" {
		t.Errorf("system prompt = %q, want agent override", lm.requests[0].SystemPrompt)
	}
}

func TestStreamRetrievalOnly(t *testing.T) {
	lm := &fakeLM{fragments: []llm.Fragment{{Content: "hello "}, {Content: "world"}}}
	ret := &fakeRetriever{passages: []retrieval.Passage{
		{ID: "c1", Text: "milvus is a vector database", Source: "intro.md"},
	}}
	p := &Pipeline{agent: testAgent(nil), variant: RetrievalOnly, lm: lm, retriever: ret}

	fragments, err := p.Stream(context.Background(), "what is milvus?", nil)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	if got := collect(t, fragments); got != "hello world" {
		t.Errorf("streamed %q, want %q", got, "hello world")
	}

	req := lm.streamed[0]
	if !strings.Contains(req.SystemPrompt, "milvus is a vector database") {
		t.Error("retrieved passage missing from system prompt")
	}
	if req.UserPrompt != "what is milvus?" {
		t.Errorf("user prompt = %q, want the original question", req.UserPrompt)
	}
}

func TestStreamRetrievalOnlyEmptyResults(t *testing.T) {
	lm := &fakeLM{fragments: []llm.Fragment{{Content: "I don't know."}}}
	ret := &fakeRetriever{}
	p := &Pipeline{agent: testAgent(nil), variant: RetrievalOnly, lm: lm, retriever: ret}

	fragments, err := p.Stream(context.Background(), "anything?", nil)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	collect(t, fragments)

	if !strings.Contains(lm.streamed[0].SystemPrompt, "No retrieved context available.") {
		t.Error("empty retrieval not reflected in system prompt")
	}
}

func TestHybridMergesSQLAndPassages(t *testing.T) {
	lm := &fakeLM{
		fragments: []llm.Fragment{{Content: "42 rows"}},
		completeFn: func(req llm.CompletionRequest) (string, error) {
			return "SELECT count(*) FROM orders", nil
		},
	}
	ret := &fakeRetriever{passages: []retrieval.Passage{{ID: "c1", Text: "orders doc"}}}
	db := &fakeRelational{schema: "orders: [id, total]", result: "count\n42"}
	p := &Pipeline{agent: testAgent(sqlConfig()), variant: Hybrid, lm: lm, retriever: ret, relational: db}

	fragments, err := p.Stream(context.Background(), "how many orders?", nil)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	collect(t, fragments)

	if len(db.executed) != 1 || db.executed[0] != "SELECT count(*) FROM orders" {
		t.Errorf("executed = %v, want the synthesized statement", db.executed)
	}

	req := lm.streamed[0]
	if !strings.Contains(req.SystemPrompt, "count\n42") {
		t.Error("SQL result missing from system prompt")
	}
	if !strings.Contains(req.SystemPrompt, "orders doc") {
		t.Error("retrieved passage missing from system prompt")
	}
}

func TestHybridSentinelYieldsPlaceholder(t *testing.T) {
	lm := &fakeLM{
		fragments: []llm.Fragment{{Content: "sure"}},
		completeFn: func(req llm.CompletionRequest) (string, error) {
			return noQuerySentinel, nil
		},
	}
	ret := &fakeRetriever{}
	db := &fakeRelational{schema: "orders: [id]"}
	p := &Pipeline{agent: testAgent(sqlConfig()), variant: Hybrid, lm: lm, retriever: ret, relational: db}

	fragments, err := p.Stream(context.Background(), "hello!", nil)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	collect(t, fragments)

	if len(db.executed) != 0 {
		t.Errorf("executed %v, want no statements after sentinel", db.executed)
	}

	req := lm.streamed[0]
	if strings.Contains(req.SystemPrompt, noQuerySentinel) {
		t.Error("sentinel leaked into the final prompt")
	}
	if !strings.Contains(req.SystemPrompt, noQueryPlaceholder) {
		t.Error("placeholder missing from the final prompt")
	}
}

func TestHybridSQLExecutionFailureAborts(t *testing.T) {
	lm := &fakeLM{completeFn: func(req llm.CompletionRequest) (string, error) {
		return "SELECT * FROM missing", nil
	}}
	db := &fakeRelational{schema: "orders: [id]", execErr: errors.New("relation does not exist")}
	p := &Pipeline{agent: testAgent(sqlConfig()), variant: Hybrid, lm: lm, retriever: &fakeRetriever{}, relational: db}

	_, err := p.Stream(context.Background(), "how many orders?", nil)
	if err == nil {
		t.Fatal("expected stream to abort on SQL execution failure")
	}
	if len(lm.streamed) != 0 {
		t.Error("answer generation started despite execution failure")
	}
}

func TestRelationalOnlyStreamsStatementAndResult(t *testing.T) {
	lm := &fakeLM{completeFn: func(req llm.CompletionRequest) (string, error) {
		return "```sql\nSELECT total FROM orders\n```", nil
	}}
	db := &fakeRelational{schema: "orders: [total]", result: "total\n9.99"}
	p := &Pipeline{agent: testAgent(sqlConfig()), variant: RelationalOnly, lm: lm, retriever: &fakeRetriever{}, relational: db}

	fragments, err := p.Stream(context.Background(), "order total?", nil)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	if got := collect(t, fragments); got != "SELECT total FROM orders\n\ntotal\n9.99" {
		t.Errorf("streamed %q, want the statement followed by its result", got)
	}
	if len(lm.streamed) != 0 {
		t.Error("relational-only pipeline should not stream from the model")
	}
	if db.executed[0] != "SELECT total FROM orders" {
		t.Errorf("fences not stripped: %q", db.executed[0])
	}
}

func TestRelationalOnlySentinelReturnsPlaceholderAlone(t *testing.T) {
	lm := &fakeLM{completeFn: func(req llm.CompletionRequest) (string, error) {
		return noQuerySentinel, nil
	}}
	db := &fakeRelational{schema: "orders: [total]"}
	p := &Pipeline{agent: testAgent(sqlConfig()), variant: RelationalOnly, lm: lm, retriever: &fakeRetriever{}, relational: db}

	got, err := p.Invoke(context.Background(), "hello!", nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got != noQueryPlaceholder {
		t.Errorf("Invoke = %q, want the bare placeholder", got)
	}
	if len(db.executed) != 0 {
		t.Errorf("executed %v, want no statements after sentinel", db.executed)
	}
}

func TestInvokeRetrievalOnly(t *testing.T) {
	lm := &fakeLM{completeFn: func(req llm.CompletionRequest) (string, error) {
		return "a full answer", nil
	}}
	ret := &fakeRetriever{passages: []retrieval.Passage{{ID: "c1", Text: "doc"}}}
	p := &Pipeline{agent: testAgent(nil), variant: RetrievalOnly, lm: lm, retriever: ret}

	got, err := p.Invoke(context.Background(), "question", nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got != "a full answer" {
		t.Errorf("Invoke = %q", got)
	}
}

func TestCleanStatement(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"SELECT 1", "SELECT 1"},
		{"```sql\nSELECT 1\n```", "SELECT 1"},
		{"```\nSELECT 1\n```", "SELECT 1"},
		{"  SELECT 1  \n", "SELECT 1"},
	}

	for _, tt := range tests {
		if got := cleanStatement(tt.in); got != tt.want {
			t.Errorf("cleanStatement(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
