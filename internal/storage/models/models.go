package models

import "time"

// Agent is one configured question-answering agent. Config is immutable for
// the duration of a single pipeline execution.
type Agent struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	Name      string      `json:"name"`
	Config    AgentConfig `json:"config"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// AgentConfig drives pipeline construction. A set SQLConfig is the default
// signal to build a hybrid pipeline.
type AgentConfig struct {
	SystemPrompt            string            `json:"system_prompt,omitempty"`
	ContextualizationPrompt string            `json:"contextualization_prompt,omitempty"`
	Collection              string            `json:"collection"`
	Model                   string            `json:"model,omitempty"`
	Embeddings              *EmbeddingsConfig `json:"embeddings_config,omitempty"`
	SQL                     *SQLConfig        `json:"sql_config,omitempty"`
}

type EmbeddingsConfig struct {
	Model     string `json:"model"`
	Dimension int    `json:"dimension,omitempty"`
}

// SQLConfig holds connection parameters for the agent's relational database.
type SQLConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
}

type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DailyMetric is keyed by (agent_id, UTC midnight). The two running means are
// absent until the day has at least one call that produced a token; Calls
// counts every invocation.
type DailyMetric struct {
	AgentID           string    `json:"agent_id"`
	Date              time.Time `json:"date"`
	Calls             int64     `json:"calls"`
	LatencySamples    int64     `json:"-"`
	FirstTokenLatency *float64  `json:"first_token_latency,omitempty"`
	TotalResponseTime *float64  `json:"total_response_time,omitempty"`
}

type JobStatus string

const (
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// EvaluationJob tracks one batch evaluation. Status moves processing →
// completed|failed exactly once; ProcessedQuestions never decreases and never
// exceeds TotalQuestions.
type EvaluationJob struct {
	ID                 string     `json:"job_id"`
	AgentID            string     `json:"agent_id"`
	Status             JobStatus  `json:"status"`
	TotalQuestions     int        `json:"total_questions"`
	ProcessedQuestions int        `json:"processed_questions"`
	Progress           float64    `json:"progress"`
	Errors             []string   `json:"errors,omitempty"`
	Error              string     `json:"error,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	CompletionTime     *time.Time `json:"completion_time,omitempty"`
}

// QAPair is one reference question/answer of an evaluation payload.
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type EvaluationResult struct {
	Question        string  `json:"question"`
	OriginalAnswer  string  `json:"original_answer"`
	GeneratedAnswer string  `json:"generated_answer"`
	SimilarityScore float64 `json:"similarity_score"`
}

// AggregateMetrics summarizes the similarity scores of the items that
// succeeded. It is absent when no item produced a score.
type AggregateMetrics struct {
	Mean   float64 `json:"mean_similarity"`
	Median float64 `json:"median_similarity"`
	Min    float64 `json:"min_similarity"`
	Max    float64 `json:"max_similarity"`
	Std    float64 `json:"std_similarity"`
}

// EvaluationRecord is persisted once per job on its terminal transition.
type EvaluationRecord struct {
	JobID     string             `json:"job_id"`
	AgentID   string             `json:"agent_id"`
	Timestamp time.Time          `json:"timestamp"`
	Results   []EvaluationResult `json:"results"`
	Aggregate *AggregateMetrics  `json:"aggregate_metrics,omitempty"`
	Status    JobStatus          `json:"status"`
	Error     string             `json:"error,omitempty"`
}

// MidnightUTC truncates t to the calendar day used as the DailyMetric key.
func MidnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
