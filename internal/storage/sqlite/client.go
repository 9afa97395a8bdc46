package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/ronith256/rag-agent/internal/shared"
	"github.com/ronith256/rag-agent/internal/storage/models"
	"github.com/ronith256/rag-agent/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		config TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_agents_user ON agents(user_id);

	CREATE TABLE IF NOT EXISTS daily_metrics (
		agent_id TEXT NOT NULL,
		date INTEGER NOT NULL,
		calls INTEGER NOT NULL DEFAULT 0,
		latency_samples INTEGER NOT NULL DEFAULT 0,
		first_token_latency REAL,
		total_response_time REAL,
		PRIMARY KEY (agent_id, date)
	);

	CREATE TABLE IF NOT EXISTS evaluation_jobs (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		status TEXT NOT NULL,
		total_questions INTEGER NOT NULL,
		processed_questions INTEGER NOT NULL DEFAULT 0,
		progress REAL NOT NULL DEFAULT 0,
		errors TEXT,
		error TEXT,
		created_at INTEGER NOT NULL,
		completion_time INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_agent ON evaluation_jobs(agent_id);

	CREATE TABLE IF NOT EXISTS evaluation_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		results TEXT NOT NULL,
		aggregate TEXT,
		status TEXT NOT NULL,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_records_agent ON evaluation_records(agent_id, timestamp);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertAgent(ctx context.Context, agent *models.Agent) error {
	configJSON, err := json.Marshal(agent.Config)
	if err != nil {
		return shared.Persistence("marshal agent config", err)
	}

	query := `
		INSERT INTO agents (id, user_id, name, config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = c.db.ExecContext(ctx, query,
		agent.ID,
		agent.UserID,
		agent.Name,
		string(configJSON),
		agent.CreatedAt.Unix(),
		agent.UpdatedAt.Unix(),
	)
	if err != nil {
		return shared.Persistence("insert agent", err)
	}

	logger.Debug("Agent inserted", zap.String("agent_id", agent.ID))
	return nil
}

func (c *Client) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	query := `SELECT id, user_id, name, config, created_at, updated_at FROM agents WHERE id = ?`

	var agent models.Agent
	var configJSON string
	var createdAt, updatedAt int64

	err := c.db.QueryRowContext(ctx, query, id).Scan(
		&agent.ID,
		&agent.UserID,
		&agent.Name,
		&configJSON,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.NotFoundf("agent %s", id)
	}
	if err != nil {
		return nil, shared.Persistence("get agent", err)
	}

	if err := json.Unmarshal([]byte(configJSON), &agent.Config); err != nil {
		return nil, shared.Persistence("unmarshal agent config", err)
	}

	agent.CreatedAt = time.Unix(createdAt, 0)
	agent.UpdatedAt = time.Unix(updatedAt, 0)

	return &agent, nil
}

func (c *Client) ListAgentsByUser(ctx context.Context, userID string) ([]models.Agent, error) {
	query := `SELECT id, user_id, name, config, created_at, updated_at FROM agents WHERE user_id = ? ORDER BY created_at DESC`

	rows, err := c.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, shared.Persistence("list agents", err)
	}
	defer rows.Close()

	agents := make([]models.Agent, 0)
	for rows.Next() {
		var agent models.Agent
		var configJSON string
		var createdAt, updatedAt int64

		if err := rows.Scan(&agent.ID, &agent.UserID, &agent.Name, &configJSON, &createdAt, &updatedAt); err != nil {
			return nil, shared.Persistence("scan agent row", err)
		}

		if err := json.Unmarshal([]byte(configJSON), &agent.Config); err != nil {
			return nil, shared.Persistence("unmarshal agent config", err)
		}

		agent.CreatedAt = time.Unix(createdAt, 0)
		agent.UpdatedAt = time.Unix(updatedAt, 0)
		agents = append(agents, agent)
	}

	return agents, nil
}

func (c *Client) UpdateAgent(ctx context.Context, agent *models.Agent) error {
	configJSON, err := json.Marshal(agent.Config)
	if err != nil {
		return shared.Persistence("marshal agent config", err)
	}

	query := `UPDATE agents SET name = ?, config = ?, updated_at = ? WHERE id = ?`

	res, err := c.db.ExecContext(ctx, query, agent.Name, string(configJSON), time.Now().Unix(), agent.ID)
	if err != nil {
		return shared.Persistence("update agent", err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return shared.NotFoundf("agent %s", agent.ID)
	}

	return nil
}

// RecordCall bumps the call counter for the agent's day without touching the
// latency averages. Used for streams that ended before a first token.
func (c *Client) RecordCall(ctx context.Context, agentID string, day time.Time) error {
	query := `
		INSERT INTO daily_metrics (agent_id, date, calls, latency_samples)
		VALUES (?, ?, 1, 0)
		ON CONFLICT(agent_id, date) DO UPDATE SET calls = calls + 1
	`

	if _, err := c.db.ExecContext(ctx, query, agentID, day.Unix()); err != nil {
		return shared.Persistence("record call", err)
	}
	return nil
}

// RecordLatency folds one latency observation into the day's running means
// and bumps the call counter. The upsert is a single statement, so the
// read-modify-write is serialized per key by the database.
func (c *Client) RecordLatency(ctx context.Context, agentID string, day time.Time, firstToken, total float64) error {
	query := `
		INSERT INTO daily_metrics (agent_id, date, calls, latency_samples, first_token_latency, total_response_time)
		VALUES (?, ?, 1, 1, ?, ?)
		ON CONFLICT(agent_id, date) DO UPDATE SET
			calls = calls + 1,
			first_token_latency = (COALESCE(first_token_latency, 0) * latency_samples + excluded.first_token_latency) / (latency_samples + 1),
			total_response_time = (COALESCE(total_response_time, 0) * latency_samples + excluded.total_response_time) / (latency_samples + 1),
			latency_samples = latency_samples + 1
	`

	if _, err := c.db.ExecContext(ctx, query, agentID, day.Unix(), firstToken, total); err != nil {
		return shared.Persistence("record latency", err)
	}
	return nil
}

func (c *Client) GetDailyMetrics(ctx context.Context, agentID string, from, to time.Time) ([]models.DailyMetric, error) {
	query := `
		SELECT agent_id, date, calls, latency_samples, first_token_latency, total_response_time
		FROM daily_metrics
		WHERE agent_id = ? AND date >= ? AND date <= ?
		ORDER BY date
	`

	rows, err := c.db.QueryContext(ctx, query, agentID, from.Unix(), to.Unix())
	if err != nil {
		return nil, shared.Persistence("get daily metrics", err)
	}
	defer rows.Close()

	metrics := make([]models.DailyMetric, 0)
	for rows.Next() {
		var m models.DailyMetric
		var date int64
		var ftl, trt sql.NullFloat64

		if err := rows.Scan(&m.AgentID, &date, &m.Calls, &m.LatencySamples, &ftl, &trt); err != nil {
			return nil, shared.Persistence("scan metric row", err)
		}

		m.Date = time.Unix(date, 0).UTC()
		if m.LatencySamples > 0 {
			if ftl.Valid {
				m.FirstTokenLatency = &ftl.Float64
			}
			if trt.Valid {
				m.TotalResponseTime = &trt.Float64
			}
		}
		metrics = append(metrics, m)
	}

	return metrics, nil
}

func (c *Client) CreateEvaluationJob(ctx context.Context, job *models.EvaluationJob) error {
	query := `
		INSERT INTO evaluation_jobs (id, agent_id, status, total_questions, processed_questions, progress, errors, created_at)
		VALUES (?, ?, ?, ?, 0, 0, '[]', ?)
	`

	_, err := c.db.ExecContext(ctx, query,
		job.ID,
		job.AgentID,
		string(job.Status),
		job.TotalQuestions,
		job.CreatedAt.Unix(),
	)
	if err != nil {
		return shared.Persistence("create evaluation job", err)
	}

	logger.Info("Evaluation job created",
		zap.String("job_id", job.ID),
		zap.String("agent_id", job.AgentID),
		zap.Int("total_questions", job.TotalQuestions),
	)
	return nil
}

func (c *Client) GetEvaluationJob(ctx context.Context, id string) (*models.EvaluationJob, error) {
	query := `
		SELECT id, agent_id, status, total_questions, processed_questions, progress, errors, error, created_at, completion_time
		FROM evaluation_jobs WHERE id = ?
	`

	var job models.EvaluationJob
	var status string
	var errorsJSON, jobErr sql.NullString
	var createdAt int64
	var completionTime sql.NullInt64

	err := c.db.QueryRowContext(ctx, query, id).Scan(
		&job.ID,
		&job.AgentID,
		&status,
		&job.TotalQuestions,
		&job.ProcessedQuestions,
		&job.Progress,
		&errorsJSON,
		&jobErr,
		&createdAt,
		&completionTime,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.NotFoundf("evaluation job %s", id)
	}
	if err != nil {
		return nil, shared.Persistence("get evaluation job", err)
	}

	job.Status = models.JobStatus(status)
	if errorsJSON.Valid {
		json.Unmarshal([]byte(errorsJSON.String), &job.Errors)
	}
	job.Error = jobErr.String
	job.CreatedAt = time.Unix(createdAt, 0)
	if completionTime.Valid {
		t := time.Unix(completionTime.Int64, 0)
		job.CompletionTime = &t
	}

	return &job, nil
}

// UpdateJobProgress persists per-item progress. The runner is the only writer
// for its job id, so overwriting the errors list is safe.
func (c *Client) UpdateJobProgress(ctx context.Context, id string, processed int, progress float64, itemErrors []string) error {
	errorsJSON, err := json.Marshal(itemErrors)
	if err != nil {
		return shared.Persistence("marshal job errors", err)
	}

	query := `UPDATE evaluation_jobs SET processed_questions = ?, progress = ?, errors = ? WHERE id = ?`

	if _, err := c.db.ExecContext(ctx, query, processed, progress, string(errorsJSON), id); err != nil {
		return shared.Persistence("update job progress", err)
	}
	return nil
}

// FinishJob applies the terminal transition. Progress is forced to 1.0 only
// on completion; a structurally failed job keeps the progress it reached.
func (c *Client) FinishJob(ctx context.Context, id string, status models.JobStatus, jobErr string, at time.Time) error {
	var query string
	var args []any

	if status == models.JobCompleted {
		query = `UPDATE evaluation_jobs SET status = ?, progress = 1.0, completion_time = ? WHERE id = ?`
		args = []any{string(status), at.Unix(), id}
	} else {
		query = `UPDATE evaluation_jobs SET status = ?, error = ?, completion_time = ? WHERE id = ?`
		args = []any{string(status), jobErr, at.Unix(), id}
	}

	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return shared.Persistence("finish job", err)
	}

	logger.Info("Evaluation job finished",
		zap.String("job_id", id),
		zap.String("status", string(status)),
	)
	return nil
}

func (c *Client) InsertEvaluationRecord(ctx context.Context, rec *models.EvaluationRecord) error {
	resultsJSON, err := json.Marshal(rec.Results)
	if err != nil {
		return shared.Persistence("marshal results", err)
	}

	var aggregateJSON sql.NullString
	if rec.Aggregate != nil {
		data, err := json.Marshal(rec.Aggregate)
		if err != nil {
			return shared.Persistence("marshal aggregate", err)
		}
		aggregateJSON = sql.NullString{String: string(data), Valid: true}
	}

	query := `
		INSERT INTO evaluation_records (job_id, agent_id, timestamp, results, aggregate, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = c.db.ExecContext(ctx, query,
		rec.JobID,
		rec.AgentID,
		rec.Timestamp.Unix(),
		string(resultsJSON),
		aggregateJSON,
		string(rec.Status),
		rec.Error,
	)
	if err != nil {
		return shared.Persistence("insert evaluation record", err)
	}

	return nil
}

func (c *Client) ListEvaluationRecords(ctx context.Context, agentID string) ([]models.EvaluationRecord, error) {
	query := `
		SELECT job_id, agent_id, timestamp, results, aggregate, status, error
		FROM evaluation_records
		WHERE agent_id = ?
		ORDER BY timestamp DESC
	`

	rows, err := c.db.QueryContext(ctx, query, agentID)
	if err != nil {
		return nil, shared.Persistence("list evaluation records", err)
	}
	defer rows.Close()

	records := make([]models.EvaluationRecord, 0)
	for rows.Next() {
		var rec models.EvaluationRecord
		var timestamp int64
		var resultsJSON string
		var aggregateJSON, recErr sql.NullString
		var status string

		if err := rows.Scan(&rec.JobID, &rec.AgentID, &timestamp, &resultsJSON, &aggregateJSON, &status, &recErr); err != nil {
			return nil, shared.Persistence("scan record row", err)
		}

		rec.Timestamp = time.Unix(timestamp, 0)
		rec.Status = models.JobStatus(status)
		rec.Error = recErr.String
		if err := json.Unmarshal([]byte(resultsJSON), &rec.Results); err != nil {
			return nil, shared.Persistence("unmarshal results", err)
		}
		if aggregateJSON.Valid {
			var agg models.AggregateMetrics
			if err := json.Unmarshal([]byte(aggregateJSON.String), &agg); err != nil {
				return nil, shared.Persistence("unmarshal aggregate", err)
			}
			rec.Aggregate = &agg
		}
		records = append(records, rec)
	}

	return records, nil
}
