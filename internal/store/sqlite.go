package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	agentmodels "github.com/huolter/50c14l/internal/agent/models"
	apperrors "github.com/huolter/50c14l/internal/common/errors"
	"github.com/huolter/50c14l/internal/db"
	interactionmodels "github.com/huolter/50c14l/internal/interaction/models"
	reputationmodels "github.com/huolter/50c14l/internal/reputation/models"
	taskmodels "github.com/huolter/50c14l/internal/task/models"
)

// SQLiteRepository implements Repository on a relational store via sqlx.
// Despite the name it also runs against Postgres: queries are written with
// ? placeholders and rebound per driver, and the schema sticks to types
// both engines accept.
type SQLiteRepository struct {
	pool *db.Pool
}

var _ Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository creates a repository over the given pool and ensures
// the schema exists.
func NewSQLiteRepository(pool *db.Pool) (*SQLiteRepository, error) {
	repo := &SQLiteRepository{pool: pool}
	if err := repo.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return repo, nil
}

func (r *SQLiteRepository) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		api_key_id TEXT NOT NULL,
		api_key_hash TEXT NOT NULL,
		capabilities TEXT NOT NULL DEFAULT '[]',
		endpoints TEXT NOT NULL DEFAULT '{}',
		metadata TEXT NOT NULL DEFAULT '{}',
		reputation_score INTEGER NOT NULL DEFAULT 0,
		total_tasks_completed INTEGER NOT NULL DEFAULT 0,
		total_tasks_posted INTEGER NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		last_active TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_agents_api_key_id ON agents(api_key_id);
	CREATE INDEX IF NOT EXISTS idx_agents_reputation ON agents(reputation_score);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		requester_id TEXT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
		claimer_id TEXT REFERENCES agents(id) ON DELETE SET NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		required_capabilities TEXT NOT NULL DEFAULT '[]',
		payload TEXT NOT NULL DEFAULT '{}',
		result TEXT,
		status TEXT NOT NULL DEFAULT 'open',
		priority INTEGER NOT NULL DEFAULT 0,
		expires_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_requester ON tasks(requester_id);

	CREATE TABLE IF NOT EXISTS interactions (
		id TEXT PRIMARY KEY,
		sender_id TEXT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
		recipient_id TEXT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
		message_type TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL DEFAULT '{}',
		status TEXT NOT NULL DEFAULT 'sent',
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_interactions_sender ON interactions(sender_id);
	CREATE INDEX IF NOT EXISTS idx_interactions_recipient ON interactions(recipient_id);
	CREATE INDEX IF NOT EXISTS idx_interactions_created ON interactions(created_at);

	CREATE TABLE IF NOT EXISTS reputation_logs (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
		action TEXT NOT NULL DEFAULT '',
		value_change INTEGER NOT NULL DEFAULT 0,
		reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reputation_logs_agent ON reputation_logs(agent_id);
	`
	_, err := r.pool.Writer().Exec(schema)
	return err
}

func (r *SQLiteRepository) reader() *sqlx.DB { return r.pool.Reader() }
func (r *SQLiteRepository) writer() *sqlx.DB { return r.pool.Writer() }

const agentColumns = `id, name, description, api_key_id, api_key_hash, capabilities, endpoints, metadata,
	reputation_score, total_tasks_completed, total_tasks_posted, is_active, last_active, created_at, updated_at`

// CreateAgent stores a new agent. Names are unique.
func (r *SQLiteRepository) CreateAgent(ctx context.Context, agent *agentmodels.Agent) error {
	capabilities, err := json.Marshal(agent.Capabilities)
	if err != nil {
		return apperrors.InternalError("failed to encode capabilities", err)
	}
	endpoints, err := json.Marshal(agent.Endpoints)
	if err != nil {
		return apperrors.InternalError("failed to encode endpoints", err)
	}
	metadata, err := json.Marshal(agent.Metadata)
	if err != nil {
		return apperrors.InternalError("failed to encode metadata", err)
	}

	w := r.writer()
	_, err = w.ExecContext(ctx, w.Rebind(`
		INSERT INTO agents (`+agentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		agent.ID, agent.Name, agent.Description, agent.APIKeyID, agent.APIKeyHash,
		string(capabilities), string(endpoints), string(metadata),
		agent.ReputationScore, agent.TotalTasksCompleted, agent.TotalTasksPosted,
		agent.IsActive, agent.LastActive, agent.CreatedAt, agent.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict("agent name already registered: " + agent.Name)
		}
		return apperrors.InternalError("failed to create agent", err)
	}
	return nil
}

// isUniqueViolation recognizes unique-constraint errors from both sqlite
// ("UNIQUE constraint failed") and postgres ("duplicate key value").
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

func (r *SQLiteRepository) getAgentWhere(ctx context.Context, where string, arg interface{}, notFoundID string) (*agentmodels.Agent, error) {
	rd := r.reader()
	row := rd.QueryRowContext(ctx, rd.Rebind(`SELECT `+agentColumns+` FROM agents WHERE `+where), arg)

	agent, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("agent", notFoundID)
	}
	if err != nil {
		return nil, apperrors.InternalError("failed to load agent", err)
	}
	return agent, nil
}

func (r *SQLiteRepository) GetAgent(ctx context.Context, id string) (*agentmodels.Agent, error) {
	return r.getAgentWhere(ctx, "id = ?", id, id)
}

func (r *SQLiteRepository) GetAgentByName(ctx context.Context, name string) (*agentmodels.Agent, error) {
	return r.getAgentWhere(ctx, "name = ?", name, name)
}

func (r *SQLiteRepository) GetAgentByKeyID(ctx context.Context, keyID string) (*agentmodels.Agent, error) {
	return r.getAgentWhere(ctx, "api_key_id = ?", keyID, keyID)
}

// UpdateAgent overwrites the agent's mutable profile fields.
func (r *SQLiteRepository) UpdateAgent(ctx context.Context, agent *agentmodels.Agent) error {
	capabilities, err := json.Marshal(agent.Capabilities)
	if err != nil {
		return apperrors.InternalError("failed to encode capabilities", err)
	}
	endpoints, err := json.Marshal(agent.Endpoints)
	if err != nil {
		return apperrors.InternalError("failed to encode endpoints", err)
	}
	metadata, err := json.Marshal(agent.Metadata)
	if err != nil {
		return apperrors.InternalError("failed to encode metadata", err)
	}

	w := r.writer()
	res, err := w.ExecContext(ctx, w.Rebind(`
		UPDATE agents
		SET description = ?, capabilities = ?, endpoints = ?, metadata = ?, is_active = ?, updated_at = ?
		WHERE id = ?`),
		agent.Description, string(capabilities), string(endpoints), string(metadata),
		agent.IsActive, time.Now().UTC(), agent.ID,
	)
	if err != nil {
		return apperrors.InternalError("failed to update agent", err)
	}
	return requireRow(res, "agent", agent.ID)
}

// TouchAgent bumps the agent's last_active timestamp.
func (r *SQLiteRepository) TouchAgent(ctx context.Context, id string) error {
	w := r.writer()
	res, err := w.ExecContext(ctx, w.Rebind(`UPDATE agents SET last_active = ? WHERE id = ?`),
		time.Now().UTC(), id)
	if err != nil {
		return apperrors.InternalError("failed to touch agent", err)
	}
	return requireRow(res, "agent", id)
}

// SearchAgents returns active agents matching any of the given capabilities,
// ordered by reputation descending. Capability matching happens in Go since
// capabilities live in a JSON column.
func (r *SQLiteRepository) SearchAgents(ctx context.Context, capabilities []string, limit int) ([]*agentmodels.Agent, error) {
	rd := r.reader()
	rows, err := rd.QueryContext(ctx, rd.Rebind(`
		SELECT `+agentColumns+` FROM agents
		WHERE is_active = ?
		ORDER BY reputation_score DESC, created_at ASC`), true)
	if err != nil {
		return nil, apperrors.InternalError("failed to search agents", err)
	}
	defer func() { _ = rows.Close() }()

	var matched []*agentmodels.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, apperrors.InternalError("failed to scan agent", err)
		}
		if !agent.HasAnyCapability(capabilities) {
			continue
		}
		matched = append(matched, agent)
		if limit > 0 && len(matched) == limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.InternalError("failed to iterate agents", err)
	}
	return matched, nil
}

func (r *SQLiteRepository) IncTasksPosted(ctx context.Context, id string) error {
	w := r.writer()
	res, err := w.ExecContext(ctx, w.Rebind(
		`UPDATE agents SET total_tasks_posted = total_tasks_posted + 1 WHERE id = ?`), id)
	if err != nil {
		return apperrors.InternalError("failed to increment tasks posted", err)
	}
	return requireRow(res, "agent", id)
}

func (r *SQLiteRepository) IncTasksCompleted(ctx context.Context, id string) error {
	w := r.writer()
	res, err := w.ExecContext(ctx, w.Rebind(
		`UPDATE agents SET total_tasks_completed = total_tasks_completed + 1 WHERE id = ?`), id)
	if err != nil {
		return apperrors.InternalError("failed to increment tasks completed", err)
	}
	return requireRow(res, "agent", id)
}

const taskColumns = `id, requester_id, claimer_id, title, description, required_capabilities, payload,
	result, status, priority, expires_at, created_at, updated_at, completed_at`

func (r *SQLiteRepository) CreateTask(ctx context.Context, task *taskmodels.Task) error {
	capabilities, err := json.Marshal(task.RequiredCapabilities)
	if err != nil {
		return apperrors.InternalError("failed to encode required capabilities", err)
	}
	payload, err := json.Marshal(task.Payload)
	if err != nil {
		return apperrors.InternalError("failed to encode payload", err)
	}

	w := r.writer()
	_, err = w.ExecContext(ctx, w.Rebind(`
		INSERT INTO tasks (id, requester_id, claimer_id, title, description, required_capabilities,
			payload, result, status, priority, expires_at, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		task.ID, task.RequesterID, task.ClaimerID, task.Title, task.Description,
		string(capabilities), string(payload), nil, task.Status, task.Priority,
		task.ExpiresAt, task.CreatedAt, task.UpdatedAt, task.CompletedAt,
	)
	if err != nil {
		return apperrors.InternalError("failed to create task", err)
	}
	return nil
}

func (r *SQLiteRepository) GetTask(ctx context.Context, id string) (*taskmodels.Task, error) {
	rd := r.reader()
	row := rd.QueryRowContext(ctx, rd.Rebind(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`), id)

	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("task", id)
	}
	if err != nil {
		return nil, apperrors.InternalError("failed to load task", err)
	}
	return task, nil
}

// ListTasks returns tasks matching the filter, ordered by priority
// descending then creation time descending.
func (r *SQLiteRepository) ListTasks(ctx context.Context, filter TaskFilter) ([]*taskmodels.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	args := []interface{}{}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.ExcludeExpired {
		query += ` AND (expires_at IS NULL OR expires_at > ?)`
		args = append(args, time.Now().UTC())
	}
	query += ` ORDER BY priority DESC, created_at DESC`

	rd := r.reader()
	rows, err := rd.QueryContext(ctx, rd.Rebind(query), args...)
	if err != nil {
		return nil, apperrors.InternalError("failed to list tasks", err)
	}
	defer func() { _ = rows.Close() }()

	var matched []*taskmodels.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, apperrors.InternalError("failed to scan task", err)
		}
		if !agentmodels.MatchesAnyCapability(task.RequiredCapabilities, filter.Capabilities) {
			continue
		}
		matched = append(matched, task)
		if filter.Limit > 0 && len(matched) == filter.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.InternalError("failed to iterate tasks", err)
	}
	return matched, nil
}

// ClaimTask atomically moves an open task to in_progress for the claimer.
// The guarded UPDATE decides the winner under concurrent claims.
func (r *SQLiteRepository) ClaimTask(ctx context.Context, taskID, claimerID string) (bool, error) {
	w := r.writer()
	res, err := w.ExecContext(ctx, w.Rebind(`
		UPDATE tasks SET claimer_id = ?, status = ?, updated_at = ?
		WHERE id = ? AND status = ?`),
		claimerID, taskmodels.StatusInProgress, time.Now().UTC(), taskID, taskmodels.StatusOpen,
	)
	if err != nil {
		return false, apperrors.InternalError("failed to claim task", err)
	}
	return r.transitionOutcome(ctx, res, taskID)
}

// CompleteTask atomically moves an in_progress task to completed, storing
// the result.
func (r *SQLiteRepository) CompleteTask(ctx context.Context, taskID string, result map[string]interface{}) (bool, error) {
	encoded, err := json.Marshal(result)
	if err != nil {
		return false, apperrors.InternalError("failed to encode result", err)
	}

	now := time.Now().UTC()
	w := r.writer()
	res, err := w.ExecContext(ctx, w.Rebind(`
		UPDATE tasks SET status = ?, result = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`),
		taskmodels.StatusCompleted, string(encoded), now, now, taskID, taskmodels.StatusInProgress,
	)
	if err != nil {
		return false, apperrors.InternalError("failed to complete task", err)
	}
	return r.transitionOutcome(ctx, res, taskID)
}

// CancelTask atomically cancels an open or in_progress task.
func (r *SQLiteRepository) CancelTask(ctx context.Context, taskID string) (bool, error) {
	w := r.writer()
	res, err := w.ExecContext(ctx, w.Rebind(`
		UPDATE tasks SET status = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`),
		taskmodels.StatusCancelled, time.Now().UTC(), taskID,
		taskmodels.StatusOpen, taskmodels.StatusInProgress,
	)
	if err != nil {
		return false, apperrors.InternalError("failed to cancel task", err)
	}
	return r.transitionOutcome(ctx, res, taskID)
}

// transitionOutcome maps a guarded UPDATE result to (won, error),
// distinguishing a missing task from a lost state race.
func (r *SQLiteRepository) transitionOutcome(ctx context.Context, res sql.Result, taskID string) (bool, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.InternalError("failed to read rows affected", err)
	}
	if affected > 0 {
		return true, nil
	}
	if _, err := r.GetTask(ctx, taskID); err != nil {
		return false, err
	}
	return false, nil
}

func (r *SQLiteRepository) CreateInteraction(ctx context.Context, interaction *interactionmodels.Interaction) error {
	payload, err := json.Marshal(interaction.Payload)
	if err != nil {
		return apperrors.InternalError("failed to encode payload", err)
	}

	w := r.writer()
	_, err = w.ExecContext(ctx, w.Rebind(`
		INSERT INTO interactions (id, sender_id, recipient_id, message_type, payload, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		interaction.ID, interaction.SenderID, interaction.RecipientID,
		interaction.MessageType, string(payload), interaction.Status, interaction.CreatedAt,
	)
	if err != nil {
		return apperrors.InternalError("failed to create interaction", err)
	}
	return nil
}

func (r *SQLiteRepository) UpdateInteractionStatus(ctx context.Context, id string, status interactionmodels.DeliveryStatus) error {
	w := r.writer()
	res, err := w.ExecContext(ctx, w.Rebind(`UPDATE interactions SET status = ? WHERE id = ?`), status, id)
	if err != nil {
		return apperrors.InternalError("failed to update interaction status", err)
	}
	return requireRow(res, "interaction", id)
}

// ListInteractions returns messages where the agent is sender or recipient,
// newest first.
func (r *SQLiteRepository) ListInteractions(ctx context.Context, filter InteractionFilter) ([]*interactionmodels.Interaction, error) {
	query := `
		SELECT id, sender_id, recipient_id, message_type, payload, status, created_at
		FROM interactions
		WHERE (sender_id = ? OR recipient_id = ?)`
	args := []interface{}{filter.AgentID, filter.AgentID}

	if filter.WithAgentID != "" {
		query += ` AND ((sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?))`
		args = append(args, filter.AgentID, filter.WithAgentID, filter.WithAgentID, filter.AgentID)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rd := r.reader()
	rows, err := rd.QueryContext(ctx, rd.Rebind(query), args...)
	if err != nil {
		return nil, apperrors.InternalError("failed to list interactions", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*interactionmodels.Interaction
	for rows.Next() {
		var in interactionmodels.Interaction
		var payload string
		if err := rows.Scan(&in.ID, &in.SenderID, &in.RecipientID, &in.MessageType,
			&payload, &in.Status, &in.CreatedAt); err != nil {
			return nil, apperrors.InternalError("failed to scan interaction", err)
		}
		_ = json.Unmarshal([]byte(payload), &in.Payload)
		out = append(out, &in)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.InternalError("failed to iterate interactions", err)
	}
	return out, nil
}

// ListRecentAgents returns agents ordered by registration time, newest first.
func (r *SQLiteRepository) ListRecentAgents(ctx context.Context, limit int) ([]*agentmodels.Agent, error) {
	rd := r.reader()
	rows, err := rd.QueryContext(ctx, rd.Rebind(
		`SELECT `+agentColumns+` FROM agents ORDER BY created_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, apperrors.InternalError("failed to list recent agents", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*agentmodels.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, apperrors.InternalError("failed to scan agent", err)
		}
		out = append(out, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.InternalError("failed to iterate agents", err)
	}
	return out, nil
}

// ListRecentTasks returns tasks ordered by creation time, newest first.
func (r *SQLiteRepository) ListRecentTasks(ctx context.Context, limit int) ([]*taskmodels.Task, error) {
	rd := r.reader()
	rows, err := rd.QueryContext(ctx, rd.Rebind(
		`SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, apperrors.InternalError("failed to list recent tasks", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*taskmodels.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, apperrors.InternalError("failed to scan task", err)
		}
		out = append(out, task)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.InternalError("failed to iterate tasks", err)
	}
	return out, nil
}

// ListRecentInteractions returns all interactions, newest first.
func (r *SQLiteRepository) ListRecentInteractions(ctx context.Context, limit int) ([]*interactionmodels.Interaction, error) {
	rd := r.reader()
	rows, err := rd.QueryContext(ctx, rd.Rebind(`
		SELECT id, sender_id, recipient_id, message_type, payload, status, created_at
		FROM interactions ORDER BY created_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, apperrors.InternalError("failed to list recent interactions", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*interactionmodels.Interaction
	for rows.Next() {
		var in interactionmodels.Interaction
		var payload string
		if err := rows.Scan(&in.ID, &in.SenderID, &in.RecipientID, &in.MessageType,
			&payload, &in.Status, &in.CreatedAt); err != nil {
			return nil, apperrors.InternalError("failed to scan interaction", err)
		}
		_ = json.Unmarshal([]byte(payload), &in.Payload)
		out = append(out, &in)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.InternalError("failed to iterate interactions", err)
	}
	return out, nil
}

// ListRecentReputationLogs returns ledger entries across all agents, newest
// first.
func (r *SQLiteRepository) ListRecentReputationLogs(ctx context.Context, limit int) ([]*reputationmodels.ReputationLog, error) {
	rd := r.reader()
	rows, err := rd.QueryContext(ctx, rd.Rebind(`
		SELECT id, agent_id, action, value_change, reason, created_at
		FROM reputation_logs ORDER BY created_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, apperrors.InternalError("failed to list recent reputation logs", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*reputationmodels.ReputationLog
	for rows.Next() {
		var entry reputationmodels.ReputationLog
		if err := rows.Scan(&entry.ID, &entry.AgentID, &entry.Action,
			&entry.ValueChange, &entry.Reason, &entry.CreatedAt); err != nil {
			return nil, apperrors.InternalError("failed to scan reputation log", err)
		}
		out = append(out, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.InternalError("failed to iterate reputation logs", err)
	}
	return out, nil
}

// AddReputation appends a ledger entry and adjusts the agent's score in one
// transaction. Returns false when the agent does not exist.
func (r *SQLiteRepository) AddReputation(ctx context.Context, entry *reputationmodels.ReputationLog) (bool, error) {
	w := r.writer()
	tx, err := w.BeginTxx(ctx, nil)
	if err != nil {
		return false, apperrors.InternalError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, tx.Rebind(
		`UPDATE agents SET reputation_score = reputation_score + ? WHERE id = ?`),
		entry.ValueChange, entry.AgentID)
	if err != nil {
		return false, apperrors.InternalError("failed to adjust reputation score", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.InternalError("failed to read rows affected", err)
	}
	if affected == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO reputation_logs (id, agent_id, action, value_change, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		entry.ID, entry.AgentID, entry.Action, entry.ValueChange, entry.Reason, entry.CreatedAt,
	)
	if err != nil {
		return false, apperrors.InternalError("failed to append reputation log", err)
	}

	if err := tx.Commit(); err != nil {
		return false, apperrors.InternalError("failed to commit reputation change", err)
	}
	return true, nil
}

func (r *SQLiteRepository) ListReputationLogs(ctx context.Context, agentID string, limit int) ([]*reputationmodels.ReputationLog, error) {
	query := `
		SELECT id, agent_id, action, value_change, reason, created_at
		FROM reputation_logs WHERE agent_id = ?
		ORDER BY created_at DESC`
	args := []interface{}{agentID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rd := r.reader()
	rows, err := rd.QueryContext(ctx, rd.Rebind(query), args...)
	if err != nil {
		return nil, apperrors.InternalError("failed to list reputation logs", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*reputationmodels.ReputationLog
	for rows.Next() {
		var entry reputationmodels.ReputationLog
		if err := rows.Scan(&entry.ID, &entry.AgentID, &entry.Action,
			&entry.ValueChange, &entry.Reason, &entry.CreatedAt); err != nil {
			return nil, apperrors.InternalError("failed to scan reputation log", err)
		}
		out = append(out, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.InternalError("failed to iterate reputation logs", err)
	}
	return out, nil
}

func (r *SQLiteRepository) SumReputation(ctx context.Context, agentID string) (int, error) {
	rd := r.reader()
	var sum sql.NullInt64
	err := rd.QueryRowContext(ctx, rd.Rebind(
		`SELECT SUM(value_change) FROM reputation_logs WHERE agent_id = ?`), agentID).Scan(&sum)
	if err != nil {
		return 0, apperrors.InternalError("failed to sum reputation", err)
	}
	return int(sum.Int64), nil
}

func (r *SQLiteRepository) Close() error {
	return r.pool.Close()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAgent(row rowScanner) (*agentmodels.Agent, error) {
	var agent agentmodels.Agent
	var capabilities, endpoints, metadata string

	err := row.Scan(&agent.ID, &agent.Name, &agent.Description, &agent.APIKeyID, &agent.APIKeyHash,
		&capabilities, &endpoints, &metadata,
		&agent.ReputationScore, &agent.TotalTasksCompleted, &agent.TotalTasksPosted,
		&agent.IsActive, &agent.LastActive, &agent.CreatedAt, &agent.UpdatedAt)
	if err != nil {
		return nil, err
	}

	_ = json.Unmarshal([]byte(capabilities), &agent.Capabilities)
	_ = json.Unmarshal([]byte(endpoints), &agent.Endpoints)
	_ = json.Unmarshal([]byte(metadata), &agent.Metadata)
	return &agent, nil
}

func scanTask(row rowScanner) (*taskmodels.Task, error) {
	var task taskmodels.Task
	var claimerID sql.NullString
	var capabilities, payload string
	var result sql.NullString
	var expiresAt, completedAt sql.NullTime

	err := row.Scan(&task.ID, &task.RequesterID, &claimerID, &task.Title, &task.Description,
		&capabilities, &payload, &result, &task.Status, &task.Priority,
		&expiresAt, &task.CreatedAt, &task.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if claimerID.Valid {
		task.ClaimerID = &claimerID.String
	}
	if expiresAt.Valid {
		task.ExpiresAt = &expiresAt.Time
	}
	if completedAt.Valid {
		task.CompletedAt = &completedAt.Time
	}
	_ = json.Unmarshal([]byte(capabilities), &task.RequiredCapabilities)
	_ = json.Unmarshal([]byte(payload), &task.Payload)
	if result.Valid {
		_ = json.Unmarshal([]byte(result.String), &task.Result)
	}
	return &task, nil
}

func requireRow(res sql.Result, resource, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return apperrors.InternalError("failed to read rows affected", err)
	}
	if affected == 0 {
		return apperrors.NotFound(resource, id)
	}
	return nil
}
