package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store against Postgres/CockroachDB, grounded on
// internal/sessions/cockroach.go's DSN-construction and prepared-statement
// idiom.
type PostgresStore struct {
	db *sql.DB

	stmtAppend          *sql.Stmt
	stmtHighestSeq      *sql.Stmt
	stmtReplay          *sql.Stmt
	stmtRecordDelta     *sql.Stmt
	stmtFinalizeUsage   *sql.Stmt
	stmtUsageSummaryFor *sql.Stmt
	stmtSaveState       *sql.Stmt
	stmtLoadState       *sql.Stmt
}

// Config holds connection parameters for PostgresStore, mirroring
// internal/sessions.CockroachConfig's shape.
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultConfig returns sensible local-development defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		Database:        "flowlane",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// NewPostgresStore opens a connection pool and prepares every statement the
// store needs.
func NewPostgresStore(cfg *Config) (*PostgresStore, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode, int(cfg.ConnectTimeout.Seconds()),
	)
	return NewPostgresStoreFromDSN(dsn, cfg)
}

// NewPostgresStoreFromDSN opens a connection pool from a raw DSN/URL.
func NewPostgresStoreFromDSN(dsn string, cfg *Config) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("dsn is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	s := &PostgresStore{db: db}
	if err := s.prepare(); err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare statements: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) prepare() error {
	var err error
	if s.stmtAppend, err = s.db.Prepare(`
		INSERT INTO run_events (tenant_id, chat_id, seq, type, data, hidden, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`); err != nil {
		return err
	}
	if s.stmtHighestSeq, err = s.db.Prepare(`
		SELECT COALESCE(MAX(seq), 0) FROM run_events WHERE tenant_id = $1 AND chat_id = $2`); err != nil {
		return err
	}
	if s.stmtReplay, err = s.db.Prepare(`
		SELECT seq, type, data, hidden, created_at FROM run_events
		WHERE tenant_id = $1 AND chat_id = $2 AND seq > $3 ORDER BY seq ASC`); err != nil {
		return err
	}
	if s.stmtRecordDelta, err = s.db.Prepare(`
		INSERT INTO usage_deltas (tenant_id, chat_id, agent, prompt_tokens, completion_tokens, cost_micros, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`); err != nil {
		return err
	}
	if s.stmtFinalizeUsage, err = s.db.Prepare(`
		INSERT INTO usage_summaries (tenant_id, chat_id, prompt_tokens, completion_tokens, cost_micros, finalized_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, chat_id) DO UPDATE SET
			prompt_tokens = EXCLUDED.prompt_tokens,
			completion_tokens = EXCLUDED.completion_tokens,
			cost_micros = EXCLUDED.cost_micros,
			finalized_at = EXCLUDED.finalized_at`); err != nil {
		return err
	}
	if s.stmtUsageSummaryFor, err = s.db.Prepare(`
		SELECT prompt_tokens, completion_tokens, cost_micros, finalized_at
		FROM usage_summaries WHERE tenant_id = $1 AND chat_id = $2`); err != nil {
		return err
	}
	if s.stmtSaveState, err = s.db.Prepare(`
		INSERT INTO conversation_states (tenant_id, chat_id, blob, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, chat_id) DO UPDATE SET blob = EXCLUDED.blob, updated_at = EXCLUDED.updated_at`); err != nil {
		return err
	}
	if s.stmtLoadState, err = s.db.Prepare(`
		SELECT blob, updated_at FROM conversation_states WHERE tenant_id = $1 AND chat_id = $2`); err != nil {
		return err
	}
	return nil
}

// DB exposes the underlying pool for migrations/health checks.
func (s *PostgresStore) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	highest, err := s.HighestSeq(ctx, event.TenantID, event.ChatID)
	if err != nil {
		return err
	}
	if event.Seq <= highest {
		return ErrSeqOutOfOrder
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	_, err = s.stmtAppend.ExecContext(ctx, event.TenantID, event.ChatID, event.Seq, event.Type, []byte(event.Data), event.Hidden, event.CreatedAt)
	return err
}

func (s *PostgresStore) HighestSeq(ctx context.Context, tenantID, chatID string) (uint64, error) {
	var seq uint64
	err := s.stmtHighestSeq.QueryRowContext(ctx, tenantID, chatID).Scan(&seq)
	return seq, err
}

func (s *PostgresStore) Replay(ctx context.Context, tenantID, chatID string, afterSeq uint64) ([]Event, error) {
	rows, err := s.stmtReplay.QueryContext(ctx, tenantID, chatID, afterSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var data []byte
		e.TenantID, e.ChatID = tenantID, chatID
		if err := rows.Scan(&e.Seq, &e.Type, &data, &e.Hidden, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Data = json.RawMessage(data)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) RecordUsageDelta(ctx context.Context, delta UsageDelta) error {
	if delta.RecordedAt.IsZero() {
		delta.RecordedAt = time.Now()
	}
	_, err := s.stmtRecordDelta.ExecContext(ctx, delta.TenantID, delta.ChatID, delta.Agent, delta.PromptTokens, delta.CompletionTokens, delta.CostMicros, delta.RecordedAt)
	return err
}

func (s *PostgresStore) FinalizeUsage(ctx context.Context, summary UsageSummary) error {
	if summary.FinalizedAt.IsZero() {
		summary.FinalizedAt = time.Now()
	}
	_, err := s.stmtFinalizeUsage.ExecContext(ctx, summary.TenantID, summary.ChatID, summary.PromptTokens, summary.CompletionTokens, summary.CostMicros, summary.FinalizedAt)
	return err
}

func (s *PostgresStore) UsageSummaryFor(ctx context.Context, tenantID, chatID string) (UsageSummary, error) {
	var sum UsageSummary
	sum.TenantID, sum.ChatID = tenantID, chatID
	err := s.stmtUsageSummaryFor.QueryRowContext(ctx, tenantID, chatID).Scan(&sum.PromptTokens, &sum.CompletionTokens, &sum.CostMicros, &sum.FinalizedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return UsageSummary{}, ErrNotFound
	}
	return sum, err
}

func (s *PostgresStore) SaveState(ctx context.Context, state ConversationState) error {
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now()
	}
	_, err := s.stmtSaveState.ExecContext(ctx, state.TenantID, state.ChatID, []byte(state.Blob), state.UpdatedAt)
	return err
}

func (s *PostgresStore) LoadState(ctx context.Context, tenantID, chatID string) (ConversationState, error) {
	var state ConversationState
	state.TenantID, state.ChatID = tenantID, chatID
	var blob []byte
	err := s.stmtLoadState.QueryRowContext(ctx, tenantID, chatID).Scan(&blob, &state.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ConversationState{}, ErrNotFound
	}
	if err != nil {
		return ConversationState{}, err
	}
	state.Blob = json.RawMessage(blob)
	return state, nil
}
