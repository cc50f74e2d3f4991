// Package postgres implements fyreflow.Store using PostgreSQL.
//
// Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nevindra/fyreflow"
)

// Store implements fyreflow.Store backed by PostgreSQL. Run records are
// stored as JSONB; UpdateRun's compare-and-swap semantics come from a
// `SELECT ... FOR UPDATE` row lock held for the lifetime of the
// surrounding transaction.
type Store struct {
	pool *pgxpool.Pool
}

var _ fyreflow.Store = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool. The caller owns
// the pool and is responsible for closing it.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates all required tables. Safe to call multiple times.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			data JSONB NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS runs_updated_idx ON runs(updated_at)`,
		`CREATE TABLE IF NOT EXISTS providers (
			id TEXT PRIMARY KEY,
			data JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS mcp_servers (
			id TEXT PRIMARY KEY,
			data JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}
	return nil
}

// CreateRun persists a brand-new run record.
func (s *Store) CreateRun(ctx context.Context, run fyreflow.Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("postgres: marshal run: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, data, updated_at) VALUES ($1, $2::jsonb, extract(epoch from now())*1000)`,
		run.ID, string(data))
	if err != nil {
		return fmt.Errorf("postgres: create run: %w", err)
	}
	return nil
}

// GetRun returns the run, or fyreflow.ErrRunNotFound.
func (s *Store) GetRun(ctx context.Context, runID string) (fyreflow.Run, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM runs WHERE id = $1`, runID).Scan(&data)
	if err == pgx.ErrNoRows {
		return fyreflow.Run{}, fyreflow.ErrRunNotFound
	}
	if err != nil {
		return fyreflow.Run{}, fmt.Errorf("postgres: get run: %w", err)
	}
	var run fyreflow.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return fyreflow.Run{}, fmt.Errorf("postgres: unmarshal run: %w", err)
	}
	return run, nil
}

// UpdateRun locks the run row with SELECT ... FOR UPDATE inside a
// transaction, applies fn, writes the result, and commits — giving
// concurrent UpdateRun calls for the same run id serializable,
// compare-and-swap semantics via Postgres row locking.
func (s *Store) UpdateRun(ctx context.Context, runID string, fn func(fyreflow.Run) fyreflow.Run) (fyreflow.Run, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fyreflow.Run{}, fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var data []byte
	err = tx.QueryRow(ctx, `SELECT data FROM runs WHERE id = $1 FOR UPDATE`, runID).Scan(&data)
	if err == pgx.ErrNoRows {
		return fyreflow.Run{}, fyreflow.ErrRunNotFound
	}
	if err != nil {
		return fyreflow.Run{}, fmt.Errorf("postgres: get run: %w", err)
	}
	var run fyreflow.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return fyreflow.Run{}, fmt.Errorf("postgres: unmarshal run: %w", err)
	}

	updated := fn(run)
	out, err := json.Marshal(updated)
	if err != nil {
		return fyreflow.Run{}, fmt.Errorf("postgres: marshal run: %w", err)
	}
	_, err = tx.Exec(ctx,
		`UPDATE runs SET data = $1::jsonb, updated_at = extract(epoch from now())*1000 WHERE id = $2`,
		string(out), runID)
	if err != nil {
		return fyreflow.Run{}, fmt.Errorf("postgres: update run: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fyreflow.Run{}, fmt.Errorf("postgres: commit tx: %w", err)
	}
	return updated, nil
}

// ListRuns returns run snapshots, most recent first, optionally
// restricted to pipelineID and/or one of status. Both filters are
// pushed down as JSONB predicates on the data column rather than
// decoded and filtered in Go.
func (s *Store) ListRuns(ctx context.Context, pipelineID string, status ...fyreflow.RunStatus) ([]fyreflow.Run, error) {
	query := `SELECT data FROM runs WHERE ($1 = '' OR data->>'pipelineId' = $1)`
	args := []any{pipelineID}

	if len(status) > 0 {
		names := make([]string, len(status))
		for i, s := range status {
			names[i] = string(s)
		}
		query += ` AND data->>'status' = ANY($2)`
		args = append(args, names)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list runs: %w", err)
	}
	defer rows.Close()

	var runs []fyreflow.Run
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("postgres: scan run: %w", err)
		}
		var run fyreflow.Run
		if err := json.Unmarshal(data, &run); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetProviders returns the registered model providers, keyed by id.
func (s *Store) GetProviders(ctx context.Context) (map[string]fyreflow.ProviderConfig, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM providers`)
	if err != nil {
		return nil, fmt.Errorf("postgres: get providers: %w", err)
	}
	defer rows.Close()

	out := make(map[string]fyreflow.ProviderConfig)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("postgres: scan provider: %w", err)
		}
		var p fyreflow.ProviderConfig
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal provider: %w", err)
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// PutProvider upserts a registered provider.
func (s *Store) PutProvider(ctx context.Context, p fyreflow.ProviderConfig) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("postgres: marshal provider: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO providers (id, data) VALUES ($1, $2::jsonb)
		 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`,
		p.ID, string(data))
	return err
}

// GetState returns the registered MCP servers and the storage config.
func (s *Store) GetState(ctx context.Context) (fyreflow.EngineState, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM mcp_servers`)
	if err != nil {
		return fyreflow.EngineState{}, fmt.Errorf("postgres: get mcp servers: %w", err)
	}
	defer rows.Close()

	var servers []fyreflow.McpServerConfig
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return fyreflow.EngineState{}, fmt.Errorf("postgres: scan mcp server: %w", err)
		}
		var m fyreflow.McpServerConfig
		if err := json.Unmarshal(data, &m); err != nil {
			return fyreflow.EngineState{}, fmt.Errorf("postgres: unmarshal mcp server: %w", err)
		}
		servers = append(servers, m)
	}
	if err := rows.Err(); err != nil {
		return fyreflow.EngineState{}, err
	}

	root, err := s.GetConfig(ctx, "storage_root")
	if err != nil {
		return fyreflow.EngineState{}, err
	}
	return fyreflow.EngineState{McpServers: servers, Storage: fyreflow.DefaultStorageConfig(root)}, nil
}

// PutMcpServer upserts a registered MCP server.
func (s *Store) PutMcpServer(ctx context.Context, m fyreflow.McpServerConfig) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("postgres: marshal mcp server: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO mcp_servers (id, data) VALUES ($1, $2::jsonb)
		 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`,
		m.ID, string(data))
	return err
}

func (s *Store) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM config WHERE key = $1`, key).Scan(&value)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("postgres: get config: %w", err)
	}
	return value, nil
}

func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO config (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("postgres: set config: %w", err)
	}
	return nil
}

// Close is a no-op. The caller owns the pool and manages its lifecycle.
func (s *Store) Close() error {
	return nil
}
