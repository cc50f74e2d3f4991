// Package sqlite implements fyreflow.Store using pure-Go SQLite.
// Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nevindra/fyreflow"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store. When set, the
// store emits debug logs for every operation including timing and key
// parameters. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements fyreflow.Store backed by a local SQLite file. All
// writers serialize through a single connection (SetMaxOpenConns(1)),
// which gives UpdateRun's read-modify-write cycle compare-and-swap
// semantics for free without a separate locking scheme.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ fyreflow.Store = (*Store)(nil)

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath. It opens a
// single shared connection pool with SetMaxOpenConns(1) so that all
// goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates all required tables.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	s.logger.Debug("sqlite: init started")
	tables := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS providers (
			id TEXT PRIMARY KEY,
			data TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS mcp_servers (
			id TEXT PRIMARY KEY,
			data TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, ddl := range tables {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_runs_updated ON runs(updated_at)`)
	s.logger.Info("sqlite: init completed", "duration", time.Since(start))
	return nil
}

// CreateRun persists a brand-new run record.
func (s *Store) CreateRun(ctx context.Context, run fyreflow.Run) error {
	start := time.Now()
	s.logger.Debug("sqlite: create run", "id", run.ID, "pipeline_id", run.PipelineID)

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, data, updated_at) VALUES (?, ?, ?)`,
		run.ID, string(data), time.Now().UnixMilli(),
	)
	if err != nil {
		s.logger.Error("sqlite: create run failed", "id", run.ID, "error", err, "duration", time.Since(start))
		return fmt.Errorf("create run: %w", err)
	}
	s.logger.Debug("sqlite: create run ok", "id", run.ID, "duration", time.Since(start))
	return nil
}

// GetRun returns the run, or fyreflow.ErrRunNotFound.
func (s *Store) GetRun(ctx context.Context, runID string) (fyreflow.Run, error) {
	start := time.Now()
	s.logger.Debug("sqlite: get run", "id", runID)

	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM runs WHERE id = ?`, runID).Scan(&data)
	if err == sql.ErrNoRows {
		return fyreflow.Run{}, fyreflow.ErrRunNotFound
	}
	if err != nil {
		s.logger.Error("sqlite: get run failed", "id", runID, "error", err, "duration", time.Since(start))
		return fyreflow.Run{}, fmt.Errorf("get run: %w", err)
	}
	var run fyreflow.Run
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return fyreflow.Run{}, fmt.Errorf("unmarshal run: %w", err)
	}
	s.logger.Debug("sqlite: get run ok", "id", runID, "duration", time.Since(start))
	return run, nil
}

// UpdateRun loads the current run inside a transaction, applies fn, and
// persists the result before committing. Because the Store's
// connection pool is capped at one connection, the transaction's
// BEGIN...COMMIT window serializes concurrent UpdateRun calls for any
// run id (and every other run id) through SQLite's own locking,
// giving the compare-and-swap semantics the interface requires.
func (s *Store) UpdateRun(ctx context.Context, runID string, fn func(fyreflow.Run) fyreflow.Run) (fyreflow.Run, error) {
	start := time.Now()
	s.logger.Debug("sqlite: update run", "id", runID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fyreflow.Run{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var data string
	err = tx.QueryRowContext(ctx, `SELECT data FROM runs WHERE id = ?`, runID).Scan(&data)
	if err == sql.ErrNoRows {
		return fyreflow.Run{}, fyreflow.ErrRunNotFound
	}
	if err != nil {
		return fyreflow.Run{}, fmt.Errorf("get run: %w", err)
	}
	var run fyreflow.Run
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return fyreflow.Run{}, fmt.Errorf("unmarshal run: %w", err)
	}

	updated := fn(run)
	out, err := json.Marshal(updated)
	if err != nil {
		return fyreflow.Run{}, fmt.Errorf("marshal run: %w", err)
	}
	_, err = tx.ExecContext(ctx, `UPDATE runs SET data = ?, updated_at = ? WHERE id = ?`, string(out), time.Now().UnixMilli(), runID)
	if err != nil {
		return fyreflow.Run{}, fmt.Errorf("update run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		s.logger.Error("sqlite: update run commit failed", "id", runID, "error", err, "duration", time.Since(start))
		return fyreflow.Run{}, fmt.Errorf("commit tx: %w", err)
	}
	s.logger.Debug("sqlite: update run ok", "id", runID, "status", updated.Status, "duration", time.Since(start))
	return updated, nil
}

// ListRuns returns run snapshots, most recent first, optionally
// restricted to pipelineID and/or one of status. The run payload is an
// opaque JSON blob, so filtering happens in Go after decoding rather
// than in SQL.
func (s *Store) ListRuns(ctx context.Context, pipelineID string, status ...fyreflow.RunStatus) ([]fyreflow.Run, error) {
	start := time.Now()
	s.logger.Debug("sqlite: list runs", "pipeline_id", pipelineID, "status", status)

	rows, err := s.db.QueryContext(ctx, `SELECT data FROM runs ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []fyreflow.Run
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		var run fyreflow.Run
		if err := json.Unmarshal([]byte(data), &run); err != nil {
			return nil, fmt.Errorf("unmarshal run: %w", err)
		}
		if !matchesRunFilter(run, pipelineID, status) {
			continue
		}
		runs = append(runs, run)
	}
	s.logger.Debug("sqlite: list runs ok", "count", len(runs), "duration", time.Since(start))
	return runs, rows.Err()
}

// matchesRunFilter reports whether run satisfies an optional pipeline
// id filter and an optional set of acceptable statuses.
func matchesRunFilter(run fyreflow.Run, pipelineID string, status []fyreflow.RunStatus) bool {
	if pipelineID != "" && run.PipelineID != pipelineID {
		return false
	}
	if len(status) == 0 {
		return true
	}
	for _, s := range status {
		if run.Status == s {
			return true
		}
	}
	return false
}

// GetProviders returns the registered model providers, keyed by id.
func (s *Store) GetProviders(ctx context.Context) (map[string]fyreflow.ProviderConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM providers`)
	if err != nil {
		return nil, fmt.Errorf("get providers: %w", err)
	}
	defer rows.Close()

	out := make(map[string]fyreflow.ProviderConfig)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		var p fyreflow.ProviderConfig
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("unmarshal provider: %w", err)
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// PutProvider upserts a registered provider.
func (s *Store) PutProvider(ctx context.Context, p fyreflow.ProviderConfig) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal provider: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO providers (id, data) VALUES (?, ?)`, p.ID, string(data))
	return err
}

// GetState returns the registered MCP servers and the storage config.
func (s *Store) GetState(ctx context.Context) (fyreflow.EngineState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM mcp_servers`)
	if err != nil {
		return fyreflow.EngineState{}, fmt.Errorf("get mcp servers: %w", err)
	}
	defer rows.Close()

	var servers []fyreflow.McpServerConfig
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return fyreflow.EngineState{}, fmt.Errorf("scan mcp server: %w", err)
		}
		var m fyreflow.McpServerConfig
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			return fyreflow.EngineState{}, fmt.Errorf("unmarshal mcp server: %w", err)
		}
		servers = append(servers, m)
	}
	if err := rows.Err(); err != nil {
		return fyreflow.EngineState{}, err
	}

	storageRoot, err := s.getConfig(ctx, "storage_root")
	if err != nil {
		return fyreflow.EngineState{}, err
	}
	return fyreflow.EngineState{McpServers: servers, Storage: fyreflow.DefaultStorageConfig(storageRoot)}, nil
}

// PutMcpServer upserts a registered MCP server.
func (s *Store) PutMcpServer(ctx context.Context, m fyreflow.McpServerConfig) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal mcp server: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO mcp_servers (id, data) VALUES (?, ?)`, m.ID, string(data))
	return err
}

func (s *Store) getConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetConfig stores a single config key/value pair, e.g. "storage_root".
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO config (key, value) VALUES (?, ?)`, key, value)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	s.logger.Debug("sqlite: closing store")
	err := s.db.Close()
	if err != nil {
		s.logger.Error("sqlite: close failed", "error", err)
	}
	return err
}
