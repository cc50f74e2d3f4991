// Package memstore implements fyreflow.Store entirely in memory, for
// tests and single-process demos where no SQLite/Postgres file is
// wanted.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/nevindra/fyreflow"
)

// Store implements fyreflow.Store with a mutex-guarded map. UpdateRun
// holds the single store-wide lock for its entire read-modify-write
// cycle, which is sufficient compare-and-swap serialization for a
// single process.
type Store struct {
	mu        sync.Mutex
	runs      map[string]fyreflow.Run
	providers map[string]fyreflow.ProviderConfig
	servers   []fyreflow.McpServerConfig
	storage   fyreflow.StorageConfig
}

var _ fyreflow.Store = (*Store)(nil)

// New creates an empty Store rooted at storageRoot for journal files.
func New(storageRoot string) *Store {
	return &Store{
		runs:      make(map[string]fyreflow.Run),
		providers: make(map[string]fyreflow.ProviderConfig),
		storage:   fyreflow.DefaultStorageConfig(storageRoot),
	}
}

func (s *Store) CreateRun(ctx context.Context, run fyreflow.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return nil
}

func (s *Store) GetRun(ctx context.Context, runID string) (fyreflow.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return fyreflow.Run{}, fyreflow.ErrRunNotFound
	}
	return run, nil
}

func (s *Store) UpdateRun(ctx context.Context, runID string, fn func(fyreflow.Run) fyreflow.Run) (fyreflow.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return fyreflow.Run{}, fyreflow.ErrRunNotFound
	}
	updated := fn(run)
	s.runs[runID] = updated
	return updated, nil
}

// ListRuns returns run snapshots, most recent first, optionally
// restricted to pipelineID and/or one of status.
func (s *Store) ListRuns(ctx context.Context, pipelineID string, status ...fyreflow.RunStatus) ([]fyreflow.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]fyreflow.Run, 0, len(s.runs))
	for _, r := range s.runs {
		if pipelineID != "" && r.PipelineID != pipelineID {
			continue
		}
		if len(status) > 0 && !containsStatus(status, r.Status) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt > out[j].StartedAt })
	return out, nil
}

func containsStatus(statuses []fyreflow.RunStatus, s fyreflow.RunStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func (s *Store) GetProviders(ctx context.Context) (map[string]fyreflow.ProviderConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]fyreflow.ProviderConfig, len(s.providers))
	for k, v := range s.providers {
		out[k] = v
	}
	return out, nil
}

// PutProvider registers a provider for GetProviders to return.
func (s *Store) PutProvider(p fyreflow.ProviderConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[p.ID] = p
}

func (s *Store) GetState(ctx context.Context) (fyreflow.EngineState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	servers := make([]fyreflow.McpServerConfig, len(s.servers))
	copy(servers, s.servers)
	return fyreflow.EngineState{McpServers: servers, Storage: s.storage}, nil
}

// PutMcpServer registers an MCP server for GetState to return.
func (s *Store) PutMcpServer(m fyreflow.McpServerConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servers = append(s.servers, m)
}
