package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// LoadErrorMessage is the user-visible message for a failed registry load
const LoadErrorMessage = "Failed to fetch tools"

// Remote is the REST backend the store mirrors
type Remote interface {
	ListTools(ctx context.Context) ([]Tool, error)
	CreateTool(ctx context.Context, query string) (*Tool, error)
	DeleteTool(ctx context.Context, id ID) error
}

// Store owns the process-wide registry: it is filled once from the backend
// on start and afterwards only changes through Create and Delete, each
// applied locally after the backend confirms.
type Store struct {
	registry *Registry
	remote   Remote
	logger   zerolog.Logger

	mu       sync.RWMutex
	loading  bool
	errMsg   string
	deleting map[ID]struct{}
}

// NewStore creates a store in the loading state
func NewStore(remote Remote, logger zerolog.Logger) *Store {
	return &Store{
		registry: NewRegistry(),
		remote:   remote,
		logger:   logger,
		loading:  true,
		deleting: make(map[ID]struct{}),
	}
}

// Load fetches the registry from the backend. On failure the registry is
// emptied and the load error message is set.
func (s *Store) Load(ctx context.Context) error {
	tools, err := s.remote.ListTools(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false

	if err != nil {
		s.registry.Replace(nil)
		s.errMsg = LoadErrorMessage
		s.logger.Error().Err(err).Msg("Failed to load tool registry")
		return fmt.Errorf("load registry: %w", err)
	}

	s.registry.Replace(tools)
	if s.errMsg == LoadErrorMessage {
		s.errMsg = ""
	}
	s.logger.Info().Int("tools", len(tools)).Msg("Tool registry loaded")
	return nil
}

// Loading reports whether the initial load has not finished yet
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Registry returns the underlying registry
func (s *Store) Registry() *Registry {
	return s.registry
}

// Get looks up a tool by id
func (s *Store) Get(id ID) (Tool, bool) {
	return s.registry.Get(id)
}

// Error returns the current user-visible error, if any
func (s *Store) Error() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errMsg
}

// Deleting reports whether a deletion of id is in flight
func (s *Store) Deleting(id ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.deleting[id]
	return ok
}

// Create asks the backend to generate a tool from a natural-language query
// and appends it. A rejected query leaves the registry untouched.
func (s *Store) Create(ctx context.Context, query string) (*Tool, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	tool, err := s.remote.CreateTool(ctx, query)
	if err != nil {
		s.logger.Warn().Err(err).Str("query", query).Msg("Failed to create tool")
		return nil, err
	}

	s.registry.Append(*tool)
	s.logger.Info().
		Str("tool_id", tool.ID.String()).
		Str("tool", tool.FunctionTitle).
		Msg("Tool created")
	return tool, nil
}

// Delete removes a tool through the backend. Success clears any prior error;
// failure leaves the registry unchanged and records an error naming the id.
func (s *Store) Delete(ctx context.Context, id ID) error {
	s.mu.Lock()
	s.deleting[id] = struct{}{}
	s.mu.Unlock()

	err := s.remote.DeleteTool(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deleting, id)

	if err != nil {
		s.errMsg = fmt.Sprintf("Deletion error in %s", id)
		s.logger.Warn().Err(err).Str("tool_id", id.String()).Msg("Failed to delete tool")
		return err
	}

	s.registry.Remove(id)
	s.errMsg = ""
	s.logger.Info().Str("tool_id", id.String()).Msg("Tool deleted")
	return nil
}
