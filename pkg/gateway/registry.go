package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harun/toolshed/pkg/catalog"
	"github.com/harun/toolshed/pkg/detail"
)

// Session is one open tool detail view
type Session struct {
	ID           string
	ToolID       catalog.ID
	Conn         *websocket.Conn
	ConnectedAt  time.Time
	LastActivity time.Time
	IPAddress    string

	controller *detail.Controller
	writeMu    sync.Mutex
}

// SessionInfo is the public view of a session
type SessionInfo struct {
	ID           string     `json:"id"`
	ToolID       catalog.ID `json:"tool_id"`
	ConnectedAt  time.Time  `json:"connected_at"`
	LastActivity time.Time  `json:"last_activity"`
	IPAddress    string     `json:"ip_address"`
	Idle         bool       `json:"idle"`
}

// SessionRegistry tracks open sessions
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionRegistry creates an empty registry
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*Session),
	}
}

// Add adds a session
func (r *SessionRegistry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[s.ID] = s
}

// Remove removes a session and reports whether it was present
func (r *SessionRegistry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return ok
}

// Get retrieves a session by id
func (r *SessionRegistry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	return s, ok
}

// GetAll returns every session
func (r *SessionRegistry) GetAll() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Count returns the number of sessions
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

// UpdateActivity marks a session as active now
func (r *SessionRegistry) UpdateActivity(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		s.LastActivity = time.Now()
	}
}

// Infos returns session information; sessions quiet for five minutes are idle
func (r *SessionRegistry) Infos() []SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	infos := make([]SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, SessionInfo{
			ID:           s.ID,
			ToolID:       s.ToolID,
			ConnectedAt:  s.ConnectedAt,
			LastActivity: s.LastActivity,
			IPAddress:    s.IPAddress,
			Idle:         now.Sub(s.LastActivity) > 5*time.Minute,
		})
	}
	return infos
}
