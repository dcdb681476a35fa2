package ws

import (
	"errors"
	"sync"
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrSendQueueFull = errors.New("session send queue full")
)

// Session is a live client connection that updates can be pushed to.
type Session interface {
	ID() string
	UserID() int64
	Send(payload []byte) error
	Close()
}

// Registry tracks connected sessions per user. It is safe for concurrent use.
type Registry struct {
	sessions map[string]Session
	byUser   map[int64]map[string]Session
	mu       sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]Session),
		byUser:   make(map[int64]map[string]Session),
	}
}

// Register adds a session. Registering an id again replaces the old handle.
func (r *Registry) Register(userID int64, sessionID string, session Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sessions[sessionID]; ok {
		r.detach(old.UserID(), sessionID)
	}
	r.sessions[sessionID] = session
	if _, ok := r.byUser[userID]; !ok {
		r.byUser[userID] = make(map[string]Session)
	}
	r.byUser[userID][sessionID] = session
}

// Unregister removes a session. Unknown ids are ignored.
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	delete(r.sessions, sessionID)
	r.detach(session.UserID(), sessionID)
}

// SessionsFor returns a snapshot of the user's sessions.
func (r *Registry) SessionsFor(userID int64) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userSessions := r.byUser[userID]
	result := make([]Session, 0, len(userSessions))
	for _, s := range userSessions {
		result = append(result, s)
	}
	return result
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) detach(userID int64, sessionID string) {
	if userSessions, ok := r.byUser[userID]; ok {
		delete(userSessions, sessionID)
		if len(userSessions) == 0 {
			delete(r.byUser, userID)
		}
	}
}
