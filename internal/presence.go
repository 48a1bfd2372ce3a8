package internal

import (
	"sort"
	"sync"
	"time"
)

// Session is the record the relay keeps for a connection that has joined.
type Session struct {
	ConnectionID string
	DisplayName  string
	JoinedAt     time.Time
}

// Identity returns the author identity stamped onto envelopes.
func (s Session) Identity() Identity {
	return Identity{ConnectionID: s.ConnectionID, DisplayName: s.DisplayName}
}

// PresenceRegistry maps connection ids to joined sessions. The room is the
// only writer; HTTP handlers read it for health and metrics.
type PresenceRegistry struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{sessions: make(map[string]Session)}
}

// Join registers a session. It returns false and the existing record when the
// connection already joined.
func (p *PresenceRegistry) Join(connectionID, displayName string, at time.Time) (Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.sessions[connectionID]; ok {
		return existing, false
	}
	session := Session{ConnectionID: connectionID, DisplayName: displayName, JoinedAt: at}
	p.sessions[connectionID] = session
	return session, true
}

// Leave removes a session, returning it if it had joined.
func (p *PresenceRegistry) Leave(connectionID string) (Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	session, ok := p.sessions[connectionID]
	if ok {
		delete(p.sessions, connectionID)
	}
	return session, ok
}

func (p *PresenceRegistry) Lookup(connectionID string) (Session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	session, ok := p.sessions[connectionID]
	return session, ok
}

// Names returns the display names of every joined session, sorted.
func (p *PresenceRegistry) Names() []string {
	p.mu.RLock()
	names := make([]string, 0, len(p.sessions))
	for _, session := range p.sessions {
		names = append(names, session.DisplayName)
	}
	p.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (p *PresenceRegistry) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}
