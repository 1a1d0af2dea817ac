package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one websocket client connection
type Conn struct {
	ID          string
	ConnectedAt time.Time

	ws      *websocket.Conn
	writeMu sync.Mutex
}

// WriteJSON serializes writes so event pumps and the read loop never
// interleave frames on the socket
func (c *Conn) WriteJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(v)
}

// Registry tracks live connections and the connection-session pairing.
// A connection serves at most one session and a session is bound to at
// most one connection.
type Registry struct {
	mu        sync.RWMutex
	conns     map[string]*Conn
	toSession map[string]string // connection id -> session id
	toConn    map[string]string // session id -> connection id
}

// NewRegistry creates an empty connection registry
func NewRegistry() *Registry {
	return &Registry{
		conns:     make(map[string]*Conn),
		toSession: make(map[string]string),
		toConn:    make(map[string]string),
	}
}

// Add registers a connection with no session bound
func (r *Registry) Add(conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.ID] = conn
}

// Remove drops the connection and returns the session it was serving, if
// any. The session itself is left to the caller.
func (r *Registry) Remove(connID string) (sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessionID = r.toSession[connID]
	delete(r.conns, connID)
	delete(r.toSession, connID)
	if sessionID != "" {
		delete(r.toConn, sessionID)
	}
	return sessionID
}

// Bind pairs the connection with the session. A session already bound to
// another connection is silently rebound; the evicted connection id is
// returned so the caller can log it.
func (r *Registry) Bind(connID, sessionID string) (evictedConnID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.toConn[sessionID]; ok && prev != connID {
		evictedConnID = prev
		delete(r.toSession, prev)
	}
	if prevSession, ok := r.toSession[connID]; ok && prevSession != sessionID {
		delete(r.toConn, prevSession)
	}

	r.toSession[connID] = sessionID
	r.toConn[sessionID] = connID
	return evictedConnID
}

// Get returns the connection by id
func (r *Registry) Get(connID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[connID]
	return conn, ok
}

// SessionFor returns the session bound to the connection
func (r *Registry) SessionFor(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.toSession[connID]
	return id, ok
}

// ConnFor returns the connection serving the session
func (r *Registry) ConnFor(sessionID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connID, ok := r.toConn[sessionID]
	if !ok {
		return nil, false
	}
	conn, ok := r.conns[connID]
	return conn, ok
}

// Count returns the number of live connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// All returns every live connection
func (r *Registry) All() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	return conns
}
