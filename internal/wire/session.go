package wire

import (
	"net"
	"sync"

	"github.com/google/uuid"
)

// SessionRegistry tracks the live connections a wire server is holding
// open and the user id each one last placed an order as, so a fill
// report (routed by the user id of the order a Trade belongs to; the
// Trade itself carries only the order id) can be sent back to the right
// socket. Sessions are purely in-memory and do
// not survive a reconnect, matching this package's role as a
// demonstration collaborator rather than a durable gateway.
type SessionRegistry struct {
	mu       sync.Mutex
	conns    map[uuid.UUID]net.Conn
	byUserID map[uint64]uuid.UUID
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		conns:    make(map[uuid.UUID]net.Conn),
		byUserID: make(map[uint64]uuid.UUID),
	}
}

func (r *SessionRegistry) add(conn net.Conn) uuid.UUID {
	id := uuid.New()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = conn
	return id
}

func (r *SessionRegistry) remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
	for userID, sessionID := range r.byUserID {
		if sessionID == id {
			delete(r.byUserID, userID)
		}
	}
}

func (r *SessionRegistry) bindUser(id uuid.UUID, userID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byUserID[userID] = id
}

func (r *SessionRegistry) write(id uuid.UUID, data []byte) error {
	r.mu.Lock()
	conn, ok := r.conns[id]
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	_, err := conn.Write(data)
	return err
}

func (r *SessionRegistry) writeToUser(userID uint64, data []byte) error {
	r.mu.Lock()
	id, ok := r.byUserID[userID]
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	return r.write(id, data)
}
