package relay

import (
	"sync"

	"barber-booking-api/internal/model"
)

// Conn is one connected subscriber. Deliver must not block; a connection that
// cannot take the update returns an error and the update is dropped for it.
type Conn interface {
	ID() string
	Deliver(model.BookingUpdate) error
}

// Registry is the set of currently connected subscribers.
type Registry interface {
	Add(Conn)
	Remove(id string)
	Snapshot() []Conn
	Len() int
}

type memRegistry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

// NewRegistry returns an in-memory registry safe for concurrent use. All
// transports on one instance share it.
func NewRegistry() Registry {
	return &memRegistry{conns: make(map[string]Conn)}
}

func (r *memRegistry) Add(c Conn) {
	r.mu.Lock()
	r.conns[c.ID()] = c
	r.mu.Unlock()
}

func (r *memRegistry) Remove(id string) {
	r.mu.Lock()
	delete(r.conns, id)
	r.mu.Unlock()
}

func (r *memRegistry) Snapshot() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

func (r *memRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
