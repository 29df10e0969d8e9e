package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// Sink is the delivery end of a live connection. *transport.Connection
// satisfies it; tests substitute capture sinks.
type Sink interface {
	ID() uuid.UUID
	Send(msg []byte)
	Close(err error)
}

// Registry maps each identity to its single live connection. Registration
// is last-writer-wins: a reconnect replaces the previous entry and the
// superseded connection is left to die on its own transport signal.
type Registry struct {
	mu         sync.RWMutex
	byIdentity map[string]Sink
}

func NewRegistry() *Registry {
	return &Registry{byIdentity: make(map[string]Sink)}
}

// Register installs sink as the sole fan-out target for identity. If a
// previous connection was registered it is returned so the caller can
// decide what to tell it; it is not closed here.
func (r *Registry) Register(identity string, sink Sink) (prev Sink, replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, replaced = r.byIdentity[identity]
	r.byIdentity[identity] = sink
	return prev, replaced
}

// Unregister removes the identity's entry only if it is still owned by the
// given connection handle. A stale connection's cleanup therefore cannot
// evict a newer registration. Reports whether an entry was removed.
func (r *Registry) Unregister(identity string, connID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byIdentity[identity]
	if !ok || current.ID() != connID {
		return false
	}
	delete(r.byIdentity, identity)
	return true
}

// Lookup returns the live connection for identity, if any.
func (r *Registry) Lookup(identity string) (Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sink, ok := r.byIdentity[identity]
	return sink, ok
}

// OnlineIdentities returns a snapshot of every registered identity.
func (r *Registry) OnlineIdentities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byIdentity))
	for identity := range r.byIdentity {
		out = append(out, identity)
	}
	return out
}

// Sinks returns a snapshot of every registered connection. Delivery to the
// snapshot happens without holding the registry lock.
func (r *Registry) Sinks() []Sink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Sink, 0, len(r.byIdentity))
	for _, sink := range r.byIdentity {
		out = append(out, sink)
	}
	return out
}
