// internal/blade/registry.go
package blade

import (
	"errors"
	"fmt"
	"sort"
)

// Registry maps slot addresses to clients. It is built once at startup and
// read-only afterwards.
type Registry struct {
	clients map[byte]*Client
}

func NewRegistry(clients ...*Client) (*Registry, error) {
	r := &Registry{clients: make(map[byte]*Client, len(clients))}
	for _, c := range clients {
		if c == nil {
			return nil, errors.New("blade: nil client")
		}
		if _, dup := r.clients[c.id]; dup {
			return nil, fmt.Errorf("blade: duplicate slot %d", c.id)
		}
		r.clients[c.id] = c
	}
	return r, nil
}

// Get returns the client of slot.
func (r *Registry) Get(slot byte) (*Client, bool) {
	c, ok := r.clients[slot]
	return c, ok
}

// Slots returns the registered slots in ascending order.
func (r *Registry) Slots() []byte {
	out := make([]byte, 0, len(r.clients))
	for s := range r.clients {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// All returns the clients ordered by slot.
func (r *Registry) All() []*Client {
	slots := r.Slots()
	out := make([]*Client, 0, len(slots))
	for _, s := range slots {
		out = append(out, r.clients[s])
	}
	return out
}
