// Package registry is the table of live networked entities keyed by id.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"bombfield/server/internal/sim"
)

// ErrNotFound reports an id that is not, or no longer, part of the world.
var ErrNotFound = errors.New("registry: entity not found")

// Registry stores entities by id. The authority assigns ids; observers
// insert replicated copies with Mirror. Mutations are expected from a single
// tick goroutine while reads may come from anywhere.
type Registry struct {
	mu       sync.RWMutex
	entities map[sim.EntityID]sim.Entity
	lastID   sim.EntityID
}

func New() *Registry {
	return &Registry{entities: make(map[sim.EntityID]sim.Entity)}
}

// Register assigns the next id to e and stores it. An empty owner defaults
// to the server.
func (r *Registry) Register(e sim.Entity) sim.EntityID {
	if e.Owner == "" {
		e.Owner = sim.ServerOwner
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastID++
	e.ID = r.lastID
	r.entities[e.ID] = e
	return e.ID
}

// Mirror stores a replicated copy under the id chosen by the authority.
func (r *Registry) Mirror(e sim.Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.ID > r.lastID {
		r.lastID = e.ID
	}
	r.entities[e.ID] = e
}

func (r *Registry) Lookup(id sim.EntityID) (sim.Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[id]
	if !ok {
		return sim.Entity{}, fmt.Errorf("lookup %s: %w", id, ErrNotFound)
	}
	return e, nil
}

// Unregister removes id and reports whether it was present.
func (r *Registry) Unregister(id sim.EntityID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entities[id]; !ok {
		return false
	}
	delete(r.entities, id)
	return true
}

func (r *Registry) OwnerOf(id sim.EntityID) (sim.Owner, error) {
	e, err := r.Lookup(id)
	if err != nil {
		return "", err
	}
	return e.Owner, nil
}

// SetTransform overwrites the pose of id. Ownership and kind are untouched.
func (r *Registry) SetTransform(id sim.EntityID, t sim.Transform) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[id]
	if !ok {
		return fmt.Errorf("set transform %s: %w", id, ErrNotFound)
	}
	e.Transform = t
	r.entities[id] = e
	return nil
}

// Snapshot copies every live entity in id order.
func (r *Registry) Snapshot() []sim.Entity {
	r.mu.RLock()
	out := make([]sim.Entity, 0, len(r.entities))
	for _, e := range r.entities {
		out = append(out, e)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b sim.Entity) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
	return out
}

// CountByKind tallies live entities per kind.
func (r *Registry) CountByKind() map[sim.Kind]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[sim.Kind]int)
	for _, e := range r.entities {
		counts[e.Kind]++
	}
	return counts
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities)
}
