// Package lifecycle spawns and destroys authoritative entities and keeps
// every participant informed of both.
package lifecycle

import (
	"context"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"bombfield/server/internal/registry"
	"bombfield/server/internal/sched"
	"bombfield/server/internal/sim"
	"bombfield/server/internal/spatial"
	"bombfield/server/logging"
	loggingLifecycle "bombfield/server/logging/lifecycle"
)

// Destroy reasons carried on destroy events.
const (
	ReasonExplicit     = "explicit"
	ReasonTimeout      = "timeout"
	ReasonDetonated    = "detonated"
	ReasonCollected    = "collected"
	ReasonDisconnected = "disconnected"
)

// Broadcaster tells observers about lifecycle changes.
type Broadcaster interface {
	Spawned(e sim.Entity)
	Destroyed(e sim.Entity, reason string)
}

// Tracker is the replication bookkeeping primed on spawn and cleared on
// destroy.
type Tracker interface {
	Track(id sim.EntityID, t sim.Transform)
	Forget(id sim.EntityID)
}

// Deps are the collaborators a Manager drives. Broadcaster, Tracker,
// Publisher and Tick are optional.
type Deps struct {
	Registry    *registry.Registry
	Factory     spatial.Factory
	Timers      *sched.Queue
	Broadcaster Broadcaster
	Tracker     Tracker
	Publisher   logging.Publisher
	Tick        func() uint64
	// ItemScore is the score given to items spawned without one.
	ItemScore int
}

// Manager owns entity creation and destruction on the authority. It is
// driven from the tick goroutine only.
type Manager struct {
	deps     Deps
	handles  map[sim.EntityID]spatial.Handle
	timeouts map[sim.EntityID]sched.TaskID
}

func NewManager(deps Deps) *Manager {
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	if deps.ItemScore <= 0 {
		deps.ItemScore = 1
	}
	return &Manager{
		deps:     deps,
		handles:  make(map[sim.EntityID]spatial.Handle),
		timeouts: make(map[sim.EntityID]sched.TaskID),
	}
}

// Spawn registers a new entity, instantiates its body and announces it.
func (m *Manager) Spawn(kind sim.Kind, position mgl32.Vec3, orientation mgl32.Quat, owner sim.Owner) sim.Entity {
	e := sim.Entity{
		Kind:      kind,
		Owner:     owner,
		Transform: sim.Transform{Position: position, Orientation: orientation},
	}
	if kind == sim.KindItem {
		e.Score = m.deps.ItemScore
	}
	return m.SpawnEntity(e)
}

// SpawnEntity is Spawn for a pre-filled entity; the id is always assigned
// here.
func (m *Manager) SpawnEntity(e sim.Entity) sim.Entity {
	if e.Owner == "" {
		e.Owner = sim.ServerOwner
	}
	if e.Transform.Orientation == (mgl32.Quat{}) {
		e.Transform.Orientation = mgl32.QuatIdent()
	}
	e.ID = m.deps.Registry.Register(e)
	if m.deps.Factory != nil {
		m.handles[e.ID] = m.deps.Factory.Instantiate(e.ID, e.Kind, e.Transform.Position, e.Transform.Orientation)
	}
	if m.deps.Tracker != nil {
		m.deps.Tracker.Track(e.ID, e.Transform)
	}
	if m.deps.Broadcaster != nil {
		m.deps.Broadcaster.Spawned(e)
	}
	loggingLifecycle.EntitySpawned(
		context.Background(),
		m.deps.Publisher,
		m.tick(),
		entityRef(e),
		loggingLifecycle.EntitySpawnedPayload{
			Owner: string(e.Owner),
			X:     e.Transform.Position.X(),
			Y:     e.Transform.Position.Y(),
			Z:     e.Transform.Position.Z(),
		},
		nil,
	)
	return e
}

// Destroy removes id from the world. Destroying an unknown or already
// destroyed id is a no-op that reports false and announces nothing.
func (m *Manager) Destroy(id sim.EntityID) bool {
	return m.DestroyBecause(id, ReasonExplicit)
}

// DestroyBecause is Destroy with the reason carried on the destroy event.
func (m *Manager) DestroyBecause(id sim.EntityID, reason string) bool {
	e, err := m.deps.Registry.Lookup(id)
	if err != nil {
		return false
	}
	if !m.deps.Registry.Unregister(id) {
		return false
	}
	if task, ok := m.timeouts[id]; ok {
		m.deps.Timers.Cancel(task)
		delete(m.timeouts, id)
	}
	if handle, ok := m.handles[id]; ok {
		m.deps.Factory.DestroyLocal(handle)
		delete(m.handles, id)
	}
	if m.deps.Tracker != nil {
		m.deps.Tracker.Forget(id)
	}
	if m.deps.Broadcaster != nil {
		m.deps.Broadcaster.Destroyed(e, reason)
	}
	loggingLifecycle.EntityDestroyed(
		context.Background(),
		m.deps.Publisher,
		m.tick(),
		entityRef(e),
		loggingLifecycle.EntityDestroyedPayload{Reason: reason},
		nil,
	)
	return true
}

// DestroyAfter schedules destruction of id after d of simulation time. A
// later call replaces the earlier timeout. The timer is cancelled if the
// entity is destroyed first. It reports false for unknown ids.
func (m *Manager) DestroyAfter(id sim.EntityID, d time.Duration) bool {
	if _, err := m.deps.Registry.Lookup(id); err != nil {
		return false
	}
	if task, ok := m.timeouts[id]; ok {
		m.deps.Timers.Cancel(task)
	}
	m.timeouts[id] = m.deps.Timers.After(d, func() {
		delete(m.timeouts, id)
		m.DestroyBecause(id, ReasonTimeout)
	})
	return true
}

// PendingTimeouts reports how many entities have a scheduled destruction.
func (m *Manager) PendingTimeouts() int {
	return len(m.timeouts)
}

func (m *Manager) tick() uint64 {
	if m.deps.Tick == nil {
		return 0
	}
	return m.deps.Tick()
}

func entityRef(e sim.Entity) logging.EntityRef {
	return logging.EntityRef{ID: e.ID.String(), Kind: logging.EntityKind(e.Kind)}
}
