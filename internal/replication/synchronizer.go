// Package replication decides when a transform is worth sending and smooths
// received transforms on observers.
package replication

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"bombfield/server/internal/sim"
)

// Config holds the change thresholds and the interpolation rate.
type Config struct {
	// PositionThreshold is the distance a position must move before it is sent.
	PositionThreshold float32
	// OrientationThreshold is the rotation, in degrees, required before an
	// orientation is sent.
	OrientationThreshold float32
	// LerpRate is the fraction per second an observer closes toward its target.
	LerpRate float32
}

func DefaultConfig() Config {
	return Config{
		PositionThreshold:    0.5,
		OrientationThreshold: 5,
		LerpRate:             15,
	}
}

// Delta carries the parts of a transform that changed enough to send.
type Delta struct {
	Position    *mgl32.Vec3
	Orientation *mgl32.Quat
}

// Empty reports whether the delta carries nothing.
func (d Delta) Empty() bool {
	return d.Position == nil && d.Orientation == nil
}

// Full builds a delta carrying the whole transform.
func Full(t sim.Transform) Delta {
	pos, rot := t.Position, t.Orientation
	return Delta{Position: &pos, Orientation: &rot}
}

// Apply overlays the delta onto t.
func (d Delta) Apply(t sim.Transform) sim.Transform {
	if d.Position != nil {
		t.Position = *d.Position
	}
	if d.Orientation != nil {
		t.Orientation = *d.Orientation
	}
	return t
}

// State is the per-entity bookkeeping.
type State struct {
	LastSentPosition    mgl32.Vec3
	LastSentOrientation mgl32.Quat
	Target              sim.Transform
	HasTarget           bool
}

// Synchronizer tracks the last transmitted pose of owned entities and the
// last received pose of mirrored ones. It is used from a single goroutine.
type Synchronizer struct {
	cfg    Config
	states map[sim.EntityID]*State
}

func New(cfg Config) *Synchronizer {
	defaults := DefaultConfig()
	if cfg.PositionThreshold < 0 {
		cfg.PositionThreshold = defaults.PositionThreshold
	}
	if cfg.OrientationThreshold < 0 {
		cfg.OrientationThreshold = defaults.OrientationThreshold
	}
	if cfg.LerpRate <= 0 {
		cfg.LerpRate = defaults.LerpRate
	}
	return &Synchronizer{cfg: cfg, states: make(map[sim.EntityID]*State)}
}

func (s *Synchronizer) Config() Config {
	return s.cfg
}

// Track primes the last-sent pose, typically at spawn, so the first Diff
// only fires on real movement.
func (s *Synchronizer) Track(id sim.EntityID, t sim.Transform) {
	st := s.state(id)
	st.LastSentPosition = t.Position
	st.LastSentOrientation = t.Orientation
}

// Tracked reports whether id has replication state.
func (s *Synchronizer) Tracked(id sim.EntityID) bool {
	_, ok := s.states[id]
	return ok
}

// Diff compares current against the last sent pose. Each component is
// included only when it crossed its threshold, and only included components
// update the last-sent pose. An untracked entity is primed and returned in
// full.
func (s *Synchronizer) Diff(id sim.EntityID, current sim.Transform) (Delta, bool) {
	st, ok := s.states[id]
	if !ok {
		s.Track(id, current)
		return Full(current), true
	}
	var d Delta
	if current.Position.Sub(st.LastSentPosition).Len() > s.cfg.PositionThreshold {
		pos := current.Position
		d.Position = &pos
		st.LastSentPosition = pos
	}
	if Angle(current.Orientation, st.LastSentOrientation) > s.cfg.OrientationThreshold {
		rot := current.Orientation
		d.Orientation = &rot
		st.LastSentOrientation = rot
	}
	return d, !d.Empty()
}

// Seed sets both the last-sent and the target pose, used when a mirror is
// first created from a spawn or snapshot.
func (s *Synchronizer) Seed(id sim.EntityID, t sim.Transform) {
	st := s.state(id)
	st.LastSentPosition = t.Position
	st.LastSentOrientation = t.Orientation
	st.Target = t
	st.HasTarget = true
}

// Receive records an authoritative update as the new interpolation target.
func (s *Synchronizer) Receive(id sim.EntityID, d Delta) {
	st := s.state(id)
	if !st.HasTarget {
		st.Target = sim.IdentityTransform(mgl32.Vec3{})
		st.HasTarget = true
	}
	st.Target = d.Apply(st.Target)
}

// Target returns the last received pose for id.
func (s *Synchronizer) Target(id sim.EntityID) (sim.Transform, bool) {
	st, ok := s.states[id]
	if !ok || !st.HasTarget {
		return sim.Transform{}, false
	}
	return st.Target, true
}

// Interpolate moves current toward the received target by
// min(1, dt*LerpRate). Entities without a target are returned unchanged.
func (s *Synchronizer) Interpolate(id sim.EntityID, current sim.Transform, dt time.Duration) sim.Transform {
	target, ok := s.Target(id)
	if !ok {
		return current
	}
	factor := float32(dt.Seconds()) * s.cfg.LerpRate
	if factor >= 1 {
		return target
	}
	if factor <= 0 {
		return current
	}
	goal := target.Orientation
	if current.Orientation.Dot(goal) < 0 {
		goal = goal.Scale(-1)
	}
	return sim.Transform{
		Position:    current.Position.Add(target.Position.Sub(current.Position).Mul(factor)),
		Orientation: mgl32.QuatNlerp(current.Orientation, goal, factor),
	}
}

func (s *Synchronizer) Forget(id sim.EntityID) {
	delete(s.states, id)
}

func (s *Synchronizer) Len() int {
	return len(s.states)
}

func (s *Synchronizer) state(id sim.EntityID) *State {
	st, ok := s.states[id]
	if !ok {
		st = &State{}
		s.states[id] = st
	}
	return st
}

// Angle returns the rotation between two orientations in degrees.
func Angle(a, b mgl32.Quat) float32 {
	dot := float64(a.Normalize().Dot(b.Normalize()))
	dot = math.Min(1, math.Abs(dot))
	return mgl32.RadToDeg(float32(2 * math.Acos(dot)))
}
