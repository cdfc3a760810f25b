package spatial

import (
	"iter"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"bombfield/server/internal/sim"
)

// WorldConfig tunes the in-memory integrator.
type WorldConfig struct {
	Gravity float32
	// Drag damps horizontal velocity per second so pushed bodies settle.
	Drag    float32
	GroundY float32
	Radius  map[sim.Kind]float32
}

// DefaultWorldConfig mirrors the collider sizes used by the game prefabs.
func DefaultWorldConfig() WorldConfig {
	return WorldConfig{
		Gravity: 9.81,
		Drag:    4,
		Radius: map[sim.Kind]float32{
			sim.KindPlayer: 0.5,
			sim.KindEnemy:  0.5,
			sim.KindItem:   0.5,
			sim.KindBomb:   0.25,
		},
	}
}

type body struct {
	id      sim.EntityID
	kind    sim.Kind
	pose    sim.Transform
	vel     mgl32.Vec3
	force   mgl32.Vec3
	radius  float32
	mass    float32
	dynamic bool
}

// center is the collider centre. A body's position is the point it rests on,
// so a body at y=0 sits on the ground.
func (b *body) center() mgl32.Vec3 {
	return b.pose.Position.Add(mgl32.Vec3{0, b.radius, 0})
}

// World is a sphere-collider world with a ground plane. Bodies are
// kinematic until marked dynamic; kinematic bodies only move through
// SetPose.
type World struct {
	cfg WorldConfig

	mu       sync.RWMutex
	bodies   map[sim.EntityID]*body
	contacts []Contact
}

var (
	_ Query      = (*World)(nil)
	_ Integrator = (*World)(nil)
	_ Factory    = (*World)(nil)
)

func NewWorld(cfg WorldConfig) *World {
	defaults := DefaultWorldConfig()
	if cfg.Radius == nil {
		cfg.Radius = defaults.Radius
	}
	return &World{cfg: cfg, bodies: make(map[sim.EntityID]*body)}
}

// Instantiate adds a kinematic body for the entity, replacing any body
// already registered under id.
func (w *World) Instantiate(id sim.EntityID, kind sim.Kind, position mgl32.Vec3, orientation mgl32.Quat) Handle {
	radius := w.cfg.Radius[kind]
	if radius <= 0 {
		radius = 0.5
	}
	w.mu.Lock()
	w.bodies[id] = &body{
		id:     id,
		kind:   kind,
		pose:   sim.Transform{Position: position, Orientation: orientation},
		radius: radius,
		mass:   1,
	}
	w.mu.Unlock()
	return Handle{ID: id, Kind: kind}
}

func (w *World) DestroyLocal(h Handle) {
	w.mu.Lock()
	delete(w.bodies, h.ID)
	w.mu.Unlock()
}

// Lookup returns the handle of a live body.
func (w *World) Lookup(id sim.EntityID) (Handle, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	b, ok := w.bodies[id]
	if !ok {
		return Handle{}, false
	}
	return Handle{ID: b.id, Kind: b.kind}, true
}

func (w *World) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.bodies)
}

// SetDynamic switches a body between integrated and kinematic motion.
func (w *World) SetDynamic(id sim.EntityID, dynamic bool) {
	w.withBody(id, func(b *body) {
		b.dynamic = dynamic
		if !dynamic {
			b.vel = mgl32.Vec3{}
			b.force = mgl32.Vec3{}
		}
	})
}

// AddImpulse changes the velocity of a dynamic body immediately.
func (w *World) AddImpulse(id sim.EntityID, impulse mgl32.Vec3) {
	w.withBody(id, func(b *body) {
		if b.dynamic {
			b.vel = b.vel.Add(impulse.Mul(1 / b.mass))
		}
	})
}

// AddForce accumulates a force applied during the next Step.
func (w *World) AddForce(id sim.EntityID, force mgl32.Vec3) {
	w.withBody(id, func(b *body) {
		if b.dynamic {
			b.force = b.force.Add(force)
		}
	})
}

func (w *World) SetVelocity(id sim.EntityID, velocity mgl32.Vec3) {
	w.withBody(id, func(b *body) {
		if b.dynamic {
			b.vel = velocity
		}
	})
}

func (w *World) Velocity(id sim.EntityID) mgl32.Vec3 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if b, ok := w.bodies[id]; ok {
		return b.vel
	}
	return mgl32.Vec3{}
}

func (w *World) Pose(id sim.EntityID) (sim.Transform, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	b, ok := w.bodies[id]
	if !ok {
		return sim.Transform{}, false
	}
	return b.pose, true
}

func (w *World) SetPose(id sim.EntityID, pose sim.Transform) {
	w.withBody(id, func(b *body) {
		b.pose = pose
	})
}

// Step integrates dynamic bodies by dt and recomputes the contact set.
func (w *World) Step(dt time.Duration) {
	seconds := float32(dt.Seconds())
	w.mu.Lock()
	defer w.mu.Unlock()

	if seconds > 0 {
		gravity := mgl32.Vec3{0, -w.cfg.Gravity, 0}
		damping := 1 / (1 + w.cfg.Drag*seconds)
		for _, b := range w.bodies {
			if !b.dynamic {
				continue
			}
			accel := b.force.Mul(1 / b.mass).Add(gravity)
			b.vel = b.vel.Add(accel.Mul(seconds))
			b.vel[0] *= damping
			b.vel[2] *= damping
			b.pose.Position = b.pose.Position.Add(b.vel.Mul(seconds))
			if b.pose.Position.Y() < w.cfg.GroundY {
				b.pose.Position[1] = w.cfg.GroundY
				if b.vel.Y() < 0 {
					b.vel[1] = 0
				}
			}
			b.force = mgl32.Vec3{}
		}
	}

	w.contacts = w.contacts[:0]
	ordered := w.orderedLocked()
	for i, a := range ordered {
		for _, b := range ordered[i+1:] {
			reach := a.radius + b.radius
			if a.center().Sub(b.center()).LenSqr() < reach*reach {
				w.contacts = append(w.contacts, Contact{A: a.id, B: b.id, KindA: a.kind, KindB: b.kind})
			}
		}
	}
}

// Contacts yields the overlaps found by the last Step. Overlaps persist
// across steps, so the same pair is reported every step it stays in contact.
func (w *World) Contacts() iter.Seq[Contact] {
	w.mu.RLock()
	snapshot := slices.Clone(w.contacts)
	w.mu.RUnlock()
	return slices.Values(snapshot)
}

// OverlapSphere lists the bodies whose collider intersects the sphere, in
// id order.
func (w *World) OverlapSphere(center mgl32.Vec3, radius float32) []sim.EntityID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var hits []sim.EntityID
	for _, b := range w.orderedLocked() {
		reach := radius + b.radius
		if b.center().Sub(center).LenSqr() <= reach*reach {
			hits = append(hits, b.id)
		}
	}
	return hits
}

// Raycast returns the nearest collider on the ray within maxDistance.
// Colliders containing the origin are ignored so a body can cast from its
// own centre.
func (w *World) Raycast(origin, direction mgl32.Vec3, maxDistance float32, mask Layer) (Hit, bool) {
	if direction.LenSqr() == 0 || maxDistance <= 0 {
		return Hit{}, false
	}
	dir := direction.Normalize()

	best := Hit{Distance: float32(math.Inf(1))}
	found := false

	if mask&LayerGround != 0 && dir.Y() < 0 && origin.Y() >= w.cfg.GroundY {
		t := (origin.Y() - w.cfg.GroundY) / -dir.Y()
		if t <= maxDistance {
			best = Hit{Point: origin.Add(dir.Mul(t)), Distance: t, Ground: true}
			found = true
		}
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, b := range w.orderedLocked() {
		if mask&LayerOf(b.kind) == 0 {
			continue
		}
		t, ok := raySphere(origin, dir, b.center(), b.radius)
		if !ok || t > maxDistance || t >= best.Distance {
			continue
		}
		best = Hit{Entity: b.id, Kind: b.kind, Point: origin.Add(dir.Mul(t)), Distance: t}
		found = true
	}
	return best, found
}

func raySphere(origin, dir, center mgl32.Vec3, radius float32) (float32, bool) {
	m := origin.Sub(center)
	c := m.LenSqr() - radius*radius
	if c <= 0 {
		return 0, false
	}
	b := m.Dot(dir)
	if b > 0 {
		return 0, false
	}
	disc := b*b - c
	if disc < 0 {
		return 0, false
	}
	return -b - float32(math.Sqrt(float64(disc))), true
}

func (w *World) withBody(id sim.EntityID, fn func(*body)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if b, ok := w.bodies[id]; ok {
		fn(b)
	}
}

func (w *World) orderedLocked() []*body {
	ordered := make([]*body, 0, len(w.bodies))
	for _, b := range w.bodies {
		ordered = append(ordered, b)
	}
	slices.SortFunc(ordered, func(a, b *body) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		default:
			return 0
		}
	})
	return ordered
}
