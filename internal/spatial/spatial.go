// Package spatial is the boundary to the physical world: overlap and ray
// queries, rigid-body integration and typed body instantiation. World is the
// in-memory implementation used by the authority and by observers.
package spatial

import (
	"iter"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"bombfield/server/internal/sim"
)

// Layer is a bit mask selecting which colliders a ray may hit.
type Layer uint32

const (
	LayerGround Layer = 1 << iota
	LayerPlayer
	LayerBomb
	LayerEnemy
	LayerItem

	LayerAll = LayerGround | LayerPlayer | LayerBomb | LayerEnemy | LayerItem
)

// LayerOf maps an entity kind onto its collision layer.
func LayerOf(kind sim.Kind) Layer {
	switch kind {
	case sim.KindPlayer:
		return LayerPlayer
	case sim.KindBomb:
		return LayerBomb
	case sim.KindEnemy:
		return LayerEnemy
	case sim.KindItem:
		return LayerItem
	default:
		return 0
	}
}

// Hit is the nearest collider intersected by a ray. Ground is set when the
// ray struck the ground plane rather than an entity.
type Hit struct {
	Entity   sim.EntityID
	Kind     sim.Kind
	Point    mgl32.Vec3
	Distance float32
	Ground   bool
}

// Contact reports two bodies whose colliders overlapped after a step. A is
// always the lower id.
type Contact struct {
	A, B         sim.EntityID
	KindA, KindB sim.Kind
}

// Involves reports whether the contact pairs the two kinds, in either order.
func (c Contact) Involves(a, b sim.Kind) bool {
	return (c.KindA == a && c.KindB == b) || (c.KindA == b && c.KindB == a)
}

// Of returns the id of the side with the given kind.
func (c Contact) Of(kind sim.Kind) (sim.EntityID, bool) {
	switch kind {
	case c.KindA:
		return c.A, true
	case c.KindB:
		return c.B, true
	default:
		return 0, false
	}
}

// Handle identifies a locally instantiated body.
type Handle struct {
	ID   sim.EntityID
	Kind sim.Kind
}

// Query answers questions about the current layout of the world.
type Query interface {
	OverlapSphere(center mgl32.Vec3, radius float32) []sim.EntityID
	Raycast(origin, direction mgl32.Vec3, maxDistance float32, mask Layer) (Hit, bool)
}

// Integrator advances rigid bodies and reports the overlaps of the last step.
type Integrator interface {
	AddImpulse(id sim.EntityID, impulse mgl32.Vec3)
	AddForce(id sim.EntityID, force mgl32.Vec3)
	SetVelocity(id sim.EntityID, velocity mgl32.Vec3)
	Pose(id sim.EntityID) (sim.Transform, bool)
	SetPose(id sim.EntityID, pose sim.Transform)
	Step(dt time.Duration)
	Contacts() iter.Seq[Contact]
}

// Factory creates and removes the local representation of entities.
type Factory interface {
	Instantiate(id sim.EntityID, kind sim.Kind, position mgl32.Vec3, orientation mgl32.Quat) Handle
	DestroyLocal(h Handle)
}
