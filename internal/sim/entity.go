package sim

import (
	"strconv"

	"github.com/go-gl/mathgl/mgl32"
)

// EntityID identifies a networked entity. IDs are assigned by the authority at
// spawn time and are never reused once the entity is destroyed.
type EntityID uint64

// String renders the id the way it appears in logs.
func (id EntityID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Kind enumerates the replicated entity variants.
type Kind string

const (
	KindPlayer Kind = "player"
	KindBomb   Kind = "bomb"
	KindEnemy  Kind = "enemy"
	KindItem   Kind = "item"
)

// Valid reports whether k is one of the known entity kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindPlayer, KindBomb, KindEnemy, KindItem:
		return true
	default:
		return false
	}
}

// Owner names the single participant whose state for an entity is the source
// of truth: either the server or a client connection id.
type Owner string

// ServerOwner is the authority for server-spawned entities.
const ServerOwner Owner = "server"

// IsServer reports whether the owner is the authoritative server.
func (o Owner) IsServer() bool {
	return o == ServerOwner
}

// Transform is the continuous state replicated for every entity.
type Transform struct {
	Position    mgl32.Vec3
	Orientation mgl32.Quat
}

// IdentityTransform places an entity at position with no rotation.
func IdentityTransform(position mgl32.Vec3) Transform {
	return Transform{Position: position, Orientation: mgl32.QuatIdent()}
}

// Entity is a simulated object visible across the network.
type Entity struct {
	ID        EntityID
	Kind      Kind
	Owner     Owner
	Transform Transform
	// Score is the value awarded when an item is collected.
	Score int
}

// OwnedBy reports whether owner is the entity's authority.
func (e Entity) OwnedBy(owner Owner) bool {
	return e.Owner == owner
}
