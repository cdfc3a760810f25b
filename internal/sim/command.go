package sim

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// CommandType enumerates the intents a participant can ask the authority to
// execute.
type CommandType string

const (
	CommandSetPosition    CommandType = "SetPosition"
	CommandSetOrientation CommandType = "SetOrientation"
	CommandSpawnBomb      CommandType = "SpawnBomb"
	CommandDetonate       CommandType = "Detonate"
	CommandShoot          CommandType = "Shoot"
)

// Valid reports whether t names a known command.
func (t CommandType) Valid() bool {
	switch t {
	case CommandSetPosition, CommandSetOrientation, CommandSpawnBomb, CommandDetonate, CommandShoot:
		return true
	default:
		return false
	}
}

// DetonatePayload carries the explosion parameters captured when the
// detonation was scheduled. Center is used when the bomb no longer exists.
type DetonatePayload struct {
	Center mgl32.Vec3
	Radius float32
}

// Command represents an intent captured for processing on the next tick.
// Sender is stamped by the receiving side from the connection, never taken
// from the wire.
type Command struct {
	OriginTick  uint64
	Sender      Owner
	Target      EntityID
	Type        CommandType
	IssuedAt    time.Time
	Position    *mgl32.Vec3
	Orientation *mgl32.Quat
	Detonate    *DetonatePayload
}
