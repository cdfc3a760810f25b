package proto

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"bombfield/server/internal/sim"
)

// Version tracks the wire-protocol revision expected by clients.
const Version = 1

// Message type identifiers.
const (
	TypeWelcome  = "welcome"
	TypeSnapshot = "snapshot"
	TypeSpawn    = "spawn"
	TypeDestroy  = "destroy"
	TypeState    = "state"
	TypeScore    = "score"
	TypeCommand  = "command"
)

var (
	ErrUnknownType        = errors.New("proto: unknown message type")
	ErrUnsupportedVersion = errors.New("proto: unsupported protocol version")
	ErrMissingPayload     = errors.New("proto: message payload missing")
)

// Vec3 is a position on the wire.
type Vec3 [3]float32

// Quat is an orientation on the wire, ordered x, y, z, w.
type Quat [4]float32

func FromVec3(v mgl32.Vec3) Vec3 {
	return Vec3(v)
}

func (v Vec3) Vec3() mgl32.Vec3 {
	return mgl32.Vec3(v)
}

// Finite reports whether every component is a real number. JSON has no
// encoding for NaN or infinities.
func (v Vec3) Finite() bool {
	return finite(v[:]...)
}

func (q Quat) Finite() bool {
	return finite(q[:]...)
}

func finite(values ...float32) bool {
	for _, f := range values {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return false
		}
	}
	return true
}

func FromQuat(q mgl32.Quat) Quat {
	return Quat{q.V[0], q.V[1], q.V[2], q.W}
}

func (q Quat) Quat() mgl32.Quat {
	return mgl32.Quat{W: q[3], V: mgl32.Vec3{q[0], q[1], q[2]}}
}

// EntityState is the full replicated description of one entity.
type EntityState struct {
	ID          uint64 `json:"id"`
	Kind        string `json:"kind"`
	Owner       string `json:"owner"`
	Position    Vec3   `json:"pos"`
	Orientation Quat   `json:"rot"`
	Score       int    `json:"score,omitempty"`
}

// FromEntity converts a simulated entity into its wire form.
func FromEntity(e sim.Entity) EntityState {
	return EntityState{
		ID:          uint64(e.ID),
		Kind:        string(e.Kind),
		Owner:       string(e.Owner),
		Position:    FromVec3(e.Transform.Position),
		Orientation: FromQuat(e.Transform.Orientation),
		Score:       e.Score,
	}
}

// Entity converts the wire form back into a simulated entity.
func (s EntityState) Entity() sim.Entity {
	return sim.Entity{
		ID:    sim.EntityID(s.ID),
		Kind:  sim.Kind(s.Kind),
		Owner: sim.Owner(s.Owner),
		Transform: sim.Transform{
			Position:    s.Position.Vec3(),
			Orientation: s.Orientation.Quat().Normalize(),
		},
		Score: s.Score,
	}
}

// Welcome tells a new participant who it is and how the authority is tuned.
type Welcome struct {
	Owner                string  `json:"owner"`
	TickRate             int     `json:"tickRate"`
	PositionThreshold    float32 `json:"positionThreshold"`
	OrientationThreshold float32 `json:"orientationThreshold"`
	LerpRate             float32 `json:"lerpRate"`
	ShootRange           float32 `json:"shootRange"`
}

// Snapshot is the full world sent once on join.
type Snapshot struct {
	Entities []EntityState `json:"entities"`
	Score    int64         `json:"score"`
}

// Destroy removes an entity from every observer.
type Destroy struct {
	ID     uint64 `json:"id"`
	Reason string `json:"reason,omitempty"`
}

// StateUpdate carries the thresholded transform change of one entity.
type StateUpdate struct {
	ID          uint64 `json:"id"`
	Position    *Vec3  `json:"pos,omitempty"`
	Orientation *Quat  `json:"rot,omitempty"`
}

// Score reports the shared score after a change.
type Score struct {
	Total int64 `json:"total"`
	Delta int64 `json:"delta"`
}

// CommandFrame is an intent sent by a participant. The sender is never part
// of the frame; the receiving session stamps it from the connection.
type CommandFrame struct {
	Kind        string   `json:"kind"`
	Target      uint64   `json:"target"`
	Position    *Vec3    `json:"pos,omitempty"`
	Orientation *Quat    `json:"rot,omitempty"`
	Radius      *float32 `json:"radius,omitempty"`
	Seq         uint64   `json:"seq,omitempty"`
}

// Message is the single envelope for every websocket frame. Exactly one
// payload field matching Type is set.
type Message struct {
	Ver      int           `json:"ver"`
	Type     string        `json:"type"`
	Tick     uint64        `json:"tick,omitempty"`
	Welcome  *Welcome      `json:"welcome,omitempty"`
	Snapshot *Snapshot     `json:"snapshot,omitempty"`
	Spawn    *EntityState  `json:"spawn,omitempty"`
	Destroy  *Destroy      `json:"destroy,omitempty"`
	State    *StateUpdate  `json:"state,omitempty"`
	Score    *Score        `json:"score,omitempty"`
	Command  *CommandFrame `json:"command,omitempty"`
}

// Validate checks the version and that the payload matching Type is present.
// A zero version is read as the current one.
func Validate(msg *Message) error {
	if msg.Ver == 0 {
		msg.Ver = Version
	}
	if msg.Ver != Version {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, msg.Ver)
	}
	var present bool
	switch msg.Type {
	case TypeWelcome:
		present = msg.Welcome != nil
	case TypeSnapshot:
		present = msg.Snapshot != nil
	case TypeSpawn:
		present = msg.Spawn != nil
	case TypeDestroy:
		present = msg.Destroy != nil
	case TypeState:
		present = msg.State != nil
	case TypeScore:
		present = msg.Score != nil
	case TypeCommand:
		present = msg.Command != nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
	if !present {
		return fmt.Errorf("%w: %s", ErrMissingPayload, msg.Type)
	}
	return nil
}

func NewWelcome(w Welcome) Message {
	return Message{Ver: Version, Type: TypeWelcome, Welcome: &w}
}

func NewSnapshot(tick uint64, entities []sim.Entity, score int64) Message {
	states := make([]EntityState, 0, len(entities))
	for _, e := range entities {
		states = append(states, FromEntity(e))
	}
	return Message{Ver: Version, Type: TypeSnapshot, Tick: tick, Snapshot: &Snapshot{Entities: states, Score: score}}
}

func NewSpawn(tick uint64, e sim.Entity) Message {
	state := FromEntity(e)
	return Message{Ver: Version, Type: TypeSpawn, Tick: tick, Spawn: &state}
}

func NewDestroy(tick uint64, id sim.EntityID, reason string) Message {
	return Message{Ver: Version, Type: TypeDestroy, Tick: tick, Destroy: &Destroy{ID: uint64(id), Reason: reason}}
}

// NewState builds a state update; nil components are omitted.
func NewState(tick uint64, id sim.EntityID, position *mgl32.Vec3, orientation *mgl32.Quat) Message {
	update := StateUpdate{ID: uint64(id)}
	if position != nil {
		p := FromVec3(*position)
		update.Position = &p
	}
	if orientation != nil {
		q := FromQuat(*orientation)
		update.Orientation = &q
	}
	return Message{Ver: Version, Type: TypeState, Tick: tick, State: &update}
}

func NewScore(tick uint64, total, delta int64) Message {
	return Message{Ver: Version, Type: TypeScore, Tick: tick, Score: &Score{Total: total, Delta: delta}}
}

// NewCommand wraps a simulation command for the wire. Sender is dropped.
func NewCommand(cmd sim.Command, seq uint64) Message {
	frame := CommandFrame{Kind: string(cmd.Type), Target: uint64(cmd.Target), Seq: seq}
	if cmd.Position != nil {
		p := FromVec3(*cmd.Position)
		frame.Position = &p
	}
	if cmd.Orientation != nil {
		q := FromQuat(*cmd.Orientation)
		frame.Orientation = &q
	}
	if cmd.Detonate != nil {
		center := FromVec3(cmd.Detonate.Center)
		radius := cmd.Detonate.Radius
		frame.Position = &center
		frame.Radius = &radius
	}
	return Message{Ver: Version, Type: TypeCommand, Command: &frame}
}

// ClientCommand converts a command frame into a simulation command. Only the
// shape is checked here, including that every number is finite; whether the
// sender may issue it is decided by the authority.
func ClientCommand(frame CommandFrame) (sim.Command, bool) {
	cmd := sim.Command{Type: sim.CommandType(frame.Kind), Target: sim.EntityID(frame.Target)}
	if !cmd.Type.Valid() || frame.Target == 0 {
		return sim.Command{}, false
	}
	if !frame.finite() {
		return sim.Command{}, false
	}
	switch cmd.Type {
	case sim.CommandSetPosition, sim.CommandSpawnBomb:
		if frame.Position == nil {
			return sim.Command{}, false
		}
		p := frame.Position.Vec3()
		cmd.Position = &p
	case sim.CommandSetOrientation:
		if frame.Orientation == nil {
			return sim.Command{}, false
		}
		q := frame.Orientation.Quat().Normalize()
		cmd.Orientation = &q
	case sim.CommandDetonate:
		payload := &sim.DetonatePayload{}
		if frame.Position != nil {
			payload.Center = frame.Position.Vec3()
		}
		if frame.Radius != nil {
			payload.Radius = *frame.Radius
		}
		cmd.Detonate = payload
	}
	return cmd, true
}

func (f CommandFrame) finite() bool {
	if f.Position != nil && !f.Position.Finite() {
		return false
	}
	if f.Orientation != nil && !f.Orientation.Finite() {
		return false
	}
	return f.Radius == nil || finite(*f.Radius)
}
