// Package command validates and executes participant intents on the
// authority. A command is only honoured when its sender owns the target;
// anything else is discarded without telling the sender why.
package command

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"bombfield/server/internal/lifecycle"
	"bombfield/server/internal/registry"
	"bombfield/server/internal/sched"
	"bombfield/server/internal/sim"
	"bombfield/server/internal/spatial"
	"bombfield/server/internal/telemetry"
	"bombfield/server/logging"
	"bombfield/server/logging/network"
)

// Rejection reasons.
const (
	ReasonAuthorityViolation = "authority_violation"
	ReasonNotFound           = "not_found"
	ReasonInvalidTarget      = "invalid_target"
	ReasonInvalidPayload     = "invalid_payload"
)

// Forward is the local direction a player faces at identity orientation.
var Forward = mgl32.Vec3{0, 0, 1}

// EyeHeight lifts shot origins from a body's rest point to its collider
// centre.
const EyeHeight float32 = 0.5

// Outcome reports what Execute did with a command.
type Outcome struct {
	Applied bool
	Reason  string
	// Spawned is the bomb created by SpawnBomb.
	Spawned sim.EntityID
	// Destroyed lists the entities removed by Detonate.
	Destroyed []sim.EntityID
	// Collected is the item collected by Shoot.
	Collected sim.EntityID
}

func rejected(reason string) Outcome {
	return Outcome{Reason: reason}
}

// Lifecycle spawns and destroys entities for the channel.
type Lifecycle interface {
	Spawn(kind sim.Kind, position mgl32.Vec3, orientation mgl32.Quat, owner sim.Owner) sim.Entity
	DestroyBecause(id sim.EntityID, reason string) bool
}

// Collector is the item collection guard.
type Collector interface {
	Collect(id sim.EntityID, by sim.Owner) bool
}

// Bodies moves server-side bodies when a client sets its transform.
type Bodies interface {
	SetPose(id sim.EntityID, pose sim.Transform)
}

// Relay forwards an accepted transform change to every observer except the
// owner that sent it.
type Relay interface {
	RelayTransform(e sim.Entity, position *mgl32.Vec3, orientation *mgl32.Quat)
}

// Config holds the gameplay constants the commands depend on.
type Config struct {
	ExplosionDelay  time.Duration
	ExplosionRadius float32
	ShootRange      float32
}

func DefaultConfig() Config {
	return Config{
		ExplosionDelay:  3 * time.Second,
		ExplosionRadius: 2,
		ShootRange:      100,
	}
}

// Deps are the collaborators the channel drives. Bodies, Relay, Collector,
// Publisher, Metrics and Tick are optional.
type Deps struct {
	Registry  *registry.Registry
	Query     spatial.Query
	Bodies    Bodies
	Lifecycle Lifecycle
	Collector Collector
	Timers    *sched.Queue
	Relay     Relay
	Publisher logging.Publisher
	Metrics   telemetry.Metrics
	Tick      func() uint64
}

// Channel executes commands on the tick goroutine.
type Channel struct {
	cfg  Config
	deps Deps
}

func New(cfg Config, deps Deps) *Channel {
	defaults := DefaultConfig()
	if cfg.ExplosionDelay <= 0 {
		cfg.ExplosionDelay = defaults.ExplosionDelay
	}
	if cfg.ExplosionRadius <= 0 {
		cfg.ExplosionRadius = defaults.ExplosionRadius
	}
	if cfg.ShootRange <= 0 {
		cfg.ShootRange = defaults.ShootRange
	}
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	return &Channel{cfg: cfg, deps: deps}
}

// ShootRange is the distance a Shoot raycast reaches.
func (c *Channel) ShootRange() float32 {
	return c.cfg.ShootRange
}

// ExecuteAll runs cmds in the order given.
func (c *Channel) ExecuteAll(cmds []sim.Command) []Outcome {
	outcomes := make([]Outcome, 0, len(cmds))
	for _, cmd := range cmds {
		outcomes = append(outcomes, c.Execute(cmd))
	}
	return outcomes
}

// Execute validates cmd against the registry and applies it.
func (c *Channel) Execute(cmd sim.Command) Outcome {
	var out Outcome
	switch cmd.Type {
	case sim.CommandSetPosition, sim.CommandSetOrientation:
		out = c.setTransform(cmd)
	case sim.CommandSpawnBomb:
		out = c.spawnBomb(cmd)
	case sim.CommandDetonate:
		out = c.detonate(cmd)
	case sim.CommandShoot:
		out = c.shoot(cmd)
	default:
		out = rejected(ReasonInvalidPayload)
	}
	c.record(cmd, out)
	return out
}

func finite(values ...float32) bool {
	for _, f := range values {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return false
		}
	}
	return true
}

// owned loads the target and checks the sender owns it.
func (c *Channel) owned(cmd sim.Command) (sim.Entity, string) {
	e, err := c.deps.Registry.Lookup(cmd.Target)
	if errors.Is(err, registry.ErrNotFound) {
		return sim.Entity{}, ReasonNotFound
	}
	if !e.OwnedBy(cmd.Sender) {
		return sim.Entity{}, ReasonAuthorityViolation
	}
	return e, ""
}

func (c *Channel) setTransform(cmd sim.Command) Outcome {
	e, reason := c.owned(cmd)
	if reason != "" {
		return rejected(reason)
	}
	pose := e.Transform
	switch cmd.Type {
	case sim.CommandSetPosition:
		if cmd.Position == nil || !finite(cmd.Position[:]...) {
			return rejected(ReasonInvalidPayload)
		}
		pose.Position = *cmd.Position
	case sim.CommandSetOrientation:
		if cmd.Orientation == nil || !finite(cmd.Orientation.W, cmd.Orientation.V[0], cmd.Orientation.V[1], cmd.Orientation.V[2]) {
			return rejected(ReasonInvalidPayload)
		}
		pose.Orientation = *cmd.Orientation
	}
	if err := c.deps.Registry.SetTransform(e.ID, pose); err != nil {
		return rejected(ReasonNotFound)
	}
	if c.deps.Bodies != nil {
		c.deps.Bodies.SetPose(e.ID, pose)
	}
	if c.deps.Relay != nil {
		e.Transform = pose
		c.deps.Relay.RelayTransform(e, cmd.Position, cmd.Orientation)
	}
	return Outcome{Applied: true}
}

func (c *Channel) spawnBomb(cmd sim.Command) Outcome {
	player, reason := c.owned(cmd)
	if reason != "" {
		return rejected(reason)
	}
	if player.Kind != sim.KindPlayer {
		return rejected(ReasonInvalidTarget)
	}
	if cmd.Position == nil || !finite(cmd.Position[:]...) {
		return rejected(ReasonInvalidPayload)
	}
	center := *cmd.Position
	bomb := c.deps.Lifecycle.Spawn(sim.KindBomb, center, mgl32.QuatIdent(), sim.ServerOwner)
	radius := c.cfg.ExplosionRadius
	c.deps.Timers.After(c.cfg.ExplosionDelay, func() {
		c.Execute(sim.Command{
			Sender:   sim.ServerOwner,
			Target:   bomb.ID,
			Type:     sim.CommandDetonate,
			Detonate: &sim.DetonatePayload{Center: center, Radius: radius},
		})
	})
	return Outcome{Applied: true, Spawned: bomb.ID}
}

// detonate destroys everything overlapping the blast. When the bomb is
// already gone the blast still happens at the position captured when it was
// scheduled.
func (c *Channel) detonate(cmd sim.Command) Outcome {
	if !cmd.Sender.IsServer() {
		return rejected(ReasonAuthorityViolation)
	}
	if cmd.Detonate == nil {
		return rejected(ReasonInvalidPayload)
	}
	center := cmd.Detonate.Center
	if bomb, err := c.deps.Registry.Lookup(cmd.Target); err == nil {
		if !bomb.OwnedBy(cmd.Sender) {
			return rejected(ReasonAuthorityViolation)
		}
		center = bomb.Transform.Position
	}
	radius := cmd.Detonate.Radius
	if radius <= 0 {
		radius = c.cfg.ExplosionRadius
	}

	out := Outcome{Applied: true}
	for _, id := range c.deps.Query.OverlapSphere(center, radius) {
		if c.deps.Lifecycle.DestroyBecause(id, lifecycle.ReasonDetonated) {
			out.Destroyed = append(out.Destroyed, id)
		}
	}
	return out
}

// shoot casts a ray from the player along its facing and collects the item
// it hits first. Missing is not a rejection.
func (c *Channel) shoot(cmd sim.Command) Outcome {
	player, reason := c.owned(cmd)
	if reason != "" {
		return rejected(reason)
	}
	if player.Kind != sim.KindPlayer {
		return rejected(ReasonInvalidTarget)
	}
	out := Outcome{Applied: true}
	hit, ok := ShotHit(c.deps.Query, player.Transform, c.cfg.ShootRange)
	if ok && c.deps.Collector != nil && c.deps.Collector.Collect(hit.Entity, cmd.Sender) {
		out.Collected = hit.Entity
	}
	return out
}

// ShotHit is the forward raycast used by Shoot. It reports an item hit only;
// anything else in the way blocks the shot.
func ShotHit(q spatial.Query, from sim.Transform, maxDistance float32) (spatial.Hit, bool) {
	origin := from.Position.Add(mgl32.Vec3{0, EyeHeight, 0})
	direction := from.Orientation.Rotate(Forward)
	hit, ok := q.Raycast(origin, direction, maxDistance, spatial.LayerAll)
	if !ok || hit.Ground || hit.Kind != sim.KindItem {
		return spatial.Hit{}, false
	}
	return hit, true
}

func (c *Channel) record(cmd sim.Command, out Outcome) {
	if out.Applied {
		if c.deps.Metrics != nil {
			c.deps.Metrics.Add("command_applied_total", 1)
		}
		return
	}
	if c.deps.Metrics != nil {
		c.deps.Metrics.Add("command_rejected_total", 1)
	}
	var tick uint64
	if c.deps.Tick != nil {
		tick = c.deps.Tick()
	}
	network.CommandRejected(
		context.Background(),
		c.deps.Publisher,
		tick,
		logging.EntityRef{ID: string(cmd.Sender), Kind: logging.EntityKindConnection},
		network.CommandRejectedPayload{
			Command: string(cmd.Type),
			Target:  uint64(cmd.Target),
			Reason:  out.Reason,
		},
		nil,
	)
}
