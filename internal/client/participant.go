// Package client is the observer side of a session: it mirrors the
// authoritative world, simulates the participant's own player locally and
// reports that player's pose back through owner commands.
package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"bombfield/server/internal/command"
	"bombfield/server/internal/net/proto"
	"bombfield/server/internal/registry"
	"bombfield/server/internal/replication"
	"bombfield/server/internal/sim"
	"bombfield/server/internal/spatial"
	"bombfield/server/internal/telemetry"
)

// Sender delivers a message to the authority.
type Sender interface {
	Send(msg proto.Message) error
}

type Config struct {
	// MoveSpeed scales the move input into a force.
	MoveSpeed   float32
	JumpImpulse float32
	// GroundProbe is the length of the downward ray that decides whether
	// the player may jump.
	GroundProbe float32
	ShootRange  float32

	World       spatial.WorldConfig
	Replication replication.Config
	Logger      telemetry.Logger
}

func DefaultConfig() Config {
	return Config{
		MoveSpeed:   10,
		JumpImpulse: 10,
		GroundProbe: 0.1,
		ShootRange:  command.DefaultConfig().ShootRange,
		World:       spatial.DefaultWorldConfig(),
		Replication: replication.DefaultConfig(),
	}
}

// groundMask is everything a player can stand on.
const groundMask = spatial.LayerAll &^ spatial.LayerPlayer

// minFacingSpeed is the horizontal speed below which the player keeps its
// current facing.
const minFacingSpeed = 0.05

var ErrNoPlayer = errors.New("client: no player")

// Participant is used from a single goroutine: Handle and Update must not
// run concurrently.
type Participant struct {
	cfg    Config
	sender Sender
	logger telemetry.Logger

	owner    sim.Owner
	registry *registry.Registry
	world    *spatial.World
	sync     *replication.Synchronizer

	player    sim.EntityID
	hasPlayer bool
	move      mgl32.Vec2
	score     int64
	tick      uint64
	seq       uint64

	// OnScore is called whenever the shared score changes.
	OnScore func(total, delta int64)
}

func New(cfg Config, sender Sender) *Participant {
	defaults := DefaultConfig()
	if cfg.MoveSpeed <= 0 {
		cfg.MoveSpeed = defaults.MoveSpeed
	}
	if cfg.JumpImpulse <= 0 {
		cfg.JumpImpulse = defaults.JumpImpulse
	}
	if cfg.GroundProbe <= 0 {
		cfg.GroundProbe = defaults.GroundProbe
	}
	if cfg.ShootRange <= 0 {
		cfg.ShootRange = defaults.ShootRange
	}
	if cfg.Replication == (replication.Config{}) {
		cfg.Replication = defaults.Replication
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}
	p := &Participant{cfg: cfg, sender: sender, logger: logger}
	p.reset()
	return p
}

func (p *Participant) reset() {
	p.registry = registry.New()
	p.world = spatial.NewWorld(p.cfg.World)
	p.sync = replication.New(p.cfg.Replication)
	p.player = 0
	p.hasPlayer = false
}

func (p *Participant) Owner() sim.Owner {
	return p.owner
}

func (p *Participant) Score() int64 {
	return p.score
}

// Tick is the authority tick of the last message received.
func (p *Participant) Tick() uint64 {
	return p.tick
}

// Player returns the mirrored copy of the participant's own player.
func (p *Participant) Player() (sim.Entity, bool) {
	if !p.hasPlayer {
		return sim.Entity{}, false
	}
	e, err := p.registry.Lookup(p.player)
	return e, err == nil
}

func (p *Participant) Lookup(id sim.EntityID) (sim.Entity, error) {
	return p.registry.Lookup(id)
}

func (p *Participant) Entities() []sim.Entity {
	return p.registry.Snapshot()
}

// Handle applies one message from the authority.
func (p *Participant) Handle(msg proto.Message) error {
	if msg.Tick > p.tick {
		p.tick = msg.Tick
	}
	switch msg.Type {
	case proto.TypeWelcome:
		p.welcome(*msg.Welcome)
	case proto.TypeSnapshot:
		p.reset()
		p.score = msg.Snapshot.Score
		for _, state := range msg.Snapshot.Entities {
			p.mirror(state.Entity())
		}
	case proto.TypeSpawn:
		p.mirror(msg.Spawn.Entity())
	case proto.TypeDestroy:
		p.forget(sim.EntityID(msg.Destroy.ID))
	case proto.TypeState:
		p.receive(*msg.State)
	case proto.TypeScore:
		p.score = msg.Score.Total
		if p.OnScore != nil {
			p.OnScore(msg.Score.Total, msg.Score.Delta)
		}
	default:
		return fmt.Errorf("%w: %q", proto.ErrUnknownType, msg.Type)
	}
	return nil
}

// welcome adopts the identity and the replication tuning of the authority.
func (p *Participant) welcome(w proto.Welcome) {
	p.owner = sim.Owner(w.Owner)
	p.cfg.Replication = replication.Config{
		PositionThreshold:    w.PositionThreshold,
		OrientationThreshold: w.OrientationThreshold,
		LerpRate:             w.LerpRate,
	}
	if w.ShootRange > 0 {
		p.cfg.ShootRange = w.ShootRange
	}
	p.sync = replication.New(p.cfg.Replication)
}

func (p *Participant) mirror(e sim.Entity) {
	p.registry.Mirror(e)
	p.world.Instantiate(e.ID, e.Kind, e.Transform.Position, e.Transform.Orientation)
	if e.Kind == sim.KindPlayer && p.owner != "" && e.Owner == p.owner {
		p.player = e.ID
		p.hasPlayer = true
		p.world.SetDynamic(e.ID, true)
		p.sync.Track(e.ID, e.Transform)
		return
	}
	p.sync.Seed(e.ID, e.Transform)
}

func (p *Participant) forget(id sim.EntityID) {
	if !p.registry.Unregister(id) {
		return
	}
	p.world.DestroyLocal(spatial.Handle{ID: id})
	p.sync.Forget(id)
	if p.hasPlayer && id == p.player {
		p.hasPlayer = false
		p.player = 0
	}
}

func (p *Participant) receive(update proto.StateUpdate) {
	id := sim.EntityID(update.ID)
	if p.hasPlayer && id == p.player {
		return
	}
	if _, err := p.registry.Lookup(id); err != nil {
		return
	}
	var delta replication.Delta
	if update.Position != nil {
		pos := update.Position.Vec3()
		delta.Position = &pos
	}
	if update.Orientation != nil {
		rot := update.Orientation.Quat().Normalize()
		delta.Orientation = &rot
	}
	p.sync.Receive(id, delta)
}

// RequestMove sets the horizontal input applied on every Update. x steers
// along the world X axis and y along Z.
func (p *Participant) RequestMove(input mgl32.Vec2) {
	if input.Len() > 1 {
		input = input.Normalize()
	}
	p.move = input
}

// Grounded reports whether the player stands on something.
func (p *Participant) Grounded() bool {
	if !p.hasPlayer {
		return false
	}
	pose, ok := p.world.Pose(p.player)
	if !ok {
		return false
	}
	_, hit := p.world.Raycast(pose.Position, mgl32.Vec3{0, -1, 0}, p.cfg.GroundProbe, groundMask)
	return hit
}

// RequestJump pushes the player up when it is grounded and does nothing
// while airborne.
func (p *Participant) RequestJump() {
	if !p.Grounded() {
		return
	}
	p.world.AddImpulse(p.player, mgl32.Vec3{0, p.cfg.JumpImpulse, 0})
}

// RequestDropBomb asks the authority for a bomb at the player's position.
func (p *Participant) RequestDropBomb() error {
	player, ok := p.Player()
	if !ok {
		return ErrNoPlayer
	}
	pos := player.Transform.Position
	return p.send(sim.Command{Type: sim.CommandSpawnBomb, Target: player.ID, Position: &pos})
}

// RequestShoot sends a Shoot command and reports whether the forward ray
// hits an item in the local mirror. The authority repeats the test against
// its own world and may disagree.
func (p *Participant) RequestShoot() bool {
	player, ok := p.Player()
	if !ok {
		return false
	}
	_, hit := command.ShotHit(p.world, player.Transform, p.cfg.ShootRange)
	if err := p.send(sim.Command{Type: sim.CommandShoot, Target: player.ID}); err != nil {
		p.logger.Printf("[client] shoot not sent: %v", err)
	}
	return hit
}

// Update runs one local physics step: it moves the own player, reports its
// pose when it crossed a threshold and eases every mirror toward its last
// received pose.
func (p *Participant) Update(dt time.Duration) error {
	if p.hasPlayer && p.move.Len() > 0 {
		force := mgl32.Vec3{p.move.X(), 0, p.move.Y()}.Mul(p.cfg.MoveSpeed)
		p.world.AddForce(p.player, force)
	}
	p.world.Step(dt)

	var sendErr error
	if p.hasPlayer {
		sendErr = p.reportPlayer()
	}

	for _, e := range p.registry.Snapshot() {
		if p.hasPlayer && e.ID == p.player {
			continue
		}
		pose := p.sync.Interpolate(e.ID, e.Transform, dt)
		if pose == e.Transform {
			continue
		}
		p.registry.SetTransform(e.ID, pose)
		p.world.SetPose(e.ID, pose)
	}
	return sendErr
}

func (p *Participant) reportPlayer() error {
	pose, ok := p.world.Pose(p.player)
	if !ok {
		return nil
	}
	velocity := p.world.Velocity(p.player)
	velocity[1] = 0
	if speed := velocity.Len(); speed > minFacingSpeed {
		pose.Orientation = mgl32.QuatBetweenVectors(command.Forward, velocity.Mul(1/speed)).Normalize()
		p.world.SetPose(p.player, pose)
	}
	p.registry.SetTransform(p.player, pose)

	delta, changed := p.sync.Diff(p.player, pose)
	if !changed {
		return nil
	}
	var errs []error
	if delta.Position != nil {
		errs = append(errs, p.send(sim.Command{Type: sim.CommandSetPosition, Target: p.player, Position: delta.Position}))
	}
	if delta.Orientation != nil {
		errs = append(errs, p.send(sim.Command{Type: sim.CommandSetOrientation, Target: p.player, Orientation: delta.Orientation}))
	}
	return errors.Join(errs...)
}

func (p *Participant) send(cmd sim.Command) error {
	if p.sender == nil {
		return nil
	}
	cmd.Sender = p.owner
	p.seq++
	if err := p.sender.Send(proto.NewCommand(cmd, p.seq)); err != nil {
		return fmt.Errorf("send %s: %w", cmd.Type, err)
	}
	return nil
}
