// Package server is the authoritative game instance: it owns the entity
// registry, the spatial world, the score ledger and the timer queue, and it
// drives them from a single fixed-step tick.
package server

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"bombfield/server/internal/command"
	"bombfield/server/internal/items"
	"bombfield/server/internal/journal"
	"bombfield/server/internal/lifecycle"
	"bombfield/server/internal/net/proto"
	"bombfield/server/internal/registry"
	"bombfield/server/internal/replication"
	"bombfield/server/internal/sched"
	"bombfield/server/internal/score"
	"bombfield/server/internal/sim"
	"bombfield/server/internal/spatial"
	"bombfield/server/internal/telemetry"
	"bombfield/server/logging"
	loggingLifecycle "bombfield/server/logging/lifecycle"
	"bombfield/server/logging/network"
	"bombfield/server/logging/simulation"
)

// Conn is the outbound half of a participant connection.
type Conn interface {
	Send(msg proto.Message) error
	Close() error
}

type subscriber struct {
	owner sim.Owner
	conn  Conn
}

type membershipOp struct {
	join   bool
	owner  sim.Owner
	conn   Conn
	reason string
}

// Hub owns all authoritative state. Everything except the membership inbox
// and the subscriber set is touched only from the tick goroutine.
type Hub struct {
	cfg       HubConfig
	logger    telemetry.Logger
	metrics   *telemetry.Counters
	publisher logging.Publisher

	registry  *registry.Registry
	world     *spatial.World
	timers    *sched.Queue
	ledger    *score.Ledger
	sync      *replication.Synchronizer
	journal   *journal.Journal
	lifecycle *lifecycle.Manager
	spawner   *lifecycle.Spawner
	collector *items.Collector
	commands  *command.Channel
	loop      *sim.Loop
	rng       *rand.Rand

	tick          atomic.Uint64
	simTime       time.Duration
	overrunStreak uint64

	mu          sync.Mutex
	subscribers map[sim.Owner]*subscriber
	members     map[sim.Owner]struct{}
	inbox       []membershipOp
	nextConn    atomic.Uint64
}

var _ sim.EngineCore = (*Hub)(nil)

// NewHub constructs an authority, seeds the world items and starts the
// enemy spawner. Nothing advances until Run or Advance is called.
func NewHub(cfg HubConfig, publisher logging.Publisher) *Hub {
	cfg = cfg.normalized()
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	h := &Hub{
		cfg:         cfg,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		publisher:   publisher,
		registry:    registry.New(),
		world:       spatial.NewWorld(cfg.World),
		timers:      sched.New(),
		ledger:      &score.Ledger{},
		sync:        replication.New(cfg.Replication),
		journal:     journal.New(cfg.JournalCapacity),
		rng:         lifecycle.NewDeterministicRNG(cfg.Seed, "players"),
		subscribers: make(map[sim.Owner]*subscriber),
		members:     make(map[sim.Owner]struct{}),
	}
	if h.logger == nil {
		h.logger = telemetry.LoggerFunc(nil)
	}
	h.journal.AttachTelemetry(journalTelemetry{metrics: h.metrics})

	events := hubEvents{h: h}
	h.lifecycle = lifecycle.NewManager(lifecycle.Deps{
		Registry:    h.registry,
		Factory:     h.world,
		Timers:      h.timers,
		Broadcaster: events,
		Tracker:     h.sync,
		Publisher:   publisher,
		Tick:        h.Tick,
		ItemScore:   cfg.ItemScore,
	})
	h.collector = items.NewCollector(items.Config{
		Ledger:    h.ledger,
		Destroyer: h.lifecycle,
		Publisher: publisher,
		Tick:      h.Tick,
		OnScore: func(delta, total int64) {
			h.journal.Broadcast(proto.NewScore(h.Tick(), total, delta))
		},
		OwnerOf: func(id sim.EntityID) sim.Owner {
			owner, _ := h.registry.OwnerOf(id)
			return owner
		},
	})
	h.commands = command.New(cfg.Commands, command.Deps{
		Registry:  h.registry,
		Query:     h.world,
		Bodies:    h.world,
		Lifecycle: h.lifecycle,
		Collector: h.collector,
		Timers:    h.timers,
		Relay:     events,
		Publisher: publisher,
		Metrics:   h.metrics,
		Tick:      h.Tick,
	})
	h.spawner = lifecycle.NewSpawner(
		h.lifecycle,
		h.timers,
		lifecycle.NewDeterministicRNG(cfg.Seed, "enemies"),
		cfg.Spawner,
	)
	h.loop = sim.NewLoop(h, cfg.loopConfig(), sim.LoopHooks{
		NextTick:  func() uint64 { return h.tick.Add(1) },
		Prepare:   h.prepare,
		AfterStep: h.afterStep,
		OnQueueWarning: func(length int) {
			simulation.CommandQueueWarning(context.Background(), h.publisher, h.Tick(), simulation.CommandQueueWarningPayload{Length: length}, nil)
		},
		OnCommandDrop: func(reason string, cmd sim.Command) {
			network.CommandRejected(
				context.Background(),
				h.publisher,
				h.Tick(),
				logging.EntityRef{ID: string(cmd.Sender), Kind: logging.EntityKindConnection},
				network.CommandRejectedPayload{Command: string(cmd.Type), Target: uint64(cmd.Target), Reason: reason},
				nil,
			)
		},
	}, sim.LoopDeps{Logger: h.logger, Metrics: h.metrics})

	h.seedItems()
	h.spawner.Start()
	// Nobody is subscribed yet; joiners get the seeded world in their snapshot.
	h.journal.Drain()
	return h
}

func (h *Hub) seedItems() {
	rng := lifecycle.NewDeterministicRNG(h.cfg.Seed, "items")
	for range h.cfg.InitialItems {
		pos := lifecycle.RandomInBounds(rng, h.cfg.Spawner.Bounds, 0)
		h.lifecycle.Spawn(sim.KindItem, pos, mgl32.QuatIdent(), sim.ServerOwner)
	}
}

// Tick reports the last tick started.
func (h *Hub) Tick() uint64 {
	return h.tick.Load()
}

// Config returns the normalized configuration.
func (h *Hub) Config() HubConfig {
	return h.cfg
}

// Welcome describes the tuning a participant mirrors.
func (h *Hub) Welcome(owner sim.Owner) proto.Welcome {
	return proto.Welcome{
		Owner:                string(owner),
		TickRate:             h.cfg.TickRate,
		PositionThreshold:    h.cfg.Replication.PositionThreshold,
		OrientationThreshold: h.cfg.Replication.OrientationThreshold,
		LerpRate:             h.cfg.Replication.LerpRate,
		ShootRange:           h.commands.ShootRange(),
	}
}

// Join admits a connection and returns the owner id it acts as. The player
// is spawned at the next tick boundary.
func (h *Hub) Join(conn Conn) sim.Owner {
	owner := sim.Owner(fmt.Sprintf("conn-%d", h.nextConn.Add(1)))
	h.mu.Lock()
	h.members[owner] = struct{}{}
	h.inbox = append(h.inbox, membershipOp{join: true, owner: owner, conn: conn})
	h.mu.Unlock()
	return owner
}

// Leave queues the removal of a participant and its owned entities.
func (h *Hub) Leave(owner sim.Owner, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.members[owner]; !ok {
		return
	}
	delete(h.members, owner)
	h.inbox = append(h.inbox, membershipOp{owner: owner, reason: reason})
}

// Connected reports whether owner has joined and not left.
func (h *Hub) Connected(owner sim.Owner) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.members[owner]
	return ok
}

// Enqueue stages a command for the next tick.
func (h *Hub) Enqueue(cmd sim.Command) (bool, string) {
	return h.loop.Enqueue(cmd)
}

// Run drives the tick loop until stop closes.
func (h *Hub) Run(stop <-chan struct{}) {
	h.loop.Run(stop)
}

// Advance runs one tick of dt immediately.
func (h *Hub) Advance(dt time.Duration) sim.LoopStepResult {
	return h.loop.StepOnce(dt)
}

// Lookup reads an entity from the authoritative registry.
func (h *Hub) Lookup(id sim.EntityID) (sim.Entity, error) {
	return h.registry.Lookup(id)
}

// Entities returns every live entity ordered by id.
func (h *Hub) Entities() []sim.Entity {
	return h.registry.Snapshot()
}

// PlayerOf returns the player owned by owner.
func (h *Hub) PlayerOf(owner sim.Owner) (sim.Entity, bool) {
	for _, e := range h.registry.Snapshot() {
		if e.Kind == sim.KindPlayer && e.OwnedBy(owner) {
			return e, true
		}
	}
	return sim.Entity{}, false
}

// Score reads the shared score.
func (h *Hub) Score() int64 {
	return h.ledger.Value()
}

// Apply executes the staged commands in arrival order.
func (h *Hub) Apply(cmds []sim.Command) {
	h.commands.ExecuteAll(cmds)
}

// Step advances timers, enemies and the spatial world, feeds overlaps to the
// item collector and queues replication for server-owned entities.
func (h *Hub) Step(ctx sim.LoopTickContext) {
	dt := h.tickDelta(ctx)
	h.timers.RunDue(h.simTime)
	h.chasePlayers(dt)
	h.world.Step(dt)
	h.collector.Feed(h.world.Contacts())
	h.replicate()
}

func (h *Hub) tickDelta(ctx sim.LoopTickContext) time.Duration {
	if ctx.Delta <= 0 {
		return h.cfg.TickInterval()
	}
	return ctx.Delta
}

// prepare moves the simulation clock to the end of the tick before joins and
// commands run, so delays scheduled this tick count from the tick they were
// issued in.
func (h *Hub) prepare(ctx sim.LoopTickContext) {
	h.simTime += h.tickDelta(ctx)
	h.timers.Advance(h.simTime)

	h.mu.Lock()
	ops := h.inbox
	h.inbox = nil
	h.mu.Unlock()

	for _, op := range ops {
		if op.join {
			h.admit(op.owner, op.conn)
		} else {
			h.remove(op.owner, op.reason)
		}
	}
}

func (h *Hub) admit(owner sim.Owner, conn Conn) {
	h.mu.Lock()
	if _, ok := h.members[owner]; !ok {
		// Left before the join was applied.
		h.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	h.subscribers[owner] = &subscriber{owner: owner, conn: conn}
	h.mu.Unlock()

	tick := h.Tick()
	h.journal.Append(journal.Entry{Only: owner, Message: proto.NewWelcome(h.Welcome(owner))})
	h.journal.Append(journal.Entry{Only: owner, Message: proto.NewSnapshot(tick, h.registry.Snapshot(), h.ledger.Value())})
	player := h.spawnPlayer(owner)

	loggingLifecycle.PlayerJoined(
		context.Background(),
		h.publisher,
		tick,
		logging.EntityRef{ID: string(owner), Kind: logging.EntityKindConnection},
		loggingLifecycle.PlayerJoinedPayload{PlayerID: player.ID.String()},
		nil,
	)
	h.metrics.Add("players_joined_total", 1)
}

func (h *Hub) spawnPlayer(owner sim.Owner) sim.Entity {
	pos := lifecycle.RandomInBounds(h.rng, h.cfg.Spawner.Bounds, playerSpawnHeight)
	return h.lifecycle.Spawn(sim.KindPlayer, pos, mgl32.QuatIdent(), owner)
}

func (h *Hub) remove(owner sim.Owner, reason string) {
	h.mu.Lock()
	sub, ok := h.subscribers[owner]
	delete(h.subscribers, owner)
	h.mu.Unlock()

	for _, e := range h.registry.Snapshot() {
		if e.OwnedBy(owner) {
			h.lifecycle.DestroyBecause(e.ID, lifecycle.ReasonDisconnected)
		}
	}
	if ok && sub.conn != nil {
		sub.conn.Close()
	}
	loggingLifecycle.PlayerDisconnected(
		context.Background(),
		h.publisher,
		h.Tick(),
		logging.EntityRef{ID: string(owner), Kind: logging.EntityKindConnection},
		loggingLifecycle.PlayerDisconnectedPayload{Reason: reason},
		nil,
	)
}

// chasePlayers walks every server-owned enemy straight toward the nearest
// player.
func (h *Hub) chasePlayers(dt time.Duration) {
	if h.cfg.EnemySpeed <= 0 {
		return
	}
	entities := h.registry.Snapshot()
	var players []mgl32.Vec3
	for _, e := range entities {
		if e.Kind == sim.KindPlayer {
			players = append(players, e.Transform.Position)
		}
	}
	if len(players) == 0 {
		return
	}
	step := h.cfg.EnemySpeed * float32(dt.Seconds())
	for _, e := range entities {
		if e.Kind != sim.KindEnemy || !e.Owner.IsServer() {
			continue
		}
		pose, moved := chaseStep(e.Transform, players, step)
		if !moved {
			continue
		}
		if err := h.registry.SetTransform(e.ID, pose); err != nil {
			continue
		}
		h.world.SetPose(e.ID, pose)
	}
}

// chaseStep moves from toward the nearest target on the ground plane by at
// most step and turns it to face the way it moved.
func chaseStep(from sim.Transform, targets []mgl32.Vec3, step float32) (sim.Transform, bool) {
	var (
		best     mgl32.Vec3
		bestDist float32 = -1
	)
	for _, target := range targets {
		offset := target.Sub(from.Position)
		offset[1] = 0
		if d := offset.Len(); bestDist < 0 || d < bestDist {
			best, bestDist = offset, d
		}
	}
	if bestDist <= 0 {
		return from, false
	}
	dir := best.Mul(1 / bestDist)
	move := min(step, bestDist)
	to := from
	to.Position = from.Position.Add(dir.Mul(move))
	to.Orientation = mgl32.QuatBetweenVectors(command.Forward, dir).Normalize()
	return to, true
}

// replicate queues a state update for every server-owned entity whose
// transform moved past a threshold since it was last sent.
func (h *Hub) replicate() {
	tick := h.Tick()
	for _, e := range h.registry.Snapshot() {
		if !e.Owner.IsServer() {
			continue
		}
		delta, ok := h.sync.Diff(e.ID, e.Transform)
		if !ok {
			continue
		}
		h.journal.Broadcast(proto.NewState(tick, e.ID, delta.Position, delta.Orientation))
	}
}

func (h *Hub) afterStep(result sim.LoopStepResult) {
	h.flush()
	if signal, ok := h.journal.ConsumeResyncHint(); ok {
		h.logger.Printf("[journal] resync after %s", signal.Summary())
		h.broadcastSnapshot()
	}
	h.trackBudget(result)

	counts := h.registry.CountByKind()
	h.metrics.Store("tick", result.Tick)
	h.metrics.Store("entities_player", uint64(counts[sim.KindPlayer]))
	h.metrics.Store("entities_enemy", uint64(counts[sim.KindEnemy]))
	h.metrics.Store("entities_item", uint64(counts[sim.KindItem]))
	h.metrics.Store("entities_bomb", uint64(counts[sim.KindBomb]))
	h.metrics.Store("timers_pending", uint64(h.timers.Len()))
}

func (h *Hub) subscriberList() []*subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := make([]*subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		subs = append(subs, sub)
	}
	return subs
}

// flush delivers the tick's journal in order. A participant whose
// connection refuses a message is dropped; a message that cannot be encoded
// is skipped for that participant only.
func (h *Hub) flush() {
	entries := h.journal.Drain()
	if len(entries) == 0 {
		return
	}
	subs := h.subscriberList()
	failed := make(map[sim.Owner]error)
	for _, entry := range entries {
		for _, sub := range subs {
			if _, down := failed[sub.owner]; down || !entry.DeliverTo(sub.owner) {
				continue
			}
			if err := sub.conn.Send(entry.Message); err != nil {
				if !h.unencodable(sub.owner, entry.Message, err) {
					failed[sub.owner] = err
				}
				continue
			}
			h.metrics.Add("messages_sent_total", 1)
		}
	}
	for owner, err := range failed {
		h.dropSubscriber(owner, err)
	}
}

func (h *Hub) broadcastSnapshot() {
	msg := proto.NewSnapshot(h.Tick(), h.registry.Snapshot(), h.ledger.Value())
	for _, sub := range h.subscriberList() {
		if err := sub.conn.Send(msg); err != nil && !h.unencodable(sub.owner, msg, err) {
			h.dropSubscriber(sub.owner, err)
		}
	}
	h.metrics.Add("resync_snapshots_total", 1)
}

// unencodable reports whether err came from encoding msg rather than from the
// connection, and records it.
func (h *Hub) unencodable(owner sim.Owner, msg proto.Message, err error) bool {
	if !errors.Is(err, proto.ErrEncode) {
		return false
	}
	h.logger.Printf("skipping %s message for %s: %v", msg.Type, owner, err)
	h.metrics.Add("messages_unencodable_total", 1)
	return true
}

// ErrSendFailed is the disconnect reason recorded for unreachable
// participants.
var ErrSendFailed = errors.New("send failed")

func (h *Hub) dropSubscriber(owner sim.Owner, err error) {
	h.logger.Printf("dropping %s: %v", owner, err)
	network.MessageDropped(
		context.Background(),
		h.publisher,
		h.Tick(),
		logging.EntityRef{ID: string(owner), Kind: logging.EntityKindConnection},
		network.MessageDroppedPayload{Reason: err.Error()},
		nil,
	)
	h.Leave(owner, ErrSendFailed.Error())
}

func (h *Hub) trackBudget(result sim.LoopStepResult) {
	if result.Budget <= 0 || result.Duration <= result.Budget {
		h.overrunStreak = 0
		return
	}
	h.overrunStreak++
	h.metrics.Add("tick_budget_overrun_total", 1)
	simulation.TickBudgetOverrun(
		context.Background(),
		h.publisher,
		result.Tick,
		simulation.TickBudgetOverrunPayload{
			DurationMillis: result.Duration.Milliseconds(),
			BudgetMillis:   result.Budget.Milliseconds(),
			Ratio:          float64(result.Duration) / float64(result.Budget),
			Streak:         h.overrunStreak,
		},
		nil,
	)
}

// Diagnostics is the authority summary served on /diagnostics.
type Diagnostics struct {
	Tick        uint64            `json:"tick"`
	TickRate    int               `json:"tickRate"`
	Score       int64             `json:"score"`
	Connections int               `json:"connections"`
	Entities    map[sim.Kind]int  `json:"entities"`
	Counters    map[string]uint64 `json:"counters"`
}

func (h *Hub) Diagnostics() Diagnostics {
	h.mu.Lock()
	connections := len(h.subscribers)
	h.mu.Unlock()
	return Diagnostics{
		Tick:        h.Tick(),
		TickRate:    h.cfg.TickRate,
		Score:       h.ledger.Value(),
		Connections: connections,
		Entities:    h.registry.CountByKind(),
		Counters:    h.metrics.Snapshot(),
	}
}

// hubEvents turns lifecycle and command side effects into journal entries.
type hubEvents struct {
	h *Hub
}

func (e hubEvents) Spawned(ent sim.Entity) {
	h := e.h
	if ent.Kind == sim.KindItem {
		h.collector.Track(ent.ID, ent.Score)
	}
	h.journal.Broadcast(proto.NewSpawn(h.Tick(), ent))
}

func (e hubEvents) Destroyed(ent sim.Entity, reason string) {
	h := e.h
	if ent.Kind == sim.KindItem {
		h.collector.Retire(ent.ID)
	}
	h.journal.Broadcast(proto.NewDestroy(h.Tick(), ent.ID, reason))
	if ent.Kind == sim.KindPlayer && reason != lifecycle.ReasonDisconnected {
		h.scheduleRespawn(ent.Owner)
	}
}

func (e hubEvents) RelayTransform(ent sim.Entity, position *mgl32.Vec3, orientation *mgl32.Quat) {
	h := e.h
	h.journal.Append(journal.Entry{
		Message: proto.NewState(h.Tick(), ent.ID, position, orientation),
		Except:  ent.Owner,
	})
}

func (h *Hub) scheduleRespawn(owner sim.Owner) {
	if owner.IsServer() || h.cfg.RespawnDelay <= 0 {
		return
	}
	h.timers.After(h.cfg.RespawnDelay, func() {
		h.mu.Lock()
		_, subscribed := h.subscribers[owner]
		h.mu.Unlock()
		if !subscribed {
			return
		}
		if _, alive := h.PlayerOf(owner); alive {
			return
		}
		h.spawnPlayer(owner)
	})
}

type journalTelemetry struct {
	metrics telemetry.Metrics
}

func (t journalTelemetry) RecordJournalDrop(metric string) {
	t.metrics.Add(metric, 1)
}
