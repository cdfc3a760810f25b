package client

import (
	"errors"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"bombfield/server"
	"bombfield/server/internal/net/intake"
	"bombfield/server/internal/net/proto"
	"bombfield/server/internal/sim"
)

// hubConn buffers what the authority sends to one participant.
type hubConn struct {
	mu      sync.Mutex
	pending []proto.Message
}

func (c *hubConn) Send(msg proto.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, msg)
	return nil
}

func (c *hubConn) Close() error { return nil }

func (c *hubConn) drain() []proto.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.pending
	c.pending = nil
	return out
}

// stagingSender feeds participant commands through the same intake the
// websocket sessions use.
type stagingSender struct {
	ctx   intake.CommandContext
	owner sim.Owner
}

func (s *stagingSender) Send(msg proto.Message) error {
	if _, ok, reason := intake.StageClientCommand(s.ctx, s.owner, *msg.Command); !ok {
		return errors.New(reason)
	}
	return nil
}

type loopback struct {
	hub         *server.Hub
	conn        *hubConn
	participant *Participant
}

func newLoopback(t *testing.T) *loopback {
	t.Helper()
	cfg := server.DefaultHubConfig()
	cfg.InitialItems = 0
	cfg.EnemySpeed = 0
	cfg.Spawner.Interval = 0
	hub := server.NewHub(cfg, nil)

	conn := &hubConn{}
	owner := hub.Join(conn)
	sender := &stagingSender{
		ctx:   intake.CommandContext{Engine: hub, Connected: hub.Connected, Tick: hub.Tick},
		owner: owner,
	}
	l := &loopback{hub: hub, conn: conn, participant: New(DefaultConfig(), sender)}
	l.step(t)
	if _, ok := l.participant.Player(); !ok {
		t.Fatalf("expected the participant to learn its player")
	}
	return l
}

// step advances the participant and the authority by one tick each and
// delivers what the authority sent.
func (l *loopback) step(t *testing.T) {
	t.Helper()
	if err := l.participant.Update(testStep); err != nil {
		t.Fatalf("participant update: %v", err)
	}
	l.hub.Advance(testStep)
	for _, msg := range l.conn.drain() {
		if err := l.participant.Handle(msg); err != nil {
			t.Fatalf("handle %s: %v", msg.Type, err)
		}
	}
}

func TestParticipantDrivesAuthorityPose(t *testing.T) {
	l := newLoopback(t)
	l.participant.RequestMove(mgl32.Vec2{0, 1})
	for range 60 {
		l.step(t)
	}
	l.participant.RequestMove(mgl32.Vec2{})
	for range 60 {
		l.step(t)
	}

	local, _ := l.participant.Player()
	remote, err := l.hub.Lookup(local.ID)
	if err != nil {
		t.Fatalf("authority lost the player: %v", err)
	}
	gap := remote.Transform.Position.Sub(local.Transform.Position).Len()
	if gap > l.hub.Config().Replication.PositionThreshold {
		t.Fatalf("expected the authority within the threshold of %v, got %v (gap %v)", local.Transform.Position, remote.Transform.Position, gap)
	}
	if remote.Owner != l.participant.Owner() {
		t.Fatalf("expected ownership unchanged, got %q", remote.Owner)
	}
}

func TestDroppedBombDestroysOwnPlayerAndRespawns(t *testing.T) {
	l := newLoopback(t)
	first, _ := l.participant.Player()
	if err := l.participant.RequestDropBomb(); err != nil {
		t.Fatalf("drop failed: %v", err)
	}

	blast := l.hub.Config().Commands.ExplosionDelay
	for range int(blast/testStep) + 2 {
		l.step(t)
	}
	if _, err := l.participant.Lookup(first.ID); err == nil {
		t.Fatalf("expected the blast to remove the player from the mirror")
	}

	respawn := l.hub.Config().RespawnDelay
	for range int(respawn/testStep) + 2 {
		l.step(t)
	}
	next, ok := l.participant.Player()
	if !ok || next.ID == first.ID {
		t.Fatalf("expected a new player after the respawn delay, got %+v", next)
	}
}
