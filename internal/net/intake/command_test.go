package intake

import (
	"testing"
	"time"

	"bombfield/server"
	"bombfield/server/internal/net/proto"
	"bombfield/server/internal/sim"
)

type fakeEngine struct {
	enqueueOK     bool
	enqueueReason string
	commands      []sim.Command
}

func (f *fakeEngine) Enqueue(cmd sim.Command) (bool, string) {
	f.commands = append(f.commands, cmd)
	if f.enqueueOK {
		return true, ""
	}
	if f.enqueueReason == "" {
		f.enqueueReason = sim.CommandRejectQueueLimit
	}
	return false, f.enqueueReason
}

func connectedContext(engine *fakeEngine, issuedAt time.Time) CommandContext {
	return CommandContext{
		Engine:    engine,
		Connected: func(owner sim.Owner) bool { return owner == "conn-1" },
		Tick:      func() uint64 { return 42 },
		Now:       func() time.Time { return issuedAt },
	}
}

func TestStageClientCommandStampsSender(t *testing.T) {
	engine := &fakeEngine{enqueueOK: true}
	issuedAt := time.Unix(100, 0)
	pos := proto.Vec3{1, 0, 2}

	cmd, ok, reason := StageClientCommand(connectedContext(engine, issuedAt), "conn-1", proto.CommandFrame{
		Kind:     string(sim.CommandSetPosition),
		Target:   7,
		Position: &pos,
	})
	if !ok {
		t.Fatalf("expected command to be accepted, got reason %q", reason)
	}
	if cmd.Sender != "conn-1" || cmd.Target != 7 {
		t.Fatalf("expected sender stamped from the connection, got %+v", cmd)
	}
	if cmd.OriginTick != 42 {
		t.Fatalf("expected OriginTick to be 42, got %d", cmd.OriginTick)
	}
	if !cmd.IssuedAt.Equal(issuedAt) {
		t.Fatalf("expected IssuedAt %v, got %v", issuedAt, cmd.IssuedAt)
	}
	if cmd.Position == nil || *cmd.Position != pos.Vec3() {
		t.Fatalf("expected position carried through, got %v", cmd.Position)
	}
	if len(engine.commands) != 1 {
		t.Fatalf("expected engine to record command, got %d", len(engine.commands))
	}
}

func TestStageClientCommandRejects(t *testing.T) {
	pos := proto.Vec3{}
	valid := proto.CommandFrame{Kind: string(sim.CommandShoot), Target: 3}

	cases := []struct {
		name   string
		owner  sim.Owner
		frame  proto.CommandFrame
		engine *fakeEngine
		reason string
	}{
		{"unknown kind", "conn-1", proto.CommandFrame{Kind: "Teleport", Target: 3}, &fakeEngine{enqueueOK: true}, server.CommandRejectInvalidCommand},
		{"missing target", "conn-1", proto.CommandFrame{Kind: string(sim.CommandShoot)}, &fakeEngine{enqueueOK: true}, server.CommandRejectInvalidCommand},
		{"missing position", "conn-1", proto.CommandFrame{Kind: string(sim.CommandSpawnBomb), Target: 3}, &fakeEngine{enqueueOK: true}, server.CommandRejectInvalidCommand},
		{"unknown connection", "conn-9", valid, &fakeEngine{enqueueOK: true}, server.CommandRejectUnknownActor},
		{"server impersonation", sim.ServerOwner, proto.CommandFrame{Kind: string(sim.CommandDetonate), Target: 3, Position: &pos}, &fakeEngine{enqueueOK: true}, server.CommandRejectUnknownActor},
		{"queue limit", "conn-1", valid, &fakeEngine{}, server.CommandRejectQueueLimit},
		{"queue full", "conn-1", valid, &fakeEngine{enqueueReason: sim.CommandRejectQueueFull}, server.CommandRejectQueueFull},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok, reason := StageClientCommand(connectedContext(tc.engine, time.Unix(1, 0)), tc.owner, tc.frame)
			if ok || reason != tc.reason {
				t.Fatalf("expected rejection %q, got ok=%v reason=%q", tc.reason, ok, reason)
			}
		})
	}
}

func TestStageClientCommandWithoutEngine(t *testing.T) {
	_, ok, reason := StageClientCommand(CommandContext{}, "conn-1", proto.CommandFrame{Kind: string(sim.CommandShoot), Target: 1})
	if ok || reason != server.CommandRejectQueueFull {
		t.Fatalf("expected queue_full without an engine, got ok=%v reason=%q", ok, reason)
	}
}
