package sim

import (
	"testing"
	"time"
)

type recordingCore struct {
	applied [][]Command
	steps   []LoopTickContext
}

func (c *recordingCore) Apply(cmds []Command) {
	c.applied = append(c.applied, cmds)
}

func (c *recordingCore) Step(ctx LoopTickContext) {
	c.steps = append(c.steps, ctx)
}

func TestLoopEnforcesPerActorLimit(t *testing.T) {
	core := &recordingCore{}
	var drops []string
	loop := NewLoop(core, LoopConfig{CommandCapacity: 16, PerActorLimit: 2}, LoopHooks{
		OnCommandDrop: func(reason string, cmd Command) {
			drops = append(drops, reason)
		},
	}, LoopDeps{})

	for i := 0; i < 3; i++ {
		loop.Enqueue(Command{Sender: "client-a", Type: CommandSetPosition})
	}
	if ok, reason := loop.Enqueue(Command{Sender: "client-b", Type: CommandSetPosition}); !ok {
		t.Fatalf("expected second sender to be accepted, got %q", reason)
	}
	if ok, _ := loop.Enqueue(Command{Sender: ServerOwner, Type: CommandDetonate}); !ok {
		t.Fatalf("expected server commands to bypass the per-actor limit")
	}

	if len(drops) != 1 || drops[0] != CommandRejectQueueLimit {
		t.Fatalf("expected one queue_limit drop, got %v", drops)
	}

	loop.StepOnce(20 * time.Millisecond)
	if len(core.applied) != 1 || len(core.applied[0]) != 4 {
		t.Fatalf("expected 4 commands applied in one batch, got %+v", core.applied)
	}

	// The per-actor window resets every tick.
	if ok, reason := loop.Enqueue(Command{Sender: "client-a", Type: CommandSetPosition}); !ok {
		t.Fatalf("expected limit to reset after a tick, got %q", reason)
	}
}

func TestLoopAppliesCommandsInArrivalOrder(t *testing.T) {
	core := &recordingCore{}
	loop := NewLoop(core, LoopConfig{CommandCapacity: 8}, LoopHooks{}, LoopDeps{})

	order := []CommandType{CommandSetPosition, CommandSpawnBomb, CommandSetOrientation}
	for _, typ := range order {
		loop.Enqueue(Command{Sender: "client-a", Target: 7, Type: typ})
	}
	loop.StepOnce(0)

	if len(core.applied) != 1 {
		t.Fatalf("expected a single apply, got %d", len(core.applied))
	}
	for i, cmd := range core.applied[0] {
		if cmd.Type != order[i] {
			t.Fatalf("command %d: expected %s, got %s", i, order[i], cmd.Type)
		}
	}
	if core.steps[0].Delta != loop.TickInterval() {
		t.Fatalf("expected default delta %s, got %s", loop.TickInterval(), core.steps[0].Delta)
	}
}

func TestLoopPrepareRunsBeforeApply(t *testing.T) {
	core := &recordingCore{}
	var sequence []string
	var loop *Loop
	loop = NewLoop(core, LoopConfig{CommandCapacity: 4}, LoopHooks{
		Prepare: func(LoopTickContext) {
			sequence = append(sequence, "prepare")
			loop.Enqueue(Command{Sender: ServerOwner, Type: CommandDetonate})
		},
		AfterStep: func(result LoopStepResult) {
			sequence = append(sequence, "after")
			if len(result.Commands) != 1 {
				t.Fatalf("expected command staged during prepare to apply this tick, got %d", len(result.Commands))
			}
		},
	}, LoopDeps{})

	result := loop.StepOnce(10 * time.Millisecond)
	if result.Tick != 1 {
		t.Fatalf("expected first tick to be 1, got %d", result.Tick)
	}
	if len(sequence) != 2 || sequence[0] != "prepare" || sequence[1] != "after" {
		t.Fatalf("unexpected hook order: %v", sequence)
	}
}
