package proto

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"bombfield/server/internal/sim"
)

func TestClientCommand(t *testing.T) {
	pos := Vec3{1, 2, 3}
	rot := FromQuat(mgl32.QuatRotate(0.5, mgl32.Vec3{0, 1, 0}))
	radius := float32(2)

	cases := []struct {
		name  string
		frame CommandFrame
		ok    bool
		check func(t *testing.T, cmd sim.Command)
	}{
		{
			name:  "set position",
			frame: CommandFrame{Kind: "SetPosition", Target: 4, Position: &pos},
			ok:    true,
			check: func(t *testing.T, cmd sim.Command) {
				if cmd.Position == nil || *cmd.Position != (mgl32.Vec3{1, 2, 3}) {
					t.Fatalf("unexpected position %v", cmd.Position)
				}
			},
		},
		{name: "set position without payload", frame: CommandFrame{Kind: "SetPosition", Target: 4}},
		{
			name:  "set orientation",
			frame: CommandFrame{Kind: "SetOrientation", Target: 4, Orientation: &rot},
			ok:    true,
			check: func(t *testing.T, cmd sim.Command) {
				if cmd.Orientation == nil || cmd.Position != nil {
					t.Fatalf("expected orientation only, got %+v", cmd)
				}
			},
		},
		{name: "spawn bomb", frame: CommandFrame{Kind: "SpawnBomb", Target: 4, Position: &pos}, ok: true},
		{
			name:  "detonate passes through for the authority to judge",
			frame: CommandFrame{Kind: "Detonate", Target: 9, Position: &pos, Radius: &radius},
			ok:    true,
			check: func(t *testing.T, cmd sim.Command) {
				if cmd.Detonate == nil || cmd.Detonate.Radius != 2 {
					t.Fatalf("unexpected detonate payload %+v", cmd.Detonate)
				}
			},
		},
		{name: "shoot", frame: CommandFrame{Kind: "Shoot", Target: 4}, ok: true},
		{name: "unknown kind", frame: CommandFrame{Kind: "Teleport", Target: 4}},
		{name: "missing target", frame: CommandFrame{Kind: "Shoot"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, ok := ClientCommand(tc.frame)
			if ok != tc.ok {
				t.Fatalf("expected ok=%v, got %v", tc.ok, ok)
			}
			if !ok {
				return
			}
			if cmd.Sender != "" {
				t.Fatalf("expected sender left for the session to stamp, got %q", cmd.Sender)
			}
			if tc.check != nil {
				tc.check(t, cmd)
			}
		})
	}
}

func TestClientCommandRejectsNonFiniteNumbers(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	badPos := Vec3{nan, 0, 0}
	infPos := Vec3{0, 0, -inf}
	badRot := Quat{0, inf, 0, 1}
	pos := Vec3{1, 2, 3}

	frames := map[string]CommandFrame{
		"nan position":        {Kind: "SetPosition", Target: 4, Position: &badPos},
		"infinite position":   {Kind: "SetPosition", Target: 4, Position: &infPos},
		"infinite rotation":   {Kind: "SetOrientation", Target: 4, Orientation: &badRot},
		"nan bomb position":   {Kind: "SpawnBomb", Target: 4, Position: &badPos},
		"nan detonate radius": {Kind: "Detonate", Target: 9, Position: &pos, Radius: &nan},
	}
	for name, frame := range frames {
		t.Run(name, func(t *testing.T) {
			if _, ok := ClientCommand(frame); ok {
				t.Fatalf("expected %+v rejected", frame)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	msg := Message{Type: TypeScore, Score: &Score{Total: 1}}
	if err := Validate(&msg); err != nil || msg.Ver != Version {
		t.Fatalf("expected zero version upgraded and valid, got %v ver=%d", err, msg.Ver)
	}
	if err := Validate(&Message{Ver: 9, Type: TypeScore, Score: &Score{}}); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
	if err := Validate(&Message{Type: "chat"}); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
	if err := Validate(&Message{Type: TypeSpawn}); !errors.Is(err, ErrMissingPayload) {
		t.Fatalf("expected ErrMissingPayload, got %v", err)
	}
}

func TestEntityStateConversion(t *testing.T) {
	e := sim.Entity{
		ID:        12,
		Kind:      sim.KindItem,
		Owner:     sim.ServerOwner,
		Transform: sim.IdentityTransform(mgl32.Vec3{1, 0, -2}),
		Score:     1,
	}
	back := FromEntity(e).Entity()
	if back != e {
		t.Fatalf("expected %+v, got %+v", e, back)
	}
}

func TestNewCommandOmitsSender(t *testing.T) {
	center := mgl32.Vec3{0, 1, 0}
	msg := NewCommand(sim.Command{
		Sender:   "conn-7",
		Type:     sim.CommandDetonate,
		Target:   3,
		Detonate: &sim.DetonatePayload{Center: center, Radius: 2},
	}, 5)
	if msg.Type != TypeCommand || msg.Command == nil {
		t.Fatalf("expected command envelope, got %+v", msg)
	}
	if msg.Command.Kind != "Detonate" || msg.Command.Seq != 5 || *msg.Command.Radius != 2 {
		t.Fatalf("unexpected frame %+v", msg.Command)
	}
}
