package spatial

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"bombfield/server/internal/sim"
)

const tick = 20 * time.Millisecond

func TestWorldDynamicBodyFallsToGround(t *testing.T) {
	w := NewWorld(DefaultWorldConfig())
	w.Instantiate(1, sim.KindPlayer, mgl32.Vec3{0, 1, 0}, mgl32.QuatIdent())
	w.SetDynamic(1, true)

	for i := 0; i < 100; i++ {
		w.Step(tick)
	}
	pose, ok := w.Pose(1)
	if !ok {
		t.Fatalf("expected body to exist")
	}
	if pose.Position.Y() != 0 {
		t.Fatalf("expected body to rest on the ground, got y=%f", pose.Position.Y())
	}
	if v := w.Velocity(1); v.Y() != 0 {
		t.Fatalf("expected vertical velocity cleared on landing, got %v", v)
	}
}

func TestWorldKinematicBodiesIgnoreForces(t *testing.T) {
	w := NewWorld(DefaultWorldConfig())
	w.Instantiate(1, sim.KindBomb, mgl32.Vec3{0, 2, 0}, mgl32.QuatIdent())
	w.AddImpulse(1, mgl32.Vec3{0, 10, 0})
	w.AddForce(1, mgl32.Vec3{5, 0, 0})
	w.Step(tick)

	pose, _ := w.Pose(1)
	if pose.Position != (mgl32.Vec3{0, 2, 0}) {
		t.Fatalf("expected kinematic body to stay put, got %v", pose.Position)
	}
}

func TestWorldImpulseAppliesImmediately(t *testing.T) {
	w := NewWorld(DefaultWorldConfig())
	w.Instantiate(1, sim.KindPlayer, mgl32.Vec3{}, mgl32.QuatIdent())
	w.SetDynamic(1, true)
	w.AddImpulse(1, mgl32.Vec3{0, 10, 0})
	if v := w.Velocity(1); v.Y() != 10 {
		t.Fatalf("expected impulse to change velocity before stepping, got %v", v)
	}
	w.Step(tick)
	pose, _ := w.Pose(1)
	if pose.Position.Y() <= 0 {
		t.Fatalf("expected body to rise, got y=%f", pose.Position.Y())
	}
}

func TestWorldOverlapSphere(t *testing.T) {
	w := NewWorld(DefaultWorldConfig())
	w.Instantiate(1, sim.KindBomb, mgl32.Vec3{}, mgl32.QuatIdent())
	w.Instantiate(2, sim.KindEnemy, mgl32.Vec3{1, 0, 0}, mgl32.QuatIdent())
	w.Instantiate(3, sim.KindEnemy, mgl32.Vec3{5, 0, 0}, mgl32.QuatIdent())

	hits := w.OverlapSphere(mgl32.Vec3{}, 2)
	if len(hits) != 2 || hits[0] != 1 || hits[1] != 2 {
		t.Fatalf("expected bomb and near enemy, got %v", hits)
	}
}

func TestWorldRaycast(t *testing.T) {
	w := NewWorld(DefaultWorldConfig())
	w.Instantiate(1, sim.KindPlayer, mgl32.Vec3{}, mgl32.QuatIdent())
	w.Instantiate(2, sim.KindItem, mgl32.Vec3{0, 0, 5}, mgl32.QuatIdent())
	w.Instantiate(3, sim.KindItem, mgl32.Vec3{0, 0, 9}, mgl32.QuatIdent())

	origin := mgl32.Vec3{0, 0.5, 0}
	cases := []struct {
		name   string
		origin mgl32.Vec3
		dir    mgl32.Vec3
		max    float32
		mask   Layer
		hit    bool
		entity sim.EntityID
		ground bool
	}{
		{name: "nearest item from inside own collider", origin: origin, dir: mgl32.Vec3{0, 0, 1}, max: 100, mask: LayerAll, hit: true, entity: 2},
		{name: "out of range", origin: origin, dir: mgl32.Vec3{0, 0, 1}, max: 3, mask: LayerAll, hit: false},
		{name: "masked out", origin: origin, dir: mgl32.Vec3{0, 0, 1}, max: 100, mask: LayerEnemy, hit: false},
		{name: "ground probe at rest", origin: mgl32.Vec3{}, dir: mgl32.Vec3{0, -1, 0}, max: 0.1, mask: LayerGround, hit: true, ground: true},
		{name: "ground probe airborne", origin: mgl32.Vec3{0, 1, 0}, dir: mgl32.Vec3{0, -1, 0}, max: 0.1, mask: LayerGround, hit: false},
		{name: "zero direction", origin: origin, dir: mgl32.Vec3{}, max: 100, mask: LayerAll, hit: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hit, ok := w.Raycast(tc.origin, tc.dir, tc.max, tc.mask)
			if ok != tc.hit {
				t.Fatalf("expected hit=%v, got %v (%+v)", tc.hit, ok, hit)
			}
			if !ok {
				return
			}
			if hit.Ground != tc.ground || (!tc.ground && hit.Entity != tc.entity) {
				t.Fatalf("unexpected hit %+v", hit)
			}
		})
	}
}

func TestWorldContactsRepeatWhileOverlapping(t *testing.T) {
	w := NewWorld(DefaultWorldConfig())
	w.Instantiate(4, sim.KindItem, mgl32.Vec3{}, mgl32.QuatIdent())
	w.Instantiate(2, sim.KindPlayer, mgl32.Vec3{}, mgl32.QuatIdent())
	w.Instantiate(9, sim.KindEnemy, mgl32.Vec3{10, 0, 0}, mgl32.QuatIdent())

	for step := 0; step < 2; step++ {
		w.Step(tick)
		var contacts []Contact
		for c := range w.Contacts() {
			contacts = append(contacts, c)
		}
		if len(contacts) != 1 {
			t.Fatalf("step %d: expected one contact, got %v", step, contacts)
		}
		c := contacts[0]
		if c.A != 2 || c.B != 4 || !c.Involves(sim.KindItem, sim.KindPlayer) {
			t.Fatalf("unexpected contact %+v", c)
		}
		if item, ok := c.Of(sim.KindItem); !ok || item != 4 {
			t.Fatalf("expected item side 4, got %d", item)
		}
	}

	w.DestroyLocal(Handle{ID: 4})
	w.Step(tick)
	for c := range w.Contacts() {
		t.Fatalf("expected no contacts after destroy, got %+v", c)
	}
}
