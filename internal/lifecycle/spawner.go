package lifecycle

import (
	"math/rand"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"bombfield/server/internal/sched"
	"bombfield/server/internal/sim"
)

// SpawnerConfig tunes the periodic enemy spawner.
type SpawnerConfig struct {
	Interval time.Duration
	Lifetime time.Duration
	Bounds   float32
	Height   float32
}

func DefaultSpawnerConfig() SpawnerConfig {
	return SpawnerConfig{
		Interval: time.Second,
		Lifetime: 10 * time.Second,
		Bounds:   4,
	}
}

// Spawner places a server-owned enemy every Interval and gives each one a
// bounded lifetime.
type Spawner struct {
	mgr     *Manager
	timers  *sched.Queue
	rng     *rand.Rand
	cfg     SpawnerConfig
	task    sched.TaskID
	next    time.Duration
	running bool
	spawned uint64
}

func NewSpawner(mgr *Manager, timers *sched.Queue, rng *rand.Rand, cfg SpawnerConfig) *Spawner {
	if rng == nil {
		rng = NewDeterministicRNG(DefaultSeed, "spawner")
	}
	return &Spawner{mgr: mgr, timers: timers, rng: rng, cfg: cfg}
}

// Start schedules the first spawn one interval from now. A non-positive
// interval leaves the spawner idle.
func (s *Spawner) Start() {
	if s.running || s.cfg.Interval <= 0 {
		return
	}
	s.running = true
	s.next = s.timers.Now()
	s.schedule()
}

func (s *Spawner) Stop() {
	if !s.running {
		return
	}
	s.running = false
	s.timers.Cancel(s.task)
}

// SpawnOne places a single enemy immediately.
func (s *Spawner) SpawnOne() sim.Entity {
	pos := RandomInBounds(s.rng, s.cfg.Bounds, s.cfg.Height)
	e := s.mgr.Spawn(sim.KindEnemy, pos, mgl32.QuatIdent(), sim.ServerOwner)
	if s.cfg.Lifetime > 0 {
		s.mgr.DestroyAfter(e.ID, s.cfg.Lifetime)
	}
	s.spawned++
	return e
}

// Spawned reports the number of enemies placed so far.
func (s *Spawner) Spawned() uint64 {
	return s.spawned
}

// schedule chains spawns on fixed fire times so tick granularity does not
// accumulate drift.
func (s *Spawner) schedule() {
	s.next += s.cfg.Interval
	s.task = s.timers.At(s.next, func() {
		if !s.running {
			return
		}
		s.SpawnOne()
		s.schedule()
	})
}
