package server

import (
	"time"

	"bombfield/server/internal/command"
	"bombfield/server/internal/lifecycle"
	"bombfield/server/internal/replication"
	"bombfield/server/internal/sim"
	"bombfield/server/internal/spatial"
	"bombfield/server/internal/telemetry"
)

// HubConfig captures the tunable parameters for constructing a Hub.
type HubConfig struct {
	TickRate        int
	CatchupMaxTicks int
	CommandCapacity int
	PerActorLimit   int
	WarningStep     int
	// JournalCapacity bounds the state updates flushed per tick.
	JournalCapacity int

	Replication replication.Config
	Commands    command.Config
	Spawner     lifecycle.SpawnerConfig
	World       spatial.WorldConfig

	EnemySpeed   float32
	InitialItems int
	ItemScore    int
	Seed         string
	// RespawnDelay is how long a participant waits for a new player after
	// losing theirs to a blast.
	RespawnDelay time.Duration

	Logger  telemetry.Logger
	Metrics *telemetry.Counters
}

// DefaultHubConfig returns the default tuning for the authority.
func DefaultHubConfig() HubConfig {
	spawner := lifecycle.DefaultSpawnerConfig()
	spawner.Bounds = defaultArenaHalfExtent
	spawner.Height = defaultSpawnHeight
	return HubConfig{
		TickRate:        defaultTickRate,
		CatchupMaxTicks: defaultCatchupTicks,
		CommandCapacity: defaultCommandCapacity,
		PerActorLimit:   defaultPerActorLimit,
		WarningStep:     defaultWarningStep,
		JournalCapacity: defaultJournalCapacity,
		Replication:     replication.DefaultConfig(),
		Commands:        command.DefaultConfig(),
		Spawner:         spawner,
		World:           spatial.DefaultWorldConfig(),
		EnemySpeed:      defaultEnemySpeed,
		InitialItems:    defaultInitialItems,
		ItemScore:       1,
		Seed:            lifecycle.DefaultSeed,
		RespawnDelay:    defaultRespawnDelay,
	}
}

func (c HubConfig) normalized() HubConfig {
	defaults := DefaultHubConfig()
	if c.TickRate <= 0 {
		c.TickRate = defaults.TickRate
	}
	if c.CatchupMaxTicks <= 0 {
		c.CatchupMaxTicks = defaults.CatchupMaxTicks
	}
	if c.CommandCapacity <= 0 {
		c.CommandCapacity = defaults.CommandCapacity
	}
	if c.Replication == (replication.Config{}) {
		c.Replication = defaults.Replication
	}
	if c.ItemScore <= 0 {
		c.ItemScore = defaults.ItemScore
	}
	if c.Seed == "" {
		c.Seed = defaults.Seed
	}
	if c.Metrics == nil {
		c.Metrics = telemetry.NewCounters()
	}
	return c
}

// TickInterval is the fixed simulation step.
func (c HubConfig) TickInterval() time.Duration {
	if c.TickRate <= 0 {
		return time.Second / defaultTickRate
	}
	return time.Second / time.Duration(c.TickRate)
}

func (c HubConfig) loopConfig() sim.LoopConfig {
	return sim.LoopConfig{
		TickRate:        c.TickRate,
		CatchupMaxTicks: c.CatchupMaxTicks,
		CommandCapacity: c.CommandCapacity,
		PerActorLimit:   c.PerActorLimit,
		WarningStep:     c.WarningStep,
	}
}
