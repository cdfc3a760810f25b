package server

import (
	"time"

	"bombfield/server/internal/sim"
)

// Reasons a staged command never reaches the tick loop.
const (
	CommandRejectUnknownActor   = "unknown_actor"
	CommandRejectInvalidCommand = "invalid_command"
	CommandRejectRateLimited    = "rate_limited"
	CommandRejectQueueLimit     = sim.CommandRejectQueueLimit
	CommandRejectQueueFull      = sim.CommandRejectQueueFull
)

const (
	defaultTickRate        = 50
	defaultCatchupTicks    = 5
	defaultCommandCapacity = 1024
	defaultPerActorLimit   = 32
	defaultWarningStep     = 256
	defaultJournalCapacity = 512
	defaultEnemySpeed      = 2.0
	defaultInitialItems    = 5
	defaultArenaHalfExtent = 4.0
	defaultSpawnHeight     = 0.0
	defaultRespawnDelay    = 2 * time.Second
	playerSpawnHeight      = 0.0
)
