// Package intake stages commands received from participant connections.
package intake

import (
	"time"

	"bombfield/server"
	"bombfield/server/internal/net/proto"
	"bombfield/server/internal/sim"
)

// Engine is the command queue of the authority.
type Engine interface {
	Enqueue(cmd sim.Command) (bool, string)
}

type CommandContext struct {
	Engine    Engine
	Connected func(sim.Owner) bool
	Tick      func() uint64
	Now       func() time.Time
}

// StageClientCommand converts a wire frame into a command sent by owner and
// queues it for the next tick. The sender is always the connection's owner;
// nothing in the frame can change it. Authority over the target is checked
// later, on the tick.
func StageClientCommand(ctx CommandContext, owner sim.Owner, frame proto.CommandFrame) (sim.Command, bool, string) {
	var zero sim.Command

	command, ok := proto.ClientCommand(frame)
	if !ok {
		return zero, false, server.CommandRejectInvalidCommand
	}
	if owner == "" || owner.IsServer() {
		return zero, false, server.CommandRejectUnknownActor
	}
	if ctx.Connected != nil && !ctx.Connected(owner) {
		return zero, false, server.CommandRejectUnknownActor
	}

	command.Sender = owner
	if ctx.Tick != nil {
		command.OriginTick = ctx.Tick()
	}
	if ctx.Now != nil {
		command.IssuedAt = ctx.Now()
	} else {
		command.IssuedAt = time.Now()
	}

	if ctx.Engine == nil {
		return zero, false, server.CommandRejectQueueFull
	}
	if ok, reason := ctx.Engine.Enqueue(command); !ok {
		return zero, false, reason
	}
	return command, true, ""
}
