package lifecycle

import (
	"context"

	"bombfield/server/logging"
)

const (
	// EventEntitySpawned is emitted when the authority registers a new entity.
	EventEntitySpawned logging.EventType = "lifecycle.entity_spawned"
	// EventEntityDestroyed is emitted when an entity leaves the registry.
	EventEntityDestroyed logging.EventType = "lifecycle.entity_destroyed"
	// EventPlayerJoined is emitted when a participant connects and is assigned a player.
	EventPlayerJoined logging.EventType = "lifecycle.player_joined"
	// EventPlayerDisconnected is emitted when a participant leaves.
	EventPlayerDisconnected logging.EventType = "lifecycle.player_disconnected"
)

// EntitySpawnedPayload captures the spawn position and owner.
type EntitySpawnedPayload struct {
	Owner string  `json:"owner"`
	X     float32 `json:"x"`
	Y     float32 `json:"y"`
	Z     float32 `json:"z"`
}

// EntityDestroyedPayload records why an entity was removed.
type EntityDestroyedPayload struct {
	Reason string `json:"reason"`
}

// PlayerJoinedPayload identifies the connection and its player entity.
type PlayerJoinedPayload struct {
	PlayerID string `json:"playerId"`
}

// PlayerDisconnectedPayload captures the reason a participant left.
type PlayerDisconnectedPayload struct {
	Reason string `json:"reason"`
}

func EntitySpawned(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload EntitySpawnedPayload, extra map[string]any) {
	publish(ctx, pub, EventEntitySpawned, logging.SeverityDebug, tick, actor, payload, extra)
}

func EntityDestroyed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload EntityDestroyedPayload, extra map[string]any) {
	publish(ctx, pub, EventEntityDestroyed, logging.SeverityDebug, tick, actor, payload, extra)
}

// PlayerJoined publishes a player join event.
func PlayerJoined(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload PlayerJoinedPayload, extra map[string]any) {
	publish(ctx, pub, EventPlayerJoined, logging.SeverityInfo, tick, actor, payload, extra)
}

// PlayerDisconnected publishes a player disconnect event.
func PlayerDisconnected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload PlayerDisconnectedPayload, extra map[string]any) {
	publish(ctx, pub, EventPlayerDisconnected, logging.SeverityInfo, tick, actor, payload, extra)
}

func publish(ctx context.Context, pub logging.Publisher, typ logging.EventType, severity logging.Severity, tick uint64, actor logging.EntityRef, payload any, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     typ,
		Tick:     tick,
		Actor:    actor,
		Severity: severity,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	})
}
