package economy

import (
	"context"

	"bombfield/server/logging"
)

const (
	// EventItemCollected is emitted when a shot collects an item.
	EventItemCollected logging.EventType = "economy.item_collected"
	// EventScoreChanged is emitted whenever the shared score moves.
	EventScoreChanged logging.EventType = "economy.score_changed"
)

// ItemCollectedPayload identifies the collected item and who shot it.
type ItemCollectedPayload struct {
	ItemID  string `json:"itemId"`
	Shooter string `json:"shooter,omitempty"`
}

// ScoreChangedPayload carries the delta and the resulting total.
type ScoreChangedPayload struct {
	Delta int64 `json:"delta"`
	Total int64 `json:"total"`
}

// ItemCollected publishes an item collection event.
func ItemCollected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ItemCollectedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventItemCollected,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryGameplay,
		Payload:  payload,
		Extra:    extra,
	})
}

// ScoreChanged publishes a score change event.
func ScoreChanged(ctx context.Context, pub logging.Publisher, tick uint64, payload ScoreChangedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventScoreChanged,
		Tick:     tick,
		Actor:    logging.WorldRef(),
		Severity: logging.SeverityInfo,
		Category: logging.CategoryGameplay,
		Payload:  payload,
		Extra:    extra,
	})
}
