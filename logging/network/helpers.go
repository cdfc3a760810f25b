package network

import (
	"context"

	"bombfield/server/logging"
)

const (
	// EventCommandRejected is emitted when the authority refuses a command.
	EventCommandRejected logging.EventType = "network.command_rejected"
	// EventMessageDropped is emitted when an inbound frame cannot be decoded or staged.
	EventMessageDropped logging.EventType = "network.message_dropped"
)

// CommandRejectedPayload names the command and the rejection reason.
type CommandRejectedPayload struct {
	Command string `json:"command"`
	Target  uint64 `json:"target,omitempty"`
	Reason  string `json:"reason"`
}

// MessageDroppedPayload describes an inbound frame that never became a command.
type MessageDroppedPayload struct {
	Type   string `json:"type,omitempty"`
	Reason string `json:"reason"`
}

// CommandRejected publishes a debug event for a refused command. Rejections
// are never reported to the sender.
func CommandRejected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload CommandRejectedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventCommandRejected,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}

// MessageDropped publishes a debug event for an undeliverable inbound frame.
func MessageDropped(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload MessageDroppedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventMessageDropped,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}
