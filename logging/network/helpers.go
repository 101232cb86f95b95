package network

import (
	"context"

	"partyline/server/logging"
)

const (
	// EventSnapshotDropped is emitted when a stalled session misses a tick.
	EventSnapshotDropped logging.EventType = "network.snapshot_dropped"
	// EventJoinRejected is emitted when a bind attempt fails validation.
	EventJoinRejected logging.EventType = "network.join_rejected"
	// EventSessionThrottled is emitted when a session exceeds its inbound
	// message rate and frames start getting discarded.
	EventSessionThrottled logging.EventType = "network.session_throttled"
)

// DropPayload records how many consecutive snapshots a session has missed.
type DropPayload struct {
	Consecutive uint64 `json:"consecutive"`
}

// RejectPayload records the join error returned to the client.
type RejectPayload struct {
	Reason string `json:"reason"`
}

func SnapshotDropped(ctx context.Context, pub logging.Publisher, roomID, sessionID string, payload DropPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventSnapshotDropped,
		Room:     roomID,
		Actor:    logging.EntityRef{ID: sessionID, Kind: logging.EntityKindSession},
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}

func JoinRejected(ctx context.Context, pub logging.Publisher, roomID, sessionID string, payload RejectPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventJoinRejected,
		Room:     roomID,
		Actor:    logging.EntityRef{ID: sessionID, Kind: logging.EntityKindSession},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}

func SessionThrottled(ctx context.Context, pub logging.Publisher, roomID, sessionID string) {
	publish(ctx, pub, logging.Event{
		Type:     EventSessionThrottled,
		Room:     roomID,
		Actor:    logging.EntityRef{ID: sessionID, Kind: logging.EntityKindSession},
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
	})
}

func publish(ctx context.Context, pub logging.Publisher, event logging.Event) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, event)
}
