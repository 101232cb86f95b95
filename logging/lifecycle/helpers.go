package lifecycle

import (
	"context"

	"partyline/server/logging"
)

const (
	// EventRoomCreated is emitted when a display client opens a new room.
	EventRoomCreated logging.EventType = "lifecycle.room_created"
	// EventRoomClosed is emitted when a room is torn down.
	EventRoomClosed logging.EventType = "lifecycle.room_closed"
	// EventPlayerJoined is emitted when a controller binds a player slot.
	EventPlayerJoined logging.EventType = "lifecycle.player_joined"
	// EventPlayerLeft is emitted when a slot is removed for good.
	EventPlayerLeft logging.EventType = "lifecycle.player_left"
	// EventPlayerReconnected is emitted when a controller rebinds within the
	// reconnect grace window.
	EventPlayerReconnected logging.EventType = "lifecycle.player_reconnected"
)

// RoomCreatedPayload captures the configuration a room was opened with.
type RoomCreatedPayload struct {
	GameType   string `json:"gameType"`
	MaxPlayers int    `json:"maxPlayers"`
	HostPlays  bool   `json:"hostPlays"`
	Protected  bool   `json:"protected"`
}

// RoomClosedPayload captures why a room went away.
type RoomClosedPayload struct {
	Reason string `json:"reason"`
}

// PlayerPayload captures join/leave metadata.
type PlayerPayload struct {
	Name   string `json:"name"`
	Reason string `json:"reason,omitempty"`
}

func RoomCreated(ctx context.Context, pub logging.Publisher, roomID string, payload RoomCreatedPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventRoomCreated,
		Room:     roomID,
		Actor:    logging.EntityRef{ID: roomID, Kind: logging.EntityKindRoom},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
	})
}

func RoomClosed(ctx context.Context, pub logging.Publisher, roomID string, payload RoomClosedPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventRoomClosed,
		Room:     roomID,
		Actor:    logging.EntityRef{ID: roomID, Kind: logging.EntityKindRoom},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
	})
}

func PlayerJoined(ctx context.Context, pub logging.Publisher, roomID, playerID string, payload PlayerPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventPlayerJoined,
		Room:     roomID,
		Actor:    logging.EntityRef{ID: playerID, Kind: logging.EntityKindPlayer},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
	})
}

func PlayerLeft(ctx context.Context, pub logging.Publisher, roomID, playerID string, payload PlayerPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventPlayerLeft,
		Room:     roomID,
		Actor:    logging.EntityRef{ID: playerID, Kind: logging.EntityKindPlayer},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
	})
}

func PlayerReconnected(ctx context.Context, pub logging.Publisher, roomID, playerID string) {
	publish(ctx, pub, logging.Event{
		Type:     EventPlayerReconnected,
		Room:     roomID,
		Actor:    logging.EntityRef{ID: playerID, Kind: logging.EntityKindPlayer},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
	})
}

func publish(ctx context.Context, pub logging.Publisher, event logging.Event) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, event)
}
