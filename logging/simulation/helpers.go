package simulation

import (
	"context"

	"partyline/server/logging"
)

const (
	// EventTickFault is emitted when a state machine panics during a tick.
	EventTickFault logging.EventType = "simulation.tick_fault"
	// EventRoomFailed is emitted when repeated faults terminate a room.
	EventRoomFailed logging.EventType = "simulation.room_failed"
	// EventMatchFinished is emitted when a room reaches its terminal state.
	EventMatchFinished logging.EventType = "simulation.match_finished"
	// EventTickBudgetExceeded is emitted when a tick overruns its budget.
	EventTickBudgetExceeded logging.EventType = "simulation.tick_budget_exceeded"
)

// TickFaultPayload captures the recovered panic.
type TickFaultPayload struct {
	Error       string `json:"error"`
	Consecutive int    `json:"consecutive"`
}

// RoomFailedPayload captures the fault threshold that fired.
type RoomFailedPayload struct {
	Faults    int `json:"faults"`
	Threshold int `json:"threshold"`
}

// MatchFinishedPayload captures the terminal result summary.
type MatchFinishedPayload struct {
	Outcome string `json:"outcome"`
	Players int    `json:"players"`
}

// BudgetPayload captures tick timing overruns.
type BudgetPayload struct {
	DurationMillis int64 `json:"durationMillis"`
	BudgetMillis   int64 `json:"budgetMillis"`
}

func TickFault(ctx context.Context, pub logging.Publisher, roomID string, tick uint64, payload TickFaultPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventTickFault,
		Tick:     tick,
		Room:     roomID,
		Actor:    logging.EntityRef{ID: roomID, Kind: logging.EntityKindRoom},
		Severity: logging.SeverityError,
		Category: logging.CategorySimulation,
		Payload:  payload,
	})
}

func RoomFailed(ctx context.Context, pub logging.Publisher, roomID string, tick uint64, payload RoomFailedPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventRoomFailed,
		Tick:     tick,
		Room:     roomID,
		Actor:    logging.EntityRef{ID: roomID, Kind: logging.EntityKindRoom},
		Severity: logging.SeverityError,
		Category: logging.CategorySimulation,
		Payload:  payload,
	})
}

func MatchFinished(ctx context.Context, pub logging.Publisher, roomID string, tick uint64, payload MatchFinishedPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventMatchFinished,
		Tick:     tick,
		Room:     roomID,
		Actor:    logging.EntityRef{ID: roomID, Kind: logging.EntityKindRoom},
		Severity: logging.SeverityInfo,
		Category: logging.CategorySimulation,
		Payload:  payload,
	})
}

func TickBudgetExceeded(ctx context.Context, pub logging.Publisher, roomID string, tick uint64, payload BudgetPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventTickBudgetExceeded,
		Tick:     tick,
		Room:     roomID,
		Actor:    logging.EntityRef{ID: roomID, Kind: logging.EntityKindRoom},
		Severity: logging.SeverityWarn,
		Category: logging.CategorySimulation,
		Payload:  payload,
	})
}

func publish(ctx context.Context, pub logging.Publisher, event logging.Event) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, event)
}
