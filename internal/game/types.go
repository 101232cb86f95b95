package game

import (
	"math"
	"time"
)

// GameType selects which state machine a room runs. It is fixed at room
// creation and never switched afterwards.
type GameType string

const (
	TypeShooter      GameType = "shooter"
	TypeRace         GameType = "race"
	TypeQuiz         GameType = "quiz"
	TypeTowerDefense GameType = "towerdefense"
)

// ParseGameType validates a client-supplied game type string.
func ParseGameType(value string) (GameType, bool) {
	switch GameType(value) {
	case TypeShooter, TypeRace, TypeQuiz, TypeTowerDefense:
		return GameType(value), true
	default:
		return "", false
	}
}

// Phase is the lifecycle state shared by rooms and their machines. It only
// ever moves forward: waiting, playing, finished.
type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhasePlaying  Phase = "playing"
	PhaseFinished Phase = "finished"
)

// Vec2 is a 2D vector in world units.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Length returns the vector magnitude.
func (v Vec2) Length() float64 {
	return math.Hypot(v.X, v.Y)
}

// Normalized scales the vector to unit length, or returns the zero vector.
func (v Vec2) Normalized() Vec2 {
	length := v.Length()
	if length == 0 {
		return Vec2{}
	}
	return Vec2{X: v.X / length, Y: v.Y / length}
}

// Finite reports whether both components are real numbers.
func (v Vec2) Finite() bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) && !math.IsNaN(v.Y) && !math.IsInf(v.Y, 0)
}

// PlayerSlot identifies one controller-bound participant of a room.
type PlayerSlot struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Host  bool   `json:"host,omitempty"`
}

// PlayerView is the scoreboard entry every snapshot carries regardless of
// game type.
type PlayerView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Score int    `json:"score"`
}

// Snapshot is a complete, tick-consistent description of a room's simulated
// state. State carries the game-type payload; Events carries the one-shot
// occurrences of this tick that receivers must not re-derive.
type Snapshot struct {
	Tick    uint64       `json:"t"`
	Phase   Phase        `json:"phase"`
	Players []PlayerView `json:"players"`
	State   any          `json:"state"`
	Events  []Event      `json:"events,omitempty"`
}

// TickContext is the input handed to a machine for one step. Intents is a
// point-in-time copy, never a live reference.
type TickContext struct {
	Tick    uint64
	Now     time.Time
	Delta   float64
	Intents map[string]Intent
}

// Result summarizes a finished match for downstream consumers.
type Result struct {
	Outcome  Outcome        `json:"outcome"`
	Rankings []PlayerResult `json:"rankings"`
}

// Outcome classifies how a match ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeVictory   Outcome = "victory"
	OutcomeDefeat    Outcome = "defeat"
	OutcomeAborted   Outcome = "aborted"
)

// PlayerResult is one entry of the final ranking.
type PlayerResult struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Rank     int    `json:"rank"`
}

// Machine is the uniform per-game-type simulation contract. A machine owns
// all entity state for its room and is only ever touched from the room's
// tick goroutine.
type Machine interface {
	Type() GameType

	// HandleJoin spawns state for a new player slot. Called at the tick
	// boundary, never from a network goroutine.
	HandleJoin(slot PlayerSlot)

	// HandleLeave tears down a player's state.
	HandleLeave(playerID string)

	// Start moves the machine out of the waiting phase. Machines may also
	// start themselves (the quiz does, once everyone is ready).
	Start(now time.Time)

	// Tick advances the simulation by one step and returns the snapshot for
	// ctx.Tick.
	Tick(ctx TickContext) Snapshot

	// IsTerminal reports whether the match has ended.
	IsTerminal() bool

	// Result returns the final outcome. Only meaningful once IsTerminal
	// reports true.
	Result() Result
}

// A small palette assigned to joining players in slot order.
var slotColors = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8",
	"#f58231", "#911eb4", "#46f0f0", "#f032e6",
}

// SlotColor picks a stable color for the nth slot of a room.
func SlotColor(index int) string {
	if index < 0 {
		index = 0
	}
	return slotColors[index%len(slotColors)]
}
