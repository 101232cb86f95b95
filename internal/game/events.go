package game

// EventType names a discrete, one-shot occurrence inside a tick.
type EventType string

const (
	EventPlayerHit    EventType = "playerHit"
	EventPlayerKilled EventType = "playerKilled"
	EventBotKilled    EventType = "botKilled"
	EventCollision    EventType = "collision"
	EventEffectGained EventType = "effectGained"

	EventCheckpoint   EventType = "checkpoint"
	EventLapCompleted EventType = "lapCompleted"
	EventRaceFinished EventType = "raceFinished"

	EventRoundStarted  EventType = "roundStarted"
	EventRoundRevealed EventType = "roundRevealed"

	EventWaveStarted   EventType = "waveStarted"
	EventWaveCleared   EventType = "waveCleared"
	EventCastleHit     EventType = "castleHit"
	EventMobKilled     EventType = "mobKilled"
	EventTowerPlaced   EventType = "towerPlaced"
	EventTowerUpgraded EventType = "towerUpgraded"
	EventBuildDenied   EventType = "buildDenied"

	EventMatchFinished EventType = "matchFinished"
)

// Event accompanies a snapshot for effects the display should play exactly
// once (particle bursts, sounds) instead of re-deriving from state diffs.
type Event struct {
	Type   EventType `json:"type"`
	Player string    `json:"player,omitempty"`
	Target string    `json:"target,omitempty"`
	X      float64   `json:"x,omitempty"`
	Y      float64   `json:"y,omitempty"`
	Value  float64   `json:"value,omitempty"`
}
