package game

import (
	"errors"
	"math"
	"sync"
	"time"
)

// Intent is the latest declared input for one player. Fields are game-type
// specific; unused fields stay at their zero value. An intent is valid until
// superseded by a higher-sequence submission from the same player.
type Intent struct {
	PlayerID   string
	Seq        uint64
	ReceivedAt time.Time

	// Shooter.
	Move Vec2
	Aim  Vec2
	Fire bool

	// Race.
	Throttle float64
	Steer    float64

	// Quiz. Answer is -1 while the player has not picked one.
	Answer int
	Ready  bool

	// Tower defence.
	Build *BuildIntent
}

// BuildIntent is a discrete tower command. Machines apply each sequence
// number at most once, so a held register never re-places a tower.
type BuildIntent struct {
	Action    BuildAction `json:"action"`
	TowerType string      `json:"towerType,omitempty"`
	X         float64     `json:"x"`
	Y         float64     `json:"y"`
	TowerID   string      `json:"towerId,omitempty"`
}

type BuildAction string

const (
	BuildPlace   BuildAction = "place"
	BuildUpgrade BuildAction = "upgrade"
	BuildSell    BuildAction = "sell"
)

// Rejection reasons surfaced by Submit.
var (
	ErrUnknownPlayer = errors.New("intent: unknown player")
	ErrStaleIntent   = errors.New("intent: stale sequence")
	ErrOutOfRange    = errors.New("intent: value out of range")
)

// Limits carries the numeric bounds intents are validated against. They are
// derived from the room configuration once at creation.
type Limits struct {
	// MaxAnswerIndex is the exclusive upper bound for quiz answers.
	MaxAnswerIndex int
	// WorldWidth/WorldHeight bound build coordinates.
	WorldWidth  float64
	WorldHeight float64
}

// Allows a little slack for client float rounding on unit vectors.
const unitVectorSlack = 1e-6

// Register is the per-room "latest intent per player" store. Writers are the
// network goroutines; the single reader is the room's tick. It is a
// last-write-wins register, never a queue: burst input buys no extra turns.
type Register struct {
	mu       sync.RWMutex
	gameType GameType
	limits   Limits
	intents  map[string]Intent
}

// NewRegister constructs an empty register for the given game type.
func NewRegister(gameType GameType, limits Limits) *Register {
	return &Register{
		gameType: gameType,
		limits:   limits,
		intents:  make(map[string]Intent),
	}
}

// AddPlayer registers a player id so its submissions are accepted. The
// initial intent is the neutral one.
func (r *Register) AddPlayer(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.intents[playerID]; ok {
		return
	}
	r.intents[playerID] = Intent{PlayerID: playerID, Answer: -1}
}

// RemovePlayer drops a player's slot from the register.
func (r *Register) RemovePlayer(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.intents, playerID)
}

// Submit validates and stores an intent. On rejection the previous valid
// intent is retained untouched.
func (r *Register) Submit(playerID string, intent Intent) error {
	if err := r.validate(intent); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	previous, ok := r.intents[playerID]
	if !ok {
		return ErrUnknownPlayer
	}
	if intent.Seq != 0 && intent.Seq <= previous.Seq {
		return ErrStaleIntent
	}
	intent.PlayerID = playerID
	if intent.Seq == 0 {
		intent.Seq = previous.Seq + 1
	}
	if intent.ReceivedAt.IsZero() {
		intent.ReceivedAt = time.Now()
	}
	r.intents[playerID] = intent
	return nil
}

// Snapshot returns a point-in-time copy of all current intents. The tick
// reads this copy so intents changing mid-tick are never observed.
func (r *Register) Snapshot() map[string]Intent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	copied := make(map[string]Intent, len(r.intents))
	for id, intent := range r.intents {
		copied[id] = intent
	}
	return copied
}

// Len reports how many players currently hold a register slot.
func (r *Register) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.intents)
}

func (r *Register) validate(intent Intent) error {
	switch r.gameType {
	case TypeShooter:
		if !intent.Move.Finite() || !intent.Aim.Finite() {
			return ErrOutOfRange
		}
		if intent.Move.Length() > 1+unitVectorSlack {
			return ErrOutOfRange
		}
		if intent.Aim.Length() > 1+unitVectorSlack {
			return ErrOutOfRange
		}
	case TypeRace:
		if !finiteScalar(intent.Throttle) || !finiteScalar(intent.Steer) {
			return ErrOutOfRange
		}
		if intent.Throttle < -1 || intent.Throttle > 1 {
			return ErrOutOfRange
		}
		if intent.Steer < -1 || intent.Steer > 1 {
			return ErrOutOfRange
		}
	case TypeQuiz:
		if intent.Answer < -1 {
			return ErrOutOfRange
		}
		if r.limits.MaxAnswerIndex > 0 && intent.Answer >= r.limits.MaxAnswerIndex {
			return ErrOutOfRange
		}
	case TypeTowerDefense:
		if intent.Build == nil {
			return nil
		}
		build := intent.Build
		switch build.Action {
		case BuildPlace:
			if !finiteScalar(build.X) || !finiteScalar(build.Y) {
				return ErrOutOfRange
			}
			if build.X < 0 || build.Y < 0 {
				return ErrOutOfRange
			}
			if r.limits.WorldWidth > 0 && build.X > r.limits.WorldWidth {
				return ErrOutOfRange
			}
			if r.limits.WorldHeight > 0 && build.Y > r.limits.WorldHeight {
				return ErrOutOfRange
			}
		case BuildUpgrade, BuildSell:
			if build.TowerID == "" {
				return ErrOutOfRange
			}
		default:
			return ErrOutOfRange
		}
	}
	return nil
}

func finiteScalar(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
