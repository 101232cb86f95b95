package race

import (
	"math"
	"sort"
	"time"

	"partyline/server/internal/game"
)

const (
	carHalf      = 10.0
	acceleration = 240.0 // units/s^2 at full throttle
	brakeFactor  = 2.0
	maxSpeed     = 320.0
	reverseSpeed = 90.0
	dragPerSec   = 1.2  // fraction of speed shed per second coasting
	turnRate     = 3.2  // radians/s at full steer
	sandFactor   = 0.45 // speed cap multiplier on sand
	bounceFactor = 0.35 // speed kept after hitting a barrier

	scorePerLap        = 10
	scorePerCheckpoint = 1
)

// Config tunes one race room.
type Config struct {
	TrackWidth   float64
	TrackHeight  float64
	Laps         int
	MatchSeconds int
}

// DefaultConfig returns the standard circuit.
func DefaultConfig() Config {
	return Config{
		TrackWidth:   900,
		TrackHeight:  620,
		Laps:         3,
		MatchSeconds: 300,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.TrackWidth < 400 {
		c.TrackWidth = def.TrackWidth
	}
	if c.TrackHeight < 300 {
		c.TrackHeight = def.TrackHeight
	}
	if c.Laps <= 0 {
		c.Laps = def.Laps
	}
	if c.MatchSeconds <= 0 {
		c.MatchSeconds = def.MatchSeconds
	}
	return c
}

type carState struct {
	game.PlayerSlot
	pos   game.Vec2
	angle float64
	speed float64

	nextCheckpoint int
	lap            int
	lapStartedAt   time.Time
	bestLap        time.Duration
	progressAt     time.Time

	finished   bool
	finishedAt time.Time
}

// Machine runs a checkpoint-ordered circuit race. Crossing gate k+1 before k
// is silently ignored; rank is laps, then checkpoint progress, then arrival
// time at the furthest checkpoint.
type Machine struct {
	cfg      Config
	track    Track
	phase    game.Phase
	deadline time.Time
	cars     map[string]*carState
	order    []string
	events   []game.Event

	terminal bool
	result   game.Result
}

// New constructs a race machine in the waiting phase.
func New(cfg Config) *Machine {
	cfg = cfg.normalized()
	return &Machine{
		cfg:   cfg,
		track: buildTrack(cfg.TrackWidth, cfg.TrackHeight),
		phase: game.PhaseWaiting,
		cars:  make(map[string]*carState),
	}
}

// Type implements game.Machine.
func (m *Machine) Type() game.GameType { return game.TypeRace }

// HandleJoin lines a new car up on the grid.
func (m *Machine) HandleJoin(slot game.PlayerSlot) {
	if _, ok := m.cars[slot.ID]; ok {
		return
	}
	offset := float64(len(m.order)) * (carHalf*2 + 6)
	m.cars[slot.ID] = &carState{
		PlayerSlot: slot,
		pos:        game.Vec2{X: m.track.Spawn.X - offset, Y: m.track.Spawn.Y},
		angle:      m.track.SpawnAngle,
	}
	m.order = append(m.order, slot.ID)
}

// HandleLeave removes a car from the grid.
func (m *Machine) HandleLeave(playerID string) {
	delete(m.cars, playerID)
	for i, id := range m.order {
		if id == playerID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Start drops the flag.
func (m *Machine) Start(now time.Time) {
	if m.phase != game.PhaseWaiting {
		return
	}
	m.phase = game.PhasePlaying
	m.deadline = now.Add(time.Duration(m.cfg.MatchSeconds) * time.Second)
	for _, car := range m.cars {
		car.lapStartedAt = now
		car.progressAt = now
	}
}

// IsTerminal implements game.Machine.
func (m *Machine) IsTerminal() bool { return m.terminal }

// Result implements game.Machine.
func (m *Machine) Result() game.Result { return m.result }

// Tick advances every car by one physics step.
func (m *Machine) Tick(ctx game.TickContext) game.Snapshot {
	m.events = m.events[:0]

	if m.phase == game.PhasePlaying && !m.terminal {
		for _, id := range m.order {
			car := m.cars[id]
			if car == nil || car.finished {
				continue
			}
			m.advanceCar(car, ctx.Intents[id], ctx.Now, ctx.Delta)
		}
		m.checkFinish(ctx.Now)
	}

	return m.snapshot(ctx.Tick, ctx.Now)
}

// advanceCar integrates the vehicle model: throttle drives acceleration,
// steer turns proportionally to speed direction, drag coasts the car down,
// sand caps speed, barriers bounce.
func (m *Machine) advanceCar(car *carState, intent game.Intent, now time.Time, dt float64) {
	throttle := clamp(intent.Throttle, -1, 1)
	steer := clamp(intent.Steer, -1, 1)

	if throttle > 0 {
		car.speed += throttle * acceleration * dt
	} else if throttle < 0 {
		// Braking first, then reverse.
		car.speed += throttle * acceleration * brakeFactor * dt
	}

	drag := 1 - dragPerSec*dt
	if drag < 0 {
		drag = 0
	}
	car.speed *= drag

	limit := maxSpeed
	if m.track.inSand(car.pos) {
		limit = maxSpeed * sandFactor
	}
	car.speed = clamp(car.speed, -reverseSpeed, limit)

	if car.speed != 0 {
		direction := 1.0
		if car.speed < 0 {
			direction = -1
		}
		car.angle += steer * turnRate * dt * direction
	}

	next := game.Vec2{
		X: car.pos.X + math.Cos(car.angle)*car.speed*dt,
		Y: car.pos.Y + math.Sin(car.angle)*car.speed*dt,
	}

	if m.track.hitsBarrier(next, carHalf) {
		m.events = append(m.events, game.Event{
			Type:   game.EventCollision,
			Player: car.ID,
			X:      car.pos.X,
			Y:      car.pos.Y,
		})
		car.speed = -car.speed * bounceFactor
		return
	}
	car.pos = next

	m.crossCheckpoints(car, now)
}

// crossCheckpoints advances lap progress only when gates are hit in order.
func (m *Machine) crossCheckpoints(car *carState, now time.Time) {
	gate := m.track.checkpointAt(car.pos)
	if gate < 0 || gate != car.nextCheckpoint {
		// Out-of-order crossings are ignored, not penalized.
		return
	}
	car.nextCheckpoint++
	car.progressAt = now
	m.events = append(m.events, game.Event{
		Type:   game.EventCheckpoint,
		Player: car.ID,
		Value:  float64(gate),
	})

	if car.nextCheckpoint < len(m.track.Checkpoints) {
		return
	}

	// All gates crossed: the lap completes back at gate zero.
	car.nextCheckpoint = 0
	car.lap++
	lapTime := now.Sub(car.lapStartedAt)
	if car.bestLap == 0 || lapTime < car.bestLap {
		car.bestLap = lapTime
	}
	car.lapStartedAt = now
	m.events = append(m.events, game.Event{
		Type:   game.EventLapCompleted,
		Player: car.ID,
		Value:  float64(car.lap),
	})

	if car.lap >= m.cfg.Laps {
		car.finished = true
		car.finishedAt = now
		m.events = append(m.events, game.Event{
			Type:   game.EventRaceFinished,
			Player: car.ID,
		})
	}
}

func (m *Machine) checkFinish(now time.Time) {
	if len(m.cars) == 0 {
		return
	}
	allDone := true
	for _, car := range m.cars {
		if !car.finished {
			allDone = false
			break
		}
	}
	if !allDone && now.Before(m.deadline) {
		return
	}
	m.finish()
}

// rankedIDs orders cars by lap, then checkpoint progress, then who reached
// the furthest checkpoint first.
func (m *Machine) rankedIDs() []string {
	ids := make([]string, len(m.order))
	copy(ids, m.order)
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := m.cars[ids[i]], m.cars[ids[j]]
		if a.finished != b.finished {
			return a.finished
		}
		if a.finished && b.finished {
			return a.finishedAt.Before(b.finishedAt)
		}
		if a.lap != b.lap {
			return a.lap > b.lap
		}
		if a.nextCheckpoint != b.nextCheckpoint {
			return a.nextCheckpoint > b.nextCheckpoint
		}
		return a.progressAt.Before(b.progressAt)
	})
	return ids
}

func (m *Machine) finish() {
	m.phase = game.PhaseFinished
	m.terminal = true

	ranked := m.rankedIDs()
	rankings := make([]game.PlayerResult, 0, len(ranked))
	for i, id := range ranked {
		car := m.cars[id]
		rankings = append(rankings, game.PlayerResult{
			PlayerID: id,
			Name:     car.Name,
			Score:    car.lap*scorePerLap + car.nextCheckpoint*scorePerCheckpoint,
			Rank:     i + 1,
		})
	}
	m.result = game.Result{Outcome: game.OutcomeCompleted, Rankings: rankings}
}

func (m *Machine) snapshot(tick uint64, now time.Time) game.Snapshot {
	ranked := m.rankedIDs()
	rankOf := make(map[string]int, len(ranked))
	for i, id := range ranked {
		rankOf[id] = i + 1
	}

	views := make([]game.PlayerView, 0, len(m.order))
	cars := make([]CarState, 0, len(m.order))
	for _, id := range m.order {
		car, ok := m.cars[id]
		if !ok {
			continue
		}
		views = append(views, game.PlayerView{
			ID:    car.ID,
			Name:  car.Name,
			Color: car.Color,
			Score: car.lap*scorePerLap + car.nextCheckpoint*scorePerCheckpoint,
		})
		lapTime := 0.0
		if m.phase == game.PhasePlaying && !car.finished {
			lapTime = now.Sub(car.lapStartedAt).Seconds()
		}
		cars = append(cars, CarState{
			ID:             car.ID,
			Pos:            car.pos,
			Angle:          car.angle,
			Speed:          car.speed,
			Lap:            car.lap,
			NextCheckpoint: car.nextCheckpoint,
			LapTime:        lapTime,
			BestLap:        car.bestLap.Seconds(),
			Rank:           rankOf[id],
			Finished:       car.finished,
			OnSand:         m.track.inSand(car.pos),
		})
	}

	timeLeft := 0.0
	if m.phase == game.PhasePlaying {
		timeLeft = m.deadline.Sub(now).Seconds()
		if timeLeft < 0 {
			timeLeft = 0
		}
	}

	events := make([]game.Event, len(m.events))
	copy(events, m.events)

	return game.Snapshot{
		Tick:    tick,
		Phase:   m.phase,
		Players: views,
		Events:  events,
		State: State{
			Track:    m.track,
			Laps:     m.cfg.Laps,
			TimeLeft: timeLeft,
			Cars:     cars,
		},
	}
}

// State is the race snapshot payload.
type State struct {
	Track    Track      `json:"track"`
	Laps     int        `json:"laps"`
	TimeLeft float64    `json:"timeLeft"`
	Cars     []CarState `json:"cars"`
}

type CarState struct {
	ID             string    `json:"id"`
	Pos            game.Vec2 `json:"pos"`
	Angle          float64   `json:"angle"`
	Speed          float64   `json:"speed"`
	Lap            int       `json:"lap"`
	NextCheckpoint int       `json:"nextCheckpoint"`
	LapTime        float64   `json:"lapTime"`
	BestLap        float64   `json:"bestLap,omitempty"`
	Rank           int       `json:"rank"`
	Finished       bool      `json:"finished"`
	OnSand         bool      `json:"onSand,omitempty"`
}

var _ game.Machine = (*Machine)(nil)
