package race

import (
	"testing"
	"time"

	"partyline/server/internal/game"
)

func newTestRace(t *testing.T, laps int) (*Machine, time.Time) {
	t.Helper()
	m := New(Config{TrackWidth: 900, TrackHeight: 620, Laps: laps, MatchSeconds: 600})
	m.HandleJoin(game.PlayerSlot{ID: "p1", Name: "one"})
	m.HandleJoin(game.PlayerSlot{ID: "p2", Name: "two"})
	now := time.Unix(5000, 0)
	m.Start(now)
	return m, now
}

// gateCenter returns a point inside checkpoint gate i.
func gateCenter(track Track, i int) game.Vec2 {
	zone := track.Checkpoints[i]
	return game.Vec2{X: zone.X + zone.Width/2, Y: zone.Y + zone.Height/2}
}

func TestThrottleMovesCarAlongSpawnHeading(t *testing.T) {
	m, now := newTestRace(t, 3)
	startX := m.cars["p1"].pos.X

	intents := map[string]game.Intent{
		"p1": {PlayerID: "p1", Throttle: 1},
	}
	for i := 0; i < 60; i++ {
		now = now.Add(time.Second / 60)
		m.Tick(game.TickContext{Tick: uint64(i + 1), Now: now, Delta: 1.0 / 60.0, Intents: intents})
	}

	car := m.cars["p1"]
	if car.pos.X <= startX {
		t.Fatalf("throttled car must advance along +X, went from %.1f to %.1f", startX, car.pos.X)
	}
	if car.speed <= 0 {
		t.Fatalf("throttled car must hold positive speed, got %.1f", car.speed)
	}
	if m.cars["p2"].speed != 0 {
		t.Fatalf("idle car must stay parked")
	}
}

func TestCheckpointsOnlyCountInOrder(t *testing.T) {
	m, now := newTestRace(t, 3)
	car := m.cars["p1"]

	// Driving through gate 2 first is ignored.
	car.pos = gateCenter(m.track, 2)
	m.crossCheckpoints(car, now)
	if car.nextCheckpoint != 0 {
		t.Fatalf("out-of-order gate must not advance progress, next=%d", car.nextCheckpoint)
	}

	car.pos = gateCenter(m.track, 0)
	m.crossCheckpoints(car, now)
	if car.nextCheckpoint != 1 {
		t.Fatalf("gate 0 must advance progress to 1, next=%d", car.nextCheckpoint)
	}

	// Gate 2 is still out of order with gate 1 pending.
	car.pos = gateCenter(m.track, 2)
	m.crossCheckpoints(car, now)
	if car.nextCheckpoint != 1 {
		t.Fatalf("skipping gate 1 must not advance, next=%d", car.nextCheckpoint)
	}
}

func TestFullGateCycleCompletesLap(t *testing.T) {
	m, now := newTestRace(t, 1)
	car := m.cars["p1"]

	for gate := 0; gate < len(m.track.Checkpoints); gate++ {
		now = now.Add(5 * time.Second)
		car.pos = gateCenter(m.track, gate)
		m.crossCheckpoints(car, now)
	}

	if car.lap != 1 {
		t.Fatalf("expected one completed lap, got %d", car.lap)
	}
	if car.nextCheckpoint != 0 {
		t.Fatalf("lap completion must reset to gate 0, next=%d", car.nextCheckpoint)
	}
	if !car.finished {
		t.Fatalf("single-lap race must finish the car")
	}
	if car.bestLap == 0 {
		t.Fatalf("lap completion must record a best lap time")
	}
}

func TestRaceFinishRanksByFinishTime(t *testing.T) {
	m, now := newTestRace(t, 1)
	leader := m.cars["p1"]
	trailer := m.cars["p2"]

	for gate := 0; gate < len(m.track.Checkpoints); gate++ {
		now = now.Add(time.Second)
		leader.pos = gateCenter(m.track, gate)
		m.crossCheckpoints(leader, now)
	}
	for gate := 0; gate < len(m.track.Checkpoints); gate++ {
		now = now.Add(time.Second)
		trailer.pos = gateCenter(m.track, gate)
		m.crossCheckpoints(trailer, now)
	}
	if !leader.finished || !trailer.finished {
		t.Fatalf("both cars should have finished the single lap")
	}

	snap := m.Tick(game.TickContext{Tick: 1, Now: now.Add(time.Second), Delta: 0.016})
	if !m.IsTerminal() {
		t.Fatalf("race must end once every car finished")
	}
	if snap.Phase != game.PhaseFinished {
		t.Fatalf("expected finished phase, got %s", snap.Phase)
	}

	result := m.Result()
	if len(result.Rankings) != 2 {
		t.Fatalf("expected two ranked cars, got %d", len(result.Rankings))
	}
	if result.Rankings[0].PlayerID != "p1" || result.Rankings[0].Rank != 1 {
		t.Fatalf("finisher must rank first, got %+v", result.Rankings[0])
	}
	if result.Rankings[1].PlayerID != "p2" || result.Rankings[1].Rank != 2 {
		t.Fatalf("trailer must rank second, got %+v", result.Rankings[1])
	}
}

func TestDeadlineEndsRaceForSlowCars(t *testing.T) {
	m, now := newTestRace(t, 5)
	m.Tick(game.TickContext{Tick: 1, Now: now.Add(601 * time.Second), Delta: 0.016})
	if !m.IsTerminal() {
		t.Fatalf("race must finish at the deadline even with laps remaining")
	}
	if m.Result().Outcome != game.OutcomeCompleted {
		t.Fatalf("deadline finish is still a completed match, got %s", m.Result().Outcome)
	}
}

func TestSandCapsSpeed(t *testing.T) {
	m, _ := newTestRace(t, 3)
	car := m.cars["p1"]
	sand := m.track.Sand[0]
	car.pos = game.Vec2{X: sand.X + sand.Width/2, Y: sand.Y + sand.Height/2}
	car.speed = maxSpeed

	m.advanceCar(car, game.Intent{Throttle: 1}, time.Unix(5000, 0), 1.0/60.0)
	if car.speed > maxSpeed*sandFactor {
		t.Fatalf("sand must cap speed at %.0f, got %.1f", maxSpeed*sandFactor, car.speed)
	}
}
