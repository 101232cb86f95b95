package shooter

import (
	"testing"
	"time"

	"partyline/server/internal/game"
)

func newTestMachine(t *testing.T) (*Machine, time.Time) {
	t.Helper()
	m := New(Config{WorldWidth: 800, WorldHeight: 600, BotCount: 0, MatchSeconds: 60, Seed: 42})
	m.HandleJoin(game.PlayerSlot{ID: "p1", Name: "one"})
	m.HandleJoin(game.PlayerSlot{ID: "p2", Name: "two"})
	now := time.Unix(1000, 0)
	m.Start(now)
	return m, now
}

func step(m *Machine, tick uint64, now time.Time, dt float64, intents map[string]game.Intent) game.Snapshot {
	return m.Tick(game.TickContext{Tick: tick, Now: now, Delta: dt, Intents: intents})
}

func TestJoinSpawnsInsideWorld(t *testing.T) {
	m, _ := newTestMachine(t)
	for id, player := range m.players {
		if player.pos.X < 0 || player.pos.X > m.cfg.WorldWidth ||
			player.pos.Y < 0 || player.pos.Y > m.cfg.WorldHeight {
			t.Fatalf("player %s spawned outside the world at %+v", id, player.pos)
		}
		if !player.alive || player.health != maxHealth {
			t.Fatalf("player %s must spawn alive at full health", id)
		}
	}
}

func TestMovementFollowsIntent(t *testing.T) {
	m, now := newTestMachine(t)
	m.obstacles = nil
	m.players["p1"].pos = game.Vec2{X: 100, Y: 300}
	m.players["p2"].pos = game.Vec2{X: 700, Y: 300}

	intents := map[string]game.Intent{
		"p1": {PlayerID: "p1", Move: game.Vec2{X: 1}},
	}
	dt := 1.0 / 60.0
	for i := 0; i < 60; i++ {
		now = now.Add(time.Second / 60)
		step(m, uint64(i+1), now, dt, intents)
	}

	moved := m.players["p1"].pos.X - 100
	if moved < moveSpeed*0.9 || moved > moveSpeed*1.1 {
		t.Fatalf("expected roughly %.0f units of travel in one second, got %.1f", moveSpeed, moved)
	}
	if m.players["p2"].pos.X != 700 {
		t.Fatalf("idle player must not move, got x=%.1f", m.players["p2"].pos.X)
	}
}

func TestBulletKillScoresAndRespawns(t *testing.T) {
	m, now := newTestMachine(t)
	m.obstacles = nil
	shooter := m.players["p1"]
	target := m.players["p2"]
	shooter.pos = game.Vec2{X: 100, Y: 300}
	target.pos = game.Vec2{X: 200, Y: 300}

	intents := map[string]game.Intent{
		"p1": {PlayerID: "p1", Aim: game.Vec2{X: 1}, Fire: true},
	}

	var killedAt time.Time
	for i := 0; i < 600 && target.alive; i++ {
		now = now.Add(50 * time.Millisecond)
		step(m, uint64(i+1), now, 0.05, intents)
	}
	if target.alive {
		t.Fatalf("target should have died under sustained fire")
	}
	killedAt = now

	if shooter.score != scorePlayerKill {
		t.Fatalf("expected kill to award %d points, got %d", scorePlayerKill, shooter.score)
	}

	// Dead players sit out the respawn delay, then return at full health.
	step(m, 1000, killedAt.Add(respawnDelay-time.Second), 0.05, nil)
	if target.alive {
		t.Fatalf("target respawned before the delay elapsed")
	}
	step(m, 1001, killedAt.Add(respawnDelay+time.Second), 0.05, nil)
	if !target.alive || target.health != maxHealth {
		t.Fatalf("target must respawn at full health, alive=%v health=%d", target.alive, target.health)
	}
}

func TestShieldBlocksDamage(t *testing.T) {
	m, now := newTestMachine(t)
	target := m.players["p2"]
	target.shieldUntil = now.Add(time.Minute)

	m.damagePlayer(target, bulletDamage, "p1", now)
	if target.health != maxHealth {
		t.Fatalf("shielded player must not take damage, health=%d", target.health)
	}
}

func TestMatchFinishesAtDeadline(t *testing.T) {
	m, now := newTestMachine(t)
	m.players["p1"].score = 7
	m.players["p2"].score = 3

	snap := step(m, 1, now.Add(61*time.Second), 0.016, nil)
	if !m.IsTerminal() {
		t.Fatalf("machine must be terminal after the deadline")
	}
	if snap.Phase != game.PhaseFinished {
		t.Fatalf("expected finished phase, got %s", snap.Phase)
	}

	result := m.Result()
	if result.Outcome != game.OutcomeCompleted {
		t.Fatalf("expected completed outcome, got %s", result.Outcome)
	}
	if len(result.Rankings) != 2 || result.Rankings[0].PlayerID != "p1" || result.Rankings[0].Rank != 1 {
		t.Fatalf("expected p1 ranked first, got %+v", result.Rankings)
	}
}

func TestSnapshotIsDeterministicForSeed(t *testing.T) {
	build := func() game.Snapshot {
		m := New(Config{WorldWidth: 800, WorldHeight: 600, BotCount: 2, MatchSeconds: 60, Seed: 7})
		m.HandleJoin(game.PlayerSlot{ID: "p1", Name: "one"})
		now := time.Unix(2000, 0)
		m.Start(now)
		var snap game.Snapshot
		for i := 0; i < 30; i++ {
			now = now.Add(time.Second / 60)
			snap = m.Tick(game.TickContext{Tick: uint64(i + 1), Now: now, Delta: 1.0 / 60.0})
		}
		return snap
	}

	a := build().State.(State)
	b := build().State.(State)
	if len(a.Bots) != len(b.Bots) {
		t.Fatalf("bot counts diverged: %d vs %d", len(a.Bots), len(b.Bots))
	}
	for i := range a.Bots {
		if a.Bots[i].Pos != b.Bots[i].Pos {
			t.Fatalf("bot %d position diverged for identical seeds: %+v vs %+v", i, a.Bots[i].Pos, b.Bots[i].Pos)
		}
	}
}
