package towerdef

import (
	"fmt"
	"math"
	"time"

	"partyline/server/internal/game"
)

const (
	towerHalf       = 18.0
	pathClearance   = 30.0
	sellRefund      = 0.6
	interWaveDelay  = 5 * time.Second
	mobSpawnSpacing = 800 * time.Millisecond
)

// TowerSpec is the static catalog entry for one tower type.
type TowerSpec struct {
	Type        string  `json:"type"`
	Cost        int     `json:"cost"`
	Range       float64 `json:"range"`
	Damage      int     `json:"damage"`
	CooldownSec float64 `json:"cooldownSec"`
	UpgradeCost int     `json:"upgradeCost"`
	MaxLevel    int     `json:"maxLevel"`
}

var towerCatalog = map[string]TowerSpec{
	"arrow":  {Type: "arrow", Cost: 50, Range: 110, Damage: 12, CooldownSec: 0.6, UpgradeCost: 40, MaxLevel: 3},
	"cannon": {Type: "cannon", Cost: 90, Range: 90, Damage: 30, CooldownSec: 1.6, UpgradeCost: 70, MaxLevel: 3},
	"frost":  {Type: "frost", Cost: 70, Range: 100, Damage: 6, CooldownSec: 0.9, UpgradeCost: 50, MaxLevel: 2},
}

// Config tunes one tower-defence room.
type Config struct {
	WorldWidth   float64
	WorldHeight  float64
	WaveCount    int
	CastleHealth int
	StartGold    int
}

// DefaultConfig runs eight waves against a 100-health castle.
func DefaultConfig() Config {
	return Config{
		WorldWidth:   800,
		WorldHeight:  600,
		WaveCount:    8,
		CastleHealth: 100,
		StartGold:    120,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.WorldWidth < 300 {
		c.WorldWidth = def.WorldWidth
	}
	if c.WorldHeight < 300 {
		c.WorldHeight = def.WorldHeight
	}
	if c.WaveCount <= 0 {
		c.WaveCount = def.WaveCount
	}
	if c.CastleHealth <= 0 {
		c.CastleHealth = def.CastleHealth
	}
	if c.StartGold < 0 {
		c.StartGold = def.StartGold
	}
	return c
}

type towerState struct {
	id         string
	owner      string
	spec       TowerSpec
	level      int
	pos        game.Vec2
	nextShotAt time.Time
}

type mobState struct {
	id        string
	health    int
	maxHealth int
	speed     float64
	damage    int
	bounty    int
	pos       game.Vec2
	waypoint  int
	slowUntil time.Time
}

type defender struct {
	game.PlayerSlot
	towersBuilt  int
	kills        int
	lastBuildSeq uint64
}

// Machine runs a wave-based cooperative economy: gold and castle health are
// room-level resources, towers belong to the player who placed them.
type Machine struct {
	cfg    Config
	phase  game.Phase
	path   []game.Vec2
	gold   int
	castle int

	players map[string]*defender
	order   []string
	towers  []*towerState
	mobs    []*mobState
	nextID  uint64

	wave          int
	pendingSpawns int
	nextSpawnAt   time.Time
	nextWaveAt    time.Time
	waveActive    bool

	events   []game.Event
	terminal bool
	result   game.Result
}

// New constructs a tower-defence machine in the waiting phase.
func New(cfg Config) *Machine {
	cfg = cfg.normalized()
	return &Machine{
		cfg:     cfg,
		phase:   game.PhaseWaiting,
		path:    buildPath(cfg.WorldWidth, cfg.WorldHeight),
		gold:    cfg.StartGold,
		castle:  cfg.CastleHealth,
		players: make(map[string]*defender),
	}
}

// buildPath lays the fixed S-shaped route mobs walk from the left edge to
// the castle on the right.
func buildPath(width, height float64) []game.Vec2 {
	return []game.Vec2{
		{X: 0, Y: height * 0.2},
		{X: width * 0.35, Y: height * 0.2},
		{X: width * 0.35, Y: height * 0.8},
		{X: width * 0.7, Y: height * 0.8},
		{X: width * 0.7, Y: height * 0.4},
		{X: width, Y: height * 0.4},
	}
}

// Type implements game.Machine.
func (m *Machine) Type() game.GameType { return game.TypeTowerDefense }

// HandleJoin seats a defender.
func (m *Machine) HandleJoin(slot game.PlayerSlot) {
	if _, ok := m.players[slot.ID]; ok {
		return
	}
	m.players[slot.ID] = &defender{PlayerSlot: slot}
	m.order = append(m.order, slot.ID)
}

// HandleLeave removes a defender. Their towers keep defending.
func (m *Machine) HandleLeave(playerID string) {
	delete(m.players, playerID)
	for i, id := range m.order {
		if id == playerID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Start schedules the first wave.
func (m *Machine) Start(now time.Time) {
	if m.phase != game.PhaseWaiting {
		return
	}
	m.phase = game.PhasePlaying
	m.nextWaveAt = now.Add(interWaveDelay)
}

// IsTerminal implements game.Machine.
func (m *Machine) IsTerminal() bool { return m.terminal }

// Result implements game.Machine.
func (m *Machine) Result() game.Result { return m.result }

// Tick applies build commands, spawns and advances mobs, and fires towers.
func (m *Machine) Tick(ctx game.TickContext) game.Snapshot {
	m.events = m.events[:0]

	if m.phase == game.PhasePlaying && !m.terminal {
		m.applyBuilds(ctx)
		m.advanceWaves(ctx.Now)
		m.advanceMobs(ctx.Now, ctx.Delta)
		m.fireTowers(ctx.Now)
		m.checkOutcome()
	}

	return m.snapshot(ctx.Tick, ctx.Now)
}

// applyBuilds consumes each player's build intent at most once per sequence
// number, so the register holding a command never repeats it.
func (m *Machine) applyBuilds(ctx game.TickContext) {
	for _, id := range m.order {
		player := m.players[id]
		intent, ok := ctx.Intents[id]
		if player == nil || !ok || intent.Build == nil {
			continue
		}
		if intent.Seq <= player.lastBuildSeq {
			continue
		}
		player.lastBuildSeq = intent.Seq
		m.applyBuild(player, *intent.Build, ctx.Now)
	}
}

func (m *Machine) applyBuild(player *defender, build game.BuildIntent, now time.Time) {
	deny := func(reason float64) {
		m.events = append(m.events, game.Event{
			Type:   game.EventBuildDenied,
			Player: player.ID,
			X:      build.X,
			Y:      build.Y,
			Value:  reason,
		})
	}

	switch build.Action {
	case game.BuildPlace:
		spec, ok := towerCatalog[build.TowerType]
		if !ok {
			deny(0)
			return
		}
		pos := game.Vec2{X: build.X, Y: build.Y}
		if m.gold < spec.Cost || !m.placeable(pos) {
			deny(1)
			return
		}
		m.gold -= spec.Cost
		m.nextID++
		tower := &towerState{
			id:    fmt.Sprintf("tower-%d", m.nextID),
			owner: player.ID,
			spec:  spec,
			level: 1,
			pos:   pos,
		}
		m.towers = append(m.towers, tower)
		player.towersBuilt++
		m.events = append(m.events, game.Event{
			Type:   game.EventTowerPlaced,
			Player: player.ID,
			Target: tower.id,
			X:      pos.X,
			Y:      pos.Y,
		})

	case game.BuildUpgrade:
		tower := m.towerByID(build.TowerID)
		if tower == nil || tower.level >= tower.spec.MaxLevel || m.gold < tower.spec.UpgradeCost {
			deny(2)
			return
		}
		m.gold -= tower.spec.UpgradeCost
		tower.level++
		m.events = append(m.events, game.Event{
			Type:   game.EventTowerUpgraded,
			Player: player.ID,
			Target: tower.id,
			Value:  float64(tower.level),
		})

	case game.BuildSell:
		tower := m.towerByID(build.TowerID)
		if tower == nil {
			deny(3)
			return
		}
		refund := int(float64(tower.spec.Cost+(tower.level-1)*tower.spec.UpgradeCost) * sellRefund)
		m.gold += refund
		for i, existing := range m.towers {
			if existing == tower {
				m.towers = append(m.towers[:i], m.towers[i+1:]...)
				break
			}
		}
	}
}

func (m *Machine) towerByID(id string) *towerState {
	for _, tower := range m.towers {
		if tower.id == id {
			return tower
		}
	}
	return nil
}

// placeable rejects spots on the mob route or overlapping another tower.
func (m *Machine) placeable(pos game.Vec2) bool {
	if pos.X < towerHalf || pos.X > m.cfg.WorldWidth-towerHalf ||
		pos.Y < towerHalf || pos.Y > m.cfg.WorldHeight-towerHalf {
		return false
	}
	for i := 0; i+1 < len(m.path); i++ {
		if segmentDistance(m.path[i], m.path[i+1], pos) < pathClearance {
			return false
		}
	}
	for _, tower := range m.towers {
		if distance(tower.pos, pos) < towerHalf*2 {
			return false
		}
	}
	return true
}

func (m *Machine) advanceWaves(now time.Time) {
	if m.waveActive {
		if m.pendingSpawns > 0 && !now.Before(m.nextSpawnAt) {
			m.spawnMob(now)
			m.pendingSpawns--
			m.nextSpawnAt = now.Add(mobSpawnSpacing)
		}
		if m.pendingSpawns == 0 && len(m.mobs) == 0 {
			m.waveActive = false
			m.events = append(m.events, game.Event{
				Type:  game.EventWaveCleared,
				Value: float64(m.wave),
			})
			m.nextWaveAt = now.Add(interWaveDelay)
		}
		return
	}

	if m.wave >= m.cfg.WaveCount || now.Before(m.nextWaveAt) {
		return
	}
	m.wave++
	m.waveActive = true
	m.pendingSpawns = waveMobCount(m.wave)
	m.nextSpawnAt = now
	m.events = append(m.events, game.Event{
		Type:  game.EventWaveStarted,
		Value: float64(m.wave),
	})
}

func waveMobCount(wave int) int {
	return 4 + wave*2
}

func (m *Machine) spawnMob(now time.Time) {
	m.nextID++
	health := 24 + m.wave*10
	m.mobs = append(m.mobs, &mobState{
		id:        fmt.Sprintf("mob-%d", m.nextID),
		health:    health,
		maxHealth: health,
		speed:     55 + float64(m.wave)*4,
		damage:    5 + m.wave/3,
		bounty:    8 + m.wave,
		pos:       m.path[0],
		waypoint:  1,
	})
}

// advanceMobs walks each mob along the route. A mob reaching the end costs
// the castle its damage and despawns.
func (m *Machine) advanceMobs(now time.Time, dt float64) {
	kept := m.mobs[:0]
	for _, mob := range m.mobs {
		speed := mob.speed
		if now.Before(mob.slowUntil) {
			speed *= 0.5
		}
		remaining := speed * dt
		for remaining > 0 && mob.waypoint < len(m.path) {
			target := m.path[mob.waypoint]
			step := distance(mob.pos, target)
			if step <= remaining {
				mob.pos = target
				mob.waypoint++
				remaining -= step
				continue
			}
			dir := game.Vec2{X: target.X - mob.pos.X, Y: target.Y - mob.pos.Y}.Normalized()
			mob.pos = game.Vec2{X: mob.pos.X + dir.X*remaining, Y: mob.pos.Y + dir.Y*remaining}
			remaining = 0
		}

		if mob.waypoint >= len(m.path) {
			m.castle -= mob.damage
			m.events = append(m.events, game.Event{
				Type:   game.EventCastleHit,
				Target: mob.id,
				Value:  float64(mob.damage),
			})
			continue
		}
		kept = append(kept, mob)
	}
	m.mobs = kept
}

// fireTowers lets every ready tower shoot the mob furthest along the route
// inside its range.
func (m *Machine) fireTowers(now time.Time) {
	for _, tower := range m.towers {
		if now.Before(tower.nextShotAt) {
			continue
		}
		target := m.bestTarget(tower)
		if target == nil {
			continue
		}
		damage := tower.spec.Damage * tower.level
		target.health -= damage
		if tower.spec.Type == "frost" {
			target.slowUntil = now.Add(1500 * time.Millisecond)
		}
		tower.nextShotAt = now.Add(time.Duration(tower.spec.CooldownSec * float64(time.Second)))

		if target.health <= 0 {
			m.gold += target.bounty
			if owner, ok := m.players[tower.owner]; ok {
				owner.kills++
			}
			m.events = append(m.events, game.Event{
				Type:   game.EventMobKilled,
				Player: tower.owner,
				Target: target.id,
				X:      target.pos.X,
				Y:      target.pos.Y,
				Value:  float64(target.bounty),
			})
			m.removeMob(target)
		}
	}
}

func (m *Machine) bestTarget(tower *towerState) *mobState {
	var best *mobState
	bestProgress := -1.0
	for _, mob := range m.mobs {
		if distance(tower.pos, mob.pos) > tower.spec.Range {
			continue
		}
		progress := float64(mob.waypoint)*1e6 - distance(mob.pos, m.path[min(mob.waypoint, len(m.path)-1)])
		if progress > bestProgress {
			bestProgress = progress
			best = mob
		}
	}
	return best
}

func (m *Machine) removeMob(target *mobState) {
	for i, mob := range m.mobs {
		if mob == target {
			m.mobs = append(m.mobs[:i], m.mobs[i+1:]...)
			return
		}
	}
}

func (m *Machine) checkOutcome() {
	if m.castle <= 0 {
		m.castle = 0
		m.finish(game.OutcomeDefeat)
		return
	}
	if m.wave >= m.cfg.WaveCount && !m.waveActive && len(m.mobs) == 0 {
		m.finish(game.OutcomeVictory)
	}
}

func (m *Machine) finish(outcome game.Outcome) {
	m.phase = game.PhaseFinished
	m.terminal = true
	entries := make([]game.PlayerResult, 0, len(m.players))
	for _, player := range m.players {
		entries = append(entries, game.PlayerResult{
			PlayerID: player.ID,
			Name:     player.Name,
			Score:    player.kills,
		})
	}
	m.result = game.Result{
		Outcome:  outcome,
		Rankings: game.RankByScore(entries),
	}
}

func distance(a, b game.Vec2) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// segmentDistance is the distance from point p to segment ab.
func segmentDistance(a, b, p game.Vec2) float64 {
	abx, aby := b.X-a.X, b.Y-a.Y
	lengthSq := abx*abx + aby*aby
	if lengthSq == 0 {
		return distance(a, p)
	}
	t := ((p.X-a.X)*abx + (p.Y-a.Y)*aby) / lengthSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return distance(game.Vec2{X: a.X + t*abx, Y: a.Y + t*aby}, p)
}
