package shooter

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"partyline/server/internal/game"
)

const (
	playerHalf      = 14.0
	moveSpeed       = 180.0 // world units per second
	boostSpeed      = 260.0
	maxHealth       = 100
	respawnDelay    = 3 * time.Second
	fireCooldown    = 300 * time.Millisecond
	bulletDamage    = 20
	scorePlayerKill = 5
	scoreBotKill    = 2

	pickupHalf     = 10.0
	pickupInterval = 10 * time.Second
	effectDuration = 6 * time.Second
	maxPickups     = 3

	spawnMargin = 40.0
)

// Config tunes one shooter room.
type Config struct {
	WorldWidth   float64
	WorldHeight  float64
	BotCount     int
	MatchSeconds int
	Seed         int64
}

// DefaultConfig returns the tuning used when the display sends none.
func DefaultConfig() Config {
	return Config{
		WorldWidth:   800,
		WorldHeight:  600,
		BotCount:     3,
		MatchSeconds: 180,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.WorldWidth < 200 {
		c.WorldWidth = def.WorldWidth
	}
	if c.WorldHeight < 200 {
		c.WorldHeight = def.WorldHeight
	}
	if c.BotCount < 0 {
		c.BotCount = def.BotCount
	}
	if c.MatchSeconds <= 0 {
		c.MatchSeconds = def.MatchSeconds
	}
	return c
}

type playerState struct {
	game.PlayerSlot
	pos         game.Vec2
	facing      game.Vec2
	health      int
	score       int
	alive       bool
	respawnAt   time.Time
	nextFireAt  time.Time
	shieldUntil time.Time
	speedUntil  time.Time
}

type effectKind string

const (
	effectShield effectKind = "shield"
	effectSpeed  effectKind = "speed"
)

type pickupState struct {
	id   string
	kind effectKind
	pos  game.Vec2
}

// Machine runs a free-for-all arena: players and bots, bullets, static
// obstacles, timed shield/speed effects, score by kills.
type Machine struct {
	cfg       Config
	rng       *rand.Rand
	phase     game.Phase
	deadline  time.Time
	players   map[string]*playerState
	order     []string
	bots      []*botState
	bullets   []*bulletState
	pickups   []*pickupState
	obstacles []Obstacle
	nextID    uint64

	nextPickupAt time.Time
	events       []game.Event

	terminal bool
	result   game.Result
}

// New constructs a shooter machine in the waiting phase.
func New(cfg Config) *Machine {
	cfg = cfg.normalized()
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	m := &Machine{
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(seed)),
		phase:   game.PhaseWaiting,
		players: make(map[string]*playerState),
	}
	m.obstacles = generateObstacles(m.rng, cfg)
	return m
}

// Type implements game.Machine.
func (m *Machine) Type() game.GameType { return game.TypeShooter }

// HandleJoin spawns a player at a free position.
func (m *Machine) HandleJoin(slot game.PlayerSlot) {
	if _, ok := m.players[slot.ID]; ok {
		return
	}
	m.players[slot.ID] = &playerState{
		PlayerSlot: slot,
		pos:        m.freeSpawn(),
		facing:     game.Vec2{X: 1},
		health:     maxHealth,
		alive:      true,
	}
	m.order = append(m.order, slot.ID)
}

// HandleLeave removes a player and its bullets' ownership bookkeeping.
func (m *Machine) HandleLeave(playerID string) {
	delete(m.players, playerID)
	for i, id := range m.order {
		if id == playerID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Start spawns the bots and arms the match timer.
func (m *Machine) Start(now time.Time) {
	if m.phase != game.PhaseWaiting {
		return
	}
	m.phase = game.PhasePlaying
	m.deadline = now.Add(time.Duration(m.cfg.MatchSeconds) * time.Second)
	m.nextPickupAt = now.Add(pickupInterval)
	for i := 0; i < m.cfg.BotCount; i++ {
		m.bots = append(m.bots, m.newBot())
	}
}

// IsTerminal implements game.Machine.
func (m *Machine) IsTerminal() bool { return m.terminal }

// Result implements game.Machine.
func (m *Machine) Result() game.Result { return m.result }

// Tick advances the arena by one step.
func (m *Machine) Tick(ctx game.TickContext) game.Snapshot {
	m.events = m.events[:0]

	if m.phase == game.PhasePlaying && !m.terminal {
		m.advancePlayers(ctx)
		m.advanceBots(ctx)
		m.advanceBullets(ctx)
		m.advancePickups(ctx.Now)
		if !ctx.Now.Before(m.deadline) {
			m.finish()
		}
	}

	return m.snapshot(ctx.Tick, ctx.Now)
}

func (m *Machine) advancePlayers(ctx game.TickContext) {
	for id, player := range m.players {
		if !player.alive {
			if !ctx.Now.Before(player.respawnAt) {
				player.alive = true
				player.health = maxHealth
				player.pos = m.freeSpawn()
			}
			continue
		}

		intent := ctx.Intents[id]
		move := intent.Move
		if move.Length() > 1 {
			move = move.Normalized()
		}
		speed := moveSpeed
		if ctx.Now.Before(player.speedUntil) {
			speed = boostSpeed
		}
		next := game.Vec2{
			X: player.pos.X + move.X*speed*ctx.Delta,
			Y: player.pos.Y + move.Y*speed*ctx.Delta,
		}
		player.pos = m.resolveMove(player.pos, next)

		if aim := intent.Aim; aim.Length() > 0.1 {
			player.facing = aim.Normalized()
		} else if move.Length() > 0.1 {
			player.facing = move.Normalized()
		}

		if intent.Fire && !ctx.Now.Before(player.nextFireAt) {
			m.spawnBullet(player, ctx.Now)
			player.nextFireAt = ctx.Now.Add(fireCooldown)
		}
	}
}

func (m *Machine) advancePickups(now time.Time) {
	if !now.Before(m.nextPickupAt) && len(m.pickups) < maxPickups {
		kind := effectShield
		if m.rng.Intn(2) == 0 {
			kind = effectSpeed
		}
		m.nextID++
		m.pickups = append(m.pickups, &pickupState{
			id:   fmt.Sprintf("pickup-%d", m.nextID),
			kind: kind,
			pos:  m.freeSpawn(),
		})
		m.nextPickupAt = now.Add(pickupInterval)
	}

	kept := m.pickups[:0]
	for _, pickup := range m.pickups {
		taken := false
		for _, player := range m.players {
			if !player.alive {
				continue
			}
			if circlesOverlap(player.pos, playerHalf, pickup.pos, pickupHalf) {
				switch pickup.kind {
				case effectShield:
					player.shieldUntil = now.Add(effectDuration)
				case effectSpeed:
					player.speedUntil = now.Add(effectDuration)
				}
				m.events = append(m.events, game.Event{
					Type:   game.EventEffectGained,
					Player: player.ID,
					X:      pickup.pos.X,
					Y:      pickup.pos.Y,
					Value:  effectDuration.Seconds(),
				})
				taken = true
				break
			}
		}
		if !taken {
			kept = append(kept, pickup)
		}
	}
	m.pickups = kept
}

func (m *Machine) damagePlayer(target *playerState, amount int, attackerID string, now time.Time) {
	if !target.alive || now.Before(target.shieldUntil) {
		return
	}
	target.health -= amount
	m.events = append(m.events, game.Event{
		Type:   game.EventPlayerHit,
		Player: attackerID,
		Target: target.ID,
		X:      target.pos.X,
		Y:      target.pos.Y,
		Value:  float64(amount),
	})
	if target.health > 0 {
		return
	}
	target.alive = false
	target.health = 0
	target.respawnAt = now.Add(respawnDelay)
	m.events = append(m.events, game.Event{
		Type:   game.EventPlayerKilled,
		Player: attackerID,
		Target: target.ID,
		X:      target.pos.X,
		Y:      target.pos.Y,
	})
	if attacker, ok := m.players[attackerID]; ok && attacker != target {
		attacker.score += scorePlayerKill
	}
}

func (m *Machine) finish() {
	m.phase = game.PhaseFinished
	m.terminal = true
	entries := make([]game.PlayerResult, 0, len(m.players))
	for _, player := range m.players {
		entries = append(entries, game.PlayerResult{
			PlayerID: player.ID,
			Name:     player.Name,
			Score:    player.score,
		})
	}
	m.result = game.Result{
		Outcome:  game.OutcomeCompleted,
		Rankings: game.RankByScore(entries),
	}
}

func (m *Machine) freeSpawn() game.Vec2 {
	for attempt := 0; attempt < 50; attempt++ {
		pos := game.Vec2{
			X: spawnMargin + m.rng.Float64()*(m.cfg.WorldWidth-2*spawnMargin),
			Y: spawnMargin + m.rng.Float64()*(m.cfg.WorldHeight-2*spawnMargin),
		}
		if !m.collidesObstacle(pos, playerHalf) {
			return pos
		}
	}
	return game.Vec2{X: m.cfg.WorldWidth / 2, Y: m.cfg.WorldHeight / 2}
}

func (m *Machine) snapshot(tick uint64, now time.Time) game.Snapshot {
	views := make([]game.PlayerView, 0, len(m.order))
	states := make([]PlayerState, 0, len(m.order))
	for _, id := range m.order {
		player, ok := m.players[id]
		if !ok {
			continue
		}
		views = append(views, game.PlayerView{
			ID:    player.ID,
			Name:  player.Name,
			Color: player.Color,
			Score: player.score,
		})
		states = append(states, PlayerState{
			ID:       player.ID,
			Pos:      player.pos,
			Facing:   player.facing,
			Health:   player.health,
			Alive:    player.alive,
			Shielded: now.Before(player.shieldUntil),
			Boosted:  now.Before(player.speedUntil),
		})
	}

	bots := make([]BotState, 0, len(m.bots))
	for _, bot := range m.bots {
		bots = append(bots, BotState{
			ID:      bot.id,
			Pos:     bot.pos,
			Health:  bot.health,
			Chasing: bot.chasing,
		})
	}

	bullets := make([]BulletState, 0, len(m.bullets))
	for _, bullet := range m.bullets {
		bullets = append(bullets, BulletState{
			ID:    bullet.id,
			Owner: bullet.owner,
			Pos:   bullet.pos,
		})
	}

	pickups := make([]PickupState, 0, len(m.pickups))
	for _, pickup := range m.pickups {
		pickups = append(pickups, PickupState{
			ID:   pickup.id,
			Kind: string(pickup.kind),
			Pos:  pickup.pos,
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
			WorldWidth:  m.cfg.WorldWidth,
			WorldHeight: m.cfg.WorldHeight,
			TimeLeft:    timeLeft,
			Players:     states,
			Bots:        bots,
			Bullets:     bullets,
			Obstacles:   m.obstacles,
			Pickups:     pickups,
		},
	}
}

// Sorted ids keep bot iteration deterministic for a given seed.
func (m *Machine) sortedPlayerIDs() []string {
	ids := make([]string, 0, len(m.players))
	for id := range m.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// State is the shooter snapshot payload.
type State struct {
	WorldWidth  float64       `json:"worldWidth"`
	WorldHeight float64       `json:"worldHeight"`
	TimeLeft    float64       `json:"timeLeft"`
	Players     []PlayerState `json:"players"`
	Bots        []BotState    `json:"bots"`
	Bullets     []BulletState `json:"bullets"`
	Obstacles   []Obstacle    `json:"obstacles"`
	Pickups     []PickupState `json:"pickups"`
}

type PlayerState struct {
	ID       string    `json:"id"`
	Pos      game.Vec2 `json:"pos"`
	Facing   game.Vec2 `json:"facing"`
	Health   int       `json:"health"`
	Alive    bool      `json:"alive"`
	Shielded bool      `json:"shielded,omitempty"`
	Boosted  bool      `json:"boosted,omitempty"`
}

type BotState struct {
	ID      string    `json:"id"`
	Pos     game.Vec2 `json:"pos"`
	Health  int       `json:"health"`
	Chasing bool      `json:"chasing"`
}

type BulletState struct {
	ID    string    `json:"id"`
	Owner string    `json:"owner"`
	Pos   game.Vec2 `json:"pos"`
}

type PickupState struct {
	ID   string    `json:"id"`
	Kind string    `json:"kind"`
	Pos  game.Vec2 `json:"pos"`
}

var _ game.Machine = (*Machine)(nil)
