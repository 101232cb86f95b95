package shooter

import (
	"fmt"
	"math"
	"time"

	"partyline/server/internal/game"
)

const (
	botHalf           = 14.0
	botMaxHealth      = 60
	botPatrolSpeed    = 60.0
	botChaseSpeed     = 120.0
	botChaseRadius    = 180.0
	botArriveRadius   = 12.0
	botContactDamage  = 10
	botAttackCooldown = 800 * time.Millisecond
)

type botState struct {
	id           string
	pos          game.Vec2
	health       int
	chasing      bool
	patrolTarget game.Vec2
	nextAttackAt time.Time
}

func (m *Machine) newBot() *botState {
	m.nextID++
	bot := &botState{
		id:     fmt.Sprintf("bot-%d", m.nextID),
		pos:    m.freeSpawn(),
		health: botMaxHealth,
	}
	bot.patrolTarget = m.freeSpawn()
	return bot
}

// advanceBots runs the seek/patrol behavior: a bot chases the nearest alive
// player inside its radius, otherwise wanders between random waypoints.
// Contact with a player deals damage on a cooldown.
func (m *Machine) advanceBots(ctx game.TickContext) {
	for _, bot := range m.bots {
		target := m.closestAlivePlayer(bot.pos)
		if target != nil && distance(bot.pos, target.pos) <= botChaseRadius {
			bot.chasing = true
			m.moveBotToward(bot, target.pos, botChaseSpeed, ctx.Delta)
			if circlesOverlap(bot.pos, botHalf, target.pos, playerHalf) && !ctx.Now.Before(bot.nextAttackAt) {
				m.events = append(m.events, game.Event{
					Type:   game.EventCollision,
					Target: target.ID,
					X:      bot.pos.X,
					Y:      bot.pos.Y,
				})
				m.damagePlayer(target, botContactDamage, bot.id, ctx.Now)
				bot.nextAttackAt = ctx.Now.Add(botAttackCooldown)
			}
			continue
		}

		bot.chasing = false
		if distance(bot.pos, bot.patrolTarget) < botArriveRadius {
			bot.patrolTarget = m.freeSpawn()
		}
		m.moveBotToward(bot, bot.patrolTarget, botPatrolSpeed, ctx.Delta)
	}
}

func (m *Machine) moveBotToward(bot *botState, target game.Vec2, speed, dt float64) {
	dir := game.Vec2{X: target.X - bot.pos.X, Y: target.Y - bot.pos.Y}
	if dir.Length() == 0 {
		return
	}
	dir = dir.Normalized()
	next := game.Vec2{X: bot.pos.X + dir.X*speed*dt, Y: bot.pos.Y + dir.Y*speed*dt}
	next.X = clamp(next.X, botHalf, m.cfg.WorldWidth-botHalf)
	next.Y = clamp(next.Y, botHalf, m.cfg.WorldHeight-botHalf)
	if m.collidesObstacle(next, botHalf) {
		// Blocked bots pick a fresh waypoint instead of grinding into walls.
		bot.patrolTarget = m.freeSpawn()
		return
	}
	bot.pos = next
}

func (m *Machine) closestAlivePlayer(from game.Vec2) *playerState {
	var closest *playerState
	best := math.MaxFloat64
	for _, id := range m.sortedPlayerIDs() {
		player := m.players[id]
		if !player.alive {
			continue
		}
		if d := distance(from, player.pos); d < best {
			best = d
			closest = player
		}
	}
	return closest
}

func (m *Machine) damageBot(bot *botState, amount int, attackerID string) bool {
	bot.health -= amount
	if bot.health > 0 {
		return false
	}
	m.events = append(m.events, game.Event{
		Type:   game.EventBotKilled,
		Player: attackerID,
		Target: bot.id,
		X:      bot.pos.X,
		Y:      bot.pos.Y,
	})
	if attacker, ok := m.players[attackerID]; ok {
		attacker.score += scoreBotKill
	}
	// Dead bots respawn elsewhere to keep pressure up.
	bot.pos = m.freeSpawn()
	bot.health = botMaxHealth
	bot.chasing = false
	bot.patrolTarget = m.freeSpawn()
	return true
}

func distance(a, b game.Vec2) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
