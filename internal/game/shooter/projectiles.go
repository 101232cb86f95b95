package shooter

import (
	"fmt"
	"time"

	"partyline/server/internal/game"
)

const (
	bulletSpeed    = 420.0
	bulletHalf     = 4.0
	bulletLifetime = 1200 * time.Millisecond
)

type bulletState struct {
	id     string
	owner  string
	pos    game.Vec2
	vel    game.Vec2
	diesAt time.Time
}

func (m *Machine) spawnBullet(shooter *playerState, now time.Time) {
	dir := shooter.facing
	if dir.Length() == 0 {
		return
	}
	dir = dir.Normalized()
	m.nextID++
	m.bullets = append(m.bullets, &bulletState{
		id:    fmt.Sprintf("bullet-%d", m.nextID),
		owner: shooter.ID,
		pos: game.Vec2{
			X: shooter.pos.X + dir.X*(playerHalf+bulletHalf+1),
			Y: shooter.pos.Y + dir.Y*(playerHalf+bulletHalf+1),
		},
		vel:    game.Vec2{X: dir.X * bulletSpeed, Y: dir.Y * bulletSpeed},
		diesAt: now.Add(bulletLifetime),
	})
}

// advanceBullets integrates projectiles and resolves hits against obstacles,
// players, and bots. A bullet dies on its first contact.
func (m *Machine) advanceBullets(ctx game.TickContext) {
	kept := m.bullets[:0]
	for _, bullet := range m.bullets {
		if !ctx.Now.Before(bullet.diesAt) {
			continue
		}
		bullet.pos.X += bullet.vel.X * ctx.Delta
		bullet.pos.Y += bullet.vel.Y * ctx.Delta

		if bullet.pos.X < 0 || bullet.pos.X > m.cfg.WorldWidth ||
			bullet.pos.Y < 0 || bullet.pos.Y > m.cfg.WorldHeight {
			continue
		}
		if m.collidesObstacle(bullet.pos, bulletHalf) {
			continue
		}

		if m.resolveBulletHit(bullet, ctx.Now) {
			continue
		}
		kept = append(kept, bullet)
	}
	m.bullets = kept
}

func (m *Machine) resolveBulletHit(bullet *bulletState, now time.Time) bool {
	for _, id := range m.sortedPlayerIDs() {
		player := m.players[id]
		if player.ID == bullet.owner || !player.alive {
			continue
		}
		if circlesOverlap(bullet.pos, bulletHalf, player.pos, playerHalf) {
			m.damagePlayer(player, bulletDamage, bullet.owner, now)
			return true
		}
	}
	for _, bot := range m.bots {
		if circlesOverlap(bullet.pos, bulletHalf, bot.pos, botHalf) {
			m.damageBot(bot, bulletDamage, bullet.owner)
			return true
		}
	}
	return false
}
