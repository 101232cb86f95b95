package shooter

import (
	"fmt"
	"math"
	"math/rand"

	"partyline/server/internal/game"
)

const (
	obstacleCount     = 6
	obstacleMinWidth  = 40.0
	obstacleMaxWidth  = 120.0
	obstacleMinHeight = 30.0
	obstacleMaxHeight = 90.0
	obstacleMargin    = 60.0
)

// Obstacle is a static blocking rectangle.
type Obstacle struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// generateObstacles scatters blocking rectangles around the arena, keeping
// the edges clear so spawns are never boxed in.
func generateObstacles(rng *rand.Rand, cfg Config) []Obstacle {
	obstacles := make([]Obstacle, 0, obstacleCount)
	attempts := 0
	for len(obstacles) < obstacleCount && attempts < obstacleCount*20 {
		attempts++
		width := obstacleMinWidth + rng.Float64()*(obstacleMaxWidth-obstacleMinWidth)
		height := obstacleMinHeight + rng.Float64()*(obstacleMaxHeight-obstacleMinHeight)
		maxX := cfg.WorldWidth - obstacleMargin - width
		maxY := cfg.WorldHeight - obstacleMargin - height
		if maxX <= obstacleMargin || maxY <= obstacleMargin {
			break
		}
		candidate := Obstacle{
			ID:     fmt.Sprintf("obstacle-%d", len(obstacles)+1),
			X:      obstacleMargin + rng.Float64()*(maxX-obstacleMargin),
			Y:      obstacleMargin + rng.Float64()*(maxY-obstacleMargin),
			Width:  width,
			Height: height,
		}
		overlaps := false
		for _, existing := range obstacles {
			if rectsOverlap(candidate, existing, 20) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			obstacles = append(obstacles, candidate)
		}
	}
	return obstacles
}

func rectsOverlap(a, b Obstacle, gap float64) bool {
	return a.X < b.X+b.Width+gap && b.X < a.X+a.Width+gap &&
		a.Y < b.Y+b.Height+gap && b.Y < a.Y+a.Height+gap
}

func circleRectOverlap(pos game.Vec2, radius float64, rect Obstacle) bool {
	closestX := clamp(pos.X, rect.X, rect.X+rect.Width)
	closestY := clamp(pos.Y, rect.Y, rect.Y+rect.Height)
	return math.Hypot(pos.X-closestX, pos.Y-closestY) < radius
}

func circlesOverlap(a game.Vec2, ra float64, b game.Vec2, rb float64) bool {
	return math.Hypot(a.X-b.X, a.Y-b.Y) < ra+rb
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (m *Machine) collidesObstacle(pos game.Vec2, radius float64) bool {
	for _, obstacle := range m.obstacles {
		if circleRectOverlap(pos, radius, obstacle) {
			return true
		}
	}
	return false
}

// resolveMove clamps a movement target to the world and rejects obstacle
// penetration axis by axis, so players slide along walls instead of
// sticking to them.
func (m *Machine) resolveMove(from, to game.Vec2) game.Vec2 {
	to.X = clamp(to.X, playerHalf, m.cfg.WorldWidth-playerHalf)
	to.Y = clamp(to.Y, playerHalf, m.cfg.WorldHeight-playerHalf)

	if !m.collidesObstacle(to, playerHalf) {
		return to
	}
	slideX := game.Vec2{X: to.X, Y: from.Y}
	if !m.collidesObstacle(slideX, playerHalf) {
		return slideX
	}
	slideY := game.Vec2{X: from.X, Y: to.Y}
	if !m.collidesObstacle(slideY, playerHalf) {
		return slideY
	}
	return from
}
