package race

import "partyline/server/internal/game"

// Zone is an axis-aligned rectangle on the track.
type Zone struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (z Zone) contains(pos game.Vec2) bool {
	return pos.X >= z.X && pos.X <= z.X+z.Width && pos.Y >= z.Y && pos.Y <= z.Y+z.Height
}

// Track is a rectangular circuit: an outer wall, an inner island barrier,
// sand patches on two corners, and four ordered checkpoint gates. Cars drive
// the corridor between island and wall.
type Track struct {
	Width       float64   `json:"width"`
	Height      float64   `json:"height"`
	Barriers    []Zone    `json:"barriers"`
	Sand        []Zone    `json:"sand"`
	Checkpoints []Zone    `json:"checkpoints"`
	Spawn       game.Vec2 `json:"spawn"`
	SpawnAngle  float64   `json:"spawnAngle"`
}

const (
	wallThickness = 20.0
	corridorWidth = 120.0
)

// buildTrack lays out the default circuit for the given dimensions.
func buildTrack(width, height float64) Track {
	island := Zone{
		ID:     "island",
		X:      wallThickness + corridorWidth,
		Y:      wallThickness + corridorWidth,
		Width:  width - 2*(wallThickness+corridorWidth),
		Height: height - 2*(wallThickness+corridorWidth),
	}

	barriers := []Zone{
		{ID: "wall-top", X: 0, Y: 0, Width: width, Height: wallThickness},
		{ID: "wall-bottom", X: 0, Y: height - wallThickness, Width: width, Height: wallThickness},
		{ID: "wall-left", X: 0, Y: 0, Width: wallThickness, Height: height},
		{ID: "wall-right", X: width - wallThickness, Y: 0, Width: wallThickness, Height: height},
		island,
	}

	corridorMid := wallThickness + corridorWidth/2

	// Gates sit mid-corridor on each side, ordered clockwise from the start
	// line on the bottom straight.
	checkpoints := []Zone{
		{ID: "cp-0", X: width/2 - 10, Y: height - wallThickness - corridorWidth, Width: 20, Height: corridorWidth},
		{ID: "cp-1", X: 0, Y: height/2 - 10, Width: wallThickness + corridorWidth, Height: 20},
		{ID: "cp-2", X: width/2 - 10, Y: 0, Width: 20, Height: wallThickness + corridorWidth},
		{ID: "cp-3", X: width - wallThickness - corridorWidth, Y: height/2 - 10, Width: corridorWidth + wallThickness, Height: 20},
	}

	sand := []Zone{
		{ID: "sand-ne", X: width - wallThickness - corridorWidth, Y: wallThickness, Width: corridorWidth, Height: corridorWidth},
		{ID: "sand-sw", X: wallThickness, Y: height - wallThickness - corridorWidth, Width: corridorWidth, Height: corridorWidth},
	}

	return Track{
		Width:       width,
		Height:      height,
		Barriers:    barriers,
		Sand:        sand,
		Checkpoints: checkpoints,
		Spawn:       game.Vec2{X: width/2 - 60, Y: height - corridorMid},
		SpawnAngle:  0, // facing +X along the bottom straight
	}
}

func (t Track) hitsBarrier(pos game.Vec2, radius float64) bool {
	for _, barrier := range t.Barriers {
		closestX := clamp(pos.X, barrier.X, barrier.X+barrier.Width)
		closestY := clamp(pos.Y, barrier.Y, barrier.Y+barrier.Height)
		dx := pos.X - closestX
		dy := pos.Y - closestY
		if dx*dx+dy*dy < radius*radius {
			return true
		}
	}
	return false
}

func (t Track) inSand(pos game.Vec2) bool {
	for _, zone := range t.Sand {
		if zone.contains(pos) {
			return true
		}
	}
	return false
}

// checkpointAt returns the index of the checkpoint gate containing pos, or -1.
func (t Track) checkpointAt(pos game.Vec2) int {
	for i, zone := range t.Checkpoints {
		if zone.contains(pos) {
			return i
		}
	}
	return -1
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
