package towerdef

import (
	"time"

	"partyline/server/internal/game"
)

// State is the tower-defence snapshot payload.
type State struct {
	WorldWidth  float64              `json:"worldWidth"`
	WorldHeight float64              `json:"worldHeight"`
	Path        []game.Vec2          `json:"path"`
	Gold        int                  `json:"gold"`
	Castle      int                  `json:"castle"`
	Wave        int                  `json:"wave"`
	WaveCount   int                  `json:"waveCount"`
	WaveActive  bool                 `json:"waveActive"`
	NextWaveIn  float64              `json:"nextWaveIn,omitempty"`
	Towers      []TowerView          `json:"towers"`
	Mobs        []MobView            `json:"mobs"`
	Catalog     map[string]TowerSpec `json:"catalog"`
}

type TowerView struct {
	ID    string    `json:"id"`
	Owner string    `json:"owner"`
	Type  string    `json:"type"`
	Level int       `json:"level"`
	Pos   game.Vec2 `json:"pos"`
}

type MobView struct {
	ID        string    `json:"id"`
	Pos       game.Vec2 `json:"pos"`
	Health    int       `json:"health"`
	MaxHealth int       `json:"maxHealth"`
	Slowed    bool      `json:"slowed,omitempty"`
}

func (m *Machine) snapshot(tick uint64, now time.Time) game.Snapshot {
	views := make([]game.PlayerView, 0, len(m.order))
	for _, id := range m.order {
		player, ok := m.players[id]
		if !ok {
			continue
		}
		views = append(views, game.PlayerView{
			ID:    player.ID,
			Name:  player.Name,
			Color: player.Color,
			Score: player.kills,
		})
	}

	towers := make([]TowerView, 0, len(m.towers))
	for _, tower := range m.towers {
		towers = append(towers, TowerView{
			ID:    tower.id,
			Owner: tower.owner,
			Type:  tower.spec.Type,
			Level: tower.level,
			Pos:   tower.pos,
		})
	}

	mobs := make([]MobView, 0, len(m.mobs))
	for _, mob := range m.mobs {
		mobs = append(mobs, MobView{
			ID:        mob.id,
			Pos:       mob.pos,
			Health:    mob.health,
			MaxHealth: mob.maxHealth,
			Slowed:    now.Before(mob.slowUntil),
		})
	}

	nextWaveIn := 0.0
	if m.phase == game.PhasePlaying && !m.waveActive && m.wave < m.cfg.WaveCount {
		nextWaveIn = m.nextWaveAt.Sub(now).Seconds()
		if nextWaveIn < 0 {
			nextWaveIn = 0
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
			Path:        m.path,
			Gold:        m.gold,
			Castle:      m.castle,
			Wave:        m.wave,
			WaveCount:   m.cfg.WaveCount,
			WaveActive:  m.waveActive,
			NextWaveIn:  nextWaveIn,
			Towers:      towers,
			Mobs:        mobs,
			Catalog:     towerCatalog,
		},
	}
}

var _ game.Machine = (*Machine)(nil)
