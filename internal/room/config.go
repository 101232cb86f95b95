package room

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/alexedwards/argon2id"

	"partyline/server/internal/game"
	"partyline/server/internal/game/quiz"
	"partyline/server/internal/game/race"
	"partyline/server/internal/game/shooter"
	"partyline/server/internal/game/towerdef"
	"partyline/server/internal/sim"
)

const (
	defaultMaxPlayers     = 8
	maxMaxPlayers         = 16
	defaultReconnectGrace = 15 * time.Second
	defaultEmptyGrace     = 60 * time.Second
)

// Config describes a room at creation time. Extra carries the per-game
// section of the createRoom payload and is decoded by the machine factory.
type Config struct {
	GameType       game.GameType   `json:"gameType"`
	MaxPlayers     int             `json:"maxPlayers"`
	Password       string          `json:"password,omitempty"`
	ReconnectGrace time.Duration   `json:"-"`
	TickRate       int             `json:"tickRate,omitempty"`
	Extra          json.RawMessage `json:"-"`
}

// ParseConfig decodes the config section of a createRoom message for the
// given game type and applies defaults.
func ParseConfig(gameType string, raw json.RawMessage) (Config, error) {
	parsed, ok := game.ParseGameType(gameType)
	if !ok {
		return Config{}, fmt.Errorf("unknown game type %q", gameType)
	}
	cfg := Config{GameType: parsed, Extra: raw}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode room config: %w", err)
		}
		cfg.GameType = parsed
		cfg.Extra = raw
	}
	return cfg.normalized(), nil
}

func (c Config) normalized() Config {
	if c.MaxPlayers <= 0 {
		c.MaxPlayers = defaultMaxPlayers
	}
	if c.MaxPlayers > maxMaxPlayers {
		c.MaxPlayers = maxMaxPlayers
	}
	if c.ReconnectGrace <= 0 {
		c.ReconnectGrace = defaultReconnectGrace
	}
	return c
}

// hashPassword converts the optional room password into an argon2id hash.
// The plaintext is never retained on the room.
func hashPassword(password string) (string, error) {
	if password == "" {
		return "", nil
	}
	return argon2id.CreateHash(password, argon2id.DefaultParams)
}

// newMachine builds the state machine for the configured game type. The
// returned limits bound intent validation for the room's register.
func newMachine(cfg Config, seed int64) (game.Machine, game.Limits, sim.LoopConfig, error) {
	loopCfg := sim.DefaultLoopConfig()
	if cfg.TickRate > 0 {
		loopCfg.TickRate = cfg.TickRate
	}
	switch cfg.GameType {
	case game.TypeShooter:
		gameCfg := shooter.DefaultConfig()
		if err := decodeExtra(cfg.Extra, &gameCfg); err != nil {
			return nil, game.Limits{}, loopCfg, err
		}
		gameCfg.Seed = seed
		machine := shooter.New(gameCfg)
		limits := game.Limits{WorldWidth: gameCfg.WorldWidth, WorldHeight: gameCfg.WorldHeight}
		return machine, limits, loopCfg, nil
	case game.TypeRace:
		gameCfg := race.DefaultConfig()
		if err := decodeExtra(cfg.Extra, &gameCfg); err != nil {
			return nil, game.Limits{}, loopCfg, err
		}
		machine := race.New(gameCfg)
		return machine, game.Limits{}, loopCfg, nil
	case game.TypeQuiz:
		gameCfg := quiz.DefaultConfig()
		if err := decodeExtra(cfg.Extra, &gameCfg); err != nil {
			return nil, game.Limits{}, loopCfg, err
		}
		machine := quiz.New(gameCfg)
		limits := game.Limits{MaxAnswerIndex: gameCfg.AnswersPerQuestion()}
		// Quiz rounds are wall-clock paced; a lower tick rate keeps the
		// broadcast volume proportionate to how often state changes.
		if cfg.TickRate == 0 {
			loopCfg.TickRate = 10
		}
		return machine, limits, loopCfg, nil
	case game.TypeTowerDefense:
		gameCfg := towerdef.DefaultConfig()
		if err := decodeExtra(cfg.Extra, &gameCfg); err != nil {
			return nil, game.Limits{}, loopCfg, err
		}
		machine := towerdef.New(gameCfg)
		limits := game.Limits{WorldWidth: gameCfg.WorldWidth, WorldHeight: gameCfg.WorldHeight}
		// Tower and mob cooldowns are wall-clock paced like quiz rounds, and
		// the snapshot carries the whole board; 10 Hz is plenty.
		if cfg.TickRate == 0 {
			loopCfg.TickRate = 10
		}
		return machine, limits, loopCfg, nil
	default:
		return nil, game.Limits{}, loopCfg, fmt.Errorf("unknown game type %q", cfg.GameType)
	}
}

func decodeExtra(raw json.RawMessage, target any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode game config: %w", err)
	}
	return nil
}
