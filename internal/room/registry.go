package room

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"partyline/server/internal/telemetry"
	"partyline/server/logging"
)

// RegistryConfig tunes the room registry.
type RegistryConfig struct {
	// EmptyGrace is how long a room may sit with zero bound sessions
	// before the sweep reaps it.
	EmptyGrace time.Duration
	// SweepInterval is how often the sweep runs.
	SweepInterval time.Duration
}

func (c RegistryConfig) normalized() RegistryConfig {
	if c.EmptyGrace <= 0 {
		c.EmptyGrace = defaultEmptyGrace
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 10 * time.Second
	}
	return c
}

// Registry owns every live room. Creation is idempotent per room id so a
// display that reconnects and re-sends createRoom gets its room back instead
// of a duplicate.
type Registry struct {
	cfg     RegistryConfig
	deps    Deps
	metrics telemetry.Metrics

	mu    sync.Mutex
	rooms map[string]*Room
}

// NewRegistry constructs an empty registry.
func NewRegistry(cfg RegistryConfig, deps Deps) *Registry {
	if deps.Metrics == nil {
		deps.Metrics = telemetry.NopMetrics{}
	}
	if deps.Clock == nil {
		deps.Clock = logging.SystemClock{}
	}
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	return &Registry{
		cfg:     cfg.normalized(),
		deps:    deps,
		metrics: deps.Metrics,
		rooms:   make(map[string]*Room),
	}
}

// Create opens a room with a fresh id, or returns the still-open room when
// the caller supplies an id it already owns.
func (reg *Registry) Create(id string, cfg Config) (*Room, bool, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if id != "" {
		if existing, ok := reg.rooms[id]; ok && !existing.Closed() {
			return existing, true, nil
		}
	}
	if id == "" {
		id = NewRoomID()
	}

	r, err := New(id, cfg, reg.deps)
	if err != nil {
		return nil, false, err
	}
	reg.rooms[id] = r
	reg.metrics.Store("rooms.open", uint64(len(reg.rooms)))
	return r, false, nil
}

// Get looks a room up by id.
func (reg *Registry) Get(id string) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rooms[id]
	return r, ok
}

// Close tears one room down and forgets it.
func (reg *Registry) Close(id string, reason string) {
	reg.mu.Lock()
	r, ok := reg.rooms[id]
	delete(reg.rooms, id)
	reg.metrics.Store("rooms.open", uint64(len(reg.rooms)))
	reg.mu.Unlock()
	if ok {
		r.Close(reason)
	}
}

// Sweep reaps closed rooms and rooms that sat empty past the grace period.
// It returns how many rooms were removed.
func (reg *Registry) Sweep(now time.Time) int {
	reg.mu.Lock()
	var expired []*Room
	for id, r := range reg.rooms {
		if r.Expired(now, reg.cfg.EmptyGrace) {
			expired = append(expired, r)
			delete(reg.rooms, id)
		}
	}
	reg.metrics.Store("rooms.open", uint64(len(reg.rooms)))
	reg.mu.Unlock()

	for _, r := range expired {
		r.Close("idle")
	}
	return len(expired)
}

// Run drives the periodic sweep until the context ends, then closes every
// remaining room.
func (reg *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(reg.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			reg.CloseAll("server shutting down")
			return ctx.Err()
		case now := <-ticker.C:
			reg.Sweep(now)
		}
	}
}

// CloseAll tears every room down.
func (reg *Registry) CloseAll(reason string) {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	reg.rooms = make(map[string]*Room)
	reg.metrics.Store("rooms.open", 0)
	reg.mu.Unlock()
	for _, r := range rooms {
		r.Close(reason)
	}
}

// List reports a point-in-time view of every room for the HTTP surface.
func (reg *Registry) List() []Info {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	reg.mu.Unlock()

	infos := make([]Info, 0, len(rooms))
	for _, r := range rooms {
		infos = append(infos, r.Snapshot())
	}
	return infos
}

// NewRoomID mints a short join code. Room ids are typed by hand off a TV
// screen, so they stay short and uppercase.
func NewRoomID() string {
	raw := strings.ToUpper(uuid.NewString())
	return strings.ReplaceAll(raw, "-", "")[:6]
}
