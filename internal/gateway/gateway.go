package gateway

import (
	"context"
	"errors"
	"sync"

	"partyline/server/internal/room"
	"partyline/server/internal/sim"
	"partyline/server/internal/telemetry"
	"partyline/server/logging"
	"partyline/server/logging/network"
)

// ErrRoomNotFound reports a join against an unknown or already-reaped room.
var ErrRoomNotFound = errors.New("room not found")

// ErrNotBound reports an operation from a session that never joined a room.
var ErrNotBound = errors.New("session not bound to a room")

// Role discriminates what a session is to its room.
type Role string

const (
	RoleDisplay    Role = "display"
	RoleController Role = "controller"
)

// Binding records which room a session belongs to and as what.
type Binding struct {
	RoomID   string
	Role     Role
	PlayerID string
}

// Gateway maps websocket sessions onto rooms. It owns no game state: it
// resolves the room for each inbound message and forwards, and it translates
// socket closure into room detach.
type Gateway struct {
	registry *room.Registry
	pub      logging.Publisher
	metrics  telemetry.Metrics

	mu       sync.Mutex
	bindings map[string]Binding
}

// New constructs a gateway over the given registry.
func New(registry *room.Registry, pub logging.Publisher, metrics telemetry.Metrics) *Gateway {
	if pub == nil {
		pub = logging.NopPublisher()
	}
	if metrics == nil {
		metrics = telemetry.NopMetrics{}
	}
	return &Gateway{
		registry: registry,
		pub:      pub,
		metrics:  metrics,
		bindings: make(map[string]Binding),
	}
}

// CreateRoom opens (or re-binds, for a reconnecting display) a room and
// attaches the calling session as its display. The second return reports
// whether an existing open room was reused.
func (g *Gateway) CreateRoom(sessionID, roomID string, cfg room.Config, sender sim.Sender) (*room.Room, bool, error) {
	r, existing, err := g.registry.Create(roomID, cfg)
	if err != nil {
		return nil, false, err
	}
	if err := r.AttachDisplay(sender); err != nil {
		return nil, false, err
	}
	g.bind(sessionID, Binding{RoomID: r.ID, Role: RoleDisplay})
	g.metrics.Add("gateway.displays", 1)
	return r, existing, nil
}

// JoinRoom binds the calling session to a player slot.
func (g *Gateway) JoinRoom(sessionID, roomID string, req room.JoinRequest, sender sim.Sender) (*room.Room, room.JoinInfo, error) {
	r, ok := g.registry.Get(roomID)
	if !ok || r.Closed() {
		g.reject(roomID, sessionID, ErrRoomNotFound)
		return nil, room.JoinInfo{}, ErrRoomNotFound
	}
	info, err := r.Join(req, sender)
	if err != nil {
		g.reject(roomID, sessionID, err)
		return nil, room.JoinInfo{}, err
	}
	g.bind(sessionID, Binding{RoomID: r.ID, Role: RoleController, PlayerID: info.PlayerID})
	g.metrics.Add("gateway.controllers", 1)
	return r, info, nil
}

// Room resolves the room a session is bound to.
func (g *Gateway) Room(sessionID string) (*room.Room, Binding, error) {
	g.mu.Lock()
	binding, ok := g.bindings[sessionID]
	g.mu.Unlock()
	if !ok {
		return nil, Binding{}, ErrNotBound
	}
	r, found := g.registry.Get(binding.RoomID)
	if !found {
		return nil, binding, ErrRoomNotFound
	}
	return r, binding, nil
}

// Leave removes a controller's slot immediately and forgets the binding.
func (g *Gateway) Leave(sessionID string) error {
	r, binding, err := g.Room(sessionID)
	if err != nil {
		return err
	}
	g.unbind(sessionID)
	if binding.Role == RoleController {
		return r.Leave(binding.PlayerID)
	}
	r.DetachSession(sessionID)
	return nil
}

// Disconnect handles a socket going away. Controllers enter their room's
// reconnect grace window; displays simply unbind.
func (g *Gateway) Disconnect(sessionID string) {
	g.mu.Lock()
	binding, ok := g.bindings[sessionID]
	delete(g.bindings, sessionID)
	g.mu.Unlock()
	if !ok {
		return
	}
	if r, found := g.registry.Get(binding.RoomID); found {
		r.DetachSession(sessionID)
	}
}

// Bound reports how many sessions are currently bound.
func (g *Gateway) Bound() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.bindings)
}

func (g *Gateway) bind(sessionID string, binding Binding) {
	g.mu.Lock()
	g.bindings[sessionID] = binding
	g.mu.Unlock()
}

func (g *Gateway) unbind(sessionID string) {
	g.mu.Lock()
	delete(g.bindings, sessionID)
	g.mu.Unlock()
}

func (g *Gateway) reject(roomID, sessionID string, err error) {
	network.JoinRejected(context.Background(), g.pub, roomID, sessionID, network.RejectPayload{
		Reason: err.Error(),
	})
	g.metrics.Add("gateway.rejected", 1)
}
