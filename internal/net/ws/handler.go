package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"partyline/server/internal/game"
	"partyline/server/internal/gateway"
	"partyline/server/internal/net/proto"
	"partyline/server/internal/room"
	"partyline/server/internal/telemetry"
	"partyline/server/logging"
	"partyline/server/logging/network"
)

// Inbound message budget per session. Sixty messages a second matches the
// fastest useful input cadence; the burst absorbs reconnect replays.
const (
	inboundRate  = rate.Limit(60)
	inboundBurst = 120
)

// JoinLinker renders the URL controllers open to join a room.
type JoinLinker func(roomID string) string

// Handler terminates websocket connections and dispatches the wire protocol
// onto the gateway.
type Handler struct {
	gateway  *gateway.Gateway
	pub      logging.Publisher
	metrics  telemetry.Metrics
	joinLink JoinLinker
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewHandler constructs the websocket endpoint.
func NewHandler(gw *gateway.Gateway, pub logging.Publisher, metrics telemetry.Metrics, joinLink JoinLinker) *Handler {
	if pub == nil {
		pub = logging.NopPublisher()
	}
	if metrics == nil {
		metrics = telemetry.NopMetrics{}
	}
	if joinLink == nil {
		joinLink = func(string) string { return "" }
	}
	return &Handler{
		gateway:  gw,
		pub:      pub,
		metrics:  metrics,
		joinLink: joinLink,
		sessions: make(map[string]*Session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Displays and controllers are served from arbitrary hosts
			// relative to the engine, so origin is not restricted here.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	session := newSession(uuid.NewString(), conn, h.pub)
	h.mu.Lock()
	h.sessions[session.id] = session
	h.mu.Unlock()
	h.metrics.Add("ws.sessions", 1)

	go session.writePump()
	h.readLoop(session)
}

// SessionStat is one live connection's health, surfaced on the diagnostics
// endpoint.
type SessionStat struct {
	SessionID string `json:"sessionId"`
	RoomID    string `json:"roomId,omitempty"`
	RTTMillis int64  `json:"rtt,omitempty"`
}

// SessionStats reports every live session with its last heartbeat round trip.
func (h *Handler) SessionStats() []SessionStat {
	h.mu.Lock()
	defer h.mu.Unlock()
	stats := make([]SessionStat, 0, len(h.sessions))
	for _, s := range h.sessions {
		roomID, _ := s.roomID.Load().(string)
		stats = append(stats, SessionStat{
			SessionID: s.id,
			RoomID:    roomID,
			RTTMillis: s.RTTMillis(),
		})
	}
	return stats
}

// readLoop owns all reads from the connection. It runs on the HTTP handler
// goroutine and returns when the socket dies, which is what triggers the
// room's reconnect grace for the bound player.
func (h *Handler) readLoop(s *Session) {
	defer func() {
		h.mu.Lock()
		delete(h.sessions, s.id)
		h.mu.Unlock()
		h.gateway.Disconnect(s.id)
		s.Close()
		h.metrics.Add("ws.closed", 1)
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	limiter := rate.NewLimiter(inboundRate, inboundBurst)
	throttled := false

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if !limiter.Allow() {
			// One throttle event per streak; the excess messages are
			// simply dropped, which a last-write-wins input model absorbs.
			if !throttled {
				roomID, _ := s.roomID.Load().(string)
				network.SessionThrottled(context.Background(), h.pub, roomID, s.id)
				h.metrics.Add("ws.throttled", 1)
				throttled = true
			}
			continue
		}
		throttled = false

		msg, err := proto.DecodeClientMessage(payload)
		if err != nil {
			h.sendError(s, "badMessage", err)
			continue
		}
		h.dispatch(s, msg)
	}
}

func (h *Handler) dispatch(s *Session, msg proto.ClientMessage) {
	switch msg.Type {
	case proto.TypeCreateRoom:
		h.handleCreateRoom(s, msg)
	case proto.TypeJoinRoom:
		h.handleJoinRoom(s, msg)
	case proto.TypeScreenDimensions:
		h.handleScreenDimensions(s, msg)
	case proto.TypeStartGame:
		h.handleStartGame(s)
	case proto.TypePlayerInput:
		h.handlePlayerInput(s, msg)
	case proto.TypeReady:
		h.handleReady(s, msg)
	case proto.TypeHeartbeat:
		h.handleHeartbeat(s, msg)
	case proto.TypeLeaveRoom:
		if err := h.gateway.Leave(s.id); err != nil {
			h.sendError(s, codeFor(err), err)
		}
	default:
		h.sendError(s, "unknownType", errors.New("unknown message type "+msg.Type))
	}
}

func (h *Handler) handleCreateRoom(s *Session, msg proto.ClientMessage) {
	cfg, err := room.ParseConfig(msg.GameType, msg.Config)
	if err != nil {
		h.sendError(s, "badConfig", err)
		return
	}
	if msg.Password != "" {
		cfg.Password = msg.Password
	}
	r, existing, err := h.gateway.CreateRoom(s.id, msg.RoomID, cfg, s)
	if err != nil {
		h.sendError(s, codeFor(err), err)
		return
	}
	s.BindRoom(r.ID)
	if msg.Width > 0 || msg.Height > 0 {
		r.SetScreenDimensions(msg.Width, msg.Height)
	}
	frame, err := proto.EncodeRoomCreated(proto.RoomCreated{
		RoomID:     r.ID,
		GameType:   string(r.GameType()),
		JoinURL:    h.joinLink(r.ID),
		MaxPlayers: r.MaxPlayers(),
		Existing:   existing,
	})
	h.reply(s, frame, err)
}

func (h *Handler) handleJoinRoom(s *Session, msg proto.ClientMessage) {
	req := room.JoinRequest{
		PlayerName: msg.PlayerName,
		Password:   msg.Password,
		PlayerID:   msg.PlayerID,
	}
	r, info, err := h.gateway.JoinRoom(s.id, msg.RoomID, req, s)
	if err != nil {
		h.sendError(s, codeFor(err), err)
		return
	}
	s.BindRoom(r.ID)
	frame, err := proto.EncodeJoined(proto.Joined{
		RoomID:   r.ID,
		PlayerID: info.PlayerID,
		Name:     info.Name,
		Color:    info.Color,
		Resumed:  info.Resumed,
	})
	h.reply(s, frame, err)
}

func (h *Handler) handleScreenDimensions(s *Session, msg proto.ClientMessage) {
	r, binding, err := h.gateway.Room(s.id)
	if err != nil {
		h.sendError(s, codeFor(err), err)
		return
	}
	if binding.Role != gateway.RoleDisplay {
		h.sendError(s, "notDisplay", errors.New("only the display reports screen dimensions"))
		return
	}
	r.SetScreenDimensions(msg.Width, msg.Height)
}

func (h *Handler) handleStartGame(s *Session) {
	r, _, err := h.gateway.Room(s.id)
	if err != nil {
		h.sendError(s, codeFor(err), err)
		return
	}
	if err := r.RequestStart(s.id); err != nil {
		h.sendError(s, codeFor(err), err)
	}
}

func (h *Handler) handlePlayerInput(s *Session, msg proto.ClientMessage) {
	r, binding, err := h.gateway.Room(s.id)
	if err != nil {
		h.sendError(s, codeFor(err), err)
		return
	}
	if binding.Role != gateway.RoleController {
		h.sendError(s, "notController", errors.New("displays do not submit input"))
		return
	}
	if err := r.SubmitIntent(binding.PlayerID, msg.Intent()); err != nil {
		// Stale sequences are expected after a reconnect replay; only
		// shape violations are worth an error frame.
		if !errors.Is(err, game.ErrStaleIntent) {
			h.sendError(s, codeFor(err), err)
		}
	}
}

func (h *Handler) handleReady(s *Session, msg proto.ClientMessage) {
	r, binding, err := h.gateway.Room(s.id)
	if err != nil {
		h.sendError(s, codeFor(err), err)
		return
	}
	if binding.Role != gateway.RoleController {
		h.sendError(s, "notController", errors.New("displays do not report ready"))
		return
	}
	intent := game.Intent{Ready: msg.Ready, Answer: -1}
	if err := r.SubmitIntent(binding.PlayerID, intent); err != nil && !errors.Is(err, game.ErrStaleIntent) {
		h.sendError(s, codeFor(err), err)
	}
}

func (h *Handler) handleHeartbeat(s *Session, msg proto.ClientMessage) {
	now := time.Now().UnixMilli()
	hb := proto.Heartbeat{ServerTime: now, ClientTime: msg.SentAt}
	if msg.SentAt > 0 && msg.SentAt <= now {
		hb.RTTMillis = now - msg.SentAt
		s.setRTT(hb.RTTMillis)
	}
	frame, err := proto.EncodeHeartbeat(hb)
	h.reply(s, frame, err)
}

func (h *Handler) reply(s *Session, frame []byte, err error) {
	if err != nil {
		return
	}
	s.Send(frame)
}

// sendError raises an error frame on the offending session only. Protocol
// errors never fan out to the rest of the room.
func (h *Handler) sendError(s *Session, code string, cause error) {
	frame, err := proto.EncodeError(proto.ErrorMessage{Code: code, Message: cause.Error()})
	if err != nil {
		return
	}
	s.Send(frame)
	h.metrics.Add("ws.errors", 1)
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, gateway.ErrRoomNotFound):
		return "roomNotFound"
	case errors.Is(err, gateway.ErrNotBound):
		return "notBound"
	case errors.Is(err, room.ErrRoomClosed):
		return "roomClosed"
	case errors.Is(err, room.ErrRoomFull):
		return "roomFull"
	case errors.Is(err, room.ErrWrongPassword):
		return "wrongPassword"
	case errors.Is(err, room.ErrInProgress):
		return "inProgress"
	case errors.Is(err, room.ErrDisplayTaken):
		return "displayTaken"
	case errors.Is(err, room.ErrUnknownMember):
		return "unknownPlayer"
	case errors.Is(err, game.ErrOutOfRange), errors.Is(err, game.ErrUnknownPlayer):
		return "invalidInput"
	default:
		return "internal"
	}
}
