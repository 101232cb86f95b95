package proto

import (
	"encoding/json"
	"fmt"

	"partyline/server/internal/game"
)

// Version tracks the wire-protocol revision expected by clients.
const Version = 1

// Client message type identifiers.
const (
	TypeCreateRoom       = "createRoom"
	TypeScreenDimensions = "screenDimensions"
	TypeStartGame        = "startGame"
	TypeJoinRoom         = "joinRoom"
	TypeLeaveRoom        = "leaveRoom"
	TypePlayerInput      = "playerInput"
	TypeReady            = "ready"
	TypeHeartbeat        = "heartbeat"
)

// Server message type identifiers.
const (
	TypeRoomCreated        = "roomCreated"
	TypeJoined             = "joined"
	TypeGameState          = "gameState"
	TypePlayerConnected    = "playerConnected"
	TypePlayerDisconnected = "playerDisconnected"
	TypeRoomClosed         = "roomClosed"
	TypeError              = "error"
)

// ClientMessage captures an inbound websocket message. Fields beyond the
// envelope are populated per message type.
type ClientMessage struct {
	Ver  int    `json:"ver,omitempty"`
	Type string `json:"type"`

	// createRoom / joinRoom.
	RoomID   string          `json:"roomId,omitempty"`
	GameType string          `json:"gameType,omitempty"`
	Config   json.RawMessage `json:"config,omitempty"`

	// joinRoom. PlayerID rebinds a pending-removal slot on reconnect.
	PlayerName string `json:"playerName,omitempty"`
	Password   string `json:"password,omitempty"`
	PlayerID   string `json:"playerId,omitempty"`

	// screenDimensions.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	// playerInput. Seq orders intents; stale sequences are discarded.
	Seq      uint64            `json:"seq,omitempty"`
	DX       float64           `json:"dx,omitempty"`
	DY       float64           `json:"dy,omitempty"`
	AimX     float64           `json:"ax,omitempty"`
	AimY     float64           `json:"ay,omitempty"`
	Fire     bool              `json:"fire,omitempty"`
	Throttle float64           `json:"throttle,omitempty"`
	Steer    float64           `json:"steer,omitempty"`
	Answer   *int              `json:"answer,omitempty"`
	Build    *game.BuildIntent `json:"build,omitempty"`

	// ready.
	Ready bool `json:"ready,omitempty"`

	// heartbeat.
	SentAt int64 `json:"sentAt,omitempty"`
}

// DecodeClientMessage converts a raw websocket payload into a structured
// message, enforcing the protocol version.
func DecodeClientMessage(payload []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, err
	}
	if msg.Ver == 0 {
		msg.Ver = Version
	}
	if msg.Ver != Version {
		return msg, fmt.Errorf("unsupported client protocol version %d", msg.Ver)
	}
	return msg, nil
}

// Intent converts a playerInput message into a register submission.
func (m ClientMessage) Intent() game.Intent {
	intent := game.Intent{
		Seq:      m.Seq,
		Move:     game.Vec2{X: m.DX, Y: m.DY},
		Aim:      game.Vec2{X: m.AimX, Y: m.AimY},
		Fire:     m.Fire,
		Throttle: m.Throttle,
		Steer:    m.Steer,
		Answer:   -1,
		Ready:    m.Ready,
		Build:    m.Build,
	}
	if m.Answer != nil {
		intent.Answer = *m.Answer
	}
	return intent
}

// RoomCreated confirms room creation to the display and carries the link
// controllers use to join.
type RoomCreated struct {
	RoomID     string `json:"roomId"`
	GameType   string `json:"gameType"`
	JoinURL    string `json:"joinUrl,omitempty"`
	MaxPlayers int    `json:"maxPlayers"`
	// Existing reports that an open room with this id was reused rather
	// than created, which happens when a display reconnects and re-emits
	// createRoom.
	Existing bool `json:"existing,omitempty"`
}

// EncodeRoomCreated renders a roomCreated payload.
func EncodeRoomCreated(msg RoomCreated) ([]byte, error) {
	return encodeFrame(TypeRoomCreated, msg)
}

// Joined confirms a controller's bind and echoes its identity.
type Joined struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Color    string `json:"color"`
	// Resumed reports that a pending-removal slot was rebound, preserving
	// prior score and position.
	Resumed bool `json:"resumed,omitempty"`
}

// EncodeJoined renders a joined payload.
func EncodeJoined(msg Joined) ([]byte, error) {
	return encodeFrame(TypeJoined, msg)
}

// GameStateV1 is the per-tick snapshot frame fanned out to every session.
type GameStateV1 struct {
	Ver        int               `json:"ver"`
	Type       string            `json:"type"`
	Tick       uint64            `json:"t"`
	ServerTime int64             `json:"serverTime"`
	Phase      game.Phase        `json:"phase"`
	Players    []game.PlayerView `json:"players"`
	State      any               `json:"state"`
	Events     []game.Event      `json:"events,omitempty"`
	// Repeated marks a re-broadcast of the previous good snapshot after a
	// simulation fault.
	Repeated bool `json:"repeated,omitempty"`
}

// EncodeGameState renders a versioned snapshot frame.
func EncodeGameState(snapshot game.Snapshot, serverTime int64, repeated bool) ([]byte, error) {
	frame := GameStateV1{
		Ver:        Version,
		Type:       TypeGameState,
		Tick:       snapshot.Tick,
		ServerTime: serverTime,
		Phase:      snapshot.Phase,
		Players:    snapshot.Players,
		State:      snapshot.State,
		Events:     snapshot.Events,
		Repeated:   repeated,
	}
	return json.Marshal(frame)
}

// PlayerPresence announces controllers coming and going to the whole room.
type PlayerPresence struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	// Pending reports a disconnect still inside the reconnect grace window.
	Pending bool `json:"pending,omitempty"`
}

// EncodePlayerConnected renders a playerConnected payload.
func EncodePlayerConnected(msg PlayerPresence) ([]byte, error) {
	return encodeFrame(TypePlayerConnected, msg)
}

// EncodePlayerDisconnected renders a playerDisconnected payload.
func EncodePlayerDisconnected(msg PlayerPresence) ([]byte, error) {
	return encodeFrame(TypePlayerDisconnected, msg)
}

// RoomClosed tells every bound session the room is gone.
type RoomClosed struct {
	Reason string       `json:"reason"`
	Result *game.Result `json:"result,omitempty"`
}

// EncodeRoomClosed renders a roomClosed payload.
func EncodeRoomClosed(msg RoomClosed) ([]byte, error) {
	return encodeFrame(TypeRoomClosed, msg)
}

// Heartbeat echoes timing metadata back to the client.
type Heartbeat struct {
	ServerTime int64 `json:"serverTime"`
	ClientTime int64 `json:"clientTime"`
	RTTMillis  int64 `json:"rtt"`
}

// EncodeHeartbeat renders a heartbeat acknowledgement payload.
func EncodeHeartbeat(msg Heartbeat) ([]byte, error) {
	return encodeFrame(TypeHeartbeat, msg)
}

// ErrorMessage is surfaced to the offending session only, never broadcast.
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EncodeError renders an error payload.
func EncodeError(msg ErrorMessage) ([]byte, error) {
	return encodeFrame(TypeError, msg)
}

func encodeFrame(msgType string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	envelope := make(map[string]json.RawMessage)
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	verRaw, _ := json.Marshal(Version)
	typeRaw, _ := json.Marshal(msgType)
	envelope["ver"] = verRaw
	envelope["type"] = typeRaw
	return json.Marshal(envelope)
}
