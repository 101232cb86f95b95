package ws

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"partyline/server/logging"
	"partyline/server/logging/network"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Session wraps one websocket connection. Writes funnel through a buffered
// channel and a single writer goroutine; Send never blocks, so a slow client
// only ever loses its own frames.
type Session struct {
	id   string
	conn *websocket.Conn
	out  chan []byte
	pub  logging.Publisher

	roomID  atomic.Value
	drops   atomic.Uint64
	lastRTT atomic.Int64

	closeOnce sync.Once
	closed    chan struct{}
}

func newSession(id string, conn *websocket.Conn, pub logging.Publisher) *Session {
	if pub == nil {
		pub = logging.NopPublisher()
	}
	return &Session{
		id:     id,
		conn:   conn,
		out:    make(chan []byte, sendBuffer),
		pub:    pub,
		closed: make(chan struct{}),
	}
}

// SessionID identifies the session across the room's broadcaster.
func (s *Session) SessionID() string {
	return s.id
}

// BindRoom tags the session with its room for drop accounting.
func (s *Session) BindRoom(roomID string) {
	s.roomID.Store(roomID)
}

// setRTT retains the latest heartbeat round trip for diagnostics.
func (s *Session) setRTT(millis int64) {
	s.lastRTT.Store(millis)
}

// RTTMillis reports the session's last measured heartbeat round trip, or
// zero before the first heartbeat lands.
func (s *Session) RTTMillis() int64 {
	return s.lastRTT.Load()
}

// Send queues a frame for delivery. It reports false when the session's
// buffer is full, dropping this frame rather than stalling the caller.
func (s *Session) Send(data []byte) bool {
	select {
	case <-s.closed:
		return false
	case s.out <- data:
		s.drops.Store(0)
		return true
	default:
		consecutive := s.drops.Add(1)
		// Log the start of a drop streak, not every dropped frame.
		if consecutive == 1 {
			roomID, _ := s.roomID.Load().(string)
			network.SnapshotDropped(context.Background(), s.pub, roomID, s.id, network.DropPayload{
				Consecutive: consecutive,
			})
		}
		return false
	}
}

// Close tears the session down. Safe to call multiple times and from any
// goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
	})
}

// writePump drains the outbound buffer onto the socket and keeps the
// connection alive with pings. It owns all writes to the connection.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case <-s.closed:
			return
		case data := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
