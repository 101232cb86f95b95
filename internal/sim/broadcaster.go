package sim

import (
	"sync"

	"partyline/server/internal/telemetry"
)

// Sender is one attached session's outbound half. Send must never block: a
// session that cannot keep up reports false and misses this tick's frame
// rather than stalling the room.
type Sender interface {
	SessionID() string
	Send(data []byte) bool
}

// Broadcaster fans encoded frames out to every session bound to a room.
// Each session is written independently; per-session backpressure drops that
// session's frame for the tick instead of blocking siblings.
type Broadcaster struct {
	mu       sync.RWMutex
	sessions map[string]Sender
	metrics  telemetry.Metrics
}

// NewBroadcaster constructs an empty broadcaster.
func NewBroadcaster(metrics telemetry.Metrics) *Broadcaster {
	if metrics == nil {
		metrics = telemetry.NopMetrics{}
	}
	return &Broadcaster{
		sessions: make(map[string]Sender),
		metrics:  metrics,
	}
}

// Attach binds a session. An existing session with the same id is replaced,
// which is how reconnects hand off the stream.
func (b *Broadcaster) Attach(sender Sender) {
	if sender == nil {
		return
	}
	b.mu.Lock()
	b.sessions[sender.SessionID()] = sender
	b.mu.Unlock()
}

// Detach unbinds a session.
func (b *Broadcaster) Detach(sessionID string) {
	b.mu.Lock()
	delete(b.sessions, sessionID)
	b.mu.Unlock()
}

// Count reports the number of bound sessions.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// Publish sends one frame to every bound session and returns how many
// accepted it.
func (b *Broadcaster) Publish(data []byte) int {
	b.mu.RLock()
	senders := make([]Sender, 0, len(b.sessions))
	for _, sender := range b.sessions {
		senders = append(senders, sender)
	}
	b.mu.RUnlock()

	delivered := 0
	for _, sender := range senders {
		if sender.Send(data) {
			delivered++
		} else {
			b.metrics.Add("broadcast.dropped", 1)
		}
	}
	b.metrics.Add("broadcast.frames", uint64(delivered))
	return delivered
}

// SendTo targets a single session, for error frames and join responses.
func (b *Broadcaster) SendTo(sessionID string, data []byte) bool {
	b.mu.RLock()
	sender, ok := b.sessions[sessionID]
	b.mu.RUnlock()
	if !ok {
		return false
	}
	return sender.Send(data)
}
