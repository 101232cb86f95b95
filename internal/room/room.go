package room

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"

	"partyline/server/internal/game"
	"partyline/server/internal/net/proto"
	"partyline/server/internal/sim"
	"partyline/server/internal/telemetry"
	"partyline/server/logging"
	"partyline/server/logging/lifecycle"
)

// Join failure taxonomy. Handlers map these to error frames for the
// offending session only.
var (
	ErrRoomClosed    = errors.New("room is closed")
	ErrRoomFull      = errors.New("room is full")
	ErrWrongPassword = errors.New("wrong room password")
	ErrInProgress    = errors.New("match already in progress")
	ErrUnknownMember = errors.New("unknown player")
	ErrDisplayTaken  = errors.New("room already has a display")
)

// MatchSummary is what a finished match leaves behind for persistence.
type MatchSummary struct {
	RoomID     string
	GameType   game.GameType
	StartedAt  time.Time
	FinishedAt time.Time
	Outcome    game.Outcome
	FinalTick  uint64
	Players    []game.PlayerResult
}

// ResultSink receives match summaries once a room reaches a terminal state.
type ResultSink interface {
	RecordMatch(ctx context.Context, summary MatchSummary) error
}

// Deps bundles the room's ambient dependencies.
type Deps struct {
	Publisher logging.Publisher
	Metrics   telemetry.Metrics
	Results   ResultSink
	Clock     logging.Clock
	// Seed overrides the simulation seed, for deterministic tests.
	Seed int64
}

// JoinRequest is a controller's bind attempt. PlayerID is set on reconnects
// to reclaim a slot still inside the grace window.
type JoinRequest struct {
	PlayerName string
	Password   string
	PlayerID   string
}

// JoinInfo echoes the bound identity back to the caller.
type JoinInfo struct {
	PlayerID string
	Name     string
	Color    string
	Resumed  bool
}

type member struct {
	slot       game.PlayerSlot
	sessionID  string
	pending    bool
	pendingAt  time.Time
	graceTimer *time.Timer
}

// Room owns one match: its state machine, intent register, tick loop and
// attached sessions. The loop goroutine is the only machine accessor; the
// room's own mutex covers membership bookkeeping only.
type Room struct {
	ID        string
	cfg       Config
	createdAt time.Time

	passwordHash string
	machine      game.Machine
	intents      *game.Register
	loop         *sim.Loop
	broadcaster  *sim.Broadcaster
	pub          logging.Publisher
	metrics      telemetry.Metrics
	results      ResultSink
	clock        logging.Clock

	mu             sync.Mutex
	members        map[string]*member
	joinOrder      int
	displaySession string
	displayGrace   *time.Timer
	screenW        int
	screenH        int
	started        bool
	startedAt      time.Time
	closed         bool
	closeReason    string
	emptySince     time.Time
	lastResult     *game.Result
}

// New opens a room and starts its simulation goroutine.
func New(id string, cfg Config, deps Deps) (*Room, error) {
	cfg = cfg.normalized()

	hash, err := hashPassword(cfg.Password)
	if err != nil {
		return nil, err
	}
	cfg.Password = ""

	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	if deps.Metrics == nil {
		deps.Metrics = telemetry.NopMetrics{}
	}
	if deps.Clock == nil {
		deps.Clock = logging.SystemClock{}
	}
	seed := deps.Seed
	if seed == 0 {
		seed = deps.Clock.Now().UnixNano()
	}

	machine, limits, loopCfg, err := newMachine(cfg, seed)
	if err != nil {
		return nil, err
	}

	r := &Room{
		ID:           id,
		cfg:          cfg,
		createdAt:    deps.Clock.Now(),
		passwordHash: hash,
		machine:      machine,
		intents:      game.NewRegister(cfg.GameType, limits),
		broadcaster:  sim.NewBroadcaster(deps.Metrics),
		pub:          logging.WithRoom(deps.Publisher, id),
		metrics:      deps.Metrics,
		results:      deps.Results,
		clock:        deps.Clock,
		members:      make(map[string]*member),
		emptySince:   deps.Clock.Now(),
	}

	r.loop = sim.NewLoop(id, machine, r.intents, loopCfg, sim.Hooks{
		AfterStep:  r.afterStep,
		OnTerminal: r.onTerminal,
		OnFailure:  r.onFailure,
	}, r.pub, deps.Clock)

	lifecycle.RoomCreated(context.Background(), r.pub, id, lifecycle.RoomCreatedPayload{
		GameType:   string(cfg.GameType),
		MaxPlayers: cfg.MaxPlayers,
		Protected:  hash != "",
	})
	r.metrics.Add("rooms.created", 1)

	go r.loop.Run()
	return r, nil
}

// GameType reports the room's configured game.
func (r *Room) GameType() game.GameType {
	return r.cfg.GameType
}

// MaxPlayers reports the configured player cap.
func (r *Room) MaxPlayers() int {
	return r.cfg.MaxPlayers
}

// AttachDisplay binds the room's single display session and starts the
// snapshot stream towards it. While a display is attached the slot is held:
// a second session claiming it is refused, so knowing a room id never grants
// start authority. A display that disconnected may re-attach with a fresh
// session id.
func (r *Room) AttachDisplay(sender sim.Sender) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRoomClosed
	}
	if r.displaySession != "" && r.displaySession != sender.SessionID() {
		return ErrDisplayTaken
	}
	if r.displayGrace != nil {
		r.displayGrace.Stop()
		r.displayGrace = nil
	}
	r.displaySession = sender.SessionID()
	r.emptySince = time.Time{}
	r.broadcaster.Attach(sender)
	return nil
}

// SetScreenDimensions records the display's reported canvas size. Values are
// advisory: controllers render relative layouts from them.
func (r *Room) SetScreenDimensions(width, height int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if width > 0 {
		r.screenW = width
	}
	if height > 0 {
		r.screenH = height
	}
}

// Join binds a controller session to a player slot. New joins are only
// accepted before the match starts; once playing, only a reconnect carrying
// a known PlayerID gets back in.
func (r *Room) Join(req JoinRequest, sender sim.Sender) (JoinInfo, error) {
	if err := r.checkPassword(req.Password); err != nil {
		return JoinInfo{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return JoinInfo{}, ErrRoomClosed
	}

	if req.PlayerID != "" {
		if m, ok := r.members[req.PlayerID]; ok {
			return r.rebindLocked(m, sender), nil
		}
	}

	if r.started {
		return JoinInfo{}, ErrInProgress
	}
	if len(r.members) >= r.cfg.MaxPlayers {
		return JoinInfo{}, ErrRoomFull
	}

	name := req.PlayerName
	if name == "" {
		name = "player"
	}
	slot := game.PlayerSlot{
		ID:    uuid.NewString(),
		Name:  name,
		Color: game.SlotColor(r.joinOrder),
		Host:  len(r.members) == 0,
	}
	r.joinOrder++
	r.members[slot.ID] = &member{slot: slot, sessionID: sender.SessionID()}
	r.emptySince = time.Time{}

	r.intents.AddPlayer(slot.ID)
	r.loop.QueueJoin(slot)
	r.broadcaster.Attach(sender)

	lifecycle.PlayerJoined(context.Background(), r.pub, r.ID, slot.ID, lifecycle.PlayerPayload{Name: slot.Name})
	r.metrics.Add("players.joined", 1)
	r.announcePresence(proto.TypePlayerConnected, slot, false)

	return JoinInfo{PlayerID: slot.ID, Name: slot.Name, Color: slot.Color}, nil
}

// rebindLocked hands a slot's stream over to a new session. The member may
// still be live (network flap where the old socket lingers) or pending.
func (r *Room) rebindLocked(m *member, sender sim.Sender) JoinInfo {
	if m.graceTimer != nil {
		m.graceTimer.Stop()
		m.graceTimer = nil
	}
	if m.sessionID != "" && m.sessionID != sender.SessionID() {
		r.broadcaster.Detach(m.sessionID)
	}
	resumed := m.pending
	m.pending = false
	m.sessionID = sender.SessionID()
	r.emptySince = time.Time{}
	r.broadcaster.Attach(sender)

	lifecycle.PlayerReconnected(context.Background(), r.pub, r.ID, m.slot.ID)
	r.metrics.Add("players.reconnected", 1)
	r.announcePresence(proto.TypePlayerConnected, m.slot, false)

	return JoinInfo{PlayerID: m.slot.ID, Name: m.slot.Name, Color: m.slot.Color, Resumed: resumed}
}

func (r *Room) checkPassword(password string) error {
	if r.passwordHash == "" {
		return nil
	}
	match, err := argon2id.ComparePasswordAndHash(password, r.passwordHash)
	if err != nil || !match {
		return ErrWrongPassword
	}
	return nil
}

// SubmitIntent validates and stores a controller's latest input.
func (r *Room) SubmitIntent(playerID string, intent game.Intent) error {
	if intent.ReceivedAt.IsZero() {
		intent.ReceivedAt = r.clock.Now()
	}
	return r.intents.Submit(playerID, intent)
}

// RequestStart asks the simulation to leave the waiting phase. Only the
// display drives this; quiz rooms also start themselves once every
// contestant reports ready.
func (r *Room) RequestStart(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRoomClosed
	}
	if sessionID != r.displaySession {
		return ErrUnknownMember
	}
	r.loop.RequestStart()
	return nil
}

// DetachSession handles a socket going away. A player slot enters the
// reconnect grace window instead of leaving immediately. The display gets
// the same grace to re-attach; without it the room has no authoritative
// view left, so it closes even if controllers are still connected.
func (r *Room) DetachSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.broadcaster.Detach(sessionID)

	if sessionID == r.displaySession {
		r.displaySession = ""
		if r.displayGrace != nil {
			r.displayGrace.Stop()
		}
		r.displayGrace = time.AfterFunc(r.cfg.ReconnectGrace, r.expireDisplay)
		r.markEmptyLocked()
		return
	}

	for _, m := range r.members {
		if m.sessionID != sessionID || m.pending {
			continue
		}
		m.pending = true
		m.pendingAt = r.clock.Now()
		m.sessionID = ""
		playerID := m.slot.ID
		m.graceTimer = time.AfterFunc(r.cfg.ReconnectGrace, func() {
			r.expireMember(playerID)
		})
		r.announcePresence(proto.TypePlayerDisconnected, m.slot, true)
		break
	}
	r.markEmptyLocked()
}

// Leave removes a player immediately, skipping the grace window.
func (r *Room) Leave(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[playerID]
	if !ok {
		return ErrUnknownMember
	}
	r.removeMemberLocked(m, "left")
	return nil
}

// expireDisplay runs when the display's grace window lapses without a
// re-attach.
func (r *Room) expireDisplay() {
	r.mu.Lock()
	if r.closed || r.displaySession != "" {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	r.Close("display lost")
}

// expireMember runs when a pending slot's grace window lapses without a
// reconnect.
func (r *Room) expireMember(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[playerID]
	if !ok || !m.pending {
		return
	}
	r.removeMemberLocked(m, "grace expired")
}

func (r *Room) removeMemberLocked(m *member, reason string) {
	if m.graceTimer != nil {
		m.graceTimer.Stop()
		m.graceTimer = nil
	}
	if m.sessionID != "" {
		r.broadcaster.Detach(m.sessionID)
	}
	delete(r.members, m.slot.ID)
	r.intents.RemovePlayer(m.slot.ID)
	r.loop.QueueLeave(m.slot.ID)

	lifecycle.PlayerLeft(context.Background(), r.pub, r.ID, m.slot.ID, lifecycle.PlayerPayload{Name: m.slot.Name, Reason: reason})
	r.metrics.Add("players.left", 1)
	r.announcePresence(proto.TypePlayerDisconnected, m.slot, false)
	r.markEmptyLocked()
}

func (r *Room) markEmptyLocked() {
	if r.broadcaster.Count() == 0 && r.emptySince.IsZero() {
		r.emptySince = r.clock.Now()
	}
}

func (r *Room) announcePresence(msgType string, slot game.PlayerSlot, pending bool) {
	presence := proto.PlayerPresence{PlayerID: slot.ID, Name: slot.Name, Pending: pending}
	var frame []byte
	var err error
	switch msgType {
	case proto.TypePlayerConnected:
		frame, err = proto.EncodePlayerConnected(presence)
	default:
		frame, err = proto.EncodePlayerDisconnected(presence)
	}
	if err != nil {
		return
	}
	r.broadcaster.Publish(frame)
}

// afterStep runs on the loop goroutine for every tick and fans the snapshot
// out to every bound session.
func (r *Room) afterStep(result sim.StepResult) {
	if result.Snapshot.Phase == game.PhasePlaying {
		r.mu.Lock()
		if !r.started {
			r.started = true
			r.startedAt = result.Now
		}
		r.mu.Unlock()
	}

	frame, err := proto.EncodeGameState(result.Snapshot, result.Now.UnixMilli(), result.Repeated)
	if err != nil {
		return
	}
	r.broadcaster.Publish(frame)
	r.metrics.Add("ticks.stepped", 1)
}

// onTerminal runs once, on the loop goroutine, when the match ends.
func (r *Room) onTerminal(result game.Result, final game.Snapshot) {
	r.mu.Lock()
	r.lastResult = &result
	startedAt := r.startedAt
	r.mu.Unlock()

	if r.results != nil {
		summary := MatchSummary{
			RoomID:     r.ID,
			GameType:   r.cfg.GameType,
			StartedAt:  startedAt,
			FinishedAt: r.clock.Now(),
			Outcome:    result.Outcome,
			FinalTick:  final.Tick,
			Players:    result.Rankings,
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = r.results.RecordMatch(ctx, summary)
		}()
	}

	if frame, err := proto.EncodeRoomClosed(proto.RoomClosed{Reason: "match finished", Result: &result}); err == nil {
		r.broadcaster.Publish(frame)
	}
	r.close("match finished", false)
}

// onFailure runs once, on the loop goroutine, after repeated tick faults.
func (r *Room) onFailure(tick uint64) {
	if frame, err := proto.EncodeRoomClosed(proto.RoomClosed{Reason: "internal error"}); err == nil {
		r.broadcaster.Publish(frame)
	}
	r.metrics.Add("rooms.failed", 1)
	r.close("simulation failure", false)
}

// Close tears the room down from outside the loop (registry shutdown or the
// idle sweep).
func (r *Room) Close(reason string) {
	r.close(reason, true)
}

func (r *Room) close(reason string, stopLoop bool) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.closeReason = reason
	if r.displayGrace != nil {
		r.displayGrace.Stop()
		r.displayGrace = nil
	}
	members := make([]*member, 0, len(r.members))
	for _, m := range r.members {
		members = append(members, m)
	}
	r.mu.Unlock()

	for _, m := range members {
		if m.graceTimer != nil {
			m.graceTimer.Stop()
		}
	}
	if stopLoop {
		if frame, err := proto.EncodeRoomClosed(proto.RoomClosed{Reason: reason}); err == nil {
			r.broadcaster.Publish(frame)
		}
		r.loop.Stop()
	}

	lifecycle.RoomClosed(context.Background(), r.pub, r.ID, lifecycle.RoomClosedPayload{Reason: reason})
	r.metrics.Add("rooms.closed", 1)
}

// Closed reports whether the room stopped accepting sessions.
func (r *Room) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Expired reports whether the idle sweep should reap the room: closed rooms
// always, open rooms once no session has been bound for the grace period.
func (r *Room) Expired(now time.Time, grace time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return true
	}
	if r.broadcaster.Count() > 0 {
		return false
	}
	return !r.emptySince.IsZero() && now.Sub(r.emptySince) >= grace
}

// Info is a point-in-time view for the diagnostics surface.
type Info struct {
	ID         string        `json:"id"`
	GameType   game.GameType `json:"gameType"`
	Players    int           `json:"players"`
	MaxPlayers int           `json:"maxPlayers"`
	Sessions   int           `json:"sessions"`
	Tick       uint64        `json:"tick"`
	Started    bool          `json:"started"`
	Closed     bool          `json:"closed"`
	Protected  bool          `json:"protected"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// Snapshot reports the room's current shape.
func (r *Room) Snapshot() Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Info{
		ID:         r.ID,
		GameType:   r.cfg.GameType,
		Players:    len(r.members),
		MaxPlayers: r.cfg.MaxPlayers,
		Sessions:   r.broadcaster.Count(),
		Tick:       r.loop.Tick(),
		Started:    r.started,
		Closed:     r.closed,
		Protected:  r.passwordHash != "",
		CreatedAt:  r.createdAt,
	}
}
