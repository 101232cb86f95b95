package room

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"partyline/server/internal/game"
)

type fakeSender struct {
	mu     sync.Mutex
	id     string
	frames [][]byte
}

func (f *fakeSender) SessionID() string { return f.id }

func (f *fakeSender) Send(data []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, append([]byte(nil), data...))
	return true
}

func (f *fakeSender) sawType(msgType string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	needle := `"type":"` + msgType + `"`
	for _, frame := range f.frames {
		if strings.Contains(string(frame), needle) {
			return true
		}
	}
	return false
}

func newTestRoom(t *testing.T, cfg Config) *Room {
	t.Helper()
	r, err := New("ABC123", cfg, Deps{Seed: 1})
	if err != nil {
		t.Fatalf("new room: %v", err)
	}
	t.Cleanup(func() { r.Close("test done") })
	return r
}

func TestJoinAssignsSlotsAndEnforcesCapacity(t *testing.T) {
	r := newTestRoom(t, Config{GameType: game.TypeShooter, MaxPlayers: 2})

	first, err := r.Join(JoinRequest{PlayerName: "alice"}, &fakeSender{id: "s1"})
	if err != nil {
		t.Fatalf("first join: %v", err)
	}
	second, err := r.Join(JoinRequest{PlayerName: "bob"}, &fakeSender{id: "s2"})
	if err != nil {
		t.Fatalf("second join: %v", err)
	}

	if first.PlayerID == second.PlayerID {
		t.Fatalf("player ids must be unique")
	}
	if first.Color == second.Color {
		t.Fatalf("slot colors must differ for the first players")
	}
	if !r.members[first.PlayerID].slot.Host {
		t.Fatalf("the first joiner is the host")
	}
	if r.members[second.PlayerID].slot.Host {
		t.Fatalf("later joiners are not the host")
	}

	if _, err := r.Join(JoinRequest{PlayerName: "carol"}, &fakeSender{id: "s3"}); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("expected ErrRoomFull, got %v", err)
	}
}

func TestJoinEmptyNameGetsDefault(t *testing.T) {
	r := newTestRoom(t, Config{GameType: game.TypeQuiz})
	info, err := r.Join(JoinRequest{}, &fakeSender{id: "s1"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if info.Name == "" {
		t.Fatalf("joiners without a name must still get one")
	}
}

func TestPasswordProtectedJoin(t *testing.T) {
	r := newTestRoom(t, Config{GameType: game.TypeShooter, Password: "sesame"})

	if _, err := r.Join(JoinRequest{PlayerName: "x", Password: "wrong"}, &fakeSender{id: "s1"}); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("expected ErrWrongPassword, got %v", err)
	}
	if _, err := r.Join(JoinRequest{PlayerName: "x", Password: "sesame"}, &fakeSender{id: "s2"}); err != nil {
		t.Fatalf("correct password must join: %v", err)
	}
	if r.Snapshot().Protected != true {
		t.Fatalf("room must report itself protected")
	}
}

func TestReconnectWithinGraceResumesSlot(t *testing.T) {
	r := newTestRoom(t, Config{GameType: game.TypeShooter, ReconnectGrace: time.Minute})

	info, err := r.Join(JoinRequest{PlayerName: "alice"}, &fakeSender{id: "s1"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	r.DetachSession("s1")
	r.mu.Lock()
	pending := r.members[info.PlayerID].pending
	r.mu.Unlock()
	if !pending {
		t.Fatalf("a dropped controller must enter the grace window")
	}

	resumed, err := r.Join(JoinRequest{PlayerName: "alice", PlayerID: info.PlayerID}, &fakeSender{id: "s2"})
	if err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if !resumed.Resumed {
		t.Fatalf("a grace-window rejoin must resume the slot")
	}
	if resumed.PlayerID != info.PlayerID {
		t.Fatalf("resume must keep the player id, got %s want %s", resumed.PlayerID, info.PlayerID)
	}
	if len(r.members) != 1 {
		t.Fatalf("resume must not mint a second slot, members=%d", len(r.members))
	}
}

func TestGraceExpiryRemovesPlayer(t *testing.T) {
	r := newTestRoom(t, Config{GameType: game.TypeShooter, ReconnectGrace: 30 * time.Millisecond})

	info, err := r.Join(JoinRequest{PlayerName: "alice"}, &fakeSender{id: "s1"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	r.DetachSession("s1")

	deadline := time.Now().Add(2 * time.Second)
	for {
		r.mu.Lock()
		_, present := r.members[info.PlayerID]
		r.mu.Unlock()
		if !present {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expired member was never removed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestJoinMidMatchRequiresKnownPlayerID(t *testing.T) {
	r := newTestRoom(t, Config{GameType: game.TypeShooter})

	display := &fakeSender{id: "tv"}
	if err := r.AttachDisplay(display); err != nil {
		t.Fatalf("attach display: %v", err)
	}
	info, err := r.Join(JoinRequest{PlayerName: "alice"}, &fakeSender{id: "s1"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := r.RequestStart("tv"); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !r.Snapshot().Started {
		if time.Now().After(deadline) {
			t.Fatalf("room never entered the playing phase")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := r.Join(JoinRequest{PlayerName: "late"}, &fakeSender{id: "s2"}); !errors.Is(err, ErrInProgress) {
		t.Fatalf("fresh joins mid-match must be refused, got %v", err)
	}
	r.DetachSession("s1")
	if _, err := r.Join(JoinRequest{PlayerID: info.PlayerID}, &fakeSender{id: "s3"}); err != nil {
		t.Fatalf("reconnects mid-match must succeed: %v", err)
	}
}

func TestOnlyDisplayStartsTheMatch(t *testing.T) {
	r := newTestRoom(t, Config{GameType: game.TypeShooter})
	if err := r.AttachDisplay(&fakeSender{id: "tv"}); err != nil {
		t.Fatalf("attach display: %v", err)
	}
	if err := r.RequestStart("not-the-tv"); err == nil {
		t.Fatalf("controllers must not be able to start the match")
	}
	if err := r.RequestStart("tv"); err != nil {
		t.Fatalf("display start: %v", err)
	}
}

func TestDisplayReceivesSnapshotsAndPresence(t *testing.T) {
	r := newTestRoom(t, Config{GameType: game.TypeShooter})
	display := &fakeSender{id: "tv"}
	if err := r.AttachDisplay(display); err != nil {
		t.Fatalf("attach display: %v", err)
	}
	if _, err := r.Join(JoinRequest{PlayerName: "alice"}, &fakeSender{id: "s1"}); err != nil {
		t.Fatalf("join: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !display.sawType("gameState") {
		if time.Now().After(deadline) {
			t.Fatalf("display never received a snapshot frame")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !display.sawType("playerConnected") {
		t.Fatalf("display must see controller presence")
	}
}

func TestSecondDisplayRefusedWhileAttached(t *testing.T) {
	r := newTestRoom(t, Config{GameType: game.TypeShooter})
	if err := r.AttachDisplay(&fakeSender{id: "tv-real"}); err != nil {
		t.Fatalf("attach display: %v", err)
	}

	if err := r.AttachDisplay(&fakeSender{id: "tv-fake"}); !errors.Is(err, ErrDisplayTaken) {
		t.Fatalf("a second display must be refused, got %v", err)
	}
	if err := r.RequestStart("tv-real"); err != nil {
		t.Fatalf("the real display must keep start authority: %v", err)
	}
	if err := r.RequestStart("tv-fake"); err == nil {
		t.Fatalf("the refused session must not gain start authority")
	}

	// Re-attaching the same session is not a takeover.
	if err := r.AttachDisplay(&fakeSender{id: "tv-real"}); err != nil {
		t.Fatalf("same-session re-attach: %v", err)
	}

	r.DetachSession("tv-real")
	if err := r.AttachDisplay(&fakeSender{id: "tv-next"}); err != nil {
		t.Fatalf("a fresh display may bind once the slot is free: %v", err)
	}
}

func TestDisplayLossClosesRoomDespiteControllers(t *testing.T) {
	r := newTestRoom(t, Config{GameType: game.TypeShooter, ReconnectGrace: 30 * time.Millisecond})
	if err := r.AttachDisplay(&fakeSender{id: "tv"}); err != nil {
		t.Fatalf("attach display: %v", err)
	}
	controller := &fakeSender{id: "s1"}
	if _, err := r.Join(JoinRequest{PlayerName: "alice"}, controller); err != nil {
		t.Fatalf("join: %v", err)
	}

	r.DetachSession("tv")

	deadline := time.Now().Add(2 * time.Second)
	for !r.Closed() {
		if time.Now().After(deadline) {
			t.Fatalf("losing the display must close the room even with controllers attached")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !controller.sawType("roomClosed") {
		t.Fatalf("remaining controllers must be told the room closed")
	}
}

func TestDisplayReattachWithinGraceKeepsRoomOpen(t *testing.T) {
	r := newTestRoom(t, Config{GameType: game.TypeShooter, ReconnectGrace: 50 * time.Millisecond})
	if err := r.AttachDisplay(&fakeSender{id: "tv"}); err != nil {
		t.Fatalf("attach display: %v", err)
	}

	r.DetachSession("tv")
	if err := r.AttachDisplay(&fakeSender{id: "tv-again"}); err != nil {
		t.Fatalf("re-attach inside the grace window: %v", err)
	}

	time.Sleep(120 * time.Millisecond)
	if r.Closed() {
		t.Fatalf("a re-attached display must cancel the pending close")
	}
}

func TestCloseBroadcastsRoomClosed(t *testing.T) {
	r := newTestRoom(t, Config{GameType: game.TypeShooter})
	display := &fakeSender{id: "tv"}
	if err := r.AttachDisplay(display); err != nil {
		t.Fatalf("attach display: %v", err)
	}

	r.Close("shutting down")
	r.Close("again") // idempotent

	if !r.Closed() {
		t.Fatalf("room must report closed")
	}
	if !display.sawType("roomClosed") {
		t.Fatalf("close must notify bound sessions")
	}
	if _, err := r.Join(JoinRequest{PlayerName: "x"}, &fakeSender{id: "s9"}); !errors.Is(err, ErrRoomClosed) {
		t.Fatalf("closed rooms refuse joins, got %v", err)
	}
}

func TestParseConfigDefaultsAndExtras(t *testing.T) {
	cfg, err := ParseConfig("shooter", nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.MaxPlayers != defaultMaxPlayers || cfg.ReconnectGrace != defaultReconnectGrace {
		t.Fatalf("defaults not applied: %+v", cfg)
	}

	raw := json.RawMessage(`{"maxPlayers": 4, "password": "pw", "BotCount": 0}`)
	cfg, err = ParseConfig("shooter", raw)
	if err != nil {
		t.Fatalf("parse with extras: %v", err)
	}
	if cfg.MaxPlayers != 4 || cfg.Password != "pw" {
		t.Fatalf("inline fields not decoded: %+v", cfg)
	}

	if _, err := ParseConfig("chess", nil); err == nil {
		t.Fatalf("unknown game types must be rejected")
	}
}

func TestTimerPacedGamesDefaultToLowTickRate(t *testing.T) {
	for _, gameType := range []string{"quiz", "towerdefense"} {
		cfg, err := ParseConfig(gameType, nil)
		if err != nil {
			t.Fatalf("parse %s: %v", gameType, err)
		}
		_, _, loopCfg, err := newMachine(cfg, 1)
		if err != nil {
			t.Fatalf("machine %s: %v", gameType, err)
		}
		if loopCfg.TickRate != 10 {
			t.Fatalf("%s rooms default to 10 ticks/s, got %d", gameType, loopCfg.TickRate)
		}
	}

	cfg, err := ParseConfig("towerdefense", json.RawMessage(`{"tickRate": 30}`))
	if err != nil {
		t.Fatalf("parse with tick rate: %v", err)
	}
	_, _, loopCfg, err := newMachine(cfg, 1)
	if err != nil {
		t.Fatalf("machine: %v", err)
	}
	if loopCfg.TickRate != 30 {
		t.Fatalf("an explicit tick rate wins, got %d", loopCfg.TickRate)
	}
}
