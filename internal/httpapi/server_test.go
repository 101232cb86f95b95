package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"partyline/server/internal/game"
	"partyline/server/internal/gateway"
	"partyline/server/internal/net/ws"
	"partyline/server/internal/results"
	"partyline/server/internal/room"
)

type fakeMatches struct {
	rows []results.MatchRow
	err  error
}

func (f fakeMatches) RecentMatches(context.Context, int) ([]results.MatchRow, error) {
	return f.rows, f.err
}

func newTestServer(t *testing.T, matches MatchLister) (*httptest.Server, *room.Registry) {
	t.Helper()
	registry := room.NewRegistry(room.RegistryConfig{}, room.Deps{Seed: 1})
	t.Cleanup(func() { registry.CloseAll("test done") })
	gw := gateway.New(registry, nil, nil)
	api := NewServer(registry, gw, http.NotFoundHandler(), nil, nil, matches)
	srv := httptest.NewServer(api.Routes())
	t.Cleanup(srv.Close)
	return srv, registry
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	var body map[string]string
	resp := getJSON(t, srv.URL+"/healthz", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected health body %v", body)
	}
}

func TestRoomsListsOpenRooms(t *testing.T) {
	srv, registry := newTestServer(t, nil)
	cfg, err := room.ParseConfig("race", nil)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	r, _, err := registry.Create("", cfg)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var body struct {
		Rooms []room.Info `json:"rooms"`
	}
	getJSON(t, srv.URL+"/rooms", &body)
	if len(body.Rooms) != 1 {
		t.Fatalf("expected one room, got %d", len(body.Rooms))
	}
	if body.Rooms[0].ID != r.ID || body.Rooms[0].GameType != game.TypeRace {
		t.Fatalf("unexpected listing %+v", body.Rooms[0])
	}
}

func TestRoomByIDAndNotFound(t *testing.T) {
	srv, registry := newTestServer(t, nil)
	cfg, _ := room.ParseConfig("shooter", nil)
	r, _, err := registry.Create("", cfg)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var info room.Info
	resp := getJSON(t, srv.URL+"/rooms/"+r.ID, &info)
	if resp.StatusCode != http.StatusOK || info.ID != r.ID {
		t.Fatalf("room lookup failed: status %d, info %+v", resp.StatusCode, info)
	}

	resp = getJSON(t, srv.URL+"/rooms/NOSUCH", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing room must 404, got %d", resp.StatusCode)
	}
}

func TestMatchesEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, fakeMatches{rows: []results.MatchRow{
		{ID: 1, RoomID: "ABC123", GameType: "quiz", Outcome: "completed", Winner: "alice"},
	}})

	var body struct {
		Matches []results.MatchRow `json:"matches"`
	}
	resp := getJSON(t, srv.URL+"/matches", &body)
	if resp.StatusCode != http.StatusOK || len(body.Matches) != 1 {
		t.Fatalf("matches status %d, rows %d", resp.StatusCode, len(body.Matches))
	}
	if body.Matches[0].Winner != "alice" {
		t.Fatalf("unexpected row %+v", body.Matches[0])
	}
}

func TestMatchesDisabledWithoutStore(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp := getJSON(t, srv.URL+"/matches", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 when history is disabled, got %d", resp.StatusCode)
	}
}

func TestMatchesStoreFailure(t *testing.T) {
	srv, _ := newTestServer(t, fakeMatches{err: errors.New("db gone")})
	resp := getJSON(t, srv.URL+"/matches", nil)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 on store failure, got %d", resp.StatusCode)
	}
}

type statReportingWS struct {
	http.Handler
	stats []ws.SessionStat
}

func (s statReportingWS) SessionStats() []ws.SessionStat { return s.stats }

func TestDiagnosticsIncludesSessionStats(t *testing.T) {
	registry := room.NewRegistry(room.RegistryConfig{}, room.Deps{Seed: 1})
	t.Cleanup(func() { registry.CloseAll("test done") })
	gw := gateway.New(registry, nil, nil)
	wsHandler := statReportingWS{
		Handler: http.NotFoundHandler(),
		stats:   []ws.SessionStat{{SessionID: "s1", RoomID: "ABC123", RTTMillis: 42}},
	}
	api := NewServer(registry, gw, wsHandler, nil, nil, nil)
	srv := httptest.NewServer(api.Routes())
	t.Cleanup(srv.Close)

	var body struct {
		SessionStats []ws.SessionStat `json:"sessionStats"`
	}
	resp := getJSON(t, srv.URL+"/diagnostics", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("diagnostics status %d", resp.StatusCode)
	}
	if len(body.SessionStats) != 1 || body.SessionStats[0].RTTMillis != 42 {
		t.Fatalf("diagnostics must surface per-session round trips, got %+v", body.SessionStats)
	}
}

func TestCORSHeadersOnEveryRoute(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp := getJSON(t, srv.URL+"/healthz", nil)
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}
}

func TestJoinURL(t *testing.T) {
	cases := []struct {
		base   string
		roomID string
		want   string
	}{
		{"", "ABC123", "/join/ABC123"},
		{"https://play.example.com", "ABC123", "https://play.example.com/join/ABC123"},
		{"https://play.example.com/", "ABC123", "https://play.example.com/join/ABC123"},
		{"https://play.example.com", "A B", "https://play.example.com/join/A%20B"},
	}
	for _, tc := range cases {
		if got := JoinURL(tc.base, tc.roomID); got != tc.want {
			t.Fatalf("JoinURL(%q, %q) = %q, want %q", tc.base, tc.roomID, got, tc.want)
		}
	}
}
