package results

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"partyline/server/internal/game"
	"partyline/server/internal/room"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testSummary(roomID string, finishedAt time.Time) room.MatchSummary {
	return room.MatchSummary{
		RoomID:     roomID,
		GameType:   game.TypeShooter,
		Outcome:    game.OutcomeCompleted,
		FinalTick:  3600,
		StartedAt:  finishedAt.Add(-time.Minute),
		FinishedAt: finishedAt,
		Players: []game.PlayerResult{
			{PlayerID: "p1", Name: "alice", Score: 12, Rank: 1},
			{PlayerID: "p2", Name: "bob", Score: 7, Rank: 2},
		},
	}
}

func TestRecordMatchRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	finished := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)

	require.NoError(t, store.RecordMatch(ctx, testSummary("ABC123", finished)))

	matches, err := store.RecentMatches(ctx, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	got := matches[0]
	require.Equal(t, "ABC123", got.RoomID)
	require.Equal(t, "shooter", got.GameType)
	require.Equal(t, string(game.OutcomeCompleted), got.Outcome)
	require.EqualValues(t, 3600, got.FinalTick)
	require.Equal(t, "alice", got.Winner, "winner must be the rank-1 player")
	require.True(t, got.FinishedAt.Equal(finished))
}

func TestRecordMatchAllowsZeroStart(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	summary := testSummary("NEVER1", time.Now().UTC())
	summary.StartedAt = time.Time{}
	require.NoError(t, store.RecordMatch(ctx, summary))

	matches, err := store.RecentMatches(ctx, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
}

func TestRecentMatchesNewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)

	for i, id := range []string{"OLD111", "MID222", "NEW333"} {
		require.NoError(t, store.RecordMatch(ctx, testSummary(id, base.Add(time.Duration(i)*time.Minute))))
	}

	matches, err := store.RecentMatches(ctx, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, "NEW333", matches[0].RoomID)
	require.Equal(t, "MID222", matches[1].RoomID)
}

func TestRecentMatchesClampsLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordMatch(ctx, testSummary("ONLY01", time.Now().UTC())))

	for _, limit := range []int{0, -5, 1000} {
		matches, err := store.RecentMatches(ctx, limit)
		require.NoError(t, err)
		require.Len(t, matches, 1)
	}
}

func TestNopRecorderDiscards(t *testing.T) {
	var sink room.ResultSink = NopRecorder{}
	require.NoError(t, sink.RecordMatch(context.Background(), room.MatchSummary{}))
}
