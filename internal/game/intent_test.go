package game

import (
	"errors"
	"math"
	"testing"
	"time"
)

func newShooterRegister(t *testing.T) *Register {
	t.Helper()
	r := NewRegister(TypeShooter, Limits{WorldWidth: 800, WorldHeight: 600})
	r.AddPlayer("p1")
	return r
}

func TestSubmitLastWriteWins(t *testing.T) {
	r := newShooterRegister(t)

	for i := 1; i <= 5; i++ {
		intent := Intent{Seq: uint64(i), Move: Vec2{X: 1}, ReceivedAt: time.Now()}
		if err := r.Submit("p1", intent); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	snap := r.Snapshot()
	got, ok := snap["p1"]
	if !ok {
		t.Fatalf("expected p1 in snapshot")
	}
	if got.Seq != 5 {
		t.Fatalf("expected latest seq 5, got %d", got.Seq)
	}
	if r.Len() != 1 {
		t.Fatalf("register must hold one slot per player, got %d", r.Len())
	}
}

func TestSubmitRejectsStaleSequence(t *testing.T) {
	r := newShooterRegister(t)

	if err := r.Submit("p1", Intent{Seq: 10, Move: Vec2{X: 1}}); err != nil {
		t.Fatalf("submit seq 10: %v", err)
	}
	err := r.Submit("p1", Intent{Seq: 4, Move: Vec2{Y: 1}})
	if !errors.Is(err, ErrStaleIntent) {
		t.Fatalf("expected ErrStaleIntent, got %v", err)
	}

	got := r.Snapshot()["p1"]
	if got.Seq != 10 || got.Move.X != 1 {
		t.Fatalf("stale submit must not disturb the held intent, got %+v", got)
	}
}

func TestSubmitOutOfRangeRetainsPrevious(t *testing.T) {
	r := newShooterRegister(t)

	if err := r.Submit("p1", Intent{Seq: 1, Move: Vec2{X: 0.5}}); err != nil {
		t.Fatalf("submit valid: %v", err)
	}

	cases := []Intent{
		{Seq: 2, Move: Vec2{X: 3, Y: 3}},
		{Seq: 2, Move: Vec2{X: math.NaN()}},
		{Seq: 2, Aim: Vec2{X: math.Inf(1)}},
	}
	for _, intent := range cases {
		if err := r.Submit("p1", intent); !errors.Is(err, ErrOutOfRange) {
			t.Fatalf("expected ErrOutOfRange for %+v, got %v", intent, err)
		}
	}

	got := r.Snapshot()["p1"]
	if got.Seq != 1 || got.Move.X != 0.5 {
		t.Fatalf("rejected submits must retain the previous intent, got %+v", got)
	}
}

func TestSubmitUnknownPlayer(t *testing.T) {
	r := newShooterRegister(t)
	if err := r.Submit("ghost", Intent{Seq: 1}); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("expected ErrUnknownPlayer, got %v", err)
	}
}

func TestSubmitAssignsSequenceWhenOmitted(t *testing.T) {
	r := newShooterRegister(t)

	if err := r.Submit("p1", Intent{Move: Vec2{X: 1}}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := r.Submit("p1", Intent{Move: Vec2{Y: 1}}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	got := r.Snapshot()["p1"]
	if got.Seq != 2 {
		t.Fatalf("expected auto-assigned seq 2, got %d", got.Seq)
	}
}

func TestQuizAnswerBounds(t *testing.T) {
	r := NewRegister(TypeQuiz, Limits{MaxAnswerIndex: 4})
	r.AddPlayer("p1")

	if err := r.Submit("p1", Intent{Seq: 1, Answer: 3}); err != nil {
		t.Fatalf("answer 3 must be accepted with four answers: %v", err)
	}
	if err := r.Submit("p1", Intent{Seq: 2, Answer: 4}); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange for answer 4, got %v", err)
	}
	if err := r.Submit("p1", Intent{Seq: 2, Answer: -2}); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange for answer -2, got %v", err)
	}
}

func TestTowerBuildBounds(t *testing.T) {
	r := NewRegister(TypeTowerDefense, Limits{WorldWidth: 800, WorldHeight: 600})
	r.AddPlayer("p1")

	ok := Intent{Seq: 1, Build: &BuildIntent{Action: BuildPlace, TowerType: "arrow", X: 100, Y: 100}}
	if err := r.Submit("p1", ok); err != nil {
		t.Fatalf("in-bounds place: %v", err)
	}
	bad := Intent{Seq: 2, Build: &BuildIntent{Action: BuildPlace, TowerType: "arrow", X: 900, Y: 100}}
	if err := r.Submit("p1", bad); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange for off-world place, got %v", err)
	}
	noID := Intent{Seq: 2, Build: &BuildIntent{Action: BuildUpgrade}}
	if err := r.Submit("p1", noID); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange for upgrade without tower id, got %v", err)
	}
}

func TestRemovePlayerDropsSlot(t *testing.T) {
	r := newShooterRegister(t)
	r.AddPlayer("p2")
	r.RemovePlayer("p1")
	if r.Len() != 1 {
		t.Fatalf("expected one remaining slot, got %d", r.Len())
	}
	if _, ok := r.Snapshot()["p1"]; ok {
		t.Fatalf("removed player must not appear in snapshots")
	}
}

func TestRankByScoreSharesTiedRanks(t *testing.T) {
	ranked := RankByScore([]PlayerResult{
		{PlayerID: "a", Score: 10},
		{PlayerID: "b", Score: 30},
		{PlayerID: "c", Score: 10},
		{PlayerID: "d", Score: 5},
	})
	if ranked[0].PlayerID != "b" || ranked[0].Rank != 1 {
		t.Fatalf("expected b first at rank 1, got %+v", ranked[0])
	}
	if ranked[1].Rank != 2 || ranked[2].Rank != 2 {
		t.Fatalf("tied scores must share a rank, got %d and %d", ranked[1].Rank, ranked[2].Rank)
	}
	if ranked[3].Rank != 4 {
		t.Fatalf("rank after a tie must skip, got %d", ranked[3].Rank)
	}
}
