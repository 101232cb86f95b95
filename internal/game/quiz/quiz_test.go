package quiz

import (
	"encoding/json"
	"testing"
	"time"

	"partyline/server/internal/game"
)

var testQuestions = []Question{
	{Prompt: "q0", Answers: []string{"a", "b", "c", "d"}, Correct: 1},
	{Prompt: "q1", Answers: []string{"a", "b", "c", "d"}, Correct: 2},
}

func newTestQuiz(t *testing.T) (*Machine, time.Time) {
	t.Helper()
	m := New(Config{QuestionCount: 2, AskSeconds: 10, RevealSeconds: 2, Questions: testQuestions})
	m.HandleJoin(game.PlayerSlot{ID: "p1", Name: "one"})
	m.HandleJoin(game.PlayerSlot{ID: "p2", Name: "two"})
	return m, time.Unix(9000, 0)
}

func tickQuiz(m *Machine, tick uint64, now time.Time, intents map[string]game.Intent) game.Snapshot {
	return m.Tick(game.TickContext{Tick: tick, Now: now, Delta: 0.1, Intents: intents})
}

func TestQuizAutoStartsWhenAllReady(t *testing.T) {
	m, now := newTestQuiz(t)

	snap := tickQuiz(m, 1, now, map[string]game.Intent{
		"p1": {Ready: true, Answer: -1},
	})
	if snap.Phase != game.PhaseWaiting {
		t.Fatalf("one ready player must not start the match, phase=%s", snap.Phase)
	}

	snap = tickQuiz(m, 2, now.Add(time.Second), map[string]game.Intent{
		"p1": {Ready: true, Answer: -1},
		"p2": {Ready: true, Answer: -1},
	})
	if snap.Phase != game.PhasePlaying {
		t.Fatalf("all-ready room must start, phase=%s", snap.Phase)
	}
	state := snap.State.(State)
	if state.Round != RoundAsking || state.Prompt != "q0" {
		t.Fatalf("expected first question asking, got round=%s prompt=%q", state.Round, state.Prompt)
	}
}

func TestCorrectAnswerHiddenUntilReveal(t *testing.T) {
	m, now := newTestQuiz(t)
	m.Start(now)

	snap := tickQuiz(m, 1, now.Add(time.Second), nil)
	state := snap.State.(State)
	if state.Round != RoundAsking {
		t.Fatalf("expected asking round, got %s", state.Round)
	}
	if state.Correct != 0 {
		t.Fatalf("asking snapshot must not carry the correct answer, got %d", state.Correct)
	}

	snap = tickQuiz(m, 2, now.Add(11*time.Second), nil)
	state = snap.State.(State)
	if state.Round != RoundRevealing {
		t.Fatalf("expected revealing round after the ask deadline, got %s", state.Round)
	}
	if state.Correct != testQuestions[0].Correct {
		t.Fatalf("reveal must expose the correct answer, got %d", state.Correct)
	}
}

func TestFasterCorrectAnswerOutscoresSlower(t *testing.T) {
	m, now := newTestQuiz(t)
	m.Start(now)

	tickQuiz(m, 1, now.Add(time.Second), map[string]game.Intent{
		"p1": {Seq: 1, Answer: 1, ReceivedAt: now.Add(1 * time.Second)},
		"p2": {Seq: 1, Answer: 1, ReceivedAt: now.Add(8 * time.Second)},
	})
	tickQuiz(m, 2, now.Add(11*time.Second), nil)

	fast := m.players["p1"]
	slow := m.players["p2"]
	if !fast.lastCorrect || !slow.lastCorrect {
		t.Fatalf("both answers were correct, got p1=%v p2=%v", fast.lastCorrect, slow.lastCorrect)
	}
	if fast.score <= slow.score {
		t.Fatalf("faster correct answer must outscore slower: %d vs %d", fast.score, slow.score)
	}
	if slow.score < baseScore {
		t.Fatalf("a correct answer always earns at least the base score, got %d", slow.score)
	}
}

func TestUnansweredCountsAsWrong(t *testing.T) {
	m, now := newTestQuiz(t)
	m.Start(now)

	tickQuiz(m, 1, now.Add(time.Second), map[string]game.Intent{
		"p1": {Seq: 1, Answer: 1, ReceivedAt: now.Add(time.Second)},
	})
	tickQuiz(m, 2, now.Add(11*time.Second), nil)

	if m.players["p2"].score != 0 {
		t.Fatalf("a silent player scores nothing, got %d", m.players["p2"].score)
	}
	if m.players["p1"].score == 0 {
		t.Fatalf("the correct answer must score")
	}
}

func TestHeldRegisterDoesNotReanswer(t *testing.T) {
	m, now := newTestQuiz(t)
	m.Start(now)

	answer := map[string]game.Intent{
		"p1": {Seq: 7, Answer: 1, ReceivedAt: now.Add(time.Second)},
	}
	tickQuiz(m, 1, now.Add(time.Second), answer)
	tickQuiz(m, 2, now.Add(11*time.Second), nil)
	tickQuiz(m, 3, now.Add(14*time.Second), nil)
	// Round two is asking; the register still holds seq 7 from round one.
	tickQuiz(m, 4, now.Add(15*time.Second), answer)

	if m.players["p1"].answer != -1 {
		t.Fatalf("an already-applied sequence must not answer the next round, got %d", m.players["p1"].answer)
	}
}

func TestAuthoredBankKeepsCorrectIndex(t *testing.T) {
	raw := []byte(`{
		"questionCount": 1,
		"askSeconds": 10,
		"questions": [
			{"prompt": "capital of France?", "answers": ["Lyon", "Paris", "Nice"], "correct": 1}
		]
	}`)
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		t.Fatalf("decode authored bank: %v", err)
	}
	if len(cfg.Questions) != 1 || cfg.Questions[0].Correct != 1 {
		t.Fatalf("authored correct index must survive decoding, got %+v", cfg.Questions)
	}

	m := New(cfg)
	m.HandleJoin(game.PlayerSlot{ID: "p1", Name: "one"})
	now := time.Unix(9000, 0)
	m.Start(now)

	tickQuiz(m, 1, now.Add(time.Second), map[string]game.Intent{
		"p1": {Seq: 1, Answer: 1, ReceivedAt: now.Add(time.Second)},
	})
	tickQuiz(m, 2, now.Add(11*time.Second), nil)

	if !m.players["p1"].lastCorrect {
		t.Fatalf("the authored answer must grade as correct")
	}
}

func TestQuizFinishesAfterLastReveal(t *testing.T) {
	m, now := newTestQuiz(t)
	m.Start(now)

	clock := now
	answers := []map[string]game.Intent{
		{"p1": {Seq: 1, Answer: 1, ReceivedAt: now.Add(time.Second)}},
		{"p1": {Seq: 2, Answer: 2, ReceivedAt: now.Add(15 * time.Second)}},
	}
	for round := 0; round < 2; round++ {
		clock = clock.Add(time.Second)
		tickQuiz(m, uint64(round*3+1), clock, answers[round])
		clock = clock.Add(10 * time.Second)
		tickQuiz(m, uint64(round*3+2), clock, nil)
		clock = clock.Add(3 * time.Second)
		tickQuiz(m, uint64(round*3+3), clock, nil)
	}

	if !m.IsTerminal() {
		t.Fatalf("quiz must finish after the last reveal")
	}
	result := m.Result()
	if result.Outcome != game.OutcomeCompleted {
		t.Fatalf("expected completed outcome, got %s", result.Outcome)
	}
	if len(result.Rankings) != 2 || result.Rankings[0].PlayerID != "p1" {
		t.Fatalf("p1 answered both rounds correctly and must rank first, got %+v", result.Rankings)
	}
}
