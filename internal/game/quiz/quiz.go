package quiz

import (
	"math"
	"time"

	"partyline/server/internal/game"
)

const (
	baseScore     = 100
	maxSpeedBonus = 100
)

// Config tunes one quiz room.
type Config struct {
	QuestionCount int
	AskSeconds    int
	RevealSeconds int
	Questions     []Question
}

// DefaultConfig plays ten rounds from the built-in bank.
func DefaultConfig() Config {
	return Config{
		QuestionCount: 10,
		AskSeconds:    15,
		RevealSeconds: 4,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.AskSeconds <= 0 {
		c.AskSeconds = def.AskSeconds
	}
	if c.RevealSeconds <= 0 {
		c.RevealSeconds = def.RevealSeconds
	}
	if len(c.Questions) == 0 {
		c.Questions = defaultBank
	}
	if c.QuestionCount <= 0 || c.QuestionCount > len(c.Questions) {
		c.QuestionCount = len(c.Questions)
	}
	return c
}

// RoundPhase is the quiz's internal timer state.
type RoundPhase string

const (
	RoundWaiting   RoundPhase = "waiting"
	RoundAsking    RoundPhase = "asking"
	RoundRevealing RoundPhase = "revealing"
	RoundFinished  RoundPhase = "finished"
)

type contestant struct {
	game.PlayerSlot
	score       int
	ready       bool
	answer      int
	answerSeq   uint64
	answeredAt  time.Time
	lastCorrect bool
	lastAward   int
}

// Machine runs a round-based timer state machine. It has no per-tick
// physics; ticks decrement countdowns and force transitions on expiry
// whether or not everyone answered. Unanswered counts as wrong.
type Machine struct {
	cfg      Config
	phase    game.Phase
	round    RoundPhase
	index    int
	deadline time.Time
	askedAt  time.Time
	players  map[string]*contestant
	order    []string
	events   []game.Event

	terminal bool
	result   game.Result
}

// New constructs a quiz machine in the waiting phase.
func New(cfg Config) *Machine {
	return &Machine{
		cfg:     cfg.normalized(),
		phase:   game.PhaseWaiting,
		round:   RoundWaiting,
		players: make(map[string]*contestant),
	}
}

// Type implements game.Machine.
func (m *Machine) Type() game.GameType { return game.TypeQuiz }

// AnswersPerQuestion reports the widest answer range in the configured bank,
// used to bound intent validation.
func (c Config) AnswersPerQuestion() int {
	cfg := c.normalized()
	widest := 0
	for _, q := range cfg.Questions {
		if len(q.Answers) > widest {
			widest = len(q.Answers)
		}
	}
	return widest
}

// HandleJoin seats a contestant. Mid-match joiners start at zero.
func (m *Machine) HandleJoin(slot game.PlayerSlot) {
	if _, ok := m.players[slot.ID]; ok {
		return
	}
	m.players[slot.ID] = &contestant{PlayerSlot: slot, answer: -1}
	m.order = append(m.order, slot.ID)
}

// HandleLeave removes a contestant.
func (m *Machine) HandleLeave(playerID string) {
	delete(m.players, playerID)
	for i, id := range m.order {
		if id == playerID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Start begins round one. The machine also starts itself once every seated
// player has flagged ready.
func (m *Machine) Start(now time.Time) {
	if m.phase != game.PhaseWaiting || len(m.players) == 0 {
		return
	}
	m.phase = game.PhasePlaying
	m.beginRound(0, now)
}

// IsTerminal implements game.Machine.
func (m *Machine) IsTerminal() bool { return m.terminal }

// Result implements game.Machine.
func (m *Machine) Result() game.Result { return m.result }

// Tick consumes ready flags and answers, and drives the countdown.
func (m *Machine) Tick(ctx game.TickContext) game.Snapshot {
	m.events = m.events[:0]

	switch {
	case m.phase == game.PhaseWaiting:
		m.applyReady(ctx.Intents)
		if m.allReady() {
			m.Start(ctx.Now)
		}
	case m.round == RoundAsking:
		m.applyAnswers(ctx.Intents)
		if !ctx.Now.Before(m.deadline) {
			m.reveal(ctx.Now)
		}
	case m.round == RoundRevealing:
		if !ctx.Now.Before(m.deadline) {
			next := m.index + 1
			if next >= m.cfg.QuestionCount {
				m.finish()
			} else {
				m.beginRound(next, ctx.Now)
			}
		}
	}

	return m.snapshot(ctx.Tick, ctx.Now)
}

func (m *Machine) applyReady(intents map[string]game.Intent) {
	for id, intent := range intents {
		if player, ok := m.players[id]; ok {
			player.ready = intent.Ready
		}
	}
}

func (m *Machine) allReady() bool {
	if len(m.players) == 0 {
		return false
	}
	for _, player := range m.players {
		if !player.ready {
			return false
		}
	}
	return true
}

// applyAnswers records the latest answer per player. Re-answering updates
// both the choice and the latency, so only the final pick counts.
func (m *Machine) applyAnswers(intents map[string]game.Intent) {
	question := m.cfg.Questions[m.index]
	for id, intent := range intents {
		player, ok := m.players[id]
		if !ok || intent.Answer < 0 || intent.Answer >= len(question.Answers) {
			continue
		}
		if intent.Seq == player.answerSeq {
			continue
		}
		player.answer = intent.Answer
		player.answerSeq = intent.Seq
		player.answeredAt = intent.ReceivedAt
	}
}

func (m *Machine) beginRound(index int, now time.Time) {
	m.index = index
	m.round = RoundAsking
	m.askedAt = now
	m.deadline = now.Add(time.Duration(m.cfg.AskSeconds) * time.Second)
	for _, player := range m.players {
		player.answer = -1
		player.answeredAt = time.Time{}
		player.lastCorrect = false
		player.lastAward = 0
	}
	m.events = append(m.events, game.Event{
		Type:  game.EventRoundStarted,
		Value: float64(index),
	})
}

// reveal scores the round: correctness earns the base score plus a bonus for
// remaining time at the moment of the final correct answer, so a faster
// correct answer always outscores a slower one.
func (m *Machine) reveal(now time.Time) {
	m.round = RoundRevealing
	m.deadline = now.Add(time.Duration(m.cfg.RevealSeconds) * time.Second)
	question := m.cfg.Questions[m.index]
	askDuration := time.Duration(m.cfg.AskSeconds) * time.Second

	for _, player := range m.players {
		if player.answer != question.Correct {
			continue
		}
		elapsed := player.answeredAt.Sub(m.askedAt)
		if elapsed < 0 {
			elapsed = 0
		}
		remaining := askDuration - elapsed
		if remaining < 0 {
			remaining = 0
		}
		bonus := int(math.Round(float64(maxSpeedBonus) * remaining.Seconds() / askDuration.Seconds()))
		player.lastCorrect = true
		player.lastAward = baseScore + bonus
		player.score += player.lastAward
	}

	m.events = append(m.events, game.Event{
		Type:  game.EventRoundRevealed,
		Value: float64(question.Correct),
	})
}

func (m *Machine) finish() {
	m.round = RoundFinished
	m.phase = game.PhaseFinished
	m.terminal = true
	entries := make([]game.PlayerResult, 0, len(m.players))
	for _, player := range m.players {
		entries = append(entries, game.PlayerResult{
			PlayerID: player.ID,
			Name:     player.Name,
			Score:    player.score,
		})
	}
	m.result = game.Result{
		Outcome:  game.OutcomeCompleted,
		Rankings: game.RankByScore(entries),
	}
}

func (m *Machine) snapshot(tick uint64, now time.Time) game.Snapshot {
	views := make([]game.PlayerView, 0, len(m.order))
	states := make([]ContestantState, 0, len(m.order))
	for _, id := range m.order {
		player, ok := m.players[id]
		if !ok {
			continue
		}
		views = append(views, game.PlayerView{
			ID:    player.ID,
			Name:  player.Name,
			Color: player.Color,
			Score: player.score,
		})
		state := ContestantState{
			ID:       player.ID,
			Ready:    player.ready,
			Answered: player.answer >= 0,
		}
		if m.round == RoundRevealing || m.round == RoundFinished {
			state.Answer = player.answer
			state.Correct = player.lastCorrect
			state.Award = player.lastAward
		}
		states = append(states, state)
	}

	state := State{
		Round:       m.round,
		Index:       m.index,
		Total:       m.cfg.QuestionCount,
		Contestants: states,
	}
	if m.round == RoundAsking || m.round == RoundRevealing {
		question := m.cfg.Questions[m.index]
		state.Prompt = question.Prompt
		state.Answers = question.Answers
		state.Countdown = m.deadline.Sub(now).Seconds()
		if state.Countdown < 0 {
			state.Countdown = 0
		}
	}
	if m.round == RoundRevealing || m.round == RoundFinished {
		if m.index < len(m.cfg.Questions) {
			state.Correct = m.cfg.Questions[m.index].Correct
		}
	}

	events := make([]game.Event, len(m.events))
	copy(events, m.events)

	return game.Snapshot{
		Tick:    tick,
		Phase:   m.phase,
		Players: views,
		Events:  events,
		State:   state,
	}
}

// State is the quiz snapshot payload. The correct answer is only present
// during reveal so controllers cannot mine it early.
type State struct {
	Round       RoundPhase        `json:"round"`
	Index       int               `json:"index"`
	Total       int               `json:"total"`
	Prompt      string            `json:"prompt,omitempty"`
	Answers     []string          `json:"answers,omitempty"`
	Correct     int               `json:"correct,omitempty"`
	Countdown   float64           `json:"countdown,omitempty"`
	Contestants []ContestantState `json:"contestants"`
}

type ContestantState struct {
	ID       string `json:"id"`
	Ready    bool   `json:"ready"`
	Answered bool   `json:"answered"`
	Answer   int    `json:"answer,omitempty"`
	Correct  bool   `json:"correct,omitempty"`
	Award    int    `json:"award,omitempty"`
}

var _ game.Machine = (*Machine)(nil)
