package sim

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"partyline/server/internal/game"
	"partyline/server/logging"
	"partyline/server/logging/simulation"
)

// LoopConfig tunes one room's tick loop.
type LoopConfig struct {
	// TickRate is steps per second.
	TickRate int
	// CatchupMaxTicks clamps the delta after a scheduling stall so physics
	// never integrates a huge step.
	CatchupMaxTicks int
	// MaxConsecutiveFaults is how many tick panics in a row terminate the
	// room.
	MaxConsecutiveFaults int
}

// DefaultLoopConfig returns the tuning applied when a field is unset.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		TickRate:             60,
		CatchupMaxTicks:      4,
		MaxConsecutiveFaults: 3,
	}
}

func (c LoopConfig) normalized() LoopConfig {
	def := DefaultLoopConfig()
	if c.TickRate <= 0 {
		c.TickRate = def.TickRate
	}
	if c.CatchupMaxTicks <= 0 {
		c.CatchupMaxTicks = def.CatchupMaxTicks
	}
	if c.MaxConsecutiveFaults <= 0 {
		c.MaxConsecutiveFaults = def.MaxConsecutiveFaults
	}
	return c
}

// StepResult is what one tick produced.
type StepResult struct {
	Tick     uint64
	Now      time.Time
	Delta    float64
	Snapshot game.Snapshot
	// Repeated is set when the machine faulted and the previous good
	// snapshot was re-broadcast for this tick.
	Repeated bool
	Duration time.Duration
	Budget   time.Duration
}

// Hooks let the owning room react to loop output without the loop knowing
// about transports or registries.
type Hooks struct {
	// AfterStep runs on every tick with the snapshot to broadcast.
	AfterStep func(StepResult)
	// OnMemberJoined runs after a staged join was applied to the machine.
	OnMemberJoined func(slot game.PlayerSlot)
	// OnMemberLeft runs after a staged leave was applied.
	OnMemberLeft func(playerID string)
	// OnTerminal runs once when the machine reports a terminal state.
	OnTerminal func(result game.Result, final game.Snapshot)
	// OnFailure runs once when consecutive faults exceed the limit.
	OnFailure func(tick uint64)
}

// Loop drives one room's fixed-rate simulation. All machine access funnels
// through it: intents arrive as a point-in-time register snapshot, and
// membership changes apply between ticks.
type Loop struct {
	roomID  string
	machine game.Machine
	intents *game.Register
	queue   *MembershipQueue
	cfg     LoopConfig
	hooks   Hooks
	pub     logging.Publisher
	clock   logging.Clock

	tick         uint64
	faults       int
	last         game.Snapshot
	hasLast      bool
	startPending atomic.Bool
	finished     atomic.Bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewLoop wires a loop for the given machine and intent register.
func NewLoop(roomID string, machine game.Machine, intents *game.Register, cfg LoopConfig, hooks Hooks, pub logging.Publisher, clock logging.Clock) *Loop {
	if pub == nil {
		pub = logging.NopPublisher()
	}
	if clock == nil {
		clock = logging.SystemClock{}
	}
	return &Loop{
		roomID:  roomID,
		machine: machine,
		intents: intents,
		queue:   NewMembershipQueue(0),
		cfg:     cfg.normalized(),
		hooks:   hooks,
		pub:     pub,
		clock:   clock,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// QueueJoin stages a player spawn for the next tick.
func (l *Loop) QueueJoin(slot game.PlayerSlot) bool {
	return l.queue.Push(MembershipOp{Kind: MembershipJoin, Slot: slot})
}

// QueueLeave stages a player removal for the next tick.
func (l *Loop) QueueLeave(playerID string) bool {
	return l.queue.Push(MembershipOp{Kind: MembershipLeave, PlayerID: playerID})
}

// RequestStart asks the machine to leave the waiting phase on its next tick.
func (l *Loop) RequestStart() {
	l.startPending.Store(true)
}

// Tick reports the current tick number.
func (l *Loop) Tick() uint64 {
	return atomic.LoadUint64(&l.tick)
}

// Finished reports whether the loop has stopped ticking for good.
func (l *Loop) Finished() bool {
	return l.finished.Load()
}

// Run drives the fixed-timestep loop until Stop is called or the room
// reaches a terminal state. It is the room's single simulation goroutine.
func (l *Loop) Run() {
	defer close(l.done)

	interval := time.Second / time.Duration(l.cfg.TickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := l.clock.Now()
	budget := interval.Seconds()
	maxDelta := budget * float64(l.cfg.CatchupMaxTicks)

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			now := l.clock.Now()
			dt := now.Sub(last).Seconds()
			if dt <= 0 {
				dt = budget
			} else if dt > maxDelta {
				dt = maxDelta
			}
			last = now

			result, alive := l.Advance(now, dt)
			result.Budget = interval
			if result.Duration > interval {
				simulation.TickBudgetExceeded(context.Background(), l.pub, l.roomID, result.Tick, simulation.BudgetPayload{
					DurationMillis: result.Duration.Milliseconds(),
					BudgetMillis:   interval.Milliseconds(),
				})
			}
			if !alive {
				return
			}
		}
	}
}

// Stop cancels the loop. Safe to call multiple times.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
	<-l.done
}

// Advance executes a single simulation step. Exposed so tests can drive the
// loop deterministically without the ticker.
func (l *Loop) Advance(now time.Time, dt float64) (StepResult, bool) {
	tick := atomic.AddUint64(&l.tick, 1)
	started := l.clock.Now()

	l.applyMembership()

	if l.startPending.CompareAndSwap(true, false) {
		l.machine.Start(now)
	}

	ctx := game.TickContext{
		Tick:    tick,
		Now:     now,
		Delta:   dt,
		Intents: l.intents.Snapshot(),
	}

	snapshot, err := l.safeTick(ctx)
	result := StepResult{Tick: tick, Now: now, Delta: dt}

	if err != nil {
		l.faults++
		simulation.TickFault(context.Background(), l.pub, l.roomID, tick, simulation.TickFaultPayload{
			Error:       err.Error(),
			Consecutive: l.faults,
		})
		if l.faults >= l.cfg.MaxConsecutiveFaults {
			simulation.RoomFailed(context.Background(), l.pub, l.roomID, tick, simulation.RoomFailedPayload{
				Faults:    l.faults,
				Threshold: l.cfg.MaxConsecutiveFaults,
			})
			l.finished.Store(true)
			if l.hooks.OnFailure != nil {
				l.hooks.OnFailure(tick)
			}
			return result, false
		}
		// Repeat the last good snapshot so clients see the tick happen
		// instead of a silent gap.
		if l.hasLast {
			repeated := l.last
			repeated.Tick = tick
			repeated.Events = nil
			result.Snapshot = repeated
			result.Repeated = true
			l.emit(result, started)
		}
		return result, true
	}

	l.faults = 0
	l.last = snapshot
	l.hasLast = true
	result.Snapshot = snapshot
	l.emit(result, started)

	if l.machine.IsTerminal() {
		l.finished.Store(true)
		simulation.MatchFinished(context.Background(), l.pub, l.roomID, tick, simulation.MatchFinishedPayload{
			Outcome: string(l.machine.Result().Outcome),
			Players: len(snapshot.Players),
		})
		if l.hooks.OnTerminal != nil {
			l.hooks.OnTerminal(l.machine.Result(), snapshot)
		}
		return result, false
	}
	return result, true
}

func (l *Loop) emit(result StepResult, started time.Time) {
	result.Duration = l.clock.Now().Sub(started)
	if l.hooks.AfterStep != nil {
		l.hooks.AfterStep(result)
	}
}

func (l *Loop) applyMembership() {
	for _, op := range l.queue.Drain() {
		switch op.Kind {
		case MembershipJoin:
			l.machine.HandleJoin(op.Slot)
			if l.hooks.OnMemberJoined != nil {
				l.hooks.OnMemberJoined(op.Slot)
			}
		case MembershipLeave:
			l.machine.HandleLeave(op.PlayerID)
			if l.hooks.OnMemberLeft != nil {
				l.hooks.OnMemberLeft(op.PlayerID)
			}
		}
	}
}

func (l *Loop) safeTick(ctx game.TickContext) (snapshot game.Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v", r)
		}
	}()
	return l.machine.Tick(ctx), nil
}
