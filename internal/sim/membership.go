package sim

import (
	"sync"

	"partyline/server/internal/game"
)

// MembershipKind discriminates queued membership operations.
type MembershipKind int

const (
	MembershipJoin MembershipKind = iota
	MembershipLeave
)

// MembershipOp is a join or leave staged by the gateway. Ops are applied at
// the tick boundary, never from a network goroutine, which is what keeps the
// machine's player bookkeeping race-free.
type MembershipOp struct {
	Kind     MembershipKind
	Slot     game.PlayerSlot
	PlayerID string
}

const defaultMembershipCapacity = 256

// MembershipQueue is a bounded staging buffer for membership ops.
type MembershipQueue struct {
	mu       sync.Mutex
	ops      []MembershipOp
	capacity int
	dropped  uint64
}

// NewMembershipQueue constructs a queue with the given capacity.
func NewMembershipQueue(capacity int) *MembershipQueue {
	if capacity <= 0 {
		capacity = defaultMembershipCapacity
	}
	return &MembershipQueue{capacity: capacity}
}

// Push stages an op. It reports false when the queue is saturated, which in
// practice means the room is being flooded with joins faster than it ticks.
func (q *MembershipQueue) Push(op MembershipOp) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ops) >= q.capacity {
		q.dropped++
		return false
	}
	q.ops = append(q.ops, op)
	return true
}

// Drain removes and returns every staged op in arrival order.
func (q *MembershipQueue) Drain() []MembershipOp {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ops) == 0 {
		return nil
	}
	drained := q.ops
	q.ops = nil
	return drained
}

// Len reports the number of staged ops.
func (q *MembershipQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}
