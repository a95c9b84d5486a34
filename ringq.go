package cotask

import (
	"sync"

	"github.com/joeycumines/go-cotask/internal/ringbuf"
)

// ringGuardSentinel marks a slot as holding a live value, written on push and
// checked (then cleared) on pop. A mismatch means something wrote to the
// backing array outside of Push/Pop, per spec.md section 4.1.
const ringGuardSentinel uint64 = 0xA5A5

// RingQ is a bounded, power-of-two-capacity ring buffer of uint64 values
// with defensive invariant checking: a per-slot guard pattern, a running
// checksum of resident values, and pushed/popped counters that must never
// let popped exceed pushed. It is the low-level building block spec.md
// section 2 describes; each pub/sub topic queue is built from the same
// internal/ringbuf.Ring primitive, without this instrumentation (topics
// carry Messages and run no guard or checksum checks — see pubsub.go).
type RingQ struct {
	mu           sync.Mutex
	ring         *ringbuf.Ring[uint64]
	guard        []uint64
	debugSum     uint64
	debugLastSeq uint64
	pushed       uint64
	popped       uint64
	debugFail    DebugFailFunc
}

// RingQOption configures a RingQ at construction time.
type RingQOption func(*RingQ)

// WithRingQDebugFail overrides the hook invoked on invariant violation. The
// default panics, matching spec.md's "an invariant failure halts the
// runtime" contract.
func WithRingQDebugFail(fn DebugFailFunc) RingQOption {
	return func(q *RingQ) {
		if fn != nil {
			q.debugFail = fn
		}
	}
}

// NewRingQ constructs a RingQ with the given capacity, which must be a power
// of two (spec.md section 6, RINGQ_CAP). Capacities below 2 or not a power
// of two return an InvalidArgument error.
func NewRingQ(capacity int, opts ...RingQOption) (*RingQ, error) {
	if capacity < 2 || capacity&(capacity-1) != 0 {
		return nil, newError(InvalidArgument, "NewRingQ", "capacity must be a power of two >= 2")
	}
	q := &RingQ{
		ring:      ringbuf.New[uint64](capacity),
		guard:     make([]uint64, capacity),
		debugFail: defaultDebugFail,
	}
	for _, o := range opts {
		if o != nil {
			o(q)
		}
	}
	return q, nil
}

// Push appends v, returning false if the ring is full.
func (q *RingQ) Push(v uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ring.Full() {
		return false
	}

	slot := q.ring.HeadIndex()
	if !q.ring.Push(v) {
		// Full() already checked under the same lock; this cannot happen.
		return false
	}
	q.guard[slot] = ringGuardSentinel

	q.debugSum += v
	q.debugLastSeq = v

	if q.popped > q.pushed {
		q.debugFail("ringq: popped > pushed", q.popped, q.pushed)
	}
	q.pushed++

	return true
}

// Pop removes and returns the oldest value, or (0, false) if empty.
func (q *RingQ) Pop() (uint64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ring.Empty() {
		return 0, false
	}

	slot := q.ring.TailIndex()
	if q.guard[slot] != ringGuardSentinel {
		q.debugFail("ringq: guard mismatch on pop", uint64(slot), q.guard[slot])
	}
	q.guard[slot] = 0

	v, ok := q.ring.Pop()
	if !ok {
		// Empty() already checked under the same lock; this cannot happen.
		return 0, false
	}

	q.debugSum -= v
	q.popped++

	if q.ring.Empty() && q.debugSum != 0 {
		q.debugFail("ringq: debug_sum non-zero on empty", q.debugSum, 0)
	}
	if q.popped > q.pushed {
		q.debugFail("ringq: popped > pushed", q.popped, q.pushed)
	}

	return v, true
}

// Count returns the number of values currently queued.
func (q *RingQ) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ring.Count()
}

// SpaceFree returns the number of additional values that can be pushed
// before the ring reports full.
func (q *RingQ) SpaceFree() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ring.Cap() - q.ring.Count()
}

// IsEmpty reports whether the ring holds no values.
func (q *RingQ) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ring.Empty()
}

// IsFull reports whether the ring has no free slots.
func (q *RingQ) IsFull() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ring.Full()
}

// DebugSum returns the running checksum of currently-resident values. It is
// always zero when the ring is empty.
func (q *RingQ) DebugSum() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.debugSum
}

// DebugLastSeq returns the most recently pushed value.
func (q *RingQ) DebugLastSeq() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.debugLastSeq
}

// Pushed returns the cumulative count of successful pushes.
func (q *RingQ) Pushed() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pushed
}

// Popped returns the cumulative count of successful pops.
func (q *RingQ) Popped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popped
}
