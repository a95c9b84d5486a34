package cotask

import (
	"fmt"
	"sync"
)

// TaskFunc is the body of a scheduled task. It receives a TaskHandle, the
// only way a task may suspend itself (Yield/Sleep) — matching spec.md
// section 5: "Suspension points are exactly yield and sleep".
type TaskFunc func(h *TaskHandle)

// taskSlot is one row of the scheduler's fixed-size task table (spec.md
// section 3, "Task"). fn/started/wakeTick/inUse mirror the C struct field
// for field; saved_context and local_stack have no explicit Go
// representation because a parked goroutine's own stack already satisfies
// that role — see spec.md section 9, design note (a).
type taskSlot struct {
	fn       TaskFunc
	inUse    bool
	started  bool
	oneShot  bool
	wakeTick uint64
	wake     chan struct{}
}

// Scheduler is a cooperative task runtime: a fixed-size task table, a
// monotonic tick counter, and CPU usage accounting, per spec.md section 4.2.
// It re-architects the source's process-wide globals (spec.md section 9,
// "Process-wide singletons") as an explicit owned object.
type Scheduler struct {
	mu             sync.Mutex
	tasks          []taskSlot
	current        int // index of the running task, or -1
	ticks          uint64
	cpuTotalTicks  uint64
	cpuActiveTicks uint64
	idleTaskID     int // -1 when unset
	logger         Logger

	loopWake chan bool // task -> Run() loop: "I yielded/slept" (true) or "I returned" (false)
	running  bool
}

// NewScheduler constructs a Scheduler with the given options.
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	cfg := resolveSchedulerOptions(opts)
	s := &Scheduler{
		tasks:      make([]taskSlot, cfg.maxTasks),
		current:    -1,
		idleTaskID: -1,
		logger:     cfg.logger,
		loopWake:   make(chan bool),
	}
	return s
}

// TaskHandle is passed to a running TaskFunc, and is the only way that task
// may suspend itself.
type TaskHandle struct {
	id int
	s  *Scheduler
}

// ID returns this task's scheduler slot index.
func (h *TaskHandle) ID() int { return h.id }

// Add allocates the first free slot for fn, marking it in-use without
// running it. It returns an error if the task table is full.
func (s *Scheduler) Add(fn TaskFunc) (int, error) {
	return s.add(fn, false)
}

// AddOnce is equivalent to Add: spec.md section 4.2 specifies that a
// one-shot task "must remove the task when its fn returns (same as any
// task — return ⇒ removal)", which is exactly how every task slot already
// behaves. The oneShot flag is recorded on the slot, but nothing in the
// package reads it.
func (s *Scheduler) AddOnce(fn TaskFunc) (int, error) {
	return s.add(fn, true)
}

func (s *Scheduler) add(fn TaskFunc, oneShot bool) (int, error) {
	if fn == nil {
		return -1, newError(InvalidArgument, "Add", "fn must not be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tasks {
		if !s.tasks[i].inUse {
			s.tasks[i] = taskSlot{
				fn:      fn,
				inUse:   true,
				oneShot: oneShot,
				wake:    make(chan struct{}),
			}
			return i, nil
		}
	}
	return -1, newError(ResourceExhausted, "Add", "no free task slots")
}

// Remove deactivates a task's slot. A task that is currently suspended
// (parked on Yield/Sleep) never resumes, per spec.md section 4.2.
func (s *Scheduler) Remove(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= len(s.tasks) {
		return newError(InvalidArgument, "Remove", fmt.Sprintf("task id %d out of range", id))
	}
	s.tasks[id].inUse = false
	s.tasks[id].fn = nil
	s.tasks[id].started = false
	return nil
}

// SetIdleTask designates id as the idle task: its ticks are excluded from
// cpu_active_ticks accounting, and the selection algorithm only falls back
// to it once every other in-use task is unrunnable.
func (s *Scheduler) SetIdleTask(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= len(s.tasks) {
		return newError(InvalidArgument, "SetIdleTask", fmt.Sprintf("task id %d out of range", id))
	}
	s.idleTaskID = id
	return nil
}

// IdleTask returns the current idle task id, and whether one is set.
func (s *Scheduler) IdleTask() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idleTaskID, s.idleTaskID >= 0
}

// Ticks returns the scheduler's monotonic (wrapping) tick counter.
func (s *Scheduler) Ticks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// CPUActiveTicks returns the cumulative count of ticks spent running
// non-idle tasks.
func (s *Scheduler) CPUActiveTicks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cpuActiveTicks
}

// CPUTotalTicks returns the cumulative tick count (equal to Ticks(), kept
// distinct per spec.md's separate accessor names).
func (s *Scheduler) CPUTotalTicks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cpuTotalTicks
}

// CPUUsagePercent returns active*100/total, capped at 100, or 0 if no ticks
// have elapsed yet.
func (s *Scheduler) CPUUsagePercent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cpuTotalTicks == 0 {
		return 0
	}
	pct := s.cpuActiveTicks * 100 / s.cpuTotalTicks
	if pct > 100 {
		pct = 100
	}
	return int(pct)
}

// TickDue reports whether a task sleeping until wake is runnable at now,
// using wrap-safe modular comparison: interpreting now-wake as a signed
// value is correct for any counter width, generalizing the original
// firmware's 16-bit "(ticks - wake_tick) < 0x8000" half-range trick to
// Go's uint64 ticks.
func TickDue(now, wake uint64) bool {
	return int64(now-wake) >= 0
}

// selectNext implements spec.md section 4.2's three-pass scheduling policy.
// Must be called with s.mu held.
func (s *Scheduler) selectNext(prev int) int {
	n := len(s.tasks)
	start := 0
	if prev >= 0 {
		start = (prev + 1) % n
	}

	runnable := func(idx int) bool {
		t := &s.tasks[idx]
		if !t.inUse {
			return false
		}
		return t.wakeTick == 0 || TickDue(s.ticks, t.wakeTick)
	}

	// Pass 1: first non-idle runnable task.
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if idx == s.idleTaskID {
			continue
		}
		if runnable(idx) {
			return idx
		}
	}
	// Pass 2: the idle task, if runnable.
	if s.idleTaskID >= 0 && s.idleTaskID < n && runnable(s.idleTaskID) {
		return s.idleTaskID
	}
	// Pass 3: any runnable task at all, including idle.
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if runnable(idx) {
			return idx
		}
	}
	return -1
}

// Run repeatedly selects and runs tasks until none remain runnable. It acts
// as the scheduler's central dispatch loop: the Go-idiomatic realization of
// spec.md section 9's stackful-coroutine design note is a strict baton
// handoff — exactly one goroutine (this loop, or a single task body)
// executes user code at any instant, satisfying "at most one task is
// current" (spec.md section 3) even though the mechanism is goroutines and
// channels rather than a real stack-pointer swap.
func (s *Scheduler) Run() {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	// ticked records whether the transition that just woke this loop came
	// from a task actually calling Yield/Sleep (spec.md section 4.2: "for
	// every yield call, ticks increases by exactly 1"). A task that returns
	// without yielding wakes this loop too, but must not be charged a tick —
	// otherwise a selection following a termination could charge
	// cpu_active_ticks for a tick that was never added to cpu_total_ticks,
	// breaking the cpu_active_ticks <= cpu_total_ticks invariant. Starting
	// false means the very first selection (from Run, not in response to
	// anything) costs no tick either, matching the original scheduler_run,
	// which never touches the tick/CPU counters itself.
	ticked := false
	for {
		s.mu.Lock()
		if ticked {
			s.ticks++
			s.cpuTotalTicks++
		}
		next := s.selectNext(s.current)
		if next < 0 {
			s.current = -1
			s.running = false
			s.mu.Unlock()
			return
		}
		if ticked && next != s.idleTaskID {
			s.cpuActiveTicks++
		}
		s.current = next
		slot := &s.tasks[next]
		start := !slot.started
		slot.started = true
		wake := slot.wake
		s.mu.Unlock()

		if start {
			go s.runTask(next)
		} else {
			wake <- struct{}{}
		}
		ticked = <-s.loopWake
	}
}

// runTask is the goroutine body for a task slot's first invocation.
func (s *Scheduler) runTask(id int) {
	h := &TaskHandle{id: id, s: s}

	func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("task panicked", nil, map[string]any{
					"task": id,
					"panic": fmt.Sprintf("%v", r),
				})
			}
		}()
		s.mu.Lock()
		fn := s.tasks[id].fn
		s.mu.Unlock()
		fn(h)
	}()

	s.mu.Lock()
	s.tasks[id].inUse = false
	s.mu.Unlock()

	// A task returning never yielded, so it must not be charged a tick —
	// see the "ticked" comment on Run.
	s.loopWake <- false
}

// Yield suspends the calling task, letting the scheduler select and switch
// to another. Exactly one tick elapses per call: Run charges it, and the
// cpu_active_ticks increment that may accompany it, once this call has
// handed control back. It must only be called from within the TaskFunc
// owning this handle.
func (h *TaskHandle) Yield() {
	s := h.s
	s.mu.Lock()
	wake := s.tasks[h.id].wake
	s.mu.Unlock()

	s.loopWake <- true
	<-wake
}

// Sleep sets the calling task's wake tick to ticks+max(1,delta) and yields.
// sleep(0) is normalized to sleep(1) so every call to Sleep elapses at
// least one tick, per spec.md section 5.
func (h *TaskHandle) Sleep(delta uint64) {
	if delta == 0 {
		delta = 1
	}
	s := h.s
	s.mu.Lock()
	s.tasks[h.id].wakeTick = s.ticks + delta
	s.mu.Unlock()
	h.Yield()
}
