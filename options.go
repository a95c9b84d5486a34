package cotask

import "time"

// Default configuration constants, per spec.md section 6.
const (
	// DefaultMaxTasks is the scheduler's default task-table size.
	DefaultMaxTasks = 10
	// DefaultTaskStackSize documents the original firmware's per-task resume
	// buffer size. Go goroutines manage their own growable stacks, so
	// go-cotask has no direct analog to size — kept as a named constant for
	// fidelity with spec.md section 6, unused by any allocation here.
	DefaultTaskStackSize = 256
	// DefaultRingQCapacity is a conventional RingQ capacity (a power of two).
	// NewRingQ always takes its capacity explicitly and never applies this.
	DefaultRingQCapacity = 2048

	// DefaultMaxTopics is the bus's default hard cap on distinct topics.
	DefaultMaxTopics = 16
	// DefaultMaxSubscribers is the default hard cap across all topics combined.
	DefaultMaxSubscribers = 32
	// DefaultMaxTopicName is the default truncation length for topic names,
	// including the original C implementation's NUL terminator.
	DefaultMaxTopicName = 32
	// DefaultQueueSize is the default per-topic queue depth; usable capacity
	// is DefaultQueueSize-1 (one slot reserved to disambiguate full/empty).
	DefaultQueueSize = 64
)

// --- Scheduler options ---

type schedulerConfig struct {
	maxTasks int
	logger   Logger
}

// SchedulerOption configures a Scheduler at construction time.
type SchedulerOption interface {
	applyScheduler(*schedulerConfig)
}

type schedulerOptionFunc func(*schedulerConfig)

func (f schedulerOptionFunc) applyScheduler(c *schedulerConfig) { f(c) }

// WithMaxTasks overrides the scheduler's task-table size (default
// DefaultMaxTasks).
func WithMaxTasks(n int) SchedulerOption {
	return schedulerOptionFunc(func(c *schedulerConfig) {
		if n > 0 {
			c.maxTasks = n
		}
	})
}

// WithSchedulerLogger attaches a Logger to a Scheduler.
func WithSchedulerLogger(l Logger) SchedulerOption {
	return schedulerOptionFunc(func(c *schedulerConfig) {
		if l != nil {
			c.logger = l
		}
	})
}

func resolveSchedulerOptions(opts []SchedulerOption) *schedulerConfig {
	cfg := &schedulerConfig{
		maxTasks: DefaultMaxTasks,
		logger:   NewNoOpLogger(),
	}
	for _, o := range opts {
		if o == nil {
			continue
		}
		o.applyScheduler(cfg)
	}
	return cfg
}

// --- Bus (PubSubManager) options ---

type busConfig struct {
	maxTopics       int
	maxSubscribers  int
	maxTopicNameLen int
	queueSize       int
	logger          Logger
	adapterRates    map[time.Duration]int
}

// BusOption configures a PubSubManager at construction time.
type BusOption interface {
	applyBus(*busConfig)
}

type busOptionFunc func(*busConfig)

func (f busOptionFunc) applyBus(c *busConfig) { f(c) }

// WithMaxTopics overrides the bus's topic-table size (default DefaultMaxTopics).
func WithMaxTopics(n int) BusOption {
	return busOptionFunc(func(c *busConfig) {
		if n > 0 {
			c.maxTopics = n
		}
	})
}

// WithMaxSubscribers overrides the bus's subscriber-table size (default
// DefaultMaxSubscribers).
func WithMaxSubscribers(n int) BusOption {
	return busOptionFunc(func(c *busConfig) {
		if n > 0 {
			c.maxSubscribers = n
		}
	})
}

// WithTopicNameLimit overrides the length topic names are truncated to
// (default DefaultMaxTopicName, including the original's NUL terminator).
func WithTopicNameLimit(n int) BusOption {
	return busOptionFunc(func(c *busConfig) {
		if n > 1 {
			c.maxTopicNameLen = n
		}
	})
}

// WithQueueSize overrides each topic's queue depth (default
// DefaultQueueSize); usable capacity is one less, per spec.md section 4.3.
func WithQueueSize(n int) BusOption {
	return busOptionFunc(func(c *busConfig) {
		if n >= 2 {
			c.queueSize = n
		}
	})
}

// WithBusLogger attaches a Logger to a PubSubManager.
func WithBusLogger(l Logger) BusOption {
	return busOptionFunc(func(c *busConfig) {
		if l != nil {
			c.logger = l
		}
	})
}

// WithAdapterRateLimit installs a github.com/joeycumines/go-catrate sliding
// window limiter keyed by topic name, applied only to the outbound adapter
// forwarding step of Publish (the local enqueue always succeeds on its own
// merits; this only throttles best-effort forwarding to the attached
// Adapter, per spec.md section 4.4, "errors are ignored (best-effort)").
func WithAdapterRateLimit(rates map[time.Duration]int) BusOption {
	return busOptionFunc(func(c *busConfig) {
		c.adapterRates = rates
	})
}

func resolveBusOptions(opts []BusOption) *busConfig {
	cfg := &busConfig{
		maxTopics:       DefaultMaxTopics,
		maxSubscribers:  DefaultMaxSubscribers,
		maxTopicNameLen: DefaultMaxTopicName,
		queueSize:       DefaultQueueSize,
		logger:          NewNoOpLogger(),
	}
	for _, o := range opts {
		if o == nil {
			continue
		}
		o.applyBus(cfg)
	}
	return cfg
}
