package cotask

// SchedulerMetrics is a point-in-time snapshot of a Scheduler's tick and CPU
// accounting, per spec.md section 4.2.
type SchedulerMetrics struct {
	Ticks          uint64
	CPUTotalTicks  uint64
	CPUActiveTicks uint64
	CPUUsagePct    int
}

// Metrics returns a snapshot of s's current tick/CPU accounting. Unlike the
// teacher's Metrics type, this carries no latency-percentile tracking: ticks
// here are a logical counter, not wall-clock time, so percentile estimation
// would have nothing meaningful to estimate over.
func (s *Scheduler) Metrics() SchedulerMetrics {
	return SchedulerMetrics{
		Ticks:          s.Ticks(),
		CPUTotalTicks:  s.CPUTotalTicks(),
		CPUActiveTicks: s.CPUActiveTicks(),
		CPUUsagePct:    s.CPUUsagePercent(),
	}
}

// TopicMetrics is a point-in-time snapshot of one topic's queue depth and
// subscriber count.
type TopicMetrics struct {
	Name            string
	QueueDepth      int
	SubscriberCount int
}

// Metrics returns a snapshot of every registered topic's queue depth and
// subscriber count, in registration order.
func (m *PubSubManager) Metrics() []TopicMetrics {
	m.mu.Lock()
	names := make([]string, len(m.topics))
	for i, t := range m.topics {
		names[i] = t.name
	}
	m.mu.Unlock()

	out := make([]TopicMetrics, len(names))
	for i, name := range names {
		out[i] = TopicMetrics{
			Name:            name,
			QueueDepth:      m.QueueSize(name),
			SubscriberCount: m.SubscriberCount(name),
		}
	}
	return out
}
