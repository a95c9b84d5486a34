package cotask

import (
	"context"
	"sync"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-cotask/internal/ringbuf"
)

// SubscriberFunc receives one delivered Message. It runs synchronously on
// whatever goroutine calls ProcessTopic/ProcessAll, per spec.md section 4.3:
// "dispatch happens only inside process_topic/process_all, never inside
// publish".
type SubscriberFunc func(topic string, msg Message, userData any)

type subscriberSlot struct {
	inUse    bool
	topic    string
	cb       SubscriberFunc
	userData any
}

// Topic is one named message queue (subscribers are kept in the manager's
// subscriber table, not on the Topic), backed by the same internal/ringbuf.Ring primitive RingQ uses, but holding
// Messages directly rather than uint64s — a topic queue has no guard/checksum
// instrumentation of its own because Message ownership invariants (spec.md
// section 5) are the publisher's responsibility, not the queue's.
type Topic struct {
	mu   sync.Mutex
	name string
	q    *ringbuf.Ring[Message]
}

// PubSubManager is a fixed-capacity multi-topic publish/subscribe bus
// (spec.md section 4.3), optionally bridged to an external transport via an
// Adapter (spec.md section 4.4).
type PubSubManager struct {
	mu          sync.Mutex
	topics      []*Topic
	topicNames  map[string]int // name -> index into topics
	subscribers []subscriberSlot
	maxTopics   int
	maxSubs     int
	maxNameLen  int
	queueSize   int
	logger      Logger
	adapter     Adapter
	rateLimiter *catrate.Limiter
}

// NewPubSubManager constructs a PubSubManager with the given options.
func NewPubSubManager(opts ...BusOption) *PubSubManager {
	cfg := resolveBusOptions(opts)
	m := &PubSubManager{
		topicNames:  make(map[string]int, cfg.maxTopics),
		subscribers: make([]subscriberSlot, cfg.maxSubscribers),
		maxTopics:   cfg.maxTopics,
		maxSubs:     cfg.maxSubscribers,
		maxNameLen:  cfg.maxTopicNameLen,
		queueSize:   cfg.queueSize,
		logger:      cfg.logger,
	}
	if len(cfg.adapterRates) > 0 {
		m.rateLimiter = catrate.NewLimiter(cfg.adapterRates)
	}
	return m
}

func (m *PubSubManager) truncate(name string) string {
	if m.maxNameLen > 0 && len(name) > m.maxNameLen-1 {
		return name[:m.maxNameLen-1]
	}
	return name
}

// CreateTopic registers name, returning its index. Calling CreateTopic again
// with the same name is a no-op that returns the existing index, matching
// the original's idempotent pubsub_create_topic.
func (m *PubSubManager) CreateTopic(name string) (int, error) {
	if name == "" {
		return -1, newError(InvalidArgument, "CreateTopic", "name must not be empty")
	}
	name = m.truncate(name)

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createTopicLocked(name)
}

// createTopicLocked must be called with m.mu held.
func (m *PubSubManager) createTopicLocked(name string) (int, error) {
	if idx, ok := m.topicNames[name]; ok {
		return idx, nil
	}
	if len(m.topics) >= m.maxTopics {
		return -1, newError(ResourceExhausted, "CreateTopic", "no free topic slots")
	}
	t := &Topic{name: name, q: ringbuf.New[Message](m.queueSize)}
	idx := len(m.topics)
	m.topics = append(m.topics, t)
	m.topicNames[name] = idx
	m.logger.Debug("topic created", map[string]any{"topic": name, "index": idx})
	return idx, nil
}

// GetTopic returns the named Topic, and whether it exists.
func (m *PubSubManager) GetTopic(name string) (*Topic, bool) {
	name = m.truncate(name)
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.topicNames[name]
	if !ok {
		return nil, false
	}
	return m.topics[idx], true
}

// Subscribe registers cb to receive every message published to topic,
// auto-creating topic if it does not already exist (matching the original's
// pubsub_subscribe auto-create behavior). It returns the subscriber's id.
func (m *PubSubManager) Subscribe(topic string, cb SubscriberFunc, userData any) (int, error) {
	if cb == nil {
		return -1, newError(InvalidArgument, "Subscribe", "cb must not be nil")
	}
	if topic == "" {
		return -1, newError(InvalidArgument, "Subscribe", "topic must not be empty")
	}
	topic = m.truncate(topic)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.createTopicLocked(topic); err != nil {
		return -1, err
	}

	for i := range m.subscribers {
		if !m.subscribers[i].inUse {
			m.subscribers[i] = subscriberSlot{inUse: true, topic: topic, cb: cb, userData: userData}
			m.logger.Debug("subscriber added", map[string]any{"topic": topic, "id": i})
			return i, nil
		}
	}
	return -1, newError(ResourceExhausted, "Subscribe", "no free subscriber slots")
}

// Unsubscribe removes the subscriber with the given id.
func (m *PubSubManager) Unsubscribe(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 0 || id >= len(m.subscribers) || !m.subscribers[id].inUse {
		return newError(InvalidArgument, "Unsubscribe", "unknown subscriber id")
	}
	m.subscribers[id] = subscriberSlot{}
	return nil
}

// Publish enqueues msg on topic and, if an Adapter is attached, makes a
// best-effort attempt to forward it externally as well — the original's
// "forward_to_mqtt=true" path. Forwarding errors, and rate-limiter
// rejections, never affect the local enqueue's outcome.
func (m *PubSubManager) Publish(topic string, msg Message) error {
	return m.publish(topic, msg, true)
}

// PublishFromExternal enqueues msg on topic without re-forwarding it back out
// through the Adapter — the original's "forward_to_mqtt=false" path, used
// when a message just arrived from the external transport via PollAdapter.
func (m *PubSubManager) PublishFromExternal(topic string, msg Message) error {
	return m.publish(topic, msg, false)
}

func (m *PubSubManager) publish(topic string, msg Message, forwardOut bool) error {
	topic = m.truncate(topic)

	m.mu.Lock()
	idx, ok := m.topicNames[topic]
	if !ok {
		m.mu.Unlock()
		return newError(NotFound, "Publish", "unknown topic: "+topic)
	}
	t := m.topics[idx]
	adapter := m.adapter
	limiter := m.rateLimiter
	m.mu.Unlock()

	t.mu.Lock()
	pushed := t.q.Push(msg)
	t.mu.Unlock()
	if !pushed {
		m.logger.Warn("publish dropped: queue full", map[string]any{"topic": topic, "key": msg.Key})
		return newError(ResourceExhausted, "Publish", "topic queue full: "+topic)
	}

	if forwardOut && adapter != nil {
		allowed := true
		if limiter != nil {
			_, allowed = limiter.Allow(topic)
		}
		if allowed {
			adapter.PublishOut(context.Background(), topic, msg)
		} else {
			m.logger.Debug("adapter forward rate-limited", map[string]any{"topic": topic, "key": msg.Key})
		}
	}

	return nil
}

// ProcessTopic dispatches messages queued on topic at the time of the call,
// in arrival order, to the topic's subscribers. Per spec.md section 4.3, the
// set of subscribers is resnapshotted before each individual message is
// delivered, so a subscribe/unsubscribe that happens mid-drain (from inside
// a callback) takes effect starting with the next message, not the next
// call. The topic lock is never held across a subscriber callback.
//
// The number of messages to pop is snapshotted under the topic lock before
// dispatch begins, so a callback that publishes back onto topic does not
// have its own message popped and dispatched within this same pass — it
// waits for the next ProcessTopic/ProcessAll call. Without this bound, a
// callback that unconditionally republishes to its own topic would make
// this loop never terminate (spec.md section 4.3, dispatch semantics bullet
// 3: such messages must be "processed on a subsequent dispatcher pass, not
// recursively within the current message's handling", for bounded stack and
// predictable ordering).
func (m *PubSubManager) ProcessTopic(name string) error {
	name = m.truncate(name)

	m.mu.Lock()
	idx, ok := m.topicNames[name]
	if !ok {
		m.mu.Unlock()
		return newError(NotFound, "ProcessTopic", "unknown topic: "+name)
	}
	t := m.topics[idx]
	m.mu.Unlock()

	t.mu.Lock()
	n := t.q.Count()
	t.mu.Unlock()

	for ; n > 0; n-- {
		t.mu.Lock()
		msg, ok := t.q.Pop()
		t.mu.Unlock()
		if !ok {
			return nil
		}

		subs := m.subscriberSnapshot(name)
		m.logger.Debug("dispatching message", map[string]any{"topic": name, "key": msg.Key, "subscribers": len(subs)})
		for _, cb := range subs {
			cb.cb(name, msg, cb.userData)
		}
	}
	return nil
}

// ProcessAll calls ProcessTopic for every registered topic, in registration
// order.
func (m *PubSubManager) ProcessAll() error {
	m.mu.Lock()
	names := make([]string, len(m.topics))
	for i, t := range m.topics {
		names[i] = t.name
	}
	m.mu.Unlock()

	for _, name := range names {
		if err := m.ProcessTopic(name); err != nil {
			return err
		}
	}
	return nil
}

func (m *PubSubManager) subscriberSnapshot(topic string) []subscriberSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []subscriberSlot
	for _, s := range m.subscribers {
		if s.inUse && s.topic == topic {
			out = append(out, s)
		}
	}
	return out
}

// QueueSize returns the number of messages currently queued on topic, or -1
// if topic does not exist.
func (m *PubSubManager) QueueSize(name string) int {
	t, ok := m.GetTopic(name)
	if !ok {
		return -1
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.q.Count()
}

// SubscriberCount returns the number of active subscribers on topic.
func (m *PubSubManager) SubscriberCount(name string) int {
	name = m.truncate(name)
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.subscribers {
		if s.inUse && s.topic == name {
			n++
		}
	}
	return n
}

// ClearQueue discards every currently-queued message on topic without
// dispatching it.
func (m *PubSubManager) ClearQueue(name string) error {
	t, ok := m.GetTopic(name)
	if !ok {
		return newError(NotFound, "ClearQueue", "unknown topic: "+name)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.q.Clear()
	return nil
}

// SetAdapter attaches (or, with nil, detaches) the Adapter used to forward
// published messages out of process and to poll inbound ones.
func (m *PubSubManager) SetAdapter(adapter Adapter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adapter = adapter
	return nil
}
