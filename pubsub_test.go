package cotask

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPubSubManager_CreateTopicIdempotent(t *testing.T) {
	m := NewPubSubManager()
	id1, err := m.CreateTopic("t")
	require.NoError(t, err)
	id2, err := m.CreateTopic("t")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestPubSubManager_CreateTopicExhaustsTable(t *testing.T) {
	m := NewPubSubManager(WithMaxTopics(1))
	_, err := m.CreateTopic("a")
	require.NoError(t, err)
	_, err = m.CreateTopic("b")
	assert.ErrorIs(t, err, ErrResourceExhausted)
}

func TestPubSubManager_SubscribeAutoCreatesTopic(t *testing.T) {
	m := NewPubSubManager()
	_, ok := m.GetTopic("new-topic")
	assert.False(t, ok)

	_, err := m.Subscribe("new-topic", func(string, Message, any) {}, nil)
	require.NoError(t, err)

	_, ok = m.GetTopic("new-topic")
	assert.True(t, ok)
}

func TestPubSubManager_PublishUnknownTopicFails(t *testing.T) {
	m := NewPubSubManager()
	err := m.Publish("missing", Message{Key: 1})
	assert.ErrorIs(t, err, ErrNotFound)
}

// Scenario 1 from spec.md section 8: single producer, single subscriber, 100
// items, delivered in order.
func TestPubSubManager_SingleProducerSingleSubscriberOrdering(t *testing.T) {
	m := NewPubSubManager(WithQueueSize(128))
	_, err := m.CreateTopic("t")
	require.NoError(t, err)

	var got []int
	_, err = m.Subscribe("t", func(topic string, msg Message, _ any) {
		got = append(got, msg.Key)
	}, nil)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		n, _ := NumberValue(uint64(i)).Number()
		require.True(t, n == uint64(i))
		require.NoError(t, m.Publish("t", Message{Key: i, Value: NumberValue(uint64(i))}))
	}

	require.NoError(t, m.ProcessTopic("t"))

	require.Len(t, got, 100)
	for i, k := range got {
		assert.Equal(t, i, k)
	}
}

// Scenario 2 from spec.md section 8: full-queue back-pressure.
func TestPubSubManager_FullQueueBackPressure(t *testing.T) {
	m := NewPubSubManager(WithQueueSize(64))
	_, err := m.CreateTopic("t")
	require.NoError(t, err)

	for i := 0; i < 63; i++ {
		require.NoError(t, m.Publish("t", Message{Key: i}), "publish %d should succeed", i)
	}
	err = m.Publish("t", Message{Key: 63})
	assert.ErrorIs(t, err, ErrResourceExhausted)

	require.NoError(t, m.ProcessTopic("t"))
	assert.Equal(t, 0, m.QueueSize("t"))

	assert.NoError(t, m.Publish("t", Message{Key: 100}))
}

// Scenario 3 from spec.md section 8: multi-producer fan-in, single subscriber.
func TestPubSubManager_MultiProducerFanIn(t *testing.T) {
	m := NewPubSubManager(WithQueueSize(512))
	_, err := m.CreateTopic("t")
	require.NoError(t, err)

	results := make(map[int]uint64)
	var mu sync.Mutex
	_, err = m.Subscribe("t", func(topic string, msg Message, _ any) {
		mu.Lock()
		n, _ := msg.Value.Number()
		results[msg.Key] = n
		mu.Unlock()
	}, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				key := p*250 + i
				for {
					if err := m.Publish("t", Message{Key: key, Value: NumberValue(uint64(key))}); err == nil {
						break
					}
					// Queue full: drain it so the retry can succeed.
					assert.NoError(t, m.ProcessAll())
				}
			}
		}()
	}
	wg.Wait()

	require.NoError(t, m.ProcessAll())

	assert.Len(t, results, 1000)
	for k := 0; k < 1000; k++ {
		v, ok := results[k]
		assert.True(t, ok, "missing key %d", k)
		assert.Equal(t, uint64(k), v)
	}
}

func TestPubSubManager_UnsubscribeStopsDelivery(t *testing.T) {
	m := NewPubSubManager()
	_, err := m.CreateTopic("t")
	require.NoError(t, err)

	calls := 0
	id, err := m.Subscribe("t", func(string, Message, any) { calls++ }, nil)
	require.NoError(t, err)

	require.NoError(t, m.Publish("t", Message{Key: 1}))
	require.NoError(t, m.ProcessTopic("t"))
	assert.Equal(t, 1, calls)

	require.NoError(t, m.Unsubscribe(id))
	require.NoError(t, m.Publish("t", Message{Key: 2}))
	require.NoError(t, m.ProcessTopic("t"))
	assert.Equal(t, 1, calls, "unsubscribed callback must not fire again")
}

func TestPubSubManager_ClearQueueDiscardsWithoutDispatch(t *testing.T) {
	m := NewPubSubManager()
	_, err := m.CreateTopic("t")
	require.NoError(t, err)

	calls := 0
	_, err = m.Subscribe("t", func(string, Message, any) { calls++ }, nil)
	require.NoError(t, err)

	require.NoError(t, m.Publish("t", Message{Key: 1}))
	require.NoError(t, m.ClearQueue("t"))
	require.NoError(t, m.ProcessTopic("t"))
	assert.Equal(t, 0, calls)
}

func TestPubSubManager_PublishDoesNotDispatchDirectly(t *testing.T) {
	m := NewPubSubManager()
	_, err := m.CreateTopic("t")
	require.NoError(t, err)

	calls := 0
	_, err = m.Subscribe("t", func(string, Message, any) { calls++ }, nil)
	require.NoError(t, err)

	require.NoError(t, m.Publish("t", Message{Key: 1}))
	assert.Equal(t, 0, calls, "Publish must never dispatch directly")
	assert.Equal(t, 1, m.QueueSize("t"))
}

// Scenario 5 from spec.md section 8: adapter-poll ingestion never re-forwards
// inbound messages back out.
func TestPubSubManager_AdapterPollIngestionDoesNotForwardOutbound(t *testing.T) {
	m := NewPubSubManager()
	_, err := m.CreateTopic("ext")
	require.NoError(t, err)

	var got []int
	_, err = m.Subscribe("ext", func(topic string, msg Message, _ any) {
		got = append(got, msg.Key)
	}, nil)
	require.NoError(t, err)

	inbound := []Message{{Key: 1}, {Key: 2}, {Key: 3}}
	idx := 0
	outboundCalls := 0
	require.NoError(t, m.SetAdapter(AdapterFuncs{
		PublishOutFunc: func(ctx context.Context, topic string, msg Message) bool {
			outboundCalls++
			return true
		},
		PollInFunc: func(ctx context.Context) (string, Message, bool) {
			if idx >= len(inbound) {
				return "", Message{}, false
			}
			msg := inbound[idx]
			idx++
			return "ext", msg, true
		},
	}))

	require.NoError(t, m.PollAdapter(context.Background()))
	require.NoError(t, m.ProcessAll())

	require.Len(t, got, 3)
	assert.Equal(t, []int{1, 2, 3}, got)
	assert.Equal(t, 0, outboundCalls, "inbound messages must never be re-forwarded out")
}

func TestPubSubManager_PublishForwardsToAdapter(t *testing.T) {
	m := NewPubSubManager()
	_, err := m.CreateTopic("t")
	require.NoError(t, err)

	var forwarded []int
	require.NoError(t, m.SetAdapter(AdapterFuncs{
		PublishOutFunc: func(ctx context.Context, topic string, msg Message) bool {
			forwarded = append(forwarded, msg.Key)
			return true
		},
	}))

	require.NoError(t, m.Publish("t", Message{Key: 7}))
	assert.Equal(t, []int{7}, forwarded)
}

// A subscriber that republishes to its own topic must not have that new
// message dispatched within the same ProcessTopic pass — spec.md section
// 4.3 requires deferral to a subsequent pass for bounded stack depth and
// predictable ordering. Without the pass-bound, this callback would recurse
// forever within a single ProcessTopic call.
func TestPubSubManager_ProcessTopic_RepublishIsDeferredToNextPass(t *testing.T) {
	m := NewPubSubManager(WithQueueSize(64))
	_, err := m.CreateTopic("t")
	require.NoError(t, err)

	var seen []int
	_, err = m.Subscribe("t", func(topic string, msg Message, _ any) {
		seen = append(seen, msg.Key)
		if msg.Key < 3 {
			require.NoError(t, m.Publish(topic, Message{Key: msg.Key + 1}))
		}
	}, nil)
	require.NoError(t, err)

	require.NoError(t, m.Publish("t", Message{Key: 0}))

	require.NoError(t, m.ProcessTopic("t"))
	assert.Equal(t, []int{0}, seen, "the republished message must wait for the next pass")
	assert.Equal(t, 1, m.QueueSize("t"))

	require.NoError(t, m.ProcessTopic("t"))
	assert.Equal(t, []int{0, 1}, seen)

	require.NoError(t, m.ProcessTopic("t"))
	assert.Equal(t, []int{0, 1, 2}, seen)

	require.NoError(t, m.ProcessTopic("t"))
	assert.Equal(t, []int{0, 1, 2, 3}, seen)
	assert.Equal(t, 0, m.QueueSize("t"))
}

func TestPubSubManager_TopicNameTruncation(t *testing.T) {
	m := NewPubSubManager(WithTopicNameLimit(5)) // 4 usable chars + NUL
	id1, err := m.CreateTopic("abcdXYZ")
	require.NoError(t, err)
	id2, err := m.CreateTopic("abcdQQQ")
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "names truncated to the same prefix must collide")
}
