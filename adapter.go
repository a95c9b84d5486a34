package cotask

import "context"

// Adapter is the thin shim between a PubSubManager and an external message
// transport (spec.md section 4.4). It is deliberately the only way the bus
// talks to anything outside the process — the transport itself (an MQTT
// broker, a hardware peripheral, whatever) is out of scope per spec.md
// section 1, "referenced only through its interface".
type Adapter interface {
	// PublishOut forwards a locally-enqueued message to the external
	// transport. It is invoked after the local enqueue has already
	// succeeded; its result is best-effort and never affects Publish's own
	// outcome.
	PublishOut(ctx context.Context, topic string, msg Message) bool

	// PollIn drains one inbound message from the external transport, if one
	// is available. ok is false to terminate the current polling sweep.
	PollIn(ctx context.Context) (topic string, msg Message, ok bool)
}

// AdapterFuncs is a convenience Adapter built from two plain functions,
// mirroring the original's function-pointer-pair PubSubMqttAdapter.
type AdapterFuncs struct {
	PublishOutFunc func(ctx context.Context, topic string, msg Message) bool
	PollInFunc     func(ctx context.Context) (topic string, msg Message, ok bool)
}

func (a AdapterFuncs) PublishOut(ctx context.Context, topic string, msg Message) bool {
	if a.PublishOutFunc == nil {
		return false
	}
	return a.PublishOutFunc(ctx, topic, msg)
}

func (a AdapterFuncs) PollIn(ctx context.Context) (string, Message, bool) {
	if a.PollInFunc == nil {
		return "", Message{}, false
	}
	return a.PollInFunc(ctx)
}

// PollAdapter drains every message currently available from the attached
// Adapter's PollIn, publishing each via PublishFromExternal so it is not
// re-forwarded back out to the same transport it just arrived from. It is a
// no-op if no Adapter is attached. The sweep stops at the first PollIn that
// reports ok=false, at ctx cancellation, or at the first PublishFromExternal
// error (e.g. an unknown or full topic), whichever comes first.
func (m *PubSubManager) PollAdapter(ctx context.Context) error {
	m.mu.Lock()
	adapter := m.adapter
	m.mu.Unlock()
	if adapter == nil {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		topic, msg, ok := adapter.PollIn(ctx)
		if !ok {
			return nil
		}
		if err := m.PublishFromExternal(topic, msg); err != nil {
			return err
		}
	}
}
