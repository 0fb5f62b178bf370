package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publishN(t *testing.T, bus *Bus, channel string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := bus.Publish(context.Background(), channel, map[string]any{"type": "test", "idx": i})
		require.NoError(t, err)
	}
}

func TestBus_PublishAssignsSequence(t *testing.T) {
	bus := NewBus(0)
	sub := bus.Subscribe("results")
	defer bus.Unsubscribe(sub)

	publishN(t, bus, "results", 3)

	for want := int64(1); want <= 3; want++ {
		msg := <-sub.Events()
		assert.Equal(t, "results", msg.Channel)
		assert.Equal(t, want, msg.Seq)

		var payload map[string]any
		require.NoError(t, json.Unmarshal(msg.Data, &payload))
		assert.Equal(t, float64(want), payload["event_seq"], "event_seq must be injected into the payload")
	}
}

func TestBus_PerChannelSequences(t *testing.T) {
	bus := NewBus(0)

	publishN(t, bus, "results", 2)
	publishN(t, bus, "alerts", 1)

	results, overflow := bus.Replay("results", 0, 10)
	require.False(t, overflow)
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].Seq)
	assert.Equal(t, int64(2), results[1].Seq)

	alerts, overflow := bus.Replay("alerts", 0, 10)
	require.False(t, overflow)
	require.Len(t, alerts, 1)
	assert.Equal(t, int64(1), alerts[0].Seq, "channels have independent sequences")
}

func TestBus_SubscriberChannelIsolation(t *testing.T) {
	bus := NewBus(0)
	resultsSub := bus.Subscribe("results")
	alertsSub := bus.Subscribe("alerts")
	defer bus.Unsubscribe(resultsSub)
	defer bus.Unsubscribe(alertsSub)

	publishN(t, bus, "results", 1)

	msg := <-resultsSub.Events()
	assert.Equal(t, "results", msg.Channel)

	select {
	case unexpected := <-alertsSub.Events():
		t.Fatalf("alerts subscriber received %q event", unexpected.Channel)
	default:
	}
}

func TestBus_MultiChannelSubscription(t *testing.T) {
	bus := NewBus(0)
	sub := bus.Subscribe("results", "aggregates")
	defer bus.Unsubscribe(sub)

	publishN(t, bus, "results", 1)
	publishN(t, bus, "aggregates", 1)

	first := <-sub.Events()
	second := <-sub.Events()
	channels := []string{first.Channel, second.Channel}
	assert.ElementsMatch(t, []string{"results", "aggregates"}, channels)
}

func TestBus_ReplaySince(t *testing.T) {
	bus := NewBus(0)
	publishN(t, bus, "results", 5)

	msgs, overflow := bus.Replay("results", 2, 10)
	require.False(t, overflow)
	require.Len(t, msgs, 3)
	assert.Equal(t, int64(3), msgs[0].Seq)
	assert.Equal(t, int64(5), msgs[2].Seq)
}

func TestBus_ReplayLimitReportsOverflow(t *testing.T) {
	bus := NewBus(0)
	publishN(t, bus, "results", 5)

	msgs, overflow := bus.Replay("results", 0, 3)
	assert.True(t, overflow, "events beyond the cap were missed")
	require.Len(t, msgs, 3)
	assert.Equal(t, int64(1), msgs[0].Seq)
}

func TestBus_ReplayEvictionReportsOverflow(t *testing.T) {
	// Ring of 3: publishing 5 evicts seqs 1-2.
	bus := NewBus(3)
	publishN(t, bus, "results", 5)

	msgs, overflow := bus.Replay("results", 0, 10)
	assert.True(t, overflow, "evicted events are unrecoverable")
	require.Len(t, msgs, 3)
	assert.Equal(t, int64(3), msgs[0].Seq)

	// Resuming from within the retained window is complete.
	msgs, overflow = bus.Replay("results", 3, 10)
	assert.False(t, overflow)
	require.Len(t, msgs, 2)
}

func TestBus_ReplayUnknownChannel(t *testing.T) {
	bus := NewBus(0)
	msgs, overflow := bus.Replay("never-published", 0, 10)
	assert.Empty(t, msgs)
	assert.False(t, overflow)
}

func TestBus_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := NewBus(0)
	sub := bus.Subscribe("results")
	defer bus.Unsubscribe(sub)

	// Publish well past the subscriber buffer without reading. Publish must
	// return promptly every time; old events are dropped instead.
	publishN(t, bus, "results", subscriberBuffer+50)

	// Drain whatever is retained: order must still be ascending.
	var last int64
	count := 0
	for {
		select {
		case msg := <-sub.Events():
			assert.Greater(t, msg.Seq, last, "retained events stay ordered")
			last = msg.Seq
			count++
			continue
		default:
		}
		break
	}
	assert.LessOrEqual(t, count, subscriberBuffer)
	assert.Equal(t, int64(subscriberBuffer+50), last, "newest event is retained")
}

func TestBus_ConcurrentPublishOrder(t *testing.T) {
	bus := NewBus(1000)
	sub := bus.Subscribe("results")
	defer bus.Unsubscribe(sub)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = bus.Publish(context.Background(), "results", map[string]string{"type": "test"})
			}
		}()
	}
	wg.Wait()

	// 100 events; each subscriber sees strictly increasing sequence numbers
	// regardless of publisher interleaving.
	var last int64
	for i := 0; i < 100; i++ {
		msg := <-sub.Events()
		require.Greater(t, msg.Seq, last)
		last = msg.Seq
	}
	assert.Equal(t, int64(100), last)
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(0)
	sub := bus.Subscribe("results")
	bus.Unsubscribe(sub)

	_, open := <-sub.Events()
	assert.False(t, open, "unsubscribed channel must be closed")

	// Double unsubscribe must not panic or double-close.
	assert.NotPanics(t, func() { bus.Unsubscribe(sub) })
}

func TestBus_CloseStopsPublishing(t *testing.T) {
	bus := NewBus(0)
	sub := bus.Subscribe("results")
	bus.Close()

	_, open := <-sub.Events()
	assert.False(t, open)

	err := bus.Publish(context.Background(), "results", map[string]string{"type": "test"})
	assert.Error(t, err)

	assert.NotPanics(t, func() { bus.Close() })
}

func TestBus_PublishUnmarshalablePayload(t *testing.T) {
	bus := NewBus(0)
	err := bus.Publish(context.Background(), "results", map[string]any{"bad": func() {}})
	assert.Error(t, err)
}

// recordingSink captures deliveries for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []Message
}

func (s *recordingSink) Deliver(channel string, event []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, Message{Channel: channel, Data: event})
}

func (s *recordingSink) snapshot() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.events))
	copy(out, s.events)
	return out
}

func TestBus_SinkReceivesAllChannels(t *testing.T) {
	bus := NewBus(0)
	sink := &recordingSink{}
	bus.AddSink(sink)

	publishN(t, bus, "results", 1)
	publishN(t, bus, "alerts", 1)

	events := sink.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, "results", events[0].Channel)
	assert.Equal(t, "alerts", events[1].Channel)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(events[0].Data, &payload))
	assert.Equal(t, float64(1), payload["event_seq"], "sinks receive the enriched payload")
}

func TestSessionChannel(t *testing.T) {
	assert.Equal(t, "session:abc-123", SessionChannel("abc-123"))
	assert.Equal(t, fmt.Sprintf("session:%s", "x"), SessionChannel("x"))
}
