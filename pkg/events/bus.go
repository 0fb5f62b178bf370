package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// subscriberBuffer is the per-subscriber queue depth. When a subscriber
// falls this far behind, its oldest queued events are dropped; the channel
// replay ring covers the gap for consumers that resume via catchup.
const subscriberBuffer = 256

// defaultReplaySize is the per-channel replay ring capacity.
const defaultReplaySize = 200

// Message is one delivered event: the channel it was published on, its
// per-channel sequence number, and the self-describing JSON payload (with
// event_seq injected).
type Message struct {
	Channel string
	Seq     int64
	Data    []byte
}

// Sink receives every published event for a channel. Implemented by the
// WebSocket ConnectionManager; deliveries run outside the bus lock and must
// tolerate slow or failed sends internally.
type Sink interface {
	Deliver(channel string, event []byte)
}

// Subscription is one in-process consumer's ordered event queue.
type Subscription struct {
	ch       chan Message
	channels map[string]bool
}

// Events returns the receive channel. It is closed when the subscription is
// cancelled.
func (s *Subscription) Events() <-chan Message {
	return s.ch
}

// push enqueues without blocking, dropping the oldest queued message when
// the buffer is full. Relative order of retained messages is preserved.
func (s *Subscription) push(m Message) {
	select {
	case s.ch <- m:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- m:
	default:
	}
}

// replayRing is a bounded per-channel event history with a monotonic
// sequence counter.
type replayRing struct {
	seq    int64
	events []Message
	max    int
}

func (r *replayRing) add(m Message) {
	r.events = append(r.events, m)
	if len(r.events) > r.max {
		r.events = r.events[len(r.events)-r.max:]
	}
}

// since returns events with Seq > sinceSeq, oldest first, capped at limit.
// The second return reports whether events beyond the cap (or already
// evicted from the ring) were missed.
func (r *replayRing) since(sinceSeq int64, limit int) ([]Message, bool) {
	var out []Message
	for _, m := range r.events {
		if m.Seq > sinceSeq {
			out = append(out, m)
		}
	}
	// Events evicted from the ring are unrecoverable; detect the gap by
	// comparing the first retained seq with the requested position.
	missedEvicted := len(r.events) > 0 && r.events[0].Seq > sinceSeq+1
	if len(out) > limit {
		return out[:limit], true
	}
	return out, missedEvicted
}

// Bus is the in-process publish/subscribe fabric. Channels are created on
// first use; publication never fails for lack of subscribers.
type Bus struct {
	mu    sync.RWMutex
	subs  map[string]map[*Subscription]struct{}
	rings map[string]*replayRing
	sinks []Sink

	replaySize int
	closed     bool
}

// NewBus creates a bus with the given per-channel replay capacity.
// A non-positive size uses the default.
func NewBus(replaySize int) *Bus {
	if replaySize <= 0 {
		replaySize = defaultReplaySize
	}
	return &Bus{
		subs:       make(map[string]map[*Subscription]struct{}),
		rings:      make(map[string]*replayRing),
		replaySize: replaySize,
	}
}

// AddSink registers a fan-out sink for every channel.
func (b *Bus) AddSink(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// Publish marshals the payload, assigns the next per-channel sequence,
// stores the event in the replay ring and delivers it to subscribers and
// sinks. Delivery is best-effort; the only error condition is an
// unmarshalable payload or a closed bus.
func (b *Bus) Publish(ctx context.Context, channel string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("bus closed")
	}
	ring, ok := b.rings[channel]
	if !ok {
		ring = &replayRing{max: b.replaySize}
		b.rings[channel] = ring
	}
	ring.seq++
	enriched, err := injectSeq(data, ring.seq)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	m := Message{Channel: channel, Seq: ring.seq, Data: enriched}
	ring.add(m)

	// Pushes are non-blocking, so holding the lock here is what preserves
	// per-channel order across concurrent publishers.
	for sub := range b.subs[channel] {
		sub.push(m)
	}
	sinks := make([]Sink, len(b.sinks))
	copy(sinks, b.sinks)
	b.mu.Unlock()

	for _, s := range sinks {
		s.Deliver(channel, enriched)
	}
	return nil
}

// Subscribe registers an ordered consumer for the given channels.
func (b *Bus) Subscribe(channels ...string) *Subscription {
	sub := &Subscription{
		ch:       make(chan Message, subscriberBuffer),
		channels: make(map[string]bool, len(channels)),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range channels {
		sub.channels[c] = true
		set, ok := b.subs[c]
		if !ok {
			set = make(map[*Subscription]struct{})
			b.subs[c] = set
		}
		set[sub] = struct{}{}
	}
	return sub
}

// Unsubscribe removes the subscription and closes its event channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(sub)
}

func (b *Bus) removeLocked(sub *Subscription) {
	removed := false
	for c := range sub.channels {
		if set, ok := b.subs[c]; ok {
			if _, present := set[sub]; present {
				delete(set, sub)
				removed = true
				if len(set) == 0 {
					delete(b.subs, c)
				}
			}
		}
	}
	if removed {
		close(sub.ch)
	}
}

// Replay returns events on the channel with seq > sinceSeq, oldest first,
// capped at limit. The boolean reports overflow: events were missed that
// the ring no longer holds (or more remain beyond the cap).
func (b *Bus) Replay(channel string, sinceSeq int64, limit int) ([]Message, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ring, ok := b.rings[channel]
	if !ok {
		return nil, false
	}
	return ring.since(sinceSeq, limit)
}

// Close shuts the bus down, closing every subscriber channel. Publishing
// after Close returns an error.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	seen := make(map[*Subscription]bool)
	for _, set := range b.subs {
		for sub := range set {
			seen[sub] = true
		}
	}
	for sub := range seen {
		b.removeLocked(sub)
	}
}

// injectSeq adds the per-channel sequence number to the payload JSON so
// live and replayed deliveries carry identical position information.
func injectSeq(payload []byte, seq int64) ([]byte, error) {
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("unmarshal payload for event_seq injection: %w", err)
	}
	m["event_seq"] = seq
	enriched, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal enriched payload: %w", err)
	}
	return enriched, nil
}

