package pubsub

import (
	"context"
	"sync"

	"github.com/ZJUSCT/CSArena/internal/metrics"
	"go.uber.org/zap"
)

const subscriberBuffer = 128

// Broker is an in-memory pub/sub system partitioned into contest rooms.
// It keeps no history: new subscribers only see events published after
// they joined and recover older state through a full read.
type Broker struct {
	mu    sync.Mutex
	rooms map[string]*room // contest ID -> room
}

type room struct {
	seq         uint64
	subscribers map[chan Event]struct{}
}

func NewBroker() *Broker {
	return &Broker{rooms: make(map[string]*room)}
}

func (b *Broker) room(contestID string) *room {
	r, ok := b.rooms[contestID]
	if !ok {
		r = &room{subscribers: make(map[chan Event]struct{})}
		b.rooms[contestID] = r
	}
	return r
}

// Subscribe joins a contest room. The returned channel is closed when the
// subscription ends, either through the returned unsubscribe function or
// because the subscriber fell too far behind and was evicted.
func (b *Broker) Subscribe(contestID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	b.room(contestID).subscribers[ch] = struct{}{}
	metrics.Subscribers.Inc()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.remove(contestID, ch)
		zap.S().Debugf("unsubscribed from contest %s", contestID)
	}

	zap.S().Debugf("new subscription to contest %s", contestID)
	return ch, unsubscribe
}

// remove must be called with b.mu held; it is a no-op for evicted channels.
func (b *Broker) remove(contestID string, ch chan Event) {
	r, ok := b.rooms[contestID]
	if !ok {
		return
	}
	if _, ok := r.subscribers[ch]; !ok {
		return
	}
	delete(r.subscribers, ch)
	close(ch)
	metrics.Subscribers.Dec()
	if len(r.subscribers) == 0 && r.seq == 0 {
		delete(b.rooms, contestID)
	}
}

// Publish stamps the next sequence number of the contest and delivers the
// event to every subscriber of the room. Publishing holds the broker lock,
// so events of one contest reach each subscriber in publish order.
func (b *Broker) Publish(_ context.Context, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r := b.room(ev.ContestID)
	r.seq++
	ev.Seq = r.seq
	metrics.EventsPublished.WithLabelValues(string(ev.Type)).Inc()

	for ch := range r.subscribers {
		select {
		case ch <- ev:
		default:
			// Skipping one event would leave a silent hole, so the slow
			// subscriber is dropped and has to reconnect and re-read.
			zap.S().Warnf("evicting slow subscriber of contest %s at seq %d", ev.ContestID, ev.Seq)
			metrics.EventsDropped.Inc()
			b.remove(ev.ContestID, ch)
		}
	}
}

// Seq returns the last sequence number issued for a contest.
func (b *Broker) Seq(contestID string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.rooms[contestID]; ok {
		return r.seq
	}
	return 0
}
