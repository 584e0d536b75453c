// Package bus implements the in-process, topic-keyed publish/subscribe
// event fabric (C1) that every other control-plane component is wired
// through.
//
// Fan-out is synchronous and preserves subscriber registration order per
// topic: publish invokes each current subscriber once, in the order it
// subscribed, on the publishing goroutine. A subscriber's handler panic is
// caught, logged, and does not prevent later handlers — or the publisher —
// from proceeding.
//
// Subscribers that do non-trivial work may opt into async delivery via
// SubscribeAsync: the handler runs on a dedicated per-subscription worker
// goroutine fed by a bounded channel. Overflow drops the oldest queued
// event and increments a drop counter, rather than blocking the publisher.
// Not every subscriber may go async — doing so would reorder delivery
// relative to synchronous subscribers on the same topic, which is why it
// is an explicit per-subscription opt-in rather than a bus-wide mode.
package bus

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forge-hdr/controlplane/internal/logging"
)

// Handler processes a single published payload.
type Handler func(payload interface{})

// SubscriptionID identifies a registered subscription for Unsubscribe.
type SubscriptionID string

type subscription struct {
	id      SubscriptionID
	handler Handler

	// async is non-nil only for async subscriptions.
	async *asyncWorker
}

type asyncWorker struct {
	queue   chan interface{}
	dropped uint64
	mu      sync.Mutex // guards dropped
	stop    chan struct{}
}

// Bus is the event fan-out fabric. Zero value is not usable; use New().
type Bus struct {
	mu     sync.RWMutex
	topics map[string][]*subscription
	log    *zap.Logger
}

// New creates an empty Bus.
func New(log *zap.Logger) *Bus {
	return &Bus{
		topics: make(map[string][]*subscription),
		log:    log,
	}
}

// Subscribe registers handler to be invoked synchronously, on the
// publisher's goroutine, for every subsequent Publish on topic.
func (b *Bus) Subscribe(topic string, handler Handler) SubscriptionID {
	return b.subscribe(topic, handler, nil)
}

// SubscribeAsync registers handler to run on a dedicated worker goroutine
// fed by a bounded queue of the given capacity. Overflow drops the oldest
// queued payload.
func (b *Bus) SubscribeAsync(topic string, handler Handler, queueCapacity int) SubscriptionID {
	w := &asyncWorker{
		queue: make(chan interface{}, queueCapacity),
		stop:  make(chan struct{}),
	}
	go w.run(handler)
	return b.subscribe(topic, handler, w)
}

func (b *Bus) subscribe(topic string, handler Handler, worker *asyncWorker) SubscriptionID {
	id := SubscriptionID(uuid.NewString())
	sub := &subscription{id: id, handler: handler, async: worker}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics[topic] = append(b.topics[topic], sub)
	return id
}

func (w *asyncWorker) run(handler Handler) {
	for {
		select {
		case payload := <-w.queue:
			safeInvoke(handler, payload, nil)
		case <-w.stop:
			return
		}
	}
}

func (w *asyncWorker) enqueue(payload interface{}) {
	select {
	case w.queue <- payload:
	default:
		// Drop oldest, then enqueue newest.
		select {
		case <-w.queue:
			w.mu.Lock()
			w.dropped++
			w.mu.Unlock()
		default:
		}
		select {
		case w.queue <- payload:
		default:
		}
	}
}

// DroppedCount returns the number of payloads dropped by async
// subscriptions on overflow, across all subscriptions on the bus.
func (b *Bus) DroppedCount() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var total uint64
	for _, subs := range b.topics {
		for _, s := range subs {
			if s.async != nil {
				s.async.mu.Lock()
				total += s.async.dropped
				s.async.mu.Unlock()
			}
		}
	}
	return total
}

// Unsubscribe removes a subscription. Idempotent — unsubscribing an
// unknown or already-removed id is a no-op.
func (b *Bus) Unsubscribe(id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for topic, subs := range b.topics {
		for i, s := range subs {
			if s.id == id {
				if s.async != nil {
					close(s.async.stop)
				}
				b.topics[topic] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish invokes every current subscriber of topic once with payload, in
// registration order. Synchronous subscribers run inline; async
// subscribers are handed the payload via their bounded queue. A panicking
// synchronous handler is recovered, logged, and does not stop later
// handlers or return an error to the caller — Publish never blocks on
// subscriber work beyond the handlers' own synchronous execution time.
func (b *Bus) Publish(topic string, payload interface{}) {
	b.mu.RLock()
	subs := make([]*subscription, len(b.topics[topic]))
	copy(subs, b.topics[topic])
	b.mu.RUnlock()

	for _, s := range subs {
		if s.async != nil {
			s.async.enqueue(payload)
			continue
		}
		safeInvoke(s.handler, payload, b.log)
	}
}

func safeInvoke(handler Handler, payload interface{}, log *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			if log != nil {
				log.Error("bus: subscriber panic recovered",
					logging.New().Custom("panic", r).ToZapFields()...)
			}
		}
	}()
	handler(payload)
}

// SubscriberCount returns the number of active subscribers on topic, for
// tests and health diagnostics.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
