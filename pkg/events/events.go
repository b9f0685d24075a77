// Package events fans committed ledger events out to in-process subscribers.
package events

import (
	"sync"

	"github.com/dropop-labs/dropop-go/pkg/types"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// EventQueueSize is the buffer of each subscriber channel. A subscriber that falls
// further behind than this loses events rather than stalling the publisher.
const EventQueueSize = 64

type HandlerFunc func(types.Event)

// IEventPublisher is the side of the bus the ledger depends on.
type IEventPublisher interface {
	Publish(evt types.Event)
}

type subscriber struct {
	ch     chan types.Event
	mu     sync.RWMutex
	closed bool
}

func newSubscriber(buffer int) *subscriber {
	return &subscriber{ch: make(chan types.Event, buffer)}
}

// deliver reports false when the event could not be queued.
func (s *subscriber) deliver(evt types.Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- evt:
		return true
	default:
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

type EventBus struct {
	subscribers map[types.EventType]map[uuid.UUID]*subscriber
	mu          sync.RWMutex
	logger      *zap.Logger
	metrics     *busMetrics
	handlerWg   sync.WaitGroup
}

var _ IEventPublisher = (*EventBus)(nil)

// NewEventBus creates a bus. A nil registry disables metrics.
func NewEventBus(promRegistry prometheus.Registerer, logger *zap.Logger) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &EventBus{
		subscribers: make(map[types.EventType]map[uuid.UUID]*subscriber),
		logger:      logger,
	}
	if promRegistry != nil {
		e.metrics = newBusMetrics(promRegistry)
	}
	return e
}

// Subscribe returns a channel receiving every event of eventType published from now on.
// The channel is closed by Unsubscribe or Stop.
func (e *EventBus) Subscribe(eventType types.EventType) (uuid.UUID, <-chan types.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sub := newSubscriber(EventQueueSize)
	id := uuid.New()
	if _, ok := e.subscribers[eventType]; !ok {
		e.subscribers[eventType] = make(map[uuid.UUID]*subscriber)
	}
	e.subscribers[eventType][id] = sub
	if e.metrics != nil {
		e.metrics.subscribers.WithLabelValues(string(eventType)).Inc()
	}
	return id, sub.ch
}

// SubscribeFunc calls handlerFunc for every event of eventType on a dedicated goroutine,
// in publish order.
func (e *EventBus) SubscribeFunc(eventType types.EventType, handlerFunc HandlerFunc) uuid.UUID {
	id, ch := e.Subscribe(eventType)
	e.handlerWg.Add(1)
	go func() {
		defer e.handlerWg.Done()
		for evt := range ch {
			handlerFunc(evt)
		}
	}()
	return id
}

// Unsubscribe stops delivery to an existing subscriber and closes its channel.
func (e *EventBus) Unsubscribe(eventType types.EventType, id uuid.UUID) {
	e.mu.Lock()
	var toClose *subscriber
	if subs, ok := e.subscribers[eventType]; ok {
		if sub, ok := subs[id]; ok {
			toClose = sub
			delete(subs, id)
			if len(subs) == 0 {
				delete(e.subscribers, eventType)
			}
			if e.metrics != nil {
				e.metrics.subscribers.WithLabelValues(string(eventType)).Dec()
			}
		}
	}
	e.mu.Unlock()

	if toClose != nil {
		toClose.close()
	}
}

// Publish delivers evt to every subscriber of its type without blocking.
func (e *EventBus) Publish(evt types.Event) {
	eventType := evt.Type()

	e.mu.RLock()
	subs := make([]*subscriber, 0, len(e.subscribers[eventType]))
	for _, sub := range e.subscribers[eventType] {
		subs = append(subs, sub)
	}
	e.mu.RUnlock()

	for _, sub := range subs {
		if !sub.deliver(evt) {
			e.logger.Sugar().Warnw("Subscriber queue full, dropping event", "type", eventType)
			if e.metrics != nil {
				e.metrics.dropped.WithLabelValues(string(eventType)).Inc()
			}
		}
	}
	if e.metrics != nil {
		e.metrics.eventsTotal.WithLabelValues(string(eventType)).Inc()
	}
}

// Stop closes every subscriber and waits for SubscribeFunc handlers to drain.
// The bus stays usable; later subscriptions start from an empty set.
func (e *EventBus) Stop() {
	e.mu.Lock()
	subsCopy := e.subscribers
	e.subscribers = make(map[types.EventType]map[uuid.UUID]*subscriber)
	e.mu.Unlock()

	for _, subs := range subsCopy {
		for _, sub := range subs {
			sub.close()
		}
	}
	if e.metrics != nil {
		e.metrics.subscribers.Reset()
	}
	e.handlerWg.Wait()
}
