package sockets

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Handler receives the raw JSON argument of a relay event.
type Handler func(payload json.RawMessage)

// Conn is a logical, event-oriented connection to the relay.
type Conn interface {
	// On installs the handler for event, replacing any previous one.
	On(event string, h Handler) error
	// OnSignal installs a handler for an event whose payload is ignored.
	OnSignal(event string, h func()) error
	// Off removes the handler for event; later deliveries are dropped.
	Off(event string)
	// Resume releases held events. Events are delivered one at a time in the
	// order they were received, but delivery is held after Dial and after
	// every acknowledgement until Resume is called, so the caller can install
	// the handlers that should see what follows.
	Resume()
	// OnDisconnect is called once if the connection drops without Close.
	OnDisconnect(f func(err error))
	Emit(event string, payload any) error
	// Ack emits event and waits for the relay's acknowledgement.
	Ack(event string, payload any, timeout time.Duration) ([]byte, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type handlerRegistry struct {
	mutex    sync.Mutex
	handlers map[string]Handler
}

func newHandlerRegistry() *handlerRegistry {
	return &handlerRegistry{handlers: make(map[string]Handler)}
}

// set stores h and reports whether event had a handler before.
func (r *handlerRegistry) set(event string, h Handler) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	_, existed := r.handlers[event]
	r.handlers[event] = h
	return existed
}

func (r *handlerRegistry) remove(event string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.handlers, event)
}

func (r *handlerRegistry) clear() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	clear(r.handlers)
}

func (r *handlerRegistry) dispatch(event string, payload json.RawMessage) bool {
	r.mutex.Lock()
	h, ok := r.handlers[event]
	r.mutex.Unlock()
	if !ok {
		return false
	}
	h(payload)
	return true
}

func (r *handlerRegistry) deliver(event string, payload json.RawMessage) {
	if !r.dispatch(event, payload) {
		slog.Debug("no handler for relay event, dropping", "event", event)
	}
}

const eventQueueSize = 512

type queuedEvent struct {
	event   string
	payload json.RawMessage
	hold    bool
}

// eventQueue delivers relay events from a single goroutine in arrival order.
// Delivery starts held; each hold item in the stream adds one more hold and
// each resume releases one.
type eventQueue struct {
	items      chan queuedEvent
	mutex      sync.Mutex
	cond       *sync.Cond
	holds      int
	released   int
	stopped    bool
	finishOnce sync.Once
}

func newEventQueue() *eventQueue {
	q := &eventQueue{items: make(chan queuedEvent, eventQueueSize), holds: 1}
	q.cond = sync.NewCond(&q.mutex)
	return q
}

// push is called by the reader only.
func (q *eventQueue) push(item queuedEvent) {
	q.items <- item
}

// finish marks the end of the stream. It is called by the reader only.
func (q *eventQueue) finish() {
	q.finishOnce.Do(func() { close(q.items) })
}

func (q *eventQueue) resume() {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.released++
	q.cond.Broadcast()
}

// stop drops everything not yet delivered.
func (q *eventQueue) stop() {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.stopped = true
	q.cond.Broadcast()
}

// wait blocks while delivery is held and reports whether to deliver.
func (q *eventQueue) wait() bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	for !q.stopped && q.released < q.holds {
		q.cond.Wait()
	}
	return !q.stopped
}

func (q *eventQueue) run(deliver func(event string, payload json.RawMessage)) {
	for item := range q.items {
		if item.hold {
			q.mutex.Lock()
			q.holds++
			q.mutex.Unlock()
			continue
		}
		if q.wait() {
			deliver(item.event, item.payload)
		}
	}
}
