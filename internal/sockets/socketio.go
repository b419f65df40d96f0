package sockets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	gosocketio "github.com/graarh/golang-socketio"
	"github.com/graarh/golang-socketio/protocol"
	"github.com/graarh/golang-socketio/transport"
)

var ErrClosed = errors.New("socket is closed")

// closeFlushTimeout bounds how long Close waits for emitted messages to be
// written.
const closeFlushTimeout = time.Second

// SocketIODialer connects to a Socket.IO relay over websocket.
type SocketIODialer struct{}

func NewSocketIODialer() *SocketIODialer {
	return &SocketIODialer{}
}

func (d *SocketIODialer) Dial(ctx context.Context, url string) (Conn, error) {
	type result struct {
		client *gosocketio.Client
		err    error
	}
	done := make(chan result, 1)

	handlers := newHandlerRegistry()
	queue := newEventQueue()
	go queue.run(handlers.deliver)

	tr := &orderedTransport{Transport: transport.GetDefaultWebsocketTransport(), queue: queue}
	go func() {
		client, err := gosocketio.Dial(url, tr)
		done <- result{client: client, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			queue.stop()
			queue.finish()
			return nil, classifyDialError(r.err)
		}
		return newSocketConn(r.client, tr.conn, handlers, queue)
	case <-ctx.Done():
		// the dial keeps running; close whatever it produces
		go func() {
			r := <-done
			queue.stop()
			if r.client != nil {
				r.client.Close()
			} else {
				queue.finish()
			}
		}()
		return nil, ctx.Err()
	}
}

func classifyDialError(err error) error {
	if errors.Is(err, websocket.ErrBadHandshake) {
		return fmt.Errorf("relay rejected the websocket handshake (check the server URL and path): %w", err)
	}
	return fmt.Errorf("dial relay: %w", err)
}

type socketConn struct {
	client       *gosocketio.Client
	conn         *orderedConnection
	queued       atomic.Int64
	handlers     *handlerRegistry
	queue        *eventQueue
	mutex        sync.Mutex
	onDisconnect func(error)
	dropErr      error
	closed       atomic.Bool
}

func newSocketConn(client *gosocketio.Client, conn *orderedConnection, handlers *handlerRegistry, queue *eventQueue) (*socketConn, error) {
	s := &socketConn{
		client:   client,
		conn:     conn,
		handlers: handlers,
		queue:    queue,
	}

	if err := client.On(gosocketio.OnDisconnection, func(_ *gosocketio.Channel) {
		s.disconnected(errors.New("relay closed the connection"))
	}); err != nil {
		s.Close()
		return nil, err
	}
	if err := client.On(gosocketio.OnError, func(_ *gosocketio.Channel) {
		s.disconnected(errors.New("relay connection error"))
	}); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

func (s *socketConn) disconnected(err error) {
	if s.closed.Load() {
		return
	}
	s.mutex.Lock()
	if s.dropErr != nil {
		s.mutex.Unlock()
		return
	}
	s.dropErr = err
	f := s.onDisconnect
	s.mutex.Unlock()

	slog.Debug("socket.io connection dropped", "error", err)
	if f != nil {
		f(err)
	}
}

func (s *socketConn) On(event string, h Handler) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.handlers.set(event, h)
	return nil
}

func (s *socketConn) OnSignal(event string, h func()) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.handlers.set(event, func(json.RawMessage) { h() })
	return nil
}

func (s *socketConn) Off(event string) {
	s.handlers.remove(event)
}

func (s *socketConn) Resume() {
	s.queue.resume()
}

// OnDisconnect installs f. If the connection already dropped, f is called
// right away with that error.
func (s *socketConn) OnDisconnect(f func(err error)) {
	s.mutex.Lock()
	s.onDisconnect = f
	err := s.dropErr
	s.mutex.Unlock()

	if err != nil && f != nil && !s.closed.Load() {
		go f(err)
	}
}

func (s *socketConn) Emit(event string, payload any) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.client.Emit(event, payload); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	s.queued.Add(1)
	return nil
}

func (s *socketConn) Ack(event string, payload any, timeout time.Duration) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	s.queued.Add(1)
	result, err := s.client.Ack(event, payload, timeout)
	if err != nil {
		return nil, fmt.Errorf("ack %s: %w", event, err)
	}
	return []byte(result), nil
}

func (s *socketConn) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.handlers.clear()
	s.queue.stop()
	s.flush()
	s.client.Close()
	slog.Debug("closed socket.io connection")
	return nil
}

// flush waits until everything emitted so far is on the wire. The client
// drops its unsent queue on close, which would lose a final hang-up.
func (s *socketConn) flush() {
	deadline := time.After(closeFlushTimeout)
	for s.client.IsAlive() && s.conn.written.Load() < s.queued.Load() {
		select {
		case <-s.conn.wrote:
		case <-deadline:
			slog.Warn("closing with unsent messages", "pending", s.queued.Load()-s.conn.written.Load())
			return
		}
	}
}

// orderedTransport takes event packets off the client's read loop. The
// library runs each inbound packet on its own goroutine, which loses the
// order the relay sent them in; events go through an eventQueue instead.
type orderedTransport struct {
	transport.Transport
	queue *eventQueue
	conn  *orderedConnection
}

func (t *orderedTransport) Connect(url string) (transport.Connection, error) {
	conn, err := t.Transport.Connect(url)
	if err != nil {
		return nil, err
	}
	t.conn = &orderedConnection{Connection: conn, queue: t.queue, wrote: make(chan struct{}, 1)}
	return t.conn, nil
}

type orderedConnection struct {
	transport.Connection
	queue   *eventQueue
	written atomic.Int64
	wrote   chan struct{}
}

// WriteMessage counts the socket.io packets written; engine.io pings and
// pongs are not counted.
func (c *orderedConnection) WriteMessage(message string) error {
	if err := c.Connection.WriteMessage(message); err != nil {
		return err
	}
	if message == protocol.PingMessage || message == protocol.PongMessage {
		return nil
	}
	c.written.Add(1)
	select {
	case c.wrote <- struct{}{}:
	default:
	}
	return nil
}

// GetMessage is only called by the client's read loop. Events are queued and
// never returned; an acknowledgement queues a hold before it is returned, so
// events the relay sent after it wait for Resume.
func (c *orderedConnection) GetMessage() (string, error) {
	for {
		pkg, err := c.Connection.GetMessage()
		if err != nil {
			c.queue.finish()
			return "", err
		}
		msg, err := protocol.Decode(pkg)
		if err != nil {
			return pkg, nil
		}
		switch msg.Type {
		case protocol.MessageTypeEmit:
			var payload json.RawMessage
			if msg.Args != "" {
				payload = json.RawMessage(msg.Args)
			}
			c.queue.push(queuedEvent{event: msg.Method, payload: payload})
		case protocol.MessageTypeAckResponse:
			c.queue.push(queuedEvent{hold: true})
			return pkg, nil
		default:
			return pkg, nil
		}
	}
}
