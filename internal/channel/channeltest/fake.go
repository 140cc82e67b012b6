// Package channeltest provides an in-process push channel for tests.
package channeltest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/vigilhq/vigil/internal/channel"
)

// Emitted records one client → server message.
type Emitted struct {
	Conn    int
	Event   string
	Payload any
}

// Dialer hands out fake connections and records everything sent on them.
type Dialer struct {
	mu      sync.Mutex
	conns   []*Conn
	log     []Emitted
	failErr error
	dialed  chan int
}

// NewDialer returns a ready fake dialer.
func NewDialer() *Dialer {
	return &Dialer{dialed: make(chan int, 64)}
}

// FailWith makes subsequent dials return err (nil restores success).
func (d *Dialer) FailWith(err error) {
	d.mu.Lock()
	d.failErr = err
	d.mu.Unlock()
}

// Dial implements channel.Dialer.
func (d *Dialer) Dial(ctx context.Context, h channel.Handler) (channel.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	if d.failErr != nil {
		err := d.failErr
		d.mu.Unlock()
		return nil, err
	}
	c := &Conn{id: len(d.conns), dialer: d, handler: h}
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	d.dialed <- c.id
	return c, nil
}

// Dialed delivers the index of every successful dial.
func (d *Dialer) Dialed() <-chan int { return d.dialed }

// Conn returns the i-th connection handed out.
func (d *Dialer) Conn(i int) *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

// Count returns how many connections were opened.
func (d *Dialer) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

// Log returns a copy of everything emitted so far, in order.
func (d *Dialer) Log() []Emitted {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Emitted(nil), d.log...)
}

// Open returns the number of connections not yet closed.
func (d *Dialer) Open() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.conns {
		if !c.closed {
			n++
		}
	}
	return n
}

// Conn is a fake subscription.
type Conn struct {
	id      int
	dialer  *Dialer
	handler channel.Handler
	closed  bool
}

// ErrClosed is returned when emitting on a closed fake connection.
var ErrClosed = channel.ErrClosed

// Emit implements channel.Conn.
func (c *Conn) Emit(event string, payload any) error {
	c.dialer.mu.Lock()
	defer c.dialer.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.dialer.log = append(c.dialer.log, Emitted{Conn: c.id, Event: event, Payload: payload})
	return nil
}

// Close implements channel.Conn.
func (c *Conn) Close() error {
	c.dialer.mu.Lock()
	defer c.dialer.mu.Unlock()
	c.closed = true
	return nil
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.dialer.mu.Lock()
	defer c.dialer.mu.Unlock()
	return c.closed
}

// Push delivers a server → client detection message, as the backend would.
// Messages pushed after Close are still delivered, to exercise stale-event
// handling in the receiver.
func (c *Conn) Push(body string) {
	c.handler(json.RawMessage(body))
}
