// Package mqtttest provides an in-memory mqtt.Dialer for tests.
package mqtttest

import (
	"context"
	"errors"
	"sync"

	"remarker/internal/transport/mqtt"
)

var ErrRefused = errors.New("connection refused")

// Publication is one message accepted by a fake connection.
type Publication struct {
	Address string
	Topic   string
	Payload string
}

// Dialer records every connection it hands out.
type Dialer struct {
	mu sync.Mutex

	// DialErr fails Dial for the given address.
	DialErr map[string]error
	// OnPublish runs inside Publish before the message is recorded. A non-nil
	// error fails the publish.
	OnPublish func(ctx context.Context, address, topic string, payload []byte) error
	// OnDial runs inside Dial before the connection is created.
	OnDial func(ctx context.Context, address string) error

	conns []*Conn
	pubs  []Publication
}

func (d *Dialer) Dial(ctx context.Context, address string) (mqtt.Conn, error) {
	if d.OnDial != nil {
		if err := d.OnDial(ctx, address); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.DialErr[address]; err != nil {
		return nil, err
	}
	c := &Conn{d: d, Address: address}
	d.conns = append(d.conns, c)
	return c, nil
}

// Conns returns every connection opened so far.
func (d *Dialer) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Conn(nil), d.conns...)
}

// Open counts connections that have not been closed.
func (d *Dialer) Open() int {
	n := 0
	for _, c := range d.Conns() {
		if !c.Closed() {
			n++
		}
	}
	return n
}

// Publications returns every accepted message in arrival order.
func (d *Dialer) Publications() []Publication {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Publication(nil), d.pubs...)
}

// Conn is a fake broker session.
type Conn struct {
	d       *Dialer
	Address string

	mu       sync.Mutex
	closed   bool
	handlers map[string]func(mqtt.Message)
}

func (c *Conn) Publish(ctx context.Context, topic string, payload []byte) error {
	if c.Closed() {
		return errors.New("publish on closed connection")
	}
	if c.d.OnPublish != nil {
		if err := c.d.OnPublish(ctx, c.Address, topic, payload); err != nil {
			return err
		}
	}
	c.d.mu.Lock()
	c.d.pubs = append(c.d.pubs, Publication{Address: c.Address, Topic: topic, Payload: string(payload)})
	c.d.mu.Unlock()
	return nil
}

func (c *Conn) Subscribe(ctx context.Context, filter string, h func(mqtt.Message)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handlers == nil {
		c.handlers = map[string]func(mqtt.Message){}
	}
	c.handlers[filter] = h
	return nil
}

func (c *Conn) Unsubscribe(ctx context.Context, filter string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, filter)
	return nil
}

// Subscribed reports whether a handler is registered for filter.
func (c *Conn) Subscribed(filter string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handlers[filter]
	return ok
}

// Deliver hands m to the handler registered for filter.
func (c *Conn) Deliver(filter string, m mqtt.Message) bool {
	c.mu.Lock()
	h := c.handlers[filter]
	c.mu.Unlock()
	if h == nil {
		return false
	}
	h(m)
	return true
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
