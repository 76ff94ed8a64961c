package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahov3 "github.com/eclipse/paho.mqtt.golang"
)

// closeQuiesce lets in-flight work finish before the socket is dropped.
const closeQuiesce = 250 // milliseconds

type v3Dialer struct{ opt Options }

func (d *v3Dialer) Dial(ctx context.Context, address string) (Conn, error) {
	broker := "tcp://" + HostPort(address, d.opt.Port)
	o := pahov3.NewClientOptions().
		AddBroker(broker).
		SetClientID(NewClientID(d.opt.ClientIDPrefix)).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetOrderMatters(false).
		SetProtocolVersion(ProtocolV311)
	if d.opt.KeepAlive > 0 {
		o.SetKeepAlive(d.opt.KeepAlive)
	}
	if d.opt.ConnectTimeout > 0 {
		o.SetConnectTimeout(d.opt.ConnectTimeout)
	}

	c := pahov3.NewClient(o)
	if err := waitToken(ctx, c.Connect(), d.opt.ConnectTimeout); err != nil {
		c.Disconnect(0)
		return nil, fmt.Errorf("connect %s: %w", broker, err)
	}
	return &v3Conn{c: c, opt: d.opt}, nil
}

type v3Conn struct {
	c    pahov3.Client
	opt  Options
	once sync.Once
}

func (c *v3Conn) Publish(ctx context.Context, topic string, payload []byte) error {
	tok := c.c.Publish(topic, c.opt.QoS, c.opt.Retain, payload)
	if err := waitToken(ctx, tok, c.opt.PublishTimeout); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (c *v3Conn) Subscribe(ctx context.Context, filter string, h func(Message)) error {
	tok := c.c.Subscribe(filter, c.opt.QoS, func(_ pahov3.Client, m pahov3.Message) {
		h(Message{Topic: m.Topic(), Payload: m.Payload(), Retained: m.Retained(), Received: time.Now()})
	})
	if err := waitToken(ctx, tok, c.opt.PublishTimeout); err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}
	return nil
}

func (c *v3Conn) Unsubscribe(ctx context.Context, filter string) error {
	if err := waitToken(ctx, c.c.Unsubscribe(filter), c.opt.PublishTimeout); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", filter, err)
	}
	return nil
}

func (c *v3Conn) Close() error {
	c.once.Do(func() { c.c.Disconnect(closeQuiesce) })
	return nil
}

// waitToken blocks until tok completes, ctx is done or timeout elapses.
func waitToken(ctx context.Context, tok pahov3.Token, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return ErrTimeout
	}
}
