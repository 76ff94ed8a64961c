package mqtt

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/paho"
)

type v5Dialer struct{ opt Options }

func (d *v5Dialer) Dial(ctx context.Context, address string) (Conn, error) {
	addr := HostPort(address, d.opt.Port)
	cctx, cancel := withTimeout(ctx, d.opt.ConnectTimeout)
	defer cancel()

	var nd net.Dialer
	nc, err := nd.DialContext(cctx, "tcp", addr)
	if err != nil {
		if cctx.Err() != nil {
			err = ctxErr(ctx, cctx)
		}
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}

	conn := &v5Conn{nc: nc, opt: d.opt}
	clientID := NewClientID(d.opt.ClientIDPrefix)
	conn.c = paho.NewClient(paho.ClientConfig{
		ClientID:          clientID,
		Conn:              nc,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){conn.onPublish},
	})

	keepAlive := uint16(d.opt.KeepAlive / time.Second)
	ca, err := conn.c.Connect(cctx, &paho.Connect{
		ClientID:   clientID,
		KeepAlive:  keepAlive,
		CleanStart: true,
	})
	if err == nil && ca != nil && ca.ReasonCode >= 0x80 {
		err = fmt.Errorf("broker refused connection (reason %d)", ca.ReasonCode)
	}
	if err != nil {
		_ = nc.Close()
		if cctx.Err() != nil {
			err = ctxErr(ctx, cctx)
		}
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	return conn, nil
}

type v5Conn struct {
	nc  net.Conn
	c   *paho.Client
	opt Options

	mu      sync.RWMutex
	handler func(Message)

	once sync.Once
}

func (c *v5Conn) onPublish(pr paho.PublishReceived) (bool, error) {
	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()
	if h == nil || pr.Packet == nil {
		return false, nil
	}
	h(Message{Topic: pr.Packet.Topic, Payload: pr.Packet.Payload, Retained: pr.Packet.Retain, Received: time.Now()})
	return true, nil
}

func (c *v5Conn) Publish(ctx context.Context, topic string, payload []byte) error {
	pctx, cancel := withTimeout(ctx, c.opt.PublishTimeout)
	defer cancel()
	pr, err := c.c.Publish(pctx, &paho.Publish{
		Topic:   topic,
		QoS:     c.opt.QoS,
		Retain:  c.opt.Retain,
		Payload: payload,
	})
	if err == nil && pr != nil && pr.ReasonCode >= 0x80 {
		err = fmt.Errorf("broker rejected publish (reason %d)", pr.ReasonCode)
	}
	if err != nil {
		if pctx.Err() != nil {
			err = ctxErr(ctx, pctx)
		}
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (c *v5Conn) Subscribe(ctx context.Context, filter string, h func(Message)) error {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()

	sctx, cancel := withTimeout(ctx, c.opt.PublishTimeout)
	defer cancel()
	sa, err := c.c.Subscribe(sctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: filter, QoS: c.opt.QoS}},
	})
	if err == nil && sa != nil && len(sa.Reasons) > 0 && sa.Reasons[0] >= 0x80 {
		err = fmt.Errorf("broker rejected subscription (reason %d)", sa.Reasons[0])
	}
	if err != nil {
		if sctx.Err() != nil {
			err = ctxErr(ctx, sctx)
		}
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}
	return nil
}

func (c *v5Conn) Unsubscribe(ctx context.Context, filter string) error {
	uctx, cancel := withTimeout(ctx, c.opt.PublishTimeout)
	defer cancel()
	if _, err := c.c.Unsubscribe(uctx, &paho.Unsubscribe{Topics: []string{filter}}); err != nil {
		if uctx.Err() != nil {
			err = ctxErr(ctx, uctx)
		}
		return fmt.Errorf("unsubscribe %s: %w", filter, err)
	}
	return nil
}

func (c *v5Conn) Close() error {
	var err error
	c.once.Do(func() {
		err = c.c.Disconnect(&paho.Disconnect{ReasonCode: 0})
		// Disconnect may return before the socket is torn down.
		_ = c.nc.Close()
	})
	return err
}
