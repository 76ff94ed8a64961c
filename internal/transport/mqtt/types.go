// Package mqtt is the bus transport used by remarker and remarktail.
//
// Callers depend on the small Dialer/Conn interfaces; NewDialer picks the
// MQTT 3.1.1 (Eclipse Paho) or MQTT 5 (Eclipse Paho v2) implementation.
package mqtt

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"
)

const (
	// RemarkTopic carries remark annotations to every instrument.
	RemarkTopic = "licor/niobrara/system/log_remark"
	// WildcardTopic matches every topic on the broker.
	WildcardTopic = "#"

	DefaultPort = 1883

	ProtocolV311 = 4
	ProtocolV5   = 5
)

// ErrTimeout is returned when a connect, publish or subscribe does not
// complete within its configured deadline.
var ErrTimeout = errors.New("mqtt: operation timed out")

// Message is one received publication.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
	Received time.Time
}

// Options configures every connection made by a Dialer.
type Options struct {
	Port           int
	Protocol       int
	ClientIDPrefix string
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	QoS            byte
	Retain         bool
}

// Conn is one open broker session.
type Conn interface {
	// Publish sends payload on topic and waits for the broker acknowledgement
	// (QoS > 0) or until the publish timeout / ctx expires.
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe registers h for every message matching filter.
	Subscribe(ctx context.Context, filter string, h func(Message)) error
	// Unsubscribe removes the subscription for filter.
	Unsubscribe(ctx context.Context, filter string) error
	// Close disconnects. It is safe to call more than once.
	Close() error
}

// Dialer opens broker sessions.
type Dialer interface {
	Dial(ctx context.Context, address string) (Conn, error)
}

// NewDialer returns the implementation matching opt.Protocol.
func NewDialer(opt Options) Dialer {
	if opt.Port == 0 {
		opt.Port = DefaultPort
	}
	if opt.Protocol == ProtocolV5 {
		return &v5Dialer{opt: opt}
	}
	return &v3Dialer{opt: opt}
}

// HostPort appends port to address unless it already carries one.
func HostPort(address string, port int) string {
	address = strings.TrimSpace(address)
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address
	}
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(strings.Trim(address, "[]"), strconv.Itoa(port))
}

// withTimeout derives a deadline from ctx when d > 0.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// ctxErr maps a deadline from withTimeout onto ErrTimeout while keeping
// parent cancellation visible.
func ctxErr(parent, ctx context.Context) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ctx.Err()
}
