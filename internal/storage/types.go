package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Delivery records one per-endpoint publish attempt.
// Keep it compact and schema-stable.
type Delivery struct {
	At       time.Time `json:"at"`
	Cycle    uint64    `json:"cycle"`
	Endpoint string    `json:"endpoint"`
	Address  string    `json:"address"`
	Topic    string    `json:"topic"`
	Message  string    `json:"message"`
	OK       bool      `json:"ok"`
	Error    string    `json:"err,omitempty"`
	TookMS   int64     `json:"took_ms"`
}

// Journal is the persistence API used by the fan-out publisher.
type Journal interface {
	AppendDeliveries(ctx context.Context, ds []Delivery) error
	Close() error
}
