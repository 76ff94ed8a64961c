// Package tail prints every message on a topic filter, one line each.
package tail

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"remarker/internal/transport/mqtt"
	logx "remarker/pkg/logx"
)

// DiagnosticsTopic carries instrument diagnostics.
const DiagnosticsTopic = "licor/niobrara/output/diagnostics"

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

var shorthands = map[string]string{
	"remark": mqtt.RemarkTopic,
	"diag":   DiagnosticsTopic,
}

// ExpandTopic resolves a shorthand such as "remark" to its full topic.
// An empty argument means every topic.
func ExpandTopic(arg string) string {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return mqtt.WildcardTopic
	}
	if full, ok := shorthands[arg]; ok {
		return full
	}
	return arg
}

// Printer formats received messages.
type Printer struct {
	mu    sync.Mutex
	w     io.Writer
	topic *color.Color
}

// NewPrinter writes to w. Topics are colored only when colorize is set.
func NewPrinter(w io.Writer, colorize bool) *Printer {
	c := color.New(color.FgCyan, color.Bold)
	if colorize {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return &Printer{w: w, topic: c}
}

// Print writes "Time: <ts> Topic: <topic> | <payload>".
func (p *Printer) Print(m mqtt.Message) {
	ts := m.Received
	if ts.IsZero() {
		ts = time.Now()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "Time: %s Topic: %s | %s\n", ts.Format(timeLayout), p.topic.Sprint(m.Topic), m.Payload)
}

// Run subscribes conn to filter and prints until ctx is cancelled. It
// unsubscribes before returning; closing conn is left to the caller.
func Run(ctx context.Context, conn mqtt.Conn, filter string, p *Printer, log logx.Logger) error {
	if err := conn.Subscribe(ctx, filter, p.Print); err != nil {
		return err
	}
	log.Info("subscribed", logx.String("filter", filter))

	<-ctx.Done()

	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := conn.Unsubscribe(uctx, filter); err != nil {
		log.Warn("unsubscribe failed", logx.String("filter", filter), logx.Err(err))
	}
	return nil
}
