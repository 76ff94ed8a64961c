package tail

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"remarker/internal/transport/mqtt"
	"remarker/internal/transport/mqtt/mqtttest"
	logx "remarker/pkg/logx"
)

func TestExpandTopic(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in, want string
	}{
		{"remark", "licor/niobrara/system/log_remark"},
		{"diag", DiagnosticsTopic},
		{"", "#"},
		{"  ", "#"},
		{"licor/+/output/#", "licor/+/output/#"},
		{"Remark", "Remark"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.in, func(t *testing.T) {
			if got := ExpandTopic(tc.in); got != tc.want {
				t.Fatalf("ExpandTopic(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
	if ExpandTopic("remark") != mqtt.RemarkTopic {
		t.Fatal("remark shorthand must match the publisher topic")
	}
}

func TestPrinterFormat(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	p := NewPrinter(&buf, false)
	at := time.Date(2024, 6, 1, 8, 0, 0, 123_000_000, time.UTC)
	p.Print(mqtt.Message{Topic: mqtt.RemarkTopic, Payload: []byte("zero check"), Received: at})

	want := "Time: 2024-06-01T08:00:00.123Z Topic: licor/niobrara/system/log_remark | zero check\n"
	if buf.String() != want {
		t.Fatalf("line = %q, want %q", buf.String(), want)
	}
}

func TestPrinterColorizesTopic(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	p := NewPrinter(&buf, true)
	p.Print(mqtt.Message{Topic: "a/b", Payload: []byte("x"), Received: time.Now()})
	if !strings.Contains(buf.String(), "\x1b[") {
		t.Fatalf("expected ANSI escape in %q", buf.String())
	}
}

func TestRunPrintsUntilCancelled(t *testing.T) {
	t.Parallel()
	d := &mqtttest.Dialer{}
	c, err := d.Dial(context.Background(), "broker")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	conn := c.(*mqtttest.Conn)

	var buf bytes.Buffer
	p := NewPrinter(&buf, false)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, conn, "#", p, logx.Nop()) }()

	deadline := time.Now().Add(2 * time.Second)
	for !conn.Subscribed("#") {
		if time.Now().After(deadline) {
			t.Fatal("never subscribed")
		}
		time.Sleep(time.Millisecond)
	}
	conn.Deliver("#", mqtt.Message{Topic: "t/1", Payload: []byte("one"), Received: time.Now()})
	conn.Deliver("#", mqtt.Message{Topic: "t/2", Payload: []byte("two"), Received: time.Now()})
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	if conn.Subscribed("#") {
		t.Fatal("Run should unsubscribe on exit")
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.HasSuffix(lines[1], "Topic: t/2 | two") {
		t.Fatalf("output = %q", buf.String())
	}
}
