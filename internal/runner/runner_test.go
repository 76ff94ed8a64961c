package runner

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"remarker/internal/endpoint"
	"remarker/internal/fanout"
	"remarker/internal/schedule"
	"remarker/internal/transport/mqtt/mqtttest"
	logx "remarker/pkg/logx"
)

// allDay resolves to "remark" at any time of day.
func allDay() *schedule.Store {
	return schedule.NewStatic(schedule.New([]schedule.Entry{{At: schedule.Clock(0, 0, 0), Message: "remark"}}))
}

func newPublisher(t *testing.T, d *mqtttest.Dialer) *fanout.Publisher {
	t.Helper()
	reg, err := endpoint.NewRegistry(map[string]string{"E1": "10.0.0.1", "E2": "10.0.0.2"})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return fanout.New(fanout.Config{Location: time.UTC}, d, reg, allDay(), nil, logx.Nop())
}

func runAsync(ctx context.Context, r *Runner) <-chan error {
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	return done
}

func waitDone(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestParseMode(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModePerCycle, false},
		{"per_cycle", ModePerCycle, false},
		{" Persistent ", ModePersistent, false},
		{"once", ModeOnce, false},
		{"forever", "", true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseMode(tc.in)
			if (err != nil) != tc.wantErr || got != tc.want {
				t.Fatalf("ParseMode(%q) = %q, %v", tc.in, got, err)
			}
		})
	}
}

func TestOncePublishesEveryEndpoint(t *testing.T) {
	t.Parallel()
	d := &mqtttest.Dialer{}
	r := New(Config{Mode: ModeOnce}, newPublisher(t, d), logx.Nop())
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := len(d.Publications()); n != 2 {
		t.Fatalf("publications = %d, want 2", n)
	}
	if d.Open() != 0 {
		t.Fatalf("open = %d, want 0", d.Open())
	}
}

func TestPerCycleShutdownMidCycleClosesConnections(t *testing.T) {
	t.Parallel()
	var blocked atomic.Int32
	d := &mqtttest.Dialer{OnPublish: func(ctx context.Context, _, _ string, _ []byte) error {
		blocked.Add(1)
		<-ctx.Done()
		return ctx.Err()
	}}
	r := New(Config{Mode: ModePerCycle, Interval: time.Second}, newPublisher(t, d), logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, r)
	eventually(t, func() bool { return blocked.Load() == 2 })
	cancel()
	waitDone(t, done)

	if n := len(d.Conns()); n != 2 {
		t.Fatalf("conns = %d, want 2", n)
	}
	if d.Open() != 0 {
		t.Fatalf("open = %d, want 0 after shutdown", d.Open())
	}
}

func TestPerCycleRepeatsOnInterval(t *testing.T) {
	t.Parallel()
	d := &mqtttest.Dialer{}
	r := New(Config{Mode: ModePerCycle, Interval: time.Second}, newPublisher(t, d), logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, r)
	// First cycle runs immediately, the second after one interval.
	eventually(t, func() bool { return len(d.Publications()) >= 4 })
	cancel()
	waitDone(t, done)
	if d.Open() != 0 {
		t.Fatalf("open = %d, want 0", d.Open())
	}
}

func TestTightLoopIsThrottled(t *testing.T) {
	t.Parallel()
	d := &mqtttest.Dialer{}
	r := New(Config{Mode: ModePerCycle, Interval: 0, MinGap: 50 * time.Millisecond}, newPublisher(t, d), logx.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 220*time.Millisecond)
	defer cancel()
	waitDone(t, runAsync(ctx, r))

	cycles := len(d.Publications()) / 2
	if cycles < 2 || cycles > 6 {
		t.Fatalf("cycles = %d, want a handful spaced by MinGap", cycles)
	}
}

func TestPersistentReusesConnection(t *testing.T) {
	t.Parallel()
	d := &mqtttest.Dialer{}
	r := New(Config{Mode: ModePersistent, Interval: 20 * time.Millisecond}, newPublisher(t, d), logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, r)
	eventually(t, func() bool { return len(d.Publications()) >= 8 })
	cancel()
	waitDone(t, done)

	if n := len(d.Conns()); n != 2 {
		t.Fatalf("conns = %d, want one per endpoint", n)
	}
	if d.Open() != 0 {
		t.Fatalf("open = %d, want 0 after shutdown", d.Open())
	}
}

func TestPersistentRedialsAfterFailure(t *testing.T) {
	t.Parallel()
	var failures atomic.Int32
	d := &mqtttest.Dialer{OnPublish: func(_ context.Context, address, _ string, _ []byte) error {
		if address == "10.0.0.2" && failures.Add(1) == 1 {
			return mqtttest.ErrRefused
		}
		return nil
	}}
	r := New(Config{Mode: ModePersistent, Interval: 20 * time.Millisecond}, newPublisher(t, d), logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, r)
	eventually(t, func() bool {
		n := 0
		for _, p := range d.Publications() {
			if p.Address == "10.0.0.2" {
				n++
			}
		}
		return n >= 2
	})
	cancel()
	waitDone(t, done)

	e2 := 0
	for _, c := range d.Conns() {
		if c.Address == "10.0.0.2" {
			e2++
		}
	}
	if e2 != 2 {
		t.Fatalf("E2 conns = %d, want 2 (initial plus one redial)", e2)
	}
	if d.Open() != 0 {
		t.Fatalf("open = %d, want 0", d.Open())
	}
}
