// Package fanout delivers the current remark to every instrument.
//
// Each endpoint gets its own goroutine that dials, publishes and disconnects.
// A failure (or panic) stays inside that goroutine and is reported in the
// endpoint's Result; the cycle itself never fails.
package fanout

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"remarker/internal/endpoint"
	"remarker/internal/storage"
	"remarker/internal/transport/mqtt"
	logx "remarker/pkg/logx"
)

// Resolver returns the remark in effect at t.
type Resolver interface {
	Resolve(t time.Time) (string, bool)
}

type Config struct {
	Topic    string
	Location *time.Location
}

// Publisher runs fan-out cycles.
type Publisher struct {
	cfg      Config
	dialer   mqtt.Dialer
	registry *endpoint.Registry
	resolver Resolver
	journal  storage.Journal
	log      logx.Logger

	cycle atomic.Uint64
	last  atomic.Pointer[Report]
}

// New builds a Publisher. journal may be nil.
func New(cfg Config, dialer mqtt.Dialer, registry *endpoint.Registry, resolver Resolver, journal storage.Journal, log logx.Logger) *Publisher {
	if cfg.Topic == "" {
		cfg.Topic = mqtt.RemarkTopic
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Publisher{
		cfg:      cfg,
		dialer:   dialer,
		registry: registry,
		resolver: resolver,
		journal:  journal,
		log:      log,
	}
}

func (p *Publisher) Topic() string                { return p.cfg.Topic }
func (p *Publisher) Registry() *endpoint.Registry { return p.registry }

// Last returns the most recent cycle report.
func (p *Publisher) Last() (Report, bool) {
	if r := p.last.Load(); r != nil {
		return *r, true
	}
	return Report{}, false
}

// Current resolves the remark for now in the configured location.
func (p *Publisher) Current(now time.Time) (string, bool) {
	return p.resolver.Resolve(now.In(p.cfg.Location))
}

// PublishAll runs one cycle: resolve, then deliver to every endpoint in
// parallel and wait for all of them.
func (p *Publisher) PublishAll(ctx context.Context, now time.Time) Report {
	rep := Report{Cycle: p.cycle.Add(1), StartedAt: now}
	msg, ok := p.Current(now)
	if !ok {
		rep.Skipped = true
		p.log.Warn("no remark scheduled for current time", logx.Uint64("cycle", rep.Cycle), logx.Time("now", now))
		p.last.Store(&rep)
		return rep
	}
	rep.Message = msg

	eps := p.registry.All()
	rep.Results = make([]Result, len(eps))
	var wg sync.WaitGroup
	wg.Add(len(eps))
	for i, ep := range eps {
		go func(i int, ep endpoint.Endpoint) {
			defer wg.Done()
			rep.Results[i] = p.PublishOne(ctx, ep, msg)
		}(i, ep)
	}
	wg.Wait()
	rep.Took = time.Since(now)

	okN, failN := rep.Counts()
	p.log.Info("cycle finished",
		logx.Uint64("cycle", rep.Cycle),
		logx.String("message", msg),
		logx.Int("ok", okN),
		logx.Int("failed", failN),
		logx.Duration("took", rep.Took),
	)
	p.Record(ctx, rep.Cycle, msg, rep.Results)
	p.last.Store(&rep)
	return rep
}

// PublishOne dials ep, publishes msg and disconnects.
func (p *Publisher) PublishOne(ctx context.Context, ep endpoint.Endpoint, msg string) (res Result) {
	start := time.Now()
	res.Endpoint = ep
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("panic: %v", r)
			p.log.Error("publish goroutine panicked",
				logx.String("endpoint", ep.Name), logx.String("address", ep.Address),
				logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
		res.Took = time.Since(start)
	}()

	conn, err := p.Connect(ctx, ep)
	if err != nil {
		res.Err = err
		return res
	}
	defer func() { _ = conn.Close() }()

	return p.publish(ctx, conn, ep, msg, start)
}

// Connect opens a session to ep. A failure is logged like a failed publish.
func (p *Publisher) Connect(ctx context.Context, ep endpoint.Endpoint) (mqtt.Conn, error) {
	conn, err := p.dialer.Dial(ctx, ep.Address)
	if err != nil {
		err = fmt.Errorf("connect %s: %w", ep.Address, err)
		p.logFailure(ep, err)
		return nil, err
	}
	return conn, nil
}

// Send publishes msg over an already open conn. It is the delivery step
// used by long-lived per-endpoint workers.
func (p *Publisher) Send(ctx context.Context, conn mqtt.Conn, ep endpoint.Endpoint, msg string) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = Result{Endpoint: ep, Err: fmt.Errorf("panic: %v", r), Took: time.Since(start)}
			p.log.Error("publish panicked",
				logx.String("endpoint", ep.Name), logx.String("address", ep.Address),
				logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	return p.publish(ctx, conn, ep, msg, start)
}

func (p *Publisher) publish(ctx context.Context, conn mqtt.Conn, ep endpoint.Endpoint, msg string, start time.Time) Result {
	res := Result{Endpoint: ep}
	if err := conn.Publish(ctx, p.cfg.Topic, []byte(msg)); err != nil {
		res.Err = fmt.Errorf("publish %s: %w", ep.Address, err)
		res.Took = time.Since(start)
		p.logFailure(ep, res.Err)
		return res
	}
	res.Took = time.Since(start)
	p.log.Info("Published remark",
		logx.String("endpoint", ep.Name),
		logx.String("address", ep.Address),
		logx.String("topic", p.cfg.Topic),
		logx.String("message", msg),
		logx.Duration("took", res.Took),
	)
	return res
}

func (p *Publisher) logFailure(ep endpoint.Endpoint, err error) {
	p.log.Error("Failed to publish",
		logx.String("endpoint", ep.Name),
		logx.String("address", ep.Address),
		logx.String("topic", p.cfg.Topic),
		logx.Err(err),
	)
}

// NextCycle allocates a cycle number for work driven outside PublishAll.
func (p *Publisher) NextCycle() uint64 { return p.cycle.Add(1) }

// Record appends results to the delivery journal. Journal errors are only
// logged.
func (p *Publisher) Record(ctx context.Context, cycle uint64, msg string, results []Result) {
	if p.journal == nil || len(results) == 0 {
		return
	}
	now := time.Now()
	ds := make([]storage.Delivery, 0, len(results))
	for _, r := range results {
		d := storage.Delivery{
			At:       now,
			Cycle:    cycle,
			Endpoint: r.Endpoint.Name,
			Address:  r.Endpoint.Address,
			Topic:    p.cfg.Topic,
			Message:  msg,
			OK:       r.Err == nil,
			TookMS:   r.Took.Milliseconds(),
		}
		if r.Err != nil {
			d.Error = r.Err.Error()
		}
		ds = append(ds, d)
	}
	// Journal writes outlive a cancelled cycle context.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.journal.AppendDeliveries(wctx, ds); err != nil {
		p.log.Warn("delivery journal write failed", logx.Uint64("cycle", cycle), logx.Err(err))
	}
}
