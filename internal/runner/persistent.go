package runner

import (
	"context"
	"time"

	"remarker/internal/endpoint"
	"remarker/internal/fanout"
	"remarker/internal/runtime/supervisor"
	"remarker/internal/transport/mqtt"
	logx "remarker/pkg/logx"
)

func (r *Runner) runPersistent(ctx context.Context) error {
	sup := supervisor.New(ctx, supervisor.WithLogger(r.log))
	for _, ep := range r.pub.Registry().All() {
		w := &worker{r: r, ep: ep, log: r.log.With(logx.String("endpoint", ep.Name))}
		sup.GoRestart("endpoint:"+ep.Name, w.run, supervisor.WithRestartBackoff(r.cfg.MinGap, r.cfg.Interval))
	}
	<-ctx.Done()
	// Workers observe the same cancellation, so this returns once each has
	// closed its connection.
	_ = sup.Wait(context.Background())
	return nil
}

// worker keeps one connection to its endpoint and publishes every tick.
type worker struct {
	r    *Runner
	ep   endpoint.Endpoint
	log  logx.Logger
	conn mqtt.Conn

	ticks   uint64
	skipped bool
}

func (w *worker) run(ctx context.Context) error {
	defer w.drop()

	t := time.NewTicker(w.r.cfg.Interval)
	defer t.Stop()
	for {
		w.tick(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (w *worker) tick(ctx context.Context) {
	pub := w.r.pub
	msg, ok := pub.Current(w.r.now())
	if !ok {
		if !w.skipped {
			w.log.Warn("no remark scheduled for current time")
		}
		w.skipped = true
		return
	}
	w.skipped = false
	w.ticks++

	var res fanout.Result
	if w.conn == nil {
		start := time.Now()
		conn, err := pub.Connect(ctx, w.ep)
		if err != nil {
			res = fanout.Result{Endpoint: w.ep, Err: err, Took: time.Since(start)}
			pub.Record(ctx, w.ticks, msg, []fanout.Result{res})
			return
		}
		w.conn = conn
		w.log.Debug("connection opened", logx.String("address", w.ep.Address))
	}

	res = pub.Send(ctx, w.conn, w.ep, msg)
	if res.Err != nil {
		// Redial on the next tick.
		w.drop()
	}
	pub.Record(ctx, w.ticks, msg, []fanout.Result{res})
}

func (w *worker) drop() {
	if w.conn == nil {
		return
	}
	_ = w.conn.Close()
	w.conn = nil
	w.log.Debug("connection closed", logx.String("address", w.ep.Address))
}
