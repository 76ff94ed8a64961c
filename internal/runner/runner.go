// Package runner drives fan-out cycles until the context is cancelled.
//
// Three policies are available:
//
//	per_cycle   connect, publish and disconnect every Interval (cron driven);
//	            Interval 0 means back-to-back cycles spaced by MinGap
//	persistent  one supervised worker per endpoint reusing a long-lived
//	            connection, publishing every Interval
//	once        a single cycle
package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"remarker/internal/fanout"
	logx "remarker/pkg/logx"
)

type Mode string

const (
	ModePerCycle   Mode = "per_cycle"
	ModePersistent Mode = "persistent"
	ModeOnce       Mode = "once"
)

const (
	DefaultInterval = 10 * time.Second
	DefaultMinGap   = time.Second
)

// ParseMode maps a config value to a Mode. Empty means per_cycle.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModePerCycle:
		return ModePerCycle, nil
	case ModePersistent:
		return ModePersistent, nil
	case ModeOnce:
		return ModeOnce, nil
	default:
		return "", fmt.Errorf("unknown runner mode %q (want per_cycle, persistent or once)", s)
	}
}

type Config struct {
	Mode     Mode
	Interval time.Duration
	MinGap   time.Duration
	Location *time.Location
}

// Runner owns the cycle loop for one Publisher.
type Runner struct {
	cfg Config
	pub *fanout.Publisher
	log logx.Logger
	now func() time.Time
}

func New(cfg Config, pub *fanout.Publisher, log logx.Logger) *Runner {
	if cfg.Mode == "" {
		cfg.Mode = ModePerCycle
	}
	if cfg.MinGap <= 0 {
		cfg.MinGap = DefaultMinGap
	}
	if cfg.Interval < 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Mode == ModePersistent && cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Runner{cfg: cfg, pub: pub, log: log, now: time.Now}
}

func (r *Runner) Mode() Mode { return r.cfg.Mode }

// Run blocks until ctx is cancelled (or the single cycle finishes in once
// mode). It returns only after in-flight work has stopped and every
// connection it opened is closed.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("runner started",
		logx.String("mode", string(r.cfg.Mode)),
		logx.Duration("interval", r.cfg.Interval),
		logx.Int("endpoints", r.pub.Registry().Len()),
	)
	defer r.log.Info("runner stopped", logx.String("mode", string(r.cfg.Mode)))

	switch r.cfg.Mode {
	case ModeOnce:
		r.cycle(ctx)
		return nil
	case ModePersistent:
		return r.runPersistent(ctx)
	case ModePerCycle:
		if r.cfg.Interval == 0 {
			return r.runTight(ctx)
		}
		return r.runCron(ctx)
	default:
		return fmt.Errorf("unknown runner mode %q", r.cfg.Mode)
	}
}

func (r *Runner) cycle(ctx context.Context) fanout.Report {
	return r.pub.PublishAll(ctx, r.now())
}

// runCron runs one cycle right away, then one per Interval. Overlapping
// cycles are skipped.
func (r *Runner) runCron(ctx context.Context) error {
	r.cycle(ctx)
	if ctx.Err() != nil {
		return nil
	}

	cl := logx.CronLogger(r.log)
	c := cron.New(
		cron.WithLocation(r.cfg.Location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(cron.Every(r.cfg.Interval), cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		r.cycle(ctx)
	}))
	c.Start()

	<-ctx.Done()
	// Stop waits for a running cycle; its dials and publishes abort on ctx.
	<-c.Stop().Done()
	return nil
}

// runTight runs cycles back to back, never closer than MinGap.
func (r *Runner) runTight(ctx context.Context) error {
	lim := rate.NewLimiter(rate.Every(r.cfg.MinGap), 1)
	for {
		if err := lim.Wait(ctx); err != nil {
			return nil
		}
		r.cycle(ctx)
	}
}
