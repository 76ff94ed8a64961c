package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"remarker/internal/config"
	"remarker/internal/endpoint"
	"remarker/internal/fanout"
	"remarker/internal/runner"
	"remarker/internal/runtime/supervisor"
	"remarker/internal/schedule"
	"remarker/internal/storage"
	"remarker/internal/transport/mqtt"
	logx "remarker/pkg/logx"
	"remarker/pkg/systemd"
)

type Options struct {
	ConfigPath string
	// Once forces a single cycle regardless of runner.mode.
	Once bool
	// Dialer replaces the MQTT dialer built from the config.
	Dialer mqtt.Dialer
}

type App struct {
	cfgm *config.Manager
	rt   config.Runtime

	log  logx.Logger
	logs *logx.Service

	sched   *schedule.Store
	reg     *endpoint.Registry
	journal storage.Journal
	pub     *fanout.Publisher
	run     *runner.Runner

	sup     *supervisor.Supervisor
	sd      systemd.Notifier
	runDone chan struct{}
}

// New loads the config and builds every component. Any error is fatal.
func New(opt Options) (*App, error) {
	path := strings.TrimSpace(opt.ConfigPath)
	if path == "" {
		path = "./config.json"
	}
	cfgm := config.NewManager(path)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	rt, err := cfg.Runtime()
	if err != nil {
		return nil, err
	}
	if opt.Once {
		rt.Mode = runner.ModeOnce
	}

	logs, log := logx.New(cfg.LogConfig())
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	fail := func(err error) (*App, error) {
		_ = logs.Close()
		return nil, err
	}

	sched, err := schedule.Open(cfg.SchedulePath, log.With(logx.String("comp", "schedule")))
	if err != nil {
		return fail(fmt.Errorf("load schedule: %w", err))
	}

	reg, err := endpoint.NewRegistry(cfg.Addresses())
	if err != nil {
		return fail(err)
	}

	journal, err := storage.Open(storage.Config{
		Driver:      rt.StorageDriver,
		Path:        rt.StoragePath,
		BusyTimeout: rt.StorageBusyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return fail(fmt.Errorf("open delivery journal: %w", err))
	}
	if journal != nil {
		log.Info("delivery journal enabled", logx.String("driver", rt.StorageDriver), logx.String("path", rt.StoragePath))
	}

	dialer := opt.Dialer
	if dialer == nil {
		dialer = mqtt.NewDialer(mqtt.Options{
			Port:           rt.Port,
			Protocol:       rt.Protocol,
			ClientIDPrefix: rt.ClientIDPrefix,
			KeepAlive:      rt.KeepAlive,
			ConnectTimeout: rt.ConnectTimeout,
			PublishTimeout: rt.PublishTimeout,
			QoS:            rt.QoS,
			Retain:         rt.Retain,
		})
	}

	pub := fanout.New(fanout.Config{Topic: rt.Topic, Location: rt.Location},
		dialer, reg, sched, journal, log.With(logx.String("comp", "fanout")))
	run := runner.New(runner.Config{
		Mode:     rt.Mode,
		Interval: rt.Interval,
		MinGap:   rt.MinGap,
		Location: rt.Location,
	}, pub, log.With(logx.String("comp", "runner")))

	return &App{
		cfgm:    cfgm,
		rt:      rt,
		log:     log.With(logx.String("comp", "app")),
		logs:    logs,
		sched:   sched,
		reg:     reg,
		journal: journal,
		pub:     pub,
		run:     run,
		sd:      systemd.Notifier{Log: log.With(logx.String("comp", "systemd"))},
		runDone: make(chan struct{}),
	}, nil
}

func (a *App) Publisher() *fanout.Publisher { return a.pub }
func (a *App) Schedule() *schedule.Store    { return a.sched }

// ShutdownTimeout bounds Stop.
func (a *App) ShutdownTimeout() time.Duration { return a.rt.ShutdownTimeout }

// Done is closed when the runner has returned (after the single cycle in
// once mode, or after cancellation).
func (a *App) Done() <-chan struct{} { return a.runDone }

// Err returns the first error seen by a background goroutine.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log))

	a.sup.Go("runner", func(c context.Context) error {
		defer close(a.runDone)
		return a.run.Run(c)
	})

	if a.rt.Mode != runner.ModeOnce {
		a.sup.Go0("config.reload", a.configLoop)
		a.sup.Go("config.watch", a.cfgm.Watch)
		a.sup.Go("schedule.watch", a.sched.Watch)
		a.sup.Go0("signal.hup", a.hangupLoop)
		if d := systemd.WatchdogInterval(); d > 0 {
			a.log.Debug("systemd watchdog enabled", logx.Duration("interval", d))
			a.sup.GoRestart("systemd.watchdog", func(c context.Context) error {
				a.sd.Watchdog(c, d, a.alive)
				return c.Err()
			})
		}
	}

	a.sd.Status(fmt.Sprintf("%s: %d endpoints, %d schedule entries", a.rt.Mode, a.reg.Len(), a.sched.Current().Len()))
	a.sd.Ready()
	a.log.Info("app started",
		logx.String("mode", string(a.rt.Mode)),
		logx.String("topic", a.pub.Topic()),
		logx.Int("endpoints", a.reg.Len()),
		logx.Int("schedule_entries", a.sched.Current().Len()),
		logx.String("tz", a.rt.Location.String()),
	)
	return nil
}

func (a *App) alive() bool {
	select {
	case <-a.runDone:
		return false
	default:
		return true
	}
}

// ReloadSchedule re-reads the schedule file, telling systemd around it.
func (a *App) ReloadSchedule() error {
	a.sd.Reloading()
	defer a.sd.Ready()
	if err := a.sched.Reload(); err != nil {
		a.log.Warn("schedule reload failed; keeping previous schedule", logx.String("path", a.sched.Path()), logx.Err(err))
		return err
	}
	return nil
}

func (a *App) hangupLoop(ctx context.Context) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	defer signal.Stop(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			a.log.Info("SIGHUP received; reloading schedule")
			_ = a.ReloadSchedule()
		}
	}
}

// configLoop applies logging changes live, re-reads the schedule when its
// path is unchanged, and reports the rest as needing a restart.
func (a *App) configLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			ch := config.SummarizeChange(last, next)
			last = next
			if ch.Empty() {
				a.log.Debug("config reload received, but no effective changes detected")
				continue
			}
			a.log.Debug("config change summary", ch.Fields...)
			for _, s := range ch.Live {
				if s == "logging" {
					a.logs.Apply(next.LogConfig())
				}
			}
			if !slices.Contains(ch.Restart, "schedule_path") {
				// Same file; pick up edits made alongside the config change.
				_ = a.ReloadSchedule()
			}
			if len(ch.Restart) > 0 {
				a.log.Warn("config changed; restart required for changes to take effect",
					logx.String("sections", strings.Join(ch.Restart, ",")))
			}
			if len(ch.Live) > 0 {
				a.log.Info("config applied", logx.String("changed", strings.Join(ch.Live, ",")))
			}
		}
	}
}

// Stop cancels every goroutine and waits for them, bounded by ctx, then
// closes the journal and the log sinks.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.sd.Stopping()
	a.log.Info("stopping")
	a.sup.Cancel()

	start := time.Now()
	err := a.sup.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		a.log.Warn("shutdown deadline reached; some connections may still be open",
			logx.Duration("elapsed", time.Since(start)),
			logx.Int64("active", a.sup.Counters().Active))
	}
	if a.journal != nil {
		if cerr := a.journal.Close(); cerr != nil {
			a.log.Warn("delivery journal close failed", logx.Err(cerr))
		}
	}
	if rep, ok := a.pub.Last(); ok {
		okN, failN := rep.Counts()
		a.log.Info("stopped", logx.Uint64("last_cycle", rep.Cycle), logx.Int("last_ok", okN), logx.Int("last_failed", failN), logx.Duration("took", time.Since(start)))
	} else {
		a.log.Info("stopped", logx.Duration("took", time.Since(start)))
	}
	_ = a.logs.Close()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
