// Package systemd reports service state to systemd through sd_notify.
//
// Every call is a no-op when the process was not started by systemd
// (NOTIFY_SOCKET unset).
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "remarker/pkg/logx"
)

// Notifier sends state changes. The zero value is usable.
type Notifier struct {
	Log logx.Logger
}

func (n Notifier) send(state string) bool {
	ok, err := daemon.SdNotify(false, state)
	if err != nil {
		n.Log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
		return false
	}
	return ok
}

// Ready reports startup (or a finished reload) as complete.
func (n Notifier) Ready() bool { return n.send(daemon.SdNotifyReady) }

// Reloading reports that a reload has started. Follow it with Ready.
func (n Notifier) Reloading() bool { return n.send(daemon.SdNotifyReloading) }

// Stopping reports that shutdown has begun.
func (n Notifier) Stopping() bool { return n.send(daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by systemctl status.
func (n Notifier) Status(s string) bool { return n.send("STATUS=" + s) }

// WatchdogInterval returns the ping interval (half of WATCHDOG_USEC), or 0
// when the watchdog is disabled.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d / 2
}

// Watchdog pings systemd every interval until ctx is done. alive is asked
// before every ping; a false answer skips that ping so systemd can restart
// a stuck process. A nil alive always pings.
func (n Notifier) Watchdog(ctx context.Context, interval time.Duration, alive func() bool) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if alive != nil && !alive() {
				n.Log.Warn("watchdog ping skipped; service unhealthy")
				continue
			}
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
