package schedule

import (
	"context"
	"sync/atomic"
	"time"

	"remarker/pkg/fswatch"
	logx "remarker/pkg/logx"
)

// Store holds the current schedule for concurrent readers and swaps it
// atomically on reload.
type Store struct {
	path string
	log  logx.Logger
	cur  atomic.Pointer[Schedule]

	loadedAt atomic.Int64 // unix nano of the last successful load
}

// Open loads path and returns a Store serving it. A read failure here is
// returned to the caller; malformed lines are only logged.
func Open(path string, log logx.Logger) (*Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	st := &Store{path: path, log: log}
	if err := st.Reload(); err != nil {
		return nil, err
	}
	return st, nil
}

// NewStatic wraps an in-memory schedule (no backing file).
func NewStatic(s Schedule) *Store {
	st := &Store{log: logx.Nop()}
	st.cur.Store(&s)
	st.loadedAt.Store(time.Now().UnixNano())
	return st
}

func (st *Store) Path() string { return st.path }

// Current returns the active schedule.
func (st *Store) Current() Schedule {
	if p := st.cur.Load(); p != nil {
		return *p
	}
	return Schedule{}
}

// LoadedAt reports when the active schedule was loaded.
func (st *Store) LoadedAt() time.Time {
	return time.Unix(0, st.loadedAt.Load())
}

// Resolve resolves t against the active schedule.
func (st *Store) Resolve(t time.Time) (string, bool) {
	return st.Current().ResolveAt(t)
}

// Reload parses the file again. On failure the previous schedule stays.
func (st *Store) Reload() error {
	if st.path == "" {
		return nil
	}
	s, skips, err := Load(st.path)
	if err != nil {
		return err
	}
	for _, sk := range skips {
		st.log.Debug("schedule line skipped", logx.String("path", st.path), logx.Int("line", sk.Line), logx.String("reason", sk.Reason))
	}
	prev := st.cur.Swap(&s)
	st.loadedAt.Store(time.Now().UnixNano())

	fields := []logx.Field{
		logx.String("path", st.path),
		logx.Int("entries", s.Len()),
		logx.Int("skipped", len(skips)),
	}
	if prev == nil {
		st.log.Info("schedule loaded", fields...)
	} else {
		st.log.Info("schedule reloaded", append(fields, logx.Int("previous_entries", prev.Len()))...)
	}
	if s.Len() == 0 {
		st.log.Warn("schedule has no valid entries", logx.String("path", st.path))
	}
	return nil
}

// Watch reloads the schedule whenever its file changes, until ctx is done.
func (st *Store) Watch(ctx context.Context) error {
	if st.path == "" {
		<-ctx.Done()
		return nil
	}
	return fswatch.Watch(ctx, st.path, func() {
		if err := st.Reload(); err != nil {
			st.log.Warn("schedule reload failed; keeping previous schedule", logx.String("path", st.path), logx.Err(err))
		}
	}, fswatch.Options{Log: st.log.With(logx.String("watch", "schedule"))})
}
