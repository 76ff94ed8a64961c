package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultLogPath    = "./remark_publish.log"
	defaultMaxAgeDays = 7
	defaultMaxSizeMB  = 50
)

// Service owns the live sinks. Loggers derived from it follow Apply() swaps.
type Service struct {
	mu  sync.Mutex
	cfg Config

	root atomic.Value // stores zerolog.Logger

	file   *lumberjack.Logger
	rotate *cron.Cron
}

// New creates the logging service, applies the initial config immediately,
// and returns both the Service and a root Logger.
func New(cfg Config) (*Service, Logger) {
	setGlobals()

	s := &Service{cfg: cfg}
	s.root.Store(zerolog.New(newConsoleWriter(Stdout())).Level(parseLevel(cfg.Level, zerolog.InfoLevel)).With().Timestamp().Logger())
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	zl, ok := s.root.Load().(zerolog.Logger)
	if !ok {
		return zerolog.Nop()
	}
	return zl
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// Rotate closes the current file and starts a new one. Lumberjack renames the
// old file with a timestamp suffix and prunes files older than MaxAge.
func (s *Service) Rotate() error {
	s.mu.Lock()
	f := s.file
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	return f.Rotate()
}

func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	c := s.rotate
	s.rotate = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	if f != nil {
		return f.Close()
	}
	return nil
}

// Apply swaps logger outputs/levels at runtime.
// It is safe to call concurrently.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	writers := make([]io.Writer, 0, 2)
	if cfg.Console {
		writers = append(writers, newConsoleWriter(Stdout()))
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = defaultLogPath
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			fmt.Fprintf(Stderr(), "logx: failed creating log dir for %q: %v\n", path, err)
		} else {
			s.file = &lumberjack.Logger{
				Filename:  path,
				MaxAge:    orDefault(cfg.File.MaxAgeDays, defaultMaxAgeDays),
				MaxSize:   orDefault(cfg.File.MaxSizeMB, defaultMaxSizeMB),
				LocalTime: true,
				Compress:  cfg.File.Compress,
			}
			writers = append(writers, zerolog.SyncWriter(s.file))
		}
	}
	if len(writers) == 0 {
		writers = append(writers, newConsoleWriter(Stdout()))
	}

	s.ensureRotationLocked(s.file != nil)

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(parseLevel(cfg.Level, zerolog.InfoLevel)).With().Timestamp().Logger()
	s.root.Store(zl)
}

// ensureRotationLocked keeps a midnight rotation job running while a file
// sink exists. Call with s.mu held.
func (s *Service) ensureRotationLocked(want bool) {
	if !want {
		if s.rotate != nil {
			s.rotate.Stop()
			s.rotate = nil
		}
		return
	}
	if s.rotate != nil {
		return
	}
	c := cron.New()
	_, err := c.AddFunc("@midnight", func() {
		if err := s.Rotate(); err != nil {
			s.Logger().Warn("log rotation failed", Err(err))
		}
	})
	if err != nil {
		fmt.Fprintf(Stderr(), "logx: failed scheduling rotation: %v\n", err)
		return
	}
	c.Start()
	s.rotate = c
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
