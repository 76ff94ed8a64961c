package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"remarker/internal/runner"
	"remarker/internal/transport/mqtt"
	logx "remarker/pkg/logx"
)

const (
	DefaultConnectTimeout  = 5 * time.Second
	DefaultPublishTimeout  = 5 * time.Second
	DefaultKeepAlive       = 60 * time.Second
	DefaultInterval        = runner.DefaultInterval
	DefaultMinGap          = runner.DefaultMinGap
	DefaultShutdownTimeout = 15 * time.Second
	DefaultClientIDPrefix  = "remarker"
)

// Runtime is the typed, defaulted view of a Config.
type Runtime struct {
	Location *time.Location

	Port           int
	Topic          string
	Protocol       int
	QoS            byte
	Retain         bool
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	KeepAlive      time.Duration
	ClientIDPrefix string

	Mode            runner.Mode
	Interval        time.Duration
	MinGap          time.Duration
	ShutdownTimeout time.Duration

	StorageDriver      string
	StoragePath        string
	StorageBusyTimeout time.Duration
}

// Runtime resolves defaults and parses every typed field.
func (c *Config) Runtime() (Runtime, error) {
	var (
		rt   Runtime
		errs []error
		err  error
	)

	rt.Location, err = loadLocation(c.Timezone)
	if err != nil {
		errs = append(errs, err)
	}

	rt.Port = c.MQTT.Port
	if rt.Port == 0 {
		rt.Port = mqtt.DefaultPort
	}
	if rt.Port < 1 || rt.Port > 65535 {
		errs = append(errs, fmt.Errorf("mqtt.port: %d out of range", c.MQTT.Port))
	}
	rt.Topic = strings.TrimSpace(c.MQTT.Topic)
	if rt.Topic == "" {
		rt.Topic = mqtt.RemarkTopic
	}
	if strings.ContainsAny(rt.Topic, "#+") {
		errs = append(errs, fmt.Errorf("mqtt.topic: wildcards are not allowed in a publish topic (%q)", rt.Topic))
	}
	switch c.MQTT.Protocol {
	case 0, 3, 4:
		rt.Protocol = mqtt.ProtocolV311
	case 5:
		rt.Protocol = mqtt.ProtocolV5
	default:
		errs = append(errs, fmt.Errorf("mqtt.protocol: unsupported version %d (use 3 or 5)", c.MQTT.Protocol))
	}
	rt.QoS = 1
	if c.MQTT.QoS != nil {
		if q := *c.MQTT.QoS; q < 0 || q > 2 {
			errs = append(errs, fmt.Errorf("mqtt.qos: %d out of range", q))
		} else {
			rt.QoS = byte(q)
		}
	}
	rt.Retain = c.MQTT.Retain
	if rt.ConnectTimeout, err = ParseDurationOrDefault("mqtt.connect_timeout", c.MQTT.ConnectTimeout, DefaultConnectTimeout); err != nil {
		errs = append(errs, err)
	}
	if rt.PublishTimeout, err = ParseDurationOrDefault("mqtt.publish_timeout", c.MQTT.PublishTimeout, DefaultPublishTimeout); err != nil {
		errs = append(errs, err)
	}
	if rt.KeepAlive, err = ParseDurationOrDefault("mqtt.keepalive", c.MQTT.KeepAlive, DefaultKeepAlive); err != nil {
		errs = append(errs, err)
	}
	rt.ClientIDPrefix = strings.TrimSpace(c.MQTT.ClientIDPrefix)
	if rt.ClientIDPrefix == "" {
		rt.ClientIDPrefix = DefaultClientIDPrefix
	}

	if rt.Mode, err = runner.ParseMode(c.Runner.Mode); err != nil {
		errs = append(errs, fmt.Errorf("runner.mode: %w", err))
	}
	// An explicit "0s" is meaningful (back-to-back cycles); only empty defaults.
	if strings.TrimSpace(c.Runner.Interval) == "" {
		rt.Interval = DefaultInterval
	} else if rt.Interval, err = ParseDurationField("runner.interval", c.Runner.Interval); err != nil {
		errs = append(errs, err)
	} else if rt.Interval == 0 && rt.Mode == runner.ModePersistent {
		errs = append(errs, errors.New("runner.interval: must be > 0 in persistent mode"))
	}
	if rt.MinGap, err = ParseDurationOrDefault("runner.min_gap", c.Runner.MinGap, DefaultMinGap); err != nil {
		errs = append(errs, err)
	}
	if rt.ShutdownTimeout, err = ParseDurationOrDefault("runner.shutdown_timeout", c.Runner.ShutdownTimeout, DefaultShutdownTimeout); err != nil {
		errs = append(errs, err)
	}

	if c.Storage != nil {
		rt.StorageDriver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
		rt.StoragePath = strings.TrimSpace(c.Storage.Path)
		switch rt.StorageDriver {
		case "", "none":
			rt.StorageDriver = ""
		case "file", "sqlite", "sqlite3":
			if rt.StoragePath == "" {
				errs = append(errs, fmt.Errorf("storage.path: required for driver %q", rt.StorageDriver))
			}
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
		}
		if rt.StorageBusyTimeout, err = ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}

	return rt, errors.Join(errs...)
}

// Validate reports every configuration problem at once.
func Validate(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if strings.TrimSpace(c.SchedulePath) == "" {
		errs = append(errs, errors.New("schedule_path: required"))
	}
	if len(c.Instruments) == 0 {
		errs = append(errs, errors.New("instruments: at least one instrument is required"))
	}
	names := make([]string, 0, len(c.Instruments))
	for name := range c.Instruments {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, errors.New("instruments: empty instrument name"))
			continue
		}
		if strings.TrimSpace(c.Instruments[name].IP) == "" {
			errs = append(errs, fmt.Errorf("instruments.%s.ip: required", name))
		}
	}
	if !logx.ValidLevel(c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	if _, err := c.Runtime(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Addresses returns the instrument name -> address map.
func (c *Config) Addresses() map[string]string {
	out := make(map[string]string, len(c.Instruments))
	for name, ic := range c.Instruments {
		out[name] = strings.TrimSpace(ic.IP)
	}
	return out
}

// LogConfig maps the logging section onto logx.Config.
func (c *Config) LogConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File: logx.FileConfig{
			Enabled:    c.Logging.File.Enabled,
			Path:       c.Logging.File.Path,
			MaxAgeDays: c.Logging.File.MaxAgeDays,
			MaxSizeMB:  c.Logging.File.MaxSizeMB,
			Compress:   c.Logging.File.Compress,
		},
	}
}

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	return loc, nil
}
