package config

// Config is the on-disk document for remarker.
//
// Example (YAML):
//
//	schedule_path: ./protocol.ini
//	instruments:
//	  LI7810_A: { ip: 192.168.0.10 }
//	mqtt: { port: 1883, protocol: 3 }
//	runner: { mode: per_cycle, interval: 10s }
type Config struct {
	// SchedulePath is the tab-separated remark schedule.
	SchedulePath string `json:"schedule_path"`

	// Instruments maps instrument name to its broker address.
	Instruments map[string]InstrumentConfig `json:"instruments"`

	// Timezone used to compute the current time of day. Empty or "Local"
	// means the host's local zone.
	Timezone string `json:"timezone,omitempty"`

	MQTT    MQTTConfig     `json:"mqtt"`
	Runner  RunnerConfig   `json:"runner"`
	Logging LoggingConfig  `json:"logging"`
	Storage *StorageConfig `json:"storage,omitempty"`
}

// InstrumentConfig describes one instrument endpoint.
//
// encoding/json matches keys case-insensitively, so the legacy
// {"INSTRUMENTS": {"name": {"IP": "..."}}} document decodes as-is.
type InstrumentConfig struct {
	IP string `json:"ip"`
}

// MQTTConfig controls the bus connection used for every endpoint.
//
// All durations are Go duration strings (e.g. "500ms", "5s").
//
// Defaults (when fields are omitted/zero):
//   - port: 1883
//   - topic: licor/niobrara/system/log_remark
//   - protocol: 3 (MQTT 3.1.1); 5 selects MQTT 5
//   - qos: 1
//   - connect_timeout: "5s"
//   - publish_timeout: "5s"
//   - keepalive: "60s"
//   - client_id_prefix: "remarker"
type MQTTConfig struct {
	Port           int    `json:"port,omitempty"`
	Topic          string `json:"topic,omitempty"`
	Protocol       int    `json:"protocol,omitempty"`
	QoS            *int   `json:"qos,omitempty"`
	Retain         bool   `json:"retain,omitempty"`
	ConnectTimeout string `json:"connect_timeout,omitempty"`
	PublishTimeout string `json:"publish_timeout,omitempty"`
	KeepAlive      string `json:"keepalive,omitempty"`
	ClientIDPrefix string `json:"client_id_prefix,omitempty"`
}

// RunnerConfig selects the scheduler loop policy.
//
// Mode values:
//   - "per_cycle" (default): reconnect to every endpoint each cycle
//   - "persistent": one long-lived connection per endpoint
//   - "once": publish a single cycle and exit
//
// Interval "0s" in per_cycle mode runs cycles back-to-back, throttled by min_gap.
type RunnerConfig struct {
	Mode            string `json:"mode,omitempty"`
	Interval        string `json:"interval,omitempty"`
	MinGap          string `json:"min_gap,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
}

// StorageConfig controls the optional delivery journal.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./remarker_journal.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}
