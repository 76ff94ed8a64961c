package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"remarker/internal/runner"
	"remarker/internal/transport/mqtt"
)

const minimalJSON = `{
  "schedule_path": "./protocol.ini",
  "instruments": {"LI7810_A": {"ip": "192.168.0.10"}},
  "logging": {"level": "info"}
}`

func TestDecodeJSONAndLegacyKeys(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		doc  string
	}{
		{"snake_case", minimalJSON},
		{"legacy", `{"schedule_path": "./protocol.ini", "INSTRUMENTS": {"LI7810_A": {"IP": "192.168.0.10"}}, "logging": {"level": "info"}}`},
	}
	for _, tc := range cases {
		cfg, err := Decode("config.json", []byte(tc.doc))
		if err != nil {
			t.Fatalf("%s: Decode: %v", tc.name, err)
		}
		if got := cfg.Addresses()["LI7810_A"]; got != "192.168.0.10" {
			t.Fatalf("%s: address = %q", tc.name, got)
		}
		if err := Validate(cfg); err != nil {
			t.Fatalf("%s: Validate: %v", tc.name, err)
		}
	}
}

func TestDecodeYAML(t *testing.T) {
	t.Parallel()
	doc := `
schedule_path: ./protocol.ini
instruments:
  LI7810_A: { ip: 192.168.0.10 }
  LI7810_B: { ip: "192.168.0.11:1884" }
mqtt: { protocol: 5, qos: 0 }
runner: { mode: persistent, interval: 30s }
logging: { level: debug }
`
	cfg, err := Decode("config.yaml", []byte(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	rt, err := cfg.Runtime()
	if err != nil {
		t.Fatalf("Runtime: %v", err)
	}
	if rt.Protocol != mqtt.ProtocolV5 || rt.QoS != 0 {
		t.Fatalf("protocol=%d qos=%d", rt.Protocol, rt.QoS)
	}
	if rt.Mode != runner.ModePersistent || rt.Interval != 30*time.Second {
		t.Fatalf("mode=%s interval=%v", rt.Mode, rt.Interval)
	}
	if len(cfg.Instruments) != 2 {
		t.Fatalf("instruments = %d", len(cfg.Instruments))
	}
}

func TestDecodeRejectsUnknownAndTrailing(t *testing.T) {
	t.Parallel()
	for _, doc := range []string{
		`{"schedule_path": "x", "bogus": 1}`,
		minimalJSON + ` {}`,
	} {
		if _, err := Decode("config.json", []byte(doc)); err == nil {
			t.Fatalf("Decode(%q) should fail", doc)
		}
	}
}

func TestRuntimeDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("config.json", []byte(minimalJSON))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	rt, err := cfg.Runtime()
	if err != nil {
		t.Fatalf("Runtime: %v", err)
	}
	want := Runtime{
		Location:        time.Local,
		Port:            mqtt.DefaultPort,
		Topic:           mqtt.RemarkTopic,
		Protocol:        mqtt.ProtocolV311,
		QoS:             1,
		ConnectTimeout:  DefaultConnectTimeout,
		PublishTimeout:  DefaultPublishTimeout,
		KeepAlive:       DefaultKeepAlive,
		ClientIDPrefix:  DefaultClientIDPrefix,
		Mode:            runner.ModePerCycle,
		Interval:        DefaultInterval,
		MinGap:          DefaultMinGap,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
	if rt != want {
		t.Fatalf("Runtime = %+v\nwant     %+v", rt, want)
	}
}

func TestRuntimeZeroInterval(t *testing.T) {
	t.Parallel()
	cases := []struct {
		mode    string
		wantErr bool
	}{
		{"per_cycle", false},
		{"persistent", true},
	}
	for _, tc := range cases {
		cfg := &Config{Runner: RunnerConfig{Mode: tc.mode, Interval: "0s"}}
		rt, err := cfg.Runtime()
		if (err != nil) != tc.wantErr {
			t.Fatalf("mode %s: err = %v, wantErr %v", tc.mode, err, tc.wantErr)
		}
		if !tc.wantErr && rt.Interval != 0 {
			t.Fatalf("mode %s: interval = %v, want 0", tc.mode, rt.Interval)
		}
	}
}

func TestValidateAggregatesErrors(t *testing.T) {
	t.Parallel()
	cfg := &Config{
		Instruments: map[string]InstrumentConfig{"A": {IP: " "}},
		MQTT:        MQTTConfig{Topic: "licor/#", Protocol: 7, ConnectTimeout: "soon"},
		Runner:      RunnerConfig{Mode: "sometimes"},
		Logging:     LoggingConfig{Level: "loud"},
		Timezone:    "Mars/Olympus",
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}
	msg := err.Error()
	for _, want := range []string{
		"schedule_path", "instruments.A.ip", "logging.level", "mqtt.topic",
		"mqtt.protocol", "mqtt.connect_timeout", "runner.mode", "timezone",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error %q does not mention %s", msg, want)
		}
	}
}

func TestValidateStorage(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		storage *StorageConfig
		wantErr bool
	}{
		{"absent", nil, false},
		{"none", &StorageConfig{Driver: "none"}, false},
		{"sqlite", &StorageConfig{Driver: "sqlite", Path: "./j.db", BusyTimeout: "2s"}, false},
		{"file without path", &StorageConfig{Driver: "file"}, true},
		{"unknown driver", &StorageConfig{Driver: "postgres", Path: "x"}, true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Decode("config.json", []byte(minimalJSON))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			cfg.Storage = tc.storage
			if err := Validate(cfg); (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestManagerLoadReportsPath(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"schedule_path": ""}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m := NewManager(path)
	_, err := m.Load()
	if err == nil || !strings.Contains(err.Error(), path) {
		t.Fatalf("Load = %v, want error naming %s", err, path)
	}
	if m.Get() != nil {
		t.Fatal("invalid config must not be committed")
	}
}

func TestManagerReloadPublishesOnlyChanges(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(minimalJSON), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	m.reload()
	select {
	case <-sub:
		t.Fatal("unchanged content should not publish")
	default:
	}

	updated := strings.Replace(minimalJSON, `"level": "info"`, `"level": "debug"`, 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m.reload()
	select {
	case cfg := <-sub:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("level = %q", cfg.Logging.Level)
		}
	default:
		t.Fatal("changed content should publish")
	}

	// An invalid edit is ignored and the last good config stays.
	if err := os.WriteFile(path, []byte(`{"schedule_path": ""}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m.reload()
	if m.Get().Logging.Level != "debug" {
		t.Fatal("invalid reload replaced the committed config")
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	base, err := Decode("config.json", []byte(minimalJSON))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	next := *base
	next.Logging.Level = "debug"
	next.Runner.Mode = "persistent"

	ch := SummarizeChange(base, &next)
	if len(ch.Live) != 1 || ch.Live[0] != "logging" {
		t.Fatalf("live = %v", ch.Live)
	}
	if len(ch.Restart) != 1 || ch.Restart[0] != "runner" {
		t.Fatalf("restart = %v", ch.Restart)
	}
	if !SummarizeChange(base, base).Empty() {
		t.Fatal("identical configs should produce an empty change")
	}
}
