package config

import (
	"reflect"
	"strings"

	logx "remarker/pkg/logx"
)

// Change summarizes the difference between two configs.
//
// Live sections can be applied without restarting; Restart lists sections
// whose new values only take effect after a process restart.
type Change struct {
	Live    []string
	Restart []string
	Fields  []logx.Field
}

func (c Change) Empty() bool { return len(c.Live) == 0 && len(c.Restart) == 0 }

// SummarizeChange compares oldCfg and newCfg section by section.
func SummarizeChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		ch.Live = append(ch.Live, "logging")
		ch.Fields = append(ch.Fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if strings.TrimSpace(oldCfg.SchedulePath) != strings.TrimSpace(newCfg.SchedulePath) {
		ch.Restart = append(ch.Restart, "schedule_path")
		ch.Fields = append(ch.Fields, logx.String("schedule_path", newCfg.SchedulePath))
	}
	if !reflect.DeepEqual(oldCfg.Instruments, newCfg.Instruments) {
		ch.Restart = append(ch.Restart, "instruments")
		ch.Fields = append(ch.Fields, logx.Int("instruments.count", len(newCfg.Instruments)))
	}
	if strings.TrimSpace(oldCfg.Timezone) != strings.TrimSpace(newCfg.Timezone) {
		ch.Restart = append(ch.Restart, "timezone")
	}
	if !reflect.DeepEqual(oldCfg.MQTT, newCfg.MQTT) {
		ch.Restart = append(ch.Restart, "mqtt")
	}
	if oldCfg.Runner != newCfg.Runner {
		ch.Restart = append(ch.Restart, "runner")
		ch.Fields = append(ch.Fields, logx.String("runner.mode", newCfg.Runner.Mode))
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		ch.Restart = append(ch.Restart, "storage")
	}
	return ch
}
