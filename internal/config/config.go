// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"firestige.xyz/gtpstamp/internal/core"
)

// GlobalConfig maps to the `gtpstamp:` root key in YAML.
type GlobalConfig struct {
	Node    NodeConfig    `mapstructure:"node" yaml:"node"`
	Stamp   StampConfig   `mapstructure:"stamp" yaml:"stamp"`
	Queue   QueueConfig   `mapstructure:"queue" yaml:"queue"`
	Control ControlConfig `mapstructure:"control" yaml:"control"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// ─── Node Identity ───

// NodeConfig identifies this tagging node.
type NodeConfig struct {
	ID int `mapstructure:"id" yaml:"id"` // 0-255, written into every trailer entry
}

// NodeID returns the validated identifier as a byte.
func (n NodeConfig) NodeID() uint8 { return uint8(n.ID) }

// ─── Stamping ───

// StampConfig controls trailer injection.
type StampConfig struct {
	// StrictLength rejects flagged packets whose GTP length or entry count
	// disagree with the inner total length. Rejected packets pass untouched.
	StrictLength   bool   `mapstructure:"strict_length" yaml:"strict_length"`
	TimestampOrder string `mapstructure:"timestamp_order" yaml:"timestamp_order"` // little | big

	// WarnPerSource caps drop warnings per outer source address within
	// WarnWindow. Zero disables the cap.
	WarnPerSource int           `mapstructure:"warn_per_source" yaml:"warn_per_source"`
	WarnWindow    time.Duration `mapstructure:"warn_window" yaml:"warn_window"`
}

// ─── Interception ───

// QueueConfig configures the NFQUEUE consumers. Queues num..num+count-1
// are opened, one consumer goroutine each.
type QueueConfig struct {
	Num          int  `mapstructure:"num" yaml:"num"`
	Count        int  `mapstructure:"count" yaml:"count"`
	MaxPacketLen int  `mapstructure:"max_packet_len" yaml:"max_packet_len"`
	MaxQueueLen  int  `mapstructure:"max_queue_len" yaml:"max_queue_len"`
	FailOpen     bool `mapstructure:"fail_open" yaml:"fail_open"`
}

// ─── Control ───

// ControlConfig contains process control settings.
type ControlConfig struct {
	PIDFile string `mapstructure:"pid_file" yaml:"pid_file"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level        string           `mapstructure:"level" yaml:"level"` // trace / debug / info / warn / error
	Pattern      string           `mapstructure:"pattern" yaml:"pattern"`
	Time         string           `mapstructure:"time" yaml:"time"`
	ReportCaller bool             `mapstructure:"report_caller" yaml:"report_caller"`
	File         FileOutputConfig `mapstructure:"file" yaml:"file"`
}

// FileOutputConfig configures the rotating log file.
type FileOutputConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Path       string `mapstructure:"path" yaml:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `gtpstamp: ...`.
type configRoot struct {
	GTPStamp GlobalConfig `mapstructure:"gtpstamp" yaml:"gtpstamp"`
}

const maxQueues = 64

// Load loads configuration from path. An empty path yields the defaults
// plus environment overrides. Env vars map keys with "." replaced by "_"
// (e.g. GTPSTAMP_NODE_ID).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.GTPStamp

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default values. All keys use the "gtpstamp." prefix to
// match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	v.SetDefault("gtpstamp.node.id", 1)

	v.SetDefault("gtpstamp.stamp.strict_length", true)
	v.SetDefault("gtpstamp.stamp.timestamp_order", "little")
	v.SetDefault("gtpstamp.stamp.warn_per_source", 10)
	v.SetDefault("gtpstamp.stamp.warn_window", "10s")

	v.SetDefault("gtpstamp.queue.num", 0)
	v.SetDefault("gtpstamp.queue.count", 1)
	v.SetDefault("gtpstamp.queue.max_packet_len", core.IPv4MaxTotalLen)
	v.SetDefault("gtpstamp.queue.max_queue_len", 4096)
	v.SetDefault("gtpstamp.queue.fail_open", false)

	v.SetDefault("gtpstamp.control.pid_file", "/var/run/gtpstamp.pid")

	v.SetDefault("gtpstamp.metrics.enabled", true)
	v.SetDefault("gtpstamp.metrics.listen", ":9092")
	v.SetDefault("gtpstamp.metrics.path", "/metrics")

	v.SetDefault("gtpstamp.log.level", "info")
	v.SetDefault("gtpstamp.log.pattern", "%time [%level] %field %caller: %msg\n")
	v.SetDefault("gtpstamp.log.time", "2006-01-02 15:04:05.000")
	v.SetDefault("gtpstamp.log.report_caller", false)
	v.SetDefault("gtpstamp.log.file.enabled", false)
	v.SetDefault("gtpstamp.log.file.path", "/var/log/gtpstamp/gtpstamp.log")
	v.SetDefault("gtpstamp.log.file.max_size_mb", 100)
	v.SetDefault("gtpstamp.log.file.max_age_days", 30)
	v.SetDefault("gtpstamp.log.file.max_backups", 5)
	v.SetDefault("gtpstamp.log.file.compress", true)
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Node ──
	if cfg.Node.ID < 0 || cfg.Node.ID > 0xff {
		return fmt.Errorf("node.id %d out of range 0-255: %w", cfg.Node.ID, core.ErrConfigInvalid)
	}

	// ── Stamp ──
	order := strings.ToLower(cfg.Stamp.TimestampOrder)
	if order != "little" && order != "big" {
		return fmt.Errorf("invalid stamp.timestamp_order: %q (must be little/big): %w",
			cfg.Stamp.TimestampOrder, core.ErrConfigInvalid)
	}
	cfg.Stamp.TimestampOrder = order
	if cfg.Stamp.WarnPerSource < 0 {
		return fmt.Errorf("stamp.warn_per_source must not be negative: %w", core.ErrConfigInvalid)
	}
	if cfg.Stamp.WarnWindow <= 0 {
		cfg.Stamp.WarnWindow = 10 * time.Second
	}

	// ── Queue ──
	if cfg.Queue.Count <= 0 {
		cfg.Queue.Count = 1
	}
	if cfg.Queue.Count > maxQueues {
		return fmt.Errorf("queue.count %d exceeds %d: %w", cfg.Queue.Count, maxQueues, core.ErrConfigInvalid)
	}
	if cfg.Queue.Num < 0 || cfg.Queue.Num+cfg.Queue.Count-1 > 0xffff {
		return fmt.Errorf("queues %d..%d outside 0-65535: %w",
			cfg.Queue.Num, cfg.Queue.Num+cfg.Queue.Count-1, core.ErrConfigInvalid)
	}
	if cfg.Queue.MaxPacketLen <= 0 || cfg.Queue.MaxPacketLen > core.IPv4MaxTotalLen {
		cfg.Queue.MaxPacketLen = core.IPv4MaxTotalLen
	}
	if cfg.Queue.MaxQueueLen <= 0 {
		return fmt.Errorf("queue.max_queue_len must be positive: %w", core.ErrConfigInvalid)
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics.enabled=true: %w", core.ErrConfigInvalid)
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	// ── Log ──
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be trace/debug/info/warn/error): %w",
			cfg.Log.Level, core.ErrConfigInvalid)
	}
	if cfg.Log.File.Enabled && cfg.Log.File.Path == "" {
		return fmt.Errorf("log.file.path is required when log.file.enabled=true: %w", core.ErrConfigInvalid)
	}

	return nil
}

// Dump renders cfg as YAML under the `gtpstamp:` root key.
func Dump(cfg *GlobalConfig) ([]byte, error) {
	return yaml.Marshal(configRoot{GTPStamp: *cfg})
}
