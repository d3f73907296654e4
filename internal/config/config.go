// Package config loads scened's YAML configuration and applies defaults,
// following the same load-then-fill-defaults shape the teacher's
// WingConfig loader uses for its own YAML settings file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Server holds every tunable named in spec.md (global/per-session caps,
// rate limits, timeouts, compaction threshold) plus process plumbing.
type Server struct {
	Addr     string `yaml:"addr,omitempty"`
	DataDir  string `yaml:"data_dir,omitempty"`
	LogLevel string `yaml:"log_level,omitempty"`
	LogFile  string `yaml:"log_file,omitempty"`

	GlobalSessionLimit int `yaml:"global_session_limit,omitempty"`
	SessionUserLimit   int `yaml:"session_user_limit,omitempty"`
	EgressQueueSize    int `yaml:"egress_queue_size,omitempty"`
	CompactionInterval int `yaml:"compaction_interval,omitempty"` // entries appended between snapshots

	MessageRateLimit    float64       `yaml:"message_rate_limit,omitempty"` // messages/sec per connection
	MessageRateBurst    int           `yaml:"message_rate_burst,omitempty"`
	ConnectionIdle      time.Duration `yaml:"connection_idle,omitempty"`
	ConnectionPingGrace time.Duration `yaml:"connection_ping_grace,omitempty"`
	JoinTimeout         time.Duration `yaml:"join_timeout,omitempty"`
	ClockSkewForward    time.Duration `yaml:"clock_skew_forward,omitempty"` // clamp: server_now + this

	MetricsWindowSize int `yaml:"metrics_window_size,omitempty"` // rolling fan-out latency samples
}

// Default returns the configuration spec.md describes when no overrides
// are present: global cap 20, per-session cap 10, egress queue 1024,
// compaction every 1000 entries, 100 msg/s rate limit, 120s idle / 30s
// ping grace, 2s join timeout, +5s clock skew clamp.
func Default() *Server {
	return &Server{
		Addr:                ":8080",
		DataDir:             "data",
		LogLevel:            "info",
		GlobalSessionLimit:  20,
		SessionUserLimit:    10,
		EgressQueueSize:     1024,
		CompactionInterval:  1000,
		MessageRateLimit:    100,
		MessageRateBurst:    100,
		ConnectionIdle:      120 * time.Second,
		ConnectionPingGrace: 30 * time.Second,
		JoinTimeout:         2 * time.Second,
		ClockSkewForward:    5 * time.Second,
		MetricsWindowSize:   1000,
	}
}

// Load reads a YAML file at path and overlays it on top of Default().
// A missing file is not an error — the defaults apply as-is, matching
// the teacher's loadConfig behavior for a not-yet-created settings file.
func Load(path string) (*Server, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.fillDefaults()
	return cfg, nil
}

// fillDefaults restores any zero-valued field a partial YAML file left
// unset, the same fold-in-defaults step WingConfig applies after
// unmarshaling.
func (c *Server) fillDefaults() {
	d := Default()
	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.GlobalSessionLimit == 0 {
		c.GlobalSessionLimit = d.GlobalSessionLimit
	}
	if c.SessionUserLimit == 0 {
		c.SessionUserLimit = d.SessionUserLimit
	}
	if c.EgressQueueSize == 0 {
		c.EgressQueueSize = d.EgressQueueSize
	}
	if c.CompactionInterval == 0 {
		c.CompactionInterval = d.CompactionInterval
	}
	if c.MessageRateLimit == 0 {
		c.MessageRateLimit = d.MessageRateLimit
	}
	if c.MessageRateBurst == 0 {
		c.MessageRateBurst = d.MessageRateBurst
	}
	if c.ConnectionIdle == 0 {
		c.ConnectionIdle = d.ConnectionIdle
	}
	if c.ConnectionPingGrace == 0 {
		c.ConnectionPingGrace = d.ConnectionPingGrace
	}
	if c.JoinTimeout == 0 {
		c.JoinTimeout = d.JoinTimeout
	}
	if c.ClockSkewForward == 0 {
		c.ClockSkewForward = d.ClockSkewForward
	}
	if c.MetricsWindowSize == 0 {
		c.MetricsWindowSize = d.MetricsWindowSize
	}
}
