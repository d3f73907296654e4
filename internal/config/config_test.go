package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultMatchesSpec(t *testing.T) {
	d := Default()
	if d.GlobalSessionLimit != 20 {
		t.Errorf("global session limit = %d, want 20", d.GlobalSessionLimit)
	}
	if d.SessionUserLimit != 10 {
		t.Errorf("session user limit = %d, want 10", d.SessionUserLimit)
	}
	if d.EgressQueueSize != 1024 {
		t.Errorf("egress queue size = %d, want 1024", d.EgressQueueSize)
	}
	if d.CompactionInterval != 1000 {
		t.Errorf("compaction interval = %d, want 1000", d.CompactionInterval)
	}
	if d.ClockSkewForward != 5*time.Second {
		t.Errorf("clock skew forward = %s, want 5s", d.ClockSkewForward)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GlobalSessionLimit != Default().GlobalSessionLimit {
		t.Errorf("expected defaults when file missing")
	}
}

func TestLoadPartialOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scened.yaml")
	if err := os.WriteFile(path, []byte("session_user_limit: 3\naddr: \":9999\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SessionUserLimit != 3 {
		t.Errorf("session user limit = %d, want 3", cfg.SessionUserLimit)
	}
	if cfg.Addr != ":9999" {
		t.Errorf("addr = %q, want :9999", cfg.Addr)
	}
	// unspecified fields still default
	if cfg.GlobalSessionLimit != Default().GlobalSessionLimit {
		t.Errorf("global session limit should default when unset")
	}
}
