package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Intervals.ProbeSweep.Std() != time.Minute {
		t.Fatalf("probe sweep default = %v", cfg.Intervals.ProbeSweep.Std())
	}
	if cfg.Intervals.AggregateMetrics.Std() != 5*time.Minute {
		t.Fatalf("aggregation default = %v", cfg.Intervals.AggregateMetrics.Std())
	}
	if cfg.Intervals.Baselines.Std() != 24*time.Hour {
		t.Fatalf("baseline default = %v", cfg.Intervals.Baselines.Std())
	}
	if cfg.Intervals.EscalationSweep.Std() != 15*time.Minute {
		t.Fatalf("escalation default = %v", cfg.Intervals.EscalationSweep.Std())
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Intervals.Cleanup.Std() != 24*time.Hour {
		t.Fatalf("expected defaults, got %v", cfg.Intervals.Cleanup.Std())
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.yaml")
	raw := `
intervals:
  probe_sweep: 30s
notify:
  webhook_endpoints:
    slack: https://hooks.example.com/slack
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Intervals.ProbeSweep.Std() != 30*time.Second {
		t.Fatalf("override not applied: %v", cfg.Intervals.ProbeSweep.Std())
	}
	// untouched keys keep their defaults
	if cfg.Intervals.AggregateMetrics.Std() != 5*time.Minute {
		t.Fatalf("default lost on partial override: %v", cfg.Intervals.AggregateMetrics.Std())
	}
	if cfg.Notify.WebhookEndpoints["slack"] != "https://hooks.example.com/slack" {
		t.Fatalf("webhook endpoint not loaded: %v", cfg.Notify.WebhookEndpoints)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.yaml")
	raw := "intervals:\n  probe_sweep: soon\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for invalid duration")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
