package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"go.uber.org/multierr"
)

func TestDefaultIsValid(t *testing.T) {
	d := Default()
	if err := d.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if g := d.GateConfig(); g.SoftLimit != 30 || g.HardLimit != 45 || g.ReplayCapacity != 16 {
		t.Fatalf("gate defaults = %s", spew.Sdump(g))
	}
	if d.AITuning().Interval != 50*time.Millisecond {
		t.Fatalf("ai interval = %v", d.AITuning().Interval)
	}
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	t.Setenv("ARENA_SIM_TICK_HZ", "120")
	t.Setenv("ARENA_GATE_STALE_AFTER", "5s")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sim.TickHz != 120 || cfg.Gate.StaleAfter != 5*time.Second {
		t.Fatalf("env not applied: %s", spew.Sdump(cfg))
	}
	if cfg.Sim.BroadcastHz != 30 {
		t.Fatalf("unrelated default changed: broadcast_hz=%d", cfg.Sim.BroadcastHz)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.yaml")
	body := "server:\n  addr: \":9000\"\nsim:\n  idle_timeout: 10s\n  bots: 0\ngate:\n  soft_limit: 10\n  hard_limit: 20\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9000" || cfg.Sim.IdleTimeout != 10*time.Second || cfg.Sim.Bots != 0 {
		t.Fatalf("file values not applied: %s", spew.Sdump(cfg))
	}
	if cfg.Gate.SoftLimit != 10 || cfg.Gate.HardLimit != 20 || cfg.Gate.Window != time.Second {
		t.Fatalf("gate section = %s", spew.Sdump(cfg.Gate))
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	c := Default()
	c.Gate.HardLimit = c.Gate.SoftLimit - 1
	c.Sim.TickHz = 0
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if n := len(multierr.Errors(errors.Unwrap(err))); n < 2 {
		t.Fatalf("want every problem reported, got %d: %v", n, err)
	}
	if !strings.Contains(err.Error(), "hard_limit") {
		t.Fatalf("error %q does not name hard_limit", err)
	}
}

