package config

import (
	"flag"
	"io"
	"testing"
	"time"
)

func parse(t *testing.T, env map[string]string, args ...string) Config {
	t.Helper()
	cfg := Default()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cfg.Register(fs, func(k string) string { return env[k] })
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse: %v", err)
	}
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := parse(t, nil)
	if cfg.Driver != DriverPostgres || cfg.LockTimeout != 5*time.Second || cfg.Table != "accounts" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestEnvThenFlags(t *testing.T) {
	env := map[string]string{
		"ACCOUNTDESK_DRIVER":       "memory",
		"ACCOUNTDESK_LOCK_TIMEOUT": "2s",
		"ACCOUNTDESK_SEED":         "false",
		"ACCOUNTDESK_ADDR":         ":9000",
	}

	cfg := parse(t, env)
	if cfg.Driver != DriverMemory || cfg.LockTimeout != 2*time.Second || cfg.Seed || cfg.Addr != ":9000" {
		t.Fatalf("env not applied: %+v", cfg)
	}

	cfg = parse(t, env, "-lock-timeout", "750ms", "-addr", ":9100")
	if cfg.LockTimeout != 750*time.Millisecond || cfg.Addr != ":9100" {
		t.Fatalf("flags should override env: %+v", cfg)
	}
}

func TestMalformedEnvFallsBack(t *testing.T) {
	cfg := parse(t, map[string]string{"ACCOUNTDESK_LOCK_TIMEOUT": "soon"})
	if cfg.LockTimeout != 5*time.Second {
		t.Fatalf("malformed env should keep the default, got %s", cfg.LockTimeout)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Driver = "sqlite" }},
		{"empty dsn", func(c *Config) { c.DSN = "" }},
		{"zero lock timeout", func(c *Config) { c.LockTimeout = 0 }},
		{"negative idle timeout", func(c *Config) { c.IdleTimeout = -time.Second }},
		{"zero reap interval", func(c *Config) { c.ReapInterval = 0 }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"empty addr", func(c *Config) { c.Addr = "" }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := Default()
			c.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected a validation error")
			}
		})
	}

	mem := Default()
	mem.Driver = DriverMemory
	mem.DSN = ""
	if err := mem.Validate(); err != nil {
		t.Fatalf("memory driver needs no dsn: %v", err)
	}
}
