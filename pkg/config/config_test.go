package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
environment: test
server:
  port: 8080
  shutdown_timeout: 5s
gateway:
  dataset: GLBX.MDP3
  api_key: test-api-key-99999
  domain: lsg.example.com
  port: 13000
  schema: mbp-1
  symbol_type: raw_symbol
  symbols: [ESZ6, NQZ6]
  heartbeat_interval: 15s
engines:
  pairs:
    - {y: ESZ6, x: NQZ6}
  skew_threshold: 1.7
  sweep_notional: 25000
backend:
  type: kafka
kafka:
  brokers: [localhost:9092]
  topic: micropulse.signals
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	c, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Environment != "test" {
		t.Fatalf("environment = %q", c.Environment)
	}
	if c.Gateway.Dataset != "GLBX.MDP3" || c.Gateway.Port != 13000 {
		t.Fatalf("gateway = %+v", c.Gateway)
	}
	if len(c.Gateway.Symbols) != 2 || c.Gateway.Symbols[1] != "NQZ6" {
		t.Fatalf("symbols = %v", c.Gateway.Symbols)
	}
	if c.Gateway.HeartbeatInterval != 15*time.Second {
		t.Fatalf("heartbeat = %v", c.Gateway.HeartbeatInterval)
	}
	if len(c.Engines.Pairs) != 1 || c.Engines.Pairs[0].Y != "ESZ6" || c.Engines.Pairs[0].X != "NQZ6" {
		t.Fatalf("pairs = %+v", c.Engines.Pairs)
	}
	if c.Engines.SkewThreshold != 1.7 {
		t.Fatalf("skew threshold = %v", c.Engines.SkewThreshold)
	}
	if c.Backend.Type != "kafka" || c.Kafka.Topic != "micropulse.signals" {
		t.Fatalf("backend = %+v kafka = %+v", c.Backend, c.Kafka)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "environment: [unclosed")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("LSG_API_KEY", "env-api-key-55555")
	t.Setenv("SYMBOLS", "CLZ6,GCZ6")
	t.Setenv("BACKEND", "clickhouse")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	c, err := LoadWithEnv(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Gateway.APIKey != "env-api-key-55555" {
		t.Fatalf("api key = %q", c.Gateway.APIKey)
	}
	if len(c.Gateway.Symbols) != 2 || c.Gateway.Symbols[0] != "CLZ6" {
		t.Fatalf("symbols = %v", c.Gateway.Symbols)
	}
	if c.Backend.Type != "clickhouse" {
		t.Fatalf("backend = %q", c.Backend.Type)
	}
	if len(c.Kafka.Brokers) != 2 || c.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("brokers = %v", c.Kafka.Brokers)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c, err := Load(writeConfig(t, sampleYAML))
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		return c
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no environment", func(c *Config) { c.Environment = "" }},
		{"no backend", func(c *Config) { c.Backend.Type = "" }},
		{"bad backend", func(c *Config) { c.Backend.Type = "postgres" }},
		{"no dataset", func(c *Config) { c.Gateway.Dataset = "" }},
		{"no api key", func(c *Config) { c.Gateway.APIKey = "" }},
		{"no symbols", func(c *Config) { c.Gateway.Symbols = nil }},
	}
	for _, tc := range cases {
		c := base()
		tc.mutate(c)
		if err := c.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}
