package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Gateway struct {
		Dataset           string        `yaml:"dataset"`
		APIKey            string        `yaml:"api_key"`
		Domain            string        `yaml:"domain"`
		Port              int           `yaml:"port"`
		Schema            string        `yaml:"schema"`
		SymbolType        string        `yaml:"symbol_type"`
		Symbols           []string      `yaml:"symbols"`
		ReplayFromStart   bool          `yaml:"replay_from_start"`
		HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
		DialTimeout       time.Duration `yaml:"dial_timeout"`
		EventBuffer       int           `yaml:"event_buffer"`
	} `yaml:"gateway"`
	Directory struct {
		MinElapsed time.Duration `yaml:"min_elapsed"`
		MinDefs    int           `yaml:"min_definitions"`
	} `yaml:"directory"`
	Engines struct {
		Pairs []struct {
			Y string `yaml:"y"`
			X string `yaml:"x"`
		} `yaml:"pairs"`
		SkewThreshold float64       `yaml:"skew_threshold"`
		SkewCooldown  time.Duration `yaml:"skew_cooldown"`
		ObiLevels     int           `yaml:"obi_levels"`
		VwapCooldown  time.Duration `yaml:"vwap_cooldown"`
		TrainInterval time.Duration `yaml:"train_interval"`
		SweepWindow   time.Duration `yaml:"sweep_window"`
		SweepNotional float64       `yaml:"sweep_notional"`
	} `yaml:"engines"`
	Backend struct {
		Type         string        `yaml:"type"`
		BatchSize    int           `yaml:"batch_size"`
		BatchTimeout time.Duration `yaml:"batch_timeout"`
	} `yaml:"backend"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Cache struct {
		TTL   time.Duration `yaml:"ttl"`
		Redis struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("LSG_API_KEY"); v != "" {
		c.Gateway.APIKey = v
	}
	if v := os.Getenv("LSG_DATASET"); v != "" {
		c.Gateway.Dataset = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Gateway.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Backend.Type == "" {
		return fmt.Errorf("backend.type is required")
	}
	if c.Backend.Type != "kafka" && c.Backend.Type != "clickhouse" {
		return fmt.Errorf("backend.type must be 'kafka' or 'clickhouse', got '%s'", c.Backend.Type)
	}
	if c.Gateway.Dataset == "" {
		return fmt.Errorf("gateway.dataset is required")
	}
	if c.Gateway.APIKey == "" {
		return fmt.Errorf("gateway.api_key is required")
	}
	if len(c.Gateway.Symbols) == 0 {
		return fmt.Errorf("gateway.symbols cannot be empty")
	}
	return nil
}
