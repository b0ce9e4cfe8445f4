package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config top-level struct
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Fraud     FraudConfig     `yaml:"fraud"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

// FraudConfig holds the trailing-window heuristic settings. It is read once
// at startup and handed to the fraud evaluator.
type FraudConfig struct {
	HighAmountCents int64 `yaml:"high_amount_cents"`
	WindowMinutes   int   `yaml:"window_min"`
}

const (
	DefaultFraudHighAmountCents = 10000
	DefaultFraudWindowMinutes   = 10
)

// Load reads the yaml file and applies env overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	// override DSN password from env if present
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Postgres.DSN = cfg.Postgres.DSN + " password=" + pw
	}
	cfg.Fraud = applyFraudOverrides(cfg.Fraud)
	return &cfg, nil
}

func applyFraudOverrides(cfg FraudConfig) FraudConfig {
	if cfg.HighAmountCents <= 0 {
		cfg.HighAmountCents = DefaultFraudHighAmountCents
	}
	if cfg.WindowMinutes <= 0 {
		cfg.WindowMinutes = DefaultFraudWindowMinutes
	}
	if v := os.Getenv("FRAUD_HIGH_AMOUNT_CENTS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.HighAmountCents = n
		}
	}
	if v := os.Getenv("FRAUD_WINDOW_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.WindowMinutes = n
		}
	}
	return cfg
}
