package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Redis      RedisConfig      `koanf:"redis"`
	Security   SecurityConfig   `koanf:"security"`
	Evaluation EvaluationConfig `koanf:"evaluation"`
	Documents  DocumentsConfig  `koanf:"documents"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MinIdleConns    int           `koanf:"min_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL          string        `koanf:"url"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

type SecurityConfig struct {
	JWTSecret   string          `koanf:"jwt_secret"`
	TokenExpiry time.Duration   `koanf:"token_expiry"`
	Issuer      string          `koanf:"issuer"`
	RateLimit   RateLimitConfig `koanf:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `koanf:"requests_per_second"`
	BurstSize         int `koanf:"burst_size"`
}

// EvaluationConfig tunes the scoring rules that are policy rather than
// hard invariants.
type EvaluationConfig struct {
	// Minimum time between the clarification and submission deadlines.
	MinClarificationGap time.Duration `koanf:"min_clarification_gap"`
	// Step, in percentage points, between sensitivity weight splits.
	SensitivityStep int `koanf:"sensitivity_step"`
	// TTL for cached ranking and sensitivity reports.
	ReportCacheTTL time.Duration `koanf:"report_cache_ttl"`
}

type DocumentsConfig struct {
	// Root directory for the filesystem document store.
	Root string `koanf:"root"`
}

type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	OTLPEndpoint string  `koanf:"otlp_endpoint"`
	SamplingRate float64 `koanf:"sampling_rate"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MinIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			DB:           0,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Security: SecurityConfig{
			TokenExpiry: 24 * time.Hour,
			Issuer:      "tender-evaluation-backend",
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 100,
				BurstSize:         200,
			},
		},
		Evaluation: EvaluationConfig{
			MinClarificationGap: 5 * 24 * time.Hour,
			SensitivityStep:     10,
			ReportCacheTTL:      10 * time.Minute,
		},
		Documents: DocumentsConfig{
			Root: "data/documents",
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			SamplingRate: 1.0,
		},
	}

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// Config file is optional.
	if path == "" {
		path = "configs/config.yaml"
	}
	_ = k.Load(file.Provider(path), yaml.Parser())

	// Environment variables override everything: TEB_SERVER_PORT etc.
	if err := k.Load(env.Provider("TEB_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "TEB_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
