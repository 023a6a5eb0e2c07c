// Package config loads server and tool configuration from an optional YAML
// file, a .env file and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Catalog backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Query log backends.
const (
	QueryLogNone       = "none"
	QueryLogMemory     = "memory"
	QueryLogClickhouse = "clickhouse"
)

type Config struct {
	Namespace       string            `yaml:"namespace"`
	HTTP            HTTPConfig        `yaml:"http"`
	Catalog         CatalogConfig     `yaml:"catalog"`
	QueryLog        QueryLogConfig    `yaml:"query_log"`
	Correlation     CorrelationConfig `yaml:"correlation"`
	RefreshInterval time.Duration     `yaml:"refresh_interval"`
	RequestTimeout  time.Duration     `yaml:"request_timeout"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// Origins accepted by /ws/correlate; empty accepts any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type CatalogConfig struct {
	Backend     string      `yaml:"backend"` // memory | redis | postgres | sqlite
	Redis       RedisConfig `yaml:"redis"`
	PostgresDSN string      `yaml:"postgres_dsn"`
	SQLitePath  string      `yaml:"sqlite_path"`
}

type RedisConfig struct {
	Addr       string        `yaml:"addr"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	TTL        time.Duration `yaml:"ttl"` // applied on write; zero keeps keys forever
	MaxRetries int           `yaml:"max_retries"`
}

type QueryLogConfig struct {
	Backend       string `yaml:"backend"` // none | memory | clickhouse
	ClickhouseDSN string `yaml:"clickhouse_dsn"`
}

type CorrelationConfig struct {
	Workers          int `yaml:"workers"`
	ParallelMinWords int `yaml:"parallel_min_words"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Namespace: "pickem",
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Catalog: CatalogConfig{
			Backend: BackendRedis,
			Redis: RedisConfig{
				Addr:       "127.0.0.1:6379",
				MaxRetries: 3,
			},
		},
		QueryLog:        QueryLogConfig{Backend: QueryLogNone},
		RefreshInterval: time.Minute,
		RequestTimeout:  10 * time.Second,
	}
}

// Load reads configPath over the defaults, then applies environment
// overrides. An empty path skips the file.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from PICKEM_NAMESPACE, REDIS_ADDR,
// REDIS_PASSWORD, REDIS_DB, POSTGRES_DSN and CLICKHOUSE_DSN.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("PICKEM_NAMESPACE"); v != "" {
		c.Namespace = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Catalog.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Catalog.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_DB: %w", err)
		}
		c.Catalog.Redis.DB = db
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Catalog.PostgresDSN = v
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		c.QueryLog.ClickhouseDSN = v
	}
	return nil
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error

	if c.Namespace == "" {
		errs = append(errs, errors.New("namespace is required"))
	} else if strings.ContainsAny(c.Namespace, " *?[]") {
		errs = append(errs, fmt.Errorf("namespace %q contains key pattern characters", c.Namespace))
	}

	switch c.Catalog.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Catalog.Redis.Addr == "" {
			errs = append(errs, errors.New("catalog.redis.addr is required for the redis backend"))
		}
		if c.Catalog.Redis.TTL < 0 {
			errs = append(errs, errors.New("catalog.redis.ttl must not be negative"))
		}
	case BackendPostgres:
		if c.Catalog.PostgresDSN == "" {
			errs = append(errs, errors.New("catalog.postgres_dsn is required for the postgres backend"))
		}
	case BackendSQLite:
		if c.Catalog.SQLitePath == "" {
			errs = append(errs, errors.New("catalog.sqlite_path is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown catalog backend %q", c.Catalog.Backend))
	}

	switch c.QueryLog.Backend {
	case QueryLogNone, QueryLogMemory, "":
	case QueryLogClickhouse:
		if c.QueryLog.ClickhouseDSN == "" {
			errs = append(errs, errors.New("query_log.clickhouse_dsn is required for the clickhouse query log"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown query log backend %q", c.QueryLog.Backend))
	}

	if c.Correlation.Workers < 0 {
		errs = append(errs, errors.New("correlation.workers must not be negative"))
	}
	if c.RefreshInterval < 0 {
		errs = append(errs, errors.New("refresh_interval must not be negative"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request_timeout must be positive"))
	}
	return errors.Join(errs...)
}

// LoadEnvFile sets variables from a KEY=VALUE file without overriding
// variables already present. A missing file is not an error.
func LoadEnvFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read env file: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
	return nil
}
