// Package config loads service configuration from defaults, an optional YAML file,
// a .env file and the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"whattoeat/logging"
)

// PathEnvVar overrides the YAML config file location.
const PathEnvVar = "CONFIG_PATH"

// DefaultPaths are searched in order when PathEnvVar is unset.
var DefaultPaths = []string{"config.yaml", "config.yml", "/etc/whattoeat/config.yaml"}

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Catalog   CatalogConfig   `koanf:"catalog"`
	Recommend RecommendConfig `koanf:"recommend"`
	Logging   LoggingConfig   `koanf:"logging"`
	CORS      CORSConfig      `koanf:"cors"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Name            string        `koanf:"name"`
	User            string        `koanf:"user"`
	Password        string        `koanf:"password"`
	SSLMode         string        `koanf:"sslmode"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
}

// DSN returns DATABASE_URL when set, otherwise a key/value connection string built from
// the individual settings.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}

	parts := []string{
		"host=" + quoteDSN(d.Host),
		fmt.Sprintf("port=%d", d.Port),
		"dbname=" + quoteDSN(d.Name),
		"user=" + quoteDSN(d.User),
		"sslmode=" + quoteDSN(d.SSLMode),
	}
	if d.Password != "" {
		parts = append(parts, "password="+quoteDSN(d.Password))
	}
	if secs := int(d.ConnectTimeout / time.Second); secs > 0 {
		parts = append(parts, fmt.Sprintf("connect_timeout=%d", secs))
	}
	return strings.Join(parts, " ")
}

func quoteDSN(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// CatalogConfig selects the in-memory catalog instead of PostGIS.
type CatalogConfig struct {
	InMemory bool   `koanf:"in_memory"`
	Path     string `koanf:"path"`
}

type RecommendConfig struct {
	RadiusMeters            float64       `koanf:"radius_meters"`
	CandidateLimit          int           `koanf:"candidate_limit"`
	ResultLimit             int           `koanf:"result_limit"`
	Timezone                string        `koanf:"timezone"`
	QueryTimeout            time.Duration `koanf:"query_timeout"`
	RetryAttempts           int           `koanf:"retry_attempts"`
	RetryInitialInterval    time.Duration `koanf:"retry_initial_interval"`
	BreakerFailureThreshold uint32        `koanf:"breaker_failure_threshold"`
	BreakerTimeout          time.Duration `koanf:"breaker_timeout"`
}

// Location resolves Timezone. "Local" and "" mean the server's local zone.
func (r RecommendConfig) Location() (*time.Location, error) {
	if r.Timezone == "" || strings.EqualFold(r.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(r.Timezone)
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

type RateLimitConfig struct {
	Requests int           `koanf:"requests"`
	Window   time.Duration `koanf:"window"`
	Disabled bool          `koanf:"disabled"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "what-to-eat-ai",
			User:            "postgres",
			SSLMode:         "disable",
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxIdleTime: 30 * time.Second,
			ConnectTimeout:  2 * time.Second,
		},
		Recommend: RecommendConfig{
			RadiusMeters:            5000,
			CandidateLimit:          100,
			ResultLimit:             20,
			Timezone:                "Local",
			QueryTimeout:            5 * time.Second,
			RetryAttempts:           3,
			RetryInitialInterval:    100 * time.Millisecond,
			BreakerFailureThreshold: 5,
			BreakerTimeout:          30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		RateLimit: RateLimitConfig{
			Requests: 60,
			Window:   time.Minute,
		},
	}
}

var envMappings = map[string]string{
	"server_host":                 "server.host",
	"port":                        "server.port",
	"server_read_timeout":         "server.read_timeout",
	"server_write_timeout":        "server.write_timeout",
	"server_shutdown_timeout":     "server.shutdown_timeout",
	"database_url":                "database.url",
	"db_host":                     "database.host",
	"db_port":                     "database.port",
	"db_name":                     "database.name",
	"db_user":                     "database.user",
	"db_password":                 "database.password",
	"db_sslmode":                  "database.sslmode",
	"db_max_open_conns":           "database.max_open_conns",
	"db_max_idle_conns":           "database.max_idle_conns",
	"db_connect_timeout":          "database.connect_timeout",
	"catalog_in_memory":           "catalog.in_memory",
	"catalog_path":                "catalog.path",
	"recommend_radius_meters":     "recommend.radius_meters",
	"recommend_candidate_limit":   "recommend.candidate_limit",
	"recommend_result_limit":      "recommend.result_limit",
	"recommend_timezone":          "recommend.timezone",
	"recommend_query_timeout":     "recommend.query_timeout",
	"recommend_retry_attempts":    "recommend.retry_attempts",
	"recommend_breaker_threshold": "recommend.breaker_failure_threshold",
	"recommend_breaker_timeout":   "recommend.breaker_timeout",
	"log_level":                   "logging.level",
	"log_format":                  "logging.format",
	"cors_origins":                "cors.allowed_origins",
	"rate_limit_requests":         "rate_limit.requests",
	"rate_limit_window":           "rate_limit.window",
	"rate_limit_disabled":         "rate_limit.disabled",
}

// envKey maps an environment variable to its config path. Unknown variables are dropped.
func envKey(key string) string {
	return envMappings[strings.ToLower(key)]
}

// Load builds the configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Warn().Err(err).Msg("Could not read .env file")
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := splitList(k, "cors.allowed_origins"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// splitList turns a comma-separated env value into a list.
func splitList(k *koanf.Koanf, path string) error {
	raw, ok := k.Get(path).(string)
	if !ok {
		return nil
	}
	var items []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, p)
		}
	}
	if err := k.Set(path, items); err != nil {
		return fmt.Errorf("failed to set %s: %w", path, err)
	}
	return nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port))
	}
	if !c.Catalog.InMemory {
		if c.Database.URL != "" {
			if _, err := url.Parse(c.Database.URL); err != nil {
				errs = append(errs, fmt.Errorf("database.url is invalid: %w", err))
			}
		} else if c.Database.Host == "" || c.Database.Name == "" {
			errs = append(errs, errors.New("database.host and database.name are required when database.url is empty"))
		}
		if c.Database.MaxOpenConns < 1 {
			errs = append(errs, errors.New("database.max_open_conns must be positive"))
		}
	}

	r := c.Recommend
	if r.RadiusMeters <= 0 {
		errs = append(errs, errors.New("recommend.radius_meters must be positive"))
	}
	if r.CandidateLimit < 1 {
		errs = append(errs, errors.New("recommend.candidate_limit must be positive"))
	}
	if r.ResultLimit < 1 || r.ResultLimit > r.CandidateLimit {
		errs = append(errs, fmt.Errorf("recommend.result_limit must be in 1..%d", r.CandidateLimit))
	}
	if r.QueryTimeout <= 0 {
		errs = append(errs, errors.New("recommend.query_timeout must be positive"))
	}
	if r.RetryAttempts < 0 {
		errs = append(errs, errors.New("recommend.retry_attempts must not be negative"))
	}
	if _, err := r.Location(); err != nil {
		errs = append(errs, fmt.Errorf("recommend.timezone: %w", err))
	}

	if !logging.ValidLevel(c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level %q is not recognised", c.Logging.Level))
	}
	if !c.RateLimit.Disabled && (c.RateLimit.Requests < 1 || c.RateLimit.Window <= 0) {
		errs = append(errs, errors.New("rate_limit.requests and rate_limit.window must be positive"))
	}

	return errors.Join(errs...)
}
