package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	AuthModeOIDC = "oidc"
	AuthModeNone = "none"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"

	PolicyBuiltin = "builtin"
	PolicyOPA     = "opa"
)

type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	LogLevel string `yaml:"log_level"`

	DBDriver    string `yaml:"db_driver"`
	PostgresDSN string `yaml:"postgres_dsn"`
	SQLitePath  string `yaml:"sqlite_path"`
	DBReset     bool   `yaml:"db_reset"`

	AuthMode          string `yaml:"auth_mode"`
	OIDCIssuerURL     string `yaml:"oidc_issuer_url"`
	OIDCAudience      string `yaml:"oidc_audience"`
	OIDCJWKSURL       string `yaml:"oidc_jwks_url"`
	OIDCAlgorithm     string `yaml:"oidc_algorithm"`
	OIDCClockSkewSecs int    `yaml:"oidc_clock_skew_seconds"`

	JWKSCacheTTLSecs     int `yaml:"jwks_cache_ttl_seconds"`
	JWKSMaxStaleSecs     int `yaml:"jwks_max_stale_seconds"`
	JWKSFetchTimeoutSecs int `yaml:"jwks_fetch_timeout_seconds"`

	PermissionPolicy             string `yaml:"permission_policy"`
	OPAPolicyPath                string `yaml:"opa_policy_path"`
	ForbiddenOnMissingPermission bool   `yaml:"forbidden_on_missing_permission"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

func Defaults() Config {
	return Config{
		HTTPAddr:             ":8080",
		LogLevel:             "info",
		DBDriver:             DriverPostgres,
		SQLitePath:           "coffeeshop.db",
		AuthMode:             AuthModeOIDC,
		OIDCAlgorithm:        "RS256",
		JWKSCacheTTLSecs:     300,
		JWKSMaxStaleSecs:     900,
		JWKSFetchTimeoutSecs: 5,
		PermissionPolicy:     PolicyBuiltin,
	}
}

// Load reads an optional .env file and an optional YAML file named by
// CONFIG_FILE, then applies environment overrides.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		fileCfg, err := LoadFile(path, cfg)
		if err != nil {
			return Config{}, err
		}
		cfg = fileCfg
	}
	cfg = applyEnv(cfg)
	return cfg, cfg.Validate()
}

func LoadFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

func FromEnv() Config {
	return applyEnv(Defaults())
}

func applyEnv(cfg Config) Config {
	cfg.HTTPAddr = envDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogLevel = envDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.DBDriver = envDefault("DB_DRIVER", cfg.DBDriver)
	cfg.PostgresDSN = envDefault("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.SQLitePath = envDefault("SQLITE_PATH", cfg.SQLitePath)
	cfg.DBReset = envBoolDefault("DB_RESET", cfg.DBReset)
	cfg.AuthMode = envDefault("AUTH_MODE", cfg.AuthMode)
	cfg.OIDCIssuerURL = envDefault("OIDC_ISSUER_URL", cfg.OIDCIssuerURL)
	cfg.OIDCAudience = envDefault("OIDC_AUDIENCE", cfg.OIDCAudience)
	cfg.OIDCJWKSURL = envDefault("OIDC_JWKS_URL", cfg.OIDCJWKSURL)
	cfg.OIDCAlgorithm = envDefault("OIDC_ALGORITHM", cfg.OIDCAlgorithm)
	cfg.OIDCClockSkewSecs = envNonNegativeDefault("OIDC_CLOCK_SKEW_SECONDS", cfg.OIDCClockSkewSecs)
	cfg.JWKSCacheTTLSecs = envNonNegativeDefault("JWKS_CACHE_TTL_SECONDS", cfg.JWKSCacheTTLSecs)
	cfg.JWKSMaxStaleSecs = envNonNegativeDefault("JWKS_MAX_STALE_SECONDS", cfg.JWKSMaxStaleSecs)
	cfg.JWKSFetchTimeoutSecs = envIntDefault("JWKS_FETCH_TIMEOUT_SECONDS", cfg.JWKSFetchTimeoutSecs)
	cfg.PermissionPolicy = envDefault("PERMISSION_POLICY", cfg.PermissionPolicy)
	cfg.OPAPolicyPath = envDefault("OPA_POLICY_PATH", cfg.OPAPolicyPath)
	cfg.ForbiddenOnMissingPermission = envBoolDefault("AUTH_FORBIDDEN_ON_MISSING_PERMISSION", cfg.ForbiddenOnMissingPermission)
	cfg.RedisAddr = envDefault("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = envDefault("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = envNonNegativeDefault("REDIS_DB", cfg.RedisDB)
	return cfg
}

func (c Config) Validate() error {
	switch c.AuthMode {
	case AuthModeNone:
	case AuthModeOIDC:
		if strings.TrimSpace(c.OIDCIssuerURL) == "" {
			return errors.New("OIDC_ISSUER_URL is required")
		}
		if strings.TrimSpace(c.OIDCAudience) == "" {
			return errors.New("OIDC_AUDIENCE is required")
		}
	default:
		return fmt.Errorf("unsupported auth mode %q", c.AuthMode)
	}
	switch c.DBDriver {
	case DriverPostgres, DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("unsupported db driver %q", c.DBDriver)
	}
	switch c.PermissionPolicy {
	case PolicyBuiltin, PolicyOPA:
	default:
		return fmt.Errorf("unsupported permission policy %q", c.PermissionPolicy)
	}
	return nil
}

func (c Config) ClockSkew() time.Duration {
	return time.Duration(c.OIDCClockSkewSecs) * time.Second
}

func (c Config) JWKSCacheTTL() time.Duration {
	return time.Duration(c.JWKSCacheTTLSecs) * time.Second
}

func (c Config) JWKSMaxStale() time.Duration {
	return time.Duration(c.JWKSMaxStaleSecs) * time.Second
}

func (c Config) JWKSFetchTimeout() time.Duration {
	return time.Duration(c.JWKSFetchTimeoutSecs) * time.Second
}

// JWKSURL falls back to the issuer's well-known key set location.
func (c Config) JWKSURL() string {
	if u := strings.TrimSpace(c.OIDCJWKSURL); u != "" {
		return u
	}
	issuer := strings.TrimSpace(c.OIDCIssuerURL)
	if issuer == "" {
		return ""
	}
	return strings.TrimRight(issuer, "/") + "/.well-known/jwks.json"
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

// envNonNegativeDefault accepts zero, which several settings use to mean
// "disabled".
func envNonNegativeDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}
