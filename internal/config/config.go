package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory    = "memory"
	DriverRedis     = "redis"
	DriverFirestore = "firestore"
)

type Config struct {
	Env    string `yaml:"env"`
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Store struct {
		Driver string `yaml:"driver"`
	} `yaml:"store"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	Firestore struct {
		ProjectID       string `yaml:"projectId"`
		CredentialsFile string `yaml:"credentialsFile"`
	} `yaml:"firestore"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Auth struct {
		Provider  string `yaml:"provider"`
		JWTSecret string `yaml:"jwtSecret"`
		Issuer    string `yaml:"issuer"`
	} `yaml:"auth"`
	Vote struct {
		Duration string `yaml:"duration"`
		Grace    string `yaml:"grace"`
		Poll     string `yaml:"poll"`
		Debounce string `yaml:"debounce"`
	} `yaml:"vote"`
	Booths struct {
		CacheTTL string `yaml:"cacheTTL"`
	} `yaml:"booths"`
	Sentry struct {
		DSN string `yaml:"dsn"`
	} `yaml:"sentry"`
	Jobs struct {
		SnapshotEvery string `yaml:"snapshotEvery"`
		OverdueAfter  string `yaml:"overdueAfter"`
	} `yaml:"jobs"`
}

// Load reads YAML config from path. Variables from a .env file in the working
// directory are loaded first and override matching YAML values. A missing
// config file is not an error; defaults and the environment still apply.
func Load(path string) (Config, error) {
	cfg := Config{}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return cfg, err
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override(&cfg.Env, "APP_ENV")
	override(&cfg.Log.Level, "LOG_LEVEL")
	override(&cfg.Store.Driver, "STORE_DRIVER")
	override(&cfg.Redis.Addr, "REDIS_ADDR")
	override(&cfg.Redis.Password, "REDIS_PASSWORD")
	override(&cfg.Firestore.ProjectID, "FIRESTORE_PROJECT_ID")
	override(&cfg.Firestore.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	override(&cfg.Postgres.URL, "DATABASE_URL")
	override(&cfg.Auth.JWTSecret, "JWT_SECRET")
	override(&cfg.Sentry.DSN, "SENTRY_DSN")
}

func applyDefaults(cfg *Config) {
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = DriverMemory
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "festival:"
	}
	if cfg.Auth.Provider == "" {
		cfg.Auth.Provider = "jwt"
	}
}

// Validate checks that the selected drivers have what they need to serve.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Redis.Addr == "" {
			return errors.New("redis store selected but redis.addr is empty")
		}
	case DriverFirestore:
		if c.Firestore.ProjectID == "" {
			return errors.New("firestore store selected but firestore.projectId is empty")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Auth.Provider {
	case "jwt":
		if c.Auth.JWTSecret == "" {
			return errors.New("jwt auth selected but auth.jwtSecret is empty")
		}
	case "firebase":
		if c.Firestore.ProjectID == "" {
			return errors.New("firebase auth needs firestore.projectId")
		}
	default:
		return fmt.Errorf("unknown auth provider %q", c.Auth.Provider)
	}
	return nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
