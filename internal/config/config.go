// Package config reads the service settings from the environment. Callers
// load a .env file with godotenv before calling Load.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	devJWTSecret   = "dev-secret-change-me-dev-secret-change-me"
	minSecretBytes = 32
)

var (
	ErrWeakSecret    = errors.New("JWT_SECRET must be at least 32 characters long")
	ErrMissingSecret = errors.New("JWT_SECRET must be set in production")
	ErrInvalidValue  = errors.New("invalid configuration value")
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Fingerprint modes.
const (
	FingerprintAuto    = "auto"
	FingerprintClient  = "client"
	FingerprintHeaders = "headers"
)

type Config struct {
	Port           string
	Env            string
	Version        string
	JWTSecret      []byte
	JWTTTL         time.Duration
	Store          Store
	Fingerprint    string
	SessionStrict  bool
	CookieSecure   bool
	Questions      Questions
	AdminKeyHash   string
	DebugDashboard bool
	UnlockLimit    int
}

// Store selects and configures the token store backend.
type Store struct {
	Driver     string
	SQLitePath string
	MySQL      MySQL
	SkipSchema bool
	Redis      Redis
}

type MySQL struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

// DSN returns the go-sql-driver/mysql connection string.
func (m MySQL) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4,utf8", m.User, m.Pass, m.Host, m.Port, m.Name)
}

type Redis struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Questions configures the question bank source.
type Questions struct {
	Source   string
	TTL      time.Duration
	PageSize int
}

// Production reports whether the service runs with production settings.
func (c Config) Production() bool {
	return c.Env == "production"
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom reads the configuration through getenv.
func LoadFrom(getenv func(string) string) (Config, error) {
	env := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		Port:         env("PORT", "8080"),
		Env:          env("ENV", env("ENVIRONMENT", "development")),
		Version:      env("APP_VERSION", "dev"),
		JWTTTL:       24 * time.Hour,
		Fingerprint:  strings.ToLower(env("FINGERPRINT_MODE", FingerprintAuto)),
		AdminKeyHash: env("ADMIN_KEY_HASH", ""),
		Store: Store{
			Driver:     strings.ToLower(env("TOKEN_STORE", DriverSQLite)),
			SQLitePath: env("SQLITE_PATH", "synapse.db"),
			MySQL: MySQL{
				User: env("DB_USER", ""),
				Pass: getenv("DB_PASS"),
				Host: env("DB_HOST", "127.0.0.1"),
				Port: env("DB_PORT", "3306"),
				Name: env("DB_NAME", ""),
			},
			Redis: Redis{
				Addr:     env("REDIS_ADDR", "127.0.0.1:6379"),
				Password: getenv("REDIS_PASSWORD"),
				Prefix:   env("REDIS_PREFIX", "synapse"),
			},
		},
		Questions: Questions{
			Source:   env("QUESTIONS_SOURCE", "questions.csv"),
			TTL:      5 * time.Minute,
			PageSize: 10,
		},
	}

	secret := getenv("JWT_SECRET")
	if secret == "" {
		if cfg.Production() {
			return Config{}, ErrMissingSecret
		}
		log.Println("⚠️ WARNING: Using default JWT secret (development only)")
		secret = devJWTSecret
	}
	if len(secret) < minSecretBytes {
		return Config{}, fmt.Errorf("%w (current: %d)", ErrWeakSecret, len(secret))
	}
	cfg.JWTSecret = []byte(secret)

	var err error
	if cfg.JWTTTL, err = durationVar(getenv, "JWT_TTL", cfg.JWTTTL); err != nil {
		return Config{}, err
	}
	if cfg.Questions.TTL, err = durationVar(getenv, "QUESTIONS_TTL", cfg.Questions.TTL); err != nil {
		return Config{}, err
	}
	if cfg.Questions.PageSize, err = intVar(getenv, "PAGE_SIZE", cfg.Questions.PageSize); err != nil {
		return Config{}, err
	}
	if cfg.Questions.PageSize <= 0 {
		return Config{}, fmt.Errorf("%w: PAGE_SIZE=%d", ErrInvalidValue, cfg.Questions.PageSize)
	}
	if cfg.UnlockLimit, err = intVar(getenv, "UNLOCK_RATE_LIMIT", 10); err != nil {
		return Config{}, err
	}
	if cfg.UnlockLimit <= 0 {
		return Config{}, fmt.Errorf("%w: UNLOCK_RATE_LIMIT=%d", ErrInvalidValue, cfg.UnlockLimit)
	}
	if cfg.Store.Redis.DB, err = intVar(getenv, "REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	cfg.Store.SkipSchema = boolVar(getenv, "DB_SKIP_SCHEMA")
	cfg.SessionStrict = boolVar(getenv, "SESSION_STRICT")
	cfg.DebugDashboard = boolVar(getenv, "SYNAPSE_DEBUG_DASHBOARD")
	if v := strings.TrimSpace(getenv("COOKIE_SECURE")); v != "" {
		cfg.CookieSecure = boolVar(getenv, "COOKIE_SECURE")
	} else {
		cfg.CookieSecure = cfg.Production()
	}

	switch cfg.Store.Driver {
	case DriverSQLite, DriverMySQL, DriverRedis, DriverMemory:
	default:
		return Config{}, fmt.Errorf("%w: TOKEN_STORE=%q", ErrInvalidValue, cfg.Store.Driver)
	}
	switch cfg.Fingerprint {
	case FingerprintAuto, FingerprintClient, FingerprintHeaders:
	default:
		return Config{}, fmt.Errorf("%w: FINGERPRINT_MODE=%q", ErrInvalidValue, cfg.Fingerprint)
	}

	return cfg, nil
}

func durationVar(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, raw)
	}
	return d, nil
}

func intVar(getenv func(string) string, key string, def int) (int, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, raw)
	}
	return n, nil
}

func boolVar(getenv func(string) string, key string) bool {
	v := strings.TrimSpace(getenv(key))
	return strings.EqualFold(v, "true") || v == "1"
}
