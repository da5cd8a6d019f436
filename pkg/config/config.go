package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const envFile = "config.env"

type DBConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	MaxOpenConns int
	MaxIdleConns int
	// LockTimeout bounds how long a ledger transaction waits for a wallet row lock.
	LockTimeout   time.Duration
	TxMaxAttempts int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Enabled reports whether the summary cache should be wired.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

type AppConfig struct {
	Addr              string
	JWTSecret         string
	DefaultCurrency   string
	LogDir            string
	ReconcileSchedule string
	TLSCertFile       string
	TLSKeyFile        string
	Redis             RedisConfig
}

// TLSEnabled reports whether both halves of the key pair are configured.
func (c AppConfig) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// loadEnv reads config.env into the process environment. A missing file is
// fine: the values may come from the real environment.
func loadEnv() error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envFile, err)
	}
	return nil
}

func LoadConfigDB() (*DBConfig, error) {
	if err := loadEnv(); err != nil {
		return nil, err
	}

	port, err := intEnv("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}

	maxOpen, err := intEnv("DB_MAX_OPEN_CONNS", 20)
	if err != nil {
		return nil, err
	}

	maxIdle, err := intEnv("DB_MAX_IDLE_CONNS", 10)
	if err != nil {
		return nil, err
	}

	lockTimeout, err := durationEnv("DB_LOCK_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	attempts, err := intEnv("DB_TX_MAX_ATTEMPTS", 5)
	if err != nil {
		return nil, err
	}
	if attempts < 1 {
		return nil, fmt.Errorf("invalid DB_TX_MAX_ATTEMPTS: %d", attempts)
	}

	return &DBConfig{
		Host:          stringEnv("DB_HOST", "localhost"),
		Port:          port,
		User:          os.Getenv("DB_USER"),
		Password:      os.Getenv("DB_PASSWORD"),
		Name:          os.Getenv("DB_NAME"),
		MaxOpenConns:  maxOpen,
		MaxIdleConns:  maxIdle,
		LockTimeout:   lockTimeout,
		TxMaxAttempts: attempts,
	}, nil
}

func LoadConfigApp() (*AppConfig, error) {
	if err := loadEnv(); err != nil {
		return nil, err
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	redisDB, err := intEnv("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}

	ttl, err := durationEnv("SUMMARY_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, err
	}

	return &AppConfig{
		Addr:              stringEnv("SERVER_ADDR", ":8080"),
		JWTSecret:         secret,
		DefaultCurrency:   stringEnv("DEFAULT_CURRENCY", "USD"),
		LogDir:            os.Getenv("LOG_DIR"),
		ReconcileSchedule: stringEnv("RECONCILE_SCHEDULE", "@every 15m"),
		TLSCertFile:       os.Getenv("TLS_CERT_FILE"),
		TLSKeyFile:        os.Getenv("TLS_KEY_FILE"),
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
			TTL:      ttl,
		},
	}, nil
}

func stringEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
