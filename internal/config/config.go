package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the exam API service.
type Config struct {
	AppName         string
	AppEnv          string
	AppPort         string
	DatabaseURL     string
	RedisURL        string
	NATSURL         string
	EventChannel    string
	JWTSecret       string
	ExamCacheTTL    time.Duration
	IdempotencyTTL  time.Duration
	AdminRateLimit  int
	AdminRateWindow time.Duration
	AutoMigrate     bool
	ShutdownTimeout time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from EXAMS_* environment variables and an optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("EXAMS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Exam API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("events.channel", "exams")
	v.SetDefault("exam.cache_ttl", "30s")
	v.SetDefault("idempotency.ttl", "24h")
	v.SetDefault("admin.rate_limit", 30)
	v.SetDefault("admin.rate_window", "1m")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("shutdown.timeout", "5s")

	cacheTTL, err := parseDuration(v, "exam.cache_ttl")
	if err != nil {
		return Config{}, err
	}
	idempotencyTTL, err := parseDuration(v, "idempotency.ttl")
	if err != nil {
		return Config{}, err
	}
	rateWindow, err := parseDuration(v, "admin.rate_window")
	if err != nil {
		return Config{}, err
	}
	shutdownTimeout, err := parseDuration(v, "shutdown.timeout")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:         v.GetString("app.name"),
		AppEnv:          v.GetString("app.env"),
		AppPort:         v.GetString("app.port"),
		DatabaseURL:     v.GetString("database.url"),
		RedisURL:        v.GetString("redis.url"),
		NATSURL:         v.GetString("nats.url"),
		EventChannel:    strings.TrimSpace(v.GetString("events.channel")),
		JWTSecret:       v.GetString("jwt.secret"),
		ExamCacheTTL:    cacheTTL,
		IdempotencyTTL:  idempotencyTTL,
		AdminRateLimit:  v.GetInt("admin.rate_limit"),
		AdminRateWindow: rateWindow,
		AutoMigrate:     v.GetBool("database.auto_migrate"),
		ShutdownTimeout: shutdownTimeout,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.AdminRateLimit <= 0 {
		cfg.AdminRateLimit = 30
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	duration, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return duration, nil
}
