package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr        string
	Env             string
	LogLevel        string
	ShutdownTimeout time.Duration

	BackendURL     string
	BackendTimeout time.Duration

	ExpiredLogoutDelay       time.Duration
	MissingTokenRedirectWait time.Duration

	BookingWindowDays int
	BookingLocation   *time.Location

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	RateLimitPerMinute int
	CORSOrigins        []string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
}

func (c Config) Production() bool {
	return c.Env == "production"
}

func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TURNOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http.addr", "")
	v.SetDefault("http.port", 8080)
	v.SetDefault("env", "development")
	v.SetDefault("log.level", "info")
	v.SetDefault("shutdown.timeout", "10s")
	v.SetDefault("backend.url", "http://localhost:5294/api")
	v.SetDefault("backend.timeout", "30s")
	v.SetDefault("auth.expired_logout_delay", "5s")
	v.SetDefault("auth.missing_token_redirect_delay", "1s")
	v.SetDefault("booking.window_days", 30)
	v.SetDefault("booking.timezone", "Local")
	v.SetDefault("database.url", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cache.ttl", "2m")
	v.SetDefault("ratelimit.per_minute", 200)
	v.SetDefault("cors.origins", "http://localhost:5173")
	v.SetDefault("google.client_id", "")
	v.SetDefault("google.client_secret", "")
	v.SetDefault("google.redirect_url", "")

	_ = v.BindEnv("http.addr", "TURNOS_HTTP_ADDR", "HTTP_ADDR")
	_ = v.BindEnv("http.port", "TURNOS_HTTP_PORT", "PORT")
	_ = v.BindEnv("env", "TURNOS_ENV", "APP_ENV")
	_ = v.BindEnv("log.level", "TURNOS_LOG_LEVEL", "LOG_LEVEL")
	_ = v.BindEnv("shutdown.timeout", "TURNOS_SHUTDOWN_TIMEOUT", "SHUTDOWN_TIMEOUT")
	_ = v.BindEnv("backend.url", "TURNOS_BACKEND_URL", "API_URL")
	_ = v.BindEnv("backend.timeout", "TURNOS_BACKEND_TIMEOUT")
	_ = v.BindEnv("auth.expired_logout_delay", "TURNOS_AUTH_EXPIRED_LOGOUT_DELAY")
	_ = v.BindEnv("auth.missing_token_redirect_delay", "TURNOS_AUTH_MISSING_TOKEN_REDIRECT_DELAY")
	_ = v.BindEnv("booking.window_days", "TURNOS_BOOKING_WINDOW_DAYS")
	_ = v.BindEnv("booking.timezone", "TURNOS_BOOKING_TIMEZONE")
	_ = v.BindEnv("database.url", "TURNOS_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("redis.addr", "TURNOS_REDIS_ADDR", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "TURNOS_REDIS_PASSWORD", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "TURNOS_REDIS_DB")
	_ = v.BindEnv("cache.ttl", "TURNOS_CACHE_TTL")
	_ = v.BindEnv("ratelimit.per_minute", "TURNOS_RATELIMIT_PER_MINUTE")
	_ = v.BindEnv("cors.origins", "TURNOS_CORS_ORIGINS")
	_ = v.BindEnv("google.client_id", "TURNOS_GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_ID")
	_ = v.BindEnv("google.client_secret", "TURNOS_GOOGLE_CLIENT_SECRET", "GOOGLE_CLIENT_SECRET")
	_ = v.BindEnv("google.redirect_url", "TURNOS_GOOGLE_REDIRECT_URL", "GOOGLE_REDIRECT_URL")

	addr := strings.TrimSpace(v.GetString("http.addr"))
	if addr == "" {
		addr = fmt.Sprintf(":%d", v.GetInt("http.port"))
	}

	var cfg Config
	var err error
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"shutdown.timeout", &cfg.ShutdownTimeout},
		{"backend.timeout", &cfg.BackendTimeout},
		{"auth.expired_logout_delay", &cfg.ExpiredLogoutDelay},
		{"auth.missing_token_redirect_delay", &cfg.MissingTokenRedirectWait},
		{"cache.ttl", &cfg.CacheTTL},
	}
	for _, d := range durations {
		if *d.dst, err = time.ParseDuration(v.GetString(d.key)); err != nil {
			return Config{}, fmt.Errorf("%s: %w", d.key, err)
		}
	}

	loc, err := time.LoadLocation(v.GetString("booking.timezone"))
	if err != nil {
		return Config{}, fmt.Errorf("booking.timezone: %w", err)
	}

	backendURL := strings.TrimRight(strings.TrimSpace(v.GetString("backend.url")), "/")
	if backendURL == "" {
		return Config{}, fmt.Errorf("backend.url is required")
	}
	windowDays := v.GetInt("booking.window_days")
	if windowDays <= 0 {
		return Config{}, fmt.Errorf("booking.window_days must be positive")
	}

	cfg.HTTPAddr = addr
	cfg.Env = strings.ToLower(strings.TrimSpace(v.GetString("env")))
	cfg.LogLevel = v.GetString("log.level")
	cfg.BackendURL = backendURL
	cfg.BookingWindowDays = windowDays
	cfg.BookingLocation = loc
	cfg.DatabaseURL = strings.TrimSpace(v.GetString("database.url"))
	cfg.RedisAddr = strings.TrimSpace(v.GetString("redis.addr"))
	cfg.RedisPassword = v.GetString("redis.password")
	cfg.RedisDB = v.GetInt("redis.db")
	cfg.RateLimitPerMinute = v.GetInt("ratelimit.per_minute")
	cfg.CORSOrigins = splitList(v.GetString("cors.origins"))
	cfg.GoogleClientID = v.GetString("google.client_id")
	cfg.GoogleClientSecret = v.GetString("google.client_secret")
	cfg.GoogleRedirectURL = v.GetString("google.redirect_url")
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
