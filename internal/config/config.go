package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "TASKNEST_"

// SMTP holds outbound mail settings.
type SMTP struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

// Config carries everything the process reads from the environment.
type Config struct {
	Addr     string
	Env      string // dev | staging | prod
	LogLevel string // debug | info | warn | error
	PGDSN    string

	// PublicURL prefixes the links mailed out by verification and reset
	// flows.
	PublicURL string

	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	// Emails allowed to self-register with the admin role.
	AdminAllowlist []string

	HeartbeatPeriod time.Duration

	SMTP SMTP
}

// Load reads configuration from the environment. A .env file is honored when
// present so local runs do not need exported variables.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:            envOr("ADDR", ":8080"),
		Env:             envOr("ENV", "dev"),
		LogLevel:        envOr("LOG_LEVEL", "info"),
		PublicURL:       envOr("PUBLIC_URL", "http://localhost:8080"),
		PGDSN:           os.Getenv(envPrefix + "PG_DSN"),
		AccessSecret:    os.Getenv(envPrefix + "JWT_ACCESS_SECRET"),
		RefreshSecret:   os.Getenv(envPrefix + "JWT_REFRESH_SECRET"),
		AccessTTL:       15 * time.Minute,
		RefreshTTL:      7 * 24 * time.Hour,
		HeartbeatPeriod: 30 * time.Second,
	}

	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return Config{}, errors.New("config: access and refresh signing secrets are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return Config{}, errors.New("config: access and refresh secrets must differ")
	}

	var err error
	if cfg.AccessTTL, err = durationOr("ACCESS_TOKEN_TTL", cfg.AccessTTL); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTTL, err = durationOr("REFRESH_TOKEN_TTL", cfg.RefreshTTL); err != nil {
		return Config{}, err
	}
	if cfg.HeartbeatPeriod, err = durationOr("WS_HEARTBEAT_PERIOD", cfg.HeartbeatPeriod); err != nil {
		return Config{}, err
	}

	if raw := os.Getenv(envPrefix + "ADMIN_ALLOWLIST"); raw != "" {
		for _, email := range strings.Split(raw, ",") {
			email = strings.TrimSpace(strings.ToLower(email))
			if email != "" {
				cfg.AdminAllowlist = append(cfg.AdminAllowlist, email)
			}
		}
	}

	cfg.SMTP = SMTP{
		Host: os.Getenv(envPrefix + "SMTP_HOST"),
		User: os.Getenv(envPrefix + "SMTP_USER"),
		Pass: os.Getenv(envPrefix + "SMTP_PASS"),
		From: envOr("SMTP_FROM", "no-reply@tasknest.org"),
	}
	if cfg.SMTP.Port, err = intOr("SMTP_PORT", 587); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(envPrefix + key)); v != "" {
		return v
	}
	return def
}

func durationOr(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(envPrefix + key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s%s: %w", envPrefix, key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s%s must be positive", envPrefix, key)
	}
	return d, nil
}

func intOr(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(envPrefix + key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s%s: %w", envPrefix, key, err)
	}
	return v, nil
}
