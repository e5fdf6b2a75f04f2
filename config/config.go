package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	ListenAddr     string `mapstructure:"listen_addr"`
	DatabaseURL    string `mapstructure:"database_url"`
	AllowedOrigins string `mapstructure:"allowed_origins"`
	LogLevel       string `mapstructure:"log_level"`

	JWTSecret        string `mapstructure:"jwt_secret"`
	AuthServiceURL   string `mapstructure:"auth_service_url"`
	AuthServiceToken string `mapstructure:"auth_service_token"`

	SyncServiceURL   string        `mapstructure:"sync_service_url"`
	GameServiceToken string        `mapstructure:"game_service_token"`
	SyncInterval     time.Duration `mapstructure:"sync_interval"`

	WinningScore      int           `mapstructure:"winning_score"`
	HistoryLimit      int           `mapstructure:"history_limit"`
	PendingSessionTTL time.Duration `mapstructure:"pending_session_ttl"`

	CloudflareAccountID string `mapstructure:"cloudflare_account_id"`
	R2AccessKeyID       string `mapstructure:"r2_access_key_id"`
	R2AccessKeySecret   string `mapstructure:"r2_access_key_secret"`
	R2BucketName        string `mapstructure:"r2_bucket_name"`
}

var defaults = map[string]any{
	"listen_addr":           ":8004",
	"database_url":          "",
	"allowed_origins":       "*",
	"log_level":             "info",
	"jwt_secret":            "",
	"auth_service_url":      "",
	"auth_service_token":    "",
	"sync_service_url":      "",
	"game_service_token":    "",
	"sync_interval":         time.Minute,
	"winning_score":         5,
	"history_limit":         3,
	"pending_session_ttl":   time.Duration(0),
	"cloudflare_account_id": "",
	"r2_access_key_id":      "",
	"r2_access_key_secret":  "",
	"r2_bucket_name":        "",
}

// Load reads .env (when present) into the process environment and builds the
// configuration from environment variables over the defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv()
}

func FromEnv() (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.JWTSecret == "" && c.AuthServiceURL == "" {
		errs = append(errs, errors.New("one of JWT_SECRET or AUTH_SERVICE_URL is required"))
	}
	if c.WinningScore <= 0 {
		errs = append(errs, fmt.Errorf("WINNING_SCORE must be positive, got %d", c.WinningScore))
	}
	if c.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("HISTORY_LIMIT must be positive, got %d", c.HistoryLimit))
	}
	if c.SyncServiceURL != "" && c.SyncInterval <= 0 {
		errs = append(errs, errors.New("SYNC_INTERVAL must be positive when SYNC_SERVICE_URL is set"))
	}
	if c.PendingSessionTTL < 0 {
		errs = append(errs, errors.New("PENDING_SESSION_TTL must not be negative"))
	}
	return errors.Join(errs...)
}

// Origins splits ALLOWED_ORIGINS into the list fiber's CORS middleware expects.
func (c *Config) Origins() string {
	parts := strings.Split(c.AllowedOrigins, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ",")
}
