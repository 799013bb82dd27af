package config

import (
	"fmt"
	"log"

	"github.com/spf13/viper"
)

// Config holds the full application configuration.
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig `mapstructure:"auth"`
	Mail     MailConfig `mapstructure:"mail"`
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds the Redis connection settings. Supports single, sentinel
// and cluster modes.
type RedisConfig struct {
	// Mode is one of "single", "sentinel", "cluster". Defaults to "single".
	Mode string `mapstructure:"mode"`

	// Addrs lists host:port addresses; used by all modes.
	Addrs []string `mapstructure:"addrs"`

	// Addr is an alternative single address for "single" mode.
	Addr string `mapstructure:"addr"`

	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// MasterName names the master server (sentinel mode only).
	MasterName string `mapstructure:"master_name"`

	MaxRetries      int `mapstructure:"max_retries"`
	MinRetryBackoff int `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff int `mapstructure:"max_retry_backoff"`
}

// AuthConfig holds the knobs of the registration/verification state machine.
type AuthConfig struct {
	// CodeTTLMinutes is the verification code lifetime. Bounds 1-120,
	// default 10.
	CodeTTLMinutes int `mapstructure:"code_ttl_minutes"`

	// MaxAttempts is the per-code wrong-submission cap. Bounds 1-20,
	// default 5.
	MaxAttempts int `mapstructure:"max_attempts"`

	// ResendCooldownSec throttles repeated code sends per account.
	ResendCooldownSec int `mapstructure:"resend_cooldown_sec"`

	// MailSendTimeoutSec bounds a single outbound mail dispatch.
	MailSendTimeoutSec int `mapstructure:"mail_send_timeout_sec"`
}

// MailConfig holds the outbound mail settings.
type MailConfig struct {
	// Enabled switches between the Resend sender and the noop sender.
	Enabled      bool   `mapstructure:"enabled"`
	ResendAPIKey string `mapstructure:"resend_api_key"`
	From         string `mapstructure:"from"`
}

// PostgresConnectionString builds the PostgreSQL DSN.
func (d *DatabaseConfig) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// Load reads configuration from the optional YAML file at configPath merged
// with explicitly bound environment variables.
func Load(configPath string) (*Config, error) {
	vip := viper.New() // fresh instance, no global viper state

	vip.SetDefault("auth.code_ttl_minutes", 10)
	vip.SetDefault("auth.max_attempts", 5)
	vip.SetDefault("auth.resend_cooldown_sec", 60)
	vip.SetDefault("auth.mail_send_timeout_sec", 10)
	vip.SetDefault("database.sslmode", "disable")

	vip.BindEnv("database.host", "DATABASE_HOST")
	vip.BindEnv("database.port", "DATABASE_PORT")
	vip.BindEnv("database.user", "DATABASE_USER")
	vip.BindEnv("database.password", "DATABASE_PASSWORD")
	vip.BindEnv("database.dbname", "DATABASE_DBNAME")
	vip.BindEnv("database.sslmode", "DATABASE_SSLMODE")

	vip.BindEnv("redis.mode", "REDIS_MODE")
	vip.BindEnv("redis.addrs", "REDIS_ADDRS")
	vip.BindEnv("redis.addr", "REDIS_ADDR")
	vip.BindEnv("redis.password", "REDIS_PASSWORD")
	vip.BindEnv("redis.db", "REDIS_DB")
	vip.BindEnv("redis.master_name", "REDIS_MASTER_NAME")

	vip.BindEnv("auth.code_ttl_minutes", "AUTH_CODE_TTL_MINUTES")
	vip.BindEnv("auth.max_attempts", "AUTH_MAX_ATTEMPTS")
	vip.BindEnv("auth.resend_cooldown_sec", "AUTH_RESEND_COOLDOWN_SEC")
	vip.BindEnv("auth.mail_send_timeout_sec", "AUTH_MAIL_SEND_TIMEOUT_SEC")

	vip.BindEnv("mail.enabled", "MAIL_ENABLED")
	vip.BindEnv("mail.resend_api_key", "MAIL_RESEND_API_KEY")
	vip.BindEnv("mail.from", "MAIL_FROM")

	if configPath != "" {
		vip.SetConfigFile(configPath)
		if err := vip.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				log.Printf("config file '%s' not found, using environment variables and defaults", configPath)
			} else {
				log.Printf("warning: could not read config file '%s': %v", configPath, err)
			}
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Database.Host == "" || cfg.Database.DBName == "" || cfg.Database.User == "" {
		return nil, fmt.Errorf("database configuration (host, dbname, user) is incomplete (check DATABASE_HOST, DATABASE_DBNAME, DATABASE_USER env vars)")
	}
	if cfg.Auth.CodeTTLMinutes < 1 || cfg.Auth.CodeTTLMinutes > 120 {
		return nil, fmt.Errorf("auth.code_ttl_minutes must be between 1 and 120, got %d", cfg.Auth.CodeTTLMinutes)
	}
	if cfg.Auth.MaxAttempts < 1 || cfg.Auth.MaxAttempts > 20 {
		return nil, fmt.Errorf("auth.max_attempts must be between 1 and 20, got %d", cfg.Auth.MaxAttempts)
	}
	if cfg.Mail.Enabled && (cfg.Mail.ResendAPIKey == "" || cfg.Mail.From == "") {
		return nil, fmt.Errorf("mail is enabled but mail.resend_api_key or mail.from is missing (check MAIL_RESEND_API_KEY, MAIL_FROM env vars)")
	}

	return &cfg, nil
}
