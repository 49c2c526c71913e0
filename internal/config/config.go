package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Scheduler SchedulerConfig
	Dispatch  DispatchConfig
	Mail      MailConfig
}

type ServerConfig struct {
	Address string
}

type DatabaseConfig struct {
	PostgresURL string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type SchedulerConfig struct {
	Interval time.Duration
}

type DispatchConfig struct {
	// Timezone is the reference civil calendar for dates and time-of-day
	// matching. Intake parsing, dueness checks and sent_dates all use it.
	Timezone string
	Workers  int
	// StaleClaim is how long a schedule may sit IN_PROGRESS before a tick
	// releases it back to PENDING.
	StaleClaim time.Duration
}

// MailProvider selects the transport implementation.
type MailProvider string

const (
	ProviderSMTP   MailProvider = "smtp"
	ProviderResend MailProvider = "resend"
	ProviderLog    MailProvider = "log"
)

type MailConfig struct {
	Provider MailProvider

	SMTPHost    string
	SMTPPort    int
	SendTimeout time.Duration

	ResendAPIKey string
}

// LoadAll reads configuration from the environment. Invalid or missing
// values surface as an error; the panics in the helpers below are an
// internal shortcut only.
func LoadAll() (cfg *Config, err error) {
	defer func() {
		if r := recover(); r != nil {
			cfg = nil
			err = fmt.Errorf("config: %v", r)
		}
	}()

	cfg = &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			PostgresURL: mustEnv("POSTGRES_URL"),
		},
		Scheduler: SchedulerConfig{
			Interval: time.Duration(getEnvInt("SCHED_INTERVAL_SECONDS", 60)) * time.Second,
		},
		Dispatch: DispatchConfig{
			Timezone:   getEnv("DISPATCH_TIMEZONE", "UTC"),
			Workers:    getEnvInt("DISPATCH_WORKERS", 4),
			StaleClaim: time.Duration(getEnvInt("DISPATCH_STALE_CLAIM_SECONDS", 900)) * time.Second,
		},
		Mail:  loadMailConfig(),
		Redis: loadRedisConfig(),
	}

	validate(cfg)
	return cfg, nil
}

func loadMailConfig() MailConfig {
	return MailConfig{
		Provider:     MailProvider(getEnv("MAIL_PROVIDER", string(ProviderSMTP))),
		SMTPHost:     getEnv("SMTP_HOST", "email-smtp.ap-south-1.amazonaws.com"),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SendTimeout:  time.Duration(getEnvInt("MAIL_SEND_TIMEOUT_SECONDS", 10)) * time.Second,
		ResendAPIKey: os.Getenv("RESEND_API_KEY"),
	}
}

func loadRedisConfig() RedisConfig {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       getEnvInt("REDIS_DB", 0),
		TTL:      time.Duration(getEnvInt("REDIS_TTL_SECONDS", 172800)) * time.Second,
	}
}

func validate(cfg *Config) {
	if cfg.Scheduler.Interval <= 0 {
		panic("SCHED_INTERVAL_SECONDS must be > 0")
	}
	if cfg.Dispatch.Workers <= 0 {
		panic("DISPATCH_WORKERS must be > 0")
	}
	if cfg.Dispatch.StaleClaim <= 0 {
		panic("DISPATCH_STALE_CLAIM_SECONDS must be > 0")
	}
	if _, err := time.LoadLocation(cfg.Dispatch.Timezone); err != nil {
		panic(fmt.Sprintf("invalid DISPATCH_TIMEZONE: %s", cfg.Dispatch.Timezone))
	}

	switch cfg.Mail.Provider {
	case ProviderSMTP:
		if cfg.Mail.SMTPHost == "" || cfg.Mail.SMTPPort <= 0 {
			panic("SMTP_HOST and SMTP_PORT must be set for the smtp provider")
		}
		if cfg.Mail.SendTimeout <= 0 {
			panic("MAIL_SEND_TIMEOUT_SECONDS must be > 0")
		}
	case ProviderResend:
		if cfg.Mail.ResendAPIKey == "" {
			panic("RESEND_API_KEY must be set for the resend provider")
		}
	case ProviderLog:
	default:
		panic(fmt.Sprintf("unknown MAIL_PROVIDER: %s", cfg.Mail.Provider))
	}
}

func mustEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("missing required env var: %s", key))
	}
	return val
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		panic(fmt.Sprintf("invalid int for env %s: %s", key, v))
	}
	return i
}
