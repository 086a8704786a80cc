package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the notification engine.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Push      PushConfig      `yaml:"push"`
	SES       SESConfig       `yaml:"ses"`
	Tokens    TokensConfig    `yaml:"tokens"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	App       AppConfig       `yaml:"app"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds Postgres settings.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds Redis settings for distributed locks. Disabled falls
// back to Postgres advisory locks.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PushConfig holds FCM delivery settings.
type PushConfig struct {
	ServerKey      string `yaml:"server_key"`
	Endpoint       string `yaml:"endpoint"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the FCM request timeout.
func (p PushConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// SESConfig holds AWS SES settings.
type SESConfig struct {
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	FromName  string `yaml:"from_name"`
	FromEmail string `yaml:"from_email"`
	ReplyTo   string `yaml:"reply_to"`
}

// TokensConfig holds the DynamoDB device token table settings.
type TokensConfig struct {
	Table  string `yaml:"table"`
	Region string `yaml:"region"`
}

// SchedulerConfig holds worker pass timing.
type SchedulerConfig struct {
	WorkerID               string `yaml:"worker_id"`
	ScheduleIntervalMins   int    `yaml:"schedule_interval_mins"`
	PushDrainIntervalSecs  int    `yaml:"push_drain_interval_secs"`
	EmailDrainIntervalSecs int    `yaml:"email_drain_interval_secs"`
	SweepIntervalHours     int    `yaml:"sweep_interval_hours"`
}

// AppConfig holds identity used in rendered messages.
type AppConfig struct {
	Name string `yaml:"name"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Push.TimeoutSeconds == 0 {
		cfg.Push.TimeoutSeconds = 10
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.SES.FromName == "" {
		cfg.SES.FromName = cfg.App.Name
	}
	if cfg.Tokens.Region == "" {
		cfg.Tokens.Region = cfg.SES.Region
	}
	if cfg.Tokens.Table == "" {
		cfg.Tokens.Table = "trailnotify-device-tokens"
	}
	if cfg.Scheduler.ScheduleIntervalMins == 0 {
		cfg.Scheduler.ScheduleIntervalMins = 15
	}
	if cfg.Scheduler.PushDrainIntervalSecs == 0 {
		cfg.Scheduler.PushDrainIntervalSecs = 30
	}
	if cfg.Scheduler.EmailDrainIntervalSecs == 0 {
		cfg.Scheduler.EmailDrainIntervalSecs = 60
	}
	if cfg.Scheduler.SweepIntervalHours == 0 {
		cfg.Scheduler.SweepIntervalHours = 6
	}
	if cfg.App.Name == "" {
		cfg.App.Name = "TrailNotify"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("FCM_SERVER_KEY"); v != "" {
		cfg.Push.ServerKey = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("SES_FROM_EMAIL"); v != "" {
		cfg.SES.FromEmail = v
	}
	if v := os.Getenv("TOKENS_TABLE"); v != "" {
		cfg.Tokens.Table = v
	}
	if v := os.Getenv("WORKER_ID"); v != "" {
		cfg.Scheduler.WorkerID = v
	}

	return cfg, nil
}
