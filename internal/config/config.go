// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// TriggerLimit is the number of manual generation requests allowed per owner per TriggerWindow.
	TriggerLimit  int           `yaml:"trigger_limit"`
	TriggerWindow time.Duration `yaml:"trigger_window"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type StorageConfig struct {
	Driver   string `yaml:"driver"` // postgres | sqlite
	URL      string `yaml:"url"`
	DataDir  string `yaml:"data_dir"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// QueueConfig enables the RabbitMQ transport when AMQPURL is set. Without it
// operations are handed to the in-process worker pool.
type QueueConfig struct {
	AMQPURL  string `yaml:"amqp_url"`
	Exchange string `yaml:"exchange"`
	Queue    string `yaml:"queue"`
}

type AIConfig struct {
	OpenAIKey          string `yaml:"openai_key"`
	OpenAIBaseURL      string `yaml:"openai_base_url"`
	GeminiKey          string `yaml:"gemini_key"`
	GeminiURL          string `yaml:"gemini_url"`
	DefaultModel       string `yaml:"default_model"`
	MaxOutputTokens    int    `yaml:"max_output_tokens"`
	ConcurrentLimit    int    `yaml:"concurrent_limit"` // max concurrent AI calls
	ContextTokenBudget int    `yaml:"context_token_budget"`
}

type IntegrationsConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type WorkerConfig struct {
	Workers      int           `yaml:"workers"`
	PollInterval time.Duration `yaml:"poll_interval"`
	StaleAfter   time.Duration `yaml:"stale_after"`
}

type SchedulerConfig struct {
	Interval         time.Duration `yaml:"interval"`
	Weekday          string        `yaml:"weekday"`
	StartHour        int           `yaml:"start_hour"`
	EndHour          int           `yaml:"end_hour"`
	IntegrationTypes []string      `yaml:"integration_types"`
	Concurrency      int           `yaml:"concurrency"`
	PreviousSnippets int           `yaml:"previous_snippets"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
	JWTSecret     string `yaml:"jwt_secret"`
}

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
	Storage      StorageConfig      `yaml:"storage"`
	Redis        RedisConfig        `yaml:"redis"`
	Queue        QueueConfig        `yaml:"queue"`
	AI           AIConfig           `yaml:"ai"`
	Integrations IntegrationsConfig `yaml:"integrations"`
	Worker       WorkerConfig       `yaml:"worker"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Security     SecurityConfig     `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the yaml file at path, loads .env if present, applies env
// overrides and defaults, and validates the result.
func LoadConfig(path string, dev bool) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && path == "config.yaml":
		// env-only deployments
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	override := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	override(&cfg.Storage.URL, "DATABASE_URL")
	override(&cfg.Redis.URL, "REDIS_URL")
	override(&cfg.Queue.AMQPURL, "AMQP_URL")
	override(&cfg.AI.GeminiKey, "GEMINI_API_KEY")
	override(&cfg.AI.OpenAIKey, "OPENAI_API_KEY")
	override(&cfg.Security.JWTSecret, "JWT_SECRET")
	override(&cfg.Security.EncryptionKey, "ENCRYPTION_KEY")
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 15 * time.Second
	}
	if cfg.Server.TriggerLimit <= 0 {
		cfg.Server.TriggerLimit = 5
	}
	if cfg.Server.TriggerWindow <= 0 {
		cfg.Server.TriggerWindow = time.Minute
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "postgres"
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.MaxConns <= 0 {
		cfg.Storage.MaxConns = 16
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Queue.Exchange == "" {
		cfg.Queue.Exchange = "operations"
	}
	if cfg.Queue.Queue == "" {
		cfg.Queue.Queue = "operations.dispatch"
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gemini-2.0-flash"
	}
	if cfg.AI.OpenAIBaseURL == "" {
		cfg.AI.OpenAIBaseURL = "https://api.openai.com/v1"
	}
	if cfg.AI.MaxOutputTokens <= 0 {
		cfg.AI.MaxOutputTokens = 1024
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.AI.ContextTokenBudget <= 0 {
		cfg.AI.ContextTokenBudget = 2000
	}
	if cfg.Integrations.Timeout <= 0 {
		cfg.Integrations.Timeout = 10 * time.Second
	}
	if cfg.Worker.Workers <= 0 {
		cfg.Worker.Workers = 4
	}
	if cfg.Worker.PollInterval <= 0 {
		cfg.Worker.PollInterval = 500 * time.Millisecond
	}
	if cfg.Worker.StaleAfter <= 0 {
		cfg.Worker.StaleAfter = 15 * time.Minute
	}
	if cfg.Scheduler.Interval <= 0 {
		cfg.Scheduler.Interval = 15 * time.Minute
	}
	if cfg.Scheduler.Weekday == "" {
		cfg.Scheduler.Weekday = "friday"
	}
	if cfg.Scheduler.StartHour == 0 && cfg.Scheduler.EndHour == 0 {
		cfg.Scheduler.StartHour, cfg.Scheduler.EndHour = 15, 18
	}
	if cfg.Scheduler.Concurrency <= 0 {
		cfg.Scheduler.Concurrency = 4
	}
	if cfg.Scheduler.PreviousSnippets <= 0 {
		cfg.Scheduler.PreviousSnippets = 3
	}
}

// Validate performs minimal validation.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "postgres":
		if c.Storage.URL == "" {
			return errors.New("storage.url is required for the postgres driver")
		}
	case "sqlite":
	default:
		return fmt.Errorf("storage.driver must be postgres or sqlite, got %q", c.Storage.Driver)
	}
	if _, err := ParseWeekday(c.Scheduler.Weekday); err != nil {
		return err
	}
	if c.Scheduler.StartHour < 0 || c.Scheduler.EndHour > 24 || c.Scheduler.StartHour >= c.Scheduler.EndHour {
		return fmt.Errorf("scheduler hours must satisfy 0 <= start_hour < end_hour <= 24")
	}
	if c.Security.JWTSecret == "" {
		return errors.New("security.jwt_secret is required")
	}
	if n := len(c.Security.EncryptionKey); n != 16 && n != 24 && n != 32 {
		return fmt.Errorf("security.encryption_key must be 16, 24, or 32 bytes; got %d", n)
	}
	return nil
}

// ParseWeekday accepts English weekday names, case-insensitive.
func ParseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), strings.TrimSpace(s)) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("scheduler.weekday: unknown weekday %q", s)
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
