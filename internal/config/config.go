package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	DatabaseURL    string `env:"DATABASE_URL" env-required:"true"`
	MigrationsPath string `env:"MIGRATIONS_PATH" env-default:"migrations"`
	LogLevel       string `env:"LOG_LEVEL" env-default:"info"`
	LogFormat      string `env:"LOG_FORMAT" env-default:"text"`
	Port           string `env:"PORT" env-default:"8080"`
	PrometheusPort string `env:"PROMETHEUS_PORT" env-default:"9090"`

	Redis      RedisConfig
	Telegram   TelegramConfig
	Generator  GeneratorConfig
	Speech     SpeechConfig
	Scheduling SchedulingConfig
}

// RedisConfig configures the estimate cache. An empty Addr disables it.
type RedisConfig struct {
	Addr        string        `env:"REDIS_ADDR"`
	Password    string        `env:"REDIS_PASSWORD"`
	DB          int           `env:"REDIS_DB" env-default:"0"`
	EstimateTTL time.Duration `env:"ESTIMATE_CACHE_TTL" env-default:"30s"`
}

// TelegramConfig configures the delivery bot. Each deployment serves one channel.
type TelegramConfig struct {
	Token     string `env:"TELEGRAM_TOKEN"`
	ChannelID int64  `env:"TELEGRAM_CHANNEL_ID" env-default:"0"`
}

// GeneratorConfig points at the content generation service.
type GeneratorConfig struct {
	BaseURL  string        `env:"GENERATOR_URL" env-default:"http://localhost:8081"`
	APIKey   string        `env:"GENERATOR_API_KEY"`
	Timeout  time.Duration `env:"GENERATOR_TIMEOUT" env-default:"60s"`
	Retries  int           `env:"GENERATOR_RETRIES" env-default:"2"`
	Language string        `env:"CONTENT_LANGUAGE" env-default:"ko"`
}

// SpeechConfig points at the speech synthesis service.
type SpeechConfig struct {
	BaseURL    string        `env:"TTS_URL" env-default:"http://localhost:8082"`
	APIKey     string        `env:"TTS_API_KEY"`
	Timeout    time.Duration `env:"TTS_TIMEOUT" env-default:"30s"`
	Retries    int           `env:"TTS_RETRIES" env-default:"2"`
	MomVoice   string        `env:"TTS_MOM_VOICE" env-default:"female-warm"`
	ChildVoice string        `env:"TTS_CHILD_VOICE" env-default:"child-bright"`
	Speed      float64       `env:"TTS_SPEED" env-default:"1.0"`
}

// SchedulingConfig controls the background workers.
type SchedulingConfig struct {
	DispatchInterval time.Duration `env:"DISPATCH_INTERVAL" env-default:"30s"`
	CutoverInterval  time.Duration `env:"CUTOVER_INTERVAL" env-default:"1m"`
}

// Load loads configuration from environment variables. A .env file in the
// working directory is applied first when present.
func Load() (*Config, error) {
	// Missing .env is fine, the environment may already be populated.
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if cfg.Telegram.Token != "" && cfg.Telegram.ChannelID == 0 {
		return nil, fmt.Errorf("TELEGRAM_CHANNEL_ID is required when TELEGRAM_TOKEN is set")
	}
	if cfg.Speech.Speed <= 0 {
		return nil, fmt.Errorf("TTS_SPEED must be positive, got %v", cfg.Speech.Speed)
	}

	return &cfg, nil
}
