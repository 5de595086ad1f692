package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	DBDSN         string `mapstructure:"db_dsn"`
	JWTSecret     string `mapstructure:"jwt_secret"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisKey      string `mapstructure:"redis_key"`

	// sql, redis or memory
	StoreBackend string `mapstructure:"store_backend"`

	HTTPAddr         string `mapstructure:"http_addr"`
	AuthEnabled      bool   `mapstructure:"auth_enabled"`
	AuthPasswordHash string `mapstructure:"auth_password_hash"`

	// AI provider
	AIProvider        string `mapstructure:"ai_provider"`
	OllamaBaseURL     string `mapstructure:"ollama_base_url"`
	OllamaModel       string `mapstructure:"ollama_model"`
	OpenRouterBaseURL string `mapstructure:"openrouter_base_url"`
	OpenRouterAPIKey  string `mapstructure:"openrouter_api_key"`
	OpenRouterModel   string `mapstructure:"openrouter_model"`
	OpenRouterSiteURL string `mapstructure:"openrouter_site_url"`
	OpenRouterAppName string `mapstructure:"openrouter_app_name"`

	// rabbitMQ; an empty URL disables event publishing
	RabbitURL   string `mapstructure:"rabbit_url"`
	RabbitQueue string `mapstructure:"rabbit_queue"`

	Log LogConfig `mapstructure:"log"`
}

type LogConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	Output    string `mapstructure:"output"`
	FilePath  string `mapstructure:"file_path"`
	AddSource bool   `mapstructure:"add_source"`
}

const (
	StoreSQL    = "sql"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

func setDefaults(v *viper.Viper) {
	// DSN demo:
	// app:apppass@tcp(127.0.0.1:3306)/gopherchat?charset=utf8mb4&parseTime=true&loc=Local
	v.SetDefault("db_dsn", "gopherchat.db")
	v.SetDefault("jwt_secret", "dev-secret-change-me")
	v.SetDefault("redis_addr", "127.0.0.1:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_key", "gopherchat:snapshot")
	v.SetDefault("store_backend", StoreSQL)

	v.SetDefault("http_addr", ":8080")
	v.SetDefault("auth_enabled", false)
	v.SetDefault("auth_password_hash", "")

	v.SetDefault("ai_provider", "openrouter")
	v.SetDefault("ollama_base_url", "http://localhost:11434")
	v.SetDefault("ollama_model", "llama3:latest")
	v.SetDefault("openrouter_base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("openrouter_api_key", "")
	v.SetDefault("openrouter_model", "")
	v.SetDefault("openrouter_site_url", "http://localhost:3000")
	v.SetDefault("openrouter_app_name", "GopherChat")

	v.SetDefault("rabbit_url", "")
	v.SetDefault("rabbit_queue", "chat_generation_events")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.file_path", "")
	v.SetDefault("log.add_source", false)
}

// Load reads configuration from the environment (DB_DSN, OPENROUTER_API_KEY,
// LOG_LEVEL, ...) layered over an optional YAML file. When path is empty a
// gopherchat.yaml in the working directory is used if present.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("gopherchat")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.AIProvider = strings.ToLower(strings.TrimSpace(cfg.AIProvider))
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreSQL, StoreRedis, StoreMemory:
	default:
		return fmt.Errorf("invalid store_backend: %q, must be sql, redis or memory", c.StoreBackend)
	}
	switch c.AIProvider {
	case "openrouter", "ollama":
	default:
		return fmt.Errorf("invalid ai_provider: %q", c.AIProvider)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s, must be 'json' or 'text'", c.Log.Format)
	}

	if c.AuthEnabled {
		if c.JWTSecret == "" {
			return errors.New("jwt_secret is required when auth is enabled")
		}
		if c.AuthPasswordHash == "" {
			return errors.New("auth_password_hash is required when auth is enabled")
		}
	}
	return nil
}
