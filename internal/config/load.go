package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config.yaml in the working directory. Environment variables take
// precedence over values from the config file and use the STYLIST_
// prefix with underscores for nesting, e.g. STYLIST_SERVER_PORT.
// Returns a populated Config struct or an error if loading or
// validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("STYLIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; env vars and defaults cover it.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers the defaults that make a local instance run
// with nothing but database, redis and LLM credentials configured.
// Every key gets a default, even an empty one: viper only maps
// environment variables onto keys it already knows about.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.url", "")

	v.SetDefault("redis.url", "redis://localhost:6379")

	v.SetDefault("payment.shop_id", "")
	v.SetDefault("payment.api_key", "")
	v.SetDefault("payment.price", 1000)
	v.SetDefault("payment.return_url", "")

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", "deepseek-chat")
	v.SetDefault("llm.alt_api_key", "")
	v.SetDefault("llm.alt_base_url", "")
	v.SetDefault("llm.alt_model", "")
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.timeout_seconds", 120)

	// Default validity window is 24 hours.
	v.SetDefault("session.duration_minutes", 1440)

	v.SetDefault("queue.concurrency", 4)
	v.SetDefault("queue.task_timeout_seconds", 300)
	v.SetDefault("queue.cleanup_max_age_hours", 24)
}
