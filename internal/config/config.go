package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis" validate:"required"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
	Session  SessionConfig  `mapstructure:"session" validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue" validate:"required"`
}

// ServerConfig contains all HTTP server related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// RedisConfig contains the connection settings for the redis instance
// backing the cache, the task queue and the dynamic parameter store.
type RedisConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// PaymentConfig contains the YooKassa gateway credentials and pricing
// defaults. ShopID and APIKey may be empty, in which case the payment
// endpoints report the gateway as unconfigured instead of failing startup.
type PaymentConfig struct {
	ShopID    string `mapstructure:"shop_id"`
	APIKey    string `mapstructure:"api_key"`
	Price     int    `mapstructure:"price" validate:"gte=0"`
	ReturnURL string `mapstructure:"return_url"`
}

// LLMConfig contains the settings for the OpenAI-compatible chat backends.
// The primary backend handles large-context analysis; the alternate one,
// when configured, serves fast JSON-mode requests.
type LLMConfig struct {
	APIKey      string `mapstructure:"api_key" validate:"required"`
	BaseURL     string `mapstructure:"base_url"`
	Model       string `mapstructure:"model" validate:"required"`
	AltAPIKey   string `mapstructure:"alt_api_key"`
	AltBaseURL  string `mapstructure:"alt_base_url"`
	AltModel    string `mapstructure:"alt_model"`
	MaxTokens   int    `mapstructure:"max_tokens" validate:"gte=0"`
	TimeoutSecs int    `mapstructure:"timeout_seconds" validate:"gt=0"`
}

// SessionConfig contains the entitlement lifecycle defaults.
type SessionConfig struct {
	// DurationMinutes is the default validity window (W) granted per payment.
	DurationMinutes int `mapstructure:"duration_minutes" validate:"gt=0"`
}

// QueueConfig contains the background task queue settings.
type QueueConfig struct {
	// Concurrency is the ceiling on simultaneously processing tasks.
	Concurrency int `mapstructure:"concurrency" validate:"gt=0"`

	// TaskTimeoutSecs is the default advisory timeout attached to submitted tasks.
	TaskTimeoutSecs int `mapstructure:"task_timeout_seconds" validate:"gt=0"`

	// CleanupMaxAgeHours bounds how long finished descriptors are retained
	// before the periodic cleanup purges them.
	CleanupMaxAgeHours int `mapstructure:"cleanup_max_age_hours" validate:"gt=0"`
}
