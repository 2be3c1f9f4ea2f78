package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"  validate:"required"`
	Redis     RedisConfig     `mapstructure:"redis"     validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth"      validate:"required"`
	Providers ProvidersConfig `mapstructure:"providers" validate:"required"`
	LLM       LLMConfig       `mapstructure:"llm"       validate:"required"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Plan      PlanConfig      `mapstructure:"plan"`
	Watchdog  WatchdogConfig  `mapstructure:"watchdog"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// RedisConfig contains connection settings for the Redis instance backing
// the result cache and the durable dispatch queue.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig contains authentication settings. Token issuance lives in an
// external identity service; this service only verifies bearer tokens.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
}

// ProviderConfig describes one external metadata/extraction provider.
type ProviderConfig struct {
	Name           string `mapstructure:"name"            validate:"required"`
	BaseURL        string `mapstructure:"base_url"        validate:"required,url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" validate:"gte=0"`
}

// ProvidersConfig holds the primary and backup extraction providers.
type ProvidersConfig struct {
	Primary ProviderConfig `mapstructure:"primary" validate:"required"`
	Backup  ProviderConfig `mapstructure:"backup"  validate:"required"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey      string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName         string `mapstructure:"model_name"     validate:"required"`
	MaxRetries        int    `mapstructure:"max_retries"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds"`
}

// StorageConfig points at the object-storage upload service. Optional; when
// BaseURL is empty the pipeline keeps provider URLs with a short expiry.
type StorageConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// DispatchConfig selects which execution strategies are available to the
// dispatcher. Strategies are always tried in their fixed priority order;
// these settings only control which ones are configured at all.
type DispatchConfig struct {
	// QueueEnabled turns on the durable-queue strategy.
	QueueEnabled bool `mapstructure:"queue_enabled"`

	// QueueMaxRetry bounds redelivery attempts for queued dispatch messages.
	QueueMaxRetry int `mapstructure:"queue_max_retry"`

	// TriggerURL is the endpoint of an independently invoked processing
	// instance for the out-of-band trigger strategy. Empty disables it.
	TriggerURL string `mapstructure:"trigger_url"`

	// TriggerSecret authenticates internal process calls.
	TriggerSecret string `mapstructure:"trigger_secret"`
}

// PlanConfig holds the static plan policy used when no external plan
// service is wired in.
type PlanConfig struct {
	MaxConcurrentTasks int  `mapstructure:"max_concurrent_tasks"`
	FreeTrialTasks     int  `mapstructure:"free_trial_tasks"`
	MaxDurationSeconds int  `mapstructure:"max_duration_seconds"`
	TaskCost           int  `mapstructure:"task_cost"`
	FreeTrialEnabled   bool `mapstructure:"free_trial_enabled"`
}

// WatchdogConfig controls the stale-task sweeper.
type WatchdogConfig struct {
	// StaleAfterSeconds is how long a non-terminal task may go without a
	// liveness update before a sweep force-fails it.
	StaleAfterSeconds int `mapstructure:"stale_after_seconds"`
}
