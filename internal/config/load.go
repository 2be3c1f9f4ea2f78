package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config file: config.yaml in the working directory.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Missing file is fine; environment variables may carry everything.
	}

	// Environment overrides: VOXLATE_SERVER_PORT, VOXLATE_DATABASE_URL, etc.
	v.SetEnvPrefix("VOXLATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers defaults for settings that have sensible values
// without operator input. Registering the key also lets AutomaticEnv pick
// up the corresponding environment variable.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("providers.primary.timeout_seconds", 45)
	v.SetDefault("providers.backup.timeout_seconds", 45)

	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay_seconds", 2)

	v.SetDefault("storage.timeout_seconds", 60)

	v.SetDefault("dispatch.queue_enabled", false)
	v.SetDefault("dispatch.queue_max_retry", 3)

	v.SetDefault("plan.max_concurrent_tasks", 3)
	v.SetDefault("plan.free_trial_tasks", 1)
	v.SetDefault("plan.max_duration_seconds", 3600)
	v.SetDefault("plan.task_cost", 10)
	v.SetDefault("plan.free_trial_enabled", true)

	v.SetDefault("watchdog.stale_after_seconds", 150)

	// Secrets have no defaults on purpose; they must come from the
	// environment or the config file.
	for _, key := range []string{
		"database.url",
		"auth.jwt_secret",
		"providers.primary.name",
		"providers.primary.base_url",
		"providers.primary.api_key",
		"providers.backup.name",
		"providers.backup.base_url",
		"providers.backup.api_key",
		"llm.gemini_api_key",
		"storage.base_url",
		"storage.api_key",
		"dispatch.trigger_url",
		"dispatch.trigger_secret",
		"redis.password",
	} {
		if err := v.BindEnv(key); err != nil {
			// BindEnv only errors on an empty key, which cannot happen here.
			continue
		}
	}
}
