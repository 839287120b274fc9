/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the subscription-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort              string `mapstructure:"SERVER_PORT"`
	DatabaseURL             string `mapstructure:"DATABASE_URL"`
	RedisURL                string `mapstructure:"REDIS_URL"`
	RabbitMQURL             string `mapstructure:"RABBITMQ_URL"`
	AccountEventQueue       string `mapstructure:"ACCOUNT_EVENT_QUEUE"`
	AuthJWKSURL             string `mapstructure:"AUTH_JWKS_URL"`
	AllowedOrigins          string `mapstructure:"ALLOWED_ORIGINS"`
	LedgerServiceURL        string `mapstructure:"LEDGER_SERVICE_URL"`
	LedgerInternalAPIKey    string `mapstructure:"LEDGER_SERVICE_INTERNAL_API_KEY"`
	AccountsCacheTTLSeconds int    `mapstructure:"ACCOUNTS_CACHE_TTL_SECONDS"`
	AccountsRefreshSchedule string `mapstructure:"ACCOUNTS_REFRESH_SCHEDULE"`
}

// AllowedOriginList splits the comma-separated ALLOWED_ORIGINS value.
func (c Config) AllowedOriginList() []string {
	parts := strings.Split(c.AllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("ACCOUNT_EVENT_QUEUE", "subscription_service.account_updates")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173")
	viper.SetDefault("ACCOUNTS_CACHE_TTL_SECONDS", 300)
	viper.SetDefault("ACCOUNTS_REFRESH_SCHEDULE", "@every 10m")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "SUBSCRIPTION_REDIS_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("ACCOUNT_EVENT_QUEUE")
	_ = viper.BindEnv("AUTH_JWKS_URL")
	_ = viper.BindEnv("ALLOWED_ORIGINS")
	_ = viper.BindEnv("LEDGER_SERVICE_URL")
	_ = viper.BindEnv("LEDGER_SERVICE_INTERNAL_API_KEY", "LEDGER_SERVICE_INTERNAL_API_KEY", "INTERNAL_API_KEY")
	_ = viper.BindEnv("ACCOUNTS_CACHE_TTL_SECONDS")
	_ = viper.BindEnv("ACCOUNTS_REFRESH_SCHEDULE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.LedgerServiceURL = strings.TrimSpace(config.LedgerServiceURL)

	if config.AccountsCacheTTLSeconds <= 0 {
		config.AccountsCacheTTLSeconds = 300
	}
	if strings.TrimSpace(config.AccountsRefreshSchedule) == "" {
		config.AccountsRefreshSchedule = "@every 10m"
	}

	return
}
