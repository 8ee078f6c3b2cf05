/**
 * @description
 * Configuration management for the marketplace-service.
 */
package config

import (
	"log"
	"os"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	ServerPort     string `mapstructure:"SERVER_PORT"`
	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	RabbitMQURL    string `mapstructure:"RABBITMQ_URL"`
	RedisURL       string `mapstructure:"REDIS_URL"`
	JWKSURL        string `mapstructure:"JWKS_URL"`
	InternalAPIKey string `mapstructure:"INTERNAL_API_KEY"`

	PaygateBaseURL       string `mapstructure:"PAYGATE_BASE_URL"`
	PaygateAPIKey        string `mapstructure:"PAYGATE_API_KEY"`
	PaygateTerminalID    string `mapstructure:"PAYGATE_TERMINAL_ID"`
	PaygateCashierID     string `mapstructure:"PAYGATE_CASHIER_ID"`
	PaygateCurrency      string `mapstructure:"PAYGATE_CURRENCY"`
	PaygateWebhookSecret string `mapstructure:"PAYGATE_WEBHOOK_SECRET"`

	VATCoefficient          float64 `mapstructure:"VAT_COEFFICIENT"`
	CommissionCoefficient   float64 `mapstructure:"COMMISSION_COEFFICIENT"`
	FeeCollectionSchedule   string  `mapstructure:"FEE_COLLECTION_SCHEDULE"`
	GatewayTimeoutSeconds   int     `mapstructure:"GATEWAY_TIMEOUT_SECONDS"`
	ProgressRetryAfterHours int     `mapstructure:"PROGRESS_RETRY_AFTER_HOURS"`

	ApplyRateLimit         int `mapstructure:"APPLY_RATE_LIMIT"`
	ApplyRateWindowSeconds int `mapstructure:"APPLY_RATE_WINDOW_SECONDS"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (config Config, err error) {
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("PAYGATE_CURRENCY", "ILS")
	viper.SetDefault("VAT_COEFFICIENT", 1.17)
	viper.SetDefault("COMMISSION_COEFFICIENT", 0.05)
	// Mondays at 03:00.
	viper.SetDefault("FEE_COLLECTION_SCHEDULE", "0 3 * * 1")
	viper.SetDefault("GATEWAY_TIMEOUT_SECONDS", 30)
	viper.SetDefault("PROGRESS_RETRY_AFTER_HOURS", 24)
	viper.SetDefault("APPLY_RATE_LIMIT", 30)
	viper.SetDefault("APPLY_RATE_WINDOW_SECONDS", 60)
	viper.AutomaticEnv()

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("PAYGATE_BASE_URL")
	_ = viper.BindEnv("PAYGATE_API_KEY")
	_ = viper.BindEnv("PAYGATE_TERMINAL_ID")
	_ = viper.BindEnv("PAYGATE_CASHIER_ID")
	_ = viper.BindEnv("PAYGATE_CURRENCY")
	_ = viper.BindEnv("PAYGATE_WEBHOOK_SECRET")
	_ = viper.BindEnv("VAT_COEFFICIENT")
	_ = viper.BindEnv("COMMISSION_COEFFICIENT")
	_ = viper.BindEnv("FEE_COLLECTION_SCHEDULE")
	_ = viper.BindEnv("GATEWAY_TIMEOUT_SECONDS")
	_ = viper.BindEnv("PROGRESS_RETRY_AFTER_HOURS")
	_ = viper.BindEnv("APPLY_RATE_LIMIT")
	_ = viper.BindEnv("APPLY_RATE_WINDOW_SECONDS")

	err = viper.Unmarshal(&config)
	if port := os.Getenv("PORT"); port != "" {
		config.ServerPort = port
	}

	if config.VATCoefficient <= 0 {
		log.Printf("level=warn component=config msg=\"VAT_COEFFICIENT must be positive, using default\" value=%v", config.VATCoefficient)
		config.VATCoefficient = 1.17
	}
	if config.CommissionCoefficient <= 0 {
		log.Printf("level=warn component=config msg=\"COMMISSION_COEFFICIENT must be positive, using default\" value=%v", config.CommissionCoefficient)
		config.CommissionCoefficient = 0.05
	}
	if config.GatewayTimeoutSeconds <= 0 {
		config.GatewayTimeoutSeconds = 30
	}
	if config.ProgressRetryAfterHours <= 0 {
		config.ProgressRetryAfterHours = 24
	}

	return
}
