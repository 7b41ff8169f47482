package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort           string `mapstructure:"APP_PORT"`
	DatabaseURL       string `mapstructure:"DATABASE_URL"`
	DatabaseName      string `mapstructure:"DATABASE_NAME"`
	Env               string `mapstructure:"ENV"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	MaxRequestsPerMin int    `mapstructure:"MAX_REQUESTS_PER_MIN"`

	// Redis configuration.
	RedisAddr       string `mapstructure:"REDIS_ADDR"`
	RedisPassword   string `mapstructure:"REDIS_PASSWORD"`
	RedisCacheDB    int    `mapstructure:"REDIS_CACHE_DB"`
	RedisTrackingDB int    `mapstructure:"REDIS_TRACKING_DB"`
	RedisWorkerDB   int    `mapstructure:"REDIS_WORKER_DB"`

	// Progressive search tuning.
	SearchRadiusLadderKm []float64     `mapstructure:"SEARCH_RADIUS_LADDER_KM"`
	SearchDwell          time.Duration `mapstructure:"SEARCH_DWELL"`
	SearchCooldown       time.Duration `mapstructure:"SEARCH_COOLDOWN"`

	// Payment confirmation tuning (instant-transfer path).
	PaymentPollInterval time.Duration `mapstructure:"PAYMENT_POLL_INTERVAL"`
	PaymentPollCeiling  time.Duration `mapstructure:"PAYMENT_POLL_CEILING"`

	// Gateway credentials.
	StripeKey               string `mapstructure:"STRIPE_KEY"`
	MercadoPagoAccessToken  string `mapstructure:"MERCADOPAGO_ACCESS_TOKEN"`
	FirebaseCredentialsFile string `mapstructure:"FIREBASE_CREDENTIALS_FILE"`
}

var AppConfig Config

func LoadConfig() {
	// Look for a config file named "config.yaml" in the current and "config" directory.
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	// Automatically use environment variables where available.
	viper.AutomaticEnv()

	// Set default values.
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("MAX_REQUESTS_PER_MIN", 100)
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_CACHE_DB", 0)
	viper.SetDefault("REDIS_TRACKING_DB", 1)
	viper.SetDefault("REDIS_WORKER_DB", 2)
	viper.SetDefault("DATABASE_URL", "mongodb://localhost:27017")
	viper.SetDefault("DATABASE_NAME", "gigaserv")
	viper.SetDefault("SEARCH_RADIUS_LADDER_KM", []float64{5, 10, 15, 25})
	viper.SetDefault("SEARCH_DWELL", "45s")
	viper.SetDefault("SEARCH_COOLDOWN", "10s")
	viper.SetDefault("PAYMENT_POLL_INTERVAL", "5s")
	viper.SetDefault("PAYMENT_POLL_CEILING", "2m")
	viper.SetDefault("STRIPE_KEY", "")
	viper.SetDefault("MERCADOPAGO_ACCESS_TOKEN", "")
	viper.SetDefault("FIREBASE_CREDENTIALS_FILE", "")

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}
