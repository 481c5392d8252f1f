package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config holds application configuration
type Config struct {
	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis
	RedisURL string

	// Auth
	JWTSecret string

	// External rate sources
	UKTariffAPIBase string
	EUTaricAPIBase  string
	EUTaricAPIKey   string
	VatAPIBase      string
	VatAPIKey       string
	ECBAPIBase      string

	// Messaging
	NatsURL string

	// Server
	Port        string
	Environment string
	LogLevel    string
}

// Load creates a new configuration from environment variables. A local
// .env file is honored when present.
func Load() *Config {
	_ = godotenv.Load()

	dbPort, _ := strconv.Atoi(getEnv("DB_PORT", "5432"))

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     dbPort,
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "landed_cost"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		RedisURL: getEnv("REDIS_URL", ""),

		JWTSecret: getEnv("JWT_SECRET", "dev-secret"),

		UKTariffAPIBase: getEnv("UK_TARIFF_API_BASE", "https://www.trade-tariff.service.gov.uk/api/v2"),
		EUTaricAPIBase:  getEnv("EU_TARIC_API_BASE", ""),
		EUTaricAPIKey:   getEnv("EU_TARIC_API_KEY", ""),
		VatAPIBase:      getEnv("VAT_API_BASE", ""),
		VatAPIKey:       getEnv("VAT_API_KEY", ""),
		ECBAPIBase:      getEnv("ECB_API_BASE", "https://data-api.ecb.europa.eu/service/data/EXR"),

		NatsURL: getEnv("NATS_URL", ""),

		Port:        getEnv("PORT", "8094"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}
}

// InitDB initializes the database connection
func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)

	var logLevel logger.LogLevel
	if cfg.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
