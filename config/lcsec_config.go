package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port        string
	Environment string

	// Dedup store (MongoDB)
	MongoDBURL  string // may arrive AES-256-GCM encrypted; decrypted at startup
	MongoDBName string

	// Redis (rate limiting; optional)
	RedisURL string

	// Lexical classifier
	BayesModelPath string

	// Transformer classifier (BERT serving endpoint)
	BertEndpoint   string
	BertTimeoutSec int

	// Audit mirror (Google Sheets; optional)
	SheetsCredentialsFile string
	SheetsSpreadsheetID   string
	SheetsWorksheet       string

	// HTTP surface
	AllowedOrigins []string
	StaticDir      string

	// Review surface auth
	AdminJWTSecret string

	// Rate limiting
	RateLimitPerSec int
	RateLimitBurst  int
}

func Load() (*Config, error) {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),

		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "lcsec"),

		RedisURL: getEnv("REDIS_URL", ""),

		BayesModelPath: getEnv("BAYES_MODEL_PATH", "./models/naive_bayes.json"),

		BertEndpoint:   getEnv("BERT_ENDPOINT", ""),
		BertTimeoutSec: getEnvInt("BERT_TIMEOUT_SEC", 30),

		SheetsCredentialsFile: getEnv("SHEETS_CREDENTIALS_FILE", ""),
		SheetsSpreadsheetID:   getEnv("SHEETS_SPREADSHEET_ID", ""),
		SheetsWorksheet:       getEnv("SHEETS_WORKSHEET", "predictions"),

		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		StaticDir:      getEnv("STATIC_DIR", "./frontend/build"),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		RateLimitPerSec: getEnvInt("RATE_LIMIT_PER_SEC", 10),
		RateLimitBurst:  getEnvInt("RATE_LIMIT_BURST", 20),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
