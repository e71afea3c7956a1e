package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/zjoart/churpay/pkg/money"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type Config struct {
	DBUrl                string
	StorageDriver        string
	JWTSecret            string
	GoogleClientID       string
	GoogleClientSecret   string
	GatewaySecret        string
	MinTransactionAmount int64
	Currency             string
	Port                 string
	Host                 string
	Env                  string
	AllowedOrigins       []string
	RedisURL             string
	RedisPassword        string
	SetupTokenTTL        time.Duration
	SetupURL             string
	SMTPHost             string
	SMTPPort             string
	SMTPUsername         string
	SMTPPassword         string
	SuperAdminEmail      string
	SuperAdminPassword   string
	RateLimitRPS         float64
	RateLimitBurst       int
}

func LoadConfig() Config {
	godotenv.Load()

	driver := getEnvDefault("STORAGE_DRIVER", StorageDriverPostgres)
	dbURL := ""
	if driver == StorageDriverPostgres {
		dbURL = getEnv("DATABASE_URL")
	}

	// major units in the environment, e.g. "1.00"
	minAmount, err := money.ToMinor(getEnvDefault("MIN_TRANSACTION_AMOUNT", "1.00"))
	if err != nil {
		panic("MIN_TRANSACTION_AMOUNT must be an amount with at most two decimals")
	}

	ttl, err := time.ParseDuration(getEnvDefault("SETUP_TOKEN_TTL", "24h"))
	if err != nil {
		panic("SETUP_TOKEN_TTL must be a valid duration")
	}

	rps, err := strconv.ParseFloat(getEnvDefault("RATE_LIMIT_RPS", "5"), 64)
	if err != nil {
		panic("RATE_LIMIT_RPS must be a number")
	}

	burst, err := strconv.Atoi(getEnvDefault("RATE_LIMIT_BURST", "10"))
	if err != nil {
		panic("RATE_LIMIT_BURST must be a valid integer")
	}

	host := getEnv("HOST")

	return Config{
		DBUrl:                dbURL,
		StorageDriver:        driver,
		JWTSecret:            getEnv("JWT_SECRET"),
		GoogleClientID:       os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret:   os.Getenv("GOOGLE_CLIENT_SECRET"),
		GatewaySecret:        getEnv("GATEWAY_SECRET"),
		MinTransactionAmount: minAmount,
		Currency:             getEnvDefault("CURRENCY", "ZAR"),
		Port:                 getEnvDefault("PORT", "8080"),
		Host:                 host,
		Env:                  getEnvDefault("ENV", "development"),
		AllowedOrigins:       strings.Split(getEnvDefault("ALLOWED_ORIGINS", "*"), ","),
		RedisURL:             getEnvDefault("REDIS_URL", "redis://localhost:6379/0"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		SetupTokenTTL:        ttl,
		SetupURL:             getEnvDefault("SETUP_URL", host+"/church/setup"),
		SMTPHost:             os.Getenv("SMTP_HOST"),
		SMTPPort:             getEnvDefault("SMTP_PORT", "465"),
		SMTPUsername:         os.Getenv("SMTP_USERNAME"),
		SMTPPassword:         os.Getenv("SMTP_PASSWORD"),
		SuperAdminEmail:      os.Getenv("SUPERADMIN_EMAIL"),
		SuperAdminPassword:   os.Getenv("SUPERADMIN_PASSWORD"),
		RateLimitRPS:         rps,
		RateLimitBurst:       burst,
	}
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	panic(fmt.Sprintf("%s is required", key))
}

func getEnvDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
