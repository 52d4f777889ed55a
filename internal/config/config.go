package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	AuthJWTSecret string

	OTLPEndpoint string

	DBType            string
	DBDSN             string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	MigrateOnBoot     bool

	MPGS MPGSConfig

	Kafka     KafkaConfig
	RateLimit RateLimitConfig
}

// MPGSConfig describes the merchant profile used against the payment gateway.
type MPGSConfig struct {
	MerchantID      string
	APIVersion      string
	GatewayURL      string
	APIUsername     string
	APIPassword     string
	DefaultCurrency string
	ReturnBaseURL   string
	FrontendBaseURL string
	MerchantName    string
	Timeout         time.Duration
	PrecreateOrder  bool
	StrictCallback  bool
	NegotiationFile string
}

type KafkaConfig struct {
	Brokers      []string
	PaymentTopic string
	ClientID     string
}

type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	merchantID := strings.TrimSpace(getenv("MPGS_MERCHANT_ID", ""))

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "qabalan"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		OTLPEndpoint:  getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DB_TYPE", "postgres"),
		DBDSN:             strings.TrimSpace(getenv("DB_DSN", "")),
		DBHost:            getenv("DB_HOST", "localhost"),
		DBPort:            getenv("DB_PORT", "5432"),
		DBName:            getenv("DB_NAME", "qabalan"),
		DBUser:            getenv("DB_USER", "postgres"),
		DBPassword:        getenv("DB_PASSWORD", ""),
		DBSSLMode:         getenv("DB_SSL_MODE", "disable"),
		DBMaxIdleConn:     getenvInt("DB_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DB_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DB_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DB_CONN_MAX_IDLE_TIME", 300),
		MigrateOnBoot:     getenvBool("DB_MIGRATE_ON_BOOT", true),

		MPGS: MPGSConfig{
			MerchantID:      merchantID,
			APIVersion:      getenv("MPGS_API_VERSION", "61"),
			GatewayURL:      strings.TrimRight(getenv("MPGS_GATEWAY_URL", "https://test-gateway.mastercard.com"), "/"),
			APIUsername:     strings.TrimSpace(getenv("MPGS_API_USERNAME", defaultUsername(merchantID))),
			APIPassword:     strings.TrimSpace(os.Getenv("MPGS_API_PASSWORD")),
			DefaultCurrency: strings.ToUpper(getenv("MPGS_DEFAULT_CURRENCY", "JOD")),
			ReturnBaseURL:   strings.TrimRight(getenv("MPGS_RETURN_BASE_URL", "http://localhost:8080/api/payments/mpgs"), "/"),
			FrontendBaseURL: strings.TrimRight(getenv("FRONTEND_BASE_URL", "http://localhost:3000"), "/"),
			MerchantName:    getenv("MPGS_MERCHANT_NAME", "Qabalan"),
			Timeout:         getenvDuration("MPGS_TIMEOUT", 10*time.Second),
			PrecreateOrder:  getenvBool("MPGS_PRECREATE_ORDER", false),
			StrictCallback:  getenvBool("MPGS_STRICT_SUCCESS_CALLBACK", false),
			NegotiationFile: strings.TrimSpace(getenv("MPGS_NEGOTIATION_CONFIG", "")),
		},

		Kafka: KafkaConfig{
			Brokers:      parseList(getenv("KAFKA_BROKERS", "")),
			PaymentTopic: getenv("KAFKA_PAYMENT_TOPIC", "payment.status_changed"),
			ClientID:     getenv("KAFKA_CLIENT_ID", "qabalan-payments"),
		},

		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			RedisDB:       getenvInt("REDIS_DB", 0),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// Configured reports whether the gateway credentials are present.
func (c MPGSConfig) Configured() bool {
	return c.MerchantID != "" && c.APIPassword != ""
}

func defaultUsername(merchantID string) string {
	if merchantID == "" {
		return ""
	}
	return fmt.Sprintf("merchant.%s", merchantID)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
		return parsed
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
