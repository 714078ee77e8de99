package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Provider ProviderConfig
	Observ   ObservabilityConfig
	Catalog  map[string]string
}

type ServerConfig struct {
	Port string
	Env  string
}

// StoreConfig selects and credentials the user record store. The
// credential for the selected backend is mandatory; there is no baked-in
// default to fall back to.
type StoreConfig struct {
	Backend     string // "table" or "postgres"
	TableSASURL string
	DatabaseURL string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers         []string
	TopicEnrollment string
	TopicRetry      string
	ConsumerGroup   string
}

type ProviderConfig struct {
	BaseURL       string
	LiveSecretKey string
	TestSecretKey string
}

type ObservabilityConfig struct {
	JaegerEndpoint string
	PrometheusPort string
}

// Load reads configuration from the environment. It fails when the
// selected store backend or the payment provider has no credential.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("ENV", "development"),
		},
		Store: StoreConfig{
			Backend:     getEnv("STORE_BACKEND", "table"),
			TableSASURL: os.Getenv("USERS_TABLE_SAS_URL"),
			DatabaseURL: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Kafka: KafkaConfig{
			Brokers:         strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			TopicEnrollment: getEnv("KAFKA_TOPIC_ENROLLMENT_EVENTS", "enrollment-events"),
			TopicRetry:      getEnv("KAFKA_TOPIC_ENROLLMENT_RETRY", "enrollment-retry"),
			ConsumerGroup:   getEnv("KAFKA_CONSUMER_GROUP", "enrollment-service-group"),
		},
		Provider: ProviderConfig{
			BaseURL:       getEnv("PAYMENT_API_BASE_URL", "https://api.tosspayments.com"),
			LiveSecretKey: os.Getenv("PAYMENT_LIVE_SECRET_KEY"),
			TestSecretKey: os.Getenv("PAYMENT_TEST_SECRET_KEY"),
		},
		Observ: ObservabilityConfig{
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
			PrometheusPort: getEnv("PROMETHEUS_PORT", "9090"),
		},
	}

	switch cfg.Store.Backend {
	case "table":
		if cfg.Store.TableSASURL == "" {
			return nil, fmt.Errorf("USERS_TABLE_SAS_URL is required for the table store backend")
		}
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres store backend")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.Store.Backend)
	}

	if cfg.Provider.LiveSecretKey == "" && cfg.Provider.TestSecretKey == "" {
		return nil, fmt.Errorf("PAYMENT_LIVE_SECRET_KEY or PAYMENT_TEST_SECRET_KEY is required")
	}

	if raw := os.Getenv("COURSE_CATALOG_JSON"); raw != "" {
		catalog := map[string]string{}
		if err := json.Unmarshal([]byte(raw), &catalog); err != nil {
			return nil, fmt.Errorf("invalid COURSE_CATALOG_JSON: %w", err)
		}
		cfg.Catalog = catalog
	}

	log.Printf("Config loaded: env=%s, port=%s, store=%s", cfg.Server.Env, cfg.Server.Port, cfg.Store.Backend)
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
