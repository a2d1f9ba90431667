package config

import (
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
	LogLevel    string

	DBType            string
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

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Broker  BrokerConfig
	Sweeper SweeperConfig
	Cache   CacheConfig
}

// BrokerConfig tunes the stream transport and the aggregation consumer.
type BrokerConfig struct {
	Partitions    int
	ConsumerGroup string
	ConsumerName  string
	BatchSize     int
	PollInterval  time.Duration
	MaxBackoff    time.Duration
	LeaseTTL      time.Duration
}

// SweeperConfig tunes the outbox sweeper.
type SweeperConfig struct {
	PollInterval time.Duration
	BatchSize    int
	RunTimeout   time.Duration
}

// CacheConfig tunes the read-side summary cache.
type CacheConfig struct {
	SummaryTTL time.Duration
	RangeTTL   time.Duration
	GoalTTL    time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "pulse"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "pulse"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		Broker: BrokerConfig{
			Partitions:    getenvInt("BROKER_PARTITIONS", 8),
			ConsumerGroup: getenv("BROKER_CONSUMER_GROUP", "analytics"),
			ConsumerName:  getenv("BROKER_CONSUMER_NAME", hostnameOr("pulse-consumer")),
			BatchSize:     getenvInt("BROKER_BATCH_SIZE", 50),
			PollInterval:  getenvDuration("BROKER_POLL_INTERVAL", 2*time.Second),
			MaxBackoff:    getenvDuration("BROKER_MAX_BACKOFF", 30*time.Second),
			LeaseTTL:      getenvDuration("BROKER_LEASE_TTL", 30*time.Second),
		},
		Sweeper: SweeperConfig{
			PollInterval: getenvDuration("OUTBOX_POLL_INTERVAL", time.Second),
			BatchSize:    getenvInt("OUTBOX_BATCH_SIZE", 100),
			RunTimeout:   getenvDuration("OUTBOX_RUN_TIMEOUT", 30*time.Second),
		},
		Cache: CacheConfig{
			SummaryTTL: getenvDuration("CACHE_SUMMARY_TTL", 5*time.Minute),
			RangeTTL:   getenvDuration("CACHE_RANGE_TTL", 5*time.Minute),
			GoalTTL:    getenvDuration("CACHE_GOAL_TTL", time.Minute),
		},
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
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
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

func hostnameOr(def string) string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return def
	}
	return name
}
