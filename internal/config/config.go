package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env  string `validate:"required,oneof=development stage production"`
	Http Http

	Cors CORS `validate:"required"`

	Postgres Postgres `validate:"required"`

	Catalog Catalog `validate:"required"`

	Kafka Kafka `validate:"required"`

	JWT JWT `validate:"required"`

	Cache Cache

	Order Order `validate:"required"`
}

type Http struct {
	Host string `validate:"required,hostname|ip"`
	Port string `validate:"required,gt=0,lte=65535"`
}

type Postgres struct {
	Host     string `validate:"required,hostname|ip"`
	Port     int    `validate:"required,gt=0,lte=65535"`
	DBName   string `validate:"required"`
	User     string `validate:"required"`
	Password string `validate:"required"`

	SSLMode string `validate:"required,oneof=disable require verify-ca verify-full"`

	MaxOpenConns    int           `validate:"gte=1"`
	MaxIdleConns    int           `validate:"gte=0"`
	ConnMaxLifetime time.Duration `validate:"gte=0"`
}

type Catalog struct {
	BaseURL        string        `validate:"required,url"`
	RequestTimeout time.Duration `validate:"gt=0"`
	RetryAttempts  int           `validate:"gte=1"`
}

type Kafka struct {
	Brokers      []string      `validate:"required,min=1,dive,hostname_port"`
	EventsTopic  string        `validate:"required"`
	BatchTimeout time.Duration `validate:"gte=0"`
}

type JWT struct {
	Secret string `validate:"required"`
}

type Cache struct {
	Capacity int           `validate:"gte=1"`
	TTL      time.Duration `validate:"gt=0"`
}

type Order struct {
	Currency string `validate:"required,len=3"`
	// VAT rate in basis points, 2100 = 21%
	VATRateBP int64 `validate:"gte=0,lte=10000"`
}

type CORS struct {
	AllowedOrigins []string `validate:"required,min=1,dive,url"`
}

func New() Config {
	return Config{
		Env: env("ENV", "development"),

		Http: Http{
			Host: env("HOST", "localhost"),
			Port: env("PORT", "8080"),
		},

		Cors: CORS{
			AllowedOrigins: strings.Split(env("ALLOWED_CORS_ORIGINS", "http://localhost:3000"), ","),
		},

		Postgres: Postgres{
			Port:     envInt("POSTGRES_PORT", 5432),
			Host:     env("POSTGRES_HOST", "localhost"),
			DBName:   env("POSTGRES_DB", "orders"),
			User:     env("POSTGRES_USER", ""),
			Password: env("POSTGRES_PASSWORD", ""),

			SSLMode: env("POSTGRES_SSL_MODE", "disable"),

			MaxOpenConns:    envInt("POSTGRES_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("POSTGRES_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: envDuration("POSTGRES_CONN_MAX_LIFETIME", 5*time.Minute),
		},

		Catalog: Catalog{
			BaseURL:        env("CATALOG_BASE_URL", "http://localhost:8081"),
			RequestTimeout: envDuration("CATALOG_REQUEST_TIMEOUT", 2*time.Second),
			RetryAttempts:  envInt("CATALOG_RETRY_ATTEMPTS", 3),
		},

		Kafka: Kafka{
			Brokers:      strings.Split(env("KAFKA_BROKERS", "localhost:9092"), ","),
			EventsTopic:  env("KAFKA_EVENTS_TOPIC", "order-events"),
			BatchTimeout: envDuration("KAFKA_BATCH_TIMEOUT", 10*time.Millisecond),
		},

		JWT: JWT{
			Secret: env("JWT_SECRET", ""),
		},

		Cache: Cache{
			Capacity: envInt("CACHE_CAPACITY", 1000),
			TTL:      envDuration("CACHE_TTL", 5*time.Minute),
		},

		Order: Order{
			Currency:  env("ORDER_CURRENCY", "EUR"),
			VATRateBP: int64(envInt("ORDER_VAT_RATE_BP", 2100)),
		},
	}
}

func (c Config) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

func env(key string, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}
