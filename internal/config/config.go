package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	BackendPostgres = "postgres"
	BackendLocal    = "local"
)

type Config struct {
	Port               string         `validate:"required,numeric"`
	StoreBackend       string         `validate:"oneof=postgres local"`
	DatabaseURL        string         `validate:"required_if=StoreBackend postgres"`
	LocalStorePath     string         `validate:"required_if=StoreBackend local"`
	Location           *time.Location `validate:"required"`
	OperationTimeout   time.Duration  `validate:"gt=0"`
	SearchLimit        int            `validate:"gt=0"`
	RateLimitPerMinute int            `validate:"gt=0"`
	RateLimitBurst     int            `validate:"gt=0"`
	StaffToken         string
	RelayPollInterval  time.Duration `validate:"gt=0"`
	RelayBatchSize     int           `validate:"gt=0"`
	KafkaBrokers       []string      `validate:"dive,hostname_port"`
	KafkaTopic         string        `validate:"required"`
	LogLevel           string        `validate:"oneof=debug info warn error"`
	LogFormat          string        `validate:"oneof=console json"`
}

var validate = validator.New()

// Load reads an optional .env file (or the file named by ENV_FILE) into the
// environment and then assembles the configuration from it.
func Load() (Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	dsn := os.Getenv("DB_DSN")
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("STORE_BACKEND")))
	if backend == "" {
		backend = BackendLocal
		if dsn != "" {
			backend = BackendPostgres
		}
	}

	localPath := os.Getenv("LOCAL_STORE_PATH")
	if localPath == "" {
		localPath = "puppy-spa-waiting-lists.json"
	}

	zone := os.Getenv("TIMEZONE")
	if zone == "" {
		zone = "UTC"
	}
	location, err := time.LoadLocation(zone)
	if err != nil {
		return Config{}, fmt.Errorf("invalid TIMEZONE %q: %w", zone, err)
	}

	topic := os.Getenv("KAFKA_TOPIC")
	if topic == "" {
		topic = "waitlist-events"
	}

	cfg := Config{
		Port:               port,
		StoreBackend:       backend,
		DatabaseURL:        dsn,
		LocalStorePath:     localPath,
		Location:           location,
		OperationTimeout:   readDurationSeconds("OPERATION_TIMEOUT_SECONDS", 5),
		SearchLimit:        readInt("SEARCH_LIMIT", 100),
		RateLimitPerMinute: readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:     readInt("RATE_LIMIT_BURST", 30),
		StaffToken:         strings.TrimSpace(os.Getenv("STAFF_TOKEN")),
		RelayPollInterval:  readDurationMillis("RELAY_POLL_INTERVAL_MS", 1000),
		RelayBatchSize:     readInt("RELAY_BATCH_SIZE", 100),
		KafkaBrokers:       readList("KAFKA_BROKERS"),
		KafkaTopic:         topic,
		LogLevel:           readString("LOG_LEVEL", "info"),
		LogFormat:          readString("LOG_FORMAT", "console"),
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func readString(key, fallback string) string {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	return raw
}

func readList(key string) []string {
	var values []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readDurationMillis(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Millisecond
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
