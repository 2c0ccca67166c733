package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers           []string
	KafkaWeatherTopic      string
	KafkaFarmEventsTopic   string
	KafkaNotificationTopic string
	KafkaEmailTopic        string
	KafkaGroupID           string
	HTTPAddr               string
	LogLevel               string
	LogFormat              string
	ShutdownTimeout        time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	DatabasePath     string
	CropProfilesPath string

	// Notification delivery.
	DedupTTL         time.Duration
	DedupCapacity    int
	AckTimeout       time.Duration
	AckSweepInterval time.Duration

	GrowthInterval  time.Duration
	Timezone        *time.Location
	SafetyWindLimit float64
}

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is loaded first if present; variables
// already set in the environment take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	dedupTTL, err := parseDuration("DEDUP_TTL", "24h")
	if err != nil {
		return nil, err
	}
	ackTimeout, err := parseDuration("ACK_TIMEOUT", "5m")
	if err != nil {
		return nil, err
	}
	ackSweep, err := parseDuration("ACK_SWEEP_INTERVAL", "10s")
	if err != nil {
		return nil, err
	}
	growthInterval, err := parseDuration("GROWTH_INTERVAL", "24h")
	if err != nil {
		return nil, err
	}

	dedupCapacity, err := parsePositiveInt("DEDUP_CAPACITY", 10000)
	if err != nil {
		return nil, err
	}

	windLimit, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("SAFETY_WIND_LIMIT", "60"), 64)
	if err != nil || windLimit <= 0 {
		return nil, errors.New("invalid SAFETY_WIND_LIMIT: must be a positive number")
	}

	tz := sharedcfg.EnvOrDefault("TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tz, err)
	}

	cfg := &Config{
		KafkaBrokers:           sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaWeatherTopic:      sharedcfg.EnvOrDefault("KAFKA_WEATHER_TOPIC", "weather-snapshots"),
		KafkaFarmEventsTopic:   sharedcfg.EnvOrDefault("KAFKA_FARM_EVENTS_TOPIC", "farm-events"),
		KafkaNotificationTopic: sharedcfg.EnvOrDefault("KAFKA_NOTIFICATION_TOPIC", "farm-notifications"),
		KafkaEmailTopic:        sharedcfg.EnvOrDefault("KAFKA_EMAIL_TOPIC", "email-requests"),
		KafkaGroupID:           sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "crop-advisor"),
		HTTPAddr:               sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:               sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:              sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:        shutdownTimeout,
		BatchSize:              batchSize,
		BatchFlushInterval:     flushInterval,

		DatabasePath:     sharedcfg.EnvOrDefault("DATABASE_PATH", "crop-advisor.db"),
		CropProfilesPath: os.Getenv("CROP_PROFILES_PATH"),

		DedupTTL:         dedupTTL,
		DedupCapacity:    dedupCapacity,
		AckTimeout:       ackTimeout,
		AckSweepInterval: ackSweep,

		GrowthInterval:  growthInterval,
		Timezone:        loc,
		SafetyWindLimit: windLimit,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaWeatherTopic == cfg.KafkaFarmEventsTopic {
		return nil, errors.New("KAFKA_WEATHER_TOPIC and KAFKA_FARM_EVENTS_TOPIC must differ")
	}

	return cfg, nil
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}
