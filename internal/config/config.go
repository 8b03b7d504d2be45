package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Join failure policies. The threshold breach is a soft quality signal;
// policy decides whether a breached run stops or continues with degraded
// data.
const (
	PolicyWarn = "warn"
	PolicyFail = "fail"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// Input/output tables.
	RequestsPath     string
	CellsPath        string
	ObservationsPath string
	OutputDir        string

	// Pipeline parameters.
	ReferencePlace  string
	Scenario        string
	ObservationYear int
	JoinPolicy      string

	// Nominatim geocoding.
	NominatimBaseURL   string
	NominatimUserAgent string
	NominatimTimeout   time.Duration
	NominatimCacheSize int

	// Optional Kafka sink for the anonymized dataset.
	SinkEnabled    bool
	KafkaBrokers   []string
	KafkaSinkTopic string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	nominatimTimeout, err := parseDuration("NOMINATIM_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	year, err := parseInt("OBSERVATION_YEAR", 2020)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parseInt("NOMINATIM_CACHE_SIZE", 100)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		RequestsPath:     envOrDefault("SR_INPUT_PATH", "data/sr.csv.gz"),
		CellsPath:        envOrDefault("CELLS_PATH", "data/city-hex-polygons-8.geojson"),
		ObservationsPath: envOrDefault("OBSERVATIONS_PATH", "data/wind_2020.csv"),
		OutputDir:        envOrDefault("OUTPUT_DIR", "data"),

		ReferencePlace:  envOrDefault("REFERENCE_PLACE", "Bellville South, Cape Town, South Africa"),
		Scenario:        os.Getenv("SCENARIO"),
		ObservationYear: year,
		JoinPolicy:      envOrDefault("JOIN_FAILURE_POLICY", PolicyWarn),

		NominatimBaseURL:   os.Getenv("NOMINATIM_BASE_URL"),
		NominatimUserAgent: envOrDefault("NOMINATIM_USER_AGENT", "service-request-etl/1.0"),
		NominatimTimeout:   nominatimTimeout,
		NominatimCacheSize: cacheSize,

		SinkEnabled:    os.Getenv("SINK_ENABLED") == "true",
		KafkaBrokers:   parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic: envOrDefault("KAFKA_SINK_TOPIC", "anonymized-service-requests"),

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if cfg.RequestsPath == "" {
		return nil, errors.New("SR_INPUT_PATH is required")
	}
	if cfg.CellsPath == "" {
		return nil, errors.New("CELLS_PATH is required")
	}
	if cfg.ReferencePlace == "" {
		return nil, errors.New("REFERENCE_PLACE is required")
	}
	if cfg.JoinPolicy != PolicyWarn && cfg.JoinPolicy != PolicyFail {
		return nil, fmt.Errorf("invalid JOIN_FAILURE_POLICY %q: want %q or %q", cfg.JoinPolicy, PolicyWarn, PolicyFail)
	}
	if cfg.SinkEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("SINK_ENABLED is true but KAFKA_BROKERS is not set")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseBrokers(s string) []string {
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
