// Package config loads process configuration from the environment and
// dataset descriptors from the datasets file.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	StoreSurrealDB = "surrealdb"
	StoreMemory    = "memory"
)

// Queue transports.
const (
	QueueMemory = "memory"
	QueueNATS   = "nats"
)

// Config holds all configuration values.
type Config struct {
	// HTTP API
	ServerPort  int
	APIKey      string
	RateLimit   int      // requests per minute per client IP, 0 disables
	CORSOrigins []string // empty disables CORS

	// Storage backend: "surrealdb" or "memory"
	Store string

	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Datasets
	DatasetsFile string

	// Job queue: "memory" or "nats"
	Queue            string
	NATSURL          string
	NATSEmbedded     bool   // run an in-process NATS server instead of dialing NATSURL
	NATSStoreDir     string // JetStream storage for the embedded server
	NATSPort         int
	QueueMaxDeliver  int
	ScheduleInterval time.Duration // 0 disables the scheduler
	Concurrency      int

	// Fetching
	BatchSize         int
	MaxBatchBytes     int
	ConnectTimeout    time.Duration
	InactivityTimeout time.Duration

	// Logging
	LogFile  string
	LogLevel slog.Level

	// CLI
	ServerURL string
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		ServerPort:  getEnvInt("INGEST_SERVER_PORT", 8080),
		APIKey:      getEnv("INGEST_API_KEY", ""),
		RateLimit:   getEnvInt("INGEST_RATE_LIMIT", 600),
		CORSOrigins: getEnvList("INGEST_CORS_ORIGINS"),

		Store: strings.ToLower(getEnv("INGEST_STORE", StoreSurrealDB)),

		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "ingestion"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "records"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		DatasetsFile: getEnv("INGEST_DATASETS_FILE", "datasets.yaml"),

		Queue:            strings.ToLower(getEnv("INGEST_QUEUE", QueueMemory)),
		NATSURL:          getEnv("NATS_URL", "nats://localhost:4222"),
		NATSEmbedded:     getEnvBool("INGEST_NATS_EMBEDDED", false),
		NATSStoreDir:     getEnv("INGEST_NATS_STORE_DIR", "data/nats"),
		NATSPort:         getEnvInt("INGEST_NATS_PORT", 4222),
		QueueMaxDeliver:  getEnvInt("INGEST_QUEUE_MAX_DELIVER", 5),
		ScheduleInterval: getEnvDuration("INGEST_SCHEDULE_INTERVAL", 10*time.Minute),
		Concurrency:      getEnvInt("INGEST_WORKER_CONCURRENCY", 4),

		BatchSize:         getEnvInt("INGEST_BATCH_SIZE", 1000),
		MaxBatchBytes:     getEnvInt("INGEST_MAX_BATCH_BYTES", 50*1024*1024),
		ConnectTimeout:    getEnvDuration("INGEST_CONNECT_TIMEOUT", 30*time.Second),
		InactivityTimeout: getEnvDuration("INGEST_INACTIVITY_TIMEOUT", 30*time.Second),

		LogFile:  getEnv("INGEST_LOG_FILE", ""),
		LogLevel: parseLogLevel(getEnv("INGEST_LOG_LEVEL", "INFO")),

		ServerURL: getEnv("INGEST_URL", "http://localhost:8080"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", val, "default", defaultVal)
		return defaultVal
	}
	return n
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		slog.Warn("invalid boolean in environment, using default", "key", key, "value", val, "default", defaultVal)
		return defaultVal
	}
	return b
}

// getEnvList splits a comma-separated variable, dropping blank entries.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", val, "default", defaultVal)
		return defaultVal
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
