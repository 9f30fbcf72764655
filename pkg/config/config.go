package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the futures bridge.
type Config struct {
	Port     string
	GRPCPort string

	// Gateway
	GatewayType         string
	GatewaySettingsPath string
	BridgeURL           string
	BridgeRateLimit     float64 // requests per second
	DryRun              bool
	PaperInstruments    []string

	// Session
	Universe       []string
	WaitConnected  bool
	ConnectTimeout time.Duration
	SeedFromSnap   bool
	SnapshotSettle time.Duration
	TickQueueSize  int
	PositionCheck  time.Duration

	// Journal
	EnableJournal bool
	DBPath        string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:                getEnv("PORT", "8080"),
		GRPCPort:            getEnv("GRPC_PORT", "9090"),
		GatewayType:         strings.ToUpper(getEnv("GATEWAY_TYPE", "CTP")),
		GatewaySettingsPath: getEnv("GATEWAY_SETTINGS_PATH", "./gateway.yaml"),
		BridgeURL:           getEnv("BRIDGE_URL", "ws://127.0.0.1:7001/gateway"),
		BridgeRateLimit:     getEnvFloat("BRIDGE_RATE_LIMIT", 20),
		DryRun:              getEnv("DRY_RUN", "false") == "true",
		PaperInstruments:    splitAndTrim(getEnv("PAPER_INSTRUMENTS", "rb1810,IF1809")),
		Universe:            splitAndTrim(getEnv("UNIVERSE", "")),
		WaitConnected:       getEnv("WAIT_CONNECTED", "false") == "true",
		ConnectTimeout:      getEnvDuration("CONNECT_TIMEOUT", 300*time.Second),
		SeedFromSnap:        getEnv("SEED_FROM_SNAPSHOT", "false") == "true",
		SnapshotSettle:      getEnvDuration("SNAPSHOT_SETTLE", time.Second),
		TickQueueSize:       getEnvInt("TICK_QUEUE_SIZE", 4096),
		PositionCheck:       getEnvDuration("POSITION_CHECK_INTERVAL", time.Minute),
		EnableJournal:       getEnv("ENABLE_JOURNAL", "false") == "true",
		DBPath:              getEnv("DB_PATH", "./data/journal.db"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "text"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return def
}
