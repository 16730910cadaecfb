package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Agent wire listener.
	WrapperHost      string
	WrapperPort      int
	EnableEncryption bool

	// Admin REST API.
	APIAddr string

	// Correlation engine.
	MatchThreshold float64
	OngoingTimeout time.Duration
	FlowTimeout    time.Duration

	// Ingestion.
	QueueHighWaterMark int

	DBPath            string
	ProtocolTablePath string

	// Campaign narrative generation (disabled when LabelerURL is empty).
	LabelerURL         string
	LabelerAPIKey      string
	LabelerModel       string
	LabelerTemperature float64
	LabelerTimeout     time.Duration

	MockAgents int
	Debug      bool
}

// Load parses command line flags and environment variables to populate Config.
// Flags take precedence over environment variables.
func Load() *Config {
	// Optional .env file for local development.
	if err := godotenv.Load(); err == nil {
		log.Printf("Loaded configuration overrides from .env")
	}

	cfg := &Config{}

	// Defaults and Environment Variables
	cfg.WrapperHost = getEnv("SPEARHEAD_WRAPPER_HOST", "0.0.0.0")
	cfg.WrapperPort = getEnvInt("SPEARHEAD_WRAPPER_PORT", 12345)
	cfg.EnableEncryption = getEnvBool("SPEARHEAD_ENCRYPTION", true)
	cfg.APIAddr = getEnv("SPEARHEAD_API_ADDR", ":12346")
	cfg.MatchThreshold = getEnvFloat("SPEARHEAD_MATCH_THRESHOLD", 70)
	cfg.OngoingTimeout = getEnvDuration("SPEARHEAD_ONGOING_TIMEOUT", 10*time.Second)
	cfg.FlowTimeout = getEnvDuration("SPEARHEAD_FLOW_TIMEOUT", 120*time.Second)
	cfg.QueueHighWaterMark = getEnvInt("SPEARHEAD_QUEUE_LIMIT", 10000)
	cfg.DBPath = getEnv("SPEARHEAD_DB", getDefaultDBPath())
	cfg.ProtocolTablePath = getEnv("SPEARHEAD_PROTOCOL_TABLE", "data/protocol_numbers.json")
	cfg.LabelerURL = getEnv("SPEARHEAD_LABELER_URL", "")
	cfg.LabelerAPIKey = getEnv("SPEARHEAD_LABELER_API_KEY", "")
	cfg.LabelerModel = getEnv("SPEARHEAD_LABELER_MODEL", "qwen2.5:14b")
	cfg.LabelerTemperature = getEnvFloat("SPEARHEAD_LABELER_TEMPERATURE", 0.2)
	cfg.LabelerTimeout = getEnvDuration("SPEARHEAD_LABELER_TIMEOUT", 60*time.Second)

	// Command Line Flags (Override Env)
	flag.StringVar(&cfg.WrapperHost, "host", cfg.WrapperHost, "Agent listener bind address")
	flag.IntVar(&cfg.WrapperPort, "port", cfg.WrapperPort, "Agent listener port")
	flag.BoolVar(&cfg.EnableEncryption, "encrypt", cfg.EnableEncryption, "Encrypt agent sessions after key exchange")
	flag.StringVar(&cfg.APIAddr, "api", cfg.APIAddr, "Admin API server address")
	flag.Float64Var(&cfg.MatchThreshold, "match-threshold", cfg.MatchThreshold, "Campaign match score threshold in percent")
	flag.DurationVar(&cfg.OngoingTimeout, "ongoing-timeout", cfg.OngoingTimeout, "Idle time before a campaign is closed")
	flag.DurationVar(&cfg.FlowTimeout, "flow-timeout", cfg.FlowTimeout, "TCP flow timeout for conversation scoring")
	flag.IntVar(&cfg.QueueHighWaterMark, "queue-limit", cfg.QueueHighWaterMark, "Event queue high water mark")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to SQLite database")
	flag.StringVar(&cfg.ProtocolTablePath, "protocol-table", cfg.ProtocolTablePath, "Path to IP protocol number table")
	flag.StringVar(&cfg.LabelerURL, "labeler-url", cfg.LabelerURL, "OpenAI-compatible endpoint for campaign labeling (empty to disable)")
	flag.StringVar(&cfg.LabelerModel, "labeler-model", cfg.LabelerModel, "Model used for campaign labeling")
	flag.IntVar(&cfg.MockAgents, "mock", 0, "Run N simulated agents against the listener (0 to disable)")
	flag.BoolVar(&cfg.Debug, "debug", false, "Enable verbose debug logging")

	flag.Parse()

	return cfg
}

// WrapperAddr is the host:port the agent listener binds to.
func (c *Config) WrapperAddr() string {
	return fmt.Sprintf("%s:%d", c.WrapperHost, c.WrapperPort)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// getDefaultDBPath returns the default database path in user's home directory.
// Creates the directory if it doesn't exist.
func getDefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Printf("Warning: Could not get user home directory, using current dir: %v", err)
		return "spearhead.db"
	}

	dir := filepath.Join(home, ".spearhead")
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("Warning: Could not create .spearhead directory, using current dir: %v", err)
		return "spearhead.db"
	}

	return filepath.Join(dir, "spearhead.db")
}
