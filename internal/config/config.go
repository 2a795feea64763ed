package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Application
	Version     string
	Environment string
	WorkerID    string
	Port        int
	LogLevel    string

	// Logdy (lightweight web log viewer)
	LogdyEnabled bool
	LogdyHost    string
	LogdyPort    int

	// Video source
	VideoSource string  // file path, RTSP URL or webcam index
	FrameScale  float64 // resize factor applied before detection
	ShowWindow  bool
	RecordPath  string // annotated output, empty disables recording

	// Detector (gRPC model server)
	DetectorGRPCURL string
	DetectorTimeout time.Duration

	// Tracking
	TrackMinIoU  float64
	TrackMaxAge  int
	TrackMinHits int

	// Alerting
	AlertsCooldown time.Duration
	AlertTimeout   time.Duration
	ImageQuality   int // JPEG quality (1-100)
	AlertDBPath    string

	// Telegram
	TelegramEnabled bool
	TelegramToken   string
	TelegramChatID  string
	TelegramAPIURL  string

	// NATS (for messaging and alerts)
	// Default: nats://localhost:4222 (works with Docker Compose setup)
	// Docker: Use nats://nats:4222 if running worker in Docker
	NatsEnabled        bool
	NatsURL            string
	NatsConnectTimeout time.Duration
	NatsReconnectWait  time.Duration
	NatsMaxReconnects  int
	AlertsSubject      string

	// Graceful Shutdown
	ShutdownTimeout time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found or error loading .env file, using environment variables and defaults")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	return FromEnv()
}

// FromEnv builds the configuration from the process environment only
func FromEnv() *Config {
	return &Config{
		// Application
		Version:     getEnv("VERSION", "1.0.0"),
		Environment: getEnv("ENVIRONMENT", "development"),
		WorkerID:    getEnv("WORKER_ID", "guardiq-1"),
		Port:        getEnvInt("PORT", 8000),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Logdy
		LogdyEnabled: getEnvBool("LOGDY_ENABLED", false),
		LogdyHost:    getEnv("LOGDY_HOST", "localhost"),
		LogdyPort:    getEnvInt("LOGDY_PORT", 8080),

		// Video source
		VideoSource: getEnv("VIDEO_SOURCE", "video/robbery.mp4"),
		FrameScale:  getEnvFloat("FRAME_SCALE", 0.5),
		ShowWindow:  getEnvBool("SHOW_WINDOW", false),
		RecordPath:  getEnv("RECORD_OUTPUT", ""),

		// Detector
		DetectorGRPCURL: getEnv("DETECTOR_GRPC_URL", "localhost:50052"),
		DetectorTimeout: getEnvDuration("DETECTOR_TIMEOUT", 5*time.Second),

		// Tracking
		TrackMinIoU:  getEnvFloat("TRACK_MIN_IOU", 0.3),
		TrackMaxAge:  getEnvInt("TRACK_MAX_AGE", 30),
		TrackMinHits: getEnvInt("TRACK_MIN_HITS", 3),

		// Alerting
		AlertsCooldown: getEnvDuration("ALERTS_COOLDOWN", 5*time.Second),
		AlertTimeout:   getEnvDuration("ALERT_TIMEOUT", 10*time.Second),
		ImageQuality:   getEnvInt("IMAGE_QUALITY", 90),
		AlertDBPath:    getEnv("ALERT_DB_PATH", "guardiq-alerts.db"),

		// Telegram, credentials have no defaults
		TelegramEnabled: getEnvBool("TELEGRAM_ENABLED", false),
		TelegramToken:   getEnv("TELEGRAM_TOKEN", ""),
		TelegramChatID:  getEnv("TELEGRAM_CHAT_ID", ""),
		TelegramAPIURL:  getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),

		// NATS (configured for Docker Compose setup)
		NatsEnabled:        getEnvBool("NATS_ENABLED", false),
		NatsURL:            getNatsURL(),
		NatsConnectTimeout: getEnvDuration("NATS_CONNECT_TIMEOUT", 10*time.Second),
		NatsReconnectWait:  getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		NatsMaxReconnects:  getEnvInt("NATS_MAX_RECONNECTS", -1), // -1 = unlimited
		AlertsSubject:      getEnv("ALERTS_SUBJECT", "alerts.guardiq"),

		// Graceful Shutdown
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Helper functions for Docker environment detection
func isRunningInDocker() bool {
	if os.Getenv("DOCKER_CONTAINER") == "true" {
		return true
	}

	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}

	return false
}

// getNatsURL returns the appropriate NATS URL based on environment
func getNatsURL() string {
	if envURL := os.Getenv("NATS_URL"); envURL != "" {
		return envURL
	}

	if isRunningInDocker() {
		return "nats://nats:4222"
	}

	return "nats://localhost:4222"
}
