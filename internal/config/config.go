package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort      string
	APIBaseURL   string
	StreamURL    string
	CachePath    string
	SessionToken string
	JWTSecret    string
	LogLevel     string
	LogJSON      bool

	// Remote CRUD calls fail fast; this bounds each one.
	RequestTimeout time.Duration
}

// Load reads configuration from the environment (.env honored when present).
func Load() *Config {
	_ = godotenv.Load()

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	apiBase := os.Getenv("API_BASE_URL")
	if apiBase == "" {
		apiBase = "https://api.simplr.app"
	}

	streamURL := os.Getenv("WS_URL")
	if streamURL == "" {
		streamURL = "wss://api.simplr.app/ws"
	}

	cachePath := os.Getenv("CACHE_PATH")
	if cachePath == "" {
		cachePath = defaultCachePath()
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	timeout := 10 * time.Second
	if v := os.Getenv("REQUEST_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			timeout = time.Duration(n) * time.Second
		}
	}

	return &Config{
		AppPort:        port,
		APIBaseURL:     apiBase,
		StreamURL:      streamURL,
		CachePath:      cachePath,
		SessionToken:   os.Getenv("SESSION_TOKEN"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		LogLevel:       logLevel,
		LogJSON:        os.Getenv("LOG_JSON") == "true",
		RequestTimeout: timeout,
	}
}

func defaultCachePath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "simplr.db"
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	dir := filepath.Join(dataHome, "simplr")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "simplr.db"
	}
	return filepath.Join(dir, "simplr.db")
}
