package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port   string
	DBPath string

	// External generative provider.
	GeminiAPIKey    string
	GeminiModel     string
	ProviderTimeout time.Duration

	// KeepaliveInterval controls how often live viewer sessions are pinged.
	KeepaliveInterval time.Duration

	// IAQCalibrationOffset is a named display calibration added to
	// outbound predicted IAQ values. Stored values are never offset.
	IAQCalibrationOffset float64
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.DBPath = getenvDefault("DB_PATH", "data/airsense.db")

	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.GeminiModel = getenvDefault("GEMINI_MODEL", "gemini-1.5-flash")

	timeoutStr := getenvDefault("PROVIDER_TIMEOUT", "20s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PROVIDER_TIMEOUT: %w", err)
	}
	cfg.ProviderTimeout = timeout

	keepaliveStr := getenvDefault("KEEPALIVE_INTERVAL", "30s")
	keepalive, err := time.ParseDuration(keepaliveStr)
	if err != nil {
		return nil, fmt.Errorf("invalid KEEPALIVE_INTERVAL: %w", err)
	}
	cfg.KeepaliveInterval = keepalive

	cfg.IAQCalibrationOffset = getenvFloat("IAQ_CALIBRATION_OFFSET", 0)

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}
