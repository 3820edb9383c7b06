package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig
	OCR     OCRConfig
	AI      AIConfig
	History HistoryConfig
	Watch   WatchConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr string
}

// OCRConfig holds OCR-related configuration.
type OCRConfig struct {
	Tesseract   string
	Pdftoppm    string
	Language    string
	DPI         int
	MaxPages    int
	ArtifactDir string
	PageWorkers int
}

// AIConfig holds the language-model extractor configuration.
// An empty APIKey means the AI method is not configured; the
// orchestrator treats it as unavailable, not as an error.
type AIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	Timeout     time.Duration
	MaxTokens   int
	MaxRetries  int
}

// HistoryConfig holds the extraction-history store configuration.
// An empty Path disables history entirely.
type HistoryConfig struct {
	Path string
}

// WatchConfig holds the drop-folder ingestion configuration. An empty
// Dir disables watching; dropped invoices are extracted with Method and
// the outcome written next to the source file.
type WatchConfig struct {
	Dir      string
	Method   string
	Workers  int
	Debounce time.Duration
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: getEnv("HTTP_ADDR", ":8080"),
		},
		OCR: OCRConfig{
			Tesseract:   getEnv("TESSERACT_BIN", "tesseract"),
			Pdftoppm:    getEnv("PDFTOPPM_BIN", "pdftoppm"),
			Language:    getEnv("OCR_LANG", "eng"),
			DPI:         getEnvAsInt("OCR_DPI", 300),
			MaxPages:    getEnvAsInt("OCR_MAX_PAGES", 0),
			ArtifactDir: getEnv("ARTIFACT_DIR", ""),
			PageWorkers: getEnvAsInt("OCR_PAGE_WORKERS", 4),
		},
		AI: AIConfig{
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
			MaxTokens:   getEnvAsInt("OPENAI_MAX_TOKENS", 1500),
			MaxRetries:  getEnvAsInt("OPENAI_MAX_RETRIES", 2),
		},
		History: HistoryConfig{
			Path: getEnv("HISTORY_DB", ""),
		},
		Watch: WatchConfig{
			Dir:      getEnv("WATCH_DIR", ""),
			Method:   getEnv("WATCH_METHOD", ""),
			Workers:  getEnvAsInt("WATCH_WORKERS", 2),
			Debounce: getEnvAsDuration("WATCH_DEBOUNCE", 500*time.Millisecond),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
