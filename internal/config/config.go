package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string

	// Auth. An empty key disables authentication.
	APIKey string

	// Storage
	DatabasePath string

	// Pagination
	PageWidth        float64
	ReferenceHeight  float64
	PaginationSettle time.Duration

	// Surface typography
	FontSize   float64
	LineHeight float64
	FontPath   string

	// Saving
	SaveDebounce time.Duration

	// Upload limits
	MaxUploadBytes int64

	// Live sessions
	SessionIdleTimeout time.Duration

	// PDF
	PDFFallbackPdftotext bool
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		APIKey: os.Getenv("TATEGAKI_API_KEY"),

		DatabasePath: envOr("DATABASE_PATH", "tategaki.db"),

		PageWidth:        envFloat("PAGE_WIDTH", 800),
		ReferenceHeight:  envFloat("REFERENCE_HEIGHT", 400),
		PaginationSettle: envDuration("PAGINATION_SETTLE", 0),

		FontSize:   envFloat("FONT_SIZE", 16),
		LineHeight: envFloat("LINE_HEIGHT", 1.75),
		FontPath:   os.Getenv("FONT_PATH"),

		SaveDebounce: envDuration("SAVE_DEBOUNCE", 500*time.Millisecond),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 10485760), // 10MB

		SessionIdleTimeout: envDuration("SESSION_IDLE_TIMEOUT", 10*time.Minute),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),
	}

	if cfg.PageWidth <= 0 {
		cfg.PageWidth = 800
	}
	if cfg.ReferenceHeight <= 0 {
		cfg.ReferenceHeight = 400
	}
	if cfg.FontSize <= 0 {
		cfg.FontSize = 16
	}
	if cfg.LineHeight <= 0 {
		cfg.LineHeight = 1.75
	}
	if cfg.SaveDebounce < 0 {
		cfg.SaveDebounce = 0
	}
	if cfg.PaginationSettle < 0 {
		cfg.PaginationSettle = 0
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10485760
	}
	if cfg.SessionIdleTimeout <= 0 {
		cfg.SessionIdleTimeout = 10 * time.Minute
	}

	return cfg
}

func (c Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.FontPath != "" {
		if _, err := os.Stat(c.FontPath); err != nil {
			return fmt.Errorf("FONT_PATH: %w", err)
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
