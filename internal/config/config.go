package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv     string
	LogLevel   string
	ServerAddr string

	MinWidth        int
	MinHeight       int
	SizeBudgetBytes int64
	AspectTolerance float64
	OutputFormat    string
	AVIFSpeed       int
	ResampleFilter  string

	MaxUploadBytes  int64
	TempUploadDir   string
	ResultTTL       time.Duration
	JanitorInterval time.Duration
	Workers         int

	RateLimitPerMinute int
	TrustedProxyCIDRs  string

	errs []error
}

// Load reads configuration from the environment, after merging a .env file
// from the working directory if one exists. Parse failures keep the default
// and are reported by Validate.
func Load() *Config {
	_ = godotenv.Load()

	c := &Config{}
	c.AppEnv = getEnv("APP_ENV", "production")
	c.LogLevel = getEnv("LOG_LEVEL", "")
	c.ServerAddr = getEnv("SERVER_ADDR", ":8080")

	c.MinWidth = c.getInt("MIN_WIDTH", 2880)
	c.MinHeight = c.getInt("MIN_HEIGHT", 2304)
	c.SizeBudgetBytes = c.getInt64("SIZE_BUDGET_BYTES", 5*1024*1024)
	c.AspectTolerance = c.getFloat("ASPECT_TOLERANCE", 0.01)
	c.OutputFormat = strings.ToLower(getEnv("OUTPUT_FORMAT", "jpeg"))
	c.AVIFSpeed = c.getInt("AVIF_SPEED", 6)
	c.ResampleFilter = getEnv("RESAMPLE_FILTER", "lanczos")

	c.MaxUploadBytes = c.getInt64("MAX_UPLOAD_BYTES", 25<<20)
	c.TempUploadDir = getEnv("TEMP_UPLOAD_DIR", os.TempDir())
	c.ResultTTL = c.getDuration("RESULT_TTL", 30*time.Minute)
	c.JanitorInterval = c.getDuration("JANITOR_INTERVAL", 5*time.Minute)
	c.Workers = c.getInt("WORKERS", 2)

	c.RateLimitPerMinute = c.getInt("RATE_LIMIT_PER_MINUTE", 30)
	c.TrustedProxyCIDRs = getEnv("TRUSTED_PROXY_CIDRS", "")
	return c
}

// Validate reports malformed or out-of-range values.
func (c *Config) Validate() error {
	errs := append([]error(nil), c.errs...)
	if c.MinWidth <= 0 || c.MinHeight <= 0 {
		errs = append(errs, fmt.Errorf("MIN_WIDTH and MIN_HEIGHT must be positive"))
	}
	if c.SizeBudgetBytes <= 0 {
		errs = append(errs, fmt.Errorf("SIZE_BUDGET_BYTES must be positive"))
	}
	if c.AspectTolerance <= 0 {
		errs = append(errs, fmt.Errorf("ASPECT_TOLERANCE must be positive"))
	}
	switch c.OutputFormat {
	case "jpeg", "webp", "avif":
	default:
		errs = append(errs, fmt.Errorf("OUTPUT_FORMAT %q must be jpeg, webp or avif", c.OutputFormat))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_BYTES must be positive"))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("WORKERS must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (c *Config) getInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		c.errs = append(c.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return n
}

func (c *Config) getInt64(key string, defaultValue int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		c.errs = append(c.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return n
}

func (c *Config) getFloat(key string, defaultValue float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		c.errs = append(c.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return f
}

func (c *Config) getDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		c.errs = append(c.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return d
}
