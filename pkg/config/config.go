// Package config loads service settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

type Config struct {
	Env  string
	Port int

	Canvas CanvasConfig
	Report ReportConfig
	Cache  CacheConfig
	Redis  RedisConfig
	Log    LogConfig
}

// CanvasConfig points the client at a Canvas instance.
type CanvasConfig struct {
	PlatformURL string
	Token       string
	PerPage     int
	Timeout     time.Duration
	MaxAttempts int
	UserAgent   string
}

// ReportConfig tunes course aggregation.
type ReportConfig struct {
	Concurrency    int
	ExcludedModule string
}

type CacheConfig struct {
	Backend string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LogConfig struct {
	Level  string
	Pretty bool
}

// Load reads .env from the working directory, if present, and the environment.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path. Environment variables win
// over the file; a missing file is not an error.
func LoadFile(path string) (*Config, error) {
	_ = godotenv.Load(path)

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")

	cfg.Canvas = CanvasConfig{
		PlatformURL: strings.TrimRight(strings.TrimSpace(v.GetString("PLATFORM_URL")), "/"),
		Token:       strings.TrimSpace(v.GetString("CANVAS_TOKEN")),
		PerPage:     v.GetInt("CANVAS_PER_PAGE"),
		Timeout:     parseDuration(v.GetString("CANVAS_TIMEOUT"), 30*time.Second),
		MaxAttempts: v.GetInt("CANVAS_MAX_ATTEMPTS"),
		UserAgent:   v.GetString("CANVAS_USER_AGENT"),
	}

	cfg.Report = ReportConfig{
		Concurrency:    v.GetInt("REPORT_CONCURRENCY"),
		ExcludedModule: v.GetString("REPORT_EXCLUDED_MODULE"),
	}

	cfg.Cache = CacheConfig{Backend: strings.ToLower(strings.TrimSpace(v.GetString("CACHE_BACKEND")))}

	cfg.Redis = RedisConfig{
		Addr:     v.GetString("REDIS_ADDR"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Pretty: v.GetBool("LOG_PRETTY"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with. Missing Canvas
// credentials are allowed: requests then fail until they are configured.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.Report.Concurrency < 1 {
		return fmt.Errorf("REPORT_CONCURRENCY must be at least 1 (got %d)", c.Report.Concurrency)
	}
	if c.Canvas.PerPage < 1 {
		return fmt.Errorf("CANVAS_PER_PAGE must be at least 1 (got %d)", c.Canvas.PerPage)
	}
	if c.Canvas.MaxAttempts < 1 {
		return fmt.Errorf("CANVAS_MAX_ATTEMPTS must be at least 1 (got %d)", c.Canvas.MaxAttempts)
	}
	switch c.Cache.Backend {
	case CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("unsupported CACHE_BACKEND %q", c.Cache.Backend)
	}
	return nil
}

// CanvasConfigured reports whether both the platform URL and token are set.
func (c *Config) CanvasConfigured() bool {
	return c.Canvas.PlatformURL != "" && c.Canvas.Token != ""
}

// IsProduction reports whether ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 3000)

	v.SetDefault("PLATFORM_URL", "")
	v.SetDefault("CANVAS_TOKEN", "")
	v.SetDefault("CANVAS_PER_PAGE", 100)
	v.SetDefault("CANVAS_TIMEOUT", "30s")
	v.SetDefault("CANVAS_MAX_ATTEMPTS", 1)
	v.SetDefault("CANVAS_USER_AGENT", "canvas-progress/0.1.0")

	v.SetDefault("REPORT_CONCURRENCY", 8)
	v.SetDefault("REPORT_EXCLUDED_MODULE", "Programa del Curso")

	v.SetDefault("CACHE_BACKEND", CacheMemory)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}
