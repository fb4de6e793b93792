package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Process modes
const (
	ModeWeb    = "web"
	ModeWorker = "worker"
	ModeAll    = "all"
)

// Config holds every setting of the web layer and the scheduler worker
type Config struct {
	HTTPServer HTTPServer
	Database   Database
	Scheduler  Scheduler
	Scraper    Scraper
	SMTP       SMTP
	LLM        LLM
	Redis      Redis
}

// HTTPServer holds API listener settings
type HTTPServer struct {
	Host               string        `env:"HOST" env-default:"0.0.0.0"`
	Port               string        `env:"PORT" env-default:"8080"`
	AllowedOrigins     string        `env:"ALLOWED_ORIGINS" env-default:"http://localhost:3000"`
	RateLimitPerSecond float64       `env:"RATE_LIMIT_PER_SECOND" env-default:"5"`
	RequestTimeout     time.Duration `env:"API_REQUEST_TIMEOUT" env-default:"60s"`
}

// Database holds store settings
type Database struct {
	Driver string `env:"DB_DRIVER" env-default:"postgres"`
	URL    string `env:"DATABASE_URL"`
}

// Scheduler holds refresh timing settings
type Scheduler struct {
	CheckInterval     time.Duration `env:"CHECK_INTERVAL" env-default:"30m"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" env-default:"5m"`
}

// Scraper holds page fetching settings
type Scraper struct {
	Timeout     time.Duration `env:"SCRAPER_TIMEOUT" env-default:"15s"`
	Loader      string        `env:"SCRAPER_LOADER" env-default:"http"`
	ChromiumBin string        `env:"CHROMIUM_BIN"`
	PriceParser string        `env:"PRICE_PARSER" env-default:"legacy"`
}

// SMTP holds outbound mail settings
type SMTP struct {
	Host     string `env:"SMTP_HOST" env-default:"smtp.gmail.com"`
	Port     int    `env:"SMTP_PORT" env-default:"465"`
	User     string `env:"SMTP_USER"`
	Password string `env:"SMTP_PASSWORD"`
	FromName string `env:"SMTP_FROM_NAME" env-default:"PricePulse Alerts"`
}

// LLM holds text-generation service settings
type LLM struct {
	APIKey  string        `env:"GEMINI_API_KEY"`
	Model   string        `env:"GEMINI_MODEL" env-default:"gemini-1.5-flash-latest"`
	BaseURL string        `env:"GEMINI_BASE_URL" env-default:"https://generativelanguage.googleapis.com/v1beta"`
	Timeout time.Duration `env:"GEMINI_TIMEOUT" env-default:"30s"`
}

// Redis holds the optional comparison cache settings
type Redis struct {
	Addr     string        `env:"REDIS_ADDR"`
	DB       int           `env:"REDIS_DB" env-default:"0"`
	CacheTTL time.Duration `env:"COMPARISON_CACHE_TTL" env-default:"1h"`
}

// Load reads the configuration from the environment
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that cannot be defaulted
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}
	switch c.Database.Driver {
	case "postgres", "pgx", "sqlite3":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	switch c.Scraper.Loader {
	case "http", "browser":
	default:
		return fmt.Errorf("unsupported SCRAPER_LOADER %q", c.Scraper.Loader)
	}
	switch c.Scraper.PriceParser {
	case "legacy", "locale":
	default:
		return fmt.Errorf("unsupported PRICE_PARSER %q", c.Scraper.PriceParser)
	}
	if c.Scheduler.CheckInterval <= 0 {
		return fmt.Errorf("CHECK_INTERVAL must be positive")
	}
	if c.Scraper.Timeout <= 0 {
		return fmt.Errorf("SCRAPER_TIMEOUT must be positive")
	}
	return nil
}

// Addr returns the listen address of the API
func (h HTTPServer) Addr() string {
	return h.Host + ":" + h.Port
}

// Origins splits ALLOWED_ORIGINS on commas
func (h HTTPServer) Origins() []string {
	var origins []string
	for _, o := range strings.Split(h.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// MailEnabled reports whether SMTP credentials are present
func (s SMTP) MailEnabled() bool {
	return s.User != "" && s.Password != ""
}

// ValidMode reports whether mode names a known process mode
func ValidMode(mode string) bool {
	return mode == ModeWeb || mode == ModeWorker || mode == ModeAll
}
