package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/maltedev/dealer-portal-scraper/internal/adapter"
	"github.com/maltedev/dealer-portal-scraper/internal/engine"
)

type Config struct {
	Server   ServerConfig
	Browser  BrowserConfig
	Fetch    FetchConfig
	Engine   EngineConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Worker   WorkerConfig
	Logging  LoggingConfig

	PortalsFile string
	Portals     map[string]Portal
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	NavTimeout     time.Duration
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
}

type FetchConfig struct {
	Timeout      time.Duration
	MaxRedirects int
}

// EngineConfig holds process-wide engine tuning. Zero values fall back to
// the engine defaults; portals can override each field.
type EngineConfig struct {
	FailureThreshold int
	MaxLoggedErrors  int
	CheckpointEvery  int
	ItemDelay        time.Duration
	ItemJitter       time.Duration
	ProbeSample      int
}

type DatabaseConfig struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

// Enabled reports whether a database is configured at all.
func (d DatabaseConfig) Enabled() bool {
	return d.URL != "" || d.Host != ""
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

type StorageConfig struct {
	// UploadsDir receives diagnostic screenshots.
	UploadsDir string
	// CatalogFile is the JSON catalog used when no database is configured.
	CatalogFile string
}

type WorkerConfig struct {
	PollInterval      time.Duration
	RelayPollInterval time.Duration
	RelayBatchSize    int
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://localhost:*"}),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			NavTimeout:     getDurationOrDefault("BROWSER_NAV_TIMEOUT", 30*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "America/New_York"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-US"),
			ProxyServer:    getEnvOrDefault("BROWSER_PROXY", ""),
		},
		Fetch: FetchConfig{
			Timeout:      getDurationOrDefault("FETCH_TIMEOUT", 20*time.Second),
			MaxRedirects: getIntOrDefault("FETCH_MAX_REDIRECTS", 5),
		},
		Engine: EngineConfig{
			FailureThreshold: getIntOrDefault("ENGINE_FAILURE_THRESHOLD", 0),
			MaxLoggedErrors:  getIntOrDefault("ENGINE_MAX_LOGGED_ERRORS", 0),
			CheckpointEvery:  getIntOrDefault("ENGINE_CHECKPOINT_EVERY", 0),
			ItemDelay:        getEngineDelayOrDefault("ENGINE_ITEM_DELAY", 0),
			ItemJitter:       getDurationOrDefault("ENGINE_ITEM_JITTER", 0),
			ProbeSample:      getIntOrDefault("ENGINE_PROBE_SAMPLE", 0),
		},
		Database: DatabaseConfig{
			URL:      getEnvOrDefault("DATABASE_URL", ""),
			Host:     getEnvOrDefault("DB_HOST", ""),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "dealer_catalog"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "stream:catalog_updates"),
		},
		Storage: StorageConfig{
			UploadsDir:  getEnvOrDefault("UPLOADS_DIR", "uploads"),
			CatalogFile: getEnvOrDefault("CATALOG_FILE", "catalog.json"),
		},
		Worker: WorkerConfig{
			PollInterval:      getDurationOrDefault("WORKER_POLL_INTERVAL", 10*time.Second),
			RelayPollInterval: getDurationOrDefault("RELAY_POLL_INTERVAL", 5*time.Second),
			RelayBatchSize:    getIntOrDefault("RELAY_BATCH_SIZE", 100),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
		PortalsFile: getEnvOrDefault("PORTALS_FILE", "portals.json5"),
	}

	portals, err := LoadPortals(cfg.PortalsFile)
	if err != nil {
		return nil, err
	}
	cfg.Portals = portals

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Browser.Timeout <= 0 {
		return fmt.Errorf("BROWSER_TIMEOUT must be positive")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive")
	}
	if c.Fetch.MaxRedirects < 0 {
		return fmt.Errorf("FETCH_MAX_REDIRECTS must not be negative")
	}
	if c.Engine.FailureThreshold < 0 || c.Engine.MaxLoggedErrors < engine.Off || c.Engine.CheckpointEvery < 0 {
		return fmt.Errorf("engine tuning values must not be negative")
	}
	if (c.Engine.ItemDelay < 0 && c.Engine.ItemDelay != engine.Off) || c.Engine.ItemJitter < 0 {
		return fmt.Errorf("ENGINE_ITEM_DELAY and ENGINE_ITEM_JITTER must not be negative")
	}
	if c.Worker.RelayBatchSize < 1 {
		return fmt.Errorf("RELAY_BATCH_SIZE must be at least 1")
	}

	for name, p := range c.Portals {
		if _, err := adapter.New(p.Adapter, p.AdapterOptions()); err != nil {
			return fmt.Errorf("portal %s: %w", name, err)
		}
	}
	return nil
}

// DSN builds a Postgres connection string, preferring DATABASE_URL.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEngineDelayOrDefault is getDurationOrDefault with "off" mapped to
// engine.Off.
func getEngineDelayOrDefault(key string, defaultValue time.Duration) time.Duration {
	if os.Getenv(key) == "off" {
		return engine.Off
	}
	return getDurationOrDefault(key, defaultValue)
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
