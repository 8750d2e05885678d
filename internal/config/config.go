package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Config is the messaging client's configuration.
type Config struct {
	WebSocketURL string
	BaseURL      string
	Token        string
	Identity     string
	DeviceID     string

	PingInterval      time.Duration
	ReconnectInterval time.Duration
	DialTimeout       time.Duration

	CacheBackend string
	CachePath    string
	CacheSecret  string

	ProfileCacheTTL  time.Duration
	ProfileCacheSize int

	LogLevel string
	Debug    bool
}

// Load reads .env (if present) and then the environment.
func Load() (*Config, error) {
	loadDotEnv()

	cfg := &Config{
		WebSocketURL: getEnv("APP_WEBSOCKET_URL", "ws://localhost:8080/ws"),
		BaseURL:      getEnv("APP_BASE_URL", "http://localhost:8080"),
		Token:        os.Getenv("APP_TOKEN"),
		Identity:     os.Getenv("APP_IDENTITY"),
		DeviceID:     os.Getenv("APP_DEVICE_ID"),

		PingInterval:      getEnvAsDuration("PING_INTERVAL", 30*time.Second),
		ReconnectInterval: getEnvAsDuration("RECONNECT_INTERVAL", 10*time.Second),
		DialTimeout:       getEnvAsDuration("DIAL_TIMEOUT", 10*time.Second),

		CacheBackend: strings.ToLower(getEnv("CACHE_BACKEND", "sqlite")),
		CachePath:    os.Getenv("CACHE_PATH"),
		CacheSecret:  os.Getenv("CACHE_SECRET"),

		ProfileCacheTTL:  getEnvAsDuration("PROFILE_CACHE_TTL", 30*time.Minute),
		ProfileCacheSize: getEnvAsInt("PROFILE_CACHE_SIZE", 500),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		Debug:    getEnvAsBool("APP_DEBUG", false),
	}

	if cfg.DeviceID == "" {
		cfg.DeviceID = uuid.NewString()
	}
	if cfg.CachePath == "" && cfg.CacheBackend != "postgres" {
		cfg.CachePath = defaultCachePath(cfg.CacheBackend)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.CacheBackend {
	case "sqlite", "pebble", "memory":
	case "postgres":
		if c.CachePath == "" {
			return fmt.Errorf("CACHE_PATH must hold a DSN for the postgres backend")
		}
	default:
		return fmt.Errorf("CACHE_BACKEND must be sqlite, pebble, postgres or memory, got %q", c.CacheBackend)
	}
	if c.WebSocketURL == "" {
		return fmt.Errorf("APP_WEBSOCKET_URL is required")
	}
	return nil
}

func defaultCachePath(backend string) string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = "."
	}
	switch backend {
	case "pebble":
		return filepath.Join(dir, "campus-mp", "cache.pebble")
	default:
		return filepath.Join(dir, "campus-mp", "cache.db")
	}
}

// RelayConfig configures the development relay.
type RelayConfig struct {
	Env  string
	Host string
	Port int

	JWTSecret       string
	TokenTTLMinutes int
	CORSOrigins     []string
	SensitiveWords  []string

	LogLevel string
}

func LoadRelay() (*RelayConfig, error) {
	loadDotEnv()

	cfg := &RelayConfig{
		Env:             getEnv("APP_ENV", "development"),
		Host:            getEnv("HTTP_HOST", "0.0.0.0"),
		Port:            getEnvAsInt("HTTP_PORT", 8080),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		TokenTTLMinutes: getEnvAsInt("TOKEN_TTL_MINUTES", 60*24),
		CORSOrigins:     getEnvAsList("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		SensitiveWords:  getEnvAsList("SENSITIVE_WORDS", nil),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

func (c *RelayConfig) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *RelayConfig) Development() bool { return c.Env == "development" }

func loadDotEnv() {
	path := getEnv("ENV_FILE", ".env")
	// a missing file is normal outside development
	_ = godotenv.Load(path)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvAsBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func getEnvAsList(key string, def []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
