package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const DefaultBackendURL = "http://localhost:8000"

// Config aggregates all runtime settings required by the gateway and the CLI.
type Config struct {
	AppName     string
	Environment string
	HTTP        HTTPConfig
	Backend     BackendConfig
	Proxy       ProxyConfig
	Session     SessionConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Storage     StorageConfig
	Context     ContextConfig
	Logger      LoggerConfig
}

type HTTPConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	StaticDir    string
}

// BackendConfig holds the single backend origin every component talks to.
type BackendConfig struct {
	URL             string
	RequestTimeout  time.Duration
	RegisterTimeout time.Duration
	HealthInterval  time.Duration
}

type ProxyConfig struct {
	Prefix    string
	RateLimit float64
	RateBurst int
}

type SessionConfig struct {
	CookieName   string
	CookieSecure bool
	CookieMaxAge time.Duration
	CacheTTL     time.Duration
	LoginPath    string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

// Enabled reports whether a redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != ""
}

type JWTConfig struct {
	Secret string
}

// StorageConfig selects where the token store keeps durable state.
type StorageConfig struct {
	Driver  string
	Path    string
	Profile string
}

type ContextConfig struct {
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type LoggerConfig struct {
	Level    string
	Encoding string
}

// Load reads configuration from environment variables (optionally .env),
// applies defaults and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	backendURL, err := resolveBackendURL(os.Getenv("BACKEND_URL"), os.Getenv("PUBLIC_BACKEND_URL"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AppName:     getString("APP_NAME", "deadlines-gateway"),
		Environment: getString("APP_ENV", "development"),
		HTTP: HTTPConfig{
			Host:         getString("SERVER_HOST", "0.0.0.0"),
			Port:         getString("SERVER_PORT", "3000"),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 35*time.Second),
			IdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			StaticDir:    getString("STATIC_DIR", "./web"),
		},
		Backend: BackendConfig{
			URL:             backendURL,
			RequestTimeout:  getDuration("BACKEND_TIMEOUT", 0),
			RegisterTimeout: getDuration("REGISTER_TIMEOUT", 30*time.Second),
			HealthInterval:  getDuration("BACKEND_HEALTH_INTERVAL", 15*time.Second),
		},
		Proxy: ProxyConfig{
			Prefix:    getString("PROXY_PREFIX", "/api/proxy"),
			RateLimit: getFloat("PROXY_RATE_LIMIT", 0),
			RateBurst: getInt("PROXY_RATE_BURST", 20),
		},
		Session: SessionConfig{
			CookieName:   getString("SESSION_COOKIE", "dl_session"),
			CookieSecure: getBool("SESSION_COOKIE_SECURE", false),
			CookieMaxAge: getDuration("SESSION_COOKIE_MAX_AGE", 7*24*time.Hour),
			CacheTTL:     getDuration("SESSION_CACHE_TTL", time.Minute),
			LoginPath:    getString("LOGIN_PATH", "/login"),
		},
		Redis: RedisConfig{
			URL:      os.Getenv("REDIS_URL"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret: os.Getenv("JWT_SECRET"),
		},
		Storage: StorageConfig{
			Driver:  getString("TOKEN_STORAGE", "bolt"),
			Path:    os.Getenv("TOKEN_STORAGE_PATH"),
			Profile: getString("TOKEN_PROFILE", "default"),
		},
		Context: ContextConfig{
			RequestTimeout:  getDuration("REQUEST_TIMEOUT_SECONDS", 35*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT_SECONDS", 15*time.Second),
		},
		Logger: LoggerConfig{
			Level:    getString("LOG_LEVEL", "info"),
			Encoding: getString("LOG_ENCODING", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the gateway cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "bolt", "redis":
	default:
		return fmt.Errorf("config: unknown TOKEN_STORAGE %q (want bolt or redis)", c.Storage.Driver)
	}
	if c.Storage.Driver == "redis" && !c.Redis.Enabled() {
		return fmt.Errorf("config: TOKEN_STORAGE=redis requires REDIS_URL")
	}
	if !strings.HasPrefix(c.Proxy.Prefix, "/") {
		return fmt.Errorf("config: PROXY_PREFIX must start with /")
	}
	if c.Session.CookieName == "" {
		return fmt.Errorf("config: SESSION_COOKIE must not be empty")
	}
	return nil
}

// resolveBackendURL picks the one backend origin for both server-side and
// browser-facing code. Diverging values are a deployment error.
func resolveBackendURL(server, public string) (string, error) {
	server = normalizeURL(server)
	public = normalizeURL(public)

	if server != "" && public != "" && server != public {
		return "", fmt.Errorf("config: BACKEND_URL (%s) and PUBLIC_BACKEND_URL (%s) differ", server, public)
	}

	resolved := server
	if resolved == "" {
		resolved = public
	}
	if resolved == "" {
		resolved = DefaultBackendURL
	}

	u, err := url.Parse(resolved)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("config: invalid backend url %q", resolved)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("config: backend url must be http or https, got %q", u.Scheme)
	}
	return resolved, nil
}

func normalizeURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

func getString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

// Address returns the HTTP listen address for the fasthttp server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.HTTP.Host, c.HTTP.Port)
}
