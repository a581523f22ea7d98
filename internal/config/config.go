package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the single explicit configuration struct handed to every
// component at startup. Nothing reads environment variables after Load
// returns.
type Config struct {
	LogLevel   string
	ListenAddr string

	// Durable store
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Collaborator endpoints and feature flags
	APIBaseURL        string
	AutomationURL     string
	MLServiceURL      string
	LLMServiceURL     string
	LLMAPIKey         string
	UseBrowserService bool
	UseMLService      bool
	UseLLMService     bool

	// Browser/session pool
	MaxBrowsers           int
	MaxContextsPerBrowser int
	SessionIdleTimeout    time.Duration
	SessionMaxAge         time.Duration
	HealthCheckInterval   time.Duration

	// Proxy pool
	ProxyMinWorking          int
	ProxyMaxAge              time.Duration
	ProxyScrapeDelay         time.Duration
	ProxyRefreshInterval     time.Duration
	ProxyValidateTimeout     time.Duration
	ProxyValidateConcurrency int
	ProxyValidateRetries     int

	// Pipeline
	ChunkSize           int
	DailyMessageCap     int
	MessageSendDelay    time.Duration
	PlatformMinInterval time.Duration
}

// Load reads the full configuration from the environment, applying
// defaults for anything unset.
func Load() Config {
	return Config{
		LogLevel:   envStr("LOG_LEVEL", "info"),
		ListenAddr: envStr("LISTEN_ADDR", ":8080"),

		RedisAddr:     envStr("REDIS_ADDR", "localhost:6379"),
		RedisPassword: envStr("REDIS_PASSWORD", ""),
		RedisDB:       envInt("REDIS_DB", 0),

		APIBaseURL:        envStr("API_BASE_URL", "http://localhost:3000/api"),
		AutomationURL:     envStr("BROWSER_SERVICE_URL", "http://localhost:3001"),
		MLServiceURL:      envStr("ML_SERVICE_URL", "http://localhost:8000"),
		LLMServiceURL:     envStr("LLM_SERVICE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:         envStr("LLM_API_KEY", ""),
		UseBrowserService: envBool("USE_BROWSER_SERVICE", false),
		UseMLService:      envBool("USE_ML_SERVICE", false),
		UseLLMService:     envBool("USE_LLM_SERVICE", false),

		MaxBrowsers:           envInt("MAX_BROWSERS", 3),
		MaxContextsPerBrowser: envInt("MAX_CONTEXTS_PER_BROWSER", 5),
		SessionIdleTimeout:    envDur("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		SessionMaxAge:         envDur("SESSION_MAX_AGE", 24*time.Hour),
		HealthCheckInterval:   envDur("HEALTH_CHECK_INTERVAL", 5*time.Minute),

		ProxyMinWorking:          envInt("PROXY_MIN_WORKING", 5),
		ProxyMaxAge:              envDur("PROXY_MAX_AGE", 24*time.Hour),
		ProxyScrapeDelay:         envDur("PROXY_SCRAPE_DELAY", 2*time.Second),
		ProxyRefreshInterval:     envDur("PROXY_REFRESH_INTERVAL", 10*time.Minute),
		ProxyValidateTimeout:     envDur("PROXY_VALIDATE_TIMEOUT", 10*time.Second),
		ProxyValidateConcurrency: envInt("PROXY_VALIDATE_CONCURRENCY", 20),
		ProxyValidateRetries:     envInt("PROXY_VALIDATE_RETRIES", 1),

		ChunkSize:           envInt("CHUNK_SIZE", 5),
		DailyMessageCap:     envInt("DAILY_MESSAGE_CAP", 50),
		MessageSendDelay:    envDur("MESSAGE_SEND_DELAY", 30*time.Second),
		PlatformMinInterval: envDur("PLATFORM_MIN_INTERVAL", 2*time.Second),
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDur(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
