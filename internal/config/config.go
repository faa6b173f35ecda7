package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	BaseURL        string   // public base URL, ex: https://marks.domain.ext
	AllowedOrigins []string // CORS origins for the browser client

	// OIDC identity provider
	OIDCIssuer       string   // ex: https://accounts.google.com
	OIDCClientID     string
	OIDCClientSecret string
	OIDCScopes       []string // defaults to openid,email,profile

	// Sessions
	SessionTTL    time.Duration // server-side session lifetime
	CookieName    string        // session cookie name
	SecureCookies bool          // false only for local dev over plain http

	// Reconciler
	FallbackDelay time.Duration // delay before the optimistic consistency check
	ViewIdleTTL   time.Duration // unreferenced view lifetime before teardown
	SweepInterval time.Duration // how often idle views are swept

	// Redis
	RedisAddr           string        // ex: "localhost:6379"
	RedisUser           string        // optional
	RedisPassword       string        // optional
	RedisDB             int           // Redis DB number
	RedisDialTimeout    time.Duration // ex: 5s
	RedisReadTimeout    time.Duration // ex: 3s
	RedisWriteTimeout   time.Duration // ex: 3s
	RedisPoolSize       int           // connection pool size
	RedisConnectTimeout time.Duration // total time to retry connecting (ex: 30s)
	RedisRetryInterval  time.Duration // initial wait between retries, grows exponentially
	RedisMaxWait        time.Duration // cap on the wait between retries
	RedisPingTimeout    time.Duration // timeout for each ping attempt
}

// fileConfig is the optional YAML overlay (TABMARKS_CONFIG_FILE). Values
// present in the file become defaults; environment variables still win.
type fileConfig struct {
	ListenAddr     string   `yaml:"listen_addr"`
	LogLevel       string   `yaml:"log_level"`
	BaseURL        string   `yaml:"base_url"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	OIDC           struct {
		Issuer   string   `yaml:"issuer"`
		ClientID string   `yaml:"client_id"`
		Scopes   []string `yaml:"scopes"`
	} `yaml:"oidc"`
	Redis struct {
		Addr string `yaml:"addr"`
		DB   int    `yaml:"db"`
	} `yaml:"redis"`
}

func Load() *Config {
	file := loadFile(os.Getenv("TABMARKS_CONFIG_FILE"))

	cfg := &Config{
		// Server settings
		ListenAddr:      getenv("TABMARKS_LISTEN_ADDR", fallback(file.ListenAddr, ":8080")),
		ShutdownTimeout: mustDuration("TABMARKS_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("TABMARKS_LOG_LEVEL", fallback(file.LogLevel, "info")),
		PrettyLog: mustBool("TABMARKS_PRETTY_LOG", true),

		// Public surface
		BaseURL:        getenv("TABMARKS_BASE_URL", file.BaseURL),
		AllowedOrigins: getenvSlice("TABMARKS_ALLOWED_ORIGINS", file.AllowedOrigins),

		// OIDC
		OIDCIssuer:       getenv("TABMARKS_OIDC_ISSUER", file.OIDC.Issuer),
		OIDCClientID:     getenv("TABMARKS_OIDC_CLIENT_ID", file.OIDC.ClientID),
		OIDCClientSecret: getenv("TABMARKS_OIDC_CLIENT_SECRET", ""),
		OIDCScopes:       getenvSlice("TABMARKS_OIDC_SCOPES", file.OIDC.Scopes),

		// Sessions
		SessionTTL:    mustDuration("TABMARKS_SESSION_TTL", 24*time.Hour),
		CookieName:    getenv("TABMARKS_COOKIE_NAME", "tabmarks_session"),
		SecureCookies: mustBool("TABMARKS_SECURE_COOKIES", true),

		// Reconciler
		FallbackDelay: mustDuration("TABMARKS_FALLBACK_DELAY", 500*time.Millisecond),
		ViewIdleTTL:   mustDuration("TABMARKS_VIEW_IDLE_TTL", 5*time.Minute),
		SweepInterval: mustDuration("TABMARKS_SWEEP_INTERVAL", time.Minute),

		// Redis settings
		RedisAddr:           getenv("TABMARKS_REDIS_ADDR", fallback(file.Redis.Addr, "localhost:6379")),
		RedisUser:           getenv("TABMARKS_REDIS_USERNAME", ""),
		RedisPassword:       getenv("TABMARKS_REDIS_PASSWORD", ""),
		RedisDB:             getenvInt("TABMARKS_REDIS_DB", file.Redis.DB),
		RedisDialTimeout:    mustDuration("TABMARKS_REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisReadTimeout:    mustDuration("TABMARKS_REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWriteTimeout:   mustDuration("TABMARKS_REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisPoolSize:       getenvInt("TABMARKS_REDIS_POOL_SIZE", 10),
		RedisConnectTimeout: mustDuration("TABMARKS_REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:  mustDuration("TABMARKS_REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisMaxWait:        mustDuration("TABMARKS_REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:    mustDuration("TABMARKS_REDIS_PING_TIMEOUT", 5*time.Second),
	}

	if len(cfg.OIDCScopes) == 0 {
		cfg.OIDCScopes = []string{"openid", "email", "profile"}
	}

	// Identity provider settings have no sane defaults.
	require("TABMARKS_BASE_URL", cfg.BaseURL)
	require("TABMARKS_OIDC_ISSUER", cfg.OIDCIssuer)
	require("TABMARKS_OIDC_CLIENT_ID", cfg.OIDCClientID)
	require("TABMARKS_OIDC_CLIENT_SECRET", cfg.OIDCClientSecret)

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.OIDCClientSecret = "***REDACTED***"
		if cfgCopy.RedisPassword != "" {
			cfgCopy.RedisPassword = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// RedirectURL is the OAuth callback registered with the provider.
func (c *Config) RedirectURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/auth/callback"
}

func loadFile(path string) fileConfig {
	var fc fileConfig
	if path == "" {
		return fc
	}
	data, err := os.ReadFile(path)
	if err != nil {
		panic(fmt.Sprintf("❌ FATAL: cannot read config file %s: %v", path, err))
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		panic(fmt.Sprintf("❌ FATAL: cannot parse config file %s: %v", path, err))
	}
	return fc
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func fallback(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func require(key, val string) {
	if val == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvSlice(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		return splitAndTrim(v)
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
