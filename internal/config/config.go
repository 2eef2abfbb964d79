package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Worker     WorkerConfig
	Alerts     AlertsConfig
	Outlook    OutlookConfig
	Discussion DiscussionConfig
	Fetch      FetchConfig
	DB         DatabaseConfig
	Kafka      KafkaConfig
	Redis      RedisConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	RateLimitRPS int
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

type AlertsConfig struct {
	URL          string
	PollInterval time.Duration
	MaxPages     int
	RulesPath    string
}

type OutlookConfig struct {
	SPCBaseURL   string
	PollInterval time.Duration
}

type DiscussionConfig struct {
	FeedURL       string
	IndexURL      string
	PollInterval  time.Duration
	FallbackLimit int
}

// FetchConfig bounds network work. Timeout caps one request; PollTimeout
// caps a whole poll, pagination and fallbacks included.
type FetchConfig struct {
	Timeout         time.Duration
	PollTimeout     time.Duration
	UserAgent       string
	BreakerFailures int
	BreakerCooldown time.Duration
}

type DatabaseConfig struct {
	Path string
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type RedisConfig struct {
	Enabled     bool
	URL         string
	SnapshotTTL time.Duration
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "localhost"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			RateLimitRPS: getEnvInt("RATE_LIMIT_RPS", 10),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 2),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 20),
		},
		Alerts: AlertsConfig{
			URL:          getEnv("NWS_ALERTS_URL", "https://api.weather.gov/alerts/active?status=actual"),
			PollInterval: getEnvDuration("ALERTS_POLL_INTERVAL", 2*time.Minute),
			MaxPages:     getEnvInt("NWS_MAX_PAGES", 5),
			RulesPath:    getEnv("CLASSIFIER_RULES_PATH", ""),
		},
		Outlook: OutlookConfig{
			SPCBaseURL:   getEnv("SPC_BASE_URL", "https://www.spc.noaa.gov"),
			PollInterval: getEnvDuration("OUTLOOK_POLL_INTERVAL", 10*time.Minute),
		},
		Discussion: DiscussionConfig{
			FeedURL:       getEnv("DISCUSSION_FEED_URL", "https://www.spc.noaa.gov/products/spcmdrss.xml"),
			IndexURL:      getEnv("DISCUSSION_INDEX_URL", "https://www.spc.noaa.gov/products/md/"),
			PollInterval:  getEnvDuration("DISCUSSION_POLL_INTERVAL", 10*time.Minute),
			FallbackLimit: getEnvInt("DISCUSSION_FALLBACK_LIMIT", 10),
		},
		Fetch: FetchConfig{
			Timeout:         getEnvDuration("FETCH_TIMEOUT", 10*time.Second),
			PollTimeout:     getEnvDuration("POLL_TIMEOUT", 30*time.Second),
			UserAgent:       getEnv("USER_AGENT", "severe-weather-dashboard (contact@example.com)"),
			BreakerFailures: getEnvInt("BREAKER_FAILURES", 5),
			BreakerCooldown: getEnvDuration("BREAKER_COOLDOWN", time.Minute),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/severe-dashboard.db"),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Brokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:   getEnv("KAFKA_TOPIC", "severe-weather.notifications"),
		},
		Redis: RedisConfig{
			Enabled:     getEnvBool("REDIS_ENABLED", false),
			URL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
			SnapshotTTL: getEnvDuration("REDIS_SNAPSHOT_TTL", 10*time.Minute),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.RateLimitRPS < 1 {
		return fmt.Errorf("rate limit must be at least 1 request per second")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Alerts.PollInterval < 30*time.Second {
		return fmt.Errorf("alerts poll interval must be at least 30 seconds")
	}
	if c.Outlook.PollInterval < time.Minute {
		return fmt.Errorf("outlook poll interval must be at least 1 minute")
	}
	if c.Discussion.PollInterval < time.Minute {
		return fmt.Errorf("discussion poll interval must be at least 1 minute")
	}
	if c.Alerts.MaxPages < 1 {
		return fmt.Errorf("NWS max pages must be at least 1")
	}
	if c.Discussion.FallbackLimit < 1 {
		return fmt.Errorf("discussion fallback limit must be at least 1")
	}

	if c.Fetch.Timeout < time.Second || c.Fetch.Timeout > time.Minute {
		return fmt.Errorf("fetch timeout must be between 1s and 60s, got %s", c.Fetch.Timeout)
	}
	if c.Fetch.PollTimeout < c.Fetch.Timeout || c.Fetch.PollTimeout > 5*time.Minute {
		return fmt.Errorf("poll timeout must be between the fetch timeout (%s) and 5m, got %s", c.Fetch.Timeout, c.Fetch.PollTimeout)
	}
	if c.Fetch.PollTimeout > c.Alerts.PollInterval {
		return fmt.Errorf("poll timeout %s exceeds the alerts poll interval %s", c.Fetch.PollTimeout, c.Alerts.PollInterval)
	}
	if strings.TrimSpace(c.Fetch.UserAgent) == "" {
		return fmt.Errorf("user agent is required by the NWS API")
	}
	if c.Fetch.BreakerFailures < 1 {
		return fmt.Errorf("breaker failures must be at least 1")
	}

	for name, raw := range map[string]string{
		"NWS_ALERTS_URL":       c.Alerts.URL,
		"SPC_BASE_URL":         c.Outlook.SPCBaseURL,
		"DISCUSSION_FEED_URL":  c.Discussion.FeedURL,
		"DISCUSSION_INDEX_URL": c.Discussion.IndexURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid %s: %q", name, raw)
		}
	}

	if c.Worker.Count < 1 || c.Worker.BufferSize < 1 {
		return fmt.Errorf("worker count and buffer size must be at least 1")
	}

	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("kafka enabled but brokers or topic missing")
	}
	if c.Redis.Enabled && c.Redis.SnapshotTTL <= 0 {
		return fmt.Errorf("redis snapshot TTL must be positive")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvList splits a comma separated value, dropping empty entries.
func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
