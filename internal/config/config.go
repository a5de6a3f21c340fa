// Package config loads client settings from the environment.
package config

import (
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	CollectorMode string
	APIBaseURL    string
	APIToken      string
	UserAgent     string
	PageSize      int

	RedditSubreddit    string
	RedditClientID     string
	RedditClientSecret string
	RedditUsername     string
	RedditPassword     string

	RSSURL string

	CacheBackend string
	CacheDir     string
	SQLitePath   string
	RedisAddr    string
	RedisTTL     time.Duration

	KafkaBrokers string
	KafkaTopic   string

	EndReachedInterval time.Duration
	AutoplayDebounce   time.Duration
	ViewFlushDelay     time.Duration
	SessionWindow      time.Duration

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	TracePath    string
	ViewLog      string
	Port         string
	OTLPEndpoint string
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		CollectorMode: GetEnv("COLLECTOR_MODE", "mock"),
		APIBaseURL:    GetEnv("FEED_API_URL", "http://localhost:8083"),
		APIToken:      GetEnv("FEED_API_TOKEN", ""),
		UserAgent:     GetEnv("FEED_USER_AGENT", "reelfeed/1.0"),
		PageSize:      GetInt("FEED_PAGE_SIZE", 10),

		RedditSubreddit:    GetEnv("REDDIT_SUBREDDIT", "videos"),
		RedditClientID:     GetEnv("REDDIT_CLIENT_ID", ""),
		RedditClientSecret: GetEnv("REDDIT_CLIENT_SECRET", ""),
		RedditUsername:     GetEnv("REDDIT_USERNAME", ""),
		RedditPassword:     GetEnv("REDDIT_PASSWORD", ""),

		RSSURL: GetEnv("RSS_URL", ""),

		CacheBackend: GetEnv("CACHE_BACKEND", "file"),
		CacheDir:     GetEnv("CACHE_DIR", "data/cache"),
		SQLitePath:   GetEnv("CACHE_SQLITE_PATH", "data/cache.db"),
		RedisAddr:    GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisTTL:     GetDuration("REDIS_CACHE_TTL", 24*time.Hour),

		KafkaBrokers: GetEnv("KAFKA_BOOTSTRAP_SERVERS", ""),
		KafkaTopic:   GetEnv("KAFKA_VIEWS_TOPIC", "posts.views"),

		EndReachedInterval: GetDuration("END_REACHED_INTERVAL", time.Second),
		AutoplayDebounce:   GetDuration("AUTOPLAY_DEBOUNCE", 50*time.Millisecond),
		ViewFlushDelay:     GetDuration("VIEW_FLUSH_DELAY", time.Second),
		SessionWindow:      GetDuration("VIEW_SESSION_WINDOW", 5*time.Minute),

		MinioEndpoint:  GetEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: GetEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: GetEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    GetEnv("MINIO_BUCKET", "uploads"),
		MinioUseSSL:    GetBool("MINIO_USE_SSL", false),

		TracePath:    GetEnv("SCROLL_TRACE", "input/scroll.csv"),
		ViewLog:      GetEnv("VIEW_LOG", "data/views.json"),
		Port:         GetEnv("PORT", "8080"),
		OTLPEndpoint: GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}
