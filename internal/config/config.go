package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the application
type Config struct {
	// Ergo explorer configuration
	Explorer ExplorerConfig

	// Monitor loop configuration
	Monitor MonitorConfig

	// Notification channels
	Telegram TelegramConfig
	Discord  DiscordConfig

	// Analytics event bus
	NATS NATSConfig

	// Redis configuration
	Redis RedisConfig

	// Database configuration (optional address registry)
	Database DatabaseConfig

	// Status API configuration
	API APIConfig

	// Logging configuration
	Log LogConfig
}

// ExplorerConfig holds Ergo explorer API settings
type ExplorerConfig struct {
	BaseURL           string        `envconfig:"EXPLORER_URL" default:"https://api.ergoplatform.com/api/v1"`
	WebURL            string        `envconfig:"EXPLORER_WEB_URL" default:"https://explorer.ergoplatform.com/en"`
	FeeAddress        string        `envconfig:"EXPLORER_FEE_ADDRESS" default:"2iHkR7CWvD1R4j1yZg5bkeDRQavjAaVPeTDFGGLZduHyfWMuYpmhHocX8GJoaieTx78FntzJbCBVL6rf96ocJoZdmWBL2fci7NqWgAirppPQmZ7fN9V6z13Ay6brPriBKYqLp1bT2Fk4FkFLCfdPpe"`
	RequestTimeout    time.Duration `envconfig:"EXPLORER_REQUEST_TIMEOUT" default:"30s"`
	MaxRetries        int           `envconfig:"EXPLORER_MAX_RETRIES" default:"3"`
	RetryDelay        time.Duration `envconfig:"EXPLORER_RETRY_DELAY" default:"1s"`
	MaxRateLimitWaits int           `envconfig:"EXPLORER_MAX_RATE_LIMIT_WAITS" default:"5"`
}

// MonitorConfig holds monitor loop settings
type MonitorConfig struct {
	MetricsPort     int           `envconfig:"MONITOR_METRICS_PORT" default:"8080"`
	PollInterval    time.Duration `envconfig:"MONITOR_POLL_INTERVAL" default:"15s"`
	BatchSize       int           `envconfig:"MONITOR_BATCH_SIZE" default:"50"`
	WorkerCount     int           `envconfig:"MONITOR_WORKER_COUNT" default:"8"`
	ReportHour      int           `envconfig:"MONITOR_REPORT_HOUR" default:"12"`
	LookbackHours   int           `envconfig:"MONITOR_LOOKBACK_HOURS" default:"24"`
	BalanceCacheTTL time.Duration `envconfig:"MONITOR_BALANCE_CACHE_TTL" default:"5m"`
	AnalyticsQueue  int           `envconfig:"MONITOR_ANALYTICS_QUEUE" default:"256"`

	// Notification channel: telegram, discord or none (log only)
	Channel string `envconfig:"MONITOR_CHANNEL" default:"none"`

	// Watched addresses: address|nickname|chat[:topic];chat[:topic]
	Watch []string `envconfig:"MONITOR_WATCH"`
}

// TelegramConfig holds Telegram Bot API settings
type TelegramConfig struct {
	BaseURL        string        `envconfig:"TELEGRAM_API_URL" default:"https://api.telegram.org"`
	BotToken       string        `envconfig:"TELEGRAM_BOT_TOKEN"`
	DefaultChatID  string        `envconfig:"TELEGRAM_DEFAULT_CHAT_ID"`
	RequestTimeout time.Duration `envconfig:"TELEGRAM_REQUEST_TIMEOUT" default:"15s"`
	MaxRetries     int           `envconfig:"TELEGRAM_MAX_RETRIES" default:"3"`
	RetryDelay     time.Duration `envconfig:"TELEGRAM_RETRY_DELAY" default:"1s"`
}

// DiscordConfig holds Discord bot settings
type DiscordConfig struct {
	BotToken         string `envconfig:"DISCORD_BOT_TOKEN"`
	DefaultChannelID string `envconfig:"DISCORD_DEFAULT_CHANNEL_ID"`
}

// NATSConfig holds analytics event bus settings
type NATSConfig struct {
	Enabled        bool          `envconfig:"NATS_ENABLED" default:"false"`
	URL            string        `envconfig:"NATS_URL" default:"nats://localhost:4222"`
	Subject        string        `envconfig:"NATS_SUBJECT" default:"ergo.monitor.transactions"`
	ReconnectWait  time.Duration `envconfig:"NATS_RECONNECT_WAIT" default:"2s"`
	MaxReconnects  int           `envconfig:"NATS_MAX_RECONNECTS" default:"60"`
	ConnectTimeout time.Duration `envconfig:"NATS_CONNECT_TIMEOUT" default:"5s"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool   `envconfig:"REDIS_ENABLED" default:"false"`
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Enabled         bool          `envconfig:"DB_ENABLED" default:"false"`
	Host            string        `envconfig:"DB_HOST" default:"localhost"`
	Port            int           `envconfig:"DB_PORT" default:"5432"`
	User            string        `envconfig:"DB_USER" default:"monitor"`
	Password        string        `envconfig:"DB_PASSWORD" default:"monitor"`
	Name            string        `envconfig:"DB_NAME" default:"ergo_monitor"`
	SSLMode         string        `envconfig:"DB_SSL_MODE" default:"disable"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"5"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
}

// APIConfig holds status API settings
type APIConfig struct {
	Host            string        `envconfig:"API_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"API_PORT" default:"8081"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"10s"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"30s"`
	RateLimitRPS    int           `envconfig:"API_RATE_LIMIT_RPS" default:"50"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// WatchEntry is one parsed MONITOR_WATCH item
type WatchEntry struct {
	Address      string
	Nickname     string
	Destinations []DestinationEntry
}

// DestinationEntry is a chat/channel id with an optional topic (thread) id
type DestinationEntry struct {
	ChannelID string
	TopicID   *int64
}

// ParseWatchList parses MONITOR_WATCH entries of the form
// address|nickname|chat[:topic];chat[:topic]. Nickname and destinations are optional.
func ParseWatchList(items []string) ([]WatchEntry, error) {
	entries := make([]WatchEntry, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		parts := strings.Split(item, "|")
		entry := WatchEntry{Address: strings.TrimSpace(parts[0])}
		if entry.Address == "" {
			return nil, fmt.Errorf("watch entry %q has no address", item)
		}
		if len(parts) > 1 {
			entry.Nickname = strings.TrimSpace(parts[1])
		}
		if len(parts) > 2 {
			dests, err := parseDestinations(parts[2])
			if err != nil {
				return nil, fmt.Errorf("watch entry %q: %w", item, err)
			}
			entry.Destinations = dests
		}
		if len(parts) > 3 {
			return nil, fmt.Errorf("watch entry %q has too many fields", item)
		}

		entries = append(entries, entry)
	}
	return entries, nil
}

func parseDestinations(raw string) ([]DestinationEntry, error) {
	var dests []DestinationEntry
	for _, d := range strings.Split(raw, ";") {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}

		channel, topic, hasTopic := strings.Cut(d, ":")
		dest := DestinationEntry{ChannelID: strings.TrimSpace(channel)}
		if dest.ChannelID == "" {
			return nil, fmt.Errorf("destination %q has no channel id", d)
		}
		if hasTopic {
			id, err := strconv.ParseInt(strings.TrimSpace(topic), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid topic id in %q: %w", d, err)
			}
			dest.TopicID = &id
		}
		dests = append(dests, dest)
	}
	return dests, nil
}
