package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads configuration from the given TOML file, then applies
// environment variable overrides. A missing file is not an error; defaults
// plus environment variables are used instead.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}

	// Load .env into the process environment if present; ignore absence.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverrides overrides config fields from BOOKPULSE_* environment
// variables. Only non-empty variables take effect.
func applyEnvOverrides(cfg *Config) {
	setStr("BOOKPULSE_MODE", &cfg.Mode)
	setStr("BOOKPULSE_LOG_LEVEL", &cfg.LogLevel)

	setStr("BOOKPULSE_BINANCE_REST_HOST", &cfg.Binance.RestHost)
	setStr("BOOKPULSE_BINANCE_WS_HOST", &cfg.Binance.WsHost)
	setInt("BOOKPULSE_BINANCE_RATE_LIMIT", &cfg.Binance.RateLimit)
	setDuration("BOOKPULSE_BINANCE_RATE_WINDOW", &cfg.Binance.RateWindow)

	setBool("BOOKPULSE_LLM_ENABLED", &cfg.LLM.Enabled)
	setStr("BOOKPULSE_LLM_BASE_URL", &cfg.LLM.BaseURL)
	setStr("BOOKPULSE_LLM_API_KEY", &cfg.LLM.APIKey)
	setStr("BOOKPULSE_LLM_MODEL", &cfg.LLM.Model)
	setFloat64("BOOKPULSE_LLM_TEMPERATURE", &cfg.LLM.Temperature)
	setInt("BOOKPULSE_LLM_MAX_TOKENS", &cfg.LLM.MaxTokens)
	setDuration("BOOKPULSE_LLM_TIMEOUT", &cfg.LLM.Timeout)

	setStr("BOOKPULSE_POSTGRES_DSN", &cfg.Postgres.DSN)
	setStr("BOOKPULSE_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("BOOKPULSE_POSTGRES_PORT", &cfg.Postgres.Port)
	setStr("BOOKPULSE_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setStr("BOOKPULSE_POSTGRES_USER", &cfg.Postgres.User)
	setStr("BOOKPULSE_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setStr("BOOKPULSE_POSTGRES_SSL_MODE", &cfg.Postgres.SSLMode)
	setInt("BOOKPULSE_POSTGRES_POOL_MAX_CONNS", &cfg.Postgres.PoolMaxConns)
	setInt("BOOKPULSE_POSTGRES_POOL_MIN_CONNS", &cfg.Postgres.PoolMinConns)
	setBool("BOOKPULSE_POSTGRES_RUN_MIGRATIONS", &cfg.Postgres.RunMigrations)

	setStr("BOOKPULSE_REDIS_ADDR", &cfg.Redis.Addr)
	setStr("BOOKPULSE_REDIS_PASSWORD", &cfg.Redis.Password)
	setInt("BOOKPULSE_REDIS_DB", &cfg.Redis.DB)
	setInt("BOOKPULSE_REDIS_POOL_SIZE", &cfg.Redis.PoolSize)
	setInt("BOOKPULSE_REDIS_MAX_RETRIES", &cfg.Redis.MaxRetries)
	setBool("BOOKPULSE_REDIS_TLS_ENABLED", &cfg.Redis.TLSEnabled)

	setStr("BOOKPULSE_S3_ENDPOINT", &cfg.S3.Endpoint)
	setStr("BOOKPULSE_S3_REGION", &cfg.S3.Region)
	setStr("BOOKPULSE_S3_BUCKET", &cfg.S3.Bucket)
	setStr("BOOKPULSE_S3_ACCESS_KEY", &cfg.S3.AccessKey)
	setStr("BOOKPULSE_S3_SECRET_KEY", &cfg.S3.SecretKey)
	setBool("BOOKPULSE_S3_USE_SSL", &cfg.S3.UseSSL)
	setBool("BOOKPULSE_S3_FORCE_PATH_STYLE", &cfg.S3.ForcePathStyle)

	setStr("BOOKPULSE_PRODUCER_NAME", &cfg.Producer.Name)
	setStringSlice("BOOKPULSE_PRODUCER_INSTRUMENTS", &cfg.Producer.Instruments)
	setDuration("BOOKPULSE_PRODUCER_INTERVAL", &cfg.Producer.Interval)
	setInt("BOOKPULSE_PRODUCER_DEPTH_LEVELS", &cfg.Producer.DepthLevels)
	setDuration("BOOKPULSE_PRODUCER_FETCH_TIMEOUT", &cfg.Producer.FetchTimeout)
	setDuration("BOOKPULSE_PRODUCER_LOCK_TTL", &cfg.Producer.LockTTL)
	setBool("BOOKPULSE_PRODUCER_STREAM_FEED", &cfg.Producer.StreamFeed)
	setBool("BOOKPULSE_PRODUCER_USE_VOLATILITY", &cfg.Producer.UseVolatility)
	setBool("BOOKPULSE_PRODUCER_PEER_NORMALIZING", &cfg.Producer.PeerNormalizing)

	setBool("BOOKPULSE_ARCHIVE_ENABLED", &cfg.Archive.Enabled)
	setInt("BOOKPULSE_ARCHIVE_RETENTION_DAYS", &cfg.Archive.RetentionDays)
	setDuration("BOOKPULSE_ARCHIVE_INTERVAL", &cfg.Archive.Interval)
	setBool("BOOKPULSE_ARCHIVE_DELETE_AFTER", &cfg.Archive.DeleteAfter)

	setBool("BOOKPULSE_SERVER_ENABLED", &cfg.Server.Enabled)
	setInt("BOOKPULSE_SERVER_PORT", &cfg.Server.Port)
	setStr("BOOKPULSE_SERVER_API_KEY", &cfg.Server.APIKey)
	setStringSlice("BOOKPULSE_SERVER_CORS_ORIGINS", &cfg.Server.CORSOrigins)

	setStr("BOOKPULSE_TELEGRAM_TOKEN", &cfg.Notify.TelegramToken)
	setStr("BOOKPULSE_TELEGRAM_CHAT_ID", &cfg.Notify.TelegramChatID)
	setStr("BOOKPULSE_DISCORD_WEBHOOK_URL", &cfg.Notify.DiscordWebhookURL)
	setStringSlice("BOOKPULSE_NOTIFY_EVENTS", &cfg.Notify.Events)
	setInt("BOOKPULSE_NOTIFY_MIN_CONFIDENCE", &cfg.Notify.MinConfidence)
}

func setStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(key string, dst *duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(key string, dst *[]string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}
