// Package config defines the top-level configuration for the signal producer
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by BOOKPULSE_* environment
// variables.
type Config struct {
	Binance  BinanceConfig  `toml:"binance"`
	LLM      LLMConfig      `toml:"llm"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Engine   EngineConfig   `toml:"engine"`
	Policy   PolicyConfig   `toml:"policy"`
	Producer ProducerConfig `toml:"producer"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// BinanceConfig holds exchange API endpoints and request budgets.
type BinanceConfig struct {
	RestHost string `toml:"rest_host"`
	WsHost   string `toml:"ws_host"`
	// RateLimit / RateWindow bound outbound REST calls when Redis-backed
	// throttling is active.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// LLMConfig holds the optional refinement layer parameters. The refiner is
// disabled when Enabled is false or APIKey is empty.
type LLMConfig struct {
	Enabled     bool     `toml:"enabled"`
	BaseURL     string   `toml:"base_url"`
	APIKey      string   `toml:"api_key"`
	Model       string   `toml:"model"`
	Temperature float64  `toml:"temperature"`
	MaxTokens   int      `toml:"max_tokens"`
	Timeout     duration `toml:"timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// EngineConfig holds the analysis-phase parameters: clustering, zone and gap
// classification, large-order detection, and the sanity checker.
type EngineConfig struct {
	BaseBinSizePercent float64 `toml:"base_bin_size_percent"`
	MinVolatilityScale float64 `toml:"min_volatility_scale"`
	MaxVolatilityScale float64 `toml:"max_volatility_scale"`

	ZoneClusterMultiplier float64 `toml:"zone_cluster_multiplier"`
	GapMultiplier         float64 `toml:"gap_multiplier"`

	SpikeMultiplier   float64 `toml:"spike_multiplier"`
	ZScoreThreshold   float64 `toml:"z_score_threshold"`
	TrimFraction      float64 `toml:"trim_fraction"`
	MinLevelsForStats int     `toml:"min_levels_for_stats"`
	MaxOrdersPerSide  int     `toml:"max_orders_per_side"`

	MinZoneCount             int     `toml:"min_zone_count"`
	MinRatio                 float64 `toml:"min_ratio"`
	MaxRatio                 float64 `toml:"max_ratio"`
	MinZoneDispersionPercent float64 `toml:"min_zone_dispersion_percent"`
	MaxZoneStrength          float64 `toml:"max_zone_strength"`
	MaxGapZoneRatio          float64 `toml:"max_gap_zone_ratio"`
}

// PolicyConfig holds the decision-policy thresholds. The pressure band
// doubles as the sanity bypass and the extreme-ratio override band.
type PolicyConfig struct {
	PressureLow  float64 `toml:"pressure_low"`
	PressureHigh float64 `toml:"pressure_high"`

	StrongBuyRatio           float64 `toml:"strong_buy_ratio"`
	StrongSellRatio          float64 `toml:"strong_sell_ratio"`
	ModerateBuyRatio         float64 `toml:"moderate_buy_ratio"`
	ModerateSellRatio        float64 `toml:"moderate_sell_ratio"`
	HighVolStrongBuyRatio    float64 `toml:"high_vol_strong_buy_ratio"`
	HighVolStrongSellRatio   float64 `toml:"high_vol_strong_sell_ratio"`
	HighVolModerateBuyRatio  float64 `toml:"high_vol_moderate_buy_ratio"`
	HighVolModerateSellRatio float64 `toml:"high_vol_moderate_sell_ratio"`
	HighVolatilityThreshold  float64 `toml:"high_volatility_threshold"`

	MediumDepth       float64 `toml:"medium_depth"`
	HighConfidence    int     `toml:"high_confidence"`
	MediumConfidence  int     `toml:"medium_confidence"`
	NeutralConfidence int     `toml:"neutral_confidence"`

	WideSpreadPercent float64 `toml:"wide_spread_percent"`

	// Normalizer parameters for the cross-producer damping step.
	NormalizerMinConfidence int     `toml:"normalizer_min_confidence"`
	NormalizerMinPeers      int     `toml:"normalizer_min_peers"`
	NormalizerDamping       float64 `toml:"normalizer_damping"`
}

// ProducerConfig holds orchestration parameters: which instruments to watch
// and how often to analyze them.
type ProducerConfig struct {
	Name            string   `toml:"name"`
	Instruments     []string `toml:"instruments"`
	Interval        duration `toml:"interval"`
	DepthLevels     int      `toml:"depth_levels"`
	FetchTimeout    duration `toml:"fetch_timeout"`
	LockTTL         duration `toml:"lock_ttl"`
	PublishChannel  string   `toml:"publish_channel"`
	PublishStream   string   `toml:"publish_stream"`
	StreamFeed      bool     `toml:"stream_feed"`
	UseVolatility   bool     `toml:"use_volatility"`
	PeerNormalizing bool     `toml:"peer_normalizing"`
}

// ArchiveConfig holds signal retention and archival parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
	DeleteAfter   bool     `toml:"delete_after"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	// MinConfidence suppresses notifications for weak signals.
	MinConfidence int `toml:"min_confidence"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Binance: BinanceConfig{
			RestHost:   "https://api.binance.com",
			WsHost:     "wss://stream.binance.com:9443",
			RateLimit:  10,
			RateWindow: duration{time.Second},
		},
		LLM: LLMConfig{
			Enabled:     false,
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
			MaxTokens:   512,
			Timeout:     duration{20 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "bookpulse-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Engine: EngineConfig{
			BaseBinSizePercent:       0.2,
			MinVolatilityScale:       0.5,
			MaxVolatilityScale:       3.0,
			ZoneClusterMultiplier:    1.5,
			GapMultiplier:            0.25,
			SpikeMultiplier:          1.5,
			ZScoreThreshold:          1.5,
			TrimFraction:             0.10,
			MinLevelsForStats:        20,
			MaxOrdersPerSide:         10,
			MinZoneCount:             2,
			MinRatio:                 0.01,
			MaxRatio:                 100,
			MinZoneDispersionPercent: 0.1,
			MaxZoneStrength:          15,
			MaxGapZoneRatio:          3,
		},
		Policy: PolicyConfig{
			PressureLow:              0.75,
			PressureHigh:             1.25,
			StrongBuyRatio:           1.8,
			StrongSellRatio:          0.55,
			ModerateBuyRatio:         1.3,
			ModerateSellRatio:        0.77,
			HighVolStrongBuyRatio:    1.6,
			HighVolStrongSellRatio:   0.65,
			HighVolModerateBuyRatio:  1.15,
			HighVolModerateSellRatio: 0.85,
			HighVolatilityThreshold:  1.5,
			MediumDepth:              100_000,
			HighConfidence:           88,
			MediumConfidence:         65,
			NeutralConfidence:        50,
			WideSpreadPercent:        0.5,
			NormalizerMinConfidence:  85,
			NormalizerMinPeers:       2,
			NormalizerDamping:        0.8,
		},
		Producer: ProducerConfig{
			Name:            "bookpulse",
			Instruments:     []string{"BTCUSDT"},
			Interval:        duration{30 * time.Second},
			DepthLevels:     100,
			FetchTimeout:    duration{10 * time.Second},
			LockTTL:         duration{25 * time.Second},
			PublishChannel:  "signals",
			PublishStream:   "signals:stream",
			StreamFeed:      true,
			UseVolatility:   true,
			PeerNormalizing: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
			DeleteAfter:   false,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events:        []string{"signal", "error"},
			MinConfidence: 80,
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"produce": true,
	"serve":   true,
	"once":    true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: produce, serve, once, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Binance endpoints
	if c.Binance.RestHost == "" {
		errs = append(errs, "binance: rest_host must not be empty")
	}
	if c.Producer.StreamFeed && c.Binance.WsHost == "" {
		errs = append(errs, "binance: ws_host must not be empty when producer.stream_feed is enabled")
	}
	if c.Binance.RateLimit < 1 {
		errs = append(errs, "binance: rate_limit must be >= 1")
	}

	// LLM
	if c.LLM.Enabled {
		if c.LLM.APIKey == "" {
			errs = append(errs, "llm: api_key is required when enabled")
		}
		if c.LLM.BaseURL == "" {
			errs = append(errs, "llm: base_url must not be empty when enabled")
		}
		if c.LLM.Model == "" {
			errs = append(errs, "llm: model must not be empty when enabled")
		}
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archiving is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archiving is enabled")
		}
	}

	// Engine
	if c.Engine.BaseBinSizePercent <= 0 {
		errs = append(errs, "engine: base_bin_size_percent must be > 0")
	}
	if c.Engine.MinVolatilityScale <= 0 || c.Engine.MaxVolatilityScale < c.Engine.MinVolatilityScale {
		errs = append(errs, "engine: volatility scale bounds must satisfy 0 < min <= max")
	}
	if c.Engine.ZoneClusterMultiplier <= c.Engine.GapMultiplier {
		errs = append(errs, "engine: zone_cluster_multiplier must exceed gap_multiplier")
	}
	if c.Engine.TrimFraction < 0 || c.Engine.TrimFraction >= 0.5 {
		errs = append(errs, "engine: trim_fraction must be in [0, 0.5)")
	}
	if c.Engine.MaxOrdersPerSide < 1 {
		errs = append(errs, "engine: max_orders_per_side must be >= 1")
	}
	if c.Engine.MinRatio <= 0 || c.Engine.MaxRatio <= c.Engine.MinRatio {
		errs = append(errs, "engine: ratio bounds must satisfy 0 < min < max")
	}

	// Policy
	if c.Policy.PressureLow <= 0 || c.Policy.PressureHigh <= c.Policy.PressureLow {
		errs = append(errs, "policy: pressure band must satisfy 0 < low < high")
	}
	if c.Policy.StrongBuyRatio <= c.Policy.ModerateBuyRatio {
		errs = append(errs, "policy: strong_buy_ratio must exceed moderate_buy_ratio")
	}
	if c.Policy.StrongSellRatio >= c.Policy.ModerateSellRatio {
		errs = append(errs, "policy: strong_sell_ratio must be below moderate_sell_ratio")
	}
	for name, v := range map[string]int{
		"high_confidence":    c.Policy.HighConfidence,
		"medium_confidence":  c.Policy.MediumConfidence,
		"neutral_confidence": c.Policy.NeutralConfidence,
	} {
		if v < 0 || v > 100 {
			errs = append(errs, fmt.Sprintf("policy: %s must be 0-100, got %d", name, v))
		}
	}
	if c.Policy.NormalizerDamping <= 0 || c.Policy.NormalizerDamping > 1 {
		errs = append(errs, "policy: normalizer_damping must be in (0, 1]")
	}

	// Producer
	if c.Producer.Name == "" {
		errs = append(errs, "producer: name must not be empty")
	}
	if len(c.Producer.Instruments) == 0 && c.Mode != "serve" {
		errs = append(errs, "producer: at least one instrument is required for mode "+c.Mode)
	}
	if c.Producer.Interval.Duration <= 0 {
		errs = append(errs, "producer: interval must be > 0")
	}
	if c.Producer.DepthLevels < 5 {
		errs = append(errs, "producer: depth_levels must be >= 5")
	}

	// Archive
	if c.Archive.Enabled && c.Archive.RetentionDays < 1 {
		errs = append(errs, "archive: retention_days must be >= 1 when enabled")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
