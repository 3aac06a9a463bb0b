package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"tondonate/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Ton       TonConfig       `mapstructure:"ton"`
	Price     PriceConfig     `mapstructure:"price"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Funnel    FunnelConfig    `mapstructure:"funnel"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// HTTPConfig governs the API listener.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	AdminToken      string        `mapstructure:"admin_token"`
	RequestsPerMin  int           `mapstructure:"requests_per_min"`
	RateLimitBurst  int           `mapstructure:"rate_limit_burst"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// TonConfig carries the donation parameters shared by every verification.
type TonConfig struct {
	SellerAddress  string        `mapstructure:"seller_address"`
	MinDonationTon float64       `mapstructure:"min_donation_ton"`
	Lookback       time.Duration `mapstructure:"lookback"`
	DonationText   string        `mapstructure:"donation_text"`
}

// PriceConfig captures the fiat price index connectivity.
type PriceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Currency       string        `mapstructure:"currency"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// ProvidersConfig lists the indexer backends in priority order.
type ProvidersConfig struct {
	PageLimit int             `mapstructure:"page_limit"`
	TonAPI    TonAPIConfig    `mapstructure:"tonapi"`
	Toncenter ToncenterConfig `mapstructure:"toncenter"`
}

// TonAPIConfig is the primary indexer (bearer auth, skipped without a key).
type TonAPIConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ToncenterConfig is the secondary indexer (optionally keyed).
type ToncenterConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AuditConfig controls the file-based best-effort audit trail.
type AuditConfig struct {
	FilePath string `mapstructure:"file_path"`
}

// WorkerConfig tunes the pending-claim recheck loop.
type WorkerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Interval        time.Duration `mapstructure:"interval"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	RecheckWindow   time.Duration `mapstructure:"recheck_window"`
}

// NotifyConfig routes operator notifications.
type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the operator chat.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// FunnelConfig is the public configuration served to the frontend and bot.
type FunnelConfig struct {
	FrontendURL   string `mapstructure:"frontend_url"`
	CommunityLink string `mapstructure:"community_link"`
	BotLink       string `mapstructure:"bot_link"`
	SupportLink   string `mapstructure:"support_link"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TONDONATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "tondonate")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("http.addr", ":4000")
	v.SetDefault("http.requests_per_min", 120)
	v.SetDefault("http.rate_limit_burst", 20)
	v.SetDefault("http.shutdown_timeout", "10s")

	v.SetDefault("ton.min_donation_ton", 1.0)
	v.SetDefault("ton.lookback", "15m")
	v.SetDefault("ton.donation_text", "Thanks for your work!")

	v.SetDefault("price.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("price.currency", "ils")
	v.SetDefault("price.cache_ttl", "60s")
	v.SetDefault("price.request_timeout", "10s")
	v.SetDefault("price.user_agent", "tondonate/1.0")

	v.SetDefault("providers.page_limit", 50)
	v.SetDefault("providers.tonapi.base_url", "https://tonapi.io")
	v.SetDefault("providers.tonapi.request_timeout", "10s")
	v.SetDefault("providers.toncenter.base_url", "https://toncenter.com")
	v.SetDefault("providers.toncenter.request_timeout", "10s")

	v.SetDefault("worker.enabled", false)
	v.SetDefault("worker.interval", "2m")
	v.SetDefault("worker.startup_delay", "0s")
	v.SetDefault("worker.advisory_lock_key", int64(0x746f6e64))
	v.SetDefault("worker.recheck_window", "90m")

	v.SetDefault("notify.telegram.enabled", false)
	v.SetDefault("notify.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Ton.MinDonationTon <= 0 {
		return fmt.Errorf("ton.min_donation_ton must be greater than zero")
	}
	if c.Ton.Lookback <= 0 {
		return fmt.Errorf("ton.lookback must be greater than zero")
	}
	if c.Price.CacheTTL <= 0 {
		return fmt.Errorf("price.cache_ttl must be greater than zero")
	}
	if c.Providers.PageLimit <= 0 {
		return fmt.Errorf("providers.page_limit must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Worker.Enabled && c.Worker.Interval <= 0 {
		return fmt.Errorf("worker.interval must be greater than zero")
	}
	if c.Notify.Telegram.Enabled {
		if c.Notify.Telegram.BotToken == "" {
			return fmt.Errorf("notify.telegram.bot_token must be configured")
		}
		if c.Notify.Telegram.ChatID == "" {
			return fmt.Errorf("notify.telegram.chat_id must be configured")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
