package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"rate-ledger/internal/logging"
)

// Source kinds.
const (
	SourceCoinbase = "coinbase"
	SourceOnchain  = "onchain"
)

// Cache backends.
const (
	CacheMemory   = "memory"
	CachePostgres = "postgres"
	CacheRedis    = "redis"
)

// Config materialises application configuration.
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Logging      logging.Config     `mapstructure:"logging"`
	Source       SourceConfig       `mapstructure:"source"`
	Ethereum     EthereumConfig     `mapstructure:"ethereum"`
	Sync         SyncConfig         `mapstructure:"sync"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	Ledger       LedgerConfig       `mapstructure:"ledger"`
	Relay        RelayConfig        `mapstructure:"relay"`
	Alerting     AlertingConfig     `mapstructure:"alerting"`
	Export       ExportConfig       `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Pair        string `mapstructure:"pair"`
}

// SourceConfig selects and tunes the quote source.
type SourceConfig struct {
	Kind           string        `mapstructure:"kind"`
	BaseURL        string        `mapstructure:"base_url"`
	Currency       string        `mapstructure:"currency"`
	JSONPath       string        `mapstructure:"json_path"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// EthereumConfig covers the on-chain source.
type EthereumConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	VaultAddress   string        `mapstructure:"vault_address"`
	Decimals       int32         `mapstructure:"decimals"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// SyncConfig governs the refresh cadence and listener fan-out.
type SyncConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToClock    bool          `mapstructure:"align_to_clock"`
	FanoutListeners int           `mapstructure:"fanout_listeners"`
}

// CacheConfig picks the last-known-good store.
type CacheConfig struct {
	Backend string `mapstructure:"backend"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig encapsulates Redis connectivity.
type RedisConfig struct {
	Addrs     []string      `mapstructure:"addrs"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// ConnectivityConfig tunes the reachability prober.
type ConnectivityConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LedgerConfig controls the on-disk event archive.
type LedgerConfig struct {
	Path      string        `mapstructure:"path"`
	Retention time.Duration `mapstructure:"retention"`
	Pretty    bool          `mapstructure:"pretty"`
}

// RelayConfig controls publishing ledger events to Kafka.
type RelayConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// AlertingConfig defines alert thresholds and routing.
type AlertingConfig struct {
	Enabled      bool           `mapstructure:"enabled"`
	ThresholdPct float64        `mapstructure:"threshold_pct"`
	Telegram     TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RATELEDGER")
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
	v.SetDefault("app.name", "rateledger")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.pair", "BTC-USD")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("source.kind", SourceCoinbase)
	v.SetDefault("source.base_url", "https://api.coinbase.com/v2")
	v.SetDefault("source.currency", "BTC")
	v.SetDefault("source.json_path", "$.data.rates.USD")
	v.SetDefault("source.request_timeout", "10s")

	v.SetDefault("ethereum.decimals", 18)
	v.SetDefault("ethereum.request_timeout", "10s")

	v.SetDefault("sync.interval", "60s")
	v.SetDefault("sync.align_to_clock", false)
	v.SetDefault("sync.fanout_listeners", 30)

	v.SetDefault("cache.backend", CacheMemory)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("redis.addrs", []string{"127.0.0.1:6379"})
	v.SetDefault("redis.key_prefix", "rateledger:")
	v.SetDefault("redis.ttl", "0s")

	v.SetDefault("connectivity.enabled", true)
	v.SetDefault("connectivity.address", "api.coinbase.com:443")
	v.SetDefault("connectivity.interval", "15s")
	v.SetDefault("connectivity.timeout", "3s")

	v.SetDefault("ledger.path", "ledger.json")
	v.SetDefault("ledger.retention", "720h")
	v.SetDefault("ledger.pretty", true)

	v.SetDefault("relay.enabled", false)
	v.SetDefault("relay.topic", "rateledger.events")
	v.SetDefault("relay.batch_timeout", "1s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.threshold_pct", 1.0)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")

	v.SetDefault("export.max_data_points", 100000)
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
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be greater than zero")
	}
	if c.Sync.FanoutListeners < 0 {
		return fmt.Errorf("sync.fanout_listeners cannot be negative")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}

	switch c.Source.Kind {
	case SourceCoinbase:
		if c.Source.BaseURL == "" {
			return fmt.Errorf("source.base_url is required for the coinbase source")
		}
	case SourceOnchain:
		if c.Ethereum.RPCURL == "" || c.Ethereum.VaultAddress == "" {
			return fmt.Errorf("ethereum.rpc_url and ethereum.vault_address are required for the onchain source")
		}
	default:
		return fmt.Errorf("source.kind %q is not supported", c.Source.Kind)
	}

	switch c.Cache.Backend {
	case CacheMemory:
	case CachePostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres cache")
		}
	case CacheRedis:
		if len(c.Redis.Addrs) == 0 {
			return fmt.Errorf("redis.addrs is required for the redis cache")
		}
	default:
		return fmt.Errorf("cache.backend %q is not supported", c.Cache.Backend)
	}

	if c.Connectivity.Enabled && c.Connectivity.Address == "" {
		return fmt.Errorf("connectivity.address is required when connectivity is enabled")
	}
	if c.Ledger.Retention < 0 {
		return fmt.Errorf("ledger.retention cannot be negative")
	}
	if c.Relay.Enabled {
		if len(c.Relay.Brokers) == 0 {
			return fmt.Errorf("relay.brokers is required when relay is enabled")
		}
		if c.Relay.Topic == "" {
			return fmt.Errorf("relay.topic is required when relay is enabled")
		}
	}
	if c.Alerting.ThresholdPct < 0 {
		return fmt.Errorf("alerting.threshold_pct cannot be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
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
