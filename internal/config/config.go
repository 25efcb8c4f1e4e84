package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Indexer    IndexerConfig    `mapstructure:"indexer"`
	Resolution ResolutionConfig `mapstructure:"resolution"`
	Nautilus   NautilusConfig   `mapstructure:"nautilus"`
	DataSource DataSourceConfig `mapstructure:"datasource"`
	Price      PriceConfig      `mapstructure:"price"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Feed       FeedConfig       `mapstructure:"feed"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string        `mapstructure:"level"`
	Encoding          string        `mapstructure:"encoding"`
	Development       bool          `mapstructure:"development"`
	Sampling          bool          `mapstructure:"sampling"`
	DisableCaller     bool          `mapstructure:"disable_caller"`
	DisableStacktrace bool          `mapstructure:"disable_stacktrace"`
	File              LogFileConfig `mapstructure:"file"`
}

// LogFileConfig enables an additional rotated JSON sink when Path is set.
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type DBConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=postgres memory"`
	DSN             string        `mapstructure:"dsn" validate:"required_if=Driver postgres"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`

	SlowQueryThreshold time.Duration `mapstructure:"slow_query_threshold"`
}

type LedgerConfig struct {
	RPCURL             string        `mapstructure:"rpc_url" validate:"required,url"`
	PackageID          string        `mapstructure:"package_id" validate:"required"`
	MarketStateID      string        `mapstructure:"market_state_id"`
	RegistryID         string        `mapstructure:"registry_id"`
	SuilendStateID     string        `mapstructure:"suilend_state_id"`
	HaedalStateID      string        `mapstructure:"haedal_state_id"`
	VoloStateID        string        `mapstructure:"volo_state_id"`
	NautilusRegistryID string        `mapstructure:"nautilus_registry_id"`
	CoinType           string        `mapstructure:"coin_type"`
	PrivateKey         string        `mapstructure:"private_key"`
	GasBudget          uint64        `mapstructure:"gas_budget"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	RateLimitRPS       float64       `mapstructure:"rate_limit_rps"`
	RateBurst          int           `mapstructure:"rate_burst"`
}

type IndexerConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	PageLimit         int           `mapstructure:"page_limit"`
	Concurrency       int           `mapstructure:"concurrency"`
	RestartBackoff    time.Duration `mapstructure:"restart_backoff"`
	MaxRestartBackoff time.Duration `mapstructure:"max_restart_backoff"`
}

// Default outcome policies applied when manual resolution finds no signal.
const (
	DefaultOutcomeNo         = "default_no"
	DefaultOutcomeUnresolved = "leave_unresolved"
)

type ResolutionConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	SweepSpec            string        `mapstructure:"sweep_spec"`
	BatchSize            int           `mapstructure:"batch_size"`
	MaxRetries           int           `mapstructure:"max_retries"`
	RetryBaseDelay       time.Duration `mapstructure:"retry_base_delay"`
	SkewThreshold        float64       `mapstructure:"skew_threshold" validate:"gte=0.5,lte=1"`
	DefaultOutcomePolicy string        `mapstructure:"default_outcome_policy" validate:"oneof=default_no leave_unresolved"`
	NautilusEnabled      bool          `mapstructure:"nautilus_enabled"`
}

type NautilusConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	HealthTimeout time.Duration `mapstructure:"health_timeout"`
}

type DataSourceConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

type PriceConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	RefreshSpec string        `mapstructure:"refresh_spec"`
	TTL         time.Duration `mapstructure:"ttl"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type CacheConfig struct {
	Backend       string `mapstructure:"backend" validate:"oneof=memory redis"`
	RedisAddr     string `mapstructure:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	KeyPrefix     string `mapstructure:"key_prefix"`
}

type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Bucket  string `mapstructure:"bucket" validate:"required_if=Enabled true"`
	Region  string `mapstructure:"region"`
	Prefix  string `mapstructure:"prefix"`

	// Endpoint targets S3-compatible stores such as MinIO.
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret" validate:"required_if=Enabled true"`
}

type FeedConfig struct {
	Buffer int `mapstructure:"buffer"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	setDefaults(v)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("log.file.path", "")
	v.SetDefault("log.file.max_size_mb", 100)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.max_age_days", 14)
	v.SetDefault("log.file.compress", true)
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("db.slow_query_threshold", "500ms")

	v.SetDefault("ledger.rpc_url", "https://fullnode.testnet.sui.io:443")
	v.SetDefault("ledger.package_id", "")
	v.SetDefault("ledger.market_state_id", "")
	v.SetDefault("ledger.registry_id", "")
	v.SetDefault("ledger.suilend_state_id", "")
	v.SetDefault("ledger.haedal_state_id", "")
	v.SetDefault("ledger.volo_state_id", "")
	v.SetDefault("ledger.nautilus_registry_id", "")
	v.SetDefault("ledger.coin_type", "0x2::sui::SUI")
	v.SetDefault("ledger.private_key", "")
	v.SetDefault("ledger.gas_budget", 100000000)
	v.SetDefault("ledger.request_timeout", "30s")
	v.SetDefault("ledger.rate_limit_rps", 20)
	v.SetDefault("ledger.rate_burst", 40)

	v.SetDefault("indexer.enabled", true)
	v.SetDefault("indexer.poll_interval", "1s")
	v.SetDefault("indexer.page_limit", 50)
	v.SetDefault("indexer.concurrency", 8)
	v.SetDefault("indexer.restart_backoff", "2s")
	v.SetDefault("indexer.max_restart_backoff", "1m")

	v.SetDefault("resolution.enabled", true)
	v.SetDefault("resolution.sweep_spec", "@every 60s")
	v.SetDefault("resolution.batch_size", 10)
	v.SetDefault("resolution.max_retries", 3)
	v.SetDefault("resolution.retry_base_delay", "1s")
	v.SetDefault("resolution.skew_threshold", 0.6)
	v.SetDefault("resolution.default_outcome_policy", DefaultOutcomeNo)
	v.SetDefault("resolution.nautilus_enabled", false)

	v.SetDefault("nautilus.base_url", "http://localhost:8080")
	v.SetDefault("nautilus.timeout", "30s")
	v.SetDefault("nautilus.health_timeout", "5s")

	v.SetDefault("datasource.timeout", "10s")
	v.SetDefault("datasource.user_agent", "Prophyt-Market-Resolver/1.0")

	v.SetDefault("price.enabled", true)
	v.SetDefault("price.refresh_spec", "@every 1h")
	v.SetDefault("price.ttl", "1h")
	v.SetDefault("price.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("price.timeout", "10s")

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.key_prefix", "prophyt:")

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.prefix", "prophyt")
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.use_path_style", false)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("feed.buffer", 256)
}
