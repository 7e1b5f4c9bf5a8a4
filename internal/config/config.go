// Package config loads application settings from config.yaml and UNIDIR_*
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Import   ImportConfig   `yaml:"import" mapstructure:"import"`
	Localize LocalizeConfig `yaml:"localize" mapstructure:"localize"`
	Match    MatchConfig    `yaml:"match" mapstructure:"match"`
	Geo      GeoConfig      `yaml:"geo" mapstructure:"geo"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Schedule ScheduleConfig `yaml:"schedule" mapstructure:"schedule"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend. For sqlite, DatabaseURL is
// the database file path.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ImportConfig configures the bulk feed import.
type ImportConfig struct {
	SourceURL string   `yaml:"source_url" mapstructure:"source_url"`
	BatchSize int      `yaml:"batch_size" mapstructure:"batch_size"`
	Tags      []string `yaml:"tags" mapstructure:"tags"`
}

// LocalizeConfig configures Japanese name enrichment.
type LocalizeConfig struct {
	CSVURL   string `yaml:"csv_url" mapstructure:"csv_url"`
	JSONPath string `yaml:"json_path" mapstructure:"json_path"`
	PageSize int    `yaml:"page_size" mapstructure:"page_size"`
}

// MatchConfig configures fuzzy name matching.
type MatchConfig struct {
	Threshold float64 `yaml:"threshold" mapstructure:"threshold"`
}

// GeoConfig configures coordinate enrichment against the ROR API.
type GeoConfig struct {
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	ContactEmail     string `yaml:"contact_email" mapstructure:"contact_email"`
	DelayMs          int    `yaml:"delay_ms" mapstructure:"delay_ms"`
	BackoffMs        int    `yaml:"backoff_ms" mapstructure:"backoff_ms"`
	MaxRetries       int    `yaml:"max_retries" mapstructure:"max_retries"`
	PageSize         int    `yaml:"page_size" mapstructure:"page_size"`
	Workers          int    `yaml:"workers" mapstructure:"workers"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	BreakerThreshold int    `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
}

// Delay returns the politeness delay between API calls.
func (g GeoConfig) Delay() time.Duration { return time.Duration(g.DelayMs) * time.Millisecond }

// Backoff returns the pause applied after a 429.
func (g GeoConfig) Backoff() time.Duration { return time.Duration(g.BackoffMs) * time.Millisecond }

// Timeout returns the per-request HTTP timeout.
func (g GeoConfig) Timeout() time.Duration { return time.Duration(g.TimeoutSecs) * time.Second }

// FetchConfig configures source downloads.
type FetchConfig struct {
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
	// RatePerSec is the starting request rate per source host. It adapts
	// downward on 429 responses.
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	AdminToken  string   `yaml:"admin_token" mapstructure:"admin_token"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// ScheduleConfig holds cron specs for the recurring enrichers. An empty
// spec disables that job.
type ScheduleConfig struct {
	Localize string `yaml:"localize" mapstructure:"localize"`
	Geo      string `yaml:"geo" mapstructure:"geo"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("UNIDIR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key is registered so AutomaticEnv can override it.
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "university.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("import.source_url", "https://raw.githubusercontent.com/Hipo/university-domains-list/master/world_universities_and_domains.json")
	v.SetDefault("import.batch_size", 100)
	v.SetDefault("import.tags", []string{})
	v.SetDefault("localize.csv_url", "")
	v.SetDefault("localize.json_path", "")
	v.SetDefault("localize.page_size", 200)
	v.SetDefault("match.threshold", 0.85)
	v.SetDefault("geo.base_url", "https://api.ror.org/v2")
	v.SetDefault("geo.contact_email", "")
	v.SetDefault("geo.delay_ms", 100)
	v.SetDefault("geo.backoff_ms", 1000)
	v.SetDefault("geo.max_retries", 1)
	v.SetDefault("geo.page_size", 100)
	v.SetDefault("geo.workers", 1)
	v.SetDefault("geo.timeout_secs", 30)
	v.SetDefault("geo.breaker_threshold", 5)
	v.SetDefault("fetch.user_agent", "university-cli/1.0")
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.rate_per_sec", 5.0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.admin_token", "")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("schedule.localize", "")
	v.SetDefault("schedule.geo", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes: migrate,
// stats, import, localize, geo, serve, schedule.
func (c *Config) Validate(mode string) error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			add("store.database_url is required")
		}
	default:
		add("store.driver must be sqlite or postgres, got %q", c.Store.Driver)
	}

	validateLocalize := func() {
		if c.Localize.CSVURL == "" && c.Localize.JSONPath == "" {
			add("localize.csv_url or localize.json_path is required")
		}
		if c.Match.Threshold <= 0 || c.Match.Threshold > 1 {
			add("match.threshold must be in (0, 1], got %v", c.Match.Threshold)
		}
	}
	validateGeo := func() {
		if c.Geo.BaseURL == "" {
			add("geo.base_url is required")
		}
		if c.Geo.DelayMs < 0 || c.Geo.BackoffMs < 0 {
			add("geo.delay_ms and geo.backoff_ms must be >= 0")
		}
		if c.Geo.MaxRetries < 0 {
			add("geo.max_retries must be >= 0")
		}
		if c.Geo.Workers < 1 || c.Geo.Workers > 32 {
			add("geo.workers must be between 1 and 32")
		}
	}

	switch mode {
	case "migrate", "stats":
	case "import":
		if c.Import.SourceURL == "" {
			add("import.source_url is required")
		}
		if c.Import.BatchSize < 1 || c.Import.BatchSize > 10000 {
			add("import.batch_size must be between 1 and 10000")
		}
	case "localize":
		validateLocalize()
	case "geo":
		validateGeo()
	case "serve":
		if c.Server.Port <= 0 {
			add("server.port must be > 0")
		}
	case "schedule":
		if c.Schedule.Localize == "" && c.Schedule.Geo == "" {
			add("schedule.localize or schedule.geo is required")
		}
		if c.Schedule.Localize != "" {
			validateLocalize()
		}
		if c.Schedule.Geo != "" {
			validateGeo()
		}
	default:
		add("unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
