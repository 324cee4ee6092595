package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tejusbharadwaj/spotprice/internal/models"
)

// EnvPrefix prefixes environment overrides, e.g. SPOTPRICE_SERVER_PORT.
const EnvPrefix = "SPOTPRICE"

// Config holds all configuration for the service
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Areas    []AreaConfig   `mapstructure:"areas"`
	Sources  SourcesConfig  `mapstructure:"sources"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	MetricsPort int           `mapstructure:"metrics_port"`
	RateLimit   float64       `mapstructure:"rate_limit"`
	RateBurst   int           `mapstructure:"rate_burst"`
	CacheSize   int           `mapstructure:"cache_size"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

type PipelineConfig struct {
	IntervalMinutes       int           `mapstructure:"interval_minutes"`
	MinFetchInterval      time.Duration `mapstructure:"min_fetch_interval"`
	MaxBackoffExponent    int           `mapstructure:"max_backoff_exponent"`
	FetchTimeout          time.Duration `mapstructure:"fetch_timeout"`
	Mode                  string        `mapstructure:"mode"`
	MaxWorkers            int           `mapstructure:"max_workers"`
	CacheSize             int           `mapstructure:"cache_size"`
	CacheTTL              time.Duration `mapstructure:"cache_ttl"`
	MaxCacheAge           time.Duration `mapstructure:"max_cache_age"`
	CompletenessThreshold float64       `mapstructure:"completeness_threshold"`
	PublicationWindow     string        `mapstructure:"publication_window"`
}

// PublicationClock returns the hour and minute of the publication window.
func (p PipelineConfig) PublicationClock() (int, int, error) {
	t, err := time.Parse("15:04", p.PublicationWindow)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: publication_window %q: %v", models.ErrConfiguration, p.PublicationWindow, err)
	}
	return t.Hour(), t.Minute(), nil
}

type AreaConfig struct {
	Name        string   `mapstructure:"name"`
	Timezone    string   `mapstructure:"timezone"`
	Currency    string   `mapstructure:"currency"`
	VATRate     float64  `mapstructure:"vat_rate"`
	IncludeVAT  bool     `mapstructure:"include_vat"`
	DisplayUnit string   `mapstructure:"display_unit"`
	EnergyUnit  string   `mapstructure:"energy_unit"`
	Sources     []string `mapstructure:"sources"`
}

// Settings converts the area entry into conversion settings.
func (a AreaConfig) Settings(intervalMinutes int) models.AreaSettings {
	unit := models.DisplayDecimal
	if strings.EqualFold(a.DisplayUnit, string(models.DisplayCents)) {
		unit = models.DisplayCents
	}
	return models.AreaSettings{
		Area:            a.Name,
		Timezone:        a.Timezone,
		Currency:        strings.ToUpper(a.Currency),
		VATRate:         a.VATRate,
		IncludeVAT:      a.IncludeVAT,
		DisplayUnit:     unit,
		EnergyUnit:      a.EnergyUnit,
		IntervalMinutes: intervalMinutes,
	}
}

// SourceKinds returns the configured sources in priority order.
func (a AreaConfig) SourceKinds() []models.SourceKind {
	kinds := make([]models.SourceKind, 0, len(a.Sources))
	for _, s := range a.Sources {
		kinds = append(kinds, models.SourceKind(strings.ToLower(s)))
	}
	return kinds
}

type SourcesConfig struct {
	EnergyCharts EnergyChartsConfig `mapstructure:"energy_charts"`
	CSVFeed      CSVFeedConfig      `mapstructure:"csv_feed"`
	Static       StaticConfig       `mapstructure:"static"`
}

type EnergyChartsConfig struct {
	BaseURL string            `mapstructure:"base_url"`
	Zones   map[string]string `mapstructure:"zones"`
}

// Zone returns the bidding zone queried for area. Keys are matched case
// insensitively since viper lower-cases them.
func (e EnergyChartsConfig) Zone(area string) string {
	for k, v := range e.Zones {
		if strings.EqualFold(k, area) {
			return v
		}
	}
	return area
}

// CSVFeedConfig describes a vendor CSV feed. URL and Path may contain an
// {area} placeholder; URL wins when both are set.
type CSVFeedConfig struct {
	URL             string `mapstructure:"url"`
	Path            string `mapstructure:"path"`
	Currency        string `mapstructure:"currency"`
	Unit            string `mapstructure:"unit"`
	Timezone        string `mapstructure:"timezone"`
	IntervalMinutes int    `mapstructure:"interval_minutes"`
}

// StaticConfig feeds the static source: Prices repeat over every interval.
type StaticConfig struct {
	Currency        string    `mapstructure:"currency"`
	Unit            string    `mapstructure:"unit"`
	IntervalMinutes int       `mapstructure:"interval_minutes"`
	Prices          []float64 `mapstructure:"prices"`
}

type ExchangeConfig struct {
	Provider   string             `mapstructure:"provider"`
	Base       string             `mapstructure:"base"`
	Rates      map[string]float64 `mapstructure:"rates"`
	ECBURL     string             `mapstructure:"ecb_url"`
	RefreshTTL time.Duration      `mapstructure:"refresh_ttl"`
}

type StorageConfig struct {
	Driver   string         `mapstructure:"driver"`
	Postgres DatabaseConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type DatabaseConfig struct {
	Host              string `mapstructure:"host"`
	Port              int    `mapstructure:"port"`
	Name              string `mapstructure:"name"`
	User              string `mapstructure:"user"`
	Password          string `mapstructure:"password"`
	SSLMode           string `mapstructure:"ssl_mode"`
	MaxConnections    int    `mapstructure:"max_connections"`
	ConnectionTimeout int    `mapstructure:"connection_timeout"`
}

// DSN renders the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode, d.ConnectionTimeout)
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type ScheduleConfig struct {
	Refresh  string `mapstructure:"refresh"`
	Rollover bool   `mapstructure:"rollover"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// First unmarshal into a map to handle type conversions
	var rawConfig map[string]interface{}
	if err := yaml.Unmarshal(data, &rawConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal raw config: %w", err)
	}

	// Convert the map to YAML again
	data, err = yaml.Marshal(rawConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal raw config: %w", err)
	}

	// Expand environment variables
	expandedData := os.ExpandEnv(string(data))

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadConfig(bytes.NewBufferString(expandedData)); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 50051)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.rate_limit", 10)
	v.SetDefault("server.rate_burst", 20)
	v.SetDefault("server.cache_size", 256)
	v.SetDefault("server.cache_ttl", 30*time.Second)

	v.SetDefault("pipeline.interval_minutes", 15)
	v.SetDefault("pipeline.min_fetch_interval", 15*time.Minute)
	v.SetDefault("pipeline.max_backoff_exponent", 4)
	v.SetDefault("pipeline.fetch_timeout", 30*time.Second)
	v.SetDefault("pipeline.mode", "sequential")
	v.SetDefault("pipeline.max_workers", 2)
	v.SetDefault("pipeline.cache_size", 64)
	v.SetDefault("pipeline.cache_ttl", 48*time.Hour)
	v.SetDefault("pipeline.max_cache_age", 0)
	v.SetDefault("pipeline.completeness_threshold", 0.8)
	v.SetDefault("pipeline.publication_window", "13:00")

	v.SetDefault("sources.energy_charts.base_url", "https://api.energy-charts.info")
	v.SetDefault("sources.csv_feed.currency", "EUR")
	v.SetDefault("sources.csv_feed.unit", "MWh")
	v.SetDefault("sources.csv_feed.timezone", "UTC")
	v.SetDefault("sources.csv_feed.interval_minutes", 60)
	v.SetDefault("sources.static.currency", "EUR")
	v.SetDefault("sources.static.unit", "MWh")
	v.SetDefault("sources.static.interval_minutes", 60)

	v.SetDefault("exchange.provider", "static")
	v.SetDefault("exchange.base", "EUR")
	v.SetDefault("exchange.refresh_ttl", 6*time.Hour)

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.postgres.port", 5432)
	v.SetDefault("storage.postgres.ssl_mode", "disable")
	v.SetDefault("storage.postgres.max_connections", 10)
	v.SetDefault("storage.postgres.connection_timeout", 5)
	v.SetDefault("storage.sqlite.path", "spotprice.db")
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.key_prefix", "spotprice:")
	v.SetDefault("storage.redis.ttl", 72*time.Hour)

	v.SetDefault("schedule.refresh", "*/15 * * * *")
	v.SetDefault("schedule.rollover", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 28)
}
