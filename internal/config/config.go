// Package config provides configuration management using Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jobrunner/sceneport/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Export    ExportConfig    `mapstructure:"export"`
	Admission AdmissionConfig `mapstructure:"admission"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Geometry  GeometryConfig  `mapstructure:"geometry"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Events    EventsConfig    `mapstructure:"events"`
	Watch     WatchConfig     `mapstructure:"watch"`
	TLS       TLSConfig       `mapstructure:"tls"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	FrontendEnabled bool          `mapstructure:"frontend_enabled"`
	CORS            CORSConfig    `mapstructure:"cors"`

	// MetricsPath is copied from the metrics section when metrics are
	// served by the API server.
	MetricsPath string `mapstructure:"-"`
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"` // e.g., ["https://example.com", "*.sub.domain.tld"]
}

// Enabled returns true if CORS is configured with at least one allowed origin.
func (c *CORSConfig) Enabled() bool {
	return len(c.AllowedOrigins) > 0
}

// ExportConfig holds what is exported for each location.
type ExportConfig struct {
	Collection       string        `mapstructure:"collection"`
	DateStart        string        `mapstructure:"date_start"` // YYYY-MM-DD, inclusive
	DateEnd          string        `mapstructure:"date_end"`   // YYYY-MM-DD, inclusive
	PatchExtentM     float64       `mapstructure:"patch_extent_m"`
	ImageSize        int           `mapstructure:"image_size"`
	FirstSubmitPause time.Duration `mapstructure:"first_submit_pause"`
}

// DateRange parses the configured dates.
func (c ExportConfig) DateRange() (domain.DateRange, error) {
	return domain.ParseDateRange(c.DateStart, c.DateEnd)
}

// AdmissionConfig holds the job ceiling and polling behavior.
type AdmissionConfig struct {
	MaxActive          int           `mapstructure:"max_active"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	MaxWait            time.Duration `mapstructure:"max_wait"` // 0 waits forever
	PollRetries        uint64        `mapstructure:"poll_retries"`
	PollBackoffInitial time.Duration `mapstructure:"poll_backoff_initial"`
	PollBackoffMax     time.Duration `mapstructure:"poll_backoff_max"`
}

// RemoteConfig selects the catalog and job service.
type RemoteConfig struct {
	Type        string            `mapstructure:"type"` // earthengine, simulated
	EarthEngine EarthEngineConfig `mapstructure:"earthengine"`
	Simulated   SimulatedConfig   `mapstructure:"simulated"`
}

// EarthEngineConfig holds Earth Engine REST API configuration.
type EarthEngineConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Project           string        `mapstructure:"project"`
	AccessToken       string        `mapstructure:"access_token"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	Timeout           time.Duration `mapstructure:"timeout"`
	PageSize          int           `mapstructure:"page_size"`
}

// SimulatedConfig tunes the in-memory catalog and job service.
type SimulatedConfig struct {
	RevisitDays   int `mapstructure:"revisit_days"`
	MaxScenes     int `mapstructure:"max_scenes"`
	CompleteAfter int `mapstructure:"complete_after"`
}

// GeometryConfig selects the coordinate transformer.
type GeometryConfig struct {
	Transformer string `mapstructure:"transformer"` // utm, spatialite
}

// StorageConfig holds object storage configuration for location files.
type StorageConfig struct {
	Type      string      `mapstructure:"type"` // s3, azure, http, local
	LocalPath string      `mapstructure:"local_path"`
	S3        S3Config    `mapstructure:"s3"`
	Azure     AzureConfig `mapstructure:"azure"`
	HTTP      HTTPConfig  `mapstructure:"http"`
}

// S3Config holds AWS S3 configuration.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Prefix          string `mapstructure:"prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// AzureConfig holds Azure Blob Storage configuration.
type AzureConfig struct {
	Container        string `mapstructure:"container"`
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	ConnectionString string `mapstructure:"connection_string"`
	Prefix           string `mapstructure:"prefix"`
}

// HTTPConfig holds HTTP download configuration.
type HTTPConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	IndexFile string        `mapstructure:"index_file"` // default: index.txt
	Timeout   time.Duration `mapstructure:"timeout"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
}

// LedgerConfig holds the SQLite job ledger configuration.
type LedgerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// EventsConfig holds the NATS publisher configuration.
type EventsConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// WatchConfig holds inbox watching and storage sync configuration.
type WatchConfig struct {
	Debounce     time.Duration `mapstructure:"debounce"`
	SyncInterval time.Duration `mapstructure:"sync_interval"`
	QueueSize    int           `mapstructure:"queue_size"`
}

// TLSConfig holds TLS/CertMagic configuration.
type TLSConfig struct {
	Enabled  bool         `mapstructure:"enabled"`
	Domains  []string     `mapstructure:"domains"`
	Email    string       `mapstructure:"email"`
	CacheDir string       `mapstructure:"cache_dir"`
	Staging  bool         `mapstructure:"staging"` // Use Let's Encrypt staging
	DNS      TLSDNSConfig `mapstructure:"dns"`
}

// TLSDNSConfig holds Azure DNS settings for the DNS-01 challenge.
type TLSDNSConfig struct {
	SubscriptionID    string `mapstructure:"subscription_id"`
	ResourceGroupName string `mapstructure:"resource_group_name"`
	ClientID          string `mapstructure:"client_id"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
}

// Defaults sets the default configuration values.
func Defaults() {
	// Server defaults
	viper.SetDefault("server.enabled", true)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)
	viper.SetDefault("server.frontend_enabled", true)
	viper.SetDefault("server.cors.allowed_origins", []string{})

	// Export defaults
	viper.SetDefault("export.collection", "LANDSAT/LC08/C01/T1_SR")
	viper.SetDefault("export.date_start", "2013-01-01")
	viper.SetDefault("export.date_end", "2019-12-31")
	viper.SetDefault("export.patch_extent_m", 6000.0)
	viper.SetDefault("export.image_size", 200)
	viper.SetDefault("export.first_submit_pause", 30*time.Second)

	// Admission defaults; the remote service caps a project at 3000 jobs
	viper.SetDefault("admission.max_active", 2000)
	viper.SetDefault("admission.poll_interval", 10*time.Second)
	viper.SetDefault("admission.max_wait", time.Duration(0))
	viper.SetDefault("admission.poll_retries", 5)
	viper.SetDefault("admission.poll_backoff_initial", time.Second)
	viper.SetDefault("admission.poll_backoff_max", 30*time.Second)

	// Remote defaults
	viper.SetDefault("remote.type", "earthengine")
	viper.SetDefault("remote.earthengine.base_url", "https://earthengine.googleapis.com")
	viper.SetDefault("remote.earthengine.requests_per_second", 10.0)
	viper.SetDefault("remote.earthengine.burst", 1)
	viper.SetDefault("remote.earthengine.timeout", time.Minute)
	viper.SetDefault("remote.earthengine.page_size", 1000)
	viper.SetDefault("remote.simulated.revisit_days", 16)
	viper.SetDefault("remote.simulated.complete_after", 2)

	viper.SetDefault("geometry.transformer", "utm")

	// Storage defaults
	viper.SetDefault("storage.type", "local")
	viper.SetDefault("storage.local_path", "./inbox")
	viper.SetDefault("storage.http.index_file", "index.txt")
	viper.SetDefault("storage.http.timeout", 5*time.Minute)

	viper.SetDefault("ledger.enabled", true)
	viper.SetDefault("ledger.path", "./data/ledger.db")

	viper.SetDefault("events.enabled", false)
	viper.SetDefault("events.url", "nats://127.0.0.1:4222")
	viper.SetDefault("events.subject_prefix", "sceneport")

	viper.SetDefault("watch.debounce", 500*time.Millisecond)
	viper.SetDefault("watch.sync_interval", 5*time.Minute)
	viper.SetDefault("watch.queue_size", 64)

	// TLS defaults
	viper.SetDefault("tls.enabled", false)
	viper.SetDefault("tls.cache_dir", "./.certmagic")
	viper.SetDefault("tls.staging", false)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// Load loads configuration from environment and config file.
func Load(configPath string) (*Config, error) {
	Defaults()

	// Environment variable binding
	viper.SetEnvPrefix("SCENEPORT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Config file
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/sceneport")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if cfg.Metrics.Enabled {
		cfg.Server.MetricsPath = cfg.Metrics.Path
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Enabled && (c.Server.Port < 1 || c.Server.Port > 65535) {
		return &domain.ConfigError{Field: "server.port", Message: fmt.Sprintf("invalid port %d", c.Server.Port)}
	}

	if c.TLS.Enabled {
		if len(c.TLS.Domains) == 0 {
			return &domain.ConfigError{Field: "tls.domains", Message: "TLS enabled but no domains specified"}
		}
		if c.TLS.Email == "" {
			return &domain.ConfigError{Field: "tls.email", Message: "TLS enabled but no email specified"}
		}
	}

	if err := c.validateExport(); err != nil {
		return err
	}

	switch c.Remote.Type {
	case "earthengine":
		if c.Remote.EarthEngine.Project == "" {
			return &domain.ConfigError{Field: "remote.earthengine.project", Message: "project is required"}
		}
	case "simulated":
	default:
		return &domain.ConfigError{Field: "remote.type", Message: "unknown remote type: " + c.Remote.Type}
	}

	switch c.Geometry.Transformer {
	case "utm", "spatialite":
	default:
		return &domain.ConfigError{Field: "geometry.transformer", Message: "unknown transformer: " + c.Geometry.Transformer}
	}

	if c.Ledger.Enabled && c.Ledger.Path == "" {
		return &domain.ConfigError{Field: "ledger.path", Message: "ledger path is required"}
	}
	if c.Events.Enabled && c.Events.URL == "" {
		return &domain.ConfigError{Field: "events.url", Message: "NATS URL is required"}
	}
	if c.Watch.SyncInterval <= 0 {
		return &domain.ConfigError{Field: "watch.sync_interval", Message: "sync interval must be positive"}
	}

	return c.validateStorage()
}

func (c *Config) validateExport() error {
	if c.Export.Collection == "" {
		return &domain.ConfigError{Field: "export.collection", Message: "collection is required"}
	}
	if _, err := c.Export.DateRange(); err != nil {
		return &domain.ConfigError{Field: "export.date_start", Message: err.Error()}
	}
	if c.Export.PatchExtentM <= 0 {
		return &domain.ConfigError{Field: "export.patch_extent_m", Message: "extent must be positive"}
	}
	if c.Export.ImageSize <= 0 {
		return &domain.ConfigError{Field: "export.image_size", Message: "image size must be positive"}
	}
	if c.Admission.MaxActive <= 0 {
		return &domain.ConfigError{Field: "admission.max_active", Message: "ceiling must be positive"}
	}
	if c.Admission.PollInterval <= 0 {
		return &domain.ConfigError{Field: "admission.poll_interval", Message: "poll interval must be positive"}
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Type {
	case "local":
		if c.Storage.LocalPath == "" {
			return &domain.ConfigError{Field: "storage.local_path", Message: "local storage path is required"}
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return &domain.ConfigError{Field: "storage.s3.bucket", Message: "S3 bucket is required"}
		}
		if c.Storage.S3.Region == "" {
			return &domain.ConfigError{Field: "storage.s3.region", Message: "S3 region is required"}
		}
	case "azure":
		if c.Storage.Azure.Container == "" {
			return &domain.ConfigError{Field: "storage.azure.container", Message: "azure container is required"}
		}
		if c.Storage.Azure.AccountName == "" && c.Storage.Azure.ConnectionString == "" {
			return &domain.ConfigError{Field: "storage.azure", Message: "azure account name or connection string is required"}
		}
	case "http":
		if c.Storage.HTTP.BaseURL == "" {
			return &domain.ConfigError{Field: "storage.http.base_url", Message: "HTTP base URL is required"}
		}
	default:
		return &domain.ConfigError{Field: "storage.type", Message: "unknown storage type: " + c.Storage.Type}
	}
	return nil
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
