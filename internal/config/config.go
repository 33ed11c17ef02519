package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// MaxSocketPathLen is the longest unix socket path the kernel accepts
	MaxSocketPathLen = 104
)

// Defaults
const (
	DefaultThreads        = 1
	DefaultBatchSize      = 5
	DefaultTmpDir         = "/tmp/rhytm"
	DefaultDownloadDir    = "."
	DefaultLogsDir        = "/logs/"
	DefaultOutputTemplate = "%(title,fulltitle)s - %(uploader)s - [%(id)s]"
	DefaultPattern        = `(https://(music)|(www)\.youtube\.com/)?(watch\?v=)([a-zA-Z0-9/\.\?=\-_]+)`
	DefaultPatternGroup   = 5
	DefaultDatabaseFile   = "links.db"
	SocketName            = "master.sock"
)

// Config represents the complete master configuration
type Config struct {
	App      AppConfig      `yaml:"app"`
	Logging  LoggingConfig  `yaml:"logging"`
	Master   MasterConfig   `yaml:"master"`
	Session  SessionConfig  `yaml:"session"`
	Extract  ExtractConfig  `yaml:"extract"`
	Database DatabaseConfig `yaml:"database"`
	Notify   NotifyConfig   `yaml:"notify"`
	Server   ServerConfig   `yaml:"server"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string         `yaml:"level"`
	Format       string         `yaml:"format"`
	Output       string         `yaml:"output"`
	EnableCaller bool           `yaml:"enable_caller"`
	Rotation     RotationConfig `yaml:"rotation"`
}

// RotationConfig controls rotation of file log outputs
type RotationConfig struct {
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`
}

// MasterConfig holds worker pool and run layout settings
type MasterConfig struct {
	Threads          int    `yaml:"threads"`
	BatchSize        int    `yaml:"batch_size"`
	TmpDir           string `yaml:"tmp_dir"`
	DownloadDir      string `yaml:"download_dir"`
	LogsDirRelative  string `yaml:"logs_dir_relative"`
	OutputTemplate   string `yaml:"yt_dlp_output_template"`
	WorkerExecutable string `yaml:"worker_executable"`
	WorkerLogLevel   string `yaml:"worker_log_level"`
	Codec            string `yaml:"codec"`
	Simulate         bool   `yaml:"simulate"`
	DumpStatus       bool   `yaml:"dump_status"`
	InputPath        string `yaml:"input_path"`
}

// SocketPath is the rendezvous endpoint workers dial
func (m *MasterConfig) SocketPath() string {
	return filepath.Join(m.TmpDir, SocketName)
}

// LogsDir is the logs directory below the download directory
func (m *MasterConfig) LogsDir() string {
	return filepath.Join(m.DownloadDir, m.LogsDirRelative)
}

// SessionConfig holds per-connection protocol settings
type SessionConfig struct {
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	DrainTimeout time.Duration `yaml:"drain_timeout"`
	MaxFrameSize uint64        `yaml:"max_frame_size"`
}

// ExtractConfig holds job extraction settings
type ExtractConfig struct {
	Pattern         string        `yaml:"pattern"`
	Group           int           `yaml:"group"`
	ExpandPlaylists bool          `yaml:"expand_playlists"`
	PlaylistTimeout time.Duration `yaml:"playlist_timeout"`
}

// DatabaseConfig holds dedup store connection configuration
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Path            string        `yaml:"path"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// NotifyConfig holds completion announcement settings
type NotifyConfig struct {
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange configuration
type RabbitMQConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ServerConfig holds progress API server configuration
type ServerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// Load reads and parses the configuration file, filling unset values with defaults
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults fills zero values with their defaults
func (c *Config) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "rhythm"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}

	m := &c.Master
	if m.Threads == 0 {
		m.Threads = DefaultThreads
	}
	if m.BatchSize == 0 {
		m.BatchSize = DefaultBatchSize
	}
	if m.TmpDir == "" {
		m.TmpDir = DefaultTmpDir
	}
	if m.DownloadDir == "" {
		m.DownloadDir = DefaultDownloadDir
	}
	if m.LogsDirRelative == "" {
		m.LogsDirRelative = DefaultLogsDir
	}
	if m.OutputTemplate == "" {
		m.OutputTemplate = DefaultOutputTemplate
	}
	if m.Codec == "" {
		m.Codec = "json"
	}
	if m.WorkerLogLevel == "" {
		m.WorkerLogLevel = c.Logging.Level
	}

	if c.Session.DrainTimeout == 0 {
		c.Session.DrainTimeout = 5 * time.Second
	}

	if c.Extract.Pattern == "" {
		c.Extract.Pattern = DefaultPattern
		if c.Extract.Group == 0 {
			c.Extract.Group = DefaultPatternGroup
		}
	}
	if c.Extract.PlaylistTimeout == 0 {
		c.Extract.PlaylistTimeout = 60 * time.Second
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = filepath.Join(m.DownloadDir, DefaultDatabaseFile)
	}

	r := &c.Notify.RabbitMQ
	if r.Exchange.Type == "" {
		r.Exchange.Type = "topic"
	}
	if r.RoutingKey == "" {
		r.RoutingKey = "rhythm.completed"
	}
	if r.Connection.RetryAttempts == 0 {
		r.Connection.RetryAttempts = 3
	}
	if r.Connection.RetryInterval == 0 {
		r.Connection.RetryInterval = 2 * time.Second
	}

	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.ValidateMasterConfig(); err != nil {
		return err
	}
	if err := c.ValidateDatabaseConfig(); err != nil {
		return err
	}

	if c.Notify.RabbitMQ.Enabled {
		r := c.Notify.RabbitMQ
		if r.Host == "" {
			return fmt.Errorf("rabbitmq host is required")
		}
		if r.Port < MinPort || r.Port > MaxPort {
			return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", r.Port, MinPort, MaxPort)
		}
		if r.Exchange.Name == "" {
			return fmt.Errorf("rabbitmq exchange name is required")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port < MinPort || c.Server.Port > MaxPort {
			return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
		}
	}

	return nil
}

// ValidateMasterConfig checks the worker pool, protocol and extraction settings
func (c *Config) ValidateMasterConfig() error {
	if c.Master.Threads <= 0 {
		return fmt.Errorf("master threads must be greater than 0")
	}

	if c.Master.BatchSize <= 0 {
		return fmt.Errorf("master batch_size must be greater than 0")
	}

	if c.Master.TmpDir == "" {
		return fmt.Errorf("master tmp_dir is required")
	}

	if n := len(c.Master.SocketPath()); n > MaxSocketPathLen {
		return fmt.Errorf("socket path is too long: %d bytes (max %d)", n, MaxSocketPathLen)
	}

	switch c.Master.Codec {
	case "json", "cbor":
	default:
		return fmt.Errorf("unsupported master codec: %s", c.Master.Codec)
	}

	if c.Session.ReadTimeout < 0 || c.Session.DrainTimeout < 0 {
		return fmt.Errorf("session timeouts must not be negative")
	}

	re, err := regexp.Compile(c.Extract.Pattern)
	if err != nil {
		return fmt.Errorf("invalid extract pattern: %w", err)
	}
	if c.Extract.Group < 0 || c.Extract.Group > re.NumSubexp() {
		return fmt.Errorf("extract group %d out of range (pattern has %d groups)", c.Extract.Group, re.NumSubexp())
	}

	return nil
}

// ValidateDatabaseConfig checks the dedup store settings
func (c *Config) ValidateDatabaseConfig() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required")
		}
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Port < MinPort || c.Database.Port > MaxPort {
			return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	return nil
}
