package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				assert.Equal(t, "rhythm", cfg.App.Name)
				assert.Equal(t, 4, cfg.Master.Threads)
				assert.Equal(t, 10, cfg.Master.BatchSize)
				assert.Equal(t, "cbor", cfg.Master.Codec)
				assert.Equal(t, "/tmp/rhytm/master.sock", cfg.Master.SocketPath())
				assert.Equal(t, "/srv/music/logs", cfg.Master.LogsDir())
				assert.Equal(t, 2*time.Minute, cfg.Session.ReadTimeout)
				assert.Equal(t, 3*time.Second, cfg.Session.DrainTimeout)
				assert.Equal(t, "/srv/music/links.db", cfg.Database.Path)
				assert.Equal(t, "rhythm_exchange", cfg.Notify.RabbitMQ.Exchange.Name)
				assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.AllowedOrigins)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("testdata/minimal.yaml")
	require.NoError(t, err)

	assert.Equal(t, DefaultThreads, cfg.Master.Threads)
	assert.Equal(t, DefaultBatchSize, cfg.Master.BatchSize)
	assert.Equal(t, DefaultTmpDir, cfg.Master.TmpDir)
	assert.Equal(t, DefaultOutputTemplate, cfg.Master.OutputTemplate)
	assert.Equal(t, "json", cfg.Master.Codec)
	assert.Equal(t, "info", cfg.Master.WorkerLogLevel)
	assert.Equal(t, DefaultPattern, cfg.Extract.Pattern)
	assert.Equal(t, DefaultPatternGroup, cfg.Extract.Group)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "links.db", cfg.Database.Path)
	assert.Equal(t, 5*time.Second, cfg.Session.DrainTimeout)
	assert.False(t, cfg.Server.Enabled)
	assert.False(t, cfg.Notify.RabbitMQ.Enabled)

	require.NoError(t, cfg.Validate())
}

func validConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantErr   bool
		errString string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:      "zero threads",
			mutate:    func(c *Config) { c.Master.Threads = -1 },
			wantErr:   true,
			errString: "master threads must be greater than 0",
		},
		{
			name:      "zero batch size",
			mutate:    func(c *Config) { c.Master.BatchSize = -3 },
			wantErr:   true,
			errString: "master batch_size must be greater than 0",
		},
		{
			name:      "socket path too long",
			mutate:    func(c *Config) { c.Master.TmpDir = "/" + strings.Repeat("d", 120) },
			wantErr:   true,
			errString: "socket path is too long",
		},
		{
			name:      "unsupported codec",
			mutate:    func(c *Config) { c.Master.Codec = "xml" },
			wantErr:   true,
			errString: "unsupported master codec",
		},
		{
			name:      "negative read timeout",
			mutate:    func(c *Config) { c.Session.ReadTimeout = -time.Second },
			wantErr:   true,
			errString: "session timeouts must not be negative",
		},
		{
			name:      "bad extract pattern",
			mutate:    func(c *Config) { c.Extract.Pattern = "([a-z" },
			wantErr:   true,
			errString: "invalid extract pattern",
		},
		{
			name:      "extract group out of range",
			mutate:    func(c *Config) { c.Extract.Group = 9 },
			wantErr:   true,
			errString: "extract group 9 out of range",
		},
		{
			name:      "unsupported database driver",
			mutate:    func(c *Config) { c.Database.Driver = "mysql" },
			wantErr:   true,
			errString: "unsupported database driver",
		},
		{
			name: "postgres without host",
			mutate: func(c *Config) {
				c.Database.Driver = "postgres"
				c.Database.Port = 5432
				c.Database.Database = "rhythm"
			},
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name: "rabbitmq enabled without host",
			mutate: func(c *Config) {
				c.Notify.RabbitMQ.Enabled = true
				c.Notify.RabbitMQ.Port = 5672
				c.Notify.RabbitMQ.Exchange.Name = "rhythm_exchange"
			},
			wantErr:   true,
			errString: "rabbitmq host is required",
		},
		{
			name: "rabbitmq enabled without exchange",
			mutate: func(c *Config) {
				c.Notify.RabbitMQ.Enabled = true
				c.Notify.RabbitMQ.Host = "localhost"
				c.Notify.RabbitMQ.Port = 5672
			},
			wantErr:   true,
			errString: "rabbitmq exchange name is required",
		},
		{
			name:      "server enabled with invalid port",
			mutate:    func(c *Config) { c.Server.Enabled = true },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name: "disabled server ignores port",
			mutate: func(c *Config) {
				c.Server.Enabled = false
				c.Server.Port = 0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.Validate()
		require.NoError(t, err)
	})

	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})

	t.Run("load config with missing database", func(t *testing.T) {
		cfg, err := Load("testdata/postgres_missing_database.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database name is required")
	})
}

func TestPortConstants(t *testing.T) {
	t.Run("port constants are correct", func(t *testing.T) {
		assert.Equal(t, 1, MinPort)
		assert.Equal(t, 65535, MaxPort)
	})

	t.Run("invalid port range", func(t *testing.T) {
		invalidPorts := []int{0, -1, 65536, 70000}
		for _, port := range invalidPorts {
			valid := port >= MinPort && port <= MaxPort
			assert.False(t, valid, "port %d should be invalid", port)
		}
	})
}
