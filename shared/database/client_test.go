package database

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DSN(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		want      string
		wantErr   bool
		errString string
	}{
		{
			name:   "sqlite",
			config: Config{Driver: DriverSQLite, Path: "/data/links.db"},
			want:   "file:/data/links.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		},
		{
			name:   "empty driver defaults to sqlite",
			config: Config{Path: "links.db"},
			want:   "file:links.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		},
		{
			name: "postgres",
			config: Config{
				Driver:   DriverPostgres,
				Host:     "localhost",
				Port:     5432,
				User:     "rhythm",
				Password: "secret",
				Database: "rhythm",
				SSLMode:  "disable",
			},
			want: "host=localhost port=5432 user=rhythm password=secret dbname=rhythm sslmode=disable",
		},
		{
			name:      "sqlite without path",
			config:    Config{Driver: DriverSQLite},
			wantErr:   true,
			errString: "sqlite path is required",
		},
		{
			name:      "unsupported driver",
			config:    Config{Driver: "mysql"},
			wantErr:   true,
			errString: "unsupported database driver",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn, err := tt.config.DSN()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, dsn)
		})
	}
}

func TestNewClient_SQLite(t *testing.T) {
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(logs, nil))
	path := filepath.Join(t.TempDir(), "nested", "links.db")

	client, err := NewClient(&Config{Driver: DriverSQLite, Path: path}, logger)
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, client.Driver())
	assert.NoError(t, client.HealthCheck(context.Background()))
	assert.FileExists(t, path)

	// pool statistics are reported on close
	require.NoError(t, client.Close())
	assert.Contains(t, logs.String(), "MaxOpenConns: 1")
	assert.Contains(t, logs.String(), "Database connection closed successfully")
}
