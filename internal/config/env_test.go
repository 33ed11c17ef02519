package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envLookup(pairs []string) func(string) string {
	m := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		k, v, _ := strings.Cut(kv, "=")
		m[k] = v
	}
	return func(key string) string { return m[key] }
}

func TestWorkerEnv_RoundTrip(t *testing.T) {
	want := &WorkerEnv{
		SocketPath:     "/tmp/rhytm/master.sock",
		WorkerID:       3,
		LogDir:         "/srv/music/logs",
		DownloadDir:    "/srv/music",
		TmpDir:         "/tmp/rhytm",
		WorkDir:        "/tmp/rhytm/3",
		OutputTemplate: DefaultOutputTemplate,
		Codec:          "cbor",
		Simulate:       true,
		LogLevel:       "debug",
	}

	got, err := LoadWorkerEnv(envLookup(want.Environ()))
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, "/srv/music/logs/worker-3.log", got.LogFile())
}

func TestLoadWorkerEnv(t *testing.T) {
	tests := []struct {
		name      string
		env       []string
		wantErr   bool
		errString string
		check     func(t *testing.T, env *WorkerEnv)
	}{
		{
			name: "defaults",
			env:  []string{"MSP=/tmp/s.sock", "THR_ID=0"},
			check: func(t *testing.T, env *WorkerEnv) {
				assert.Equal(t, 0, env.WorkerID)
				assert.Equal(t, "/tmp/rhytm/0", env.WorkDir)
				assert.Equal(t, ".", env.DownloadDir)
				assert.Equal(t, "json", env.Codec)
				assert.False(t, env.Simulate)
				assert.Equal(t, "stdout", env.LogFile())
			},
		},
		{
			name:      "missing socket",
			env:       []string{"THR_ID=0"},
			wantErr:   true,
			errString: "MSP is required",
		},
		{
			name:      "missing id",
			env:       []string{"MSP=/tmp/s.sock"},
			wantErr:   true,
			errString: "THR_ID is required",
		},
		{
			name:      "negative id",
			env:       []string{"MSP=/tmp/s.sock", "THR_ID=-2"},
			wantErr:   true,
			errString: "invalid THR_ID",
		},
		{
			name:      "bad simulate flag",
			env:       []string{"MSP=/tmp/s.sock", "THR_ID=1", "RHYTHM_SIMULATE=maybe"},
			wantErr:   true,
			errString: "invalid RHYTHM_SIMULATE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := LoadWorkerEnv(envLookup(tt.env))
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				return
			}
			require.NoError(t, err)
			tt.check(t, env)
		})
	}
}
