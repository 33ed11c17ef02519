package master

import (
	"context"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/rhythm/internal/protocol"
)

func dialSocket(t *testing.T, path string) *protocol.Conn {
	t.Helper()
	conn, err := net.DialTimeout("unix", path, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return protocol.NewConn(conn, protocol.JSON())
}

func TestListener_FailedHandshakeDoesNotUseWorkerSlot(t *testing.T) {
	tests := []struct {
		name  string
		stray *protocol.Message
	}{
		{name: "no greeting", stray: protocol.BatchRequest()},
		{name: "unknown worker id", stray: protocol.Greeting(9)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "master.sock")
			logs := &syncBuffer{}
			queue, err := NewBatchQueue(makeJobs(2), 5)
			require.NoError(t, err)

			ln, err := Listen(path, &ListenerConfig{
				Logger:   slog.New(slog.NewJSONHandler(logs, nil)),
				Codec:    protocol.JSON(),
				Queue:    queue,
				Sink:     NewProgressSink(&ProgressSinkConfig{Logger: discardLogger()}),
				Registry: staticRegistry{0: {WorkerID: 0, PID: 100}},
			})
			require.NoError(t, err)
			defer ln.Close()

			served := make(chan error, 1)
			go func() { served <- ln.Serve(context.Background(), 1) }()

			stray := dialSocket(t, path)
			require.NoError(t, stray.WriteMessage(tt.stray))
			require.NoError(t, stray.Close())
			require.Eventually(t, func() bool {
				return strings.Contains(logs.String(), "Worker session ended with protocol error")
			}, 5*time.Second, 10*time.Millisecond)
			assert.Equal(t, 0, ln.Ready())

			// the spawned worker still gets served
			worker := dialSocket(t, path)
			require.NoError(t, worker.WriteMessage(protocol.Greeting(0)))
			reply, err := worker.ReadMessage()
			require.NoError(t, err)
			assert.Equal(t, protocol.KindGreeting, reply.Kind)

			require.NoError(t, worker.WriteMessage(protocol.BatchRequest()))
			batch, err := worker.ReadMessage()
			require.NoError(t, err)
			assert.Equal(t, protocol.KindBatch, batch.Kind)
			assert.Len(t, batch.Jobs, 2)

			select {
			case err := <-served:
				require.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Fatal("listener kept accepting after every worker connected")
			}
			assert.Equal(t, 1, ln.Ready())

			require.NoError(t, worker.Close())
			ln.Wait()
		})
	}
}

func TestListener_ServeStopsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master.sock")
	queue, err := NewBatchQueue(makeJobs(1), 1)
	require.NoError(t, err)

	ln, err := Listen(path, &ListenerConfig{
		Logger: discardLogger(),
		Codec:  protocol.JSON(),
		Queue:  queue,
		Sink:   NewProgressSink(&ProgressSinkConfig{Logger: discardLogger()}),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- ln.Serve(ctx, 3) }()
	cancel()

	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	require.NoError(t, ln.Close())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
