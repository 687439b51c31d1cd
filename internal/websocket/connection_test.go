package websocket

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wschat/internal/config"
	"wschat/internal/protocol"
)

func openPipeConnection(t *testing.T, cfg config.ServerConfig, onStall func(*Connection)) (*Connection, net.Conn) {
	t.Helper()

	server, peer := net.Pipe()
	t.Cleanup(func() { peer.Close() })

	conn := newConnection(server, cfg)
	conn.setState(StateOpen)
	conn.start(onStall)
	return conn, peer
}

func TestSendDoesNotWaitForSilentPeer(t *testing.T) {
	cfg := testConfig(config.SchedulerLoop)
	cfg.WriteTimeout = 200 * time.Millisecond
	cfg.SendQueueSize = 2

	stalled := make(chan *Connection, 1)
	conn, _ := openPipeConnection(t, cfg, func(c *Connection) { stalled <- c })

	var err error
	start := time.Now()
	for i := 0; i < 10 && err == nil; i++ {
		err = conn.SendJSON(map[string]int{"n": i})
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrSendQueueFull)
	assert.Same(t, conn, receive(t, stalled))

	assert.ErrorIs(t, conn.SendJSON("late"), ErrSendQueueFull)

	conn.shutdown()
	conn.wait()
}

func TestWriteTimeoutDropsConnection(t *testing.T) {
	cfg := testConfig(config.SchedulerLoop)
	cfg.WriteTimeout = 200 * time.Millisecond
	cfg.SendQueueSize = 8

	stalled := make(chan *Connection, 1)
	conn, peer := openPipeConnection(t, cfg, func(c *Connection) { stalled <- c })

	require.NoError(t, conn.SendJSON("hello"))
	assert.Same(t, conn, receive(t, stalled))

	// The socket is gone, so the peer sees end of stream rather than a torn frame.
	_, err := peer.Read(make([]byte, 1))
	assert.Error(t, err)

	conn.shutdown()
	conn.wait()
}

func TestShutdownFlushesQueuedFrames(t *testing.T) {
	conn, peer := openPipeConnection(t, testConfig(config.SchedulerLoop), nil)

	require.NoError(t, conn.SendJSON(map[string]string{"text": "bye"}))
	require.NoError(t, conn.writeRaw(protocol.EncodeClose(1000, "")))

	read := make(chan []byte, 1)
	go func() {
		data, _ := io.ReadAll(peer)
		read <- data
	}()

	assert.True(t, conn.shutdown())
	assert.False(t, conn.shutdown())
	conn.wait()

	data := receive(t, read)
	assert.Contains(t, string(data), `"text":"bye"`)
	assert.True(t, bytes.HasSuffix(data, protocol.EncodeClose(1000, "")))
	assert.ErrorIs(t, conn.SendJSON("late"), ErrConnectionClosed)
}
