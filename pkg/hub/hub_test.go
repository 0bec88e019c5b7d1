package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-semiconductor/internal/log"
	"github.com/teslashibe/go-semiconductor/pkg/protocol"
)

// register adds a connection-less client with the given buffer.
func register(t *testing.T, h *Hub, buffer int) *Client {
	t.Helper()
	c := &Client{hub: h, send: make(chan Message, buffer)}
	h.register <- c
	return c
}

func recv(t *testing.T, c *Client) (Message, bool) {
	t.Helper()
	select {
	case m, ok := <-c.send:
		return m, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}, false
	}
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New("test", log.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	require.Eventually(t, h.IsRunning, time.Second, time.Millisecond)
	t.Cleanup(cancel)
	return h, cancel
}

func TestHub_BroadcastReachesEveryClient(t *testing.T) {
	h, _ := startHub(t)
	a := register(t, h, 4)
	b := register(t, h, 4)
	assert.Equal(t, 2, h.ClientCount())

	msg, err := protocol.NewTempoMessage(88)
	require.NoError(t, err)
	require.NoError(t, h.BroadcastMessage(msg))

	for _, c := range []*Client{a, b} {
		m, ok := recv(t, c)
		require.True(t, ok)
		assert.Equal(t, JSONMessage, m.Type)

		parsed, err := protocol.ParseMessage(m.Data)
		require.NoError(t, err)
		assert.Equal(t, protocol.TypeTempo, parsed.Type)
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	h, _ := startHub(t)
	slow := register(t, h, 1)

	require.NoError(t, h.BroadcastJSON(map[string]int{"n": 1}))
	require.NoError(t, h.BroadcastJSON(map[string]int{"n": 2}))

	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, time.Millisecond)

	_, ok := recv(t, slow)
	assert.True(t, ok, "first message was delivered")
	_, ok = recv(t, slow)
	assert.False(t, ok, "channel closed after the overflow")
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	h, _ := startHub(t)
	c := register(t, h, 1)

	h.unregister <- c
	_, ok := recv(t, c)
	assert.False(t, ok)
	assert.Equal(t, 0, h.ClientCount())
}

func TestHub_CancelDisconnectsClients(t *testing.T) {
	h, cancel := startHub(t)
	c := register(t, h, 1)

	cancel()
	_, ok := recv(t, c)
	assert.False(t, ok)
	require.Eventually(t, func() bool { return !h.IsRunning() }, time.Second, time.Millisecond)
}
