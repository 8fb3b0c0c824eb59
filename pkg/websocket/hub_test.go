package websocket

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConn(id, userID string, buf int) *Connection {
	return &Connection{
		ID:     id,
		UserID: userID,
		send:   make(chan []byte, buf),
		done:   make(chan struct{}),
	}
}

func TestPushDeliversToAllConnections(t *testing.T) {
	h := NewHub()
	c1 := newTestConn("c1", "u1", 4)
	c2 := newTestConn("c2", "u1", 4)
	h.register(c1)
	h.register(c2)

	require.NoError(t, h.Push(context.Background(), "u1", "hi", "there", nil))
	assert.Len(t, c1.send, 1)
	assert.Len(t, c2.send, 1)
}

func TestPushErrorsWhenOffline(t *testing.T) {
	h := NewHub()
	assert.Error(t, h.Push(context.Background(), "u1", "hi", "there", nil))

	c := newTestConn("c1", "u1", 1)
	h.register(c)
	h.unregister(c)
	assert.Error(t, h.Push(context.Background(), "u1", "hi", "there", nil))
	assert.False(t, h.Online("u1"))
}

// Clients dropping mid fan-out must never corrupt the connection map or
// trip a send on a torn-down connection.
func TestPushDuringDisconnectChurn(t *testing.T) {
	h := NewHub()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				_ = h.Push(context.Background(), "u1", "hi", "there", nil)
			}
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				c := newTestConn(fmt.Sprintf("c%d-%d", n, j), "u1", 1)
				h.register(c)
				h.unregister(c)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, h.ConnectionCount())
}

func TestUnregisterIdempotent(t *testing.T) {
	h := NewHub()
	c := newTestConn("c1", "u1", 1)
	h.register(c)
	h.unregister(c)
	h.unregister(c)
	assert.Equal(t, 0, h.ConnectionCount())
}
