package redis

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ibs-source/mqtt-router/internal/config"
	"github.com/ibs-source/mqtt-router/internal/log"
	"github.com/stretchr/testify/require"
)

// newTestClient starts an in-process Redis and connects a Client to it.
func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	cfg := &config.RedisConfig{
		Address:      mr.Addr(),
		KeyPrefix:    "test",
		DialTimeout:  time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PingTimeout:  time.Second,
	}

	c, err := NewClient(cfg, log.NewWithOutput(io.Discard, "error"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestNewClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := &config.RedisConfig{
		Address:     addr,
		KeyPrefix:   "test",
		DialTimeout: 100 * time.Millisecond,
		PingTimeout: 200 * time.Millisecond,
	}
	_, err := NewClient(cfg, log.NewWithOutput(io.Discard, "error"))
	require.Error(t, err)
}

func TestClientPing(t *testing.T) {
	c, mr := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, c.Ping(ctx))

	mr.Close()
	require.Error(t, c.Ping(ctx))
}

func TestClientKey(t *testing.T) {
	c, _ := newTestClient(t)

	require.Equal(t, "test:routes", c.key("routes"))
	require.Equal(t, "test:data:ns:coll", c.key("data", "ns", "coll"))
}

func TestClientCloseNil(t *testing.T) {
	c := &Client{}
	require.NoError(t, c.Close())
}
