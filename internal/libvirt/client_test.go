package libvirt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConnect needs a running libvirt daemon and skips otherwise.
func TestConnect(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	c, err := Connect("", 0)
	if err != nil {
		t.Skipf("libvirt not available: %v", err)
	}
	defer func() {
		assert.NoError(t, c.Close())
	}()

	require.NoError(t, c.Ping())
	assert.NotNil(t, c.Libvirt())
}

func TestConnect_InvalidSocket(t *testing.T) {
	_, err := Connect("/nonexistent/socket", 100*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/nonexistent/socket")
}

func TestConnectWithContext_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ConnectWithContext(ctx, "", 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConnectWithContext_InvalidSocket(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := ConnectWithContext(ctx, "/nonexistent/socket", 100*time.Millisecond)
	assert.Error(t, err)
}

func TestClose_Idempotent(t *testing.T) {
	c := &Client{}
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestPing_Disconnected(t *testing.T) {
	c := &Client{libvirt: nil}

	err := c.Ping()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}
