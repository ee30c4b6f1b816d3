package shutdown

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/SlpAus/dialect-voice-backend/internal/platform/logger"
	"github.com/SlpAus/dialect-voice-backend/pkg/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestServeStopsBackgroundServicesOnCancel(t *testing.T) {
	manager := lifecycle.NewManager(nil)
	handle, err := manager.NewServiceHandle("worker")
	require.NoError(t, err)
	go func() {
		defer handle.Close()
		<-handle.Done()
	}()

	c := NewCoordinator(manager, logger.Nop())
	c.gracefulTimeout = time.Second
	server := &http.Server{Addr: freeAddr(t), Handler: http.NotFoundHandler()}

	ctx, cancel := context.WithCancel(context.Background())
	finalized := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- c.Serve(ctx, server, func() { close(finalized) })
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("停机没有完成")
	}
	assert.False(t, manager.Running("worker"))
	select {
	case <-finalized:
	default:
		t.Fatal("finalize 没有被调用")
	}
}

func TestServeReturnsListenError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	c := NewCoordinator(lifecycle.NewManager(nil), logger.Nop())
	server := &http.Server{Addr: l.Addr().String()}

	err = c.Serve(context.Background(), server, nil)
	assert.Error(t, err)
}
