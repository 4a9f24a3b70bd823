package observability

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownManager_RunsHooksInOrder(t *testing.T) {
	sm := NewShutdownManager(NewLogger(DebugLevel, &bytes.Buffer{}), time.Second)

	var mu sync.Mutex
	var order []string
	for _, name := range []string{"recorder", "store", "tracing"} {
		name := name
		sm.Register(name, func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, sm.Shutdown(context.Background()))
	assert.Equal(t, []string{"recorder", "store", "tracing"}, order)
}

func TestShutdownManager_CollectsErrors(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), time.Second)

	boom := errors.New("boom")
	ran := false
	sm.Register("failing", func(ctx context.Context) error { return boom })
	sm.Register("after", func(ctx context.Context) error { ran = true; return nil })

	err := sm.Shutdown(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing")
	assert.True(t, ran, "hooks after a failure still run")
}

func TestShutdownManager_OnlyOnce(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), time.Second)

	calls := 0
	sm.Register("count", func(ctx context.Context) error { calls++; return nil })

	require.NoError(t, sm.Shutdown(context.Background()))
	require.NoError(t, sm.Shutdown(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestShutdownManager_Timeout(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), 20*time.Millisecond)

	skipped := true
	sm.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	sm.Register("never", func(ctx context.Context) error { skipped = false; return nil })

	err := sm.Shutdown(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, skipped)
}

func TestShutdownManager_StopsServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &http.Server{Handler: http.NotFoundHandler()}
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), time.Second, srv, nil)
	require.NoError(t, sm.Shutdown(context.Background()))

	select {
	case err := <-served:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(time.Second):
		t.Fatal("server did not stop")
	}
}

func TestShutdownManager_WaitForSignalContextCancel(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), time.Second)

	called := make(chan struct{})
	sm.Register("hook", func(ctx context.Context) error { close(called); return nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, sm.WaitForSignal(ctx))
	select {
	case <-called:
	default:
		t.Fatal("hook not called")
	}
}

func TestNewShutdownManager_DefaultTimeout(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), 0)
	assert.Equal(t, 30*time.Second, sm.timeout)
}
