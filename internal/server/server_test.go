package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ctxKey struct{}

func TestServeUntilCanceled(t *testing.T) {
	base := context.WithValue(context.Background(), ctxKey{}, "base")
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, _ := r.Context().Value(ctxKey{}).(string)
		_, _ = io.WriteString(w, v)
	})
	srv := New(h, DefaultOptions("127.0.0.1:0"), base)

	var order []string
	srv.OnShutdown("first", func(context.Context) error { order = append(order, "first"); return nil })
	srv.OnShutdown("second", func(context.Context) error { order = append(order, "second"); return nil })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String())
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "base", string(body))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestShutdownHookErrorsAreJoined(t *testing.T) {
	srv := New(http.NotFoundHandler(), DefaultOptions("127.0.0.1:0"), nil)
	boom := errors.New("flush failed")
	srv.OnShutdown("cache", func(context.Context) error { return boom })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = srv.Serve(ctx, ln)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "cache")
}

func TestRunReportsListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := New(http.NotFoundHandler(), DefaultOptions(ln.Addr().String()), nil)
	err = srv.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen")
}
