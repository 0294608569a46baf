package infra

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHTTPServerServesUntilCanceled(t *testing.T) {
	cfg := &Config{Port: "0", HTTPWriteTimeout: time.Second}
	server := NewHTTPServer(cfg, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	require.Equal(t, ":0", server.Addr())
	require.NoError(t, server.Listen())
	require.NotEqual(t, ":0", server.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()

	_, port, err := net.SplitHostPort(server.Addr())
	require.NoError(t, err)
	resp, err := http.Get("http://127.0.0.1:" + port)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, "ok", string(body))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestHTTPServerListenFailure(t *testing.T) {
	server := NewHTTPServer(&Config{Port: "not-a-port"}, http.NotFoundHandler())
	require.Error(t, server.Listen())
}
