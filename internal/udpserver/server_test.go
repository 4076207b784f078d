package udpserver

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/taoyao-code/telemetry-collector/internal/config"
)

type collector struct {
	mu   sync.Mutex
	got  [][]byte
	seen chan struct{}
}

func (c *collector) handle(_ context.Context, buf []byte, _ time.Time) {
	c.mu.Lock()
	c.got = append(c.got, append([]byte(nil), buf...))
	c.mu.Unlock()
	c.seen <- struct{}{}
}

func startServer(t *testing.T, h Handler) *Server {
	t.Helper()
	srv := New(cfgpkg.UDPConfig{Addr: "127.0.0.1:0", ReadTimeout: 50 * time.Millisecond}, h, nil)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

func send(t *testing.T, addr net.Addr, payloads ...[]byte) {
	t.Helper()
	conn, err := net.Dial("udp", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	for _, p := range payloads {
		_, err := conn.Write(p)
		require.NoError(t, err)
	}
}

func TestServer_ReceivesDatagrams(t *testing.T) {
	c := &collector{seen: make(chan struct{}, 8)}
	srv := startServer(t, c.handle)

	send(t, srv.Addr(), []byte("one"), []byte("two"))
	for i := 0; i < 2; i++ {
		select {
		case <-c.seen:
		case <-time.After(2 * time.Second):
			t.Fatal("datagram not received")
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.ElementsMatch(t, [][]byte{[]byte("one"), []byte("two")}, c.got)
}

func TestServer_ShutdownWithinReadTimeout(t *testing.T) {
	srv := startServer(t, func(context.Context, []byte, time.Time) {})

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	select {
	case <-srv.Done():
	default:
		t.Fatal("loop still running after shutdown")
	}
}

func TestServer_ParentContextCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	srv := New(cfgpkg.UDPConfig{Addr: "127.0.0.1:0", ReadTimeout: 20 * time.Millisecond}, nil, nil)
	require.NoError(t, srv.Start(parent))

	cancel()
	select {
	case <-srv.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not observe cancellation")
	}
}

func TestServer_InFlightDatagramCompletes(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var finished bool
	srv := startServer(t, func(ctx context.Context, _ []byte, _ time.Time) {
		close(entered)
		<-release
		finished = ctx.Err() == nil
	})

	send(t, srv.Addr(), []byte("x"))
	<-entered

	shutdownErr := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		shutdownErr <- srv.Shutdown(ctx)
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)

	require.NoError(t, <-shutdownErr)
	assert.True(t, finished, "handler context must survive shutdown")
}

func TestServer_BindFailure(t *testing.T) {
	srv := startServer(t, nil)
	dup := New(cfgpkg.UDPConfig{Addr: srv.Addr().String()}, nil, nil)
	assert.Error(t, dup.Start(context.Background()))
}
