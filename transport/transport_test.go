package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/fluid/params"
)

// startServer serves a fresh store on a loopback port until the test ends.
func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &Server{Store: params.NewStore(params.Default())}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return s, ln.Addr().String()
}

func TestServerAppliesFrames(t *testing.T) {
	s, addr := startServer(t)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	for _, v := range []float32{0.1, 0.2, 0.3} {
		p := params.Default()
		p.Viscosity = v
		_, err := conn.Write(params.Encode(p))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return s.Store.Version() == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, float32(0.3), s.Store.Snapshot().Viscosity)
	assert.Equal(t, uint64(3), s.Accepted())
}

func TestServerKeepsStaleParametersOnInvalidFrame(t *testing.T) {
	s, addr := startServer(t)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	bad := params.Default()
	bad.GridSize = -1
	_, err = conn.Write(params.Encode(bad))
	require.NoError(t, err)

	// the connection stays usable after a rejected frame
	good := params.Default()
	good.RestDensity = 40
	_, err = conn.Write(params.Encode(good))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return s.Accepted() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), s.Rejected())
	assert.Equal(t, uint64(1), s.Store.Version())
	assert.Equal(t, float32(40), s.Store.Snapshot().RestDensity)
}

func TestServerIgnoresTruncatedFrame(t *testing.T) {
	s, addr := startServer(t)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)

	frame := params.Encode(params.Default())
	_, err = conn.Write(frame[:params.EncodedSize/2])
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	// a second connection still works
	p := params.Default()
	p.Viscosity = 0.7
	c := &Client{Addr: addr}
	defer c.Close()
	require.NoError(t, c.Send(context.Background(), p))

	require.Eventually(t, func() bool { return s.Store.Version() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, float32(0.7), s.Store.Snapshot().Viscosity)
	assert.Zero(t, s.Rejected())
}

func TestClientRedialsAfterClose(t *testing.T) {
	s, addr := startServer(t)

	c := &Client{Addr: addr}
	require.NoError(t, c.Send(context.Background(), params.Default()))
	require.NoError(t, c.Close())
	require.NoError(t, c.Send(context.Background(), params.Default()))
	defer c.Close()

	require.Eventually(t, func() bool { return s.Store.Version() == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestClientDialError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c := &Client{Addr: addr, DialTimeout: 100 * time.Millisecond}
	err = c.Send(context.Background(), params.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dialling")
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	s := &Server{Addr: "127.0.0.1:0", Store: params.NewStore(params.Default())}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe did not return")
	}
}

func TestListenAndServeBadAddress(t *testing.T) {
	s := &Server{Addr: "not an address", Store: params.NewStore(params.Default())}
	err := s.ListenAndServe(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listening on")
}
