// Package transport carries parameter frames between the settings UI and
// the simulation over TCP. Each frame is exactly params.EncodedSize bytes;
// a connection may carry any number of them back to back.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pthm-cable/fluid/params"
)

// Server accepts settings connections and writes every decoded frame into
// Store. Frames that fail to decode or validate are logged and dropped; the
// store keeps its previous value.
type Server struct {
	Addr  string
	Store *params.Store

	accepted atomic.Uint64
	rejected atomic.Uint64
}

// ListenAndServe listens on s.Addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then closes ln and
// every open connection. It returns nil after a cancellation.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	slog.Info("settings listener started", "addr", ln.Addr().String())

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			slog.Error("accept settings connection", "error", err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	remote := conn.RemoteAddr().String()
	slog.Info("settings connected", "remote", remote)

	buf := make([]byte, params.EncodedSize)
	for {
		if _, err := io.ReadFull(conn, buf); err != nil {
			switch {
			case errors.Is(err, io.EOF):
				slog.Info("settings disconnected", "remote", remote)
			case ctx.Err() != nil:
			default:
				slog.Error("read parameter frame", "remote", remote, "error", err)
			}
			return
		}
		s.apply(buf, remote)
	}
}

func (s *Server) apply(frame []byte, remote string) {
	p, err := params.Decode(frame)
	if err == nil {
		err = s.Store.Write(p)
	}
	if err != nil {
		s.rejected.Add(1)
		slog.Error("decode parameters", "remote", remote, "error", err)
		return
	}
	s.accepted.Add(1)
	for _, w := range p.Warnings() {
		slog.Debug("parameters", "remote", remote, "warning", w)
	}
}

// Accepted returns the number of frames written to the store.
func (s *Server) Accepted() uint64 { return s.accepted.Load() }

// Rejected returns the number of frames dropped.
func (s *Server) Rejected() uint64 { return s.rejected.Load() }
