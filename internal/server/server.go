// Package server accepts TCP connections and hands each one to a Handler on
// its own goroutine.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/net/netutil"

	"fwdproxy/internal/logging"
)

type Handler interface {
	ServeConn(ctx context.Context, conn net.Conn)
}

type HandlerFunc func(ctx context.Context, conn net.Conn)

func (f HandlerFunc) ServeConn(ctx context.Context, conn net.Conn) {
	f(ctx, conn)
}

type Server struct {
	Addr    string
	Handler Handler
	Logger  logging.Logger

	// MaxConns caps concurrently open client connections. Zero means no cap.
	MaxConns int

	wg sync.WaitGroup
}

// ListenAndServe binds Addr and serves until ctx is done. A bind failure is
// returned immediately.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then closes ln and waits
// for in-flight connections to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.MaxConns > 0 {
		ln = netutil.LimitListener(ln, s.MaxConns)
	}

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	s.Logger.Info("listening", "addr", ln.Addr().String())

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return err
			}
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay *= 2
			}
			if delay > time.Second {
				delay = time.Second
			}
			s.Logger.Error("accept failed", "err", err, "retry_in", delay.String())
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
			continue
		}
		delay = 0

		s.wg.Add(1)
		go s.serve(ctx, conn)
	}
}

func (s *Server) serve(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	s.Handler.ServeConn(ctx, conn)
}
