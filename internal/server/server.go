// Package server accepts connections and dispatches them to a worker pool
// that serves files from the resource root.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"golang.org/x/net/netutil"

	"rawstatic/internal/accesslog"
	"rawstatic/internal/config"
	"rawstatic/internal/resource"
)

const maxAcceptDelay = time.Second

// BindError reports that the listening socket could not be set up.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string { return fmt.Sprintf("bind %s: %v", e.Addr, e.Err) }

func (e *BindError) Unwrap() error { return e.Err }

// Server ties the listener, the worker pool and the connection handler
// together. Its configuration is fixed at construction.
type Server struct {
	cfg     config.Config
	handler *Handler
	log     *slog.Logger
}

// New builds a Server from a validated configuration. Access log lines go
// to access.
func New(cfg config.Config, logger *slog.Logger, access io.Writer) (*Server, error) {
	resolver, err := resource.NewResolver(cfg.Root, cfg.DefaultPage, cfg.NotFoundPage)
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:     cfg,
		handler: NewHandler(resolver, accesslog.New(access), logger, cfg.ReadTimeout, cfg.MaxLineBytes),
		log:     logger,
	}, nil
}

// Listen binds the configured address with the configured backlog and logs
// the address actually bound.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := listen(s.cfg.Host, s.cfg.Port, s.cfg.Backlog)
	if err != nil {
		return nil, &BindError{Addr: s.cfg.Addr(), Err: err}
	}
	if s.cfg.MaxConns > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConns)
	}

	s.log.Info("listening",
		"addr", ln.Addr().String(),
		"root", s.cfg.Root,
		"workers", s.cfg.Workers,
		"queue", s.cfg.QueueSize,
		"backlog", s.cfg.Backlog,
	)
	return ln, nil
}

// Serve accepts connections from ln until ctx is done, handing each one to
// the worker pool. Connections the pool cannot take are closed unanswered.
// Serve closes ln and waits for in-flight connections before returning.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	pool := NewPool(s.cfg.Workers, s.cfg.QueueSize, s.cfg.QueueTimeout, s.handler.ServeConn, s.log)
	defer pool.Stop()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer ln.Close()

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay = min(2*delay, maxAcceptDelay)
			}
			s.log.Warn("accept failed, retrying", "error", err, "delay", delay)
			time.Sleep(delay)
			continue
		}
		delay = 0

		if err := pool.Submit(conn); err != nil {
			s.log.Warn("rejecting connection", "remote", conn.RemoteAddr(), "pending", pool.Pending(), "error", err)
			conn.Close()
			continue
		}
		s.log.Debug("connection queued", "remote", conn.RemoteAddr(), "pending", pool.Pending())
	}
}

// ListenAndServe binds and then serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}
