package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"rawstatic/internal/accesslog"
	"rawstatic/internal/request"
	"rawstatic/internal/resource"
	"rawstatic/internal/response"
)

// Handler serves a single connection: read the request, resolve it, write
// the response, log it and close.
type Handler struct {
	resolver *resource.Resolver
	access   *accesslog.Logger
	log      *slog.Logger
	timeout  time.Duration
	maxLine  int
}

// NewHandler returns a Handler. timeout bounds reading the request and
// each write of the response; zero disables both.
func NewHandler(resolver *resource.Resolver, access *accesslog.Logger, logger *slog.Logger, timeout time.Duration, maxLine int) *Handler {
	return &Handler{
		resolver: resolver,
		access:   access,
		log:      logger,
		timeout:  timeout,
		maxLine:  maxLine,
	}
}

// ServeConn handles conn to completion. conn is closed exactly once whatever
// happens; failures are logged and never propagate past the connection.
func (h *Handler) ServeConn(conn net.Conn) {
	logger := h.log.With("conn", uuid.NewString(), "remote", conn.RemoteAddr())

	err := h.serve(conn)

	var resErr *response.ResourceError
	switch {
	case err == nil:
		logger.Debug("connection done")
	case errors.Is(err, request.ErrMalformed):
		logger.Warn("malformed request, closing without response", "error", err)
	case errors.As(err, &resErr):
		logger.Error("resource unreadable", "path", resErr.Path, "error", resErr.Err)
	case errors.Is(err, errAccessLog):
		logger.Error("access log write failed", "error", err)
	default:
		logger.Warn("connection i/o failed", "error", err)
	}
}

var errAccessLog = errors.New("access log")

func (h *Handler) serve(conn net.Conn) error {
	defer closeConn(conn)

	if h.timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(h.timeout)); err != nil {
			return &request.ReadError{Err: err}
		}
	}

	req, err := request.Read(conn, h.maxLine)
	if err != nil {
		return err
	}

	var out io.Writer = conn
	if h.timeout > 0 {
		out = &idleWriter{conn: conn, timeout: h.timeout}
	}

	res := h.resolver.Resolve(req.Path)
	if err := response.Write(out, res); err != nil {
		return err
	}

	if err := h.access.Log(req, response.StatusLine(res.Status)); err != nil {
		return fmt.Errorf("%w: %w", errAccessLog, err)
	}
	return nil
}

// idleWriter pushes the write deadline forward before every write, so a
// body of any size is sent as long as the peer keeps draining it.
type idleWriter struct {
	conn    net.Conn
	timeout time.Duration
}

func (w *idleWriter) Write(p []byte) (int, error) {
	if err := w.conn.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
		return 0, err
	}
	return w.conn.Write(p)
}

// closeConn shuts the write side first so the peer sees the end of the
// body, then releases the socket.
func closeConn(conn net.Conn) {
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		cw.CloseWrite()
	}
	conn.Close()
}
