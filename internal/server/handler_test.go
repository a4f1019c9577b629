package server

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rawstatic/internal/accesslog"
	"rawstatic/internal/resource"
)

// Mock net.Conn implementation for testing
type mockConn struct {
	readBuf     *bytes.Buffer
	writeBuf    *bytes.Buffer
	writeErr    error
	closed      int
	closedWrite int
	// Deadlines set by the handler, in call order.
	readDeadline   time.Time
	writeDeadlines []time.Time
}

func newMockConn(input string) *mockConn {
	return &mockConn{
		readBuf:  bytes.NewBufferString(input),
		writeBuf: &bytes.Buffer{},
	}
}

func (m *mockConn) Read(b []byte) (n int, err error) { return m.readBuf.Read(b) }
func (m *mockConn) Write(b []byte) (n int, err error) {
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	return m.writeBuf.Write(b)
}
func (m *mockConn) Close() error                       { m.closed++; return nil }
func (m *mockConn) CloseWrite() error                  { m.closedWrite++; return nil }
func (m *mockConn) LocalAddr() net.Addr                { return nil }
func (m *mockConn) RemoteAddr() net.Addr               { return nil }
func (m *mockConn) SetDeadline(t time.Time) error {
	m.SetReadDeadline(t)
	return m.SetWriteDeadline(t)
}
func (m *mockConn) SetReadDeadline(t time.Time) error { m.readDeadline = t; return nil }
func (m *mockConn) SetWriteDeadline(t time.Time) error {
	m.writeDeadlines = append(m.writeDeadlines, t)
	return nil
}
func (m *mockConn) GetWrittenData() string { return m.writeBuf.String() }

const (
	defaultBody  = "<html>default</html>"
	notFoundBody = "<html>404</html>"
	fileBody     = "Test file content"
)

func newTestRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"default.html":     defaultBody,
		"404NotFound.html": notFoundBody,
		"test.txt":         fileBody,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(root, name), []byte(content), 0644); err != nil {
			t.Fatalf("Failed to create test file: %v", err)
		}
	}
	return root
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandler(t *testing.T, root string, access io.Writer) *Handler {
	t.Helper()
	resolver, err := resource.NewResolver(root, "/default.html", "/404NotFound.html")
	if err != nil {
		t.Fatalf("Failed to create resolver: %v", err)
	}
	return NewHandler(resolver, accesslog.New(access), discardLogger(), time.Minute, 1024)
}

func TestHandleConnection(t *testing.T) {
	root := newTestRoot(t)

	testCases := []struct {
		name         string
		request      string
		expectedResp string
		expectedLog  string
	}{
		{
			name:         "Valid file request",
			request:      "GET /test.txt HTTP/1.1\r\nHost: localhost:8080\r\n\r\n",
			expectedResp: "HTTP/1.1 200 OK" + fileBody,
			expectedLog:  "] GET /test.txt HTTP/1.1 HTTP/1.1 200 OK",
		},
		{
			name:         "Default page",
			request:      "GET / HTTP/1.1\r\nHost: localhost:8080\r\n\r\n",
			expectedResp: "HTTP/1.1 200 OK" + defaultBody,
			expectedLog:  "localhost:8080 - - [",
		},
		{
			name:         "File not found",
			request:      "GET /nonexistent.txt HTTP/1.1\r\n\r\n",
			expectedResp: "HTTP/1.1 404 Not Found" + notFoundBody,
			expectedLog:  "- - - [",
		},
		{
			name:         "Traversal outside root",
			request:      "GET /../../etc/passwd HTTP/1.1\r\n\r\n",
			expectedResp: "HTTP/1.1 404 Not Found" + notFoundBody,
			expectedLog:  "GET /../../etc/passwd HTTP/1.1 HTTP/1.1 404 Not Found",
		},
		{
			name:         "Request line without version",
			request:      "GET /test.txt\r\nHost: localhost:1\r\n\r\n",
			expectedResp: "HTTP/1.1 200 OK" + fileBody,
			expectedLog:  "localhost:1 - - [",
		},
		{
			name:         "Host taken from its own header line",
			request:      "GET /test.txt HTTP/1.1\r\nReferer: http://evil:8080/\r\nHost: localhost:8080\r\n\r\n",
			expectedResp: "HTTP/1.1 200 OK" + fileBody,
			expectedLog:  "localhost:8080 - - [",
		},
		{
			name:         "Any method is served",
			request:      "POST /test.txt HTTP/1.0\r\n\r\n",
			expectedResp: "HTTP/1.1 200 OK" + fileBody,
			expectedLog:  "POST /test.txt HTTP/1.0 HTTP/1.1 200 OK",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var access bytes.Buffer
			h := newTestHandler(t, root, &access)
			conn := newMockConn(tc.request)

			if err := h.serve(conn); err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			if response := conn.GetWrittenData(); response != tc.expectedResp {
				t.Errorf("Expected response %q, got %q", tc.expectedResp, response)
			}
			if !strings.Contains(access.String(), tc.expectedLog) {
				t.Errorf("Expected access log to contain %q, got %q", tc.expectedLog, access.String())
			}
			if conn.closed != 1 || conn.closedWrite != 1 {
				t.Errorf("Expected one close and one write close, got %d and %d", conn.closed, conn.closedWrite)
			}
			if conn.readDeadline.IsZero() {
				t.Error("Expected a read deadline to be set")
			}
			if len(conn.writeDeadlines) == 0 {
				t.Error("Expected a write deadline before writing")
			}
		})
	}
}

func TestHandleMalformedRequest(t *testing.T) {
	root := newTestRoot(t)

	for _, input := range []string{"\r\n", "", "GET\r\n\r\n", "GET\r\nHost: localhost:1\r\n\r\n"} {
		var access bytes.Buffer
		h := newTestHandler(t, root, &access)
		conn := newMockConn(input)

		h.ServeConn(conn)

		if conn.GetWrittenData() != "" {
			t.Errorf("Expected no response for %q, got %q", input, conn.GetWrittenData())
		}
		if access.Len() != 0 {
			t.Errorf("Expected no access log for %q, got %q", input, access.String())
		}
		if conn.closed != 1 {
			t.Errorf("Expected connection closed once for %q, got %d", input, conn.closed)
		}
	}
}

func TestHandleMissingSentinel(t *testing.T) {
	root := newTestRoot(t)
	if err := os.Remove(filepath.Join(root, "404NotFound.html")); err != nil {
		t.Fatalf("Failed to remove sentinel: %v", err)
	}

	var access bytes.Buffer
	h := newTestHandler(t, root, &access)
	conn := newMockConn("GET /missing HTTP/1.1\r\n\r\n")

	err := h.serve(conn)
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Expected missing sentinel error, got %v", err)
	}
	if conn.GetWrittenData() != "" {
		t.Errorf("Expected no response, got %q", conn.GetWrittenData())
	}
	if access.Len() != 0 {
		t.Errorf("Expected no access log, got %q", access.String())
	}
	if conn.closed != 1 {
		t.Errorf("Expected connection closed once, got %d", conn.closed)
	}
}

func TestHandleWriteFailure(t *testing.T) {
	root := newTestRoot(t)
	var access bytes.Buffer
	h := newTestHandler(t, root, &access)
	conn := newMockConn("GET /test.txt HTTP/1.1\r\n\r\n")
	conn.writeErr = errors.New("broken pipe")

	h.ServeConn(conn)

	if access.Len() != 0 {
		t.Errorf("Expected no access log after a failed write, got %q", access.String())
	}
	if conn.closed != 1 {
		t.Errorf("Expected connection closed once, got %d", conn.closed)
	}
}

func TestHandleIdempotent(t *testing.T) {
	root := newTestRoot(t)
	h := newTestHandler(t, root, io.Discard)

	first := newMockConn("GET /test.txt HTTP/1.1\r\n\r\n")
	second := newMockConn("GET /test.txt HTTP/1.1\r\n\r\n")
	h.ServeConn(first)
	h.ServeConn(second)

	if first.GetWrittenData() != second.GetWrittenData() {
		t.Errorf("Expected identical responses, got %q and %q", first.GetWrittenData(), second.GetWrittenData())
	}
}

// slowConn drains at most chunk bytes per write, sleeping between writes,
// and records how far past each write deadline a write finished.
type slowConn struct {
	*mockConn
	chunk    int
	pause    time.Duration
	lateness time.Duration
}

func (s *slowConn) Write(b []byte) (int, error) {
	written := 0
	for len(b) > 0 {
		n := min(len(b), s.chunk)
		time.Sleep(s.pause)
		if late := time.Since(s.writeDeadlines[len(s.writeDeadlines)-1]); late > s.lateness {
			s.lateness = late
		}
		s.writeBuf.Write(b[:n])
		written += n
		b = b[n:]
	}
	return written, nil
}

func TestHandleWriteDeadlineFollowsProgress(t *testing.T) {
	root := newTestRoot(t)
	body := bytes.Repeat([]byte("x"), 64*1024)
	if err := os.WriteFile(filepath.Join(root, "big.bin"), body, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	resolver, err := resource.NewResolver(root, "/default.html", "/404NotFound.html")
	if err != nil {
		t.Fatalf("Failed to create resolver: %v", err)
	}
	timeout := 50 * time.Millisecond
	h := NewHandler(resolver, accesslog.New(io.Discard), discardLogger(), timeout, 1024)

	conn := &slowConn{mockConn: newMockConn("GET /big.bin HTTP/1.1\r\n\r\n"), chunk: 4096, pause: 5 * time.Millisecond}
	if err := h.serve(conn); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if want := "HTTP/1.1 200 OK" + string(body); conn.GetWrittenData() != want {
		t.Errorf("Expected %d bytes, got %d", len(want), len(conn.GetWrittenData()))
	}
	if len(conn.writeDeadlines) < 2 {
		t.Errorf("Expected the write deadline to move with each write, got %d", len(conn.writeDeadlines))
	}
	if conn.lateness > 0 {
		t.Errorf("Expected every chunk within its write deadline, one was %v late", conn.lateness)
	}
}
