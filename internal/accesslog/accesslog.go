// Package accesslog writes one line per completed request:
//
//	localhost:8080 - - [14:03:27] GET /index.html HTTP/1.1 HTTP/1.1 200 OK
//
// The first field is the Host header value, or "-" when the request had none.
package accesslog

import (
	"fmt"
	"io"
	"sync"
	"time"

	"rawstatic/internal/request"
)

const timeLayout = "15:04:05"

// Logger serializes access log lines from concurrent workers onto one writer.
type Logger struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

func New(w io.Writer) *Logger {
	return &Logger{w: w, now: time.Now}
}

// Log records req and the status line sent back.
func (l *Logger) Log(req *request.Request, statusLine string) error {
	host := req.Host()
	if host == "" {
		host = "-"
	}
	line := req.Line()

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := fmt.Fprintf(l.w, "%s - - [%s] %s %s\n", host, l.now().Format(timeLayout), line, statusLine)
	return err
}
