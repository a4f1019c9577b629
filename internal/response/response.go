// Package response writes the status line and raw file bytes back to a
// client. There is no framing: the status line bytes are followed directly
// by the file contents, and the end of the body is the end of the
// connection.
package response

import (
	"bufio"
	"errors"
	"io"
	"os"

	"rawstatic/internal/resource"
)

const (
	StatusLineOK       = "HTTP/1.1 200 OK"
	StatusLineNotFound = "HTTP/1.1 404 Not Found"
)

// StatusLine returns the status line sent for s.
func StatusLine(s resource.Status) string {
	if s == resource.Found {
		return StatusLineOK
	}
	return StatusLineNotFound
}

// ResourceError reports a file under the resource root that could not be
// read, including a missing not-found page.
type ResourceError struct {
	Path string
	Err  error
}

func (e *ResourceError) Error() string { return "read resource " + e.Path + ": " + e.Err.Error() }

func (e *ResourceError) Unwrap() error { return e.Err }

// WriteError wraps a transport failure while sending the response.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string { return "write response: " + e.Err.Error() }

func (e *WriteError) Unwrap() error { return e.Err }

// Write sends the status line for res followed by the bytes of res.Path and
// flushes. The file is opened before anything is written, so a file that
// cannot be opened leaves w untouched.
func Write(w io.Writer, res resource.Resolution) error {
	f, err := os.Open(res.Path)
	if err != nil {
		return &ResourceError{Path: res.Path, Err: err}
	}
	defer f.Close()

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(StatusLine(res.Status)); err != nil {
		return &WriteError{Err: err}
	}

	src := &trackingReader{r: f}
	if _, err := io.Copy(bw, src); err != nil {
		if src.err != nil {
			return &ResourceError{Path: res.Path, Err: src.err}
		}
		return &WriteError{Err: err}
	}
	if err := bw.Flush(); err != nil {
		return &WriteError{Err: err}
	}
	return nil
}

// trackingReader remembers the last non-EOF read error so a failed copy can
// be blamed on the right side.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		t.err = err
	}
	return n, err
}
