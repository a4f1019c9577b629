// Package request reads the request line and header lines of a connection.
//
// A request is the sequence of lines up to the first blank line (or the end
// of the stream). Every non-blank line is joined with a single space and split
// on whitespace into Tokens. The method, path and version come from the
// request line itself; a request line with no version is accepted and leaves
// Version empty. Header lines are kept raw and only Host is ever looked up.
//
//	GET /docs/guide.txt HTTP/1.1
//	Host: localhost:8080
//	User-Agent: curl/8.5.0
//
package request

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformed is returned when the request line is blank, absent or has no
// path. The connection should be closed without a response.
var ErrMalformed = errors.New("malformed request")

// ReadError wraps a transport failure while reading the request.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string { return "read request: " + e.Err.Error() }

func (e *ReadError) Unwrap() error { return e.Err }

// Request is one parsed request. It is never modified after Read returns.
type Request struct {
	Method  string
	Path    string
	Version string
	// Headers holds the raw lines that followed the request line.
	Headers []string
	// Tokens is the whole request split on whitespace.
	Tokens []string
}

// Read consumes lines from r until a blank line or the end of the stream.
// Lines longer than maxLine bytes make the request malformed.
func Read(r io.Reader, maxLine int) (*Request, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, min(4096, maxLine)), maxLine)

	var lines []string
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			break
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, fmt.Errorf("%w: line exceeds %d bytes", ErrMalformed, maxLine)
		}
		return nil, &ReadError{Err: err}
	}

	return Parse(lines)
}

// Parse builds a Request from already split lines, the first being the
// request line.
func Parse(lines []string) (*Request, error) {
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return nil, fmt.Errorf("%w: empty request line", ErrMalformed)
	}
	first := strings.Fields(lines[0])
	if len(first) < 2 {
		return nil, fmt.Errorf("%w: request line has %d fields", ErrMalformed, len(first))
	}

	req := &Request{
		Method:  first[0],
		Path:    first[1],
		Headers: lines[1:],
		Tokens:  strings.Fields(strings.Join(lines, " ")),
	}
	if len(first) > 2 {
		req.Version = first[2]
	}
	return req, nil
}

// Line returns the request line as "METHOD PATH VERSION", or "METHOD PATH"
// when the version was omitted.
func (r *Request) Line() string {
	if r.Version == "" {
		return r.Method + " " + r.Path
	}
	return r.Method + " " + r.Path + " " + r.Version
}

// Host returns the value of the first Host header line, or "" if there is
// none. Only a line whose name is Host counts, so a value such as
// "Referer: host:8080" never matches.
func (r *Request) Host() string {
	for _, line := range r.Headers {
		name, value, ok := strings.Cut(line, ":")
		if ok && strings.EqualFold(strings.TrimSpace(name), "host") {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
