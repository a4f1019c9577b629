//go:build !linux

package server

import (
	"net"
	"strconv"
)

// listen falls back to the standard listener; the backlog is left to the OS.
func listen(host string, port, _ int) (net.Listener, error) {
	return net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
}
