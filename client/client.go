// Command client sends a single request to a rawstatic server and prints
// the response.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"time"

	"github.com/fatih/color"

	"rawstatic/internal/response"
)

func main() {
	addr := flag.String("a", "localhost:8080", "Server address")
	path := flag.String("path", "/", "Path to request")
	method := flag.String("m", "GET", "Request method")
	timeout := flag.Duration("t", 5*time.Second, "Connection timeout")
	flag.Parse()

	conn, err := net.DialTimeout("tcp", *addr, *timeout)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(*timeout))

	fmt.Fprintf(conn, "%s %s HTTP/1.1\r\nHost: %s\r\n\r\n", *method, *path, *addr)

	resp, err := io.ReadAll(conn)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	if len(resp) == 0 {
		log.Fatalf("Error: server closed the connection without a response")
	}

	// The status line runs straight into the body with no separator.
	status, body := "", resp
	for _, line := range []string{response.StatusLineOK, response.StatusLineNotFound} {
		if rest, ok := bytes.CutPrefix(resp, []byte(line)); ok {
			status, body = line, rest
			break
		}
	}

	switch status {
	case response.StatusLineOK:
		color.New(color.FgGreen, color.Bold).Println(status)
	case "":
		color.New(color.FgRed, color.Bold).Println("unrecognized status line")
	default:
		color.New(color.FgYellow, color.Bold).Println(status)
	}
	os.Stdout.Write(body)
}
