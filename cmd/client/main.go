// Command client is the companion test client of spec.md §6: it issues
// a single request with the given method (default GET) and prints the
// raw response. Grounded directly on original_source/client.c's
// clientSend/clientPrint/main.
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.NewApp()
	app.Name = "client"
	app.Usage = "a very, very primitive HTTP/1.0 test client"
	app.UsageText = "client HOST PORT PATH [METHOD]"
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	args := c.Args()
	if args.Len() < 3 {
		return cli.Exit("usage: client <host> <port> <filename> [method]", 1)
	}

	host := args.Get(0)
	port := args.Get(1)
	filename := args.Get(2)
	method := "GET"
	if args.Len() >= 4 {
		method = args.Get(3)
	}

	conn, err := net.Dial("tcp", net.JoinHostPort(host, port))
	if err != nil {
		return cli.Exit(fmt.Sprintf("could not connect to %s:%s: %v", host, port, err), 1)
	}
	defer conn.Close()

	if err := send(conn, filename, method); err != nil {
		return cli.Exit(fmt.Sprintf("send failed: %v", err), 1)
	}
	return print(conn)
}

// send writes the request line and a single Host header, matching
// clientSend's format exactly, including sending "HTTP/1.1" as the
// protocol token even though the server it targets speaks HTTP/1.0 only
// (original_source/client.c never corrected this, and the server's
// parser accepts any HTTP/1.x major-version-1 token).
func send(conn net.Conn, filename, method string) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	req := fmt.Sprintf("%s %s HTTP/1.1\r\nhost: %s\r\n\r\n", method, filename, hostname)
	_, err = conn.Write([]byte(req))
	return err
}

// print reads headers line by line, watching for Content-Length the way
// clientPrint does (informationally only; it doesn't bound how much body
// is read), then prints the body until EOF.
func print(conn net.Conn) error {
	r := bufio.NewReader(conn)

	for {
		line, err := r.ReadString('\n')
		if line != "" {
			fmt.Printf("Header: %s", line)
			var length int
			if n, scanErr := fmt.Sscanf(line, "Content-Length: %d", &length); scanErr == nil && n == 1 {
				fmt.Printf("Length = %d\n", length)
			}
		}
		if err != nil || line == "\r\n" {
			break
		}
	}

	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			os.Stdout.Write(buf[:n])
		}
		if err != nil {
			break
		}
	}
	return nil
}
