package main

import (
	"io"
	"net"
	"strings"
	"testing"
)

func TestSend_RequestLineFormat(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = send(client, "/home.html", "GET")
		client.Close()
	}()

	raw, _ := io.ReadAll(server)
	<-done

	if !strings.HasPrefix(string(raw), "GET /home.html HTTP/1.1\r\n") {
		t.Fatalf("request line: %q", raw)
	}
	if !strings.Contains(string(raw), "host: ") {
		t.Fatalf("missing host header: %q", raw)
	}
	if !strings.HasSuffix(string(raw), "\r\n\r\n") {
		t.Fatalf("missing terminating blank line: %q", raw)
	}
}

func TestSend_ExplicitMethod(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	go func() {
		_ = send(client, "/x.cgi", "REAL")
		client.Close()
	}()
	raw, _ := io.ReadAll(server)
	if !strings.HasPrefix(string(raw), "REAL /x.cgi HTTP/1.1\r\n") {
		t.Fatalf("request line: %q", raw)
	}
}
