package http10

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"
)

// ---------- helpers ----------
type parsedResp struct {
	StatusLine string
	StatusCode int
	Reason     string
	Headers    map[string]string
	Body       string
}

func parseHTTP(raw string) parsedResp {
	parts := strings.SplitN(raw, "\r\n\r\n", 2)
	head := parts[0]
	body := ""
	if len(parts) == 2 {
		body = parts[1]
	}
	lines := strings.Split(head, "\r\n")
	sl := lines[0]

	h := make(map[string]string)
	for _, ln := range lines[1:] {
		if ln == "" {
			continue
		}
		col := strings.Index(ln, ":")
		if col < 0 {
			continue
		}
		k := ln[:col]
		// Stat-* headers use a double colon ("Stat-Thread-Id:: 3"), so the
		// second colon is part of the separator, not of the value.
		v := strings.TrimSpace(strings.TrimPrefix(ln[col+1:], ":"))
		h[k] = v
	}

	code := 0
	reason := ""
	if f := strings.Fields(sl); len(f) >= 3 {
		if n, err := strconv.Atoi(f[1]); err == nil {
			code = n
		}
		reason = strings.Join(f[2:], " ")
	}

	return parsedResp{
		StatusLine: sl,
		StatusCode: code,
		Reason:     reason,
		Headers:    h,
		Body:       body,
	}
}

// ---------- SplitTarget ----------
func TestSplitTarget_Variants(t *testing.T) {
	cases := []struct {
		in        string
		wantPath  string
		wantQuery string
	}{
		{"/hello?x=1&y=2", "/hello", "x=1&y=2"},
		{"/solo", "/solo", ""},
		{"/with-empty?", "/with-empty", ""},
		{"?onlyq=a=1", "", "onlyq=a=1"},
		{"", "", ""},
		{"/multi?one=1?two=2", "/multi", "one=1?two=2"},
	}
	for _, tc := range cases {
		p, q := SplitTarget(tc.in)
		if p != tc.wantPath || q != tc.wantQuery {
			t.Fatalf("SplitTarget(%q) -> (%q,%q) want (%q,%q)",
				tc.in, p, q, tc.wantPath, tc.wantQuery)
		}
	}
}

// ---------- WriteStatic ----------
func TestWriteStatic_HeadersAndBody(t *testing.T) {
	var buf bytes.Buffer
	arrival := time.Unix(1000, 250000000) // .25s -> usec 250000
	stats := Stats{
		Arrival:       arrival,
		Dispatch:      1500 * time.Microsecond,
		ThreadID:      3,
		ThreadCount:   10,
		ThreadStatic:  7,
		ThreadDynamic: 3,
	}
	body := []byte("<html>hi</html>")
	WriteStatic(&buf, "text/html", body, stats)

	pr := parseHTTP(buf.String())
	if pr.StatusLine != "HTTP/1.0 200 OK" {
		t.Fatalf("status line: %q", pr.StatusLine)
	}
	if pr.Headers["Content-Type"] != "text/html" {
		t.Fatalf("content-type: %q", pr.Headers["Content-Type"])
	}
	if pr.Headers["Content-Length"] != strconv.Itoa(len(body)) {
		t.Fatalf("content-length: %q", pr.Headers["Content-Length"])
	}
	if pr.Headers["Stat-Req-Arrival"] != "1000.250000" {
		t.Fatalf("arrival field: %q", pr.Headers["Stat-Req-Arrival"])
	}
	if pr.Headers["Stat-Req-Dispatch"] != "0.001500" {
		t.Fatalf("dispatch field: %q", pr.Headers["Stat-Req-Dispatch"])
	}
	if pr.Headers["Stat-Thread-Id"] != "3" {
		t.Fatalf("thread id: %q", pr.Headers["Stat-Thread-Id"])
	}
	if pr.Headers["Stat-Thread-Count"] != "10" {
		t.Fatalf("thread count: %q", pr.Headers["Stat-Thread-Count"])
	}
	if pr.Headers["Stat-Thread-Static"] != "7" {
		t.Fatalf("thread static: %q", pr.Headers["Stat-Thread-Static"])
	}
	if pr.Headers["Stat-Thread-Dynamic"] != "3" {
		t.Fatalf("thread dynamic: %q", pr.Headers["Stat-Thread-Dynamic"])
	}
	if pr.Body != string(body) {
		t.Fatalf("body mismatch: %q", pr.Body)
	}
}

// ---------- WriteDynamicHeader ----------
func TestWriteDynamicHeader_NoTrailingBlankLine(t *testing.T) {
	var buf bytes.Buffer
	stats := Stats{Arrival: time.Unix(5, 0), ThreadID: 1, ThreadCount: 1}
	WriteDynamicHeader(&buf, stats)

	raw := buf.String()
	if strings.Contains(raw, "\r\n\r\n") {
		t.Fatalf("dynamic header must not include a blank line: %q", raw)
	}
	if !strings.HasSuffix(raw, "Stat-Thread-Dynamic:: 0\r\n") {
		t.Fatalf("must end right after the last stat header: %q", raw)
	}
}

// ---------- WriteError ----------
func TestWriteError_CanonicalBody(t *testing.T) {
	var buf bytes.Buffer
	stats := Stats{Arrival: time.Unix(1, 0), ThreadID: 2}
	WriteError(&buf, "404", "Not Found", "Server couldn't find", "missing.html", stats)

	pr := parseHTTP(buf.String())
	if pr.StatusLine != "HTTP/1.0 404 Not Found" {
		t.Fatalf("status line: %q", pr.StatusLine)
	}
	wantBody := "<html><title>OS-HW3 Error</title><body bgcolor=fffff>\n" +
		"404: Not Found\n<p>Server couldn't find: missing.html\n<hr>OS-HW3 Web Server\n"
	if pr.Body != wantBody {
		t.Fatalf("body mismatch:\n got: %q\nwant: %q", pr.Body, wantBody)
	}
	if pr.Headers["Content-Length"] != strconv.Itoa(len(wantBody)) {
		t.Fatalf("content-length: %q want %d", pr.Headers["Content-Length"], len(wantBody))
	}
	if pr.Headers["Content-Type"] != "text/html" {
		t.Fatalf("content-type: %q", pr.Headers["Content-Type"])
	}
}

// ---------- FileType ----------
func TestFileType(t *testing.T) {
	cases := map[string]string{
		"home.html":   "text/html",
		"logo.gif":    "image/gif",
		"photo.jpg":   "image/jpeg",
		"script.cgi":  "text/plain",
		"noext":       "text/plain",
	}
	for name, want := range cases {
		if got := FileType(name); got != want {
			t.Fatalf("FileType(%q) = %q want %q", name, got, want)
		}
	}
}

// ---------- PeekMethod ----------
func TestPeekMethod_DoesNotConsume(t *testing.T) {
	raw := "GET /x HTTP/1.0\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(raw))

	m, err := PeekMethod(r, 16)
	if err != nil {
		t.Fatalf("PeekMethod err: %v", err)
	}
	if m != "GET" {
		t.Fatalf("method: %q", m)
	}

	req, err := ParseRequest(r)
	if err != nil {
		t.Fatalf("ParseRequest after peek err: %v", err)
	}
	if req.Method != "GET" || req.Target != "/x" {
		t.Fatalf("parsed request after peek mismatch: %+v", req)
	}
}

func TestPeekMethod_ShortBuffer(t *testing.T) {
	raw := "RE"
	r := bufio.NewReader(strings.NewReader(raw))
	m, err := PeekMethod(r, 16)
	if err != nil {
		t.Fatalf("PeekMethod err: %v", err)
	}
	if m != "RE" {
		t.Fatalf("method on short buffer: %q", m)
	}
}

// ---------- ParseRequest ----------
func TestParseRequest_Valid_BodyLeftover(t *testing.T) {
	raw := "" +
		"GET /hello?x=1 HTTP/1.0\r\n" +
		"Host: example.com\r\n" +
		"User-Agent: Go-Test\r\n" +
		"X-Trace: 123\r\n" +
		"\r\n" +
		"BODY-IGNORED"
	r := bufio.NewReader(strings.NewReader(raw))

	req, err := ParseRequest(r)
	if err != nil {
		t.Fatalf("ParseRequest err: %v", err)
	}
	if req.Method != "GET" || req.Target != "/hello?x=1" || req.Proto != "HTTP/1.0" {
		t.Fatalf("req line mismatch: %+v", req)
	}
	if req.Header["host"] != "example.com" {
		t.Fatalf("host: %q", req.Header["host"])
	}
	if req.Header["user-agent"] != "Go-Test" {
		t.Fatalf("ua: %q", req.Header["user-agent"])
	}
	if req.Header["x-trace"] != "123" {
		t.Fatalf("x-trace: %q", req.Header["x-trace"])
	}
	rest, _ := io.ReadAll(r)
	if string(rest) != "BODY-IGNORED" {
		t.Fatalf("leftover body mismatch: %q", string(rest))
	}
}

func TestParseRequest_DuplicateHeader_LastWins(t *testing.T) {
	raw := "" +
		"GET / HTTP/1.0\r\n" +
		"X-Dup: one\r\n" +
		"X-Dup: two\r\n" +
		"\r\n"
	r := bufio.NewReader(strings.NewReader(raw))
	req, err := ParseRequest(r)
	if err != nil {
		t.Fatalf("ParseRequest err: %v", err)
	}
	if req.Header["x-dup"] != "two" {
		t.Fatalf("duplicate header last-wins failed: %+v", req.Header)
	}
}

func TestParseRequest_BadCRLF_InRequestLine(t *testing.T) {
	raw := "GET / HTTP/1.0\nHost: x\r\n\r\n"
	_, err := ParseRequest(bufio.NewReader(strings.NewReader(raw)))
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("want ErrBadRequest, got %v", err)
	}
}

// original_source/client.c sends "HTTP/1.1" as the protocol token even
// though it is the sole client ever used against this HTTP/1.0 server, so
// any HTTP/1.x major-version-1 token must be accepted.
func TestParseRequest_AcceptsHTTP11Token(t *testing.T) {
	raw := "GET / HTTP/1.1\r\n\r\n"
	req, err := ParseRequest(bufio.NewReader(strings.NewReader(raw)))
	if err != nil {
		t.Fatalf("HTTP/1.1 token should be accepted, got err: %v", err)
	}
	if req.Proto != "HTTP/1.1" {
		t.Fatalf("proto: %q", req.Proto)
	}
}

func TestParseRequest_BadProto(t *testing.T) {
	raw := "GET / HTTP/2.0\r\n\r\n"
	_, err := ParseRequest(bufio.NewReader(strings.NewReader(raw)))
	if !errors.Is(err, ErrBadProto) {
		t.Fatalf("want ErrBadProto, got %v", err)
	}
}

func TestParseRequest_HeaderMissingColon(t *testing.T) {
	raw := "" +
		"GET / HTTP/1.0\r\n" +
		"BadHeader\r\n" +
		"\r\n"
	_, err := ParseRequest(bufio.NewReader(strings.NewReader(raw)))
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("want ErrBadRequest, got %v", err)
	}
}

func TestParseRequest_HeaderNoCRLF(t *testing.T) {
	raw := "" +
		"GET / HTTP/1.0\r\n" +
		"Host: example.com\n" +
		"\r\n"
	_, err := ParseRequest(bufio.NewReader(strings.NewReader(raw)))
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("want ErrBadRequest, got %v", err)
	}
}

func TestParseRequest_EOFBeforeBlankLine(t *testing.T) {
	raw := "" +
		"GET / HTTP/1.0\r\n" +
		"Host: example.com\r\n"
	_, err := ParseRequest(bufio.NewReader(strings.NewReader(raw)))
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("want ErrBadRequest, got %v", err)
	}
}

func TestParseRequest_BadRequestLineParts(t *testing.T) {
	raw := "GET /only-two-parts\r\n"
	_, err := ParseRequest(bufio.NewReader(strings.NewReader(raw)))
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("want ErrBadRequest, got %v", err)
	}
}

func TestParseRequest_EmptyReader_PropagatesEOF(t *testing.T) {
	_, err := ParseRequest(bufio.NewReader(strings.NewReader("")))
	if !errors.Is(err, io.EOF) {
		t.Fatalf("want io.EOF, got %v", err)
	}
}
