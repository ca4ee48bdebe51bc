package http10

import (
	"fmt"
	"io"
	"time"
)

// Stats carries the six Stat-* values every response (success or error)
// must report, per spec.md §4.5/§6.
type Stats struct {
	Arrival       time.Time
	Dispatch      time.Duration
	ThreadID      int
	ThreadCount   int64
	ThreadStatic  int64
	ThreadDynamic int64
}

// formatTV renders a tv_sec.tv_usec pair the way the original C server's
// sprintf("%lu.%06lu", ...) did: seconds, a dot, then microseconds
// zero-padded to 6 digits.
func formatTV(sec int64, usec int64) string {
	return fmt.Sprintf("%d.%06d", sec, usec)
}

func (s Stats) arrivalField() string {
	return formatTV(s.Arrival.Unix(), int64(s.Arrival.Nanosecond()/1000))
}

func (s Stats) dispatchField() string {
	d := s.Dispatch
	if d < 0 {
		d = 0
	}
	sec := int64(d / time.Second)
	usec := int64((d % time.Second) / time.Microsecond)
	return formatTV(sec, usec)
}

func writeStatHeaders(w io.Writer, s Stats) {
	fmt.Fprintf(w, "Stat-Req-Arrival:: %s\r\n", s.arrivalField())
	fmt.Fprintf(w, "Stat-Req-Dispatch:: %s\r\n", s.dispatchField())
	fmt.Fprintf(w, "Stat-Thread-Id:: %d\r\n", s.ThreadID)
	fmt.Fprintf(w, "Stat-Thread-Count:: %d\r\n", s.ThreadCount)
	fmt.Fprintf(w, "Stat-Thread-Static:: %d\r\n", s.ThreadStatic)
	fmt.Fprintf(w, "Stat-Thread-Dynamic:: %d\r\n", s.ThreadDynamic)
}

// WriteStatic emits a complete 200 OK static-file response: status line,
// Server, Content-Length, Content-Type, the stat headers, a blank line,
// and body. Mirrors original_source/request.c's requestServeStatic.
func WriteStatic(w io.Writer, contentType string, body []byte, s Stats) {
	fmt.Fprintf(w, "HTTP/1.0 200 OK\r\n")
	fmt.Fprintf(w, "Server: OS-HW3 Web Server\r\n")
	fmt.Fprintf(w, "Content-Length: %d\r\n", len(body))
	fmt.Fprintf(w, "Content-Type: %s\r\n", contentType)
	writeStatHeaders(w, s)
	io.WriteString(w, "\r\n")
	w.Write(body)
}

// WriteDynamicHeader emits the status line, Server, and stat headers for
// a CGI response, but deliberately no blank line: the CGI child process
// writes its own remaining headers, the separating blank line, and body
// directly to the same connection (original_source/request.c's
// requestServeDynamic hands the fd to the child via dup2 after writing
// exactly this much).
func WriteDynamicHeader(w io.Writer, s Stats) {
	fmt.Fprintf(w, "HTTP/1.0 200 OK\r\n")
	fmt.Fprintf(w, "Server: OS-HW3 Web Server\r\n")
	writeStatHeaders(w, s)
}

// errorBody renders the canonical OS-HW3 error body of spec.md §6. Byte
// sequence is exact up to and including the trailing "<hr>OS-HW3 Web
// Server\n"; this implementation does not reproduce the harness-tuned
// extra blank-line padding original_source/request.c's requestError used
// (see SPEC_FULL.md §1, Open Question resolution).
func errorBody(errnum, shortmsg, longmsg, cause string) []byte {
	body := fmt.Sprintf(
		"<html><title>OS-HW3 Error</title><body bgcolor=fffff>\n%s: %s\n<p>%s: %s\n<hr>OS-HW3 Web Server\n",
		errnum, shortmsg, longmsg, cause,
	)
	return []byte(body)
}

// WriteError emits a complete error response (404/403/501) with the
// exact OS-HW3 error body and the full stats header block, per spec.md
// §4.5/§6/§7.
func WriteError(w io.Writer, errnum, shortmsg, longmsg, cause string, s Stats) {
	body := errorBody(errnum, shortmsg, longmsg, cause)

	fmt.Fprintf(w, "HTTP/1.0 %s %s\r\n", errnum, shortmsg)
	fmt.Fprintf(w, "Server: OS-HW3 Web Server\r\n")
	fmt.Fprintf(w, "Content-Type: text/html\r\n")
	fmt.Fprintf(w, "Content-Length: %d\r\n", len(body))
	writeStatHeaders(w, s)
	io.WriteString(w, "\r\n")
	w.Write(body)
}

// FileType derives the Content-Type from filename's extension, per
// spec.md §4.5: .html, .gif, .jpg are recognized, everything else is
// served as text/plain.
func FileType(filename string) string {
	switch {
	case hasSuffix(filename, ".html"):
		return "text/html"
	case hasSuffix(filename, ".gif"):
		return "image/gif"
	case hasSuffix(filename, ".jpg"):
		return "image/jpeg"
	default:
		return "text/plain"
	}
}

func hasSuffix(s, suffix string) bool {
	if len(s) < len(suffix) {
		return false
	}
	return s[len(s)-len(suffix):] == suffix
}
