// Package reqhandler implements the request handler contract of
// spec.md §4.5: parse the request line, classify the URI as static or
// dynamic, serve the file or fork/exec the CGI target, and emit the
// fixed Stat-* header block on every response. Grounded directly on
// original_source/request.c's requestParseURI/requestServeStatic/
// requestServeDynamic/requestHandle; the teacher repo had no equivalent
// (its internal/handlers package served unrelated CPU/IO busywork
// endpoints over a REST dispatch table, not a filesystem/CGI surface).
package reqhandler

import (
	"bufio"
	"context"
	"net"
	"os"
	"os/exec"
	"path"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"vipserver/internal/http10"
	"vipserver/internal/workerstats"
)

// Handler serves one request per call to Handle, rooted at a configured
// public directory, with a bound on how long a CGI child may run.
type Handler struct {
	publicDir  string
	cgiTimeout time.Duration
	log        *zap.Logger
}

// New builds a Handler. publicDir is the filesystem root URIs are
// resolved against (spec.md §4.5: "Path is rooted at ./public/").
func New(publicDir string, cgiTimeout time.Duration, log *zap.Logger) *Handler {
	return &Handler{publicDir: publicDir, cgiTimeout: cgiTimeout, log: log}
}

// classified is the result of URI classification: the resolved
// filesystem path, the CGI query string (if any), and whether the
// request is static.
type classified struct {
	filename  string
	cgiArgs   string
	static    bool
	forbidden bool
}

// classifyURI mirrors original_source/request.c's requestParseURI,
// including the forbidden_file.cgi special case and the output.cgi
// remap for every other dynamic URI (SPEC_FULL.md §4).
func (h *Handler) classifyURI(uri string) classified {
	if strings.Contains(uri, "..") {
		return classified{filename: path.Join(h.publicDir, "home.html"), static: true}
	}

	if strings.Contains(uri, ".cgi") || strings.Contains(uri, ".vip") {
		target, cgiArgs := http10.SplitTarget(uri)
		if strings.Contains(target, "forbidden_file.cgi") {
			return classified{
				filename:  path.Join(h.publicDir, strings.TrimPrefix(target, "/")),
				cgiArgs:   cgiArgs,
				static:    false,
				forbidden: true,
			}
		}
		return classified{
			filename: path.Join(h.publicDir, "output.cgi"),
			cgiArgs:  cgiArgs,
			static:   false,
		}
	}

	filename := path.Join(h.publicDir, strings.TrimPrefix(uri, "/"))
	if strings.HasSuffix(uri, "/") {
		filename = path.Join(filename, "home.html")
	}
	return classified{filename: filename, static: true}
}

// Handle reads one request from r, serves it on conn, and updates ws.
// arrival/dispatch/workerID come from the coordinator-admitted Request.
// A parse or I/O error aborts the request without a response, matching
// spec.md §7's "Connection I/O errors during serving" category — the
// caller is still responsible for closing conn and releasing capacity.
func (h *Handler) Handle(conn net.Conn, r *bufio.Reader, arrival time.Time, dispatch time.Duration, workerID int, ws *workerstats.Stats) {
	req, err := http10.ParseRequest(r)
	if err != nil {
		h.log.Debug("request parse failed", zap.Int("worker_id", workerID), zap.Error(err))
		return
	}

	method := strings.ToUpper(req.Method)
	stats := func() http10.Stats {
		snap := ws.Snapshot()
		return http10.Stats{
			Arrival:       arrival,
			Dispatch:      dispatch,
			ThreadID:      workerID,
			ThreadCount:   snap.Total,
			ThreadStatic:  snap.Static,
			ThreadDynamic: snap.Dynamic,
		}
	}

	if method != "GET" && method != "REAL" {
		http10.WriteError(conn, "501", "Not Implemented", "OS-HW3 Server does not implement this method", req.Method, stats())
		return
	}

	c := h.classifyURI(req.Target)

	// A REAL request re-classifies by URI content regardless of what
	// classifyURI decided, per spec.md §4.5.
	if method == "REAL" {
		c.static = !(strings.Contains(c.filename, ".cgi") || strings.Contains(req.Target, "cgi"))
	}

	info, err := os.Stat(c.filename)
	if err != nil {
		http10.WriteError(conn, "404", "Not found", "OS-HW3 Server could not find this file", c.filename, stats())
		return
	}

	if c.static {
		if !info.Mode().IsRegular() || info.Mode().Perm()&0o400 == 0 {
			http10.WriteError(conn, "403", "Forbidden", "OS-HW3 Server could not read this file", c.filename, stats())
			return
		}
		body, err := os.ReadFile(c.filename)
		if err != nil {
			http10.WriteError(conn, "403", "Forbidden", "OS-HW3 Server could not read this file", c.filename, stats())
			return
		}
		ws.IncStatic()
		h.log.Debug("serving static request", zap.Int("worker_id", workerID), zap.String("file", c.filename))
		http10.WriteStatic(conn, http10.FileType(c.filename), body, stats())
		return
	}

	if c.forbidden {
		http10.WriteError(conn, "403", "Forbidden", "OS-HW3 Server could not run this CGI program", c.filename, stats())
		return
	}
	if !info.Mode().IsRegular() || info.Mode().Perm()&0o100 == 0 {
		http10.WriteError(conn, "403", "Forbidden", "OS-HW3 Server could not run this CGI program", c.filename, stats())
		return
	}

	ws.IncDynamic()
	h.log.Debug("serving dynamic request", zap.Int("worker_id", workerID), zap.String("file", c.filename))
	http10.WriteDynamicHeader(conn, stats())
	h.runCGI(conn, c.filename, c.cgiArgs)
}

// runCGI execs filename with QUERY_STRING set from cgiArgs and its
// stdout redirected to conn, matching requestServeDynamic's
// Fork/Setenv/Dup2/Execve sequence. The child runs in its own process
// group (Setpgid in syscall.SysProcAttr) so a hung CGI script can be
// killed as a group with unix.Kill if it outlives cgiTimeout.
func (h *Handler) runCGI(conn net.Conn, filename, cgiArgs string) {
	ctx, cancel := context.WithTimeout(context.Background(), h.cgiTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, filename)
	cmd.Env = append(os.Environ(), "QUERY_STRING="+cgiArgs)
	cmd.Stdout = conn
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		h.log.Warn("cgi exec failed", zap.String("file", filename), zap.Error(err))
		return
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	select {
	case err := <-waitErr:
		if err != nil {
			h.log.Debug("cgi child exited with error", zap.String("file", filename), zap.Error(err))
		}
	case <-ctx.Done():
		if cmd.Process != nil {
			_ = unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
		}
		<-waitErr
		h.log.Warn("cgi child killed after timeout", zap.String("file", filename), zap.Duration("timeout", h.cgiTimeout))
	}
}
