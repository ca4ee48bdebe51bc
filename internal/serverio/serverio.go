// Package serverio wires the admission coordinator and the request
// handler to an actual net.Listener: the accept loop peeks each
// connection to classify it, special-cases GET /metrics the same way
// the teacher's internal/server/server.go special-cased GET /status
// before falling through to router.Dispatch, and otherwise admits the
// connection through internal/coordinator before handing it to a worker
// goroutine.
package serverio

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"vipserver/internal/coordinator"
	"vipserver/internal/metrics"
	"vipserver/internal/queue"
	"vipserver/internal/reqhandler"
	"vipserver/internal/util"
	"vipserver/internal/workerstats"
)

// connHandle pairs an accepted connection with the bufio.Reader the
// accept loop already peeked from, so the worker that eventually drains
// the request reads from the exact same buffered stream instead of
// losing the peeked bytes.
type connHandle struct {
	net.Conn
	br *bufio.Reader
}

// Server owns the listener, the coordinator, the request handler, and
// the per-worker stats used in response headers and /metrics.
type Server struct {
	ln          net.Listener
	coord       *coordinator.State
	handler     *reqhandler.Handler
	peekTimeout time.Duration
	maxPeek     int

	ordinaryStats []*workerstats.Stats
	vipStats      *workerstats.Stats

	connCount atomic.Int64
	log       *zap.Logger
}

// New builds a Server with threads ordinary workers and exactly one VIP
// worker (spec.md §5: "N + 1 + 1 threads").
func New(ln net.Listener, coord *coordinator.State, handler *reqhandler.Handler, threads int, peekTimeout time.Duration, log *zap.Logger) *Server {
	s := &Server{
		ln:          ln,
		coord:       coord,
		handler:     handler,
		peekTimeout: peekTimeout,
		maxPeek:     2048,
		log:         log,
	}
	s.ordinaryStats = make([]*workerstats.Stats, threads)
	for i := range s.ordinaryStats {
		s.ordinaryStats[i] = workerstats.New(i)
	}
	s.vipStats = workerstats.New(threads)
	return s
}

// Start launches the worker goroutines: threads ordinary workers and one
// VIP worker, each looping on TakeOrdinary/TakeVIP for the lifetime of
// the process (spec.md §4.3-§4.4; there is no graceful shutdown).
func (s *Server) Start() {
	for _, ws := range s.ordinaryStats {
		go s.runOrdinaryWorker(ws)
	}
	go s.runVIPWorker()
}

func (s *Server) runOrdinaryWorker(ws *workerstats.Stats) {
	for {
		req := s.coord.TakeOrdinary(ws.ID)
		s.serve(req, ws)
		s.coord.ReleaseOrdinary(req)
	}
}

func (s *Server) runVIPWorker() {
	for {
		req := s.coord.TakeVIP(s.vipStats.ID)
		s.serve(req, s.vipStats)
		s.coord.ReleaseVIP(req)
	}
}

func (s *Server) serve(req *queue.Request, ws *workerstats.Stats) {
	ch, ok := req.Handle.(*connHandle)
	if !ok {
		return
	}
	defer ch.Close()
	s.handler.Handle(ch.Conn, ch.br, req.Arrival, req.Dispatch, req.HandlerID, ws)
}

// Serve runs the accept loop until the listener returns a non-recoverable
// error, per spec.md §7: "The accept loop's only fatal condition is
// accept itself returning a non-recoverable error." Each accepted
// connection's peek, classification, and admission decision runs
// synchronously here, on this single goroutine — spec.md §4.2: "Runs on a
// single accept loop thread"; §5: "Exactly N + 1 + 1 threads run". Only
// the worker handoff (serve, via the worker goroutines started by Start)
// is concurrent; a slow client's peek blocks the next Accept the way
// spec.md §9 says it must ("an accepted limitation of the source design
// and is preserved here"), which in turn keeps admission into vip/waiting
// in accept order, preserving the within-class FIFO guarantee of §5.
func (s *Server) Serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return err
		}
		s.connCount.Inc()
		s.acceptOne(conn)
	}
}

// acceptOne peeks conn's pending method (non-consuming), classifies it as
// VIP or ordinary, and runs the admission decision for it, all on the
// accept loop goroutine and in accept order with respect to every other
// connection.
func (s *Server) acceptOne(conn net.Conn) {
	arrival := time.Now()
	reqID := util.NewReqID()

	br := bufio.NewReaderSize(conn, 4096)
	_ = conn.SetReadDeadline(time.Now().Add(s.peekTimeout))
	method, target, peekErr := peekRequestLine(br, s.maxPeek)
	_ = conn.SetReadDeadline(time.Time{})

	// Fail-safe toward the prioritized path: a peek error (slow client,
	// reset, deadline) classifies as VIP rather than risking a dropped
	// VIP-equivalent request, mirroring original_source/request.c's
	// getRequestMetaData defaulting to 1 on a recv() failure.
	isVIP := peekErr != nil || strings.EqualFold(method, "REAL")

	if peekErr == nil && strings.EqualFold(method, "GET") && isMetricsPath(target) {
		s.log.Debug("serving metrics", zap.String("req_id", reqID))
		s.serveMetrics(conn)
		return
	}

	ch := &connHandle{Conn: conn, br: br}

	if isVIP {
		s.coord.AdmitVIP(ch, arrival)
		return
	}
	if _, admitted := s.coord.AdmitOrdinary(ch, arrival); !admitted {
		s.log.Debug("ordinary connection dropped by overload policy", zap.String("req_id", reqID))
	}
}

func isMetricsPath(target string) bool {
	path := target
	if i := strings.IndexByte(target, '?'); i >= 0 {
		path = target[:i]
	}
	return path == "/metrics"
}

// peekRequestLine inspects the buffered bytes for the method and target
// tokens of the pending request line without consuming them, so the
// worker that eventually calls reqhandler.Handle still sees the full
// request from the start.
func peekRequestLine(br *bufio.Reader, maxPeek int) (method, target string, err error) {
	// Peek only as far as the client has sent: take what is already
	// buffered, and wait for more bytes only while no CRLF has arrived.
	b, perr := br.Peek(1)
	for perr == nil && len(b) < maxPeek && !bytes.Contains(b, []byte("\r\n")) {
		n := br.Buffered()
		if n <= len(b) {
			n = len(b) + 1
		}
		if n > maxPeek {
			n = maxPeek
		}
		b, perr = br.Peek(n)
	}
	if len(b) == 0 {
		return "", "", perr
	}
	if i := bytes.Index(b, []byte("\r\n")); i >= 0 {
		b = b[:i]
	}
	fields := strings.Fields(string(b))
	if len(fields) == 0 {
		return "", "", fmt.Errorf("empty request-line peek")
	}
	method = fields[0]
	if len(fields) > 1 {
		target = fields[1]
	}
	return method, target, nil
}

// AllWorkerStats returns every worker's stats (ordinary workers first,
// VIP worker last), for /metrics.
func (s *Server) AllWorkerStats() []*workerstats.Stats {
	all := make([]*workerstats.Stats, 0, len(s.ordinaryStats)+1)
	all = append(all, s.ordinaryStats...)
	all = append(all, s.vipStats)
	return all
}

// serveMetrics renders the default Prometheus registry through
// promhttp.Handler, bridged into an HTTP/1.0 response by recording it
// into an httptest.ResponseRecorder first: promhttp speaks net/http, and
// this server speaks raw HTTP/1.0 over net.Conn, so the recorder is the
// simplest faithful adapter between the two.
func (s *Server) serveMetrics(conn net.Conn) {
	defer conn.Close()

	vipLatency, ordLatency := s.coord.DispatchLatency()
	metrics.Collect(s.coord.Snapshot(), vipLatency, ordLatency, s.AllWorkerStats())

	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	fmt.Fprintf(conn, "HTTP/1.0 %d %s\r\n", rec.Code, http.StatusText(rec.Code))
	for k, vs := range rec.Header() {
		for _, v := range vs {
			fmt.Fprintf(conn, "%s: %s\r\n", k, v)
		}
	}
	fmt.Fprintf(conn, "Content-Length: %d\r\n\r\n", rec.Body.Len())
	conn.Write(rec.Body.Bytes())
}
