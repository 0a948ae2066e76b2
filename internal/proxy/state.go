package proxy

import (
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// ProxyState owns at most one active listener at a time and the routing
// table it was started with. A single mutex spans binding the listener,
// spawning its accept-loop goroutine, and recording the resulting
// runtime handle: this is simpler than (and, for the single property
// actually required — exactly one Start call succeeds and no listener
// is ever orphaned — just as correct as) a bind-first/recheck-under-lock/
// roll-back-on-race scheme, since the whole sequence never blocks long
// enough to make holding the lock across it costly.
type ProxyState struct {
	mu sync.Mutex

	listener   net.Listener
	routes     []Route
	listenHost string
	listenPort uint16
	startedAt  uint64
	lastError  *string

	totalRequests uint64 // atomic

	connector *UpstreamConnector
	forwarder *HTTPForwarder
	tunnel    *WebSocketTunnel

	log *logrus.Entry
}

// NewProxyState builds an idle ProxyState. log may be nil, in which
// case a disabled logger is used.
func NewProxyState(log *logrus.Entry) *ProxyState {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}
	connector := NewUpstreamConnector()
	return &ProxyState{
		connector: connector,
		forwarder: NewHTTPForwarder(connector),
		tunnel:    NewWebSocketTunnel(connector),
		log:       log,
	}
}

// Start validates cfg, binds a listener, and begins accepting
// connections in the background. It fails with ErrAlreadyRunning if a
// listener is already active.
func (p *ProxyState) Start(cfg StartConfig) (Status, error) {
	if cfg.ListenPort == 0 {
		return Status{}, fmt.Errorf("%w: listen port must be nonzero", ErrInvalidListen)
	}
	routes, err := BuildRoutes(cfg.Routes)
	if err != nil {
		return Status{}, err
	}
	if len(routes) == 0 {
		return Status{}, ErrNoRoutes
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.listener != nil {
		return Status{}, ErrAlreadyRunning
	}

	addr := fmt.Sprintf("%s:%d", cfg.ListenHost, cfg.ListenPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return Status{}, fmt.Errorf("%w: %s: %v", ErrBindFailed, addr, err)
	}

	p.listener = ln
	p.routes = routes
	p.listenHost = cfg.ListenHost
	p.listenPort = cfg.ListenPort
	p.startedAt = currentUnixSeconds()
	p.lastError = nil
	atomic.StoreUint64(&p.totalRequests, 0)

	go p.acceptLoop(ln, routes)

	return p.snapshotLocked(), nil
}

// Stop closes the active listener, if any, so the accept loop returns.
func (p *ProxyState) Stop() (Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.listener == nil {
		return p.snapshotLocked(), nil
	}
	err := p.listener.Close()
	p.listener = nil
	p.routes = nil
	if err != nil {
		return p.snapshotLocked(), fmt.Errorf("closing listener: %w", err)
	}
	return p.snapshotLocked(), nil
}

// Snapshot returns the current externally observable state.
func (p *ProxyState) Snapshot() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *ProxyState) snapshotLocked() Status {
	running := p.listener != nil
	status := Status{
		Running:       running,
		RouteCount:    len(p.routes),
		TotalRequests: atomic.LoadUint64(&p.totalRequests),
		LastError:     p.lastError,
	}
	if running {
		host, port := p.listenHost, p.listenPort
		started := p.startedAt
		status.ListenHost = &host
		status.ListenPort = &port
		status.StartedAt = &started
		status.Message = "running"
	} else {
		status.Message = "stopped"
	}
	return status
}

// acceptLoop accepts connections on ln until it is closed, dispatching
// each to handleClient on its own goroutine. routes is captured at
// Start time: an in-flight accept loop keeps serving the routing table
// it was started with even if Stop/Start races happen around it.
func (p *ProxyState) acceptLoop(ln net.Listener, routes []Route) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go p.handleClient(conn, routes)
	}
}

func (p *ProxyState) handleClient(conn net.Conn, routes []Route) {
	defer conn.Close()

	req, err := (RequestParser{}).ReadRequest(conn)
	if err != nil {
		writeErrorResponse(conn, 400, "Bad Request")
		return
	}

	route := SelectRoute(routes, normalizedRequestHost(req), req.Path)
	if route == nil {
		writeErrorResponse(conn, 404, "Not Found")
		return
	}

	if IsWebSocketUpgrade(req) {
		upgraded, err := p.tunnel.Forward(conn, req, route, conn.RemoteAddr().String())
		if upgraded {
			atomic.AddUint64(&p.totalRequests, 1)
		}
		if err != nil {
			p.log.WithError(err).Debug("websocket tunnel ended")
		}
		return
	}

	if err := p.forwarder.Forward(conn, req, route, conn.RemoteAddr().String()); err != nil {
		p.log.WithError(err).Debug("forwarding request failed")
		writeErrorResponse(conn, 502, "Bad Gateway")
		return
	}
	atomic.AddUint64(&p.totalRequests, 1)
}

func normalizedRequestHost(req *HTTPRequest) *string {
	if req.Host == "" {
		return nil
	}
	host := NormalizeHostValue(req.Host)
	return host
}

func writeErrorResponse(conn net.Conn, status int, reason string) {
	body := fmt.Sprintf("%d %s\n", status, reason)
	resp := fmt.Sprintf(
		"HTTP/1.1 %d %s\r\nContent-Type: text/plain\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		status, reason, len(body), body,
	)
	_ = conn.SetWriteDeadline(time.Now().Add(clientIOTimeout))
	_, _ = conn.Write([]byte(resp))
}

func currentUnixSeconds() uint64 {
	return uint64(time.Now().Unix())
}
