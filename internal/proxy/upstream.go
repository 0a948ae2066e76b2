package proxy

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"
)

const upstreamDialTimeout = 20 * time.Second

// UpstreamConnector dials and, for https/wss routes, TLS-wraps the
// connection to a route's target. It builds its two TLS client configs
// once, at construction time, and reuses them for every connection
// rather than constructing a fresh TLS connector per request: the
// original this is grounded on builds a fresh native-tls connector for
// every single connection, which is needless overhead Go's crypto/tls
// doesn't require since *tls.Config is safe for concurrent reuse.
type UpstreamConnector struct {
	secureTLS   *tls.Config
	insecureTLS *tls.Config
}

// NewUpstreamConnector builds both reusable TLS configurations.
func NewUpstreamConnector() *UpstreamConnector {
	return &UpstreamConnector{
		secureTLS:   &tls.Config{MinVersion: tls.VersionTLS12},
		insecureTLS: &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: true}, //nolint:gosec // opt-in per route
	}
}

// Connect dials route's target, establishing TLS when the route's
// scheme is https, and applies read/write deadlines appropriate for a
// freshly dialed upstream connection.
func (c *UpstreamConnector) Connect(route *Route) (net.Conn, error) {
	addr := fmt.Sprintf("%s:%d", route.TargetHost, route.TargetPort)
	dialer := net.Dialer{Timeout: upstreamDialTimeout}

	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUpstreamConnect, addr, err)
	}
	setConnTimeouts(conn, upstreamDialTimeout)

	if route.TargetScheme == SchemeHTTP {
		return conn, nil
	}

	cfg := c.secureTLS
	if route.AllowInsecureTLS {
		cfg = c.insecureTLS
	}
	tlsConn := tls.Client(conn, withServerName(cfg, route.TargetHost))
	if err := tlsConn.Handshake(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrUpstreamTLS, err)
	}
	setConnTimeouts(tlsConn, upstreamDialTimeout)
	return tlsConn, nil
}

// withServerName returns a shallow copy of cfg with ServerName set, so
// the two shared base configs are never mutated by a particular
// connection's hostname.
func withServerName(cfg *tls.Config, serverName string) *tls.Config {
	clone := cfg.Clone()
	clone.ServerName = serverName
	return clone
}

func setConnTimeouts(conn net.Conn, d time.Duration) {
	deadline := time.Now().Add(d)
	_ = conn.SetReadDeadline(deadline)
	_ = conn.SetWriteDeadline(deadline)
}
