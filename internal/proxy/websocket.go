package proxy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"
)

const (
	responseHeadTimeout = 20 * time.Second
	tunnelPollInterval  = 80 * time.Millisecond
	tunnelIdleSleep     = 10 * time.Millisecond
	tunnelIdleCutoff    = 1200 // × tunnelIdleSleep: ~12s of total silence after one side has gone away
)

// WebSocketTunnel performs the WebSocket handshake against the matched
// route's upstream and, once the upstream answers with 101 Switching
// Protocols, pumps bytes bidirectionally until either side disconnects.
type WebSocketTunnel struct {
	connector *UpstreamConnector
	rewriter  HeaderRewriter
}

// NewWebSocketTunnel builds a tunnel using connector to reach upstreams.
func NewWebSocketTunnel(connector *UpstreamConnector) *WebSocketTunnel {
	return &WebSocketTunnel{connector: connector}
}

// Forward relays the handshake and, on a successful upgrade, tunnels the
// connection. It reports whether the upstream actually switched
// protocols, since the request counter only advances on that outcome.
func (t *WebSocketTunnel) Forward(client net.Conn, req *HTTPRequest, route *Route, peerAddr string) (upgraded bool, err error) {
	upstream, err := t.connector.Connect(route)
	if err != nil {
		return false, err
	}
	defer upstream.Close()

	outbound := t.rewriter.BuildOutboundRequest(req, route, peerHost(peerAddr), true)
	_ = upstream.SetWriteDeadline(time.Now().Add(upstreamIOTimeout))
	if _, err := upstream.Write(outbound); err != nil {
		return false, fmt.Errorf("%w: %v", ErrWSUpgradeFailed, err)
	}

	head, tail, statusCode, err := readHTTPResponseHead(upstream)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrWSUpgradeFailed, err)
	}

	_ = client.SetWriteDeadline(time.Now().Add(clientIOTimeout))
	if _, err := client.Write(head); err != nil {
		return false, fmt.Errorf("%w: %v", ErrWSUpgradeFailed, err)
	}
	if len(tail) > 0 {
		if _, err := client.Write(tail); err != nil {
			return false, fmt.Errorf("%w: %v", ErrWSUpgradeFailed, err)
		}
	}

	if statusCode != 101 {
		return false, relayResponse(client, upstream)
	}

	if err := tunnel(client, upstream); err != nil {
		return true, err
	}
	return true, nil
}

// readHTTPResponseHead reads from r until it finds the blank line ending
// an HTTP response head, returning the head bytes, any bytes read past
// it, and the parsed status code.
func readHTTPResponseHead(r net.Conn) ([]byte, []byte, int, error) {
	var buf []byte
	tmp := make([]byte, 2048)
	_ = r.SetReadDeadline(time.Now().Add(responseHeadTimeout))
	for {
		n, err := r.Read(tmp)
		if n == 0 && err != nil {
			return nil, nil, 0, fmt.Errorf("upstream disconnected before sending a response head: %w", err)
		}
		buf = append(buf, tmp[:n]...)

		if pos := FindHeaderEnd(buf); pos >= 0 {
			headLen := pos + 4
			status := parseStatusCode(buf[:headLen])
			return buf[:headLen], buf[headLen:], status, nil
		}
		if len(buf) > maxHeaderBytes {
			return nil, nil, 0, ErrHeaderTooLarge
		}
	}
}

func parseStatusCode(head []byte) int {
	line, _, _ := bytes.Cut(head, []byte("\r\n"))
	fields := bytes.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	var code int
	for _, b := range fields[1] {
		if b < '0' || b > '9' {
			return 0
		}
		code = code*10 + int(b-'0')
	}
	return code
}

// tunnel pumps bytes bidirectionally between client and upstream using
// short read deadlines on both sides, so each side gets checked in
// turn rather than blocking on one. A shared idle budget (measured in
// wall-clock time, since each idle cycle also waits out the read polls)
// only forces a close once at least one side has already signaled
// disconnect, preventing a merely-quiet (but still healthy) tunnel from
// being torn down.
func tunnel(client, upstream net.Conn) error {
	_ = client.SetWriteDeadline(time.Time{})
	_ = upstream.SetWriteDeadline(time.Time{})

	clientClosed := false
	upstreamClosed := false
	var idleSince time.Time
	cBuf := make([]byte, relayBufferSize)
	uBuf := make([]byte, relayBufferSize)

	for {
		progressed := false

		if !clientClosed {
			_ = client.SetReadDeadline(time.Now().Add(tunnelPollInterval))
			n, err := client.Read(cBuf)
			switch {
			case n > 0:
				if _, werr := upstream.Write(cBuf[:n]); werr != nil {
					return fmt.Errorf("%w: %v", ErrUpstreamIO, werr)
				}
				progressed = true
			case err == nil:
				clientClosed = true
			case isRetryableIOError(err):
			case isDisconnectedIOError(err):
				clientClosed = true
			default:
				return fmt.Errorf("%w: reading client tunnel data: %v", ErrUpstreamIO, err)
			}
		}

		if !upstreamClosed {
			_ = upstream.SetReadDeadline(time.Now().Add(tunnelPollInterval))
			n, err := upstream.Read(uBuf)
			switch {
			case n > 0:
				if _, werr := client.Write(uBuf[:n]); werr != nil {
					return fmt.Errorf("%w: %v", ErrUpstreamIO, werr)
				}
				progressed = true
			case err == nil:
				upstreamClosed = true
			case isRetryableIOError(err):
			case isDisconnectedIOError(err):
				upstreamClosed = true
			default:
				return fmt.Errorf("%w: reading upstream tunnel data: %v", ErrUpstreamIO, err)
			}
		}

		if clientClosed && upstreamClosed {
			return nil
		}
		if progressed {
			idleSince = time.Time{}
			continue
		}

		if idleSince.IsZero() {
			idleSince = time.Now()
		}
		if time.Since(idleSince) > tunnelIdleCutoff*tunnelIdleSleep && (clientClosed || upstreamClosed) {
			return nil
		}
		time.Sleep(tunnelIdleSleep)
	}
}

func isRetryableIOError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}

// isDisconnectedIOError reports whether err represents a peer going away
// cleanly or abruptly, rather than a transient or unexpected failure. It
// mirrors the original implementation's is_disconnected_io_error, which
// treats BrokenPipe/ConnectionReset/ConnectionAborted/NotConnected/
// UnexpectedEof as one "closed" outcome.
func isDisconnectedIOError(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ENOTCONN)
}
