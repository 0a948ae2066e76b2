package proxy

import (
	"fmt"
	"io"
	"net"
	"time"
)

const (
	clientIOTimeout   = 15 * time.Second
	upstreamIOTimeout = 20 * time.Second
	relayBufferSize   = 8192
)

// HTTPForwarder relays a single ordinary (non-WebSocket) HTTP request to
// the matched route's upstream and the response back to the client.
type HTTPForwarder struct {
	connector *UpstreamConnector
	rewriter  HeaderRewriter
}

// NewHTTPForwarder builds a forwarder using connector to reach upstreams.
func NewHTTPForwarder(connector *UpstreamConnector) *HTTPForwarder {
	return &HTTPForwarder{connector: connector}
}

// Forward connects to route's upstream, sends req, and streams the
// response back to client.
func (f *HTTPForwarder) Forward(client net.Conn, req *HTTPRequest, route *Route, peerAddr string) error {
	upstream, err := f.connector.Connect(route)
	if err != nil {
		return err
	}
	defer upstream.Close()

	outbound := f.rewriter.BuildOutboundRequest(req, route, peerHost(peerAddr), false)

	_ = upstream.SetWriteDeadline(time.Now().Add(upstreamIOTimeout))
	if _, err := upstream.Write(outbound); err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamIO, err)
	}

	return relayResponse(client, upstream)
}

// relayResponse copies bytes from upstream to client until upstream
// signals EOF.
func relayResponse(client, upstream net.Conn) error {
	buf := make([]byte, relayBufferSize)
	for {
		_ = upstream.SetReadDeadline(time.Now().Add(upstreamIOTimeout))
		n, err := upstream.Read(buf)
		if n > 0 {
			_ = client.SetWriteDeadline(time.Now().Add(clientIOTimeout))
			if _, werr := client.Write(buf[:n]); werr != nil {
				return fmt.Errorf("%w: %v", ErrUpstreamIO, werr)
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrUpstreamIO, err)
		}
	}
}
