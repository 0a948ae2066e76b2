package proxy

import (
	"bytes"
	"fmt"
	"net"
	"strings"
)

// hopByHopHeaders lists headers that must never be forwarded verbatim to
// the next hop, per RFC 7230 §6.1. The original this is grounded on only
// strips 5 of these by name; the fuller 8-header list is implemented here
// since it is explicitly named as the required rewriting behavior.
var hopByHopHeaders = map[string]bool{
	"connection":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailer":             true,
	"transfer-encoding":   true,
	"proxy-connection":    true,
	"keep-alive":          true,
	"host":                true,
}

// HeaderRewriter turns a parsed client request plus its matched route
// into the raw bytes of the outbound request to the upstream.
type HeaderRewriter struct{}

// BuildOutboundRequest serializes an outbound HTTP/1.1 request. When
// keepUpgrade is true (the WebSocket handshake path) the Upgrade header
// is preserved and Connection is rewritten to "Upgrade" instead of
// "close".
func (HeaderRewriter) BuildOutboundRequest(req *HTTPRequest, route *Route, peerIP string, keepUpgrade bool) []byte {
	outboundURI := RewriteURI(req.URI, req.Path, req.Query, route)

	var out bytes.Buffer
	fmt.Fprintf(&out, "%s %s %s\r\n", req.Method, outboundURI, req.Version)

	connectionTokens := stripTokens(connectionHeaderValue(req))

	hasContentLength := false
	var forwardedFor string
	for _, h := range req.Headers {
		lower := strings.ToLower(h.Name)
		if keepUpgrade && lower == "upgrade" {
			fmt.Fprintf(&out, "%s: %s\r\n", h.Name, h.Value)
			continue
		}
		if hopByHopHeaders[lower] || connectionTokens[lower] {
			continue
		}
		if lower == "content-length" {
			hasContentLength = true
		}
		if lower == "x-forwarded-for" {
			forwardedFor = h.Value
		}
		fmt.Fprintf(&out, "%s: %s\r\n", h.Name, h.Value)
	}

	if (route.TargetScheme == SchemeHTTP && route.TargetPort == 80) ||
		(route.TargetScheme == SchemeHTTPS && route.TargetPort == 443) {
		fmt.Fprintf(&out, "Host: %s\r\n", route.TargetHost)
	} else {
		fmt.Fprintf(&out, "Host: %s:%d\r\n", route.TargetHost, route.TargetPort)
	}

	if keepUpgrade {
		upgrade := headerValue(req, "upgrade")
		if upgrade == "" {
			upgrade = "websocket"
		}
		fmt.Fprintf(&out, "Upgrade: %s\r\n", upgrade)
		out.WriteString("Connection: Upgrade\r\n")
	} else {
		out.WriteString("Connection: close\r\n")
	}

	if forwardedFor != "" {
		fmt.Fprintf(&out, "X-Forwarded-For: %s, %s\r\n", forwardedFor, peerIP)
	} else {
		fmt.Fprintf(&out, "X-Forwarded-For: %s\r\n", peerIP)
	}
	if req.Host != "" {
		fmt.Fprintf(&out, "X-Forwarded-Host: %s\r\n", req.Host)
	}
	out.WriteString("X-Forwarded-Proto: http\r\n")

	if len(req.Body) > 0 && !hasContentLength {
		fmt.Fprintf(&out, "Content-Length: %d\r\n", len(req.Body))
	}

	out.WriteString("\r\n")
	if len(req.Body) > 0 {
		out.Write(req.Body)
	}

	return out.Bytes()
}

// headerValue returns the value of the first header matching key,
// case-insensitively, or "".
func headerValue(req *HTTPRequest, key string) string {
	for _, h := range req.Headers {
		if strings.EqualFold(h.Name, key) {
			return h.Value
		}
	}
	return ""
}

func connectionHeaderValue(req *HTTPRequest) string {
	return headerValue(req, "connection")
}

// stripTokens splits a Connection header's comma-separated value into a
// lowercased set of header names it additionally asks to have stripped.
func stripTokens(connectionValue string) map[string]bool {
	tokens := make(map[string]bool)
	for _, tok := range strings.Split(connectionValue, ",") {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok != "" {
			tokens[tok] = true
		}
	}
	return tokens
}

// IsWebSocketUpgrade reports whether req is requesting a WebSocket
// upgrade: an Upgrade header of "websocket" plus a Connection header
// whose value contains "upgrade" (case-insensitively, per RFC 6455).
func IsWebSocketUpgrade(req *HTTPRequest) bool {
	upgrade := strings.ToLower(headerValue(req, "upgrade"))
	connection := strings.ToLower(connectionHeaderValue(req))
	return upgrade == "websocket" && strings.Contains(connection, "upgrade")
}

// peerHost extracts the IP portion of a "host:port" remote address.
func peerHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
