package proxy

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// BuildRoutes validates and normalizes the enabled routes in inputs,
// sorting them so the most specific route is tried first.
//
// Sort order is (path prefix length descending, host-is-set descending):
// a longer path prefix always wins a shorter one, and among equal-length
// prefixes a host-scoped route wins a host-agnostic one. The original
// this is grounded on only sorts by prefix length; the host tiebreak is
// named explicitly as required routing behavior here.
func BuildRoutes(inputs []RouteInput) ([]Route, error) {
	var routes []Route
	for _, in := range inputs {
		if !in.Enabled {
			continue
		}
		scheme, host, port, err := ParseTarget(in.Target)
		if err != nil {
			return nil, err
		}
		routes = append(routes, Route{
			Host:             NormalizeHostValue(in.Host),
			PathPrefix:       NormalizePathPrefix(in.PathPrefix),
			TargetScheme:     scheme,
			TargetHost:       host,
			TargetPort:       port,
			StripPrefix:      in.StripPrefix,
			AllowInsecureTLS: in.AllowInsecureTLS,
		})
	}

	sort.SliceStable(routes, func(i, j int) bool {
		li, lj := len(routes[i].PathPrefix), len(routes[j].PathPrefix)
		if li != lj {
			return li > lj
		}
		hi, hj := routes[i].Host != nil, routes[j].Host != nil
		return hi && !hj
	})

	return routes, nil
}

// ParseTarget parses a route target URL of the form
// scheme://host[:port], where scheme is http, https, ws, or wss (ws/wss
// are accepted as aliases for http/https, widening the scheme set the
// original only partially supported).
func ParseTarget(raw string) (TargetScheme, string, uint16, error) {
	normalized := strings.TrimRight(strings.TrimSpace(raw), "/")
	if normalized == "" {
		return 0, "", 0, fmt.Errorf("%w: target address is empty", ErrBadTarget)
	}

	var scheme TargetScheme
	var rest string
	switch {
	case strings.HasPrefix(normalized, "https://"):
		scheme, rest = SchemeHTTPS, normalized[len("https://"):]
	case strings.HasPrefix(normalized, "http://"):
		scheme, rest = SchemeHTTP, normalized[len("http://"):]
	case strings.HasPrefix(normalized, "wss://"):
		scheme, rest = SchemeHTTPS, normalized[len("wss://"):]
	case strings.HasPrefix(normalized, "ws://"):
		scheme, rest = SchemeHTTP, normalized[len("ws://"):]
	default:
		return 0, "", 0, fmt.Errorf("%w: target must start with http://, https://, ws://, or wss://", ErrBadTarget)
	}

	if rest == "" {
		return 0, "", 0, fmt.Errorf("%w: target address is empty", ErrBadTarget)
	}
	if strings.Contains(rest, "/") {
		return 0, "", 0, fmt.Errorf("%w: target must not include a path", ErrBadTarget)
	}
	if strings.Count(rest, ":") > 1 {
		return 0, "", 0, fmt.Errorf("%w: IPv6 targets are not supported", ErrBadTarget)
	}

	defaultPort := uint16(80)
	if scheme == SchemeHTTPS {
		defaultPort = 443
	}

	if idx := strings.LastIndex(rest, ":"); idx >= 0 {
		host := strings.TrimSpace(rest[:idx])
		portText := strings.TrimSpace(rest[idx+1:])
		port, err := strconv.ParseUint(portText, 10, 16)
		if err != nil {
			return 0, "", 0, fmt.Errorf("%w: invalid target port", ErrBadTarget)
		}
		if host == "" {
			return 0, "", 0, fmt.Errorf("%w: target host is empty", ErrBadTarget)
		}
		return scheme, host, uint16(port), nil
	}

	return scheme, rest, defaultPort, nil
}

// NormalizePathPrefix trims and slash-normalizes a route's path prefix.
func NormalizePathPrefix(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "/"
	}
	prefix := trimmed
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if len(prefix) > 1 {
		prefix = strings.TrimRight(prefix, "/")
	}
	return prefix
}

// NormalizeHostValue lowercases and strips a port from a route's host
// match value, returning nil for an empty or wildcard ("*") value
// meaning "match any host".
func NormalizeHostValue(raw string) *string {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" || value == "*" {
		return nil
	}
	host := strings.SplitN(value, ":", 2)[0]
	host = strings.TrimSpace(host)
	if host == "" {
		return nil
	}
	return &host
}

// SelectRoute returns the first route (in RouteTable's sorted priority
// order) whose host and path prefix both match the request.
func SelectRoute(routes []Route, requestHost *string, requestPath string) *Route {
	for i := range routes {
		route := &routes[i]
		hostMatch := route.Host == nil
		if route.Host != nil && requestHost != nil {
			hostMatch = *route.Host == *requestHost
		}
		if hostMatch && PathMatch(route.PathPrefix, requestPath) {
			return route
		}
	}
	return nil
}

// PathMatch reports whether path is covered by prefix. "/" matches
// everything; otherwise path must equal prefix or continue with a "/"
// so that, e.g., prefix "/api" matches "/api/v1" but not "/apikey".
func PathMatch(prefix, path string) bool {
	if prefix == "/" {
		return true
	}
	if path == prefix {
		return true
	}
	rest, ok := strings.CutPrefix(path, prefix)
	return ok && strings.HasPrefix(rest, "/")
}

// RewriteURI builds the outbound request-target for the upstream,
// optionally stripping the matched route's path prefix.
func RewriteURI(uri, path string, query *string, route *Route) string {
	nextPath := path
	if route.StripPrefix && route.PathPrefix != "/" {
		if rest, ok := strings.CutPrefix(path, route.PathPrefix); ok {
			switch {
			case rest == "":
				nextPath = "/"
			case strings.HasPrefix(rest, "/"):
				nextPath = rest
			default:
				nextPath = "/" + rest
			}
		}
	}

	if query != nil && *query != "" {
		return nextPath + "?" + *query
	}
	if strings.Contains(uri, "?") && nextPath == "/" {
		return "/"
	}
	return nextPath
}
