package proxy

import "errors"

// Error kinds returned by the reverse proxy. Callers should use errors.Is
// against these sentinels; wrapped context is added with fmt.Errorf("%w").
var (
	ErrBindFailed          = errors.New("BIND_FAILED")
	ErrAlreadyRunning      = errors.New("ALREADY_RUNNING")
	ErrInvalidListen       = errors.New("INVALID_LISTEN")
	ErrNoRoutes            = errors.New("NO_ROUTES")
	ErrBadTarget           = errors.New("BAD_TARGET")
	ErrHeaderTooLarge      = errors.New("HEADER_TOO_LARGE")
	ErrChunkedNotSupported = errors.New("CHUNKED_NOT_SUPPORTED")
	ErrBadRequest          = errors.New("BAD_REQUEST")
	ErrNoRouteMatch        = errors.New("NO_ROUTE_MATCH")
	ErrUpstreamConnect     = errors.New("UPSTREAM_CONNECT")
	ErrUpstreamTLS         = errors.New("UPSTREAM_TLS")
	ErrUpstreamIO          = errors.New("UPSTREAM_IO")
	ErrWSUpgradeFailed     = errors.New("WS_UPGRADE_FAILED")
)
