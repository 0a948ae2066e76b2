package commands

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/kratepkg/krate/internal/audit"
	"github.com/kratepkg/krate/internal/config"
	"github.com/kratepkg/krate/internal/events"
	"github.com/kratepkg/krate/internal/metrics"
	"github.com/kratepkg/krate/internal/obslog"
	"github.com/kratepkg/krate/internal/proxy"
)

// Handler exposes the five external operations of the system:
// CreateArchive, ExtractArchive, ProxyStart, ProxyStop, ProxyGetStatus.
// It wraps every call with the structured logging + metrics observation
// pattern the rest of the codebase applies to each handler call.
type Handler struct {
	logger  *logrus.Logger
	metrics *metrics.Metrics
	bus     *events.Bus
	proxy   *proxy.ProxyState
	audit   audit.Logger
}

// New builds a Handler whose audit logger uses a stdout sink: every
// command invocation still writes one audit event to stdout and keeps it
// in the logger's in-memory event buffer. bus may be nil if the caller
// does not want progress events (e.g. a non-interactive batch run).
func New(logger *logrus.Logger, m *metrics.Metrics, bus *events.Bus) *Handler {
	return NewWithAudit(logger, m, bus, config.AuditConfig{Enabled: false, MaxEvents: 1000, Sink: config.AuditSinkConfig{Type: "stdout"}})
}

// NewWithAudit builds a Handler whose command invocations are recorded
// through an audit.Logger built from auditCfg.
func NewWithAudit(logger *logrus.Logger, m *metrics.Metrics, bus *events.Bus, auditCfg config.AuditConfig) *Handler {
	auditLogger, err := audit.NewLoggerFromConfig(auditCfg)
	if err != nil {
		logger.WithError(err).Warn("falling back to stdout audit sink")
		auditLogger = audit.NewLogger(auditCfg.MaxEvents, nil)
	}

	return &Handler{
		logger:  logger,
		metrics: m,
		bus:     bus,
		proxy:   proxy.NewProxyState(obslog.ForProxy(logger)),
		audit:   auditLogger,
	}
}

func (h *Handler) archiveLog(operation string) *logrus.Entry {
	return obslog.ForArchiveOp(h.logger, operation)
}

// unwrapSentinel returns the taxonomy code prefix of err's message
// (e.g. "PATH_NOT_FOUND"), matching the "Error() string begins with the
// code" error-handling convention: sentinel errors are constructed via
// errors.New("CODE") and wrapped with fmt.Errorf("%w: ...") afterward,
// so the code is always the text up to the first ": ".
func unwrapSentinel(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, ":"); idx >= 0 {
		return msg[:idx]
	}
	return msg
}
