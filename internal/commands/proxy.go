package commands

import (
	"context"
	"fmt"

	"github.com/kratepkg/krate/internal/audit"
	"github.com/kratepkg/krate/internal/obslog"
	"github.com/kratepkg/krate/internal/proxy"
)

func listenAddr(host string, port uint16) string {
	return fmt.Sprintf("%s:%d", host, port)
}

// ProxyStart binds the listener described by config and begins
// forwarding traffic per its route table.
func (h *Handler) ProxyStart(ctx context.Context, config proxy.StartConfig) (proxy.Status, error) {
	log := obslog.ForProxy(h.logger)
	addr := listenAddr(config.ListenHost, config.ListenPort)
	status, err := h.proxy.Start(config)
	if err != nil {
		log.WithError(err).Error("proxy start failed")
		h.metrics.RecordProxyUpstreamError(unwrapSentinel(err))
		h.audit.LogProxyOp(audit.EventTypeProxyStart, addr, false, err)
		return status, err
	}
	log.WithField("route_count", status.RouteCount).Info("proxy started")
	h.metrics.SetProxyRoutesLoaded(status.RouteCount)
	h.audit.LogProxyOp(audit.EventTypeProxyStart, addr, true, nil)
	return status, nil
}

// ProxyStop closes the active listener, if any.
func (h *Handler) ProxyStop(ctx context.Context) (proxy.Status, error) {
	log := obslog.ForProxy(h.logger)
	prior := h.proxy.Snapshot()
	addr := ""
	if prior.ListenHost != nil && prior.ListenPort != nil {
		addr = listenAddr(*prior.ListenHost, *prior.ListenPort)
	}
	status, err := h.proxy.Stop()
	if err != nil {
		log.WithError(err).Error("proxy stop failed")
		h.audit.LogProxyOp(audit.EventTypeProxyStop, addr, false, err)
		return status, err
	}
	log.Info("proxy stopped")
	h.metrics.SetProxyRoutesLoaded(0)
	h.audit.LogProxyOp(audit.EventTypeProxyStop, addr, true, nil)
	return status, nil
}

// ProxyGetStatus returns the current externally observable proxy state.
func (h *Handler) ProxyGetStatus(ctx context.Context) (proxy.Status, error) {
	return h.proxy.Snapshot(), nil
}
