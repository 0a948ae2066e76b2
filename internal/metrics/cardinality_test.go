package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordArchiveOperation_Labels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordArchiveOperation("pack", 10*time.Millisecond, 1024)
	m.RecordArchiveOperation("pack", 10*time.Millisecond, 2048)
	m.RecordArchiveOperation("unpack", 5*time.Millisecond, 512)

	packCount := testutil.ToFloat64(m.archiveOperationsTotal.WithLabelValues("pack"))
	assert.Equal(t, 2.0, packCount)

	unpackCount := testutil.ToFloat64(m.archiveOperationsTotal.WithLabelValues("unpack"))
	assert.Equal(t, 1.0, unpackCount)

	packBytes := testutil.ToFloat64(m.archiveOperationBytes.WithLabelValues("pack"))
	assert.Equal(t, 3072.0, packBytes)
}

func TestRecordArchiveError_Labels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordArchiveError("unpack", "DECRYPT_FAILED")
	m.RecordArchiveError("unpack", "DECRYPT_FAILED")

	count := testutil.ToFloat64(m.archiveOperationErrors.WithLabelValues("unpack", "DECRYPT_FAILED"))
	assert.Equal(t, 2.0, count)
}

func TestRecordProxyRequest_Labels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordProxyRequest("http", "forwarded", time.Millisecond)
	m.RecordProxyRequest("websocket", "forwarded", time.Millisecond)
	m.RecordProxyRequest("http", "forwarded", time.Millisecond)

	httpCount := testutil.ToFloat64(m.proxyRequestsTotal.WithLabelValues("http", "forwarded"))
	assert.Equal(t, 2.0, httpCount)

	wsCount := testutil.ToFloat64(m.proxyRequestsTotal.WithLabelValues("websocket", "forwarded"))
	assert.Equal(t, 1.0, wsCount)
}
