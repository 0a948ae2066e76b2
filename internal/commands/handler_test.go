package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/kratepkg/krate/internal/metrics"
	"github.com/kratepkg/krate/internal/proxy"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	return l
}

func TestHandler_CreateAndExtractArchive_RoundTrip(t *testing.T) {
	h := New(testLogger(), metrics.NewMetrics(), nil)

	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	archivePath := filepath.Join(t.TempDir(), "out.krate")
	err := h.CreateArchive(context.Background(), []string{filepath.Join(src, "a.txt")}, archivePath, nil, nil)
	if err != nil {
		t.Fatalf("CreateArchive: %v", err)
	}

	outDir := t.TempDir()
	if err := h.ExtractArchive(context.Background(), archivePath, outDir, nil); err != nil {
		t.Fatalf("ExtractArchive: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(outDir, "a.txt"))
	if err != nil {
		t.Fatalf("reading extracted file: %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("got %q, want %q", got, "payload")
	}

	events := h.audit.GetEvents()
	if len(events) != 2 {
		t.Fatalf("expected 2 audit events (create + extract), got %d", len(events))
	}
	for _, e := range events {
		if !e.Success {
			t.Fatalf("expected every audit event to report success, got %+v", e)
		}
	}
}

func TestHandler_CreateArchive_CanceledContext(t *testing.T) {
	h := New(testLogger(), metrics.NewMetrics(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := h.CreateArchive(ctx, []string{filepath.Join(src, "a.txt")}, filepath.Join(t.TempDir(), "out.krate"), nil, nil)
	if err == nil {
		t.Fatal("expected an error for an already-canceled context")
	}
}

func TestHandler_ProxyLifecycle(t *testing.T) {
	h := New(testLogger(), metrics.NewMetrics(), nil)

	status, err := h.ProxyStart(context.Background(), proxy.StartConfig{
		ListenHost: "127.0.0.1",
		ListenPort: 0,
		Routes: []proxy.RouteInput{
			{Enabled: true, PathPrefix: "/", Target: "http://127.0.0.1:1"},
		},
	})
	if err == nil {
		t.Fatalf("expected ProxyStart to reject a zero listen port, got %+v", status)
	}

	got, err := h.ProxyGetStatus(context.Background())
	if err != nil {
		t.Fatalf("ProxyGetStatus: %v", err)
	}
	if got.Running {
		t.Fatal("expected the proxy to not be running after a failed start")
	}
}
