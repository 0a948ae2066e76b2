package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/kratepkg/krate/internal/adminhttp"
	"github.com/kratepkg/krate/internal/commands"
	"github.com/kratepkg/krate/internal/config"
	"github.com/kratepkg/krate/internal/events"
	"github.com/kratepkg/krate/internal/metrics"
	"github.com/kratepkg/krate/internal/obslog"
	"github.com/kratepkg/krate/internal/proxy"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := config.Load()
	logger := obslog.New(cfg.LogLevel, cfg.LogFormat)

	switch os.Args[1] {
	case "pack":
		runPack(cfg, logger, os.Args[2:])
	case "unpack":
		runUnpack(cfg, logger, os.Args[2:])
	case "proxy":
		runProxy(cfg, logger, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: krate <pack|unpack|proxy> [flags]")
}

func runPack(cfg config.Config, logger *logrus.Logger, args []string) {
	fs := flag.NewFlagSet("pack", flag.ExitOnError)
	inputs := fs.String("inputs", "", "comma-separated list of files/directories to archive")
	output := fs.String("output", "", "output archive path")
	password := fs.String("password", "", "encrypt the archive with this password")
	level := fs.Int("level", cfg.Archive.DefaultGzipLevel, "gzip compression level (1-9)")
	fs.Parse(args)

	if *inputs == "" || *output == "" {
		fmt.Fprintln(os.Stderr, "pack: --inputs and --output are required")
		os.Exit(2)
	}

	bus := events.NewBus()
	defer bus.Close()
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()
	go logProgress(logger, ch)

	h := commands.NewWithAudit(logger, metrics.NewMetrics(), bus, cfg.Audit)

	var pw *string
	if *password != "" {
		pw = password
	}

	err := h.CreateArchive(context.Background(), splitCSV(*inputs), *output, pw, level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "pack failed:", err)
		os.Exit(1)
	}

	printJSON(map[string]any{"output": *output, "encrypted": pw != nil})
}

func runUnpack(cfg config.Config, logger *logrus.Logger, args []string) {
	fs := flag.NewFlagSet("unpack", flag.ExitOnError)
	archivePath := fs.String("archive", "", "archive path")
	outputDir := fs.String("output-dir", "", "directory to extract into")
	password := fs.String("password", "", "password for an encrypted archive")
	fs.Parse(args)

	if *archivePath == "" || *outputDir == "" {
		fmt.Fprintln(os.Stderr, "unpack: --archive and --output-dir are required")
		os.Exit(2)
	}

	bus := events.NewBus()
	defer bus.Close()
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()
	go logProgress(logger, ch)

	h := commands.NewWithAudit(logger, metrics.NewMetrics(), bus, cfg.Audit)

	var pw *string
	if *password != "" {
		pw = password
	}

	err := h.ExtractArchive(context.Background(), *archivePath, *outputDir, pw)
	if err != nil {
		fmt.Fprintln(os.Stderr, "unpack failed:", err)
		os.Exit(1)
	}

	printJSON(map[string]any{"outputDir": *outputDir})
}

func runProxy(cfg config.Config, logger *logrus.Logger, args []string) {
	fs := flag.NewFlagSet("proxy", flag.ExitOnError)
	configPath := fs.String("config", "", "path to a JSON or YAML (.yaml/.yml) file describing the route table")
	listenHost := fs.String("listen-host", cfg.Proxy.DefaultListenHost, "address to bind the proxy listener")
	listenPort := fs.Int("listen-port", int(cfg.Proxy.DefaultListenPort), "port to bind the proxy listener")
	fs.Parse(args)

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "proxy: --config is required")
		os.Exit(2)
	}

	routes, err := loadRoutes(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "proxy: failed to load route config:", err)
		os.Exit(1)
	}

	m := metrics.NewMetrics()
	m.StartSystemMetricsCollector()

	h := commands.NewWithAudit(logger, m, nil, cfg.Audit)

	status, err := h.ProxyStart(context.Background(), proxy.StartConfig{
		ListenHost: *listenHost,
		ListenPort: uint16(*listenPort),
		Routes:     routes,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "proxy: failed to start:", err)
		os.Exit(1)
	}
	logger.WithField("routes", status.RouteCount).Info("proxy listening")

	admin := adminhttp.New(m, logger, func(ctx context.Context) error {
		s, _ := h.ProxyGetStatus(ctx)
		if !s.Running {
			return fmt.Errorf("proxy listener is not running")
		}
		return nil
	})
	go func() {
		if err := adminhttp.ListenAndServe(cfg.AdminAddr, admin.Handler()); err != nil {
			logger.WithError(err).Warn("admin http server stopped")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	if _, err := h.ProxyStop(context.Background()); err != nil {
		logger.WithError(err).Error("proxy stop failed")
	}
}

// loadRoutes reads a route table from a JSON or YAML file, picking the
// decoder by extension; .yaml/.yml follows the teacher's own
// gateway-config.yaml convention (cmd/loadtest/main.go), JSON otherwise.
func loadRoutes(path string) ([]proxy.RouteInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var routes []proxy.RouteInput
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &routes)
	default:
		err = json.Unmarshal(data, &routes)
	}
	if err != nil {
		return nil, err
	}
	return routes, nil
}

func logProgress(logger *logrus.Logger, ch <-chan events.ProgressEvent) {
	for ev := range ch {
		logger.WithFields(logrus.Fields{
			"phase":   ev.Phase,
			"current": ev.Current,
			"total":   ev.Total,
		}).Info(ev.Message)
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
