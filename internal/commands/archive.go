package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/kratepkg/krate/internal/archive"
	"github.com/kratepkg/krate/internal/audit"
)

// CreateArchive packs inputs into outputPath, optionally encrypting with
// password. The blocking pack work runs on its own goroutine, drained
// through a channel, so a caller that itself runs on a goroutine (or
// awaits ctx) is never blocked inside archive I/O or Argon2/ChaCha20
// work directly on its own stack — the Go analogue of the original's
// spawn_blocking dispatch.
func (h *Handler) CreateArchive(ctx context.Context, inputs []string, outputPath string, password *string, gzipLevel *int) error {
	log := h.archiveLog("pack")
	start := time.Now()

	level := 0
	if gzipLevel != nil {
		level = *gzipLevel
	}
	pw := ""
	if password != nil {
		pw = *password
	}

	done := make(chan error, 1)
	go func() {
		packer := archive.NewPacker()
		done <- packer.Pack(archive.PackOptions{
			Inputs:    inputs,
			Output:    outputPath,
			Password:  pw,
			GzipLevel: level,
			Progress:  archive.NewProgressEmitter(h.bus, "pack"),
		})
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = fmt.Errorf("pack canceled: %w", ctx.Err())
	}

	duration := time.Since(start)
	if err != nil {
		log.WithError(err).WithField("duration_ms", duration.Milliseconds()).Error("pack failed")
		h.metrics.RecordArchiveError("pack", unwrapSentinel(err))
		h.audit.LogArchiveOp(audit.EventTypeArchiveCreate, outputPath, false, err, duration, map[string]interface{}{"input_count": len(inputs)})
		return err
	}

	log.WithField("duration_ms", duration.Milliseconds()).Info("pack succeeded")
	h.metrics.RecordArchiveOperation("pack", duration, 0)
	h.audit.LogArchiveOp(audit.EventTypeArchiveCreate, outputPath, true, nil, duration, map[string]interface{}{"input_count": len(inputs)})
	return nil
}

// ExtractArchive unpacks archivePath into outputDir, following the same
// goroutine-dispatch pattern as CreateArchive.
func (h *Handler) ExtractArchive(ctx context.Context, archivePath, outputDir string, password *string) error {
	log := h.archiveLog("unpack")
	start := time.Now()

	pw := ""
	if password != nil {
		pw = *password
	}

	done := make(chan error, 1)
	go func() {
		unpacker := archive.NewUnpacker()
		done <- unpacker.Unpack(archive.UnpackOptions{
			ArchivePath: archivePath,
			OutputDir:   outputDir,
			Password:    pw,
			Progress:    archive.NewProgressEmitter(h.bus, "unpack"),
		})
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = fmt.Errorf("unpack canceled: %w", ctx.Err())
	}

	duration := time.Since(start)
	if err != nil {
		log.WithError(err).WithField("duration_ms", duration.Milliseconds()).Error("unpack failed")
		h.metrics.RecordArchiveError("unpack", unwrapSentinel(err))
		h.audit.LogArchiveOp(audit.EventTypeArchiveExtract, archivePath, false, err, duration, map[string]interface{}{"output_dir": outputDir})
		return err
	}

	log.WithField("duration_ms", duration.Milliseconds()).Info("unpack succeeded")
	h.metrics.RecordArchiveOperation("unpack", duration, 0)
	h.audit.LogArchiveOp(audit.EventTypeArchiveExtract, archivePath, true, nil, duration, map[string]interface{}{"output_dir": outputDir})
	return nil
}
