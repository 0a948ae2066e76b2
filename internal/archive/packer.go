package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// PackOptions controls how Packer builds an archive.
type PackOptions struct {
	Inputs    []string
	Output    string
	Password  string // empty means unencrypted
	GzipLevel int    // 1-9; values <= 0 (including 0, no compression) select 9; values > 9 clamp to 9
	Progress  *ProgressEmitter
}

// Packer composes EntryCollector, tar, gzip, and (optionally)
// EncryptWriter into a single "create archive" pipeline, writing the v1
// container format to the output path.
type Packer struct {
	pool *BufferPool
}

// NewPacker returns a Packer using its own buffer pool.
func NewPacker() *Packer {
	return &Packer{pool: NewBufferPool()}
}

// Pack builds the archive described by opts. On any failure after the
// output file has been created, the partial file is removed so a failed
// pack never leaves a corrupt archive on disk.
func (p *Packer) Pack(opts PackOptions) (err error) {
	if len(opts.Inputs) == 0 {
		return ErrNoInput
	}

	opts.Progress.EmitPhase("scan", 0, 0, "scanning")

	entries, err := EntryCollector{}.Collect(opts.Inputs)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return ErrNoInput
	}

	level := opts.GzipLevel
	if level <= 0 {
		level = gzip.BestCompression
	}
	if level > gzip.BestCompression {
		level = gzip.BestCompression
	}

	out, err := os.Create(opts.Output)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSinkIO, err)
	}
	succeeded := false
	defer func() {
		closeErr := out.Close()
		if !succeeded {
			os.Remove(opts.Output)
		} else if closeErr != nil && err == nil {
			err = fmt.Errorf("%w: %v", ErrSinkIO, closeErr)
		}
	}()

	encrypted := opts.Password != ""
	h := Header{
		Encrypted:  encrypted,
		Compressed: true,
		GzipLevel:  uint8(level),
	}

	var sc *StreamCipher
	if encrypted {
		salt, err := NewSalt()
		if err != nil {
			return err
		}
		prefix, err := NewNoncePrefix()
		if err != nil {
			return err
		}
		key, err := DeriveKey([]byte(opts.Password), salt)
		if err != nil {
			return err
		}
		defer zero(key)
		sc, err = NewStreamCipher(key, prefix)
		if err != nil {
			return err
		}
		h.Salt = salt
		h.NoncePrefix = prefix
	}

	if err := WriteHeader(out, h); err != nil {
		return err
	}

	var payloadDst io.Writer = out
	var encWriter *EncryptWriter
	if encrypted {
		encWriter = NewEncryptWriter(sc, out, p.pool)
		payloadDst = encWriter
	}

	gz, err := gzip.NewWriterLevel(payloadDst, level)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGzipIO, err)
	}

	tw := tar.NewWriter(gz)

	total := uint64(len(entries))
	opts.Progress.Emit(0, total, "packing")

	for i, e := range entries {
		if err := addTarEntry(tw, e); err != nil {
			return fmt.Errorf("%w: %v", ErrTarIO, err)
		}
		opts.Progress.Emit(uint64(i+1), total, e.ArcName)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrTarIO, err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrGzipIO, err)
	}
	if encWriter != nil {
		if err := encWriter.Close(); err != nil {
			return err
		}
	}

	opts.Progress.Emit(total, total, "done")
	succeeded = true
	return nil
}

func addTarEntry(tw *tar.Writer, e Entry) error {
	info, err := os.Lstat(e.Source)
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = filepath.ToSlash(e.ArcName)

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(e.Source)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(tw, f)
	return err
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
