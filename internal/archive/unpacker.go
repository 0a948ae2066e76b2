package archive

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// UnpackOptions controls how Unpacker extracts an archive.
type UnpackOptions struct {
	ArchivePath string
	OutputDir   string
	Password    string // required iff the archive is encrypted
	Progress    *ProgressEmitter
}

// Unpacker composes Dispatch, gzip, tar, and (if the container is
// encrypted) DecryptReader into a single "extract archive" pipeline.
type Unpacker struct {
	pool *BufferPool
}

// NewUnpacker returns an Unpacker using its own buffer pool.
func NewUnpacker() *Unpacker {
	return &Unpacker{pool: NewBufferPool()}
}

// Unpack extracts the archive at opts.ArchivePath into opts.OutputDir.
func (u *Unpacker) Unpack(opts UnpackOptions) error {
	f, err := os.Open(opts.ArchivePath)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrPathNotFound, opts.ArchivePath)
	}
	defer f.Close()

	br := bufio.NewReader(f)

	legacy, header, payload, err := Dispatch(br)
	if err != nil {
		return err
	}

	opts.Progress.Emit(0, 0, "extracting")

	if legacy {
		if err := u.unpackGzipTar(payload, opts.OutputDir); err != nil {
			return err
		}
		opts.Progress.Emit(1, 1, "done")
		return nil
	}

	var gzSrc io.Reader = payload
	if header.Encrypted {
		if opts.Password == "" {
			return ErrPasswordRequired
		}
		key, err := DeriveKey([]byte(opts.Password), header.Salt)
		if err != nil {
			return err
		}
		defer zero(key)
		sc, err := NewStreamCipher(key, header.NoncePrefix)
		if err != nil {
			return err
		}
		gzSrc = NewDecryptReader(sc, payload, u.pool)
	}

	if err := u.unpackGzipTar(gzSrc, opts.OutputDir); err != nil {
		return err
	}
	opts.Progress.Emit(1, 1, "done")
	return nil
}

// unpackGzipTar extracts src into outputDir. If outputDir did not exist
// before this call, any failure after it's created removes the whole
// tree, so a failed extract never leaves a partially-populated directory
// where none existed before — the unpack analogue of Pack's output-file
// cleanup. A pre-existing outputDir is left as-is on failure, since this
// call didn't own its lifecycle.
func (u *Unpacker) unpackGzipTar(src io.Reader, outputDir string) (err error) {
	// DECRYPT_FAILED from DecryptReader is passed through unwrapped.
	wrap := func(kind, cause error) error {
		if errors.Is(cause, ErrDecryptFailed) {
			return cause
		}
		return fmt.Errorf("%w: %v", kind, cause)
	}
	gz, err := gzip.NewReader(src)
	if err != nil {
		return wrap(ErrGzipIO, err)
	}
	defer gz.Close()

	cleanOutputDir, err := filepath.Abs(filepath.Clean(outputDir))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSinkIO, err)
	}

	_, statErr := os.Stat(cleanOutputDir)
	preExisted := statErr == nil
	if err := os.MkdirAll(cleanOutputDir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrSinkIO, err)
	}
	succeeded := false
	defer func() {
		if !succeeded && !preExisted {
			os.RemoveAll(cleanOutputDir)
		}
	}()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return wrap(ErrTarIO, err)
		}

		target, err := safeJoin(cleanOutputDir, hdr.Name)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTarIO, err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("%w: %v", ErrTarIO, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("%w: %v", ErrTarIO, err)
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode)&0o777)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrTarIO, err)
			}
			_, copyErr := io.Copy(out, tr)
			closeErr := out.Close()
			if copyErr != nil {
				return wrap(ErrTarIO, copyErr)
			}
			if closeErr != nil {
				return fmt.Errorf("%w: %v", ErrTarIO, closeErr)
			}
		default:
			// symlinks, devices, etc. are skipped rather than honored, since
			// extracting them verbatim would let an archive plant files
			// outside its entry list's own content.
		}
	}
	// Read through the gzip footer so a truncated stream is reported.
	if _, err := io.Copy(io.Discard, gz); err != nil {
		return wrap(ErrGzipIO, err)
	}
	succeeded = true
	return nil
}

// safeJoin joins name onto base and rejects any result that escapes base,
// defending against path traversal ("../../etc/passwd") entries in a
// crafted archive. archive/tar performs no such check itself.
func safeJoin(base, name string) (string, error) {
	cleanName := filepath.Clean(string(filepath.Separator) + filepath.FromSlash(name))
	target := filepath.Join(base, cleanName)
	if target != base && !strings.HasPrefix(target, base+string(filepath.Separator)) {
		return "", fmt.Errorf("archive: entry %q escapes output directory", name)
	}
	return target, nil
}
