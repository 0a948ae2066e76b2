package archive

import "errors"

// Error kinds returned by the archive codec. Callers should use errors.Is
// against these sentinels; wrapped context is added with fmt.Errorf("%w").
var (
	ErrPathNotFound       = errors.New("PATH_NOT_FOUND")
	ErrNoInput            = errors.New("NO_INPUT")
	ErrBadMagic           = errors.New("BAD_MAGIC")
	ErrUnsupportedVersion = errors.New("UNSUPPORTED_VERSION")
	ErrPasswordRequired   = errors.New("PASSWORD_REQUIRED")
	ErrDecryptFailed      = errors.New("DECRYPT_FAILED")
	ErrTarIO              = errors.New("TAR_IO")
	ErrGzipIO             = errors.New("GZIP_IO")
	ErrSinkIO             = errors.New("SINK_IO")
	ErrKDFFailed          = errors.New("KDF_FAILED")
	ErrRNGFailed          = errors.New("RNG_FAILED")
)
