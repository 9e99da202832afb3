package apk

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	// ErrNoSigningBlock is returned when the package carries no APK Signing Block.
	ErrNoSigningBlock = errors.New("no APK Signing Block")
	// ErrNoJARSignature is returned when META-INF holds no signature block files.
	ErrNoJARSignature = errors.New("no JAR signature")
	// ErrSchemeNotFound is returned when the signing block has no entry for the
	// requested signature scheme.
	ErrSchemeNotFound = errors.New("signature scheme not present in signing block")
)

// FormatError reports a structurally invalid package.
type FormatError struct {
	Message string // User-friendly message
	Detail  string // Technical details
}

func (e *FormatError) Error() string {
	if e.Detail == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

func formatErr(message, format string, args ...any) error {
	return &FormatError{Message: message, Detail: fmt.Sprintf(format, args...)}
}

// Package is an opened APK.
type Package struct {
	r      io.ReaderAt
	size   int64
	zip    *zip.Reader
	closer io.Closer
}

// Open opens the APK at path. The caller must Close it.
func Open(path string) (*Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open package: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat package: %w", err)
	}

	pkg, err := NewPackage(f, info.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	pkg.closer = f

	return pkg, nil
}

// NewPackage reads an APK from r, which must hold size bytes.
func NewPackage(r io.ReaderAt, size int64) (*Package, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, formatErr("not a zip archive", "%v", err)
	}

	return &Package{r: r, size: size, zip: zr}, nil
}

// Close releases the underlying file, if Open created one.
func (p *Package) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}

// Size returns the package size in bytes.
func (p *Package) Size() int64 {
	return p.size
}
