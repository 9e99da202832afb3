// Package pkgmanager answers read-only queries about installed application
// packages, in the shape of the Android package manager: a PackageInfo whose
// populated fields depend on the flags the caller passes.
//
// Two flag variants exist for signing material. GetSignatures fills the legacy
// Signatures array; GetSigningCertificates fills SigningInfo. Callers pick one
// based on the platform API level.
package pkgmanager

import (
	"context"
	"errors"
)

// Flag selects which optional PackageInfo fields are populated.
type Flag uint32

const (
	// GetSignatures populates PackageInfo.Signatures (legacy API).
	GetSignatures Flag = 1 << iota
	// GetSigningCertificates populates PackageInfo.SigningInfo.
	GetSigningCertificates
)

// ErrNameNotFound is returned for packages the manager does not know.
var ErrNameNotFound = errors.New("package name not found")

// Signature is a DER-encoded signing certificate.
type Signature []byte

// PackageInfo describes an installed package.
type PackageInfo struct {
	PackageName string
	APKPath     string

	// Signatures is set for GetSignatures.
	Signatures []Signature

	// SigningInfo is set for GetSigningCertificates.
	SigningInfo *SigningInfo
}

// SigningInfo is the modern view of a package's signing state.
type SigningInfo struct {
	// APKContentsSigners are the certificates that signed the current APK contents.
	APKContentsSigners []Signature
	// SigningCertificateHistory lists every signer the package has used, oldest
	// first. Without key rotation it equals APKContentsSigners.
	SigningCertificateHistory []Signature
	// SchemeVersion is the highest signature scheme found (1, 2 or 3).
	SchemeVersion int
}

// HasMultipleSigners reports whether the contents were signed by more than one key.
func (s *SigningInfo) HasMultipleSigners() bool {
	return s != nil && len(s.APKContentsSigners) > 1
}

// Manager is the package manager port.
type Manager interface {
	// PackageName returns the name of the package the process runs as.
	PackageName() string
	// PackageInfo returns information about the named package.
	PackageInfo(ctx context.Context, name string, flags Flag) (*PackageInfo, error)
}
