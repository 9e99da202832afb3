package identity

import (
	"context"
	"fmt"

	"github.com/roaddetection/identitybridge/internal/pkgmanager"
	"github.com/roaddetection/identitybridge/internal/platform"
)

// CertificateLister returns the signing certificates of the current package.
type CertificateLister interface {
	SigningCertificates(ctx context.Context) ([]pkgmanager.Signature, error)
}

// CertificateListerFunc adapts a function to CertificateLister.
type CertificateListerFunc func(ctx context.Context) ([]pkgmanager.Signature, error)

// SigningCertificates calls f(ctx).
func (f CertificateListerFunc) SigningCertificates(ctx context.Context) ([]pkgmanager.Signature, error) {
	return f(ctx)
}

// PlatformLister is the only place that knows about the two package manager
// API variants. It queries with the flag appropriate for the API level and
// reconciles the answer into one list.
type PlatformLister struct {
	manager  pkgmanager.Manager
	apiLevel int
}

// NewPlatformLister creates a lister for the given platform API level.
// A level <= 0 is unknown and selects the modern variant.
func NewPlatformLister(manager pkgmanager.Manager, apiLevel int) *PlatformLister {
	return &PlatformLister{manager: manager, apiLevel: apiLevel}
}

// UsesSigningCertificates reports whether the modern API variant is in use.
func (l *PlatformLister) UsesSigningCertificates() bool {
	return platform.UsesSigningCertificates(l.apiLevel)
}

// SigningCertificates implements CertificateLister.
func (l *PlatformLister) SigningCertificates(ctx context.Context) ([]pkgmanager.Signature, error) {
	name := l.manager.PackageName()

	if l.UsesSigningCertificates() {
		info, err := l.manager.PackageInfo(ctx, name, pkgmanager.GetSigningCertificates)
		if err != nil {
			return nil, err
		}
		if info == nil {
			return nil, fmt.Errorf("package manager returned no info for %s", name)
		}
		if info.SigningInfo == nil {
			return nil, nil
		}
		return info.SigningInfo.APKContentsSigners, nil
	}

	info, err := l.manager.PackageInfo(ctx, name, pkgmanager.GetSignatures)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("package manager returned no info for %s", name)
	}
	return info.Signatures, nil
}
