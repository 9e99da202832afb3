package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roaddetection/identitybridge/internal/identity"
	"github.com/roaddetection/identitybridge/internal/logging"
	"github.com/roaddetection/identitybridge/internal/pkgmanager"
	"github.com/roaddetection/identitybridge/internal/platform"
)

// ErrInvalidRequest is returned for requests missing required fields.
var ErrInvalidRequest = errors.New("invalid request")

// InspectService reports the signing identity of an APK.
type InspectService struct {
	clock  Clock
	logger logging.Logger
}

// NewInspectService creates a new inspect service.
func NewInspectService(clock Clock) *InspectService {
	if clock == nil {
		clock = RealClock{}
	}
	return &InspectService{clock: clock, logger: logging.Nop()}
}

// WithLogger sets the logger and returns the service.
func (s *InspectService) WithLogger(logger logging.Logger) *InspectService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// InspectRequest contains parameters for inspecting a package.
type InspectRequest struct {
	PackageName string
	APKPath     string
	APILevel    int // 0 means unknown, treated as modern
}

// InspectResult is the report for one package.
type InspectResult struct {
	PackageName string `json:"package" yaml:"package"`
	APKPath     string `json:"apk" yaml:"apk"`
	APILevel    int    `json:"api_level" yaml:"api_level"`
	Variant     string `json:"variant" yaml:"variant"`

	// Signature is the external fingerprint string, nil when absent.
	Signature *string `json:"signature" yaml:"signature"`
	Failure   string  `json:"failure,omitempty" yaml:"failure,omitempty"`

	SchemeVersion    int  `json:"scheme_version,omitempty" yaml:"scheme_version,omitempty"`
	CertificateCount int  `json:"certificates" yaml:"certificates"`
	MultipleSigners  bool `json:"multiple_signers,omitempty" yaml:"multiple_signers,omitempty"`

	InspectedAt time.Time `json:"inspected_at" yaml:"inspected_at"`

	fingerprint *identity.Fingerprint
}

// Fingerprint returns the computed fingerprint, or nil when absent.
func (r *InspectResult) Fingerprint() *identity.Fingerprint {
	return r.fingerprint
}

// Variant names for InspectResult.Variant.
const (
	VariantSigningCertificates = "signing-certificates"
	VariantSignatures          = "signatures"
)

// Inspect computes the fingerprint of the package's APK through the identity
// bridge and adds signing details. Retrieval failures are reported in the
// result, not as an error.
func (s *InspectService) Inspect(ctx context.Context, req InspectRequest) (*InspectResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.PackageName == "" || req.APKPath == "" {
		return nil, fmt.Errorf("%w: package name and APK path are required", ErrInvalidRequest)
	}

	apiLevel := req.APILevel
	if apiLevel <= 0 {
		apiLevel = platform.SigningCertificatesAPILevel
	}

	mgr, err := pkgmanager.NewFileManager(pkgmanager.Config{
		PackageName: req.PackageName,
		Packages:    map[string]string{req.PackageName: req.APKPath},
		APILevel:    uint32(apiLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("create package manager: %w", err)
	}
	mgr.WithLogger(s.logger)

	lister := identity.NewPlatformLister(mgr, apiLevel)
	bridge := identity.NewBridge(lister).WithLogger(s.logger)

	result := &InspectResult{
		PackageName: req.PackageName,
		APKPath:     req.APKPath,
		APILevel:    apiLevel,
		Variant:     VariantSignatures,
		InspectedAt: s.clock.Now().UTC(),
	}
	if lister.UsesSigningCertificates() {
		result.Variant = VariantSigningCertificates
	}

	fp := bridge.GetSignature(ctx)
	if !fp.Present() {
		result.Failure = fp.Failure.Error()
		return result, nil
	}
	sig := fp.Fingerprint.String()
	result.Signature = &sig
	result.fingerprint = fp.Fingerprint

	// Scheme details always come from the modern view
	info, err := mgr.PackageInfo(ctx, req.PackageName, pkgmanager.GetSigningCertificates)
	if err != nil {
		s.logger.Warn("signing details unavailable", "package", req.PackageName, "error", err)
		return result, nil
	}
	if info.SigningInfo != nil {
		result.SchemeVersion = info.SigningInfo.SchemeVersion
		result.CertificateCount = len(info.SigningInfo.APKContentsSigners)
		result.MultipleSigners = info.SigningInfo.HasMultipleSigners()
	}

	return result, nil
}
