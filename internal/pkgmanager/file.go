package pkgmanager

import (
	"context"
	"errors"
	"fmt"

	"github.com/roaddetection/identitybridge/internal/apk"
	"github.com/roaddetection/identitybridge/internal/logging"
)

// FileManager serves PackageInfo from APK files on disk.
type FileManager struct {
	current  string
	packages map[string]string
	apiLevel uint32
	logger   logging.Logger
}

// Config holds configuration for a FileManager.
type Config struct {
	// PackageName is the package the process runs as.
	PackageName string
	// Packages maps package names to APK paths. Must include PackageName.
	Packages map[string]string
	// APILevel selects the v3 signer whose SDK range covers it.
	APILevel uint32
}

// NewFileManager creates a FileManager.
func NewFileManager(cfg Config) (*FileManager, error) {
	if cfg.PackageName == "" {
		return nil, fmt.Errorf("PackageName is required")
	}
	if _, ok := cfg.Packages[cfg.PackageName]; !ok {
		return nil, fmt.Errorf("no APK path for current package %s", cfg.PackageName)
	}

	packages := make(map[string]string, len(cfg.Packages))
	for name, path := range cfg.Packages {
		packages[name] = path
	}

	return &FileManager{
		current:  cfg.PackageName,
		packages: packages,
		apiLevel: cfg.APILevel,
		logger:   logging.Nop(),
	}, nil
}

// WithLogger sets the logger and returns the manager.
func (m *FileManager) WithLogger(logger logging.Logger) *FileManager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// PackageName returns the current package name.
func (m *FileManager) PackageName() string {
	return m.current
}

// PackageInfo opens the package's APK and fills the fields selected by flags.
func (m *FileManager) PackageInfo(ctx context.Context, name string, flags Flag) (*PackageInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, ok := m.packages[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNameNotFound, name)
	}

	pkg, err := apk.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer pkg.Close()

	info := &PackageInfo{PackageName: name, APKPath: path}

	if flags&GetSignatures != 0 {
		sigs, err := m.legacySignatures(pkg)
		if err != nil {
			return nil, fmt.Errorf("read signatures of %s: %w", name, err)
		}
		info.Signatures = sigs
	}

	if flags&GetSigningCertificates != 0 {
		signing, err := m.signingInfo(pkg)
		if err != nil {
			return nil, fmt.Errorf("read signing info of %s: %w", name, err)
		}
		info.SigningInfo = signing
	}

	m.logger.Debug("package info loaded",
		"package", name,
		"flags", flags,
		"signatures", len(info.Signatures))

	return info, nil
}

// legacySignatures returns one certificate per v1 signer. Packages signed only
// with v2/v3 report their scheme signers instead, as the platform does.
func (m *FileManager) legacySignatures(pkg *apk.Package) ([]Signature, error) {
	jar, err := pkg.JARSigners()
	if err == nil {
		sigs := make([]Signature, 0, len(jar))
		for _, s := range jar {
			sigs = append(sigs, Signature(s.Certificates[0]))
		}
		return sigs, nil
	}
	if !errors.Is(err, apk.ErrNoJARSignature) {
		return nil, err
	}

	signers, _, err := m.schemeSigners(pkg)
	if err != nil {
		if isUnsigned(err) {
			return nil, nil
		}
		return nil, err
	}
	return firstCertificates(signers), nil
}

// signingInfo prefers v3, then v2, then v1.
func (m *FileManager) signingInfo(pkg *apk.Package) (*SigningInfo, error) {
	signers, version, err := m.schemeSigners(pkg)
	if err == nil {
		certs := firstCertificates(signers)
		return &SigningInfo{
			APKContentsSigners:        certs,
			SigningCertificateHistory: certs,
			SchemeVersion:             version,
		}, nil
	}
	if !isUnsigned(err) {
		return nil, err
	}

	jar, err := pkg.JARSigners()
	if err != nil {
		if errors.Is(err, apk.ErrNoJARSignature) {
			return &SigningInfo{}, nil
		}
		return nil, err
	}

	certs := make([]Signature, 0, len(jar))
	for _, s := range jar {
		certs = append(certs, Signature(s.Certificates[0]))
	}
	return &SigningInfo{
		APKContentsSigners:        certs,
		SigningCertificateHistory: certs,
		SchemeVersion:             1,
	}, nil
}

// schemeSigners returns the v3 signers applicable to the API level, falling
// back to the v2 signers.
func (m *FileManager) schemeSigners(pkg *apk.Package) ([]apk.Signer, int, error) {
	v3, err := pkg.V3Signers()
	switch {
	case err == nil:
		var applicable []apk.Signer
		for _, s := range v3 {
			if m.apiLevel == 0 || s.SupportsSDK(m.apiLevel) {
				applicable = append(applicable, s)
			}
		}
		if len(applicable) > 0 {
			return applicable, 3, nil
		}
		m.logger.Warn("no v3 signer covers API level, falling back to v2", "api_level", m.apiLevel)
	case !isUnsigned(err):
		return nil, 0, err
	}

	v2, err := pkg.V2Signers()
	if err != nil {
		return nil, 0, err
	}
	return v2, 2, nil
}

func isUnsigned(err error) bool {
	return errors.Is(err, apk.ErrNoSigningBlock) || errors.Is(err, apk.ErrSchemeNotFound)
}

func firstCertificates(signers []apk.Signer) []Signature {
	sigs := make([]Signature, 0, len(signers))
	for _, s := range signers {
		sigs = append(sigs, Signature(s.Certificates[0]))
	}
	return sigs
}
