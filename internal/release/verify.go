package release

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork
	"github.com/sigstore/sigstore-go/pkg/bundle"
	"github.com/sigstore/sigstore-go/pkg/root"
	"github.com/sigstore/sigstore-go/pkg/verify"

	"github.com/roaddetection/identitybridge/internal/logging"
)

// ErrVerificationFailed marks a download whose verification material did not
// match.
var ErrVerificationFailed = errors.New("release verification failed")

// VerifierOptions configures the trust material.
type VerifierOptions struct {
	// Armored or binary OpenPGP public keyring
	KeyringPath string

	// Sigstore trusted root JSON and the expected Fulcio certificate identity
	TrustedRootPath     string
	CertificateIdentity string
	CertificateIssuer   string

	Logger logging.Logger
}

// Verifier handles cryptographic verification of downloaded APKs
type Verifier struct {
	opts   VerifierOptions
	logger logging.Logger
}

// NewVerifier creates a new verifier
func NewVerifier(opts VerifierOptions) *Verifier {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Verifier{opts: opts, logger: logger}
}

// SidecarFiles are local paths of downloaded verification files. Empty
// fields are skipped.
type SidecarFiles struct {
	Checksums string
	Signature string
	Bundle    string
}

// Verify runs every check the sidecars and configured trust material allow.
// A failed check returns an error wrapping ErrVerificationFailed. When
// nothing can be checked the result list holds a single VerificationNone
// entry.
func (v *Verifier) Verify(artifactPath string, files SidecarFiles) ([]VerificationResult, error) {
	var results []VerificationResult

	if files.Checksums != "" {
		result, err := v.VerifyChecksum(artifactPath, files.Checksums)
		if err != nil {
			return append(results, *result), fmt.Errorf("%w: %v", ErrVerificationFailed, err)
		}
		results = append(results, *result)
	}

	if files.Signature != "" {
		if v.opts.KeyringPath == "" {
			v.logger.Warn("signature published but no keyring configured", "signature", filepath.Base(files.Signature))
		} else {
			result, err := v.VerifySignature(artifactPath, files.Signature)
			if err != nil {
				return append(results, *result), fmt.Errorf("%w: %v", ErrVerificationFailed, err)
			}
			results = append(results, *result)
		}
	}

	if files.Bundle != "" {
		if v.opts.TrustedRootPath == "" {
			v.logger.Warn("sigstore bundle published but no trusted root configured", "bundle", filepath.Base(files.Bundle))
		} else {
			result, err := v.VerifyBundle(artifactPath, files.Bundle)
			if err != nil {
				return append(results, *result), fmt.Errorf("%w: %v", ErrVerificationFailed, err)
			}
			results = append(results, *result)
		}
	}

	if len(results) == 0 {
		results = append(results, VerificationResult{
			Method: VerificationNone,
			Detail: "release publishes no usable verification material",
		})
	}
	return results, nil
}

// VerifyChecksum compares the artifact's SHA-256 with its entry in a
// "digest  filename" checksum file.
func (v *Verifier) VerifyChecksum(artifactPath, checksumPath string) (*VerificationResult, error) {
	fail := func(err error) (*VerificationResult, error) {
		return &VerificationResult{Method: VerificationSHA256, Error: err}, err
	}

	actualChecksum, err := calculateSHA256(artifactPath)
	if err != nil {
		return fail(fmt.Errorf("calculate checksum: %w", err))
	}

	expectedChecksum, err := findChecksum(checksumPath, filepath.Base(artifactPath))
	if err != nil {
		return fail(fmt.Errorf("find checksum: %w", err))
	}

	if !strings.EqualFold(actualChecksum, expectedChecksum) {
		return fail(fmt.Errorf("checksum mismatch: actual %s, expected %s", actualChecksum, expectedChecksum))
	}

	return &VerificationResult{Method: VerificationSHA256, Success: true, Detail: actualChecksum}, nil
}

// VerifySignature checks an OpenPGP detached signature, armored or binary,
// against the configured keyring.
func (v *Verifier) VerifySignature(artifactPath, signaturePath string) (*VerificationResult, error) {
	fail := func(err error) (*VerificationResult, error) {
		return &VerificationResult{Method: VerificationGPG, Error: err}, err
	}

	keyring, err := loadKeyring(v.opts.KeyringPath)
	if err != nil {
		return fail(fmt.Errorf("load keyring: %w", err))
	}

	artifact, err := os.Open(artifactPath)
	if err != nil {
		return fail(fmt.Errorf("open artifact: %w", err))
	}
	defer artifact.Close()

	sigFile, err := os.Open(signaturePath)
	if err != nil {
		return fail(fmt.Errorf("open signature: %w", err))
	}
	defer sigFile.Close()

	signer, err := openpgp.CheckArmoredDetachedSignature(keyring, artifact, sigFile, nil)
	if err != nil {
		if _, seekErr := artifact.Seek(0, io.SeekStart); seekErr != nil {
			return fail(seekErr)
		}
		if _, seekErr := sigFile.Seek(0, io.SeekStart); seekErr != nil {
			return fail(seekErr)
		}
		signer, err = openpgp.CheckDetachedSignature(keyring, artifact, sigFile, nil)
	}
	if err != nil {
		return fail(fmt.Errorf("verify signature: %w", err))
	}

	detail := ""
	if signer != nil && signer.PrimaryKey != nil {
		detail = strings.ToUpper(hex.EncodeToString(signer.PrimaryKey.Fingerprint))
	}
	return &VerificationResult{Method: VerificationGPG, Success: true, Detail: detail}, nil
}

// VerifyBundle checks a sigstore bundle for the artifact against the
// trusted root and the expected certificate identity.
func (v *Verifier) VerifyBundle(artifactPath, bundlePath string) (*VerificationResult, error) {
	fail := func(err error) (*VerificationResult, error) {
		return &VerificationResult{Method: VerificationSigstore, Error: err}, err
	}

	if v.opts.CertificateIdentity == "" {
		return fail(fmt.Errorf("no certificate identity configured"))
	}

	b, err := bundle.LoadJSONFromPath(bundlePath)
	if err != nil {
		return fail(fmt.Errorf("load bundle: %w", err))
	}

	trustedRoot, err := root.NewTrustedRootFromPath(v.opts.TrustedRootPath)
	if err != nil {
		return fail(fmt.Errorf("load trusted root: %w", err))
	}

	verifier, err := verify.NewVerifier(trustedRoot,
		verify.WithSignedCertificateTimestamps(1),
		verify.WithTransparencyLog(1),
		verify.WithObserverTimestamps(1),
	)
	if err != nil {
		return fail(fmt.Errorf("create sigstore verifier: %w", err))
	}

	issuer, issuerRegex := v.opts.CertificateIssuer, ""
	if issuer == "" {
		issuerRegex = ".*"
	}
	identity, err := verify.NewShortCertificateIdentity(issuer, issuerRegex, v.opts.CertificateIdentity, "")
	if err != nil {
		return fail(fmt.Errorf("certificate identity: %w", err))
	}

	artifact, err := os.Open(artifactPath)
	if err != nil {
		return fail(fmt.Errorf("open artifact: %w", err))
	}
	defer artifact.Close()

	policy := verify.NewPolicy(verify.WithArtifact(artifact), verify.WithCertificateIdentity(identity))
	if _, err := verifier.Verify(b, policy); err != nil {
		return fail(fmt.Errorf("verify bundle: %w", err))
	}

	return &VerificationResult{Method: VerificationSigstore, Success: true, Detail: v.opts.CertificateIdentity}, nil
}

// loadKeyring reads an armored or binary OpenPGP keyring.
func loadKeyring(path string) (openpgp.EntityList, error) {
	if path == "" {
		return nil, fmt.Errorf("no keyring configured")
	}
	keyringFile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	defer keyringFile.Close()

	keyring, err := openpgp.ReadArmoredKeyRing(keyringFile)
	if err != nil {
		if _, seekErr := keyringFile.Seek(0, io.SeekStart); seekErr != nil {
			return nil, seekErr
		}
		keyring, err = openpgp.ReadKeyRing(keyringFile)
		if err != nil {
			return nil, fmt.Errorf("read keyring: %w", err)
		}
	}

	if len(keyring) == 0 {
		return nil, fmt.Errorf("keyring is empty")
	}
	return keyring, nil
}

// calculateSHA256 calculates the SHA256 checksum of a file
func calculateSHA256(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// findChecksum finds the checksum for a specific filename in a checksum file
// Format: "abc123def456  app-release.apk", with an optional "*" binary marker.
func findChecksum(checksumPath, filename string) (string, error) {
	file, err := os.Open(checksumPath)
	if err != nil {
		return "", fmt.Errorf("open checksum file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) < 2 {
			continue
		}
		name := strings.TrimPrefix(parts[1], "*")
		if name == filename || filepath.Base(name) == filename {
			return parts[0], nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan checksum file: %w", err)
	}

	return "", fmt.Errorf("checksum not found for %s", filename)
}
