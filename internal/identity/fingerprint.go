// Package identity answers "what is the signing fingerprint of this running
// application?".
//
// The Bridge lists the signing certificates of the current package through a
// CertificateLister, hashes the first one with SHA-1 and renders the digest as
// "SHA1: " followed by 40 uppercase hex characters. Every failure is recovered
// into an absent Result; nothing is cached.
package identity

import (
	"crypto"
	_ "crypto/sha1" // registers crypto.SHA1
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// AlgorithmSHA1 is the only fingerprint algorithm the bridge produces.
const AlgorithmSHA1 = "SHA1"

// fingerprintPattern matches the external string form.
var fingerprintPattern = regexp.MustCompile(`^SHA1: [0-9A-F]{40}$`)

// Fingerprint is the digest of a signing certificate.
type Fingerprint struct {
	Algorithm string `json:"algorithm" yaml:"algorithm"`
	Hex       string `json:"hex" yaml:"hex"`
}

// String returns the external form, e.g. "SHA1: DA39A3EE...".
func (f Fingerprint) String() string {
	return f.Algorithm + ": " + f.Hex
}

// Equal reports whether two fingerprints name the same certificate.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.Algorithm == other.Algorithm && strings.EqualFold(f.Hex, other.Hex)
}

// Compute returns the SHA-1 fingerprint of a DER certificate.
func Compute(cert []byte) (Fingerprint, error) {
	if !crypto.SHA1.Available() {
		return Fingerprint{}, fmt.Errorf("SHA1 digest unavailable")
	}

	h := crypto.SHA1.New()
	h.Write(cert)

	return Fingerprint{
		Algorithm: AlgorithmSHA1,
		Hex:       FormatHex(h.Sum(nil)),
	}, nil
}

// FormatHex renders a digest as uppercase hex, two characters per byte, no
// separators.
func FormatHex(digest []byte) string {
	return strings.ToUpper(hex.EncodeToString(digest))
}

// ParseFingerprint parses the external form. Lowercase hex is accepted and
// normalized.
func ParseFingerprint(s string) (Fingerprint, error) {
	s = strings.TrimSpace(s)
	algo, hexPart, ok := strings.Cut(s, ":")
	if !ok {
		return Fingerprint{}, fmt.Errorf("invalid fingerprint %q: missing algorithm label", s)
	}

	fp := Fingerprint{
		Algorithm: strings.ToUpper(strings.TrimSpace(algo)),
		Hex:       strings.ToUpper(strings.TrimSpace(hexPart)),
	}
	if !fingerprintPattern.MatchString(fp.String()) {
		return Fingerprint{}, fmt.Errorf("invalid fingerprint %q: want \"SHA1: \" and 40 hex characters", s)
	}
	return fp, nil
}

// Valid reports whether s is a well-formed external fingerprint string.
func Valid(s string) bool {
	return fingerprintPattern.MatchString(s)
}
