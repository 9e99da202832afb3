// Package release lists the GitHub releases that publish the host APK,
// downloads the APK with its sidecar files and verifies the download.
package release

import (
	"fmt"
	"strings"
	"time"
)

// Release is a GitHub release as returned by the REST API.
type Release struct {
	TagName     string    `json:"tag_name" yaml:"tag_name"`
	Name        string    `json:"name" yaml:"name"`
	HTMLURL     string    `json:"html_url" yaml:"html_url"`
	Draft       bool      `json:"draft" yaml:"draft"`
	Prerelease  bool      `json:"prerelease" yaml:"prerelease"`
	PublishedAt time.Time `json:"published_at" yaml:"published_at"`
	Assets      []Asset   `json:"assets" yaml:"assets"`
}

// Asset is a file attached to a release.
type Asset struct {
	Name               string `json:"name" yaml:"name"`
	Size               int64  `json:"size" yaml:"size"`
	ContentType        string `json:"content_type" yaml:"content_type"`
	BrowserDownloadURL string `json:"browser_download_url" yaml:"browser_download_url"`
}

// Sidecar suffixes looked up next to the APK asset.
const (
	SignatureSuffix = ".asc"
	BundleSuffix    = ".sigstore.json"
)

// ChecksumAssetNames are the checksum file names recognized on a release.
var ChecksumAssetNames = []string{"SHA256SUMS", "SHA256SUMS.txt", "checksums.txt"}

// FindAPKAsset returns the first asset whose name ends in ".apk", ignoring
// case, or nil.
func FindAPKAsset(r *Release) *Asset {
	if r == nil {
		return nil
	}
	for i := range r.Assets {
		if strings.HasSuffix(strings.ToLower(r.Assets[i].Name), ".apk") {
			return &r.Assets[i]
		}
	}
	return nil
}

// FindAsset returns the asset with the exact name, or nil.
func FindAsset(r *Release, name string) *Asset {
	if r == nil {
		return nil
	}
	for i := range r.Assets {
		if r.Assets[i].Name == name {
			return &r.Assets[i]
		}
	}
	return nil
}

// Sidecars are the verification files published alongside an APK.
// A nil field means the release does not provide it.
type Sidecars struct {
	Checksums *Asset
	Signature *Asset
	Bundle    *Asset
}

// FindSidecars locates the verification files for apk on r.
func FindSidecars(r *Release, apk *Asset) Sidecars {
	var s Sidecars
	if apk == nil {
		return s
	}
	s.Signature = FindAsset(r, apk.Name+SignatureSuffix)
	s.Bundle = FindAsset(r, apk.Name+BundleSuffix)
	for _, name := range ChecksumAssetNames {
		if a := FindAsset(r, name); a != nil {
			s.Checksums = a
			break
		}
	}
	return s
}

// FormatSize renders a byte count for display: "" for zero, bytes below
// 1 KiB, one decimal KB below 1 MiB, one decimal MB otherwise.
func FormatSize(bytes int64) string {
	switch {
	case bytes <= 0:
		return ""
	case bytes < 1024:
		return fmt.Sprintf("%d B", bytes)
	case bytes < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	}
}

// VerificationMethod indicates how a download was verified
type VerificationMethod int

const (
	// VerificationNone means the release published no verification material
	VerificationNone VerificationMethod = iota
	// VerificationSHA256 indicates a SHA-256 checksum file was checked
	VerificationSHA256
	// VerificationGPG indicates an OpenPGP detached signature was checked
	VerificationGPG
	// VerificationSigstore indicates a sigstore bundle was checked
	VerificationSigstore
)

// String returns the string representation of the verification method
func (v VerificationMethod) String() string {
	switch v {
	case VerificationNone:
		return "None"
	case VerificationSHA256:
		return "SHA256"
	case VerificationGPG:
		return "GPG"
	case VerificationSigstore:
		return "Sigstore"
	default:
		return "Unknown"
	}
}

// MarshalText lets reports print the method name.
func (v VerificationMethod) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// VerificationResult contains the outcome of a verification attempt
type VerificationResult struct {
	Method  VerificationMethod `json:"method" yaml:"method"`
	Success bool               `json:"success" yaml:"success"`
	Detail  string             `json:"detail,omitempty" yaml:"detail,omitempty"`
	Error   error              `json:"-" yaml:"-"`
}
