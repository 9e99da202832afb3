// Package platform detects the host the bridge runs on and the platform API
// level that decides which package manager API variant is used.
//
// OS and architecture come from the Go runtime, distribution details from
// gopsutil. The API level comes from an explicit override or, on Android,
// from the ro.build.version.sdk build property. The result is also exposed to
// Lua configuration as a read-only "platform" table.
package platform

import "context"

// Family constants group related host platforms.
const (
	FamilyAndroid = "android" // Android devices and emulators
	FamilyDebian  = "debian"  // Debian, Ubuntu, Linux Mint
	FamilyRHEL    = "rhel"    // RHEL, CentOS, Rocky Linux, AlmaLinux
	FamilyFedora  = "fedora"  // Fedora
	FamilyArch    = "arch"    // Arch Linux, Manjaro
	FamilyAlpine  = "alpine"  // Alpine Linux
	FamilyUnknown = "unknown" // Unrecognized distributions
)

// SigningCertificatesAPILevel is the first API level with the
// signing-certificate package manager API.
const SigningCertificatesAPILevel = 28

// Info contains platform detection information.
type Info struct {
	OS       string // "linux", "android", "darwin", "windows"
	Arch     string // "amd64", "arm64", "arm", "386" (normalized)
	ArchRaw  string // original GOARCH
	Platform string // distro ID (Linux/Android only, e.g., "ubuntu", "android")
	Family   string // canonical family (e.g., "debian", "android")
	Version  string // distro or Android release version
	Kernel   string // kernel version as reported by the host
	APILevel int    // platform API level; 0 when unknown
}

// IsLinux returns true for Linux hosts, Android included.
func (i *Info) IsLinux() bool {
	return i.OS == "linux" || i.OS == "android"
}

// IsAndroid returns true if the host is an Android device or emulator.
func (i *Info) IsAndroid() bool {
	return i.OS == "android" || i.Family == FamilyAndroid
}

// IsMacOS returns true if the platform is macOS.
func (i *Info) IsMacOS() bool {
	return i.OS == "darwin"
}

// IsWindows returns true if the platform is Windows.
func (i *Info) IsWindows() bool {
	return i.OS == "windows"
}

// IsARM returns true for 32- and 64-bit ARM.
func (i *Info) IsARM() bool {
	return i.Arch == "arm64" || i.Arch == "arm"
}

// HasAPILevel reports whether the API level is known.
func (i *Info) HasAPILevel() bool {
	return i.APILevel > 0
}

// UsesSigningCertificates reports whether the modern signing-certificate API
// is available. An unknown API level counts as modern.
func (i *Info) UsesSigningCertificates() bool {
	return UsesSigningCertificates(i.APILevel)
}

// UsesSigningCertificates reports whether apiLevel selects the modern
// signing-certificate API. Levels <= 0 are unknown and count as modern.
func UsesSigningCertificates(apiLevel int) bool {
	return apiLevel <= 0 || apiLevel >= SigningCertificatesAPILevel
}

// EffectiveAPILevel returns the API level, substituting
// SigningCertificatesAPILevel when it is unknown.
func (i *Info) EffectiveAPILevel() int {
	if !i.HasAPILevel() {
		return SigningCertificatesAPILevel
	}
	return i.APILevel
}

// Detector is the interface for platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}
