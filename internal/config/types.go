package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config represents the complete bridge configuration.
type Config struct {
	// Method channel name the plugin registers on
	Channel string `json:"channel,omitempty" yaml:"channel,omitempty"`

	// Host package whose signing identity is reported
	Package PackageConfig `json:"package,omitempty" yaml:"package,omitempty"`

	// Platform API level; 0 means detect from the host
	APILevel int `json:"api_level,omitempty" yaml:"api_level,omitempty"`

	// Release source for the fetch and releases commands
	Releases ReleaseConfig `json:"releases,omitempty" yaml:"releases,omitempty"`

	// HTTP transport settings for serve --http
	HTTP HTTPConfig `json:"http,omitempty" yaml:"http,omitempty"`
}

// PackageConfig identifies the host package and its installed APK.
type PackageConfig struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	APK  string `json:"apk,omitempty" yaml:"apk,omitempty"`
}

// ReleaseConfig points at the GitHub repository publishing the APK and the
// trust material used to verify downloads.
type ReleaseConfig struct {
	Owner  string `json:"owner,omitempty" yaml:"owner,omitempty"`
	Repo   string `json:"repo,omitempty" yaml:"repo,omitempty"`
	APIURL string `json:"api_url,omitempty" yaml:"api_url,omitempty"`

	// Armored OpenPGP public keyring for .asc signatures
	Keyring string `json:"keyring,omitempty" yaml:"keyring,omitempty"`

	// Sigstore trusted root JSON plus the expected signer identity
	TrustedRoot         string `json:"trusted_root,omitempty" yaml:"trusted_root,omitempty"`
	CertificateIdentity string `json:"certificate_identity,omitempty" yaml:"certificate_identity,omitempty"`
	CertificateIssuer   string `json:"certificate_issuer,omitempty" yaml:"certificate_issuer,omitempty"`

	// Fingerprint the downloaded APK must carry, e.g. "SHA1: 0A1B..."
	Expect string `json:"expect,omitempty" yaml:"expect,omitempty"`
}

// HTTPConfig contains the HTTP transport settings.
type HTTPConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// Default returns a config with every default applied.
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills empty fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Channel == "" {
		c.Channel = DefaultChannel
	}
	if c.Package.Name == "" {
		c.Package.Name = DefaultPackageName
	}
	if c.Releases.Owner == "" {
		c.Releases.Owner = DefaultOwner
	}
	if c.Releases.Repo == "" {
		c.Releases.Repo = DefaultRepo
	}
	if c.Releases.APIURL == "" {
		c.Releases.APIURL = DefaultAPIURL
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}
}

// Validate performs basic validation on a Config. Empty fields are valid.
func (c *Config) Validate() error {
	if c.Channel != "" && !channelPattern.MatchString(c.Channel) {
		return &ValidationError{Field: "channel", Message: fmt.Sprintf("invalid channel name %q", c.Channel)}
	}

	if c.Package.Name != "" {
		if err := validatePackageName(c.Package.Name); err != nil {
			return &ValidationError{Field: "package.name", Message: err.Error()}
		}
	}

	if c.APILevel < 0 || c.APILevel > MaxAPILevel {
		return &ValidationError{
			Field:   "api_level",
			Message: fmt.Sprintf("api level %d out of range (1-%d)", c.APILevel, MaxAPILevel),
		}
	}

	if c.Releases.Owner != "" && !repoPartPattern.MatchString(c.Releases.Owner) {
		return &ValidationError{Field: "releases.owner", Message: fmt.Sprintf("invalid owner %q", c.Releases.Owner)}
	}
	if c.Releases.Repo != "" && !repoPartPattern.MatchString(c.Releases.Repo) {
		return &ValidationError{Field: "releases.repo", Message: fmt.Sprintf("invalid repository %q", c.Releases.Repo)}
	}
	if c.Releases.APIURL != "" {
		if err := validateAPIURL(c.Releases.APIURL); err != nil {
			return &ValidationError{Field: "releases.api_url", Message: err.Error()}
		}
	}
	if c.Releases.TrustedRoot != "" && c.Releases.CertificateIdentity == "" {
		return &ValidationError{Field: "releases.certificate_identity", Message: "required when trusted_root is set"}
	}

	return nil
}

// ValidationError represents a config validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return "config validation failed for " + e.Field + ": " + e.Message
	}
	return "config validation failed: " + e.Message
}

var (
	// Dotted identifiers: com.roaddetection.security
	channelPattern = regexp.MustCompile(`^[A-Za-z0-9_.\-/]+$`)

	// Java-style package names with at least two segments
	packageNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(\.[A-Za-z][A-Za-z0-9_]*)+$`)

	// GitHub owner and repository names
	repoPartPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
)

// validatePackageName validates an application package name.
func validatePackageName(name string) error {
	if len(name) > MaxPackageNameLength {
		return fmt.Errorf("package name too long (%d chars, max %d)", len(name), MaxPackageNameLength)
	}
	if !packageNamePattern.MatchString(name) {
		return fmt.Errorf("invalid package name %q (expected: com.example.app)", name)
	}
	return nil
}

// validateAPIURL validates the release API base URL.
func validateAPIURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("URL must use https:// or http:// scheme (got: %s)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL has no host: %s", raw)
	}
	return nil
}

// ExpandPath expands a leading "~/" to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path[1:], "/")), nil
	}
	return path, nil
}
