package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/roaddetection/identitybridge/internal/platform"
)

// mockDetector is a test implementation of platform.Detector.
type mockDetector struct {
	info *platform.Info
	err  error
}

func (m *mockDetector) Detect(ctx context.Context) (*platform.Info, error) {
	return m.info, m.err
}

// recordingLogger captures warnings.
type recordingLogger struct {
	warnings []string
}

func (l *recordingLogger) Debug(msg string, keysAndValues ...interface{}) {}
func (l *recordingLogger) Info(msg string, keysAndValues ...interface{})  {}
func (l *recordingLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.warnings = append(l.warnings, msg)
}
func (l *recordingLogger) Error(msg string, keysAndValues ...interface{}) {}

func TestParser_ParseString_Minimal(t *testing.T) {
	luaCode := `bridge = { package = "com.roaddetection.vgtec_app" }`

	config, err := NewParser(nil).ParseString(context.Background(), luaCode)
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}
	if config.Package.Name != "com.roaddetection.vgtec_app" {
		t.Errorf("Package.Name = %s", config.Package.Name)
	}
	if config.Channel != "" || config.APILevel != 0 {
		t.Errorf("unset fields must stay empty: %+v", config)
	}
}

func TestParser_ParseString_Full(t *testing.T) {
	luaCode := `
		bridge = {
			channel = "com.roaddetection.security",
			package = {
				name = "com.roaddetection.vgtec_app",
				apk = "/data/app/base.apk",
			},
			api_level = 33,
			releases = {
				owner = "royhairul",
				repo = "vgtec-app",
				api_url = "https://api.github.com",
				keyring = "~/.config/identitybridge/release.asc",
				expect = "SHA1: DA39A3EE5E6B4B0D3255BFEF95601890AFD80709",
			},
			http = { addr = "127.0.0.1:8765" },
		}
	`

	config, err := NewParser(nil).ParseString(context.Background(), luaCode)
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}

	want := Config{
		Channel:  "com.roaddetection.security",
		Package:  PackageConfig{Name: "com.roaddetection.vgtec_app", APK: "/data/app/base.apk"},
		APILevel: 33,
		Releases: ReleaseConfig{
			Owner:   "royhairul",
			Repo:    "vgtec-app",
			APIURL:  "https://api.github.com",
			Keyring: "~/.config/identitybridge/release.asc",
			Expect:  "SHA1: DA39A3EE5E6B4B0D3255BFEF95601890AFD80709",
		},
		HTTP: HTTPConfig{Addr: "127.0.0.1:8765"},
	}
	if *config != want {
		t.Errorf("ParseString() = %+v, want %+v", *config, want)
	}
}

func TestParser_ParseString_PlatformConditionals(t *testing.T) {
	luaCode := `
		bridge = {
			api_level = platform.api_level,
			package = {
				name = "com.roaddetection.vgtec_app",
				apk = platform.when(platform.is_android, "/data/app/base.apk"),
			},
			http = { addr = platform.is_modern_signing and "127.0.0.1:28" or "127.0.0.1:27" },
		}
	`

	tests := []struct {
		name     string
		info     *platform.Info
		wantAPK  string
		wantAddr string
		wantAPI  int
	}{
		{
			name:     "modern android",
			info:     &platform.Info{OS: "android", Arch: "arm64", Family: platform.FamilyAndroid, APILevel: 34},
			wantAPK:  "/data/app/base.apk",
			wantAddr: "127.0.0.1:28",
			wantAPI:  34,
		},
		{
			name:     "legacy android",
			info:     &platform.Info{OS: "android", Arch: "arm", Family: platform.FamilyAndroid, APILevel: 26},
			wantAPK:  "/data/app/base.apk",
			wantAddr: "127.0.0.1:27",
			wantAPI:  26,
		},
		{
			name:     "desktop linux",
			info:     &platform.Info{OS: "linux", Arch: "amd64"},
			wantAddr: "127.0.0.1:28",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := NewParser(&mockDetector{info: tt.info}).ParseString(context.Background(), luaCode)
			if err != nil {
				t.Fatalf("ParseString() error = %v", err)
			}
			if config.Package.APK != tt.wantAPK {
				t.Errorf("Package.APK = %q, want %q", config.Package.APK, tt.wantAPK)
			}
			if config.HTTP.Addr != tt.wantAddr {
				t.Errorf("HTTP.Addr = %q, want %q", config.HTTP.Addr, tt.wantAddr)
			}
			if config.APILevel != tt.wantAPI {
				t.Errorf("APILevel = %d, want %d", config.APILevel, tt.wantAPI)
			}
		})
	}
}

func TestParser_ParseString_Errors(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantMsg string
	}{
		{name: "syntax error", code: `bridge = {`, wantMsg: "Lua syntax error"},
		{name: "missing bridge table", code: `other = {}`, wantMsg: "missing or invalid 'bridge' table"},
		{name: "bridge not a table", code: `bridge = "x"`, wantMsg: "missing or invalid 'bridge' table"},
		{name: "fractional api level", code: `bridge = { api_level = 28.5 }`, wantMsg: "invalid api_level"},
		{name: "string api level", code: `bridge = { api_level = "28" }`, wantMsg: "invalid api_level"},
		{name: "api level out of range", code: `bridge = { api_level = 330 }`, wantMsg: "config validation failed"},
		{name: "bad package name", code: `bridge = { package = "not a package" }`, wantMsg: "config validation failed"},
		{name: "bad api url", code: `bridge = { releases = { api_url = "ftp://example.com" } }`, wantMsg: "config validation failed"},
		{name: "sandbox escape", code: `os.exit(1)`, wantMsg: "Lua syntax error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser(nil).ParseString(context.Background(), tt.code)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected *ParseError, got %T: %v", err, err)
			}
			if parseErr.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", parseErr.Message, tt.wantMsg)
			}
		})
	}
}

func TestParser_ParseString_PlatformDetectionError(t *testing.T) {
	parser := NewParser(&mockDetector{err: errors.New("no build.prop")})
	_, err := parser.ParseString(context.Background(), `bridge = {}`)
	if err == nil || !strings.Contains(err.Error(), "platform detection failed") {
		t.Errorf("error = %v, want platform detection error", err)
	}
}

func TestParser_ParseString_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewParser(nil).ParseString(ctx, `bridge = {}`)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestParser_ParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.lua")
	content := `
		-- leaked credential
		token = "abcdefghijklmnopqrstuvwxyz"
		bridge = { package = { name = "com.roaddetection.vgtec_app" } }
	`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	logger := &recordingLogger{}
	config, err := NewParser(nil).WithLogger(logger).ParseFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if config.Package.Name != "com.roaddetection.vgtec_app" {
		t.Errorf("Package.Name = %s", config.Package.Name)
	}
	if len(logger.warnings) != 1 {
		t.Errorf("expected one sensitive data warning, got %v", logger.warnings)
	}
}

func TestParser_ParseFile_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := NewParser(nil).ParseFile(context.Background(), filepath.Join(dir, "missing.lua")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: error = %v, want os.ErrNotExist", err)
	}

	big := filepath.Join(dir, "big.lua")
	if err := os.WriteFile(big, []byte(strings.Repeat("-", MaxConfigSize+1)), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := NewParser(nil).ParseFile(context.Background(), big)
	var parseErr *ParseError
	if !errors.As(err, &parseErr) || parseErr.Message != "config file too large" {
		t.Errorf("oversized file: error = %v", err)
	}
}

func TestFormatError(t *testing.T) {
	err := &ParseError{
		Message: "Lua syntax error",
		Detail:  "<string>:1: unexpected EOF\nstack traceback:\n\t[G]: ?",
	}

	if got := FormatError(err, false); got != "Lua syntax error: <string>:1: unexpected EOF" {
		t.Errorf("FormatError(false) = %q", got)
	}
	if got := FormatError(err, true); !strings.Contains(got, "Details:") || !strings.Contains(got, "stack traceback") {
		t.Errorf("FormatError(true) = %q", got)
	}
	if got := FormatError(errors.New("plain"), false); got != "plain" {
		t.Errorf("FormatError(plain) = %q", got)
	}
}
