package config

import (
	"context"
	"strings"
	"testing"
)

func TestGenerator_Generate_Minimal(t *testing.T) {
	gen := NewGenerator()
	lua, err := gen.Generate(&Config{Package: PackageConfig{Name: "com.roaddetection.vgtec_app"}})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if !strings.Contains(lua, "bridge = {") {
		t.Error("Generated Lua missing 'bridge = {'")
	}
	if !strings.Contains(lua, `name = "com.roaddetection.vgtec_app",`) {
		t.Error("Generated Lua missing package name")
	}
	for _, section := range []string{"releases = {", "http = {", "api_level ="} {
		if strings.Contains(lua, section) {
			t.Errorf("Generated Lua contains empty section %q", section)
		}
	}
}

func TestGenerator_Generate_Nil(t *testing.T) {
	if _, err := NewGenerator().Generate(nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestGenerator_QuoteLuaString(t *testing.T) {
	gen := NewGenerator()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple string", input: "hello", want: `"hello"`},
		{name: "string with double quotes", input: `say "hello"`, want: `"say \"hello\""`},
		{name: "string with backslashes", input: `C:\Users\test`, want: `"C:\\Users\\test"`},
		{name: "string with newlines", input: "line1\nline2", want: `"line1\nline2"`},
		{name: "string with tabs", input: "tab\there", want: `"tab\there"`},
		{name: "empty string", input: "", want: `""`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := gen.quoteLuaString(tt.input); got != tt.want {
				t.Errorf("quoteLuaString(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestGenerator_RoundTrip(t *testing.T) {
	original := &Config{
		Channel:  "com.roaddetection.security",
		APILevel: 33,
		Package: PackageConfig{
			Name: "com.roaddetection.vgtec_app",
			APK:  `/data/app/~~x"y"/base.apk`,
		},
		Releases: ReleaseConfig{
			Owner:               "royhairul",
			Repo:                "vgtec-app",
			APIURL:              "https://api.github.com",
			Keyring:             "~/.config/identitybridge/release.asc",
			TrustedRoot:         "~/.config/identitybridge/trusted_root.json",
			CertificateIdentity: "https://github.com/royhairul/vgtec-app/.github/workflows/release.yml@refs/heads/main",
			CertificateIssuer:   "https://token.actions.githubusercontent.com",
			Expect:              "SHA1: DA39A3EE5E6B4B0D3255BFEF95601890AFD80709",
		},
		HTTP: HTTPConfig{Addr: "127.0.0.1:9000"},
	}

	lua, err := NewGenerator().Generate(original)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	parsed, err := NewParser(nil).ParseString(context.Background(), lua)
	if err != nil {
		t.Fatalf("ParseString() error = %v\n%s", err, lua)
	}

	if *parsed != *original {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", *parsed, *original)
	}
}
