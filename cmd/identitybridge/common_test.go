package main

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestArgReader(t *testing.T) {
	r := newArgReader([]string{"--config=bridge.lua", "--apk", "base.apk", "--http", "--api-level", "x"})

	flag, _ := r.next()
	if v, err := r.value(flag); flag != "--config" || err != nil || v != "bridge.lua" {
		t.Errorf("inline value = %q %q %v", flag, v, err)
	}

	flag, _ = r.next()
	if v, err := r.value(flag); flag != "--apk" || err != nil || v != "base.apk" {
		t.Errorf("separate value = %q %q %v", flag, v, err)
	}

	flag, _ = r.next()
	if v := r.optionalValue(); flag != "--http" || v != "" {
		t.Errorf("optional value before flag = %q %q", flag, v)
	}

	flag, _ = r.next()
	if _, err := r.intValue(flag); err == nil {
		t.Error("expected error for non-numeric value")
	}

	if _, ok := r.next(); ok {
		t.Error("expected arguments to be exhausted")
	}
}

func TestArgReader_MissingValue(t *testing.T) {
	r := newArgReader([]string{"--tag"})
	flag, _ := r.next()
	if _, err := r.value(flag); err == nil || !strings.Contains(err.Error(), "--tag requires a value") {
		t.Errorf("value() error = %v", err)
	}
}

func TestArgReader_OptionalValue(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{args: []string{"--http", "127.0.0.1:9000"}, want: "127.0.0.1:9000"},
		{args: []string{"--http=:9000"}, want: ":9000"},
		{args: []string{"--http"}, want: ""},
	}
	for _, tt := range tests {
		r := newArgReader(tt.args)
		r.next()
		if got := r.optionalValue(); got != tt.want {
			t.Errorf("optionalValue(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestGetDir(t *testing.T) {
	custom := filepath.Join(t.TempDir(), "custom")
	t.Setenv(EnvDir, custom)
	if dir, err := getDir(); err != nil || dir != custom {
		t.Errorf("getDir() = %q, %v, want %q", dir, err, custom)
	}

	home := t.TempDir()
	t.Setenv(EnvDir, "")
	t.Setenv("HOME", home)
	want := filepath.Join(home, ".config", "identitybridge")
	if dir, err := getDir(); err != nil || dir != want {
		t.Errorf("getDir() = %q, %v, want %q", dir, err, want)
	}
}

func TestRender(t *testing.T) {
	value := map[string]any{"signature": "SHA1: 00", "certificates": 1}

	var buf bytes.Buffer
	if err := render(&buf, formatJSON, value, nil); err != nil {
		t.Fatalf("render(json) error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil || decoded["signature"] != "SHA1: 00" {
		t.Errorf("json output = %s, %v", buf.String(), err)
	}

	buf.Reset()
	if err := render(&buf, formatYAML, value, nil); err != nil {
		t.Fatalf("render(yaml) error = %v", err)
	}
	decoded = nil
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil || decoded["signature"] != "SHA1: 00" {
		t.Errorf("yaml output = %s, %v", buf.String(), err)
	}

	buf.Reset()
	called := false
	if err := render(&buf, "", value, func(io.Writer) error { called = true; return nil }); err != nil || !called {
		t.Errorf("render(text) called = %v, err = %v", called, err)
	}

	if err := render(&buf, "xml", value, nil); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestCommonFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    commonFlags
		wantErr bool
	}{
		{name: "config and format", args: []string{"-c", "a.lua", "--format", "json"}, want: commonFlags{configPath: "a.lua", format: "json"}},
		{name: "help and verbose", args: []string{"-h", "-v"}, want: commonFlags{help: true, verbose: true}},
		{name: "bad format", args: []string{"--format=xml"}, wantErr: true},
		{name: "unknown", args: []string{"--bogus"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags, err := parseSignatureFlags(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSignatureFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && flags.commonFlags != tt.want {
				t.Errorf("flags = %+v, want %+v", flags.commonFlags, tt.want)
			}
		})
	}
}
