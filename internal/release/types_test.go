package release

import "testing"

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, ""},
		{-1, ""},
		{1, "1 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1024*1024 - 1, "1024.0 KB"},
		{1024 * 1024, "1.0 MB"},
		{25 * 1024 * 1024, "25.0 MB"},
		{52_428_800 + 104_858, "50.1 MB"},
	}

	for _, tt := range tests {
		if got := FormatSize(tt.bytes); got != tt.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}

func TestFindAPKAsset(t *testing.T) {
	tests := []struct {
		name    string
		release *Release
		want    string
	}{
		{name: "nil release", release: nil},
		{name: "no assets", release: &Release{}},
		{
			name:    "no apk",
			release: &Release{Assets: []Asset{{Name: "notes.txt"}, {Name: "app.aab"}}},
		},
		{
			name:    "first apk wins",
			release: &Release{Assets: []Asset{{Name: "SHA256SUMS"}, {Name: "app-release.apk"}, {Name: "app-debug.apk"}}},
			want:    "app-release.apk",
		},
		{
			name:    "case insensitive",
			release: &Release{Assets: []Asset{{Name: "VGTEC.APK"}}},
			want:    "VGTEC.APK",
		},
		{
			name:    "apk signature is not an apk",
			release: &Release{Assets: []Asset{{Name: "app.apk.asc"}, {Name: "app.apk"}}},
			want:    "app.apk",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindAPKAsset(tt.release)
			if tt.want == "" {
				if got != nil {
					t.Errorf("FindAPKAsset() = %s, want nil", got.Name)
				}
				return
			}
			if got == nil || got.Name != tt.want {
				t.Errorf("FindAPKAsset() = %v, want %s", got, tt.want)
			}
		})
	}
}

func TestFindSidecars(t *testing.T) {
	r := &Release{Assets: []Asset{
		{Name: "app.apk"},
		{Name: "app.apk.asc"},
		{Name: "app.apk.sigstore.json"},
		{Name: "checksums.txt"},
		{Name: "SHA256SUMS"},
	}}

	s := FindSidecars(r, FindAPKAsset(r))
	if s.Signature == nil || s.Signature.Name != "app.apk.asc" {
		t.Errorf("Signature = %v", s.Signature)
	}
	if s.Bundle == nil || s.Bundle.Name != "app.apk.sigstore.json" {
		t.Errorf("Bundle = %v", s.Bundle)
	}
	if s.Checksums == nil || s.Checksums.Name != "SHA256SUMS" {
		t.Errorf("Checksums = %v, want SHA256SUMS by preference", s.Checksums)
	}

	empty := FindSidecars(r, nil)
	if empty.Signature != nil || empty.Bundle != nil || empty.Checksums != nil {
		t.Errorf("expected no sidecars without an apk, got %+v", empty)
	}
}

func TestVerificationMethodString(t *testing.T) {
	tests := []struct {
		method VerificationMethod
		want   string
	}{
		{VerificationNone, "None"},
		{VerificationSHA256, "SHA256"},
		{VerificationGPG, "GPG"},
		{VerificationSigstore, "Sigstore"},
		{VerificationMethod(99), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.method.String(); got != tt.want {
			t.Errorf("String() = %s, want %s", got, tt.want)
		}
	}
}
