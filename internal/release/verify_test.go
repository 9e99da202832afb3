package release

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork
	"github.com/ProtonMail/go-crypto/openpgp/armor"
)

// testSigner generates an OpenPGP key and writes its armored public keyring.
func testSigner(t *testing.T, dir string) (*openpgp.Entity, string) {
	t.Helper()

	entity, err := openpgp.NewEntity("Release Bot", "test", "release@roaddetection.invalid", nil)
	if err != nil {
		t.Fatalf("NewEntity() error = %v", err)
	}

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := entity.Serialize(w); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "release.asc")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	return entity, path
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestVerifyChecksum(t *testing.T) {
	dir := t.TempDir()
	apk := []byte("PK\x03\x04 apk payload")
	apkPath := writeFile(t, dir, "app.apk", apk)

	tests := []struct {
		name      string
		checksums string
		wantErr   bool
	}{
		{name: "match", checksums: sha256Hex(apk) + "  app.apk\n"},
		{name: "uppercase digest", checksums: strings.ToUpper(sha256Hex(apk)) + "  app.apk\n"},
		{name: "binary marker", checksums: sha256Hex(apk) + " *app.apk\n"},
		{name: "path prefix", checksums: "deadbeef  other.apk\n" + sha256Hex(apk) + "  dist/app.apk\n"},
		{name: "mismatch", checksums: sha256Hex([]byte("other")) + "  app.apk\n", wantErr: true},
		{name: "missing entry", checksums: sha256Hex(apk) + "  other.apk\n", wantErr: true},
		{name: "malformed", checksums: "garbage\n", wantErr: true},
	}

	v := NewVerifier(VerifierOptions{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sumsPath := writeFile(t, t.TempDir(), "SHA256SUMS", []byte(tt.checksums))
			result, err := v.VerifyChecksum(apkPath, sumsPath)

			if result == nil || result.Method != VerificationSHA256 {
				t.Fatalf("result = %+v, want SHA256 method", result)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("VerifyChecksum() error = %v, wantErr %v", err, tt.wantErr)
			}
			if result.Success == tt.wantErr {
				t.Errorf("Success = %v, wantErr %v", result.Success, tt.wantErr)
			}
		})
	}
}

func TestVerifySignature(t *testing.T) {
	dir := t.TempDir()
	entity, keyringPath := testSigner(t, dir)

	apk := []byte("signed apk payload")
	apkPath := writeFile(t, dir, "app.apk", apk)

	var armored bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&armored, entity, bytes.NewReader(apk), nil); err != nil {
		t.Fatal(err)
	}
	armoredPath := writeFile(t, dir, "app.apk.asc", armored.Bytes())

	var binarySig bytes.Buffer
	if err := openpgp.DetachSign(&binarySig, entity, bytes.NewReader(apk), nil); err != nil {
		t.Fatal(err)
	}
	binaryPath := writeFile(t, dir, "app.apk.sig", binarySig.Bytes())

	tamperedPath := writeFile(t, dir, "tampered.apk", []byte("tampered apk payload"))

	tests := []struct {
		name      string
		keyring   string
		artifact  string
		signature string
		wantErr   bool
	}{
		{name: "armored signature", keyring: keyringPath, artifact: apkPath, signature: armoredPath},
		{name: "binary signature", keyring: keyringPath, artifact: apkPath, signature: binaryPath},
		{name: "tampered artifact", keyring: keyringPath, artifact: tamperedPath, signature: armoredPath, wantErr: true},
		{name: "missing signature", keyring: keyringPath, artifact: apkPath, signature: filepath.Join(dir, "none.asc"), wantErr: true},
		{name: "no keyring", artifact: apkPath, signature: armoredPath, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewVerifier(VerifierOptions{KeyringPath: tt.keyring})
			result, err := v.VerifySignature(tt.artifact, tt.signature)

			if (err != nil) != tt.wantErr {
				t.Fatalf("VerifySignature() error = %v, wantErr %v", err, tt.wantErr)
			}
			if result.Method != VerificationGPG || result.Success == tt.wantErr {
				t.Errorf("result = %+v", result)
			}
			if !tt.wantErr {
				want := strings.ToUpper(hex.EncodeToString(entity.PrimaryKey.Fingerprint))
				if result.Detail != want {
					t.Errorf("Detail = %s, want signer fingerprint %s", result.Detail, want)
				}
			}
		})
	}
}

func TestVerifyBundle_Errors(t *testing.T) {
	dir := t.TempDir()
	apkPath := writeFile(t, dir, "app.apk", []byte("apk"))
	bundlePath := writeFile(t, dir, "app.apk.sigstore.json", []byte(`{"mediaType":"bogus"}`))
	rootPath := writeFile(t, dir, "trusted_root.json", []byte(`{}`))

	tests := []struct {
		name string
		opts VerifierOptions
	}{
		{name: "no identity", opts: VerifierOptions{TrustedRootPath: rootPath}},
		{name: "malformed bundle", opts: VerifierOptions{TrustedRootPath: rootPath, CertificateIdentity: "release@roaddetection.invalid"}},
		{name: "missing trusted root", opts: VerifierOptions{TrustedRootPath: filepath.Join(dir, "none.json"), CertificateIdentity: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := NewVerifier(tt.opts).VerifyBundle(apkPath, bundlePath)
			if err == nil {
				t.Fatal("expected error")
			}
			if result.Method != VerificationSigstore || result.Success {
				t.Errorf("result = %+v", result)
			}
		})
	}
}

func TestVerifier_Verify(t *testing.T) {
	dir := t.TempDir()
	entity, keyringPath := testSigner(t, dir)

	apk := []byte("release apk")
	apkPath := writeFile(t, dir, "app.apk", apk)
	sumsPath := writeFile(t, dir, "SHA256SUMS", []byte(fmt.Sprintf("%s  app.apk\n", sha256Hex(apk))))
	badSumsPath := writeFile(t, dir, "BAD256SUMS", []byte(fmt.Sprintf("%s  app.apk\n", sha256Hex([]byte("x")))))

	var sig bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&sig, entity, bytes.NewReader(apk), nil); err != nil {
		t.Fatal(err)
	}
	sigPath := writeFile(t, dir, "app.apk.asc", sig.Bytes())

	t.Run("all checks pass", func(t *testing.T) {
		v := NewVerifier(VerifierOptions{KeyringPath: keyringPath})
		results, err := v.Verify(apkPath, SidecarFiles{Checksums: sumsPath, Signature: sigPath})
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if len(results) != 2 || results[0].Method != VerificationSHA256 || results[1].Method != VerificationGPG {
			t.Errorf("results = %+v", results)
		}
	})

	t.Run("checksum failure stops", func(t *testing.T) {
		v := NewVerifier(VerifierOptions{KeyringPath: keyringPath})
		results, err := v.Verify(apkPath, SidecarFiles{Checksums: badSumsPath, Signature: sigPath})
		if !errors.Is(err, ErrVerificationFailed) {
			t.Fatalf("Verify() error = %v, want ErrVerificationFailed", err)
		}
		if len(results) != 1 || results[0].Success {
			t.Errorf("results = %+v", results)
		}
	})

	t.Run("signature without keyring is skipped", func(t *testing.T) {
		results, err := NewVerifier(VerifierOptions{}).Verify(apkPath, SidecarFiles{Signature: sigPath})
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if len(results) != 1 || results[0].Method != VerificationNone {
			t.Errorf("results = %+v", results)
		}
	})

	t.Run("nothing to check", func(t *testing.T) {
		results, err := NewVerifier(VerifierOptions{}).Verify(apkPath, SidecarFiles{})
		if err != nil || len(results) != 1 || results[0].Method != VerificationNone || results[0].Success {
			t.Errorf("Verify() = %+v, %v", results, err)
		}
	})
}

func TestLoadKeyring(t *testing.T) {
	dir := t.TempDir()
	_, keyringPath := testSigner(t, dir)

	if keyring, err := loadKeyring(keyringPath); err != nil || len(keyring) != 1 {
		t.Errorf("loadKeyring() = %d entities, %v", len(keyring), err)
	}
	if _, err := loadKeyring(""); err == nil {
		t.Error("expected error for empty path")
	}
	garbage := writeFile(t, dir, "garbage.gpg", []byte("not a keyring"))
	if _, err := loadKeyring(garbage); err == nil {
		t.Error("expected error for garbage keyring")
	}
}
