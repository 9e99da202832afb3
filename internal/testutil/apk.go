package testutil

import (
	"archive/zip"
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/digitorus/pkcs7"
)

// Signer is a throwaway signing identity for fixture packages.
type Signer struct {
	Cert *x509.Certificate
	Key  *ecdsa.PrivateKey
}

// NewSigner creates a self-signed ECDSA P-256 signer with the given common name.
func NewSigner(t testing.TB, commonName string) *Signer {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 64))
	if err != nil {
		t.Fatalf("generate serial: %v", err)
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Road Detection"},
			CommonName:   commonName,
		},
		NotBefore: time.Now().Add(-time.Hour),
		NotAfter:  time.Now().Add(25 * 365 * 24 * time.Hour),
		KeyUsage:  x509.KeyUsageDigitalSignature,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}

	return &Signer{Cert: cert, Key: key}
}

// V3Signer is a v3 scheme signer with its SDK range.
type V3Signer struct {
	*Signer
	MinSDK uint32
	MaxSDK uint32
}

// APKOptions describes a fixture package.
type APKOptions struct {
	// V1 signers, written as META-INF/SIGNER<n>.EC PKCS#7 blocks.
	V1 []*Signer
	// V2 signers, written into the APK Signing Block.
	V2 []*Signer
	// V3 signers, written into the APK Signing Block.
	V3 []V3Signer
	// Extra zip entries.
	Files map[string]string
}

// BuildAPK assembles an APK image in memory.
func BuildAPK(t testing.TB, opts APKOptions) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	files := map[string]string{
		"AndroidManifest.xml": "manifest",
		"classes.dex":         "dex\n035",
	}
	for name, content := range opts.Files {
		files[name] = content
	}
	for name, content := range files {
		writeZipEntry(t, zw, name, []byte(content))
	}

	for i, s := range opts.V1 {
		sf := []byte(fmt.Sprintf("Signature-Version: 1.0\r\nCreated-By: identitybridge tests %d\r\n\r\n", i))
		writeZipEntry(t, zw, fmt.Sprintf("META-INF/SIGNER%d.SF", i), sf)
		writeZipEntry(t, zw, fmt.Sprintf("META-INF/SIGNER%d.EC", i), signPKCS7(t, s, sf))
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}

	data := buf.Bytes()
	if len(opts.V2) == 0 && len(opts.V3) == 0 {
		return data
	}

	var pairs []byte
	if len(opts.V2) > 0 {
		var signers [][]byte
		for _, s := range opts.V2 {
			signers = append(signers, v2Signer(s))
		}
		pairs = append(pairs, pair(0x7109871a, prefixed(concat(signers...)))...)
	}
	if len(opts.V3) > 0 {
		var signers [][]byte
		for _, s := range opts.V3 {
			signers = append(signers, v3Signer(s))
		}
		pairs = append(pairs, pair(0xf05368c0, prefixed(concat(signers...)))...)
	}

	return spliceSigningBlock(t, data, signingBlock(pairs))
}

// WriteAPK builds a fixture package and writes it to dir/name.
func WriteAPK(t testing.TB, dir, name string, opts APKOptions) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, BuildAPK(t, opts), 0o644); err != nil {
		t.Fatalf("write apk: %v", err)
	}
	return path
}

func writeZipEntry(t testing.TB, zw *zip.Writer, name string, content []byte) {
	t.Helper()

	w, err := zw.Create(name)
	if err != nil {
		t.Fatalf("create zip entry %s: %v", name, err)
	}
	if _, err := w.Write(content); err != nil {
		t.Fatalf("write zip entry %s: %v", name, err)
	}
}

func signPKCS7(t testing.TB, s *Signer, content []byte) []byte {
	t.Helper()

	sd, err := pkcs7.NewSignedData(content)
	if err != nil {
		t.Fatalf("new signed data: %v", err)
	}
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	if err := sd.AddSigner(s.Cert, s.Key, pkcs7.SignerInfoConfig{}); err != nil {
		t.Fatalf("add signer: %v", err)
	}
	sd.Detach()

	out, err := sd.Finish()
	if err != nil {
		t.Fatalf("finish signed data: %v", err)
	}
	return out
}

func v2Signer(s *Signer) []byte {
	signedData := concat(
		prefixed(nil), // digests
		prefixed(prefixed(s.Cert.Raw)),
		prefixed(nil), // additional attributes
	)
	return prefixed(concat(
		prefixed(signedData),
		prefixed(nil), // signatures
		prefixed(s.Cert.RawSubjectPublicKeyInfo),
	))
}

func v3Signer(s V3Signer) []byte {
	signedData := concat(
		prefixed(nil),
		prefixed(prefixed(s.Cert.Raw)),
		u32(s.MinSDK),
		u32(s.MaxSDK),
		prefixed(nil),
	)
	return prefixed(concat(
		prefixed(signedData),
		u32(s.MinSDK),
		u32(s.MaxSDK),
		prefixed(nil),
		prefixed(s.Cert.RawSubjectPublicKeyInfo),
	))
}

func pair(id uint32, value []byte) []byte {
	return concat(u64(uint64(len(value)+4)), u32(id), value)
}

func signingBlock(pairs []byte) []byte {
	size := uint64(len(pairs) + 8 + 16)
	return concat(u64(size), pairs, u64(size), []byte("APK Sig Block 42"))
}

// spliceSigningBlock inserts block before the central directory and patches the
// end of central directory record. The fixture zip has no archive comment.
func spliceSigningBlock(t testing.TB, data, block []byte) []byte {
	t.Helper()

	eocd := len(data) - 22
	if eocd < 0 || binary.LittleEndian.Uint32(data[eocd:]) != 0x06054b50 {
		t.Fatalf("fixture zip: end of central directory not found")
	}
	cdOffset := binary.LittleEndian.Uint32(data[eocd+16:])

	out := make([]byte, 0, len(data)+len(block))
	out = append(out, data[:cdOffset]...)
	out = append(out, block...)
	out = append(out, data[cdOffset:]...)

	binary.LittleEndian.PutUint32(out[len(out)-22+16:], cdOffset+uint32(len(block)))
	return out
}

func prefixed(b []byte) []byte {
	return concat(u32(uint32(len(b))), b)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func u32(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}

func u64(v uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, v)
}
