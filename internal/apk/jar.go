package apk

import (
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/digitorus/pkcs7"
)

// maxSignatureBlockSize bounds how much of a META-INF signature entry is read.
const maxSignatureBlockSize = 1 << 20

// JARSigner is one v1 signer: a META-INF signature block file and the
// certificates it carries, signer certificate first.
type JARSigner struct {
	Name         string
	Certificates [][]byte
}

// JARSigners returns the v1 signers of the package, ordered by entry name.
func (p *Package) JARSigners() ([]JARSigner, error) {
	var names []string
	entries := make(map[string]int)
	for i, f := range p.zip.File {
		if isSignatureBlock(f.Name) {
			names = append(names, f.Name)
			entries[f.Name] = i
		}
	}

	if len(names) == 0 {
		return nil, ErrNoJARSignature
	}
	sort.Strings(names)

	signers := make([]JARSigner, 0, len(names))
	for _, name := range names {
		data, err := p.readEntry(entries[name])
		if err != nil {
			return nil, err
		}

		certs, err := parseSignatureBlock(data)
		if err != nil {
			return nil, formatErr("invalid JAR signature block", "%s: %v", name, err)
		}

		signers = append(signers, JARSigner{Name: name, Certificates: certs})
	}

	return signers, nil
}

// isSignatureBlock reports whether name is a META-INF/<x>.{RSA,DSA,EC} entry.
func isSignatureBlock(name string) bool {
	dir, file := path.Split(name)
	if !strings.EqualFold(dir, "META-INF/") {
		return false
	}

	switch strings.ToUpper(path.Ext(file)) {
	case ".RSA", ".DSA", ".EC":
		return len(file) > len(path.Ext(file))
	default:
		return false
	}
}

func (p *Package) readEntry(index int) ([]byte, error) {
	f := p.zip.File[index]

	rc, err := f.Open()
	if err != nil {
		return nil, formatErr("unreadable zip entry", "%s: %v", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxSignatureBlockSize+1))
	if err != nil {
		return nil, formatErr("unreadable zip entry", "%s: %v", f.Name, err)
	}
	if len(data) > maxSignatureBlockSize {
		return nil, formatErr("signature block too large", "%s exceeds %d bytes", f.Name, maxSignatureBlockSize)
	}

	return data, nil
}

// parseSignatureBlock extracts DER certificates from a PKCS#7 SignedData blob.
// The signer certificate, when identifiable, is moved to the front.
func parseSignatureBlock(data []byte) ([][]byte, error) {
	p7, err := pkcs7.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse pkcs7: %w", err)
	}

	if len(p7.Certificates) == 0 {
		return nil, fmt.Errorf("signature block has no certificates")
	}

	certs := make([][]byte, 0, len(p7.Certificates))
	if signer := p7.GetOnlySigner(); signer != nil {
		certs = append(certs, signer.Raw)
		for _, c := range p7.Certificates {
			if c != signer {
				certs = append(certs, c.Raw)
			}
		}
		return certs, nil
	}

	for _, c := range p7.Certificates {
		certs = append(certs, c.Raw)
	}
	return certs, nil
}
