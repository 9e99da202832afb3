package apk

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Signing block IDs.
const (
	V2BlockID uint32 = 0x7109871a
	V3BlockID uint32 = 0xf05368c0
)

const (
	sigBlockMagic     = "APK Sig Block 42"
	sigBlockFooterLen = 8 + len(sigBlockMagic)
	eocdSignature     = 0x06054b50
	eocdMinLen        = 22
	maxZipCommentLen  = 0xffff
	// maxSigningBlockLen bounds allocation for hostile size fields.
	maxSigningBlockLen = 64 << 20
)

// SigningBlock is the parsed APK Signing Block: its ID-value pairs in file order.
type SigningBlock struct {
	Pairs []Pair
}

// Pair is one ID-value entry of the signing block.
type Pair struct {
	ID    uint32
	Value []byte
}

// Lookup returns the value stored under id.
func (b *SigningBlock) Lookup(id uint32) ([]byte, bool) {
	for _, p := range b.Pairs {
		if p.ID == id {
			return p.Value, true
		}
	}
	return nil, false
}

// Signer is one v2 or v3 signer. MinSDK and MaxSDK are zero for v2 signers.
type Signer struct {
	Certificates [][]byte
	MinSDK       uint32
	MaxSDK       uint32
}

// SigningBlock locates and parses the APK Signing Block.
func (p *Package) SigningBlock() (*SigningBlock, error) {
	cdOffset, err := p.centralDirectoryOffset()
	if err != nil {
		return nil, err
	}

	if cdOffset < int64(sigBlockFooterLen+8) {
		return nil, ErrNoSigningBlock
	}

	footer := make([]byte, sigBlockFooterLen)
	if _, err := p.r.ReadAt(footer, cdOffset-int64(sigBlockFooterLen)); err != nil {
		return nil, fmt.Errorf("read signing block footer: %w", err)
	}
	if !bytes.Equal(footer[8:], []byte(sigBlockMagic)) {
		return nil, ErrNoSigningBlock
	}

	blockLen := binary.LittleEndian.Uint64(footer[:8])
	if blockLen < uint64(sigBlockFooterLen) || blockLen > maxSigningBlockLen {
		return nil, formatErr("invalid signing block", "size %d out of range", blockLen)
	}

	start := cdOffset - int64(blockLen) - 8
	if start < 0 {
		return nil, formatErr("invalid signing block", "size %d exceeds offset %d", blockLen, cdOffset)
	}

	block := make([]byte, blockLen+8)
	if _, err := p.r.ReadAt(block, start); err != nil {
		return nil, fmt.Errorf("read signing block: %w", err)
	}
	if header := binary.LittleEndian.Uint64(block[:8]); header != blockLen {
		return nil, formatErr("invalid signing block", "header size %d != footer size %d", header, blockLen)
	}

	pairs, err := parsePairs(block[8 : len(block)-sigBlockFooterLen])
	if err != nil {
		return nil, err
	}

	return &SigningBlock{Pairs: pairs}, nil
}

// V2Signers returns the signers of the v2 scheme block.
func (p *Package) V2Signers() ([]Signer, error) {
	return p.schemeSigners(V2BlockID, false)
}

// V3Signers returns the signers of the v3 scheme block, with their SDK ranges.
func (p *Package) V3Signers() ([]Signer, error) {
	return p.schemeSigners(V3BlockID, true)
}

func (p *Package) schemeSigners(id uint32, v3 bool) ([]Signer, error) {
	block, err := p.SigningBlock()
	if err != nil {
		return nil, err
	}

	value, ok := block.Lookup(id)
	if !ok {
		return nil, ErrSchemeNotFound
	}

	signers, err := parseSigners(value, v3)
	if err != nil {
		return nil, formatErr("invalid signature scheme block", "id %#x: %v", id, err)
	}
	return signers, nil
}

// centralDirectoryOffset finds the end of central directory record and returns
// the offset it records for the central directory.
func (p *Package) centralDirectoryOffset() (int64, error) {
	if p.size < eocdMinLen {
		return 0, formatErr("not a zip archive", "file too small")
	}

	tailLen := int64(eocdMinLen + maxZipCommentLen)
	if tailLen > p.size {
		tailLen = p.size
	}

	tail := make([]byte, tailLen)
	if _, err := p.r.ReadAt(tail, p.size-tailLen); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("read zip tail: %w", err)
	}

	for i := len(tail) - eocdMinLen; i >= 0; i-- {
		if binary.LittleEndian.Uint32(tail[i:]) != eocdSignature {
			continue
		}
		commentLen := int(binary.LittleEndian.Uint16(tail[i+20:]))
		if i+eocdMinLen+commentLen != len(tail) {
			continue
		}

		offset := int64(binary.LittleEndian.Uint32(tail[i+16:]))
		if offset > p.size-tailLen+int64(i) {
			return 0, formatErr("invalid zip archive", "central directory offset %d out of range", offset)
		}
		return offset, nil
	}

	return 0, formatErr("not a zip archive", "end of central directory not found")
}

func parsePairs(buf []byte) ([]Pair, error) {
	var pairs []Pair
	for len(buf) > 0 {
		if len(buf) < 8 {
			return nil, formatErr("invalid signing block", "truncated pair length")
		}
		n := binary.LittleEndian.Uint64(buf)
		buf = buf[8:]

		if n < 4 || n > uint64(len(buf)) {
			return nil, formatErr("invalid signing block", "pair length %d out of range", n)
		}
		pairs = append(pairs, Pair{
			ID:    binary.LittleEndian.Uint32(buf),
			Value: buf[4:n],
		})
		buf = buf[n:]
	}
	return pairs, nil
}

// parseSigners decodes a length-prefixed sequence of length-prefixed signers.
func parseSigners(value []byte, v3 bool) ([]Signer, error) {
	seq, _, err := lengthPrefixed(value)
	if err != nil {
		return nil, fmt.Errorf("signers: %w", err)
	}

	var signers []Signer
	for len(seq) > 0 {
		var raw []byte
		raw, seq, err = lengthPrefixed(seq)
		if err != nil {
			return nil, fmt.Errorf("signer #%d: %w", len(signers)+1, err)
		}

		signer, err := parseSigner(raw, v3)
		if err != nil {
			return nil, fmt.Errorf("signer #%d: %w", len(signers)+1, err)
		}
		signers = append(signers, signer)
	}

	if len(signers) == 0 {
		return nil, fmt.Errorf("no signers")
	}
	return signers, nil
}

func parseSigner(raw []byte, v3 bool) (Signer, error) {
	signedData, rest, err := lengthPrefixed(raw)
	if err != nil {
		return Signer{}, fmt.Errorf("signed data: %w", err)
	}

	var signer Signer
	if v3 {
		if len(rest) < 8 {
			return Signer{}, fmt.Errorf("truncated SDK range")
		}
		signer.MinSDK = binary.LittleEndian.Uint32(rest)
		signer.MaxSDK = binary.LittleEndian.Uint32(rest[4:])
	}

	// signed data: digests, certificates, [minSDK, maxSDK,] attributes
	_, signedData, err = lengthPrefixed(signedData)
	if err != nil {
		return Signer{}, fmt.Errorf("digests: %w", err)
	}
	certSeq, _, err := lengthPrefixed(signedData)
	if err != nil {
		return Signer{}, fmt.Errorf("certificates: %w", err)
	}

	for len(certSeq) > 0 {
		var cert []byte
		cert, certSeq, err = lengthPrefixed(certSeq)
		if err != nil {
			return Signer{}, fmt.Errorf("certificate #%d: %w", len(signer.Certificates)+1, err)
		}
		if len(cert) == 0 {
			return Signer{}, fmt.Errorf("certificate #%d is empty", len(signer.Certificates)+1)
		}
		signer.Certificates = append(signer.Certificates, cert)
	}

	if len(signer.Certificates) == 0 {
		return Signer{}, fmt.Errorf("no certificates")
	}
	return signer, nil
}

// lengthPrefixed splits a uint32-length-prefixed field off buf.
func lengthPrefixed(buf []byte) (field, rest []byte, err error) {
	if len(buf) < 4 {
		return nil, nil, fmt.Errorf("truncated length prefix")
	}
	n := binary.LittleEndian.Uint32(buf)
	buf = buf[4:]
	if uint64(n) > uint64(len(buf)) {
		return nil, nil, fmt.Errorf("length %d exceeds remaining %d bytes", n, len(buf))
	}
	return buf[:n], buf[n:], nil
}

// SupportsSDK reports whether a v3 signer applies to the given platform API level.
func (s Signer) SupportsSDK(level uint32) bool {
	if s.MinSDK == 0 && s.MaxSDK == 0 {
		return true
	}
	return level >= s.MinSDK && level <= s.MaxSDK
}
