package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/roaddetection/identitybridge/internal/logging"
)

// Result is either a present Fingerprint or a RetrievalFailure.
type Result struct {
	Fingerprint *Fingerprint
	Failure     *RetrievalFailure
}

// Present reports whether a fingerprint was computed.
func (r Result) Present() bool {
	return r.Fingerprint != nil
}

// Value returns the channel reply: the external string, or nil when absent.
func (r Result) Value() any {
	if r.Fingerprint == nil {
		return nil
	}
	return r.Fingerprint.String()
}

func absent(reason FailureReason, err error) Result {
	return Result{Failure: &RetrievalFailure{Reason: reason, Err: err}}
}

// Bridge computes the signing fingerprint of the current package on request.
// It holds no mutable state and is safe for concurrent use.
type Bridge struct {
	lister CertificateLister
	logger logging.Logger
}

// NewBridge creates a bridge over the given lister.
func NewBridge(lister CertificateLister) *Bridge {
	return &Bridge{lister: lister, logger: logging.Nop()}
}

// WithLogger sets the logger and returns the bridge.
func (b *Bridge) WithLogger(logger logging.Logger) *Bridge {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// GetSignature returns the fingerprint of the first signing certificate of
// the current package. It never returns partial results and never panics:
// every failure, including a panicking lister, becomes an absent Result.
func (b *Bridge) GetSignature(ctx context.Context) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = absent(PackageUnavailable, fmt.Errorf("platform panic: %v", r))
			b.logger.Error("signature retrieval panicked", "panic", r)
		}
	}()

	certs, err := b.lister.SigningCertificates(ctx)
	if err != nil {
		b.logger.Warn("signature retrieval failed", "error", err)
		return absent(PackageUnavailable, err)
	}

	if len(certs) == 0 {
		b.logger.Info("package has no signing certificates")
		return absent(NoSignatures, nil)
	}

	// Only the first signer is used; multi-signer packages report one fingerprint.
	fp, err := Compute(certs[0])
	if err != nil {
		b.logger.Error("fingerprint computation failed", "error", err)
		return absent(DigestFailed, err)
	}

	b.logger.Debug("signature retrieved", "fingerprint", fp.String(), "signers", len(certs))
	return Result{Fingerprint: &fp}
}

// Signature is GetSignature reduced to the channel contract: the external
// string, or nil.
func (b *Bridge) Signature(ctx context.Context) *string {
	r := b.GetSignature(ctx)
	if !r.Present() {
		return nil
	}
	s := r.Fingerprint.String()
	return &s
}

// IsRetrievalFailure reports whether err is a RetrievalFailure and returns it.
func IsRetrievalFailure(err error) (*RetrievalFailure, bool) {
	var rf *RetrievalFailure
	if errors.As(err, &rf) {
		return rf, true
	}
	return nil, false
}

// Err returns the failure as an error, or nil when present.
func (r Result) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure
}
