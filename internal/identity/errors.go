package identity

import "fmt"

// FailureReason classifies a RetrievalFailure.
type FailureReason int

const (
	// NoSignatures means the package reported no signing certificates.
	NoSignatures FailureReason = iota + 1
	// PackageUnavailable means package information could not be read.
	PackageUnavailable
	// DigestFailed means the fingerprint could not be computed.
	DigestFailed
)

// String returns the string representation of the reason.
func (r FailureReason) String() string {
	switch r {
	case NoSignatures:
		return "no signatures"
	case PackageUnavailable:
		return "package unavailable"
	case DigestFailed:
		return "digest failed"
	default:
		return "unknown"
	}
}

// RetrievalFailure is the single error class of the bridge. It never crosses
// the channel boundary; callers see an absent result instead.
type RetrievalFailure struct {
	Reason FailureReason
	Err    error
}

func (e *RetrievalFailure) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("signature retrieval failed: %s", e.Reason)
	}
	return fmt.Sprintf("signature retrieval failed: %s: %v", e.Reason, e.Err)
}

func (e *RetrievalFailure) Unwrap() error {
	return e.Err
}
