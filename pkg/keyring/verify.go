package keyring

// Verifier checks a repository package or index body against a
// detached signature. pkg/txn calls Verify before deploying a
// downloaded package when the owning repository has GPGCheck enabled.
type Verifier interface {
	Verify(repo string, data, signature []byte) error
}

// NoopVerifier accepts everything. Actual signature verification
// (GPG/PGP trust chains) is an external capability per spec.md's
// Non-goals; callers that need real verification supply their own
// Verifier.
type NoopVerifier struct{}

// Verify always succeeds.
func (NoopVerifier) Verify(repo string, data, signature []byte) error {
	return nil
}
