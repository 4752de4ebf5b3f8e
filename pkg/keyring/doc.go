/*
Package keyring stores per-repository signature material (GPG public
keys, detached signatures) at rest under <root>/keyrings/<repo>/,
encrypted with AES-256-GCM.

	mgr, _ := keyring.NewManagerFromPassphrase(root, passphrase)
	mgr.StoreKey("fedora-updates", "gpg.pub", keyBytes)
	key, _ := mgr.LoadKey("fedora-updates", "gpg.pub")

Verifier is the hook pkg/txn calls before deploying a package from a
repository with GPGCheck enabled; NoopVerifier is the default and
performs no actual cryptographic check, since signature verification
trust-chain logic is an external capability this core does not
implement.
*/
package keyring
