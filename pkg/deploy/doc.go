/*
Package deploy materializes content from the CAS onto the filesystem
and reconciles it back against recorded hashes.

Restyled from cuemby-warren/pkg/deploy's rolling-update orchestrator:
the batching/logging shape survives, but the subject is a single file
write (temp+rename, mode/ownership, optional symlink) instead of a
container rollout.
*/
package deploy
