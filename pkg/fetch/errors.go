package fetch

import "errors"

// ErrChecksumMismatch is returned by Download when the fetched body's
// SHA-256 doesn't match the expected checksum.
var ErrChecksumMismatch = errors.New("fetch: checksum mismatch")
