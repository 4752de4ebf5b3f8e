package readers

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/cuemby/truss/pkg/types"
)

// Format identifies which package ecosystem an archive belongs to.
type Format string

const (
	FormatRPM  Format = "rpm"
	FormatDeb  Format = "deb"
	FormatArch Format = "arch"
)

var (
	rpmMagic = []byte{0xED, 0xAB, 0xEE, 0xDB}
	arMagic  = []byte("!<arch>\n")

	gzipMagic = []byte{0x1F, 0x8B}
	xzMagic   = []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}
	zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
)

// Detect identifies a package's format from its filename suffix first,
// falling back to the magic bytes at the start of its content.
func Detect(filename string, head []byte) (Format, error) {
	switch {
	case strings.HasSuffix(filename, ".rpm"):
		return FormatRPM, nil
	case strings.HasSuffix(filename, ".deb"):
		return FormatDeb, nil
	case strings.HasSuffix(filename, ".pkg.tar.zst"),
		strings.HasSuffix(filename, ".pkg.tar.xz"),
		strings.HasSuffix(filename, ".pkg.tar.gz"),
		strings.HasSuffix(filename, ".pkg.tar"):
		return FormatArch, nil
	}

	switch {
	case bytes.HasPrefix(head, rpmMagic):
		return FormatRPM, nil
	case bytes.HasPrefix(head, arMagic):
		return FormatDeb, nil
	case bytes.HasPrefix(head, zstdMagic), bytes.HasPrefix(head, xzMagic), bytes.HasPrefix(head, gzipMagic):
		return FormatArch, nil
	}

	return "", fmt.Errorf("readers: cannot detect format of %q", filename)
}

// Reader is the capability every format-specific parser exposes:
// identify the package, enumerate its dependencies, and stream out its
// regular files.
type Reader interface {
	Name() string
	Version() string
	Architecture() string
	Description() string
	Dependencies() []types.Dependency
	Files() []types.FileRecord
	// Extract opens the content of the regular file at path (as
	// reported by Files) for streaming into the CAS. Callers must
	// Close the returned reader.
	Extract(path string) (io.ReadCloser, error)
	// ToTrove builds the Trove record this reader's package would
	// install as.
	ToTrove() types.Trove
}
