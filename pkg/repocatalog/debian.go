package repocatalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"pault.ag/go/debian/control"
	"pault.ag/go/debian/dependency"

	"github.com/cuemby/truss/pkg/types"
)

// debianStanza is one `Packages` entry, decoded the same way
// paultag-go-archive/packages.go decodes the archive-wide index.
type debianStanza struct {
	control.Paragraph

	Package      string `required:"true"`
	Version      string `required:"true"`
	Architecture string `required:"true"`
	Description  string
	Depends      string
	Filename     string
	Size         int64
	SHA256       string
}

// ParseDebian streams RFC-822 stanzas out of a `Packages` index file,
// keyed by Package, per spec.md §4.3.
func ParseDebian(data []byte) ([]types.RepositoryPackage, error) {
	decoder, err := control.NewDecoder(bytes.NewReader(data), nil)
	if err != nil {
		return nil, fmt.Errorf("repocatalog: open debian index: %w", err)
	}

	var out []types.RepositoryPackage
	for {
		var stanza debianStanza
		err := decoder.Decode(&stanza)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return out, fmt.Errorf("repocatalog: decode debian stanza: %w", err)
		}

		out = append(out, types.RepositoryPackage{
			Name:         stanza.Package,
			Version:      stanza.Version,
			Architecture: stanza.Architecture,
			Description:  firstLine(stanza.Description),
			Checksum:     stanza.SHA256,
			ChecksumType: "sha256",
			Size:         stanza.Size,
			DownloadURL:  stanza.Filename,
			Dependencies: debianDependencies(stanza.Depends),
		})
	}
	return out, nil
}

func debianDependencies(raw string) []types.Dependency {
	if raw == "" {
		return nil
	}
	parsed, err := dependency.Parse(raw)
	if err != nil || parsed == nil {
		return nil
	}
	var out []types.Dependency
	for _, rel := range parsed.Relations {
		if len(rel.Possibilities) == 0 {
			continue
		}
		first := rel.Possibilities[0]
		d := types.Dependency{Name: first.Name, Kind: types.DependencyRuntime}
		if first.Version != nil {
			d.Constraint = fmt.Sprintf("%s %s", first.Version.Operator, first.Version.Number)
		}
		out = append(out, d)
	}
	return out
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
