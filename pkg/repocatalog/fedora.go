package repocatalog

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/cuemby/truss/pkg/types"
)

// Fetcher retrieves a URL's body, implemented by pkg/fetch.Client in
// production and by a stub in tests.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type repomd struct {
	XMLName xml.Name      `xml:"repomd"`
	Data    []repomdEntry `xml:"data"`
}

type repomdEntry struct {
	Type     string `xml:"type,attr"`
	Location struct {
		Href string `xml:"href,attr"`
	} `xml:"location"`
}

type primaryMetadata struct {
	XMLName  xml.Name         `xml:"metadata"`
	Packages []primaryPackage `xml:"package"`
}

type primaryPackage struct {
	Name         string `xml:"name"`
	Architecture string `xml:"arch"`
	Version      struct {
		Epoch   string `xml:"epoch,attr"`
		Version string `xml:"ver,attr"`
		Release string `xml:"rel,attr"`
	} `xml:"version"`
	Checksum struct {
		Type  string `xml:"type,attr"`
		Value string `xml:",chardata"`
	} `xml:"checksum"`
	Summary string `xml:"summary"`
	Size    struct {
		Package int64 `xml:"package,attr"`
	} `xml:"size"`
	Location struct {
		Href string `xml:"href,attr"`
	} `xml:"location"`
	Format struct {
		Requires struct {
			Entries []primaryEntry `xml:"entry"`
		} `xml:"requires"`
	} `xml:"format"`
}

type primaryEntry struct {
	Name  string `xml:"name,attr"`
	Flags string `xml:"flags,attr"`
	Ver   string `xml:"ver,attr"`
}

// ParseFedora fetches repomd.xml at baseURL, locates the "primary"
// data block, fetches and decompresses it, and decodes every <package>
// element, per spec.md §4.3.
func ParseFedora(ctx context.Context, baseURL string, fetcher Fetcher) ([]types.RepositoryPackage, error) {
	repomdBytes, err := fetcher.Fetch(ctx, baseURL+"/repodata/repomd.xml")
	if err != nil {
		return nil, fmt.Errorf("repocatalog: fetch repomd.xml: %w", err)
	}

	var md repomd
	if err := xml.Unmarshal(repomdBytes, &md); err != nil {
		return nil, fmt.Errorf("repocatalog: decode repomd.xml: %w", err)
	}

	var primaryHref string
	for _, d := range md.Data {
		if d.Type == "primary" {
			primaryHref = d.Location.Href
			break
		}
	}
	if primaryHref == "" {
		return nil, fmt.Errorf("repocatalog: repomd.xml has no primary data block")
	}

	primaryBytes, err := fetcher.Fetch(ctx, baseURL+"/"+primaryHref)
	if err != nil {
		return nil, fmt.Errorf("repocatalog: fetch primary metadata: %w", err)
	}

	decompressed, err := decompressFedora(primaryHref, primaryBytes)
	if err != nil {
		return nil, fmt.Errorf("repocatalog: decompress primary metadata: %w", err)
	}

	var primary primaryMetadata
	if err := xml.Unmarshal(decompressed, &primary); err != nil {
		return nil, fmt.Errorf("repocatalog: decode primary metadata: %w", err)
	}

	out := make([]types.RepositoryPackage, 0, len(primary.Packages))
	for _, p := range primary.Packages {
		version := p.Version.Version
		if p.Version.Release != "" {
			version = version + "-" + p.Version.Release
		}
		if p.Version.Epoch != "" && p.Version.Epoch != "0" {
			version = p.Version.Epoch + ":" + version
		}
		out = append(out, types.RepositoryPackage{
			Name:         p.Name,
			Version:      version,
			Architecture: p.Architecture,
			Description:  p.Summary,
			Checksum:     p.Checksum.Value,
			ChecksumType: p.Checksum.Type,
			Size:         p.Size.Package,
			DownloadURL:  p.Location.Href,
			Dependencies: fedoraDependencies(p.Format.Requires.Entries),
		})
	}
	return out, nil
}

func fedoraDependencies(entries []primaryEntry) []types.Dependency {
	var out []types.Dependency
	for _, e := range entries {
		if e.Name == "" {
			continue
		}
		d := types.Dependency{Name: e.Name, Kind: types.DependencyRuntime}
		if e.Flags != "" && e.Ver != "" {
			d.Constraint = fedoraFlagToOp(e.Flags) + " " + e.Ver
		}
		out = append(out, d)
	}
	return out
}

func fedoraFlagToOp(flag string) string {
	switch flag {
	case "GE":
		return ">="
	case "LE":
		return "<="
	case "EQ":
		return "="
	case "LT":
		return "<"
	case "GT":
		return ">"
	default:
		return ""
	}
}

func decompressFedora(href string, data []byte) ([]byte, error) {
	var r io.Reader
	switch {
	case hasSuffix(href, ".gz"):
		gr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		r = gr
	case hasSuffix(href, ".zst"):
		zr, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	default:
		return data, nil
	}
	return io.ReadAll(r)
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}
