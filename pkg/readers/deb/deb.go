package deb

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"pault.ag/go/debian/control"
	debpkg "pault.ag/go/debian/deb"
	"pault.ag/go/debian/dependency"
	"pault.ag/go/debian/version"

	"github.com/cuemby/truss/pkg/types"
)

// controlFields is the subset of a Debian control stanza this reader
// needs, decoded the same way paultag-go-archive/packages.go decodes
// the archive-wide Packages file. Version is kept as Debian's own
// comparable type so NativeVersion can expose dpkg ordering for
// display/sort purposes; the resolver itself always compares the
// RPM-style string form from Version(), never this type, per
// spec.md §9.
type controlFields struct {
	control.Paragraph

	Package      string          `required:"true"`
	Version      version.Version `required:"true"`
	Architecture string          `required:"true"`
	Description  string          `required:"true"`
	Depends      string
	Recommends   string
	Suggests     string
}

// Package is a parsed .deb: its control stanza plus the path to the
// archive so Extract can re-open the data tarball on demand.
type Package struct {
	fields controlFields
	files  []types.FileRecord
	deps   []types.Dependency
	path   string
}

// Open reads path's ar container, decodes control.tar's control file
// and indexes data.tar's regular file entries.
func Open(path string) (*Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("deb: open %s: %w", path, err)
	}
	defer f.Close()

	members, err := readAr(f)
	if err != nil {
		return nil, fmt.Errorf("deb: %s: %w", path, err)
	}

	p := &Package{path: path}

	for _, m := range members {
		switch {
		case strings.HasPrefix(m.name, "control.tar"):
			if err := p.loadControl(m); err != nil {
				return nil, fmt.Errorf("deb: %s: %w", path, err)
			}
		case strings.HasPrefix(m.name, "data.tar"):
			files, err := readDataFileList(m)
			if err != nil {
				return nil, fmt.Errorf("deb: %s: %w", path, err)
			}
			p.files = files
		}
	}

	if p.fields.Package == "" {
		return nil, fmt.Errorf("deb: %s: missing control.tar member", path)
	}

	p.deps = dependenciesFromFields(p.fields)
	return p, nil
}

func (p *Package) loadControl(m arMember) error {
	decompressor := debpkg.DecompressorFor(filepath.Ext(m.name))
	rc, err := decompressor(m.body)
	if err != nil {
		return fmt.Errorf("decompress %s: %w", m.name, err)
	}
	defer rc.Close()

	tr := tar.NewReader(rc)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return fmt.Errorf("control.tar has no control file")
		}
		if err != nil {
			return fmt.Errorf("read control.tar: %w", err)
		}
		name := strings.TrimPrefix(hdr.Name, "./")
		if name != "control" {
			continue
		}
		decoder, err := control.NewDecoder(tr, nil)
		if err != nil {
			return fmt.Errorf("decode control paragraph: %w", err)
		}
		return decoder.Decode(&p.fields)
	}
}

func readDataFileList(m arMember) ([]types.FileRecord, error) {
	decompressor := debpkg.DecompressorFor(filepath.Ext(m.name))
	rc, err := decompressor(m.body)
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", m.name, err)
	}
	defer rc.Close()

	var out []types.FileRecord
	tr := tar.NewReader(rc)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read data.tar: %w", err)
		}

		path := "/" + strings.TrimPrefix(strings.TrimPrefix(hdr.Name, "./"), "/")
		switch hdr.Typeflag {
		case tar.TypeDir:
			continue
		case tar.TypeSymlink:
			out = append(out, types.FileRecord{
				Path:       path,
				Mode:       uint32(hdr.Mode),
				LinkTarget: hdr.Linkname,
			})
		case tar.TypeReg:
			out = append(out, types.FileRecord{
				Path: path,
				Size: hdr.Size,
				Mode: uint32(hdr.Mode),
			})
		}
	}
	return out, nil
}

// dependenciesFromFields parses Depends/Recommends/Suggests using
// pault.ag/go/debian/dependency, selecting the first alternative of
// each "a | b" relation per spec.md §4.2.
func dependenciesFromFields(f controlFields) []types.Dependency {
	var out []types.Dependency
	for _, field := range []struct {
		raw  string
		kind types.DependencyKind
	}{
		{f.Depends, types.DependencyRuntime},
		{f.Recommends, types.DependencyRuntime},
		{f.Suggests, types.DependencyOptional},
	} {
		if field.raw == "" {
			continue
		}
		parsed, err := dependency.Parse(field.raw)
		if err != nil || parsed == nil {
			continue
		}
		for _, rel := range parsed.Relations {
			if len(rel.Possibilities) == 0 {
				continue
			}
			first := rel.Possibilities[0]
			d := types.Dependency{Name: first.Name, Kind: field.kind}
			if first.Version != nil {
				d.Constraint = fmt.Sprintf("%s %s", first.Version.Operator, first.Version.Number)
			}
			out = append(out, d)
		}
	}
	return out
}

func (p *Package) Name() string         { return p.fields.Package }
func (p *Package) Version() string      { return p.fields.Version.String() }

// NativeVersion exposes Debian's own comparable version type for
// callers that want dpkg ordering (e.g. a CLI listing sorted by
// upstream version) instead of the resolver's RPM-style comparison.
func (p *Package) NativeVersion() version.Version { return p.fields.Version }
func (p *Package) Architecture() string { return p.fields.Architecture }
func (p *Package) Description() string  { return firstLine(p.fields.Description) }

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func (p *Package) Dependencies() []types.Dependency { return p.deps }
func (p *Package) Files() []types.FileRecord        { return p.files }

func (p *Package) ToTrove() types.Trove {
	return types.Trove{
		Name:         p.fields.Package,
		Version:      p.fields.Version.String(),
		Architecture: p.fields.Architecture,
		Kind:         types.TroveKindPackage,
		Description:  firstLine(p.fields.Description),
	}
}

// Extract streams the content of the regular file at path out of the
// data tarball.
func (p *Package) Extract(path string) (io.ReadCloser, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("deb: open %s: %w", p.path, err)
	}

	members, err := readAr(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("deb: %s: %w", p.path, err)
	}

	for _, m := range members {
		if !strings.HasPrefix(m.name, "data.tar") {
			continue
		}
		decompressor := debpkg.DecompressorFor(filepath.Ext(m.name))
		rc, err := decompressor(m.body)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("deb: decompress %s: %w", m.name, err)
		}

		tr := tar.NewReader(rc)
		for {
			hdr, err := tr.Next()
			if err == io.EOF {
				rc.Close()
				f.Close()
				return nil, fmt.Errorf("deb: %s not found in %s", path, p.path)
			}
			if err != nil {
				rc.Close()
				f.Close()
				return nil, err
			}
			name := "/" + strings.TrimPrefix(strings.TrimPrefix(hdr.Name, "./"), "/")
			if name == path && hdr.Typeflag == tar.TypeReg {
				return tarEntryReader{Reader: tr, closers: []io.Closer{rc, f}}, nil
			}
		}
	}
	f.Close()
	return nil, fmt.Errorf("deb: %s has no data.tar member", p.path)
}

type tarEntryReader struct {
	io.Reader
	closers []io.Closer
}

func (t tarEntryReader) Close() error {
	var firstErr error
	for _, c := range t.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
