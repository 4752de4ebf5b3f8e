package arch

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/cuemby/truss/pkg/types"
)

// multiValuedKeys accumulate into a slice instead of being
// overwritten, per spec.md §4.2's .PKGINFO description.
var multiValuedKeys = map[string]bool{
	"depend": true, "optdepend": true, "makedepend": true,
	"license": true, "group": true,
}

// pkginfo is the decoded .PKGINFO metadata file.
type pkginfo struct {
	single map[string]string
	multi  map[string][]string
}

func parsePKGINFO(r io.Reader) (*pkginfo, error) {
	info := &pkginfo{single: map[string]string{}, multi: map[string][]string{}}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if multiValuedKeys[key] {
			info.multi[key] = append(info.multi[key], value)
		} else {
			info.single[key] = value
		}
	}
	return info, scanner.Err()
}

// Package is a parsed pacman tarball.
type Package struct {
	info  *pkginfo
	files []types.FileRecord
	deps  []types.Dependency
	path  string
}

// Open reads path's tarball, decompressing as needed, and indexes
// .PKGINFO plus every regular file/symlink entry.
func Open(path string) (*Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("arch: open %s: %w", path, err)
	}
	defer f.Close()

	r, err := decompress(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("arch: %s: %w", path, err)
	}

	p := &Package{path: path}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("arch: read tar: %w", err)
		}

		name := strings.TrimPrefix(hdr.Name, "./")
		if name == ".PKGINFO" {
			info, err := parsePKGINFO(tr)
			if err != nil {
				return nil, fmt.Errorf("arch: parse .PKGINFO: %w", err)
			}
			p.info = info
			continue
		}
		if strings.HasPrefix(name, ".") {
			continue // .MTREE, .BUILDINFO, .INSTALL and other pacman metadata
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			continue
		case tar.TypeSymlink:
			p.files = append(p.files, types.FileRecord{
				Path:       "/" + name,
				Mode:       uint32(hdr.Mode),
				LinkTarget: hdr.Linkname,
			})
		case tar.TypeReg:
			p.files = append(p.files, types.FileRecord{
				Path: "/" + name,
				Size: hdr.Size,
				Mode: uint32(hdr.Mode),
			})
		}
	}

	if p.info == nil {
		return nil, fmt.Errorf("arch: %s: missing .PKGINFO", path)
	}
	p.deps = dependenciesFromInfo(p.info)
	return p, nil
}

// dependenciesFromInfo parses "name", "name>=v" and "name=v" tokens
// from the depend keys.
func dependenciesFromInfo(info *pkginfo) []types.Dependency {
	var out []types.Dependency
	for _, tok := range info.multi["depend"] {
		out = append(out, parseDependToken(tok, types.DependencyRuntime))
	}
	for _, tok := range info.multi["makedepend"] {
		out = append(out, parseDependToken(tok, types.DependencyBuild))
	}
	for _, tok := range info.multi["optdepend"] {
		// optional entries may carry "name: description"
		name := tok
		if i := strings.Index(tok, ":"); i >= 0 {
			name = strings.TrimSpace(tok[:i])
		}
		out = append(out, parseDependToken(name, types.DependencyOptional))
	}
	return out
}

func parseDependToken(tok string, kind types.DependencyKind) types.Dependency {
	for _, op := range []string{">=", "<=", "=", ">", "<"} {
		if i := strings.Index(tok, op); i >= 0 {
			return types.Dependency{
				Name:       tok[:i],
				Kind:       kind,
				Constraint: op + " " + tok[i+len(op):],
			}
		}
	}
	return types.Dependency{Name: tok, Kind: kind}
}

func (p *Package) Name() string         { return p.info.single["pkgname"] }
func (p *Package) Version() string      { return p.info.single["pkgver"] }
func (p *Package) Architecture() string { return p.info.single["arch"] }
func (p *Package) Description() string  { return p.info.single["pkgdesc"] }

func (p *Package) Dependencies() []types.Dependency { return p.deps }
func (p *Package) Files() []types.FileRecord        { return p.files }

func (p *Package) ToTrove() types.Trove {
	return types.Trove{
		Name:         p.Name(),
		Version:      p.Version(),
		Architecture: p.Architecture(),
		Kind:         types.TroveKindPackage,
		Description:  p.Description(),
	}
}

// Extract streams the content of the regular file at path out of the
// tarball.
func (p *Package) Extract(path string) (io.ReadCloser, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("arch: open %s: %w", p.path, err)
	}

	r, err := decompress(bufio.NewReader(f))
	if err != nil {
		f.Close()
		return nil, err
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			f.Close()
			return nil, fmt.Errorf("arch: %s not found in %s", path, p.path)
		}
		if err != nil {
			f.Close()
			return nil, err
		}
		name := "/" + strings.TrimPrefix(hdr.Name, "./")
		if name == path && hdr.Typeflag == tar.TypeReg {
			return readCloser{Reader: tr, closer: f}, nil
		}
	}
}

func decompress(r *bufio.Reader) (io.Reader, error) {
	head, err := r.Peek(6)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("peek archive magic: %w", err)
	}
	switch {
	case len(head) >= 4 && head[0] == 0x28 && head[1] == 0xB5 && head[2] == 0x2F && head[3] == 0xFD:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	case len(head) >= 6 && head[0] == 0xFD && string(head[1:4]) == "7zX":
		return xz.NewReader(r)
	case len(head) >= 2 && head[0] == 0x1F && head[1] == 0x8B:
		return gzip.NewReader(r)
	default:
		return r, nil
	}
}

type readCloser struct {
	io.Reader
	closer io.Closer
}

func (r readCloser) Close() error { return r.closer.Close() }
