package repocatalog

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/cuemby/truss/pkg/types"
)

// archDesc is one package's worth of fields collected from a `desc`
// member, keyed by package name so pass 2 can attach dependencies.
type archDesc struct {
	name, version, arch, csize, sha256sum, url, license, desc string
}

// ParseArch decodes an Arch `.db.tar.{gz,xz,zst}` repository database
// in two passes: desc files first (pass 1), then depends files (pass
// 2), per spec.md §4.3.
func ParseArch(data []byte) ([]types.RepositoryPackage, error) {
	descs, err := readArchMembers(data, "desc")
	if err != nil {
		return nil, fmt.Errorf("repocatalog: arch pass 1: %w", err)
	}
	dependsByEntry, err := readArchDepends(data)
	if err != nil {
		return nil, fmt.Errorf("repocatalog: arch pass 2: %w", err)
	}

	var out []types.RepositoryPackage
	for entry, d := range descs {
		size, _ := strconv.ParseInt(d.csize, 10, 64)
		pkg := types.RepositoryPackage{
			Name:         d.name,
			Version:      d.version,
			Architecture: d.arch,
			Description:  d.desc,
			Checksum:     d.sha256sum,
			ChecksumType: "sha256",
			Size:         size,
			DownloadURL:  d.url,
			Dependencies: dependsByEntry[entry],
			Metadata:     map[string]string{"license": d.license},
		}
		out = append(out, pkg)
	}
	return out, nil
}

// readArchMembers walks every tar entry named <pkg-dir>/<member> and
// decodes the %KEY%\nvalue\n\n stanza format into a per-entry-directory
// map of raw fields, for "desc" (pass 1).
func readArchMembers(data []byte, member string) (map[string]archDesc, error) {
	r, err := decompressArchive(data)
	if err != nil {
		return nil, err
	}

	out := map[string]archDesc{}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		dir, base := splitArchMember(hdr.Name)
		if base != member {
			continue
		}
		fields, err := parseArchStanza(tr)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", hdr.Name, err)
		}
		out[dir] = archDesc{
			name:      fields["NAME"],
			version:   fields["VERSION"],
			arch:      fields["ARCH"],
			csize:     fields["CSIZE"],
			sha256sum: fields["SHA256SUM"],
			url:       fields["URL"],
			license:   fields["LICENSE"],
			desc:      fields["DESC"],
		}
	}
	return out, nil
}

// readArchDepends collects %DEPENDS% and %OPTDEPENDS% entries from
// every "depends" member, keyed the same way as readArchMembers so
// pass 1's results can be joined to it.
func readArchDepends(data []byte) (map[string][]types.Dependency, error) {
	r, err := decompressArchive(data)
	if err != nil {
		return nil, err
	}

	out := map[string][]types.Dependency{}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		dir, base := splitArchMember(hdr.Name)
		if base != "depends" {
			continue
		}
		fields, multi, err := parseArchMultiStanza(tr)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", hdr.Name, err)
		}
		_ = fields
		var deps []types.Dependency
		for _, tok := range multi["DEPENDS"] {
			deps = append(deps, parseArchDependToken(tok, types.DependencyRuntime))
		}
		for _, tok := range multi["OPTDEPENDS"] {
			deps = append(deps, parseArchDependToken(tok, types.DependencyOptional))
		}
		out[dir] = deps
	}
	return out, nil
}

func parseArchDependToken(tok string, kind types.DependencyKind) types.Dependency {
	name := tok
	constraint := ""
	for _, op := range []string{">=", "<=", "="} {
		if i := strings.Index(tok, op); i >= 0 {
			name = tok[:i]
			constraint = op + " " + tok[i+len(op):]
			break
		}
	}
	return types.Dependency{Name: name, Kind: kind, Constraint: constraint}
}

func splitArchMember(name string) (dir, base string) {
	name = strings.TrimPrefix(name, "./")
	parts := strings.SplitN(name, "/", 2)
	if len(parts) != 2 {
		return name, ""
	}
	return parts[0], parts[1]
}

// parseArchStanza decodes single-valued %KEY%\nvalue\n\n fields.
func parseArchStanza(r io.Reader) (map[string]string, error) {
	fields, _, err := parseArchMultiStanza(r)
	return fields, err
}

// parseArchMultiStanza decodes %KEY%\nvalue\n(value\n)*\n stanzas,
// returning both the first value (for single-valued fields like NAME)
// and the full list (for multi-valued fields like DEPENDS).
func parseArchMultiStanza(r io.Reader) (map[string]string, map[string][]string, error) {
	single := map[string]string{}
	multi := map[string][]string{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var key string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "%") && strings.HasSuffix(line, "%") {
			key = strings.Trim(line, "%")
			continue
		}
		if line == "" {
			key = ""
			continue
		}
		if key == "" {
			continue
		}
		if _, ok := single[key]; !ok {
			single[key] = line
		}
		multi[key] = append(multi[key], line)
	}
	return single, multi, scanner.Err()
}

func decompressArchive(data []byte) (io.Reader, error) {
	br := bufio.NewReader(bytes.NewReader(data))
	head, err := br.Peek(6)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("peek archive magic: %w", err)
	}
	switch {
	case len(head) >= 4 && head[0] == 0x28 && head[1] == 0xB5 && head[2] == 0x2F && head[3] == 0xFD:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	case len(head) >= 6 && head[0] == 0xFD && string(head[1:4]) == "7zX":
		return xz.NewReader(br)
	case len(head) >= 2 && head[0] == 0x1F && head[1] == 0x8B:
		return gzip.NewReader(br)
	default:
		return br, nil
	}
}
