package rpm

import (
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

const leadSize = 96

// Package is a parsed RPM: its header tags and file list. Extract
// re-reads the CPIO payload to stream one file at a time without
// holding the whole archive in memory.
type Package struct {
	name, version, release, arch, summary string
	epoch                                 string

	files []types.FileRecord
	deps  []types.Dependency

	path string
}

// Open reads path's lead, signature header and main header, and
// indexes the file list. The CPIO payload itself is re-opened and
// streamed lazily by Extract.
func Open(path string) (*Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rpm: open %s: %w", path, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	if _, err := io.CopyN(io.Discard, br, leadSize); err != nil {
		return nil, fmt.Errorf("rpm: read lead: %w", err)
	}

	sig, err := readHeader(br)
	if err != nil {
		return nil, fmt.Errorf("rpm: read signature header: %w", err)
	}
	if err := skipPadding(br, len(sig.data)); err != nil {
		return nil, fmt.Errorf("rpm: align after signature: %w", err)
	}

	h, err := readHeader(br)
	if err != nil {
		return nil, fmt.Errorf("rpm: read header: %w", err)
	}

	p := &Package{
		name:    h.string(tagName),
		version: h.string(tagVersion),
		release: h.string(tagRelease),
		arch:    h.string(tagArch),
		summary: h.string(tagSummary),
		path:    path,
	}
	if e, ok := h.int32Scalar(tagEpoch); ok {
		p.epoch = fmt.Sprintf("%d", e)
	}

	p.files = fileRecordsFromHeader(h)
	p.deps = dependenciesFromHeader(h)

	return p, nil
}

func fileRecordsFromHeader(h *header) []types.FileRecord {
	basenames, _ := h.stringArray(tagBasenames)
	dirnames, _ := h.stringArray(tagDirnames)
	dirIndexes := h.int32Array(tagDirIndexes)
	sizes := h.int32Array(tagFileSizes)
	modes := h.int32Array(tagFileModes)
	digests, _ := h.stringArray(tagFileMD5s)
	linktos, _ := h.stringArray(tagFileLinktos)
	users, _ := h.stringArray(tagFileUser)
	groups, _ := h.stringArray(tagFileGroup)

	out := make([]types.FileRecord, 0, len(basenames))
	for i, base := range basenames {
		dir := ""
		if i < len(dirIndexes) {
			idx := int(dirIndexes[i])
			if idx >= 0 && idx < len(dirnames) {
				dir = dirnames[idx]
			}
		}
		rec := types.FileRecord{
			Path: dir + base,
		}
		if i < len(sizes) {
			rec.Size = int64(sizes[i])
		}
		if i < len(modes) {
			rec.Mode = uint32(modes[i]) & 0xFFFF
		}
		if i < len(users) {
			rec.Owner = users[i]
		}
		if i < len(groups) {
			rec.Group = groups[i]
		}
		if i < len(linktos) && linktos[i] != "" {
			rec.LinkTarget = linktos[i]
		} else if i < len(digests) {
			rec.SHA256 = digests[i] // RPM stores MD5 here by default; re-hashed to SHA-256 on ingest.
		}
		out = append(out, rec)
	}
	return out
}

// dependenciesFromHeader builds runtime Requires edges, filtering the
// internal rpmlib() feature markers and absolute-path file requires
// that spec.md directs readers to drop.
func dependenciesFromHeader(h *header) []types.Dependency {
	names, _ := h.stringArray(tagRequireName)
	versions, _ := h.stringArray(tagRequireVer)

	out := make([]types.Dependency, 0, len(names))
	for i, name := range names {
		if strings.HasPrefix(name, "rpmlib(") || strings.HasPrefix(name, "/") {
			continue
		}
		d := types.Dependency{Name: name, Kind: types.DependencyRuntime}
		if i < len(versions) {
			d.Constraint = versions[i]
		}
		out = append(out, d)
	}
	return out
}

func (p *Package) Name() string         { return p.name }
func (p *Package) Version() string      { return p.epochVersion() }
func (p *Package) Architecture() string { return p.arch }
func (p *Package) Description() string  { return p.summary }

func (p *Package) epochVersion() string {
	v := p.version
	if p.release != "" {
		v = v + "-" + p.release
	}
	if p.epoch != "" && p.epoch != "0" {
		v = p.epoch + ":" + v
	}
	return v
}

func (p *Package) Dependencies() []types.Dependency { return p.deps }
func (p *Package) Files() []types.FileRecord        { return p.files }

func (p *Package) ToTrove() types.Trove {
	return types.Trove{
		Name:         p.name,
		Version:      p.epochVersion(),
		Architecture: p.arch,
		Kind:         types.TroveKindPackage,
		Description:  p.summary,
	}
}

// Extract streams the content of the regular file at path out of the
// RPM's CPIO payload, decompressing the tail with whichever codec its
// magic bytes identify.
func (p *Package) Extract(path string) (io.ReadCloser, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("rpm: open %s: %w", p.path, err)
	}

	br := bufio.NewReader(f)
	if err := skipToPayload(br); err != nil {
		f.Close()
		return nil, err
	}

	decompressed, err := decompress(br)
	if err != nil {
		f.Close()
		return nil, err
	}

	cr := newCPIOReader(decompressed)
	for {
		entry, err := cr.Next()
		if err == io.EOF {
			f.Close()
			return nil, fmt.Errorf("rpm: %s not found in payload", path)
		}
		if err != nil {
			f.Close()
			return nil, err
		}
		name := strings.TrimPrefix(entry.name, "./")
		if "/"+name == path || name == path {
			body := cr.Body(entry)
			return readCloser{Reader: body, closer: f}, nil
		}
		if err := cr.Skip(entry); err != nil {
			f.Close()
			return nil, err
		}
	}
}

// skipToPayload re-reads the lead, signature and header sections so
// the stream is positioned at the start of the compressed CPIO
// payload, the same walk Open performs to collect metadata.
func skipToPayload(br *bufio.Reader) error {
	if _, err := io.CopyN(io.Discard, br, leadSize); err != nil {
		return fmt.Errorf("rpm: skip lead: %w", err)
	}
	sig, err := readHeader(br)
	if err != nil {
		return fmt.Errorf("rpm: skip signature header: %w", err)
	}
	if err := skipPadding(br, len(sig.data)); err != nil {
		return err
	}
	if _, err := readHeader(br); err != nil {
		return fmt.Errorf("rpm: skip header: %w", err)
	}
	return nil
}

func decompress(r *bufio.Reader) (io.Reader, error) {
	head, err := r.Peek(6)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("rpm: peek payload magic: %w", err)
	}
	switch {
	case len(head) >= 2 && head[0] == 0x1F && head[1] == 0x8B:
		return gzip.NewReader(r)
	case len(head) >= 6 && head[0] == 0xFD && string(head[1:4]) == "7zX":
		return xz.NewReader(r)
	case len(head) >= 4 && head[0] == 0x28 && head[1] == 0xB5 && head[2] == 0x2F && head[3] == 0xFD:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	default:
		return r, nil
	}
}

type readCloser struct {
	io.Reader
	closer io.Closer
}

func (r readCloser) Close() error { return r.closer.Close() }
