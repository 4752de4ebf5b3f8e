package rpm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// cpioEntry is one file's metadata plus the bytes needed to read its
// body out of the archive stream.
type cpioEntry struct {
	name string
	mode uint32
	size int64
}

// cpioReader walks an SVR4 "new ASCII" (070701/070702) CPIO stream,
// the format RPM payloads use. Callers must fully consume Body before
// calling Next again.
type cpioReader struct {
	r    *bufio.Reader
	read int64
}

func newCPIOReader(r io.Reader) *cpioReader {
	return &cpioReader{r: bufio.NewReader(r)}
}

const cpioHeaderLen = 110
const cpioTrailer = "TRAILER!!!"

// Next reads the next entry's header and returns its metadata, or
// io.EOF once the TRAILER!!! marker is reached.
func (c *cpioReader) Next() (*cpioEntry, error) {
	// A drained Body leaves the previous entry's padding unread.
	if err := c.align4(); err != nil {
		return nil, fmt.Errorf("rpm: skip cpio padding: %w", err)
	}

	var hdr [cpioHeaderLen]byte
	if _, err := io.ReadFull(c.r, hdr[:]); err != nil {
		return nil, fmt.Errorf("rpm: read cpio header: %w", err)
	}
	c.read += cpioHeaderLen

	magic := string(hdr[0:6])
	if magic != "070701" && magic != "070702" {
		return nil, fmt.Errorf("rpm: unsupported cpio magic %q", magic)
	}

	mode, err := hexField(hdr[14:22])
	if err != nil {
		return nil, fmt.Errorf("rpm: parse cpio mode: %w", err)
	}
	fileSize, err := hexField(hdr[54:62])
	if err != nil {
		return nil, fmt.Errorf("rpm: parse cpio filesize: %w", err)
	}
	nameSize, err := hexField(hdr[94:102])
	if err != nil {
		return nil, fmt.Errorf("rpm: parse cpio namesize: %w", err)
	}

	nameBuf := make([]byte, nameSize)
	if _, err := io.ReadFull(c.r, nameBuf); err != nil {
		return nil, fmt.Errorf("rpm: read cpio name: %w", err)
	}
	c.read += int64(nameSize)
	name := trimNUL(nameBuf)

	if err := c.align4(); err != nil {
		return nil, err
	}

	if name == cpioTrailer {
		return nil, io.EOF
	}

	return &cpioEntry{name: name, mode: uint32(mode), size: int64(fileSize)}, nil
}

// Body returns a reader limited to exactly e's file content, and must
// be fully drained (or discarded) before the next Next call, since the
// stream position advances as it's read.
func (c *cpioReader) Body(e *cpioEntry) io.Reader {
	return io.LimitReader(countingReader{c}, e.size)
}

// Skip discards e's body and trailing alignment padding.
func (c *cpioReader) Skip(e *cpioEntry) error {
	if _, err := io.CopyN(io.Discard, countingReader{c}, e.size); err != nil {
		return fmt.Errorf("rpm: skip cpio body: %w", err)
	}
	return c.align4()
}

type countingReader struct{ c *cpioReader }

func (cr countingReader) Read(p []byte) (int, error) {
	n, err := cr.c.r.Read(p)
	cr.c.read += int64(n)
	return n, err
}

func (c *cpioReader) align4() error {
	pad := (4 - c.read%4) % 4
	if pad == 0 {
		return nil
	}
	n, err := io.CopyN(io.Discard, c.r, pad)
	c.read += n
	return err
}

// hexField parses one of CPIO's fixed-width ASCII hex fields.
func hexField(b []byte) (uint64, error) {
	return strconv.ParseUint(string(b), 16, 64)
}

func trimNUL(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
