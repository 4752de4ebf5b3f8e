package deb

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// arMember is one file stored in the outer ar(1) archive: its name and
// a reader bounded to exactly its size.
type arMember struct {
	name string
	body io.Reader
}

// readAr walks a GNU/Unix ar archive (the "!<arch>\n" magic, 60-byte
// fixed headers, content padded to 2-byte alignment) and returns every
// member in file order.
func readAr(r io.Reader) ([]arMember, error) {
	br := bufio.NewReader(r)
	var magic [8]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, fmt.Errorf("deb: read ar magic: %w", err)
	}
	if string(magic[:]) != "!<arch>\n" {
		return nil, fmt.Errorf("deb: not an ar archive")
	}

	var members []arMember
	for {
		var hdr [60]byte
		_, err := io.ReadFull(br, hdr[:])
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("deb: read ar header: %w", err)
		}

		name := strings.TrimRight(string(hdr[0:16]), " ")
		name = strings.TrimSuffix(name, "/")
		sizeStr := strings.TrimSpace(string(hdr[48:58]))
		size, err := strconv.ParseInt(sizeStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("deb: parse ar member size for %s: %w", name, err)
		}

		body := make([]byte, size)
		if _, err := io.ReadFull(br, body); err != nil {
			return nil, fmt.Errorf("deb: read ar member %s: %w", name, err)
		}
		members = append(members, arMember{name: name, body: bytes.NewReader(body)})

		if size%2 == 1 {
			if _, err := br.Discard(1); err != nil && err != io.EOF {
				return nil, fmt.Errorf("deb: discard ar padding: %w", err)
			}
		}
	}
	return members, nil
}
