package rpm

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCPIOEntry(buf *bytes.Buffer, name string, mode uint32, body []byte) {
	nameBytes := append([]byte(name), 0)
	hdr := make([]byte, cpioHeaderLen)
	copy(hdr[0:6], "070701")
	copy(hdr[14:22], []byte("00000000"))
	hex := func(v uint32) string {
		s := "00000000" + itoaHex(v)
		return s[len(s)-8:]
	}
	copy(hdr[14:22], hex(mode))
	copy(hdr[54:62], hex(uint32(len(body))))
	copy(hdr[94:102], hex(uint32(len(nameBytes))))
	buf.Write(hdr)
	buf.Write(nameBytes)
	padName := (4 - (cpioHeaderLen+len(nameBytes))%4) % 4
	buf.Write(make([]byte, padName))
	buf.Write(body)
	padBody := (4 - len(body)%4) % 4
	buf.Write(make([]byte, padBody))
}

func itoaHex(v uint32) string {
	const hexdigits = "0123456789abcdef"
	if v == 0 {
		return "0"
	}
	var b []byte
	for v > 0 {
		b = append([]byte{hexdigits[v%16]}, b...)
		v /= 16
	}
	return string(b)
}

func writeTrailer(buf *bytes.Buffer) {
	writeCPIOEntry(buf, cpioTrailer, 0, nil)
}

func TestCPIOReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	writeCPIOEntry(&buf, "./usr/bin/tool", 0100755, []byte("binary-content"))
	writeTrailer(&buf)

	cr := newCPIOReader(&buf)
	entry, err := cr.Next()
	require.NoError(t, err)
	assert.Equal(t, "./usr/bin/tool", entry.name)
	assert.EqualValues(t, len("binary-content"), entry.size)

	body, err := io.ReadAll(cr.Body(entry))
	require.NoError(t, err)
	assert.Equal(t, "binary-content", string(body))

	_, err = cr.Next()
	assert.ErrorIs(t, err, io.EOF)
}
