package deb

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArMember(buf *bytes.Buffer, name string, content []byte) {
	var hdr [60]byte
	for i := range hdr {
		hdr[i] = ' '
	}
	copy(hdr[0:16], []byte(name))
	copy(hdr[16:28], []byte("0"))
	copy(hdr[28:34], []byte("0"))
	copy(hdr[34:40], []byte("0"))
	copy(hdr[40:48], []byte("100644"))
	copy(hdr[48:58], []byte(fmt.Sprintf("%d", len(content))))
	hdr[58] = '`'
	hdr[59] = '\n'

	buf.Write(hdr[:])
	buf.Write(content)
	if len(content)%2 == 1 {
		buf.WriteByte('\n')
	}
}

func TestReadArRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("!<arch>\n")
	writeArMember(&buf, "debian-binary", []byte("2.0\n"))
	writeArMember(&buf, "control.tar.gz", []byte("fake-control-bytes"))

	members, err := readAr(&buf)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "debian-binary", members[0].name)
	assert.Equal(t, "control.tar.gz", members[1].name)

	body, err := io.ReadAll(members[0].body)
	require.NoError(t, err)
	assert.Equal(t, "2.0\n", string(body))
}
