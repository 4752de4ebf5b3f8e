package readers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectBySuffix(t *testing.T) {
	f, err := Detect("curl-8.4.0.x86_64.rpm", nil)
	assert.NoError(t, err)
	assert.Equal(t, FormatRPM, f)

	f, err = Detect("curl_8.4.0_amd64.deb", nil)
	assert.NoError(t, err)
	assert.Equal(t, FormatDeb, f)

	f, err = Detect("curl-8.4.0-1-x86_64.pkg.tar.zst", nil)
	assert.NoError(t, err)
	assert.Equal(t, FormatArch, f)
}

func TestDetectByMagic(t *testing.T) {
	f, err := Detect("unknown", []byte{0xED, 0xAB, 0xEE, 0xDB, 0, 0})
	assert.NoError(t, err)
	assert.Equal(t, FormatRPM, f)

	f, err = Detect("unknown", []byte("!<arch>\n"))
	assert.NoError(t, err)
	assert.Equal(t, FormatDeb, f)
}

func TestDetectUnknown(t *testing.T) {
	_, err := Detect("unknown", []byte("nonsense"))
	assert.Error(t, err)
}
