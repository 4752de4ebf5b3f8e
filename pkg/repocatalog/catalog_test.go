package repocatalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatArch, DetectFormat("core", "https://mirror.example/arch/core/os/x86_64"))
	assert.Equal(t, FormatDebian, DetectFormat("bookworm", "https://deb.debian.org/debian/dists/bookworm"))
	assert.Equal(t, FormatFedora, DetectFormat("fedora-39", "https://dl.fedoraproject.org/pub/fedora/linux/releases/39"))
	assert.Equal(t, FormatJSON, DetectFormat("internal", "https://pkgs.internal.example/index.json"))
}

func TestParseJSON(t *testing.T) {
	doc := []byte(`{
		"packages": [
			{
				"name": "curl", "version": "8.4.0", "arch": "x86_64",
				"description": "URL tool", "checksum": "deadbeef", "size": 512,
				"download_url": "https://example.test/curl-8.4.0.tar",
				"dependencies": [{"name": "libcurl", "kind": "runtime", "constraint": ">= 8.0.0"}]
			}
		]
	}`)

	pkgs, err := ParseJSON(doc)
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	assert.Equal(t, "curl", pkgs[0].Name)
	require.Len(t, pkgs[0].Dependencies, 1)
	assert.Equal(t, "libcurl", pkgs[0].Dependencies[0].Name)
}

func TestParseArchStanza(t *testing.T) {
	fields, multi, err := parseArchMultiStanza(strings.NewReader(
		"%NAME%\ncurl\n\n%DEPENDS%\nlibcurl\nopenssl>=3.0\n\n"))
	require.NoError(t, err)
	assert.Equal(t, "curl", fields["NAME"])
	assert.Equal(t, []string{"libcurl", "openssl>=3.0"}, multi["DEPENDS"])
}
