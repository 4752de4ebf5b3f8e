package arch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/truss/pkg/types"
)

const samplePKGINFO = `pkgname = curl
pkgver = 8.4.0-1
pkgdesc = An URL retrieval utility
arch = x86_64
depend = glibc
depend = openssl>=3.0
optdepend = ca-certificates: for SSL CA certificates
license = MIT
`

func TestParsePKGINFO(t *testing.T) {
	info, err := parsePKGINFO(strings.NewReader(samplePKGINFO))
	require.NoError(t, err)

	assert.Equal(t, "curl", info.single["pkgname"])
	assert.Equal(t, "8.4.0-1", info.single["pkgver"])
	assert.Equal(t, []string{"glibc", "openssl>=3.0"}, info.multi["depend"])
	assert.Equal(t, []string{"MIT"}, info.multi["license"])
}

func TestDependenciesFromInfo(t *testing.T) {
	info, err := parsePKGINFO(strings.NewReader(samplePKGINFO))
	require.NoError(t, err)

	deps := dependenciesFromInfo(info)
	require.Len(t, deps, 3)
	assert.Equal(t, "glibc", deps[0].Name)
	assert.Equal(t, types.DependencyRuntime, deps[0].Kind)
	assert.Equal(t, "openssl", deps[1].Name)
	assert.Equal(t, ">= 3.0", deps[1].Constraint)
	assert.Equal(t, "ca-certificates", deps[2].Name)
	assert.Equal(t, types.DependencyOptional, deps[2].Kind)
}
