package delta

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func TestGenerateApplyRoundtrip(t *testing.T) {
	old := []byte(strings.Repeat("the quick brown fox jumps over the lazy dog\n", 200))
	newContent := append(append([]byte{}, old...), []byte("one extra trailing line\n")...)

	result, err := Generate(old, newContent)
	require.NoError(t, err)
	require.NotEmpty(t, result.Delta)
	assert.Less(t, len(result.Delta), len(newContent))

	got, err := Apply(old, result.Delta, sha256Hex(newContent))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(got, newContent))
}

func TestGenerateRejectsDeltaLargerThanThreshold(t *testing.T) {
	// A tiny, unrelated new payload against an unrelated dictionary
	// compresses to roughly its own size plus zstd framing overhead,
	// which exceeds the notWorthwhileRatio threshold against itself.
	old := []byte("completely unrelated dictionary content")
	newContent := []byte{0x1, 0x7f, 0x3, 0xe2, 0x55}

	_, err := Generate(old, newContent)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotWorthwhile)
}

func TestApplyDetectsHashMismatch(t *testing.T) {
	old := []byte(strings.Repeat("abcdefgh", 50))
	newContent := append(append([]byte{}, old...), []byte("changed")...)

	result, err := Generate(old, newContent)
	require.NoError(t, err)

	_, err = Apply(old, result.Delta, strings.Repeat("0", 64))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHashMismatch)
}

func TestWorthwhile(t *testing.T) {
	assert.True(t, Worthwhile(10, 100))
	assert.True(t, Worthwhile(90, 100))
	assert.False(t, Worthwhile(95, 100))
	assert.False(t, Worthwhile(10, 0))
}
