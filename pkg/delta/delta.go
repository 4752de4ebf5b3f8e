package delta

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/cuemby/truss/pkg/metrics"
)

// notWorthwhileRatio is the threshold above which a delta isn't worth
// storing: if the delta is more than 90% the size of the full content,
// the caller should fall back to shipping the full package.
const notWorthwhileRatio = 0.9

// ErrNotWorthwhile is returned by Generate when the produced delta
// doesn't meaningfully shrink the payload relative to the full content.
var ErrNotWorthwhile = errors.New("delta: not worthwhile")

// ErrHashMismatch is returned by Apply when the reconstructed content
// doesn't match the expected SHA-256.
var ErrHashMismatch = errors.New("delta: hash mismatch")

// Result is the outcome of a successful Generate call.
type Result struct {
	Delta            []byte
	CompressionRatio float64
}

// Generate produces a zstd delta encoding newContent against
// oldContent as a dictionary. If the delta's size relative to
// newContent exceeds notWorthwhileRatio, it returns ErrNotWorthwhile
// and the caller should store no delta for this transition.
func Generate(oldContent, newContent []byte) (*Result, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderDictRaw(0, oldContent), zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("delta: new encoder: %w", err)
	}
	defer enc.Close()

	compressed := enc.EncodeAll(newContent, make([]byte, 0, len(newContent)))

	ratio := 1.0
	if len(newContent) > 0 {
		ratio = float64(len(compressed)) / float64(len(newContent))
	}
	metrics.DeltaCompressionRatio.Observe(ratio)

	if ratio > notWorthwhileRatio {
		return nil, ErrNotWorthwhile
	}

	bytesSaved := int64(len(newContent) - len(compressed))
	if bytesSaved > 0 {
		metrics.DeltaBytesSavedTotal.Add(float64(bytesSaved))
	}

	return &Result{Delta: compressed, CompressionRatio: ratio}, nil
}

// Apply reconstructs content from delta using oldContent as a
// dictionary, and verifies the result against expectedSHA256.
func Apply(oldContent, delta []byte, expectedSHA256 string) ([]byte, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderDictRaw(0, oldContent))
	if err != nil {
		metrics.DeltaApplicationsTotal.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("delta: new decoder: %w", err)
	}
	defer dec.Close()

	content, err := dec.DecodeAll(delta, make([]byte, 0, len(oldContent)))
	if err != nil {
		metrics.DeltaApplicationsTotal.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("delta: decode: %w", err)
	}

	sum := sha256.Sum256(content)
	got := hex.EncodeToString(sum[:])
	if got != expectedSHA256 {
		metrics.DeltaApplicationsTotal.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("%w: want %s got %s", ErrHashMismatch, expectedSHA256, got)
	}

	metrics.DeltaApplicationsTotal.WithLabelValues("success").Inc()
	return content, nil
}

// Worthwhile reports whether a delta of deltaSize is worth storing
// against a full payload of fullSize, applying the same threshold
// Generate uses.
func Worthwhile(deltaSize, fullSize int64) bool {
	if fullSize == 0 {
		return false
	}
	return float64(deltaSize)/float64(fullSize) <= notWorthwhileRatio
}
