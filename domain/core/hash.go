package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Equals checks if two hashes are equal
func (h Hash) Equals(other Hash) bool {
	return h == other
}

// Domain-specific hash types
type (
	// MatrixFingerprint identifies the exact contents of a response matrix.
	MatrixFingerprint Hash
	// ModelFingerprint identifies a fitted parameter set bit-for-bit.
	ModelFingerprint Hash
)

// String conversions
func (h MatrixFingerprint) String() string { return Hash(h).String() }
func (h ModelFingerprint) String() string  { return Hash(h).String() }

// fingerprinter accumulates values into a sha256 stream. Floats are hashed
// through their IEEE-754 bit patterns so equal runs produce equal prints.
type fingerprinter struct {
	buf []byte
}

func (f *fingerprinter) writeString(s string) {
	f.buf = append(f.buf, s...)
	f.buf = append(f.buf, 0)
}

func (f *fingerprinter) writeFloat(x float64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(x))
	f.buf = append(f.buf, b[:]...)
}

func (f *fingerprinter) writeFloats(xs []float64) {
	for _, x := range xs {
		f.writeFloat(x)
	}
}

func (f *fingerprinter) sum() Hash {
	return NewHash(f.buf)
}

// ComputeMatrixFingerprint hashes matrix contents together with its feature
// ordering, so the same numbers under reordered columns print differently.
func ComputeMatrixFingerprint(data [][]float64, features []FeatureKey) MatrixFingerprint {
	fp := &fingerprinter{}
	for _, key := range features {
		fp.writeString(key.String())
	}
	for _, row := range data {
		fp.writeFloats(row)
	}
	return MatrixFingerprint(fp.sum())
}

// ComputeModelFingerprint hashes fitted parameter vectors keyed by batch.
// Batch keys are sorted so map iteration order never leaks into the print.
func ComputeModelFingerprint(gamma, delta2 map[BatchKey][]float64, grandMean, pooledVar []float64) ModelFingerprint {
	keys := make([]string, 0, len(gamma))
	for k := range gamma {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	fp := &fingerprinter{}
	fp.writeString(strings.Join(keys, "\x00"))
	for _, k := range keys {
		fp.writeFloats(gamma[BatchKey(k)])
		fp.writeFloats(delta2[BatchKey(k)])
	}
	fp.writeFloats(grandMean)
	fp.writeFloats(pooledVar)
	return ModelFingerprint(fp.sum())
}
