// Cheap content fingerprints for cache keying
package imaging

import (
	"encoding/binary"
	"hash/fnv"

	"gocv.io/x/gocv"
)

// fingerprintGrid is the sample-grid edge; 4 probes 16 pixels
// regardless of resolution.
const fingerprintGrid = 4

// Fingerprint digests dimensions, pixel format, and a fixed grid of
// sampled pixels. Cost is constant in resolution. The fingerprint is
// probabilistic: collisions are possible and are caught downstream by
// cache validity checking. Width and height participate in the digest,
// which keeps preview-resolution artifacts and full-resolution
// artifacts in disjoint key spaces.
func Fingerprint(b *Buffer) uint64 {
	if b == nil || !b.Valid() {
		return 0
	}
	return FingerprintMat(b.mat)
}

// FingerprintMat is Fingerprint over a borrowed Mat.
func FingerprintMat(m gocv.Mat) uint64 {
	if m.Empty() {
		return 0
	}
	h := fnv.New64a()
	var word [4]byte
	binary.LittleEndian.PutUint32(word[:], uint32(m.Cols()))
	h.Write(word[:])
	binary.LittleEndian.PutUint32(word[:], uint32(m.Rows()))
	h.Write(word[:])
	binary.LittleEndian.PutUint32(word[:], uint32(m.Type()))
	h.Write(word[:])
	rows, cols := m.Rows(), m.Cols()
	for gy := 0; gy < fingerprintGrid; gy++ {
		y := rows * (2*gy + 1) / (2 * fingerprintGrid)
		for gx := 0; gx < fingerprintGrid; gx++ {
			x := cols * (2*gx + 1) / (2 * fingerprintGrid)
			h.Write(m.GetVecbAt(y, x))
		}
	}
	return h.Sum64()
}

// Combine folds several fingerprints into one. Used to mix an optional
// mask fingerprint into the engine input hash, so a mask change
// invalidates like an image swap.
func Combine(parts ...uint64) uint64 {
	h := fnv.New64a()
	var word [8]byte
	for _, p := range parts {
		binary.LittleEndian.PutUint64(word[:], p)
		h.Write(word[:])
	}
	return h.Sum64()
}
