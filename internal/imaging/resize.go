// Preview-tier downscaling
package imaging

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// PreviewScale returns a copy downscaled so the longer edge is at most
// maxEdge, preserving aspect ratio. Buffers already within the bound
// are cloned unchanged. Area interpolation, which is the stable choice
// for shrinking photographic content.
func PreviewScale(b *Buffer, maxEdge int) (*Buffer, error) {
	if b == nil || !b.Valid() {
		return nil, ErrEmptyBuffer
	}
	if maxEdge <= 0 {
		return nil, fmt.Errorf("imaging: preview edge must be positive, got %d", maxEdge)
	}
	w, h := b.Width(), b.Height()
	long := w
	if h > long {
		long = h
	}
	if long <= maxEdge {
		return b.Clone(), nil
	}
	scale := float64(maxEdge) / float64(long)
	nw := int(float64(w)*scale + 0.5)
	nh := int(float64(h)*scale + 0.5)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	dst := gocv.NewMat()
	if err := gocv.Resize(b.mat, &dst, image.Pt(nw, nh), 0, 0, gocv.InterpolationArea); err != nil {
		dst.Close()
		return nil, fmt.Errorf("imaging: preview resize: %w", err)
	}
	return NewBuffer(dst)
}
