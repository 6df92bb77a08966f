// Conversions between Mats and standard library image types
package imaging

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
	"golang.org/x/image/draw"
)

// ToImage converts b to a standard image.Image.
func ToImage(b *Buffer) (image.Image, error) {
	if b == nil || !b.Valid() {
		return nil, ErrEmptyBuffer
	}
	img, err := b.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("imaging: to image: %w", err)
	}
	return img, nil
}

// FromImage builds a buffer from a standard image.
func FromImage(img image.Image) (*Buffer, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("imaging: from image: %w", err)
	}
	b, err := NewBuffer(mat)
	if err != nil {
		mat.Close()
		return nil, err
	}
	return b, nil
}

// Thumbnail renders b as an RGBA image with the longer edge capped at
// maxEdge, for report artifacts and contact sheets.
func Thumbnail(b *Buffer, maxEdge int) (*image.RGBA, error) {
	if maxEdge <= 0 {
		return nil, fmt.Errorf("imaging: thumbnail edge must be positive, got %d", maxEdge)
	}
	src, err := ToImage(b)
	if err != nil {
		return nil, err
	}
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	long := w
	if h > long {
		long = h
	}
	if long > maxEdge {
		scale := float64(maxEdge) / float64(long)
		w = int(float64(w)*scale + 0.5)
		h = int(float64(h)*scale + 0.5)
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)
	return dst, nil
}
