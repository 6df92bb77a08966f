// Image file loading and saving on OpenCV codecs
package io

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"

	"incremental-photo-engine/internal/imaging"
)

// supported lists the extensions the OpenCV build is expected to
// decode and encode on every platform we ship.
var supported = []string{".jpg", ".jpeg", ".png", ".tiff", ".tif", ".bmp"}

// Info describes an image file without keeping its pixels.
type Info struct {
	Width     int
	Height    int
	Channels  int
	SizeBytes int64
}

// ImageLoader handles image file operations.
type ImageLoader struct {
	logger *slog.Logger
}

func NewImageLoader(logger *slog.Logger) *ImageLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageLoader{logger: logger}
}

// LoadImage reads a color image into a pipeline buffer.
func (il *ImageLoader) LoadImage(path string) (*imaging.Buffer, error) {
	il.logger.Debug("loading image", "path", path)

	if !SupportedFormat(path) {
		return nil, fmt.Errorf("unsupported image format: %s", path)
	}
	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		return nil, fmt.Errorf("failed to load image: %s", path)
	}
	buf, err := imaging.NewBuffer(mat)
	if err != nil {
		mat.Close()
		return nil, err
	}

	il.logger.Info("image loaded",
		"path", path,
		"width", buf.Width(),
		"height", buf.Height(),
		"channels", buf.Channels())
	return buf, nil
}

// LoadMask reads a grayscale subject mask. Callers align it to the
// source image before handing it to the renderer.
func (il *ImageLoader) LoadMask(path string) (*imaging.Buffer, error) {
	il.logger.Debug("loading mask", "path", path)

	if !SupportedFormat(path) {
		return nil, fmt.Errorf("unsupported mask format: %s", path)
	}
	mat := gocv.IMRead(path, gocv.IMReadGrayScale)
	if mat.Empty() {
		return nil, fmt.Errorf("failed to load mask: %s", path)
	}
	buf, err := imaging.NewBuffer(mat)
	if err != nil {
		mat.Close()
		return nil, err
	}

	il.logger.Info("mask loaded",
		"path", path,
		"width", buf.Width(),
		"height", buf.Height())
	return buf, nil
}

// SaveImage writes a buffer with OpenCV's default encoder settings.
// Exports with quality options go through internal/export instead.
func (il *ImageLoader) SaveImage(buf *imaging.Buffer, path string) error {
	il.logger.Debug("saving image", "path", path)

	if buf == nil || !buf.Valid() {
		return fmt.Errorf("cannot save empty image")
	}
	if !SupportedFormat(path) {
		return fmt.Errorf("unsupported image format: %s", path)
	}
	if !gocv.IMWrite(path, buf.Mat()) {
		return fmt.Errorf("failed to save image: %s", path)
	}

	il.logger.Info("image saved",
		"path", path,
		"width", buf.Width(),
		"height", buf.Height())
	return nil
}

// ValidateImageFile decodes just enough to prove the file is a usable image.
func (il *ImageLoader) ValidateImageFile(path string) error {
	if !SupportedFormat(path) {
		return fmt.Errorf("unsupported image format")
	}

	mat := gocv.IMRead(path, gocv.IMReadGrayScale)
	defer mat.Close()

	if mat.Empty() {
		return fmt.Errorf("invalid or corrupted image file")
	}
	if mat.Cols() <= 0 || mat.Rows() <= 0 {
		return fmt.Errorf("invalid image dimensions")
	}
	return nil
}

// Probe reports dimensions, channel count and on-disk size.
func (il *ImageLoader) Probe(path string) (Info, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Info{}, err
	}

	mat := gocv.IMRead(path, gocv.IMReadColor)
	defer mat.Close()
	if mat.Empty() {
		return Info{}, fmt.Errorf("invalid or corrupted image file: %s", path)
	}

	return Info{
		Width:     mat.Cols(),
		Height:    mat.Rows(),
		Channels:  mat.Channels(),
		SizeBytes: st.Size(),
	}, nil
}

func SupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, f := range supported {
		if ext == f {
			return true
		}
	}
	return false
}

func SupportedFormats() []string {
	return append([]string(nil), supported...)
}
