// Pixel buffer ownership and integrity checking
package imaging

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// MaxDimension bounds either edge of any buffer entering the pipeline.
const MaxDimension = 16384

var (
	ErrEmptyBuffer   = errors.New("imaging: empty buffer")
	ErrBadDimensions = errors.New("imaging: invalid dimensions")
	ErrBadChannels   = errors.New("imaging: unsupported channel count")
)

// Buffer owns a gocv.Mat holding one pipeline artifact. Buffers are
// single-owner: whoever holds the pointer closes it, and shared use
// goes through Clone. The closed flag keeps integrity checkable after
// the underlying Mat has been released, which is exactly the state a
// stale cache entry can end up in.
type Buffer struct {
	mat    gocv.Mat
	closed bool
}

// NewBuffer validates mat and takes ownership of it. On error the
// caller keeps ownership.
func NewBuffer(mat gocv.Mat) (*Buffer, error) {
	if mat.Empty() {
		return nil, ErrEmptyBuffer
	}
	cols, rows := mat.Cols(), mat.Rows()
	if cols <= 0 || rows <= 0 || cols > MaxDimension || rows > MaxDimension {
		return nil, fmt.Errorf("%w: %dx%d", ErrBadDimensions, cols, rows)
	}
	switch mat.Channels() {
	case 1, 3, 4:
	default:
		return nil, fmt.Errorf("%w: %d", ErrBadChannels, mat.Channels())
	}
	return &Buffer{mat: mat}, nil
}

// Mat borrows the underlying Mat for reading. The buffer keeps
// ownership; callers must not Close the returned value.
func (b *Buffer) Mat() gocv.Mat {
	return b.mat
}

// Clone returns an independent deep copy, or nil if b is not intact.
func (b *Buffer) Clone() *Buffer {
	if !b.Valid() {
		return nil
	}
	return &Buffer{mat: b.mat.Clone()}
}

// Detach hands the underlying Mat to the caller and marks the buffer
// closed without releasing the pixel data.
func (b *Buffer) Detach() gocv.Mat {
	b.closed = true
	return b.mat
}

// Close releases the pixel data. Safe to call more than once.
func (b *Buffer) Close() {
	if b == nil || b.closed {
		return
	}
	b.mat.Close()
	b.closed = true
}

// Valid is the structural integrity check consulted before any buffer
// is trusted: not closed, non-empty, positive dimensions, supported
// channel count.
func (b *Buffer) Valid() bool {
	if b == nil || b.closed || b.mat.Empty() {
		return false
	}
	if b.mat.Cols() <= 0 || b.mat.Rows() <= 0 {
		return false
	}
	switch b.mat.Channels() {
	case 1, 3, 4:
		return true
	}
	return false
}

func (b *Buffer) Width() int {
	return b.mat.Cols()
}

func (b *Buffer) Height() int {
	return b.mat.Rows()
}

func (b *Buffer) Channels() int {
	return b.mat.Channels()
}

// SizeBytes reports the pixel payload size. Pipeline buffers are 8-bit
// per channel.
func (b *Buffer) SizeBytes() int64 {
	if !b.Valid() {
		return 0
	}
	return int64(b.mat.Rows()) * int64(b.mat.Cols()) * int64(b.mat.Channels())
}
