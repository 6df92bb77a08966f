package imaging

import (
	"errors"
	"testing"

	"gocv.io/x/gocv"
)

func gradientMat(t *testing.T, w, h int) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			base := x * 3
			m.SetUCharAt(y, base+0, uint8((x*7+y*3)%251))
			m.SetUCharAt(y, base+1, uint8((x*5+y*11)%251))
			m.SetUCharAt(y, base+2, uint8((x*13+y*17)%251))
		}
	}
	return m
}

func newTestBuffer(t *testing.T, w, h int) *Buffer {
	t.Helper()
	b, err := NewBuffer(gradientMat(t, w, h))
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	return b
}

func TestNewBufferRejectsEmpty(t *testing.T) {
	m := gocv.NewMat()
	defer m.Close()
	if _, err := NewBuffer(m); !errors.Is(err, ErrEmptyBuffer) {
		t.Fatalf("err = %v, want ErrEmptyBuffer", err)
	}
}

func TestNewBufferRejectsChannels(t *testing.T) {
	m := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC2)
	defer m.Close()
	if _, err := NewBuffer(m); !errors.Is(err, ErrBadChannels) {
		t.Fatalf("err = %v, want ErrBadChannels", err)
	}
}

func TestCloneIndependence(t *testing.T) {
	b := newTestBuffer(t, 8, 8)
	defer b.Close()
	c := b.Clone()
	defer c.Close()

	m := c.Mat()
	m.SetUCharAt(0, 0, 200)
	if b.Mat().GetUCharAt(0, 0) == 200 {
		t.Fatal("clone shares pixel storage with the original")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	b := newTestBuffer(t, 4, 4)
	b.Close()
	b.Close()
	if b.Valid() {
		t.Fatal("closed buffer still reads as valid")
	}
	if b.Clone() != nil {
		t.Fatal("closed buffer produced a clone")
	}
	if b.SizeBytes() != 0 {
		t.Fatal("closed buffer reports a size")
	}
}

func TestNilBufferIsSafe(t *testing.T) {
	var b *Buffer
	b.Close()
	if b.Valid() {
		t.Fatal("nil buffer reads as valid")
	}
}

func TestSizeBytes(t *testing.T) {
	b := newTestBuffer(t, 10, 6)
	defer b.Close()
	if got := b.SizeBytes(); got != 10*6*3 {
		t.Fatalf("SizeBytes = %d, want %d", got, 10*6*3)
	}
}

func TestDetachTransfersOwnership(t *testing.T) {
	b := newTestBuffer(t, 4, 4)
	m := b.Detach()
	defer m.Close()
	if b.Valid() {
		t.Fatal("detached buffer still reads as valid")
	}
	if m.Empty() {
		t.Fatal("detached mat lost its pixels")
	}
}
