package export

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"

	"incremental-photo-engine/internal/imaging"
	"incremental-photo-engine/internal/params"
	"incremental-photo-engine/internal/render"
)

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBuffer(t *testing.T, w, h int) *imaging.Buffer {
	t.Helper()
	m := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			base := x * 3
			m.SetUCharAt(y, base+0, uint8((x*11+y*3)%251))
			m.SetUCharAt(y, base+1, uint8((x*5+y*7)%251))
			m.SetUCharAt(y, base+2, uint8((x*13+y*17)%251))
		}
	}
	b, err := imaging.NewBuffer(m)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	return b
}

func TestEncodingFor(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		want    []int
		wantErr bool
	}{
		{"jpeg quality", Options{Path: "a.jpg", JPEGQuality: 85}, []int{gocv.IMWriteJpegQuality, 85}, false},
		{"jpeg default", Options{Path: "a.jpeg"}, []int{gocv.IMWriteJpegQuality, 92}, false},
		{"jpeg clamped", Options{Path: "a.jpg", JPEGQuality: 500}, []int{gocv.IMWriteJpegQuality, 100}, false},
		{"png default", Options{Path: "a.png"}, []int{gocv.IMWritePngCompression, 3}, false},
		{"png clamped", Options{Path: "a.png", PNGCompression: 50}, []int{gocv.IMWritePngCompression, 9}, false},
		{"tiff plain", Options{Path: "a.tiff"}, nil, false},
		{"bmp plain", Options{Path: "a.bmp"}, nil, false},
		{"unsupported", Options{Path: "a.webp"}, nil, true},
		{"no extension", Options{Path: "a"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := encodingFor(tt.opts)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedFormat) {
					t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("encodingFor: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("params = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("params = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestCheckDestinationMissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent", "out.png")
	err := checkDestination(path, 1000)
	if !errors.Is(err, ErrNoDestination) {
		t.Fatalf("err = %v, want ErrNoDestination", err)
	}
}

func TestExportWritesFile(t *testing.T) {
	in := testBuffer(t, 40, 30)
	defer in.Close()
	p := params.Defaults().With(func(p *params.Params) { p.Contrast = 1.2 })
	out := filepath.Join(t.TempDir(), "out.png")

	x := New(quietLog())
	if err := x.Export(context.Background(), in, nil, p, Options{Path: out}); err != nil {
		t.Fatalf("Export: %v", err)
	}

	st, err := os.Stat(out)
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}
	if st.Size() == 0 {
		t.Fatal("export wrote an empty file")
	}

	back := gocv.IMRead(out, gocv.IMReadColor)
	defer back.Close()
	if back.Empty() {
		t.Fatal("exported file does not decode")
	}
	if back.Cols() != 40 || back.Rows() != 30 {
		t.Fatalf("exported %dx%d, want native 40x30", back.Cols(), back.Rows())
	}
}

func TestExportKeepsNativeResolutionWithCrop(t *testing.T) {
	in := testBuffer(t, 40, 30)
	defer in.Close()
	p := params.Defaults().With(func(p *params.Params) {
		p.CropEnabled = true
		p.CropLeft = 0.25
	})
	out := filepath.Join(t.TempDir(), "out.png")

	x := New(quietLog())
	if err := x.Export(context.Background(), in, nil, p, Options{Path: out}); err != nil {
		t.Fatalf("Export: %v", err)
	}
	back := gocv.IMRead(out, gocv.IMReadColor)
	defer back.Close()
	if back.Cols() != 30 || back.Rows() != 30 {
		t.Fatalf("exported %dx%d, want 30x30 after a quarter crop", back.Cols(), back.Rows())
	}
}

func TestExportValidation(t *testing.T) {
	in := testBuffer(t, 16, 16)
	defer in.Close()
	x := New(quietLog())
	ctx := context.Background()
	out := filepath.Join(t.TempDir(), "out.png")

	if err := x.Export(ctx, nil, nil, params.Defaults(), Options{Path: out}); !errors.Is(err, render.ErrBadInput) {
		t.Errorf("nil input: err = %v, want ErrBadInput", err)
	}
	if err := x.Export(ctx, in, nil, nil, Options{Path: out}); !errors.Is(err, render.ErrNilParams) {
		t.Errorf("nil params: err = %v, want ErrNilParams", err)
	}
	if err := x.Export(ctx, in, nil, params.Defaults(), Options{Path: "out.webp"}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("bad format: err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestExportStageFailure(t *testing.T) {
	in := testBuffer(t, 16, 16)
	defer in.Close()
	p := params.Defaults().With(func(p *params.Params) {
		p.CropEnabled = true
		p.CropLeft = 0.6
		p.CropRight = 0.6
	})
	out := filepath.Join(t.TempDir(), "out.png")

	x := New(quietLog())
	err := x.Export(context.Background(), in, nil, p, Options{Path: out})
	var se *render.StageError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want a StageError", err)
	}
	if _, statErr := os.Stat(out); statErr == nil {
		t.Fatal("failed export left a file behind")
	}
}
