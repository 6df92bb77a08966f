// Full-resolution, cache-free export rendering
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gocv.io/x/gocv"

	"incremental-photo-engine/internal/adjust"
	"incremental-photo-engine/internal/imaging"
	"incremental-photo-engine/internal/params"
	"incremental-photo-engine/internal/render"
	"incremental-photo-engine/internal/stage"
)

var (
	ErrUnsupportedFormat = errors.New("export: unsupported output format")
	ErrNoDestination     = errors.New("export: destination not writable")
	ErrInsufficientSpace = errors.New("export: insufficient free space")
	ErrEncode            = errors.New("export: encoder refused the image")
)

// spaceMargin pads the free-space estimate so a borderline disk does
// not fill completely during encode.
const spaceMargin = 8 << 20

// Options selects the output encoding. Zero values mean defaults:
// JPEG quality 92, PNG compression 3.
type Options struct {
	Path           string
	JPEGQuality    int
	PNGCompression int
}

type Exporter struct {
	log *slog.Logger
}

func New(log *slog.Logger) *Exporter {
	if log == nil {
		log = slog.Default()
	}
	return &Exporter{log: log}
}

// Export renders input through the full stage order at native
// resolution and encodes the result at opts.Path. The interactive
// stage cache plays no part, so export output can never depend on
// session state. All cheap validation happens before any pixel work;
// aborting after expensive stages is what the preflight exists to
// avoid.
func (x *Exporter) Export(ctx context.Context, input, mask *imaging.Buffer, p *params.Params, opts Options) error {
	if input == nil || !input.Valid() {
		return render.ErrBadInput
	}
	if p == nil {
		return render.ErrNilParams
	}
	encodeParams, err := encodingFor(opts)
	if err != nil {
		return err
	}
	if err := checkDestination(opts.Path, input.SizeBytes()); err != nil {
		return err
	}

	start := time.Now()
	aux := adjust.Aux{}
	if mask != nil && mask.Valid() {
		m := mask.Mat()
		aux.Mask = &m
	}

	running := input.Clone()
	if running == nil {
		return render.ErrBadInput
	}
	executed := 0
	for s := stage.Geometry; s < stage.Count; s++ {
		if err := ctx.Err(); err != nil {
			running.Close()
			return err
		}
		proc := adjust.For(s)
		if !proc.Active(p) {
			continue
		}
		outMat, err := proc.Apply(running.Mat(), p, aux)
		if err != nil {
			outMat.Close()
			running.Close()
			return &render.StageError{Stage: s, Err: err}
		}
		next, err := imaging.NewBuffer(outMat)
		if err != nil {
			outMat.Close()
			running.Close()
			return &render.StageError{Stage: s, Err: err}
		}
		if s != stage.Geometry &&
			(next.Width() != running.Width() || next.Height() != running.Height()) {
			next.Close()
			running.Close()
			return &render.StageError{Stage: s, Err: render.ErrDimensionDrift}
		}
		running.Close()
		running = next
		executed++
	}
	defer running.Close()

	if !gocv.IMWriteWithParams(opts.Path, running.Mat(), encodeParams) {
		return fmt.Errorf("%w: %s", ErrEncode, opts.Path)
	}
	x.log.Info("export complete",
		"path", opts.Path,
		"width", running.Width(),
		"height", running.Height(),
		"stages_executed", executed,
		"elapsed", time.Since(start))
	return nil
}

func encodingFor(opts Options) ([]int, error) {
	ext := strings.ToLower(filepath.Ext(opts.Path))
	switch ext {
	case ".jpg", ".jpeg":
		q := opts.JPEGQuality
		if q <= 0 {
			q = 92
		}
		if q > 100 {
			q = 100
		}
		return []int{gocv.IMWriteJpegQuality, q}, nil
	case ".png":
		c := opts.PNGCompression
		if c <= 0 {
			c = 3
		}
		if c > 9 {
			c = 9
		}
		return []int{gocv.IMWritePngCompression, c}, nil
	case ".tif", ".tiff", ".bmp":
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

// checkDestination front-loads the filesystem checks: directory
// present and writable, free space covering the estimated output.
func checkDestination(path string, need int64) error {
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNoDestination, dir)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrNoDestination, dir)
	}
	free, err := preflightDir(dir)
	if err != nil {
		return err
	}
	if free >= 0 && free < need+spaceMargin {
		return fmt.Errorf("%w: need %d bytes, %d free",
			ErrInsufficientSpace, need+spaceMargin, free)
	}
	return nil
}
