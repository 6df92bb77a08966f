// Geometry stage: rotation and crop
package adjust

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"incremental-photo-engine/internal/params"
	"incremental-photo-engine/internal/stage"
)

func init() {
	register(geometryProcessor{})
}

// geometryProcessor is the only stage allowed to change output
// dimensions; it therefore runs first, and its output size becomes the
// contract for every later stage.
type geometryProcessor struct{}

func (geometryProcessor) Stage() stage.Stage {
	return stage.Geometry
}

func (geometryProcessor) Active(p *params.Params) bool {
	return !params.IsStageDefault(stage.Geometry, p)
}

func (geometryProcessor) Apply(input gocv.Mat, p *params.Params, _ Aux) (gocv.Mat, error) {
	if input.Empty() {
		return gocv.NewMat(), errEmptyInput
	}
	out := input.Clone()
	if math.Abs(p.RotationAngle) >= params.Epsilon {
		rotated, err := rotateExpanded(out, p.RotationAngle)
		out.Close()
		if err != nil {
			return gocv.NewMat(), err
		}
		out = rotated
	}
	if p.CropEnabled {
		cropped, err := cropNormalized(out, p)
		out.Close()
		if err != nil {
			return gocv.NewMat(), err
		}
		out = cropped
	}
	return out, nil
}

// rotateExpanded rotates around the center and expands the canvas so
// no content is clipped.
func rotateExpanded(src gocv.Mat, angle float64) (gocv.Mat, error) {
	w, h := src.Cols(), src.Rows()
	rad := angle * math.Pi / 180
	cosA := math.Abs(math.Cos(rad))
	sinA := math.Abs(math.Sin(rad))
	newW := int(float64(w)*cosA + float64(h)*sinA + 0.5)
	newH := int(float64(w)*sinA + float64(h)*cosA + 0.5)

	m := gocv.GetRotationMatrix2D(image.Pt(w/2, h/2), angle, 1.0)
	defer m.Close()
	m.SetDoubleAt(0, 2, m.GetDoubleAt(0, 2)+float64(newW-w)/2)
	m.SetDoubleAt(1, 2, m.GetDoubleAt(1, 2)+float64(newH-h)/2)

	dst := gocv.NewMat()
	gocv.WarpAffineWithParams(src, &dst, m, image.Pt(newW, newH),
		gocv.InterpolationLinear, gocv.BorderConstant, color.RGBA{})
	if dst.Empty() {
		dst.Close()
		return gocv.NewMat(), fmt.Errorf("rotation by %.1f produced empty output", angle)
	}
	return dst, nil
}

// cropNormalized cuts the normalized insets off each edge. A crop that
// leaves no pixels is malformed input, not a silent no-op.
func cropNormalized(src gocv.Mat, p *params.Params) (gocv.Mat, error) {
	cols, rows := src.Cols(), src.Rows()
	for _, inset := range []float64{p.CropLeft, p.CropTop, p.CropRight, p.CropBottom} {
		if inset < 0 || inset >= 1 {
			return gocv.NewMat(), fmt.Errorf("crop inset %.2f outside [0,1)", inset)
		}
	}
	x0 := int(p.CropLeft * float64(cols))
	y0 := int(p.CropTop * float64(rows))
	x1 := cols - int(p.CropRight*float64(cols))
	y1 := rows - int(p.CropBottom*float64(rows))
	if x1-x0 < 1 || y1-y0 < 1 {
		return gocv.NewMat(), fmt.Errorf("crop %dx%d leaves no pixels", x1-x0, y1-y0)
	}
	region := src.Region(image.Rect(x0, y0, x1, y1))
	defer region.Close()
	return region.Clone(), nil
}
