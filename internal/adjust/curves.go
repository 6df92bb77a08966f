// Curves stage: per-channel control-point curves
package adjust

import (
	"fmt"

	"gocv.io/x/gocv"

	"incremental-photo-engine/internal/params"
	"incremental-photo-engine/internal/stage"
)

func init() {
	register(curvesProcessor{})
}

type curvesProcessor struct{}

func (curvesProcessor) Stage() stage.Stage {
	return stage.Curves
}

func (curvesProcessor) Active(p *params.Params) bool {
	return !params.IsStageDefault(stage.Curves, p)
}

func (curvesProcessor) Apply(input gocv.Mat, p *params.Params, _ Aux) (gocv.Mat, error) {
	if input.Empty() {
		return gocv.NewMat(), errEmptyInput
	}
	luma, err := buildCurveTable(p.CurveLuma)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("luma curve: %w", err)
	}
	red, err := buildCurveTable(p.CurveRed)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("red curve: %w", err)
	}
	green, err := buildCurveTable(p.CurveGreen)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("green curve: %w", err)
	}
	blue, err := buildCurveTable(p.CurveBlue)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("blue curve: %w", err)
	}

	// The luma curve composes into each channel table, after the
	// channel's own curve.
	b := composeTables(&luma, &blue)
	g := composeTables(&luma, &green)
	r := composeTables(&luma, &red)
	return applyLUT3(input, &b, &g, &r)
}
