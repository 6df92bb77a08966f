// Self-guided edge-preserving filter used by the detail kernels
package adjust

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// guidedSmooth runs the self-guided filter: box means feed per-window
// linear coefficients, so structure with variance above eps survives
// while flat regions average out.
func guidedSmooth(src gocv.Mat, radius int, eps float64) (gocv.Mat, error) {
	if src.Empty() {
		return gocv.NewMat(), errEmptyInput
	}
	if radius < 1 {
		radius = 1
	}
	if eps <= 0 {
		eps = 0.001
	}
	k := image.Pt(2*radius+1, 2*radius+1)

	srcFloat := gocv.NewMat()
	defer srcFloat.Close()
	src.ConvertTo(&srcFloat, gocv.MatTypeCV32F)
	srcFloat.DivideFloat(255)

	meanI := gocv.NewMat()
	defer meanI.Close()
	if err := gocv.Blur(srcFloat, &meanI, k); err != nil {
		return gocv.NewMat(), fmt.Errorf("mean blur: %w", err)
	}

	correlation := gocv.NewMat()
	defer correlation.Close()
	if err := gocv.Multiply(srcFloat, srcFloat, &correlation); err != nil {
		return gocv.NewMat(), fmt.Errorf("correlation: %w", err)
	}
	meanCorr := gocv.NewMat()
	defer meanCorr.Close()
	if err := gocv.Blur(correlation, &meanCorr, k); err != nil {
		return gocv.NewMat(), fmt.Errorf("correlation blur: %w", err)
	}

	meanSq := gocv.NewMat()
	defer meanSq.Close()
	if err := gocv.Multiply(meanI, meanI, &meanSq); err != nil {
		return gocv.NewMat(), fmt.Errorf("mean square: %w", err)
	}
	varI := gocv.NewMat()
	defer varI.Close()
	if err := gocv.Subtract(meanCorr, meanSq, &varI); err != nil {
		return gocv.NewMat(), fmt.Errorf("variance: %w", err)
	}

	denom := gocv.NewMat()
	defer denom.Close()
	varI.CopyTo(&denom)
	denom.AddFloat(float32(eps))
	a := gocv.NewMat()
	defer a.Close()
	if err := gocv.Divide(varI, denom, &a); err != nil {
		return gocv.NewMat(), fmt.Errorf("coefficient a: %w", err)
	}

	ones := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(1, 0, 0, 0),
		a.Rows(), a.Cols(), gocv.MatTypeCV32F)
	defer ones.Close()
	oneMinusA := gocv.NewMat()
	defer oneMinusA.Close()
	if err := gocv.Subtract(ones, a, &oneMinusA); err != nil {
		return gocv.NewMat(), fmt.Errorf("coefficient complement: %w", err)
	}
	b := gocv.NewMat()
	defer b.Close()
	if err := gocv.Multiply(meanI, oneMinusA, &b); err != nil {
		return gocv.NewMat(), fmt.Errorf("coefficient b: %w", err)
	}

	meanA := gocv.NewMat()
	defer meanA.Close()
	if err := gocv.Blur(a, &meanA, k); err != nil {
		return gocv.NewMat(), fmt.Errorf("coefficient a blur: %w", err)
	}
	meanB := gocv.NewMat()
	defer meanB.Close()
	if err := gocv.Blur(b, &meanB, k); err != nil {
		return gocv.NewMat(), fmt.Errorf("coefficient b blur: %w", err)
	}

	scaled := gocv.NewMat()
	defer scaled.Close()
	if err := gocv.Multiply(meanA, srcFloat, &scaled); err != nil {
		return gocv.NewMat(), fmt.Errorf("final multiply: %w", err)
	}
	resultFloat := gocv.NewMat()
	defer resultFloat.Close()
	if err := gocv.Add(scaled, meanB, &resultFloat); err != nil {
		return gocv.NewMat(), fmt.Errorf("final add: %w", err)
	}
	resultFloat.MultiplyFloat(255)
	out := gocv.NewMat()
	resultFloat.ConvertTo(&out, gocv.MatTypeCV8U)
	return out, nil
}
