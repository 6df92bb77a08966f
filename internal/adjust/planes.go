// Float-plane arithmetic shared by the kernel compositions
package adjust

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// matF32 converts src to CV32F at its native 0..255 scale.
func matF32(src gocv.Mat) gocv.Mat {
	f := gocv.NewMat()
	src.ConvertTo(&f, gocv.MatTypeCV32F)
	return f
}

// mat8U converts a float mat back to 8U with saturation.
func mat8U(src gocv.Mat) gocv.Mat {
	out := gocv.NewMat()
	src.ConvertTo(&out, gocv.MatTypeCV8U)
	return out
}

func closeMats(ms []gocv.Mat) {
	for i := range ms {
		ms[i].Close()
	}
}

// weight01 converts an 8-bit single-channel mask into a 0..1 float
// weight plane scaled by amount. External masks arrive at source
// resolution while the pipeline may run at preview scale, so the mask
// is resized to the target dimensions when they differ.
func weight01(mask gocv.Mat, cols, rows int, amount float64) (gocv.Mat, error) {
	if mask.Empty() {
		return gocv.NewMat(), errors.New("empty mask")
	}
	m := mask
	if mask.Cols() != cols || mask.Rows() != rows {
		resized := gocv.NewMat()
		if err := gocv.Resize(mask, &resized, image.Pt(cols, rows), 0, 0, gocv.InterpolationArea); err != nil {
			resized.Close()
			return gocv.NewMat(), fmt.Errorf("resize mask: %w", err)
		}
		defer resized.Close()
		m = resized
	}
	w := gocv.NewMat()
	m.ConvertTo(&w, gocv.MatTypeCV32F)
	w.DivideFloat(255)
	if amount != 1 {
		w.MultiplyFloat(float32(amount))
	}
	return w, nil
}

// blendWith composites processed over base through a 0..1
// single-channel float weight: out = base + (processed-base)*weight.
func blendWith(base, processed, weight gocv.Mat) (gocv.Mat, error) {
	w := weight
	if ch := base.Channels(); ch > 1 {
		planes := make([]gocv.Mat, ch)
		for i := range planes {
			planes[i] = weight
		}
		w3 := gocv.NewMat()
		gocv.Merge(planes, &w3)
		defer w3.Close()
		w = w3
	}
	bF := matF32(base)
	defer bF.Close()
	pF := matF32(processed)
	defer pF.Close()
	diff := gocv.NewMat()
	defer diff.Close()
	if err := gocv.Subtract(pF, bF, &diff); err != nil {
		return gocv.NewMat(), fmt.Errorf("blend subtract: %w", err)
	}
	term := gocv.NewMat()
	defer term.Close()
	if err := gocv.Multiply(diff, w, &term); err != nil {
		return gocv.NewMat(), fmt.Errorf("blend multiply: %w", err)
	}
	sum := gocv.NewMat()
	defer sum.Close()
	if err := gocv.Add(bF, term, &sum); err != nil {
		return gocv.NewMat(), fmt.Errorf("blend add: %w", err)
	}
	return mat8U(sum), nil
}

// blendUniform mixes processed into base by a constant weight in 0..1.
func blendUniform(base, processed gocv.Mat, t float64) (gocv.Mat, error) {
	out := gocv.NewMat()
	gocv.AddWeighted(base, 1-t, processed, t, 0, &out)
	if out.Empty() {
		out.Close()
		return gocv.NewMat(), errors.New("blend produced empty output")
	}
	return out, nil
}

// unsharp sharpens by subtracting a Gaussian blur:
// out = src*(1+amount) - blur*amount.
func unsharp(src gocv.Mat, sigma, amount float64) (gocv.Mat, error) {
	blur := gocv.NewMat()
	if err := gocv.GaussianBlur(src, &blur, image.Pt(0, 0), sigma, sigma, gocv.BorderDefault); err != nil {
		blur.Close()
		return gocv.NewMat(), fmt.Errorf("gaussian blur: %w", err)
	}
	defer blur.Close()
	out := gocv.NewMat()
	gocv.AddWeighted(src, 1+amount, blur, -amount, 0, &out)
	if out.Empty() {
		out.Close()
		return gocv.NewMat(), errors.New("unsharp produced empty output")
	}
	return out, nil
}
