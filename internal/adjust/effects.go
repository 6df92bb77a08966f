// Effects stage: texture, clarity, dehaze, vignette, film grain
package adjust

import (
	"fmt"
	"image"
	"math"
	"math/rand"

	"gocv.io/x/gocv"

	"incremental-photo-engine/internal/params"
	"incremental-photo-engine/internal/stage"
)

func init() {
	register(effectsProcessor{})
}

type effectsProcessor struct{}

func (effectsProcessor) Stage() stage.Stage {
	return stage.Effects
}

func (effectsProcessor) Active(p *params.Params) bool {
	return !params.IsStageDefault(stage.Effects, p)
}

func (effectsProcessor) Apply(input gocv.Mat, p *params.Params, aux Aux) (gocv.Mat, error) {
	if input.Empty() {
		return gocv.NewMat(), errEmptyInput
	}
	out := input.Clone()
	if math.Abs(p.Texture) >= params.Epsilon {
		next, err := unsharp(out, 2.0, p.Texture/100*0.9)
		out.Close()
		if err != nil {
			return gocv.NewMat(), fmt.Errorf("texture: %w", err)
		}
		out = next
	}
	if math.Abs(p.Clarity) >= params.Epsilon {
		punched, err := applyClarity(out, p.Clarity)
		if err != nil {
			out.Close()
			return gocv.NewMat(), fmt.Errorf("clarity: %w", err)
		}
		next, err := confined(out, punched, aux.Mask)
		out.Close()
		if err != nil {
			return gocv.NewMat(), fmt.Errorf("clarity: %w", err)
		}
		out = next
	}
	if math.Abs(p.Dehaze) >= params.Epsilon {
		cleared, err := applyDehaze(out, p.Dehaze)
		if err != nil {
			out.Close()
			return gocv.NewMat(), fmt.Errorf("dehaze: %w", err)
		}
		next, err := confined(out, cleared, aux.Mask)
		out.Close()
		if err != nil {
			return gocv.NewMat(), fmt.Errorf("dehaze: %w", err)
		}
		out = next
	}
	if math.Abs(p.VignetteAmount) >= params.Epsilon {
		next, err := applyVignette(out, p)
		out.Close()
		if err != nil {
			return gocv.NewMat(), fmt.Errorf("vignette: %w", err)
		}
		out = next
	}
	if p.GrainAmount >= params.Epsilon {
		next, err := applyGrain(out, p)
		out.Close()
		if err != nil {
			return gocv.NewMat(), fmt.Errorf("grain: %w", err)
		}
		out = next
	}
	return out, nil
}

// applyClarity runs a wide unsharp pass restricted to midtones so
// shadow and highlight roll-off survives the punch.
func applyClarity(src gocv.Mat, clarity float64) (gocv.Mat, error) {
	punched, err := unsharp(src, 16, clarity/100*0.7)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer punched.Close()
	gray := gocv.NewMat()
	if err := gocv.CvtColor(src, &gray, gocv.ColorBGRToGray); err != nil {
		gray.Close()
		return gocv.NewMat(), fmt.Errorf("clarity luma: %w", err)
	}
	defer gray.Close()
	var mid [256]uint8
	for i := 0; i < 256; i++ {
		v := float64(i)
		mid[i] = clampByte(smoothstep(0, 90, v) * (1 - smoothstep(165, 255, v)) * 255)
	}
	mask, err := applyLUT1(gray, &mid)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer mask.Close()
	w, err := weight01(mask, src.Cols(), src.Rows(), 1)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer w.Close()
	return blendWith(src, punched, w)
}

// confined limits processed to the subject mask when one is present.
// Takes ownership of processed.
func confined(base, processed gocv.Mat, mask *gocv.Mat) (gocv.Mat, error) {
	if mask == nil || mask.Empty() {
		return processed, nil
	}
	defer processed.Close()
	w, err := weight01(*mask, base.Cols(), base.Rows(), 1)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer w.Close()
	return blendWith(base, processed, w)
}

// applyDehaze estimates haze density from a guided-filtered dark
// channel and rescales radiance against the atmospheric light.
// Negative values blend flat haze back in instead.
func applyDehaze(src gocv.Mat, dehaze float64) (gocv.Mat, error) {
	s := clampFloat(dehaze/100, -1, 1)
	rough, airlight, err := darkChannel(src)
	if err != nil {
		return gocv.NewMat(), err
	}
	dark, err := guidedSmooth(rough, 8, 0.01)
	rough.Close()
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("transmission smooth: %w", err)
	}
	defer dark.Close()

	if s < 0 {
		flat := gocv.NewMatWithSizeFromScalar(
			gocv.NewScalar(airlight, airlight, airlight, 0),
			src.Rows(), src.Cols(), gocv.MatTypeCV8UC3)
		defer flat.Close()
		return blendUniform(src, flat, -s*0.4)
	}

	// transmission = 1 - s*0.85*dark/airlight, floored so the
	// division stays stable in dense haze.
	trans := matF32(dark)
	defer trans.Close()
	trans.DivideFloat(float32(math.Max(airlight, 1)))
	trans.MultiplyFloat(float32(-s * 0.85))
	trans.AddFloat(1)
	floor := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0.2, 0, 0, 0),
		src.Rows(), src.Cols(), gocv.MatTypeCV32F)
	defer floor.Close()
	floored := gocv.NewMat()
	defer floored.Close()
	gocv.Max(trans, floor, &floored)
	t3 := gocv.NewMat()
	defer t3.Close()
	gocv.Merge([]gocv.Mat{floored, floored, floored}, &t3)

	iF := matF32(src)
	defer iF.Close()
	air := gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(airlight, airlight, airlight, 0),
		src.Rows(), src.Cols(), gocv.MatTypeCV32FC3)
	defer air.Close()
	diff := gocv.NewMat()
	defer diff.Close()
	if err := gocv.Subtract(iF, air, &diff); err != nil {
		return gocv.NewMat(), fmt.Errorf("radiance subtract: %w", err)
	}
	quot := gocv.NewMat()
	defer quot.Close()
	if err := gocv.Divide(diff, t3, &quot); err != nil {
		return gocv.NewMat(), fmt.Errorf("transmission divide: %w", err)
	}
	res := gocv.NewMat()
	defer res.Close()
	if err := gocv.Add(quot, air, &res); err != nil {
		return gocv.NewMat(), fmt.Errorf("radiance add: %w", err)
	}
	return mat8U(res), nil
}

func darkChannel(src gocv.Mat) (gocv.Mat, float64, error) {
	ch := gocv.Split(src)
	defer closeMats(ch)
	m1 := gocv.NewMat()
	defer m1.Close()
	gocv.Min(ch[0], ch[1], &m1)
	m2 := gocv.NewMat()
	defer m2.Close()
	gocv.Min(m1, ch[2], &m2)
	dark := gocv.NewMat()
	if err := gocv.Blur(m2, &dark, image.Pt(15, 15)); err != nil {
		dark.Close()
		return gocv.NewMat(), 0, fmt.Errorf("dark channel blur: %w", err)
	}
	_, maxVal, _, _ := gocv.MinMaxLoc(dark)
	return dark, float64(maxVal), nil
}

// applyVignette multiplies a radial gain surface over the frame.
// Midpoint positions the falloff start, feather widens it, roundness
// morphs the ellipse toward a circle or a boxier super-ellipse.
func applyVignette(src gocv.Mat, p *params.Params) (gocv.Mat, error) {
	rows, cols := src.Rows(), src.Cols()
	amount := clampFloat(p.VignetteAmount/100, -1, 1)
	mid := clampFloat(p.VignetteMidpoint/100, 0, 1)
	feather := clampFloat(p.VignetteFeather/100, 0.01, 1)
	round := clampFloat(p.VignetteRoundness/100, -1, 1)

	exp := 2.0
	if round < 0 {
		exp = 2 - 2*round
	}
	rx, ry := float64(cols)/2, float64(rows)/2
	if round > 0 {
		short := math.Min(rx, ry)
		rx += (short - rx) * round
		ry += (short - ry) * round
	}
	corner := math.Pow(
		math.Pow(float64(cols)/2/rx, exp)+math.Pow(float64(rows)/2/ry, exp),
		1/exp)
	lo := clampFloat(mid-feather*0.5, 0, 1)
	hi := math.Max(mid+feather*0.5, lo+0.01)

	cx, cy := float64(cols-1)/2, float64(rows-1)/2
	colD := make([]float64, cols)
	for x := range colD {
		colD[x] = math.Pow(math.Abs(float64(x)-cx)/rx, exp)
	}
	gain := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV32F)
	defer gain.Close()
	for y := 0; y < rows; y++ {
		dy := math.Pow(math.Abs(float64(y)-cy)/ry, exp)
		for x := 0; x < cols; x++ {
			d := math.Pow(colD[x]+dy, 1/exp) / corner
			gain.SetFloatAt(y, x, float32(1+amount*smoothstep(lo, hi, d)))
		}
	}

	g3 := gocv.NewMat()
	defer g3.Close()
	gocv.Merge([]gocv.Mat{gain, gain, gain}, &g3)
	sF := matF32(src)
	defer sF.Close()
	out := gocv.NewMat()
	defer out.Close()
	if err := gocv.Multiply(sF, g3, &out); err != nil {
		return gocv.NewMat(), fmt.Errorf("gain multiply: %w", err)
	}
	return mat8U(out), nil
}

// applyGrain adds monochrome film grain from a dimension-seeded
// generator, so a given frame size and grain size always reproduce
// the same field.
func applyGrain(src gocv.Mat, p *params.Params) (gocv.Mat, error) {
	rows, cols := src.Rows(), src.Cols()
	strength := clampFloat(p.GrainAmount/100, 0, 1) * 28
	cell := 1 + int(p.GrainSize/25)
	gw, gh := (cols+cell-1)/cell, (rows+cell-1)/cell
	seed := int64(cols)<<40 | int64(rows)<<20 | int64(math.Round(p.GrainSize*10))
	rng := rand.New(rand.NewSource(seed))

	field := gocv.NewMatWithSize(gh, gw, gocv.MatTypeCV32F)
	defer field.Close()
	for y := 0; y < gh; y++ {
		for x := 0; x < gw; x++ {
			field.SetFloatAt(y, x, (rng.Float32()*2-1)*float32(strength))
		}
	}
	noise := field
	if cell > 1 {
		up := gocv.NewMat()
		if err := gocv.Resize(field, &up, image.Pt(cols, rows), 0, 0, gocv.InterpolationLinear); err != nil {
			up.Close()
			return gocv.NewMat(), fmt.Errorf("grain resize: %w", err)
		}
		defer up.Close()
		noise = up
	}

	n3 := gocv.NewMat()
	defer n3.Close()
	gocv.Merge([]gocv.Mat{noise, noise, noise}, &n3)
	sF := matF32(src)
	defer sF.Close()
	sum := gocv.NewMat()
	defer sum.Close()
	if err := gocv.Add(sF, n3, &sum); err != nil {
		return gocv.NewMat(), fmt.Errorf("grain add: %w", err)
	}
	return mat8U(sum), nil
}
