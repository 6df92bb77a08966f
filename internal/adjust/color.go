// Color stage: white balance, HSL bands, vibrance, three-way grading
package adjust

import (
	"fmt"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"gocv.io/x/gocv"

	"incremental-photo-engine/internal/params"
	"incremental-photo-engine/internal/stage"
)

func init() {
	register(colorProcessor{})
}

type colorProcessor struct{}

func (colorProcessor) Stage() stage.Stage {
	return stage.Color
}

func (colorProcessor) Active(p *params.Params) bool {
	return !params.IsStageDefault(stage.Color, p)
}

func (colorProcessor) Apply(input gocv.Mat, p *params.Params, _ Aux) (gocv.Mat, error) {
	if input.Empty() {
		return gocv.NewMat(), errEmptyInput
	}
	out := input.Clone()
	if wbActive(p) {
		next, err := applyWhiteBalance(out, p)
		out.Close()
		if err != nil {
			return gocv.NewMat(), fmt.Errorf("white balance: %w", err)
		}
		out = next
	}
	if hslActive(p) {
		next, err := applyHSL(out, p)
		out.Close()
		if err != nil {
			return gocv.NewMat(), fmt.Errorf("hsl: %w", err)
		}
		out = next
	}
	if gradeActive(p) {
		next, err := applyGrading(out, p)
		out.Close()
		if err != nil {
			return gocv.NewMat(), fmt.Errorf("grading: %w", err)
		}
		out = next
	}
	return out, nil
}

func wbActive(p *params.Params) bool {
	return math.Abs(p.Temperature) >= params.Epsilon || math.Abs(p.Tint) >= params.Epsilon
}

func hslActive(p *params.Params) bool {
	if math.Abs(p.Saturation) >= params.Epsilon || math.Abs(p.Vibrance) >= params.Epsilon {
		return true
	}
	return anyAbove(p.HueShift[:]) || anyAbove(p.SatShift[:]) || anyAbove(p.LumShift[:])
}

func gradeActive(p *params.Params) bool {
	if p.GradeBlend < params.Epsilon {
		return false
	}
	return p.GradeShadowSat >= params.Epsilon ||
		p.GradeMidSat >= params.Epsilon ||
		p.GradeHighSat >= params.Epsilon
}

func anyAbove(vals []float64) bool {
	for _, v := range vals {
		if math.Abs(v) >= params.Epsilon {
			return true
		}
	}
	return false
}

// applyWhiteBalance shifts channel gains: warm temperatures push red
// over blue, positive tint pushes magenta over green.
func applyWhiteBalance(src gocv.Mat, p *params.Params) (gocv.Mat, error) {
	t := clampFloat(p.Temperature/100, -1, 1)
	tn := clampFloat(p.Tint/100, -1, 1)
	rGain := 1 + 0.28*t + 0.08*tn
	gGain := 1 - 0.16*tn
	bGain := 1 - 0.28*t + 0.08*tn
	var rT, gT, bT [256]uint8
	for i := 0; i < 256; i++ {
		rT[i] = clampByte(float64(i) * rGain)
		gT[i] = clampByte(float64(i) * gGain)
		bT[i] = clampByte(float64(i) * bGain)
	}
	return applyLUT3(src, &bT, &gT, &rT)
}

// applyHSL works on the HLS planes: hue rotation and per-band
// saturation/luminance gains are hue-indexed lookups, vibrance is a
// direct curve on the saturation plane.
func applyHSL(src gocv.Mat, p *params.Params) (gocv.Mat, error) {
	hls := gocv.NewMat()
	if err := gocv.CvtColor(src, &hls, gocv.ColorBGRToHLS); err != nil {
		hls.Close()
		return gocv.NewMat(), fmt.Errorf("to hls: %w", err)
	}
	defer hls.Close()
	ch := gocv.Split(hls)
	defer closeMats(ch)

	if anyAbove(p.HueShift[:]) {
		// OpenCV 8-bit hue runs 0..179 in half degrees.
		var hT [256]uint8
		for i := 0; i < 256; i++ {
			if i >= 180 {
				hT[i] = uint8(i)
				continue
			}
			deg := float64(i) * 2
			nh := math.Mod(deg+bandValue(p.HueShift, deg)+360, 360)
			hT[i] = uint8(int(nh/2+0.5) % 180)
		}
		shifted, err := applyLUT1(ch[0], &hT)
		if err != nil {
			return gocv.NewMat(), fmt.Errorf("hue shift: %w", err)
		}
		ch[0].Close()
		ch[0] = shifted
	}

	if math.Abs(p.Vibrance) >= params.Epsilon {
		// Vibrance boosts muted colors harder than saturated ones.
		vib := p.Vibrance / 100
		var vT [256]uint8
		for i := 0; i < 256; i++ {
			falloff := 1 - float64(i)/255
			vT[i] = clampByte(float64(i) * (1 + vib*falloff*falloff*1.5))
		}
		boosted, err := applyLUT1(ch[2], &vT)
		if err != nil {
			return gocv.NewMat(), fmt.Errorf("vibrance: %w", err)
		}
		ch[2].Close()
		ch[2] = boosted
	}

	if math.Abs(p.Saturation) >= params.Epsilon || anyAbove(p.SatShift[:]) {
		gains := satGainTable(p.Saturation, p.SatShift)
		scaled, err := scaleByHue(ch[2], ch[0], &gains)
		if err != nil {
			return gocv.NewMat(), fmt.Errorf("saturation: %w", err)
		}
		ch[2].Close()
		ch[2] = scaled
	}

	if anyAbove(p.LumShift[:]) {
		gains := lumGainTable(p.LumShift)
		scaled, err := scaleByHue(ch[1], ch[0], &gains)
		if err != nil {
			return gocv.NewMat(), fmt.Errorf("luminance: %w", err)
		}
		ch[1].Close()
		ch[1] = scaled
	}

	merged := gocv.NewMat()
	defer merged.Close()
	gocv.Merge(ch, &merged)
	out := gocv.NewMat()
	if err := gocv.CvtColor(merged, &out, gocv.ColorHLSToBGR); err != nil {
		out.Close()
		return gocv.NewMat(), fmt.Errorf("from hls: %w", err)
	}
	return out, nil
}

// scaleByHue multiplies plane by a per-pixel gain selected by hue.
// Gains are byte-encoded as gain*64, so 64 is unity and 255 caps at 4x.
func scaleByHue(plane, hue gocv.Mat, gains *[256]uint8) (gocv.Mat, error) {
	g8, err := applyLUT1(hue, gains)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer g8.Close()
	gF := matF32(g8)
	defer gF.Close()
	gF.DivideFloat(64)
	pF := matF32(plane)
	defer pF.Close()
	scaled := gocv.NewMat()
	defer scaled.Close()
	if err := gocv.Multiply(pF, gF, &scaled); err != nil {
		return gocv.NewMat(), fmt.Errorf("hue scale: %w", err)
	}
	return mat8U(scaled), nil
}

// bandValue interpolates the eight 45-degree hue bands (red, orange,
// yellow, green, aqua, blue, purple, magenta) with a linear crossfade
// so band boundaries do not poster.
func bandValue(shifts [8]float64, deg float64) float64 {
	pos := math.Mod(deg, 360) / 45
	i := int(pos) % 8
	frac := pos - math.Floor(pos)
	next := (i + 1) % 8
	return shifts[i]*(1-frac) + shifts[next]*frac
}

func satGainTable(global float64, shifts [8]float64) [256]uint8 {
	var t [256]uint8
	for i := 0; i < 256; i++ {
		deg := float64(i%180) * 2
		gain := (1 + global/100) * (1 + bandValue(shifts, deg)/100)
		t[i] = clampByte(clampFloat(gain, 0, 4) * 64)
	}
	return t
}

func lumGainTable(shifts [8]float64) [256]uint8 {
	var t [256]uint8
	for i := 0; i < 256; i++ {
		deg := float64(i%180) * 2
		gain := 1 + bandValue(shifts, deg)/100
		t[i] = clampByte(clampFloat(gain, 0, 4) * 64)
	}
	return t
}

const (
	rangeShadows = iota
	rangeMids
	rangeHighs
)

// applyGrading tints shadows, midtones, and highlights separately
// through luminance-derived masks. Balance slides the split point
// between shadow and highlight territory.
func applyGrading(src gocv.Mat, p *params.Params) (gocv.Mat, error) {
	gray := gocv.NewMat()
	if err := gocv.CvtColor(src, &gray, gocv.ColorBGRToGray); err != nil {
		gray.Close()
		return gocv.NewMat(), fmt.Errorf("grade luma: %w", err)
	}
	defer gray.Close()

	split := 128 + clampFloat(p.GradeBalance/100, -1, 1)*64
	blend := clampFloat(p.GradeBlend/100, 0, 1) * 0.5

	out := src.Clone()
	zones := []struct {
		hue, sat float64
		kind     int
	}{
		{p.GradeShadowHue, p.GradeShadowSat, rangeShadows},
		{p.GradeMidHue, p.GradeMidSat, rangeMids},
		{p.GradeHighHue, p.GradeHighSat, rangeHighs},
	}
	for _, z := range zones {
		if z.sat < params.Epsilon {
			continue
		}
		weights := rangeTable(split, z.kind)
		next, err := tintRange(out, gray, &weights, z.hue, z.sat/100, blend)
		out.Close()
		if err != nil {
			return gocv.NewMat(), err
		}
		out = next
	}
	return out, nil
}

func rangeTable(split float64, kind int) [256]uint8 {
	var t [256]uint8
	for i := 0; i < 256; i++ {
		v := float64(i)
		sh := 1 - smoothstep(split-48, split+16, v)
		hi := smoothstep(split-16, split+48, v)
		var w float64
		switch kind {
		case rangeShadows:
			w = sh
		case rangeHighs:
			w = hi
		default:
			w = clampFloat(1-sh-hi, 0, 1)
		}
		t[i] = clampByte(w * 255)
	}
	return t
}

// tintRange pushes the masked zone toward a tint color derived from
// the hue dial.
func tintRange(src, gray gocv.Mat, weights *[256]uint8, hueDeg, sat, blend float64) (gocv.Mat, error) {
	mask, err := applyLUT1(gray, weights)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer mask.Close()
	w, err := weight01(mask, src.Cols(), src.Rows(), sat*blend)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer w.Close()
	tint := colorful.Hsl(math.Mod(hueDeg+360, 360), 0.9, 0.5)
	r, g, b := tint.RGB255()
	tintMat := gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(float64(b), float64(g), float64(r), 0),
		src.Rows(), src.Cols(), gocv.MatTypeCV8UC3)
	defer tintMat.Close()
	return blendWith(src, tintMat, w)
}
