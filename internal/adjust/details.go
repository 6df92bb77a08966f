// Details stage: noise reduction and output sharpening
package adjust

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"incremental-photo-engine/internal/params"
	"incremental-photo-engine/internal/stage"
)

func init() {
	register(detailsProcessor{})
}

type detailsProcessor struct{}

func (detailsProcessor) Stage() stage.Stage {
	return stage.Details
}

func (detailsProcessor) Active(p *params.Params) bool {
	return !params.IsStageDefault(stage.Details, p)
}

// Noise reduction runs before sharpening so the unsharp pass does not
// amplify the grain it was meant to clean up.
func (detailsProcessor) Apply(input gocv.Mat, p *params.Params, _ Aux) (gocv.Mat, error) {
	if input.Empty() {
		return gocv.NewMat(), errEmptyInput
	}
	out := input.Clone()
	if p.LuminanceNR >= params.Epsilon || p.ColorNR >= params.Epsilon {
		next, err := applyNoiseReduction(out, p)
		out.Close()
		if err != nil {
			return gocv.NewMat(), fmt.Errorf("noise reduction: %w", err)
		}
		out = next
	}
	if p.Sharpening >= params.Epsilon {
		next, err := applySharpen(out, p)
		out.Close()
		if err != nil {
			return gocv.NewMat(), fmt.Errorf("sharpen: %w", err)
		}
		out = next
	}
	return out, nil
}

// applyNoiseReduction splits into Lab so luminance and chroma can be
// treated separately: bilateral on L keeps edges, gaussian on a/b
// kills color speckle without hurting acutance.
func applyNoiseReduction(src gocv.Mat, p *params.Params) (gocv.Mat, error) {
	lab := gocv.NewMat()
	if err := gocv.CvtColor(src, &lab, gocv.ColorBGRToLab); err != nil {
		lab.Close()
		return gocv.NewMat(), fmt.Errorf("to lab: %w", err)
	}
	defer lab.Close()
	ch := gocv.Split(lab)
	defer closeMats(ch)

	if p.LuminanceNR >= params.Epsilon {
		smoothed, err := smoothLuminance(ch[0], p.LuminanceNR, p.LuminanceNRDetail)
		if err != nil {
			return gocv.NewMat(), err
		}
		ch[0].Close()
		ch[0] = smoothed
	}
	if p.ColorNR >= params.Epsilon {
		for i := 1; i <= 2; i++ {
			smoothed, err := smoothChroma(ch[i], p.ColorNR, p.ColorNRDetail)
			if err != nil {
				return gocv.NewMat(), err
			}
			ch[i].Close()
			ch[i] = smoothed
		}
	}

	merged := gocv.NewMat()
	defer merged.Close()
	gocv.Merge(ch, &merged)
	out := gocv.NewMat()
	if err := gocv.CvtColor(merged, &out, gocv.ColorLabToBGR); err != nil {
		out.Close()
		return gocv.NewMat(), fmt.Errorf("from lab: %w", err)
	}
	return out, nil
}

// smoothLuminance runs an edge-keeping bilateral pass on L, then the
// detail dial blends original texture back over the filtered plane.
func smoothLuminance(l gocv.Mat, strength, detail float64) (gocv.Mat, error) {
	s := clampFloat(strength/100, 0, 1)
	filtered := gocv.NewMat()
	if err := gocv.BilateralFilter(l, &filtered, 7, 10+s*40, 3+s*5); err != nil {
		filtered.Close()
		return gocv.NewMat(), fmt.Errorf("bilateral: %w", err)
	}
	defer filtered.Close()
	d := clampFloat(detail/100, 0, 1) * 0.5
	return blendUniform(filtered, l, d)
}

func smoothChroma(plane gocv.Mat, strength, detail float64) (gocv.Mat, error) {
	s := clampFloat(strength/100, 0, 1)
	sigma := 1 + s*7
	blurred := gocv.NewMat()
	if err := gocv.GaussianBlur(plane, &blurred, image.Pt(0, 0), sigma, sigma, gocv.BorderDefault); err != nil {
		blurred.Close()
		return gocv.NewMat(), fmt.Errorf("chroma blur: %w", err)
	}
	defer blurred.Close()
	d := clampFloat(detail/100, 0, 1) * 0.3
	return blendUniform(blurred, plane, d)
}

// applySharpen is an unsharp mask; the masking dial gates it to
// Laplacian-strong edges so flat areas stay quiet.
func applySharpen(src gocv.Mat, p *params.Params) (gocv.Mat, error) {
	amount := clampFloat(p.Sharpening/100, 0, 1.5) * 1.2
	radius := clampFloat(p.SharpenRadius, 0.5, 3)
	sharp, err := unsharp(src, radius, amount)
	if err != nil {
		return gocv.NewMat(), err
	}
	if p.SharpenMasking < params.Epsilon {
		return sharp, nil
	}
	defer sharp.Close()
	mask, err := edgeMask(src, p.SharpenMasking)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer mask.Close()
	w, err := weight01(mask, src.Cols(), src.Rows(), 1)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer w.Close()
	return blendWith(src, sharp, w)
}

// edgeMask turns Laplacian magnitude into a soft edge-selection
// weight. Higher masking narrows the band that still gets sharpened.
func edgeMask(src gocv.Mat, masking float64) (gocv.Mat, error) {
	gray := gocv.NewMat()
	if err := gocv.CvtColor(src, &gray, gocv.ColorBGRToGray); err != nil {
		gray.Close()
		return gocv.NewMat(), fmt.Errorf("edge luma: %w", err)
	}
	defer gray.Close()
	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Laplacian(gray, &edges, gocv.MatTypeCV16S, 3, 1, 0, gocv.BorderDefault)
	mag := gocv.NewMat()
	defer mag.Close()
	gocv.ConvertScaleAbs(edges, &mag, 2, 0)
	soft := gocv.NewMat()
	if err := gocv.GaussianBlur(mag, &soft, image.Pt(0, 0), 1.5, 1.5, gocv.BorderDefault); err != nil {
		soft.Close()
		return gocv.NewMat(), fmt.Errorf("edge soften: %w", err)
	}
	defer soft.Close()
	knee := clampFloat(masking, 0, 100) * 1.6
	var t [256]uint8
	for i := 0; i < 256; i++ {
		t[i] = clampByte(smoothstep(knee*0.4, knee, float64(i)) * 255)
	}
	return applyLUT1(soft, &t)
}
