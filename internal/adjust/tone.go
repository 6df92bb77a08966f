// Tone stage: exposure, contrast, and range recovery as one table
package adjust

import (
	"math"

	"gocv.io/x/gocv"

	"incremental-photo-engine/internal/params"
	"incremental-photo-engine/internal/stage"
)

func init() {
	register(toneProcessor{})
}

type toneProcessor struct{}

func (toneProcessor) Stage() stage.Stage {
	return stage.ToneBase
}

func (toneProcessor) Active(p *params.Params) bool {
	return !params.IsStageDefault(stage.ToneBase, p)
}

func (toneProcessor) Apply(input gocv.Mat, p *params.Params, _ Aux) (gocv.Mat, error) {
	if input.Empty() {
		return gocv.NewMat(), errEmptyInput
	}
	table := toneTable(p)
	return applyLUT1(input, &table)
}

// toneTable folds all six tone controls into a single 256-entry curve:
// exposure as a linear gain, contrast as a pivot around mid-gray,
// highlights and shadows as smooth shoulders, whites and blacks as
// endpoint pulls. Every control at neutral yields the identity table.
func toneTable(p *params.Params) [256]uint8 {
	gain := math.Pow(2, p.Exposure)
	var t [256]uint8
	for i := 0; i < 256; i++ {
		v := float64(i) * gain
		v = (v-128)*p.Contrast + 128
		n := clampFloat(v/255, 0, 1)
		v += p.Highlights / 100 * 80 * smoothstep(0.5, 1.0, n)
		v += p.Shadows / 100 * 80 * (1 - smoothstep(0.0, 0.5, n))
		v += p.Whites / 100 * 40 * n
		v += p.Blacks / 100 * 40 * (1 - n)
		t[i] = clampByte(v)
	}
	return t
}
