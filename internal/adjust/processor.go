// Stage processors: one pure kernel composition per pipeline stage
package adjust

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"

	"incremental-photo-engine/internal/params"
	"incremental-photo-engine/internal/stage"
)

var (
	errEmptyInput = errors.New("adjust: empty input buffer")
)

// Aux carries optional per-render inputs that are image data rather
// than parameters. Mask, when non-nil, is an externally produced
// subject mask (single channel, high where the subject is) that
// confines the effects that honor it.
type Aux struct {
	Mask *gocv.Mat
}

// Processor applies one stage's adjustments. Implementations are pure:
// Apply never mutates its input, returns a new Mat the caller owns,
// and signals failure explicitly rather than passing the input
// through.
type Processor interface {
	Stage() stage.Stage

	// Active reports whether any field owned by this stage differs
	// from its neutral default. When false the engine passes the
	// running image through without invoking Apply.
	Active(p *params.Params) bool

	Apply(input gocv.Mat, p *params.Params, aux Aux) (gocv.Mat, error)
}

// registry is indexed by stage ordinal so dispatch is a fixed array
// lookup and a missing processor is detectable at startup.
var registry [stage.Count]Processor

func register(p Processor) {
	s := p.Stage()
	if !s.Valid() {
		panic(fmt.Sprintf("adjust: processor registered for invalid stage %d", int(s)))
	}
	if registry[s] != nil {
		panic("adjust: duplicate processor for stage " + s.String())
	}
	registry[s] = p
}

// For returns the processor for s.
func For(s stage.Stage) Processor {
	if !s.Valid() {
		return nil
	}
	return registry[s]
}

// Complete verifies that every stage has a registered processor.
// Engine construction calls this so a missing slot fails fast instead
// of surfacing mid-render.
func Complete() error {
	for _, s := range stage.Sequence() {
		if registry[s] == nil {
			return fmt.Errorf("adjust: no processor registered for stage %s", s)
		}
	}
	return nil
}
