// Fixed ordering and static attributes of the adjustment pipeline stages
package stage

import "fmt"

// Stage identifies one step of the fixed adjustment pipeline. The zero
// value is Geometry, the first stage in execution order. Stages are not
// user-extensible; the set and its order are fixed for the life of the
// program.
type Stage int

const (
	Geometry Stage = iota
	ToneBase
	Curves
	Color
	Effects
	Details

	// Count is the number of pipeline stages.
	Count
)

type info struct {
	name      string
	cacheable bool
	cost      int
}

// Only the convolution-heavy tail of the pipeline is worth caching; the
// earlier stages are lookup-table work that reruns faster than a cache
// round trip.
var table = [Count]info{
	Geometry: {name: "geometry", cacheable: false, cost: 1},
	ToneBase: {name: "tone_base", cacheable: false, cost: 2},
	Curves:   {name: "curves", cacheable: false, cost: 1},
	Color:    {name: "color", cacheable: false, cost: 3},
	Effects:  {name: "effects", cacheable: true, cost: 8},
	Details:  {name: "details", cacheable: true, cost: 10},
}

// Valid reports whether s is a defined stage.
func (s Stage) Valid() bool {
	return s >= Geometry && s < Count
}

func (s Stage) String() string {
	if !s.Valid() {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return table[s].name
}

// Cacheable reports whether outputs of this stage may be stored in the
// stage cache.
func (s Stage) Cacheable() bool {
	return s.Valid() && table[s].cacheable
}

// Cost returns the estimated relative execution cost in arbitrary time
// units, used for plan estimation only.
func (s Stage) Cost() int {
	if !s.Valid() {
		return 0
	}
	return table[s].cost
}

// Sequence returns all stages in execution order.
func Sequence() []Stage {
	seq := make([]Stage, Count)
	for i := range seq {
		seq[i] = Stage(i)
	}
	return seq
}
