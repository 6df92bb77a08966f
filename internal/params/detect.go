// Change detection between parameter snapshots
package params

import (
	"math"
	"reflect"

	"incremental-photo-engine/internal/stage"
)

// ChangeSet describes the outcome of comparing two snapshots: which
// fields moved, which stages own them, and the suffix of the pipeline
// that must rerun. Derived on every edit, never persisted.
type ChangeSet struct {
	Changed    []string
	Stages     []stage.Stage
	Start      stage.Stage
	HasStart   bool
	Recompute  []stage.Stage
	HasChanges bool
}

// Affects reports whether s is at or after the earliest changed stage.
// Every such stage must rerun, because each stage consumes its
// predecessor's exact output.
func (c ChangeSet) Affects(s stage.Stage) bool {
	return c.HasStart && s >= c.Start
}

// Detect compares previous and current field by field. A nil previous
// means no baseline exists and every stage must run, starting at the
// first.
func Detect(previous, current *Params) ChangeSet {
	if previous == nil {
		return fullChangeSet()
	}
	pv := reflect.ValueOf(previous).Elem()
	cv := reflect.ValueOf(current).Elem()
	var cs ChangeSet
	var affected [stage.Count]bool
	for _, f := range fields {
		if fieldEqual(pv.Field(f.index), cv.Field(f.index)) {
			continue
		}
		cs.Changed = append(cs.Changed, f.name)
		affected[f.owner] = true
	}
	if len(cs.Changed) == 0 {
		return cs
	}
	cs.HasChanges = true
	for _, s := range stage.Sequence() {
		if affected[s] {
			cs.Stages = append(cs.Stages, s)
			if !cs.HasStart {
				cs.Start = s
				cs.HasStart = true
			}
		}
	}
	for s := cs.Start; s < stage.Count; s++ {
		cs.Recompute = append(cs.Recompute, s)
	}
	return cs
}

func fullChangeSet() ChangeSet {
	all := stage.Sequence()
	return ChangeSet{
		Stages:     all,
		Start:      stage.Geometry,
		HasStart:   true,
		Recompute:  all,
		HasChanges: true,
	}
}

// fieldEqual compares one field pairwise. Floats and float arrays use
// the shared Epsilon; bools compare exactly; curve lists compare by
// length, then element-wise with Epsilon on each coordinate.
func fieldEqual(a, b reflect.Value) bool {
	switch a.Kind() {
	case reflect.Float64:
		return floatEqual(a.Float(), b.Float())
	case reflect.Bool:
		return a.Bool() == b.Bool()
	case reflect.Array:
		for i := 0; i < a.Len(); i++ {
			if !floatEqual(a.Index(i).Float(), b.Index(i).Float()) {
				return false
			}
		}
		return true
	case reflect.Slice:
		return curvesEqual(a.Interface().([]CurvePoint), b.Interface().([]CurvePoint))
	}
	panic("params: unsupported field kind " + a.Kind().String())
}

func floatEqual(a, b float64) bool {
	return math.Abs(a-b) < Epsilon
}

func curvesEqual(a, b []CurvePoint) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !floatEqual(a[i].X, b[i].X) || !floatEqual(a[i].Y, b[i].Y) {
			return false
		}
	}
	return true
}

// defaults is the shared neutral snapshot consulted by default checks.
var defaults = Defaults()

// IsStageDefault reports whether every field owned by s equals its
// neutral value within Epsilon. Stage processors use this as their skip
// test, so a stage the detector flags as changed can never
// simultaneously claim to be at defaults.
func IsStageDefault(s stage.Stage, p *Params) bool {
	dv := reflect.ValueOf(defaults).Elem()
	pv := reflect.ValueOf(p).Elem()
	for _, f := range fields {
		if f.owner != s {
			continue
		}
		if !fieldEqual(dv.Field(f.index), pv.Field(f.index)) {
			return false
		}
	}
	return true
}
