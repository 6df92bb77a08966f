// Static ownership map from parameter fields to pipeline stages
package params

import (
	"fmt"
	"reflect"

	"incremental-photo-engine/internal/stage"
)

// stageOf assigns every Params field to exactly one owning stage. The
// change detector and the per-stage hasher both derive their field
// lists from this map; nothing else may hard-code a field-to-stage
// pairing.
var stageOf = map[string]stage.Stage{
	"RotationAngle": stage.Geometry,
	"CropLeft":      stage.Geometry,
	"CropTop":       stage.Geometry,
	"CropRight":     stage.Geometry,
	"CropBottom":    stage.Geometry,
	"CropEnabled":   stage.Geometry,

	"Exposure":   stage.ToneBase,
	"Contrast":   stage.ToneBase,
	"Highlights": stage.ToneBase,
	"Shadows":    stage.ToneBase,
	"Whites":     stage.ToneBase,
	"Blacks":     stage.ToneBase,

	"CurveLuma":  stage.Curves,
	"CurveRed":   stage.Curves,
	"CurveGreen": stage.Curves,
	"CurveBlue":  stage.Curves,

	"Temperature":    stage.Color,
	"Tint":           stage.Color,
	"Saturation":     stage.Color,
	"Vibrance":       stage.Color,
	"HueShift":       stage.Color,
	"SatShift":       stage.Color,
	"LumShift":       stage.Color,
	"GradeShadowHue": stage.Color,
	"GradeShadowSat": stage.Color,
	"GradeMidHue":    stage.Color,
	"GradeMidSat":    stage.Color,
	"GradeHighHue":   stage.Color,
	"GradeHighSat":   stage.Color,
	"GradeBalance":   stage.Color,
	"GradeBlend":     stage.Color,

	"Clarity":           stage.Effects,
	"Texture":           stage.Effects,
	"Dehaze":            stage.Effects,
	"VignetteAmount":    stage.Effects,
	"VignetteMidpoint":  stage.Effects,
	"VignetteFeather":   stage.Effects,
	"VignetteRoundness": stage.Effects,
	"GrainAmount":       stage.Effects,
	"GrainSize":         stage.Effects,

	"Sharpening":        stage.Details,
	"SharpenRadius":     stage.Details,
	"SharpenMasking":    stage.Details,
	"LuminanceNR":       stage.Details,
	"LuminanceNRDetail": stage.Details,
	"ColorNR":           stage.Details,
	"ColorNRDetail":     stage.Details,
}

type fieldInfo struct {
	name  string
	index int
	owner stage.Stage
}

// fields lists every Params field in declaration order, resolved
// against stageOf once at startup.
var fields []fieldInfo

func init() {
	t := reflect.TypeOf(Params{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		owner, ok := stageOf[f.Name]
		if !ok {
			panic(fmt.Sprintf("params: field %s has no stage assignment", f.Name))
		}
		if !owner.Valid() {
			panic(fmt.Sprintf("params: field %s mapped to invalid stage %d", f.Name, int(owner)))
		}
		switch f.Type.Kind() {
		case reflect.Float64, reflect.Bool:
		case reflect.Array:
			if f.Type.Elem().Kind() != reflect.Float64 {
				panic(fmt.Sprintf("params: field %s has unsupported array type %s", f.Name, f.Type))
			}
		case reflect.Slice:
			if f.Type.Elem() != reflect.TypeOf(CurvePoint{}) {
				panic(fmt.Sprintf("params: field %s has unsupported slice type %s", f.Name, f.Type))
			}
		default:
			panic(fmt.Sprintf("params: field %s has unsupported type %s", f.Name, f.Type))
		}
		fields = append(fields, fieldInfo{name: f.Name, index: i, owner: owner})
	}
	if len(stageOf) != t.NumField() {
		panic(fmt.Sprintf("params: stage map has %d entries for %d fields", len(stageOf), t.NumField()))
	}
}

// StageOf returns the stage owning the named field.
func StageOf(name string) (stage.Stage, bool) {
	s, ok := stageOf[name]
	return s, ok
}

// FieldsOf returns the names of the fields owned by s, in declaration
// order. The order is stable and shared with the hasher.
func FieldsOf(s stage.Stage) []string {
	var names []string
	for _, f := range fields {
		if f.owner == s {
			names = append(names, f.name)
		}
	}
	return names
}
