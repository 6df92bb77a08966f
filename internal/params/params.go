// Parameter snapshots for the staged adjustment pipeline
package params

// Epsilon is the shared float tolerance used by change detection, the
// per-stage default checks, and hash rounding. A single constant keeps
// the change detector and the stage processors in agreement about what
// counts as an edit: a change the detector sees is never one a
// processor still treats as default.
const Epsilon = 0.05

// CurvePoint is one tone-curve control point in 0..255 coordinate
// space. An empty point list is the identity curve.
type CurvePoint struct {
	X float64 `toml:"x"`
	Y float64 `toml:"y"`
}

// Params holds every user-adjustable value for one edit state.
// Snapshots are immutable by convention: a render borrows a *Params and
// never writes through it; edits go through Clone or With so that an
// in-flight render keeps a stable view.
type Params struct {
	// Geometry
	RotationAngle float64 `toml:"rotation_angle"`
	CropLeft      float64 `toml:"crop_left"`
	CropTop       float64 `toml:"crop_top"`
	CropRight     float64 `toml:"crop_right"`
	CropBottom    float64 `toml:"crop_bottom"`
	CropEnabled   bool    `toml:"crop_enabled"`

	// Tone
	Exposure   float64 `toml:"exposure"`
	Contrast   float64 `toml:"contrast"`
	Highlights float64 `toml:"highlights"`
	Shadows    float64 `toml:"shadows"`
	Whites     float64 `toml:"whites"`
	Blacks     float64 `toml:"blacks"`

	// Curves
	CurveLuma  []CurvePoint `toml:"curve_luma"`
	CurveRed   []CurvePoint `toml:"curve_red"`
	CurveGreen []CurvePoint `toml:"curve_green"`
	CurveBlue  []CurvePoint `toml:"curve_blue"`

	// Color
	Temperature    float64    `toml:"temperature"`
	Tint           float64    `toml:"tint"`
	Saturation     float64    `toml:"saturation"`
	Vibrance       float64    `toml:"vibrance"`
	HueShift       [8]float64 `toml:"hue_shift"`
	SatShift       [8]float64 `toml:"sat_shift"`
	LumShift       [8]float64 `toml:"lum_shift"`
	GradeShadowHue float64    `toml:"grade_shadow_hue"`
	GradeShadowSat float64    `toml:"grade_shadow_sat"`
	GradeMidHue    float64    `toml:"grade_mid_hue"`
	GradeMidSat    float64    `toml:"grade_mid_sat"`
	GradeHighHue   float64    `toml:"grade_high_hue"`
	GradeHighSat   float64    `toml:"grade_high_sat"`
	GradeBalance   float64    `toml:"grade_balance"`
	GradeBlend     float64    `toml:"grade_blend"`

	// Effects
	Clarity           float64 `toml:"clarity"`
	Texture           float64 `toml:"texture"`
	Dehaze            float64 `toml:"dehaze"`
	VignetteAmount    float64 `toml:"vignette_amount"`
	VignetteMidpoint  float64 `toml:"vignette_midpoint"`
	VignetteFeather   float64 `toml:"vignette_feather"`
	VignetteRoundness float64 `toml:"vignette_roundness"`
	GrainAmount       float64 `toml:"grain_amount"`
	GrainSize         float64 `toml:"grain_size"`

	// Details
	Sharpening        float64 `toml:"sharpening"`
	SharpenRadius     float64 `toml:"sharpen_radius"`
	SharpenMasking    float64 `toml:"sharpen_masking"`
	LuminanceNR       float64 `toml:"luminance_nr"`
	LuminanceNRDetail float64 `toml:"luminance_nr_detail"`
	ColorNR           float64 `toml:"color_nr"`
	ColorNRDetail     float64 `toml:"color_nr_detail"`
}

// Defaults returns a snapshot with every field at its neutral value. A
// pipeline run over an all-default snapshot is an identity transform;
// the non-zero entries here are the neutral points of their controls,
// not adjustments.
func Defaults() *Params {
	return &Params{
		Contrast:          1.0,
		GradeBlend:        50,
		VignetteMidpoint:  50,
		VignetteFeather:   50,
		GrainSize:         25,
		SharpenRadius:     1.0,
		LuminanceNRDetail: 50,
		ColorNRDetail:     50,
	}
}

// Clone returns a deep copy, including the curve point lists.
func (p *Params) Clone() *Params {
	c := *p
	c.CurveLuma = cloneCurve(p.CurveLuma)
	c.CurveRed = cloneCurve(p.CurveRed)
	c.CurveGreen = cloneCurve(p.CurveGreen)
	c.CurveBlue = cloneCurve(p.CurveBlue)
	return &c
}

// With returns a copy with edit applied. The receiver is untouched, so
// a snapshot held by an in-flight render never observes the edit.
func (p *Params) With(edit func(*Params)) *Params {
	c := p.Clone()
	edit(c)
	return c
}

func cloneCurve(points []CurvePoint) []CurvePoint {
	if len(points) == 0 {
		return nil
	}
	out := make([]CurvePoint, len(points))
	copy(out, points)
	return out
}
