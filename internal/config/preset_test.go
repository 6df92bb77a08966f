package config

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/pmezard/go-difflib/difflib"

	"incremental-photo-engine/internal/params"
)

func encodePreset(t *testing.T, p *params.Params) string {
	t.Helper()
	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(p); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return sb.String()
}

func TestPresetRoundTrip(t *testing.T) {
	p := params.Defaults().With(func(p *params.Params) {
		p.Contrast = 1.3
		p.Clarity = 25
		p.Temperature = -12
		p.HueShift[2] = 15
		p.CropEnabled = true
		p.CropLeft = 0.1
		p.CurveLuma = []params.CurvePoint{{X: 0, Y: 8}, {X: 128, Y: 140}, {X: 255, Y: 255}}
	})

	path := filepath.Join(t.TempDir(), "warm.toml")
	if err := SavePreset(path, p); err != nil {
		t.Fatalf("SavePreset: %v", err)
	}
	loaded, err := LoadPreset(path)
	if err != nil {
		t.Fatalf("LoadPreset: %v", err)
	}

	if cs := params.Detect(p, loaded); cs.HasChanges {
		diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(encodePreset(t, p)),
			B:        difflib.SplitLines(encodePreset(t, loaded)),
			FromFile: "saved",
			ToFile:   "reloaded",
			Context:  2,
		})
		t.Fatalf("round trip changed fields %v\n%s", cs.Changed, diff)
	}
}

func TestPresetOverlaysDefaults(t *testing.T) {
	path := writeFile(t, "partial.toml", "contrast = 1.4\n")
	p, err := LoadPreset(path)
	if err != nil {
		t.Fatalf("LoadPreset: %v", err)
	}
	if p.Contrast != 1.4 {
		t.Fatalf("contrast = %v, want 1.4", p.Contrast)
	}
	if p.GradeBlend != 50 || p.SharpenRadius != 1.0 {
		t.Fatalf("absent keys lost their neutral values: %+v", p)
	}
}

func TestPresetRejectsUnknownKey(t *testing.T) {
	path := writeFile(t, "typo.toml", "sharpness = 40\n")
	_, err := LoadPreset(path)
	if err == nil {
		t.Fatal("unknown key accepted")
	}
	if !strings.Contains(err.Error(), "sharpness") {
		t.Fatalf("error does not name the offending key: %v", err)
	}
}

func TestPresetCurveTables(t *testing.T) {
	content := "[[curve_red]]\nx = 0.0\ny = 12.0\n[[curve_red]]\nx = 255.0\ny = 240.0\n"
	path := writeFile(t, "curves.toml", content)
	p, err := LoadPreset(path)
	if err != nil {
		t.Fatalf("LoadPreset: %v", err)
	}
	if len(p.CurveRed) != 2 || p.CurveRed[1].Y != 240 {
		t.Fatalf("curve points = %+v", p.CurveRed)
	}
}
