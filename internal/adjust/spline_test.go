package adjust

import (
	"testing"

	"incremental-photo-engine/internal/params"
)

func TestCurveTableIdentity(t *testing.T) {
	table, err := buildCurveTable(nil)
	if err != nil {
		t.Fatalf("buildCurveTable: %v", err)
	}
	for i := range table {
		if table[i] != uint8(i) {
			t.Fatalf("table[%d] = %d, empty curve should be identity", i, table[i])
		}
	}
}

func TestCurveTableInterpolates(t *testing.T) {
	points := []params.CurvePoint{{X: 0, Y: 0}, {X: 128, Y: 180}, {X: 255, Y: 255}}
	table, err := buildCurveTable(points)
	if err != nil {
		t.Fatalf("buildCurveTable: %v", err)
	}
	if table[0] != 0 || table[255] != 255 {
		t.Fatalf("endpoints (%d, %d), want pinned to (0, 255)", table[0], table[255])
	}
	if table[128] != 180 {
		t.Fatalf("table[128] = %d, want the control point value 180", table[128])
	}
	if table[64] <= 64 {
		t.Fatalf("table[64] = %d, a lifting curve should sit above identity", table[64])
	}
}

// Fritsch-Carlson tangents must keep an increasing point set increasing
// everywhere between the points.
func TestCurveTableMonotone(t *testing.T) {
	points := []params.CurvePoint{
		{X: 0, Y: 0}, {X: 40, Y: 150}, {X: 60, Y: 155}, {X: 255, Y: 255},
	}
	table, err := buildCurveTable(points)
	if err != nil {
		t.Fatalf("buildCurveTable: %v", err)
	}
	for i := 1; i < 256; i++ {
		if table[i] < table[i-1] {
			t.Fatalf("table decreases at %d: %d -> %d", i, table[i-1], table[i])
		}
	}
}

func TestCurveTablePinsMissingEndpoints(t *testing.T) {
	table, err := buildCurveTable([]params.CurvePoint{{X: 100, Y: 50}})
	if err != nil {
		t.Fatalf("buildCurveTable: %v", err)
	}
	if table[0] != 0 || table[255] != 255 {
		t.Fatalf("endpoints (%d, %d), want synthesized (0, 255)", table[0], table[255])
	}
	if table[100] != 50 {
		t.Fatalf("table[100] = %d, want 50", table[100])
	}
}

func TestCurveTableRejectsBadPoints(t *testing.T) {
	tests := []struct {
		name   string
		points []params.CurvePoint
	}{
		{"out of range", []params.CurvePoint{{X: -4, Y: 0}}},
		{"y out of range", []params.CurvePoint{{X: 10, Y: 300}}},
		{"duplicate x", []params.CurvePoint{{X: 10, Y: 0}, {X: 10.5, Y: 20}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := buildCurveTable(tt.points); err == nil {
				t.Fatal("malformed curve accepted")
			}
		})
	}
}

func TestComposeTables(t *testing.T) {
	id := identityTable()
	double := [256]uint8{}
	for i := range double {
		double[i] = clampByte(float64(i) * 2)
	}
	composed := composeTables(&double, &id)
	if composed[100] != 200 || composed[200] != 255 {
		t.Fatalf("composed[100]=%d composed[200]=%d", composed[100], composed[200])
	}
}

func TestSmoothstep(t *testing.T) {
	if smoothstep(0, 1, -1) != 0 || smoothstep(0, 1, 2) != 1 {
		t.Fatal("smoothstep does not clamp")
	}
	if v := smoothstep(0, 1, 0.5); v != 0.5 {
		t.Fatalf("smoothstep midpoint = %v, want 0.5", v)
	}
	if smoothstep(0, 1, 0.25) >= 0.25 {
		t.Fatal("smoothstep should ease in below the midpoint")
	}
}
