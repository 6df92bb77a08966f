// Monotone curve interpolation for tone tables
package adjust

import (
	"fmt"
	"math"
	"sort"

	"incremental-photo-engine/internal/params"
)

// buildCurveTable interpolates control points into a 256-entry table
// using monotone cubic (Fritsch-Carlson) slopes, so user curves never
// overshoot between points. An empty point list is the identity curve.
// Endpoints are pinned to (0,0) and (255,255) when the points do not
// reach them.
func buildCurveTable(points []params.CurvePoint) ([256]uint8, error) {
	if len(points) == 0 {
		return identityTable(), nil
	}
	xs, ys, err := normalizeCurve(points)
	if err != nil {
		return [256]uint8{}, err
	}
	n := len(xs)
	if n == 1 {
		var t [256]uint8
		for i := range t {
			t[i] = clampByte(ys[0])
		}
		return t, nil
	}

	// Secant slopes between points, then Fritsch-Carlson tangents.
	h := make([]float64, n-1)
	delta := make([]float64, n-1)
	for i := 0; i < n-1; i++ {
		h[i] = xs[i+1] - xs[i]
		delta[i] = (ys[i+1] - ys[i]) / h[i]
	}
	m := make([]float64, n)
	m[0] = delta[0]
	m[n-1] = delta[n-2]
	for i := 1; i < n-1; i++ {
		if delta[i-1]*delta[i] <= 0 {
			m[i] = 0
		} else {
			m[i] = (delta[i-1] + delta[i]) / 2
		}
	}
	for i := 0; i < n-1; i++ {
		if delta[i] == 0 {
			m[i] = 0
			m[i+1] = 0
			continue
		}
		a := m[i] / delta[i]
		b := m[i+1] / delta[i]
		s := a*a + b*b
		if s > 9 {
			tau := 3 / math.Sqrt(s)
			m[i] = tau * a * delta[i]
			m[i+1] = tau * b * delta[i]
		}
	}

	var t [256]uint8
	seg := 0
	for x := 0; x < 256; x++ {
		fx := float64(x)
		for seg < n-2 && fx > xs[seg+1] {
			seg++
		}
		hx := h[seg]
		u := (fx - xs[seg]) / hx
		u2 := u * u
		u3 := u2 * u
		v := ys[seg]*(2*u3-3*u2+1) +
			m[seg]*hx*(u3-2*u2+u) +
			ys[seg+1]*(-2*u3+3*u2) +
			m[seg+1]*hx*(u3-u2)
		t[x] = clampByte(v)
	}
	return t, nil
}

// normalizeCurve validates coordinates, sorts by x, rejects duplicate
// x positions, and pins the endpoints.
func normalizeCurve(points []params.CurvePoint) ([]float64, []float64, error) {
	pts := make([]params.CurvePoint, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool { return pts[i].X < pts[j].X })
	for i, pt := range pts {
		if pt.X < 0 || pt.X > 255 || pt.Y < 0 || pt.Y > 255 {
			return nil, nil, fmt.Errorf("curve point %d out of range: (%.1f, %.1f)", i, pt.X, pt.Y)
		}
		if i > 0 && pt.X-pts[i-1].X < 1 {
			return nil, nil, fmt.Errorf("curve points %d and %d overlap at x=%.1f", i-1, i, pt.X)
		}
	}
	xs := make([]float64, 0, len(pts)+2)
	ys := make([]float64, 0, len(pts)+2)
	if pts[0].X >= 1 {
		xs = append(xs, 0)
		ys = append(ys, 0)
	}
	for _, pt := range pts {
		xs = append(xs, pt.X)
		ys = append(ys, pt.Y)
	}
	if pts[len(pts)-1].X <= 254 {
		xs = append(xs, 255)
		ys = append(ys, 255)
	}
	return xs, ys, nil
}
