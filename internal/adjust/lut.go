// Lookup-table application on 8-bit mats
package adjust

import (
	"errors"
	"fmt"
	"math"

	"gocv.io/x/gocv"
)

func identityTable() [256]uint8 {
	var t [256]uint8
	for i := range t {
		t[i] = uint8(i)
	}
	return t
}

// composeTables chains two tables: result[i] = outer[inner[i]].
func composeTables(outer, inner *[256]uint8) [256]uint8 {
	var t [256]uint8
	for i := range t {
		t[i] = outer[inner[i]]
	}
	return t
}

func clampByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.Round(v))
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// smoothstep is the cubic ease between lo and hi, clamped outside.
func smoothstep(lo, hi, x float64) float64 {
	if hi <= lo {
		if x < lo {
			return 0
		}
		return 1
	}
	t := clampFloat((x-lo)/(hi-lo), 0, 1)
	return t * t * (3 - 2*t)
}

// applyLUT1 maps every channel of src through one shared table.
func applyLUT1(src gocv.Mat, table *[256]uint8) (gocv.Mat, error) {
	lut, err := gocv.NewMatFromBytes(1, 256, gocv.MatTypeCV8U, table[:])
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("build lut: %w", err)
	}
	defer lut.Close()
	dst := gocv.NewMat()
	gocv.LUT(src, lut, &dst)
	if dst.Empty() {
		dst.Close()
		return gocv.NewMat(), errors.New("lut produced empty output")
	}
	return dst, nil
}

// applyLUT3 maps a 3-channel mat through per-channel tables in BGR
// plane order.
func applyLUT3(src gocv.Mat, b, g, r *[256]uint8) (gocv.Mat, error) {
	data := make([]byte, 0, 768)
	for i := 0; i < 256; i++ {
		data = append(data, b[i], g[i], r[i])
	}
	lut, err := gocv.NewMatFromBytes(1, 256, gocv.MatTypeCV8UC3, data)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("build lut: %w", err)
	}
	defer lut.Close()
	dst := gocv.NewMat()
	gocv.LUT(src, lut, &dst)
	if dst.Empty() {
		dst.Close()
		return gocv.NewMat(), errors.New("lut produced empty output")
	}
	return dst, nil
}
