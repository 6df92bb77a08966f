// Per-stage parameter fingerprints for cache keying
package params

import (
	"hash/fnv"
	"math"
	"reflect"
	"strconv"

	"incremental-photo-engine/internal/stage"
)

// HashForStage digests exactly the fields owned by s, in declaration
// order, with floats rounded to one decimal place before hashing so
// that sub-visible jitter does not defeat the cache. FNV-1a over a
// name=value byte stream; stable across runs and platforms.
func HashForStage(s stage.Stage, p *Params) uint64 {
	h := fnv.New64a()
	pv := reflect.ValueOf(p).Elem()
	buf := make([]byte, 0, 32)
	for _, f := range fields {
		if f.owner != s {
			continue
		}
		h.Write([]byte(f.name))
		h.Write(eq)
		v := pv.Field(f.index)
		switch v.Kind() {
		case reflect.Float64:
			buf = appendRounded(buf[:0], v.Float())
			h.Write(buf)
		case reflect.Bool:
			if v.Bool() {
				h.Write(one)
			} else {
				h.Write(zero)
			}
		case reflect.Array:
			for i := 0; i < v.Len(); i++ {
				buf = appendRounded(buf[:0], v.Index(i).Float())
				h.Write(buf)
				h.Write(comma)
			}
		case reflect.Slice:
			points := v.Interface().([]CurvePoint)
			buf = strconv.AppendInt(buf[:0], int64(len(points)), 10)
			h.Write(buf)
			h.Write(colon)
			for _, pt := range points {
				buf = appendRounded(buf[:0], pt.X)
				h.Write(buf)
				h.Write(comma)
				buf = appendRounded(buf[:0], pt.Y)
				h.Write(buf)
				h.Write(semi)
			}
		}
		h.Write(semi)
	}
	return h.Sum64()
}

var (
	eq    = []byte{'='}
	one   = []byte{'1'}
	zero  = []byte{'0'}
	comma = []byte{','}
	colon = []byte{':'}
	semi  = []byte{';'}
)

// appendRounded appends v rounded to one decimal place. Negative zero
// normalizes to positive zero: -0.01 and 0.01 are equal to the
// detector, so they must not round to the distinct texts "-0.0" and
// "0.0".
func appendRounded(dst []byte, v float64) []byte {
	r := math.Round(v*10) / 10
	if r == 0 {
		r = 0
	}
	return strconv.AppendFloat(dst, r, 'f', 1, 64)
}
