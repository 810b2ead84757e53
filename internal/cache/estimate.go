package cache

import (
	"reflect"
	"time"
)

// Per-value overheads for the size estimator. These are heuristics for
// budget accounting, not exact allocations.
const (
	overheadScalar = 8
	overheadString = 16
	overheadSlice  = 24
	overheadMap    = 48
	overheadStruct = 16

	maxEstimateDepth = 8
)

// Estimate returns an approximate in-memory size of v in bytes. Recursion
// is depth-capped so pathological or cyclic values cannot hang the
// estimator.
func Estimate(v any) int64 {
	return estimateValue(reflect.ValueOf(v), 0)
}

func estimateValue(rv reflect.Value, depth int) int64 {
	if !rv.IsValid() {
		return overheadScalar
	}
	if depth > maxEstimateDepth {
		return overheadScalar
	}

	switch rv.Kind() {
	case reflect.String:
		return overheadString + int64(rv.Len())
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return overheadScalar
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return overheadScalar
		}
		return overheadScalar + estimateValue(rv.Elem(), depth+1)
	case reflect.Slice, reflect.Array:
		size := int64(overheadSlice)
		for i := 0; i < rv.Len(); i++ {
			size += estimateValue(rv.Index(i), depth+1)
		}
		return size
	case reflect.Map:
		size := int64(overheadMap)
		iter := rv.MapRange()
		for iter.Next() {
			size += estimateValue(iter.Key(), depth+1)
			size += estimateValue(iter.Value(), depth+1)
		}
		return size
	case reflect.Struct:
		// time.Time is common in cached entries; treat it as a scalar.
		if rv.Type() == reflect.TypeOf(time.Time{}) {
			return overheadScalar * 3
		}
		size := int64(overheadStruct)
		for i := 0; i < rv.NumField(); i++ {
			f := rv.Field(i)
			if !f.CanInterface() {
				size += overheadScalar
				continue
			}
			size += estimateValue(f, depth+1)
		}
		return size
	default:
		return overheadScalar
	}
}
