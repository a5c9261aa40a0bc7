package veclib

import "go/types"

// wordBits is the assumed target word size. Vector legality does not vary
// with it in any way the analysis cares about beyond type widening.
const wordBits = 64

// IsValidElementType reports whether values of type t can live in a vector
// lane: sized integers, floats and pointers. Aggregates, strings, slices,
// interfaces, maps and channels cannot.
func IsValidElementType(t types.Type) bool {
	switch u := t.Underlying().(type) {
	case *types.Basic:
		info := u.Info()
		return info&(types.IsInteger|types.IsFloat|types.IsBoolean) != 0 &&
			info&types.IsString == 0
	case *types.Pointer:
		return true
	}
	return false
}

// IsInteger reports whether t is an integer type.
func IsInteger(t types.Type) bool {
	basic, ok := t.Underlying().(*types.Basic)
	return ok && basic.Info()&types.IsInteger != 0
}

// IsFloat reports whether t is a floating-point type.
func IsFloat(t types.Type) bool {
	basic, ok := t.Underlying().(*types.Basic)
	return ok && basic.Info()&types.IsFloat != 0
}

// IsPointer reports whether t is a pointer type.
func IsPointer(t types.Type) bool {
	_, ok := t.Underlying().(*types.Pointer)
	return ok
}

// ScalarBits returns the bit width of a vectorizable scalar type.
func ScalarBits(t types.Type) int {
	switch u := t.Underlying().(type) {
	case *types.Basic:
		switch u.Kind() {
		case types.Int8, types.Uint8, types.Bool:
			return 8
		case types.Int16, types.Uint16:
			return 16
		case types.Int32, types.Uint32, types.Float32:
			return 32
		case types.Int64, types.Uint64, types.Float64,
			types.Int, types.Uint, types.Uintptr, types.UnsafePointer:
			return wordBits
		}
	case *types.Pointer:
		return wordBits
	}
	return 0
}

// WidenToInteger maps pointer types to a word-sized integer, and integers
// narrower than 32 bits to 32 bits: narrow counters overflow when asked
// for the loop's trip count.
func WidenToInteger(t types.Type) types.Type {
	if IsPointer(t) {
		return types.Typ[types.Uintptr]
	}
	if IsInteger(t) && ScalarBits(t) < 32 {
		return types.Typ[types.Int32]
	}
	return t
}

// WiderType returns the wider of two scalar types after integer widening.
func WiderType(t0, t1 types.Type) types.Type {
	t0, t1 = WidenToInteger(t0), WidenToInteger(t1)
	if ScalarBits(t0) > ScalarBits(t1) {
		return t0
	}
	return t1
}
