// Package veclib is the vectorizer's view of callees and element types:
// which calls have a vector intrinsic equivalent, which library functions
// have a vectorized version, which intrinsic operands must stay scalar,
// and which element types a vector register can hold.
package veclib

import (
	"go/types"
	"strings"

	"golang.org/x/tools/go/ssa"
)

// IntrinsicID identifies a call with a known vector-instruction mapping.
type IntrinsicID int

const (
	NotIntrinsic IntrinsicID = iota
	IntrinsicSqrt
	IntrinsicAbs
	IntrinsicFloor
	IntrinsicCeil
	IntrinsicTrunc
	IntrinsicRound
	IntrinsicCopysign
	IntrinsicMin
	IntrinsicMax
	IntrinsicFMA
	IntrinsicLdexp
	IntrinsicLen // len/cap builtins, uniform per iteration
)

// Registry maps callees to their vector equivalents.
type Registry struct {
	intrinsics map[string]IntrinsicID
	scalarArgs map[IntrinsicID][]int // operand positions that must stay scalar
	vectorLib  map[string]string     // scalar name → vectorized routine
}

// NewRegistry returns a registry pre-populated with the math functions the
// widening transform knows how to emit.
func NewRegistry() *Registry {
	return &Registry{
		intrinsics: map[string]IntrinsicID{
			"math.Sqrt":     IntrinsicSqrt,
			"math.Abs":      IntrinsicAbs,
			"math.Floor":    IntrinsicFloor,
			"math.Ceil":     IntrinsicCeil,
			"math.Trunc":    IntrinsicTrunc,
			"math.Round":    IntrinsicRound,
			"math.Copysign": IntrinsicCopysign,
			"math.Min":      IntrinsicMin,
			"math.Max":      IntrinsicMax,
			"math.FMA":      IntrinsicFMA,
			"math.Ldexp":    IntrinsicLdexp,
		},
		scalarArgs: map[IntrinsicID][]int{
			// The exponent lane of Ldexp must be uniform.
			IntrinsicLdexp: {1},
		},
		vectorLib: map[string]string{
			"math.Exp":   "vecmath.Exp",
			"math.Exp2":  "vecmath.Exp2",
			"math.Log":   "vecmath.Log",
			"math.Log2":  "vecmath.Log2",
			"math.Sin":   "vecmath.Sin",
			"math.Cos":   "vecmath.Cos",
			"math.Tanh":  "vecmath.Tanh",
			"math.Pow":   "vecmath.Pow",
			"math.Hypot": "vecmath.Hypot",
		},
	}
}

// IntrinsicForCall returns the vector-intrinsic mapping for call, or
// NotIntrinsic.
func (r *Registry) IntrinsicForCall(call *ssa.Call) IntrinsicID {
	common := call.Common()
	if b, ok := common.Value.(*ssa.Builtin); ok {
		switch b.Name() {
		case "len", "cap":
			return IntrinsicLen
		}
		return NotIntrinsic
	}
	callee := common.StaticCallee()
	if callee == nil {
		return NotIntrinsic
	}
	return r.intrinsics[callee.String()]
}

// HasScalarOperand reports whether operand position arg of intrinsic id
// must be the same value on every vector lane.
func (r *Registry) HasScalarOperand(id IntrinsicID, arg int) bool {
	for _, pos := range r.scalarArgs[id] {
		if pos == arg {
			return true
		}
	}
	return false
}

// IsFunctionVectorizable reports whether a vectorized library version of
// the named function exists.
func (r *Registry) IsFunctionVectorizable(name string) bool {
	_, ok := r.vectorLib[name]
	return ok
}

// VectorFunction returns the name of the vectorized routine for name.
func (r *Registry) VectorFunction(name string) (string, bool) {
	v, ok := r.vectorLib[name]
	return v, ok
}

// IsMathLibFunc recognizes scalar math-library callees, used only to give
// a friendlier rejection message.
func (r *Registry) IsMathLibFunc(call *ssa.Call) bool {
	callee := call.Common().StaticCallee()
	if callee == nil || callee.Pkg == nil {
		return false
	}
	if callee.Pkg.Pkg.Path() != "math" {
		return false
	}
	basic, ok := call.Type().Underlying().(*types.Basic)
	return ok && basic.Info()&types.IsFloat != 0
}

// CalleeName returns the full name of the static callee of call, or "".
func CalleeName(call *ssa.Call) string {
	if callee := call.Common().StaticCallee(); callee != nil {
		return callee.String()
	}
	if b, ok := call.Common().Value.(*ssa.Builtin); ok {
		return b.Name()
	}
	return ""
}

// IsMathCallName is a cheap textual check for diagnostics.
func IsMathCallName(name string) bool { return strings.HasPrefix(name, "math.") }
