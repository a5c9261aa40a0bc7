// Package scev models scalar evolution of SSA values relative to a loop.
//
// An expression describes how a value evolves across iterations: a
// constant, an add recurrence {start, +, step}, a combination of other
// expressions, or an unknown opaque value. The analysis answers the two
// questions the legality checks need: is a value invariant in a loop, and
// does a header phi follow an affine recurrence.
//
// Some answers only hold under runtime-checkable assumptions; those are
// accumulated in a Predicate (see predicate.go) rather than silently
// trusted.
package scev

import (
	"fmt"
	"go/constant"
	"go/token"

	"golang.org/x/tools/go/ssa"

	"github.com/veclab/loopvec/loop"
)

// Expr is a scalar evolution expression.
type Expr interface {
	// IsInvariant reports whether the expression has the same value on
	// every iteration of l.
	IsInvariant(l *loop.Loop) bool
	String() string
}

// Const is a compile-time integer constant.
type Const struct {
	Value int64
}

func (c *Const) IsInvariant(*loop.Loop) bool { return true }
func (c *Const) String() string              { return fmt.Sprintf("%d", c.Value) }

// IsZero reports Value == 0.
func (c *Const) IsZero() bool { return c.Value == 0 }

// IsOne reports Value == 1.
func (c *Const) IsOne() bool { return c.Value == 1 }

// Unknown wraps an SSA value the analysis cannot decompose.
type Unknown struct {
	V ssa.Value
}

func (u *Unknown) IsInvariant(l *loop.Loop) bool {
	if u.V == nil {
		return false
	}
	return l.IsInvariant(u.V)
}

func (u *Unknown) String() string {
	if u.V == nil {
		return "?"
	}
	return u.V.Name()
}

// AddRec is an add recurrence {Start, +, Step} over Loop: the value starts
// at Start and advances by Step each iteration.
type AddRec struct {
	Start Expr
	Step  Expr
	Loop  *loop.Loop
}

// IsInvariant reports whether the recurrence is fixed during one
// iteration of l. It never is in its own loop, nor in any loop enclosing
// it: an inner counter runs through all its values inside one outer
// iteration.
func (a *AddRec) IsInvariant(l *loop.Loop) bool {
	if a.Loop == l || l.Contains(a.Loop.Header) {
		return false
	}
	return a.Start.IsInvariant(l) && a.Step.IsInvariant(l)
}

func (a *AddRec) String() string {
	return fmt.Sprintf("{%s, +, %s}", a.Start, a.Step)
}

// BinExpr combines two expressions with an arithmetic operator.
type BinExpr struct {
	Op token.Token
	X  Expr
	Y  Expr
}

func (b *BinExpr) IsInvariant(l *loop.Loop) bool {
	return b.X.IsInvariant(l) && b.Y.IsInvariant(l)
}

func (b *BinExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.X, b.Op, b.Y)
}

// ConstValue extracts the integer value of e, if e is a constant.
func ConstValue(e Expr) (int64, bool) {
	c, ok := e.(*Const)
	if !ok {
		return 0, false
	}
	return c.Value, true
}

// fromConst converts an SSA constant. Non-integer constants (floats,
// strings, nil) become Unknown so that a fractional step is never
// mistaken for an integer one.
func fromConst(c *ssa.Const) Expr {
	if c.Value != nil && c.Value.Kind() == constant.Int {
		if v, exact := constant.Int64Val(c.Value); exact {
			return &Const{Value: v}
		}
	}
	if c.Value == nil { // zero value of a numeric type
		return &Const{Value: 0}
	}
	return &Unknown{V: c}
}
