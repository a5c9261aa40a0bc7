package scev

import (
	"go/token"

	"golang.org/x/tools/go/ssa"

	"github.com/veclab/loopvec/loop"
)

// maxDepth bounds expression decomposition.
const maxDepth = 100

// Analysis computes and caches scalar evolution expressions per loop.
// One Analysis serves a whole function; each loop has its own cache since
// invariance is relative to the loop.
type Analysis struct {
	cache   map[*loop.Loop]map[ssa.Value]Expr
	addRecs map[*ssa.Phi]*AddRec
}

func NewAnalysis() *Analysis {
	return &Analysis{
		cache:   make(map[*loop.Loop]map[ssa.Value]Expr),
		addRecs: make(map[*ssa.Phi]*AddRec),
	}
}

// RegisterAddRec records that a header phi follows an add recurrence.
// Induction classification calls this so later queries (invariance of
// derived values, latch conditions) see through the phi.
func (a *Analysis) RegisterAddRec(phi *ssa.Phi, rec *AddRec) {
	a.addRecs[phi] = rec
	// Any cached Unknown for the phi is now stale.
	for _, perLoop := range a.cache {
		delete(perLoop, phi)
	}
}

// AddRecFor returns the registered recurrence for phi, if any.
func (a *Analysis) AddRecFor(phi *ssa.Phi) (*AddRec, bool) {
	rec, ok := a.addRecs[phi]
	return rec, ok
}

// ValueExpr returns the scalar evolution of v relative to l.
func (a *Analysis) ValueExpr(v ssa.Value, l *loop.Loop) Expr {
	perLoop, ok := a.cache[l]
	if !ok {
		perLoop = make(map[ssa.Value]Expr)
		a.cache[l] = perLoop
	}
	if e, ok := perLoop[v]; ok {
		return e
	}
	e := a.compute(v, l, 0)
	perLoop[v] = e
	return e
}

// IsInvariant reports whether v is invariant in l.
func (a *Analysis) IsInvariant(v ssa.Value, l *loop.Loop) bool {
	return a.ValueExpr(v, l).IsInvariant(l)
}

func (a *Analysis) compute(v ssa.Value, l *loop.Loop, depth int) Expr {
	if depth > maxDepth {
		return &Unknown{V: v}
	}
	switch v := v.(type) {
	case *ssa.Const:
		return fromConst(v)
	case *ssa.Phi:
		if rec, ok := a.addRecs[v]; ok {
			return rec
		}
		return &Unknown{V: v}
	case *ssa.BinOp:
		switch v.Op {
		case token.ADD, token.SUB, token.MUL, token.QUO:
			x := a.compute(v.X, l, depth+1)
			y := a.compute(v.Y, l, depth+1)
			return fold(v.Op, x, y, l)
		}
		return &Unknown{V: v}
	case *ssa.Convert:
		// Width changes preserve the recurrence shape for our purposes;
		// the classifier separately validates the cast chain.
		return a.compute(v.X, l, depth+1)
	case *ssa.ChangeType:
		return a.compute(v.X, l, depth+1)
	default:
		return &Unknown{V: v}
	}
}

func fold(op token.Token, x, y Expr, l *loop.Loop) Expr {
	cx, xok := x.(*Const)
	cy, yok := y.(*Const)
	if xok && yok {
		switch op {
		case token.ADD:
			return &Const{Value: cx.Value + cy.Value}
		case token.SUB:
			return &Const{Value: cx.Value - cy.Value}
		case token.MUL:
			return &Const{Value: cx.Value * cy.Value}
		case token.QUO:
			if cy.Value != 0 {
				return &Const{Value: cx.Value / cy.Value}
			}
		}
	}
	// {s, +, d} ± inv folds into the recurrence start.
	if rec, ok := x.(*AddRec); ok && (op == token.ADD || op == token.SUB) && y.IsInvariant(rec.Loop) {
		return &AddRec{Start: fold(op, rec.Start, y, l), Step: rec.Step, Loop: rec.Loop}
	}
	if rec, ok := y.(*AddRec); ok && op == token.ADD && x.IsInvariant(rec.Loop) {
		return &AddRec{Start: fold(op, rec.Start, x, l), Step: rec.Step, Loop: rec.Loop}
	}
	return &BinExpr{Op: op, X: x, Y: y}
}
