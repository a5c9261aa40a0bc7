// Package iv classifies loop-header phis.
//
// Every header phi of a vectorizable loop must be exactly one of: an
// induction variable (an affine function of the iteration count), a
// reduction (a loop-carried accumulation), or a first-order recurrence
// (the previous iteration's value of another expression). Each classifier
// returns a descriptor carrying the facts the widening transform needs;
// the caller tries them in a fixed priority order.
package iv

import (
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ssa"

	"github.com/veclab/loopvec/loop"
	"github.com/veclab/loopvec/scev"
	"github.com/veclab/loopvec/veclib"
)

// InductionKind says what kind of value the induction advances.
type InductionKind int

const (
	InductionInt InductionKind = iota
	InductionFloat
)

// InductionDescriptor describes a header phi that is an affine function
// start + step·iteration of the trip count.
type InductionDescriptor struct {
	Phi   *ssa.Phi
	Kind  InductionKind
	Start scev.Expr
	Step  scev.Expr
	// Update is the instruction computing the next iteration's value.
	Update *ssa.BinOp
	// Casts are width conversions bridging the narrow representation of
	// the recurrence to the phi's type; the transform may ignore them.
	Casts []ssa.Instruction
	// RequiresReassoc is set for floating-point inductions, whose
	// recognition reorders FP additions.
	RequiresReassoc bool
	// ReassocInst is the instruction responsible for RequiresReassoc.
	ReassocInst ssa.Instruction
}

// ConstStep returns the step as a constant, if it is one.
func (d *InductionDescriptor) ConstStep() (int64, bool) {
	return scev.ConstValue(d.Step)
}

// IsCanonical reports a 0-start, 1-step integer induction: the shape the
// transform can use directly as the iteration counter.
func (d *InductionDescriptor) IsCanonical() bool {
	if d.Kind != InductionInt {
		return false
	}
	start, ok := scev.ConstValue(d.Start)
	if !ok || start != 0 {
		return false
	}
	step, ok := d.ConstStep()
	return ok && step == 1
}

// ClassifyInduction decides whether phi is an induction variable of l.
//
// The strict tier (relaxed=false) accepts only a direct phi = phi ± step
// update with an assumption-free invariant step. The relaxed tier
// additionally coerces two shapes by recording runtime assumptions on
// pse: updates bridged by integer width conversions (assuming the narrow
// representation does not wrap) and steps that are only invariant by
// assumption. The two tiers are tried at different priorities by the
// caller; keeping them separate changes which loops are accepted.
func ClassifyInduction(phi *ssa.Phi, l *loop.Loop, pse *scev.Predicated, relaxed bool) (*InductionDescriptor, bool) {
	if len(phi.Edges) != 2 || phi.Block() != l.Header {
		return nil, false
	}
	start, next, ok := splitEdges(phi, l)
	if !ok {
		return nil, false
	}

	if veclib.IsFloat(phi.Type()) {
		return classifyFloatInduction(phi, l, pse, start, next)
	}
	if !veclib.IsInteger(phi.Type()) && !veclib.IsPointer(phi.Type()) {
		return nil, false
	}

	// Peel width conversions off the update chain. Only the relaxed tier
	// may accept them, under a no-wrap assumption.
	var casts []ssa.Instruction
	for {
		conv, ok := next.(*ssa.Convert)
		if !ok {
			break
		}
		if !veclib.IsInteger(conv.Type()) || !veclib.IsInteger(conv.X.Type()) {
			return nil, false
		}
		casts = append(casts, conv)
		next = conv.X
	}

	update, ok := next.(*ssa.BinOp)
	if !ok || !l.ContainsInstr(update) {
		return nil, false
	}

	var stepVal ssa.Value
	switch {
	case chainsToPhi(update.X, phi, &casts):
		stepVal = update.Y
	case chainsToPhi(update.Y, phi, &casts):
		if update.Op == token.SUB {
			return nil, false // step - phi is not an induction
		}
		stepVal = update.X
	default:
		return nil, false
	}
	if update.Op != token.ADD && update.Op != token.SUB {
		return nil, false
	}

	step := pse.ValueExpr(stepVal)
	switch {
	case isAssumptionFree(step, l):
		// strict tier is satisfied
	case relaxed && step.IsInvariant(l):
		pse.Assume(scev.Assumption{
			Kind: "invariant-step",
			V:    stepVal,
			Msg:  "step value must not change during the loop",
		})
	default:
		return nil, false
	}
	if update.Op == token.SUB {
		step = negate(step)
	}

	if len(casts) > 0 {
		if !relaxed {
			return nil, false
		}
		pse.Assume(scev.Assumption{
			Kind: "no-wrap",
			V:    phi,
			Msg:  "narrowed induction update must not wrap",
		})
	}

	d := &InductionDescriptor{
		Phi:    phi,
		Kind:   InductionInt,
		Start:  pse.ValueExpr(start),
		Step:   step,
		Update: update,
		Casts:  casts,
	}
	pse.SE().RegisterAddRec(phi, &scev.AddRec{Start: d.Start, Step: d.Step, Loop: l})
	return d, true
}

func classifyFloatInduction(phi *ssa.Phi, l *loop.Loop, pse *scev.Predicated, start, next ssa.Value) (*InductionDescriptor, bool) {
	update, ok := next.(*ssa.BinOp)
	if !ok || !l.ContainsInstr(update) {
		return nil, false
	}
	if update.Op != token.ADD && update.Op != token.SUB {
		return nil, false
	}
	var stepVal ssa.Value
	switch {
	case update.X == phi:
		stepVal = update.Y
	case update.Y == phi && update.Op == token.ADD:
		stepVal = update.X
	default:
		return nil, false
	}
	if !pse.IsInvariant(stepVal) {
		return nil, false
	}
	step := pse.ValueExpr(stepVal)
	if update.Op == token.SUB {
		step = negate(step)
	}
	return &InductionDescriptor{
		Phi:             phi,
		Kind:            InductionFloat,
		Start:           pse.ValueExpr(start),
		Step:            step,
		Update:          update,
		RequiresReassoc: !l.FastMath,
		ReassocInst:     update,
	}, true
}

// splitEdges separates the phi's incoming values into the out-of-loop
// start and the back-edge update.
func splitEdges(phi *ssa.Phi, l *loop.Loop) (start, next ssa.Value, ok bool) {
	for i, pred := range phi.Block().Preds {
		if l.Contains(pred) {
			if next != nil {
				return nil, nil, false
			}
			next = phi.Edges[i]
		} else {
			if start != nil && start != phi.Edges[i] {
				return nil, nil, false
			}
			start = phi.Edges[i]
		}
	}
	return start, next, start != nil && next != nil
}

// chainsToPhi reports whether v is phi, possibly through width
// conversions, which are appended to casts.
func chainsToPhi(v ssa.Value, phi *ssa.Phi, casts *[]ssa.Instruction) bool {
	for {
		if v == phi {
			return true
		}
		conv, ok := v.(*ssa.Convert)
		if !ok || !veclib.IsInteger(conv.Type()) || !veclib.IsInteger(conv.X.Type()) {
			return false
		}
		*casts = append(*casts, conv)
		v = conv.X
	}
}

// isAssumptionFree reports whether e is invariant in l without any
// runtime assumption: a constant, or an opaque value defined outside.
func isAssumptionFree(e scev.Expr, l *loop.Loop) bool {
	switch e := e.(type) {
	case *scev.Const:
		return true
	case *scev.Unknown:
		return e.IsInvariant(l)
	case *scev.BinExpr:
		return isAssumptionFree(e.X, l) && isAssumptionFree(e.Y, l)
	}
	return false
}

func negate(e scev.Expr) scev.Expr {
	if c, ok := e.(*scev.Const); ok {
		return &scev.Const{Value: -c.Value}
	}
	return &scev.BinExpr{Op: token.MUL, X: e, Y: &scev.Const{Value: -1}}
}

// PhiType returns the phi's type for widest-type bookkeeping.
func (d *InductionDescriptor) PhiType() types.Type { return d.Phi.Type() }
