package legality

import (
	"go/types"

	"golang.org/x/tools/go/ssa"

	"github.com/veclab/loopvec/iv"
	"github.com/veclab/loopvec/veclib"
)

// canVectorizeInstrs classifies every instruction in the loop. Header
// phis must be recognized as inductions, reductions or first-order
// recurrences; calls must map to a widenable intrinsic or a library
// vector routine; every produced value must have a widenable type; and
// no value may escape the loop except through the allowed-exit set.
func (a *Analysis) canVectorizeInstrs() bool {
	header := a.theLoop.Header
	latch := a.theLoop.Latch()

	for _, bb := range a.theLoop.Blocks() {
		for _, instr := range bb.Instrs {
			if _, ok := instr.(*ssa.DebugRef); ok {
				continue
			}

			if phi, ok := instr.(*ssa.Phi); ok {
				ty := phi.Type()
				if !veclib.IsInteger(ty) && !veclib.IsFloat(ty) && !veclib.IsPointer(ty) {
					a.reportFailure("CFGNotUnderstood",
						"loop control flow is not understood by vectorizer", phi)
					return false
				}

				// Phis below the header become selects during
				// if-conversion; they are checked there.
				if bb != header {
					continue
				}

				if len(phi.Edges) != 2 {
					a.reportFailure("CFGNotUnderstood",
						"loop control flow is not understood by vectorizer", phi)
					return false
				}

				if red, ok := iv.ClassifyReduction(phi, a.theLoop); ok {
					if red.RequiresReassoc {
						a.reqs.AddReassocInst(red.ReassocInst)
					}
					if exitVal, ok := red.ExitInstr.(ssa.Value); ok {
						a.allowedExit[exitVal] = true
					}
					a.reductions[phi] = red
					continue
				}
				if d, ok := iv.ClassifyInduction(phi, a.theLoop, a.pse, false); ok {
					a.addInductionPhi(phi, d, latch)
					if d.RequiresReassoc && !a.cfg.AssumeNoNaNs {
						a.reqs.AddReassocInst(d.ReassocInst)
					}
					continue
				}
				if iv.IsFirstOrderRecurrence(phi, a.theLoop, a.sinkAfter) {
					a.firstOrder[phi] = true
					continue
				}
				// As a last resort, coerce the phi into an induction by
				// recording runtime assumptions.
				if d, ok := iv.ClassifyInduction(phi, a.theLoop, a.pse, true); ok {
					a.addInductionPhi(phi, d, latch)
					continue
				}

				a.reportFailure("NonReductionValueUsedOutsideLoop",
					"value that could not be identified as reduction is used outside the loop", phi)
				return false
			}

			if call, ok := instr.(*ssa.Call); ok {
				id := a.lib.IntrinsicForCall(call)
				if id == veclib.NotIntrinsic &&
					!a.lib.IsFunctionVectorizable(veclib.CalleeName(call)) {
					if a.lib.IsMathLibFunc(call) {
						a.reportFailure("CantVectorizeLibcall",
							"library call cannot be vectorized. Check that the "+
								"vector library supports this routine", call)
					} else {
						a.reportFailure("CantVectorizeCall",
							"call instruction cannot be vectorized", call)
					}
					return false
				}
				// Some intrinsics need certain operands identical on
				// every lane; those must be loop invariant.
				if id != veclib.NotIntrinsic {
					for i, arg := range call.Common().Args {
						if a.lib.HasScalarOperand(id, i) && !a.pse.IsInvariant(arg) {
							a.reportFailure("CantVectorizeIntrinsic",
								"intrinsic instruction cannot be vectorized", call)
							return false
						}
					}
				}
			}

			// Every produced value must widen to a vector element, and
			// single-element extraction is itself unwidenable.
			if v, ok := instr.(ssa.Value); ok {
				_, isExtract := instr.(*ssa.Index)
				if !veclib.IsValidElementType(v.Type()) || isExtract {
					a.reportFailure("CantVectorizeInstructionReturnType",
						"instruction return type cannot be vectorized", instr)
					return false
				}
			}

			if st, ok := instr.(*ssa.Store); ok {
				if !veclib.IsValidElementType(st.Val.Type()) {
					a.reportFailure("CantVectorizeStore",
						"store instruction cannot be vectorized", st)
					return false
				}
			}

			// Reordering floating-point operations needs explicit
			// permission; record that the loop contains some.
			if v, ok := instr.(ssa.Value); ok && veclib.IsFloat(v.Type()) && !a.theLoop.FastMath {
				_, isBin := instr.(*ssa.BinOp)
				_, isCall := instr.(*ssa.Call)
				if isBin || isCall {
					a.hints.SetPotentiallyUnsafe()
				}
			}

			if v, ok := instr.(ssa.Value); ok {
				if user := a.outsideLoopUser(v); user != nil {
					// While no runtime assumption guards the analysis,
					// any value can be recomputed after the loop.
					if a.pse.Predicate().IsAlwaysTrue() {
						a.allowedExit[v] = true
						continue
					}
					a.reportFailure("ValueUsedOutsideLoop",
						"value used outside the loop", user)
					return false
				}
			}
		}
	}

	if a.primary == nil {
		if len(a.inductions) == 0 {
			a.reportFailure("NoInductionVariable",
				"loop induction variable could not be identified", nil)
			return false
		}
		if a.widestIndTy == nil {
			a.reportFailure("NoIntegerInductionVariable",
				"integer loop induction variable could not be identified", nil)
			return false
		}
		a.logger.Debugf("no canonical induction found in %s", a.theLoop)
	}

	// The primary induction must drive the widest counter; drop it when
	// a wider induction turned up after it was chosen.
	if a.primary != nil &&
		!types.Identical(veclib.WidenToInteger(a.primary.Type()), a.widestIndTy) {
		a.primary = nil
	}

	return true
}

// addInductionPhi records a classified induction: widest-type
// bookkeeping, primary-induction selection, cast tracking, and the
// allowed-exit set when no runtime assumption guards the descriptor.
func (a *Analysis) addInductionPhi(phi *ssa.Phi, d *iv.InductionDescriptor, latch *ssa.BasicBlock) {
	a.inductions[phi] = d

	for _, c := range d.Casts {
		a.indCasts[c] = true
	}

	if !veclib.IsFloat(phi.Type()) {
		wide := veclib.WidenToInteger(phi.Type())
		if a.widestIndTy == nil {
			a.widestIndTy = wide
		} else {
			a.widestIndTy = veclib.WiderType(a.widestIndTy, wide)
		}
	}

	// A canonical counter becomes primary when none is chosen yet, and a
	// later one of the widest induction type displaces a narrower choice.
	if d.IsCanonical() &&
		(a.primary == nil || types.Identical(veclib.WidenToInteger(phi.Type()), a.widestIndTy)) {
		a.primary = phi
	}

	// Both the phi and its update are recomputable outside the loop, but
	// only when no assumption could invalidate the recomputation.
	if a.pse.Predicate().IsAlwaysTrue() {
		a.allowedExit[phi] = true
		if latch != nil {
			for i, pred := range phi.Block().Preds {
				if pred == latch {
					a.allowedExit[phi.Edges[i]] = true
				}
			}
		}
	}

	a.logger.Debugf("found an induction variable: %s", phi.Name())
}

// outsideLoopUser returns an instruction outside the loop using v, nil
// if every user is inside or v is in the allowed-exit set.
func (a *Analysis) outsideLoopUser(v ssa.Value) ssa.Instruction {
	if a.allowedExit[v] {
		return nil
	}
	refs := v.Referrers()
	if refs == nil {
		return nil
	}
	for _, user := range *refs {
		if _, ok := user.(*ssa.DebugRef); ok {
			continue
		}
		if !a.theLoop.ContainsInstr(user) {
			return user
		}
	}
	return nil
}
