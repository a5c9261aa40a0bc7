package legality

import (
	"go/token"

	"golang.org/x/tools/go/ssa"

	"github.com/veclab/loopvec/iv"
	"github.com/veclab/loopvec/loop"
	"github.com/veclab/loopvec/veclib"
)

// canVectorizeOuterLoop checks the extra constraints on a non-innermost
// loop: the whole nest must execute uniformly, so every lane follows
// the same control flow. Conditional branches inside the outer loop
// must either be loop-invariant or guard an inner loop.
func (a *Analysis) canVectorizeOuterLoop() bool {
	result := true
	extra := a.ore.AllowExtraAnalysis()

	for _, bb := range a.theLoop.Blocks() {
		term := bb.Instrs[len(bb.Instrs)-1]
		br, isIf := term.(*ssa.If)
		if _, isJump := term.(*ssa.Jump); !isIf && !isJump {
			a.reportFailure("CFGNotUnderstood",
				"loop contains an unsupported terminator", nil)
			if !extra {
				return false
			}
			result = false
			continue
		}

		if isIf && !a.theLoop.IsInvariant(br.Cond) &&
			!a.forest.IsHeader(bb.Succs[0]) && !a.forest.IsHeader(bb.Succs[1]) &&
			!a.cfg.EnablePredication {
			a.reportFailure("CFGNotUnderstood",
				"loop contains an unsupported conditional branch", br)
			if !extra {
				return false
			}
			result = false
		}
	}

	if !a.isUniformLoopNest(a.theLoop) {
		a.reportFailure("CFGNotUnderstood",
			"outer loop contains divergent loops", nil)
		if !extra {
			return false
		}
		result = false
	}

	if !a.setupOuterLoopInductions() {
		a.reportFailure("UnsupportedPhi",
			"loop with unsupported phi type found", nil)
		if !extra {
			return false
		}
		result = false
	}

	return result
}

// isUniformLoop reports whether lp's trip count is the same for every
// iteration of the outer loop under analysis: a canonical counter whose
// latch comparison tests the counter update against an outer-invariant
// bound.
func (a *Analysis) isUniformLoop(lp *loop.Loop) bool {
	if lp == a.theLoop {
		return true
	}

	counter, update := canonicalCounter(lp)
	if counter == nil {
		a.logger.Debugf("loop %s has no analyzable counter", lp)
		return false
	}

	latch := lp.Latch()
	if latch == nil {
		return false
	}
	br, ok := latch.Instrs[len(latch.Instrs)-1].(*ssa.If)
	if !ok {
		a.logger.Debugf("unsupported latch terminator in %s", lp)
		return false
	}
	cmp, ok := br.Cond.(*ssa.BinOp)
	if !ok || !isComparison(cmp.Op) {
		a.logger.Debugf("unsupported latch condition in %s", lp)
		return false
	}

	outer := a.theLoop
	if !(cmp.X == update && outer.IsInvariant(cmp.Y)) &&
		!(cmp.Y == update && outer.IsInvariant(cmp.X)) {
		a.logger.Debugf("latch condition of %s is not uniform", lp)
		return false
	}
	return true
}

// isUniformLoopNest applies isUniformLoop to lp and everything below it.
func (a *Analysis) isUniformLoopNest(lp *loop.Loop) bool {
	if !a.isUniformLoop(lp) {
		return false
	}
	for _, child := range lp.Children {
		if !a.isUniformLoopNest(child) {
			return false
		}
	}
	return true
}

// setupOuterLoopInductions requires every header phi of an outer loop
// to be an integer induction; reductions and recurrences across outer
// loops are not understood.
func (a *Analysis) setupOuterLoopInductions() bool {
	latch := a.theLoop.Latch()
	for _, instr := range a.theLoop.Header.Instrs {
		phi, ok := instr.(*ssa.Phi)
		if !ok {
			break
		}
		d, ok := iv.ClassifyInduction(phi, a.theLoop, a.pse, false)
		if !ok || d.Kind != iv.InductionInt {
			a.logger.Debugf("unsupported outer-loop phi %s", phi.Name())
			return false
		}
		a.addInductionPhi(phi, d, latch)
	}
	return true
}

// canonicalCounter finds a 0-start, add-1 counter phi of lp by direct
// inspection, returning the phi and its latch update value.
func canonicalCounter(lp *loop.Loop) (*ssa.Phi, ssa.Value) {
	latch := lp.Latch()
	if latch == nil {
		return nil, nil
	}
	for _, instr := range lp.Header.Instrs {
		phi, ok := instr.(*ssa.Phi)
		if !ok {
			break
		}
		if !veclib.IsInteger(phi.Type()) {
			continue
		}
		var start, update ssa.Value
		for i, pred := range phi.Block().Preds {
			if pred == latch {
				update = phi.Edges[i]
			} else {
				start = phi.Edges[i]
			}
		}
		c, ok := start.(*ssa.Const)
		if !ok || c.Value == nil || c.Int64() != 0 {
			continue
		}
		add, ok := update.(*ssa.BinOp)
		if !ok || add.Op != token.ADD {
			continue
		}
		one := func(v ssa.Value) bool {
			c, ok := v.(*ssa.Const)
			return ok && c.Value != nil && c.Int64() == 1
		}
		if (add.X == phi && one(add.Y)) || (add.Y == phi && one(add.X)) {
			return phi, update
		}
	}
	return nil, nil
}

func isComparison(op token.Token) bool {
	switch op {
	case token.EQL, token.NEQ, token.LSS, token.LEQ, token.GTR, token.GEQ:
		return true
	}
	return false
}
