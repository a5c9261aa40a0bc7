package legality

import (
	"fmt"

	"golang.org/x/tools/go/ssa"

	"github.com/veclab/loopvec/hint"
)

// CanVectorize runs the full legality analysis. When outerAllowed is
// false only innermost loops are considered. When the emitter allows
// extra analysis, checks after the first failure still run so that one
// pass reports every problem; otherwise the first failure wins.
func (a *Analysis) CanVectorize(outerAllowed bool) bool {
	result := true
	extra := a.ore.AllowExtraAnalysis()

	if !a.canVectorizeLoopNestCFG(a.theLoop) {
		if !extra {
			return false
		}
		result = false
	}

	if !a.theLoop.IsInnermost() {
		if !outerAllowed {
			a.reportFailure("CFGNotUnderstood",
				"outer loops are not supported", nil)
			return false
		}
		// Outer loops run a reduced, uniformity-based analysis; the
		// per-instruction and memory checks below assume an innermost
		// body and are deferred to the inner loops of the nest.
		if !a.canVectorizeOuterLoop() {
			a.reportFailure("UnsupportedOuterLoop",
				"unsupported outer loop", nil)
			return false
		}
		return result
	}

	a.logger.Debugf("found a loop: %s", a.theLoop)

	a.needsIfConversion = a.theLoop.NumBlocks() > 1
	if a.needsIfConversion && !a.canVectorizeWithIfConvert() {
		a.logger.Debugf("can't if-convert the loop")
		if !extra {
			return false
		}
		result = false
	}

	if !a.canVectorizeInstrs() {
		a.logger.Debugf("found unvectorizable instructions")
		if !extra {
			return false
		}
		result = false
	}

	if !a.canVectorizeMemory() {
		a.logger.Debugf("found unvectorizable memory operations")
		if !extra {
			return false
		}
		result = false
	}

	if result {
		a.logger.Debugf("legal to vectorize %s, may need runtime checks", a.theLoop)
	}

	// Too many assumptions make the runtime guard more expensive than
	// the vectorized body is worth.
	threshold := a.cfg.SCEVCheckThreshold
	if a.hints.GetForce() == hint.ForceEnabled {
		threshold = a.cfg.PragmaSCEVCheckThreshold
	}
	if a.pse.Predicate().Complexity() > threshold {
		a.reportFailure("TooManySCEVRunTimeChecks",
			fmt.Sprintf("too many assumptions need runtime verification (%d)",
				a.pse.Predicate().Complexity()), nil)
		if !extra {
			return false
		}
		result = false
	}

	return result
}

// CanFoldTailByMasking reports whether the scalar remainder iterations
// can be folded into the vector body under a lane mask instead of a
// separate epilogue loop. This requires a primary counter to build the
// mask from, no reductions whose final value a masked-off lane would
// corrupt, no values escaping the loop, and a body where every block
// tolerates predication.
func (a *Analysis) CanFoldTailByMasking() bool {
	if a.primary == nil {
		a.reportFailure("NoPrimaryInduction",
			"missing a primary induction variable for tail folding", nil)
		return false
	}

	if len(a.reductions) > 0 {
		a.reportFailure("ReductionFoldingTailByMasking",
			"loop with reductions cannot fold its tail", nil)
		return false
	}

	for v := range a.allowedExit {
		if user := a.liveOutUser(v); user != nil {
			a.reportFailure("LiveOutFoldingTailByMasking",
				"loop with live outs cannot fold its tail", user)
			return false
		}
	}

	// No address is unconditionally accessed once the whole body is
	// masked, so every block must be predicable with an empty safe set.
	noSafePtrs := map[ssa.Value]bool{}
	for _, bb := range a.theLoop.Blocks() {
		if !a.blockCanBePredicated(bb, noSafePtrs) {
			a.reportFailure("NoCFGForSelect",
				"control flow cannot be substituted for a select", nil)
			return false
		}
	}

	a.logger.Debugf("can fold tail by masking")
	return true
}

// liveOutUser returns a user of v outside the loop, nil if none.
func (a *Analysis) liveOutUser(v ssa.Value) ssa.Instruction {
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
