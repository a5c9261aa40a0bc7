package legality

import "github.com/veclab/loopvec/loop"

// canVectorizeLoopCFG checks that lp has the canonical shape the
// transform relies on: a dedicated preheader to place runtime checks
// in, a single back edge, and a single exiting block that is also the
// latch, so the trip count is evaluated exactly once per iteration.
func (a *Analysis) canVectorizeLoopCFG(lp *loop.Loop) bool {
	result := true
	extra := a.ore.AllowExtraAnalysis()

	if lp.Preheader() == nil {
		a.reportFailure("CFGNotUnderstood",
			"loop control flow is not understood by vectorizer", nil)
		if !extra {
			return false
		}
		result = false
	}

	if lp.NumBackedges() != 1 {
		a.reportFailure("CFGNotUnderstood",
			"loop control flow is not understood by vectorizer", nil)
		if !extra {
			return false
		}
		result = false
	}

	if lp.ExitingBlock() == nil {
		a.reportFailure("CFGNotUnderstood",
			"loop control flow is not understood by vectorizer", nil)
		if !extra {
			return false
		}
		result = false
	}

	if lp.ExitingBlock() != nil && lp.ExitingBlock() != lp.Latch() {
		a.reportFailure("CFGNotUnderstood",
			"loop control flow is not understood by vectorizer", nil)
		if !extra {
			return false
		}
		result = false
	}

	return result
}

// canVectorizeLoopNestCFG applies the shape checks to lp and every loop
// nested inside it.
func (a *Analysis) canVectorizeLoopNestCFG(lp *loop.Loop) bool {
	result := true
	extra := a.ore.AllowExtraAnalysis()

	if !a.canVectorizeLoopCFG(lp) {
		if !extra {
			return false
		}
		result = false
	}
	for _, child := range lp.Children {
		if !a.canVectorizeLoopNestCFG(child) {
			if !extra {
				return false
			}
			result = false
		}
	}
	return result
}
