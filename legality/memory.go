package legality

import "github.com/veclab/loopvec/hint"

// canVectorizeMemory consults the dependence analyzer and folds its
// verdict into the analysis state: the runtime pointer checks it wants
// are booked against the requirements, and its assumptions join the
// shared predicate.
func (a *Analysis) canVectorizeMemory() bool {
	res := a.mem.Analyze(a.theLoop)

	if res.Report != nil {
		r := *res.Report
		r.Pass = hint.PassName
		if !r.Pos.IsValid() {
			r.Pos = a.ore.Position(a.theLoop.Pos())
		}
		if r.Function == "" {
			r.Function = funcName(a.theLoop)
		}
		a.ore.Emit(r)
	}

	if !res.CanVectorize {
		a.logger.Debugf("unsafe dependent memory operations in %s", a.theLoop)
		return false
	}

	if res.InvariantAddressDependence {
		a.reportFailure("CantVectorizeStoreToLoopInvariantAddress",
			"write to a loop invariant address could not be vectorized", nil)
		return false
	}

	a.reqs.AddRuntimePointerChecks(res.RuntimeChecks)
	if res.Predicate != nil {
		a.pse.Predicate().Append(res.Predicate)
	}
	return true
}
