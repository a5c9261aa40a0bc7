// Package memdep answers the memory side of vectorization legality: can
// the loads and stores of a loop be reordered across iterations, and at
// what runtime-check cost.
//
// The legality analysis treats this as an external collaborator behind the
// Analyzer interface and interprets only its verdict. A conservative
// built-in implementation is provided; it proves the easy cases (distinct
// allocation bases, consecutive strided accesses of the same base) and
// asks for runtime pointer checks or gives up on the rest.
package memdep

import (
	"github.com/veclab/loopvec/loop"
	"github.com/veclab/loopvec/remark"
	"github.com/veclab/loopvec/scev"
)

// Result is the memory legality verdict for one loop.
type Result struct {
	// CanVectorize is false when a loop-carried dependence makes any
	// reordering of the memory operations unsafe.
	CanVectorize bool
	// RuntimeChecks counts the pointer-overlap checks the vectorized loop
	// must execute before entry.
	RuntimeChecks int
	// InvariantAddressDependence is set when a store writes through a
	// loop-invariant address: every vector lane would write the same
	// location with no defined ordering.
	InvariantAddressDependence bool
	// Predicate carries assumptions the analysis made; the caller merges
	// it into the shared assumption set.
	Predicate *scev.Predicate
	// Report optionally explains a negative verdict; the caller emits it
	// verbatim.
	Report *remark.Remark
}

// Analyzer is the dependence-analysis collaborator, keyed by loop. An
// Analyzer is expected to memoize: the legality analysis queries it at
// most once per run, but several runs may share one Analyzer.
type Analyzer interface {
	Analyze(l *loop.Loop) *Result
}

// Static is an Analyzer returning a fixed result, for tests.
type Static struct {
	Result *Result
}

func (s *Static) Analyze(*loop.Loop) *Result { return s.Result }
