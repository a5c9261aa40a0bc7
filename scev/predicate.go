package scev

import (
	"fmt"
	"strings"

	"golang.org/x/tools/go/ssa"

	"github.com/veclab/loopvec/loop"
)

// Assumption is one runtime-checkable simplifying assumption, e.g. that a
// step value loaded before the loop does not change, or that two address
// ranges do not overlap.
type Assumption struct {
	Kind string    // short machine tag, e.g. "invariant-step"
	V    ssa.Value // subject value, may be nil
	Msg  string    // human readable description
}

func (a Assumption) String() string {
	if a.V != nil {
		return fmt.Sprintf("%s(%s)", a.Kind, a.V.Name())
	}
	return a.Kind
}

// Predicate is an ordered set of assumptions. The empty predicate is
// always true. Every assumption adds to the complexity, which the
// orchestrator compares against a threshold: each one becomes a runtime
// check in the vectorized program.
type Predicate struct {
	assumptions []Assumption
}

// IsAlwaysTrue reports whether the predicate holds unconditionally.
func (p *Predicate) IsAlwaysTrue() bool { return len(p.assumptions) == 0 }

// Complexity returns the number of distinct assumptions.
func (p *Predicate) Complexity() int { return len(p.assumptions) }

// Assumptions returns the assumptions in insertion order.
func (p *Predicate) Assumptions() []Assumption { return p.assumptions }

// Add records an assumption, deduplicating by kind and subject.
func (p *Predicate) Add(a Assumption) {
	for _, have := range p.assumptions {
		if have.Kind == a.Kind && have.V == a.V {
			return
		}
	}
	p.assumptions = append(p.assumptions, a)
}

// Append merges all assumptions of other into p.
func (p *Predicate) Append(other *Predicate) {
	if other == nil {
		return
	}
	for _, a := range other.assumptions {
		p.Add(a)
	}
}

func (p *Predicate) String() string {
	if p.IsAlwaysTrue() {
		return "true"
	}
	var parts []string
	for _, a := range p.assumptions {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, " && ")
}

// Predicated pairs a scalar evolution analysis with the assumption
// predicate accumulated while analyzing one loop. Queries through it may
// register assumptions; the predicate outlives the analysis run and is
// consumed by the downstream transform to emit runtime checks.
type Predicated struct {
	Loop *loop.Loop

	se   *Analysis
	pred *Predicate
}

func NewPredicated(se *Analysis, l *loop.Loop) *Predicated {
	return &Predicated{Loop: l, se: se, pred: &Predicate{}}
}

// SE returns the underlying analysis.
func (p *Predicated) SE() *Analysis { return p.se }

// Predicate returns the accumulated assumption predicate.
func (p *Predicated) Predicate() *Predicate { return p.pred }

// Assume records a new assumption.
func (p *Predicated) Assume(a Assumption) { p.pred.Add(a) }

// ValueExpr returns the scalar evolution of v relative to the analyzed loop.
func (p *Predicated) ValueExpr(v ssa.Value) Expr {
	return p.se.ValueExpr(v, p.Loop)
}

// IsInvariant reports whether v is invariant in the analyzed loop, without
// adding assumptions.
func (p *Predicated) IsInvariant(v ssa.Value) bool {
	return p.se.IsInvariant(v, p.Loop)
}
