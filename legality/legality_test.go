package legality_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/veclab/loopvec/hint"
	"github.com/veclab/loopvec/legality"
	"github.com/veclab/loopvec/loop"
	"github.com/veclab/loopvec/memdep"
	"github.com/veclab/loopvec/remark"
	"github.com/veclab/loopvec/scev"
	"github.com/veclab/loopvec/ssabuild"
	"github.com/veclab/loopvec/veclib"
)

// run holds the collaborators of one analysis, wired the way the
// analyzer front end wires them.
type run struct {
	l    *loop.Loop
	la   *legality.Analysis
	ore  *remark.Emitter
	h    *hint.Hints
	reqs *legality.Requirements
	cfg  legality.Config
}

func setup(t *testing.T, src, fname string, md *hint.Metadata, collectAll bool) *run {
	t.Helper()
	return wire(t, src, fname, md, collectAll, nil)
}

// wire assembles an analysis the way the analyzer front end does; a
// non-nil mem replaces the built-in dependence analyzer.
func wire(t *testing.T, src, fname string, md *hint.Metadata, collectAll bool, mem memdep.Analyzer) *run {
	t.Helper()
	info, err := ssabuild.FromReader(strings.NewReader(src)).Default().Build()
	if err != nil {
		t.Fatalf("SSA build failed: %v", err)
	}
	fn, err := info.FindFunc(fname)
	if err != nil {
		t.Fatalf("cannot find function %s: %v", fname, err)
	}
	forest := loop.Find(fn)
	if len(forest.Roots) != 1 {
		t.Fatalf("expected 1 root loop, got %d", len(forest.Roots))
	}
	l := forest.Roots[0]

	cfg := legality.DefaultConfig()
	ore := remark.NewEmitter(info.FSet, nil, collectAll)
	h := hint.New(l, md, cfg.Hint, ore, nil)
	se := scev.NewAnalysis()
	if mem == nil {
		mem = memdep.New(se)
	}
	reqs := legality.NewRequirements(ore)
	la := legality.New(l, forest, scev.NewPredicated(se, l),
		mem, veclib.NewRegistry(), h, reqs, ore, cfg)
	return &run{l: l, la: la, ore: ore, h: h, reqs: reqs, cfg: cfg}
}

func (r *run) hasRemark(name string) bool {
	for _, rk := range r.ore.Remarks() {
		if rk.Name == name {
			return true
		}
	}
	return false
}

func (r *run) remarkNames() []string {
	var names []string
	for _, rk := range r.ore.Remarks() {
		names = append(names, rk.Name)
	}
	return names
}

const sumSrc = `package main
func sum(a []int, n int) int {
	s := 0
	i := 0
	for {
		s += a[i]
		i++
		if i >= n {
			break
		}
	}
	return s
}
func main() {}`

func TestVectorizableSumLoop(t *testing.T) {
	r := setup(t, sumSrc, "main.sum", nil, false)
	if !r.la.CanVectorize(false) {
		t.Fatalf("sum loop should be vectorizable, remarks: %v", r.remarkNames())
	}
	if r.la.PrimaryInduction() == nil {
		t.Errorf("expected a primary induction")
	}
	if len(r.la.Inductions()) != 1 {
		t.Errorf("expected 1 induction, got %d", len(r.la.Inductions()))
	}
	if len(r.la.Reductions()) != 1 {
		t.Errorf("expected 1 reduction, got %d", len(r.la.Reductions()))
	}
	if r.la.RequiresIfConversion() {
		t.Errorf("single-block loop needs no if-conversion")
	}
	if r.reqs.DoesNotMeet(r.l, r.h, r.cfg) {
		t.Errorf("integer sum has no outstanding requirements: %v", r.remarkNames())
	}
	if r.la.WidestInductionType() == nil {
		t.Errorf("expected a widest induction type")
	}
}

// With several canonical counters the widest one drives the vector
// iteration, regardless of the order they are classified in.
func TestPrimaryInductionWidest(t *testing.T) {
	s := `package main
	func two(b []byte, a []int64, n int64) {
		var i int32
		var j int64
		for {
			b[i] = 0
			a[j] = 0
			i++
			j++
			if j >= n {
				break
			}
		}
	}
	func main() {}`

	r := setup(t, s, "main.two", nil, false)
	if !r.la.CanVectorize(false) {
		t.Fatalf("two-counter loop should be vectorizable, remarks: %v", r.remarkNames())
	}
	if len(r.la.Inductions()) != 2 {
		t.Fatalf("expected 2 inductions, got %d", len(r.la.Inductions()))
	}
	primary := r.la.PrimaryInduction()
	if primary == nil {
		t.Fatal("expected a primary induction")
	}
	if veclib.ScalarBits(primary.Type()) != 64 {
		t.Errorf("the 64-bit counter should be primary, got %s", primary.Type())
	}
}

// A top-tested for loop evaluates its condition in the header, so the
// exiting block is not the latch.
func TestTopTestedLoopRejected(t *testing.T) {
	s := `package main
	func zero(a []int, n int) {
		for i := 0; i < n; i++ {
			a[i] = 0
		}
	}
	func main() {}`

	r := setup(t, s, "main.zero", nil, false)
	if r.la.CanVectorize(false) {
		t.Fatal("top-tested loop must be rejected")
	}
	if !r.hasRemark("CFGNotUnderstood") {
		t.Errorf("expected CFGNotUnderstood, got %v", r.remarkNames())
	}
}

func TestMultipleExitsRejected(t *testing.T) {
	s := `package main
	func find(a []int, n int) int {
		i := 0
		for {
			if a[i] == 0 {
				break
			}
			i++
			if i >= n {
				break
			}
		}
		return i
	}
	func main() {}`

	r := setup(t, s, "main.find", nil, false)
	if r.la.CanVectorize(false) {
		t.Fatal("multi-exit loop must be rejected")
	}
	if !r.hasRemark("CFGNotUnderstood") {
		t.Errorf("expected CFGNotUnderstood, got %v", r.remarkNames())
	}
}

// While no runtime assumption guards the analysis, any escaping value
// can be recomputed after the loop and is therefore allowed out.
func TestEscapingValueRecomputable(t *testing.T) {
	s := `package main
	func escape(n int) int {
		i := 0
		j := 0
		for {
			j = i * 2
			i++
			if i >= n {
				break
			}
		}
		return j
	}
	func main() {}`

	r := setup(t, s, "main.escape", nil, false)
	if !r.la.CanVectorize(false) {
		t.Fatalf("assumption-free escape should be accepted, remarks: %v", r.remarkNames())
	}
}

// Once the analysis leans on a runtime assumption, escaping values can
// no longer be recomputed safely after the loop. The narrowed counter
// update below is only an induction under a no-wrap assumption.
func TestValueUsedOutsideLoop(t *testing.T) {
	s := `package main
	func escape(a []int64, n int) int {
		last := 0
		i := 0
		for {
			a[i] = 1
			last = i * 2
			i = int(int8(i) + 1)
			if i >= n {
				break
			}
		}
		return last
	}
	func main() {}`

	r := setup(t, s, "main.escape", nil, false)
	if r.la.CanVectorize(false) {
		t.Fatal("escape under a runtime assumption must be rejected")
	}
	if !r.hasRemark("ValueUsedOutsideLoop") {
		t.Errorf("expected ValueUsedOutsideLoop, got %v", r.remarkNames())
	}
}

func TestNoInductionVariable(t *testing.T) {
	s := `package main
	var done bool
	func wait(a []int) int {
		s := 0
		for {
			s += a[0]
			if done {
				break
			}
		}
		return s
	}
	func main() {}`

	r := setup(t, s, "main.wait", nil, false)
	if r.la.CanVectorize(false) {
		t.Fatal("loop without an induction must be rejected")
	}
	if !r.hasRemark("NoInductionVariable") {
		t.Errorf("expected NoInductionVariable, got %v", r.remarkNames())
	}
}

func TestNoIntegerInduction(t *testing.T) {
	s := `package main
	func fonly() float64 {
		x := 0.0
		for {
			x += 1.0
			if x >= 100 {
				break
			}
		}
		return x
	}
	func main() {}`

	r := setup(t, s, "main.fonly", nil, false)
	if r.la.CanVectorize(false) {
		t.Fatal("float-only induction must be rejected")
	}
	if !r.hasRemark("NoIntegerInductionVariable") {
		t.Errorf("expected NoIntegerInductionVariable, got %v", r.remarkNames())
	}
}

func TestConditionalStoreMasked(t *testing.T) {
	s := `package main
	func clamp(a []int, n int) {
		i := 0
		for {
			if a[i] < 0 {
				a[i] = 0
			}
			i++
			if i >= n {
				break
			}
		}
	}
	func main() {}`

	r := setup(t, s, "main.clamp", nil, false)
	if !r.la.CanVectorize(false) {
		t.Fatalf("if-convertible loop should be vectorizable, remarks: %v", r.remarkNames())
	}
	if !r.la.RequiresIfConversion() {
		t.Errorf("multi-block loop requires if-conversion")
	}
	if len(r.la.MaskedOps()) == 0 {
		t.Errorf("the conditional store should be recorded as masked")
	}
}

func TestDivisionNotPredicable(t *testing.T) {
	s := `package main
	func div(a, b []int, n int) {
		i := 0
		for {
			if b[i] != 0 {
				a[i] = a[i] / b[i]
			}
			i++
			if i >= n {
				break
			}
		}
	}
	func main() {}`

	r := setup(t, s, "main.div", nil, false)
	if r.la.CanVectorize(false) {
		t.Fatal("a guarded division cannot be executed under a mask")
	}
	if !r.hasRemark("NoCFGForSelect") {
		t.Errorf("expected NoCFGForSelect, got %v", r.remarkNames())
	}
}

func TestCallRejected(t *testing.T) {
	s := `package main
	//go:noinline
	func step(x int) int { return x*x + 1 }
	func apply(a []int, n int) {
		i := 0
		for {
			a[i] = step(a[i])
			i++
			if i >= n {
				break
			}
		}
	}
	func main() {}`

	r := setup(t, s, "main.apply", nil, false)
	if r.la.CanVectorize(false) {
		t.Fatal("loop with an arbitrary call must be rejected")
	}
	if !r.hasRemark("CantVectorizeCall") {
		t.Errorf("expected CantVectorizeCall, got %v", r.remarkNames())
	}
}

func TestMathCallVectorizable(t *testing.T) {
	s := `package main
	import "math"
	func roots(a, b []float64, n int) {
		i := 0
		for {
			b[i] = math.Sqrt(a[i])
			i++
			if i >= n {
				break
			}
		}
	}
	func main() {}`

	r := setup(t, s, "main.roots", nil, false)
	if !r.la.CanVectorize(false) {
		t.Fatalf("math.Sqrt loop should be vectorizable, remarks: %v", r.remarkNames())
	}
	if r.reqs.NumRuntimePointerChecks() != 1 {
		t.Errorf("expected 1 runtime pointer check, got %d",
			r.reqs.NumRuntimePointerChecks())
	}
}

func TestUnsafeDependence(t *testing.T) {
	s := `package main
	func shift(a []int, n int) {
		i := 0
		for {
			a[i] = a[i+1]
			i++
			if i >= n {
				break
			}
		}
	}
	func main() {}`

	r := setup(t, s, "main.shift", nil, false)
	if r.la.CanVectorize(false) {
		t.Fatal("loop-carried dependence must be rejected")
	}
	if !r.hasRemark("UnsafeDep") {
		t.Errorf("expected UnsafeDep, got %v", r.remarkNames())
	}
}

func TestInvariantStoreRejected(t *testing.T) {
	s := `package main
	func last(a []int, n int) {
		i := 0
		for {
			a[0] = i
			i++
			if i >= n {
				break
			}
		}
	}
	func main() {}`

	r := setup(t, s, "main.last", nil, false)
	if r.la.CanVectorize(false) == true {
		t.Fatal("store to an invariant address must be rejected")
	}
	if !r.hasRemark("CantVectorizeStoreToLoopInvariantAddress") {
		t.Errorf("expected CantVectorizeStoreToLoopInvariantAddress, got %v", r.remarkNames())
	}
}

// Floating-point reductions need explicit permission to reorder;
// the requirement is tested at the end of the run.
func TestFloatReductionRequirements(t *testing.T) {
	fsum := `package main
	func fsum(a []float64, n int) float64 {
		s := 0.0
		i := 0
		for {
			s += a[i]
			i++
			if i >= n {
				break
			}
		}
		return s
	}
	func main() {}`

	r := setup(t, fsum, "main.fsum", nil, false)
	if !r.la.CanVectorize(false) {
		t.Fatalf("fsum should pass legality, remarks: %v", r.remarkNames())
	}
	if !r.reqs.DoesNotMeet(r.l, r.h, r.cfg) {
		t.Fatal("reassociation without permission must fail the requirements")
	}
	if !r.hasRemark("CantReorderFPOps") {
		t.Errorf("expected CantReorderFPOps, got %v", r.remarkNames())
	}

	// A vectorize(enable) pragma accepts the reordering.
	forced := hint.NewMetadata(hint.Entry{Name: "loopvec.vectorize.enable", Value: 1})
	r = setup(t, fsum, "main.fsum", forced, false)
	if !r.la.CanVectorize(false) {
		t.Fatalf("fsum should pass legality, remarks: %v", r.remarkNames())
	}
	if r.reqs.DoesNotMeet(r.l, r.h, r.cfg) {
		t.Errorf("forced vectorization accepts the reordering: %v", r.remarkNames())
	}
}

// Runtime-check pressure beyond the default bound only blocks a loop
// whose operations cannot be reordered; the absolute bound always binds.
func TestMemcheckThresholdReordering(t *testing.T) {
	r := setup(t, sumSrc, "main.sum", nil, false)
	if !r.la.CanVectorize(false) {
		t.Fatalf("sum should pass legality, remarks: %v", r.remarkNames())
	}
	r.reqs.AddRuntimePointerChecks(9)
	if r.reqs.DoesNotMeet(r.l, r.h, r.cfg) {
		t.Errorf("9 checks with reordering allowed must pass: %v", r.remarkNames())
	}

	r.reqs.AddRuntimePointerChecks(120)
	if !r.reqs.DoesNotMeet(r.l, r.h, r.cfg) {
		t.Fatal("129 checks exceed the absolute bound")
	}
	if !r.hasRemark("CantReorderMemOps") {
		t.Errorf("expected CantReorderMemOps, got %v", r.remarkNames())
	}
}

// Both requirements are always evaluated so one run reports both.
func TestRequirementsReportBoth(t *testing.T) {
	s := `package main
	func spread(a []float64, b, c, d, e, f []float64, n int, k float64) float64 {
		s := 0.0
		i := 0
		for {
			s += a[i]
			b[i] = k
			c[i] = k
			d[i] = k
			e[i] = k
			f[i] = k
			i++
			if i >= n {
				break
			}
		}
		return s
	}
	func main() {}`

	r := setup(t, s, "main.spread", nil, false)
	if !r.la.CanVectorize(false) {
		t.Fatalf("spread should pass legality, remarks: %v", r.remarkNames())
	}
	if !r.reqs.DoesNotMeet(r.l, r.h, r.cfg) {
		t.Fatal("requirements should fail")
	}
	if !r.hasRemark("CantReorderFPOps") || !r.hasRemark("CantReorderMemOps") {
		t.Errorf("expected both requirement remarks, got %v", r.remarkNames())
	}
}

// With extra analysis allowed, independent failures are all reported;
// without it, the first failure stops the run.
func TestCollectAllReasons(t *testing.T) {
	s := `package main
	//go:noinline
	func step(x int) int { return x*x + 1 }
	func both(a []int, n int) {
		for i := 0; i < n; i++ {
			a[i] = step(a[i])
		}
	}
	func main() {}`

	fast := setup(t, s, "main.both", nil, false)
	if fast.la.CanVectorize(false) {
		t.Fatal("loop must be rejected")
	}
	collect := setup(t, s, "main.both", nil, true)
	if collect.la.CanVectorize(false) {
		t.Fatal("loop must be rejected")
	}
	if len(collect.ore.Remarks()) <= len(fast.ore.Remarks()) {
		t.Errorf("collect mode should report more reasons: fast=%v collect=%v",
			fast.remarkNames(), collect.remarkNames())
	}
	if !collect.hasRemark("CFGNotUnderstood") || !collect.hasRemark("CantVectorizeCall") {
		t.Errorf("expected both failure reasons, got %v", collect.remarkNames())
	}
}

// Every recorded assumption becomes a runtime check; past a bound the
// guard costs more than the vector body is worth. An enable pragma
// raises the bound.
func TestTooManySCEVChecks(t *testing.T) {
	pred := &scev.Predicate{}
	for i := 0; i < 17; i++ {
		pred.Add(scev.Assumption{
			Kind: fmt.Sprintf("no-overlap-%d", i),
			Msg:  "address ranges must not overlap",
		})
	}
	mem := &memdep.Static{Result: &memdep.Result{CanVectorize: true, Predicate: pred}}

	r := wire(t, sumSrc, "main.sum", nil, false, mem)
	if r.la.CanVectorize(false) {
		t.Fatal("17 assumptions exceed the default bound")
	}
	if !r.hasRemark("TooManySCEVRunTimeChecks") {
		t.Errorf("expected TooManySCEVRunTimeChecks, got %v", r.remarkNames())
	}

	forced := hint.NewMetadata(hint.Entry{Name: "loopvec.vectorize.enable", Value: 1})
	r = wire(t, sumSrc, "main.sum", forced, false, mem)
	if !r.la.CanVectorize(false) {
		t.Errorf("an enable pragma relaxes the bound, remarks: %v", r.remarkNames())
	}
}

func TestFoldTailByMasking(t *testing.T) {
	scale := `package main
	func scale(a []int, n, k int) {
		i := 0
		for {
			a[i] = a[i] * k
			i++
			if i >= n {
				break
			}
		}
	}
	func main() {}`

	r := setup(t, scale, "main.scale", nil, false)
	if !r.la.CanVectorize(false) {
		t.Fatalf("scale should pass legality, remarks: %v", r.remarkNames())
	}
	if !r.la.CanFoldTailByMasking() {
		t.Errorf("scale should fold its tail, remarks: %v", r.remarkNames())
	}

	// Reductions keep their final value in a lane the mask may disable.
	r = setup(t, sumSrc, "main.sum", nil, false)
	if !r.la.CanVectorize(false) {
		t.Fatalf("sum should pass legality")
	}
	if r.la.CanFoldTailByMasking() {
		t.Errorf("reduction loop must not fold its tail")
	}
	if !r.hasRemark("ReductionFoldingTailByMasking") {
		t.Errorf("expected ReductionFoldingTailByMasking, got %v", r.remarkNames())
	}
}

func TestFoldTailLiveOut(t *testing.T) {
	s := `package main
	func count(n int) int {
		i := 0
		for {
			i++
			if i >= n {
				break
			}
		}
		return i
	}
	func main() {}`

	r := setup(t, s, "main.count", nil, false)
	if !r.la.CanVectorize(false) {
		t.Fatalf("count should pass legality, remarks: %v", r.remarkNames())
	}
	if r.la.CanFoldTailByMasking() {
		t.Errorf("loop with a live-out counter must not fold its tail")
	}
	if !r.hasRemark("LiveOutFoldingTailByMasking") {
		t.Errorf("expected LiveOutFoldingTailByMasking, got %v", r.remarkNames())
	}
}

func TestOuterLoopUniform(t *testing.T) {
	s := `package main
	func nest(a []int, n int) {
		i := 0
		for {
			j := 0
			for {
				a[i*n+j] = 0
				j++
				if j >= n {
					break
				}
			}
			i++
			if i >= n {
				break
			}
		}
	}
	func main() {}`

	r := setup(t, s, "main.nest", nil, false)
	if r.l.IsInnermost() {
		t.Fatal("expected an outer loop")
	}
	if !r.la.CanVectorize(true) {
		t.Errorf("uniform outer nest should be accepted, remarks: %v", r.remarkNames())
	}
	if len(r.la.Inductions()) == 0 {
		t.Errorf("outer analysis should classify the outer induction")
	}

	r = setup(t, s, "main.nest", nil, false)
	if r.la.CanVectorize(false) {
		t.Errorf("outer loop must be rejected when outer analysis is off")
	}
}

// An inner loop whose bound changes per outer iteration is divergent.
func TestOuterLoopDivergent(t *testing.T) {
	s := `package main
	func tri(a []int, n int) {
		i := 0
		for {
			j := 0
			for {
				a[j] = i
				j++
				if j >= i {
					break
				}
			}
			i++
			if i >= n {
				break
			}
		}
	}
	func main() {}`

	r := setup(t, s, "main.tri", nil, false)
	if r.l.IsInnermost() {
		t.Fatal("expected an outer loop")
	}
	if r.la.CanVectorize(true) {
		t.Error("divergent inner trip count must be rejected")
	}
	if !r.hasRemark("CFGNotUnderstood") && !r.hasRemark("UnsupportedOuterLoop") {
		t.Errorf("expected an outer-loop rejection, got %v", r.remarkNames())
	}
}
