package iv_test

import (
	"strings"
	"testing"

	"golang.org/x/tools/go/ssa"

	"github.com/veclab/loopvec/iv"
	"github.com/veclab/loopvec/loop"
	"github.com/veclab/loopvec/scev"
	"github.com/veclab/loopvec/ssabuild"
	"github.com/veclab/loopvec/veclib"
)

func buildLoop(t *testing.T, src, name string) *loop.Loop {
	t.Helper()
	info, err := ssabuild.FromReader(strings.NewReader(src)).Default().Build()
	if err != nil {
		t.Fatalf("SSA build failed: %v", err)
	}
	fn, err := info.FindFunc(name)
	if err != nil {
		t.Fatalf("cannot find function %s: %v", name, err)
	}
	forest := loop.Find(fn)
	if len(forest.Roots) != 1 {
		t.Fatalf("expected 1 loop, got %d", len(forest.Roots))
	}
	return forest.Roots[0]
}

func headerPhis(l *loop.Loop) []*ssa.Phi {
	var phis []*ssa.Phi
	for _, instr := range l.Header.Instrs {
		phi, ok := instr.(*ssa.Phi)
		if !ok {
			break
		}
		phis = append(phis, phi)
	}
	return phis
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

// The sum loop has two header phis: a canonical induction and an
// integer add reduction. Classification must tell them apart.
func TestClassifySumLoop(t *testing.T) {
	l := buildLoop(t, sumSrc, "main.sum")
	pse := scev.NewPredicated(scev.NewAnalysis(), l)

	phis := headerPhis(l)
	if len(phis) != 2 {
		t.Fatalf("expected 2 header phis, got %d", len(phis))
	}

	inductions := 0
	reductions := 0
	for _, phi := range phis {
		if red, ok := iv.ClassifyReduction(phi, l); ok {
			reductions++
			if red.Kind != iv.RecurrenceAdd {
				t.Errorf("reduction kind = %v, want add", red.Kind)
			}
			if red.RequiresReassoc {
				t.Errorf("integer reduction must not require reassociation")
			}
			if red.ExitInstr == nil {
				t.Errorf("reduction has no exit instruction")
			}
			continue
		}
		d, ok := iv.ClassifyInduction(phi, l, pse, false)
		if !ok {
			t.Errorf("phi %s classified as neither reduction nor induction", phi.Name())
			continue
		}
		inductions++
		if d.Kind != iv.InductionInt {
			t.Errorf("induction kind = %v, want int", d.Kind)
		}
		if !d.IsCanonical() {
			t.Errorf("0-start 1-step induction should be canonical")
		}
		if step, ok := d.ConstStep(); !ok || step != 1 {
			t.Errorf("step = %v, %v, want 1", step, ok)
		}
	}
	if inductions != 1 || reductions != 1 {
		t.Errorf("got %d inductions and %d reductions, want 1 and 1",
			inductions, reductions)
	}
	if !pse.Predicate().IsAlwaysTrue() {
		t.Errorf("strict classification must not record assumptions")
	}
}

func TestDescendingInduction(t *testing.T) {
	s := `package main
	func down(a []int, n int) {
		i := n
		for {
			i--
			a[i] = 0
			if i <= 0 {
				break
			}
		}
	}
	func main() {}`

	l := buildLoop(t, s, "main.down")
	pse := scev.NewPredicated(scev.NewAnalysis(), l)
	phis := headerPhis(l)
	if len(phis) != 1 {
		t.Fatalf("expected 1 header phi, got %d", len(phis))
	}
	d, ok := iv.ClassifyInduction(phis[0], l, pse, false)
	if !ok {
		t.Fatal("descending loop counter not classified")
	}
	if step, ok := d.ConstStep(); !ok || step != -1 {
		t.Errorf("step = %v, %v, want -1", step, ok)
	}
	if d.IsCanonical() {
		t.Errorf("descending induction is not canonical")
	}
}

// An update bridged by width conversions is only an induction under the
// relaxed tier, which records a no-wrap assumption.
func TestNarrowedInduction(t *testing.T) {
	s := `package main
	func narrow(a []int, n int) {
		var i int16
		for {
			a[int(i)] = 0
			i = int16(int32(i) + 1)
			if int(i) >= n {
				break
			}
		}
	}
	func main() {}`

	l := buildLoop(t, s, "main.narrow")
	pse := scev.NewPredicated(scev.NewAnalysis(), l)
	phis := headerPhis(l)
	if len(phis) != 1 {
		t.Fatalf("expected 1 header phi, got %d", len(phis))
	}

	if _, ok := iv.ClassifyInduction(phis[0], l, pse, false); ok {
		t.Fatal("strict tier must reject a cast-bridged update")
	}
	d, ok := iv.ClassifyInduction(phis[0], l, pse, true)
	if !ok {
		t.Fatal("relaxed tier should accept a cast-bridged update")
	}
	if len(d.Casts) == 0 {
		t.Errorf("expected recorded casts")
	}
	if pse.Predicate().IsAlwaysTrue() {
		t.Errorf("relaxed classification must record an assumption")
	}
}

func TestFloatInduction(t *testing.T) {
	s := `package main
	func fstep(a []float64, n int) {
		x := 1.0
		i := 0
		for {
			a[i] = x
			x += 0.5
			i++
			if i >= n {
				break
			}
		}
	}
	func main() {}`

	l := buildLoop(t, s, "main.fstep")
	pse := scev.NewPredicated(scev.NewAnalysis(), l)

	var fphi *ssa.Phi
	for _, phi := range headerPhis(l) {
		if veclib.IsFloat(phi.Type()) {
			fphi = phi
		}
	}
	if fphi == nil {
		t.Fatal("no float phi in header")
	}
	d, ok := iv.ClassifyInduction(fphi, l, pse, false)
	if !ok {
		t.Fatal("float induction not classified")
	}
	if d.Kind != iv.InductionFloat {
		t.Errorf("kind = %v, want float", d.Kind)
	}
	if !d.RequiresReassoc {
		t.Errorf("float induction requires reassociation permission")
	}

	l.FastMath = true
	d, ok = iv.ClassifyInduction(fphi, l, pse, false)
	if !ok || d.RequiresReassoc {
		t.Errorf("fastmath loop should lift the reassociation requirement")
	}
}

func TestFloatReduction(t *testing.T) {
	s := `package main
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

	l := buildLoop(t, s, "main.fsum")
	var fphi *ssa.Phi
	for _, phi := range headerPhis(l) {
		if veclib.IsFloat(phi.Type()) {
			fphi = phi
		}
	}
	if fphi == nil {
		t.Fatal("no float phi in header")
	}
	red, ok := iv.ClassifyReduction(fphi, l)
	if !ok {
		t.Fatal("float sum not classified as reduction")
	}
	if red.Kind != iv.RecurrenceFAdd {
		t.Errorf("kind = %v, want fadd", red.Kind)
	}
	if !red.RequiresReassoc {
		t.Errorf("float reduction requires reassociation permission")
	}

	l.FastMath = true
	red, ok = iv.ClassifyReduction(fphi, l)
	if !ok || red.RequiresReassoc {
		t.Errorf("fastmath loop should lift the reassociation requirement")
	}
}

// An accumulation observed mid-loop by another computation is not a
// reduction: that user would see a partial sum.
func TestReductionValueObservedInLoop(t *testing.T) {
	s := `package main
	func bad(a []int, n int) int {
		s := 0
		t := 0
		i := 0
		for {
			s += a[i]
			t = s * 2
			i++
			if i >= n {
				break
			}
		}
		return t
	}
	func main() {}`

	l := buildLoop(t, s, "main.bad")
	for _, phi := range headerPhis(l) {
		if red, ok := iv.ClassifyReduction(phi, l); ok && red.Kind == iv.RecurrenceAdd {
			t.Errorf("chain observed by an in-loop multiply should not classify")
		}
	}
}

// A two-step accumulation is still one reduction chain.
func TestReductionChain(t *testing.T) {
	s := `package main
	func sum2(a, b []int, n int) int {
		s := 0
		i := 0
		for {
			s += a[i]
			s += b[i]
			i++
			if i >= n {
				break
			}
		}
		return s
	}
	func main() {}`

	l := buildLoop(t, s, "main.sum2")
	found := false
	for _, phi := range headerPhis(l) {
		if red, ok := iv.ClassifyReduction(phi, l); ok {
			found = true
			if red.Kind != iv.RecurrenceAdd {
				t.Errorf("kind = %v, want add", red.Kind)
			}
		}
	}
	if !found {
		t.Errorf("two-step accumulation should classify as one reduction")
	}
}

func TestFirstOrderRecurrence(t *testing.T) {
	s := `package main
	func diff(a, b []float64, n int) {
		prev := 0.0
		i := 0
		for {
			cur := a[i]
			b[i] = cur - prev
			prev = cur
			i++
			if i >= n {
				break
			}
		}
	}
	func main() {}`

	l := buildLoop(t, s, "main.diff")
	pse := scev.NewPredicated(scev.NewAnalysis(), l)
	sinkAfter := make(map[ssa.Instruction]ssa.Instruction)

	matched := 0
	for _, phi := range headerPhis(l) {
		if _, ok := iv.ClassifyReduction(phi, l); ok {
			continue
		}
		if _, ok := iv.ClassifyInduction(phi, l, pse, false); ok {
			continue
		}
		if iv.IsFirstOrderRecurrence(phi, l, sinkAfter) {
			matched++
		}
	}
	if matched != 1 {
		t.Errorf("expected 1 first-order recurrence, got %d", matched)
	}
}
