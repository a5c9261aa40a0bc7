package memdep

import (
	"fmt"
	"go/token"

	"golang.org/x/tools/go/ssa"

	"github.com/veclab/loopvec/loop"
	"github.com/veclab/loopvec/remark"
	"github.com/veclab/loopvec/scev"
)

// access is one memory operation inside the loop.
type access struct {
	instr   ssa.Instruction
	addr    ssa.Value
	isStore bool
}

// Analysis is the built-in conservative dependence analyzer.
type Analysis struct {
	se    *scev.Analysis
	cache map[*loop.Loop]*Result
}

func New(se *scev.Analysis) *Analysis {
	return &Analysis{se: se, cache: make(map[*loop.Loop]*Result)}
}

// Analyze classifies every load/store pair of l. Results are memoized.
func (a *Analysis) Analyze(l *loop.Loop) *Result {
	if res, ok := a.cache[l]; ok {
		return res
	}
	res := a.analyze(l)
	a.cache[l] = res
	return res
}

func (a *Analysis) analyze(l *loop.Loop) *Result {
	res := &Result{CanVectorize: true, Predicate: &scev.Predicate{}}
	if l.Parallel {
		// The loop is annotated free of loop-carried dependences.
		return res
	}

	var accesses []access
	for _, b := range l.Blocks() {
		for _, instr := range b.Instrs {
			switch instr := instr.(type) {
			case *ssa.UnOp:
				if instr.Op == token.MUL {
					accesses = append(accesses, access{instr: instr, addr: instr.X})
				}
			case *ssa.Store:
				accesses = append(accesses, access{instr: instr, addr: instr.Addr, isStore: true})
			}
		}
	}

	for _, acc := range accesses {
		if acc.isStore && addrInvariant(acc.addr, l) {
			res.InvariantAddressDependence = true
		}
	}

	// Pairwise dependence triage by base object.
	checked := make(map[[2]ssa.Value]bool)
	for i := 0; i < len(accesses); i++ {
		for j := i + 1; j < len(accesses); j++ {
			x, y := accesses[i], accesses[j]
			if !x.isStore && !y.isStore {
				continue
			}
			bx, by := baseObject(x.addr), baseObject(y.addr)
			if bx != by {
				if provablyDistinct(bx, by) {
					continue
				}
				key := [2]ssa.Value{bx, by}
				if bx == nil || by == nil {
					return a.reject(res, l, "unknown address cannot be analyzed for dependences")
				}
				if !checked[key] && !checked[[2]ssa.Value{by, bx}] {
					checked[key] = true
					res.RuntimeChecks++
				}
				continue
			}
			// Same base: safe only when both touch the same strided
			// element each iteration.
			if a.sameElement(x.addr, y.addr, l) {
				continue
			}
			return a.reject(res, l, fmt.Sprintf(
				"unsafe dependent memory operations in loop (base %s)", baseName(bx)))
		}
	}
	return res
}

func (a *Analysis) reject(res *Result, l *loop.Loop, msg string) *Result {
	res.CanVectorize = false
	res.Report = &remark.Remark{
		Name:    "UnsafeDep",
		Kind:    remark.Analysis,
		Message: msg,
	}
	return res
}

// sameElement reports whether two addresses of one base provably denote
// the same element on each iteration.
func (a *Analysis) sameElement(x, y ssa.Value, l *loop.Loop) bool {
	ix, ok1 := x.(*ssa.IndexAddr)
	iy, ok2 := y.(*ssa.IndexAddr)
	if !ok1 || !ok2 {
		return x == y
	}
	if ix.Index == iy.Index {
		return true
	}
	ex := a.se.ValueExpr(ix.Index, l)
	ey := a.se.ValueExpr(iy.Index, l)
	if exprEqual(ex, ey) {
		return true
	}
	rx, ok1 := ex.(*scev.AddRec)
	ry, ok2 := ey.(*scev.AddRec)
	if !ok1 || !ok2 {
		return false
	}
	return exprEqual(rx.Start, ry.Start) && exprEqual(rx.Step, ry.Step)
}

// addrInvariant reports whether addr denotes the same location on every
// iteration: the base and every index are defined outside the loop.
func addrInvariant(addr ssa.Value, l *loop.Loop) bool {
	switch v := addr.(type) {
	case *ssa.IndexAddr:
		return addrInvariant(v.X, l) && l.IsInvariant(v.Index)
	case *ssa.FieldAddr:
		return addrInvariant(v.X, l)
	}
	return l.IsInvariant(addr)
}

func exprEqual(x, y scev.Expr) bool {
	if x == y {
		return true
	}
	cx, ok1 := scev.ConstValue(x)
	cy, ok2 := scev.ConstValue(y)
	if ok1 && ok2 {
		return cx == cy
	}
	ux, ok1 := x.(*scev.Unknown)
	uy, ok2 := y.(*scev.Unknown)
	return ok1 && ok2 && ux.V == uy.V
}

// baseObject follows address computations down to the underlying object.
func baseObject(addr ssa.Value) ssa.Value {
	for {
		switch v := addr.(type) {
		case *ssa.IndexAddr:
			addr = v.X
		case *ssa.FieldAddr:
			addr = v.X
		case *ssa.Slice:
			addr = v.X
		default:
			switch addr.(type) {
			case *ssa.Alloc, *ssa.Global, *ssa.Parameter, *ssa.FreeVar:
				return addr
			}
			return nil
		}
	}
}

// provablyDistinct reports whether two bases cannot overlap: separate
// allocations never alias each other or a global.
func provablyDistinct(x, y ssa.Value) bool {
	if x == nil || y == nil || x == y {
		return false
	}
	_, xAlloc := x.(*ssa.Alloc)
	_, yAlloc := y.(*ssa.Alloc)
	_, xGlobal := x.(*ssa.Global)
	_, yGlobal := y.(*ssa.Global)
	if xAlloc && (yAlloc || yGlobal) {
		return true
	}
	if yAlloc && xGlobal {
		return true
	}
	return false
}

func baseName(v ssa.Value) string {
	if v == nil {
		return "?"
	}
	return v.Name()
}
