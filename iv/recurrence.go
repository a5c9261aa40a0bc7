package iv

import (
	"go/token"

	"golang.org/x/tools/go/ssa"

	"github.com/veclab/loopvec/loop"
)

// IsFirstOrderRecurrence decides whether phi carries the previous
// iteration's value of another in-loop expression. Such phis vectorize by
// shuffling the previous vector against the current one, provided every
// in-loop user executes after the previous value is available; users that
// do not are recorded in sinkAfter so the transform can move them, and
// classification fails when a user cannot be moved.
func IsFirstOrderRecurrence(phi *ssa.Phi, l *loop.Loop, sinkAfter map[ssa.Instruction]ssa.Instruction) bool {
	if len(phi.Edges) != 2 || phi.Block() != l.Header {
		return false
	}
	_, next, ok := splitEdges(phi, l)
	if !ok {
		return false
	}
	prev, ok := next.(ssa.Instruction)
	if !ok || !l.ContainsInstr(prev) {
		return false
	}
	if _, isPhi := prev.(*ssa.Phi); isPhi && prev.Block() == l.Header {
		return false
	}
	// The previous value must not feed from the phi, directly or
	// indirectly, or this is a cyclic computation, not a plain delay.
	if reaches(prev, phi, l, make(map[ssa.Instruction]bool)) {
		return false
	}

	prevBlock := prev.Block()
	refs := phi.Referrers()
	if refs == nil {
		return true
	}
	for _, user := range *refs {
		if !l.ContainsInstr(user) {
			continue
		}
		if user == prev {
			continue
		}
		if _, ok := user.(*ssa.DebugRef); ok {
			continue
		}
		if prevBlock.Dominates(user.Block()) && user.Block() != prevBlock {
			continue
		}
		// The user runs before the previous value exists; it must be
		// sinkable below it.
		if _, isPhi := user.(*ssa.Phi); isPhi {
			return false
		}
		if !canSink(user, l) {
			return false
		}
		sinkAfter[user] = prev
	}
	return true
}

// reaches reports whether the operand graph of instr reaches target
// without leaving the loop.
func reaches(instr ssa.Instruction, target ssa.Value, l *loop.Loop, seen map[ssa.Instruction]bool) bool {
	if seen[instr] {
		return false
	}
	seen[instr] = true
	for _, op := range instr.Operands(nil) {
		if *op == target {
			return true
		}
		if next, ok := (*op).(ssa.Instruction); ok && l.ContainsInstr(next) {
			if reaches(next, target, l, seen) {
				return true
			}
		}
	}
	return false
}

// canSink reports whether instr can be moved later in the loop body: it
// must not touch memory or have side effects, and must have no in-loop
// users of its own that would also need moving.
func canSink(instr ssa.Instruction, l *loop.Loop) bool {
	switch instr.(type) {
	case *ssa.UnOp, *ssa.BinOp, *ssa.Convert, *ssa.ChangeType:
	default:
		return false
	}
	if u, ok := instr.(*ssa.UnOp); ok && u.Op == token.MUL {
		return false // memory load, moving it changes what is observed
	}
	v, ok := instr.(ssa.Value)
	if !ok || v.Referrers() == nil {
		return true
	}
	for _, ref := range *v.Referrers() {
		if _, ok := ref.(*ssa.DebugRef); ok {
			continue
		}
		if l.ContainsInstr(ref) {
			return false
		}
	}
	return true
}
