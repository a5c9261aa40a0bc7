package iv

import (
	"go/token"

	"golang.org/x/tools/go/ssa"

	"github.com/veclab/loopvec/loop"
	"github.com/veclab/loopvec/veclib"
)

// RecurrenceKind is the operation a reduction accumulates with.
type RecurrenceKind int

const (
	RecurrenceAdd RecurrenceKind = iota
	RecurrenceMul
	RecurrenceAnd
	RecurrenceOr
	RecurrenceXor
	RecurrenceFAdd
	RecurrenceFMul
)

func (k RecurrenceKind) String() string {
	switch k {
	case RecurrenceAdd:
		return "add"
	case RecurrenceMul:
		return "mul"
	case RecurrenceAnd:
		return "and"
	case RecurrenceOr:
		return "or"
	case RecurrenceXor:
		return "xor"
	case RecurrenceFAdd:
		return "fadd"
	case RecurrenceFMul:
		return "fmul"
	}
	return "invalid"
}

// IsFloat reports whether the reduction accumulates floating-point values.
func (k RecurrenceKind) IsFloat() bool {
	return k == RecurrenceFAdd || k == RecurrenceFMul
}

// RecurrenceDescriptor describes a header phi that is a reduction: a
// loop-carried accumulation whose only escaping value is the final one.
type RecurrenceDescriptor struct {
	Phi  *ssa.Phi
	Kind RecurrenceKind
	// ExitInstr is the last in-loop accumulation; it is the one value of
	// the chain allowed to have users outside the loop.
	ExitInstr ssa.Instruction
	// RequiresReassoc is set when recognizing the reduction assumed that
	// its floating-point operations may be reordered.
	RequiresReassoc bool
	// ReassocInst is the instruction responsible for RequiresReassoc.
	ReassocInst ssa.Instruction
}

// ClassifyReduction decides whether phi is a reduction accumulator of l.
// The accumulation must be a linear chain of identical operations from
// the phi to the back edge; only the chain's final value may be used
// outside the chain (and outside the loop).
func ClassifyReduction(phi *ssa.Phi, l *loop.Loop) (*RecurrenceDescriptor, bool) {
	if len(phi.Edges) != 2 || phi.Block() != l.Header {
		return nil, false
	}
	_, next, ok := splitEdges(phi, l)
	if !ok {
		return nil, false
	}
	exit, ok := next.(*ssa.BinOp)
	if !ok || !l.ContainsInstr(exit) {
		return nil, false
	}
	kind, ok := recurrenceKind(exit.Op, phi)
	if !ok {
		return nil, false
	}

	// Follow the in-loop use chain from the phi to the back-edge value.
	cur := ssa.Value(phi)
	for cur != exit {
		link, ok := singleLoopUser(cur, l)
		if !ok {
			return nil, false
		}
		bin, ok := link.(*ssa.BinOp)
		if !ok || bin.Op != exit.Op {
			return nil, false
		}
		if bin.X != cur && bin.Y != cur {
			return nil, false
		}
		// Intermediate chain values must not escape: only the final
		// accumulation may be observed.
		if cur != ssa.Value(phi) && hasUserOutside(cur.(ssa.Instruction), l) {
			return nil, false
		}
		cur = bin
	}

	// Inside the loop the final value may only feed the phi; any other
	// in-loop user observes a partial sum.
	if refs := exit.Referrers(); refs != nil {
		for _, ref := range *refs {
			if _, ok := ref.(*ssa.DebugRef); ok {
				continue
			}
			if ref != ssa.Instruction(phi) && l.ContainsInstr(ref) {
				return nil, false
			}
		}
	}

	d := &RecurrenceDescriptor{
		Phi:       phi,
		Kind:      kind,
		ExitInstr: exit,
	}
	if kind.IsFloat() && !l.FastMath {
		d.RequiresReassoc = true
		d.ReassocInst = exit
	}
	return d, true
}

// recurrenceKind maps the accumulation operator and element type to a
// reduction kind. Subtraction and division do not reassociate and are not
// reductions.
func recurrenceKind(op token.Token, phi *ssa.Phi) (RecurrenceKind, bool) {
	if veclib.IsFloat(phi.Type()) {
		switch op {
		case token.ADD:
			return RecurrenceFAdd, true
		case token.MUL:
			return RecurrenceFMul, true
		}
		return 0, false
	}
	if !veclib.IsInteger(phi.Type()) {
		return 0, false
	}
	switch op {
	case token.ADD:
		return RecurrenceAdd, true
	case token.MUL:
		return RecurrenceMul, true
	case token.AND:
		return RecurrenceAnd, true
	case token.OR:
		return RecurrenceOr, true
	case token.XOR:
		return RecurrenceXor, true
	}
	return 0, false
}

// singleLoopUser returns the unique in-loop instruction using v.
func singleLoopUser(v ssa.Value, l *loop.Loop) (ssa.Instruction, bool) {
	refs := v.Referrers()
	if refs == nil {
		return nil, false
	}
	var user ssa.Instruction
	for _, ref := range *refs {
		if !l.ContainsInstr(ref) {
			continue
		}
		if _, ok := ref.(*ssa.DebugRef); ok {
			continue
		}
		if user != nil {
			return nil, false
		}
		user = ref
	}
	return user, user != nil
}

func hasUserOutside(instr ssa.Instruction, l *loop.Loop) bool {
	v, ok := instr.(ssa.Value)
	if !ok || v.Referrers() == nil {
		return false
	}
	for _, ref := range *v.Referrers() {
		if _, ok := ref.(*ssa.DebugRef); ok {
			continue
		}
		if !l.ContainsInstr(ref) {
			return true
		}
	}
	return false
}
