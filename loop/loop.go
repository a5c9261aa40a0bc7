package loop

import (
	"fmt"
	"go/token"

	"golang.org/x/tools/go/ssa"
)

// Loop is a natural loop: a header block plus the blocks that can reach a
// latch (back-edge source) without leaving the loop. Identity is
// structural; a Loop is never copied, only inspected.
type Loop struct {
	Header   *ssa.BasicBlock
	Parent   *Loop
	Children []*Loop

	// Parallel marks a loop annotated as having no loop-carried memory
	// dependences; predicated loads inside it need no mask.
	Parallel bool
	// FastMath marks a loop whose floating-point operations may be
	// reassociated.
	FastMath bool

	blocks   map[*ssa.BasicBlock]bool
	order    []*ssa.BasicBlock // member blocks, ascending block index
	latches  []*ssa.BasicBlock
	exitings []*ssa.BasicBlock
}

// Blocks returns the member blocks in ascending block index order.
func (l *Loop) Blocks() []*ssa.BasicBlock { return l.order }

// NumBlocks returns the number of blocks in the loop, nested loops included.
func (l *Loop) NumBlocks() int { return len(l.order) }

// Contains reports whether b is a member of the loop (or a nested loop).
func (l *Loop) Contains(b *ssa.BasicBlock) bool { return l.blocks[b] }

// ContainsInstr reports whether instr is defined inside the loop.
func (l *Loop) ContainsInstr(instr ssa.Instruction) bool {
	return instr.Block() != nil && l.blocks[instr.Block()]
}

// NumBackedges returns the number of back edges to the loop header.
func (l *Loop) NumBackedges() int { return len(l.latches) }

// Latch returns the single back-edge source, or nil if there are several.
func (l *Loop) Latch() *ssa.BasicBlock {
	if len(l.latches) != 1 {
		return nil
	}
	return l.latches[0]
}

// ExitingBlocks returns the blocks with a successor outside the loop.
func (l *Loop) ExitingBlocks() []*ssa.BasicBlock { return l.exitings }

// ExitingBlock returns the single exiting block, or nil if there are
// several (or none).
func (l *Loop) ExitingBlock() *ssa.BasicBlock {
	if len(l.exitings) != 1 {
		return nil
	}
	return l.exitings[0]
}

// Preheader returns the unique out-of-loop predecessor of the header,
// provided it branches only to the header. Loops entered from multiple
// places have no preheader and cannot be put into canonical form.
func (l *Loop) Preheader() *ssa.BasicBlock {
	var pre *ssa.BasicBlock
	for _, p := range l.Header.Preds {
		if l.blocks[p] {
			continue
		}
		if pre != nil {
			return nil // multiple entry edges
		}
		pre = p
	}
	if pre == nil || len(pre.Succs) != 1 {
		return nil
	}
	return pre
}

// Depth returns the nesting depth, 1 for a top-level loop.
func (l *Loop) Depth() int {
	d := 0
	for p := l; p != nil; p = p.Parent {
		d++
	}
	return d
}

// IsInnermost reports whether the loop contains no nested loops.
func (l *Loop) IsInnermost() bool { return len(l.Children) == 0 }

// IsInvariant reports whether v does not change within the loop.
// Constants, globals, parameters and free variables are invariant;
// instructions are invariant iff defined outside the loop.
func (l *Loop) IsInvariant(v ssa.Value) bool {
	if instr, ok := v.(ssa.Instruction); ok {
		return !l.ContainsInstr(instr)
	}
	return true
}

// Pos returns a position inside the loop's source statement, for
// anchoring diagnostics and matching comment directives. Phis are
// skipped: a lifted phi carries the position of the variable's
// declaration, which may precede the loop. A header made only of phis
// and a jump falls back to the latch.
func (l *Loop) Pos() token.Pos {
	if pos := blockPos(l.Header); pos.IsValid() {
		return pos
	}
	if latch := l.Latch(); latch != nil {
		if pos := blockPos(latch); pos.IsValid() {
			return pos
		}
	}
	return token.NoPos
}

func blockPos(b *ssa.BasicBlock) token.Pos {
	for _, instr := range b.Instrs {
		if _, ok := instr.(*ssa.Phi); ok {
			continue
		}
		if v, ok := instr.(ssa.Value); ok && v.Pos().IsValid() {
			return v.Pos()
		}
		if instr.Pos().IsValid() {
			return instr.Pos()
		}
	}
	return token.NoPos
}

func (l *Loop) String() string {
	return fmt.Sprintf("loop at %s#%d (depth %d, %d blocks)",
		l.Header.Parent().String(), l.Header.Index, l.Depth(), len(l.order))
}
