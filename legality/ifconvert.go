package legality

import (
	"go/token"

	"golang.org/x/tools/go/ssa"

	"github.com/veclab/loopvec/veclib"
)

// canVectorizeWithIfConvert decides whether a multi-block loop body can
// be flattened into predicated straight-line code. Loads and stores in
// conditionally executed blocks must tolerate masking, and phis merging
// the conditional paths must be convertible to selects.
func (a *Analysis) canVectorizeWithIfConvert() bool {
	if !a.cfg.EnableIfConversion {
		a.reportFailure("IfConversionDisabled",
			"if-conversion is disabled", nil)
		return false
	}

	header := a.theLoop.Header

	// Addresses accessed unconditionally on every iteration are safe to
	// access without a mask even inside a predicated block.
	safePtrs := make(map[ssa.Value]bool)
	for _, bb := range a.theLoop.Blocks() {
		if a.BlockNeedsPredication(bb) {
			continue
		}
		for _, instr := range bb.Instrs {
			if ptr := loadStorePointer(instr); ptr != nil {
				safePtrs[ptr] = true
			}
		}
	}

	for _, bb := range a.theLoop.Blocks() {
		switch bb.Instrs[len(bb.Instrs)-1].(type) {
		case *ssa.If, *ssa.Jump:
		default:
			a.reportFailure("CFGNotUnderstood",
				"loop contains an unsupported terminator", nil)
			return false
		}

		if a.BlockNeedsPredication(bb) {
			if !a.blockCanBePredicated(bb, safePtrs) {
				a.reportFailure("NoCFGForSelect",
					"control flow cannot be substituted for a select", nil)
				return false
			}
		} else if bb != header && !canIfConvertPHINodes(bb) {
			a.reportFailure("NoCFGForSelect",
				"control flow cannot be substituted for a select", nil)
			return false
		}
	}

	return true
}

// blockCanBePredicated reports whether every instruction of b tolerates
// conditional execution. Loads through unsafe addresses and all stores
// are recorded as needing a lane mask; anything that may read memory
// some other way, or may panic, disqualifies the block.
func (a *Analysis) blockCanBePredicated(b *ssa.BasicBlock, safePtrs map[ssa.Value]bool) bool {
	for _, instr := range b.Instrs {
		switch instr := instr.(type) {
		case *ssa.UnOp:
			if instr.Op == token.MUL {
				// Loads from provably-dereferenceable addresses can run
				// unmasked; annotated parallel loops never fault on
				// speculative lanes.
				if !safePtrs[instr.X] && !a.theLoop.Parallel {
					a.maskedOps[instr] = true
				}
				continue
			}
		case *ssa.Store:
			a.maskedOps[instr] = true
			continue
		}
		if mayPanic(instr) || readsMemory(instr) {
			return false
		}
	}
	return true
}

// canIfConvertPHINodes reports whether the phis of b can become
// selects: an incoming value that may panic would then be computed
// unconditionally.
func canIfConvertPHINodes(b *ssa.BasicBlock) bool {
	for _, instr := range b.Instrs {
		phi, ok := instr.(*ssa.Phi)
		if !ok {
			break
		}
		for _, in := range phi.Edges {
			if v, ok := in.(ssa.Instruction); ok && mayPanic(v) {
				return false
			}
		}
	}
	return true
}

// loadStorePointer returns the address a load or store accesses, nil
// for other instructions.
func loadStorePointer(instr ssa.Instruction) ssa.Value {
	switch instr := instr.(type) {
	case *ssa.UnOp:
		if instr.Op == token.MUL {
			return instr.X
		}
	case *ssa.Store:
		return instr.Addr
	}
	return nil
}

// mayPanic reports whether executing instr can raise a runtime panic
// when its block's condition would have skipped it. Division and
// remainder panic on a zero divisor unless the divisor is a nonzero
// constant. Calls are handled by the call legality check; here they
// count as panicking since a callee can panic arbitrarily.
func mayPanic(instr ssa.Instruction) bool {
	switch instr := instr.(type) {
	case *ssa.BinOp:
		// Integer division panics on a zero divisor; float division
		// does not.
		if (instr.Op != token.QUO && instr.Op != token.REM) || !veclib.IsInteger(instr.X.Type()) {
			return false
		}
		if c, ok := instr.Y.(*ssa.Const); ok && c.Value != nil && c.Int64() != 0 {
			return false
		}
		return true
	case *ssa.Call, *ssa.Panic, *ssa.TypeAssert, *ssa.MakeSlice, *ssa.MakeChan, *ssa.MakeMap:
		return true
	}
	return false
}

// readsMemory reports whether instr observes memory through something
// other than a plain load.
func readsMemory(instr ssa.Instruction) bool {
	switch instr.(type) {
	case *ssa.Lookup, *ssa.Range, *ssa.Next, *ssa.Select,
		*ssa.MapUpdate, *ssa.Send:
		return true
	}
	return false
}
