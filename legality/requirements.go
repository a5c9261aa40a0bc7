package legality

import (
	"golang.org/x/tools/go/ssa"

	"github.com/veclab/loopvec/hint"
	"github.com/veclab/loopvec/loop"
	"github.com/veclab/loopvec/remark"
)

// Requirements accumulates late-checked obligations discovered during
// analysis: floating-point operations whose reordering needs explicit
// permission, and the number of runtime pointer checks the loop would
// need. Both are tested together at the end so a single run reports
// every violated requirement.
type Requirements struct {
	reassocInst      ssa.Instruction
	numRuntimeChecks int
	ore              *remark.Emitter
}

// NewRequirements returns an empty requirement set reporting through ore.
func NewRequirements(ore *remark.Emitter) *Requirements {
	return &Requirements{ore: ore}
}

// AddReassocInst records a floating-point instruction that can only be
// vectorized by reassociating operations. Only the first is kept; it
// anchors the diagnostic.
func (r *Requirements) AddReassocInst(instr ssa.Instruction) {
	if r.reassocInst == nil {
		r.reassocInst = instr
	}
}

// AddRuntimePointerChecks adds n to the running pointer-check count.
func (r *Requirements) AddRuntimePointerChecks(n int) {
	r.numRuntimeChecks += n
}

// NumRuntimePointerChecks returns the accumulated check count.
func (r *Requirements) NumRuntimePointerChecks() int { return r.numRuntimeChecks }

// DoesNotMeet reports whether the loop fails its accumulated
// requirements under the given hints and configuration. Both
// requirements are tested unconditionally so that every violation is
// diagnosed, not just the first.
func (r *Requirements) DoesNotMeet(l *loop.Loop, h *hint.Hints, cfg Config) bool {
	failed := false

	if r.reassocInst != nil && !h.AllowReordering() {
		r.ore.Emit(remark.Remark{
			Pass:     hint.PassName,
			Name:     "CantReorderFPOps",
			Kind:     remark.Missed,
			Pos:      r.ore.Position(r.reassocInst.Pos()),
			Function: funcName(l),
			Message: "loop not vectorized: cannot prove it is safe to reorder " +
				"floating-point operations",
		})
		failed = true
	}

	// The pragma threshold binds unconditionally; the tighter default
	// threshold only binds while reordering still needs permission.
	if (r.numRuntimeChecks > cfg.RuntimeMemoryCheckThreshold && !h.AllowReordering()) ||
		r.numRuntimeChecks > cfg.PragmaMemoryCheckThreshold {
		r.ore.Emit(remark.Remark{
			Pass:     hint.PassName,
			Name:     "CantReorderMemOps",
			Kind:     remark.Missed,
			Pos:      r.ore.Position(l.Pos()),
			Function: funcName(l),
			Message: "loop not vectorized: cannot prove it is safe to reorder " +
				"memory operations",
		})
		failed = true
	}

	return failed
}

func funcName(l *loop.Loop) string {
	if fn := l.Header.Parent(); fn != nil {
		return fn.String()
	}
	return ""
}
