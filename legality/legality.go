// Package legality decides whether a loop can be vectorized.
//
// The analysis takes a loop in SSA form and answers one question: can a
// downstream widening transform execute W iterations at once without
// changing observable behaviour. It checks the loop's control flow
// shape, classifies every header phi, proves memory safety through a
// dependence analyzer, and bounds the runtime checks the transformed
// loop would need. Every rejection is reported as a structured remark;
// acceptance exposes the facts the transform consumes: the primary
// induction, the reduction and recurrence descriptors, the values that
// may escape the loop, and the operations that need masking.
package legality

import (
	"go/types"

	"golang.org/x/tools/go/ssa"

	"github.com/veclab/loopvec/hint"
	"github.com/veclab/loopvec/iv"
	"github.com/veclab/loopvec/loop"
	"github.com/veclab/loopvec/memdep"
	"github.com/veclab/loopvec/remark"
	"github.com/veclab/loopvec/scev"
	"github.com/veclab/loopvec/veclib"
)

// Analysis performs the legality checks for one loop. It is not safe
// for concurrent use; run one Analysis per loop per goroutine.
type Analysis struct {
	theLoop *loop.Loop
	forest  *loop.Forest
	pse     *scev.Predicated
	mem     memdep.Analyzer
	lib     *veclib.Registry
	hints   *hint.Hints
	reqs    *Requirements
	ore     *remark.Emitter
	cfg     Config
	logger  *remark.Logger

	primary    *ssa.Phi
	inductions map[*ssa.Phi]*iv.InductionDescriptor
	reductions map[*ssa.Phi]*iv.RecurrenceDescriptor
	firstOrder map[*ssa.Phi]bool
	sinkAfter  map[ssa.Instruction]ssa.Instruction

	allowedExit map[ssa.Value]bool
	maskedOps   map[ssa.Instruction]bool
	indCasts    map[ssa.Instruction]bool

	widestIndTy types.Type

	needsIfConversion bool
}

// New returns an Analysis for l. The dependence analyzer mem is
// consulted once per run; remarks go to ore.
func New(l *loop.Loop, forest *loop.Forest, pse *scev.Predicated,
	mem memdep.Analyzer, lib *veclib.Registry, hints *hint.Hints,
	reqs *Requirements, ore *remark.Emitter, cfg Config) *Analysis {

	return &Analysis{
		theLoop:     l,
		forest:      forest,
		pse:         pse,
		mem:         mem,
		lib:         lib,
		hints:       hints,
		reqs:        reqs,
		ore:         ore,
		cfg:         cfg,
		logger:      remark.Discard(),
		inductions:  make(map[*ssa.Phi]*iv.InductionDescriptor),
		reductions:  make(map[*ssa.Phi]*iv.RecurrenceDescriptor),
		firstOrder:  make(map[*ssa.Phi]bool),
		sinkAfter:   make(map[ssa.Instruction]ssa.Instruction),
		allowedExit: make(map[ssa.Value]bool),
		maskedOps:   make(map[ssa.Instruction]bool),
		indCasts:    make(map[ssa.Instruction]bool),
	}
}

// SetLogger sets the debug logger.
func (a *Analysis) SetLogger(l *remark.Logger) {
	a.logger = l
}

// TheLoop returns the loop under analysis.
func (a *Analysis) TheLoop() *loop.Loop { return a.theLoop }

// PrimaryInduction returns the canonical counter phi, or nil if the
// loop has none of the widest induction type.
func (a *Analysis) PrimaryInduction() *ssa.Phi { return a.primary }

// Inductions returns every classified induction phi.
func (a *Analysis) Inductions() map[*ssa.Phi]*iv.InductionDescriptor {
	return a.inductions
}

// Reductions returns every classified reduction phi.
func (a *Analysis) Reductions() map[*ssa.Phi]*iv.RecurrenceDescriptor {
	return a.reductions
}

// FirstOrderRecurrences returns the phis carrying the previous
// iteration's value of another in-loop expression.
func (a *Analysis) FirstOrderRecurrences() map[*ssa.Phi]bool {
	return a.firstOrder
}

// SinkAfter maps instructions that must be moved after another
// instruction for their recurrence to be widenable.
func (a *Analysis) SinkAfter() map[ssa.Instruction]ssa.Instruction {
	return a.sinkAfter
}

// AllowedExit returns the values permitted to have users outside the
// loop: induction phis and updates, reduction exit values, and values
// the transform can recompute because no assumption guards them.
func (a *Analysis) AllowedExit() map[ssa.Value]bool { return a.allowedExit }

// MaskedOps returns the memory operations that must execute under a
// lane mask when the loop body is flattened.
func (a *Analysis) MaskedOps() map[ssa.Instruction]bool { return a.maskedOps }

// WidestInductionType returns the widest integer type over all integer
// inductions, after pointers are mapped to their index width.
func (a *Analysis) WidestInductionType() types.Type { return a.widestIndTy }

// RequiresIfConversion reports whether the accepted loop body spans
// several blocks and must be flattened by the transform.
func (a *Analysis) RequiresIfConversion() bool { return a.needsIfConversion }

// InductionCasts returns the width conversions participating in
// induction update chains; the transform must not widen them twice.
func (a *Analysis) InductionCasts() map[ssa.Instruction]bool { return a.indCasts }

// IsInductionPhi reports whether v is a classified induction phi.
func (a *Analysis) IsInductionPhi(v ssa.Value) bool {
	phi, ok := v.(*ssa.Phi)
	if !ok {
		return false
	}
	_, found := a.inductions[phi]
	return found
}

// IsCastedInductionVariable reports whether v is a width conversion
// participating in an induction update chain.
func (a *Analysis) IsCastedInductionVariable(v ssa.Value) bool {
	instr, ok := v.(ssa.Instruction)
	return ok && a.indCasts[instr]
}

// IsInductionVariable reports whether v is an induction phi or one of
// its recorded casts.
func (a *Analysis) IsInductionVariable(v ssa.Value) bool {
	return a.IsInductionPhi(v) || a.IsCastedInductionVariable(v)
}

// IsFirstOrderRecurrence reports whether phi was classified as a
// first-order recurrence.
func (a *Analysis) IsFirstOrderRecurrence(phi *ssa.Phi) bool {
	return a.firstOrder[phi]
}

// IsReductionVariable reports whether phi was classified as a reduction.
func (a *Analysis) IsReductionVariable(phi *ssa.Phi) bool {
	_, found := a.reductions[phi]
	return found
}

// BlockNeedsPredication reports whether b executes conditionally within
// the loop: it does not dominate the latch, so flattening must guard
// its side effects.
func (a *Analysis) BlockNeedsPredication(b *ssa.BasicBlock) bool {
	latch := a.theLoop.Latch()
	if latch == nil {
		return true
	}
	return !b.Dominates(latch)
}

// reportFailure emits a missed-optimization remark named tag, anchored
// at instr when given, else at the loop.
func (a *Analysis) reportFailure(tag, msg string, instr ssa.Instruction) {
	a.logger.Debugf("not vectorizing: %s", msg)
	pos := a.theLoop.Pos()
	if instr != nil && instr.Pos().IsValid() {
		pos = instr.Pos()
	}
	a.ore.Emit(remark.Remark{
		Pass:     hint.PassName,
		Name:     tag,
		Kind:     remark.Missed,
		Pos:      a.ore.Position(pos),
		Function: funcName(a.theLoop),
		Message:  "loop not vectorized: " + msg,
	})
}
