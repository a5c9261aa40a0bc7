// Package hint reads and writes per-loop vectorization directives.
//
// Hints are stored in loop metadata as (name, integer) entries under the
// "loopvec." prefix: vectorize.width, vectorize.enable, interleave.count
// and isvectorized. They can come from source comment directives (see
// directive.go) or be set programmatically. Invalid hint values are
// ignored with a debug diagnostic, never rejected.
package hint

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/veclab/loopvec/loop"
	"github.com/veclab/loopvec/remark"
)

// Prefix is the metadata namespace of this module.
const Prefix = "loopvec."

// PassName tags remarks emitted by the vectorization analyses.
const PassName = "loop-vectorize"

// Force is the tri-state vectorize.enable pragma.
type Force int

const (
	ForceUndefined Force = iota - 1 // no pragma given
	ForceDisabled                   // vectorize(disable)
	ForceEnabled                    // vectorize(enable)
)

func (f Force) String() string {
	switch f {
	case ForceDisabled:
		return "disabled"
	case ForceEnabled:
		return "enabled"
	}
	return "undefined"
}

type hintKind int

const (
	kindWidth hintKind = iota
	kindInterleave
	kindForce
	kindIsVectorized
)

// hint is a named legality/tuning knob with an integer value.
type hint struct {
	name  string
	value int
	kind  hintKind
}

// validate checks a candidate value for this hint kind.
func (h *hint) validate(v int, cfg Config) bool {
	switch h.kind {
	case kindWidth:
		return isPowerOf2(v) && v <= cfg.MaxVectorWidth
	case kindInterleave:
		return isPowerOf2(v) && v <= cfg.MaxInterleaveFactor
	case kindForce:
		return v == 0 || v == 1
	case kindIsVectorized:
		return v == 0 || v == 1
	}
	return false
}

func isPowerOf2(v int) bool {
	return v > 0 && bits.OnesCount(uint(v)) == 1
}

// Config carries the global hint defaults and bounds.
type Config struct {
	Width                    int  // default vectorization width, 0 = decide later
	Interleave               int  // default interleave count, 0 = decide later
	InterleaveOnlyWhenForced bool // suppress interleaving unless a pragma asks
	ForceInterleave          bool // global interleave override, wins over metadata
	MaxVectorWidth           int
	MaxInterleaveFactor      int
}

// DefaultConfig returns the stock hint configuration.
func DefaultConfig() Config {
	return Config{
		MaxVectorWidth:      64,
		MaxInterleaveFactor: 16,
	}
}

// Hints holds the decoded vectorization directives of one loop.
type Hints struct {
	width        hint
	interleave   hint
	force        hint
	isVectorized hint

	potentiallyUnsafe bool

	theLoop *loop.Loop
	md      *Metadata
	cfg     Config
	ore     *remark.Emitter
	logger  *remark.Logger
}

// New scans md once and decodes the recognized hints. Unrecognized entries
// are kept (and preserved by SetAlreadyVectorized); recognized entries with
// invalid values are ignored.
func New(l *loop.Loop, md *Metadata, cfg Config, ore *remark.Emitter, logger *remark.Logger) *Hints {
	if logger == nil {
		logger = remark.Discard()
	}
	interleave := cfg.Interleave
	if cfg.InterleaveOnlyWhenForced {
		interleave = 1
	}
	h := &Hints{
		width:        hint{name: "vectorize.width", value: cfg.Width, kind: kindWidth},
		interleave:   hint{name: "interleave.count", value: interleave, kind: kindInterleave},
		force:        hint{name: "vectorize.enable", value: int(ForceUndefined), kind: kindForce},
		isVectorized: hint{name: "isvectorized", value: 0, kind: kindIsVectorized},
		theLoop:      l,
		md:           md,
		cfg:          cfg,
		ore:          ore,
		logger:       logger,
	}
	for _, e := range md.Entries() {
		h.setHint(e.Name, e.Value)
	}

	// The global interleave override wins over metadata.
	if cfg.ForceInterleave {
		h.interleave.value = cfg.Interleave
	}

	if h.isVectorized.value != 1 {
		// If the vectorization width and interleave count are both 1 there
		// is nothing left to do; treat the loop as already vectorized.
		if h.width.value == 1 && h.interleave.value == 1 {
			h.isVectorized.value = 1
		}
	}
	return h
}

func (h *Hints) setHint(name string, value int) {
	if !strings.HasPrefix(name, Prefix) {
		return
	}
	name = name[len(Prefix):]
	for _, knob := range []*hint{&h.width, &h.interleave, &h.force, &h.isVectorized} {
		if name == knob.name {
			if knob.validate(value, h.cfg) {
				knob.value = value
			} else {
				h.logger.Debugf("ignoring invalid hint %q = %d", name, value)
			}
			return
		}
	}
}

// Width returns the requested vectorization width (0 = undecided).
func (h *Hints) Width() int { return h.width.value }

// Interleave returns the requested interleave count (0 = undecided).
func (h *Hints) Interleave() int { return h.interleave.value }

// GetForce returns the force mode.
func (h *Hints) GetForce() Force { return Force(h.force.value) }

// IsVectorized reports whether the loop is already vectorized.
func (h *Hints) IsVectorized() bool { return h.isVectorized.value == 1 }

// SetPotentiallyUnsafe marks that the loop contains floating-point or
// memory operations whose reordering cannot be proven safe.
func (h *Hints) SetPotentiallyUnsafe() { h.potentiallyUnsafe = true }

// AllowReordering reports whether floating-point and memory operations in
// the loop may be reordered: either nothing unsafe was found, or the user
// forced vectorization and thereby accepted the reordering.
func (h *Hints) AllowReordering() bool {
	return h.GetForce() == ForceEnabled || !h.potentiallyUnsafe
}

// AllowVectorization decides whether analysis should be attempted at all.
// Refusals here are deliberate opt-outs, not analysis failures.
func (h *Hints) AllowVectorization(onlyWhenForced bool) bool {
	if h.GetForce() == ForceDisabled {
		h.logger.Debugf("not vectorizing: vectorize(disable) pragma")
		h.EmitRemarkWithHints()
		return false
	}
	if onlyWhenForced && h.GetForce() != ForceEnabled {
		h.logger.Debugf("not vectorizing: no vectorize(enable) pragma")
		h.EmitRemarkWithHints()
		return false
	}
	if h.IsVectorized() {
		h.logger.Debugf("not vectorizing: disabled or already vectorized")
		h.emit(remark.Remark{
			Pass: PassName,
			Name: "AllDisabled",
			Kind: remark.Analysis,
			Message: "loop not vectorized: vectorization and interleaving are " +
				"explicitly disabled, or the loop has already been vectorized",
		})
		return false
	}
	return true
}

// EmitRemarkWithHints emits a Missed remark summarizing the active hints.
func (h *Hints) EmitRemarkWithHints() {
	if h.GetForce() == ForceDisabled {
		h.emit(remark.Remark{
			Pass:    PassName,
			Name:    "MissedExplicitlyDisabled",
			Kind:    remark.Missed,
			Message: "loop not vectorized: vectorization is explicitly disabled",
		})
		return
	}
	msg := "loop not vectorized"
	if h.GetForce() == ForceEnabled {
		msg += fmt.Sprintf(" (force=true, width=%d, interleave=%d)",
			h.width.value, h.interleave.value)
	}
	h.emit(remark.Remark{
		Pass:    PassName,
		Name:    "MissedDetails",
		Kind:    remark.Missed,
		Message: msg,
	})
}

func (h *Hints) emit(r remark.Remark) {
	if h.ore == nil {
		return
	}
	if h.theLoop != nil {
		r.Pos = h.ore.Position(h.theLoop.Pos())
		r.Function = h.theLoop.Header.Parent().String()
	}
	h.ore.Emit(r)
}

// SetAlreadyVectorized finalizes the loop: the metadata is rewritten with
// the width and interleave entries dropped, every unrelated entry
// preserved, and a single isvectorized=1 appended. Calling it twice leaves
// exactly one isvectorized entry. This is the only program mutation the
// analyses perform.
func (h *Hints) SetAlreadyVectorized() {
	if h.md != nil {
		kept := make([]Entry, 0, len(h.md.Entries()))
		for _, e := range h.md.Entries() {
			if strings.HasPrefix(e.Name, Prefix+"vectorize.") ||
				strings.HasPrefix(e.Name, Prefix+"interleave.") ||
				e.Name == Prefix+"isvectorized" {
				continue
			}
			kept = append(kept, e)
		}
		kept = append(kept, Entry{Name: Prefix + "isvectorized", Value: 1})
		h.md.replace(kept)
	}
	// Update the in-memory cache.
	h.isVectorized.value = 1
}
