// Package remark implements the structured diagnostic channel of the
// vectorization analyses.
//
// Every legality rejection produces a named, machine-taggable remark
// anchored at a source position, in the style of compiler optimization
// records: the analysis name, a short tag (e.g. "CFGNotUnderstood"), and a
// human-readable message. Remarks are collected by an Emitter and mirrored
// to a debug logger; they are never errors.
package remark

import (
	"fmt"
	"go/token"

	"go.uber.org/zap"
)

// Kind distinguishes remark flavours, mirroring optimization-record
// conventions.
type Kind int

const (
	// Analysis remarks explain why a transformation is illegal.
	Analysis Kind = iota
	// Missed remarks report a transformation that was skipped on purpose,
	// e.g. disabled by a directive.
	Missed
)

func (k Kind) String() string {
	switch k {
	case Analysis:
		return "analysis"
	case Missed:
		return "missed"
	}
	return "unknown"
}

// Remark is one structured diagnostic.
type Remark struct {
	Pass     string         // analysis name, e.g. "loop-vectorize"
	Name     string         // machine tag, e.g. "CFGNotUnderstood"
	Kind     Kind           //
	Pos      token.Position // anchor: offending instruction, else loop header
	Function string         // enclosing function, if known
	Message  string         // human readable message
}

func (r Remark) String() string {
	if r.Pos.IsValid() {
		return fmt.Sprintf("%s: %s: %s [%s/%s]", r.Pos, r.Kind, r.Message, r.Pass, r.Name)
	}
	return fmt.Sprintf("%s: %s [%s/%s]", r.Kind, r.Message, r.Pass, r.Name)
}

// Emitter collects remarks for one analysis run. It also owns the
// "collect all failure reasons" switch: when extra analysis is allowed,
// checks after the first failure still execute so that every reason can
// be reported in one pass.
type Emitter struct {
	fset       *token.FileSet
	log        *zap.SugaredLogger
	allowExtra bool
	remarks    []Remark
}

// NewEmitter returns an Emitter resolving positions against fset.
// logger may be nil, in which case remarks are only collected.
func NewEmitter(fset *token.FileSet, logger *zap.SugaredLogger, allowExtra bool) *Emitter {
	return &Emitter{fset: fset, log: logger, allowExtra: allowExtra}
}

// AllowExtraAnalysis reports whether checks should keep running after a
// failure to surface every reason.
func (e *Emitter) AllowExtraAnalysis() bool { return e.allowExtra }

// Position resolves pos against the emitter's FileSet.
func (e *Emitter) Position(pos token.Pos) token.Position {
	if e.fset == nil || !pos.IsValid() {
		return token.Position{}
	}
	return e.fset.Position(pos)
}

// Emit records r and mirrors it to the debug log.
func (e *Emitter) Emit(r Remark) {
	e.remarks = append(e.remarks, r)
	if e.log != nil {
		e.log.Debugw("remark",
			"pass", r.Pass,
			"name", r.Name,
			"kind", r.Kind.String(),
			"pos", r.Pos.String(),
			"msg", r.Message,
		)
	}
}

// Remarks returns all remarks emitted so far, in order.
func (e *Emitter) Remarks() []Remark { return e.remarks }
