// Package loopvec decides, for every natural loop in a package, whether
// a vectorizing transform could legally widen it.
//
// The analysis never transforms anything: it classifies each loop as
// vectorizable or not and explains rejections with structured remarks.
// Loops opt in or out, and tune the analysis, through `//loopvec:`
// comment directives placed immediately above the loop statement.
package loopvec

import (
	"fmt"
	"go/ast"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/buildssa"
	"golang.org/x/tools/go/ssa"

	"github.com/veclab/loopvec/hint"
	"github.com/veclab/loopvec/legality"
	"github.com/veclab/loopvec/loop"
	"github.com/veclab/loopvec/memdep"
	"github.com/veclab/loopvec/remark"
	"github.com/veclab/loopvec/scev"
	"github.com/veclab/loopvec/veclib"
)

// Analyzer reports the vectorization verdict for every loop.
var Analyzer = &analysis.Analyzer{
	Name:     "loopvec",
	Doc:      "reports whether each loop is legal to vectorize",
	Requires: []*analysis.Analyzer{buildssa.Analyzer},
	Run:      run,
}

func run(pass *analysis.Pass) (any, error) {
	ssaInfo := pass.ResultOf[buildssa.Analyzer].(*buildssa.SSA)

	var dirs []*hint.FileDirectives
	for _, file := range pass.Files {
		if ast.IsGenerated(file) {
			continue
		}
		dirs = append(dirs, hint.ParseFile(pass.Fset, file))
	}

	cfg := legality.DefaultConfig()
	for _, fn := range ssaInfo.SrcFuncs {
		ore := remark.NewEmitter(pass.Fset, nil, false)
		for _, rep := range AnalyzeFunction(fn, dirs, cfg, ore, remark.Discard()) {
			pass.Reportf(rep.Loop.Pos(), "%s", rep.Verdict())
		}
	}
	return nil, nil
}

// Report is the outcome of analyzing one loop.
type Report struct {
	Loop  *loop.Loop
	Hints *hint.Hints
	// Legal exposes the classification results when the loop was
	// analyzed; nil when the loop was skipped by its hints.
	Legal        *legality.Analysis
	Vectorizable bool
	Skipped      bool
	// Remarks holds the remarks emitted while analyzing this loop.
	Remarks []remark.Remark
}

// Verdict renders the report as a one-line message.
func (r *Report) Verdict() string {
	switch {
	case r.Skipped:
		return "loop not considered for vectorization"
	case r.Vectorizable:
		return fmt.Sprintf("loop is vectorizable (width hint %d, interleave hint %d)",
			r.Hints.Width(), r.Hints.Interleave())
	case len(r.Remarks) > 0:
		return r.Remarks[0].Message
	}
	return "loop not vectorized"
}

// AnalyzeFunction runs the legality analysis on every loop of fn.
// dirs supplies the per-loop hint directives parsed from source files;
// remarks are emitted through ore. Loops already marked vectorized are
// not reported again.
func AnalyzeFunction(fn *ssa.Function, dirs []*hint.FileDirectives,
	cfg legality.Config, ore *remark.Emitter, logger *remark.Logger) []*Report {

	forest := loop.Find(fn)
	if len(forest.Roots) == 0 {
		return nil
	}

	md := make(map[*loop.Loop]*hint.Metadata)
	for _, d := range dirs {
		for l, m := range d.Apply(forest) {
			md[l] = m
		}
	}

	se := scev.NewAnalysis()
	mem := memdep.New(se)
	lib := veclib.NewRegistry()

	var reports []*Report
	for _, l := range forest.All() {
		h := hint.New(l, md[l], cfg.Hint, ore, logger)
		rep := &Report{Loop: l, Hints: h}
		before := len(ore.Remarks())

		if !h.AllowVectorization(cfg.VectorizeOnlyWhenForced) {
			rep.Skipped = true
			rep.Remarks = ore.Remarks()[before:]
			reports = append(reports, rep)
			continue
		}

		// Outer loops run the reduced uniformity analysis, and only
		// when vectorization was explicitly requested.
		outerAllowed := h.GetForce() == hint.ForceEnabled

		pse := scev.NewPredicated(se, l)
		reqs := legality.NewRequirements(ore)
		la := legality.New(l, forest, pse, mem, lib, h, reqs, ore, cfg)
		la.SetLogger(logger)

		ok := la.CanVectorize(outerAllowed)
		if ok && reqs.DoesNotMeet(l, h, cfg) {
			ok = false
		}

		rep.Legal = la
		rep.Vectorizable = ok
		rep.Remarks = ore.Remarks()[before:]
		reports = append(reports, rep)
	}
	return reports
}
