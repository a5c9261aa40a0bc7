package hint

// Comment directives attach hints to the loop that follows them:
//
//	//loopvec:vectorize.width=4
//	//loopvec:vectorize.enable=1
//	//loopvec:interleave.count=2
//	//loopvec:parallel
//	//loopvec:fastmath
//	for { ... }
//
// parallel asserts the loop has no loop-carried memory dependences;
// fastmath permits reassociating its floating-point operations. The rest
// become metadata entries under the loopvec. prefix.

import (
	"go/ast"
	"go/token"
	"strconv"
	"strings"

	"github.com/veclab/loopvec/loop"
)

const directivePrefix = "loopvec:"

// loopDirectives is the set of directives attached to one for/range
// statement, identified by its source span.
type loopDirectives struct {
	pos, end token.Pos
	md       *Metadata
	parallel bool
	fastmath bool
}

// FileDirectives holds the parsed directives of one file.
type FileDirectives struct {
	spans []*loopDirectives
}

// ParseFile scans file for loopvec directives and associates each with the
// for/range statement it precedes.
func ParseFile(fset *token.FileSet, file *ast.File) *FileDirectives {
	// Directive texts by the line they appear on.
	byLine := make(map[int][]string)
	for _, cg := range file.Comments {
		for _, c := range cg.List {
			text := strings.TrimPrefix(c.Text, "//")
			text = strings.TrimSpace(text)
			if !strings.HasPrefix(text, directivePrefix) {
				continue
			}
			line := fset.Position(c.Pos()).Line
			byLine[line] = append(byLine[line], strings.TrimPrefix(text, directivePrefix))
		}
	}

	d := &FileDirectives{}
	if len(byLine) == 0 {
		return d
	}

	ast.Inspect(file, func(n ast.Node) bool {
		var pos, end token.Pos
		switch stmt := n.(type) {
		case *ast.ForStmt:
			pos, end = stmt.Pos(), stmt.End()
		case *ast.RangeStmt:
			pos, end = stmt.Pos(), stmt.End()
		default:
			return true
		}
		ld := &loopDirectives{pos: pos, end: end, md: NewMetadata()}
		// Directives stack on consecutive lines immediately above the loop.
		line := fset.Position(pos).Line - 1
		var texts []string
		for {
			ts, ok := byLine[line]
			if !ok {
				break
			}
			texts = append(ts, texts...)
			line--
		}
		for _, t := range texts {
			ld.apply(t)
		}
		if len(ld.md.Entries()) > 0 || ld.parallel || ld.fastmath {
			d.spans = append(d.spans, ld)
		}
		return true
	})
	return d
}

func (ld *loopDirectives) apply(text string) {
	switch text {
	case "parallel":
		ld.parallel = true
		return
	case "fastmath":
		ld.fastmath = true
		return
	}
	name, val, ok := strings.Cut(text, "=")
	if !ok {
		return
	}
	v, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return
	}
	ld.md.Append(Entry{Name: Prefix + strings.TrimSpace(name), Value: v})
}

// Apply annotates the loops of forest with the parsed directives and
// returns the metadata of each annotated loop. Each directive set applies
// to the innermost statement span containing the loop's position.
func (d *FileDirectives) Apply(forest *loop.Forest) map[*loop.Loop]*Metadata {
	mds := make(map[*loop.Loop]*Metadata)
	for _, l := range forest.All() {
		pos := l.Pos()
		if !pos.IsValid() {
			continue
		}
		var best *loopDirectives
		for _, ld := range d.spans {
			if pos < ld.pos || pos >= ld.end {
				continue
			}
			if best == nil || (ld.end-ld.pos) < (best.end-best.pos) {
				best = ld
			}
		}
		if best == nil {
			continue
		}
		l.Parallel = best.parallel
		l.FastMath = best.fastmath
		mds[l] = best.md
	}
	return mds
}
