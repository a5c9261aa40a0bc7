package hint_test

import (
	"strings"
	"testing"

	"github.com/veclab/loopvec/hint"
	"github.com/veclab/loopvec/loop"
	"github.com/veclab/loopvec/ssabuild"
)

func parseDirectives(t *testing.T, src, fname string) (*loop.Forest, map[*loop.Loop]*hint.Metadata) {
	t.Helper()
	info, err := ssabuild.FromReader(strings.NewReader(src)).Default().Build()
	if err != nil {
		t.Fatalf("SSA build failed: %v", err)
	}
	fn, err := info.FindFunc(fname)
	if err != nil {
		t.Fatalf("cannot find function %s: %v", fname, err)
	}
	forest := loop.Find(fn)

	pkgs := info.LProg.InitialPackages()
	if len(pkgs) != 1 || len(pkgs[0].Files) != 1 {
		t.Fatalf("expected a single parsed file")
	}
	d := hint.ParseFile(info.FSet, pkgs[0].Files[0])
	return forest, d.Apply(forest)
}

func TestDirectivesAttachToLoop(t *testing.T) {
	s := `package main

func work(a []float64, n int) {
	i := 0
	//loopvec:vectorize.width=8
	//loopvec:vectorize.enable=1
	//loopvec:parallel
	//loopvec:fastmath
	for {
		a[i] = a[i] * 2
		i++
		if i >= n {
			break
		}
	}
}
func main() {}`

	forest, mds := parseDirectives(t, s, "main.work")
	if len(forest.Roots) != 1 {
		t.Fatalf("expected 1 loop, got %d", len(forest.Roots))
	}
	l := forest.Roots[0]
	md, ok := mds[l]
	if !ok {
		t.Fatal("directives did not attach to the loop")
	}
	if !l.Parallel {
		t.Errorf("parallel directive should mark the loop")
	}
	if !l.FastMath {
		t.Errorf("fastmath directive should mark the loop")
	}

	h := hint.New(l, md, hint.DefaultConfig(), nil, nil)
	if h.Width() != 8 {
		t.Errorf("width = %d, want 8", h.Width())
	}
	if h.GetForce() != hint.ForceEnabled {
		t.Errorf("force = %v, want enabled", h.GetForce())
	}
}

// Directives apply to the innermost loop statement they precede, not to
// every loop in the nest.
func TestDirectivesInnermost(t *testing.T) {
	s := `package main

func nest(a [][]int, n int) {
	i := 0
	for {
		j := 0
		//loopvec:vectorize.width=4
		for {
			a[i][j] = 0
			j++
			if j >= n {
				break
			}
		}
		i++
		if i >= n {
			break
		}
	}
}
func main() {}`

	forest, mds := parseDirectives(t, s, "main.nest")
	if len(forest.Roots) != 1 || len(forest.Roots[0].Children) != 1 {
		t.Fatalf("expected a 2-deep nest")
	}
	outer := forest.Roots[0]
	inner := outer.Children[0]
	if _, ok := mds[outer]; ok {
		t.Errorf("outer loop should have no directives")
	}
	md, ok := mds[inner]
	if !ok {
		t.Fatal("inner loop should carry the directive")
	}
	h := hint.New(inner, md, hint.DefaultConfig(), nil, nil)
	if h.Width() != 4 {
		t.Errorf("inner width = %d, want 4", h.Width())
	}
}

func TestNoDirectives(t *testing.T) {
	s := `package main
func plain(n int) int {
	i := 0
	for {
		i++
		if i >= n {
			break
		}
	}
	return i
}
func main() {}`

	forest, mds := parseDirectives(t, s, "main.plain")
	if len(forest.Roots) != 1 {
		t.Fatalf("expected 1 loop, got %d", len(forest.Roots))
	}
	if len(mds) != 0 {
		t.Errorf("expected no metadata, got %v", mds)
	}
}
