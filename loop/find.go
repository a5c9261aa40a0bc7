package loop

import (
	"sort"

	"golang.org/x/tools/go/ssa"
)

// Forest is the loop nesting forest of one function.
type Forest struct {
	Fn    *ssa.Function
	Roots []*Loop

	innermost map[*ssa.BasicBlock]*Loop
}

// Find discovers the natural loops of fn.
func Find(fn *ssa.Function) *Forest {
	forest := &Forest{
		Fn:        fn,
		innermost: make(map[*ssa.BasicBlock]*Loop),
	}
	if len(fn.Blocks) == 0 {
		return forest
	}
	_ = fn.DomPreorder() // ensure dominator information is computed

	headerLatches := make(map[*ssa.BasicBlock][]*ssa.BasicBlock)
	var headers []*ssa.BasicBlock
	for _, b := range fn.Blocks {
		for _, succ := range b.Succs {
			if succ == fn.Recover {
				continue
			}
			if succ.Dominates(b) {
				if _, seen := headerLatches[succ]; !seen {
					headers = append(headers, succ)
				}
				headerLatches[succ] = append(headerLatches[succ], b)
			}
		}
	}
	sort.Slice(headers, func(i, j int) bool { return headers[i].Index < headers[j].Index })

	var all []*Loop
	for _, h := range headers {
		l := &Loop{
			Header: h,
			blocks: make(map[*ssa.BasicBlock]bool),
		}
		l.latches = headerLatches[h]
		fillBody(l)
		for _, b := range l.order {
			for _, succ := range b.Succs {
				if !l.blocks[succ] {
					l.exitings = append(l.exitings, b)
					break
				}
			}
		}
		all = append(all, l)
	}

	// Parent each loop under the smallest loop properly containing its
	// header; the rest become roots.
	for _, child := range all {
		var parent *Loop
		for _, cand := range all {
			if cand == child || !cand.blocks[child.Header] {
				continue
			}
			if parent == nil || len(cand.blocks) < len(parent.blocks) {
				parent = cand
			}
		}
		if parent != nil {
			child.Parent = parent
			parent.Children = append(parent.Children, child)
		} else {
			forest.Roots = append(forest.Roots, child)
		}
	}

	// Innermost loop per block: visit outer loops before their children so
	// children overwrite.
	for _, l := range forest.All() {
		for _, b := range l.order {
			forest.innermost[b] = l
		}
	}
	return forest
}

// fillBody computes the loop body by walking predecessors from the latches
// until the header.
func fillBody(l *Loop) {
	l.blocks[l.Header] = true
	work := make([]*ssa.BasicBlock, 0, len(l.latches))
	for _, latch := range l.latches {
		if !l.blocks[latch] {
			l.blocks[latch] = true
		}
		work = append(work, latch)
	}
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		if b == l.Header {
			continue
		}
		for _, pred := range b.Preds {
			if !l.blocks[pred] {
				l.blocks[pred] = true
				work = append(work, pred)
			}
		}
	}
	for b := range l.blocks {
		l.order = append(l.order, b)
	}
	sort.Slice(l.order, func(i, j int) bool { return l.order[i].Index < l.order[j].Index })
}

// All returns every loop in the forest, outer loops before their children.
func (f *Forest) All() []*Loop {
	var loops []*Loop
	var walk func(l *Loop)
	walk = func(l *Loop) {
		loops = append(loops, l)
		for _, c := range l.Children {
			walk(c)
		}
	}
	for _, r := range f.Roots {
		walk(r)
	}
	return loops
}

// LoopFor returns the innermost loop containing b, or nil.
func (f *Forest) LoopFor(b *ssa.BasicBlock) *Loop { return f.innermost[b] }

// IsHeader reports whether b is the header of some loop.
func (f *Forest) IsHeader(b *ssa.BasicBlock) bool {
	l := f.innermost[b]
	return l != nil && l.Header == b
}
