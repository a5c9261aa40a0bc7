// Package loop discovers natural loops in SSA functions.
//
// A natural loop is a maximal single-entry strongly-connected region,
// identified from back edges in the dominator tree: an edge b → h where h
// dominates b makes h a loop header and b a latch. Loops sharing a header
// are merged, and the loops of a function form a forest ordered by nesting.
//
// Loop structures are read-only input to the analyses in this module; the
// analyses never mutate the control flow graph.
package loop
