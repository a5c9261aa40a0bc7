package legality

import "github.com/veclab/loopvec/hint"

// Config is the immutable configuration of one legality analysis. It is
// passed in at construction; the analysis keeps no ambient global state.
type Config struct {
	// Hint holds the defaults and bounds for per-loop directives.
	Hint hint.Config

	// EnableIfConversion permits flattening multi-block loop bodies into
	// predicated straight-line form.
	EnableIfConversion bool
	// EnablePredication permits divergent branches inside outer loops,
	// for a downstream transform that can predicate them.
	EnablePredication bool
	// VectorizeOnlyWhenForced restricts analysis to loops with an
	// explicit enable pragma.
	VectorizeOnlyWhenForced bool
	// AssumeNoNaNs treats floating-point inductions as exact, as if the
	// enclosing function were annotated free of NaNs.
	AssumeNoNaNs bool

	// RuntimeMemoryCheckThreshold bounds the pointer-overlap checks a
	// vectorized loop may require; PragmaMemoryCheckThreshold applies
	// when vectorization was requested by pragma.
	RuntimeMemoryCheckThreshold int
	PragmaMemoryCheckThreshold  int

	// SCEVCheckThreshold bounds the accumulated assumption-predicate
	// complexity; PragmaSCEVCheckThreshold applies under a pragma.
	SCEVCheckThreshold       int
	PragmaSCEVCheckThreshold int
}

// DefaultConfig returns the stock analysis configuration.
func DefaultConfig() Config {
	return Config{
		Hint:                        hint.DefaultConfig(),
		EnableIfConversion:          true,
		RuntimeMemoryCheckThreshold: 8,
		PragmaMemoryCheckThreshold:  128,
		SCEVCheckThreshold:          16,
		PragmaSCEVCheckThreshold:    128,
	}
}
