// Package ssabuild builds SSA IR for the legality analysis.
//
// The SSA IR is from golang.org/x/tools/go/ssa; this package wraps the
// loading and building steps so that callers (the command line tool and
// tests) can go from source code to analyzable functions in one call.
//
// There are two ways of building SSA IR from source code: from a list of
// source files (the normal usage) or from an io.Reader (mostly used for
// testing, where the input source is a string).
package ssabuild

import (
	"go/token"
	"io"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/tools/go/loader"
	"golang.org/x/tools/go/ssa"
)

var ErrFuncNotFound = errors.New("function not found")

// Info holds the results of an SSA build for analysis.
type Info struct {
	FSet  *token.FileSet  // FileSet for parsed source files.
	Prog  *ssa.Program    // SSA IR for whole program.
	LProg *loader.Program // Loaded program from go/loader.

	BldLog io.Writer // Build log.
}

// FindFunc looks up a package-level function by path, e.g. "main.sum".
// Receiver methods are not handled.
func (info *Info) FindFunc(path string) (*ssa.Function, error) {
	i := strings.LastIndex(path, ".")
	if i < 0 {
		return nil, errors.Wrapf(ErrFuncNotFound, "malformed path %q", path)
	}
	pkgPath, fnName := path[:i], path[i+1:]
	for _, pkg := range info.Prog.AllPackages() {
		if pkg.Pkg.Path() != pkgPath && pkg.Pkg.Name() != pkgPath {
			continue
		}
		if fn := pkg.Func(fnName); fn != nil {
			return fn, nil
		}
	}
	return nil, errors.Wrapf(ErrFuncNotFound, "no function %q in package %q", fnName, pkgPath)
}
