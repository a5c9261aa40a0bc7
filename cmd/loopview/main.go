// Command loopview prints the SSA IR of a function together with its
// discovered loop forest, for inspecting what the legality analysis sees.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/veclab/loopvec/loop"
	"github.com/veclab/loopvec/ssabuild"
)

const Usage = `loopview is a tool for printing SSA IR and loop structure of
Go source code.

Usage:

  loopview [options] file.go [files.go...]

Options:

`

var (
	buildlogPath string
	outPath      string
	viewFunc     string

	out io.Writer
)

func init() {
	flag.StringVar(&buildlogPath, "log", "", "Specify build log file (use '-' for stdout)")
	flag.StringVar(&outPath, "out", "", "Specify output file (default: stdout)")
	flag.StringVar(&viewFunc, "func", "main.main", "Specify the function to view (format: import/path.FuncName)")
}

func main() {
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprint(os.Stderr, Usage)
		flag.PrintDefaults()
		os.Exit(0)
	}

	conf := ssabuild.FromFiles(flag.Args()).Default()
	switch buildlogPath {
	case "":
	case "-":
		conf = conf.WithBuildLog(os.Stdout, log.LstdFlags)
	default:
		f, err := os.Create(buildlogPath)
		if err != nil {
			log.Fatalf("Cannot create log %s: %v", buildlogPath, err)
		}
		defer f.Close()
		conf = conf.WithBuildLog(f, log.LstdFlags)
	}

	switch outPath {
	case "":
		out = os.Stdout
	default:
		f, err := os.Create(outPath)
		if err != nil {
			log.Fatalf("Cannot create output file %s: %v", outPath, err)
		}
		defer f.Close()
		out = f
	}

	info, err := conf.Build()
	if err != nil {
		log.Fatal("Cannot build SSA from files: ", err)
	}
	fn, err := info.FindFunc(viewFunc)
	if err != nil {
		log.Fatal("Cannot find function: ", err)
	}

	if _, err := fn.WriteTo(out); err != nil {
		log.Fatal("Cannot write SSA: ", err)
	}

	forest := loop.Find(fn)
	if len(forest.Roots) == 0 {
		fmt.Fprintf(out, "# no loops in %s\n", viewFunc)
		return
	}
	for _, l := range forest.All() {
		writeLoop(out, l)
	}
}

func writeLoop(w io.Writer, l *loop.Loop) {
	for i := 1; i < l.Depth(); i++ {
		fmt.Fprint(w, "  ")
	}
	fmt.Fprintf(w, "# %s", l)
	if pre := l.Preheader(); pre != nil {
		fmt.Fprintf(w, " preheader=%d", pre.Index)
	}
	if latch := l.Latch(); latch != nil {
		fmt.Fprintf(w, " latch=%d", latch.Index)
	}
	if exiting := l.ExitingBlock(); exiting != nil {
		fmt.Fprintf(w, " exiting=%d", exiting.Index)
	}
	fmt.Fprintln(w)
}
