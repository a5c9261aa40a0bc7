// Command loopvec reports, for every loop in the given files, whether it
// is legal to vectorize and why not otherwise.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/tools/go/ssa"

	"github.com/veclab/loopvec"
	"github.com/veclab/loopvec/hint"
	"github.com/veclab/loopvec/legality"
	"github.com/veclab/loopvec/remark"
	"github.com/veclab/loopvec/ssabuild"
)

const Usage = `loopvec analyzes Go source code and reports which loops are
legal to vectorize.

Usage:

  loopvec [options] file.go [files.go...]

Options:

`

var (
	logPath         string
	allReasons      bool
	forceWidth      int
	forceInterleave int
	onlyForced      bool
)

func init() {
	flag.StringVar(&logPath, "log", "", "Specify analysis log file (use '-' for stderr)")
	flag.BoolVar(&allReasons, "all", false, "Collect all failure reasons per loop")
	flag.IntVar(&forceWidth, "force-width", 0, "Override the vectorization width for all loops")
	flag.IntVar(&forceInterleave, "force-interleave", 0, "Override the interleave count for all loops")
	flag.BoolVar(&onlyForced, "only-forced", false, "Only analyze loops with a vectorize(enable) directive")
}

func main() {
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprint(os.Stderr, Usage)
		flag.PrintDefaults()
		os.Exit(0)
	}

	logger := remark.Discard()
	conf := ssabuild.FromFiles(flag.Args()).Default()
	switch logPath {
	case "":
	case "-":
		conf = conf.WithBuildLog(os.Stderr, log.LstdFlags)
		logger = remark.NewLogger(newZap(os.Stderr), "loopvec")
	default:
		f, err := os.Create(logPath)
		if err != nil {
			log.Fatalf("Cannot create log %s: %v", logPath, err)
		}
		defer f.Close()
		conf = conf.WithBuildLog(f, log.LstdFlags)
		logger = remark.NewLogger(newZap(f), "loopvec")
	}

	info, err := conf.Build()
	if err != nil {
		log.Fatal("Build failed: ", err)
	}

	cfg := legality.DefaultConfig()
	cfg.VectorizeOnlyWhenForced = onlyForced
	if forceWidth > 0 {
		cfg.Hint.Width = forceWidth
	}
	if forceInterleave > 0 {
		cfg.Hint.Interleave = forceInterleave
		cfg.Hint.ForceInterleave = true
	}

	var dirs []*hint.FileDirectives
	for _, pkgInfo := range info.LProg.InitialPackages() {
		for _, file := range pkgInfo.Files {
			dirs = append(dirs, hint.ParseFile(info.FSet, file))
		}
	}

	good := color.New(color.FgGreen)
	bad := color.New(color.FgRed)
	skip := color.New(color.FgYellow)

	for _, fn := range sourceFuncs(info) {
		ore := remark.NewEmitter(info.FSet, logger.SugaredLogger, allReasons)
		for _, rep := range loopvec.AnalyzeFunction(fn, dirs, cfg, ore, logger) {
			pos := info.FSet.Position(rep.Loop.Pos())
			switch {
			case rep.Vectorizable:
				good.Printf("%s: %s: %s\n", pos, fn.Name(), rep.Verdict())
			case rep.Skipped:
				skip.Printf("%s: %s: %s\n", pos, fn.Name(), rep.Verdict())
			default:
				bad.Printf("%s: %s: %s\n", pos, fn.Name(), rep.Verdict())
				if len(rep.Remarks) > 1 {
					for _, r := range rep.Remarks[1:] {
						bad.Printf("\t%s\n", r.Message)
					}
				}
			}
		}
	}
}

// sourceFuncs collects the functions of the initial packages, including
// function literals nested inside them.
func sourceFuncs(info *ssabuild.Info) []*ssa.Function {
	var fns []*ssa.Function
	var addAnons func(fn *ssa.Function)
	addAnons = func(fn *ssa.Function) {
		fns = append(fns, fn)
		for _, anon := range fn.AnonFuncs {
			addAnons(anon)
		}
	}
	for _, pkgInfo := range info.LProg.InitialPackages() {
		pkg := info.Prog.Package(pkgInfo.Pkg)
		if pkg == nil {
			continue
		}
		for _, member := range pkg.Members {
			if fn, ok := member.(*ssa.Function); ok && fn.Blocks != nil {
				addAnons(fn)
			}
		}
	}
	return fns
}

func newZap(w *os.File) *zap.SugaredLogger {
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(w),
		zap.DebugLevel,
	)
	return zap.New(core).Sugar()
}
