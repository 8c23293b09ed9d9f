package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/raymyers/ralph-bt/pkg/cfg"
	"github.com/raymyers/ralph-bt/pkg/lexer"
	"github.com/raymyers/ralph-bt/pkg/linear"
	"github.com/raymyers/ralph-bt/pkg/parser"
	"github.com/raymyers/ralph-bt/pkg/pipeline"
	"github.com/raymyers/ralph-bt/pkg/regalloc"
	"github.com/raymyers/ralph-bt/pkg/target"
	"github.com/raymyers/ralph-bt/pkg/vir"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var version = "0.1.0"

// Debug flags for dumping intermediate forms
var (
	dVIR    bool
	dCFG    bool
	dGraph  bool
	dDot    bool
	dAlloc  bool
	dLinear bool
)

// Allocation options
var (
	targetName string
	numRegs    int
	policyName string
	prune      bool
	jobs       int
	failFast   bool
	verbose    bool
)

// ErrCompileFailed indicates at least one unit did not compile
var ErrCompileFailed = errors.New("compilation failed")

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	// Normalize single-dash dump flags to double-dash for pflag compatibility
	rootCmd.SetArgs(normalizeFlags(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

// debugFlagNames lists the dump flags that also accept single-dash style
var debugFlagNames = []string{"dvir", "dcfg", "dgraph", "ddot", "dalloc", "dlinear"}

// normalizeFlags converts single-dash flags like -dcfg to --dcfg
func normalizeFlags(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		for _, flagName := range debugFlagNames {
			if arg == "-"+flagName {
				result[i] = "--" + flagName
				break
			}
		}
		if result[i] == "" {
			result[i] = arg
		}
	}
	return result
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ralph-bt [files...]",
		Short: "ralph-bt is the register allocation backend of a binary translator",
		Long: `ralph-bt reads translated guest code as virtual-register instruction
streams, builds and resolves their control flow graphs, allocates host
registers with spilling, and lays the result out as linear code.`,
		Version:       version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cmd.Help()
				return nil
			}
			opts, err := buildOptions(errOut)
			if err != nil {
				fmt.Fprintf(errOut, "ralph-bt: %v\n", err)
				return err
			}
			var failed error
			for _, filename := range args {
				if err := compileFile(cmd.Context(), filename, opts, out, errOut); err != nil {
					failed = err
					if failFast {
						return err
					}
				}
			}
			return failed
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.Flags().BoolVarP(&dVIR, "dvir", "", false, "Dump the parsed instruction stream")
	rootCmd.Flags().BoolVarP(&dCFG, "dcfg", "", false, "Dump the resolved control flow graph")
	rootCmd.Flags().BoolVarP(&dGraph, "dgraph", "", false, "Dump the block graph as node and edge records")
	rootCmd.Flags().BoolVarP(&dDot, "ddot", "", false, "Dump the block graph in Graphviz format")
	rootCmd.Flags().BoolVarP(&dAlloc, "dalloc", "", false, "Dump register assignments and the allocated graph")
	rootCmd.Flags().BoolVarP(&dLinear, "dlinear", "", false, "Dump linear code and frame layout")

	rootCmd.Flags().StringVar(&targetName, "target", "amd64",
		"Host target: "+strings.Join(target.BuiltinNames(), ", ")+", or a YAML file")
	rootCmd.Flags().IntVar(&numRegs, "regs", 0, "Use exactly N registers (0 keeps the target's register file)")
	rootCmd.Flags().StringVar(&policyName, "policy", "furthest-next-use", "Spill policy: furthest-next-use or furthest-end")
	rootCmd.Flags().BoolVar(&prune, "prune", false, "Drop unreachable blocks before allocation")
	rootCmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "Units compiled in parallel (0 means no limit)")
	rootCmd.Flags().BoolVar(&failFast, "fail-fast", false, "Stop at the first unit that fails")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log each compilation stage")

	return rootCmd
}

// loadTarget resolves --target and --regs
func loadTarget() (*target.Target, error) {
	t, ok := target.Builtin(targetName)
	if !ok {
		var err error
		t, err = target.Load(targetName)
		if err != nil {
			return nil, err
		}
	}
	if numRegs < 0 {
		return nil, fmt.Errorf("--regs must not be negative, got %d", numRegs)
	}
	if numRegs > 0 {
		t = t.WithBudget(numRegs)
	}
	return t, nil
}

// buildOptions creates pipeline.Options from CLI flags
func buildOptions(errOut io.Writer) (pipeline.Options, error) {
	t, err := loadTarget()
	if err != nil {
		return pipeline.Options{}, err
	}
	policy, err := regalloc.PolicyByName(policyName)
	if err != nil {
		return pipeline.Options{}, err
	}
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return pipeline.Options{
		Target:   t,
		Policy:   policy,
		Prune:    prune,
		Workers:  jobs,
		FailFast: failFast,
		Logger:   slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level})),
	}, nil
}

// parseFile reads and parses an instruction-stream file
func parseFile(filename string, errOut io.Writer) ([]vir.Unit, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(errOut, "ralph-bt: error reading %s: %v\n", filename, err)
		return nil, err
	}
	p := parser.New(lexer.New(string(content)))
	units := p.ParseFile()
	if len(p.Errors()) > 0 {
		for _, e := range p.Errors() {
			fmt.Fprintf(errOut, "%s: %s\n", filename, e)
		}
		return nil, fmt.Errorf("parsing failed with %d errors", len(p.Errors()))
	}
	return units, nil
}

// isTerminal reports whether w is an interactive terminal
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// compileFile runs the pipeline over every unit in filename and writes the
// requested dumps.
func compileFile(ctx context.Context, filename string, opts pipeline.Options, out, errOut io.Writer) error {
	units, err := parseFile(filename, errOut)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var bar *progressbar.ProgressBar
	if len(units) > 1 && isTerminal(errOut) {
		bar = progressbar.NewOptions(len(units),
			progressbar.OptionSetWriter(errOut),
			progressbar.OptionSetDescription(filepath.Base(filename)),
			progressbar.OptionClearOnFinish())
		opts.Progress = func() { bar.Add(1) }
	}
	arts, err := pipeline.CompileAll(ctx, units, opts)
	if bar != nil {
		bar.Finish()
	}

	failed := 0
	for _, art := range arts {
		if art.Err != nil {
			failed++
			fmt.Fprintf(errOut, "ralph-bt: %s: %s: %v\n", filename, art.Unit.Name, art.Err)
		}
	}
	if err != nil && failed == 0 {
		fmt.Fprintf(errOut, "ralph-bt: %s: %v\n", filename, err)
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%s: %d of %d units: %w", filename, failed, len(units), ErrCompileFailed)
	}

	if err := writeDumps(filename, units, arts, opts.Target, out, errOut); err != nil {
		return err
	}
	if !anyDump() {
		fmt.Fprintf(errOut, "ralph-bt: %s: %d units compiled\n", filename, len(units))
	}
	return nil
}

func anyDump() bool {
	return dVIR || dCFG || dGraph || dDot || dAlloc || dLinear
}

// dump describes one enabled dump: its sibling-file extension and how to
// render every artifact into w.
type dump struct {
	enabled *bool
	ext     string
	render  func(w io.Writer) error
}

func writeDumps(filename string, units []vir.Unit, arts []*pipeline.Artifact, t *target.Target, out, errOut io.Writer) error {
	graphs := make([]*cfg.Graph, len(arts))
	for i, art := range arts {
		graphs[i] = art.Graph
	}

	exportAll := func(f cfg.Format) func(io.Writer) error {
		return func(w io.Writer) error {
			for _, g := range graphs {
				if err := cfg.Export(w, g, f); err != nil {
					return err
				}
			}
			return nil
		}
	}

	dumps := []dump{
		{&dVIR, ".parsed.vir", func(w io.Writer) error {
			vir.NewPrinter(w).PrintUnits(units)
			return nil
		}},
		{&dCFG, ".cfg", func(w io.Writer) error {
			cfg.NewPrinter(w).PrintGraphs(graphs)
			return nil
		}},
		{&dGraph, ".graph", exportAll(cfg.FormatText)},
		{&dDot, ".dot", exportAll(cfg.FormatDot)},
		{&dAlloc, ".alloc", func(w io.Writer) error {
			for i, art := range arts {
				if i > 0 {
					fmt.Fprintln(w)
				}
				regalloc.PrintResult(w, art.Alloc)
			}
			return nil
		}},
		{&dLinear, ".linear", func(w io.Writer) error {
			for i, art := range arts {
				if i > 0 {
					fmt.Fprintln(w)
				}
				linear.NewPrinter(w).WithRegisterNames(t.Registers).PrintFunction(art.Linear)
				art.Frame.Print(w)
			}
			return nil
		}},
	}

	for _, d := range dumps {
		if !*d.enabled {
			continue
		}
		if err := writeDump(dumpOutputFilename(filename, d.ext), d.render, out, errOut); err != nil {
			return err
		}
	}
	return nil
}

// writeDump renders into the sibling file and, for convenience, to stdout
func writeDump(outputFilename string, render func(io.Writer) error, out, errOut io.Writer) error {
	outFile, err := os.Create(outputFilename)
	if err != nil {
		fmt.Fprintf(errOut, "ralph-bt: error creating %s: %v\n", outputFilename, err)
		return err
	}
	defer outFile.Close()

	if err := render(outFile); err != nil {
		return err
	}
	return render(out)
}

// dumpOutputFilename returns the sibling file for a dump:
// prog.vir -> prog.cfg, prog.dot, ...
func dumpOutputFilename(filename, ext string) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	return base + ext
}
