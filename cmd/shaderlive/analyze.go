package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/kr/pretty"
	"github.com/spf13/cobra"

	"github.com/gpuforge/shaderlive/internal/analysis"
	"github.com/gpuforge/shaderlive/internal/ir"
)

type analyzeOptions struct {
	colorMode     *string
	configPath    string
	kind          string
	files         []string
	concurrency   int
	instrPressure bool
	format        string
	output        string
	dump          bool
}

func newAnalyzeCmd(colorMode *string) *cobra.Command {
	o := &analyzeOptions{colorMode: colorMode}
	cmd := &cobra.Command{
		Use:   "analyze [flags] [FILE...]",
		Short: "Analyze functions in textual SSA form",
		Long: `Analyze reads functions in textual SSA form from the given files, or from stdin when no file or "-" is
given, and reports their liveness and register pressure.

Flags override the values of the --config file.`,
		RunE: o.run,
	}
	flags := cmd.Flags()
	flags.StringVar(&o.configPath, "config", "", "TOML file with an [analysis] table")
	flags.StringVar(&o.kind, "kind", analysis.KindSimple.String(), "liveness analysis (simple|next-use)")
	flags.StringSliceVar(&o.files, "files", nil, "register files considered by the next-use analysis (default all)")
	flags.IntVar(&o.concurrency, "concurrency", 0, "number of functions analyzed at the same time (default GOMAXPROCS)")
	flags.BoolVar(&o.instrPressure, "instr-pressure", false, "include the pressure of every instruction")
	flags.StringVar(&o.format, "format", "text", "output format (text|msgpack)")
	flags.StringVarP(&o.output, "output", "o", "", "write the output to this file instead of stdout")
	flags.BoolVar(&o.dump, "dump", false, "pretty-print the raw reports instead of the text table")
	return cmd
}

// config returns the analysis.Config from --config overridden by the flags set explicitly.
func (o *analyzeOptions) config(cmd *cobra.Command) (*analysis.Config, error) {
	cfg := analysis.NewConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = analysis.LoadConfig(o.configPath); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("kind") {
		kind, err := analysis.ParseKind(o.kind)
		if err != nil {
			return nil, err
		}
		cfg = cfg.WithKind(kind)
	}
	if flags.Changed("files") {
		files, err := ir.ParseRegFileSet(o.files)
		if err != nil {
			return nil, err
		}
		if files.IsEmpty() {
			return nil, fmt.Errorf("--files must name at least one register file")
		}
		cfg = cfg.WithRegFiles(files)
	}
	if flags.Changed("concurrency") {
		cfg = cfg.WithConcurrency(o.concurrency)
	}
	if flags.Changed("instr-pressure") {
		cfg = cfg.WithInstrPressure(o.instrPressure)
	}
	return cfg, nil
}

func (o *analyzeOptions) run(cmd *cobra.Command, args []string) (err error) {
	switch o.format {
	case "text":
	case "msgpack":
		if o.dump {
			return fmt.Errorf("--dump requires --format text")
		}
	default:
		return fmt.Errorf("invalid --format %q (expected text|msgpack)", o.format)
	}
	p, err := newPalette(*o.colorMode)
	if err != nil {
		return err
	}

	cfg, err := o.config(cmd)
	if err != nil {
		return err
	}
	funcs, err := readFunctions(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	reports, err := analysis.Analyze(cmd.Context(), cfg, funcs)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if o.output != "" {
		f, ferr := os.Create(o.output)
		if ferr != nil {
			return ferr
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
		if *o.colorMode == "auto" {
			p = plainPalette()
		}
	}

	switch {
	case o.format == "msgpack":
		return analysis.EncodeReports(w, reports)
	case o.dump:
		_, err = pretty.Fprintf(w, "%# v\n", reports)
		return err
	default:
		return writeText(w, reports, p)
	}
}

// readFunctions parses every file of paths, in order. "-" or no paths at all reads stdin.
func readFunctions(stdIn io.Reader, paths []string) ([]*ir.Function, error) {
	if len(paths) == 0 {
		paths = []string{"-"}
	}
	var ret []*ir.Function
	for _, path := range paths {
		var src []byte
		var err error
		if path == "-" {
			path = "<stdin>"
			src, err = io.ReadAll(stdIn)
		} else {
			src, err = os.ReadFile(path)
		}
		if err != nil {
			return nil, fmt.Errorf("error reading %s: %w", path, err)
		}
		funcs, err := ir.Parse(bytes.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		ret = append(ret, funcs...)
	}
	return ret, nil
}
