package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/gpuforge/shaderlive/internal/analysis"
)

type palette struct {
	header, kind, maxLive, live, err *color.Color
}

func (p palette) colors() []*color.Color {
	return []*color.Color{p.header, p.kind, p.maxLive, p.live, p.err}
}

// newPalette returns the colors for mode. "auto" colors only when stdout is a terminal.
func newPalette(mode string) (palette, error) {
	p := palette{
		header:  color.New(color.FgCyan, color.Bold),
		kind:    color.New(color.FgMagenta),
		maxLive: color.New(color.FgYellow, color.Bold),
		live:    color.New(color.FgGreen),
		err:     color.New(color.FgRed, color.Bold),
	}
	switch mode {
	case "auto":
	case "on":
		for _, c := range p.colors() {
			c.EnableColor()
		}
	case "off":
		for _, c := range p.colors() {
			c.DisableColor()
		}
	default:
		return palette{}, fmt.Errorf("invalid --color %q (expected auto|on|off)", mode)
	}
	return p, nil
}

func plainPalette() palette {
	p, _ := newPalette("off")
	return p
}

// writeText writes one section per report:
//
//	func NAME [KIND] max live: gpr=2 pred=1
//	  blk1 <- 0 -> 3 (2 instrs)
//	    live-in:  %r1 %p2
//	    live-out: %r1
//	    first-use: %r1@0
//	    0: gpr=1
func writeText(w io.Writer, reports []*analysis.Report, p palette) error {
	bw := bufio.NewWriter(w)
	for i, r := range reports {
		if i > 0 {
			bw.WriteByte('\n')
		}
		fmt.Fprintf(bw, "%s %s max live: %s\n", p.header.Sprintf("func %s", r.Function), p.kind.Sprintf("[%s]", r.Kind),
			p.maxLive.Sprint(analysis.FormatCounts(r.MaxLive)))

		for _, b := range r.Blocks {
			fmt.Fprintf(bw, "  blk%d", b.Index)
			if len(b.Preds) > 0 {
				fmt.Fprintf(bw, " <- %s", joinInts(b.Preds))
			}
			if len(b.Succs) > 0 {
				fmt.Fprintf(bw, " -> %s", joinInts(b.Succs))
			}
			fmt.Fprintf(bw, " (%d instrs)\n", b.NumInstrs)
			fmt.Fprintf(bw, "    live-in:  %s\n", p.live.Sprint(joinOrDash(b.LiveIn)))
			fmt.Fprintf(bw, "    live-out: %s\n", p.live.Sprint(joinOrDash(b.LiveOut)))
			if len(b.FirstUses) > 0 {
				uses := make([]string, 0, len(b.LiveIn))
				for _, v := range b.LiveIn {
					uses = append(uses, fmt.Sprintf("%s@%d", v, b.FirstUses[v]))
				}
				fmt.Fprintf(bw, "    first-use: %s\n", strings.Join(uses, " "))
			}
			for ip, pressure := range b.InstrPressure {
				fmt.Fprintf(bw, "    %d: %s\n", ip, analysis.FormatCounts(pressure))
			}
		}
	}
	return bw.Flush()
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ", ")
}

func joinOrDash(xs []string) string {
	if len(xs) == 0 {
		return "-"
	}
	return strings.Join(xs, " ")
}
