package analysis

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gpuforge/shaderlive/internal/ir"
	"github.com/gpuforge/shaderlive/internal/liveness"
)

const branchSrc = `func branch
block 0 -> 1, 2
    %r1 = mov 0x1
    %p2 = isetp %r1, 0x0
block 1 -> 3
    %r3 = iadd %r1, %r1
    st %r3, %p2
block 2 -> 3
    nop
block 3
    regout %r1
`

func mustParse(t *testing.T, src string) []*ir.Function {
	t.Helper()
	fns, err := ir.ParseString(src)
	require.NoError(t, err)
	return fns
}

func TestAnalyze_simple(t *testing.T) {
	reports, err := Analyze(context.Background(), NewConfig().WithInstrPressure(true), mustParse(t, branchSrc))
	require.NoError(t, err)
	require.Len(t, reports, 1)

	require.Equal(t, &Report{
		Function: "branch",
		Kind:     "simple",
		Files:    []string{"gpr", "ugpr", "pred", "upred", "carry", "bar", "mem"},
		MaxLive:  map[string]uint32{"gpr": 2, "pred": 1},
		Blocks: []BlockReport{
			{
				Index:         0,
				NumInstrs:     2,
				Succs:         []int{1, 2},
				LiveOut:       []string{"%r1", "%p2"},
				InstrPressure: []map[string]uint8{{"gpr": 1}, {"pred": 1}},
			},
			{
				Index:         1,
				NumInstrs:     2,
				Preds:         []int{0},
				Succs:         []int{3},
				LiveIn:        []string{"%r1", "%p2"},
				LiveOut:       []string{"%r1"},
				InstrPressure: []map[string]uint8{{"gpr": 1}, nil},
			},
			{
				Index:         2,
				NumInstrs:     1,
				Preds:         []int{0},
				Succs:         []int{3},
				LiveIn:        []string{"%r1"},
				LiveOut:       []string{"%r1"},
				InstrPressure: []map[string]uint8{nil},
			},
			{
				Index:         3,
				NumInstrs:     1,
				Preds:         []int{1, 2},
				LiveIn:        []string{"%r1"},
				InstrPressure: []map[string]uint8{nil},
			},
		},
		Defs: []DefReport{
			{Value: "%r1", Block: 0, IP: 0},
			{Value: "%p2", Block: 0, IP: 1},
			{Value: "%r3", Block: 1, IP: 0},
		},
	}, reports[0])
}

func TestAnalyze_nextUse(t *testing.T) {
	cfg := NewConfig().WithKind(KindNextUse).WithRegFiles(ir.NewRegFileSet(ir.RegFileGPR))
	reports, err := Analyze(context.Background(), cfg, mustParse(t, branchSrc))
	require.NoError(t, err)
	require.Len(t, reports, 1)
	r := reports[0]

	require.Equal(t, "next-use", r.Kind)
	require.Equal(t, []string{"gpr"}, r.Files)
	require.Nil(t, r.Defs)
	require.Equal(t, uint32(2), r.MaxLive["gpr"])

	for bi, exp := range []BlockReport{
		{LiveOut: []string{"%r1"}},
		{LiveIn: []string{"%r1"}, LiveOut: []string{"%r1"}, FirstUses: map[string]int{"%r1": 0}},
		{LiveIn: []string{"%r1"}, LiveOut: []string{"%r1"}, FirstUses: map[string]int{"%r1": 1}},
		{LiveIn: []string{"%r1"}, FirstUses: map[string]int{"%r1": 0}},
	} {
		actual := r.Blocks[bi]
		require.Equal(t, bi, actual.Index)
		require.Equal(t, exp.LiveIn, actual.LiveIn, "blk%d", bi)
		require.Equal(t, exp.LiveOut, actual.LiveOut, "blk%d", bi)
		require.Equal(t, exp.FirstUses, actual.FirstUses, "blk%d", bi)
		require.Nil(t, actual.InstrPressure)
	}
}

func TestAnalyze_manyFunctions(t *testing.T) {
	var sb strings.Builder
	const n = 50
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "func f%d\nblock 0\n", i)
		for j := 1; j <= i+1; j++ {
			fmt.Fprintf(&sb, "    %%r%d = mov 0x0\n", j)
		}
		sb.WriteString("    st")
		for j := 1; j <= i+1; j++ {
			fmt.Fprintf(&sb, " %%r%d", j)
		}
		sb.WriteString("\n")
	}
	funcs := mustParse(t, sb.String())
	require.Len(t, funcs, n)

	for _, concurrency := range []int{1, 4, 100} {
		reports, err := Analyze(context.Background(), NewConfig().WithConcurrency(concurrency), funcs)
		require.NoError(t, err)
		require.Len(t, reports, n)
		for i, r := range reports {
			// Reports keep the order of the input.
			require.Equal(t, fmt.Sprintf("f%d", i), r.Function)
			require.Equal(t, map[string]uint32{"gpr": uint32(i + 1)}, r.MaxLive)
		}
	}
}

func TestAnalyze_nextUseRecyclesRecords(t *testing.T) {
	var sb strings.Builder
	const n = 20
	for i := 0; i < n; i++ {
		// Sizes alternate so that a recycled pool is sometimes larger and sometimes smaller than needed.
		size := 1 + (i%3)*150
		fmt.Fprintf(&sb, "func f%d\nblock 0 -> 1\n", i)
		for j := 1; j <= size; j++ {
			fmt.Fprintf(&sb, "    %%r%d = mov 0x0\n", j)
		}
		sb.WriteString("block 1\n    st")
		for j := 1; j <= size; j++ {
			fmt.Fprintf(&sb, " %%r%d", j)
		}
		sb.WriteString("\n")
	}
	funcs := mustParse(t, sb.String())

	cfg := NewConfig().WithKind(KindNextUse).WithConcurrency(1)
	reports, err := Analyze(context.Background(), cfg, funcs)
	require.NoError(t, err)
	for i, fn := range funcs {
		require.Equal(t, newReport(cfg, fn, new(liveness.NextUseScratch)), reports[i], fn.Name)
	}
}

func TestAnalyze_errors(t *testing.T) {
	t.Run("nil config and no functions", func(t *testing.T) {
		reports, err := Analyze(context.Background(), nil, nil)
		require.NoError(t, err)
		require.Nil(t, reports)
	})

	t.Run("invalid function", func(t *testing.T) {
		valid := mustParse(t, branchSrc)[0]
		invalid := &ir.Function{Name: "empty"}
		_, err := Analyze(context.Background(), nil, []*ir.Function{valid, invalid})
		require.EqualError(t, err, "invalid function #1: function empty has no blocks")
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Analyze(ctx, nil, mustParse(t, branchSrc))
		require.ErrorIs(t, err, context.Canceled)
	})
}
