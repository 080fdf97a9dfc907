package liveness

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gpuforge/shaderlive/internal/ir"
)

func requireCountsMatchMembers(t *testing.T, s *LiveSet) {
	t.Helper()
	var exp ir.PerRegFile[uint32]
	for _, v := range s.Values() {
		exp[v.File()]++
	}
	for _, f := range ir.AllRegFiles() {
		require.Equal(t, exp[f], s.Count(f), "count of %s", f)
	}
}

func TestLiveSet_InsertRemove(t *testing.T) {
	r1, r2 := ir.NewSSAValue(1, ir.RegFileGPR), ir.NewSSAValue(2, ir.RegFileGPR)
	p3 := ir.NewSSAValue(3, ir.RegFilePred)

	s := NewLiveSet()
	require.True(t, s.Insert(r1))
	require.False(t, s.Insert(r1))
	require.True(t, s.Insert(p3))
	require.True(t, s.Contains(r1))
	require.False(t, s.Contains(r2))
	require.Equal(t, uint32(1), s.Count(ir.RegFileGPR))
	require.Equal(t, uint32(1), s.Count(ir.RegFilePred))
	require.Equal(t, 2, s.Len())

	require.False(t, s.Remove(r2))
	require.True(t, s.Remove(r1))
	require.False(t, s.Remove(r1))
	require.Equal(t, uint32(0), s.Count(ir.RegFileGPR))
	require.Equal(t, []ir.SSAValue{p3}, s.Values())
}

func TestLiveSet_CountInvariant(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	var pool []ir.SSAValue
	for i := uint32(1); i <= 64; i++ {
		pool = append(pool, ir.NewSSAValue(i, ir.RegFile(rnd.Intn(int(ir.NumRegFiles)))))
	}

	s := NewLiveSet()
	for i := 0; i < 2000; i++ {
		v := pool[rnd.Intn(len(pool))]
		had := s.Contains(v)
		if rnd.Intn(2) == 0 {
			require.Equal(t, !had, s.Insert(v))
		} else {
			require.Equal(t, had, s.Remove(v))
		}
		requireCountsMatchMembers(t, s)
	}
}

func TestLiveSet_CloneExtend(t *testing.T) {
	r1, r2 := ir.NewSSAValue(1, ir.RegFileGPR), ir.NewSSAValue(2, ir.RegFileUGPR)
	s := NewLiveSetFrom(r1)
	c := s.Clone()
	c.Extend(r2, r1)
	require.Equal(t, []ir.SSAValue{r1}, s.Values())
	require.Equal(t, []ir.SSAValue{r1, r2}, c.Values())
	require.Equal(t, uint32(1), c.Count(ir.RegFileUGPR))
	require.Equal(t, uint32(0), s.Count(ir.RegFileUGPR))
}

func TestLiveSet_InsertInstrTopDown(t *testing.T) {
	fn := mustParse(t, `
func f
block 0
    %r1 = mov 0x0
    %r2 = mov 0x0
    {%r3 %r4}, %r5 = tex %r1
    st %r2, %r3, %r4
`)
	l := NewSimpleLiveness(fn)
	bl := l.BlockLive(0)
	instrs := fn.Blocks[0].Instrs

	s := NewLiveSet()
	s.InsertInstrTopDown(0, instrs[0], bl)
	s.InsertInstrTopDown(1, instrs[1], bl)
	oldLive := s.Count(ir.RegFileGPR)
	require.Equal(t, uint32(2), oldLive)

	peak := s.InsertInstrTopDown(2, instrs[2], bl)
	// The vector destination is live together with the source it replaces.
	require.Equal(t, oldLive+2, peak[ir.RegFileGPR])
	// %r1 died, and %r5 is never used so it is dead right after its definition.
	require.Equal(t, uint32(3), s.Count(ir.RegFileGPR))
	require.False(t, s.Contains(ir.NewSSAValue(1, ir.RegFileGPR)))
	require.False(t, s.Contains(ir.NewSSAValue(5, ir.RegFileGPR)))
	requireCountsMatchMembers(t, s)

	peak = s.InsertInstrTopDown(3, instrs[3], bl)
	require.Equal(t, uint32(3), peak[ir.RegFileGPR])
	require.Equal(t, 0, s.Len())
}

func TestLiveSet_InsertInstrTopDown_scalarReusesKilledSlot(t *testing.T) {
	fn := mustParse(t, `
func f
block 0
    %r1 = mov 0x0
    %r2 = iadd %r1, %r1
    st %r2
`)
	l := NewSimpleLiveness(fn)
	bl := l.BlockLive(0)
	s := NewLiveSet()
	s.InsertInstrTopDown(0, fn.Blocks[0].Instrs[0], bl)
	peak := s.InsertInstrTopDown(1, fn.Blocks[0].Instrs[1], bl)
	require.Equal(t, uint32(1), peak[ir.RegFileGPR])
	require.Equal(t, []ir.SSAValue{ir.NewSSAValue(2, ir.RegFileGPR)}, s.Values())
}

func TestLiveSet_InsertInstrTopDown_defNotInSet(t *testing.T) {
	r1 := ir.NewSSAValue(1, ir.RegFileGPR)
	// A value defined twice by one instruction is inserted once but removed twice.
	instr := ir.NewInstr("mov").Def(ir.Ref(r1), ir.Ref(r1))
	fn := &ir.Function{Name: "f", Blocks: []*ir.BasicBlock{{Instrs: []*ir.Instr{instr}}}}
	l := NewSimpleLiveness(fn)

	require.Panics(t, func() {
		NewLiveSet().InsertInstrTopDown(0, instr, l.BlockLive(0))
	})
}

func mustParse(t *testing.T, src string) *ir.Function {
	t.Helper()
	fns, err := ir.ParseString(src)
	require.NoError(t, err)
	require.Len(t, fns, 1)
	return fns[0]
}
