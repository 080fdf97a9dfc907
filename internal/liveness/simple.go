package liveness

import (
	"fmt"
	"slices"

	"github.com/kr/pretty"
	"github.com/willf/bitset"

	"github.com/gpuforge/shaderlive/internal/ir"
	"github.com/gpuforge/shaderlive/internal/liveapi"
)

// ssaNumbering assigns dense bit positions to the SSA values of a function. Values of different register files
// may share an SSA index, so the index itself cannot be the position.
type ssaNumbering struct {
	slots  map[ir.SSAValue]uint
	values []ir.SSAValue
}

func (n *ssaNumbering) number(v ir.SSAValue) uint {
	slot, ok := n.slots[v]
	if !ok {
		slot = uint(len(n.values))
		n.slots[v] = slot
		n.values = append(n.values, v)
	}
	return slot
}

// SimpleBlockLiveness is the classic live-in/live-out liveness of a block plus the last in-block use of each
// value.
type SimpleBlockLiveness struct {
	defs, uses      bitset.BitSet
	liveIn, liveOut bitset.BitSet
	lastUse         map[ir.SSAValue]int
	// numbering is shared by all blocks of a function.
	numbering *ssaNumbering
}

var _ BlockLiveness = (*SimpleBlockLiveness)(nil)

func (bl *SimpleBlockLiveness) addDef(v ir.SSAValue) {
	bl.defs.Set(bl.numbering.number(v))
}

// addUse records a use at ip. Uses are added in ip order, so the stored value ends up being the last use.
func (bl *SimpleBlockLiveness) addUse(v ir.SSAValue, ip int) {
	bl.uses.Set(bl.numbering.number(v))
	bl.lastUse[v] = ip
}

func (bl *SimpleBlockLiveness) test(set *bitset.BitSet, v ir.SSAValue) bool {
	slot, ok := bl.numbering.slots[v]
	return ok && set.Test(slot)
}

// IsLiveAfterIP implements BlockLiveness.IsLiveAfterIP.
func (bl *SimpleBlockLiveness) IsLiveAfterIP(v ir.SSAValue, ip int) bool {
	if bl.test(&bl.liveOut, v) {
		return true
	}
	if lastUseIP, ok := bl.lastUse[v]; ok {
		return lastUseIP > ip
	}
	return false
}

// IsLiveIn implements BlockLiveness.IsLiveIn.
func (bl *SimpleBlockLiveness) IsLiveIn(v ir.SSAValue) bool {
	return bl.test(&bl.liveIn, v)
}

// IsLiveOut implements BlockLiveness.IsLiveOut.
func (bl *SimpleBlockLiveness) IsLiveOut(v ir.SSAValue) bool {
	return bl.test(&bl.liveOut, v)
}

// LastUse returns the index of the last instruction of this block reading v.
func (bl *SimpleBlockLiveness) LastUse(v ir.SSAValue) (ip int, ok bool) {
	ip, ok = bl.lastUse[v]
	return
}

// LiveIn returns the live-in values sorted by ir.CompareSSAValues.
func (bl *SimpleBlockLiveness) LiveIn() []ir.SSAValue {
	return bl.collect(&bl.liveIn)
}

// LiveOut returns the live-out values sorted by ir.CompareSSAValues.
func (bl *SimpleBlockLiveness) LiveOut() []ir.SSAValue {
	return bl.collect(&bl.liveOut)
}

func (bl *SimpleBlockLiveness) collect(set *bitset.BitSet) []ir.SSAValue {
	var ret []ir.SSAValue
	for i, ok := set.NextSet(0); ok; i, ok = set.NextSet(i + 1) {
		if i >= uint(len(bl.numbering.values)) {
			panic(fmt.Sprintf("BUG: bit %d in a live set was never numbered", i))
		}
		ret = append(ret, bl.numbering.values[i])
	}
	slices.SortFunc(ret, ir.CompareSSAValues)
	return ret
}

// blockIP is the position of an instruction within a function.
type blockIP struct {
	block, ip int
}

// SimpleLiveness is the classic iterative live-in/live-out analysis of a whole function.
type SimpleLiveness struct {
	ssaBlockIP map[ir.SSAValue]blockIP
	blocks     []*SimpleBlockLiveness
}

var _ Liveness = (*SimpleLiveness)(nil)

// NewSimpleLiveness computes the liveness of every SSA value of f.
func NewSimpleLiveness(f *ir.Function) *SimpleLiveness {
	l := newSimpleLocalLiveness(f)
	liveIn := make([]bitset.BitSet, f.NumBlocks())
	liveOut := make([]bitset.BitSet, f.NumBlocks())
	df := l.dataflow(f, liveIn, liveOut)
	df.Solve()

	for i, bl := range l.blocks {
		bl.liveIn, bl.liveOut = liveIn[i], liveOut[i]
	}

	if liveapi.LivenessLoggingEnabled {
		for i, bl := range l.blocks {
			fmt.Printf("simple liveness of %s blk%d: in=%v out=%v last uses=%s\n",
				f.Name, i, bl.LiveIn(), bl.LiveOut(), pretty.Sprint(bl.lastUse))
		}
	}
	return l
}

// newSimpleLocalLiveness collects the defs, uses and last uses of every block of f.
func newSimpleLocalLiveness(f *ir.Function) *SimpleLiveness {
	l := &SimpleLiveness{
		ssaBlockIP: make(map[ir.SSAValue]blockIP),
		blocks:     make([]*SimpleBlockLiveness, 0, f.NumBlocks()),
	}
	numbering := &ssaNumbering{slots: make(map[ir.SSAValue]uint)}

	for bi, b := range f.Blocks {
		bl := &SimpleBlockLiveness{lastUse: make(map[ir.SSAValue]int), numbering: numbering}
		for ip, instr := range b.Instrs {
			instr.ForEachSSAUse(func(v ir.SSAValue) {
				bl.addUse(v, ip)
			})
			instr.ForEachSSADef(func(v ir.SSAValue) {
				l.ssaBlockIP[v] = blockIP{block: bi, ip: ip}
				bl.addDef(v)
			})
		}
		l.blocks = append(l.blocks, bl)
	}
	return l
}

// dataflow returns the live-in/live-out problem over the local facts of l, solving into liveIn and liveOut.
func (l *SimpleLiveness) dataflow(f *ir.Function, liveIn, liveOut []bitset.BitSet) *BackwardDataflow[bitset.BitSet, bitset.BitSet] {
	return &BackwardDataflow[bitset.BitSet, bitset.BitSet]{
		CFG:      f,
		BlockIn:  liveIn,
		BlockOut: liveOut,
		Transfer: func(blockIdx int, _ *ir.BasicBlock, in *bitset.BitSet, out *bitset.BitSet) bool {
			bl := l.blocks[blockIdx]
			next := out.Union(&bl.uses)
			next.InPlaceDifference(&bl.defs)
			// The in-state only ever grows, so it changed iff next has a member in does not.
			changed := next.Difference(in).Any()
			*in = *next
			return changed
		},
		Join: func(out *bitset.BitSet, succIn *bitset.BitSet) {
			out.InPlaceUnion(succIn)
		},
	}
}

// NumBlocks implements Liveness.NumBlocks.
func (l *SimpleLiveness) NumBlocks() int {
	return len(l.blocks)
}

// BlockLive implements Liveness.BlockLive.
func (l *SimpleLiveness) BlockLive(idx int) BlockLiveness {
	return l.blocks[idx]
}

// Block returns the SimpleBlockLiveness of the block at idx.
func (l *SimpleLiveness) Block(idx int) *SimpleBlockLiveness {
	return l.blocks[idx]
}

// DefBlockIP returns the block and instruction index defining v.
func (l *SimpleLiveness) DefBlockIP(v ir.SSAValue) (block, ip int) {
	pos, ok := l.ssaBlockIP[v]
	if !ok {
		panic(fmt.Sprintf("BUG: %v has no definition", v))
	}
	return pos.block, pos.ip
}

// Interferes returns true if a and b are live at the same time and so cannot share a register.
//
// Values defined by the same instruction always interfere. Otherwise the value defined later interferes with
// the other iff the other is live right after that definition.
func (l *SimpleLiveness) Interferes(a, b ir.SSAValue) bool {
	ab, ai := l.DefBlockIP(a)
	bb, bi := l.DefBlockIP(b)

	switch c := cmpBlockIP(ab, ai, bb, bi); {
	case c == 0:
		return true
	case c < 0:
		return l.blocks[bb].IsLiveAfterIP(a, bi)
	default:
		return l.blocks[ab].IsLiveAfterIP(b, ai)
	}
}

func cmpBlockIP(ab, ai, bb, bi int) int {
	if ab != bb {
		return ab - bb
	}
	return ai - bi
}

// SortedDefs returns every defined value of the function ordered by definition point.
func (l *SimpleLiveness) SortedDefs() []ir.SSAValue {
	ret := make([]ir.SSAValue, 0, len(l.ssaBlockIP))
	for v := range l.ssaBlockIP {
		ret = append(ret, v)
	}
	slices.SortFunc(ret, func(a, b ir.SSAValue) int {
		pa, pb := l.ssaBlockIP[a], l.ssaBlockIP[b]
		if c := cmpBlockIP(pa.block, pa.ip, pb.block, pb.ip); c != 0 {
			return c
		}
		return ir.CompareSSAValues(a, b)
	})
	return ret
}
