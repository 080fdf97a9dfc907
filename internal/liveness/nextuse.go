package liveness

import (
	"fmt"
	"slices"

	"github.com/kr/pretty"

	"github.com/gpuforge/shaderlive/internal/ir"
	"github.com/gpuforge/shaderlive/internal/liveapi"
)

// ssaUseDef is what a block knows about one SSA value: whether the block defines it, and the ascending list of
// instruction pointers where it is used. Pointers >= the number of instructions of the block are uses in a
// successor, offset by the size of this block.
type ssaUseDef struct {
	defined bool
	uses    []int
}

func (e *ssaUseDef) addInBlockUse(ip int) {
	e.uses = append(e.uses, ip)
}

// addSuccessorUse records a use at useIP of some successor, and reports whether anything changed. Only the
// nearest successor use is kept.
func (e *ssaUseDef) addSuccessorUse(numBlockInstrs, useIP int) bool {
	// IPs are relative to the start of their block.
	useIP += numBlockInstrs

	if n := len(e.uses); n > 0 {
		last := &e.uses[n-1]
		switch {
		case *last < numBlockInstrs:
			// We've never seen a successor use before.
			e.uses = append(e.uses, useIP)
			return true
		case *last > useIP:
			*last = useIP
			return true
		default:
			return false
		}
	}
	e.uses = append(e.uses, useIP)
	return true
}

// NextUseBlockLiveness is the liveness of a block with the next-use points of each value.
type NextUseBlockLiveness struct {
	numInstrs int
	ssaMap    map[ir.SSAValue]*ssaUseDef
	pool      *liveapi.Pool[ssaUseDef]
}

var _ BlockLiveness = (*NextUseBlockLiveness)(nil)

func (bl *NextUseBlockLiveness) entry(v ir.SSAValue) *ssaUseDef {
	e, ok := bl.ssaMap[v]
	if !ok {
		e = bl.pool.Allocate()
		bl.ssaMap[v] = e
	}
	return e
}

// NumInstrs returns the number of instructions of the block.
func (bl *NextUseBlockLiveness) NumInstrs() int {
	return bl.numInstrs
}

// RangeLiveIn calls f for every value live-in to this block, in unspecified order.
func (bl *NextUseBlockLiveness) RangeLiveIn(f func(ir.SSAValue)) {
	for v, e := range bl.ssaMap {
		if !e.defined && len(e.uses) > 0 {
			f(v)
		}
	}
}

// LiveIn returns the values live-in to this block sorted by ir.CompareSSAValues.
func (bl *NextUseBlockLiveness) LiveIn() []ir.SSAValue {
	var ret []ir.SSAValue
	bl.RangeLiveIn(func(v ir.SSAValue) { ret = append(ret, v) })
	slices.SortFunc(ret, ir.CompareSSAValues)
	return ret
}

// LiveOut returns the values live-out of this block sorted by ir.CompareSSAValues.
func (bl *NextUseBlockLiveness) LiveOut() []ir.SSAValue {
	var ret []ir.SSAValue
	for v := range bl.ssaMap {
		if bl.IsLiveOut(v) {
			ret = append(ret, v)
		}
	}
	slices.SortFunc(ret, ir.CompareSSAValues)
	return ret
}

// FirstUse returns the ip of the first use of v.
//
// The returned ip is relative to the start of this block, even when the use is in a successor. ok is false if v
// is neither used in this block nor live-out.
func (bl *NextUseBlockLiveness) FirstUse(v ir.SSAValue) (ip int, ok bool) {
	if e, found := bl.ssaMap[v]; found && len(e.uses) > 0 {
		return e.uses[0], true
	}
	return 0, false
}

// NextUseAfterOrAtIP returns the ip of the first use of v which is greater than or equal to ip.
//
// All ips are relative to the start of this block. ok is false if v has no such use.
func (bl *NextUseBlockLiveness) NextUseAfterOrAtIP(v ir.SSAValue, ip int) (next int, ok bool) {
	e, found := bl.ssaMap[v]
	if !found {
		return 0, false
	}
	// uses is ascending, so this is the partition point of u < ip.
	i, _ := slices.BinarySearch(e.uses, ip)
	if i < len(e.uses) {
		return e.uses[i], true
	}
	return 0, false
}

// IsLiveAfterIP implements BlockLiveness.IsLiveAfterIP.
func (bl *NextUseBlockLiveness) IsLiveAfterIP(v ir.SSAValue, ip int) bool {
	if e, ok := bl.ssaMap[v]; ok && len(e.uses) > 0 {
		return e.uses[len(e.uses)-1] > ip
	}
	return false
}

// IsLiveIn implements BlockLiveness.IsLiveIn.
func (bl *NextUseBlockLiveness) IsLiveIn(v ir.SSAValue) bool {
	if e, ok := bl.ssaMap[v]; ok {
		return !e.defined && len(e.uses) > 0
	}
	return false
}

// IsLiveOut implements BlockLiveness.IsLiveOut.
func (bl *NextUseBlockLiveness) IsLiveOut(v ir.SSAValue) bool {
	if e, ok := bl.ssaMap[v]; ok && len(e.uses) > 0 {
		return e.uses[len(e.uses)-1] >= bl.numInstrs
	}
	return false
}

// NextUseLiveness is a Liveness which also tracks the next-use ips of every SSA value. Cross-block next-use ips are
// computed by the global next-use distance algorithm of Braun and Hack.
type NextUseLiveness struct {
	files  ir.RegFileSet
	blocks []NextUseBlockLiveness
}

var _ Liveness = (*NextUseLiveness)(nil)

// NewNextUseLiveness computes next-use liveness of f for the values whose register file is in files. Values of
// other files are invisible to the result.
func NewNextUseLiveness(f *ir.Function, files ir.RegFileSet) *NextUseLiveness {
	return newNextUseLiveness(f, files, &liveapi.Pool[ssaUseDef]{})
}

// NextUseScratch holds the per-value records of a NextUseLiveness so that analyzing one function after another
// reuses their memory. The zero NextUseScratch is ready to use. It is not safe for concurrent use.
type NextUseScratch struct {
	pool liveapi.Pool[ssaUseDef]
}

// NewNextUseLiveness is like the package-level NewNextUseLiveness, but allocates from s. The result is only valid
// until the next call on s.
func (s *NextUseScratch) NewNextUseLiveness(f *ir.Function, files ir.RegFileSet) *NextUseLiveness {
	s.pool.Reset()
	return newNextUseLiveness(f, files, &s.pool)
}

func newNextUseLiveness(f *ir.Function, files ir.RegFileSet, pool *liveapi.Pool[ssaUseDef]) *NextUseLiveness {
	l := newNextUseLocalLiveness(f, files, pool)
	df := l.dataflow(f, make([]map[ir.SSAValue]int, f.NumBlocks()))
	df.Solve()

	if liveapi.LivenessLoggingEnabled {
		for i := range l.blocks {
			bl := &l.blocks[i]
			fmt.Printf("next-use liveness of %s blk%d (%d instrs): in=%v uses=%s\n",
				f.Name, i, bl.numInstrs, bl.LiveIn(), pretty.Sprint(bl.ssaMap))
		}
	}
	return l
}

// newNextUseLocalLiveness records the in-block defs and uses of every block of f.
func newNextUseLocalLiveness(f *ir.Function, files ir.RegFileSet, pool *liveapi.Pool[ssaUseDef]) *NextUseLiveness {
	l := &NextUseLiveness{
		files:  files,
		blocks: make([]NextUseBlockLiveness, f.NumBlocks()),
	}

	for bi, b := range f.Blocks {
		bl := &l.blocks[bi]
		bl.numInstrs = b.NumInstrs()
		bl.ssaMap = make(map[ir.SSAValue]*ssaUseDef)
		bl.pool = pool

		for ip, instr := range b.Instrs {
			instr.ForEachSSAUse(func(v ir.SSAValue) {
				if files.Contains(v.File()) {
					bl.entry(v).addInBlockUse(ip)
				}
			})
			instr.ForEachSSADef(func(v ir.SSAValue) {
				if files.Contains(v.File()) {
					bl.entry(v).defined = true
				}
			})
		}
	}
	return l
}

// dataflow returns the next-use problem over the blocks of l. The out-state of a block maps every value live-out
// of it to its first use relative to the start of the nearest successor.
func (l *NextUseLiveness) dataflow(f *ir.Function, liveOut []map[ir.SSAValue]int) *BackwardDataflow[NextUseBlockLiveness, map[ir.SSAValue]int] {
	return &BackwardDataflow[NextUseBlockLiveness, map[ir.SSAValue]int]{
		CFG:      f,
		BlockIn:  l.blocks,
		BlockOut: liveOut,
		Transfer: func(_ int, _ *ir.BasicBlock, in *NextUseBlockLiveness, out *map[ir.SSAValue]int) bool {
			changed := false
			for v, firstUseIP := range *out {
				if in.entry(v).addSuccessorUse(in.numInstrs, firstUseIP) {
					changed = true
				}
			}
			return changed
		},
		Join: func(out *map[ir.SSAValue]int, succIn *NextUseBlockLiveness) {
			if *out == nil {
				*out = make(map[ir.SSAValue]int, len(succIn.ssaMap))
			}
			for v, e := range succIn.ssaMap {
				if e.defined || len(e.uses) == 0 {
					continue
				}
				firstUseIP := e.uses[0]
				if cur, ok := (*out)[v]; !ok || firstUseIP < cur {
					(*out)[v] = firstUseIP
				}
			}
		},
	}
}

// Files returns the register files this analysis was computed for.
func (l *NextUseLiveness) Files() ir.RegFileSet {
	return l.files
}

// NumBlocks implements Liveness.NumBlocks.
func (l *NextUseLiveness) NumBlocks() int {
	return len(l.blocks)
}

// BlockLive implements Liveness.BlockLive.
func (l *NextUseLiveness) BlockLive(idx int) BlockLiveness {
	return &l.blocks[idx]
}

// Block returns the NextUseBlockLiveness of the block at idx.
func (l *NextUseLiveness) Block(idx int) *NextUseBlockLiveness {
	return &l.blocks[idx]
}
