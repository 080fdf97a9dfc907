package liveness

import (
	"fmt"

	"fortio.org/safecast"

	"github.com/gpuforge/shaderlive/internal/ir"
	"github.com/gpuforge/shaderlive/internal/liveapi"
)

// CalcMaxLive walks f once in block order and returns the maximum number of simultaneously live values per register
// file, as seen by l.
//
// The live set at the start of a block is seeded from the live-out set of its first predecessor only, keeping the
// values l reports as live-in. Predecessors are added in block order, so that predecessor has already been
// walked. This is exact for values live along the first predecessor edge; values only reaching a loop header
// through its back-edge are not seen at the header's entry.
func CalcMaxLive(l Liveness, f *ir.Function) ir.PerRegFile[uint32] {
	if l.NumBlocks() != f.NumBlocks() {
		panic(fmt.Sprintf("BUG: liveness has %d blocks but %s has %d", l.NumBlocks(), f.Name, f.NumBlocks()))
	}

	var maxLive ir.PerRegFile[uint32]
	blockLiveOut := make([]*LiveSet, 0, f.NumBlocks())

	for bi, b := range f.Blocks {
		bl := l.BlockLive(bi)

		live := NewLiveSet()
		if preds := f.Preds(bi); len(preds) > 0 {
			predIdx := preds[0]
			if predIdx >= len(blockLiveOut) {
				panic(fmt.Sprintf("BUG: first predecessor blk%d of blk%d has not been processed", predIdx, bi))
			}
			blockLiveOut[predIdx].Range(func(v ir.SSAValue) {
				if bl.IsLiveIn(v) {
					live.Insert(v)
				}
			})
		}

		for ip, instr := range b.Instrs {
			liveAtInstr := live.InsertInstrTopDown(ip, instr, bl)
			maxLive = ir.MaxPerRegFile(maxLive, liveAtInstr)

			if liveapi.PressureLoggingEnabled {
				fmt.Printf("blk%d:%d %s\n\tlive: %v\n", bi, ip, instr, live)
			}

			if instr.IsRegOut() {
				// This must be the last instruction. Everything is dead once it's processed.
				if n := live.Count(ir.RegFileGPR); n != 0 {
					panic(fmt.Sprintf("BUG: %d GPRs still live after %q in blk%d", n, instr, bi))
				}
				numGPRsOut, err := safecast.Conv[uint32](len(instr.Srcs))
				if err != nil {
					panic(fmt.Sprintf("BUG: %q has too many sources: %v", instr, err))
				}
				maxLive[ir.RegFileGPR] = max(maxLive[ir.RegFileGPR], numGPRsOut)
			}
		}

		blockLiveOut = append(blockLiveOut, live)
	}
	return maxLive
}

// BlockInstrPressure returns InstrPressure of every instruction of block bi.
func BlockInstrPressure(l Liveness, f *ir.Function, bi int) []ir.PerRegFile[uint8] {
	bl := l.BlockLive(bi)
	instrs := f.Blocks[bi].Instrs
	ret := make([]ir.PerRegFile[uint8], len(instrs))
	for ip, instr := range instrs {
		ret[ip] = InstrPressure(bl, ip, instr)
	}
	return ret
}
