// Package liveness computes liveness, register pressure, and next-use distances of SSA values for register
// allocation and spilling. The analyses work on any function expressed with the types of package ir.
package liveness

// References:
// * https://pfalcon.github.io/ssabook/latest/book-full.pdf: Chapter 9. for liveness analysis.
// * Braun and Hack, "Register Spilling and Live-Range Splitting for SSA-Form Programs": the global next-use
//   distance algorithm implemented by NextUseLiveness.

import (
	"fmt"

	"fortio.org/safecast"

	"github.com/gpuforge/shaderlive/internal/ir"
)

type (
	// BlockLiveness answers point-wise liveness queries for one block. Instruction pointers (ip) are indices into
	// the block's instructions.
	BlockLiveness interface {
		// IsLiveAfterIP returns true if v is still live after the instruction at ip.
		IsLiveAfterIP(v ir.SSAValue, ip int) bool
		// IsLiveIn returns true if v is live-in to this block.
		IsLiveIn(v ir.SSAValue) bool
		// IsLiveOut returns true if v is live-out of this block.
		IsLiveOut(v ir.SSAValue) bool
	}

	// Liveness is a whole-function analysis result which provides a BlockLiveness per block.
	Liveness interface {
		// NumBlocks returns the number of blocks the analysis was built for.
		NumBlocks() int
		// BlockLive returns the liveness of the block at idx.
		BlockLive(idx int) BlockLiveness
	}
)

// InstrPressure returns the peak per-file register pressure attributable to instr at ip, following the same
// ordering as LiveSet.InsertInstrTopDown but without a live set: only the deltas caused by instr are counted.
//
// A source read more than once by instr only frees its register once.
func InstrPressure(bl BlockLiveness, ip int, instr *ir.Instr) ir.PerRegFile[uint8] {
	var live ir.PerRegFile[int]

	// Vector destinations go live before sources are killed.
	for _, dst := range instr.Dsts {
		if dst.SSA.Comps() > 1 {
			for _, v := range dst.SSA {
				live[v.File()]++
			}
		}
	}

	// This is the first high point.
	vecDstLive := live

	killed := make(map[ir.SSAValue]struct{})
	instr.ForEachSSAUse(func(v ir.SSAValue) {
		if !bl.IsLiveAfterIP(v, ip) {
			killed[v] = struct{}{}
		}
	})
	for v := range killed {
		live[v.File()]--
	}

	// Scalar destinations are allocated last.
	for _, dst := range instr.Dsts {
		if dst.SSA.IsScalar() {
			live[dst.SSA[0].File()]++
		}
	}

	return ir.NewPerRegFileWith(func(file ir.RegFile) uint8 {
		p, err := safecast.Conv[uint8](max(0, vecDstLive[file], live[file]))
		if err != nil {
			panic(fmt.Sprintf("BUG: pressure of %q in %s out of range: %v", instr, file, err))
		}
		return p
	})
}
