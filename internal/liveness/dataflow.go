package liveness

import (
	"fmt"

	"github.com/gpuforge/shaderlive/internal/ir"
	"github.com/gpuforge/shaderlive/internal/liveapi"
)

// BackwardDataflow is an iterative fixed-point solver for backward dataflow problems over an ir.CFG.
//
// BlockIn and BlockOut hold one lattice element per block and are owned by the solver for the duration of Solve.
// On return they satisfy, for every block b:
//
//	BlockOut[b] == Join of BlockIn[s] for every successor s of b
//	BlockIn[b]  == Transfer(b, BlockOut[b])
//
// Termination requires the lattice to be monotone and of finite height.
type BackwardDataflow[In, Out any] struct {
	CFG      ir.CFG
	BlockIn  []In
	BlockOut []Out
	// Transfer recomputes in from out and the local facts of the block, and reports whether in changed.
	Transfer func(blockIdx int, blk *ir.BasicBlock, in *In, out *Out) bool
	// Join folds the in-state of one successor into out.
	Join func(out *Out, succIn *In)
}

// Solve iterates until a full sweep over the blocks leaves every in-state unchanged, and returns the number of
// sweeps performed, including the final one.
//
// Blocks are swept in reverse index order which, for a backward problem over blocks laid out in a forward order,
// usually converges in two or three sweeps.
func (d *BackwardDataflow[In, Out]) Solve() (sweeps int) {
	n := d.CFG.NumBlocks()
	if len(d.BlockIn) != n || len(d.BlockOut) != n {
		panic(fmt.Sprintf("BUG: dataflow slots (in=%d, out=%d) do not match %d blocks",
			len(d.BlockIn), len(d.BlockOut), n))
	}

	for {
		sweeps++
		changed := false
		for b := n - 1; b >= 0; b-- {
			out := &d.BlockOut[b]
			for _, succ := range d.CFG.Succs(b) {
				d.Join(out, &d.BlockIn[succ])
			}
			if d.Transfer(b, d.CFG.Block(b), &d.BlockIn[b], out) {
				changed = true
			}
		}
		if liveapi.DataflowLoggingEnabled {
			fmt.Printf("dataflow sweep %d: changed=%v\n", sweeps, changed)
		}
		if !changed {
			return
		}
	}
}
