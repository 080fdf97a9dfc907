package ir

import (
	"fmt"
	"strings"
)

// CFG is the read-only view of a control-flow graph the dataflow solver iterates over.
type CFG interface {
	// NumBlocks returns the number of blocks. Block indices are in [0, NumBlocks).
	NumBlocks() int
	// Block returns the block at index i.
	Block(i int) *BasicBlock
	// Preds returns the predecessor indices of block i, in the order they were added.
	Preds(i int) []int
	// Succs returns the successor indices of block i.
	Succs(i int) []int
}

// BasicBlock is an ordered sequence of instructions.
type BasicBlock struct {
	Instrs []*Instr
}

// NumInstrs returns the number of instructions in this block.
func (b *BasicBlock) NumInstrs() int {
	return len(b.Instrs)
}

// Function is a CFG of BasicBlock(s) whose entry is the block at index zero.
type Function struct {
	Name   string
	Blocks []*BasicBlock
	// preds and succs are indexed by block index.
	preds, succs [][]int
}

var _ CFG = (*Function)(nil)

// NumBlocks implements CFG.NumBlocks.
func (f *Function) NumBlocks() int {
	return len(f.Blocks)
}

// Block implements CFG.Block.
func (f *Function) Block(i int) *BasicBlock {
	return f.Blocks[i]
}

// Preds implements CFG.Preds.
func (f *Function) Preds(i int) []int {
	if i < len(f.preds) {
		return f.preds[i]
	}
	return nil
}

// Succs implements CFG.Succs.
func (f *Function) Succs(i int) []int {
	if i < len(f.succs) {
		return f.succs[i]
	}
	return nil
}

// AddEdge appends an edge from block `from` to block `to`. Predecessor lists keep insertion order, so adding the
// edges of each block in index order yields the ordering the pressure walk relies on.
func (f *Function) AddEdge(from, to int) {
	for len(f.succs) < len(f.Blocks) {
		f.succs = append(f.succs, nil)
		f.preds = append(f.preds, nil)
	}
	if from < 0 || from >= len(f.Blocks) || to < 0 || to >= len(f.Blocks) {
		panic(fmt.Sprintf("BUG: edge blk%d -> blk%d out of range (%d blocks)", from, to, len(f.Blocks)))
	}
	f.succs[from] = append(f.succs[from], to)
	f.preds[to] = append(f.preds[to], from)
}

// Validate checks the structural properties the analyses assume: the entry block has no predecessors, the first
// predecessor of every other block precedes it in block order, every SSA value is defined exactly once and used
// only if defined, and OpcodeRegOut only ends blocks without successors.
func (f *Function) Validate() error {
	if len(f.Blocks) == 0 {
		return fmt.Errorf("function %s has no blocks", f.Name)
	}
	if preds := f.Preds(0); len(preds) > 0 {
		return fmt.Errorf("function %s: entry block has predecessors %v", f.Name, preds)
	}
	for i := 1; i < len(f.Blocks); i++ {
		if preds := f.Preds(i); len(preds) > 0 && preds[0] >= i {
			return fmt.Errorf("function %s: first predecessor blk%d of blk%d does not precede it", f.Name, preds[0], i)
		}
	}

	defs := make(map[SSAValue]struct{})
	for bi, b := range f.Blocks {
		for ip, instr := range b.Instrs {
			var err error
			instr.ForEachSSADef(func(v SSAValue) {
				if _, ok := defs[v]; ok && err == nil {
					err = fmt.Errorf("function %s: %s redefined at blk%d:%d", f.Name, v, bi, ip)
				}
				defs[v] = struct{}{}
			})
			if err != nil {
				return err
			}
			if instr.IsRegOut() {
				if ip != len(b.Instrs)-1 {
					return fmt.Errorf("function %s: %s must be the last instruction of blk%d", f.Name, OpcodeRegOut, bi)
				}
				if succs := f.Succs(bi); len(succs) > 0 {
					return fmt.Errorf("function %s: blk%d ends with %s but has successors %v", f.Name, bi, OpcodeRegOut, succs)
				}
			}
		}
	}
	for bi, b := range f.Blocks {
		for ip, instr := range b.Instrs {
			var err error
			instr.ForEachSSAUse(func(v SSAValue) {
				if _, ok := defs[v]; !ok && err == nil {
					err = fmt.Errorf("function %s: %s used at blk%d:%d is never defined", f.Name, v, bi, ip)
				}
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// String implements fmt.Stringer. The output is accepted by Parse.
func (f *Function) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "func %s\n", f.Name)
	for i, b := range f.Blocks {
		fmt.Fprintf(&sb, "block %d", i)
		if succs := f.Succs(i); len(succs) > 0 {
			sb.WriteString(" ->")
			for j, s := range succs {
				if j > 0 {
					sb.WriteByte(',')
				}
				fmt.Fprintf(&sb, " %d", s)
			}
		}
		sb.WriteByte('\n')
		for _, instr := range b.Instrs {
			sb.WriteString("    ")
			sb.WriteString(instr.String())
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
