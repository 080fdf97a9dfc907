package ir

import "fmt"

// Builder constructs a Function block by block and allocates its SSA values.
type Builder struct {
	fn      *Function
	nextIdx uint32
	cur     int
}

// NewBuilder returns a Builder for a new Function with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{fn: &Function{Name: name}, nextIdx: 1, cur: -1}
}

// AllocSSA allocates a new SSAValue in the given file.
func (b *Builder) AllocSSA(file RegFile) SSAValue {
	v := NewSSAValue(b.nextIdx, file)
	b.nextIdx++
	return v
}

// AllocSSAVec allocates a vector of comps SSAValue(s) in the given file.
func (b *Builder) AllocSSAVec(file RegFile, comps int) SSARef {
	if comps < 1 {
		panic(fmt.Sprintf("BUG: vector with %d components", comps))
	}
	ret := make(SSARef, comps)
	for i := range ret {
		ret[i] = b.AllocSSA(file)
	}
	return ret
}

// reserve makes sure values allocated afterwards never collide with v.
func (b *Builder) reserve(v SSAValue) {
	if v.Idx() >= b.nextIdx {
		b.nextIdx = v.Idx() + 1
	}
}

// AddBlock appends a new empty block, makes it current, and returns its index.
func (b *Builder) AddBlock() int {
	b.fn.Blocks = append(b.fn.Blocks, &BasicBlock{})
	b.cur = len(b.fn.Blocks) - 1
	return b.cur
}

// SetCurrentBlock makes the block at index i the target of Emit.
func (b *Builder) SetCurrentBlock(i int) {
	if i < 0 || i >= len(b.fn.Blocks) {
		panic(fmt.Sprintf("BUG: block %d out of range", i))
	}
	b.cur = i
}

// CurrentBlock returns the index of the current block, or -1 if none was added yet.
func (b *Builder) CurrentBlock() int {
	return b.cur
}

// AddEdge adds a CFG edge. See Function.AddEdge.
func (b *Builder) AddEdge(from, to int) {
	b.fn.AddEdge(from, to)
}

// Emit appends instr to the current block and returns it.
func (b *Builder) Emit(instr *Instr) *Instr {
	if b.cur < 0 {
		panic("BUG: Emit without a current block")
	}
	instr.ForEachSSADef(b.reserve)
	instr.ForEachSSAUse(b.reserve)
	blk := b.fn.Blocks[b.cur]
	blk.Instrs = append(blk.Instrs, instr)
	return instr
}

// Function returns the function built so far.
func (b *Builder) Function() *Function {
	// Blocks without edges still need their (empty) edge lists.
	for len(b.fn.succs) < len(b.fn.Blocks) {
		b.fn.succs = append(b.fn.succs, nil)
		b.fn.preds = append(b.fn.preds, nil)
	}
	return b.fn
}

// NewInstr returns an instruction with the given opcode and no operands.
func NewInstr(op Opcode) *Instr {
	return &Instr{Op: op}
}

// Def appends one destination per given reference. An empty reference adds a non-SSA destination.
func (i *Instr) Def(refs ...SSARef) *Instr {
	for _, r := range refs {
		i.Dsts = append(i.Dsts, Dst{SSA: r})
	}
	return i
}

// Use appends one source per given reference.
func (i *Instr) Use(refs ...SSARef) *Instr {
	for _, r := range refs {
		i.Srcs = append(i.Srcs, Src{SSA: r})
	}
	return i
}

// Imm appends a non-SSA source operand.
func (i *Instr) Imm(imm string) *Instr {
	i.Srcs = append(i.Srcs, Src{Imm: imm})
	return i
}

// Ref returns an SSARef made of vs.
func Ref(vs ...SSAValue) SSARef {
	return SSARef(vs)
}
