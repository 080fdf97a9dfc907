package ir

import (
	"strings"
)

// Opcode is the name of an instruction's operation. The liveness analysis only distinguishes OpcodeRegOut.
type Opcode string

// OpcodeRegOut marks the last instruction of a block which exits GPR allocation. Its sources are the registers
// handed out of the shader, and every GPR must be dead after it.
const OpcodeRegOut Opcode = "regout"

// Dst is a destination operand. A nil SSA means the destination is not an SSA value (e.g. a discarded result).
type Dst struct {
	SSA SSARef
}

// IsSSA returns true if this destination defines SSA values.
func (d Dst) IsSSA() bool {
	return len(d.SSA) > 0
}

// String implements fmt.Stringer.
func (d Dst) String() string {
	if !d.IsSSA() {
		return "_"
	}
	return d.SSA.String()
}

// Src is a source operand. It either references SSA values or carries a non-SSA operand such as an immediate.
type Src struct {
	SSA SSARef
	Imm string
}

// IsSSA returns true if this source reads SSA values.
func (s Src) IsSSA() bool {
	return len(s.SSA) > 0
}

// String implements fmt.Stringer.
func (s Src) String() string {
	if s.IsSSA() {
		return s.SSA.String()
	}
	return s.Imm
}

// Instr is an instruction in a BasicBlock. It is immutable from the viewpoint of the analyses.
type Instr struct {
	Op   Opcode
	Dsts []Dst
	Srcs []Src
}

// IsRegOut returns true if this is the distinguished register-out instruction.
func (i *Instr) IsRegOut() bool {
	return i.Op == OpcodeRegOut
}

// ForEachSSAUse calls f for every SSA value read by this instruction. A value read by several sources is
// reported once per read.
func (i *Instr) ForEachSSAUse(f func(SSAValue)) {
	for _, src := range i.Srcs {
		for _, v := range src.SSA {
			f(v)
		}
	}
}

// ForEachSSADef calls f for every SSA value defined by this instruction.
func (i *Instr) ForEachSSADef(f func(SSAValue)) {
	for _, dst := range i.Dsts {
		for _, v := range dst.SSA {
			f(v)
		}
	}
}

// String implements fmt.Stringer.
func (i *Instr) String() string {
	var sb strings.Builder
	if len(i.Dsts) > 0 {
		for j, d := range i.Dsts {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(d.String())
		}
		sb.WriteString(" = ")
	}
	sb.WriteString(string(i.Op))
	for j, s := range i.Srcs {
		if j == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(s.String())
	}
	return sb.String()
}
