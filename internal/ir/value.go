package ir

import (
	"cmp"
	"fmt"
	"strings"
)

// SSAValue represents a value defined exactly once in a Function.
//
// The lower 29 bits hold the index and the upper 3 bits hold the RegFile. A value is identified by both: %r1 and %p1
// are different values. Builder never reuses an index, but parsed text may.
type SSAValue uint32

const (
	ssaIndexBits = 29
	ssaIndexMask = 1<<ssaIndexBits - 1
	// MaxSSAIndex is the largest index an SSAValue can have.
	MaxSSAIndex = ssaIndexMask

	// SSAValueInvalid is the zero SSAValue which is never defined.
	SSAValueInvalid SSAValue = 0
)

// NewSSAValue returns the SSAValue with the given index and file. Index zero is reserved for SSAValueInvalid.
func NewSSAValue(idx uint32, file RegFile) SSAValue {
	if idx == 0 || idx > MaxSSAIndex {
		panic(fmt.Sprintf("BUG: SSA index %d out of range", idx))
	}
	if !file.Valid() {
		panic(fmt.Sprintf("BUG: invalid register file %d", file))
	}
	return SSAValue(idx) | SSAValue(file)<<ssaIndexBits
}

// Idx returns the index of this value.
func (v SSAValue) Idx() uint32 {
	return uint32(v & ssaIndexMask)
}

// File returns the RegFile of this value.
func (v SSAValue) File() RegFile {
	return RegFile(v >> ssaIndexBits)
}

// Valid returns true if this value is not SSAValueInvalid.
func (v SSAValue) Valid() bool {
	return v.Idx() != 0
}

// String implements fmt.Stringer.
func (v SSAValue) String() string {
	if !v.Valid() {
		return "%invalid"
	}
	return fmt.Sprintf("%%%s%d", ssaPrefixes[v.File()], v.Idx())
}

// CompareSSAValues orders values by index, then by register file.
func CompareSSAValues(a, b SSAValue) int {
	if c := cmp.Compare(a.Idx(), b.Idx()); c != 0 {
		return c
	}
	return cmp.Compare(a.File(), b.File())
}

// SSARef is a vector of one or more SSAValue(s) which are allocated together in contiguous registers.
type SSARef []SSAValue

// Comps returns the number of components.
func (r SSARef) Comps() int {
	return len(r)
}

// IsScalar returns true if this reference has exactly one component.
func (r SSARef) IsScalar() bool {
	return len(r) == 1
}

// String implements fmt.Stringer.
func (r SSARef) String() string {
	if len(r) == 1 {
		return r[0].String()
	}
	parts := make([]string, len(r))
	for i, v := range r {
		parts[i] = v.String()
	}
	return "{" + strings.Join(parts, " ") + "}"
}
