package ir

import (
	"fmt"
	"strings"
)

// RegFile identifies a register class of the target. Every SSAValue belongs to exactly one RegFile.
type RegFile uint8

const (
	// RegFileGPR is the per-thread general purpose register file.
	RegFileGPR RegFile = iota
	// RegFileUGPR is the uniform (per-warp) general purpose register file.
	RegFileUGPR
	// RegFilePred is the per-thread predicate register file.
	RegFilePred
	// RegFileUPred is the uniform predicate register file.
	RegFileUPred
	// RegFileCarry holds carry flags produced by wide integer arithmetic.
	RegFileCarry
	// RegFileBar holds barrier registers.
	RegFileBar
	// RegFileMem is not a register file at all but memory slots used for spilled values.
	RegFileMem
	// NumRegFiles is the number of register files.
	NumRegFiles
)

var regFileNames = [NumRegFiles]string{
	RegFileGPR:   "gpr",
	RegFileUGPR:  "ugpr",
	RegFilePred:  "pred",
	RegFileUPred: "upred",
	RegFileCarry: "carry",
	RegFileBar:   "bar",
	RegFileMem:   "mem",
}

// ssaPrefixes are the textual prefixes of SSA values per RegFile, e.g. %r1 or %up3.
var ssaPrefixes = [NumRegFiles]string{
	RegFileGPR:   "r",
	RegFileUGPR:  "ur",
	RegFilePred:  "p",
	RegFileUPred: "up",
	RegFileCarry: "pc",
	RegFileBar:   "b",
	RegFileMem:   "m",
}

// String implements fmt.Stringer.
func (f RegFile) String() string {
	if f < NumRegFiles {
		return regFileNames[f]
	}
	return fmt.Sprintf("regfile(%d)", uint8(f))
}

// Valid returns true if f is one of the known register files.
func (f RegFile) Valid() bool {
	return f < NumRegFiles
}

// IsUniform returns true if values in this file are shared by all threads of a warp.
func (f RegFile) IsUniform() bool {
	return f == RegFileUGPR || f == RegFileUPred
}

// ParseRegFile returns the RegFile named s, case-insensitively.
func ParseRegFile(s string) (RegFile, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range regFileNames {
		if name == s {
			return RegFile(i), nil
		}
	}
	return 0, fmt.Errorf("unknown register file %q (expected one of %s)", s, strings.Join(regFileNames[:], "|"))
}

// AllRegFiles returns every RegFile in declaration order.
func AllRegFiles() []RegFile {
	ret := make([]RegFile, 0, NumRegFiles)
	for f := RegFile(0); f < NumRegFiles; f++ {
		ret = append(ret, f)
	}
	return ret
}

// PerRegFile is a fixed-size mapping from RegFile to T. The zero value maps every file to the zero T.
type PerRegFile[T any] [NumRegFiles]T

// NewPerRegFileWith returns a PerRegFile whose entry for each file is f(file).
func NewPerRegFileWith[T any](f func(RegFile) T) (ret PerRegFile[T]) {
	for i := range ret {
		ret[i] = f(RegFile(i))
	}
	return
}

// Get returns the entry for file.
func (p *PerRegFile[T]) Get(file RegFile) T {
	return p[file]
}

// Set sets the entry for file.
func (p *PerRegFile[T]) Set(file RegFile, v T) {
	p[file] = v
}

// Number is the set of element types PerRegFile arithmetic works on.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// MaxPerRegFile returns the elementwise maximum of a and b.
func MaxPerRegFile[T Number](a, b PerRegFile[T]) PerRegFile[T] {
	return NewPerRegFileWith(func(f RegFile) T { return max(a[f], b[f]) })
}

// AddPerRegFile returns the elementwise sum of a and b.
func AddPerRegFile[T Number](a, b PerRegFile[T]) PerRegFile[T] {
	return NewPerRegFileWith(func(f RegFile) T { return a[f] + b[f] })
}

// FormatPerRegFile formats the non-zero entries of p as "gpr=3 pred=1".
func FormatPerRegFile[T Number](p PerRegFile[T]) string {
	var parts []string
	for i, v := range p {
		if v != 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", RegFile(i), v))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}

// RegFileSet is a set of RegFile, represented as a bit mask.
type RegFileSet uint8

// NewRegFileSet returns a new RegFileSet with the given files.
func NewRegFileSet(files ...RegFile) RegFileSet {
	var ret RegFileSet
	for _, f := range files {
		ret = ret.Insert(f)
	}
	return ret
}

// AllRegFileSet returns the set containing every RegFile.
func AllRegFileSet() RegFileSet {
	return NewRegFileSet(AllRegFiles()...)
}

// ParseRegFileSet parses a list of file names into a RegFileSet.
func ParseRegFileSet(names []string) (RegFileSet, error) {
	var ret RegFileSet
	for _, n := range names {
		f, err := ParseRegFile(n)
		if err != nil {
			return 0, err
		}
		ret = ret.Insert(f)
	}
	return ret, nil
}

// Contains returns true if f is in the set.
func (s RegFileSet) Contains(f RegFile) bool {
	return f < NumRegFiles && s&(1<<f) != 0
}

// Insert returns the set with f added.
func (s RegFileSet) Insert(f RegFile) RegFileSet {
	if !f.Valid() {
		panic(fmt.Sprintf("BUG: invalid register file %d", f))
	}
	return s | 1<<f
}

// IsEmpty returns true if no file is in the set.
func (s RegFileSet) IsEmpty() bool {
	return s == 0
}

// Files returns the files in the set in declaration order.
func (s RegFileSet) Files() []RegFile {
	var ret []RegFile
	for f := RegFile(0); f < NumRegFiles; f++ {
		if s.Contains(f) {
			ret = append(ret, f)
		}
	}
	return ret
}

// String implements fmt.Stringer.
func (s RegFileSet) String() string {
	var ret []string
	for _, f := range s.Files() {
		ret = append(ret, f.String())
	}
	return "{" + strings.Join(ret, ", ") + "}"
}
