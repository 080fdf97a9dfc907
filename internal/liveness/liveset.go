package liveness

import (
	"fmt"
	"slices"

	"github.com/gpuforge/shaderlive/internal/ir"
	"github.com/gpuforge/shaderlive/internal/liveapi"
)

// LiveSet is the set of currently live SSA values together with the number of live values per register file.
//
// The per-file counts always equal the number of members of that file.
type LiveSet struct {
	live ir.PerRegFile[uint32]
	set  map[ir.SSAValue]struct{}
}

// NewLiveSet returns an empty LiveSet.
func NewLiveSet() *LiveSet {
	return &LiveSet{set: make(map[ir.SSAValue]struct{})}
}

// NewLiveSetFrom returns a LiveSet containing vs.
func NewLiveSetFrom(vs ...ir.SSAValue) *LiveSet {
	s := NewLiveSet()
	s.Extend(vs...)
	return s
}

// Contains returns true if v is live.
func (s *LiveSet) Contains(v ir.SSAValue) bool {
	_, ok := s.set[v]
	return ok
}

// Count returns the number of live values in file.
func (s *LiveSet) Count(file ir.RegFile) uint32 {
	return s.live[file]
}

// Counts returns the number of live values per file.
func (s *LiveSet) Counts() ir.PerRegFile[uint32] {
	return s.live
}

// Len returns the total number of live values.
func (s *LiveSet) Len() int {
	return len(s.set)
}

// Insert adds v and returns false if it was already live.
func (s *LiveSet) Insert(v ir.SSAValue) bool {
	if _, ok := s.set[v]; ok {
		return false
	}
	s.set[v] = struct{}{}
	s.live[v.File()]++
	return true
}

// Extend inserts every value of vs.
func (s *LiveSet) Extend(vs ...ir.SSAValue) {
	for _, v := range vs {
		s.Insert(v)
	}
}

// Remove removes v and returns false if it was not live.
func (s *LiveSet) Remove(v ir.SSAValue) bool {
	if _, ok := s.set[v]; !ok {
		return false
	}
	delete(s.set, v)
	s.live[v.File()]--
	return true
}

// Range calls f for every live value in unspecified order.
func (s *LiveSet) Range(f func(ir.SSAValue)) {
	for v := range s.set {
		f(v)
	}
}

// Values returns the live values sorted by their encoding.
func (s *LiveSet) Values() []ir.SSAValue {
	ret := make([]ir.SSAValue, 0, len(s.set))
	for v := range s.set {
		ret = append(ret, v)
	}
	slices.Sort(ret)
	return ret
}

// Clone returns an independent copy of s.
func (s *LiveSet) Clone() *LiveSet {
	ret := &LiveSet{live: s.live, set: make(map[ir.SSAValue]struct{}, len(s.set))}
	for v := range s.set {
		ret.set[v] = struct{}{}
	}
	return ret
}

// String implements fmt.Stringer.
func (s *LiveSet) String() string {
	return fmt.Sprintf("%v (%s)", s.Values(), ir.FormatPerRegFile(s.live))
}

// InsertInstrTopDown updates s, which must hold the values live immediately before instr, to the values live
// immediately after it, and returns the peak per-file pressure reached while executing instr.
//
// The order follows how registers are allocated by the hardware:
//  1. Vector destinations go live first. They are allocated contiguously before any source is freed, so even
//     a vector destination which is immediately dead contributes to the peak.
//  2. Sources which are not live after ip are killed.
//  3. Scalar destinations go live last, possibly reusing a slot freed by a killed source.
//  4. Destinations which are not live after ip are removed again.
func (s *LiveSet) InsertInstrTopDown(ip int, instr *ir.Instr, bl BlockLiveness) ir.PerRegFile[uint32] {
	for _, dst := range instr.Dsts {
		if dst.SSA.Comps() > 1 {
			for _, v := range dst.SSA {
				s.Insert(v)
			}
		}
	}

	afterDstsLive := s.live

	instr.ForEachSSAUse(func(v ir.SSAValue) {
		if !bl.IsLiveAfterIP(v, ip) {
			s.Remove(v)
		}
	})

	for _, dst := range instr.Dsts {
		if dst.SSA.IsScalar() {
			s.Insert(dst.SSA[0])
		}
	}

	maxLive := ir.MaxPerRegFile(s.live, afterDstsLive)

	instr.ForEachSSADef(func(v ir.SSAValue) {
		if !bl.IsLiveAfterIP(v, ip) {
			if !s.Remove(v) {
				panic(fmt.Sprintf("BUG: %v defined by %q is not in the live set", v, instr))
			}
		}
	})

	if liveapi.LivenessValidationEnabled {
		s.validate()
	}
	return maxLive
}

// validate checks that the per-file counts match the members.
func (s *LiveSet) validate() {
	var counts ir.PerRegFile[uint32]
	for v := range s.set {
		counts[v.File()]++
	}
	if counts != s.live {
		panic(fmt.Sprintf("BUG: live counts %s do not match members %s",
			ir.FormatPerRegFile(s.live), ir.FormatPerRegFile(counts)))
	}
}
