package analysis

import (
	"fmt"
	"io"
	"slices"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/gpuforge/shaderlive/internal/ir"
	"github.com/gpuforge/shaderlive/internal/liveness"
)

// Report is the result of analyzing one function. Per-file counts are keyed by ir.RegFile names and omit
// zero entries.
type Report struct {
	Function string `msgpack:"function"`
	Kind     string `msgpack:"kind"`
	// Files are the register files the analysis considered.
	Files []string `msgpack:"files"`
	// MaxLive is the maximum number of simultaneously live values per file, as computed by
	// liveness.CalcMaxLive.
	MaxLive map[string]uint32 `msgpack:"max_live,omitempty"`
	Blocks  []BlockReport     `msgpack:"blocks"`
	// Defs lists where each value is defined, in definition order. Only KindSimple fills it.
	Defs []DefReport `msgpack:"defs,omitempty"`
}

// BlockReport holds the liveness facts of one block.
type BlockReport struct {
	Index     int      `msgpack:"index"`
	NumInstrs int      `msgpack:"num_instrs"`
	Preds     []int    `msgpack:"preds,omitempty"`
	Succs     []int    `msgpack:"succs,omitempty"`
	LiveIn    []string `msgpack:"live_in,omitempty"`
	LiveOut   []string `msgpack:"live_out,omitempty"`
	// InstrPressure is the pressure of every instruction, see liveness.InstrPressure. It is only filled when
	// Config.WithInstrPressure is enabled.
	InstrPressure []map[string]uint8 `msgpack:"instr_pressure,omitempty"`
	// FirstUses maps every live-in value to the distance of its first use from the start of the block. Only
	// KindNextUse fills it.
	FirstUses map[string]int `msgpack:"first_uses,omitempty"`
}

// DefReport is the definition point of a value.
type DefReport struct {
	Value string `msgpack:"value"`
	Block int    `msgpack:"block"`
	IP    int    `msgpack:"ip"`
}

// perRegFileMap returns the non-zero entries of p keyed by file name, or nil if there are none.
func perRegFileMap[T ir.Number](p ir.PerRegFile[T]) map[string]T {
	var ret map[string]T
	for i, v := range p {
		if v == 0 {
			continue
		}
		if ret == nil {
			ret = make(map[string]T)
		}
		ret[ir.RegFile(i).String()] = v
	}
	return ret
}

// FormatCounts formats m, as produced for Report.MaxLive or BlockReport.InstrPressure, in register file order.
func FormatCounts[T ir.Number](m map[string]T) string {
	var p ir.PerRegFile[T]
	for _, f := range ir.AllRegFiles() {
		p[f] = m[f.String()]
	}
	return ir.FormatPerRegFile(p)
}

func valueNames(vs []ir.SSAValue) []string {
	var ret []string
	for _, v := range vs {
		ret = append(ret, v.String())
	}
	return ret
}

// newReport analyzes fn. scratch is only used by KindNextUse, and the report does not reference it once returned.
func newReport(cfg *Config, fn *ir.Function, scratch *liveness.NextUseScratch) *Report {
	r := &Report{Function: fn.Name, Kind: cfg.kind.String()}

	var l liveness.Liveness
	switch cfg.kind {
	case KindSimple:
		simple := liveness.NewSimpleLiveness(fn)
		l = simple
		r.Files = fileNames(ir.AllRegFileSet())
		for _, v := range simple.SortedDefs() {
			block, ip := simple.DefBlockIP(v)
			r.Defs = append(r.Defs, DefReport{Value: v.String(), Block: block, IP: ip})
		}
		for bi := range fn.Blocks {
			bl := simple.Block(bi)
			r.Blocks = append(r.Blocks, newBlockReport(fn, bi, bl.LiveIn(), bl.LiveOut()))
		}
	case KindNextUse:
		nextUse := scratch.NewNextUseLiveness(fn, cfg.files)
		l = nextUse
		r.Files = fileNames(cfg.files)
		for bi := range fn.Blocks {
			bl := nextUse.Block(bi)
			liveIn := bl.LiveIn()
			br := newBlockReport(fn, bi, liveIn, bl.LiveOut())
			for _, v := range liveIn {
				first, ok := bl.FirstUse(v)
				if !ok {
					panic(fmt.Sprintf("BUG: live-in %v of blk%d has no use", v, bi))
				}
				if br.FirstUses == nil {
					br.FirstUses = make(map[string]int, len(liveIn))
				}
				br.FirstUses[v.String()] = first
			}
			r.Blocks = append(r.Blocks, br)
		}
	default:
		panic(fmt.Sprintf("BUG: unknown analysis kind %v", cfg.kind))
	}

	r.MaxLive = perRegFileMap(liveness.CalcMaxLive(l, fn))
	if cfg.instrPressure {
		for bi := range fn.Blocks {
			for _, p := range liveness.BlockInstrPressure(l, fn, bi) {
				r.Blocks[bi].InstrPressure = append(r.Blocks[bi].InstrPressure, perRegFileMap(p))
			}
		}
	}
	return r
}

func fileNames(files ir.RegFileSet) []string {
	var ret []string
	for _, f := range files.Files() {
		ret = append(ret, f.String())
	}
	return ret
}

func newBlockReport(fn *ir.Function, bi int, liveIn, liveOut []ir.SSAValue) BlockReport {
	return BlockReport{
		Index:     bi,
		NumInstrs: fn.Blocks[bi].NumInstrs(),
		Preds:     slices.Clone(fn.Preds(bi)),
		Succs:     slices.Clone(fn.Succs(bi)),
		LiveIn:    valueNames(liveIn),
		LiveOut:   valueNames(liveOut),
	}
}

// EncodeReports writes reports to w in MessagePack. Map keys are sorted so the output is deterministic.
func EncodeReports(w io.Writer, reports []*Report) error {
	enc := msgpack.NewEncoder(w)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(reports); err != nil {
		return fmt.Errorf("failed to encode reports: %w", err)
	}
	return nil
}

// DecodeReports reads reports written by EncodeReports.
func DecodeReports(r io.Reader) ([]*Report, error) {
	var ret []*Report
	if err := msgpack.NewDecoder(r).Decode(&ret); err != nil {
		return nil, fmt.Errorf("failed to decode reports: %w", err)
	}
	return ret, nil
}
