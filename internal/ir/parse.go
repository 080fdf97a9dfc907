package ir

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"fortio.org/safecast"
)

// Parse reads functions in the textual form produced by Function.String:
//
//	func NAME
//	block 0 -> 1, 2
//	    %r1 = mov 0x1
//	    {%r2 %r3} = ld %r1
//	    _, %p1 = isetp %r1, %r2
//	    st %r2 %r3
//	    regout %r1
//
// Every parsed function is validated with Function.Validate.
func Parse(r io.Reader) ([]*Function, error) {
	p := &parser{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		p.line++
		if err := p.parseLine(sc.Text()); err != nil {
			return nil, fmt.Errorf("line %d: %w", p.line, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if err := p.finish(); err != nil {
		return nil, err
	}
	return p.funcs, nil
}

// ParseString is like Parse but reads from s.
func ParseString(s string) ([]*Function, error) {
	return Parse(strings.NewReader(s))
}

type parser struct {
	line  int
	funcs []*Function
	b     *Builder
	// succs is indexed by block index and applied on finish so that forward edges can be declared.
	succs [][]int
}

func (p *parser) parseLine(line string) error {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	switch fields := strings.Fields(line); fields[0] {
	case "func":
		if len(fields) != 2 {
			return fmt.Errorf("expected 'func NAME' but got %q", line)
		}
		if err := p.finish(); err != nil {
			return err
		}
		p.b = NewBuilder(fields[1])
		return nil
	case "block":
		if p.b == nil {
			return fmt.Errorf("block outside of a function")
		}
		return p.parseBlock(strings.TrimSpace(strings.TrimPrefix(line, "block")))
	default:
		if p.b == nil || p.b.CurrentBlock() < 0 {
			return fmt.Errorf("instruction outside of a block")
		}
		instr, err := parseInstr(line)
		if err != nil {
			return err
		}
		p.b.Emit(instr)
		return nil
	}
}

func (p *parser) parseBlock(rest string) error {
	head, succList, hasSuccs := strings.Cut(rest, "->")
	idx, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil {
		return fmt.Errorf("invalid block index %q", strings.TrimSpace(head))
	}
	if want := len(p.succs); idx != want {
		return fmt.Errorf("block %d declared out of order (expected block %d)", idx, want)
	}
	p.b.AddBlock()

	var succs []int
	if hasSuccs {
		for _, tok := range splitOperands(succList) {
			s, err := strconv.Atoi(tok)
			if err != nil {
				return fmt.Errorf("invalid successor %q", tok)
			}
			succs = append(succs, s)
		}
	}
	p.succs = append(p.succs, succs)
	return nil
}

func (p *parser) finish() error {
	if p.b == nil {
		return nil
	}
	fn := p.b.Function()
	for from, succs := range p.succs {
		for _, to := range succs {
			if to < 0 || to >= len(fn.Blocks) {
				return fmt.Errorf("function %s: blk%d has successor blk%d out of range", fn.Name, from, to)
			}
			fn.AddEdge(from, to)
		}
	}
	if err := fn.Validate(); err != nil {
		return err
	}
	p.funcs = append(p.funcs, fn)
	p.b, p.succs = nil, nil
	return nil
}

func parseInstr(line string) (*Instr, error) {
	instr := &Instr{}
	if lhs, rhs, ok := strings.Cut(line, "="); ok {
		for _, tok := range splitOperands(lhs) {
			if tok == "_" {
				instr.Dsts = append(instr.Dsts, Dst{})
				continue
			}
			ref, err := parseSSARef(tok)
			if err != nil {
				return nil, err
			}
			instr.Dsts = append(instr.Dsts, Dst{SSA: ref})
		}
		if len(instr.Dsts) == 0 {
			return nil, fmt.Errorf("missing destination before '='")
		}
		line = rhs
	}

	ops := splitOperands(line)
	if len(ops) == 0 {
		return nil, fmt.Errorf("missing opcode")
	}
	instr.Op = Opcode(ops[0])
	for _, tok := range ops[1:] {
		if tok[0] != '%' && tok[0] != '{' {
			instr.Srcs = append(instr.Srcs, Src{Imm: tok})
			continue
		}
		ref, err := parseSSARef(tok)
		if err != nil {
			return nil, err
		}
		instr.Srcs = append(instr.Srcs, Src{SSA: ref})
	}
	return instr, nil
}

// splitOperands splits s on whitespace and commas, keeping {...} groups together.
func splitOperands(s string) []string {
	var ret []string
	var cur strings.Builder
	depth := 0
	flush := func() {
		if cur.Len() > 0 {
			ret = append(ret, cur.String())
			cur.Reset()
		}
	}
	for _, c := range s {
		switch {
		case c == '{':
			depth++
			cur.WriteRune(c)
		case c == '}':
			depth--
			cur.WriteRune(c)
		case depth == 0 && (c == ',' || c == ' ' || c == '\t'):
			flush()
		default:
			cur.WriteRune(c)
		}
	}
	flush()
	return ret
}

func parseSSARef(tok string) (SSARef, error) {
	if !strings.HasPrefix(tok, "{") {
		v, err := ParseSSAValue(tok)
		if err != nil {
			return nil, err
		}
		return SSARef{v}, nil
	}
	if !strings.HasSuffix(tok, "}") {
		return nil, fmt.Errorf("unterminated vector %q", tok)
	}
	var ref SSARef
	for _, comp := range splitOperands(tok[1 : len(tok)-1]) {
		v, err := ParseSSAValue(comp)
		if err != nil {
			return nil, err
		}
		if len(ref) > 0 && ref[0].File() != v.File() {
			return nil, fmt.Errorf("vector %q mixes register files", tok)
		}
		ref = append(ref, v)
	}
	if len(ref) == 0 {
		return nil, fmt.Errorf("empty vector %q", tok)
	}
	return ref, nil
}

// ParseSSAValue parses the textual form of an SSAValue such as %r12 or %up3.
func ParseSSAValue(tok string) (SSAValue, error) {
	if !strings.HasPrefix(tok, "%") {
		return SSAValueInvalid, fmt.Errorf("invalid SSA value %q", tok)
	}
	body := tok[1:]
	// Prefixes overlap (p, pc, up), so the longest matching one wins.
	file, prefixLen := RegFile(0), 0
	for i, prefix := range ssaPrefixes {
		if strings.HasPrefix(body, prefix) && len(prefix) > prefixLen {
			file, prefixLen = RegFile(i), len(prefix)
		}
	}
	if prefixLen == 0 {
		return SSAValueInvalid, fmt.Errorf("unknown register file in %q", tok)
	}
	raw, err := strconv.ParseUint(body[prefixLen:], 10, 64)
	if err != nil {
		return SSAValueInvalid, fmt.Errorf("invalid SSA index in %q", tok)
	}
	idx, err := safecast.Conv[uint32](raw)
	if err != nil || idx == 0 || idx > MaxSSAIndex {
		return SSAValueInvalid, fmt.Errorf("SSA index in %q out of range [1, %d]", tok, MaxSSAIndex)
	}
	return NewSSAValue(idx, file), nil
}
