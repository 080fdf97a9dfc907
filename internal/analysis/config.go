package analysis

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/gpuforge/shaderlive/internal/ir"
)

// Kind selects which liveness analysis Analyze runs.
type Kind uint8

const (
	// KindSimple runs liveness.SimpleLiveness.
	KindSimple Kind = iota
	// KindNextUse runs liveness.NextUseLiveness restricted to Config.RegFiles.
	KindNextUse
)

var kindNames = [...]string{
	KindSimple:  "simple",
	KindNextUse: "next-use",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind returns the Kind named s.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if name == strings.ToLower(strings.TrimSpace(s)) {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown analysis kind %q (expected one of %s)", s, strings.Join(kindNames[:], "|"))
}

// UnmarshalText implements encoding.TextUnmarshaler so that Kind can be decoded from TOML.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Config controls Analyze, with the default implementation as NewConfig.
//
// Config is immutable: every With method returns a modified copy.
type Config struct {
	kind          Kind
	files         ir.RegFileSet
	concurrency   int
	instrPressure bool
}

// defaultConfig holds the defaults which do not depend on the host.
var defaultConfig = &Config{
	kind:  KindSimple,
	files: ir.AllRegFileSet(),
}

// clone ensures all fields are copied.
func (c *Config) clone() *Config {
	ret := *c
	return &ret
}

// NewConfig returns the default Config: the simple analysis over every register file, with one worker per
// available CPU and no per-instruction pressure in reports.
func NewConfig() *Config {
	ret := defaultConfig.clone()
	ret.concurrency = runtime.GOMAXPROCS(0)
	return ret
}

// WithKind selects the analysis. Defaults to KindSimple.
func (c *Config) WithKind(kind Kind) *Config {
	ret := c.clone()
	ret.kind = kind
	return ret
}

// WithRegFiles restricts KindNextUse to values of the given files. Defaults to every file.
//
// Note: KindSimple always tracks every file and ignores this setting.
func (c *Config) WithRegFiles(files ir.RegFileSet) *Config {
	ret := c.clone()
	ret.files = files
	return ret
}

// WithConcurrency bounds the number of functions analyzed at the same time. Values below one reset it to
// runtime.GOMAXPROCS.
func (c *Config) WithConcurrency(n int) *Config {
	if n < 1 {
		n = runtime.GOMAXPROCS(0)
	}
	ret := c.clone()
	ret.concurrency = n
	return ret
}

// WithInstrPressure includes the pressure of every instruction in reports. Defaults to false.
func (c *Config) WithInstrPressure(enabled bool) *Config {
	ret := c.clone()
	ret.instrPressure = enabled
	return ret
}

// Kind returns the configured analysis.
func (c *Config) Kind() Kind { return c.kind }

// RegFiles returns the register files KindNextUse considers.
func (c *Config) RegFiles() ir.RegFileSet { return c.files }

// Concurrency returns the maximum number of functions analyzed at the same time.
func (c *Config) Concurrency() int { return c.concurrency }

// InstrPressure returns true if reports include per-instruction pressure.
func (c *Config) InstrPressure() bool { return c.instrPressure }

// fileConfig is the TOML layout read by DecodeConfig.
type fileConfig struct {
	Analysis struct {
		Kind          Kind     `toml:"kind"`
		Files         []string `toml:"files"`
		Concurrency   int      `toml:"concurrency"`
		InstrPressure bool     `toml:"instr_pressure"`
	} `toml:"analysis"`
}

// LoadConfig reads the TOML file at path on top of NewConfig. See DecodeConfig.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c, err := DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// DecodeConfig reads a TOML document such as
//
//	[analysis]
//	kind = "next-use"
//	files = ["gpr", "ugpr"]
//	concurrency = 4
//	instr_pressure = true
//
// on top of NewConfig. Keys which are absent keep their default, and unknown keys are an error.
func DecodeConfig(r io.Reader) (*Config, error) {
	var fc fileConfig
	meta, err := toml.NewDecoder(r).Decode(&fc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}

	ret := NewConfig()
	if meta.IsDefined("analysis", "kind") {
		ret = ret.WithKind(fc.Analysis.Kind)
	}
	if meta.IsDefined("analysis", "files") {
		if len(fc.Analysis.Files) == 0 {
			return nil, fmt.Errorf("[analysis].files must not be empty")
		}
		files, err := ir.ParseRegFileSet(fc.Analysis.Files)
		if err != nil {
			return nil, fmt.Errorf("[analysis].files: %w", err)
		}
		ret = ret.WithRegFiles(files)
	}
	if meta.IsDefined("analysis", "concurrency") {
		if fc.Analysis.Concurrency < 1 {
			return nil, fmt.Errorf("[analysis].concurrency must be positive but was %d", fc.Analysis.Concurrency)
		}
		ret = ret.WithConcurrency(fc.Analysis.Concurrency)
	}
	if meta.IsDefined("analysis", "instr_pressure") {
		ret = ret.WithInstrPressure(fc.Analysis.InstrPressure)
	}
	return ret, nil
}
