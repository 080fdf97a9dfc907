package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gpuforge/shaderlive/internal/analysis"
)

const branchSrc = `func branch
block 0 -> 1, 2
    %r1 = mov 0x1
    %p2 = isetp %r1, 0x0
block 1 -> 3
    %r3 = iadd %r1, %r1
    st %r3, %p2
block 2 -> 3
    nop
block 3
    regout %r1
`

func TestAnalyze_text(t *testing.T) {
	path := writeFile(t, "branch.ir", branchSrc)

	exitCode, stdOut, stdErr := runMain(t, "", "analyze", "--color=off", path)
	require.Equal(t, 0, exitCode)
	require.Equal(t, "", stdErr)
	require.Equal(t, `func branch [simple] max live: gpr=2 pred=1
  blk0 -> 1, 2 (2 instrs)
    live-in:  -
    live-out: %r1 %p2
  blk1 <- 0 -> 3 (2 instrs)
    live-in:  %r1 %p2
    live-out: %r1
  blk2 <- 0 -> 3 (1 instrs)
    live-in:  %r1
    live-out: %r1
  blk3 <- 1, 2 (1 instrs)
    live-in:  %r1
    live-out: -
`, stdOut)
}

func TestAnalyze_nextUse(t *testing.T) {
	path := writeFile(t, "branch.ir", branchSrc)

	exitCode, stdOut, _ := runMain(t, "", "analyze", "--color=off", "--kind=next-use", "--files=gpr",
		"--instr-pressure", path)
	require.Equal(t, 0, exitCode)
	require.Equal(t, `func branch [next-use] max live: gpr=2 pred=1
  blk0 -> 1, 2 (2 instrs)
    live-in:  -
    live-out: %r1
    0: gpr=1
    1: pred=1
  blk1 <- 0 -> 3 (2 instrs)
    live-in:  %r1
    live-out: %r1
    first-use: %r1@0
    0: gpr=1
    1: none
  blk2 <- 0 -> 3 (1 instrs)
    live-in:  %r1
    live-out: %r1
    first-use: %r1@1
    0: none
  blk3 <- 1, 2 (1 instrs)
    live-in:  %r1
    live-out: -
    first-use: %r1@0
    0: none
`, stdOut)
}

func TestAnalyze_stdin(t *testing.T) {
	exitCode, stdOut, _ := runMain(t, branchSrc, "analyze", "--color=off")
	require.Equal(t, 0, exitCode)
	require.True(t, strings.HasPrefix(stdOut, "func branch [simple]"), stdOut)

	exitCode, stdOut2, _ := runMain(t, branchSrc, "analyze", "--color=off", "-")
	require.Equal(t, 0, exitCode)
	require.Equal(t, stdOut, stdOut2)
}

func TestAnalyze_multipleFiles(t *testing.T) {
	a := writeFile(t, "a.ir", branchSrc)
	b := writeFile(t, "b.ir", "func straight\nblock 0\n    {%r1 %r2} = ld 0x0\n    st %r1, %r2\n")

	exitCode, stdOut, _ := runMain(t, "", "analyze", "--color=off", "--concurrency=1", a, b)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdOut, "func branch [simple]")
	require.Contains(t, stdOut, "\n\nfunc straight [simple] max live: gpr=2\n")
}

func TestAnalyze_config(t *testing.T) {
	path := writeFile(t, "branch.ir", branchSrc)
	config := writeFile(t, "shaderlive.toml", "[analysis]\nkind = \"next-use\"\nfiles = [\"gpr\"]\n")

	exitCode, stdOut, _ := runMain(t, "", "analyze", "--color=off", "--config", config, path)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdOut, "[next-use]")
	require.Contains(t, stdOut, "first-use: %r1@1")

	// Flags win over the file.
	exitCode, stdOut, _ = runMain(t, "", "analyze", "--color=off", "--config", config, "--kind=simple", path)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdOut, "[simple]")
	require.NotContains(t, stdOut, "first-use")
}

func TestAnalyze_msgpack(t *testing.T) {
	path := writeFile(t, "branch.ir", branchSrc)
	out := filepath.Join(t.TempDir(), "reports.msgpack")

	exitCode, stdOut, stdErr := runMain(t, "", "analyze", "--format=msgpack", "-o", out, path)
	require.Equal(t, 0, exitCode, stdErr)
	require.Equal(t, "", stdOut)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	reports, err := analysis.DecodeReports(f)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.Equal(t, "branch", reports[0].Function)
	require.Equal(t, map[string]uint32{"gpr": 2, "pred": 1}, reports[0].MaxLive)
}

func TestAnalyze_dump(t *testing.T) {
	path := writeFile(t, "branch.ir", branchSrc)

	exitCode, stdOut, _ := runMain(t, "", "analyze", "--dump", path)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdOut, "analysis.Report{")
	require.Contains(t, stdOut, `Function: "branch"`)
}

func TestAnalyze_colors(t *testing.T) {
	path := writeFile(t, "branch.ir", branchSrc)

	exitCode, stdOut, _ := runMain(t, "", "analyze", "--color=on", path)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdOut, "\x1b[")

	// Files never get colors unless asked to.
	out := filepath.Join(t.TempDir(), "out.txt")
	exitCode, _, _ = runMain(t, "", "analyze", "-o", out, path)
	require.Equal(t, 0, exitCode)
	written, err := os.ReadFile(out)
	require.NoError(t, err)
	require.NotContains(t, string(written), "\x1b[")
	require.True(t, strings.HasPrefix(string(written), "func branch [simple]"))
}

func TestAnalyze_errors(t *testing.T) {
	valid := writeFile(t, "branch.ir", branchSrc)
	invalid := writeFile(t, "invalid.ir", "func f\nblock 0\n    st %r1\n")
	syntax := writeFile(t, "syntax.ir", "func f\nblock 0\n    {%r1 %p2} = ld 0x0\n")

	for _, tc := range []struct {
		name   string
		args   []string
		expErr string
	}{
		{
			name:   "unknown kind",
			args:   []string{"analyze", "--kind=ssa", valid},
			expErr: `error: unknown analysis kind "ssa" (expected one of simple|next-use)` + "\n",
		},
		{
			name:   "unknown file",
			args:   []string{"analyze", "--files=gpr,vgpr", valid},
			expErr: `error: unknown register file "vgpr" (expected one of gpr|ugpr|pred|upred|carry|bar|mem)` + "\n",
		},
		{
			name:   "empty files",
			args:   []string{"analyze", "--files=", valid},
			expErr: "error: --files must name at least one register file\n",
		},
		{
			name:   "invalid format",
			args:   []string{"analyze", "--format=json", valid},
			expErr: `error: invalid --format "json" (expected text|msgpack)` + "\n",
		},
		{
			name:   "dump msgpack",
			args:   []string{"analyze", "--format=msgpack", "--dump", valid},
			expErr: "error: --dump requires --format text\n",
		},
		{
			name:   "invalid color",
			args:   []string{"analyze", "--color=always", valid},
			expErr: `error: invalid --color "always" (expected auto|on|off)` + "\n",
		},
		{
			name:   "undefined value",
			args:   []string{"analyze", invalid},
			expErr: "error: " + invalid + ": function f: %r1 used at blk0:0 is never defined\n",
		},
		{
			name:   "syntax",
			args:   []string{"analyze", syntax},
			expErr: "error: " + syntax + `: line 3: vector "{%r1 %p2}" mixes register files` + "\n",
		},
		{
			name:   "missing config",
			args:   []string{"analyze", "--config", filepath.Join(t.TempDir(), "missing.toml"), valid},
			expErr: "no such file",
		},
		{
			name:   "unknown command",
			args:   []string{"compile"},
			expErr: `unknown command "compile"`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			exitCode, stdOut, stdErr := runMain(t, "", append([]string{"--color=off"}, tc.args...)...)
			require.Equal(t, 1, exitCode)
			require.Equal(t, "", stdOut)
			if strings.HasPrefix(tc.expErr, "error: ") {
				require.Equal(t, tc.expErr, stdErr)
			} else {
				require.Contains(t, stdErr, tc.expErr)
			}
		})
	}
}

func TestVersion(t *testing.T) {
	exitCode, stdOut, _ := runMain(t, "", "version")
	require.Equal(t, 0, exitCode)
	require.Equal(t, "shaderlive "+getVersion()+"\n", stdOut)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func runMain(t *testing.T, stdIn string, args ...string) (int, string, string) {
	t.Helper()

	var exitCode int
	stdOut := &bytes.Buffer{}
	stdErr := &bytes.Buffer{}
	var exited bool
	func() {
		defer func() {
			if r := recover(); r != nil {
				exited = true
			}
		}()
		doMain(args, strings.NewReader(stdIn), stdOut, stdErr, func(code int) {
			exitCode = code
			panic(code)
		})
	}()

	require.True(t, exited)

	return exitCode, stdOut.String(), stdErr.String()
}
