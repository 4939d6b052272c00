package hack

import (
	"bytes"
	"strconv"
	"strings"
	"testing"

	"github.com/libklein/n2t-toolchain/internal/token"
	"github.com/libklein/n2t-toolchain/internal/vmcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func emit(t *testing.T, cmds ...vmcode.Command) []string {
	t.Helper()
	var buf bytes.Buffer
	w := NewCodeWriter(&buf)
	for _, c := range cmds {
		require.NoError(t, w.Write(c))
	}
	text := strings.TrimRight(buf.String(), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func TestBootstrapSetsStackPointerAndCallsSysInit(t *testing.T) {
	var buf bytes.Buffer
	w := NewCodeWriter(&buf)
	w.WriteBootstrap()
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "@256\nD=A\n@SP\nM=D\n"))
	assert.Contains(t, out, "@Sys.init")
	assert.Contains(t, out, "0;JMP")
}

func TestPushConstantThenAddLowersToArithmetic(t *testing.T) {
	lines := emit(t,
		vmcode.Command{Kind: vmcode.Push, Segment: vmcode.Constant, Index: 7},
		vmcode.Command{Kind: vmcode.Push, Segment: vmcode.Constant, Index: 8},
		vmcode.Command{Kind: vmcode.Arith, Op: vmcode.Add},
	)
	assert.Contains(t, lines, "@7")
	assert.Contains(t, lines, "@8")
	assert.Contains(t, lines, "M=M+D")
}

func TestStaticSegmentNamespacedByCurrentFile(t *testing.T) {
	var buf bytes.Buffer
	w := NewCodeWriter(&buf)
	w.SetFileName("Foo")
	require.NoError(t, w.Write(vmcode.Command{Kind: vmcode.Pop, Segment: vmcode.Static, Index: 0}))
	w.SetFileName("Bar")
	require.NoError(t, w.Write(vmcode.Command{Kind: vmcode.Pop, Segment: vmcode.Static, Index: 0}))

	out := buf.String()
	assert.Contains(t, out, "@Foo.0")
	assert.Contains(t, out, "@Bar.0")
}

func TestPointerZeroAndOneAddressThisAndThat(t *testing.T) {
	lines := emit(t, vmcode.Command{Kind: vmcode.Pop, Segment: vmcode.Pointer, Index: 0})
	assert.Contains(t, lines, "@THIS")

	lines = emit(t, vmcode.Command{Kind: vmcode.Pop, Segment: vmcode.Pointer, Index: 1})
	assert.Contains(t, lines, "@THAT")
}

func TestLabelsAreNamespacedByActiveFunction(t *testing.T) {
	lines := emit(t,
		vmcode.Command{Kind: vmcode.Function, Name: "Main.main", NLocals: 0},
		vmcode.Command{Kind: vmcode.Label, Name: "LOOP"},
		vmcode.Command{Kind: vmcode.Goto, Name: "LOOP"},
	)
	assert.Contains(t, lines, "(Main.main$LOOP)")
	assert.Contains(t, lines, "@Main.main$LOOP")
}

func TestFunctionProloguePushesZeroPerLocal(t *testing.T) {
	lines := emit(t, vmcode.Command{Kind: vmcode.Function, Name: "Point.new", NLocals: 2})
	count := 0
	for _, l := range lines {
		if l == "@0" {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func TestCallReturnLabelsAreUniquePerCallSite(t *testing.T) {
	lines := emit(t,
		vmcode.Command{Kind: vmcode.Call, Name: "Foo.bar", NArgs: 0},
		vmcode.Command{Kind: vmcode.Call, Name: "Foo.bar", NArgs: 0},
	)
	var retLabels []string
	for _, l := range lines {
		if strings.HasPrefix(l, "(Foo.bar$ret.") {
			retLabels = append(retLabels, l)
		}
	}
	require.Len(t, retLabels, 2)
	assert.NotEqual(t, retLabels[0], retLabels[1])
}

func TestCompareLabelsAreUniquePerCallSite(t *testing.T) {
	lines := emit(t,
		vmcode.Command{Kind: vmcode.Arith, Op: vmcode.Eq},
		vmcode.Command{Kind: vmcode.Arith, Op: vmcode.Eq},
	)
	assert.Contains(t, lines, "(CMP_END.0)")
	assert.Contains(t, lines, "(CMP_END.1)")
}

// TestOverflowSafeComparisonUsesSignBranching is a structural check:
// neither opposite-sign branch may compute x - y directly (it would
// overflow for inputs like 32767 and -32768), each must instead load a
// fixed sign constant. This asserts the CMP_POS_NEG and CMP_NEG_POS
// blocks never contain a literal subtraction of R13/R14.
func TestOverflowSafeComparisonUsesSignBranching(t *testing.T) {
	lines := emit(t, vmcode.Command{Kind: vmcode.Arith, Op: vmcode.Gt})
	var blockStarts []int
	for i, l := range lines {
		if strings.HasPrefix(l, "(CMP_POS_NEG.") || strings.HasPrefix(l, "(CMP_NEG_POS.") {
			blockStarts = append(blockStarts, i)
		}
	}
	require.Len(t, blockStarts, 2)
	for _, start := range blockStarts {
		for i := start + 1; i < len(lines) && !strings.HasPrefix(lines[i], "("); i++ {
			assert.NotEqual(t, "D=D-M", lines[i])
		}
	}
}

// pushValue returns the VM commands that push a literal int onto the
// stack, routing negatives through push-constant-then-neg since VM
// push constant indices are unsigned.
func pushValue(n int) []vmcode.Command {
	if n >= 0 {
		return []vmcode.Command{{Kind: vmcode.Push, Segment: vmcode.Constant, Index: token.MachineWord(n)}}
	}
	return []vmcode.Command{
		{Kind: vmcode.Push, Segment: vmcode.Constant, Index: token.MachineWord(-n)},
		{Kind: vmcode.Arith, Op: vmcode.Neg},
	}
}

func evalCompare(t *testing.T, op vmcode.Operation, x, y int) int {
	t.Helper()
	cmds := append(pushValue(x), pushValue(y)...)
	cmds = append(cmds, vmcode.Command{Kind: vmcode.Arith, Op: op})
	return simulateHack(t, emit(t, cmds...))
}

// TestComparisonSignCombinations runs the emitted assembly through a
// minimal Hack CPU simulator and checks the numeric result against Go's
// own comparison, for every combination of operand sign including
// zero. (0, -5) and (-5, 0) previously mis-evaluated eq/gt/lt because
// the opposite-sign branch re-read the zero operand's value as its own
// sign surrogate.
func TestComparisonSignCombinations(t *testing.T) {
	pairs := [][2]int{
		{0, -5}, {-5, 0}, {0, 0}, {0, 5}, {5, 0},
		{5, 3}, {3, 5}, {-5, -3}, {-3, -5}, {5, -3}, {-3, 5}, {0, -1}, {-1, 0},
	}
	boolInt := func(b bool) int {
		if b {
			return -1
		}
		return 0
	}
	for _, p := range pairs {
		x, y := p[0], p[1]
		assert.Equal(t, boolInt(x == y), evalCompare(t, vmcode.Eq, x, y), "eq(%d,%d)", x, y)
		assert.Equal(t, boolInt(x > y), evalCompare(t, vmcode.Gt, x, y), "gt(%d,%d)", x, y)
		assert.Equal(t, boolInt(x < y), evalCompare(t, vmcode.Lt, x, y), "lt(%d,%d)", x, y)
	}
}

// simulateHack is a minimal Hack CPU: just enough of the instruction
// set that CodeWriter emits (A-instructions, the handful of C-instruction
// comps used by push/neg/compare, and unconditional/conditional jumps)
// to execute a translated VM snippet and read back its result.
func simulateHack(t *testing.T, lines []string) int {
	t.Helper()
	addr := map[string]int{
		"SP": 0, "LCL": 1, "ARG": 2, "THIS": 3, "THAT": 4,
		"R13": 13, "R14": 14, "R15": 15,
	}
	var instrs []string
	for _, l := range lines {
		if strings.HasPrefix(l, "(") {
			addr[strings.TrimSuffix(strings.TrimPrefix(l, "("), ")")] = len(instrs)
			continue
		}
		instrs = append(instrs, l)
	}

	ram := make([]int, 1<<15)
	ram[addr["SP"]] = 300
	a, d, pc := 0, 0, 0
	for steps := 0; pc >= 0 && pc < len(instrs); steps++ {
		require.Less(t, steps, 10000, "simulation did not terminate")
		line := instrs[pc]
		if strings.HasPrefix(line, "@") {
			sym := line[1:]
			if n, err := strconv.Atoi(sym); err == nil {
				a = n
			} else {
				a = addr[sym]
			}
			pc++
			continue
		}

		dest, comp, jump := line, "", ""
		if idx := strings.Index(dest, ";"); idx >= 0 {
			jump = dest[idx+1:]
			dest = dest[:idx]
		}
		if idx := strings.Index(dest, "="); idx >= 0 {
			comp = dest[idx+1:]
			dest = dest[:idx]
		} else {
			comp, dest = dest, ""
		}

		m := ram[a]
		val := evalHackComp(comp, a, d, m)
		if strings.Contains(dest, "M") {
			ram[a] = val
		}
		if strings.Contains(dest, "D") {
			d = val
		}
		if strings.Contains(dest, "A") {
			a = val
		}

		taken := false
		switch jump {
		case "":
		case "JGT":
			taken = val > 0
		case "JEQ":
			taken = val == 0
		case "JGE":
			taken = val >= 0
		case "JLT":
			taken = val < 0
		case "JNE":
			taken = val != 0
		case "JLE":
			taken = val <= 0
		case "JMP":
			taken = true
		}
		if taken {
			pc = a
		} else {
			pc++
		}
	}
	return ram[ram[addr["SP"]]-1]
}

func evalHackComp(comp string, a, d, m int) int {
	switch comp {
	case "0":
		return 0
	case "1":
		return 1
	case "-1":
		return -1
	case "D":
		return d
	case "A":
		return a
	case "M":
		return m
	case "!D":
		return ^d
	case "!A":
		return ^a
	case "!M":
		return ^m
	case "-D":
		return -d
	case "-A":
		return -a
	case "-M":
		return -m
	case "D+1":
		return d + 1
	case "A+1":
		return a + 1
	case "M+1":
		return m + 1
	case "D-1":
		return d - 1
	case "A-1":
		return a - 1
	case "M-1":
		return m - 1
	case "D+A":
		return d + a
	case "D+M":
		return d + m
	case "D-A":
		return d - a
	case "D-M":
		return d - m
	case "A-D":
		return a - d
	case "M-D":
		return m - d
	case "D&A":
		return d & a
	case "D&M":
		return d & m
	case "D|A":
		return d | a
	case "D|M":
		return d | m
	}
	panic("simulateHack: unknown comp " + comp)
}

func TestDumpStaticsReturnsSortedUniqueSymbols(t *testing.T) {
	var buf bytes.Buffer
	w := NewCodeWriter(&buf)
	w.SetFileName("Bar")
	require.NoError(t, w.Write(vmcode.Command{Kind: vmcode.Pop, Segment: vmcode.Static, Index: 1}))
	w.SetFileName("Foo")
	require.NoError(t, w.Write(vmcode.Command{Kind: vmcode.Pop, Segment: vmcode.Static, Index: 0}))
	require.NoError(t, w.Write(vmcode.Command{Kind: vmcode.Push, Segment: vmcode.Static, Index: 0}))

	assert.Equal(t, []string{"Bar.1", "Foo.0"}, w.DumpStatics())
}

func TestTempSegmentAddressesFixedRegisters(t *testing.T) {
	for i := token.MachineWord(0); i <= 7; i++ {
		lines := emit(t, vmcode.Command{Kind: vmcode.Pop, Segment: vmcode.Temp, Index: i})
		assert.Contains(t, lines, "@"+strconv.Itoa(int(5+i)))
	}
}
