// Package hack implements Pipeline V's CodeWriter: the component that
// lowers a stream of vmcode.Command values to Hack symbolic assembly,
// maintaining the bootstrap, the call/return frame convention,
// static-segment namespacing, and unique labels for every
// boolean/flow-control construct.
package hack

import (
	"fmt"
	"io"
	"sort"

	"github.com/libklein/n2t-toolchain/internal/token"
	"github.com/libklein/n2t-toolchain/internal/vmcode"
	"golang.org/x/exp/maps"
)

var segmentBase = map[vmcode.Segment]string{
	vmcode.Local:    "LCL",
	vmcode.Argument: "ARG",
	vmcode.This:     "THIS",
	vmcode.That:     "THAT",
}

// CodeWriter emits Hack assembly text for a sequence of VM commands.
// It owns the output sink exclusively and all state is
// per-invocation: a per-writer call counter (so `f$ret.k` labels are
// unique across every file translated in a single run), a
// per-comparison counter, the current file's static namespace, and
// the currently active function for label namespacing.
type CodeWriter struct {
	out io.Writer

	currentFile     string // basename sans extension, for `static i` -> `<file>.i`
	currentFunction string // for `label`/`goto`/`if-goto` namespacing; "Bootstrap" before the first `function`

	callSeq    int
	compareSeq int

	statics map[string]struct{} // every `<file>.i` symbol emitted, for --dump-symbols
}

// NewCodeWriter wraps w for Hack assembly emission.
func NewCodeWriter(w io.Writer) *CodeWriter {
	return &CodeWriter{out: w, currentFunction: "Bootstrap", statics: make(map[string]struct{})}
}

// DumpStatics returns every static symbol (`<file>.i`) emitted so far,
// in deterministic order, for the --dump-symbols diagnostic flag.
func (c *CodeWriter) DumpStatics() []string {
	names := maps.Keys(c.statics)
	sort.Strings(names)
	return names
}

func (c *CodeWriter) staticSymbol(idx token.MachineWord) string {
	sym := fmt.Sprintf("%s.%d", c.currentFile, idx)
	c.statics[sym] = struct{}{}
	return sym
}

func (c *CodeWriter) line(format string, args ...interface{}) {
	fmt.Fprintf(c.out, format+"\n", args...)
}

// SetFileName updates the static-segment namespace. Call it before
// translating each file in a directory so `push/pop static i`
// resolves to `<basename>.i` for whichever file is currently being
// read.
func (c *CodeWriter) SetFileName(baseName string) {
	c.currentFile = baseName
}

// WriteBootstrap emits the directory-mode prelude: set SP to 256,
// then call Sys.init with 0 arguments. Single-file translation must
// not call this: a lone arithmetic-only VM file has no Sys.init to
// jump to.
func (c *CodeWriter) WriteBootstrap() {
	c.line("@256")
	c.line("D=A")
	c.line("@SP")
	c.line("M=D")
	c.writeCall("Sys.init", 0)
}

// Write lowers a single VM command to its Hack assembly translation.
func (c *CodeWriter) Write(cmd vmcode.Command) error {
	switch cmd.Kind {
	case vmcode.Push:
		return c.writePush(cmd.Segment, cmd.Index)
	case vmcode.Pop:
		return c.writePop(cmd.Segment, cmd.Index)
	case vmcode.Arith:
		return c.writeArithmetic(cmd.Op)
	case vmcode.Label:
		c.line("(%s)", c.namespaced(cmd.Name))
	case vmcode.Goto:
		c.line("@%s", c.namespaced(cmd.Name))
		c.line("0;JMP")
	case vmcode.IfGoto:
		c.popToD()
		c.line("@%s", c.namespaced(cmd.Name))
		c.line("D;JNE")
	case vmcode.Function:
		c.writeFunction(cmd.Name, cmd.NLocals)
	case vmcode.Call:
		c.writeCall(cmd.Name, cmd.NArgs)
	case vmcode.Return:
		c.writeReturn()
	default:
		return fmt.Errorf("codegen invariant violated: unhandled command kind %v", cmd.Kind)
	}
	return nil
}

// namespaced qualifies a flow-control label with the currently active
// function: labels are local to the function they appear in.
func (c *CodeWriter) namespaced(label string) string {
	return c.currentFunction + "$" + label
}

// popToD pops the top of the stack into D, leaving SP pointing at the
// new top.
func (c *CodeWriter) popToD() {
	c.line("@SP")
	c.line("AM=M-1")
	c.line("D=M")
}

// pushD pushes D onto the stack.
func (c *CodeWriter) pushD() {
	c.line("@SP")
	c.line("A=M")
	c.line("M=D")
	c.line("@SP")
	c.line("M=M+1")
}

func (c *CodeWriter) writeArithmetic(op vmcode.Operation) error {
	switch op {
	case vmcode.Add, vmcode.Sub, vmcode.And, vmcode.Or:
		c.popToD()
		c.line("A=A-1")
		switch op {
		case vmcode.Add:
			c.line("M=M+D")
		case vmcode.Sub:
			c.line("M=M-D")
		case vmcode.And:
			c.line("M=M&D")
		case vmcode.Or:
			c.line("M=M|D")
		}
		return nil
	case vmcode.Neg:
		c.line("@SP")
		c.line("A=M-1")
		c.line("M=-M")
		return nil
	case vmcode.Not:
		c.line("@SP")
		c.line("A=M-1")
		c.line("M=!M")
		return nil
	case vmcode.Eq, vmcode.Gt, vmcode.Lt:
		c.writeCompare(op)
		return nil
	default:
		return fmt.Errorf("codegen invariant violated: unknown operation %q", op)
	}
}

// writeCompare emits an overflow-safe comparison: when x and y have
// opposite sign, `x - y` could overflow a 16-bit word, so the
// comparison substitutes a fixed sign constant for the two
// opposite-sign cases instead of computing a difference: x>=0,y<0
// makes `x - y` strictly positive for every such pair including x=0,
// and x<0,y>=0 makes it strictly negative for every such pair
// including y=0. The operand's own value is never reused as the
// surrogate, since x=0 carries no sign to read. Same-sign operands
// use the ordinary `x - y` form. Each call site gets a fresh label
// set via c.compareSeq.
func (c *CodeWriter) writeCompare(op vmcode.Operation) {
	n := c.compareSeq
	c.compareSeq++

	xNeg := fmt.Sprintf("CMP_XNEG.%d", n)
	sameSign := fmt.Sprintf("CMP_SAME.%d", n)
	xPosYNeg := fmt.Sprintf("CMP_POS_NEG.%d", n)
	xNegYPos := fmt.Sprintf("CMP_NEG_POS.%d", n)
	compute := fmt.Sprintf("CMP_COMPUTE.%d", n)
	isTrue := fmt.Sprintf("CMP_TRUE.%d", n)
	end := fmt.Sprintf("CMP_END.%d", n)

	// Pop y into R14, then read (without popping) x into R13.
	c.popToD()
	c.line("@R14")
	c.line("M=D")
	c.line("@SP")
	c.line("A=M-1")
	c.line("D=M")
	c.line("@R13")
	c.line("M=D")

	c.line("@%s", xNeg)
	c.line("D;JLT")
	// x >= 0
	c.line("@R14")
	c.line("D=M")
	c.line("@%s", xPosYNeg)
	c.line("D;JLT")
	c.line("@%s", sameSign)
	c.line("0;JMP")
	c.line("(%s)", xNeg)
	// x < 0
	c.line("@R14")
	c.line("D=M")
	c.line("@%s", sameSign)
	c.line("D;JLT")
	c.line("@%s", xNegYPos)
	c.line("0;JMP")

	c.line("(%s)", xPosYNeg)
	c.line("@1")
	c.line("D=A") // x - y > 0 whenever x>=0, y<0, even at x=0
	c.line("@%s", compute)
	c.line("0;JMP")

	c.line("(%s)", xNegYPos)
	c.line("@1")
	c.line("D=-A") // x - y < 0 whenever x<0, y>=0, even at y=0
	c.line("@%s", compute)
	c.line("0;JMP")

	c.line("(%s)", sameSign)
	c.line("@R13")
	c.line("D=M")
	c.line("@R14")
	c.line("D=D-M") // D := x - y, safe: same sign cannot overflow

	c.line("(%s)", compute)
	jump := map[vmcode.Operation]string{vmcode.Eq: "JEQ", vmcode.Gt: "JGT", vmcode.Lt: "JLT"}[op]
	c.line("@%s", isTrue)
	c.line("D;%s", jump)
	c.line("@SP")
	c.line("A=M-1")
	c.line("M=0")
	c.line("@%s", end)
	c.line("0;JMP")
	c.line("(%s)", isTrue)
	c.line("@SP")
	c.line("A=M-1")
	c.line("M=-1")
	c.line("(%s)", end)
}

func (c *CodeWriter) writePush(seg vmcode.Segment, idx token.MachineWord) error {
	switch seg {
	case vmcode.Constant:
		c.line("@%d", idx)
		c.line("D=A")
	case vmcode.Local, vmcode.Argument, vmcode.This, vmcode.That:
		c.line("@%s", segmentBase[seg])
		c.line("D=M")
		c.line("@%d", idx)
		c.line("A=D+A")
		c.line("D=M")
	case vmcode.Temp:
		if idx < 0 || idx > 7 {
			return fmt.Errorf("codegen invariant violated: temp index %d out of range", idx)
		}
		c.line("@%d", 5+idx)
		c.line("D=M")
	case vmcode.Pointer:
		c.line("@%s", pointerTarget(idx))
		c.line("D=M")
	case vmcode.Static:
		c.line("@%s", c.staticSymbol(idx))
		c.line("D=M")
	default:
		return fmt.Errorf("codegen invariant violated: unknown segment %q", seg)
	}
	c.pushD()
	return nil
}

func (c *CodeWriter) writePop(seg vmcode.Segment, idx token.MachineWord) error {
	switch seg {
	case vmcode.Local, vmcode.Argument, vmcode.This, vmcode.That:
		c.line("@%s", segmentBase[seg])
		c.line("D=M")
		c.line("@%d", idx)
		c.line("D=D+A")
		c.line("@R13")
		c.line("M=D")
		c.popToD()
		c.line("@R13")
		c.line("A=M")
		c.line("M=D")
	case vmcode.Temp:
		if idx < 0 || idx > 7 {
			return fmt.Errorf("codegen invariant violated: temp index %d out of range", idx)
		}
		c.popToD()
		c.line("@%d", 5+idx)
		c.line("M=D")
	case vmcode.Pointer:
		c.popToD()
		c.line("@%s", pointerTarget(idx))
		c.line("M=D")
	case vmcode.Static:
		c.popToD()
		c.line("@%s", c.staticSymbol(idx))
		c.line("M=D")
	default:
		return fmt.Errorf("codegen invariant violated: segment %q is not a valid pop target", seg)
	}
	return nil
}

func pointerTarget(idx token.MachineWord) string {
	if idx == 0 {
		return "THIS"
	}
	return "THAT"
}

func (c *CodeWriter) writeFunction(name string, nLocals token.MachineWord) {
	c.currentFunction = name
	c.line("(%s)", name)
	for i := token.MachineWord(0); i < nLocals; i++ {
		c.line("@0")
		c.line("D=A")
		c.pushD()
	}
}

// writeCall pushes the return address, pushes the caller's
// LCL/ARG/THIS/THAT, rebases ARG and LCL for the callee, jumps, and
// places the return label.
func (c *CodeWriter) writeCall(name string, nArgs token.MachineWord) {
	retLabel := fmt.Sprintf("%s$ret.%d", name, c.callSeq)
	c.callSeq++

	c.line("@%s", retLabel)
	c.line("D=A")
	c.pushD()
	for _, reg := range []string{"LCL", "ARG", "THIS", "THAT"} {
		c.line("@%s", reg)
		c.line("D=M")
		c.pushD()
	}

	c.line("@SP")
	c.line("D=M")
	c.line("@%d", 5+nArgs)
	c.line("D=D-A")
	c.line("@ARG")
	c.line("M=D")

	c.line("@SP")
	c.line("D=M")
	c.line("@LCL")
	c.line("M=D")

	c.line("@%s", name)
	c.line("0;JMP")
	c.line("(%s)", retLabel)
}

// writeReturn restores the caller's frame and jumps back. The return
// address is saved to R15 before `*ARG = pop()` because a nullary
// call has ARG == endFrame-5, the exact slot `*(endFrame-5)` reads
// from — overwriting it with the return value before reading it would
// lose the return address.
func (c *CodeWriter) writeReturn() {
	c.line("@LCL")
	c.line("D=M")
	c.line("@R14") // R14 = endFrame
	c.line("M=D")

	c.line("@5")
	c.line("A=D-A")
	c.line("D=M")
	c.line("@R15") // R15 = return address, saved before ARG is clobbered
	c.line("M=D")

	c.popToD()
	c.line("@ARG")
	c.line("A=M")
	c.line("M=D") // *ARG = pop()

	c.line("@ARG")
	c.line("D=M+1")
	c.line("@SP")
	c.line("M=D") // SP = ARG + 1

	for i, reg := range []string{"THAT", "THIS", "ARG", "LCL"} {
		c.line("@R14")
		c.line("D=M")
		c.line("@%d", i+1)
		c.line("A=D-A")
		c.line("D=M")
		c.line("@%s", reg)
		c.line("M=D")
	}

	c.line("@R15")
	c.line("A=M")
	c.line("0;JMP")
}
