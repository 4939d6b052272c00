package jack

import (
	"fmt"
	"io"

	"github.com/libklein/n2t-toolchain/internal/token"
	"github.com/libklein/n2t-toolchain/internal/vmcode"
)

// VMWriter is a thin formatting facade over an io.Writer: each method
// appends exactly one textual VM command line. It holds no state
// beyond the output sink.
type VMWriter struct {
	out io.Writer
}

// NewVMWriter wraps w for VM text emission.
func NewVMWriter(w io.Writer) *VMWriter {
	return &VMWriter{out: w}
}

func (w *VMWriter) writeLine(line string) {
	io.WriteString(w.out, line)
	io.WriteString(w.out, "\n")
}

func (w *VMWriter) WritePush(seg vmcode.Segment, idx token.MachineWord) {
	w.writeLine(fmt.Sprintf("push %s %d", seg, idx))
}

func (w *VMWriter) WritePop(seg vmcode.Segment, idx token.MachineWord) {
	w.writeLine(fmt.Sprintf("pop %s %d", seg, idx))
}

// WriteArithmetic emits the operation verbatim; `*` and `/` are not
// VM operations at all (they lower to Math.multiply/Math.divide calls
// emitted by the compiler itself), so this method only ever sees the
// nine native VM arithmetic/logical operations.
func (w *VMWriter) WriteArithmetic(op vmcode.Operation) {
	w.writeLine(string(op))
}

func (w *VMWriter) WriteLabel(label string) { w.writeLine("label " + label) }
func (w *VMWriter) WriteGoto(label string)  { w.writeLine("goto " + label) }
func (w *VMWriter) WriteIf(label string)    { w.writeLine("if-goto " + label) }

func (w *VMWriter) WriteCall(name string, nArgs token.MachineWord) {
	w.writeLine(fmt.Sprintf("call %s %d", name, nArgs))
}

func (w *VMWriter) WriteFunction(name string, nLocals token.MachineWord) {
	w.writeLine(fmt.Sprintf("function %s %d", name, nLocals))
}

func (w *VMWriter) WriteReturn() { w.writeLine("return") }

// WriteStringConstant lowers a Jack string literal into the
// String.new/String.appendChar call sequence the Jack OS expects.
func (w *VMWriter) WriteStringConstant(s string) {
	w.WritePush(vmcode.Constant, token.MachineWord(len(s)))
	w.WriteCall("String.new", 1)
	for _, r := range s {
		w.WritePush(vmcode.Constant, token.MachineWord(r))
		w.WriteCall("String.appendChar", 2)
	}
}
