// Package jack implements Pipeline J: the Jack tokenizer's consumer,
// the two-level symbol table, and the recursive-descent compilation
// engine that emits VM code directly, with no intermediate AST — each
// grammar production is a method that parses its own tokens and
// writes VM code as it goes.
package jack

import (
	"fmt"
	"strconv"

	"github.com/libklein/n2t-toolchain/internal/diag"
	"github.com/libklein/n2t-toolchain/internal/token"
	"github.com/libklein/n2t-toolchain/internal/vmcode"
	"go.uber.org/zap"
)

// TokenScanner is the subset of jacklex.Tokenizer the engine depends
// on, named here so the engine can be tested against fakes.
type TokenScanner interface {
	Advance() bool
	Token() token.Token
	PeekNext() (token.Token, bool)
	Err() error
}

// OutputWriter is the subset of VMWriter the engine depends on.
type OutputWriter interface {
	WritePush(vmcode.Segment, token.MachineWord)
	WritePop(vmcode.Segment, token.MachineWord)
	WriteArithmetic(vmcode.Operation)
	WriteLabel(string)
	WriteGoto(string)
	WriteIf(string)
	WriteCall(string, token.MachineWord)
	WriteFunction(string, token.MachineWord)
	WriteStringConstant(string)
	WriteReturn()
}

// subroutineKind distinguishes the three subroutine declaration forms.
type subroutineKind string

const (
	kindConstructor subroutineKind = "constructor"
	kindFunction    subroutineKind = "function"
	kindMethod      subroutineKind = "method"
)

// Engine is the recursive-descent compilation engine: every Jack
// grammar production is a method that consumes exactly the tokens of
// that production and emits VM code inline.
type Engine struct {
	tok TokenScanner
	sym *SymbolTable
	out OutputWriter
	log *zap.Logger

	className string
	ifCounter uint64
	whileCounter uint64
}

// New builds a compilation engine reading from tok and emitting to
// out. A nil logger is replaced with a no-op logger.
func New(tok TokenScanner, out OutputWriter, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{tok: tok, sym: NewSymbolTable(log), out: out, log: log}
}

// Compile consumes the whole token stream as a single class
// declaration. Any grammar violation aborts translation by panicking;
// callers should recover at the file boundary (see cmd/jackc).
func (e *Engine) Compile() {
	e.advance()
	e.compileClass()
}

// DumpSymbols returns the compiled class's static/field symbol names
// in deterministic order, for the --dump-symbols diagnostic flag.
func (e *Engine) DumpSymbols() []string { return e.sym.ClassNames() }

func (e *Engine) cur() token.Token { return e.tok.Token() }

func (e *Engine) advance() token.Token {
	if !e.tok.Advance() {
		if err := e.tok.Err(); err != nil {
			panic(&diag.ParseError{Pos: "<eof>", Err: err})
		}
		panic(&diag.ParseError{Pos: "<eof>", Err: fmt.Errorf("unexpected end of input")})
	}
	return e.cur()
}

// consume checks the current token against each expected terminal in
// turn, advancing past each on a match and panicking on the first
// mismatch. With no arguments it just advances.
func (e *Engine) consume(expected ...string) {
	if len(expected) == 0 {
		e.advance()
		return
	}
	for _, want := range expected {
		if !e.cur().Is(want) {
			panic(&diag.ParseError{Pos: want, Err: fmt.Errorf("expected %q, got %q", want, e.cur().Text)})
		}
		e.advance()
	}
}

func (e *Engine) compileClass() {
	e.consume("class")
	e.sym.StartClass()

	name, err := parseIdentifier(e.cur())
	if err != nil {
		panic(&diag.ParseError{Pos: "class name", Err: err})
	}
	e.className = name
	e.log.Info("compiling class", zap.String("class", name))
	e.advance()

	e.consume("{")
	for e.compileClassVarDec() {
	}
	for e.compileSubroutineDec() {
	}
	if !e.cur().Is("}") {
		panic(&diag.ParseError{Pos: "class end", Err: fmt.Errorf("expected \"}\", got %q", e.cur().Text)})
	}
	if e.tok.Advance() {
		panic(&diag.ParseError{Pos: "class end", Err: fmt.Errorf("unexpected trailing input after class body")})
	}
}

// compileClassVarDec compiles a single `static`/`field` declaration
// group and reports whether it matched one.
func (e *Engine) compileClassVarDec() bool {
	switch {
	case e.cur().Is("static"):
		e.consume("static")
		e.compileVarSequence(KindStatic)
	case e.cur().Is("field"):
		e.consume("field")
		e.compileVarSequence(KindField)
	default:
		return false
	}
	return true
}

// compileVarSequence compiles `type name (, name)* ;` and declares
// each name in the symbol table under kind, returning the count
// declared.
func (e *Engine) compileVarSequence(kind Kind) (count token.MachineWord) {
	varType, err := parseType(e.cur())
	if err != nil {
		panic(&diag.ParseError{Pos: "var type", Err: err})
	}
	e.consume()

	for {
		name, err := parseIdentifier(e.cur())
		if err != nil {
			panic(&diag.ParseError{Pos: "var name", Err: err})
		}
		e.consume()
		e.sym.Define(name, varType, kind)
		count++

		if e.cur().Is(",") {
			e.consume(",")
			continue
		}
		break
	}
	e.consume(";")
	return count
}

// compileSubroutineDec compiles one constructor/function/method
// declaration and reports whether one was present.
func (e *Engine) compileSubroutineDec() bool {
	if !e.cur().Is("constructor", "function", "method") {
		return false
	}
	e.sym.StartSubroutine()
	kind := subroutineKind(e.cur().Text)

	if kind == kindMethod {
		// `this` occupies ARG index 0, declared before any user
		// parameter, since the caller pushes the receiver first.
		e.sym.Define("this", e.className, KindArgument)
	}

	e.consume() // constructor | function | method
	e.consume() // return type, unchecked beyond being a type/void token

	name, err := parseIdentifier(e.cur())
	if err != nil {
		panic(&diag.ParseError{Pos: "subroutine name", Err: err})
	}
	e.consume()

	e.consume("(")
	if !e.cur().Is(")") {
		e.compileParameterList()
	}
	e.consume(")")

	e.compileSubroutineBody(name, kind)
	return true
}

func (e *Engine) compileParameterList() {
	for {
		varType, err := parseType(e.cur())
		if err != nil {
			panic(&diag.ParseError{Pos: "parameter type", Err: err})
		}
		e.consume()
		name, err := parseIdentifier(e.cur())
		if err != nil {
			panic(&diag.ParseError{Pos: "parameter name", Err: err})
		}
		e.consume()
		e.sym.Define(name, varType, KindArgument)

		if e.cur().Is(",") {
			e.consume(",")
			continue
		}
		break
	}
}

func (e *Engine) compileSubroutineBody(name string, kind subroutineKind) {
	e.consume("{")

	var nLocals token.MachineWord
	for e.cur().Is("var") {
		e.consume("var")
		nLocals += e.compileVarSequence(KindLocal)
	}

	e.out.WriteFunction(e.className+"."+name, nLocals)
	e.log.Debug("emitting function", zap.String("name", name), zap.Int16("locals", nLocals))

	switch kind {
	case kindConstructor:
		nFields := e.sym.VarCount(KindField)
		e.out.WritePush(vmcode.Constant, nFields)
		e.out.WriteCall("Memory.alloc", 1)
		e.out.WritePop(vmcode.Pointer, 0)
	case kindMethod:
		e.out.WritePush(vmcode.Argument, 0)
		e.out.WritePop(vmcode.Pointer, 0)
	}

	e.compileStatements()
	e.consume("}")
}

func (e *Engine) compileStatements() {
	for !e.cur().Is("}") {
		switch {
		case e.cur().Is("let"):
			e.compileLet()
		case e.cur().Is("if"):
			e.compileIf()
		case e.cur().Is("while"):
			e.compileWhile()
		case e.cur().Is("do"):
			e.compileDo()
		case e.cur().Is("return"):
			e.compileReturn()
		default:
			panic(&diag.ParseError{Pos: "statement", Err: fmt.Errorf("illegal statement keyword %q", e.cur().Text)})
		}
	}
}

func (e *Engine) compileDo() {
	e.consume("do")
	e.compileSubroutineCall("")
	e.out.WritePop(vmcode.Temp, 0) // discard unused return value
	e.consume(";")
}

// compileLet compiles a `let` statement, including the temp/pointer
// ordering an array target needs: the right-hand expression may itself
// read through `pointer 1` for its own array accesses, so the target
// address must be stashed in `temp 0` until the expression result is
// on the stack and only then restored into `pointer 1`.
func (e *Engine) compileLet() {
	e.consume("let")
	varName, err := parseIdentifier(e.cur())
	if err != nil {
		panic(&diag.SemanticError{Pos: "let target", Err: err})
	}
	e.consume()

	isArray := e.cur().Is("[")
	if isArray {
		e.consume("[")
		e.compileArrayAddress(varName)
		e.consume("]")
	}

	e.consume("=")
	e.compileExpression()
	e.consume(";")

	if isArray {
		e.out.WritePop(vmcode.Temp, 0)
		e.out.WritePop(vmcode.Pointer, 1)
		e.out.WritePush(vmcode.Temp, 0)
		e.out.WritePop(vmcode.That, 0)
		return
	}

	seg, idx, ok := e.variableAccess(varName)
	if !ok {
		panic(&diag.SemanticError{Pos: "let target", Err: fmt.Errorf("undeclared identifier %q in assignment", varName)})
	}
	e.out.WritePop(seg, idx)
}

// compileArrayAddress computes `base + index` and leaves the result
// on top of the stack; it does not touch `pointer 1`, so it is safe
// to call while an outer `let` is still holding its own address
// computation.
func (e *Engine) compileArrayAddress(varName string) {
	e.compileExpression()
	seg, idx, ok := e.variableAccess(varName)
	if !ok {
		panic(&diag.SemanticError{Pos: "array base", Err: fmt.Errorf("undeclared identifier %q", varName)})
	}
	e.out.WritePush(seg, idx)
	e.out.WriteArithmetic(vmcode.Add)
}

func (e *Engine) compileWhile() {
	e.consume("while", "(")
	id := e.whileCounter
	e.whileCounter++
	begin := fmt.Sprintf("WHILE_EXP_%d", id)
	end := fmt.Sprintf("WHILE_END_%d", id)

	e.out.WriteLabel(begin)
	e.compileExpression()
	e.out.WriteArithmetic(vmcode.Not)
	e.out.WriteIf(end)

	e.consume(")", "{")
	e.compileStatements()
	e.consume("}")

	e.out.WriteGoto(begin)
	e.out.WriteLabel(end)
}

func (e *Engine) compileReturn() {
	e.consume("return")
	if e.cur().Is(";") {
		e.out.WritePush(vmcode.Constant, 0)
	} else {
		e.compileExpression()
	}
	e.out.WriteReturn()
	e.consume(";")
}

func (e *Engine) compileIf() {
	e.consume("if", "(")
	id := e.ifCounter
	e.ifCounter++
	elseLabel := fmt.Sprintf("IF_FALSE_%d", id)
	endLabel := fmt.Sprintf("IF_END_%d", id)

	e.compileExpression()
	e.out.WriteArithmetic(vmcode.Not)
	e.out.WriteIf(elseLabel)

	e.consume(")", "{")
	e.compileStatements()
	e.consume("}")

	e.out.WriteGoto(endLabel)
	e.out.WriteLabel(elseLabel)

	if e.cur().Is("else") {
		e.consume("else", "{")
		e.compileStatements()
		e.consume("}")
	}

	e.out.WriteLabel(endLabel)
}

// compileExpression has no operator precedence: operators associate
// strictly left to right, so the engine never needs to buffer more
// than the term just parsed.
func (e *Engine) compileExpression() {
	e.compileTerm()
	for isBinaryOp(e.cur()) {
		op := binaryOp(e.cur())
		e.advance()
		e.compileTerm()
		e.emitBinaryOp(op)
	}
}

func (e *Engine) emitBinaryOp(op vmcode.Operation) {
	switch op {
	case "mul":
		e.out.WriteCall("Math.multiply", 2)
	case "div":
		e.out.WriteCall("Math.divide", 2)
	default:
		e.out.WriteArithmetic(op)
	}
}

// compileExpressionList compiles `(expression (, expression)*)?` and
// returns the count compiled. A leading unary minus is handled once,
// by compileTerm; this never re-negates it.
func (e *Engine) compileExpressionList() (n token.MachineWord) {
	if e.cur().Is(")") {
		return 0
	}
	for {
		e.compileExpression()
		n++
		if e.cur().Is(",") {
			e.consume(",")
			continue
		}
		break
	}
	return n
}

// compileSubroutineCall handles the three call shapes: `name(...)`
// (method call on `this`), `name.method(...)` with name a variable
// (method call on a receiver), and `Class.method(...)` (plain function
// call). If name is already known (passed in by compileVarNameSubterm
// after it has consumed the identifier), it is not re-read from the
// token stream.
func (e *Engine) compileSubroutineCall(name string) {
	if name == "" {
		var err error
		name, err = parseIdentifier(e.cur())
		if err != nil {
			panic(&diag.ParseError{Pos: "subroutine call", Err: err})
		}
		e.advance()
	}

	switch e.cur().Text {
	case ".":
		e.consume(".")
		method, err := parseIdentifier(e.cur())
		if err != nil {
			panic(&diag.ParseError{Pos: "method name", Err: err})
		}
		e.advance()

		nArgs := token.MachineWord(0)
		if sym, ok := e.sym.Lookup(name); ok {
			nArgs++
			seg, idx, _ := e.variableAccess(name)
			e.out.WritePush(seg, idx)
			name = sym.Type + "." + method
		} else {
			name = name + "." + method
		}

		e.consume("(")
		nArgs += e.compileExpressionList()
		e.consume(")")
		e.out.WriteCall(name, nArgs)
	case "(":
		e.out.WritePush(vmcode.Pointer, 0)
		e.consume("(")
		nArgs := 1 + e.compileExpressionList()
		e.consume(")")
		e.out.WriteCall(e.className+"."+name, nArgs)
	default:
		panic(&diag.ParseError{Pos: "subroutine call", Err: fmt.Errorf("expected \"(\" or \".\", got %q", e.cur().Text)})
	}
}

// compileVarNameSubterm handles the three term shapes that start with
// an identifier: array read, subroutine call dispatch, and plain
// variable read.
func (e *Engine) compileVarNameSubterm() {
	name, err := parseIdentifier(e.cur())
	if err != nil {
		panic(&diag.ParseError{Pos: "term", Err: err})
	}
	e.advance()

	switch {
	case e.cur().Is("["):
		e.consume("[")
		e.compileArrayAddress(name)
		e.out.WritePop(vmcode.Pointer, 1)
		e.out.WritePush(vmcode.That, 0)
		e.consume("]")
	case e.cur().Is("(", "."):
		e.compileSubroutineCall(name)
	default:
		seg, idx, ok := e.variableAccess(name)
		if !ok {
			panic(&diag.SemanticError{Pos: "term", Err: fmt.Errorf("undeclared identifier %q", name)})
		}
		e.out.WritePush(seg, idx)
	}
}

// compileTerm dispatches on the current token's shape. Unary operators
// are restricted to `{-, ~}`: isUnaryOp only recognizes those two, so
// `+ * /` are never accepted as a unary prefix.
func (e *Engine) compileTerm() {
	switch tok := e.cur(); {
	case tok.Kind == token.IntConst:
		n := parseIntConst(tok)
		e.out.WritePush(vmcode.Constant, n)
		e.advance()
	case tok.Kind == token.StrConst:
		e.out.WriteStringConstant(tok.Text)
		e.advance()
	case tok.Kind == token.Keyword:
		e.compileKeywordConstant(tok)
		e.advance()
	case tok.Is("("):
		e.consume("(")
		e.compileExpression()
		e.consume(")")
	case isUnaryOp(tok):
		op := unaryOp(tok)
		e.advance()
		e.compileTerm()
		e.out.WriteArithmetic(op)
	default:
		e.compileVarNameSubterm()
	}
}

func (e *Engine) compileKeywordConstant(tok token.Token) {
	switch tok.Text {
	case "true":
		e.out.WritePush(vmcode.Constant, 0)
		e.out.WriteArithmetic(vmcode.Not)
	case "false", "null":
		e.out.WritePush(vmcode.Constant, 0)
	case "this":
		e.out.WritePush(vmcode.Pointer, 0)
	default:
		panic(&diag.ParseError{Pos: "keyword constant", Err: fmt.Errorf("unexpected keyword %q", tok.Text)})
	}
}

// variableAccess maps a declared symbol to its VM segment/index:
// FIELD->this, STATIC->static, ARG->argument, LOCAL->local.
func (e *Engine) variableAccess(name string) (vmcode.Segment, token.MachineWord, bool) {
	sym, ok := e.sym.Lookup(name)
	if !ok {
		return "", 0, false
	}
	switch sym.Kind {
	case KindStatic:
		return vmcode.Static, sym.Index, true
	case KindField:
		return vmcode.This, sym.Index, true
	case KindArgument:
		return vmcode.Argument, sym.Index, true
	case KindLocal:
		return vmcode.Local, sym.Index, true
	default:
		panic(fmt.Sprintf("unknown symbol kind %q", sym.Kind))
	}
}

func isBinaryOp(tok token.Token) bool {
	return tok.Is("+", "-", "*", "/", "&", "|", "<", ">", "=")
}

func binaryOp(tok token.Token) vmcode.Operation {
	switch tok.Text {
	case "+":
		return vmcode.Add
	case "-":
		return vmcode.Sub
	case "*":
		return "mul"
	case "/":
		return "div"
	case "&":
		return vmcode.And
	case "|":
		return vmcode.Or
	case "<":
		return vmcode.Lt
	case ">":
		return vmcode.Gt
	case "=":
		return vmcode.Eq
	}
	panic("unreachable")
}

// isUnaryOp restricts unary operators to `{-, ~}`; `+ * /` are never
// legal as a unary prefix in Jack.
func isUnaryOp(tok token.Token) bool {
	return tok.Is("-", "~")
}

func unaryOp(tok token.Token) vmcode.Operation {
	switch tok.Text {
	case "-":
		return vmcode.Neg
	case "~":
		return vmcode.Not
	}
	panic("unreachable")
}

func parseType(tok token.Token) (string, error) {
	if tok.Is("int", "char", "boolean") {
		return tok.Text, nil
	}
	return parseIdentifier(tok)
}

func parseIdentifier(tok token.Token) (string, error) {
	if tok.Kind != token.Identifier {
		return tok.Text, fmt.Errorf("expected identifier, got %q", tok.Text)
	}
	return tok.Text, nil
}

func parseIntConst(tok token.Token) token.MachineWord {
	n, _ := strconv.Atoi(tok.Text)
	return token.MachineWord(n)
}
