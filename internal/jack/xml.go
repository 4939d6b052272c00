package jack

import (
	"fmt"
	"io"
	"strings"

	"github.com/libklein/n2t-toolchain/internal/diag"
	"github.com/libklein/n2t-toolchain/internal/token"
)

// xmlTagFor maps a token.Kind to the tag name used by the Nand2Tetris
// course tooling's reference XML output.
func xmlTagFor(kind token.Kind) string {
	switch kind {
	case token.Keyword:
		return "keyword"
	case token.Symbol:
		return "symbol"
	case token.IntConst:
		return "integerConstant"
	case token.StrConst:
		return "stringConstant"
	case token.Identifier:
		return "identifier"
	default:
		return "unknown"
	}
}

var xmlEscapes = []([2]string){
	{"&", "&amp;"}, {"<", "&lt;"}, {">", "&gt;"}, {"\"", "&quot;"},
}

func escapeXML(s string) string {
	for _, pair := range xmlEscapes {
		s = strings.ReplaceAll(s, pair[0], pair[1])
	}
	return s
}

// xmlWriter renders the indented, one-tag-per-line XML format the
// Nand2Tetris course's reference analyzer produces.
type xmlWriter struct {
	out    io.Writer
	indent int
}

func newXMLWriter(w io.Writer) *xmlWriter { return &xmlWriter{out: w} }

func (w *xmlWriter) pad() string { return strings.Repeat("  ", w.indent) }

func (w *xmlWriter) open(tag string) {
	fmt.Fprintf(w.out, "%s<%s>\n", w.pad(), tag)
	w.indent++
}

func (w *xmlWriter) close(tag string) {
	w.indent--
	fmt.Fprintf(w.out, "%s</%s>\n", w.pad(), tag)
}

func (w *xmlWriter) leaf(tok token.Token) {
	tag := xmlTagFor(tok.Kind)
	fmt.Fprintf(w.out, "%s<%s> %s </%s>\n", w.pad(), tag, escapeXML(tok.Text), tag)
}

// Analyzer walks the same grammar as Engine but, instead of emitting
// VM code, emits the structural XML parse tree in the format produced
// by the Nand2Tetris course's own Project 10 analyzer tooling.
type Analyzer struct {
	tok TokenScanner
	w   *xmlWriter
}

// NewAnalyzer builds an Analyzer reading from tok and writing XML to out.
func NewAnalyzer(tok TokenScanner, out io.Writer) *Analyzer {
	return &Analyzer{tok: tok, w: newXMLWriter(out)}
}

func (a *Analyzer) cur() token.Token { return a.tok.Token() }

func (a *Analyzer) advance() token.Token {
	if !a.tok.Advance() {
		if err := a.tok.Err(); err != nil {
			panic(&diag.ParseError{Pos: "<eof>", Err: err})
		}
		panic(&diag.ParseError{Pos: "<eof>", Err: fmt.Errorf("unexpected end of input")})
	}
	return a.cur()
}

// consumeLeaf emits the current token as a leaf and advances.
func (a *Analyzer) consumeLeaf() {
	a.w.leaf(a.cur())
	a.advance()
}

func (a *Analyzer) expectLeaf(terminals ...string) {
	if len(terminals) > 0 && !a.cur().Is(terminals...) {
		panic(&diag.ParseError{Pos: "xml", Err: fmt.Errorf("expected one of %v, got %q", terminals, a.cur().Text)})
	}
	a.consumeLeaf()
}

// Analyze consumes the whole token stream as a single class
// declaration and renders its XML parse tree.
func (a *Analyzer) Analyze() {
	a.advance()
	a.compileClass()
}

func (a *Analyzer) compileClass() {
	a.w.open("class")
	a.expectLeaf("class")
	a.expectLeaf() // class name
	a.expectLeaf("{")
	for a.cur().Is("static", "field") {
		a.compileClassVarDec()
	}
	for a.cur().Is("constructor", "function", "method") {
		a.compileSubroutineDec()
	}
	a.expectLeaf("}")
	a.w.close("class")
}

func (a *Analyzer) compileClassVarDec() {
	a.w.open("classVarDec")
	a.expectLeaf("static", "field")
	a.expectLeaf() // type
	a.expectLeaf() // name
	for a.cur().Is(",") {
		a.expectLeaf(",")
		a.expectLeaf()
	}
	a.expectLeaf(";")
	a.w.close("classVarDec")
}

func (a *Analyzer) compileSubroutineDec() {
	a.w.open("subroutineDec")
	a.expectLeaf("constructor", "function", "method")
	a.expectLeaf() // return type
	a.expectLeaf() // name
	a.expectLeaf("(")
	a.w.open("parameterList")
	if !a.cur().Is(")") {
		a.compileParameterList()
	}
	a.w.close("parameterList")
	a.expectLeaf(")")
	a.compileSubroutineBody()
	a.w.close("subroutineDec")
}

func (a *Analyzer) compileParameterList() {
	for {
		a.expectLeaf() // type
		a.expectLeaf() // name
		if a.cur().Is(",") {
			a.expectLeaf(",")
			continue
		}
		break
	}
}

func (a *Analyzer) compileSubroutineBody() {
	a.w.open("subroutineBody")
	a.expectLeaf("{")
	for a.cur().Is("var") {
		a.compileVarDec()
	}
	a.compileStatements()
	a.expectLeaf("}")
	a.w.close("subroutineBody")
}

func (a *Analyzer) compileVarDec() {
	a.w.open("varDec")
	a.expectLeaf("var")
	a.expectLeaf() // type
	a.expectLeaf() // name
	for a.cur().Is(",") {
		a.expectLeaf(",")
		a.expectLeaf()
	}
	a.expectLeaf(";")
	a.w.close("varDec")
}

func (a *Analyzer) compileStatements() {
	a.w.open("statements")
	for !a.cur().Is("}") {
		switch {
		case a.cur().Is("let"):
			a.compileLet()
		case a.cur().Is("if"):
			a.compileIf()
		case a.cur().Is("while"):
			a.compileWhile()
		case a.cur().Is("do"):
			a.compileDo()
		case a.cur().Is("return"):
			a.compileReturn()
		default:
			panic(&diag.ParseError{Pos: "statement", Err: fmt.Errorf("illegal statement keyword %q", a.cur().Text)})
		}
	}
	a.w.close("statements")
}

func (a *Analyzer) compileLet() {
	a.w.open("letStatement")
	a.expectLeaf("let")
	a.expectLeaf() // var name
	if a.cur().Is("[") {
		a.expectLeaf("[")
		a.compileExpression()
		a.expectLeaf("]")
	}
	a.expectLeaf("=")
	a.compileExpression()
	a.expectLeaf(";")
	a.w.close("letStatement")
}

func (a *Analyzer) compileIf() {
	a.w.open("ifStatement")
	a.expectLeaf("if")
	a.expectLeaf("(")
	a.compileExpression()
	a.expectLeaf(")")
	a.expectLeaf("{")
	a.compileStatements()
	a.expectLeaf("}")
	if a.cur().Is("else") {
		a.expectLeaf("else")
		a.expectLeaf("{")
		a.compileStatements()
		a.expectLeaf("}")
	}
	a.w.close("ifStatement")
}

func (a *Analyzer) compileWhile() {
	a.w.open("whileStatement")
	a.expectLeaf("while")
	a.expectLeaf("(")
	a.compileExpression()
	a.expectLeaf(")")
	a.expectLeaf("{")
	a.compileStatements()
	a.expectLeaf("}")
	a.w.close("whileStatement")
}

func (a *Analyzer) compileDo() {
	a.w.open("doStatement")
	a.expectLeaf("do")
	a.compileSubroutineCallXML()
	a.expectLeaf(";")
	a.w.close("doStatement")
}

func (a *Analyzer) compileReturn() {
	a.w.open("returnStatement")
	a.expectLeaf("return")
	if !a.cur().Is(";") {
		a.compileExpression()
	}
	a.expectLeaf(";")
	a.w.close("returnStatement")
}

func (a *Analyzer) compileExpression() {
	a.w.open("expression")
	a.compileTerm()
	for isBinaryOp(a.cur()) {
		a.consumeLeaf()
		a.compileTerm()
	}
	a.w.close("expression")
}

func (a *Analyzer) compileExpressionList() {
	if a.cur().Is(")") {
		return
	}
	a.compileExpression()
	for a.cur().Is(",") {
		a.expectLeaf(",")
		a.compileExpression()
	}
}

// compileSubroutineCallXML handles the `name(...)`, `name.method(...)`
// and `Class.method(...)` shapes purely syntactically: XML emission
// does not need the symbol table to disambiguate a receiver from a
// class name, since both render identically as identifier leaves.
func (a *Analyzer) compileSubroutineCallXML() {
	a.expectLeaf() // name
	if a.cur().Is(".") {
		a.expectLeaf(".")
		a.expectLeaf() // method name
	}
	a.expectLeaf("(")
	a.w.open("expressionList")
	a.compileExpressionList()
	a.w.close("expressionList")
	a.expectLeaf(")")
}

func (a *Analyzer) compileTerm() {
	a.w.open("term")
	switch tok := a.cur(); {
	case tok.Kind == token.IntConst, tok.Kind == token.StrConst:
		a.consumeLeaf()
	case tok.Kind == token.Keyword:
		a.consumeLeaf()
	case tok.Is("("):
		a.expectLeaf("(")
		a.compileExpression()
		a.expectLeaf(")")
	case isUnaryOp(tok):
		a.consumeLeaf()
		a.compileTerm()
	default:
		a.expectLeaf() // identifier
		switch {
		case a.cur().Is("["):
			a.expectLeaf("[")
			a.compileExpression()
			a.expectLeaf("]")
		case a.cur().Is("("):
			a.expectLeaf("(")
			a.w.open("expressionList")
			a.compileExpressionList()
			a.w.close("expressionList")
			a.expectLeaf(")")
		case a.cur().Is("."):
			a.expectLeaf(".")
			a.expectLeaf() // method name
			a.expectLeaf("(")
			a.w.open("expressionList")
			a.compileExpressionList()
			a.w.close("expressionList")
			a.expectLeaf(")")
		}
	}
	a.w.close("term")
}
