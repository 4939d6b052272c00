// Package vm implements Pipeline V's Parser: the VM-text half of the
// VM translator. It consumes whitespace-split, comment-stripped VM
// text into vmcode.Command records; internal/hack's CodeWriter then
// lowers those records to Hack assembly.
package vm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/libklein/n2t-toolchain/internal/diag"
	"github.com/libklein/n2t-toolchain/internal/token"
	"github.com/libklein/n2t-toolchain/internal/vmcode"
)

var arithOps = map[string]vmcode.Operation{
	"add": vmcode.Add, "sub": vmcode.Sub, "neg": vmcode.Neg,
	"eq": vmcode.Eq, "gt": vmcode.Gt, "lt": vmcode.Lt,
	"and": vmcode.And, "or": vmcode.Or, "not": vmcode.Not,
}

var segments = map[string]vmcode.Segment{
	"constant": vmcode.Constant, "argument": vmcode.Argument, "local": vmcode.Local,
	"static": vmcode.Static, "this": vmcode.This, "that": vmcode.That,
	"pointer": vmcode.Pointer, "temp": vmcode.Temp,
}

// Parser reads one VM command per non-blank, non-comment line.
type Parser struct {
	scanner *bufio.Scanner
	line    int
	cur     vmcode.Command
	err     error
}

// NewParser wraps r for line-oriented VM command parsing.
func NewParser(r io.Reader) *Parser {
	return &Parser{scanner: bufio.NewScanner(r)}
}

// Err returns the first parse error encountered, if any.
func (p *Parser) Err() error { return p.err }

// Command returns the most recently Advance()-d command.
func (p *Parser) Command() vmcode.Command { return p.cur }

// Advance scans forward to the next non-blank, non-comment line and
// parses it into a Command. It returns false at EOF or on error.
func (p *Parser) Advance() bool {
	for p.scanner.Scan() {
		p.line++
		text := stripComment(p.scanner.Text())
		if text == "" {
			continue
		}
		cmd, err := parseLine(text)
		if err != nil {
			p.err = &diag.ParseError{Pos: fmt.Sprintf("line %d", p.line), Err: err}
			return false
		}
		p.cur = cmd
		return true
	}
	if err := p.scanner.Err(); err != nil {
		p.err = err
	}
	return false
}

func stripComment(line string) string {
	if idx := strings.Index(line, "//"); idx >= 0 {
		line = line[:idx]
	}
	return strings.TrimSpace(line)
}

func parseLine(text string) (vmcode.Command, error) {
	fields := strings.Fields(text)
	op := fields[0]

	if arith, ok := arithOps[op]; ok {
		return vmcode.Command{Kind: vmcode.Arith, Op: arith}, nil
	}

	switch op {
	case "push", "pop":
		if len(fields) != 3 {
			return vmcode.Command{}, fmt.Errorf("%q expects segment and index, got %q", op, text)
		}
		seg, ok := segments[fields[1]]
		if !ok {
			return vmcode.Command{}, fmt.Errorf("unknown segment %q", fields[1])
		}
		idx, err := parseIndex(fields[2])
		if err != nil {
			return vmcode.Command{}, err
		}
		kind := vmcode.Push
		if op == "pop" {
			kind = vmcode.Pop
		}
		return vmcode.Command{Kind: kind, Segment: seg, Index: idx}, nil

	case "label":
		return expectName(fields, vmcode.Label)
	case "goto":
		return expectName(fields, vmcode.Goto)
	case "if-goto":
		return expectName(fields, vmcode.IfGoto)

	case "function", "call":
		if len(fields) != 3 {
			return vmcode.Command{}, fmt.Errorf("%q expects name and count, got %q", op, text)
		}
		n, err := parseIndex(fields[2])
		if err != nil {
			return vmcode.Command{}, err
		}
		if op == "function" {
			return vmcode.Command{Kind: vmcode.Function, Name: fields[1], NLocals: n}, nil
		}
		return vmcode.Command{Kind: vmcode.Call, Name: fields[1], NArgs: n}, nil

	case "return":
		if len(fields) != 1 {
			return vmcode.Command{}, fmt.Errorf("\"return\" takes no arguments, got %q", text)
		}
		return vmcode.Command{Kind: vmcode.Return}, nil

	default:
		return vmcode.Command{}, fmt.Errorf("unknown VM command %q", op)
	}
}

func expectName(fields []string, kind vmcode.Kind) (vmcode.Command, error) {
	if len(fields) != 2 {
		return vmcode.Command{}, fmt.Errorf("%q expects one label argument", fields[0])
	}
	return vmcode.Command{Kind: kind, Name: fields[1]}, nil
}

func parseIndex(s string) (token.MachineWord, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid index %q: %w", s, err)
	}
	return token.MachineWord(n), nil
}
