// Package parser implements a recursive descent parser for textual
// instruction streams:
//
//	func name {
//	entry:
//	  v1 = const 10
//	  store 0, v1
//	  br v1, entry, done
//	done:
//	  ret v1
//	}
package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/raymyers/ralph-bt/pkg/lexer"
	"github.com/raymyers/ralph-bt/pkg/vir"
)

// Parser parses instruction-stream source into units
type Parser struct {
	l         *lexer.Lexer
	curToken  lexer.Token
	peekToken lexer.Token
	errors    []string
}

// New creates a new Parser for the given lexer
func New(l *lexer.Lexer) *Parser {
	p := &Parser{l: l}
	// Read two tokens to initialize curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses every unit in src. All syntax errors are returned together.
func Parse(src string) ([]vir.Unit, error) {
	p := New(lexer.New(src))
	units := p.ParseFile()
	if errs := p.Errors(); len(errs) > 0 {
		return nil, errors.New(strings.Join(errs, "\n"))
	}
	return units, nil
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

// Errors returns the list of parsing errors
func (p *Parser) Errors() []string {
	return p.errors
}

func (p *Parser) addError(msg string) {
	p.errors = append(p.errors, fmt.Sprintf("line %d, col %d: %s",
		p.curToken.Line, p.curToken.Column, msg))
}

func (p *Parser) curTokenIs(t lexer.TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) peekTokenIs(t lexer.TokenType) bool {
	return p.peekToken.Type == t
}

func (p *Parser) expect(t lexer.TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	p.addError(fmt.Sprintf("expected %s, got %s", t, p.describe()))
	return false
}

func (p *Parser) describe() string {
	switch p.curToken.Type {
	case lexer.TokenIdent, lexer.TokenInt, lexer.TokenIllegal:
		return fmt.Sprintf("%s %q", p.curToken.Type, p.curToken.Literal)
	}
	return p.curToken.Type.String()
}

// ParseFile parses units until EOF
func (p *Parser) ParseFile() []vir.Unit {
	var units []vir.Unit
	for !p.curTokenIs(lexer.TokenEOF) {
		if !p.curTokenIs(lexer.TokenFunc) {
			p.addError(fmt.Sprintf("expected func, got %s", p.describe()))
			p.nextToken()
			continue
		}
		if u := p.ParseUnit(); u != nil {
			units = append(units, *u)
		}
	}
	return units
}

// ParseUnit parses one "func name { ... }" block
func (p *Parser) ParseUnit() *vir.Unit {
	if !p.expect(lexer.TokenFunc) {
		return nil
	}
	if !p.curTokenIs(lexer.TokenIdent) {
		p.addError(fmt.Sprintf("expected function name, got %s", p.describe()))
		return nil
	}
	u := &vir.Unit{Name: p.curToken.Literal}
	p.nextToken()
	if !p.expect(lexer.TokenLBrace) {
		return nil
	}

	for !p.curTokenIs(lexer.TokenRBrace) && !p.curTokenIs(lexer.TokenEOF) {
		before := p.curToken
		s := p.parseStatement()
		if s != nil {
			u.Stmts = append(u.Stmts, s)
		} else if p.curToken == before {
			p.nextToken() // skip the offending token
		}
	}
	if !p.expect(lexer.TokenRBrace) {
		return nil
	}
	return u
}

func (p *Parser) parseStatement() vir.Stmt {
	switch p.curToken.Type {
	case lexer.TokenJmp:
		p.nextToken()
		target, ok := p.parseLabelRef()
		if !ok {
			return nil
		}
		return vir.Jump{Target: target}

	case lexer.TokenBr:
		p.nextToken()
		cond, ok := p.parseOperand()
		if !ok || !p.expect(lexer.TokenComma) {
			return nil
		}
		ifso, ok := p.parseLabelRef()
		if !ok || !p.expect(lexer.TokenComma) {
			return nil
		}
		ifnot, ok := p.parseLabelRef()
		if !ok {
			return nil
		}
		return vir.Branch{Cond: cond, IfSo: ifso, IfNot: ifnot}

	case lexer.TokenRet:
		p.nextToken()
		if !p.startsOperand() {
			return vir.Return{}
		}
		v, ok := p.parseOperand()
		if !ok {
			return nil
		}
		return vir.Return{Value: v}

	case lexer.TokenIdent:
		if p.peekTokenIs(lexer.TokenColon) {
			name := vir.Label(p.curToken.Literal)
			p.nextToken()
			p.nextToken()
			return vir.Labeled{Name: name}
		}
		if p.peekTokenIs(lexer.TokenAssign) {
			dest, ok := p.parseOperand()
			if !ok {
				return nil
			}
			p.nextToken() // consume '='
			return p.parseInstruction(dest)
		}
		return p.parseInstruction(nil)

	default:
		p.addError(fmt.Sprintf("unexpected %s at start of statement", p.describe()))
		p.nextToken()
		return nil
	}
}

// parseInstruction parses "opcode [operand {, operand}]" after an optional
// "dest =" prefix.
func (p *Parser) parseInstruction(dest vir.Operand) vir.Stmt {
	if !p.curTokenIs(lexer.TokenIdent) {
		p.addError(fmt.Sprintf("expected opcode, got %s", p.describe()))
		p.nextToken()
		return nil
	}
	op, ok := vir.LookupOpcode(p.curToken.Literal)
	if !ok {
		p.addError(fmt.Sprintf("unknown opcode %q", p.curToken.Literal))
		p.nextToken()
		return nil
	}
	p.nextToken()

	in := vir.Instruction{Op: op, Dest: dest}
	if !p.startsOperand() {
		return in
	}
	for {
		a, ok := p.parseOperand()
		if !ok {
			return nil
		}
		in.Args = append(in.Args, a)
		if !p.curTokenIs(lexer.TokenComma) {
			return in
		}
		p.nextToken()
	}
}

// startsOperand reports whether the current token begins an operand rather
// than the next statement.
func (p *Parser) startsOperand() bool {
	switch p.curToken.Type {
	case lexer.TokenInt, lexer.TokenMinus:
		return true
	case lexer.TokenIdent:
		if p.peekTokenIs(lexer.TokenColon) || p.peekTokenIs(lexer.TokenAssign) {
			return false
		}
		_, ok := registerOperand(p.curToken.Literal)
		return ok
	}
	return false
}

// parseOperand parses an immediate, a virtual register v<N>, a physical
// register r<N> or a spill slot s<N>.
func (p *Parser) parseOperand() (vir.Operand, bool) {
	switch p.curToken.Type {
	case lexer.TokenMinus:
		p.nextToken()
		if !p.curTokenIs(lexer.TokenInt) {
			p.addError(fmt.Sprintf("expected number after '-', got %s", p.describe()))
			return nil, false
		}
		return p.parseInt(true)
	case lexer.TokenInt:
		return p.parseInt(false)
	case lexer.TokenIdent:
		op, ok := registerOperand(p.curToken.Literal)
		if !ok {
			p.addError(fmt.Sprintf("expected operand, got %s", p.describe()))
			return nil, false
		}
		p.nextToken()
		return op, true
	}
	p.addError(fmt.Sprintf("expected operand, got %s", p.describe()))
	return nil, false
}

func (p *Parser) parseInt(negate bool) (vir.Operand, bool) {
	lit := p.curToken.Literal
	if negate {
		lit = "-" + lit
	}
	v, err := strconv.ParseInt(lit, 0, 64)
	if err != nil {
		p.addError(fmt.Sprintf("invalid number %s", lit))
		p.nextToken()
		return nil, false
	}
	p.nextToken()
	return vir.Imm{Value: v}, true
}

func (p *Parser) parseLabelRef() (vir.Label, bool) {
	if !p.curTokenIs(lexer.TokenIdent) {
		p.addError(fmt.Sprintf("expected label, got %s", p.describe()))
		return "", false
	}
	l := vir.Label(p.curToken.Literal)
	p.nextToken()
	return l, true
}

// registerOperand decodes v<N>, r<N> and s<N>.
func registerOperand(s string) (vir.Operand, bool) {
	if len(s) < 2 {
		return nil, false
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil || n < 0 || strconv.Itoa(n) != s[1:] {
		return nil, false
	}
	switch s[0] {
	case 'v':
		return vir.VReg(n), true
	case 'r':
		return vir.PReg(n), true
	case 's':
		return vir.Slot(n), true
	}
	return nil, false
}
