// Package lexer tokenizes textual instruction streams.
package lexer

import "unicode"

// punctuation maps single-character tokens to their types
var punctuation = map[byte]TokenType{
	'-': TokenMinus,
	'=': TokenAssign,
	',': TokenComma,
	':': TokenColon,
	'{': TokenLBrace,
	'}': TokenRBrace,
}

// Lexer tokenizes instruction-stream source
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // next reading position
	ch      byte // current character, 0 at end of input
	line    int
	column  int
}

// New creates a new Lexer for the given input
func New(input string) *Lexer {
	l := &Lexer{input: input, line: 1}
	l.readChar()
	return l
}

// readChar advances one byte. A newline counts as column 0 of the line it
// ends, so the first character of every line is column 1.
func (l *Lexer) readChar() {
	l.ch = 0
	if l.readPos < len(l.input) {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
	l.column++
	if l.ch == '\n' {
		l.line++
		l.column = 0
	}
}

func (l *Lexer) peekChar() byte {
	if l.readPos < len(l.input) {
		return l.input[l.readPos]
	}
	return 0
}

// NextToken returns the next token from the input
func (l *Lexer) NextToken() Token {
	l.skipTrivia()
	tok := Token{Line: l.line, Column: l.column}

	switch {
	case l.ch == 0:
		tok.Type = TokenEOF
	case isLetter(l.ch):
		tok.Literal = l.readWhile(func(c byte) bool { return isLetter(c) || isDigit(c) || c == '.' })
		tok.Type = LookupIdent(tok.Literal)
	case isDigit(l.ch):
		tok.Type = TokenInt
		tok.Literal = l.readNumber()
	default:
		tok.Type = TokenIllegal
		if t, ok := punctuation[l.ch]; ok {
			tok.Type = t
		}
		tok.Literal = string(l.ch)
		l.readChar()
	}
	return tok
}

// skipTrivia skips whitespace and comments. Comments start with ';' or '#'
// and run to the end of the line.
func (l *Lexer) skipTrivia() {
	for {
		switch l.ch {
		case ' ', '\t', '\n', '\r':
			l.readChar()
		case ';', '#':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		default:
			return
		}
	}
}

// readWhile consumes characters while ok holds and returns them
func (l *Lexer) readWhile(ok func(byte) bool) string {
	start := l.pos
	for l.ch != 0 && ok(l.ch) {
		l.readChar()
	}
	return l.input[start:l.pos]
}

// readNumber reads a decimal literal, or a hexadecimal one with a 0x prefix
func (l *Lexer) readNumber() string {
	start := l.pos
	if l.ch == '0' && (l.peekChar() == 'x' || l.peekChar() == 'X') {
		l.readChar()
		l.readChar()
		l.readWhile(isHexDigit)
		return l.input[start:l.pos]
	}
	l.readWhile(isDigit)
	return l.input[start:l.pos]
}

func isLetter(ch byte) bool {
	return unicode.IsLetter(rune(ch)) || ch == '_'
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || ('a' <= ch && ch <= 'f') || ('A' <= ch && ch <= 'F')
}
