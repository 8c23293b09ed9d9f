package lexer

// TokenType represents the type of a token
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenIllegal

	// Literals
	TokenIdent // add, loop, v1
	TokenInt   // 42

	// Keywords
	TokenFunc // func
	TokenJmp  // jmp
	TokenBr   // br
	TokenRet  // ret

	// Punctuation
	TokenMinus  // -
	TokenAssign // =
	TokenComma  // ,
	TokenColon  // :
	TokenLBrace // {
	TokenRBrace // }
)

var tokenNames = map[TokenType]string{
	TokenEOF:     "EOF",
	TokenIllegal: "ILLEGAL",
	TokenIdent:   "IDENT",
	TokenInt:     "INT",
	TokenFunc:    "func",
	TokenJmp:     "jmp",
	TokenBr:      "br",
	TokenRet:     "ret",
	TokenMinus:   "-",
	TokenAssign:  "=",
	TokenComma:   ",",
	TokenColon:   ":",
	TokenLBrace:  "{",
	TokenRBrace:  "}",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// Token represents a lexical token
type Token struct {
	Type    TokenType
	Literal string
	Line    int
	Column  int
}

// keywords maps keyword strings to token types
var keywords = map[string]TokenType{
	"func": TokenFunc,
	"jmp":  TokenJmp,
	"br":   TokenBr,
	"ret":  TokenRet,
}

// LookupIdent returns the token type for an identifier (keyword or IDENT)
func LookupIdent(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return TokenIdent
}
