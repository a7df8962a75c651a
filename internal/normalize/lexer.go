package normalize

import (
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokenWord tokenKind = iota
	tokenQuotedIdent
	tokenString
	tokenNumber
	tokenOperator
)

type token struct {
	kind tokenKind
	text string
}

// multiCharOperators are matched longest first.
var multiCharOperators = []string{
	"->>", "!~*",
	"::", "<=", ">=", "<>", "!=", "||", "->", "=>", "~*", "!~", "&&", "<<", ">>",
}

// lexer splits SQL into tokens following PostgreSQL's lexical rules:
// unquoted words fold to lower case, double-quoted identifiers keep their
// case, single-quoted strings escape quotes by doubling and treat
// backslashes literally. Comments and whitespace are dropped.
type lexer struct {
	input   string
	pos     int
	readPos int
	ch      byte
}

func newLexer(input string) *lexer {
	l := &lexer{input: input}
	l.readChar()
	return l
}

func (l *lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
}

func (l *lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

// next returns the next token and false at end of input.
func (l *lexer) next() (token, bool) {
	l.skipWhitespaceAndComments()
	if l.atEOF() {
		return token{}, false
	}

	switch {
	case l.ch == '\'':
		return token{kind: tokenString, text: l.readQuoted('\'')}, true
	case l.ch == '"':
		return token{kind: tokenQuotedIdent, text: l.readQuoted('"')}, true
	case isDigit(l.ch) || (l.ch == '.' && isDigit(l.peekChar())):
		return token{kind: tokenNumber, text: strings.ToLower(l.readNumber())}, true
	case isIdentStart(l.ch):
		return token{kind: tokenWord, text: strings.ToLower(l.readIdentifier())}, true
	}

	rest := l.input[l.pos:]
	for _, op := range multiCharOperators {
		if strings.HasPrefix(rest, op) {
			for range op {
				l.readChar()
			}
			return token{kind: tokenOperator, text: op}, true
		}
	}
	op := string(l.ch)
	l.readChar()
	return token{kind: tokenOperator, text: op}, true
}

func (l *lexer) skipWhitespaceAndComments() {
	for {
		for !l.atEOF() && isSpace(l.ch) {
			l.readChar()
		}
		switch {
		case l.ch == '-' && l.peekChar() == '-':
			for !l.atEOF() && l.ch != '\n' {
				l.readChar()
			}
		case l.ch == '/' && l.peekChar() == '*':
			l.skipBlockComment()
		default:
			return
		}
	}
}

// skipBlockComment consumes a possibly nested /* ... */ comment.
func (l *lexer) skipBlockComment() {
	depth := 0
	for !l.atEOF() {
		switch {
		case l.ch == '/' && l.peekChar() == '*':
			depth++
			l.readChar()
		case l.ch == '*' && l.peekChar() == '/':
			depth--
			l.readChar()
			if depth == 0 {
				l.readChar()
				return
			}
		}
		l.readChar()
	}
}

// readQuoted reads a quote-delimited token; a doubled quote is an escaped
// quote. An unterminated token runs to end of input.
func (l *lexer) readQuoted(quote byte) string {
	l.readChar()

	var b strings.Builder
	for !l.atEOF() {
		if l.ch == quote {
			if l.peekChar() != quote {
				l.readChar()
				break
			}
			l.readChar()
		}
		b.WriteByte(l.ch)
		l.readChar()
	}
	return b.String()
}

func (l *lexer) readIdentifier() string {
	start := l.pos
	for !l.atEOF() && (isIdentStart(l.ch) || isDigit(l.ch) || l.ch == '$') {
		l.readChar()
	}
	return l.input[start:l.pos]
}

func (l *lexer) readNumber() string {
	start := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && (isDigit(l.peekChar()) || l.pos == start) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		l.readChar()
		if l.ch == '+' || l.ch == '-' {
			l.readChar()
		}
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	return l.input[start:l.pos]
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\f' || ch == '\v'
}

func isIdentStart(ch byte) bool {
	return ch == '_' || ch >= 0x80 || unicode.IsLetter(rune(ch))
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

// tokenize lexes sql and drops trailing statement terminators.
func tokenize(sql string) []token {
	l := newLexer(sql)
	var tokens []token
	for {
		tok, ok := l.next()
		if !ok {
			break
		}
		tokens = append(tokens, tok)
	}
	for len(tokens) > 0 && tokens[len(tokens)-1].kind == tokenOperator && tokens[len(tokens)-1].text == ";" {
		tokens = tokens[:len(tokens)-1]
	}
	return tokens
}

// render joins tokens into compact text that lexes back to the same tokens.
func render(tokens []token) string {
	var b strings.Builder
	for i, tok := range tokens {
		if i > 0 && spaceBetween(tokens[i-1], tok) {
			b.WriteByte(' ')
		}
		switch tok.kind {
		case tokenString:
			b.WriteString("'" + strings.ReplaceAll(tok.text, "'", "''") + "'")
		case tokenQuotedIdent:
			b.WriteString(`"` + strings.ReplaceAll(tok.text, `"`, `""`) + `"`)
		default:
			b.WriteString(tok.text)
		}
	}
	return b.String()
}

func spaceBetween(prev, cur token) bool {
	if prev.kind == tokenOperator {
		switch prev.text {
		case "(", ".", "::":
			return false
		}
	}
	if cur.kind == tokenOperator {
		switch cur.text {
		case ")", ",", ".", "::", ";":
			return false
		case "(":
			return prev.kind != tokenWord && prev.kind != tokenQuotedIdent
		}
	}
	// Typed string prefixes such as x'ff' and e'\n' stay attached.
	if cur.kind == tokenString && prev.kind == tokenWord && stringPrefixes[prev.text] {
		return false
	}
	return true
}

var stringPrefixes = map[string]bool{"b": true, "e": true, "n": true, "x": true}
