// Package normalize canonicalizes SQL text so that two statements can be
// compared syntactically.
//
// Input is first lexed with PostgreSQL's rules: unquoted words fold to lower
// case, quoted identifiers keep their case, comments and layout are dropped.
// The folded text is then parsed and re-rendered from its syntax tree. The
// grammar is TiDB's, run with ANSI quotes, || as concatenation and literal
// backslashes so that it reads PostgreSQL text the same way; its canonical
// spellings (LIMIT offset,count and CONCAT for ||) are only ever compared,
// never executed. Statements the grammar rejects, such as :: casts or
// DISTINCT ON, are compared by their folded token text instead.
package normalize

import (
	"strings"
	"sync"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/format"
	"github.com/pingcap/tidb/pkg/parser/mysql"

	// Value expressions for parsed literals.
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
)

const restoreFlags = format.RestoreStringSingleQuotes |
	format.RestoreStringWithoutCharset |
	format.RestoreKeyWordUppercase |
	format.RestoreNameDoubleQuotes |
	format.RestoreSpacesAroundBinaryOperation

const sqlMode = mysql.ModeANSIQuotes | mysql.ModePipesAsConcat | mysql.ModeNoBackslashEscapes

var parsers = sync.Pool{
	New: func() any {
		p := parser.New()
		p.SetSQLMode(sqlMode)
		return p
	},
}

// grammarMismatch lists tokens the MySQL grammar reads differently from
// PostgreSQL: # starts a comment, backticks quote names, DIV and XOR are
// operators.
var grammarMismatch = map[string]bool{
	"#":   true,
	"`":   true,
	"div": true,
	"xor": true,
}

// SQL returns the canonical form of sql. Statements the parser accepts are
// re-rendered from their syntax tree; anything else falls back to the folded
// token text. The result is stable under repeated application.
func SQL(sql string) string {
	tokens := tokenize(sql)
	folded := render(tokens)
	if canonical, ok := restore(folded, tokens); ok {
		return canonical
	}
	return folded
}

// Equal reports whether a and b share a canonical form.
func Equal(a, b string) bool {
	return SQL(a) == SQL(b)
}

func restore(folded string, tokens []token) (string, bool) {
	if folded == "" {
		return "", false
	}
	for _, tok := range tokens {
		if (tok.kind == tokenOperator || tok.kind == tokenWord) && grammarMismatch[tok.text] {
			return "", false
		}
	}

	p := parsers.Get().(*parser.Parser)
	defer parsers.Put(p)

	stmt, err := p.ParseOneStmt(folded, "", "")
	if err != nil {
		return "", false
	}

	var b strings.Builder
	if err := stmt.Restore(format.NewRestoreCtx(restoreFlags, &b)); err != nil {
		return "", false
	}
	return b.String(), true
}
