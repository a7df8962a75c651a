package executor

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func text(s string) sql.NullString { return sql.NullString{String: s, Valid: true} }

func TestRowKeyKeepsNullDistinct(t *testing.T) {
	assert.Equal(t, `(NULL)`, Row{{}}.Key())
	assert.Equal(t, `("NULL")`, Row{text("NULL")}.Key())
	assert.Equal(t, `("")`, Row{text("")}.Key())
	assert.NotEqual(t, Row{text("a, b")}.Key(), Row{text("a"), text("b")}.Key())
}

func TestSortRowsAndEqualRows(t *testing.T) {
	a := []Row{{text("2"), text("x")}, {text("1"), {}}, {text("1"), text("y")}}
	b := []Row{{text("1"), text("y")}, {text("2"), text("x")}, {text("1"), {}}}
	SortRows(a)
	SortRows(b)
	assert.True(t, EqualRows(a, b))

	assert.False(t, EqualRows(a, b[:2]))
	assert.False(t, EqualRows([]Row{{text("")}}, []Row{{{}}}))
	assert.True(t, EqualRows(nil, []Row{}))
}
