package executor

import (
	"database/sql"
	"slices"
	"strconv"
	"strings"
)

// Row is one result tuple with every value rendered as text. NULL stays
// distinct from the empty string.
type Row []sql.NullString

// Key renders the row as a string; rows are ordered and compared by it.
func (r Row) Key() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, v := range r {
		if i > 0 {
			b.WriteString(", ")
		}
		if !v.Valid {
			b.WriteString("NULL")
			continue
		}
		b.WriteString(strconv.Quote(v.String))
	}
	b.WriteByte(')')
	return b.String()
}

// Values returns the row as plain strings, NULL rendered as "NULL".
func (r Row) Values() []string {
	out := make([]string, len(r))
	for i, v := range r {
		if v.Valid {
			out[i] = v.String
		} else {
			out[i] = "NULL"
		}
	}
	return out
}

// SortRows orders rows by their string form so that results do not depend
// on physical storage order.
func SortRows(rows []Row) {
	slices.SortStableFunc(rows, func(a, b Row) int {
		return strings.Compare(a.Key(), b.Key())
	})
}

// EqualRows reports whether two sorted result sets hold the same tuples.
func EqualRows(a, b []Row) bool {
	return slices.EqualFunc(a, b, func(x, y Row) bool {
		return slices.Equal(x, y)
	})
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	raw := make([]sql.RawBytes, len(cols))
	dest := make([]any, len(cols))
	for i := range raw {
		dest[i] = &raw[i]
	}

	var out []Row
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, v := range raw {
			if v == nil {
				continue
			}
			row[i] = sql.NullString{String: string(v), Valid: true}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
