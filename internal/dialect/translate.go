// Package dialect rewrites gold SQL written for SQLite into SQL that
// PostgreSQL accepts. The rewrite is textual and best-effort: the gold query
// is assumed correct, only its portability is addressed, and text the
// heuristics cannot resolve is left as it was.
package dialect

import (
	"regexp"
	"strings"
)

// literalContexts are the tokens after which a double-quoted word is a string
// literal rather than an identifier. SQLite tolerates both readings; PostgreSQL
// only accepts single quotes for literals.
var literalContexts = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\bSELECT\s+)"([^"]+)"`),
	regexp.MustCompile(`(?i)(=\s*)"([^"]+)"`),
	regexp.MustCompile(`(?i)(!=\s*)"([^"]+)"`),
	regexp.MustCompile(`(?i)(<>\s*)"([^"]+)"`),
	regexp.MustCompile(`(?i)(>\s*)"([^"]+)"`),
	regexp.MustCompile(`(?i)(<\s*)"([^"]+)"`),
	regexp.MustCompile(`(?i)(>=\s*)"([^"]+)"`),
	regexp.MustCompile(`(?i)(<=\s*)"([^"]+)"`),
	regexp.MustCompile(`(?i)(\bIN\s*\(\s*)"([^"]+)"`),
	regexp.MustCompile(`(?i)(,\s*)"([^"]+)"`),
	regexp.MustCompile(`(?i)(\bLIKE\s+)"([^"]+)"`),
	regexp.MustCompile(`(?i)(\bNOT\s+LIKE\s+)"([^"]+)"`),
}

var (
	groupByRe      = regexp.MustCompile(`(?i)\bGROUP\s+BY\s+`)
	groupByEndRe   = regexp.MustCompile(`(?i)\s+(HAVING|ORDER|LIMIT|UNION|INTERSECT|EXCEPT)\b`)
	selectListRe   = regexp.MustCompile(`(?is)\bSELECT\s+(.*?)\s+FROM\b`)
	setOperatorRe  = regexp.MustCompile(`(?i)\b(UNION|INTERSECT|EXCEPT)\b`)
	qualifiedRe    = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)\b`)
	aggregateOpen  = regexp.MustCompile(`(?i)\b(COUNT|SUM|AVG|MIN|MAX|GROUP_CONCAT)\s*\(`)
	aggregateWidth = 20
)

// Translate converts gold SQL from the SQLite dialect to PostgreSQL.
func Translate(sql string) string {
	out := quoteLiterals(sql)
	return completeGroupBy(out)
}

// quoteLiterals turns "value" into 'value' wherever a literal is expected.
func quoteLiterals(sql string) string {
	for _, re := range literalContexts {
		sql = re.ReplaceAllStringFunc(sql, func(m string) string {
			parts := re.FindStringSubmatch(m)
			return parts[1] + "'" + strings.ReplaceAll(parts[2], "'", "''") + "'"
		})
	}
	return sql
}

// completeGroupBy appends to the trailing GROUP BY every table-qualified,
// non-aggregated column of the SELECT list it groups that the clause lacks.
// In a compound query that is the branch of the UNION, INTERSECT or EXCEPT
// holding the clause. PostgreSQL rejects such ungrouped columns; SQLite picks
// an arbitrary row.
func completeGroupBy(sql string) string {
	locs := groupByRe.FindAllStringIndex(sql, -1)
	if len(locs) == 0 {
		return sql
	}
	start := locs[len(locs)-1][1]
	end := len(sql)
	if m := groupByEndRe.FindStringIndex(sql[start:]); m != nil {
		end = start + m[0]
	}

	clause := strings.TrimRight(sql[start:end], " \t\r\n;")
	if !qualifiedRe.MatchString(clause) {
		return sql
	}
	// A clause closing more parentheses than it opens belongs to a subquery.
	if strings.Count(clause, ")") > strings.Count(clause, "(") {
		return sql
	}

	sel := selectListRe.FindStringSubmatch(sql[branchStart(sql, start):start])
	if sel == nil {
		return sql
	}

	present := make(map[string]bool)
	for _, item := range strings.Split(clause, ",") {
		present[strings.ToLower(strings.TrimSpace(item))] = true
	}

	var missing []string
	for _, loc := range qualifiedRe.FindAllStringIndex(sel[1], -1) {
		col := sel[1][loc[0]:loc[1]]
		if insideAggregate(sel[1][:loc[0]]) {
			continue
		}
		key := strings.ToLower(col)
		if present[key] {
			continue
		}
		present[key] = true
		missing = append(missing, col)
	}
	if len(missing) == 0 {
		return sql
	}

	return sql[:start] + clause + ", " + strings.Join(missing, ", ") + sql[start+len(clause):]
}

// branchStart returns the offset just past the last top-level set operator
// before pos, or 0 when pos lies in the first branch.
func branchStart(sql string, pos int) int {
	begin := 0
	for _, loc := range setOperatorRe.FindAllStringIndex(sql[:pos], -1) {
		if depth(sql[:loc[0]]) == 0 {
			begin = loc[1]
		}
	}
	return begin
}

// depth is the parenthesis nesting level at the end of s.
func depth(s string) int {
	return strings.Count(s, "(") - strings.Count(s, ")")
}

// insideAggregate looks back a fixed window for an aggregate call that is
// still open at the column's position.
func insideAggregate(preceding string) bool {
	if len(preceding) > aggregateWidth {
		preceding = preceding[len(preceding)-aggregateWidth:]
	}
	locs := aggregateOpen.FindAllStringIndex(preceding, -1)
	if len(locs) == 0 {
		return false
	}
	depth := 1
	for _, r := range preceding[locs[len(locs)-1][1]:] {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		}
	}
	return depth > 0
}
