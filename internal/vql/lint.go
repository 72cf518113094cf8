// Package vql holds the deterministic knowledge about the VQL dialect: the
// static linter for generated queries and the restriction rule fragments
// injected into generation prompts.
package vql

import (
	"fmt"
	"regexp"
	"strings"
)

// Category tags a class of query defect. Categories drive which repair
// prompt the pipeline selects.
type Category string

const (
	// CategoryLimitSubquery marks a LIMIT or FETCH clause inside a subquery,
	// which the dialect forbids. Rewrite with ROW_NUMBER() instead.
	CategoryLimitSubquery Category = "LIMIT_SUBQUERY"

	// CategoryLimitOffset marks a top-level OFFSET, also forbidden.
	CategoryLimitOffset Category = "LIMIT_OFFSET"

	// CategoryExecutionError marks a generic execution failure reported by
	// the data layer.
	CategoryExecutionError Category = "GENERIC_EXECUTION_ERROR"

	// CategoryEmptyResult marks a syntactically valid query that returned
	// no rows.
	CategoryEmptyResult Category = "EMPTY_RESULT"
)

// Result is the outcome of linting one query.
type Result struct {
	// Query is the normalized query with markup artifacts and reserved-word
	// aliases fixed.
	Query string

	// ErrorLog describes raised categories in prose, empty when Categories
	// is empty.
	ErrorLog string

	// Categories are the defects that need an LLM-assisted rewrite.
	Categories []Category

	// Warnings lists forbidden functions that were detected but not
	// escalated. Informational only.
	Warnings []string
}

// Clean reports whether no categories were raised.
func (r Result) Clean() bool {
	return len(r.Categories) == 0
}

// reservedWords are dialect keywords that must not be used as aliases.
var reservedWords = []string{
	"ADD", "ALL", "ALTER", "AND", "ANY", "AS", "ASC", "BASE", "BOTH", "CASE",
	"CONNECT", "CONTEXT", "CREATE", "CROSS", "CURRENT_DATE", "CURRENT_TIMESTAMP",
	"CUSTOM", "DATABASE", "DEFAULT", "DESC", "DF", "DISTINCT", "DROP", "EXISTS",
	"FALSE", "FETCH", "FLATTEN", "FROM", "FULL", "GRANT", "GROUP BY", "HASH",
	"HAVING", "HTML", "IF", "INNER", "INTERSECT", "INTO", "IS", "JDBC", "JOIN",
	"LDAP", "LEADING", "LEFT", "LIMIT", "LOCALTIME", "LOCALTIMESTAMP", "MERGE",
	"MINUS", "MY", "NATURAL", "NESTED", "NOS", "NOT", "NULL", "OBL", "ODBC",
	"OF", "OFF", "OFFSET", "ON", "ONE", "OPT", "OR", "ORDER BY", "ORDERED",
	"PRIVILEGES", "READ", "REVERSEORDER", "REVOKE", "RIGHT", "ROW", "SELECT",
	"SWAP", "TABLE", "TO", "TRACE", "TRAILING", "TRUE", "UNION", "USER",
	"USING", "VIEW", "WHEN", "WHERE", "WITH", "WRITE", "WS", "ZERO",
}

// forbiddenFunctions are standard SQL functions the dialect does not
// support. Detection is logged but deliberately not escalated to a category.
var forbiddenFunctions = []string{
	"LENGTH", "CHAR_LENGTH", "CHARACTER_LENGTH", "CURRENT_TIME", "DIVIDE",
	"MULTIPLY", "DATE", "STRFTIME", "SUBSTRING", "DATE_SUB", "DATE_ADD",
	"DATE_TRUNC", "INTERVAL", "ADDDATE", "TO_CHAR", "LPAD", "STRING_AGG",
	"ARRAY_AGG",
}

var aliasPattern = regexp.MustCompile(`(?i)\s+AS\s+(` + strings.Join(reservedWords, "|") + `)\s+`)

// Lint statically checks and normalizes a candidate query. Pure function,
// no I/O.
func Lint(query string) Result {
	var res Result

	// LLM markup artifacts.
	if strings.Contains(query, "```") {
		query = strings.NewReplacer("```vql", "", "```sql", "", "```", "").Replace(query)
	}
	if strings.Contains(query, `\_`) {
		query = strings.ReplaceAll(query, `\_`, "_")
	}

	singleLine := strings.ReplaceAll(query, "\n", " ")

	// Reserved words used as aliases get an underscore suffix.
	for _, match := range aliasPattern.FindAllStringSubmatch(singleLine, -1) {
		word := match[1]
		replace := regexp.MustCompile(`(?i)(\s+AS\s+)` + regexp.QuoteMeta(word) + `(\s+)`)
		query = replace.ReplaceAllString(query, "${1}"+word+"_${2}")
	}
	singleLine = strings.ReplaceAll(query, "\n", " ")

	// Forbidden function scan. Detection only; escalation to a category is
	// deliberately disabled.
	upper := strings.ToUpper(query)
	for _, fn := range forbiddenFunctions {
		if strings.Contains(upper, " "+fn+" ") ||
			strings.Contains(upper, " "+fn+"(") ||
			strings.Contains(upper, " "+fn+" ( ") ||
			strings.Contains(upper, "("+fn+"(") {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s is not permitted in VQL.", fn))
		}
	}

	var log strings.Builder
	raise := func(cat Category, msg string) {
		log.WriteString(msg + "\n")
		for _, existing := range res.Categories {
			if existing == cat {
				return
			}
		}
		res.Categories = append(res.Categories, cat)
	}

	// Row limiting inside any parenthesis group.
	for _, group := range parenGroups(singleLine) {
		if strings.Contains(group, " LIMIT ") {
			raise(CategoryLimitSubquery, "There is a LIMIT in subquery, which is not permitted in VQL. Use ROW_NUMBER () instead.")
		}
		if strings.Contains(group, " FETCH ") {
			raise(CategoryLimitSubquery, "There is a FETCH in subquery, which is not permitted in VQL. Use ROW_NUMBER () instead.")
		}
	}

	if strings.Contains(singleLine, " OFFSET ") {
		raise(CategoryLimitOffset, "There is a LIMIT OFFSET in the main query, which is not permitted in VQL. Use ROW_NUMBER () instead.")
	}

	res.Query = strings.TrimSpace(query)
	res.ErrorLog = log.String()
	return res
}

// parenGroups returns every well-formed parenthesis group in the text,
// outermost first, including nested content.
func parenGroups(text string) []string {
	var groups []string
	start := 0
	for {
		open := strings.IndexByte(text[start:], '(')
		if open == -1 {
			break
		}
		open += start
		end := closingParen(text, open)
		if end == -1 {
			break
		}
		groups = append(groups, text[open:end+1])
		start = end + 1
	}
	return groups
}

func closingParen(s string, start int) int {
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
