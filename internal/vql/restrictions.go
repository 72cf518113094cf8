package vql

import "strings"

// ClauseHints records which SQL constructs the generator expects to appear
// in the query, derived from the filter analysis of the question.
type ClauseHints struct {
	GroupBy    bool
	Having     bool
	Dates      bool
	Arithmetic bool
}

const baseRules = `VQL is Denodo's SQL dialect. It accepts standard SELECT syntax with these restrictions:
- Quote every view and column name with double quotes, never backticks.
- LIMIT and FETCH are only valid in the outermost query. Inside subqueries use ROW_NUMBER() OVER (...) instead.
- OFFSET is not supported anywhere.
- Always qualify views with their database: "database"."view".`

const groupByRules = `- Every non-aggregated column in the SELECT list must appear in GROUP BY.
- Do not reference SELECT aliases inside GROUP BY, repeat the expression.`

const havingRules = `- HAVING may only filter on aggregate expressions. Move plain column filters to WHERE.`

const dateRules = `- Use GETDAY(), GETMONTH() and GETYEAR() to extract date parts.
- Use ADDDAY(date, n), ADDMONTH(date, n) and ADDYEAR(date, n) for date arithmetic. INTERVAL is not supported.
- Use CURRENT_DATE for today. Format literals as date 'yyyy-MM-dd'.`

const arithmeticRules = `- Use the MULT(a, b) and DIV(a, b) functions for multiplication and division of column values.
- Cast integer columns with CAST(col AS decimal) before division to avoid truncation.`

// Restrictions renders the dialect rule block for a generation prompt,
// including only the rule groups the hints call for.
func Restrictions(hints ClauseHints) string {
	parts := []string{baseRules}
	if hints.GroupBy {
		parts = append(parts, groupByRules)
	}
	if hints.Having {
		parts = append(parts, havingRules)
	}
	if hints.Dates {
		parts = append(parts, dateRules)
	}
	if hints.Arithmetic {
		parts = append(parts, arithmeticRules)
	}
	return strings.Join(parts, "\n")
}
