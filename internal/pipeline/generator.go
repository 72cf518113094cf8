package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"askdata/internal/llm"
	"askdata/internal/schema"
	"askdata/internal/vql"
)

var sqlWordPattern = regexp.MustCompile(`(?i)sql`)

// GeneratedQuery is the decoded output of one generation call.
type GeneratedQuery struct {
	Query       string
	Explanation string
	Usage       llm.Usage
}

// generateQuery asks the SQL-generation model for a candidate query. The
// prompt carries the formatted schema (filtered to the tables and columns
// the classifier singled out), today's date and only the dialect rule
// fragments the classifier's clause markers call for.
//
// A completion that yields no parseable query comes back with an empty
// Query; the repair loop surfaces that as a synthetic execution error and
// gives the fixer a chance to produce a real one.
func (p *Pipeline) generateQuery(ctx context.Context, question string, tables []schema.RelevantTable, filterParams, customInstructions string, samples schema.SampleData) (GeneratedQuery, error) {
	question = sqlWordPattern.ReplaceAllString(question, "VQL")

	prompt := render(queryToVQLPrompt, map[string]string{
		"query":               question,
		"schema":              schema.FormatText(tables, parseTableFilters(filterParams), samples),
		"date":                time.Now().Format("2006-01-02"),
		"vql_restrictions":    vql.Restrictions(clauseHints(filterParams)),
		"custom_instructions": customInstructions,
	})

	response, usage, err := p.sqlGen.Complete(ctx, prompt)
	if err != nil {
		return GeneratedQuery{}, fmt.Errorf("query generation failed: %w", err)
	}

	response = recoverQueryTags(response)
	out := GeneratedQuery{
		Query:       extractTag(response, "vql", ""),
		Explanation: extractTag(response, "thoughts", ""),
		Usage:       usage,
	}
	if conditions := extractTag(response, "conditions", ""); conditions != "" && conditions != "None" {
		out.Explanation = fmt.Sprintf("%s\n\nConditions: %s", out.Explanation, conditions)
	}
	return out, nil
}
