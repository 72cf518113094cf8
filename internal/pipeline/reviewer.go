package pipeline

import (
	"context"

	"askdata/internal/llm"
	"askdata/internal/observability"
	"askdata/internal/schema"
	"askdata/internal/vql"
)

// reviewQuery handles the semantic failure mode: the query ran without
// error but returned no rows. The reviewer re-checks filtering and grouping
// against the question and the sample values; it answers OK when the query
// is right and the data is genuinely empty.
func (p *Pipeline) reviewQuery(ctx context.Context, question, query string, tables []schema.RelevantTable, history History, samples schema.SampleData) (fixOutcome, error) {
	prompt := render(queryReviewerPrompt, map[string]string{
		"question":         question,
		"schema":           schema.FormatText(schema.TablesInQuery(tables, query), nil, samples),
		"query":            query,
		"vql_restrictions": vql.Restrictions(vql.ClauseHints{GroupBy: true, Having: true, Dates: true, Arithmetic: true}),
	})

	response, usage, err := p.sqlGen.Complete(ctx, prompt)
	p.countTokens(usage)
	if err != nil {
		return fixOutcome{}, err
	}
	observability.RepairAttemptsTotal.WithLabelValues("reviewer").Inc()

	response = recoverQueryTags(response)
	reviewed := vql.Lint(extractTag(response, "vql", ""))

	return fixOutcome{
		Query:   reviewed.Query,
		History: history.With(llm.RoleHuman, prompt).With(llm.RoleAI, response),
		Usage:   usage,
	}, nil
}
