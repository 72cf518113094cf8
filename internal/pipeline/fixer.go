package pipeline

import (
	"context"

	"go.uber.org/zap"

	"askdata/internal/llm"
	"askdata/internal/observability"
	"askdata/internal/schema"
	"askdata/internal/vql"
)

// fixOutcome is the result of one fixer invocation.
type fixOutcome struct {
	Query   string
	History History
	Usage   llm.Usage

	// Clean reports the short-circuit case: the query lints clean and no
	// execution error was supplied, so nothing was sent to the model.
	Clean bool
}

// fixQuery repairs a defective query. Called with an empty errorLog it lints
// the query first; lint categories with a known mechanical rewrite get a
// targeted fix prompt, anything else with an error goes through the generic
// fixer seeded with the dialect rules. A clean query short-circuits
// untouched.
func (p *Pipeline) fixQuery(ctx context.Context, question, query string, tables []schema.RelevantTable, errorLog string, categories []vql.Category, history History, explanation string, samples schema.SampleData) (fixOutcome, error) {
	if errorLog == "" && len(categories) == 0 {
		lint := vql.Lint(query)
		query = lint.Query
		errorLog = lint.ErrorLog
		categories = lint.Categories
		for _, warning := range lint.Warnings {
			p.logger.Warn("forbidden function in query", zap.String("detail", warning))
		}
	}

	schemaText := schema.FormatText(schema.TablesInQuery(tables, query), nil, samples)

	prompt := ""
	switch {
	case hasCategory(categories, vql.CategoryLimitSubquery):
		p.logger.Info("row limit in subquery detected, fixing")
		prompt = render(fixLimitPrompt, map[string]string{
			"question": question, "schema": schemaText, "query": query,
		})
	case hasCategory(categories, vql.CategoryLimitOffset):
		p.logger.Info("offset detected, fixing")
		prompt = render(fixOffsetPrompt, map[string]string{
			"question": question, "schema": schemaText, "query": query,
		})
	case errorLog != "":
		p.logger.Info("query execution failed, fixing", zap.String("error", errorLog))
		prompt = render(queryFixerPrompt, map[string]string{
			"question":          question,
			"schema":            schemaText,
			"query":             query,
			"query_error":       errorLog,
			"query_explanation": explanation,
			"vql_restrictions":  vql.Restrictions(vql.ClauseHints{GroupBy: true, Having: true, Dates: true, Arithmetic: true}),
		})
	default:
		return fixOutcome{Query: query, History: history, Clean: true}, nil
	}

	response, usage, err := p.sqlGen.Complete(ctx, prompt)
	p.countTokens(usage)
	if err != nil {
		return fixOutcome{}, err
	}
	observability.RepairAttemptsTotal.WithLabelValues("fixer").Inc()

	response = recoverQueryTags(response)
	fixed := vql.Lint(extractTag(response, "vql", ""))

	return fixOutcome{
		Query:   fixed.Query,
		History: history.With(llm.RoleHuman, prompt).With(llm.RoleAI, response),
		Usage:   usage,
	}, nil
}

func hasCategory(categories []vql.Category, want vql.Category) bool {
	for _, cat := range categories {
		if cat == want {
			return true
		}
	}
	return false
}
