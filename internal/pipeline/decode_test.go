package pipeline

import (
	"testing"

	"askdata/internal/llm"
)

func TestExtractTag(t *testing.T) {
	text := "<thoughts>join the\ntwo views</thoughts><vql> SELECT 1 </vql>"
	if got := extractTag(text, "vql", ""); got != "SELECT 1" {
		t.Errorf("vql = %q", got)
	}
	if got := extractTag(text, "thoughts", ""); got != "join the\ntwo views" {
		t.Errorf("thoughts = %q", got)
	}
	if got := extractTag(text, "cat", "OTHER"); got != "OTHER" {
		t.Errorf("missing tag must yield the fallback, got %q", got)
	}
	if got := extractTag("<vql>first</vql><vql>second</vql>", "vql", ""); got != "first" {
		t.Errorf("repeated tag must yield the first occurrence, got %q", got)
	}
}

func TestExtractTags(t *testing.T) {
	text := "<related_question>a</related_question>noise<related_question> b </related_question>"
	got := extractTags(text, "related_question")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("extractTags = %v", got)
	}
	if extractTags("no tags here", "related_question") != nil {
		t.Error("expected nil for absent tags")
	}
}

func TestRecoverQueryTags(t *testing.T) {
	recovered := recoverQueryTags("```sql\nSELECT 1\n```")
	if extractTag(recovered, "vql", "") != "SELECT 1" {
		t.Errorf("fence not recovered: %q", recovered)
	}

	tagged := "<vql>SELECT 1</vql>"
	if recoverQueryTags(tagged) != tagged {
		t.Error("tagged output must pass through untouched")
	}
}

func TestParseTableFilters(t *testing.T) {
	params := "<table><name>bank.loans</name><column>amount</column><column>city</column></table>" +
		"<table><name>bank.clients</name></table>" +
		"<table><column>orphan</column></table>"

	filters := parseTableFilters(params)
	if len(filters) != 2 {
		t.Fatalf("expected 2 filters, got %d", len(filters))
	}
	if filters[0].Name != "bank.loans" || len(filters[0].Columns) != 2 {
		t.Errorf("wrong first filter: %+v", filters[0])
	}
	if filters[1].Name != "bank.clients" || len(filters[1].Columns) != 0 {
		t.Errorf("wrong second filter: %+v", filters[1])
	}

	if parseTableFilters("no markers") != nil {
		t.Error("expected nil for unmarked params")
	}
}

func TestClauseHints(t *testing.T) {
	hints := clauseHints("total per city <groupby> above average <having>")
	if !hints.GroupBy || !hints.Having {
		t.Errorf("markers not detected: %+v", hints)
	}
	if hints.Dates || hints.Arithmetic {
		t.Errorf("absent markers detected: %+v", hints)
	}

	if h := clauseHints("sorted by amount <orderby>"); !h.GroupBy {
		t.Error("orderby must imply the grouping rules")
	}
}

func TestHistoryWithDoesNotAlias(t *testing.T) {
	base := History{}.With(llm.RoleHuman, "first")

	a := base.With(llm.RoleAI, "branch a")
	b := base.With(llm.RoleAI, "branch b")

	if len(base) != 1 {
		t.Fatalf("base mutated: %d turns", len(base))
	}
	if a[1].Text != "branch a" || b[1].Text != "branch b" {
		t.Errorf("branches alias each other: %q, %q", a[1].Text, b[1].Text)
	}
}

func TestRenderLeavesUnknownPlaceholders(t *testing.T) {
	out := render("ask {question} about {schema}", map[string]string{"question": "totals"})
	if out != "ask totals about {schema}" {
		t.Errorf("render = %q", out)
	}
}
