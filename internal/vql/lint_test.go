package vql

import (
	"strings"
	"testing"
)

func TestLintCleanQuery(t *testing.T) {
	res := Lint(`SELECT "a"."orders".id FROM "a"."orders" LIMIT 10`)
	if !res.Clean() {
		t.Fatalf("expected clean result, got categories %v", res.Categories)
	}
	if res.ErrorLog != "" {
		t.Fatalf("expected empty error log, got %q", res.ErrorLog)
	}
}

func TestLintStripsMarkup(t *testing.T) {
	res := Lint("```sql\nSELECT order\\_id FROM t\n```")
	if res.Query != "SELECT order_id FROM t" {
		t.Fatalf("unexpected query %q", res.Query)
	}
	if !res.Clean() {
		t.Fatalf("markup cleanup must not raise categories: %v", res.Categories)
	}
}

func TestLintReservedAlias(t *testing.T) {
	res := Lint("SELECT count(*) AS count FROM t") // count is fine
	if res.Query != "SELECT count(*) AS count FROM t" {
		t.Fatalf("non-reserved alias changed: %q", res.Query)
	}

	res = Lint("SELECT o.id AS ORDER BY FROM t")
	if !strings.Contains(res.Query, "AS ORDER BY_ ") {
		t.Fatalf("reserved alias not suffixed: %q", res.Query)
	}
}

func TestLintLimitInSubquery(t *testing.T) {
	res := Lint("SELECT * FROM (SELECT a FROM t LIMIT 5) x")
	if len(res.Categories) != 1 || res.Categories[0] != CategoryLimitSubquery {
		t.Fatalf("expected LIMIT_SUBQUERY, got %v", res.Categories)
	}
	if res.ErrorLog == "" {
		t.Fatal("expected error log text")
	}
}

func TestLintFetchInSubquery(t *testing.T) {
	res := Lint("SELECT * FROM (SELECT a FROM t FETCH FIRST 5 ROWS ONLY) x")
	if len(res.Categories) != 1 || res.Categories[0] != CategoryLimitSubquery {
		t.Fatalf("expected LIMIT_SUBQUERY, got %v", res.Categories)
	}
}

func TestLintTopLevelOffset(t *testing.T) {
	res := Lint("SELECT * FROM t LIMIT 10 OFFSET 5")
	found := false
	for _, cat := range res.Categories {
		if cat == CategoryLimitOffset {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected LIMIT_OFFSET, got %v", res.Categories)
	}
}

func TestLintForbiddenFunctionNotEscalated(t *testing.T) {
	res := Lint("SELECT SUBSTRING(name, 1, 3) FROM t")
	if !res.Clean() {
		t.Fatalf("forbidden functions must not raise categories: %v", res.Categories)
	}
	if len(res.Warnings) == 0 {
		t.Fatal("expected a warning for SUBSTRING")
	}
}

func TestLintIdempotent(t *testing.T) {
	first := Lint("SELECT * FROM (SELECT a FROM t LIMIT 5) x OFFSET 2")
	second := Lint(first.Query)
	if first.Query != second.Query {
		t.Fatalf("lint not idempotent on query text: %q vs %q", first.Query, second.Query)
	}
	if len(first.Categories) != len(second.Categories) {
		t.Fatalf("categories differ between runs: %v vs %v", first.Categories, second.Categories)
	}
}

func TestRestrictions(t *testing.T) {
	base := Restrictions(ClauseHints{})
	if !strings.Contains(base, "ROW_NUMBER") {
		t.Fatal("base rules missing")
	}
	if strings.Contains(base, "GETDAY") {
		t.Fatal("date rules leaked into base")
	}

	full := Restrictions(ClauseHints{GroupBy: true, Having: true, Dates: true, Arithmetic: true})
	for _, want := range []string{"GROUP BY", "HAVING", "ADDDAY", "MULT("} {
		if !strings.Contains(full, want) {
			t.Fatalf("rules missing %q", want)
		}
	}
}
