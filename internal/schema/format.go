package schema

import (
	"fmt"
	"strings"
)

// DefaultExamplesPerColumn bounds how many sample values are rendered per
// column in prompt text.
const DefaultExamplesPerColumn = 3

// TableFilter names a caller-selected table and, optionally, the columns to
// keep. An empty Columns slice keeps the whole schema.
type TableFilter struct {
	Name    string
	Columns []string
}

// FormatText renders retrieval results into the compact schema text consumed
// by prompts. When filters name tables present in the result set, only those
// tables are rendered (restricted to the named columns, when given); if no
// filter matches, the full set is rendered. Sample values, when available,
// are attached to their columns.
func FormatText(tables []RelevantTable, filters []TableFilter, samples SampleData) string {
	lookup := make(map[string]Doc, len(tables))
	present := make([]string, 0, len(tables))
	for _, t := range tables {
		lookup[t.ViewName] = t.ViewJSON
		present = append(present, t.ViewName)
	}

	renderAll := func() string {
		parts := make([]string, 0, len(tables))
		for _, t := range tables {
			parts = append(parts, formatTable(t.ViewJSON, nil, samples, present))
		}
		return strings.Join(parts, "\n\n")
	}

	if len(filters) == 0 {
		return renderAll()
	}

	selected := make([]string, 0, len(filters))
	var parts []string
	for _, f := range filters {
		if _, ok := lookup[f.Name]; ok {
			selected = append(selected, f.Name)
		}
	}
	for _, f := range filters {
		doc, ok := lookup[f.Name]
		if !ok {
			continue
		}
		parts = append(parts, formatTable(doc, f.Columns, samples, selected))
	}

	if len(parts) == 0 {
		return renderAll()
	}
	return strings.Join(parts, "\n\n")
}

func formatTable(doc Doc, columns []string, samples SampleData, present []string) string {
	var lines []string

	database, view, _ := strings.Cut(doc.TableName, ".")
	lines = append(lines, fmt.Sprintf("# Table: %q.%q", database, view))
	if doc.Description != "" {
		lines = append(lines, "## Description:\n"+doc.Description)
	}
	lines = append(lines, "## Columns:")

	keep := make(map[string]bool, len(columns))
	for _, c := range columns {
		keep[c] = true
	}

	viewSamples := samples[doc.ID]
	for _, col := range doc.Schema {
		if len(keep) > 0 && !keep[col.ColumnName] {
			continue
		}
		if values, ok := viewSamples[col.ColumnName]; ok {
			col.SampleData = values
		}
		lines = append(lines, formatColumn(col))
	}

	// Join predicates render only when both sides of the association are in
	// the rendered set; a one-sided join would point the model at a table it
	// cannot see.
	var joins []string
	for _, assoc := range doc.Associations {
		if assoc.Where == "" {
			continue
		}
		mentioned := 0
		for _, name := range present {
			if strings.Contains(assoc.Where, name) {
				mentioned++
			}
		}
		if mentioned == 2 {
			joins = append(joins, "→ "+assoc.Where)
		}
	}
	if len(joins) > 0 {
		lines = append(lines, "## Joins:")
		lines = append(lines, joins...)
	}

	return strings.Join(lines, "\n")
}

func formatColumn(col Column) string {
	parts := []string{fmt.Sprintf("→ %s (%s)", col.ColumnName, col.Type)}

	var flags []string
	if col.PrimaryKey {
		flags = append(flags, "PK")
	}
	if !col.Nullable {
		flags = append(flags, "NOT NULL")
	}
	if len(flags) > 0 {
		parts = append(parts, "["+strings.Join(flags, " ")+"]")
	}

	if desc := col.Description; desc != "" {
		if !strings.HasSuffix(desc, ".") {
			desc += "."
		}
		parts = append(parts, "- "+desc)
	}

	if values := uniqueNonEmpty(col.SampleData); len(values) > 0 {
		if len(values) > DefaultExamplesPerColumn {
			values = values[:DefaultExamplesPerColumn]
		}
		parts = append(parts, "sample values: "+strings.Join(values, ", "))
	}

	return strings.Join(parts, " ")
}

// ReadableTables renders a one-line-per-table digest used by classification
// prompts, where full column detail would waste tokens.
func ReadableTables(tables []RelevantTable) string {
	var b strings.Builder
	for _, t := range tables {
		columns := make([]string, 0, len(t.ViewJSON.Schema))
		for _, col := range t.ViewJSON.Schema {
			columns = append(columns, col.ColumnName)
		}
		fmt.Fprintf(&b, "<table>Table %s with columns %s\n</table>\n",
			t.ViewName, strings.Join(columns, ", "))
	}
	return b.String()
}

// TablesUsed returns the view names of a result set in order.
func TablesUsed(tables []RelevantTable) []string {
	names := make([]string, 0, len(tables))
	for _, t := range tables {
		names = append(names, t.ViewName)
	}
	return names
}

// TablesInQuery filters a result set to the tables actually referenced by a
// query string, ignoring the quoting the generator adds around identifiers.
func TablesInQuery(tables []RelevantTable, query string) []RelevantTable {
	stripped := strings.NewReplacer(`"`, "", "'", "").Replace(query)
	var used []RelevantTable
	for _, t := range tables {
		if strings.Contains(stripped, t.ViewName) {
			used = append(used, t)
		}
	}
	return used
}
