package schema

import (
	"fmt"
	"strings"
)

// EstimateTokens approximates the token count of a string. The embedding
// backends use different tokenizers, so this uses the common four characters
// per token heuristic; it only has to be safe for chunk sizing.
func EstimateTokens(s string) int {
	return len(s)/4 + 1
}

// Summary renders the embedding document text for one view: header with
// description, one line per column, and the association footer.
func Summary(doc Doc) string {
	var b strings.Builder

	b.WriteString("=====")
	if desc := strings.TrimSpace(doc.Description); desc != "" {
		fmt.Fprintf(&b, "Table %s=====\nDescription: %s\nColumns:\n",
			doc.TableName, strings.ReplaceAll(desc, "\n", " "))
	} else {
		fmt.Fprintf(&b, "Table %s=====\nColumns:\n", doc.TableName)
	}

	for _, col := range doc.Schema {
		b.WriteString(columnLine(col))
		b.WriteByte('\n')
	}

	if len(doc.Associations) > 0 {
		b.WriteByte('\n')
		for _, assoc := range doc.Associations {
			fmt.Fprintf(&b, "This table is also associated with table %s on %s\n",
				assoc.TableName, assoc.Where)
		}
	}
	b.WriteByte('\n')

	return b.String()
}

func columnLine(col Column) string {
	example := ""
	if values := uniqueNonEmpty(col.SampleData); len(values) > 0 {
		example = " Example value: " + strings.Join(values, ", ")
	}

	desc := strings.TrimSpace(strings.ReplaceAll(col.Description, "\n", " "))

	switch {
	case col.LogicalName != "" && desc != "":
		return fmt.Sprintf("- %s (%s) -> %s: %s.%s", col.ColumnName, col.Type, col.LogicalName, desc, example)
	case desc != "":
		return fmt.Sprintf("- %s (%s) -> %s.%s", col.ColumnName, col.Type, desc, example)
	case col.LogicalName != "":
		return fmt.Sprintf("- %s (%s) -> %s.%s", col.ColumnName, col.Type, col.LogicalName, example)
	default:
		return fmt.Sprintf("- %s (%s).%s", col.ColumnName, col.Type, example)
	}
}

func uniqueNonEmpty(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// SummaryChunks splits an oversized view summary into chunks that stay under
// tokenLimit. The header and association footer repeat in every chunk so each
// chunk remains a self-contained description of the view. A summary already
// under the limit comes back as a single chunk.
func SummaryChunks(doc Doc, tokenLimit int) []string {
	summary := Summary(doc)
	if tokenLimit <= 0 || EstimateTokens(summary) <= tokenLimit {
		return []string{summary}
	}

	header, content, found := strings.Cut(summary, "Columns:\n")
	if !found {
		return []string{summary}
	}
	header += "Columns:\n"

	var columnLines, associationLines []string
	for _, line := range strings.Split(content, "\n") {
		switch {
		case strings.HasPrefix(line, "This table is also associated"):
			associationLines = append(associationLines, line)
		case strings.TrimSpace(line) != "":
			columnLines = append(columnLines, line)
		}
	}

	footer := ""
	if len(associationLines) > 0 {
		footer = "\n" + strings.Join(associationLines, "\n")
	}

	available := tokenLimit - EstimateTokens(header+footer)
	if available < 1 {
		available = 1
	}

	totalTokens := EstimateTokens(strings.Join(columnLines, "\n"))
	targetChunks := totalTokens/available + 1
	chunkSize := len(columnLines) / targetChunks
	if chunkSize < 1 {
		chunkSize = 1
	}

	var chunks []string
	for i := 0; i < len(columnLines); i += chunkSize {
		end := i + chunkSize
		if end > len(columnLines) {
			end = len(columnLines)
		}
		chunks = append(chunks, header+strings.Join(columnLines[i:end], "\n")+footer+"\n")
	}

	return chunks
}
