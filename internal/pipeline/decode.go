package pipeline

import (
	"regexp"
	"strings"
	"sync"

	"askdata/internal/schema"
	"askdata/internal/vql"
)

// Tagged-output decoding. Completions carry their structured parts in XML-ish
// tags (<vql>, <thoughts>, <cat>, ...). Decoding is tolerant: a missing tag
// yields the default, malformed input never panics.

var (
	tagPatternMu sync.Mutex
	tagPatterns  = map[string]*regexp.Regexp{}
)

func tagPattern(tag string) *regexp.Regexp {
	tagPatternMu.Lock()
	defer tagPatternMu.Unlock()
	if re, ok := tagPatterns[tag]; ok {
		return re
	}
	re := regexp.MustCompile(`(?s)<` + regexp.QuoteMeta(tag) + `>(.*?)</` + regexp.QuoteMeta(tag) + `>`)
	tagPatterns[tag] = re
	return re
}

// extractTag returns the trimmed content of the first occurrence of the tag,
// or fallback when absent.
func extractTag(text, tag, fallback string) string {
	match := tagPattern(tag).FindStringSubmatch(text)
	if match == nil {
		return fallback
	}
	return strings.TrimSpace(match[1])
}

// extractTags returns the trimmed contents of every occurrence of the tag.
func extractTags(text, tag string) []string {
	matches := tagPattern(tag).FindAllStringSubmatch(text, -1)
	if matches == nil {
		return nil
	}
	out := make([]string, len(matches))
	for i, match := range matches {
		out[i] = strings.TrimSpace(match[1])
	}
	return out
}

// recoverQueryTags rewrites markdown code fences into <vql> tags. Models
// occasionally fall back to fenced output despite the tag instructions.
func recoverQueryTags(response string) string {
	if !strings.Contains(response, "```") {
		return response
	}
	response = strings.ReplaceAll(response, "```vql", "<vql>")
	response = strings.ReplaceAll(response, "```sql", "<vql>")
	response = strings.ReplaceAll(response, "```", "</vql>")
	return strings.TrimSpace(response)
}

// parseTableFilters decodes the classifier's <table><name>..</name>
// <column>..</column></table> blocks into schema filters.
func parseTableFilters(filterParams string) []schema.TableFilter {
	blocks := extractTags(filterParams, "table")
	if len(blocks) == 0 {
		return nil
	}
	filters := make([]schema.TableFilter, 0, len(blocks))
	for _, block := range blocks {
		name := extractTag(block, "name", "")
		if name == "" {
			continue
		}
		filters = append(filters, schema.TableFilter{
			Name:    name,
			Columns: extractTags(block, "column"),
		})
	}
	return filters
}

// clauseHints reads the clause markers the classifier annotated the
// question with.
func clauseHints(filterParams string) vql.ClauseHints {
	return vql.ClauseHints{
		Having:     strings.Contains(filterParams, "<having>"),
		GroupBy:    strings.Contains(filterParams, "<groupby>") || strings.Contains(filterParams, "<orderby>"),
		Dates:      strings.Contains(filterParams, "<dates>"),
		Arithmetic: strings.Contains(filterParams, "<arithmetic>"),
	}
}
