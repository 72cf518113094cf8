package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"askdata/internal/llm"
	"askdata/internal/observability"
	"askdata/internal/schema"
)

// Question categories.
const (
	CategorySQL      = "SQL"
	CategoryMetadata = "METADATA"
	CategoryOther    = "OTHER"
)

// Classification is the outcome of question classification. For SQL
// questions FilterParams carries the annotated restatement the generator
// prompts with; for metadata questions Answer and RelatedQuestions are
// already final.
type Classification struct {
	Category         string
	FilterParams     string
	Answer           string
	RelatedQuestions []string
	Usage            llm.Usage
}

type taskResult struct {
	response string
	usage    llm.Usage
	err      error
}

// classify routes a question. Mode "data" and "metadata" skip
// classification and prompt the respective path directly. The default mode
// races a metadata-interpretation task against a SQL-annotation task and
// takes the first meaningful result; the loser is cancelled and its result
// never observed.
func (p *Pipeline) classify(ctx context.Context, question string, tables []schema.RelevantTable, mode, customInstructions string, timings observability.Timings) (Classification, error) {
	start := time.Now()
	defer func() { timings.Record("llm_time", start) }()

	switch mode {
	case "metadata":
		return p.directMetadata(ctx, question, tables, customInstructions)
	case "data":
		return p.directSQL(ctx, question, tables, customInstructions)
	}

	metaCtx, cancelMeta := context.WithCancel(ctx)
	defer cancelMeta()
	sqlCtx, cancelSQL := context.WithCancel(ctx)
	defer cancelSQL()

	metaCh := make(chan taskResult, 1)
	sqlCh := make(chan taskResult, 1)

	go func() {
		response, usage, err := p.chat.Complete(metaCtx, render(metadataCategoryPrompt, map[string]string{
			"instruction":         question,
			"schema":              docsJSON(tables),
			"custom_instructions": customInstructions,
		}))
		metaCh <- taskResult{response: response, usage: usage, err: err}
	}()
	go func() {
		response, usage, err := p.chat.Complete(sqlCtx, render(sqlCategoryPrompt, map[string]string{
			"instruction":         question,
			"schema":              schema.ReadableTables(tables),
			"custom_instructions": customInstructions,
		}))
		sqlCh <- taskResult{response: response, usage: usage, err: err}
	}()

	select {
	case meta := <-metaCh:
		if meta.err == nil && extractTag(meta.response, "cat", CategoryOther) == CategoryMetadata {
			cancelSQL()
			p.countTokens(meta.usage)
			return metadataClassification(meta), nil
		}
		// Not a metadata question, fall through to the SQL task.
		sql := <-sqlCh
		if sql.err != nil {
			return Classification{}, sql.err
		}
		out := sqlClassification(sql)
		out.Usage = out.Usage.Add(meta.usage)
		p.countTokens(meta.usage)
		p.countTokens(sql.usage)
		return out, nil

	case sql := <-sqlCh:
		if sql.err == nil && extractTag(sql.response, "cat", CategoryOther) == CategorySQL {
			cancelMeta()
			p.countTokens(sql.usage)
			return sqlClassification(sql), nil
		}
		meta := <-metaCh
		if meta.err == nil && extractTag(meta.response, "cat", CategoryOther) == CategoryMetadata {
			out := metadataClassification(meta)
			p.countTokens(meta.usage)
			if sql.err == nil {
				out.Usage = out.Usage.Add(sql.usage)
				p.countTokens(sql.usage)
			}
			return out, nil
		}
		if sql.err != nil {
			return Classification{}, sql.err
		}
		out := sqlClassification(sql)
		p.countTokens(sql.usage)
		if meta.err == nil {
			out.Usage = out.Usage.Add(meta.usage)
			p.countTokens(meta.usage)
		} else {
			p.logger.Warn("metadata classification failed", zap.Error(meta.err))
		}
		return out, nil
	}
}

func (p *Pipeline) directMetadata(ctx context.Context, question string, tables []schema.RelevantTable, customInstructions string) (Classification, error) {
	response, usage, err := p.chat.Complete(ctx, render(directMetadataCategoryPrompt, map[string]string{
		"instruction":         question,
		"schema":              docsJSON(tables),
		"custom_instructions": customInstructions,
	}))
	p.countTokens(usage)
	if err != nil {
		return Classification{}, err
	}
	return Classification{
		Category:         CategoryMetadata,
		Answer:           extractTag(response, "response", ""),
		RelatedQuestions: extractTags(response, "related_question"),
		Usage:            usage,
	}, nil
}

func (p *Pipeline) directSQL(ctx context.Context, question string, tables []schema.RelevantTable, customInstructions string) (Classification, error) {
	response, usage, err := p.chat.Complete(ctx, render(directSQLCategoryPrompt, map[string]string{
		"instruction":         question,
		"schema":              schema.ReadableTables(tables),
		"custom_instructions": customInstructions,
	}))
	p.countTokens(usage)
	if err != nil {
		return Classification{}, err
	}
	return Classification{
		Category:     CategorySQL,
		FilterParams: extractTag(response, "query", ""),
		Usage:        usage,
	}, nil
}

func metadataClassification(meta taskResult) Classification {
	return Classification{
		Category:         extractTag(meta.response, "cat", CategoryOther),
		Answer:           extractTag(meta.response, "response", ""),
		RelatedQuestions: extractTags(meta.response, "related_question"),
		Usage:            meta.usage,
	}
}

func sqlClassification(sql taskResult) Classification {
	return Classification{
		Category:     extractTag(sql.response, "cat", CategoryOther),
		FilterParams: extractTag(sql.response, "query", ""),
		Usage:        sql.usage,
	}
}

// docsJSON renders the view descriptors for prompts that reason over raw
// schema structure.
func docsJSON(tables []schema.RelevantTable) string {
	docs := make([]schema.Doc, len(tables))
	for i, table := range tables {
		docs[i] = table.ViewJSON
	}
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}
