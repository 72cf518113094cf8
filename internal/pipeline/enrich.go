package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"askdata/internal/catalog"
	"askdata/internal/llm"
	"askdata/internal/observability"
	"askdata/internal/schema"
)

const answerFallback = "There was an error while generating the answer. Please try again later."

// llmResultRowCap bounds how many result rows reach enrichment prompts.
const llmResultRowCap = 15

// llmExecutionResult renders the execution outcome for enrichment prompts,
// truncated so a wide result cannot blow the context window.
func llmExecutionResult(exec catalog.Execution) string {
	if exec.Status != http.StatusOK {
		return exec.Message
	}
	if len(exec.Rows) <= llmResultRowCap {
		data, _ := json.Marshal(exec.Rows)
		return string(data)
	}
	trimmed := make(catalog.Rows, llmResultRowCap)
	for i := 1; i <= llmResultRowCap; i++ {
		key := fmt.Sprintf("Row %d", i)
		if cells, ok := exec.Rows[key]; ok {
			trimmed[key] = cells
		}
	}
	data, _ := json.Marshal(trimmed)
	return fmt.Sprintf("%s... Showing only the first %d rows of the execution result.", data, llmResultRowCap)
}

// chartWorthy reports whether the result has enough shape to plot: several
// rows and more than one column.
func chartWorthy(rows catalog.Rows) bool {
	return len(rows) > 3 && len(rows["Row 1"]) > 1
}

// writeChartData dumps the full result set to a temp file for the chart
// prompt to reference. The caller owns removal.
func writeChartData(rows catalog.Rows) (string, error) {
	f, err := os.CreateTemp("", "askdata_result_*.json")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(rows); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// enrichRequest carries everything the enrichment stage needs.
type enrichRequest struct {
	Question           string
	Query              string
	CustomInstructions string
	PlotDetails        string
	Verbose            bool
	Plot               bool

	Tables    []schema.RelevantTable
	Samples   schema.SampleData
	Execution catalog.Execution
	DataFile  string
}

// enrich runs answer generation, related-question generation and chart
// generation concurrently and fills the response in place. Each task fails
// independently: a missing piece defaults to empty instead of sinking the
// request.
func (p *Pipeline) enrich(ctx context.Context, req enrichRequest, resp *Response, timings observability.Timings) {
	start := time.Now()
	defer func() { timings.Record("llm_time", start) }()

	llmResult := llmExecutionResult(req.Execution)
	queryTables := schema.TablesInQuery(req.Tables, req.Query)

	var wg sync.WaitGroup
	var mu sync.Mutex

	if req.Verbose {
		wg.Add(1)
		go func() {
			defer wg.Done()
			answer, usage, err := p.generateAnswer(ctx, req, llmResult, queryTables)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				p.logger.Warn("answer generation failed", zap.Error(err))
				resp.Answer = answerFallback
				return
			}
			resp.Answer = answer
			resp.Tokens = resp.Tokens.Add(usage)
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			questions, usage, err := p.relatedQuestions(ctx, req, llmResult, queryTables)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				p.logger.Warn("related question generation failed", zap.Error(err))
				return
			}
			resp.RelatedQuestions = questions
			resp.Tokens = resp.Tokens.Add(usage)
		}()
	}

	if req.Plot && req.DataFile != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			chart, usage, err := p.generateChart(ctx, req)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				p.logger.Warn("chart generation failed", zap.Error(err))
				return
			}
			resp.RawGraph = chart
			resp.Tokens = resp.Tokens.Add(usage)
		}()
	}

	wg.Wait()
}

func (p *Pipeline) generateAnswer(ctx context.Context, req enrichRequest, llmResult string, queryTables []schema.RelevantTable) (string, llm.Usage, error) {
	format := "- Use plain text to answer, don't use markdown or any other formatting."
	example := "Cristiano Ronaldo was the player who scored the most goals last year, with a total of 23 goals."
	if p.markdown {
		format = "- Use bold, italics and tables in markdown when appropriate to better illustrate the response.\n- You cannot use markdown headings, instead use titles in bold to separate sections, if needed."
		example = "**Cristiano Ronaldo** was the player who scored the most goals last year, with a total of **23 goals**."
	}

	response, usage, err := p.chat.Complete(ctx, render(answerViewPrompt, map[string]string{
		"question":            req.Question,
		"sql_query":           req.Query,
		"sql_response":        llmResult,
		"response_format":     format,
		"response_example":    example,
		"tables_needed":       schema.ReadableTables(queryTables),
		"custom_instructions": req.CustomInstructions,
	}))
	p.countTokens(usage)
	if err != nil {
		return "", usage, err
	}
	return extractTag(response, "final_answer", answerFallback), usage, nil
}

func (p *Pipeline) relatedQuestions(ctx context.Context, req enrichRequest, llmResult string, queryTables []schema.RelevantTable) ([]string, llm.Usage, error) {
	custom := ""
	if req.CustomInstructions != "" {
		custom = "Here are some things to remember:\n" + req.CustomInstructions
	}

	response, usage, err := p.chat.Complete(ctx, render(relatedQuestionsPrompt, map[string]string{
		"schema":              schema.FormatText(queryTables, nil, req.Samples),
		"question":            req.Question,
		"sql_response":        llmResult,
		"custom_instructions": custom,
	}))
	p.countTokens(usage)
	if err != nil {
		return nil, usage, err
	}
	return extractTags(response, "related_question"), usage, nil
}

func (p *Pipeline) generateChart(ctx context.Context, req enrichRequest) (string, llm.Usage, error) {
	sample := make(catalog.Rows, 3)
	for i := 1; i <= 3; i++ {
		key := fmt.Sprintf("Row %d", i)
		if cells, ok := req.Execution.Rows[key]; ok {
			sample[key] = cells
		}
	}
	sampleJSON, _ := json.Marshal(sample)

	details := req.PlotDetails
	if details == "" {
		details = "No special requirements"
	}

	response, usage, err := p.sqlGen.Complete(ctx, render(chartPrompt, map[string]string{
		"instruction":  req.Question,
		"data":         req.DataFile,
		"sample_data":  string(sampleJSON),
		"plot_details": details,
	}))
	p.countTokens(usage)
	if err != nil {
		return "", usage, err
	}
	return extractTag(response, "chart", ""), usage, nil
}
