package pipeline

import (
	"askdata/internal/catalog"
	"askdata/internal/llm"
	"askdata/internal/observability"
	"askdata/internal/schema"
)

const unknownCategoryMessage = "Sorry, that doesn't seem something I can help you with. Are you sure that question is related to your data?"

const disclaimerText = "\n\nDISCLAIMER: This response has been generated based on an LLM's interpretation of the data and may not be accurate."

// Response is the full answer payload.
type Response struct {
	Answer           string       `json:"answer"`
	SQLQuery         string       `json:"sql_query"`
	QueryExplanation string       `json:"query_explanation"`
	Tokens           llm.Usage    `json:"tokens"`
	RelatedQuestions []string     `json:"related_questions"`
	ExecutionResult  catalog.Rows `json:"execution_result"`
	TablesUsed       []string     `json:"tables_used"`
	RawGraph         string       `json:"raw_graph"`

	SQLExecutionTime      float64 `json:"sql_execution_time"`
	VectorStoreSearchTime float64 `json:"vector_store_search_time"`
	LLMTime               float64 `json:"llm_time"`
	TotalExecutionTime    float64 `json:"total_execution_time"`
}

// fillTimings copies the timing buckets into their response fields.
func (r *Response) fillTimings(timings observability.Timings) {
	r.SQLExecutionTime = timings.Get("vql_execution_time")
	r.VectorStoreSearchTime = timings.Get("vector_store_search_time")
	r.LLMTime = timings.Get("llm_time")
	r.TotalExecutionTime = timings.Total()
}

// metadataResponse finalizes a question answered directly from schema
// structure, no query involved.
func (p *Pipeline) metadataResponse(classification Classification, tables []schema.RelevantTable, timings observability.Timings) Response {
	answer := classification.Answer
	if p.disclaimer {
		answer += disclaimerText
	}
	resp := Response{
		Answer:           answer,
		Tokens:           classification.Usage,
		RelatedQuestions: classification.RelatedQuestions,
		ExecutionResult:  catalog.Rows{},
		TablesUsed:       schema.TablesUsed(tables),
	}
	resp.fillTimings(timings)
	return resp
}

// unknownResponse finalizes a question neither classifier claimed.
func unknownResponse(classification Classification, timings observability.Timings) Response {
	resp := Response{
		Answer:           unknownCategoryMessage,
		Tokens:           classification.Usage,
		RelatedQuestions: []string{},
		ExecutionResult:  catalog.Rows{},
		TablesUsed:       []string{},
	}
	resp.fillTimings(timings)
	return resp
}
