// Package pipeline turns a natural-language question into an executed,
// validated VQL query and a rendered answer: classification, retrieval,
// generation, deterministic linting, a bounded repair loop and concurrent
// post-execution enrichment.
package pipeline

import (
	"context"

	"go.uber.org/zap"

	"askdata/internal/catalog"
	"askdata/internal/config"
	"askdata/internal/llm"
	"askdata/internal/observability"
	"askdata/internal/retrieval"
)

// SchemaRetriever is the retrieval dependency. *retrieval.Retriever
// satisfies it.
type SchemaRetriever interface {
	Retrieve(ctx context.Context, req retrieval.Request) (retrieval.Result, observability.Timings, error)
}

// Executor runs VQL against the data layer. *catalog.Client satisfies it.
type Executor interface {
	Execute(ctx context.Context, vql string, limit int, creds catalog.Credentials) (catalog.Execution, error)
}

// Pipeline wires the question-answering flow. One instance serves many
// concurrent requests; it holds no per-request state.
type Pipeline struct {
	retriever SchemaRetriever
	executor  Executor
	sqlGen    llm.Client
	chat      llm.Client
	logger    *zap.Logger

	rowLimit          int
	maxRepairAttempts int
	markdown          bool
	disclaimer        bool
}

// New builds a pipeline from its collaborators.
func New(retriever SchemaRetriever, executor Executor, sqlGen, chat llm.Client, cfg config.Config, logger *zap.Logger) *Pipeline {
	maxAttempts := cfg.Pipeline.MaxRepairAttempts
	if maxAttempts <= 0 {
		maxAttempts = 2
	}
	return &Pipeline{
		retriever:         retriever,
		executor:          executor,
		sqlGen:            sqlGen,
		chat:              chat,
		logger:            logger,
		rowLimit:          cfg.Catalog.RowLimit,
		maxRepairAttempts: maxAttempts,
		markdown:          cfg.Pipeline.Markdown,
		disclaimer:        cfg.Pipeline.Disclaimer,
	}
}

func (p *Pipeline) countTokens(usage llm.Usage) {
	observability.LLMTokensTotal.WithLabelValues("input").Add(float64(usage.InputTokens))
	observability.LLMTokensTotal.WithLabelValues("output").Add(float64(usage.OutputTokens))
}
