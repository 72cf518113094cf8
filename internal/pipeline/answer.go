package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"askdata/internal/catalog"
	"askdata/internal/observability"
	"askdata/internal/retrieval"
	"askdata/internal/schema"
)

// AskRequest is one question to answer.
type AskRequest struct {
	Question string

	// Scope for retrieval and permissions.
	Databases []string
	Tags      []string
	K         int

	// ForcedViews pins retrieval to caller-chosen views; with
	// ExpandAssociations false the schema context is exactly these views.
	ForcedViews        []string
	ExpandAssociations bool

	// Mode routes classification: "default" races the metadata and SQL
	// classifiers, "data" and "metadata" skip straight to one path.
	Mode string

	// Verbose asks for a natural-language answer and related questions on
	// top of the raw query result.
	Verbose bool

	// Plot asks for a chart specification when the result has enough shape.
	Plot        bool
	PlotDetails string

	CustomInstructions string

	Credentials catalog.Credentials
}

// Answer runs the full pipeline for one question: retrieve schema context,
// classify, and either answer from metadata directly or generate, repair
// and execute a query and enrich its result.
func (p *Pipeline) Answer(ctx context.Context, req AskRequest) (Response, error) {
	timings := observability.Timings{}

	log := p.logger.With(zap.String("question_id", uuid.NewString()))
	log.Info("question received", zap.String("mode", req.Mode), zap.Int("k", req.K))

	result, retrievalTimings, err := p.retriever.Retrieve(ctx, retrieval.Request{
		Question:           req.Question,
		K:                  req.K,
		Databases:          req.Databases,
		Tags:               req.Tags,
		Credentials:        req.Credentials,
		ForcedViews:        req.ForcedViews,
		ExpandAssociations: req.ExpandAssociations,
	})
	if err != nil {
		observability.QuestionsTotal.WithLabelValues("error", "retrieval_failed").Inc()
		return Response{}, fmt.Errorf("%w: %v", ErrRetrieval, err)
	}
	timings.Merge(retrievalTimings)

	classification, err := p.classify(ctx, req.Question, result.Tables, req.Mode, req.CustomInstructions, timings)
	if err != nil {
		observability.QuestionsTotal.WithLabelValues("error", "classification_failed").Inc()
		return Response{}, fmt.Errorf("%w: %v", ErrClassification, err)
	}

	switch classification.Category {
	case CategoryMetadata:
		observability.QuestionsTotal.WithLabelValues("metadata", "ok").Inc()
		return p.metadataResponse(classification, result.Tables, timings), nil
	case CategorySQL:
		return p.answerSQL(ctx, req, classification, result, timings)
	default:
		log.Info("question not classified as answerable", zap.String("question", req.Question))
		observability.QuestionsTotal.WithLabelValues("other", "ok").Inc()
		return unknownResponse(classification, timings), nil
	}
}

// answerSQL is the data path: generate a query, run it through the repair
// loop, then enrich the outcome.
func (p *Pipeline) answerSQL(ctx context.Context, req AskRequest, classification Classification, result retrieval.Result, timings observability.Timings) (Response, error) {
	gen, err := p.generateTimed(ctx, req, classification, result, timings)
	if err != nil {
		observability.QuestionsTotal.WithLabelValues("sql", "generation_failed").Inc()
		return Response{}, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	repair, err := p.runRepairLoop(ctx, req.Question, gen, result.Tables, result.Samples, req.Credentials, timings)
	if err != nil {
		observability.QuestionsTotal.WithLabelValues("sql", "repair_failed").Inc()
		return Response{}, fmt.Errorf("%w: %v", ErrRepair, err)
	}

	exec := repair.Execution
	resp := Response{
		Answer:           repair.Query,
		QueryExplanation: gen.Explanation,
		Tokens:           gen.Usage.Add(repair.Usage),
		RelatedQuestions: []string{},
		ExecutionResult:  catalog.Rows{},
		TablesUsed:       schema.TablesUsed(result.Tables),
	}
	if strings.Contains(repair.Query, "FROM") {
		resp.SQLQuery = repair.Query
	}
	if exec.OK() {
		resp.ExecutionResult = exec.Rows
	}

	plot := req.Plot && exec.OK() && chartWorthy(exec.Rows)
	dataFile := ""
	if plot {
		dataFile, err = writeChartData(exec.Rows)
		if err != nil {
			p.logger.Warn("failed to write chart data file", zap.Error(err))
			plot = false
		} else {
			defer os.Remove(dataFile)
		}
	}

	if req.Verbose || plot {
		p.enrich(ctx, enrichRequest{
			Question:           req.Question,
			Query:              repair.Query,
			CustomInstructions: req.CustomInstructions,
			PlotDetails:        req.PlotDetails,
			Verbose:            req.Verbose,
			Plot:               plot,
			Tables:             result.Tables,
			Samples:            result.Samples,
			Execution:          exec,
			DataFile:           dataFile,
		}, &resp, timings)
	}

	if p.disclaimer {
		resp.Answer += disclaimerText
	}

	status := "ok"
	if !exec.OK() {
		status = "failed"
		if exec.Status == catalog.StatusEmptyResult {
			status = "empty"
		}
	}
	observability.QuestionsTotal.WithLabelValues("sql", status).Inc()

	resp.fillTimings(timings)
	return resp, nil
}

// generateTimed wraps query generation with its timing bucket.
func (p *Pipeline) generateTimed(ctx context.Context, req AskRequest, classification Classification, result retrieval.Result, timings observability.Timings) (GeneratedQuery, error) {
	start := time.Now()
	defer func() { timings.Record("llm_time", start) }()
	return p.generateQuery(ctx, req.Question, result.Tables, classification.FilterParams, req.CustomInstructions, result.Samples)
}
