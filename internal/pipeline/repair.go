package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"askdata/internal/catalog"
	"askdata/internal/llm"
	"askdata/internal/observability"
	"askdata/internal/schema"
)

const noQueryMessage = "No VQL query was generated."

// repairResult is the terminal state of the repair loop.
type repairResult struct {
	Query     string
	Execution catalog.Execution
	Usage     llm.Usage
}

// runRepairLoop executes the generated query and repairs it on failure, up
// to maxRepairAttempts times. Status 500 routes to the fixer, status 499 to the
// reviewer. Once a repair turn exists the conversation continues instead of
// restarting cold: the new error is appended as a human turn and the whole
// history replayed, so the model sees its own earlier attempt.
func (p *Pipeline) runRepairLoop(ctx context.Context, question string, gen GeneratedQuery, tables []schema.RelevantTable, samples schema.SampleData, creds catalog.Credentials, timings observability.Timings) (repairResult, error) {
	usage := llm.Usage{}

	// Pre-flight lint. When the query is already clean this is a no-op and
	// the loop starts from the generated query unchanged.
	start := time.Now()
	fix, err := p.fixQuery(ctx, question, gen.Query, tables, "", nil, nil, gen.Explanation, samples)
	timings.Record("llm_time", start)
	if err != nil {
		return repairResult{}, err
	}
	usage = usage.Add(fix.Usage)

	query := fix.Query
	history := fix.History
	original := query

	var exec catalog.Execution
	for attempt := 0; attempt < p.maxRepairAttempts; attempt++ {
		exec = p.executeQuery(ctx, query, creds, timings)
		if exec.Status != catalog.StatusEmptyResult && exec.Status != http.StatusInternalServerError {
			break
		}

		start := time.Now()
		query, history, err = p.repairStep(ctx, question, query, exec, tables, history, gen.Explanation, samples, &usage)
		timings.Record("llm_time", start)
		if err != nil {
			return repairResult{}, err
		}

		// The reviewer approving the query means the empty result is real.
		// Restore the pre-repair query in case an earlier fixer turn
		// regressed it.
		if query == "OK" {
			query = original
			break
		}
	}

	// The loop left a repaired query that has not run yet, or an approved
	// query to re-execute. Run it once more for the final verdict.
	if exec.Status == catalog.StatusEmptyResult || exec.Status == http.StatusInternalServerError {
		exec = p.executeQuery(ctx, query, creds, timings)
	}

	return repairResult{Query: query, Execution: exec, Usage: usage}, nil
}

// repairStep produces the next candidate query after a failed execution.
func (p *Pipeline) repairStep(ctx context.Context, question, query string, exec catalog.Execution, tables []schema.RelevantTable, history History, explanation string, samples schema.SampleData, usage *llm.Usage) (string, History, error) {
	if len(history) > 0 {
		continued := history.With(llm.RoleHuman,
			fmt.Sprintf("Your response resulted in the following error %d: %s", exec.Status, exec.Message))

		response, turnUsage, err := p.sqlGen.CompleteConversation(ctx, continued.Turns())
		p.countTokens(turnUsage)
		if err != nil {
			return "", nil, err
		}
		*usage = usage.Add(turnUsage)
		observability.RepairAttemptsTotal.WithLabelValues("dialogue").Inc()

		next := extractTag(recoverQueryTags(response), "vql", "")
		return next, continued.With(llm.RoleAI, response), nil
	}

	var fix fixOutcome
	var err error
	switch exec.Status {
	case http.StatusInternalServerError:
		fix, err = p.fixQuery(ctx, question, query, tables, exec.Message, nil, history, explanation, samples)
	case catalog.StatusEmptyResult:
		fix, err = p.reviewQuery(ctx, question, query, tables, history, samples)
	}
	if err != nil {
		return "", nil, err
	}
	*usage = usage.Add(fix.Usage)
	return fix.Query, fix.History, nil
}

// executeQuery runs one query through the catalog, recording the execution
// timing. An empty query never reaches the catalog.
func (p *Pipeline) executeQuery(ctx context.Context, query string, creds catalog.Credentials, timings observability.Timings) catalog.Execution {
	if query == "" {
		return catalog.Execution{Status: http.StatusInternalServerError, Message: noQueryMessage}
	}

	start := time.Now()
	exec, err := p.executor.Execute(ctx, query, p.rowLimit, creds)
	timings.Record("vql_execution_time", start)
	if err != nil {
		p.logger.Error("query execution aborted", zap.Error(err))
		return catalog.Execution{Status: http.StatusInternalServerError, Message: err.Error()}
	}
	return exec
}
