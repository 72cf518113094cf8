package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// DefaultRowLimit bounds rows returned by Execute when the caller passes 0.
const DefaultRowLimit = 100

// Cell is one column value of a result row.
type Cell struct {
	ColumnName string `json:"columnName"`
	Value      any    `json:"value"`
}

// Rows maps "Row 1", "Row 2", ... to their column values, the readable
// shape the answer endpoints return.
type Rows map[string][]Cell

// StatusEmptyResult is the pseudo status for a query that executed but
// produced no usable rows. It is not an HTTP status the catalog sends; the
// repair loop keys off it to route to the reviewer instead of the fixer.
const StatusEmptyResult = 499

// Execution is the outcome of one VQL run.
type Execution struct {
	// Status is http.StatusOK on success, StatusEmptyResult for empty
	// results, otherwise the error status (500 for transport failures).
	Status int

	// Rows holds the parsed result on success.
	Rows Rows

	// Message describes the failure or the empty result.
	Message string
}

// OK reports whether the query returned usable rows.
func (e Execution) OK() bool {
	return e.Status == http.StatusOK
}

type executeRequest struct {
	VQL   string `json:"vql"`
	Limit int    `json:"limit"`
}

type executeResponse struct {
	Rows []struct {
		Values []struct {
			Column string `json:"column"`
			Value  any    `json:"value"`
		} `json:"values"`
	} `json:"rows"`
}

// Execute runs a VQL query through the catalog's execution endpoint.
// Execution failures are reported in the returned Execution, not as an
// error; the error return is reserved for request building and context
// cancellation.
func (c *Client) Execute(ctx context.Context, vql string, limit int, creds Credentials) (Execution, error) {
	if limit <= 0 {
		limit = DefaultRowLimit
	}

	status, body, err := c.postJSON(ctx, "/public/api/askaquestion/execute", executeRequest{VQL: vql, Limit: limit}, creds)
	if err != nil {
		if ctx.Err() != nil {
			return Execution{}, ctx.Err()
		}
		msg := fmt.Sprintf("Failed to connect to the server: %v", err)
		c.logger.Error("vql execution request failed", zap.Error(err), zap.String("vql", vql))
		return Execution{Status: http.StatusInternalServerError, Message: msg}, nil
	}

	if status < 200 || status >= 300 {
		msg := errorMessage(body)
		c.logger.Error("vql execution failed", zap.Int("status", status), zap.String("error", msg))
		return Execution{Status: status, Message: msg}, nil
	}

	var parsed executeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Execution{Status: http.StatusInternalServerError, Message: fmt.Sprintf("Invalid JSON response from server: %v", err)}, nil
	}

	if len(parsed.Rows) == 0 {
		c.logger.Info("query returned no results")
		return Execution{
			Status:  StatusEmptyResult,
			Message: "Query executed succesfully but returned an empty result (no rows).",
		}, nil
	}

	rows := make(Rows, len(parsed.Rows))
	for i, row := range parsed.Rows {
		cells := make([]Cell, len(row.Values))
		for j, v := range row.Values {
			cells[j] = Cell{ColumnName: v.Column, Value: v.Value}
		}
		rows[fmt.Sprintf("Row %d", i+1)] = cells
	}

	// A single row with a single zero or null cell usually means an
	// aggregate over no matching data. Treat it like an empty result so the
	// reviewer gets a chance to rework the query.
	if len(parsed.Rows) == 1 && len(parsed.Rows[0].Values) == 1 {
		v := parsed.Rows[0].Values[0].Value
		if v == nil || fmt.Sprintf("%v", v) == "0" {
			c.logger.Info("query returned a single zero or null value")
			return Execution{
				Status:  StatusEmptyResult,
				Rows:    rows,
				Message: fmt.Sprintf("Query executed succesfully but returned a single row with a value of 0 or null: %v", rows),
			}, nil
		}
	}

	return Execution{Status: status, Rows: rows}, nil
}
