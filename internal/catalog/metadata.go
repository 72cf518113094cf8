package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"askdata/internal/schema"
)

// pageSize is the page length of the paginated metadata API. Catalogs older
// than 9.1.0 return everything in one response.
const pageSize = 1000

// MetadataRequest selects which views to fetch and how much detail to carry.
// Exactly one of DatabaseName or TagName must be set.
type MetadataRequest struct {
	DatabaseName string
	TagName      string

	// ExamplesPerTable asks the catalog for that many sample rows per view.
	// Zero disables sampling.
	ExamplesPerTable int

	Associations       bool
	Descriptions       bool
	ColumnDescriptions bool

	// FilterTables lists view names to drop from the result.
	FilterTables []string
}

type metadataRequestBody struct {
	DataMode     string `json:"dataMode"`
	DataUsage    bool   `json:"dataUsage"`
	DatabaseName string `json:"databaseName,omitempty"`
	TagName      string `json:"tagName,omitempty"`

	DataUsageConfiguration *dataUsageConfiguration `json:"dataUsageConfiguration,omitempty"`

	Offset *int `json:"offset,omitempty"`
	Limit  *int `json:"limit,omitempty"`
}

type dataUsageConfiguration struct {
	TuplesToUse    int    `json:"tuplesToUse"`
	SamplingMethod string `json:"samplingMethod"`
}

// rawView is one view as the catalog describes it.
type rawView struct {
	ID           schema.ID   `json:"id"`
	Name         string      `json:"name"`
	DatabaseName string      `json:"databaseName"`
	Description  string      `json:"description"`
	Schema       []rawColumn `json:"schema"`

	ViewFieldDataList []struct {
		FieldName   string   `json:"fieldName"`
		FieldValues []string `json:"fieldValues"`
	} `json:"viewFieldDataList"`

	AssociationData []struct {
		Mapping                   string `json:"mapping"`
		ViewDetailsOfTheOtherView struct {
			ID           schema.ID `json:"id"`
			Name         string    `json:"name"`
			DatabaseName string    `json:"databaseName"`
		} `json:"viewDetailsOfTheOtherView"`
	} `json:"associationData"`

	TagDetails []schema.Tag `json:"tagDetails"`
}

type rawColumn struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	LogicalName string `json:"logicalName"`
	Description string `json:"description"`
	PrimaryKey  bool   `json:"primaryKey"`
	Nullable    bool   `json:"nullable"`
}

// ViewsMetadata fetches and normalizes view descriptors for one database or
// tag. It transparently handles both the legacy single-response API and the
// paginated API introduced in catalog 9.1.0.
func (c *Client) ViewsMetadata(ctx context.Context, creds Credentials, req MetadataRequest) ([]schema.Doc, error) {
	if (req.DatabaseName == "") == (req.TagName == "") {
		return nil, fmt.Errorf("exactly one of database name or tag name must be provided")
	}

	body := metadataRequestBody{
		DataUsage:    req.ExamplesPerTable > 0,
		DatabaseName: req.DatabaseName,
		TagName:      req.TagName,
	}
	if req.DatabaseName != "" {
		body.DataMode = "DATABASE"
	} else {
		body.DataMode = "TAG"
	}
	if req.ExamplesPerTable > 0 {
		body.DataUsageConfiguration = &dataUsageConfiguration{
			TuplesToUse:    req.ExamplesPerTable,
			SamplingMethod: "random",
		}
	}

	views, paginated, err := c.fetchViewsPage(ctx, creds, body)
	if err != nil {
		return nil, err
	}

	// A wrapped response of exactly pageSize views means the paginated API,
	// keep requesting pages until a short one arrives.
	if paginated && len(views) >= pageSize {
		c.logger.Info("paginated metadata API detected", zap.Int("views", len(views)))
		offset := pageSize
		for {
			page := body
			pageOffset, pageLimit := offset, pageSize
			page.Offset, page.Limit = &pageOffset, &pageLimit

			pageViews, _, err := c.fetchViewsPage(ctx, creds, page)
			if err != nil {
				return nil, err
			}
			if len(pageViews) == 0 {
				break
			}
			views = append(views, pageViews...)
			offset += pageSize
			if len(pageViews) < pageSize {
				break
			}
		}
	}

	c.logger.Info("retrieved views metadata",
		zap.Int("views", len(views)),
		zap.String("database", req.DatabaseName),
		zap.String("tag", req.TagName))

	return normalizeViews(views, req), nil
}

// fetchViewsPage performs one metadata request. The second return reports
// whether the response used the viewsDetails wrapper of the paginated API.
func (c *Client) fetchViewsPage(ctx context.Context, creds Credentials, body metadataRequestBody) ([]rawView, bool, error) {
	status, data, err := c.postJSON(ctx, "/public/api/askaquestion/data", body, creds)
	if err != nil {
		return nil, false, fmt.Errorf("failed to connect to the server: %w", err)
	}
	if status < 200 || status >= 300 {
		return nil, false, fmt.Errorf("views metadata request failed: %s", errorMessage(data))
	}

	// Legacy: a bare array. Paginated: {"viewsDetails": [...]}.
	var legacy []rawView
	if err := json.Unmarshal(data, &legacy); err == nil {
		return legacy, false, nil
	}

	var wrapped struct {
		ViewsDetails []rawView `json:"viewsDetails"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil || wrapped.ViewsDetails == nil {
		return nil, false, fmt.Errorf("unexpected response format from server")
	}
	return wrapped.ViewsDetails, true, nil
}

// normalizeViews converts catalog view descriptors into schema documents:
// qualified table names, sample values merged into their columns and join
// mappings rewritten as qualified equality conditions.
func normalizeViews(views []rawView, req MetadataRequest) []schema.Doc {
	skip := make(map[string]bool, len(req.FilterTables))
	for _, name := range req.FilterTables {
		skip[name] = true
	}

	docs := make([]schema.Doc, 0, len(views))
	for _, view := range views {
		if skip[view.Name] {
			continue
		}

		doc := schema.Doc{
			ID:         view.ID,
			TableName:  strings.ReplaceAll(view.DatabaseName+"."+view.Name, `"`, ""),
			TagDetails: view.TagDetails,
		}
		if req.Descriptions {
			doc.Description = view.Description
		}

		samples := make(map[string][]string, len(view.ViewFieldDataList))
		for _, field := range view.ViewFieldDataList {
			samples[field.FieldName] = field.FieldValues
		}

		doc.Schema = make([]schema.Column, len(view.Schema))
		for i, col := range view.Schema {
			column := schema.Column{
				ColumnName: col.Name,
				Type:       col.Type,
				PrimaryKey: col.PrimaryKey,
				Nullable:   col.Nullable,
				SampleData: samples[col.Name],
			}
			if req.ColumnDescriptions {
				column.LogicalName = col.LogicalName
				column.Description = col.Description
			}
			doc.Schema[i] = column
		}

		if req.Associations {
			for _, assoc := range view.AssociationData {
				other := assoc.ViewDetailsOfTheOtherView
				doc.Associations = append(doc.Associations, schema.Association{
					TableName: other.DatabaseName + "." + other.Name,
					TableID:   other.ID,
					Where:     qualifyMapping(assoc.Mapping, other.DatabaseName),
				})
			}
		}

		docs = append(docs, doc)
	}
	return docs
}

// qualifyMapping rewrites a catalog join mapping like "orders.id=lines.oid"
// into "db.orders.id = db.lines.oid".
func qualifyMapping(mapping, database string) string {
	sides := strings.Split(mapping, "=")
	for i, side := range sides {
		sides[i] = database + "." + side
	}
	return strings.Join(sides, " = ")
}
