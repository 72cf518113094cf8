// Package retrieval selects the schema subset relevant to a question: a
// ranked, deduplicated, permission-filtered and association-expanded set of
// views from the vector index, with sample values harvested per view.
package retrieval

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"askdata/internal/catalog"
	"askdata/internal/config"
	"askdata/internal/embedding"
	"askdata/internal/observability"
	"askdata/internal/schema"
	"askdata/internal/vectorstore"
)

// PermissionSource resolves which view ids a caller may access.
// *catalog.Client satisfies it.
type PermissionSource interface {
	AllowedViewIDs(ctx context.Context, creds catalog.Credentials, databases, tags []string) []schema.ID
}

// Retriever runs vector search over the schema index.
type Retriever struct {
	store  vectorstore.Store
	engine embedding.Engine
	perms  PermissionSource
	logger *zap.Logger

	viewsIndex  string
	sampleIndex string
	defaultK    int
	maxRounds   int
	sampleK     int
}

// NewRetriever wires a retriever from configuration.
func NewRetriever(store vectorstore.Store, engine embedding.Engine, perms PermissionSource, cfg config.Config, logger *zap.Logger) *Retriever {
	return &Retriever{
		store:       store,
		engine:      engine,
		perms:       perms,
		logger:      logger,
		viewsIndex:  cfg.VectorStore.ViewsIndex,
		sampleIndex: cfg.VectorStore.SampleIndex,
		defaultK:    cfg.Retrieval.K,
		maxRounds:   cfg.Retrieval.MaxRounds,
		sampleK:     cfg.Retrieval.SampleK,
	}
}

// Request selects what to retrieve and under whose permissions.
type Request struct {
	Question string

	// K bounds the vector search result set. Zero means the configured
	// default.
	K int

	// Databases and Tags scope both the search and the permission lookup.
	Databases []string
	Tags      []string

	Credentials catalog.Credentials

	// ForcedViews are view names the caller wants present regardless of
	// search ranking.
	ForcedViews []string

	// ExpandAssociations false together with ForcedViews pins the result to
	// exactly the forced views.
	ExpandAssociations bool
}

// Result is the retrieved schema context.
type Result struct {
	Tables  []schema.RelevantTable
	Samples schema.SampleData
}

// Retrieve embeds the question and resolves permissions concurrently, then
// searches the index with up to two refill rounds when permitted views were
// crowded out of the first page, expands associations and harvests sample
// rows per retrieved view.
func (r *Retriever) Retrieve(ctx context.Context, req Request) (Result, observability.Timings, error) {
	timings := observability.Timings{}

	if req.K <= 0 {
		req.K = r.defaultK
	}

	var vector []float32
	var allowed []schema.ID

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		vector, err = r.engine.Embed(gctx, req.Question)
		return err
	})
	g.Go(func() error {
		allowed = r.perms.AllowedViewIDs(gctx, req.Credentials, req.Databases, req.Tags)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Result{}, timings, err
	}

	// An empty permission set means no restriction was resolvable; searches
	// run unfiltered and association filtering is skipped.
	var permitted map[schema.ID]bool
	allowedIDs := make([]string, len(allowed))
	for i, id := range allowed {
		allowedIDs[i] = string(id)
	}
	if len(allowed) > 0 {
		permitted = make(map[schema.ID]bool, len(allowed))
		for _, id := range allowed {
			permitted[id] = true
		}
	}

	filter := vectorstore.Filter{
		Databases: req.Databases,
		Tags:      req.Tags,
		ViewIDs:   allowedIDs,
	}

	start := time.Now()
	hits, err := r.store.Search(ctx, r.viewsIndex, vector, req.K, filter)
	timings.Record("vector_store_search_time", start)
	if err != nil {
		return Result{}, timings, err
	}

	seen := make(map[schema.ID]bool)
	var tables []schema.RelevantTable
	appendHit := func(hit vectorstore.Result) {
		id := schema.ID(hit.Metadata.ViewID)
		if seen[id] {
			return
		}
		var doc schema.Doc
		if err := json.Unmarshal([]byte(hit.Metadata.ViewJSON), &doc); err != nil {
			r.logger.Warn("unparseable view descriptor", zap.String("view", hit.Metadata.ViewName), zap.Error(err))
			return
		}
		seen[id] = true
		tables = append(tables, schema.RelevantTable{
			ViewID:   id,
			ViewName: hit.Metadata.ViewName,
			ViewText: hit.Content,
			ViewJSON: schema.FilterAssociations(doc, permitted),
		})
	}
	for _, hit := range hits {
		appendHit(hit)
	}

	// Refill: chunked views can crowd the first page with duplicates. Search
	// the not-yet-seen permitted ids, bounded so the total never exceeds
	// maxRounds extra searches.
	for round := 0; len(tables) < req.K && len(allowed) > len(tables) && round < r.maxRounds; round++ {
		remaining := make([]string, 0, len(allowed))
		for _, id := range allowed {
			if !seen[id] {
				remaining = append(remaining, string(id))
			}
		}
		refillFilter := filter
		refillFilter.ViewIDs = remaining

		start := time.Now()
		refill, err := r.store.Search(ctx, r.viewsIndex, vector, req.K, refillFilter)
		timings.Record("vector_store_search_time", start)
		if err != nil {
			return Result{}, timings, err
		}
		if len(refill) == 0 {
			break
		}
		for _, hit := range refill {
			if len(tables) >= req.K {
				break
			}
			appendHit(hit)
		}
	}

	tables, err = r.expand(ctx, req, tables, seen, permitted, timings)
	if err != nil {
		return Result{}, timings, err
	}

	if !req.ExpandAssociations {
		tables = pinForced(tables, req.ForcedViews)
	}

	samples := r.harvestSamples(ctx, vector, tables, timings)
	return Result{Tables: tables, Samples: samples}, timings, nil
}

// expand appends association targets of the retrieved views and any forced
// views, fetched by id, permission filtered.
func (r *Retriever) expand(ctx context.Context, req Request, tables []schema.RelevantTable, seen map[schema.ID]bool, permitted map[schema.ID]bool, timings observability.Timings) ([]schema.RelevantTable, error) {
	extra := make(map[schema.ID]bool)
	for _, table := range tables {
		for _, assoc := range table.ViewJSON.Associations {
			if !seen[assoc.TableID] {
				extra[assoc.TableID] = true
			}
		}
	}

	if len(req.ForcedViews) > 0 {
		ids, err := r.store.ViewIDs(ctx, r.viewsIndex, req.ForcedViews)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if vid := schema.ID(id); !seen[vid] {
				extra[vid] = true
			}
		}
	}

	lookup := make([]string, 0, len(extra))
	for id := range extra {
		if permitted != nil && !permitted[id] {
			continue
		}
		lookup = append(lookup, string(id))
	}
	if len(lookup) == 0 {
		return tables, nil
	}

	start := time.Now()
	docs, err := r.store.Views(ctx, r.viewsIndex, lookup)
	timings.Record("vector_store_search_time", start)
	if err != nil {
		return nil, err
	}

	for _, hit := range docs {
		id := schema.ID(hit.Metadata.ViewID)
		if seen[id] {
			continue
		}
		var doc schema.Doc
		if err := json.Unmarshal([]byte(hit.Metadata.ViewJSON), &doc); err != nil {
			r.logger.Warn("unparseable view descriptor", zap.String("view", hit.Metadata.ViewName), zap.Error(err))
			continue
		}
		seen[id] = true
		tables = append(tables, schema.RelevantTable{
			ViewID:   id,
			ViewName: hit.Metadata.ViewName,
			ViewText: hit.Content,
			ViewJSON: schema.FilterAssociations(doc, permitted),
		})
	}
	return tables, nil
}

// pinForced restricts the result to exactly the forced views. Without
// forced views the pinned set is empty.
func pinForced(tables []schema.RelevantTable, forced []string) []schema.RelevantTable {
	if len(forced) == 0 {
		return nil
	}
	wanted := make(map[string]bool, len(forced))
	for _, name := range forced {
		wanted[name] = true
	}
	pinned := make([]schema.RelevantTable, 0, len(forced))
	for _, table := range tables {
		if wanted[table.ViewName] {
			pinned = append(pinned, table)
		}
	}
	return pinned
}

// harvestSamples searches the sample index per retrieved view and groups
// the row values by column. Sample misses are not errors.
func (r *Retriever) harvestSamples(ctx context.Context, vector []float32, tables []schema.RelevantTable, timings observability.Timings) schema.SampleData {
	if r.sampleK <= 0 {
		return nil
	}

	samples := make(schema.SampleData)
	for _, table := range tables {
		start := time.Now()
		rows, err := r.store.Search(ctx, r.sampleIndex, vector, r.sampleK, vectorstore.Filter{
			ViewIDs: []string{string(table.ViewID)},
		})
		timings.Record("vector_store_search_time", start)
		if err != nil {
			r.logger.Warn("sample data search failed", zap.String("view", table.ViewName), zap.Error(err))
			continue
		}
		if len(rows) == 0 {
			continue
		}

		columns := rows[0].Metadata.Columns
		bySample := make(map[string][]string, len(columns))
		for _, row := range rows {
			values := strings.Split(row.Content, ",")
			for i, col := range columns {
				if i < len(values) {
					bySample[col] = append(bySample[col], strings.TrimSpace(values[i]))
				}
			}
		}
		samples[table.ViewID] = bySample
	}
	if len(samples) == 0 {
		return nil
	}
	return samples
}
