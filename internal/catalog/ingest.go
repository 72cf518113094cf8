package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"askdata/internal/config"
	"askdata/internal/embedding"
	"askdata/internal/schema"
	"askdata/internal/vectorstore"
)

// Ingestor loads view metadata from the catalog into the vector indexes:
// one summary document per view (chunked when it exceeds the embedding
// token limit) and one document per sample row.
type Ingestor struct {
	catalog *Client
	store   vectorstore.Store
	engine  embedding.Engine
	logger  *zap.Logger

	viewsIndex  string
	sampleIndex string
	chunkTokens int
}

// NewIngestor wires an ingestor from configuration.
func NewIngestor(client *Client, store vectorstore.Store, engine embedding.Engine, cfg config.Config, logger *zap.Logger) *Ingestor {
	return &Ingestor{
		catalog:     client,
		store:       store,
		engine:      engine,
		logger:      logger,
		viewsIndex:  cfg.VectorStore.ViewsIndex,
		sampleIndex: cfg.VectorStore.SampleIndex,
		chunkTokens: cfg.Retrieval.ChunkTokens,
	}
}

// IngestReport summarizes one ingestion run.
type IngestReport struct {
	Views      int      `json:"views"`
	Documents  int      `json:"documents"`
	SampleRows int      `json:"sample_rows"`
	Summaries  []string `json:"summaries"`
}

// Ingest fetches metadata for one database or tag and indexes it.
func (ing *Ingestor) Ingest(ctx context.Context, creds Credentials, req MetadataRequest) (IngestReport, error) {
	docs, err := ing.catalog.ViewsMetadata(ctx, creds, req)
	if err != nil {
		return IngestReport{}, err
	}
	if len(docs) == 0 {
		return IngestReport{}, fmt.Errorf("empty response from the Data Catalog")
	}
	return ing.IngestDocs(ctx, docs)
}

// IngestDocs indexes already-fetched view descriptors. Failures on
// individual views are logged and skipped so one bad view does not sink
// the whole run.
func (ing *Ingestor) IngestDocs(ctx context.Context, docs []schema.Doc) (IngestReport, error) {
	report := IngestReport{Views: len(docs)}
	for _, doc := range docs {
		report.Summaries = append(report.Summaries, schema.Summary(doc))

		stored, err := ing.indexView(ctx, doc)
		if err != nil {
			ing.logger.Error("failed to index view", zap.String("view", doc.TableName), zap.Error(err))
			continue
		}
		report.Documents += stored

		rows, err := ing.indexSampleRows(ctx, doc)
		if err != nil {
			ing.logger.Error("failed to index sample rows", zap.String("view", doc.TableName), zap.Error(err))
			continue
		}
		report.SampleRows += rows
	}

	ing.logger.Info("ingestion finished",
		zap.Int("views", report.Views),
		zap.Int("documents", report.Documents),
		zap.Int("sample_rows", report.SampleRows))
	return report, nil
}

// indexView embeds and stores the summary of one view, split into chunks
// when it exceeds the embedding token limit. Every chunk carries the full
// view descriptor so any matching chunk can reconstruct the schema.
func (ing *Ingestor) indexView(ctx context.Context, doc schema.Doc) (int, error) {
	contents := []string{schema.Summary(doc)}
	if ing.chunkTokens > 0 && schema.EstimateTokens(contents[0]) > ing.chunkTokens {
		contents = schema.SummaryChunks(doc, ing.chunkTokens)
	}

	viewJSON, err := json.Marshal(doc)
	if err != nil {
		return 0, err
	}

	vectors, err := ing.engine.EmbedBatch(ctx, contents)
	if err != nil {
		return 0, err
	}

	docs := make([]vectorstore.Document, len(contents))
	for i, content := range contents {
		id := string(doc.ID)
		if len(contents) > 1 {
			id = fmt.Sprintf("%s_chunk_%d", doc.ID, i)
		}
		docs[i] = vectorstore.Document{
			ID:      id,
			Content: content,
			Metadata: vectorstore.Metadata{
				ViewID:       string(doc.ID),
				ViewName:     doc.TableName,
				DatabaseName: doc.DatabaseName(),
				TagNames:     doc.TagNames(),
				ViewJSON:     string(viewJSON),
			},
			Embedding: vectors[i],
		}
	}
	if err := ing.store.Upsert(ctx, ing.viewsIndex, docs); err != nil {
		return 0, err
	}
	return len(docs), nil
}

// indexSampleRows stores one document per example row, content being the
// comma-joined values in column order. The retrieval layer searches these
// per view to ground literal formatting.
func (ing *Ingestor) indexSampleRows(ctx context.Context, doc schema.Doc) (int, error) {
	columns := make([]string, 0, len(doc.Schema))
	depth := 0
	for _, col := range doc.Schema {
		columns = append(columns, col.ColumnName)
		if len(col.SampleData) > depth {
			depth = len(col.SampleData)
		}
	}
	if depth == 0 {
		return 0, nil
	}

	contents := make([]string, depth)
	for i := range contents {
		values := make([]string, len(doc.Schema))
		for j, col := range doc.Schema {
			if i < len(col.SampleData) {
				values[j] = col.SampleData[i]
			}
		}
		contents[i] = strings.Join(values, ", ")
	}

	vectors, err := ing.engine.EmbedBatch(ctx, contents)
	if err != nil {
		return 0, err
	}

	docs := make([]vectorstore.Document, depth)
	for i, content := range contents {
		docs[i] = vectorstore.Document{
			ID:      fmt.Sprintf("%s_row_%d", doc.ID, i),
			Content: content,
			Metadata: vectorstore.Metadata{
				ViewID:       string(doc.ID),
				ViewName:     doc.TableName,
				DatabaseName: doc.DatabaseName(),
				Columns:      columns,
			},
			Embedding: vectors[i],
		}
	}
	if err := ing.store.Upsert(ctx, ing.sampleIndex, docs); err != nil {
		return 0, err
	}
	return depth, nil
}
