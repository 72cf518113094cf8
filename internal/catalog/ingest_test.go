package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"askdata/internal/config"
	"askdata/internal/vectorstore"
)

type stubEngine struct{}

func (stubEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1, 0}, nil
}

func (e stubEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, _ := e.Embed(ctx, text)
		out[i] = vec
	}
	return out, nil
}

func (stubEngine) Dimensions() int { return 3 }
func (stubEngine) Name() string    { return "stub" }

func TestIngest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{
				"id":           "7",
				"name":         "orders",
				"databaseName": "sales",
				"description":  "Orders",
				"schema": []map[string]any{
					{"name": "id", "type": "int"},
					{"name": "status", "type": "text"},
				},
				"viewFieldDataList": []map[string]any{
					{"fieldName": "id", "fieldValues": []string{"1", "2"}},
					{"fieldName": "status", "fieldValues": []string{"OPEN", "CLOSED"}},
				},
			},
		})
	}))
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.Catalog.URL = server.URL

	store, err := vectorstore.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	client := NewClient(cfg.Catalog, zap.NewNop())
	ing := NewIngestor(client, store, stubEngine{}, cfg, zap.NewNop())

	report, err := ing.Ingest(context.Background(), basicCreds(), MetadataRequest{
		DatabaseName:       "sales",
		ExamplesPerTable:   2,
		Associations:       true,
		Descriptions:       true,
		ColumnDescriptions: true,
	})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if report.Views != 1 || report.Documents != 1 || report.SampleRows != 2 {
		t.Fatalf("unexpected report %+v", report)
	}

	ctx := context.Background()
	docs, err := store.Views(ctx, cfg.VectorStore.ViewsIndex, []string{"7"})
	if err != nil {
		t.Fatalf("views lookup failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 stored view doc, got %d", len(docs))
	}
	if !strings.Contains(docs[0].Content, "Table sales.orders") {
		t.Fatalf("summary content missing: %q", docs[0].Content)
	}
	if docs[0].Metadata.ViewJSON == "" {
		t.Fatal("view json metadata missing")
	}

	samples, err := store.Search(ctx, cfg.VectorStore.SampleIndex, []float32{1, 1, 0}, 10, vectorstore.Filter{ViewIDs: []string{"7"}})
	if err != nil {
		t.Fatalf("sample search failed: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 sample rows, got %d", len(samples))
	}
	if len(samples[0].Metadata.Columns) != 2 {
		t.Fatalf("sample columns missing: %+v", samples[0].Metadata)
	}
	for _, sample := range samples {
		if !strings.Contains(sample.Content, ", ") {
			t.Fatalf("sample row not comma joined: %q", sample.Content)
		}
	}
}

func TestIngestEmptyCatalog(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{})
	}))
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.Catalog.URL = server.URL

	store, err := vectorstore.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ing := NewIngestor(NewClient(cfg.Catalog, zap.NewNop()), store, stubEngine{}, cfg, zap.NewNop())
	if _, err := ing.Ingest(context.Background(), basicCreds(), MetadataRequest{DatabaseName: "sales"}); err == nil {
		t.Fatal("expected error for empty catalog response")
	}
}
