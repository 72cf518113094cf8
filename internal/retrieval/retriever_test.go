package retrieval

import (
	"context"
	"encoding/json"
	"testing"

	"go.uber.org/zap"

	"askdata/internal/catalog"
	"askdata/internal/config"
	"askdata/internal/schema"
	"askdata/internal/vectorstore"
)

type fixedEngine struct {
	vectors map[string][]float32
}

func (e fixedEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := e.vectors[text]; ok {
		return vec, nil
	}
	return []float32{1, 0, 0}, nil
}

func (e fixedEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i], _ = e.Embed(ctx, text)
	}
	return out, nil
}

func (fixedEngine) Dimensions() int { return 3 }
func (fixedEngine) Name() string    { return "fixed" }

type fixedPerms struct {
	ids []schema.ID
}

func (p fixedPerms) AllowedViewIDs(ctx context.Context, creds catalog.Credentials, databases, tags []string) []schema.ID {
	return p.ids
}

func viewDoc(t *testing.T, id, name string, assocs ...schema.Association) vectorstore.Document {
	t.Helper()
	doc := schema.Doc{
		ID:        schema.ID(id),
		TableName: name,
		Schema:    []schema.Column{{ColumnName: "id", Type: "int"}},
	}
	doc.Associations = assocs
	viewJSON, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return vectorstore.Document{
		ID:      id,
		Content: "=====Table " + name + "=====",
		Metadata: vectorstore.Metadata{
			ViewID:       id,
			ViewName:     name,
			DatabaseName: doc.DatabaseName(),
			ViewJSON:     string(viewJSON),
		},
	}
}

func newRetriever(t *testing.T, perms PermissionSource) (*Retriever, *vectorstore.SQLiteStore, config.Config) {
	t.Helper()
	store, err := vectorstore.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := config.DefaultConfig()
	engine := fixedEngine{}
	return NewRetriever(store, engine, perms, cfg, zap.NewNop()), store, cfg
}

func seed(t *testing.T, store *vectorstore.SQLiteStore, index string, docs ...vectorstore.Document) {
	t.Helper()
	if err := store.Upsert(context.Background(), index, docs); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

func TestRetrieveDedupAndExpansion(t *testing.T) {
	retriever, store, cfg := newRetriever(t, fixedPerms{ids: []schema.ID{"1", "2", "3"}})
	ctx := context.Background()

	orders := viewDoc(t, "1", "sales.orders",
		schema.Association{TableName: "sales.customers", TableID: "2", Where: "sales.orders.cid = sales.customers.id"},
		schema.Association{TableName: "sales.secrets", TableID: "9", Where: "sales.orders.sid = sales.secrets.id"},
	)
	orders.Embedding = []float32{1, 0, 0}
	customers := viewDoc(t, "2", "sales.customers")
	customers.Embedding = []float32{0, 1, 0}
	sensors := viewDoc(t, "3", "iot.sensors")
	sensors.Embedding = []float32{0, 0, 1}
	seed(t, store, cfg.VectorStore.ViewsIndex, orders, customers, sensors)

	result, timings, err := retriever.Retrieve(ctx, Request{
		Question:           "total order amount",
		K:                  1,
		ExpandAssociations: true,
	})
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}

	if len(result.Tables) != 2 {
		t.Fatalf("expected search hit plus association, got %d tables", len(result.Tables))
	}
	if result.Tables[0].ViewID != "1" || result.Tables[1].ViewID != "2" {
		t.Fatalf("unexpected tables: %+v", result.Tables)
	}

	// The association to view 9 is outside the permitted set and must not
	// leak into the rendered schema.
	for _, assoc := range result.Tables[0].ViewJSON.Associations {
		if assoc.TableID == "9" {
			t.Fatal("non-permitted association leaked")
		}
	}
	if len(result.Tables[0].ViewJSON.Associations) != 1 {
		t.Fatalf("expected 1 permitted association, got %d", len(result.Tables[0].ViewJSON.Associations))
	}

	if timings.Get("vector_store_search_time") <= 0 {
		t.Fatal("search timing not recorded")
	}
}

func TestRetrieveRefillRounds(t *testing.T) {
	retriever, store, cfg := newRetriever(t, fixedPerms{ids: []schema.ID{"1", "2"}})

	// Two chunks of the same view rank highest, crowding out view 2 in the
	// first page. The refill round must surface view 2.
	chunkA := viewDoc(t, "1", "sales.orders")
	chunkA.ID = "1_chunk_0"
	chunkA.Embedding = []float32{1, 0, 0}
	chunkB := viewDoc(t, "1", "sales.orders")
	chunkB.ID = "1_chunk_1"
	chunkB.Embedding = []float32{0.99, 0.01, 0}
	other := viewDoc(t, "2", "sales.customers")
	other.Embedding = []float32{0.5, 0.5, 0}
	seed(t, store, cfg.VectorStore.ViewsIndex, chunkA, chunkB, other)

	result, _, err := retriever.Retrieve(context.Background(), Request{
		Question:           "orders",
		K:                  2,
		ExpandAssociations: true,
	})
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	if len(result.Tables) != 2 {
		t.Fatalf("expected 2 tables after refill, got %d", len(result.Tables))
	}
	if result.Tables[0].ViewID != "1" || result.Tables[1].ViewID != "2" {
		t.Fatalf("unexpected tables %+v", result.Tables)
	}
}

func TestRetrieveForcedViewPinning(t *testing.T) {
	retriever, store, cfg := newRetriever(t, fixedPerms{ids: []schema.ID{"1", "2"}})

	orders := viewDoc(t, "1", "sales.orders")
	orders.Embedding = []float32{1, 0, 0}
	customers := viewDoc(t, "2", "sales.customers")
	customers.Embedding = []float32{0, 1, 0}
	seed(t, store, cfg.VectorStore.ViewsIndex, orders, customers)

	result, _, err := retriever.Retrieve(context.Background(), Request{
		Question:           "anything",
		K:                  2,
		ForcedViews:        []string{"sales.customers"},
		ExpandAssociations: false,
	})
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	if len(result.Tables) != 1 || result.Tables[0].ViewName != "sales.customers" {
		t.Fatalf("pinning failed: %+v", result.Tables)
	}
}

func TestRetrieveSampleHarvest(t *testing.T) {
	retriever, store, cfg := newRetriever(t, fixedPerms{ids: []schema.ID{"1"}})
	ctx := context.Background()

	orders := viewDoc(t, "1", "sales.orders")
	orders.Embedding = []float32{1, 0, 0}
	seed(t, store, cfg.VectorStore.ViewsIndex, orders)

	seed(t, store, cfg.VectorStore.SampleIndex,
		vectorstore.Document{
			ID: "1_row_0", Content: "1, OPEN",
			Metadata:  vectorstore.Metadata{ViewID: "1", ViewName: "sales.orders", Columns: []string{"id", "status"}},
			Embedding: []float32{1, 0, 0},
		},
		vectorstore.Document{
			ID: "1_row_1", Content: "2, CLOSED",
			Metadata:  vectorstore.Metadata{ViewID: "1", ViewName: "sales.orders", Columns: []string{"id", "status"}},
			Embedding: []float32{0.9, 0.1, 0},
		},
	)

	result, _, err := retriever.Retrieve(ctx, Request{Question: "orders", K: 1, ExpandAssociations: true})
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	got := result.Samples[schema.ID("1")]
	if got == nil {
		t.Fatal("sample data missing")
	}
	if len(got["status"]) != 2 || got["status"][0] != "OPEN" {
		t.Fatalf("unexpected samples %v", got)
	}
}

func TestRetrieveUnrestrictedWithoutPermissions(t *testing.T) {
	retriever, store, cfg := newRetriever(t, fixedPerms{})

	orders := viewDoc(t, "1", "sales.orders",
		schema.Association{TableName: "sales.customers", TableID: "2", Where: "w"})
	orders.Embedding = []float32{1, 0, 0}
	customers := viewDoc(t, "2", "sales.customers")
	customers.Embedding = []float32{0, 1, 0}
	seed(t, store, cfg.VectorStore.ViewsIndex, orders, customers)

	result, _, err := retriever.Retrieve(context.Background(), Request{
		Question:           "orders",
		K:                  1,
		ExpandAssociations: true,
	})
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	// No permission set resolved: associations stay and still expand.
	if len(result.Tables) != 2 {
		t.Fatalf("expected expansion without permissions, got %d tables", len(result.Tables))
	}
	if len(result.Tables[0].ViewJSON.Associations) != 1 {
		t.Fatal("associations dropped without a permission set")
	}
}

// countingStore stays under-filled forever: every search returns the same
// single view no matter the filter, so refill rounds never make progress.
type countingStore struct {
	hit      vectorstore.Document
	searches map[string]int
}

func (s *countingStore) Upsert(ctx context.Context, index string, docs []vectorstore.Document) error {
	return nil
}

func (s *countingStore) Search(ctx context.Context, index string, vector []float32, k int, filter vectorstore.Filter) ([]vectorstore.Result, error) {
	s.searches[index]++
	return []vectorstore.Result{{Document: s.hit, Similarity: 0.9}}, nil
}

func (s *countingStore) Views(ctx context.Context, index string, viewIDs []string) ([]vectorstore.Document, error) {
	return nil, nil
}

func (s *countingStore) ViewIDs(ctx context.Context, index string, names []string) (map[string]string, error) {
	return nil, nil
}

func (s *countingStore) DeleteIndex(ctx context.Context, index string) error { return nil }
func (s *countingStore) Close() error                                        { return nil }

func TestRetrieveSearchCallsBounded(t *testing.T) {
	store := &countingStore{
		hit:      viewDoc(t, "1", "sales.orders"),
		searches: map[string]int{},
	}
	cfg := config.DefaultConfig()
	cfg.Retrieval.SampleK = 0
	retriever := NewRetriever(store, fixedEngine{}, fixedPerms{ids: []schema.ID{"1", "2", "3"}}, cfg, zap.NewNop())

	result, _, err := retriever.Retrieve(context.Background(), Request{
		Question:           "total order amount",
		K:                  2,
		ExpandAssociations: true,
	})
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}

	if len(result.Tables) != 1 {
		t.Fatalf("expected the single deduplicated view, got %d tables", len(result.Tables))
	}

	// One initial search plus at most two refill rounds, even though the
	// result set never fills up.
	if got := store.searches[cfg.VectorStore.ViewsIndex]; got != 3 {
		t.Errorf("views index searched %d times, want 3", got)
	}
}
