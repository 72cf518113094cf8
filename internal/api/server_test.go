package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"go.uber.org/zap"

	"askdata/internal/catalog"
	"askdata/internal/config"
	"askdata/internal/pipeline"
	"askdata/internal/schema"
	"askdata/internal/vectorstore"
)

type fakeAnswerer struct {
	mu       sync.Mutex
	requests []pipeline.AskRequest
	response pipeline.Response
	err      error
}

func (f *fakeAnswerer) Answer(ctx context.Context, req pipeline.AskRequest) (pipeline.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.response, f.err
}

func (f *fakeAnswerer) last(t *testing.T) pipeline.AskRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatal("answerer never called")
	}
	return f.requests[len(f.requests)-1]
}

type fakeStore struct {
	mu         sync.Mutex
	results    []vectorstore.Result
	lastFilter vectorstore.Filter
}

func (f *fakeStore) Upsert(ctx context.Context, index string, docs []vectorstore.Document) error {
	return nil
}

func (f *fakeStore) Search(ctx context.Context, index string, vector []float32, k int, filter vectorstore.Filter) ([]vectorstore.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter
	return f.results, nil
}

func (f *fakeStore) Views(ctx context.Context, index string, viewIDs []string) ([]vectorstore.Document, error) {
	return nil, nil
}

func (f *fakeStore) ViewIDs(ctx context.Context, index string, names []string) (map[string]string, error) {
	return nil, nil
}

func (f *fakeStore) DeleteIndex(ctx context.Context, index string) error { return nil }
func (f *fakeStore) Close() error                                        { return nil }

type fakeEngine struct{}

func (fakeEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (fakeEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (fakeEngine) Dimensions() int { return 3 }
func (fakeEngine) Name() string    { return "fake" }

type fakePerms struct {
	ids []schema.ID
}

func (f fakePerms) AllowedViewIDs(ctx context.Context, creds catalog.Credentials, databases, tags []string) []schema.ID {
	return f.ids
}

type fakeMetadata struct {
	mu       sync.Mutex
	docs     map[string][]schema.Doc
	requests []catalog.MetadataRequest
}

func (f *fakeMetadata) ViewsMetadata(ctx context.Context, creds catalog.Credentials, req catalog.MetadataRequest) ([]schema.Doc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	key := req.DatabaseName
	if key == "" {
		key = req.TagName
	}
	return f.docs[key], nil
}

type fakeIndexer struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeIndexer) IngestDocs(ctx context.Context, docs []schema.Doc) (catalog.IngestReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return catalog.IngestReport{Views: len(docs)}, nil
}

type serverFixture struct {
	answerer *fakeAnswerer
	store    *fakeStore
	metadata *fakeMetadata
	indexer  *fakeIndexer
	handler  http.Handler
}

func newFixture(perms fakePerms) *serverFixture {
	f := &serverFixture{
		answerer: &fakeAnswerer{},
		store:    &fakeStore{},
		metadata: &fakeMetadata{docs: map[string][]schema.Doc{}},
		indexer:  &fakeIndexer{},
	}
	cfg := config.DefaultConfig()
	srv := NewServer(f.answerer, f.store, fakeEngine{}, perms, f.metadata, f.indexer, cfg, zap.NewNop())
	f.handler = srv.Router()
	return f
}

func do(t *testing.T, handler http.Handler, method, target string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if authed {
		req.SetBasicAuth("admin", "admin")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAnswerRequiresAuth(t *testing.T) {
	f := newFixture(fakePerms{})

	rec := do(t, f.handler, http.MethodGet, "/answerQuestion?question=hi", nil, false)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAnswerQuestionGet(t *testing.T) {
	f := newFixture(fakePerms{})
	f.answerer.response = pipeline.Response{Answer: "42"}

	rec := do(t, f.handler, http.MethodGet,
		"/answerQuestion?question=total+loans&vdp_database_names=bank,shop&plot=true", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	req := f.answerer.last(t)
	if req.Question != "total loans" {
		t.Errorf("question = %q", req.Question)
	}
	if len(req.Databases) != 2 || req.Databases[0] != "bank" || req.Databases[1] != "shop" {
		t.Errorf("databases = %v", req.Databases)
	}
	if !req.Verbose {
		t.Error("verbose must default to true")
	}
	if !req.ExpandAssociations {
		t.Error("expansion must default to true")
	}
	if !req.Plot {
		t.Error("plot flag lost")
	}
	if req.Credentials.Username != "admin" {
		t.Errorf("credentials not forwarded: %+v", req.Credentials)
	}

	var resp pipeline.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.Answer != "42" {
		t.Errorf("answer = %q", resp.Answer)
	}
}

func TestAnswerDataQuestionForcesMode(t *testing.T) {
	f := newFixture(fakePerms{})

	rec := do(t, f.handler, http.MethodPost, "/answerDataQuestion",
		map[string]any{"question": "total loans", "mode": "metadata"}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := f.answerer.last(t).Mode; got != "data" {
		t.Errorf("mode = %q, want data", got)
	}
}

func TestAnswerQuestionMissingQuestion(t *testing.T) {
	f := newFixture(fakePerms{})

	rec := do(t, f.handler, http.MethodGet, "/answerQuestion", nil, true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAnswerQuestionUsingViews(t *testing.T) {
	f := newFixture(fakePerms{})

	rec := do(t, f.handler, http.MethodPost, "/answerQuestionUsingViews",
		map[string]any{"question": "total loans", "vector_search_tables": []string{"bank.loans", "bank.clients"}}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	req := f.answerer.last(t)
	if len(req.ForcedViews) != 2 || req.ForcedViews[0] != "bank.loans" {
		t.Errorf("forced views = %v", req.ForcedViews)
	}
	if req.ExpandAssociations {
		t.Error("pinned views must not expand")
	}

	rec = do(t, f.handler, http.MethodPost, "/answerQuestionUsingViews",
		map[string]any{"question": "total loans"}, true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing view list should be rejected, got %d", rec.Code)
	}
}

func TestSimilaritySearchFiltersAssociations(t *testing.T) {
	doc := schema.Doc{
		ID:        "1",
		TableName: "bank.loans",
		Schema:    []schema.Column{{ColumnName: "amount", Type: "int"}},
		Associations: []schema.Association{
			{TableName: "bank.clients", TableID: "2", Where: "bank.loans.client_id = bank.clients.id"},
		},
	}
	viewJSON, _ := json.Marshal(doc)

	f := newFixture(fakePerms{ids: []schema.ID{"1"}})
	f.store.results = []vectorstore.Result{{
		Document: vectorstore.Document{
			ID:      "1",
			Content: "=====Table bank.loans=====",
			Metadata: vectorstore.Metadata{
				ViewID:       "1",
				ViewName:     "bank.loans",
				DatabaseName: "bank",
				ViewJSON:     string(viewJSON),
			},
		},
		Similarity: 0.9,
	}}

	rec := do(t, f.handler, http.MethodGet, "/similaritySearch?query=loans&scores=true", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp searchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if len(resp.Views) != 1 {
		t.Fatalf("expected one view, got %d", len(resp.Views))
	}
	view := resp.Views[0]
	if view.ViewName != "bank.loans" {
		t.Errorf("view name = %q", view.ViewName)
	}
	if len(view.ViewJSON.Associations) != 0 {
		t.Errorf("association to an unpermitted view leaked: %v", view.ViewJSON.Associations)
	}
	if view.Score == nil || *view.Score != 0.9 {
		t.Errorf("score = %v", view.Score)
	}

	if len(f.store.lastFilter.ViewIDs) != 1 || f.store.lastFilter.ViewIDs[0] != "1" {
		t.Errorf("permission filter not applied: %+v", f.store.lastFilter)
	}
}

func TestGetMetadata(t *testing.T) {
	docs := []schema.Doc{
		{ID: "1", TableName: "bank.loans"},
		{ID: "2", TableName: "bank.clients"},
	}

	f := newFixture(fakePerms{})
	f.metadata.docs["bank"] = docs

	rec := do(t, f.handler, http.MethodGet, "/getMetadata?vdp_database_names=bank&insert=false", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp metadataResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if len(resp.DBSchemaJSON) != 2 || len(resp.DBSchemaText) != 2 {
		t.Errorf("wrong schema payload: %d docs, %d summaries", len(resp.DBSchemaJSON), len(resp.DBSchemaText))
	}
	if f.indexer.calls != 0 {
		t.Errorf("insert=false must not index, got %d calls", f.indexer.calls)
	}

	rec = do(t, f.handler, http.MethodGet, "/getMetadata?vdp_database_names=bank", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if f.indexer.calls != 1 {
		t.Errorf("insert default must index, got %d calls", f.indexer.calls)
	}
}

func TestGetMetadataEmpty(t *testing.T) {
	f := newFixture(fakePerms{})

	rec := do(t, f.handler, http.MethodGet, "/getMetadata", nil, true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("no scope should be rejected, got %d", rec.Code)
	}

	rec = do(t, f.handler, http.MethodGet, "/getMetadata?vdp_database_names=ghost", nil, true)
	if rec.Code != http.StatusNoContent {
		t.Errorf("empty fetch should yield 204, got %d", rec.Code)
	}
}

func TestBearerCredentials(t *testing.T) {
	f := newFixture(fakePerms{})

	req := httptest.NewRequest(http.MethodGet, "/answerQuestion?question=hi", nil)
	req.Header.Set("Authorization", "Bearer tok-123")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := f.answerer.last(t).Credentials.Token; got != "tok-123" {
		t.Errorf("token = %q", got)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(fakePerms{})

	rec := do(t, f.handler, http.MethodGet, "/health", nil, false)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}
