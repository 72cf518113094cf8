// Package api exposes the question-answering pipeline and the vector store
// over HTTP. Authentication is a pass-through: whatever credentials the
// caller presents are forwarded to the Data Catalog, which is the actual
// authority on permissions.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"askdata/internal/catalog"
	"askdata/internal/config"
	"askdata/internal/embedding"
	"askdata/internal/pipeline"
	"askdata/internal/retrieval"
	"askdata/internal/schema"
	"askdata/internal/vectorstore"
)

// Answerer runs one question through the pipeline. *pipeline.Pipeline
// satisfies it.
type Answerer interface {
	Answer(ctx context.Context, req pipeline.AskRequest) (pipeline.Response, error)
}

// MetadataSource fetches view descriptors from the Data Catalog.
// *catalog.Client satisfies it.
type MetadataSource interface {
	ViewsMetadata(ctx context.Context, creds catalog.Credentials, req catalog.MetadataRequest) ([]schema.Doc, error)
}

// Indexer loads fetched view descriptors into the vector indexes.
// *catalog.Ingestor satisfies it.
type Indexer interface {
	IngestDocs(ctx context.Context, docs []schema.Doc) (catalog.IngestReport, error)
}

// Server is the HTTP front of the system.
type Server struct {
	answerer Answerer
	store    vectorstore.Store
	engine   embedding.Engine
	perms    retrieval.PermissionSource
	metadata MetadataSource
	indexer  Indexer
	logger   *zap.Logger

	addr       string
	metrics    bool
	viewsIndex string
	defaultK   int
}

// NewServer wires the HTTP server from its collaborators.
func NewServer(answerer Answerer, store vectorstore.Store, engine embedding.Engine, perms retrieval.PermissionSource, metadata MetadataSource, indexer Indexer, cfg config.Config, logger *zap.Logger) *Server {
	return &Server{
		answerer:   answerer,
		store:      store,
		engine:     engine,
		perms:      perms,
		metadata:   metadata,
		indexer:    indexer,
		logger:     logger,
		addr:       cfg.Server.Addr,
		metrics:    cfg.Server.Metrics,
		viewsIndex: cfg.VectorStore.ViewsIndex,
		defaultK:   cfg.Retrieval.K,
	}
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, s.logRequests, middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	for _, route := range []struct {
		path string
		mode string
	}{
		{"/answerQuestion", ""},
		{"/answerDataQuestion", "data"},
		{"/answerMetadataQuestion", "metadata"},
	} {
		handler := s.answerQuestion(route.mode)
		r.Get(route.path, handler)
		r.Post(route.path, handler)
	}
	r.Post("/answerQuestionUsingViews", s.answerQuestionUsingViews)

	r.Get("/similaritySearch", s.similaritySearch)
	r.Get("/getMetadata", s.getMetadata)
	r.Post("/getMetadata", s.getMetadata)

	return r
}

// Serve blocks until the context is cancelled or the listener fails.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)))
	})
}
