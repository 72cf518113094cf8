package main

import (
	"go.uber.org/zap"

	"askdata/internal/catalog"
	"askdata/internal/config"
	"askdata/internal/embedding"
	"askdata/internal/llm"
	"askdata/internal/pipeline"
	"askdata/internal/retrieval"
	"askdata/internal/vectorstore"
)

// system holds the wired components shared by the commands.
type system struct {
	store     vectorstore.Store
	engine    embedding.Engine
	catalog   *catalog.Client
	retriever *retrieval.Retriever
	pipeline  *pipeline.Pipeline
	ingestor  *catalog.Ingestor
}

func buildSystem(cfg config.Config, logger *zap.Logger) (*system, error) {
	store, err := vectorstore.New(cfg.VectorStore)
	if err != nil {
		return nil, err
	}

	engine, err := embedding.NewEngine(cfg.Embeddings)
	if err != nil {
		store.Close()
		return nil, err
	}

	sqlGen, err := llm.NewClient(cfg.SQLGen)
	if err != nil {
		store.Close()
		return nil, err
	}
	chat, err := llm.NewClient(cfg.Chat)
	if err != nil {
		store.Close()
		return nil, err
	}

	client := catalog.NewClient(cfg.Catalog, logger)
	retriever := retrieval.NewRetriever(store, engine, client, cfg, logger)

	return &system{
		store:     store,
		engine:    engine,
		catalog:   client,
		retriever: retriever,
		pipeline:  pipeline.New(retriever, client, sqlGen, chat, cfg, logger),
		ingestor:  catalog.NewIngestor(client, store, engine, cfg, logger),
	}, nil
}

func (s *system) Close() {
	if err := s.store.Close(); err != nil {
		logger.Warn("failed to close vector store", zap.Error(err))
	}
}
