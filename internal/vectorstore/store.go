// Package vectorstore persists embedded schema documents and serves
// similarity search over them. Two backends are provided: an embedded SQLite
// store and a PostgreSQL store using pgvector.
package vectorstore

import (
	"context"
	"fmt"
	"regexp"

	"askdata/internal/config"
)

// Metadata carries the searchable attributes of a stored document.
type Metadata struct {
	ViewID       string   `json:"view_id"`
	ViewName     string   `json:"view_name"`
	DatabaseName string   `json:"database_name"`
	TagNames     []string `json:"tag_names,omitempty"`

	// ViewJSON is the serialized view descriptor for schema documents.
	ViewJSON string `json:"view_json,omitempty"`

	// Columns names the columns of a sample-data row document.
	Columns []string `json:"columns,omitempty"`
}

// Document is one unit of stored content.
type Document struct {
	ID        string
	Content   string
	Metadata  Metadata
	Embedding []float32
}

// Result is a search hit with its cosine similarity to the query vector.
type Result struct {
	Document
	Similarity float64
}

// Filter restricts a search. Empty slices impose no restriction. Within a
// slice values are ORed, across fields they are ANDed.
type Filter struct {
	Databases []string
	Tags      []string
	ViewIDs   []string
	ViewNames []string
}

func (f Filter) empty() bool {
	return len(f.Databases) == 0 && len(f.Tags) == 0 && len(f.ViewIDs) == 0 && len(f.ViewNames) == 0
}

func (f Filter) matches(m Metadata) bool {
	if len(f.Databases) > 0 && !contains(f.Databases, m.DatabaseName) {
		return false
	}
	if len(f.ViewIDs) > 0 && !contains(f.ViewIDs, m.ViewID) {
		return false
	}
	if len(f.ViewNames) > 0 && !contains(f.ViewNames, m.ViewName) {
		return false
	}
	if len(f.Tags) > 0 {
		found := false
		for _, tag := range m.TagNames {
			if contains(f.Tags, tag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Store is the persistence interface the retrieval layer depends on.
type Store interface {
	// Upsert inserts or replaces documents in the named index.
	Upsert(ctx context.Context, index string, docs []Document) error

	// Search returns up to k documents nearest to the query vector,
	// restricted by the filter, ordered by similarity descending.
	Search(ctx context.Context, index string, vector []float32, k int, filter Filter) ([]Result, error)

	// Views fetches documents by view id.
	Views(ctx context.Context, index string, viewIDs []string) ([]Document, error)

	// ViewIDs resolves view names to their ids. Unknown names are omitted.
	ViewIDs(ctx context.Context, index string, names []string) (map[string]string, error)

	// DeleteIndex drops all content of the named index.
	DeleteIndex(ctx context.Context, index string) error

	Close() error
}

// New constructs the backend named by the configuration.
func New(cfg config.VectorStoreConfig) (Store, error) {
	switch cfg.Provider {
	case "sqlite", "":
		return NewSQLiteStore(cfg.DatabasePath)
	case "pgvector":
		return NewPGVectorStore(context.Background(), cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", cfg.Provider)
	}
}

var indexNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func validIndexName(index string) error {
	if !indexNamePattern.MatchString(index) {
		return fmt.Errorf("invalid index name: %q", index)
	}
	return nil
}
