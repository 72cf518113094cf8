package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"askdata/internal/embedding"
)

// SQLiteStore keeps one table per index with JSON-serialized embeddings and
// ranks candidates by cosine similarity in process. Good for the embedded,
// single-node deployment.
type SQLiteStore struct {
	mu sync.RWMutex
	db *sql.DB

	createdMu sync.Mutex
	created   map[string]bool
}

// NewSQLiteStore opens (or creates) the database at path. Use ":memory:"
// for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure vector store: %w", err)
	}
	return &SQLiteStore{db: db, created: make(map[string]bool)}, nil
}

func (s *SQLiteStore) ensureIndex(index string) error {
	if err := validIndexName(index); err != nil {
		return err
	}
	s.createdMu.Lock()
	defer s.createdMu.Unlock()
	if s.created[index] {
		return nil
	}
	_, err := s.db.Exec(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		view_id TEXT,
		view_name TEXT,
		database_name TEXT,
		tags TEXT,
		view_json TEXT,
		columns TEXT,
		embedding TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`, index))
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", index, err)
	}
	s.created[index] = true
	return nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, index string, docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureIndex(index); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT OR REPLACE INTO %q (id, content, view_id, view_name, database_name, tags, view_json, columns, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, index))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, doc := range docs {
		embeddingJSON, err := json.Marshal(doc.Embedding)
		if err != nil {
			return fmt.Errorf("failed to serialize embedding: %w", err)
		}
		tagsJSON, _ := json.Marshal(doc.Metadata.TagNames)
		columnsJSON, _ := json.Marshal(doc.Metadata.Columns)
		if _, err := stmt.ExecContext(ctx,
			doc.ID, doc.Content,
			doc.Metadata.ViewID, doc.Metadata.ViewName, doc.Metadata.DatabaseName,
			string(tagsJSON), doc.Metadata.ViewJSON, string(columnsJSON),
			string(embeddingJSON),
		); err != nil {
			return fmt.Errorf("failed to store document %s: %w", doc.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Search(ctx context.Context, index string, vector []float32, k int, filter Filter) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ensureIndex(index); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 10
	}

	query, args := s.selectQuery(index, filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []Result
	for rows.Next() {
		doc, embeddingJSON, ok := scanDocument(rows)
		if !ok {
			continue
		}
		var vec []float32
		if err := json.Unmarshal([]byte(embeddingJSON), &vec); err != nil {
			continue
		}
		similarity, err := embedding.CosineSimilarity(vector, vec)
		if err != nil {
			continue
		}
		if len(filter.Tags) > 0 && !filter.matches(doc.Metadata) {
			continue
		}
		candidates = append(candidates, Result{Document: doc, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// selectQuery pushes the equality filters into SQL. Tag membership is checked
// in Go because tags are stored as a JSON array.
func (s *SQLiteStore) selectQuery(index string, filter Filter) (string, []any) {
	var where []string
	var args []any

	where = append(where, "embedding IS NOT NULL")
	addIn := func(column string, values []string) {
		if len(values) == 0 {
			return
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")
		where = append(where, fmt.Sprintf("%s IN (%s)", column, placeholders))
		for _, v := range values {
			args = append(args, v)
		}
	}
	addIn("database_name", filter.Databases)
	addIn("view_id", filter.ViewIDs)
	addIn("view_name", filter.ViewNames)

	query := fmt.Sprintf(
		`SELECT id, content, view_id, view_name, database_name, tags, view_json, columns, embedding FROM %q WHERE %s`,
		index, strings.Join(where, " AND "))
	return query, args
}

func scanDocument(rows *sql.Rows) (Document, string, bool) {
	var doc Document
	var tagsJSON, columnsJSON, embeddingJSON sql.NullString
	if err := rows.Scan(
		&doc.ID, &doc.Content,
		&doc.Metadata.ViewID, &doc.Metadata.ViewName, &doc.Metadata.DatabaseName,
		&tagsJSON, &doc.Metadata.ViewJSON, &columnsJSON, &embeddingJSON,
	); err != nil {
		return doc, "", false
	}
	if tagsJSON.Valid && tagsJSON.String != "" {
		json.Unmarshal([]byte(tagsJSON.String), &doc.Metadata.TagNames)
	}
	if columnsJSON.Valid && columnsJSON.String != "" {
		json.Unmarshal([]byte(columnsJSON.String), &doc.Metadata.Columns)
	}
	return doc, embeddingJSON.String, true
}

func (s *SQLiteStore) Views(ctx context.Context, index string, viewIDs []string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ensureIndex(index); err != nil {
		return nil, err
	}
	if len(viewIDs) == 0 {
		return nil, nil
	}

	query, args := s.selectQuery(index, Filter{ViewIDs: viewIDs})
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, _, ok := scanDocument(rows)
		if ok {
			docs = append(docs, doc)
		}
	}
	return docs, rows.Err()
}

func (s *SQLiteStore) ViewIDs(ctx context.Context, index string, names []string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ensureIndex(index); err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return map[string]string{}, nil
	}

	query, args := s.selectQuery(index, Filter{ViewNames: names})
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]string)
	for rows.Next() {
		doc, _, ok := scanDocument(rows)
		if ok {
			ids[doc.Metadata.ViewName] = doc.Metadata.ViewID
		}
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) DeleteIndex(ctx context.Context, index string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validIndexName(index); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %q", index))
	s.createdMu.Lock()
	delete(s.created, index)
	s.createdMu.Unlock()
	return err
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
