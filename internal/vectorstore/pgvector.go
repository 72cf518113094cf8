package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGVectorStore backs the schema index with PostgreSQL and the pgvector
// extension. Similarity ordering is done server side with the cosine
// distance operator.
type PGVectorStore struct {
	pool *pgxpool.Pool
}

// NewPGVectorStore connects to the database named by dsn and ensures the
// pgvector extension is available.
func NewPGVectorStore(ctx context.Context, dsn string) (*PGVectorStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pgvector store requires a postgres DSN")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector extension unavailable: %w", err)
	}
	return &PGVectorStore{pool: pool}, nil
}

func (s *PGVectorStore) ensureIndex(ctx context.Context, index string) error {
	if err := validIndexName(index); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id text PRIMARY KEY,
		content text NOT NULL,
		view_id text,
		view_name text,
		database_name text,
		tags text[],
		view_json text,
		columns text[],
		embedding vector
	)`, index))
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", index, err)
	}
	return nil
}

func (s *PGVectorStore) Upsert(ctx context.Context, index string, docs []Document) error {
	if err := s.ensureIndex(ctx, index); err != nil {
		return err
	}
	for _, doc := range docs {
		_, err := s.pool.Exec(ctx, fmt.Sprintf(
			`INSERT INTO %s (id, content, view_id, view_name, database_name, tags, view_json, columns, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::vector)
			 ON CONFLICT (id) DO UPDATE SET
			   content = EXCLUDED.content,
			   view_id = EXCLUDED.view_id,
			   view_name = EXCLUDED.view_name,
			   database_name = EXCLUDED.database_name,
			   tags = EXCLUDED.tags,
			   view_json = EXCLUDED.view_json,
			   columns = EXCLUDED.columns,
			   embedding = EXCLUDED.embedding`, index),
			doc.ID, doc.Content,
			doc.Metadata.ViewID, doc.Metadata.ViewName, doc.Metadata.DatabaseName,
			doc.Metadata.TagNames, doc.Metadata.ViewJSON, doc.Metadata.Columns,
			vectorLiteral(doc.Embedding),
		)
		if err != nil {
			return fmt.Errorf("failed to store document %s: %w", doc.ID, err)
		}
	}
	return nil
}

func (s *PGVectorStore) Search(ctx context.Context, index string, vector []float32, k int, filter Filter) ([]Result, error) {
	if err := s.ensureIndex(ctx, index); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 10
	}

	where := []string{"embedding IS NOT NULL"}
	args := []any{vectorLiteral(vector)}
	addAny := func(expr string, values []string) {
		if len(values) == 0 {
			return
		}
		args = append(args, values)
		where = append(where, fmt.Sprintf(expr, len(args)))
	}
	addAny("database_name = ANY($%d)", filter.Databases)
	addAny("view_id = ANY($%d)", filter.ViewIDs)
	addAny("view_name = ANY($%d)", filter.ViewNames)
	addAny("tags && $%d", filter.Tags)

	args = append(args, k)
	query := fmt.Sprintf(
		`SELECT id, content, view_id, view_name, database_name, tags, view_json, columns,
		        1 - (embedding <=> $1::vector) AS similarity
		 FROM %s WHERE %s
		 ORDER BY embedding <=> $1::vector
		 LIMIT $%d`, index, strings.Join(where, " AND "), len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var res Result
		if err := rows.Scan(
			&res.ID, &res.Content,
			&res.Metadata.ViewID, &res.Metadata.ViewName, &res.Metadata.DatabaseName,
			&res.Metadata.TagNames, &res.Metadata.ViewJSON, &res.Metadata.Columns,
			&res.Similarity,
		); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func (s *PGVectorStore) Views(ctx context.Context, index string, viewIDs []string) ([]Document, error) {
	if err := s.ensureIndex(ctx, index); err != nil {
		return nil, err
	}
	if len(viewIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT id, content, view_id, view_name, database_name, tags, view_json, columns
		 FROM %s WHERE view_id = ANY($1)`, index), viewIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(
			&doc.ID, &doc.Content,
			&doc.Metadata.ViewID, &doc.Metadata.ViewName, &doc.Metadata.DatabaseName,
			&doc.Metadata.TagNames, &doc.Metadata.ViewJSON, &doc.Metadata.Columns,
		); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *PGVectorStore) ViewIDs(ctx context.Context, index string, names []string) (map[string]string, error) {
	if err := s.ensureIndex(ctx, index); err != nil {
		return nil, err
	}
	ids := make(map[string]string)
	if len(names) == 0 {
		return ids, nil
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT view_name, view_id FROM %s WHERE view_name = ANY($1)`, index), names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name, id string
		if err := rows.Scan(&name, &id); err != nil {
			return nil, err
		}
		ids[name] = id
	}
	return ids, rows.Err()
}

func (s *PGVectorStore) DeleteIndex(ctx context.Context, index string) error {
	if err := validIndexName(index); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", index))
	return err
}

func (s *PGVectorStore) Close() error {
	s.pool.Close()
	return nil
}

// vectorLiteral renders a float32 slice in pgvector's input format.
func vectorLiteral(vec []float32) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
