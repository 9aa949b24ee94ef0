package vectorstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/ragdesk/kb-chatbot/internal/model"
)

// PGVectorStore keeps chunks in PostgreSQL with the pgvector extension.
type PGVectorStore struct {
	pool     *pgxpool.Pool
	embedder Embedder
	workers  int
}

// NewPGVectorStore connects, pings and ensures the schema for dims-sized vectors.
func NewPGVectorStore(ctx context.Context, connString string, embedder Embedder, dims, workers int) (*PGVectorStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	config.MaxConns = 10
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PGVectorStore{pool: pool, embedder: embedder, workers: workers}
	if err := s.initSchema(ctx, dims); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *PGVectorStore) initSchema(ctx context.Context, dims int) error {
	schema := fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS kb_chunks (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL,
		source_type TEXT NOT NULL,
		source_file TEXT NOT NULL DEFAULT '',
		source_id TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		chunk_index INT NOT NULL DEFAULT 0,
		content TEXT NOT NULL,
		embedding vector(%d) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS kb_chunks_user_idx ON kb_chunks (user_id);
	CREATE INDEX IF NOT EXISTS kb_chunks_source_idx ON kb_chunks (user_id, source_type, source_id);
	`, dims)
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the connection pool.
func (s *PGVectorStore) Close() {
	s.pool.Close()
}

// Ping checks database connectivity.
func (s *PGVectorStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Add implements Store.
func (s *PGVectorStore) Add(ctx context.Context, docs []model.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := validateDocs(docs); err != nil {
		return err
	}

	vectors, err := embedAll(ctx, s.embedder, docs, s.workers)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for i, d := range docs {
		id := d.ID
		if id == "" {
			id = uuid.NewString()
		}
		md := d.Metadata
		batch.Queue(
			`INSERT INTO kb_chunks (id, user_id, source_type, source_file, source_id, category, chunk_index, content, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			id, md.UserID, string(md.SourceType), md.SourceFile, md.SourceID, md.Category, md.ChunkIndex,
			d.PageContent, pgvector.NewVector(vectors[i]),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range docs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}
	return nil
}

// SimilaritySearch implements Store using cosine distance.
func (s *PGVectorStore) SimilaritySearch(ctx context.Context, userID, query string, k int) ([]model.Document, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}

	qv, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id::text, source_type, source_file, source_id, category, chunk_index, content,
		        1 - (embedding <=> $2) AS score
		 FROM kb_chunks
		 WHERE user_id = $1
		 ORDER BY embedding <=> $2
		 LIMIT $3`,
		userID, pgvector.NewVector(qv), k,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		var (
			d          model.Document
			sourceType string
		)
		if err := rows.Scan(
			&d.ID, &sourceType, &d.Metadata.SourceFile, &d.Metadata.SourceID,
			&d.Metadata.Category, &d.Metadata.ChunkIndex, &d.PageContent, &d.Score,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		d.Metadata.SourceType = model.SourceType(sourceType)
		d.Metadata.UserID = userID
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}
	return docs, nil
}

// Delete implements Store.
func (s *PGVectorStore) Delete(ctx context.Context, userID string, filter Filter) error {
	if userID == "" {
		return ErrMissingUser
	}

	where, args := deleteClause(userID, filter)
	if _, err := s.pool.Exec(ctx, "DELETE FROM kb_chunks WHERE "+where, args...); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

func deleteClause(userID string, filter Filter) (string, []any) {
	conds := []string{"user_id = $1"}
	args := []any{userID}

	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("source_type", string(filter.SourceType))
	add("source_file", filter.SourceFile)
	add("source_id", filter.SourceID)
	add("category", filter.Category)

	return strings.Join(conds, " AND "), args
}
