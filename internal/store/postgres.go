package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"itsmehi/internal/embeddings"
	"itsmehi/internal/index"
	"itsmehi/internal/journal"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	s := &PostgresStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Advisory lock key shared by every process that migrates this schema.
const lockID = 482211907

func (s *PostgresStore) migrate(ctx context.Context) error {
	// Use advisory lock to prevent concurrent migrations from the chat server and the worker.
	var acquired bool
	err := s.db.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, lockID).Scan(&acquired)
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}

	if !acquired {
		// Another service is running migrations; wait briefly and skip
		time.Sleep(2 * time.Second)
		return nil
	}

	defer func() {
		_, _ = s.db.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID)
	}()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id UUID PRIMARY KEY,
			asked_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			language TEXT NOT NULL,
			fallback TEXT NOT NULL DEFAULT '',
			sources TEXT[] NOT NULL DEFAULT '{}'
		);`,
		`CREATE INDEX IF NOT EXISTS conversations_asked_at_idx ON conversations (asked_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// EnsureCollection creates the pgvector passages table sized for dimension.
// An existing table with another dimension is an error.
func (s *PostgresStore) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid vector dimension %d", dimension)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	existing, err := s.dimension(ctx)
	if err != nil {
		return err
	}
	if existing != 0 {
		if existing != dimension {
			return fmt.Errorf("%w: table has %d, want %d", index.ErrDimensionMismatch, existing, dimension)
		}
		return nil
	}

	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS passages (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL,
		embedding vector(%d) NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, dimension)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create passages table: %w", err)
	}
	// HNSW can be built on an empty table.
	_, err = s.db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS passages_embedding_idx
		ON passages USING hnsw (embedding vector_cosine_ops)
	`)
	if err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}
	return nil
}

// dimension reports the vector size of the passages table, or 0 when it does not exist.
func (s *PostgresStore) dimension(ctx context.Context) (int, error) {
	var dim int
	err := s.db.QueryRowContext(ctx, `
		SELECT a.atttypmod
		FROM pg_attribute a
		WHERE a.attrelid = to_regclass('passages') AND a.attname = 'embedding'
	`).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to inspect passages table: %w", err)
	}
	return dim, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, passages []index.Passage, vectors []embeddings.Vector) error {
	if len(passages) != len(vectors) {
		return index.ErrLengthMismatch
	}
	dim, err := s.dimension(ctx)
	if err != nil {
		return err
	}
	if err := checkDimensions(vectors, dim); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for i, p := range passages {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO passages(id, source, text, embedding)
			VALUES($1,$2,$3,$4::vector)
			ON CONFLICT (id) DO UPDATE SET source=excluded.source, text=excluded.text,
				embedding=excluded.embedding, updated_at=now()`,
			p.ID, p.Source, p.Text, vectorToString(vectors[i]))
		if err != nil {
			return fmt.Errorf("upsert passage %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// checkDimensions rejects vectors that do not fit a vector(dim) column. A zero dim skips the check.
func checkDimensions(vectors []embeddings.Vector, dim int) error {
	if dim <= 0 {
		return nil
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has %d, table has %d", index.ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return nil
}

func (s *PostgresStore) Search(ctx context.Context, vector embeddings.Vector, k int) ([]index.Hit, error) {
	if len(vector) == 0 {
		return nil, index.ErrEmptyVector
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, text, 1 - (embedding <=> $1::vector) AS similarity
		FROM passages
		ORDER BY embedding <=> $1::vector
		LIMIT $2
	`, vectorToString(vector), index.NormalizeK(k))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []index.Hit
	for rows.Next() {
		var h index.Hit
		if err := rows.Scan(&h.Passage.ID, &h.Passage.Source, &h.Passage.Text, &h.Score); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]index.Passage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, source, text FROM passages ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []index.Passage
	for rows.Next() {
		var p index.Passage
		if err := rows.Scan(&p.ID, &p.Source, &p.Text); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Drop(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS passages`)
	return err
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) SaveConversation(ctx context.Context, entry journal.Entry) error {
	at := entry.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations(id, asked_at, question, answer, language, fallback, sources)
		VALUES($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO NOTHING`,
		entry.ID, at, entry.Question, entry.Answer, entry.Language, entry.Fallback, pq.Array(nonNil(entry.Sources)))
	return err
}

func (s *PostgresStore) RecentConversations(ctx context.Context, limit int) ([]journal.Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, asked_at, question, answer, language, fallback, sources
		FROM conversations
		ORDER BY asked_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []journal.Entry
	for rows.Next() {
		var e journal.Entry
		if err := rows.Scan(&e.ID, &e.At, &e.Question, &e.Answer, &e.Language, &e.Fallback, pq.Array(&e.Sources)); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrConversationNotFound
	}
	return out, nil
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

// vectorToString converts a Vector ([]float32) to pgvector array format.
// Format: "[0.1,0.2,0.3,...]"
func vectorToString(v embeddings.Vector) string {
	if len(v) == 0 {
		return "[]"
	}
	parts := make([]string, len(v))
	for i, val := range v {
		parts[i] = strconv.FormatFloat(float64(val), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
