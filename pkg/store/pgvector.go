package store

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/newsqa/internal/types"
)

type PGVectorConfig struct {
	ConnString  string
	TablePrefix string
}

// PGVectorBackend keeps each index in its own table, <prefix>_<key>.
type PGVectorBackend struct {
	config PGVectorConfig
	pool   *pgxpool.Pool
}

func NewPGVectorBackend(ctx context.Context, config PGVectorConfig) (*PGVectorBackend, error) {
	if config.TablePrefix == "" {
		config.TablePrefix = "newsqa"
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Enable pgvector extension
	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create vector extension: %w", err)
	}

	return &PGVectorBackend{
		config: config,
		pool:   pool,
	}, nil
}

// maxIdentifierLen is Postgres's NAMEDATALEN-1. Longer names are truncated
// on CREATE but not in information_schema lookups.
const maxIdentifierLen = 63

// TableName returns the table holding key under prefix.
func TableName(prefix, key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	name := prefix + "_" + key
	if len(name) > maxIdentifierLen {
		return "", fmt.Errorf("%w: table name %q is longer than %d bytes", types.ErrInputValidation, name, maxIdentifierLen)
	}
	return name, nil
}

func (b *PGVectorBackend) tableName(key string) (string, error) {
	return TableName(b.config.TablePrefix, key)
}

// Replace drops and rebuilds the key's table inside one transaction.
func (b *PGVectorBackend) Replace(ctx context.Context, key string, entries []Entry) error {
	name, err := b.tableName(key)
	if err != nil {
		return err
	}
	dim, err := checkEntries(entries)
	if err != nil {
		return err
	}
	table := pgx.Identifier{name}.Sanitize()

	// Begin transaction
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE %s (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			title TEXT,
			content TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			embedding vector(%d) NOT NULL
		)`, table, dim)
	if _, err := tx.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, source, title, content, chunk_index, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)`, table)

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(stmt,
			e.ID,
			e.Source,
			sanitizeUTF8(e.Title),
			sanitizeUTF8(e.Content),
			e.ChunkIndex,
			pgvector.NewVector(e.Embedding),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	// Commit transaction
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (b *PGVectorBackend) Exists(ctx context.Context, key string) (bool, error) {
	name, err := b.tableName(key)
	if err != nil {
		return false, err
	}
	var exists bool
	err = b.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1
		)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check table: %w", err)
	}
	return exists, nil
}

func (b *PGVectorBackend) Open(ctx context.Context, key string) (Index, error) {
	ok, err := b.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrStoreNotFound, key)
	}
	name, _ := b.tableName(key)
	table := pgx.Identifier{name}.Sanitize()

	idx := &pgIndex{pool: b.pool, table: table}
	err = b.pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT count(*), coalesce(max(vector_dims(embedding)), 0) FROM %s", table),
	).Scan(&idx.count, &idx.dim)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %v", types.ErrRetrieval, key, err)
	}
	return idx, nil
}

func (b *PGVectorBackend) Delete(ctx context.Context, key string) error {
	name, err := b.tableName(key)
	if err != nil {
		return err
	}
	_, err = b.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", pgx.Identifier{name}.Sanitize()))
	return err
}

func (b *PGVectorBackend) List(ctx context.Context) ([]string, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = current_schema() AND starts_with(table_name, $1)
		ORDER BY table_name`, b.config.TablePrefix+"_")
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		key := strings.TrimPrefix(name, b.config.TablePrefix+"_")
		if ValidateKey(key) == nil {
			keys = append(keys, key)
		}
	}
	return keys, rows.Err()
}

func (b *PGVectorBackend) Close() error {
	if b.pool != nil {
		b.pool.Close()
	}
	return nil
}

// pgIndex runs similarity search inside Postgres.
type pgIndex struct {
	pool  *pgxpool.Pool
	table string
	count int
	dim   int
}

func (i *pgIndex) Len() int       { return i.count }
func (i *pgIndex) Dimension() int { return i.dim }

func (i *pgIndex) Search(ctx context.Context, vector []float32, k int) ([]Match, error) {
	if i.count == 0 {
		return nil, fmt.Errorf("%w: index is empty", types.ErrRetrieval)
	}
	if len(vector) != i.dim {
		return nil, fmt.Errorf("%w: query dim %d != index dim %d", types.ErrRetrieval, len(vector), i.dim)
	}
	if k <= 0 {
		k = i.count
	}

	// Query similar chunks
	query := fmt.Sprintf(`
		SELECT id, source, coalesce(title, ''), content, chunk_index, 1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1, chunk_index
		LIMIT $2`, i.table)

	rows, err := i.pool.Query(ctx, query, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query chunks: %v", types.ErrRetrieval, err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.Source, &m.Title, &m.Content, &m.ChunkIndex, &m.Score); err != nil {
			return nil, fmt.Errorf("%w: failed to scan row: %v", types.ErrRetrieval, err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrRetrieval, err)
	}
	return matches, nil
}

// sanitizeUTF8 drops invalid bytes, which Postgres rejects in TEXT columns.
func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
