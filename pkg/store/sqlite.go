package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xhad/newsqa/internal/types"
	_ "modernc.org/sqlite"
)

const sqliteExt = ".db"

const sqliteSchema = `
CREATE TABLE meta (
	k TEXT PRIMARY KEY,
	v TEXT NOT NULL
);
CREATE TABLE chunks (
	id          TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	title       TEXT,
	content     TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	embedding   BLOB NOT NULL
);`

// SQLiteBackend keeps each index in its own SQLite file, <dir>/<key>.db.
type SQLiteBackend struct {
	dir string
}

func NewSQLiteBackend(dir string) (*SQLiteBackend, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store dir: %w", err)
	}
	return &SQLiteBackend{dir: dir}, nil
}

func (b *SQLiteBackend) path(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(b.dir, key+sqliteExt), nil
}

// Replace writes the index to a temporary file next to the target and renames
// it into place once complete.
func (b *SQLiteBackend) Replace(ctx context.Context, key string, entries []Entry) (err error) {
	target, err := b.path(key)
	if err != nil {
		return err
	}
	dim, err := checkEntries(entries)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(b.dir, "."+key+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp index: %w", err)
	}
	tmpName := tmp.Name()
	tmp.Close()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	db, err := sql.Open("sqlite", tmpName)
	if err != nil {
		return fmt.Errorf("failed to open temp index: %w", err)
	}
	if err := writeIndex(ctx, db, dim, entries); err != nil {
		db.Close()
		return err
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("failed to close temp index: %w", err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("failed to replace index: %w", err)
	}
	return nil
}

func writeIndex(ctx context.Context, db *sql.DB, dim int, entries []Entry) error {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks(id, source, title, content, chunk_index, embedding) VALUES(?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.ID, e.Source, e.Title, e.Content, e.ChunkIndex, encodeEmbedding(e.Embedding)); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", e.ID, err)
		}
	}

	meta := map[string]string{
		"dimension":  strconv.Itoa(dim),
		"count":      strconv.Itoa(len(entries)),
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta(k, v) VALUES(?, ?)`, k, v); err != nil {
			return fmt.Errorf("failed to write meta: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Exists(_ context.Context, key string) (bool, error) {
	path, err := b.path(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// Open loads every entry of the index into a MemoryIndex.
func (b *SQLiteBackend) Open(ctx context.Context, key string) (Index, error) {
	ok, err := b.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrStoreNotFound, key)
	}
	path, _ := b.path(key)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %v", types.ErrRetrieval, key, err)
	}
	defer db.Close()

	entries, err := readEntries(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("%w: index %s is unreadable: %v", types.ErrRetrieval, key, err)
	}
	idx, err := NewMemoryIndex(entries)
	if err != nil {
		return nil, fmt.Errorf("%w: index %s is corrupt: %v", types.ErrRetrieval, key, err)
	}
	return idx, nil
}

func readEntries(ctx context.Context, db *sql.DB) ([]Entry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, source, title, content, chunk_index, embedding FROM chunks ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e     Entry
			title sql.NullString
			blob  []byte
		)
		if err := rows.Scan(&e.ID, &e.Source, &title, &e.Content, &e.ChunkIndex, &blob); err != nil {
			return nil, err
		}
		e.Title = title.String
		if e.Embedding, err = decodeEmbedding(blob); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (b *SQLiteBackend) Delete(_ context.Context, key string) error {
	path, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (b *SQLiteBackend) List(_ context.Context) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(b.dir, "*"+sqliteExt))
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, m := range matches {
		key := strings.TrimSuffix(filepath.Base(m), sqliteExt)
		if ValidateKey(key) == nil {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *SQLiteBackend) Close() error { return nil }
