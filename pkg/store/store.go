// Package store persists vector indices under explicit keys.
//
// A key names one complete index. Writing a key replaces whatever was stored
// under it before; there are no incremental updates.
package store

import (
	"context"
	"fmt"
	"regexp"

	"github.com/xhad/newsqa/internal/types"
)

// Entry is one embedded chunk.
type Entry struct {
	ID         string
	Source     string
	Title      string
	Content    string
	ChunkIndex int
	Embedding  []float32
}

// Match is an entry returned by a similarity search. Higher scores are more similar.
type Match struct {
	Entry
	Score float64
}

// Index answers nearest-neighbour queries over one persisted index.
type Index interface {
	Search(ctx context.Context, vector []float32, k int) ([]Match, error)
	Len() int
	Dimension() int
}

type Backend interface {
	// Replace stores entries under key, overwriting any previous index
	// atomically: a failed Replace leaves the old index in place.
	Replace(ctx context.Context, key string, entries []Entry) error
	Exists(ctx context.Context, key string) (bool, error)
	// Open returns types.ErrStoreNotFound when nothing was stored under key.
	Open(ctx context.Context, key string) (Index, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]string, error)
	Close() error
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateKey rejects keys that could escape the store's namespace.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: invalid index key %q", types.ErrInputValidation, key)
	}
	return nil
}

func checkEntries(entries []Entry) (int, error) {
	if len(entries) == 0 {
		return 0, fmt.Errorf("%w: no entries to store", types.ErrInputValidation)
	}
	dim := len(entries[0].Embedding)
	if dim == 0 {
		return 0, fmt.Errorf("%w: entry %s has no embedding", types.ErrIndexBuild, entries[0].ID)
	}
	for _, e := range entries {
		if len(e.Embedding) != dim {
			return 0, fmt.Errorf("%w: inconsistent vector dims %d vs %d", types.ErrIndexBuild, len(e.Embedding), dim)
		}
	}
	return dim, nil
}
