// Package vectorstore embeds chunks, persists them as a keyed index and
// serves similarity search over a loaded index through the langchaingo
// vectorstores.VectorStore interface.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
	"github.com/xhad/newsqa/internal/models"
	"github.com/xhad/newsqa/internal/types"
	"github.com/xhad/newsqa/pkg/llm"
	"github.com/xhad/newsqa/pkg/store"
)

// ErrReadOnly is returned by AddDocuments: indices are only ever rebuilt whole.
var ErrReadOnly = errors.New("vectorstore: index is read-only, rebuild it instead")

// chunkNamespace seeds the deterministic chunk ids.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/xhad/newsqa/chunk"))

type Builder struct {
	embedder embeddings.Embedder
	backend  store.Backend
	logger   *slog.Logger
}

func NewBuilder(embedder embeddings.Embedder, backend store.Backend, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{embedder: embedder, backend: backend, logger: logger}
}

// BuildAndPersist embeds every chunk and stores the result under key,
// replacing any previous index. It returns the number of stored chunks.
func (b *Builder) BuildAndPersist(ctx context.Context, chunks []schema.Document, key string) (int, error) {
	if len(chunks) == 0 {
		return 0, fmt.Errorf("%w: no chunks to index", types.ErrInputValidation)
	}
	if err := store.ValidateKey(key); err != nil {
		return 0, err
	}
	if b.embedder == nil {
		return 0, fmt.Errorf("%w: no embedding client configured", types.ErrCredential)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.PageContent
	}

	vectors, err := b.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to create embeddings: %w", llm.ClassifyEmbeddingError(err))
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("%w: got %d embeddings for %d chunks", types.ErrIndexBuild, len(vectors), len(chunks))
	}

	entries := make([]store.Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = toEntry(c, i, vectors[i])
	}

	if err := b.backend.Replace(ctx, key, entries); err != nil {
		if errors.Is(err, types.ErrInputValidation) || errors.Is(err, types.ErrIndexBuild) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: failed to persist index %s: %v", types.ErrIndexBuild, key, err)
	}

	b.logger.Info("index built", "key", key, "chunks", len(entries), "dimension", len(vectors[0]))
	return len(entries), nil
}

func toEntry(doc schema.Document, position int, vector []float32) store.Entry {
	source := models.SourceOf(doc)
	title, _ := doc.Metadata[models.MetaTitle].(string)
	index := position
	if v, ok := doc.Metadata[models.MetaChunkIndex].(int); ok {
		index = v
	}
	id := uuid.NewSHA1(chunkNamespace, []byte(source+"#"+strconv.Itoa(index)+"#"+strconv.Itoa(position)))
	return store.Entry{
		ID:         id.String(),
		Source:     source,
		Title:      title,
		Content:    doc.PageContent,
		ChunkIndex: index,
		Embedding:  vector,
	}
}

// Exists reports whether an index was persisted under key.
func (b *Builder) Exists(ctx context.Context, key string) (bool, error) {
	return b.backend.Exists(ctx, key)
}

// Load opens the index persisted under key and attaches the live embedder so
// questions are embedded the same way the chunks were.
func (b *Builder) Load(ctx context.Context, key string) (vectorstores.VectorStore, error) {
	idx, err := b.backend.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	return &Store{index: idx, embedder: b.embedder}, nil
}

// Delete removes the index persisted under key. Deleting a missing index is not an error.
func (b *Builder) Delete(ctx context.Context, key string) error {
	return b.backend.Delete(ctx, key)
}

// List returns the keys of all persisted indices.
func (b *Builder) List(ctx context.Context) ([]string, error) {
	return b.backend.List(ctx)
}

// Store is a loaded, read-only index.
type Store struct {
	index    store.Index
	embedder embeddings.Embedder
}

var _ vectorstores.VectorStore = (*Store)(nil)

// Len returns the number of indexed chunks.
func (s *Store) Len() int { return s.index.Len() }

func (s *Store) AddDocuments(context.Context, []schema.Document, ...vectorstores.Option) ([]string, error) {
	return nil, ErrReadOnly
}

// SimilaritySearch returns up to numDocuments chunks most similar to query,
// best first. vectorstores.WithScoreThreshold drops weaker matches.
func (s *Store) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	opts := vectorstores.Options{}
	for _, o := range options {
		o(&opts)
	}
	embedder := s.embedder
	if opts.Embedder != nil {
		embedder = opts.Embedder
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: no embedding client configured", types.ErrCredential)
	}

	vector, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to embed question: %v", types.ErrRetrieval, err)
	}

	matches, err := s.index.Search(ctx, vector, numDocuments)
	if err != nil {
		return nil, err
	}

	docs := make([]schema.Document, 0, len(matches))
	for _, m := range matches {
		if opts.ScoreThreshold > 0 && m.Score < float64(opts.ScoreThreshold) {
			continue
		}
		docs = append(docs, schema.Document{
			PageContent: m.Content,
			Metadata: map[string]any{
				models.MetaSource:     m.Source,
				models.MetaTitle:      m.Title,
				models.MetaChunkIndex: m.ChunkIndex,
			},
			Score: float32(m.Score),
		})
	}
	return docs, nil
}
