package types

import (
	"context"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
	"github.com/xhad/newsqa/internal/models"
)

// Core interfaces
type Loader interface {
	Load(ctx context.Context, urls []string) ([]models.Document, error)
}

type Splitter interface {
	Split(docs []models.Document) ([]schema.Document, error)
}

type Indexer interface {
	BuildAndPersist(ctx context.Context, chunks []schema.Document, key string) (int, error)
	Exists(ctx context.Context, key string) (bool, error)
	Load(ctx context.Context, key string) (vectorstores.VectorStore, error)
}

type Answerer interface {
	Answer(ctx context.Context, question string) (models.Answer, error)
}

// AnswererFactory binds an answer chain to a loaded index.
type AnswererFactory func(vs vectorstores.VectorStore) Answerer
