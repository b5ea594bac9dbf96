// Package app ties loading, indexing and answering together and turns every
// result into a user-facing Outcome. Nothing past this boundary sees a raw error.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xhad/newsqa/internal/models"
	"github.com/xhad/newsqa/internal/types"
	"github.com/xhad/newsqa/pkg/scraper"
)

// User-facing messages.
const (
	MsgNoDocuments = "No valid URLs or documents found. Please enter at least one valid news article URL."
	MsgProcessed   = "URLs processed successfully"
	MsgNoIndex     = "No index found. Please process the URLs first"
)

type State string

const (
	StateIdle            State = "idle"
	StateBuilt           State = "built"
	StateRejectedEmpty   State = "rejected_empty"
	StateAnswered        State = "answered"
	StateRejectedNoIndex State = "rejected_no_index"
	StateFailed          State = "failed"
)

type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Outcome is what a surface renders after an action.
type Outcome struct {
	State   State
	Level   Level
	Message string
	Detail  string
	Answer  *models.Answer
}

type Config struct {
	Key    string
	Logger *slog.Logger
}

type App struct {
	config   Config
	loader   types.Loader
	splitter types.Splitter
	indexer  types.Indexer
	answerer types.AnswererFactory
}

func NewWithConfig(loader types.Loader, splitter types.Splitter, indexer types.Indexer, answerer types.AnswererFactory, config Config) *App {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &App{
		config:   config,
		loader:   loader,
		splitter: splitter,
		indexer:  indexer,
		answerer: answerer,
	}
}

// Key is the index key every action reads and writes.
func (a *App) Key() string { return a.config.Key }

// ProcessURLs fetches the non-blank URLs, chunks them and rebuilds the index.
// The index is left untouched when there is nothing to index.
func (a *App) ProcessURLs(ctx context.Context, urls []string) Outcome {
	urls = scraper.FilterURLs(urls)
	if len(urls) == 0 {
		return a.rejectEmpty()
	}

	docs, err := a.loader.Load(ctx, urls)
	if err != nil {
		return a.fail("process", err)
	}
	if len(docs) == 0 {
		return a.rejectEmpty()
	}

	chunks, err := a.splitter.Split(docs)
	if err != nil {
		return a.fail("process", err)
	}
	if len(chunks) == 0 {
		return a.rejectEmpty()
	}

	n, err := a.indexer.BuildAndPersist(ctx, chunks, a.config.Key)
	if err != nil {
		return a.fail("process", err)
	}

	a.config.Logger.Info("urls processed", "key", a.config.Key, "urls", len(docs), "chunks", n)
	return Outcome{
		State:   StateBuilt,
		Level:   LevelSuccess,
		Message: MsgProcessed,
		Detail:  fmt.Sprintf("%d chunks from %d URL(s)", n, len(docs)),
	}
}

// Ask answers question from the persisted index. A blank question is a no-op.
func (a *App) Ask(ctx context.Context, question string) Outcome {
	if strings.TrimSpace(question) == "" {
		return Outcome{State: StateIdle, Level: LevelInfo}
	}

	ok, err := a.indexer.Exists(ctx, a.config.Key)
	if err != nil {
		return a.fail("ask", err)
	}
	if !ok {
		return a.rejectNoIndex()
	}

	vs, err := a.indexer.Load(ctx, a.config.Key)
	if errors.Is(err, types.ErrStoreNotFound) {
		return a.rejectNoIndex()
	}
	if err != nil {
		return a.fail("ask", err)
	}

	answer, err := a.answerer(vs).Answer(ctx, question)
	if err != nil {
		return a.fail("ask", err)
	}

	return Outcome{
		State:   StateAnswered,
		Level:   LevelSuccess,
		Message: answer.Answer,
		Answer:  &answer,
	}
}

func (a *App) rejectEmpty() Outcome {
	return Outcome{State: StateRejectedEmpty, Level: LevelWarning, Message: MsgNoDocuments}
}

func (a *App) rejectNoIndex() Outcome {
	return Outcome{State: StateRejectedNoIndex, Level: LevelWarning, Message: MsgNoIndex}
}

func (a *App) fail(action string, err error) Outcome {
	class := Describe(err)
	a.config.Logger.Error(action+" failed", "key", a.config.Key, "class", class, "error", err)
	return Outcome{
		State:   StateFailed,
		Level:   LevelError,
		Message: class,
		Detail:  err.Error(),
	}
}

// Describe names the class of err for display.
func Describe(err error) string {
	switch {
	case errors.Is(err, types.ErrConfiguration):
		return "Configuration error"
	case errors.Is(err, types.ErrInputValidation):
		return "Invalid input"
	case errors.Is(err, types.ErrCredential):
		return "Credential error: check your API key"
	case errors.Is(err, types.ErrDataFetch):
		return "Could not load the URLs"
	case errors.Is(err, types.ErrIndexBuild):
		return "Failed to build the index"
	case errors.Is(err, types.ErrStoreNotFound):
		return MsgNoIndex
	case errors.Is(err, types.ErrRetrieval):
		return "Failed to search the index"
	case errors.Is(err, types.ErrGeneration):
		return "Failed to generate an answer"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Request cancelled"
	default:
		return "Unexpected error"
	}
}
