// Package chain answers questions over a loaded index: it retrieves the most
// relevant chunks, asks the model to answer from them and cites the chunk URLs.
package chain

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/prompts"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
	"github.com/xhad/newsqa/internal/models"
	"github.com/xhad/newsqa/internal/types"
)

var (
	answerMarker  = regexp.MustCompile(`(?i)FINAL ANSWER:`)
	sourcesMarker = regexp.MustCompile(`(?i)SOURCES:`)
)

// DefaultTemplate asks for an answer followed by the URLs it was drawn from.
const DefaultTemplate = `Given the following extracted parts of news articles and a question, create a final answer with references ("SOURCES").
If you don't know the answer, just say that you don't know. Don't try to make up an answer.
ALWAYS return a "SOURCES" part in your answer, listing the Source URLs you used separated by commas.

QUESTION: {{.question}}
=========
{{.summaries}}
=========
FINAL ANSWER:`

// Generator produces completions for a prompt. *llm.ChatEngine implements it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateStream(ctx context.Context, prompt string, fn func(chunk string) error) (string, error)
}

type QAConfig struct {
	TopK     int
	Template string
	// OnToken, when set, receives the raw model output as it streams.
	OnToken func(chunk string) error
}

// QA is a retrieval question-answering chain with source citations.
type QA struct {
	config    QAConfig
	retriever vectorstores.Retriever
	generator Generator
	prompt    prompts.PromptTemplate
}

func NewWithConfig(vs vectorstores.VectorStore, generator Generator, config QAConfig) *QA {
	if config.TopK <= 0 {
		config.TopK = 4
	}
	if config.Template == "" {
		config.Template = DefaultTemplate
	}
	return &QA{
		config:    config,
		retriever: vectorstores.ToRetriever(vs, config.TopK),
		generator: generator,
		prompt:    prompts.NewPromptTemplate(config.Template, []string{"question", "summaries"}),
	}
}

// Factory binds generator and config to whichever index is loaded later.
func Factory(generator Generator, config QAConfig) types.AnswererFactory {
	return func(vs vectorstores.VectorStore) types.Answerer {
		return NewWithConfig(vs, generator, config)
	}
}

// Answer retrieves the chunks closest to question and has the model answer
// from them. Sources only ever name URLs of retrieved chunks.
func (q *QA) Answer(ctx context.Context, question string) (models.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return models.Answer{}, fmt.Errorf("%w: question is empty", types.ErrInputValidation)
	}

	docs, err := q.retriever.GetRelevantDocuments(ctx, question)
	if err != nil {
		if errors.Is(err, types.ErrRetrieval) || errors.Is(err, types.ErrCredential) {
			return models.Answer{}, err
		}
		return models.Answer{}, fmt.Errorf("%w: %v", types.ErrRetrieval, err)
	}
	if len(docs) == 0 {
		return models.Answer{}, fmt.Errorf("%w: index is empty", types.ErrRetrieval)
	}

	prompt, err := q.prompt.Format(map[string]any{
		"question":  question,
		"summaries": summaries(docs),
	})
	if err != nil {
		return models.Answer{}, fmt.Errorf("failed to format prompt: %w", err)
	}

	var out string
	if q.config.OnToken != nil {
		out, err = q.generator.GenerateStream(ctx, prompt, q.config.OnToken)
	} else {
		out, err = q.generator.Generate(ctx, prompt)
	}
	if err != nil {
		if errors.Is(err, types.ErrGeneration) {
			return models.Answer{}, err
		}
		return models.Answer{}, fmt.Errorf("%w: %v", types.ErrGeneration, err)
	}

	answer, cited := parseOutput(out)
	if answer == "" {
		answer = models.NoAnswer
	}
	return models.Answer{
		Answer:          answer,
		Sources:         strings.Join(resolveSources(cited, docs), "\n"),
		SourceDocuments: docs,
	}, nil
}

func summaries(docs []schema.Document) string {
	var sb strings.Builder
	for i, doc := range docs {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "Content: %s\nSource: %s", doc.PageContent, models.SourceOf(doc))
	}
	return sb.String()
}

// parseOutput splits a completion into its answer and its raw sources list.
// Markers are matched case-insensitively; a missing answer marker means the
// whole text before the sources marker is the answer.
func parseOutput(out string) (answer, sources string) {
	body := out
	if loc := lastMatch(sourcesMarker, out); loc != nil {
		body = out[:loc[0]]
		sources = out[loc[1]:]
	}
	if loc := lastMatch(answerMarker, body); loc != nil {
		body = body[loc[1]:]
	}
	return strings.TrimSpace(body), strings.TrimSpace(sources)
}

// lastMatch returns the byte offsets of the last match of re in s, or nil.
func lastMatch(re *regexp.Regexp, s string) []int {
	all := re.FindAllStringIndex(s, -1)
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

// resolveSources keeps the cited URLs that belong to retrieved chunks, in
// citation order without repeats. With no valid citation it falls back to
// the retrieved URLs in retrieval order.
func resolveSources(cited string, docs []schema.Document) []string {
	var retrieved []string
	known := make(map[string]bool)
	for _, doc := range docs {
		src := models.SourceOf(doc)
		if src != "" && !known[src] {
			known[src] = true
			retrieved = append(retrieved, src)
		}
	}

	fields := strings.FieldsFunc(cited, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r' || r == ' ' || r == '\t'
	})
	seen := make(map[string]bool)
	var out []string
	for _, f := range fields {
		f = strings.Trim(f, `-*"'<>()[].;`)
		if known[f] && !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return retrieved
	}
	return out
}
