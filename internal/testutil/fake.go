// Package testutil provides deterministic stand-ins for the remote embedding
// and generation services.
package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/tmc/langchaingo/llms"
)

// EmbeddingDim is the dimension of FakeEmbedder vectors.
const EmbeddingDim = 64

// FakeEmbedder hashes lowercase words into a fixed number of buckets and
// L2-normalizes the result. Equal texts always get equal vectors.
type FakeEmbedder struct {
	mu    sync.Mutex
	Err   error
	Calls int
	Texts []string
}

func (f *FakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if f.Err != nil {
		return nil, f.Err
	}
	f.Texts = append(f.Texts, texts...)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = Vector(t)
	}
	return out, nil
}

func (f *FakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Vector is the embedding FakeEmbedder produces for text.
func Vector(text string) []float32 {
	vec := make([]float32, EmbeddingDim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%EmbeddingDim]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// FakeLLM answers prompts with Respond, or with Response when Respond is nil.
type FakeLLM struct {
	mu       sync.Mutex
	Response string
	Respond  func(prompt string) string
	Err      error
	Prompts  []string
	Options  []llms.CallOptions
}

func (f *FakeLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}

	var sb strings.Builder
	for _, m := range messages {
		for _, part := range m.Parts {
			if text, ok := part.(llms.TextContent); ok {
				sb.WriteString(text.Text)
			}
		}
	}
	prompt := sb.String()

	f.mu.Lock()
	f.Prompts = append(f.Prompts, prompt)
	f.Options = append(f.Options, opts)
	err, respond, response := f.Err, f.Respond, f.Response
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if respond != nil {
		response = respond(prompt)
	}

	if opts.StreamingFunc != nil {
		for _, word := range strings.SplitAfter(response, " ") {
			if err := opts.StreamingFunc(ctx, []byte(word)); err != nil {
				return nil, err
			}
		}
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: response}},
	}, nil
}

func (f *FakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

// LastPrompt returns the most recent prompt, or "".
func (f *FakeLLM) LastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Prompts) == 0 {
		return ""
	}
	return f.Prompts[len(f.Prompts)-1]
}
