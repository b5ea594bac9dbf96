package processor

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/xhad/newsqa/internal/models"
)

type ProcessorConfig struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string // tried in order: paragraphs, lines, sentences, clauses
}

type Processor struct {
	config   ProcessorConfig
	splitter textsplitter.TextSplitter
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = 0
	}
	if len(config.Separators) == 0 {
		config.Separators = []string{"\n\n", "\n", ".", ","}
	}

	return Processor{
		config: config,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithSeparators(config.Separators),
			textsplitter.WithChunkSize(config.ChunkSize),
			textsplitter.WithChunkOverlap(config.ChunkOverlap),
			textsplitter.WithKeepSeparator(true),
		),
	}
}

// Split turns fetched documents into chunks of at most ChunkSize characters.
// Every chunk records its source URL, the page title and its position.
func (p *Processor) Split(docs []models.Document) ([]schema.Document, error) {
	var chunks []schema.Document

	for _, doc := range docs {
		parts, err := p.splitter.SplitText(doc.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to split %s: %w", doc.URL, err)
		}

		index := 0
		for _, part := range parts {
			for _, piece := range hardSplit(part, p.config.ChunkSize) {
				piece = strings.TrimSpace(piece)
				if piece == "" {
					continue
				}
				chunks = append(chunks, schema.Document{
					PageContent: piece,
					Metadata: map[string]any{
						models.MetaSource:     doc.URL,
						models.MetaTitle:      doc.Title,
						models.MetaChunkIndex: index,
					},
				})
				index++
			}
		}
	}

	return chunks, nil
}

// hardSplit cuts text that no separator could bring under size, on rune
// boundaries.
func hardSplit(text string, size int) []string {
	if utf8.RuneCountInString(text) <= size {
		return []string{text}
	}
	var out []string
	runes := []rune(text)
	for len(runes) > 0 {
		n := size
		if n > len(runes) {
			n = len(runes)
		}
		out = append(out, string(runes[:n]))
		runes = runes[n:]
	}
	return out
}
