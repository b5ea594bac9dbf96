package models

import "github.com/tmc/langchaingo/schema"

// Metadata keys carried by every chunk.
const (
	MetaSource     = "source"
	MetaTitle      = "title"
	MetaChunkIndex = "chunk_index"
)

// NoAnswer is returned when the model produced nothing usable.
const NoAnswer = "No answer returned."

// Document is the readable text of one fetched URL.
type Document struct {
	URL      string
	Title    string
	Content  string
	Metadata map[string]interface{}
}

// Answer is the result of asking a question against an index.
type Answer struct {
	Answer          string
	Sources         string // newline-joined URLs
	SourceDocuments []schema.Document
}

// SourceOf returns the source URL recorded on a chunk.
func SourceOf(doc schema.Document) string {
	if doc.Metadata == nil {
		return ""
	}
	s, _ := doc.Metadata[MetaSource].(string)
	return s
}
