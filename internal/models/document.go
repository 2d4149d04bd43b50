package models

import "time"

// Source is a raw PDF byte stream, either uploaded from disk or fetched by URL.
type Source struct {
	Name string
	URL  string
	Data []byte
}

type Page struct {
	Number int
	Text   string
}

type Document struct {
	ID     string
	Name   string
	Source string
	Pages  []Page
}

// Chunk is an immutable, bounded substring of a document's text.
type Chunk struct {
	ID         string
	DocumentID string
	Index      int
	Text       string
}

type EmbeddedChunk struct {
	Chunk
	Vector   []float32
	Metadata map[string]interface{}
}

type SearchResult struct {
	Chunk Chunk
	Score float64
}

type ConversationTurn struct {
	Question string
	Answer   string
}

// Paper is an arXiv search hit.
type Paper struct {
	ID        string
	Title     string
	Authors   []string
	Summary   string
	Published time.Time
	Updated   time.Time
	// URL is the abstract page, PDFURL the paper itself.
	URL    string
	PDFURL string
}
