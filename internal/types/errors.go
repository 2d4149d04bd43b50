package types

import "errors"

var (
	// ErrConfiguration is fatal at startup: a credential or setting is missing.
	ErrConfiguration = errors.New("configuration error")

	// ErrInvalidDocument means the byte stream could not be opened as a PDF.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrEmptyDocument means extraction and chunking produced nothing to store.
	ErrEmptyDocument = errors.New("document has no extractable text")

	ErrEmbeddingService   = errors.New("embedding service error")
	ErrSynthesisService   = errors.New("synthesis service error")
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrDimensionMismatch means a vector does not fit the store's vector_dim.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrNoDocumentLoaded rejects a question asked before any ingestion.
	ErrNoDocumentLoaded = errors.New("no document loaded")

	ErrEmptyQuestion = errors.New("empty question")
	ErrSessionClosed = errors.New("session closed")
)
