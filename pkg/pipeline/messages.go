package pipeline

import (
	"context"
	"errors"

	"github.com/xhad/aba/internal/types"
)

// AnswerUnavailable is shown in place of an answer when a query fails.
const AnswerUnavailable = "Unable to generate response at this time."

var userMessages = []struct {
	err error
	msg string
}{
	{types.ErrEmbeddingService, "The embedding service is unavailable. Please try again in a moment."},
	{types.ErrSynthesisService, "The answer service is unavailable. Please try again in a moment."},
	{types.ErrDimensionMismatch, "The embedding model's vector size does not match the database. Check vector_dim in your config."},
	{types.ErrStorageUnavailable, "The vector database is unreachable. Please try again in a moment."},
	{types.ErrInvalidDocument, "That file could not be read as a PDF. Please try another file."},
	{types.ErrEmptyDocument, "No text could be extracted from this document (it may be a scanned image). Please try another file."},
	{types.ErrNoDocumentLoaded, "Load a PDF before asking questions."},
	{types.ErrEmptyQuestion, "Please enter a question."},
	{types.ErrSessionClosed, "This session has ended."},
	{types.ErrConfiguration, "The application is not configured correctly. Check your API keys and database settings."},
	{context.DeadlineExceeded, "The request timed out. Please try again."},
}

// UserMessage turns a pipeline error into one line for the user. Every
// external service gets its own wording so an outage never reads like an
// empty result.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	for _, m := range userMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return "Something went wrong: " + err.Error()
}
