package app

import (
	"errors"

	"crawlmind/internal/extract"
	"crawlmind/internal/knowledge"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUsernameExists    = errors.New("username already exists")
	ErrEmailExists       = errors.New("email already exists")
	ErrInvalidCredential = errors.New("invalid username or password")

	ErrNoSources         = errors.New("at least one url or file is required")
	ErrMissingCredential = errors.New("an api key is required")
	ErrEmptyQuestion     = errors.New("question is empty")
	ErrInvalidAPIKey     = errors.New("invalid api key")
	ErrEmbeddingService  = errors.New("embedding service error")
	ErrGeneration        = errors.New("answer generation failed")
)

// ErrorKind is the coarse failure class reported to callers.
type ErrorKind string

const (
	KindInput      ErrorKind = "InputError"
	KindExtraction ErrorKind = "ExtractionError"
	KindEmbedding  ErrorKind = "EmbeddingError"
	KindStore      ErrorKind = "StoreError"
	KindRetrieval  ErrorKind = "RetrievalError"
	KindGeneration ErrorKind = "GenerationError"
	KindInternal   ErrorKind = "InternalError"
)

func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoSources), errors.Is(err, ErrMissingCredential), errors.Is(err, ErrEmptyQuestion),
		errors.Is(err, ErrInvalidInput), errors.Is(err, extract.ErrInvalidSource):
		return KindInput
	case errors.Is(err, extract.ErrNoContent), errors.Is(err, extract.ErrUnsupportedFormat), errors.Is(err, extract.ErrLoad):
		return KindExtraction
	case errors.Is(err, ErrInvalidAPIKey), errors.Is(err, ErrEmbeddingService):
		return KindEmbedding
	case errors.Is(err, knowledge.ErrNoKnowledgeBase):
		return KindRetrieval
	case errors.Is(err, knowledge.ErrStoreWrite), errors.Is(err, knowledge.ErrStoreRead),
		errors.Is(err, knowledge.ErrCollectionNotFound), errors.Is(err, knowledge.ErrDimensionMismatch),
		errors.Is(err, knowledge.ErrChunkTooLarge):
		return KindStore
	case errors.Is(err, ErrGeneration):
		return KindGeneration
	default:
		return KindInternal
	}
}

// UserMessage is the text shown to an end user for err.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, knowledge.ErrNoKnowledgeBase):
		return "No documents found. Please add some URLs or files first."
	case errors.Is(err, ErrInvalidAPIKey):
		return "Invalid API key. Please check your key and try again."
	case errors.Is(err, ErrEmbeddingService):
		return "The embedding service is unavailable. Please try again later."
	case errors.Is(err, knowledge.ErrChunkTooLarge):
		return "A document is too large for the vector store. Please split it into smaller files."
	case errors.Is(err, extract.ErrNoContent):
		return "No content could be extracted from the provided sources."
	default:
		return err.Error()
	}
}
