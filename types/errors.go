package types

import "fmt"

// ExtractionError means the source file yielded no usable text.
// Fatal for that document only.
type ExtractionError struct {
	Source string
	Reason string
}

func (e ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s: %s", e.Source, e.Reason)
}

// EmbeddingError means the embedding upstream failed after the retry
// ceiling was exhausted.
type EmbeddingError struct {
	Stage    string // "ingest" or "query"
	Attempts int
	Err      error
}

func (e EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed at %s stage after %d attempts: %v", e.Stage, e.Attempts, e.Err)
}

func (e EmbeddingError) Unwrap() error { return e.Err }

// InvalidFilterError means the query referenced an unknown collection or
// country code. Caller input, never retried.
type InvalidFilterError struct {
	Field string
	Value string
}

func (e InvalidFilterError) Error() string {
	return fmt.Sprintf("invalid %s filter: %q", e.Field, e.Value)
}

// ModelMismatchError means the query would compare vectors produced by a
// different embedding model version. Comparing across versions is invalid,
// so the query is rejected instead of silently re-embedded.
type ModelMismatchError struct {
	Collection string
	Want       string
	Got        string
}

func (e ModelMismatchError) Error() string {
	return fmt.Sprintf("collection %q embedded with %q, query embedder is %q", e.Collection, e.Want, e.Got)
}

// LanguageModelError means the generation upstream failed or timed out
// after its single retry.
type LanguageModelError struct {
	Timeout bool
	Err     error
}

func (e LanguageModelError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("language model timed out: %v", e.Err)
	}
	return fmt.Sprintf("language model call failed: %v", e.Err)
}

func (e LanguageModelError) Unwrap() error { return e.Err }
