package types

import (
	"errors"
	"fmt"
)

// Error classes surfaced to the user. Callers wrap them with fmt.Errorf("...: %w", Err...)
// and the orchestrator maps them to messages with errors.Is.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrInputValidation = errors.New("input validation error")
	ErrDataFetch       = errors.New("data fetch error")
	ErrCredential      = errors.New("credential error")
	ErrIndexBuild      = errors.New("index build error")
	ErrStoreNotFound   = errors.New("store not found")
	ErrRetrieval       = errors.New("retrieval error")
	ErrGeneration      = errors.New("generation error")
)

// FetchError reports a URL that could not be loaded.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{ErrDataFetch, e.Err}
}
