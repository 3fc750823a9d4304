package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidProvider     = errors.New("invalid provider")
	ErrProviderUnavailable = errors.New("provider not configured")
	ErrEmptyMessage        = errors.New("message is empty")
	ErrInvalidMaxTokens    = errors.New("max tokens must be positive")
	ErrProviderTimeout     = errors.New("provider request timed out")
	ErrTurnNotFound        = errors.New("chat turn not found")
	ErrTurnFinalized       = errors.New("chat turn already finalized")
	ErrModelNotFound       = errors.New("model not found")
	ErrCatalogUnavailable  = errors.New("model catalog not configured")
	ErrEmptyDocument       = errors.New("document is empty")
	ErrVectorUnavailable   = errors.New("vector store not configured")
)

// ErrorPrefix marks an in-band failure in streamed and persisted assistant text.
const ErrorPrefix = "Error: "

// DisconnectSuffix is appended to the partial answer when the client goes away.
const DisconnectSuffix = "\n\n" + ErrorPrefix + "client disconnected"

// ErrorText renders err the way it is shown to the client and stored.
func ErrorText(err error) string {
	return ErrorPrefix + err.Error()
}

// ProviderError is a normalized failure from an upstream model provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Provider == "" {
		return e.Message
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return e.Provider + ": " + e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps a failed write of a chat turn.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
