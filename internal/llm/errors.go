package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/set-night/chatrelay/internal/domain"

	openai "github.com/openai/openai-go/v3"
	"google.golang.org/genai"
)

// normalizeError maps SDK and transport failures onto *domain.ProviderError.
func normalizeError(provider domain.ProviderType, err error) error {
	if err == nil {
		return nil
	}

	var providerErr *domain.ProviderError
	if errors.As(err, &providerErr) {
		return providerErr
	}

	pe := &domain.ProviderError{
		Provider: string(provider),
		Message:  strings.TrimSpace(err.Error()),
		Err:      err,
	}

	var apiErr *openai.Error
	var geminiErr genai.APIError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		pe.Message = domain.ErrProviderTimeout.Error()
	case errors.As(err, &apiErr):
		pe.StatusCode = apiErr.StatusCode
	case errors.As(err, &geminiErr):
		pe.StatusCode = geminiErr.Code
		if geminiErr.Message != "" {
			pe.Message = geminiErr.Message
		}
	}
	return pe
}

func invalidRequest(provider domain.ProviderType, msg string) error {
	return &domain.ProviderError{Provider: string(provider), Message: msg}
}
