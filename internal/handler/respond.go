package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/set-night/chatrelay/internal/domain"
	"github.com/set-night/chatrelay/internal/middleware"
)

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write json response", "error", err)
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	var providerErr *domain.ProviderError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest),
		errors.Is(err, domain.ErrInvalidProvider),
		errors.Is(err, domain.ErrEmptyMessage),
		errors.Is(err, domain.ErrInvalidMaxTokens),
		errors.Is(err, domain.ErrEmptyDocument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrTurnNotFound),
		errors.Is(err, domain.ErrModelNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrProviderUnavailable),
		errors.Is(err, domain.ErrCatalogUnavailable),
		errors.Is(err, domain.ErrVectorUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &providerErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err,
		)
		detail = "internal server error"
	}
	writeDetail(w, status, detail)
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}

func parseUUID(name, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil, badRequest("invalid %s", name)
	}
	return id, nil
}

// parseOptionalUUID returns nil for an empty value.
func parseOptionalUUID(name, value string) (*uuid.UUID, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	id, err := parseUUID(name, value)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, badRequest("invalid %s", name)
	}
	return n, nil
}
