package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tcmhub/apiserver/types"
)

type contextKey string

const contextCallerKey contextKey = "caller"

var errNoCaller = errors.New("no caller in context")

func callerFromContext(ctx context.Context) (types.Caller, error) {
	caller, ok := ctx.Value(contextCallerKey).(types.Caller)
	if !ok || caller.ID == uuid.Nil {
		return types.Caller{}, errNoCaller
	}
	return caller, nil
}

// parseUUIDParam rejects malformed ids before any service call, so a
// bad path segment is a 400 rather than a probe at the storage layer.
func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, errors.New("invalid " + name)
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}
