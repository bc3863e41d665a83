package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"apyd/internal/manager"
	"apyd/internal/modes"
	"apyd/internal/pipeline"
	"apyd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

const (
	msgPairNotInstalled = "That pair is not installed"
	msgModeNotInstalled = "That mode is not installed"
	// Chunks shrink while a pipeline serves several callers, so the same
	// text can be refused under load and accepted later.
	msgBusySplitHint = "; the size limit is lower while the pair is busy, so retrying later or sending shorter text may succeed"
)

// statusForError maps a service error to a status code and the explanation
// sent to the client. notInstalled is the explanation used for missing or
// unparsable modes.
func statusForError(err error, notInstalled string) (int, string) {
	var he HTTPError
	switch {
	case errors.As(err, &he):
		return he.StatusCode(), he.Error()
	case manager.IsInvalidPair(err):
		return http.StatusBadRequest, err.Error()
	case manager.IsNotInstalled(err), modes.IsParseError(err):
		return http.StatusBadRequest, notInstalled
	case pipeline.IsInputTooFragmented(err):
		return http.StatusRequestEntityTooLarge, err.Error() + msgBusySplitHint
	case errors.Is(err, manager.ErrClosed), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "server is shutting down"
	case pipeline.IsTimeout(err), pipeline.IsProcessFailure(err):
		return http.StatusInternalServerError, err.Error()
	}
	return http.StatusInternalServerError, err.Error()
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, explanation string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{
		Status:      "error",
		Code:        status,
		Message:     http.StatusText(status),
		Explanation: explanation,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}
