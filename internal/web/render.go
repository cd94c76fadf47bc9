package web

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hpungsan/snipvault/internal/errors"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 4 << 20

// maxUploadMemory is how much of a multipart upload is held in memory
// before spilling to temp files.
const maxUploadMemory = 32 << 20

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderError writes err as {"error": {code, message, status}}. Errors that
// are not VaultErrors become INTERNAL; server-side failures are logged.
func renderError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	var vErr *errors.VaultError
	if !stderrors.As(err, &vErr) {
		vErr = errors.NewInternal(err)
	}

	if vErr.Status >= 500 {
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("code", string(vErr.Code)),
			slog.String("error", err.Error()),
		)
	}

	body := map[string]any{
		"code":    string(vErr.Code),
		"message": vErr.Message,
		"status":  vErr.Status,
	}
	if len(vErr.Details) > 0 {
		body["details"] = vErr.Details
	}
	renderJSON(w, vErr.Status, map[string]any{"error": body})
}

// decodeJSON decodes a bounded JSON request body into T.
func decodeJSON[T any](r *http.Request) (T, error) {
	var out T
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, errors.NewInvalidRequest(fmt.Sprintf("invalid JSON body: %v", err))
	}
	return out, nil
}
