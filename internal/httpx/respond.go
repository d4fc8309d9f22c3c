package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ariefcatur/go-saga-commerce/internal/apperr"
	"github.com/ariefcatur/go-saga-commerce/internal/cache"
	"github.com/ariefcatur/go-saga-commerce/internal/events"
	"go.uber.org/zap"
)

var errBadJSON = fmt.Errorf("%w: invalid json", apperr.ErrValidation)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errBadJSON
	}
	return nil
}

func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict):
		code = http.StatusConflict
	}
	if code == http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
		writeJSON(w, code, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// writeResult answers a write. When the write committed but its event could not be
// published the client gets 202 with events_published=false instead of an error.
func writeResult(w http.ResponseWriter, log *zap.Logger, code int, v any, err error) {
	switch {
	case err == nil:
		writeJSON(w, code, v)
	case errors.Is(err, events.ErrPublish):
		log.Warn("write committed, event not published", zap.Error(err))
		writeJSON(w, http.StatusAccepted, map[string]any{"data": v, "events_published": false})
	default:
		writeError(w, log, err)
	}
}

func writeCached(w http.ResponseWriter, v any, src cache.Source) {
	if src == cache.SourceCache {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	writeJSON(w, http.StatusOK, v)
}
