package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/capitalize-ai/concierge-platform/internal/service"
	"github.com/capitalize-ai/concierge-platform/internal/store"
	"github.com/capitalize-ai/concierge-platform/pkg/logger"
)

// apologyMessage is shown to customers when a turn fails for reasons they
// cannot fix.
const apologyMessage = "Sorry, I encountered an error. Please try again."

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeServiceError maps service errors to a status. Anything unexpected is
// logged and answered with a generic message.
func writeServiceError(w http.ResponseWriter, log *logger.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidTurn):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrTenantNotFound), errors.Is(err, service.ErrTenantInactive):
		writeError(w, http.StatusNotFound, "tenant not found")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "conversation not found")
	default:
		log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, apologyMessage)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func queryLimit(r *http.Request) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			return parsed
		}
	}
	return 0
}
