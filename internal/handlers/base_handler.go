package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/japanesestudent/listening-service/internal/apperrors"
	"go.uber.org/zap"
)

// BaseHandler provides common handler functionality
type BaseHandler struct {
	Logger *zap.Logger
}

// RespondJSON sends a JSON response
func (h *BaseHandler) RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.Logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

// RespondError sends an error JSON response
func (h *BaseHandler) RespondError(w http.ResponseWriter, status int, message string) {
	h.RespondJSON(w, status, map[string]string{"error": message})
}

// RespondServiceError maps a service error to its status code and sends it.
// Unexpected errors are logged and answered with a generic message.
func (h *BaseHandler) RespondServiceError(w http.ResponseWriter, err error, fallback string) {
	var (
		validationErr   *apperrors.ValidationError
		preconditionErr *apperrors.PreconditionError
		upstreamErr     *apperrors.UpstreamError
		storageErr      *apperrors.StorageError
	)

	switch {
	case errors.As(err, &validationErr):
		h.RespondError(w, http.StatusBadRequest, validationErr.Message)
	case apperrors.IsNotFound(err):
		h.RespondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &preconditionErr):
		h.RespondError(w, http.StatusBadRequest, preconditionErr.Message)
	case errors.As(err, &upstreamErr):
		h.Logger.Warn("upstream service failed", zap.Error(err))
		h.RespondError(w, http.StatusBadGateway, upstreamErr.Error())
	case errors.As(err, &storageErr):
		h.Logger.Error("storage operation failed", zap.Error(err))
		h.RespondError(w, http.StatusInternalServerError, "failed to store media")
	default:
		h.Logger.Error(fallback, zap.Error(err))
		h.RespondError(w, http.StatusInternalServerError, fallback)
	}
}

// decodeJSON decodes the request body into dest
func decodeJSON(r *http.Request, dest any) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return apperrors.Validation("invalid request body")
	}
	return nil
}
