package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	domainErrors "github.com/procuredesk/tender-evaluation-backend/internal/domain/errors"
	"github.com/procuredesk/tender-evaluation-backend/internal/infrastructure/repository"
)

// errorResponse is the wire shape of every error.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// writeError maps an error to its HTTP response. Domain errors carry their
// own status code and stable error code; everything else becomes a 500.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, body := errorToResponse(r.Context(), err)

	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			"error", err,
			"path", r.URL.Path,
			"request_id", body.RequestID,
		)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: body})
}

func errorToResponse(ctx context.Context, err error) (int, errorBody) {
	body := errorBody{RequestID: RequestIDFromContext(ctx)}

	var appErr *domainErrors.AppError
	if errors.As(err, &appErr) {
		body.Code = appErr.Code
		body.Message = appErr.Message
		body.Details = appErr.Details
		return appErr.StatusCode, body
	}

	if repository.IsNotFound(err) {
		body.Code = "NOT_FOUND"
		body.Message = "Resource not found"
		return http.StatusNotFound, body
	}
	if repository.IsDuplicateKeyViolation(err) {
		body.Code = "CONFLICT"
		body.Message = "Resource already exists"
		return http.StatusConflict, body
	}

	if errors.Is(err, context.Canceled) {
		body.Code = "REQUEST_CANCELED"
		body.Message = "Request was canceled"
		return http.StatusRequestTimeout, body
	}
	if errors.Is(err, context.DeadlineExceeded) {
		body.Code = "REQUEST_TIMEOUT"
		body.Message = "Request timed out"
		return http.StatusRequestTimeout, body
	}

	body.Code = "INTERNAL_ERROR"
	body.Message = "An internal error occurred"
	return http.StatusInternalServerError, body
}

// writeJSON writes a success body.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}
