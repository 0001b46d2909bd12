package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"space-auth/internal/middleware"
	"space-auth/internal/model"
	"space-auth/pkg/apierror"
)

func writeSuccess(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError maps service errors to a status and a stable code. Credential and
// token failures carry only a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	body := &model.APIError{
		Code:    "INTERNAL_ERROR",
		Message: "Unexpected server error",
	}

	var apiErr *apierror.APIError
	var validation model.ValidationErrors
	if errors.As(err, &apiErr) {
		status = apiErr.HTTPStatus
		body.Code = apiErr.Code
		body.Message = apiErr.Message
		body.Details = apiErr.Details
	} else if errors.As(err, &validation) {
		status = http.StatusBadRequest
		body.Code = "VALIDATION_FAILED"
		body.Message = "Registration failed"
		body.Details = validation.Error()
	} else if errors.Is(err, model.ErrEmailTaken) {
		status = http.StatusConflict
		body.Code = "EMAIL_TAKEN"
		body.Message = "User with this email already exists"
	} else if errors.Is(err, model.ErrInvalidCredentials) {
		status = http.StatusUnauthorized
		body.Code = "INVALID_CREDENTIALS"
		body.Message = "Invalid credentials"
	} else if errors.Is(err, model.ErrInvalidToken) {
		status = http.StatusUnauthorized
		body.Code = "INVALID_TOKEN"
		body.Message = "Invalid refresh token"
	} else if errors.Is(err, model.ErrTokenInactive) {
		status = http.StatusUnauthorized
		body.Code = "TOKEN_INACTIVE"
		body.Message = "Refresh token is expired or revoked"
	} else if errors.Is(err, model.ErrUnauthorized) {
		status = http.StatusUnauthorized
		body.Code = "UNAUTHORIZED"
		body.Message = "Authentication required"
	} else {
		// Storage and other infrastructure failures stay in the logs.
		slog.ErrorContext(r.Context(), "unhandled error in writeError",
			"request_id", middleware.RequestIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error:   body,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		return apierror.BadRequest("invalid JSON body", "")
	}
	return nil
}
