package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"cashback-service/internal/service"
	"cashback-service/internal/util"
)

const maxBodyBytes = 1 << 20

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// Meta represents list metadata
type Meta struct {
	Total int `json:"total"`
	Limit int `json:"limit,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

// responder carries the JSON helpers shared by every handler.
type responder struct {
	logger *zap.Logger
}

func (h responder) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError sends an error response. Server errors never echo the
// underlying cause to the client.
func (h responder) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	if statusCode >= http.StatusInternalServerError {
		h.logger.Error("HTTP error response",
			util.ErrorField(err),
			util.Int("status_code", statusCode),
			util.String("message", message),
		)
		public := service.ErrInternal
		if errors.Is(err, service.ErrSignInRequired) {
			public = service.ErrSignInRequired
		}
		h.respondWithJSON(w, statusCode, errorResponse(public, message))
		return
	}
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}

// fail maps err to its status and responds.
func (h responder) fail(w http.ResponseWriter, err error, message string) {
	h.respondWithError(w, statusCode(err), err, message)
}

// decode reads a JSON body into dst, rejecting unknown fields.
func (h responder) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.respondWithError(w, http.StatusBadRequest, service.ErrInvalidInput, "Invalid request body")
		return false
	}
	return true
}

// statusCode determines the HTTP status for a service error
func statusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrInvalidOTP),
		errors.Is(err, service.ErrSignupExpired),
		errors.Is(err, service.ErrBelowMinimum),
		errors.Is(err, service.ErrInsufficientBalance):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrAccountDeactivated),
		errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrUserAlreadyExists),
		errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrSignInRequired):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// queryLimit parses ?limit=, returning 0 (service default) when absent
// or malformed.
func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
