package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/authcore/internal/common"
)

const maxBodyBytes = 1 << 20

const msgUnavailable = "service temporarily unavailable, try again"

type errorBody struct {
	Error string `json:"error"`
}

type messageBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// decodeJSON reads a single JSON object into dst, rejecting unknown fields
// and trailing data.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("decode body: trailing data")
	}
	return nil
}

// statusFor collapses service errors into a status and a client-safe
// message. Unknown errors are 500.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, msgUnavailable
	case errors.Is(err, common.ErrMissingToken):
		return http.StatusUnauthorized, "Missing authorization token"
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, "Invalid or expired token"
	case errors.Is(err, common.ErrInsufficientRole):
		return http.StatusForbidden, "Insufficient permissions"
	case errors.Is(err, common.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, common.ErrFaceMismatch):
		return http.StatusUnauthorized, "Face verification failed"
	case errors.Is(err, common.ErrOtpExpired):
		return http.StatusBadRequest, "OTP has expired"
	case errors.Is(err, common.ErrOtpNotFound):
		return http.StatusBadRequest, "Invalid OTP"
	case errors.Is(err, common.ErrDuplicateUser):
		return http.StatusConflict, "Username or email already exists"
	case errors.Is(err, common.ErrRateLimited):
		return http.StatusTooManyRequests, "Too many attempts, try again later"
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest, strings.TrimPrefix(err.Error(), common.ErrValidation.Error()+": ")
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, "User not found"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	writeError(w, status, msg)
}
